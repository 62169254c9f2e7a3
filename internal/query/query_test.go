package query_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CfdLedger/internal/address"
	"CfdLedger/internal/core"
	"CfdLedger/internal/event"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/observability"
	"CfdLedger/internal/oracle"
	"CfdLedger/internal/persistence"
	"CfdLedger/internal/query"
	"CfdLedger/internal/state"
	"CfdLedger/internal/testutil"
)

var (
	operator = address.FromSeed("operator")
	alice    = address.FromSeed("alice")
	bob      = address.FromSeed("bob")
)

// ============================================================================
// Test Helpers
// ============================================================================

func meta(signer address.Address) event.Meta {
	return event.Meta{RequestID: uuid.New(), Signer: signer}
}

// runScript funds alice, opens a long at 50_000 and moves the mock price
// to 40_000. It returns the core and its committed outputs.
func runScript(t *testing.T) (*core.DeterministicCore, []core.CoreOutput) {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Operator = operator
	clock := core.NewManualClock(100)
	persistCh := make(chan core.CoreOutput, 64)
	c := core.NewDeterministicCore(cfg, core.Deps{Clock: clock, PersistChan: persistCh})

	for _, cmd := range []event.Command{
		&event.Deposit{Meta: meta(operator), Owner: alice, Asset: "USDC", Amount: 10_000},
		&event.InitOracle{Meta: meta(operator)},
		&event.InitMarket{Meta: meta(alice)},
		&event.OpenPosition{Meta: meta(alice), Side: state.SideLong, Size: 3_000, Leverage: 3},
		&event.UpdateOracle{Meta: meta(operator), Price: 40_000},
	} {
		_, err := c.ProcessCommand(context.Background(), cmd)
		require.NoError(t, err, "%s", cmd.Type())
		clock.Advance(1)
	}

	var outputs []core.CoreOutput
	for len(persistCh) > 0 {
		outputs = append(outputs, <-persistCh)
	}
	require.Len(t, outputs, 5)
	return c, outputs
}

// logged writes outputs to a fresh SQLite event log.
func logged(t *testing.T, c *core.DeterministicCore, outputs []core.CoreOutput) *query.QueryService {
	t.Helper()
	db := testutil.OpenSQLite(t)
	w := persistence.NewPersistenceWorker(db, persistence.DialectSQLite, c.Codec(), nil, 10, 0,
		observability.NewMetrics(prometheus.NewRegistry()), zerolog.Nop())
	require.NoError(t, w.Flush(context.Background(), outputs))
	return query.NewQueryService(c, db, persistence.DialectSQLite)
}

func requireCode(t *testing.T, err error, want fault.Code) {
	t.Helper()
	require.Error(t, err)
	code, ok := fault.CodeOf(err)
	require.True(t, ok, "not a fault: %v", err)
	assert.Equal(t, want, code)
}

// ============================================================================
// Test: Records
// ============================================================================

func TestGetPosition_MarksToMarket(t *testing.T) {
	c, _ := runScript(t)
	qs := query.NewQueryService(c, nil, persistence.DialectSQLite)

	resp, err := qs.GetPosition(alice.String())
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.AsOfSequence)

	p := resp.Data
	assert.Equal(t, uint64(3_000), p.Size)
	assert.Equal(t, uint64(1_000), p.Collateral)
	assert.Equal(t, uint64(40_000), p.MarkPrice)
	assert.Equal(t, int64(-600), p.UnrealizedPnL)
	assert.Equal(t, uint64(400), p.CollateralValue)
	assert.Equal(t, uint64(1_333), p.CollateralRatioBps)
	assert.False(t, p.Liquidatable)
}

func TestGetPosition_Errors(t *testing.T) {
	c, _ := runScript(t)
	qs := query.NewQueryService(c, nil, persistence.DialectSQLite)

	_, err := qs.GetPosition(bob.String())
	requireCode(t, err, fault.RecordNotFound)

	_, err = qs.GetPosition("not-base58-0OIl")
	requireCode(t, err, fault.InvalidAddress)
}

func TestGetMarketAndOracle(t *testing.T) {
	c, _ := runScript(t)
	qs := query.NewQueryService(c, nil, persistence.DialectSQLite)

	market, err := qs.GetMarket()
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000), market.Data.T0Price)

	_, err = qs.GetPool()
	requireCode(t, err, fault.RecordNotFound)

	_, err = qs.GetSlot("seven")
	requireCode(t, err, fault.InvalidParameter)
}

func TestGetSpotPrice(t *testing.T) {
	c, _ := runScript(t)
	for _, cmd := range []event.Command{
		&event.InitSpotOracle{Meta: meta(operator)},
		&event.UpdateAssetPrice{Meta: meta(operator), Symbol: "AAPL", Class: oracle.AssetClassStock, Price: 190},
	} {
		_, err := c.ProcessCommand(context.Background(), cmd)
		require.NoError(t, err)
	}
	qs := query.NewQueryService(c, nil, persistence.DialectSQLite)

	resp, err := qs.GetSpotPrice("stock", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, uint64(190), resp.Data.Price)
	assert.Equal(t, int64(7), resp.AsOfSequence)

	_, err = qs.GetSpotPrice("crypto", "AAPL")
	requireCode(t, err, fault.AssetNotFound)

	_, err = qs.GetSpotPrice("metal", "AAPL")
	requireCode(t, err, fault.InvalidAssetType)
}

// ============================================================================
// Test: Balances
// ============================================================================

func TestGetBalance(t *testing.T) {
	c, _ := runScript(t)
	qs := query.NewQueryService(c, nil, persistence.DialectSQLite)

	usdc, err := qs.GetBalance(alice.String(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, int64(9_000), usdc.Data.Balance)
	assert.Equal(t, int64(5), usdc.AsOfSequence)

	long, err := qs.GetBalance(alice.String(), "LONG")
	require.NoError(t, err)
	assert.Equal(t, int64(3_000), long.Data.Balance)

	_, err = qs.GetBalance(alice.String(), "DOGE")
	requireCode(t, err, fault.InvalidAssetType)

	all, err := qs.GetBalances(alice.String())
	require.NoError(t, err)
	require.Len(t, all.Data, 2)
	assert.Equal(t, "USDC", all.Data[0].Asset)
	assert.Equal(t, "LONG", all.Data[1].Asset)
}

func TestGetState(t *testing.T) {
	c, _ := runScript(t)
	qs := query.NewQueryService(c, nil, persistence.DialectSQLite)

	resp := qs.GetState()
	assert.Equal(t, int64(5), resp.Data.Sequence)
	assert.Equal(t, int64(5), resp.AsOfSequence)
	assert.Len(t, resp.Data.StateHash, 64)
	assert.Equal(t, int64(10_000), resp.Data.Supply["USDC"])
	assert.Equal(t, int64(3_000), resp.Data.Supply["LONG"])
	assert.Positive(t, resp.Data.Records)
}

// ============================================================================
// Test: History
// ============================================================================

func TestJournals_NewestFirstWithPaging(t *testing.T) {
	c, outputs := runScript(t)
	qs := logged(t, c, outputs)
	ctx := context.Background()

	resp, err := qs.Journals(ctx, alice.String(), 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Data)
	assert.Equal(t, int64(4), resp.Data[0].Sequence)

	oldest := resp.Data[len(resp.Data)-1]
	assert.Equal(t, int64(1), oldest.Sequence)
	assert.Equal(t, "mint", oldest.JournalType)
	assert.Equal(t, "USDC", oldest.Asset)
	assert.Equal(t, int64(10_000), oldest.Amount)

	page, err := qs.Journals(ctx, alice.String(), 10, 4)
	require.NoError(t, err)
	for _, e := range page.Data {
		assert.Less(t, e.Sequence, int64(4))
	}

	none, err := qs.Journals(ctx, bob.String(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none.Data)
}

func TestJournals_RequiresEventLog(t *testing.T) {
	c, _ := runScript(t)
	qs := query.NewQueryService(c, nil, persistence.DialectSQLite)

	_, err := qs.Journals(context.Background(), alice.String(), 10, 0)
	assert.ErrorIs(t, err, query.ErrNoEventLog)
	assert.False(t, fault.IsFault(err))
}

// ============================================================================
// Test: Integrity
// ============================================================================

func TestVerifyIntegrity_Healthy(t *testing.T) {
	c, outputs := runScript(t)
	qs := logged(t, c, outputs)

	resp, err := qs.VerifyIntegrity(context.Background())
	require.NoError(t, err)
	report := resp.Data
	assert.True(t, report.IsHealthy)
	assert.Equal(t, int64(5), report.CheckedEvents)
	assert.Empty(t, report.HashChainBreaks)
	assert.Empty(t, report.UnbalancedAssets)
}

func TestVerifyIntegrity_TrailingLogIsHealthy(t *testing.T) {
	c, outputs := runScript(t)
	qs := logged(t, c, outputs[:3])

	resp, err := qs.VerifyIntegrity(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Data.IsHealthy)
	assert.Equal(t, int64(3), resp.Data.CheckedEvents)
}

func TestVerifyIntegrity_DetectsBrokenChain(t *testing.T) {
	c, outputs := runScript(t)
	db := testutil.OpenSQLite(t)
	w := persistence.NewPersistenceWorker(db, persistence.DialectSQLite, c.Codec(), nil, 10, 0,
		observability.NewMetrics(prometheus.NewRegistry()), zerolog.Nop())
	require.NoError(t, w.Flush(context.Background(), outputs))

	_, err := db.Exec(`UPDATE clearing_events SET prev_hash = ? WHERE sequence = 3`, make([]byte, 32))
	require.NoError(t, err)

	qs := query.NewQueryService(c, db, persistence.DialectSQLite)
	resp, err := qs.VerifyIntegrity(context.Background())
	require.NoError(t, err)
	assert.False(t, resp.Data.IsHealthy)
	assert.Equal(t, []int64{3}, resp.Data.HashChainBreaks)
	assert.False(t, resp.Data.LogTipMismatch)
}

func TestVerifyIntegrity_DetectsTipMismatch(t *testing.T) {
	c, outputs := runScript(t)
	db := testutil.OpenSQLite(t)
	w := persistence.NewPersistenceWorker(db, persistence.DialectSQLite, c.Codec(), nil, 10, 0,
		observability.NewMetrics(prometheus.NewRegistry()), zerolog.Nop())
	require.NoError(t, w.Flush(context.Background(), outputs))

	_, err := db.Exec(`UPDATE clearing_events SET state_hash = ? WHERE sequence = 5`, make([]byte, 32))
	require.NoError(t, err)

	qs := query.NewQueryService(c, db, persistence.DialectSQLite)
	resp, err := qs.VerifyIntegrity(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Data.LogTipMismatch)
	assert.False(t, resp.Data.IsHealthy)
}
