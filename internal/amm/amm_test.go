package amm_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CfdLedger/internal/address"
	"CfdLedger/internal/amm"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/ledger"
	"CfdLedger/internal/oracle"
)

var (
	poolKey    = address.FromSeed("pool")
	admin      = address.FromSeed("admin")
	longVault  = address.FromSeed("pool-long")
	shortVault = address.FromSeed("pool-short")
	alice      = address.FromSeed("alice")
	bob        = address.FromSeed("bob")
)

func fundedTx(t *testing.T, holdings map[address.Address]map[ledger.AssetID]uint64) *ledger.Tx {
	t.Helper()
	bt := ledger.NewBalanceTracker()
	seed := bt.Begin("seed", 0)
	for owner, assets := range holdings {
		for asset, amount := range assets {
			require.NoError(t, seed.Mint(ledger.UserAccount(owner, asset), amount, admin))
		}
	}
	require.NoError(t, bt.ApplyBatch(seed.Batch(0)))
	return bt.Begin("op", 1)
}

func seededPool(t *testing.T, tx *ledger.Tx, long, short uint64) *amm.Pool {
	t.Helper()
	p := amm.NewPool(poolKey, admin, longVault, shortVault)
	lp := &amm.LPPosition{}
	_, err := p.AddLiquidity(tx, lp, alice, long, short, 0)
	require.NoError(t, err)
	return p
}

func product(a, b uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
}

// =============================================================================
// Quotes
// =============================================================================

func TestQuoteExactIn(t *testing.T) {
	q, err := amm.QuoteExactIn(1_000, 100_000, 100_000, 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), q.Fee)
	assert.Equal(t, uint64(998), q.AmountInNet)
	// 998 * 100000 / 100998
	assert.Equal(t, uint64(988), q.AmountOut)

	zero, err := amm.QuoteExactIn(0, 100_000, 100_000, 20)
	require.NoError(t, err)
	assert.Zero(t, zero.AmountOut)
	assert.Zero(t, zero.Fee)

	_, err = amm.QuoteExactIn(1, 1, 1, 10_001)
	assert.ErrorIs(t, err, fault.InvalidFeeRate)
}

func TestQuoteExactIn_Monotonic(t *testing.T) {
	var last uint64
	for in := uint64(0); in <= 50_000; in += 2_500 {
		q, err := amm.QuoteExactIn(in, 1_000_000, 2_000_000, 20)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, q.AmountOut, last, "amount in %d", in)
		assert.Less(t, q.AmountOut, uint64(2_000_000))
		last = q.AmountOut
	}
}

func TestSplitFee(t *testing.T) {
	protocol, lp, err := amm.SplitFee(100, 5, 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), protocol)
	assert.Equal(t, uint64(75), lp)

	protocol, lp, err = amm.SplitFee(0, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, protocol)
	assert.Zero(t, lp)
}

// =============================================================================
// LONG/SHORT pool
// =============================================================================

func TestAddLiquidity_FirstDepositIsGeometricMean(t *testing.T) {
	tx := fundedTx(t, map[address.Address]map[ledger.AssetID]uint64{
		alice: {ledger.AssetLong: 100, ledger.AssetShort: 400},
	})
	p := amm.NewPool(poolKey, admin, longVault, shortVault)
	lp := &amm.LPPosition{}

	res, err := p.AddLiquidity(tx, lp, alice, 100, 400, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), res.LPMinted)
	assert.Equal(t, uint64(200), p.LPSupply)
	assert.Equal(t, uint64(200), lp.LPTokens)
	assert.Equal(t, uint64(100), p.LongReserve)
	assert.Equal(t, uint64(400), p.ShortReserve)

	assert.Equal(t, uint64(200), tx.Balance(ledger.UserAccount(alice, ledger.AssetLP)))
	assert.Equal(t, uint64(100), tx.Balance(ledger.VaultAccount(longVault, ledger.AssetLong)))
	assert.Zero(t, tx.Balance(ledger.UserAccount(alice, ledger.AssetShort)))
}

func TestAddLiquidity_Proportional(t *testing.T) {
	tx := fundedTx(t, map[address.Address]map[ledger.AssetID]uint64{
		alice: {ledger.AssetLong: 100, ledger.AssetShort: 400},
		bob:   {ledger.AssetLong: 50, ledger.AssetShort: 400},
	})
	p := seededPool(t, tx, 100, 400)

	lp := &amm.LPPosition{}
	res, err := p.AddLiquidity(tx, lp, bob, 50, 400, 0)
	require.NoError(t, err)
	// min(50*200/100, 400*200/400)
	assert.Equal(t, uint64(100), res.LPMinted)
	assert.Equal(t, uint64(300), p.LPSupply)
}

func TestAddLiquidity_SlippageAndFunds(t *testing.T) {
	tx := fundedTx(t, map[address.Address]map[ledger.AssetID]uint64{
		alice: {ledger.AssetLong: 100, ledger.AssetShort: 400},
	})
	p := amm.NewPool(poolKey, admin, longVault, shortVault)

	_, err := p.AddLiquidity(tx, &amm.LPPosition{}, alice, 100, 400, 201)
	assert.ErrorIs(t, err, fault.SlippageExceeded)
	assert.Zero(t, p.LPSupply)

	_, err = p.AddLiquidity(tx, &amm.LPPosition{}, alice, 101, 400, 0)
	assert.ErrorIs(t, err, fault.InsufficientBalance)
}

func TestSwap_PreservesInvariant(t *testing.T) {
	tx := fundedTx(t, map[address.Address]map[ledger.AssetID]uint64{
		alice: {ledger.AssetLong: 1_000_000, ledger.AssetShort: 1_000_000},
		bob:   {ledger.AssetLong: 100_000, ledger.AssetShort: 100_000},
	})
	p := seededPool(t, tx, 1_000_000, 1_000_000)

	for i, dir := range []amm.Direction{amm.LongToShort, amm.ShortToLong, amm.LongToShort} {
		before := product(p.LongReserve, p.ShortReserve)
		res, err := p.Swap(tx, bob, 10_000, 0, dir)
		require.NoError(t, err, "swap %d", i)
		assert.Positive(t, res.Quote.AmountOut)
		after := product(p.LongReserve, p.ShortReserve)
		assert.GreaterOrEqual(t, after.Cmp(before), 0, "k decreased on swap %d", i)
	}
	assert.Equal(t, uint64(30_000), p.TotalVolume)
}

func TestSwap_FeeAccounting(t *testing.T) {
	tx := fundedTx(t, map[address.Address]map[ledger.AssetID]uint64{
		alice: {ledger.AssetLong: 1_000_000, ledger.AssetShort: 1_000_000},
		bob:   {ledger.AssetLong: 100_000},
	})
	p := seededPool(t, tx, 1_000_000, 1_000_000)

	res, err := p.Swap(tx, bob, 100_000, 0, amm.LongToShort)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), res.Quote.Fee)
	assert.Equal(t, uint64(50), res.ProtocolFee)
	assert.Equal(t, uint64(150), res.LPFee)
	assert.Equal(t, uint64(150), p.TotalFeesCollected)
	assert.Equal(t, uint64(50), p.ProtocolFeesAccrued)
	assert.Equal(t, uint64(1_100_000), p.LongReserve)
	assert.Equal(t, uint64(1_000_000)-res.Quote.AmountOut, p.ShortReserve)
	assert.Equal(t, res.Quote.AmountOut, tx.Balance(ledger.UserAccount(bob, ledger.AssetShort)))
}

func TestSwap_ZeroInput(t *testing.T) {
	tx := fundedTx(t, map[address.Address]map[ledger.AssetID]uint64{
		alice: {ledger.AssetLong: 1_000, ledger.AssetShort: 1_000},
	})
	p := seededPool(t, tx, 1_000, 1_000)

	res, err := p.Swap(tx, bob, 0, 0, amm.LongToShort)
	require.NoError(t, err)
	assert.Zero(t, res.Quote.AmountOut)
	assert.Zero(t, res.ProtocolFee)
	assert.Equal(t, uint64(1_000), p.LongReserve)
}

func TestSwap_Slippage(t *testing.T) {
	tx := fundedTx(t, map[address.Address]map[ledger.AssetID]uint64{
		alice: {ledger.AssetLong: 1_000_000, ledger.AssetShort: 1_000_000},
		bob:   {ledger.AssetShort: 10_000},
	})
	p := seededPool(t, tx, 1_000_000, 1_000_000)

	_, err := p.Swap(tx, bob, 10_000, 10_000, amm.ShortToLong)
	assert.ErrorIs(t, err, fault.SlippageExceeded)
	assert.Equal(t, uint64(1_000_000), p.ShortReserve)
	assert.Equal(t, uint64(10_000), tx.Balance(ledger.UserAccount(bob, ledger.AssetShort)))
}

func TestSetFees(t *testing.T) {
	p := amm.NewPool(poolKey, admin, longVault, shortVault)

	assert.ErrorIs(t, p.SetFees(bob, 30, 10), fault.Unauthorized)
	assert.ErrorIs(t, p.SetFees(admin, 1_001, 0), fault.InvalidFeeRate)
	assert.ErrorIs(t, p.SetFees(admin, 30, 31), fault.InvalidFeeRate)
	require.NoError(t, p.SetFees(admin, 30, 10))
	assert.Equal(t, uint64(30), p.SwapFeeBps)
	assert.Equal(t, uint64(10), p.ProtocolFeeBps)
}

// =============================================================================
// Settlement-slot pool
// =============================================================================

func newSlotPool(t *testing.T, fee uint64) *amm.SlotPool {
	t.Helper()
	sp, err := amm.NewSlotPool(amm.SlotPoolParams{
		Key:              address.FromSeed("slot-pool"),
		Creator:          alice,
		USDCVault:        address.FromSeed("slot-pool-usdc"),
		SlotVault:        address.FromSeed("slot-pool-slot"),
		Symbol:           "AAPL",
		Class:            oracle.AssetClassStock,
		SettlementOffset: 1,
		FeeRateBps:       fee,
	}, 77)
	require.NoError(t, err)
	return sp
}

func TestNewSlotPool_Validation(t *testing.T) {
	base := amm.SlotPoolParams{Symbol: "AAPL", Class: oracle.AssetClassStock}

	p := base
	p.Symbol = "ABCDEFGHIJK"
	_, err := amm.NewSlotPool(p, 1)
	assert.ErrorIs(t, err, fault.InvalidAssetSymbol)

	p = base
	p.SettlementOffset = 366
	_, err = amm.NewSlotPool(p, 1)
	assert.ErrorIs(t, err, fault.InvalidSettlementTime)

	p = base
	p.FeeRateBps = 1_001
	_, err = amm.NewSlotPool(p, 1)
	assert.ErrorIs(t, err, fault.InvalidFeeRate)

	sp := newSlotPool(t, 30)
	assert.Equal(t, uint64(77), sp.ID)
	assert.True(t, sp.IsActive)
}

func TestSlotPool_AddLiquidityAndSwap(t *testing.T) {
	tx := fundedTx(t, map[address.Address]map[ledger.AssetID]uint64{
		alice: {ledger.AssetUSDC: 1_000_000, ledger.AssetSlot: 1_000_000},
		bob:   {ledger.AssetUSDC: 10_000, ledger.AssetSlot: 10_000},
	})
	sp := newSlotPool(t, 30)
	require.NoError(t, sp.AddLiquidity(tx, alice, 1_000_000, 1_000_000))

	q, err := sp.Swap(tx, bob, 10_000, 0, amm.USDCToSlot)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), q.Fee)
	assert.Equal(t, uint64(1_010_000), sp.USDCReserve)
	assert.Equal(t, uint64(1_000_000)-q.AmountOut, sp.SlotReserve)
	assert.Equal(t, 10_000+q.AmountOut, tx.Balance(ledger.UserAccount(bob, ledger.AssetSlot)))

	back, err := sp.Swap(tx, bob, 5_000, 0, amm.SlotToUSDC)
	require.NoError(t, err)
	assert.Positive(t, back.AmountOut)
	assert.Equal(t, back.AmountOut, tx.Balance(ledger.UserAccount(bob, ledger.AssetUSDC)))
}

func TestSlotPool_SwapGuards(t *testing.T) {
	tx := fundedTx(t, map[address.Address]map[ledger.AssetID]uint64{
		alice: {ledger.AssetUSDC: 1_000, ledger.AssetSlot: 1_000},
		bob:   {ledger.AssetUSDC: 100},
	})
	sp := newSlotPool(t, 0)
	require.NoError(t, sp.AddLiquidity(tx, alice, 1_000, 1_000))

	_, err := sp.Swap(tx, bob, 100, 100, amm.USDCToSlot)
	assert.ErrorIs(t, err, fault.InsufficientOutputAmount)

	sp.IsActive = false
	_, err = sp.Swap(tx, bob, 100, 0, amm.USDCToSlot)
	assert.ErrorIs(t, err, fault.PoolInactive)
}
