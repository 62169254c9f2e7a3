package state_test

import (
	"errors"
	stdmath "math"
	"testing"

	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/ledger"
	"CfdLedger/internal/state"
)

var (
	marketKey  = address.FromSeed("market")
	vaultKey   = address.FromSeed("market-vault")
	owner      = address.FromSeed("owner")
	liquidator = address.FromSeed("liquidator")
)

type fixture struct {
	tracker *ledger.BalanceTracker
	tx      *ledger.Tx
	market  *state.Market
}

func newFixture(t *testing.T, price uint64, funds uint64) *fixture {
	t.Helper()
	bt := ledger.NewBalanceTracker()
	seed := bt.Begin("seed", 0)
	if err := seed.Mint(ledger.UserAccount(owner, ledger.AssetUSDC), funds, owner); err != nil {
		t.Fatalf("seed mint: %v", err)
	}
	if err := bt.ApplyBatch(seed.Batch(0)); err != nil {
		t.Fatalf("seed apply: %v", err)
	}
	m, err := state.InitMarket(marketKey, vaultKey, price, 100)
	if err != nil {
		t.Fatalf("InitMarket: %v", err)
	}
	return &fixture{tracker: bt, tx: bt.Begin("op", 101), market: m}
}

func (f *fixture) open(t *testing.T, side state.Side, size uint64, leverage uint8) *state.Position {
	t.Helper()
	p, err := state.OpenPosition(f.market, f.tx, state.OpenRequest{Owner: owner, Side: side, Size: size, Leverage: leverage})
	if err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	return p
}

// =============================================================================
// Market lifecycle
// =============================================================================

func TestInitMarket(t *testing.T) {
	m, err := state.InitMarket(marketKey, vaultKey, 50_000, 1_000)
	if err != nil {
		t.Fatalf("InitMarket: %v", err)
	}
	if m.T0Price != 50_000 || m.T2Price != 50_000 {
		t.Errorf("prices: got t0=%d t2=%d", m.T0Price, m.T2Price)
	}
	if m.ExpiryHeight != 1_000+state.MarketLifetime {
		t.Errorf("expiry: got %d", m.ExpiryHeight)
	}
	if m.Status != state.MarketStatusActive {
		t.Errorf("status: got %s", m.Status)
	}

	if _, err := state.InitMarket(marketKey, vaultKey, 1, stdmath.MaxUint64); !errors.Is(err, fault.MathOverflow) {
		t.Errorf("expected MathOverflow for expiry, got %v", err)
	}
}

func TestRecordSettlement_Once(t *testing.T) {
	m, _ := state.InitMarket(marketKey, vaultKey, 100, 1)
	if err := m.RecordSettlement(120); err != nil {
		t.Fatalf("first settlement: %v", err)
	}
	if m.Status != state.MarketStatusSettled || m.T2Price != 120 {
		t.Errorf("got status=%s t2=%d", m.Status, m.T2Price)
	}
	if err := m.RecordSettlement(130); !errors.Is(err, fault.MarketAlreadySettled) {
		t.Errorf("expected MarketAlreadySettled, got %v", err)
	}
}

// =============================================================================
// Open
// =============================================================================

func TestOpenPosition_CollateralProperty(t *testing.T) {
	for _, lev := range []uint8{1, 2, 3} {
		for _, size := range []uint64{1, 2, 3, 299, 300, 301, 1_000_003} {
			f := newFixture(t, 1_000, 10_000_000)
			p := f.open(t, state.SideLong, size, lev)
			L := uint64(lev)
			if p.Collateral != size/L {
				t.Errorf("L=%d S=%d: collateral %d", lev, size, p.Collateral)
			}
			if !(p.Collateral*L <= size && size < p.Collateral*L+L) {
				t.Errorf("L=%d S=%d: bound violated with collateral %d", lev, size, p.Collateral)
			}
		}
	}
}

func TestOpenPosition_MovesFundsAndMints(t *testing.T) {
	f := newFixture(t, 1_000, 1_000)
	p := f.open(t, state.SideShort, 300, 3)

	if p.EntryPrice != 1_000 || p.MintedTokens != 300 || p.Collateral != 100 {
		t.Errorf("unexpected position: %+v", p)
	}
	if got := f.tx.Balance(ledger.UserAccount(owner, ledger.AssetUSDC)); got != 900 {
		t.Errorf("owner USDC: got %d, want 900", got)
	}
	if got := f.tx.Balance(ledger.VaultAccount(vaultKey, ledger.AssetUSDC)); got != 100 {
		t.Errorf("vault USDC: got %d, want 100", got)
	}
	if got := f.tx.Balance(ledger.UserAccount(owner, ledger.AssetShort)); got != 300 {
		t.Errorf("SHORT tokens: got %d, want 300", got)
	}
}

func TestOpenPosition_Rejections(t *testing.T) {
	f := newFixture(t, 1_000, 1_000)

	for _, lev := range []uint8{0, 4} {
		_, err := state.OpenPosition(f.market, f.tx, state.OpenRequest{Owner: owner, Side: state.SideLong, Size: 300, Leverage: lev})
		if !errors.Is(err, fault.InvalidLeverage) {
			t.Errorf("leverage %d: expected InvalidLeverage, got %v", lev, err)
		}
	}

	_, err := state.OpenPosition(f.market, f.tx, state.OpenRequest{Owner: owner, Side: state.SideLong, Size: 30_000, Leverage: 1})
	if !errors.Is(err, fault.InsufficientBalance) {
		t.Errorf("expected InsufficientBalance, got %v", err)
	}

	_ = f.market.RecordSettlement(1_000)
	_, err = state.OpenPosition(f.market, f.tx, state.OpenRequest{Owner: owner, Side: state.SideLong, Size: 300, Leverage: 3})
	if !errors.Is(err, fault.MarketNotActive) {
		t.Errorf("expected MarketNotActive, got %v", err)
	}
}

// =============================================================================
// Margin math
// =============================================================================

func TestUnrealizedPnL_Signs(t *testing.T) {
	cases := []struct {
		side   state.Side
		price  uint64
		amount uint64
		loss   bool
	}{
		{state.SideLong, 1_100, 30, false},
		{state.SideLong, 900, 30, true},
		{state.SideShort, 900, 30, false},
		{state.SideShort, 1_100, 30, true},
		{state.SideShort, 1_000, 0, false},
	}
	for _, tc := range cases {
		pnl, err := state.UnrealizedPnL(tc.side, 300, 1_000, tc.price)
		if err != nil {
			t.Fatalf("UnrealizedPnL: %v", err)
		}
		if pnl.Amount != tc.amount || pnl.Loss != tc.loss {
			t.Errorf("%s @%d: got %+v", tc.side, tc.price, pnl)
		}
	}
}

func TestUnrealizedPnL_WideIntermediate(t *testing.T) {
	// |delta| * size overflows 64 bits; the quotient does not
	pnl, err := state.UnrealizedPnL(state.SideLong, 1<<40, 1<<30, 1<<31)
	if err != nil {
		t.Fatalf("UnrealizedPnL: %v", err)
	}
	if pnl.Amount != 1<<40 || pnl.Loss {
		t.Errorf("got %+v", pnl)
	}
}

func TestLiquidationThreshold_Boundary(t *testing.T) {
	at := &state.Position{Side: state.SideLong, Size: 10_000, EntryPrice: 1_000, Collateral: 900}
	snap, err := state.MarkToMarket(at, 1_000)
	if err != nil {
		t.Fatalf("MarkToMarket: %v", err)
	}
	if snap.CollateralRatioBps != 900 || snap.Liquidatable() {
		t.Errorf("exactly 90%% must not be liquidatable: %+v", snap)
	}

	below := &state.Position{Side: state.SideLong, Size: 10_000, EntryPrice: 1_000, Collateral: 899}
	snap, _ = state.MarkToMarket(below, 1_000)
	if snap.CollateralRatioBps != 899 || !snap.Liquidatable() {
		t.Errorf("1 bp below must be liquidatable: %+v", snap)
	}
}

// =============================================================================
// Liquidation
// =============================================================================

func TestLiquidate_ScenarioPriceUpIsHealthy(t *testing.T) {
	f := newFixture(t, 1_000, 1_000)
	p := f.open(t, state.SideLong, 300, 3)

	_, err := state.Liquidate(f.market, p, f.tx, liquidator, 1_100, 200)
	if !errors.Is(err, fault.PositionHealthy) {
		t.Fatalf("expected PositionHealthy, got %v", err)
	}
	snap, _ := state.MarkToMarket(p, 1_100)
	if snap.PnL.Amount != 30 || snap.PnL.Loss || snap.CurrentCollateralValue != 130 || snap.CollateralRatioBps != 4333 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if p.Liquidated {
		t.Error("healthy position must not be marked")
	}
}

func TestLiquidate_ScenarioPriceDownWipesCollateral(t *testing.T) {
	f := newFixture(t, 1_000, 1_000)
	p := f.open(t, state.SideLong, 300, 3)
	before := f.tx.Balance(ledger.UserAccount(owner, ledger.AssetUSDC))

	res, err := state.Liquidate(f.market, p, f.tx, liquidator, 600, 200)
	if err != nil {
		t.Fatalf("Liquidate: %v", err)
	}
	if res.Snapshot.PnL.Amount != 120 || !res.Snapshot.PnL.Loss {
		t.Errorf("pnl: got %+v", res.Snapshot.PnL)
	}
	if res.Snapshot.CurrentCollateralValue != 0 || res.Snapshot.CollateralRatioBps != 0 {
		t.Errorf("snapshot: got %+v", res.Snapshot)
	}
	if res.Bonus != 0 || res.OwnerRemainder != 0 {
		t.Errorf("payouts: bonus=%d remainder=%d", res.Bonus, res.OwnerRemainder)
	}
	if !p.Liquidated || p.LiquidatedHeight != 200 {
		t.Errorf("position not marked: %+v", p)
	}
	if got := f.tx.Balance(ledger.UserAccount(owner, ledger.AssetLong)); got != 0 {
		t.Errorf("tokens not burned: %d left", got)
	}
	if got := f.tx.Balance(ledger.UserAccount(owner, ledger.AssetUSDC)); got != before {
		t.Errorf("owner balance changed: %d -> %d", before, got)
	}

	_, err = state.Liquidate(f.market, p, f.tx, liquidator, 600, 201)
	if !errors.Is(err, fault.PositionAlreadyLiquidated) {
		t.Errorf("expected PositionAlreadyLiquidated, got %v", err)
	}
}

func TestLiquidate_SplitsValue(t *testing.T) {
	f := newFixture(t, 1_000, 1_000_000)
	p := f.open(t, state.SideShort, 100_000, 1) // collateral 100_000

	// price up 95.5%: loss 95_500, value 4_500, ratio 450 bps
	res, err := state.Liquidate(f.market, p, f.tx, liquidator, 1_955, 300)
	if err != nil {
		t.Fatalf("Liquidate: %v", err)
	}
	if res.Snapshot.CurrentCollateralValue != 4_500 {
		t.Fatalf("value: got %d", res.Snapshot.CurrentCollateralValue)
	}
	if res.Bonus != 45 || res.OwnerRemainder != 4_455 {
		t.Errorf("split: bonus=%d remainder=%d", res.Bonus, res.OwnerRemainder)
	}
	if got := f.tx.Balance(ledger.UserAccount(liquidator, ledger.AssetUSDC)); got != 45 {
		t.Errorf("liquidator: got %d", got)
	}
	if got := f.tx.Balance(ledger.VaultAccount(vaultKey, ledger.AssetUSDC)); got != 100_000-4_500 {
		t.Errorf("vault: got %d", got)
	}
}

// =============================================================================
// Settlement
// =============================================================================

func TestSettle_PaysFavorablePnLOnly(t *testing.T) {
	f := newFixture(t, 1_000, 1_000_000)
	long := f.open(t, state.SideLong, 3_000, 3) // collateral 1_000 in vault

	if _, err := state.Settle(f.market, long, f.tx); !errors.Is(err, fault.MarketNotSettled) {
		t.Fatalf("expected MarketNotSettled, got %v", err)
	}

	_ = f.market.RecordSettlement(1_100)
	res, err := state.Settle(f.market, long, f.tx)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if res.Payout != 300 || res.TokensBurned != 3_000 {
		t.Errorf("got %+v", res)
	}

	short := &state.Position{Owner: owner, Side: state.SideShort, Size: 3_000, EntryPrice: 1_000, MintedTokens: 0}
	res, err = state.Settle(f.market, short, f.tx)
	if err != nil {
		t.Fatalf("Settle short: %v", err)
	}
	if res.Payout != 0 {
		t.Errorf("unfavorable move must pay 0, got %d", res.Payout)
	}
}

func TestSettle_LiquidatedRejected(t *testing.T) {
	f := newFixture(t, 1_000, 1_000)
	p := f.open(t, state.SideLong, 300, 3)
	if _, err := state.Liquidate(f.market, p, f.tx, liquidator, 600, 200); err != nil {
		t.Fatalf("Liquidate: %v", err)
	}
	_ = f.market.RecordSettlement(2_000)
	if _, err := state.Settle(f.market, p, f.tx); !errors.Is(err, fault.PositionAlreadyLiquidated) {
		t.Errorf("expected PositionAlreadyLiquidated, got %v", err)
	}
}

// =============================================================================
// Heatmap
// =============================================================================

func TestHeatmapCrank(t *testing.T) {
	m, _ := state.InitMarket(marketKey, vaultKey, 1_000, 1)
	_ = m.RecordSettlement(1_050)

	var h state.Heatmap
	e, err := h.Crank(m, 1_000, 9)
	if err != nil {
		t.Fatalf("Crank: %v", err)
	}
	if e.SpreadBps != 500 || e.Bid != 1_000 || e.Ask != 1_050 || h.LastUpdateHeight != 9 {
		t.Errorf("got %+v", e)
	}

	if bps, _ := state.SpreadBps(1_000, 900); bps != -1_000 {
		t.Errorf("negative spread: got %d", bps)
	}
	if bps, _ := state.SpreadBps(1, 1_000_000); bps != stdmath.MaxInt16 {
		t.Errorf("clamp: got %d", bps)
	}
	if _, err := state.SpreadBps(0, 1); !errors.Is(err, fault.InvalidPriceData) {
		t.Errorf("expected InvalidPriceData, got %v", err)
	}
}
