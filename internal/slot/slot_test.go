package slot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/oracle"
	"CfdLedger/internal/slot"
)

var (
	admin = address.FromSeed("admin")
	alice = address.FromSeed("alice")
	bob   = address.FromSeed("bob")
)

func spotWith(t *testing.T, price uint64) *oracle.SpotTable {
	t.Helper()
	spot := oracle.NewSpotTable(admin, 0)
	_, err := spot.Upsert(admin, "AAPL", oracle.AssetClassStock, price, 1)
	require.NoError(t, err)
	return spot
}

func mintInstant(t *testing.T, owner address.Address, height uint64) *slot.Slot {
	t.Helper()
	s, err := slot.Mint(slot.MintRequest{
		ID:       9,
		Owner:    owner,
		Symbol:   "AAPL",
		Class:    oracle.AssetClassStock,
		Duration: 1,
		Price:    5_000_000,
	}, height)
	require.NoError(t, err)
	return s
}

// =============================================================================
// Slots
// =============================================================================

func TestMint(t *testing.T) {
	s := mintInstant(t, alice, 100)
	assert.Equal(t, uint64(100+slot.HeightsPerDay), s.ExpiryHeight)
	assert.True(t, s.IsTradable)
	assert.True(t, s.IsActive)
	assert.True(t, s.Live(100))
	assert.False(t, s.Live(s.ExpiryHeight))
}

func TestMint_Validation(t *testing.T) {
	_, err := slot.Mint(slot.MintRequest{Symbol: "TOOLONGSYMB", Class: oracle.AssetClassStock}, 1)
	assert.ErrorIs(t, err, fault.InvalidAssetSymbol)

	_, err = slot.Mint(slot.MintRequest{Symbol: "AAPL", Class: oracle.AssetClass(9)}, 1)
	assert.ErrorIs(t, err, fault.InvalidAssetType)

	_, err = slot.Mint(slot.MintRequest{Symbol: "AAPL", Class: oracle.AssetClassStock, SettlementOffset: 366}, 1)
	assert.ErrorIs(t, err, fault.InvalidSettlementTime)

	_, err = slot.Mint(slot.MintRequest{Symbol: "AAPL", Class: oracle.AssetClassStock, Duration: 1 << 62}, 1)
	assert.ErrorIs(t, err, fault.MathOverflow)
}

func TestTrade(t *testing.T) {
	s := mintInstant(t, alice, 100)

	assert.ErrorIs(t, s.Trade(bob, bob, 1, 101), fault.Unauthorized)

	require.NoError(t, s.Trade(alice, bob, 7_000_000, 101))
	assert.Equal(t, bob, s.Owner)
	assert.Equal(t, uint64(7_000_000), s.MintPrice)

	s.IsTradable = false
	assert.ErrorIs(t, s.Trade(bob, alice, 1, 102), fault.SlotNotTradable)

	s.IsTradable = true
	assert.ErrorIs(t, s.Trade(bob, alice, 1, s.ExpiryHeight), fault.SlotExpired)
}

// =============================================================================
// Bets
// =============================================================================

func TestPlaceBet(t *testing.T) {
	spot := spotWith(t, 200_000_000)

	_, err := slot.PlaceBet(spot, slot.BetRequest{ID: 1, Owner: alice, Symbol: "AAPL", Class: oracle.AssetClassStock, Amount: slot.MinBetAmount - 1}, 5)
	assert.ErrorIs(t, err, fault.BetAmountTooSmall)

	_, err = slot.PlaceBet(spot, slot.BetRequest{ID: 1, Owner: alice, Symbol: "MSFT", Class: oracle.AssetClassStock, Amount: slot.MinBetAmount}, 5)
	assert.ErrorIs(t, err, fault.AssetNotFound)

	b, err := slot.PlaceBet(spot, slot.BetRequest{ID: 1, Owner: alice, Symbol: "AAPL", Class: oracle.AssetClassStock, Amount: slot.MinBetAmount, IsLong: true}, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000_000), b.EntryPrice)
	assert.False(t, b.IsSettled)
}

func TestSettlementValue(t *testing.T) {
	cases := []struct {
		name   string
		price  uint64
		isLong bool
		want   uint64
	}{
		{"long gains", 110, true, 110_000_000},
		{"long loses", 90, true, 90_000_000},
		{"short gains", 90, false, 110_000_000},
		{"short loses", 110, false, 90_000_000},
		{"flat", 100, true, 100_000_000},
		{"wiped out", 300, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := slot.SettlementValue(100_000_000, 100, tc.price, tc.isLong)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := slot.SettlementValue(1, 0, 1, true)
	assert.ErrorIs(t, err, fault.InvalidPriceData)
}

func TestSettleInstant(t *testing.T) {
	spot := spotWith(t, 100_000_000)
	b, err := slot.PlaceBet(spot, slot.BetRequest{ID: 3, Owner: alice, Symbol: "AAPL", Class: oracle.AssetClassStock, Amount: 20_000_000, IsLong: true}, 5)
	require.NoError(t, err)
	s := mintInstant(t, alice, 5)

	_, err = spot.Upsert(admin, "AAPL", oracle.AssetClassStock, 105_000_000, 6)
	require.NoError(t, err)

	req := slot.SettleRequest{Caller: alice, BetID: 3, SlotID: 9}
	value, err := slot.SettleInstant(b, s, spot, req, 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(21_000_000), value)
	assert.True(t, b.IsSettled)
	assert.Equal(t, value, b.SettlementValue)

	_, err = slot.SettleInstant(b, s, spot, req, 7)
	assert.ErrorIs(t, err, fault.BetAlreadySettled)
}

func TestSettleInstant_Guards(t *testing.T) {
	spot := spotWith(t, 100_000_000)
	newBet := func() *slot.Bet {
		b, err := slot.PlaceBet(spot, slot.BetRequest{ID: 3, Owner: alice, Symbol: "AAPL", Class: oracle.AssetClassStock, Amount: 20_000_000}, 5)
		require.NoError(t, err)
		return b
	}
	req := slot.SettleRequest{Caller: alice, BetID: 3, SlotID: 9}

	_, err := slot.SettleInstant(newBet(), mintInstant(t, alice, 5), spot, slot.SettleRequest{Caller: alice, BetID: 3, SlotID: 8}, 6)
	assert.ErrorIs(t, err, fault.InvalidSettlementSlot)

	_, err = slot.SettleInstant(newBet(), mintInstant(t, bob, 5), spot, req, 6)
	assert.ErrorIs(t, err, fault.Unauthorized)

	expired := mintInstant(t, alice, 5)
	_, err = slot.SettleInstant(newBet(), expired, spot, req, expired.ExpiryHeight)
	assert.ErrorIs(t, err, fault.SlotExpired)

	delayed := mintInstant(t, alice, 5)
	delayed.SettlementOffset = 2
	_, err = slot.SettleInstant(newBet(), delayed, spot, req, 6)
	assert.ErrorIs(t, err, fault.NotInstantSettlement)

	_, err = slot.SettleInstant(newBet(), mintInstant(t, alice, 5), spot, slot.SettleRequest{Caller: alice, BetID: 4, SlotID: 9}, 6)
	assert.ErrorIs(t, err, fault.InvalidBetId)

	foreign := newBet()
	foreign.Owner = bob
	_, err = slot.SettleInstant(foreign, mintInstant(t, alice, 5), spot, req, 6)
	assert.ErrorIs(t, err, fault.Unauthorized)
}
