package oracle_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/oracle"
)

var (
	admin    = address.FromSeed("admin")
	stranger = address.FromSeed("stranger")
)

// =============================================================================
// Mock oracle
// =============================================================================

func TestMock_DefaultsAndAdminUpdate(t *testing.T) {
	m := oracle.NewMock(admin, 5)
	assert.Equal(t, oracle.DefaultMockPrice, m.Price)

	err := m.Update(stranger, 1, 6)
	assert.True(t, errors.Is(err, fault.Unauthorized))
	assert.Equal(t, oracle.DefaultMockPrice, m.Price)

	require.NoError(t, m.Update(admin, 61_000, 7))
	assert.Equal(t, uint64(61_000), m.Price)
	assert.Equal(t, uint64(7), m.UpdatedHeight)
}

// =============================================================================
// Spot table
// =============================================================================

func TestSpotTable_FindOrAppend(t *testing.T) {
	table := oracle.NewSpotTable(admin, 1)

	_, err := table.Upsert(admin, "AAPL", oracle.AssetClassStock, 190_000_000, 2)
	require.NoError(t, err)
	_, err = table.Upsert(admin, "AAPL", oracle.AssetClassCrypto, 5, 2)
	require.NoError(t, err)
	row, err := table.Upsert(admin, "AAPL", oracle.AssetClassStock, 191_000_000, 3)
	require.NoError(t, err)

	assert.Len(t, table.Entries, 2, "same (symbol, class) must update in place")
	assert.Equal(t, uint64(191_000_000), row.Price)
	assert.Equal(t, oracle.SourceManual, row.Source)
	assert.Equal(t, uint64(0), row.Confidence)

	got, err := table.Lookup("AAPL", oracle.AssetClassStock)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.UpdatedHeight)

	_, err = table.Lookup("MSFT", oracle.AssetClassStock)
	assert.True(t, errors.Is(err, fault.AssetNotFound))
}

func TestSpotTable_Validation(t *testing.T) {
	table := oracle.NewSpotTable(admin, 1)

	_, err := table.Upsert(stranger, "BTC", oracle.AssetClassCrypto, 1, 1)
	assert.True(t, errors.Is(err, fault.Unauthorized))

	_, err = table.Upsert(admin, "VERYLONGSYMB", oracle.AssetClassCrypto, 1, 1)
	assert.True(t, errors.Is(err, fault.InvalidAssetSymbol))

	_, err = table.Upsert(admin, "BTC", oracle.AssetClass(9), 1, 1)
	assert.True(t, errors.Is(err, fault.InvalidAssetType))
}

func TestSpotTable_CloneRebuildsIndex(t *testing.T) {
	table := oracle.NewSpotTable(admin, 1)
	_, _ = table.Upsert(admin, "EUR", oracle.AssetClassForex, 1_080_000, 1)

	data, err := json.Marshal(table)
	require.NoError(t, err)
	var decoded oracle.SpotTable
	require.NoError(t, json.Unmarshal(data, &decoded))

	row, err := decoded.Lookup("EUR", oracle.AssetClassForex)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_080_000), row.Price)

	clone := table.Clone().(*oracle.SpotTable)
	_, _ = clone.Upsert(admin, "EUR", oracle.AssetClassForex, 2, 2)
	orig, _ := table.Lookup("EUR", oracle.AssetClassForex)
	assert.Equal(t, uint64(1_080_000), orig.Price, "clone must not share rows")
}

// =============================================================================
// Aggregator
// =============================================================================

func update(t *testing.T, agg *oracle.Aggregator, slot oracle.SourceSlot, src oracle.PriceSource, price uint64) oracle.UpdateResult {
	t.Helper()
	res, err := agg.Update(admin, oracle.FeedUpdate{
		Symbol: "BTC", Class: oracle.AssetClassCrypto, Slot: slot, Source: src, Price: price,
	}, 10)
	require.NoError(t, err)
	return res
}

func TestAggregator_Defaults(t *testing.T) {
	agg := oracle.NewAggregator(admin, 1)
	assert.Equal(t, []oracle.PriceSource{oracle.SourcePyth, oracle.SourceSwitchboard, oracle.SourceCoinGecko}, agg.EnabledSources)
	assert.Equal(t, uint64(400), agg.UpdateFrequency)
	assert.Equal(t, uint64(500), agg.DeviationThresholdBps)
}

func TestAggregator_MedianOfPresentSources(t *testing.T) {
	agg := oracle.NewAggregator(admin, 1)

	res := update(t, agg, oracle.SlotA, 0, 100)
	assert.Equal(t, uint64(100), res.Feed.AggregatedPrice, "single source is its own median")

	res = update(t, agg, oracle.SlotB, 0, 102)
	assert.Equal(t, uint64(101), res.Feed.AggregatedPrice, "two sources average")

	res = update(t, agg, oracle.SlotC, oracle.SourceCoinGecko, 150)
	assert.Equal(t, uint64(102), res.Feed.AggregatedPrice, "three sources take the middle")
	assert.Equal(t, oracle.SourceCoinGecko, res.Feed.SourceC)
	assert.Len(t, agg.Feeds, 1)
}

func TestAggregator_ZeroIsNoObservation(t *testing.T) {
	agg := oracle.NewAggregator(admin, 1)
	update(t, agg, oracle.SlotA, 0, 100)
	update(t, agg, oracle.SlotB, 0, 102)
	res := update(t, agg, oracle.SlotC, oracle.SourceCoinGecko, 0)
	assert.Equal(t, uint64(101), res.Feed.AggregatedPrice)
}

func TestAggregator_SourcePolicy(t *testing.T) {
	agg := oracle.NewAggregator(admin, 1)

	_, err := agg.Update(admin, oracle.FeedUpdate{Symbol: "BTC", Class: oracle.AssetClassCrypto, Slot: oracle.SlotC, Source: oracle.SourceChainlink, Price: 1}, 1)
	assert.True(t, errors.Is(err, fault.InvalidPriceSource), "Chainlink is not an external source")

	_, err = agg.Update(stranger, oracle.FeedUpdate{Symbol: "BTC", Class: oracle.AssetClassCrypto, Slot: oracle.SlotA, Price: 1}, 1)
	assert.True(t, errors.Is(err, fault.Unauthorized))

	assert.Empty(t, agg.Feeds, "rejected updates must not create feeds")
}

func TestAggregator_ExternalSlotAcceptsEveryExternalSource(t *testing.T) {
	agg := oracle.NewAggregator(admin, 1)
	update(t, agg, oracle.SlotA, 0, 100)
	update(t, agg, oracle.SlotB, 0, 110)

	res := update(t, agg, oracle.SlotC, oracle.SourceTwelveData, 130)
	assert.Equal(t, uint64(110), res.Feed.AggregatedPrice)
	assert.Equal(t, uint64(130), res.Feed.PriceC)

	res = update(t, agg, oracle.SlotC, oracle.SourceBinance, 90)
	assert.Equal(t, uint64(100), res.Feed.AggregatedPrice)
}

func TestAggregator_DeviationReported(t *testing.T) {
	agg := oracle.NewAggregator(admin, 1)
	update(t, agg, oracle.SlotA, 0, 100)
	res := update(t, agg, oracle.SlotB, 0, 120)
	// median 110, widest distance 10 -> 909 bps
	assert.Equal(t, uint64(909), res.SpreadBps)
	assert.True(t, res.DeviationExceeded)
}

func TestAggregator_StaleAndPrice(t *testing.T) {
	agg := oracle.NewAggregator(admin, 1)
	update(t, agg, oracle.SlotA, 0, 100) // height 10

	price, err := agg.Price("BTC", oracle.AssetClassCrypto)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), price)

	assert.Equal(t, 0, agg.MarkStale(410), "exactly update_frequency old is still fresh")
	assert.Equal(t, 1, agg.MarkStale(411))
	assert.Equal(t, uint64(411), agg.LastCrankHeight)

	_, err = agg.Price("BTC", oracle.AssetClassCrypto)
	assert.True(t, errors.Is(err, fault.StalePrice))

	update(t, agg, oracle.SlotB, 0, 104)
	price, err = agg.Price("BTC", oracle.AssetClassCrypto)
	require.NoError(t, err)
	assert.Equal(t, uint64(102), price)

	_, err = agg.Price("ETH", oracle.AssetClassCrypto)
	assert.True(t, errors.Is(err, fault.AssetNotFound))
}

func TestParseEnums(t *testing.T) {
	c, err := oracle.ParseAssetClass("commodity")
	require.NoError(t, err)
	assert.Equal(t, oracle.AssetClassCommodity, c)

	_, err = oracle.ParseAssetClass("Equity")
	assert.True(t, errors.Is(err, fault.InvalidAssetType))

	s, err := oracle.ParsePriceSource("twelvedata")
	require.NoError(t, err)
	assert.Equal(t, oracle.SourceTwelveData, s)
}
