package oracle

import (
	"fmt"

	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/math"
	"CfdLedger/internal/store"
)

const (
	KindAggregator = "oracle_aggregator"

	DefaultUpdateFrequency       uint64 = 400
	DefaultDeviationThresholdBps uint64 = 500
)

// SourceSlot is one of the three observation slots of a feed.
type SourceSlot uint8

const (
	SlotA SourceSlot = iota // primary on-chain source
	SlotB                   // secondary on-chain source
	SlotC                   // external API source
)

func (s SourceSlot) String() string {
	switch s {
	case SlotA:
		return "A"
	case SlotB:
		return "B"
	case SlotC:
		return "C"
	default:
		return "?"
	}
}

func (s SourceSlot) MarshalText() ([]byte, error) {
	if s > SlotC {
		return nil, fmt.Errorf("unknown source slot %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *SourceSlot) UnmarshalText(text []byte) error {
	switch string(text) {
	case "A", "a":
		*s = SlotA
	case "B", "b":
		*s = SlotB
	case "C", "c":
		*s = SlotC
	default:
		return fmt.Errorf("unknown source slot %q", text)
	}
	return nil
}

// Feed is the aggregated price of one asset. A zero source price means the
// source has no observation.
type Feed struct {
	Symbol          string      `json:"symbol"`
	Class           AssetClass  `json:"asset_class"`
	PriceA          uint64      `json:"price_a"`
	PriceB          uint64      `json:"price_b"`
	PriceC          uint64      `json:"price_c"`
	SourceC         PriceSource `json:"source_c"`
	AggregatedPrice uint64      `json:"aggregated_price"`
	UpdatedHeight   uint64      `json:"updated_height"`
	IsStale         bool        `json:"is_stale"`
}

func (f *Feed) prices() []uint64 { return []uint64{f.PriceA, f.PriceB, f.PriceC} }

// SpreadBps is the largest distance of a present source from the aggregated
// price, in basis points of the aggregated price.
func (f *Feed) SpreadBps() uint64 {
	if f.AggregatedPrice == 0 {
		return 0
	}
	var widest uint64
	for _, p := range f.prices() {
		if p == 0 {
			continue
		}
		d, _ := math.AbsDiff(p, f.AggregatedPrice)
		if d > widest {
			widest = d
		}
	}
	bps, err := math.MulDiv(widest, math.BpsDenominator, f.AggregatedPrice)
	if err != nil {
		return ^uint64(0)
	}
	return bps
}

// Aggregator holds every feed plus the source policy.
type Aggregator struct {
	Admin                 address.Address `json:"admin"`
	EnabledSources        []PriceSource   `json:"enabled_sources"`
	Feeds                 []Feed          `json:"feeds"`
	UpdateFrequency       uint64          `json:"update_frequency"`
	LastCrankHeight       uint64          `json:"last_crank_height"`
	DeviationThresholdBps uint64          `json:"deviation_threshold_bps"`

	index map[AssetKey]int
}

func (a *Aggregator) Kind() string { return KindAggregator }

func (a *Aggregator) Clone() store.Record {
	cp := *a
	cp.EnabledSources = append([]PriceSource(nil), a.EnabledSources...)
	cp.Feeds = append([]Feed(nil), a.Feeds...)
	cp.index = nil
	return &cp
}

// NewAggregator creates an aggregator with the default source policy.
func NewAggregator(admin address.Address, height uint64) *Aggregator {
	return &Aggregator{
		Admin:                 admin,
		EnabledSources:        []PriceSource{SourcePyth, SourceSwitchboard, SourceCoinGecko},
		UpdateFrequency:       DefaultUpdateFrequency,
		LastCrankHeight:       height,
		DeviationThresholdBps: DefaultDeviationThresholdBps,
	}
}

func (a *Aggregator) enabled(s PriceSource) bool {
	for _, e := range a.EnabledSources {
		if e == s {
			return true
		}
	}
	return false
}

func (a *Aggregator) lookup(key AssetKey) (int, bool) {
	if a.index == nil || len(a.index) != len(a.Feeds) {
		a.index = make(map[AssetKey]int, len(a.Feeds))
		for i, f := range a.Feeds {
			k := AssetKey{Symbol: f.Symbol, Class: f.Class}
			if _, dup := a.index[k]; !dup {
				a.index[k] = i
			}
		}
	}
	i, ok := a.index[key]
	return i, ok
}

// FeedUpdate is one source observation. Source is consulted only for SlotC;
// slots A and B are bound to Pyth and Switchboard.
type FeedUpdate struct {
	Symbol string
	Class  AssetClass
	Slot   SourceSlot
	Source PriceSource
	Price  uint64
}

// UpdateResult reports the feed after an update.
type UpdateResult struct {
	Feed              Feed
	SpreadBps         uint64
	DeviationExceeded bool
}

func (u FeedUpdate) source() (PriceSource, error) {
	switch u.Slot {
	case SlotA:
		return SourcePyth, nil
	case SlotB:
		return SourceSwitchboard, nil
	case SlotC:
		if !u.Source.IsExternal() {
			return 0, fault.New(fault.InvalidPriceSource, "%s cannot feed the external slot", u.Source)
		}
		return u.Source, nil
	default:
		return 0, fault.New(fault.InvalidPriceSource, "unknown slot %d", uint8(u.Slot))
	}
}

// Update finds or creates the feed for the asset, overwrites one source
// observation and recomputes the median.
func (a *Aggregator) Update(caller address.Address, u FeedUpdate, height uint64) (UpdateResult, error) {
	if caller != a.Admin {
		return UpdateResult{}, fault.New(fault.Unauthorized, "aggregator admin is %s", a.Admin)
	}
	src, err := u.source()
	if err != nil {
		return UpdateResult{}, err
	}
	// The external slot accepts any external source; the enabled set gates
	// the bound slots.
	if u.Slot != SlotC && !a.enabled(src) {
		return UpdateResult{}, fault.New(fault.InvalidPriceSource, "%s is not enabled", src)
	}
	if err := ValidateAsset(u.Symbol, u.Class); err != nil {
		return UpdateResult{}, err
	}

	key := AssetKey{Symbol: u.Symbol, Class: u.Class}
	i, ok := a.lookup(key)
	if !ok {
		a.Feeds = append(a.Feeds, Feed{Symbol: u.Symbol, Class: u.Class})
		i = len(a.Feeds) - 1
		a.index[key] = i
	}
	f := &a.Feeds[i]

	switch u.Slot {
	case SlotA:
		f.PriceA = u.Price
	case SlotB:
		f.PriceB = u.Price
	case SlotC:
		f.PriceC = u.Price
		f.SourceC = src
	}
	f.AggregatedPrice = math.MedianNonZero(f.prices()...)
	f.IsStale = false
	f.UpdatedHeight = height

	spread := f.SpreadBps()
	return UpdateResult{
		Feed:              *f,
		SpreadBps:         spread,
		DeviationExceeded: spread > a.DeviationThresholdBps,
	}, nil
}

// MarkStale flags every feed not updated within UpdateFrequency heights and
// returns how many feeds became stale.
func (a *Aggregator) MarkStale(height uint64) int {
	flagged := 0
	for i := range a.Feeds {
		f := &a.Feeds[i]
		if f.IsStale {
			continue
		}
		if f.UpdatedHeight+a.UpdateFrequency < height {
			f.IsStale = true
			flagged++
		}
	}
	a.LastCrankHeight = height
	return flagged
}

// Feed returns the feed for an asset.
func (a *Aggregator) Feed(symbol string, class AssetClass) (Feed, error) {
	i, ok := a.lookup(AssetKey{Symbol: symbol, Class: class})
	if !ok {
		return Feed{}, fault.New(fault.AssetNotFound, "%s %s", class, symbol)
	}
	return a.Feeds[i], nil
}

// Price returns the aggregated price of a live feed.
func (a *Aggregator) Price(symbol string, class AssetClass) (uint64, error) {
	f, err := a.Feed(symbol, class)
	if err != nil {
		return 0, err
	}
	if f.IsStale {
		return 0, fault.New(fault.StalePrice, "%s %s last updated at %d", class, symbol, f.UpdatedHeight)
	}
	if f.AggregatedPrice == 0 {
		return 0, fault.New(fault.InvalidPriceData, "%s %s has no observations", class, symbol)
	}
	return f.AggregatedPrice, nil
}
