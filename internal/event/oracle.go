package event

import "CfdLedger/internal/oracle"

type InitOracle struct {
	Meta
}

func (*InitOracle) Type() CommandType { return CommandInitOracle }

// UpdateOracle sets the mock oracle price.
type UpdateOracle struct {
	Meta
	Price         uint64 `json:"price"`
	PriceSequence uint64 `json:"price_sequence,omitempty"`
}

func (*UpdateOracle) Type() CommandType { return CommandUpdateOracle }

type InitSpotOracle struct {
	Meta
}

func (*InitSpotOracle) Type() CommandType { return CommandInitSpotOracle }

// UpdateAssetPrice upserts one row of the spot price table.
type UpdateAssetPrice struct {
	Meta
	Symbol        string            `json:"symbol"`
	Class         oracle.AssetClass `json:"asset_class"`
	Price         uint64            `json:"price"`
	PriceSequence uint64            `json:"price_sequence,omitempty"`
}

func (*UpdateAssetPrice) Type() CommandType { return CommandUpdateAssetPrice }

type InitAggregator struct {
	Meta
}

func (*InitAggregator) Type() CommandType { return CommandInitAggregator }

// UpdateFeed writes one source observation of an aggregated feed.
type UpdateFeed struct {
	Meta
	Symbol        string             `json:"symbol"`
	Class         oracle.AssetClass  `json:"asset_class"`
	Slot          oracle.SourceSlot  `json:"slot"`
	Source        oracle.PriceSource `json:"source"`
	Price         uint64             `json:"price"`
	PriceSequence uint64             `json:"price_sequence,omitempty"`
}

func (*UpdateFeed) Type() CommandType { return CommandUpdateFeed }

// MarkStaleFeeds flags feeds that missed their update window.
type MarkStaleFeeds struct {
	Meta
}

func (*MarkStaleFeeds) Type() CommandType { return CommandMarkStaleFeeds }
