package state

import (
	stdmath "math"

	"CfdLedger/internal/fault"
	"CfdLedger/internal/math"
	"CfdLedger/internal/store"
)

const (
	KindHeatmap = "heatmap"
	HeatmapSize = 100
)

// HeatmapEntry is one bid/ask observation of the T+2 spread.
type HeatmapEntry struct {
	Bid       uint64 `json:"bid"`
	Ask       uint64 `json:"ask"`
	SpreadBps int16  `json:"spread_bps"`
	Height    uint64 `json:"height"`
}

// Heatmap tracks the spread between the oracle price and the market's T+2
// price.
type Heatmap struct {
	Entries          [HeatmapSize]HeatmapEntry `json:"entries"`
	LastUpdateHeight uint64                    `json:"last_update_height"`
}

func (h *Heatmap) Kind() string { return KindHeatmap }

func (h *Heatmap) Clone() store.Record {
	cp := *h
	return &cp
}

// SpreadBps returns (ask - bid) * 10000 / bid clamped to int16.
func SpreadBps(bid, ask uint64) (int16, error) {
	if bid == 0 {
		return 0, fault.New(fault.InvalidPriceData, "zero oracle price")
	}
	delta, up := math.AbsDiff(ask, bid)
	bps, err := math.MulDiv(delta, math.BpsDenominator, bid)
	if err != nil || bps > stdmath.MaxInt16 {
		bps = stdmath.MaxInt16
	}
	if !up {
		return -int16(bps), nil
	}
	return int16(bps), nil
}

// Crank overwrites the head entry with the current spread.
func (h *Heatmap) Crank(m *Market, oraclePrice, height uint64) (HeatmapEntry, error) {
	spread, err := SpreadBps(oraclePrice, m.T2Price)
	if err != nil {
		return HeatmapEntry{}, err
	}
	e := HeatmapEntry{Bid: oraclePrice, Ask: m.T2Price, SpreadBps: spread, Height: height}
	h.Entries[0] = e
	h.LastUpdateHeight = height
	return e, nil
}
