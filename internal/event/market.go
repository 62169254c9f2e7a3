package event

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/state"
)

// InitMarket (re)initializes the market at the configured oracle price.
type InitMarket struct {
	Meta
}

func (*InitMarket) Type() CommandType { return CommandInitMarket }

// OpenPosition opens or replaces the signer's position.
type OpenPosition struct {
	Meta
	Side     state.Side `json:"side"`
	Size     uint64     `json:"size"`
	Leverage uint8      `json:"leverage"`
}

func (*OpenPosition) Type() CommandType { return CommandOpenPosition }

// LiquidatePosition liquidates Owner's position on behalf of the signer.
type LiquidatePosition struct {
	Meta
	Owner address.Address `json:"owner"`
}

func (*LiquidatePosition) Type() CommandType { return CommandLiquidatePosition }

// SettlePosition settles the signer's position against the T+2 price.
type SettlePosition struct {
	Meta
}

func (*SettlePosition) Type() CommandType { return CommandSettlePosition }

// SettleMarket records the T+2 price and closes the market.
type SettleMarket struct {
	Meta
	T2Price uint64 `json:"t2_price"`
}

func (*SettleMarket) Type() CommandType { return CommandSettleMarket }

// CrankHeatmap refreshes the spread heatmap.
type CrankHeatmap struct {
	Meta
}

func (*CrankHeatmap) Type() CommandType { return CommandCrankHeatmap }
