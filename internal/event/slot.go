package event

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/oracle"
)

// MintSlot creates settlement slot ID owned by the signer.
type MintSlot struct {
	Meta
	ID               uint64            `json:"id"`
	Symbol           string            `json:"symbol"`
	Class            oracle.AssetClass `json:"asset_class"`
	SettlementOffset uint16            `json:"settlement_offset"`
	Duration         uint64            `json:"duration"`
	Price            uint64            `json:"price"`
}

func (*MintSlot) Type() CommandType { return CommandMintSlot }

// TradeSlot hands slot ID from the signer to Buyer.
type TradeSlot struct {
	Meta
	ID       uint64          `json:"id"`
	Buyer    address.Address `json:"buyer"`
	NewPrice uint64          `json:"new_price"`
}

func (*TradeSlot) Type() CommandType { return CommandTradeSlot }

type PlaceBet struct {
	Meta
	ID     uint64            `json:"id"`
	Symbol string            `json:"symbol"`
	Class  oracle.AssetClass `json:"asset_class"`
	Amount uint64            `json:"amount"`
	IsLong bool              `json:"is_long"`
}

func (*PlaceBet) Type() CommandType { return CommandPlaceBet }

// SettleBet settles the signer's bet against an instant slot the signer
// owns.
type SettleBet struct {
	Meta
	BetID  uint64 `json:"bet_id"`
	SlotID uint64 `json:"slot_id"`
}

func (*SettleBet) Type() CommandType { return CommandSettleBet }
