// Package slot implements settlement-slot timing rights and the directional
// bets settled instantly against the spot oracle.
package slot

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/math"
	"CfdLedger/internal/oracle"
	"CfdLedger/internal/store"
)

const (
	KindSlot = "settlement_slot"

	// HeightsPerDay converts a slot duration in days into heights.
	HeightsPerDay uint64 = 172_800

	// MaxSettlementOffset is the longest settlement delay, in days.
	MaxSettlementOffset uint16 = 365
)

// Slot is a transferable right to settle at T+SettlementOffset days.
type Slot struct {
	ID               uint64            `json:"id"`
	Symbol           string            `json:"symbol"`
	Class            oracle.AssetClass `json:"asset_class"`
	SettlementOffset uint16            `json:"settlement_offset"`
	Duration         uint64            `json:"duration"`
	Owner            address.Address   `json:"owner"`
	MintPrice        uint64            `json:"mint_price"`
	CreatedHeight    uint64            `json:"created_height"`
	ExpiryHeight     uint64            `json:"expiry_height"`
	IsTradable       bool              `json:"is_tradable"`
	IsActive         bool              `json:"is_active"`
}

func (s *Slot) Kind() string { return KindSlot }

func (s *Slot) Clone() store.Record {
	cp := *s
	return &cp
}

// Live reports whether the slot can still be traded or used at height.
func (s *Slot) Live(height uint64) bool {
	return s.IsActive && height < s.ExpiryHeight
}

// MintRequest carries the fields of a new slot.
type MintRequest struct {
	ID               uint64
	Owner            address.Address
	Symbol           string
	Class            oracle.AssetClass
	SettlementOffset uint16
	Duration         uint64
	Price            uint64
}

// Mint creates a tradable, active slot expiring Duration days after height.
func Mint(req MintRequest, height uint64) (*Slot, error) {
	if err := oracle.ValidateAsset(req.Symbol, req.Class); err != nil {
		return nil, err
	}
	if req.SettlementOffset > MaxSettlementOffset {
		return nil, fault.New(fault.InvalidSettlementTime, "offset %d > %d", req.SettlementOffset, MaxSettlementOffset)
	}
	lifetime, err := math.CheckedMul(req.Duration, HeightsPerDay)
	if err != nil {
		return nil, err
	}
	expiry, err := math.CheckedAdd(height, lifetime)
	if err != nil {
		return nil, err
	}
	return &Slot{
		ID:               req.ID,
		Symbol:           req.Symbol,
		Class:            req.Class,
		SettlementOffset: req.SettlementOffset,
		Duration:         req.Duration,
		Owner:            req.Owner,
		MintPrice:        req.Price,
		CreatedHeight:    height,
		ExpiryHeight:     expiry,
		IsTradable:       true,
		IsActive:         true,
	}, nil
}

// Trade hands the slot from seller to buyer at newPrice.
func (s *Slot) Trade(seller, buyer address.Address, newPrice, height uint64) error {
	if s.Owner != seller {
		return fault.New(fault.Unauthorized, "slot %d is owned by %s", s.ID, s.Owner)
	}
	if !s.IsTradable {
		return fault.New(fault.SlotNotTradable, "slot %d", s.ID)
	}
	if !s.Live(height) {
		return fault.New(fault.SlotExpired, "slot %d expired at %d", s.ID, s.ExpiryHeight)
	}
	s.Owner = buyer
	s.MintPrice = newPrice
	return nil
}
