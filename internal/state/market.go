// Package state implements the margin market engine: the singleton market
// with its T+0/T+2 price pair and the per-owner leveraged positions.
package state

import (
	"fmt"

	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/math"
	"CfdLedger/internal/store"
)

const (
	KindMarket = "market"

	// MarketLifetime is the number of heights between init and expiry.
	MarketLifetime uint64 = 172_800
)

// MarketStatus is the market lifecycle state
type MarketStatus uint8

const (
	MarketStatusActive MarketStatus = iota
	MarketStatusSettled
)

func (s MarketStatus) String() string {
	switch s {
	case MarketStatusActive:
		return "Active"
	case MarketStatusSettled:
		return "Settled"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates status transitions. Settled is terminal.
func (s MarketStatus) CanTransitionTo(next MarketStatus) bool {
	return s == MarketStatusActive && next == MarketStatusSettled
}

func (s MarketStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *MarketStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Active":
		*s = MarketStatusActive
	case "Settled":
		*s = MarketStatusSettled
	default:
		return fmt.Errorf("unknown market status %q", text)
	}
	return nil
}

// Market is the singleton CFD market.
type Market struct {
	Key             address.Address `json:"key"` // record key, the mint and vault authority
	T0Price         uint64          `json:"t0_price"`
	T2Price         uint64          `json:"t2_price"`
	ExpiryHeight    uint64          `json:"expiry_height"`
	Status          MarketStatus    `json:"status"`
	CollateralVault address.Address `json:"collateral_vault"`
}

func (m *Market) Kind() string { return KindMarket }

func (m *Market) Clone() store.Record {
	cp := *m
	return &cp
}

// InitMarket builds a fresh Active market priced at oraclePrice. It does not
// look at any existing market: calling it again resets status, prices and
// expiry of a live market.
func InitMarket(key, vault address.Address, oraclePrice, height uint64) (*Market, error) {
	expiry, err := math.CheckedAdd(height, MarketLifetime)
	if err != nil {
		return nil, err
	}
	return &Market{
		Key:             key,
		T0Price:         oraclePrice,
		T2Price:         oraclePrice,
		ExpiryHeight:    expiry,
		Status:          MarketStatusActive,
		CollateralVault: vault,
	}, nil
}

// RecordSettlement writes the settlement price and moves the market to
// Settled. It succeeds once.
func (m *Market) RecordSettlement(t2Price uint64) error {
	if !m.Status.CanTransitionTo(MarketStatusSettled) {
		return fault.New(fault.MarketAlreadySettled, "market status %s", m.Status)
	}
	m.T2Price = t2Price
	m.Status = MarketStatusSettled
	return nil
}
