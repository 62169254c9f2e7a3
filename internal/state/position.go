package state

import (
	"fmt"

	"CfdLedger/internal/address"
	"CfdLedger/internal/ledger"
	"CfdLedger/internal/store"
)

const (
	KindPosition = "position"

	MinLeverage uint8 = 1
	MaxLeverage uint8 = 3
)

// Side is the direction of a position
type Side uint8

const (
	SideLong Side = iota
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "Long"
	case SideShort:
		return "Short"
	default:
		return "Unknown"
	}
}

// Asset returns the position token minted for this side.
func (s Side) Asset() ledger.AssetID {
	if s == SideShort {
		return ledger.AssetShort
	}
	return ledger.AssetLong
}

func (s Side) Valid() bool { return s == SideLong || s == SideShort }

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Long", "long":
		*s = SideLong
	case "Short", "short":
		*s = SideShort
	default:
		return fmt.Errorf("unknown side %q", text)
	}
	return nil
}

// Position represents an owner's leveraged position in the market
type Position struct {
	Owner            address.Address `json:"owner"`
	Side             Side            `json:"side"`
	Size             uint64          `json:"size"`
	EntryPrice       uint64          `json:"entry_price"`
	MintedTokens     uint64          `json:"minted_token_amount"`
	Leverage         uint8           `json:"leverage"`
	Collateral       uint64          `json:"collateral"`
	Liquidated       bool            `json:"liquidated"`
	LiquidatedHeight uint64          `json:"liquidated_height"`
}

func (p *Position) Kind() string { return KindPosition }

func (p *Position) Clone() store.Record {
	cp := *p
	return &cp
}

// TokenAccount is the owner's wallet holding this position's tokens.
func (p *Position) TokenAccount() ledger.AccountKey {
	return ledger.UserAccount(p.Owner, p.Side.Asset())
}
