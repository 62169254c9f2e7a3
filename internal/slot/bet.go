package slot

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/math"
	"CfdLedger/internal/oracle"
	"CfdLedger/internal/store"
)

const (
	KindBet = "bet"

	// MinBetAmount is 10 USDC.
	MinBetAmount uint64 = 10 * math.MicroScale
)

// Bet is a directional wager snapshotting the spot price at placement.
type Bet struct {
	Owner           address.Address   `json:"owner"`
	ID              uint64            `json:"id"`
	Symbol          string            `json:"symbol"`
	Class           oracle.AssetClass `json:"asset_class"`
	Amount          uint64            `json:"amount"`
	IsLong          bool              `json:"is_long"`
	EntryPrice      uint64            `json:"entry_price"`
	CreatedHeight   uint64            `json:"created_height"`
	IsSettled       bool              `json:"is_settled"`
	SettlementValue uint64            `json:"settlement_value"`
}

func (b *Bet) Kind() string { return KindBet }

func (b *Bet) Clone() store.Record {
	cp := *b
	return &cp
}

// BetRequest carries the fields of a new bet.
type BetRequest struct {
	ID     uint64
	Owner  address.Address
	Symbol string
	Class  oracle.AssetClass
	Amount uint64
	IsLong bool
}

// PlaceBet opens a bet at the current spot price of (symbol, class).
func PlaceBet(spot *oracle.SpotTable, req BetRequest, height uint64) (*Bet, error) {
	if req.Amount < MinBetAmount {
		return nil, fault.New(fault.BetAmountTooSmall, "amount %d < %d", req.Amount, MinBetAmount)
	}
	row, err := spot.Lookup(req.Symbol, req.Class)
	if err != nil {
		return nil, err
	}
	return &Bet{
		Owner:         req.Owner,
		ID:            req.ID,
		Symbol:        req.Symbol,
		Class:         req.Class,
		Amount:        req.Amount,
		IsLong:        req.IsLong,
		EntryPrice:    row.Price,
		CreatedHeight: height,
	}, nil
}

// SettleRequest names the bet and the instant slot used to settle it.
type SettleRequest struct {
	Caller address.Address
	BetID  uint64
	SlotID uint64
}

// SettlementValue returns what a bet of amount placed at entry is worth at
// price: amount plus the proportional move when it went the bet's way,
// otherwise amount minus it, floored at zero.
func SettlementValue(amount, entry, price uint64, isLong bool) (uint64, error) {
	if entry == 0 {
		return 0, fault.New(fault.InvalidPriceData, "entry price is zero")
	}
	move, up := math.AbsDiff(price, entry)
	pct, err := math.MulDiv(move, math.MicroScale, entry)
	if err != nil {
		return 0, err
	}
	pnl, err := math.MulDiv(amount, pct, math.MicroScale)
	if err != nil {
		return 0, err
	}
	won := move > 0 && up == isLong
	if won {
		return math.CheckedAdd(amount, pnl)
	}
	if pnl >= amount {
		return 0, nil
	}
	return amount - pnl, nil
}

// SettleInstant settles b against the current spot price using the caller's
// T+0 slot s. The bet is marked settled with its settlement value.
func SettleInstant(b *Bet, s *Slot, spot *oracle.SpotTable, req SettleRequest, height uint64) (uint64, error) {
	if s.ID != req.SlotID {
		return 0, fault.New(fault.InvalidSettlementSlot, "slot %d, requested %d", s.ID, req.SlotID)
	}
	if s.Owner != req.Caller {
		return 0, fault.New(fault.Unauthorized, "slot %d is owned by %s", s.ID, s.Owner)
	}
	if !s.Live(height) {
		return 0, fault.New(fault.SlotExpired, "slot %d expired at %d", s.ID, s.ExpiryHeight)
	}
	if s.SettlementOffset != 0 {
		return 0, fault.New(fault.NotInstantSettlement, "slot %d settles at T+%d", s.ID, s.SettlementOffset)
	}
	if b.ID != req.BetID {
		return 0, fault.New(fault.InvalidBetId, "bet %d, requested %d", b.ID, req.BetID)
	}
	if b.Owner != req.Caller {
		return 0, fault.New(fault.Unauthorized, "bet %d is owned by %s", b.ID, b.Owner)
	}
	if b.IsSettled {
		return 0, fault.New(fault.BetAlreadySettled, "bet %d", b.ID)
	}

	row, err := spot.Lookup(b.Symbol, b.Class)
	if err != nil {
		return 0, err
	}
	value, err := SettlementValue(b.Amount, b.EntryPrice, row.Price, b.IsLong)
	if err != nil {
		return 0, err
	}
	b.IsSettled = true
	b.SettlementValue = value
	return value, nil
}
