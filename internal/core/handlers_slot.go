package core

import (
	"CfdLedger/internal/event"
	"CfdLedger/internal/oracle"
	"CfdLedger/internal/slot"
	"CfdLedger/internal/store"
)

func (c *DeterministicCore) handleMintSlot(x *execution, e *event.MintSlot) (any, error) {
	s, err := slot.Mint(slot.MintRequest{
		ID:               e.ID,
		Owner:            x.signer,
		Symbol:           e.Symbol,
		Class:            e.Class,
		SettlementOffset: e.SettlementOffset,
		Duration:         e.Duration,
		Price:            e.Price,
	}, x.height)
	if err != nil {
		return nil, err
	}
	if err := x.records.Create(c.keys.Slot(e.ID), s); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *DeterministicCore) handleTradeSlot(x *execution, e *event.TradeSlot) (any, error) {
	key := c.keys.Slot(e.ID)
	s, err := store.Load[*slot.Slot](x.records, key)
	if err != nil {
		return nil, err
	}
	if err := s.Trade(x.signer, e.Buyer, e.NewPrice, x.height); err != nil {
		return nil, err
	}
	x.records.Put(key, s)
	return s, nil
}

func (c *DeterministicCore) handlePlaceBet(x *execution, e *event.PlaceBet) (any, error) {
	spot, err := store.Load[*oracle.SpotTable](x.records, c.keys.SpotOracle())
	if err != nil {
		return nil, err
	}
	b, err := slot.PlaceBet(spot, slot.BetRequest{
		ID:     e.ID,
		Owner:  x.signer,
		Symbol: e.Symbol,
		Class:  e.Class,
		Amount: e.Amount,
		IsLong: e.IsLong,
	}, x.height)
	if err != nil {
		return nil, err
	}
	if err := x.records.Create(c.keys.Bet(x.signer, e.ID), b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *DeterministicCore) handleSettleBet(x *execution, e *event.SettleBet) (any, error) {
	betKey := c.keys.Bet(x.signer, e.BetID)
	b, err := store.Load[*slot.Bet](x.records, betKey)
	if err != nil {
		return nil, err
	}
	s, err := store.Load[*slot.Slot](x.records, c.keys.Slot(e.SlotID))
	if err != nil {
		return nil, err
	}
	spot, err := store.Load[*oracle.SpotTable](x.records, c.keys.SpotOracle())
	if err != nil {
		return nil, err
	}
	if _, err := slot.SettleInstant(b, s, spot, slot.SettleRequest{
		Caller: x.signer,
		BetID:  e.BetID,
		SlotID: e.SlotID,
	}, x.height); err != nil {
		return nil, err
	}
	x.records.Put(betKey, b)
	if c.metrics != nil {
		c.metrics.SettlementPayouts.WithLabelValues("bet").Add(float64(b.SettlementValue))
	}
	return b, nil
}
