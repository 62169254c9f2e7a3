package core

import (
	"CfdLedger/internal/amm"
	"CfdLedger/internal/governance"
	"CfdLedger/internal/oracle"
	"CfdLedger/internal/slot"
	"CfdLedger/internal/state"
	"CfdLedger/internal/store"
)

// NewRecordCodec returns a codec that knows every clearing record kind.
func NewRecordCodec() *store.Codec {
	c := store.NewCodec()
	c.Register(state.KindMarket, func() store.Record { return &state.Market{} })
	c.Register(state.KindPosition, func() store.Record { return &state.Position{} })
	c.Register(state.KindHeatmap, func() store.Record { return &state.Heatmap{} })
	c.Register(oracle.KindMock, func() store.Record { return &oracle.Mock{} })
	c.Register(oracle.KindSpotTable, func() store.Record { return &oracle.SpotTable{} })
	c.Register(oracle.KindAggregator, func() store.Record { return &oracle.Aggregator{} })
	c.Register(amm.KindPool, func() store.Record { return &amm.Pool{} })
	c.Register(amm.KindLPPosition, func() store.Record { return &amm.LPPosition{} })
	c.Register(amm.KindSlotPool, func() store.Record { return &amm.SlotPool{} })
	c.Register(slot.KindSlot, func() store.Record { return &slot.Slot{} })
	c.Register(slot.KindBet, func() store.Record { return &slot.Bet{} })
	c.Register(governance.KindGovernance, func() store.Record { return &governance.Governance{} })
	c.Register(governance.KindStakingPosition, func() store.Record { return &governance.StakingPosition{} })
	c.Register(governance.KindProposal, func() store.Record { return &governance.Proposal{} })
	c.Register(governance.KindVote, func() store.Record { return &governance.Vote{} })
	return c
}
