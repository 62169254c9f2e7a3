package core

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/amm"
	"CfdLedger/internal/event"
	"CfdLedger/internal/store"
)

func (c *DeterministicCore) handleInitPool(x *execution, _ *event.InitPool) (any, error) {
	p := amm.NewPool(
		c.keys.Pool(),
		x.signer,
		c.keys.Vault(address.VaultPoolLong),
		c.keys.Vault(address.VaultPoolShort),
	)
	if err := x.records.Create(p.Key, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *DeterministicCore) handleSetPoolFees(x *execution, e *event.SetPoolFees) (any, error) {
	p, err := store.Load[*amm.Pool](x.records, c.keys.Pool())
	if err != nil {
		return nil, err
	}
	if err := p.SetFees(x.signer, e.SwapFeeBps, e.ProtocolFeeBps); err != nil {
		return nil, err
	}
	x.records.Put(p.Key, p)
	return p, nil
}

func (c *DeterministicCore) handleAddLiquidity(x *execution, e *event.AddLiquidity) (any, error) {
	p, err := store.Load[*amm.Pool](x.records, c.keys.Pool())
	if err != nil {
		return nil, err
	}
	lpKey := c.keys.LPPosition(x.signer)
	lp, ok := store.Lookup[*amm.LPPosition](x.records, lpKey)
	if !ok {
		lp = &amm.LPPosition{Owner: x.signer}
	}
	res, err := p.AddLiquidity(x.ledger, lp, x.signer, e.AmountLong, e.AmountShort, e.MinLPOut)
	if err != nil {
		return nil, err
	}
	x.records.Put(p.Key, p)
	x.records.Put(lpKey, lp)
	if c.metrics != nil {
		c.metrics.LiquidityAdded.WithLabelValues("long_short").Inc()
	}
	return res, nil
}

func (c *DeterministicCore) handleSwap(x *execution, e *event.Swap) (any, error) {
	p, err := store.Load[*amm.Pool](x.records, c.keys.Pool())
	if err != nil {
		return nil, err
	}
	res, err := p.Swap(x.ledger, x.signer, e.AmountIn, e.MinAmountOut, e.Direction)
	if err != nil {
		return nil, err
	}
	x.records.Put(p.Key, p)
	if c.metrics != nil {
		c.metrics.SwapVolume.WithLabelValues("long_short", e.Direction.String()).Add(float64(e.AmountIn))
		c.metrics.SwapFees.WithLabelValues("long_short").Add(float64(res.Quote.Fee))
	}
	return res, nil
}

func (c *DeterministicCore) handleCreateSlotPool(x *execution, e *event.CreateSlotPool) (any, error) {
	key := c.keys.SlotPool(x.signer, x.height)
	sp, err := amm.NewSlotPool(amm.SlotPoolParams{
		Key:              key,
		Creator:          x.signer,
		USDCVault:        c.keys.RecordVault(key, address.LegUSDC),
		SlotVault:        c.keys.RecordVault(key, address.LegSlot),
		Symbol:           e.Symbol,
		Class:            e.Class,
		SettlementOffset: e.SettlementOffset,
		FeeRateBps:       e.FeeRateBps,
	}, x.height)
	if err != nil {
		return nil, err
	}
	if err := x.records.Create(key, sp); err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.SlotPoolsCreated.Inc()
	}
	return sp, nil
}

func (c *DeterministicCore) handleAddSlotPoolLiquidity(x *execution, e *event.AddSlotPoolLiquidity) (any, error) {
	key := c.keys.SlotPool(e.Creator, e.PoolID)
	sp, err := store.Load[*amm.SlotPool](x.records, key)
	if err != nil {
		return nil, err
	}
	if err := sp.AddLiquidity(x.ledger, x.signer, e.USDCAmount, e.SlotAmount); err != nil {
		return nil, err
	}
	x.records.Put(key, sp)
	if c.metrics != nil {
		c.metrics.LiquidityAdded.WithLabelValues("settlement").Inc()
	}
	return sp, nil
}

func (c *DeterministicCore) handleSwapSlotPool(x *execution, e *event.SwapSlotPool) (any, error) {
	key := c.keys.SlotPool(e.Creator, e.PoolID)
	sp, err := store.Load[*amm.SlotPool](x.records, key)
	if err != nil {
		return nil, err
	}
	q, err := sp.Swap(x.ledger, x.signer, e.AmountIn, e.MinAmountOut, e.Direction)
	if err != nil {
		return nil, err
	}
	x.records.Put(key, sp)
	if c.metrics != nil {
		c.metrics.SwapVolume.WithLabelValues("settlement", e.Direction.String()).Add(float64(e.AmountIn))
		c.metrics.SwapFees.WithLabelValues("settlement").Add(float64(q.Fee))
	}
	return q, nil
}
