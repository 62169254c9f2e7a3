package core

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/event"
	"CfdLedger/internal/state"
	"CfdLedger/internal/store"
)

func (c *DeterministicCore) handleInitMarket(x *execution, _ *event.InitMarket) (any, error) {
	price, err := c.marketPrice(x)
	if err != nil {
		return nil, err
	}
	m, err := state.InitMarket(c.keys.Market(), c.keys.Vault(address.VaultMarketCollateral), price, x.height)
	if err != nil {
		return nil, err
	}
	x.records.Put(m.Key, m)
	return m, nil
}

func (c *DeterministicCore) handleOpenPosition(x *execution, e *event.OpenPosition) (any, error) {
	m, err := store.Load[*state.Market](x.records, c.keys.Market())
	if err != nil {
		return nil, err
	}
	p, err := state.OpenPosition(m, x.ledger, state.OpenRequest{
		Owner:    x.signer,
		Side:     e.Side,
		Size:     e.Size,
		Leverage: e.Leverage,
	})
	if err != nil {
		return nil, err
	}
	x.records.Put(c.keys.Position(x.signer), p)
	if c.metrics != nil {
		c.metrics.PositionsOpened.WithLabelValues(p.Side.String()).Inc()
	}
	return p, nil
}

// LiquidationOutput is returned for liquidate_position.
type LiquidationOutput struct {
	Owner              address.Address `json:"owner"`
	CollateralRatioBps uint64          `json:"collateral_ratio_bps"`
	Bonus              uint64          `json:"bonus"`
	OwnerRemainder     uint64          `json:"owner_remainder"`
	TokensBurned       uint64          `json:"tokens_burned"`
}

func (c *DeterministicCore) handleLiquidatePosition(x *execution, e *event.LiquidatePosition) (any, error) {
	m, err := store.Load[*state.Market](x.records, c.keys.Market())
	if err != nil {
		return nil, err
	}
	key := c.keys.Position(e.Owner)
	p, err := store.Load[*state.Position](x.records, key)
	if err != nil {
		return nil, err
	}
	price, err := c.marketPrice(x)
	if err != nil {
		return nil, err
	}
	res, err := state.Liquidate(m, p, x.ledger, x.signer, price, x.height)
	if err != nil {
		return nil, err
	}
	x.records.Put(key, p)

	if c.metrics != nil {
		c.metrics.Liquidations.Inc()
		c.metrics.LiquidationBonus.Add(float64(res.Bonus))
	}
	c.log.Info().
		Str("owner", e.Owner.String()).
		Str("liquidator", x.signer.String()).
		Uint64("ratio_bps", res.Snapshot.CollateralRatioBps).
		Uint64("bonus", res.Bonus).
		Msg("position liquidated")

	return LiquidationOutput{
		Owner:              e.Owner,
		CollateralRatioBps: res.Snapshot.CollateralRatioBps,
		Bonus:              res.Bonus,
		OwnerRemainder:     res.OwnerRemainder,
		TokensBurned:       res.TokensBurned,
	}, nil
}

func (c *DeterministicCore) handleSettlePosition(x *execution, _ *event.SettlePosition) (any, error) {
	m, err := store.Load[*state.Market](x.records, c.keys.Market())
	if err != nil {
		return nil, err
	}
	key := c.keys.Position(x.signer)
	p, err := store.Load[*state.Position](x.records, key)
	if err != nil {
		return nil, err
	}
	res, err := state.Settle(m, p, x.ledger)
	if err != nil {
		return nil, err
	}
	x.records.Delete(key)
	if c.metrics != nil {
		c.metrics.SettlementPayouts.WithLabelValues("position").Add(float64(res.Payout))
	}
	return res, nil
}

func (c *DeterministicCore) handleSettleMarket(x *execution, e *event.SettleMarket) (any, error) {
	if err := c.requireOperator(x); err != nil {
		return nil, err
	}
	m, err := store.Load[*state.Market](x.records, c.keys.Market())
	if err != nil {
		return nil, err
	}
	if err := m.RecordSettlement(e.T2Price); err != nil {
		return nil, err
	}
	x.records.Put(m.Key, m)
	if c.metrics != nil {
		c.metrics.MarketSettlements.Inc()
	}
	c.log.Info().Uint64("t0", m.T0Price).Uint64("t2", m.T2Price).Msg("market settled")
	return m, nil
}

func (c *DeterministicCore) handleCrankHeatmap(x *execution, _ *event.CrankHeatmap) (any, error) {
	m, err := store.Load[*state.Market](x.records, c.keys.Market())
	if err != nil {
		return nil, err
	}
	price, err := c.marketPrice(x)
	if err != nil {
		return nil, err
	}
	key := c.keys.Heatmap()
	h, ok := store.Lookup[*state.Heatmap](x.records, key)
	if !ok {
		h = &state.Heatmap{}
	}
	entry, err := h.Crank(m, price, x.height)
	if err != nil {
		return nil, err
	}
	x.records.Put(key, h)
	if c.metrics != nil {
		c.metrics.HeatmapSpreadBps.Set(float64(entry.SpreadBps))
	}
	return entry, nil
}
