package core

import (
	"CfdLedger/internal/event"
	"CfdLedger/internal/oracle"
	"CfdLedger/internal/store"
)

func (c *DeterministicCore) handleInitOracle(x *execution, _ *event.InitOracle) (any, error) {
	m := oracle.NewMock(x.signer, x.height)
	if err := x.records.Create(c.keys.Oracle(), m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *DeterministicCore) handleUpdateOracle(x *execution, e *event.UpdateOracle) (any, error) {
	key := c.keys.Oracle()
	m, err := store.Load[*oracle.Mock](x.records, key)
	if err != nil {
		return nil, err
	}
	if err := m.Update(x.signer, e.Price, x.height); err != nil {
		return nil, err
	}
	x.records.Put(key, m)
	return m, nil
}

func (c *DeterministicCore) handleInitSpotOracle(x *execution, _ *event.InitSpotOracle) (any, error) {
	t := oracle.NewSpotTable(x.signer, x.height)
	if err := x.records.Create(c.keys.SpotOracle(), t); err != nil {
		return nil, err
	}
	return t, nil
}

func (c *DeterministicCore) handleUpdateAssetPrice(x *execution, e *event.UpdateAssetPrice) (any, error) {
	key := c.keys.SpotOracle()
	t, err := store.Load[*oracle.SpotTable](x.records, key)
	if err != nil {
		return nil, err
	}
	row, err := t.Upsert(x.signer, e.Symbol, e.Class, e.Price, x.height)
	if err != nil {
		return nil, err
	}
	x.records.Put(key, t)
	return row, nil
}

func (c *DeterministicCore) handleInitAggregator(x *execution, _ *event.InitAggregator) (any, error) {
	a := oracle.NewAggregator(x.signer, x.height)
	if err := x.records.Create(c.keys.Aggregator(), a); err != nil {
		return nil, err
	}
	return a, nil
}

// FeedOutput is returned for update_feed.
type FeedOutput struct {
	Feed              oracle.Feed `json:"feed"`
	SpreadBps         uint64      `json:"spread_bps"`
	DeviationExceeded bool        `json:"deviation_exceeded"`
}

func (c *DeterministicCore) handleUpdateFeed(x *execution, e *event.UpdateFeed) (any, error) {
	key := c.keys.Aggregator()
	a, err := store.Load[*oracle.Aggregator](x.records, key)
	if err != nil {
		return nil, err
	}
	res, err := a.Update(x.signer, oracle.FeedUpdate{
		Symbol: e.Symbol,
		Class:  e.Class,
		Slot:   e.Slot,
		Source: e.Source,
		Price:  e.Price,
	}, x.height)
	if err != nil {
		return nil, err
	}
	x.records.Put(key, a)

	asset := oracle.AssetKey{Symbol: e.Symbol, Class: e.Class}.String()
	if c.metrics != nil {
		c.metrics.OracleFeedSpreadBps.WithLabelValues(asset).Set(float64(res.SpreadBps))
	}
	if res.DeviationExceeded {
		if c.metrics != nil {
			c.metrics.OracleDeviation.WithLabelValues(asset).Inc()
		}
		c.log.Warn().
			Str("asset", asset).
			Uint64("spread_bps", res.SpreadBps).
			Uint64("threshold_bps", a.DeviationThresholdBps).
			Msg("oracle sources deviate")
	}
	return FeedOutput{Feed: res.Feed, SpreadBps: res.SpreadBps, DeviationExceeded: res.DeviationExceeded}, nil
}

// StaleOutput is returned for mark_stale_feeds.
type StaleOutput struct {
	Flagged int `json:"flagged"`
}

func (c *DeterministicCore) handleMarkStaleFeeds(x *execution, _ *event.MarkStaleFeeds) (any, error) {
	key := c.keys.Aggregator()
	a, err := store.Load[*oracle.Aggregator](x.records, key)
	if err != nil {
		return nil, err
	}
	flagged := a.MarkStale(x.height)
	x.records.Put(key, a)
	if flagged > 0 {
		if c.metrics != nil {
			c.metrics.OracleStaleFlagged.Add(float64(flagged))
		}
		c.log.Info().Int("flagged", flagged).Uint64("height", x.height).Msg("feeds marked stale")
	}
	return StaleOutput{Flagged: flagged}, nil
}
