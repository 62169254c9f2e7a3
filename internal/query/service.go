// Package query serves read-only views of the clearing state. Record and
// balance queries read the core's committed state; history and integrity
// queries read the event log.
package query

import (
	"database/sql"
	"encoding/hex"
	"strconv"

	"CfdLedger/internal/address"
	"CfdLedger/internal/amm"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/governance"
	"CfdLedger/internal/ledger"
	"CfdLedger/internal/oracle"
	"CfdLedger/internal/persistence"
	"CfdLedger/internal/slot"
	"CfdLedger/internal/state"
	"CfdLedger/internal/store"
)

// StateSource is the read side of the deterministic core.
type StateSource interface {
	ViewAsOf(fn func(seq int64, records *store.Store, balances *ledger.BalanceTracker))
	Keys() address.Deriver
	MarketPrice(records *store.Store) (uint64, error)
	Tip() (int64, [32]byte, uint64)
}

// QueryService answers queries. Every response carries as_of_sequence.
type QueryService struct {
	state   StateSource
	db      *sql.DB // nil disables history and log checks
	dialect persistence.Dialect
}

func NewQueryService(src StateSource, db *sql.DB, dialect persistence.Dialect) *QueryService {
	return &QueryService{state: src, db: db, dialect: dialect}
}

// record reads one committed record of type T.
func record[T store.Record](qs *QueryService, key address.Address, what string) (Response[T], error) {
	var resp Response[T]
	var found bool
	qs.state.ViewAsOf(func(seq int64, records *store.Store, _ *ledger.BalanceTracker) {
		resp.AsOfSequence = seq
		resp.Data, found = store.Read[T](records, key)
	})
	if !found {
		return resp, fault.New(fault.RecordNotFound, "%s %s", what, key)
	}
	return resp, nil
}

func (qs *QueryService) GetMarket() (Response[*state.Market], error) {
	return record[*state.Market](qs, qs.state.Keys().Market(), "market")
}

func (qs *QueryService) GetHeatmap() (Response[*state.Heatmap], error) {
	return record[*state.Heatmap](qs, qs.state.Keys().Heatmap(), "heatmap")
}

// GetPosition returns owner's position marked to the market price. The
// mark fields stay empty when the price source is unavailable.
func (qs *QueryService) GetPosition(owner string) (Response[PositionResponse], error) {
	var resp Response[PositionResponse]
	key, err := parseOwner(owner)
	if err != nil {
		return resp, fault.New(fault.InvalidAddress, "owner %q", owner)
	}

	var found bool
	qs.state.ViewAsOf(func(seq int64, records *store.Store, _ *ledger.BalanceTracker) {
		resp.AsOfSequence = seq
		p, ok := store.Read[*state.Position](records, qs.state.Keys().Position(key))
		if !ok {
			return
		}
		found = true
		resp.Data.Position = p
		if p.Liquidated {
			return
		}
		price, err := qs.state.MarketPrice(records)
		if err != nil {
			return
		}
		mtm, err := state.MarkToMarket(p, price)
		if err != nil {
			return
		}
		resp.Data.MarkPrice = price
		resp.Data.UnrealizedPnL = int64(mtm.PnL.Amount)
		if mtm.PnL.Loss {
			resp.Data.UnrealizedPnL = -resp.Data.UnrealizedPnL
		}
		resp.Data.CollateralValue = mtm.CurrentCollateralValue
		resp.Data.CollateralRatioBps = mtm.CollateralRatioBps
		resp.Data.Liquidatable = mtm.Liquidatable()
	})
	if !found {
		return resp, fault.New(fault.RecordNotFound, "position of %s", owner)
	}
	return resp, nil
}

func (qs *QueryService) GetPool() (Response[*amm.Pool], error) {
	return record[*amm.Pool](qs, qs.state.Keys().Pool(), "pool")
}

func (qs *QueryService) GetLPPosition(owner string) (Response[*amm.LPPosition], error) {
	key, err := parseOwner(owner)
	if err != nil {
		return Response[*amm.LPPosition]{}, fault.New(fault.InvalidAddress, "owner %q", owner)
	}
	return record[*amm.LPPosition](qs, qs.state.Keys().LPPosition(key), "lp position")
}

func (qs *QueryService) GetSlotPool(creator, poolID string) (Response[*amm.SlotPool], error) {
	key, err := parseOwner(creator)
	if err != nil {
		return Response[*amm.SlotPool]{}, fault.New(fault.InvalidAddress, "creator %q", creator)
	}
	id, err := parseID(poolID)
	if err != nil {
		return Response[*amm.SlotPool]{}, err
	}
	return record[*amm.SlotPool](qs, qs.state.Keys().SlotPool(key, id), "slot pool")
}

// GetFeed returns the aggregator feed of an asset.
func (qs *QueryService) GetFeed(class, symbol string) (Response[oracle.Feed], error) {
	var resp Response[oracle.Feed]
	c, err := oracle.ParseAssetClass(class)
	if err != nil {
		return resp, err
	}
	agg, err := record[*oracle.Aggregator](qs, qs.state.Keys().Aggregator(), "oracle aggregator")
	if err != nil {
		return resp, err
	}
	resp.AsOfSequence = agg.AsOfSequence
	resp.Data, err = agg.Data.Feed(symbol, c)
	return resp, err
}

// GetSpotPrice returns the spot table row of an asset.
func (qs *QueryService) GetSpotPrice(class, symbol string) (Response[oracle.AssetPrice], error) {
	var resp Response[oracle.AssetPrice]
	c, err := oracle.ParseAssetClass(class)
	if err != nil {
		return resp, err
	}
	table, err := record[*oracle.SpotTable](qs, qs.state.Keys().SpotOracle(), "spot oracle")
	if err != nil {
		return resp, err
	}
	resp.AsOfSequence = table.AsOfSequence
	for _, row := range table.Data.Entries {
		if row.Symbol == symbol && row.Class == c {
			resp.Data = row
			return resp, nil
		}
	}
	return resp, fault.New(fault.AssetNotFound, "%s %s", c, symbol)
}

func (qs *QueryService) GetSlot(id string) (Response[*slot.Slot], error) {
	n, err := parseID(id)
	if err != nil {
		return Response[*slot.Slot]{}, err
	}
	return record[*slot.Slot](qs, qs.state.Keys().Slot(n), "slot")
}

func (qs *QueryService) GetBet(owner, id string) (Response[*slot.Bet], error) {
	key, err := parseOwner(owner)
	if err != nil {
		return Response[*slot.Bet]{}, fault.New(fault.InvalidAddress, "owner %q", owner)
	}
	n, err := parseID(id)
	if err != nil {
		return Response[*slot.Bet]{}, err
	}
	return record[*slot.Bet](qs, qs.state.Keys().Bet(key, n), "bet")
}

func (qs *QueryService) GetGovernance() (Response[*governance.Governance], error) {
	return record[*governance.Governance](qs, qs.state.Keys().Governance(), "governance")
}

func (qs *QueryService) GetProposal(id string) (Response[*governance.Proposal], error) {
	n, err := parseID(id)
	if err != nil {
		return Response[*governance.Proposal]{}, err
	}
	return record[*governance.Proposal](qs, qs.state.Keys().Proposal(n), "proposal")
}

func (qs *QueryService) GetStake(owner string) (Response[*governance.StakingPosition], error) {
	key, err := parseOwner(owner)
	if err != nil {
		return Response[*governance.StakingPosition]{}, fault.New(fault.InvalidAddress, "owner %q", owner)
	}
	return record[*governance.StakingPosition](qs, qs.state.Keys().StakingPosition(key), "staking position")
}

// GetState returns the chain tip and per-asset supply.
func (qs *QueryService) GetState() Response[StateResponse] {
	var resp Response[StateResponse]
	seq, hash, height := qs.state.Tip()
	qs.state.ViewAsOf(func(viewSeq int64, records *store.Store, balances *ledger.BalanceTracker) {
		resp.AsOfSequence = viewSeq
		resp.Data.Records = records.Len()
		resp.Data.Supply = make(map[string]int64)
		for _, asset := range assetIDs() {
			name, _ := ledger.GetAssetName(asset)
			resp.Data.Supply[name] = balances.Supply(asset)
		}
	})
	resp.Data.Sequence = seq
	resp.Data.StateHash = hex.EncodeToString(hash[:])
	resp.Data.Height = height
	return resp
}

func assetIDs() []ledger.AssetID {
	return []ledger.AssetID{
		ledger.AssetUSDC, ledger.AssetLong, ledger.AssetShort, ledger.AssetLP,
		ledger.AssetCaden, ledger.AssetStakedCaden, ledger.AssetSlot,
	}
}

func parseID(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fault.New(fault.InvalidParameter, "id %q: %v", s, err)
	}
	return n, nil
}
