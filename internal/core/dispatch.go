package core

import (
	"fmt"

	"CfdLedger/internal/address"
	"CfdLedger/internal/event"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/ledger"
	"CfdLedger/internal/oracle"
	"CfdLedger/internal/store"
)

// execution is the staged context of one command.
type execution struct {
	core    *DeterministicCore
	ledger  *ledger.Tx
	records *store.Tx
	height  uint64
	signer  address.Address
}

func (c *DeterministicCore) dispatch(x *execution, cmd event.Command) (any, error) {
	switch e := cmd.(type) {
	// Market
	case *event.InitMarket:
		return c.handleInitMarket(x, e)
	case *event.OpenPosition:
		return c.handleOpenPosition(x, e)
	case *event.LiquidatePosition:
		return c.handleLiquidatePosition(x, e)
	case *event.SettlePosition:
		return c.handleSettlePosition(x, e)
	case *event.SettleMarket:
		return c.handleSettleMarket(x, e)
	case *event.CrankHeatmap:
		return c.handleCrankHeatmap(x, e)

	// Oracles
	case *event.InitOracle:
		return c.handleInitOracle(x, e)
	case *event.UpdateOracle:
		return c.handleUpdateOracle(x, e)
	case *event.InitSpotOracle:
		return c.handleInitSpotOracle(x, e)
	case *event.UpdateAssetPrice:
		return c.handleUpdateAssetPrice(x, e)
	case *event.InitAggregator:
		return c.handleInitAggregator(x, e)
	case *event.UpdateFeed:
		return c.handleUpdateFeed(x, e)
	case *event.MarkStaleFeeds:
		return c.handleMarkStaleFeeds(x, e)

	// AMM
	case *event.InitPool:
		return c.handleInitPool(x, e)
	case *event.SetPoolFees:
		return c.handleSetPoolFees(x, e)
	case *event.AddLiquidity:
		return c.handleAddLiquidity(x, e)
	case *event.Swap:
		return c.handleSwap(x, e)
	case *event.CreateSlotPool:
		return c.handleCreateSlotPool(x, e)
	case *event.AddSlotPoolLiquidity:
		return c.handleAddSlotPoolLiquidity(x, e)
	case *event.SwapSlotPool:
		return c.handleSwapSlotPool(x, e)

	// Slots and bets
	case *event.MintSlot:
		return c.handleMintSlot(x, e)
	case *event.TradeSlot:
		return c.handleTradeSlot(x, e)
	case *event.PlaceBet:
		return c.handlePlaceBet(x, e)
	case *event.SettleBet:
		return c.handleSettleBet(x, e)

	// Governance
	case *event.InitGovernance:
		return c.handleInitGovernance(x, e)
	case *event.Stake:
		return c.handleStake(x, e)
	case *event.CreateProposal:
		return c.handleCreateProposal(x, e)
	case *event.CastVote:
		return c.handleCastVote(x, e)
	case *event.FinalizeProposal:
		return c.handleFinalizeProposal(x, e)
	case *event.ExecuteProposal:
		return c.handleExecuteProposal(x, e)
	case *event.ClaimFees:
		return c.handleClaimFees(x, e)
	case *event.Buyback:
		return c.handleBuyback(x, e)
	case *event.DepositFees:
		return c.handleDepositFees(x, e)

	// Host
	case *event.Deposit:
		return c.handleDeposit(x, e)
	case *event.Withdraw:
		return c.handleWithdraw(x, e)

	default:
		return nil, fmt.Errorf("unknown command type: %T", cmd)
	}
}

// marketPrice reads the configured price source.
func (c *DeterministicCore) marketPrice(x *execution) (uint64, error) {
	switch c.cfg.PriceSource {
	case PriceSourceAggregator:
		agg, err := store.Load[*oracle.Aggregator](x.records, c.keys.Aggregator())
		if err != nil {
			return 0, err
		}
		return agg.Price(c.cfg.PriceSymbol, c.cfg.PriceClass)
	default:
		mock, err := store.Load[*oracle.Mock](x.records, c.keys.Oracle())
		if err != nil {
			return 0, err
		}
		return mock.Price, nil
	}
}

// MarketPrice reads the configured market price source from committed
// records. Callers hold a view.
func (c *DeterministicCore) MarketPrice(records *store.Store) (uint64, error) {
	switch c.cfg.PriceSource {
	case PriceSourceAggregator:
		agg, ok := store.Read[*oracle.Aggregator](records, c.keys.Aggregator())
		if !ok {
			return 0, fault.New(fault.RecordNotFound, "oracle aggregator")
		}
		return agg.Price(c.cfg.PriceSymbol, c.cfg.PriceClass)
	default:
		mock, ok := store.Read[*oracle.Mock](records, c.keys.Oracle())
		if !ok {
			return 0, fault.New(fault.RecordNotFound, "oracle")
		}
		return mock.Price, nil
	}
}

func (c *DeterministicCore) requireOperator(x *execution) error {
	if x.signer != c.cfg.Operator {
		return fault.New(fault.Unauthorized, "operator is %s", c.cfg.Operator)
	}
	return nil
}
