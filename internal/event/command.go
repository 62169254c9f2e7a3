// Package event defines the commands accepted by the clearing core and the
// envelope each committed command is logged in.
package event

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"CfdLedger/internal/address"
)

// CommandType discriminates command payloads on the wire and in the log.
type CommandType string

const (
	CommandInitMarket        CommandType = "init_market"
	CommandOpenPosition      CommandType = "open_position"
	CommandLiquidatePosition CommandType = "liquidate_position"
	CommandSettlePosition    CommandType = "settle_position"
	CommandSettleMarket      CommandType = "settle_market"
	CommandCrankHeatmap      CommandType = "crank_heatmap"

	CommandInitOracle       CommandType = "init_oracle"
	CommandUpdateOracle     CommandType = "update_oracle"
	CommandInitSpotOracle   CommandType = "init_spot_oracle"
	CommandUpdateAssetPrice CommandType = "update_asset_price"
	CommandInitAggregator   CommandType = "init_aggregator"
	CommandUpdateFeed       CommandType = "update_feed"
	CommandMarkStaleFeeds   CommandType = "mark_stale_feeds"

	CommandInitPool             CommandType = "init_pool"
	CommandSetPoolFees          CommandType = "set_pool_fees"
	CommandAddLiquidity         CommandType = "add_liquidity"
	CommandSwap                 CommandType = "swap"
	CommandCreateSlotPool       CommandType = "create_slot_pool"
	CommandAddSlotPoolLiquidity CommandType = "add_slot_pool_liquidity"
	CommandSwapSlotPool         CommandType = "swap_slot_pool"

	CommandMintSlot  CommandType = "mint_slot"
	CommandTradeSlot CommandType = "trade_slot"
	CommandPlaceBet  CommandType = "place_bet"
	CommandSettleBet CommandType = "settle_bet"

	CommandInitGovernance   CommandType = "init_governance"
	CommandStake            CommandType = "stake"
	CommandCreateProposal   CommandType = "create_proposal"
	CommandCastVote         CommandType = "cast_vote"
	CommandFinalizeProposal CommandType = "finalize_proposal"
	CommandExecuteProposal  CommandType = "execute_proposal"
	CommandClaimFees        CommandType = "claim_fees"
	CommandBuyback          CommandType = "buyback"
	CommandDepositFees      CommandType = "deposit_fees"

	CommandDeposit  CommandType = "deposit"
	CommandWithdraw CommandType = "withdraw"
)

// Meta is the header every command carries.
type Meta struct {
	RequestID uuid.UUID       `json:"request_id"`
	Signer    address.Address `json:"signer"`
}

// Header returns the command header.
func (m Meta) Header() Meta { return m }

// Command is implemented by every command payload.
type Command interface {
	// Header returns the request id and signer.
	Header() Meta

	// Type returns the discriminator
	Type() CommandType
}

var factories = map[CommandType]func() Command{
	CommandInitMarket:        func() Command { return &InitMarket{} },
	CommandOpenPosition:      func() Command { return &OpenPosition{} },
	CommandLiquidatePosition: func() Command { return &LiquidatePosition{} },
	CommandSettlePosition:    func() Command { return &SettlePosition{} },
	CommandSettleMarket:      func() Command { return &SettleMarket{} },
	CommandCrankHeatmap:      func() Command { return &CrankHeatmap{} },

	CommandInitOracle:       func() Command { return &InitOracle{} },
	CommandUpdateOracle:     func() Command { return &UpdateOracle{} },
	CommandInitSpotOracle:   func() Command { return &InitSpotOracle{} },
	CommandUpdateAssetPrice: func() Command { return &UpdateAssetPrice{} },
	CommandInitAggregator:   func() Command { return &InitAggregator{} },
	CommandUpdateFeed:       func() Command { return &UpdateFeed{} },
	CommandMarkStaleFeeds:   func() Command { return &MarkStaleFeeds{} },

	CommandInitPool:             func() Command { return &InitPool{} },
	CommandSetPoolFees:          func() Command { return &SetPoolFees{} },
	CommandAddLiquidity:         func() Command { return &AddLiquidity{} },
	CommandSwap:                 func() Command { return &Swap{} },
	CommandCreateSlotPool:       func() Command { return &CreateSlotPool{} },
	CommandAddSlotPoolLiquidity: func() Command { return &AddSlotPoolLiquidity{} },
	CommandSwapSlotPool:         func() Command { return &SwapSlotPool{} },

	CommandMintSlot:  func() Command { return &MintSlot{} },
	CommandTradeSlot: func() Command { return &TradeSlot{} },
	CommandPlaceBet:  func() Command { return &PlaceBet{} },
	CommandSettleBet: func() Command { return &SettleBet{} },

	CommandInitGovernance:   func() Command { return &InitGovernance{} },
	CommandStake:            func() Command { return &Stake{} },
	CommandCreateProposal:   func() Command { return &CreateProposal{} },
	CommandCastVote:         func() Command { return &CastVote{} },
	CommandFinalizeProposal: func() Command { return &FinalizeProposal{} },
	CommandExecuteProposal:  func() Command { return &ExecuteProposal{} },
	CommandClaimFees:        func() Command { return &ClaimFees{} },
	CommandBuyback:          func() Command { return &Buyback{} },
	CommandDepositFees:      func() Command { return &DepositFees{} },

	CommandDeposit:  func() Command { return &Deposit{} },
	CommandWithdraw: func() Command { return &Withdraw{} },
}

// New returns an empty command of type t.
func New(t CommandType) (Command, error) {
	factory, ok := factories[t]
	if !ok {
		return nil, fmt.Errorf("unknown command type %q", t)
	}
	return factory(), nil
}

// Decode parses a JSON payload as a command of type t. The request id and
// signer are mandatory.
func Decode(t CommandType, data []byte) (Command, error) {
	cmd, err := New(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	h := cmd.Header()
	if h.RequestID == uuid.Nil {
		return nil, fmt.Errorf("decode %s: missing request_id", t)
	}
	if h.Signer.IsZero() {
		return nil, fmt.Errorf("decode %s: missing signer", t)
	}
	return cmd, nil
}

// Encode renders a command as its JSON payload.
func Encode(cmd Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Type(), err)
	}
	return data, nil
}

// IdempotencyKey is the composite dedup key of a command.
func IdempotencyKey(cmd Command) string {
	return string(cmd.Type()) + ":" + cmd.Header().RequestID.String()
}

// Types lists every known command type in sorted order.
func Types() []CommandType {
	out := make([]CommandType, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Known reports whether t is a registered command type.
func Known(t CommandType) bool {
	_, ok := factories[t]
	return ok
}
