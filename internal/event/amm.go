package event

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/amm"
	"CfdLedger/internal/oracle"
)

type InitPool struct {
	Meta
}

func (*InitPool) Type() CommandType { return CommandInitPool }

// SetPoolFees changes the pool fee schedule. Pool admin only.
type SetPoolFees struct {
	Meta
	SwapFeeBps     uint64 `json:"swap_fee_bps"`
	ProtocolFeeBps uint64 `json:"protocol_fee_bps"`
}

func (*SetPoolFees) Type() CommandType { return CommandSetPoolFees }

type AddLiquidity struct {
	Meta
	AmountLong  uint64 `json:"amount_long"`
	AmountShort uint64 `json:"amount_short"`
	MinLPOut    uint64 `json:"min_lp_out"`
}

func (*AddLiquidity) Type() CommandType { return CommandAddLiquidity }

type Swap struct {
	Meta
	AmountIn     uint64        `json:"amount_in"`
	MinAmountOut uint64        `json:"min_amount_out"`
	Direction    amm.Direction `json:"direction"`
}

func (*Swap) Type() CommandType { return CommandSwap }

// CreateSlotPool opens a USDC/SLOT pool owned by the signer.
type CreateSlotPool struct {
	Meta
	Symbol           string            `json:"symbol"`
	Class            oracle.AssetClass `json:"asset_class"`
	SettlementOffset uint16            `json:"settlement_offset"`
	FeeRateBps       uint64            `json:"fee_rate_bps"`
}

func (*CreateSlotPool) Type() CommandType { return CommandCreateSlotPool }

// AddSlotPoolLiquidity deposits both legs into the pool identified by
// Creator and PoolID.
type AddSlotPoolLiquidity struct {
	Meta
	Creator    address.Address `json:"creator"`
	PoolID     uint64          `json:"pool_id"`
	USDCAmount uint64          `json:"usdc_amount"`
	SlotAmount uint64          `json:"slot_amount"`
}

func (*AddSlotPoolLiquidity) Type() CommandType { return CommandAddSlotPoolLiquidity }

type SwapSlotPool struct {
	Meta
	Creator      address.Address   `json:"creator"`
	PoolID       uint64            `json:"pool_id"`
	AmountIn     uint64            `json:"amount_in"`
	MinAmountOut uint64            `json:"min_amount_out"`
	Direction    amm.SlotDirection `json:"direction"`
}

func (*SwapSlotPool) Type() CommandType { return CommandSwapSlotPool }
