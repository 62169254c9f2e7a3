package amm

import (
	"fmt"

	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/ledger"
	"CfdLedger/internal/math"
	"CfdLedger/internal/oracle"
	"CfdLedger/internal/store"
)

const (
	KindSlotPool = "settlement_pool"

	// MaxSettlementOffset is the longest settlement delay, in days.
	MaxSettlementOffset uint16 = 365
)

// SlotDirection selects the leg a slot-pool swap pays into.
type SlotDirection uint8

const (
	USDCToSlot SlotDirection = iota
	SlotToUSDC
)

func (d SlotDirection) String() string {
	if d == SlotToUSDC {
		return "slot_to_usdc"
	}
	return "usdc_to_slot"
}

func (d SlotDirection) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *SlotDirection) UnmarshalText(text []byte) error {
	switch string(text) {
	case "usdc_to_slot":
		*d = USDCToSlot
	case "slot_to_usdc":
		*d = SlotToUSDC
	default:
		return fmt.Errorf("unknown slot swap direction %q", text)
	}
	return nil
}

// SlotPool is the USDC/SLOT pool of one settlement-slot market. It has no LP
// shares: only two reserves and a flat fee.
type SlotPool struct {
	Key              address.Address   `json:"key"`
	ID               uint64            `json:"pool_id"`
	Creator          address.Address   `json:"creator"`
	Symbol           string            `json:"symbol"`
	Class            oracle.AssetClass `json:"asset_class"`
	SettlementOffset uint16            `json:"settlement_offset"`
	USDCVault        address.Address   `json:"usdc_vault"`
	SlotVault        address.Address   `json:"slot_vault"`
	USDCReserve      uint64            `json:"usdc_reserve"`
	SlotReserve      uint64            `json:"slot_reserve"`
	FeeRateBps       uint64            `json:"fee_rate_bps"`
	TotalVolume      uint64            `json:"total_volume"`
	CreatedHeight    uint64            `json:"created_height"`
	IsActive         bool              `json:"is_active"`
}

func (s *SlotPool) Kind() string { return KindSlotPool }

func (s *SlotPool) Clone() store.Record {
	cp := *s
	return &cp
}

// SlotPoolParams is the input of NewSlotPool.
type SlotPoolParams struct {
	Key              address.Address
	Creator          address.Address
	USDCVault        address.Address
	SlotVault        address.Address
	Symbol           string
	Class            oracle.AssetClass
	SettlementOffset uint16
	FeeRateBps       uint64
}

// NewSlotPool validates and creates an active pool. Its id is the creation
// height.
func NewSlotPool(p SlotPoolParams, height uint64) (*SlotPool, error) {
	if err := oracle.ValidateAsset(p.Symbol, p.Class); err != nil {
		return nil, err
	}
	if p.SettlementOffset > MaxSettlementOffset {
		return nil, fault.New(fault.InvalidSettlementTime, "offset %d > %d", p.SettlementOffset, MaxSettlementOffset)
	}
	if p.FeeRateBps > MaxFeeBps {
		return nil, fault.New(fault.InvalidFeeRate, "fee %d bps > %d", p.FeeRateBps, MaxFeeBps)
	}
	return &SlotPool{
		Key:              p.Key,
		ID:               height,
		Creator:          p.Creator,
		Symbol:           p.Symbol,
		Class:            p.Class,
		SettlementOffset: p.SettlementOffset,
		USDCVault:        p.USDCVault,
		SlotVault:        p.SlotVault,
		FeeRateBps:       p.FeeRateBps,
		CreatedHeight:    height,
		IsActive:         true,
	}, nil
}

// AddLiquidity moves both legs from provider into the pool vaults.
func (s *SlotPool) AddLiquidity(host ledger.Host, provider address.Address, usdcAmount, slotAmount uint64) error {
	usdc, err := math.CheckedAdd(s.USDCReserve, usdcAmount)
	if err != nil {
		return err
	}
	slots, err := math.CheckedAdd(s.SlotReserve, slotAmount)
	if err != nil {
		return err
	}
	if err := host.Transfer(ledger.UserAccount(provider, ledger.AssetUSDC), ledger.VaultAccount(s.USDCVault, ledger.AssetUSDC), usdcAmount, provider); err != nil {
		return err
	}
	if err := host.Transfer(ledger.UserAccount(provider, ledger.AssetSlot), ledger.VaultAccount(s.SlotVault, ledger.AssetSlot), slotAmount, provider); err != nil {
		return err
	}
	s.USDCReserve = usdc
	s.SlotReserve = slots
	return nil
}

// Swap trades against the pool at the constant-product quote with the
// pool's flat fee.
func (s *SlotPool) Swap(host ledger.Host, trader address.Address, amountIn, minAmountOut uint64, dir SlotDirection) (Quote, error) {
	if !s.IsActive {
		return Quote{}, fault.New(fault.PoolInactive, "pool %d", s.ID)
	}

	inAsset, outAsset := ledger.AssetUSDC, ledger.AssetSlot
	inVault, outVault := s.USDCVault, s.SlotVault
	reserveIn, reserveOut := &s.USDCReserve, &s.SlotReserve
	if dir == SlotToUSDC {
		inAsset, outAsset = outAsset, inAsset
		inVault, outVault = outVault, inVault
		reserveIn, reserveOut = reserveOut, reserveIn
	}

	q, err := QuoteExactIn(amountIn, *reserveIn, *reserveOut, s.FeeRateBps)
	if err != nil {
		return Quote{}, err
	}
	if q.AmountOut < minAmountOut {
		return Quote{}, fault.New(fault.InsufficientOutputAmount, "amount out %d < min %d", q.AmountOut, minAmountOut)
	}
	newIn, err := math.CheckedAdd(*reserveIn, amountIn)
	if err != nil {
		return Quote{}, err
	}
	volume, err := math.CheckedAdd(s.TotalVolume, amountIn)
	if err != nil {
		return Quote{}, err
	}

	if err := host.Transfer(ledger.UserAccount(trader, inAsset), ledger.VaultAccount(inVault, inAsset), amountIn, trader); err != nil {
		return Quote{}, err
	}
	if err := host.Transfer(ledger.VaultAccount(outVault, outAsset), ledger.UserAccount(trader, outAsset), q.AmountOut, s.Key); err != nil {
		return Quote{}, err
	}

	*reserveIn = newIn
	*reserveOut -= q.AmountOut
	s.TotalVolume = volume
	return q, nil
}
