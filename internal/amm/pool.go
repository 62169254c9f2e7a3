package amm

import (
	"fmt"

	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/ledger"
	"CfdLedger/internal/math"
	"CfdLedger/internal/store"
)

const (
	KindPool       = "amm_pool"
	KindLPPosition = "lp_position"

	DefaultSwapFeeBps     uint64 = 20
	DefaultProtocolFeeBps uint64 = 5
)

// Direction selects which reserve a swap pays into.
type Direction uint8

const (
	LongToShort Direction = iota
	ShortToLong
)

func (d Direction) String() string {
	if d == ShortToLong {
		return "short_to_long"
	}
	return "long_to_short"
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "long_to_short":
		*d = LongToShort
	case "short_to_long":
		*d = ShortToLong
	default:
		return fmt.Errorf("unknown swap direction %q", text)
	}
	return nil
}

// Pool is the LONG/SHORT constant-product pool.
type Pool struct {
	Key                 address.Address `json:"key"`
	Admin               address.Address `json:"admin"`
	LongVault           address.Address `json:"long_vault"`
	ShortVault          address.Address `json:"short_vault"`
	LongReserve         uint64          `json:"long_reserve"`
	ShortReserve        uint64          `json:"short_reserve"`
	LPSupply            uint64          `json:"lp_supply"`
	SwapFeeBps          uint64          `json:"swap_fee_bps"`
	ProtocolFeeBps      uint64          `json:"protocol_fee_bps"`
	TotalFeesCollected  uint64          `json:"total_fees_collected"`
	TotalVolume         uint64          `json:"total_volume"`
	ProtocolFeesAccrued uint64          `json:"protocol_fees_accrued"`
}

func (p *Pool) Kind() string { return KindPool }

func (p *Pool) Clone() store.Record {
	cp := *p
	return &cp
}

// LPPosition is an owner's LP share record.
type LPPosition struct {
	Owner         address.Address `json:"owner"`
	LPTokens      uint64          `json:"lp_tokens"`
	FeeCheckpoint uint64          `json:"fee_checkpoint"`
}

func (l *LPPosition) Kind() string { return KindLPPosition }

func (l *LPPosition) Clone() store.Record {
	cp := *l
	return &cp
}

// ValidateFees checks protocol <= swap <= MaxFeeBps.
func ValidateFees(swapFeeBps, protocolFeeBps uint64) error {
	if swapFeeBps > MaxFeeBps {
		return fault.New(fault.InvalidFeeRate, "swap fee %d bps > %d", swapFeeBps, MaxFeeBps)
	}
	if protocolFeeBps > swapFeeBps {
		return fault.New(fault.InvalidFeeRate, "protocol fee %d bps > swap fee %d bps", protocolFeeBps, swapFeeBps)
	}
	return nil
}

// NewPool creates an empty pool with the default fees.
func NewPool(key, admin, longVault, shortVault address.Address) *Pool {
	return &Pool{
		Key:            key,
		Admin:          admin,
		LongVault:      longVault,
		ShortVault:     shortVault,
		SwapFeeBps:     DefaultSwapFeeBps,
		ProtocolFeeBps: DefaultProtocolFeeBps,
	}
}

// SetFees changes the fee schedule. Admin only.
func (p *Pool) SetFees(caller address.Address, swapFeeBps, protocolFeeBps uint64) error {
	if caller != p.Admin {
		return fault.New(fault.Unauthorized, "pool admin is %s", p.Admin)
	}
	if err := ValidateFees(swapFeeBps, protocolFeeBps); err != nil {
		return err
	}
	p.SwapFeeBps = swapFeeBps
	p.ProtocolFeeBps = protocolFeeBps
	return nil
}

// LPMinted returns the LP tokens a deposit of (amountLong, amountShort) earns.
// The first deposit mints sqrt(a*b); later deposits mint the smaller of the
// two proportional shares.
func (p *Pool) LPMinted(amountLong, amountShort uint64) (uint64, error) {
	if p.LPSupply == 0 {
		return math.SqrtProduct(amountLong, amountShort), nil
	}
	byLong, err := math.MulDiv(amountLong, p.LPSupply, p.LongReserve)
	if err != nil {
		return 0, err
	}
	byShort, err := math.MulDiv(amountShort, p.LPSupply, p.ShortReserve)
	if err != nil {
		return 0, err
	}
	return math.Min(byLong, byShort), nil
}

// AddLiquidityResult describes a deposit.
type AddLiquidityResult struct {
	LPMinted uint64 `json:"lp_minted"`
}

// AddLiquidity deposits both legs and mints LP tokens to owner. lp is the
// owner's LP record and is updated in place.
func (p *Pool) AddLiquidity(host ledger.Host, lp *LPPosition, owner address.Address, amountLong, amountShort, minLPOut uint64) (AddLiquidityResult, error) {
	minted, err := p.LPMinted(amountLong, amountShort)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	if minted < minLPOut {
		return AddLiquidityResult{}, fault.New(fault.SlippageExceeded, "lp minted %d < min %d", minted, minLPOut)
	}

	longReserve, err := math.CheckedAdd(p.LongReserve, amountLong)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	shortReserve, err := math.CheckedAdd(p.ShortReserve, amountShort)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	supply, err := math.CheckedAdd(p.LPSupply, minted)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	held, err := math.CheckedAdd(lp.LPTokens, minted)
	if err != nil {
		return AddLiquidityResult{}, err
	}

	if err := host.Transfer(ledger.UserAccount(owner, ledger.AssetLong), ledger.VaultAccount(p.LongVault, ledger.AssetLong), amountLong, owner); err != nil {
		return AddLiquidityResult{}, err
	}
	if err := host.Transfer(ledger.UserAccount(owner, ledger.AssetShort), ledger.VaultAccount(p.ShortVault, ledger.AssetShort), amountShort, owner); err != nil {
		return AddLiquidityResult{}, err
	}
	if err := host.Mint(ledger.UserAccount(owner, ledger.AssetLP), minted, p.Key); err != nil {
		return AddLiquidityResult{}, err
	}

	p.LongReserve = longReserve
	p.ShortReserve = shortReserve
	p.LPSupply = supply

	lp.Owner = owner
	lp.LPTokens = held
	lp.FeeCheckpoint = p.TotalFeesCollected

	return AddLiquidityResult{LPMinted: minted}, nil
}

// SwapResult describes an executed swap.
type SwapResult struct {
	Quote       Quote  `json:"quote"`
	ProtocolFee uint64 `json:"protocol_fee"`
	LPFee       uint64 `json:"lp_fee"`
}

func (p *Pool) legs(dir Direction) (inAsset, outAsset ledger.AssetID, inVault, outVault address.Address, reserveIn, reserveOut *uint64) {
	if dir == ShortToLong {
		return ledger.AssetShort, ledger.AssetLong, p.ShortVault, p.LongVault, &p.ShortReserve, &p.LongReserve
	}
	return ledger.AssetLong, ledger.AssetShort, p.LongVault, p.ShortVault, &p.LongReserve, &p.ShortReserve
}

// Swap trades amountIn of one side for the other at the constant-product
// quote. Reserves move by the full input and the quoted output.
func (p *Pool) Swap(host ledger.Host, trader address.Address, amountIn, minAmountOut uint64, dir Direction) (SwapResult, error) {
	inAsset, outAsset, inVault, outVault, reserveIn, reserveOut := p.legs(dir)

	q, err := QuoteExactIn(amountIn, *reserveIn, *reserveOut, p.SwapFeeBps)
	if err != nil {
		return SwapResult{}, err
	}
	if q.AmountOut < minAmountOut {
		return SwapResult{}, fault.New(fault.SlippageExceeded, "amount out %d < min %d", q.AmountOut, minAmountOut)
	}
	protocolFee, lpFee, err := SplitFee(q.Fee, p.ProtocolFeeBps, p.SwapFeeBps)
	if err != nil {
		return SwapResult{}, err
	}

	newIn, err := math.CheckedAdd(*reserveIn, amountIn)
	if err != nil {
		return SwapResult{}, err
	}
	fees, err := math.CheckedAdd(p.TotalFeesCollected, lpFee)
	if err != nil {
		return SwapResult{}, err
	}
	volume, err := math.CheckedAdd(p.TotalVolume, amountIn)
	if err != nil {
		return SwapResult{}, err
	}
	accrued, err := math.CheckedAdd(p.ProtocolFeesAccrued, protocolFee)
	if err != nil {
		return SwapResult{}, err
	}

	if err := host.Transfer(ledger.UserAccount(trader, inAsset), ledger.VaultAccount(inVault, inAsset), amountIn, trader); err != nil {
		return SwapResult{}, err
	}
	if err := host.Transfer(ledger.VaultAccount(outVault, outAsset), ledger.UserAccount(trader, outAsset), q.AmountOut, p.Key); err != nil {
		return SwapResult{}, err
	}

	*reserveIn = newIn
	*reserveOut -= q.AmountOut
	p.TotalFeesCollected = fees
	p.TotalVolume = volume
	p.ProtocolFeesAccrued = accrued

	return SwapResult{Quote: q, ProtocolFee: protocolFee, LPFee: lpFee}, nil
}
