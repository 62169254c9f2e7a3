package state

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/ledger"
)

// OpenRequest is the input of OpenPosition.
type OpenRequest struct {
	Owner    address.Address
	Side     Side
	Size     uint64
	Leverage uint8
}

// OpenPosition locks size/leverage collateral in the market vault, mints
// size position tokens to the owner and returns the owner's new position.
// An existing position of the owner is replaced by the caller.
func OpenPosition(m *Market, host ledger.Host, req OpenRequest) (*Position, error) {
	if m.Status != MarketStatusActive {
		return nil, fault.New(fault.MarketNotActive, "market status %s", m.Status)
	}
	if req.Leverage < MinLeverage || req.Leverage > MaxLeverage {
		return nil, fault.New(fault.InvalidLeverage, "leverage %d", req.Leverage)
	}
	if !req.Side.Valid() {
		return nil, fault.New(fault.InvalidAssetType, "side %d", req.Side)
	}
	if req.Size == 0 {
		return nil, fault.New(fault.ZeroAmount, "position size")
	}

	collateral := req.Size / uint64(req.Leverage)

	if err := host.Transfer(
		ledger.UserAccount(req.Owner, ledger.AssetUSDC),
		ledger.VaultAccount(m.CollateralVault, ledger.AssetUSDC),
		collateral, req.Owner,
	); err != nil {
		return nil, err
	}
	if err := host.Mint(ledger.UserAccount(req.Owner, req.Side.Asset()), req.Size, m.Key); err != nil {
		return nil, err
	}

	return &Position{
		Owner:        req.Owner,
		Side:         req.Side,
		Size:         req.Size,
		EntryPrice:   m.T0Price,
		MintedTokens: req.Size,
		Leverage:     req.Leverage,
		Collateral:   collateral,
	}, nil
}

// LiquidationResult describes a completed liquidation.
type LiquidationResult struct {
	Snapshot       MarginSnapshot
	Bonus          uint64
	OwnerRemainder uint64
	TokensBurned   uint64
}

// LiquidationBonusDivisor gives the liquidator 1/100 of the remaining value.
const LiquidationBonusDivisor uint64 = 100

// Liquidate force-closes p when its collateral ratio at oraclePrice is under
// maintenance. The liquidator receives 1% of the current collateral value,
// the owner the rest, both from the vault. The position tokens are burned
// under the liquidator's authority.
func Liquidate(m *Market, p *Position, host ledger.Host, liquidator address.Address, oraclePrice, height uint64) (LiquidationResult, error) {
	if p.Liquidated {
		return LiquidationResult{}, fault.New(fault.PositionAlreadyLiquidated, "liquidated at height %d", p.LiquidatedHeight)
	}

	snap, err := MarkToMarket(p, oraclePrice)
	if err != nil {
		return LiquidationResult{}, err
	}
	if !snap.Liquidatable() {
		return LiquidationResult{}, fault.New(fault.PositionHealthy, "collateral ratio %d bps >= %d", snap.CollateralRatioBps, MaintenanceRatioBps)
	}

	p.Liquidated = true
	p.LiquidatedHeight = height

	bonus := snap.CurrentCollateralValue / LiquidationBonusDivisor
	remainder := snap.CurrentCollateralValue - bonus
	vault := ledger.VaultAccount(m.CollateralVault, ledger.AssetUSDC)

	if bonus > 0 {
		if err := host.Transfer(vault, ledger.UserAccount(liquidator, ledger.AssetUSDC), bonus, m.Key); err != nil {
			return LiquidationResult{}, err
		}
	}
	if remainder > 0 {
		if err := host.Transfer(vault, ledger.UserAccount(p.Owner, ledger.AssetUSDC), remainder, m.Key); err != nil {
			return LiquidationResult{}, err
		}
	}
	if err := host.Burn(p.TokenAccount(), p.MintedTokens, liquidator); err != nil {
		return LiquidationResult{}, err
	}

	return LiquidationResult{
		Snapshot:       snap,
		Bonus:          bonus,
		OwnerRemainder: remainder,
		TokensBurned:   p.MintedTokens,
	}, nil
}

// SettlementResult describes a settled position.
type SettlementResult struct {
	Payout       uint64 `json:"payout"`
	TokensBurned uint64 `json:"tokens_burned"`
}

// SettlementPnL is |t2 - t0| * size / t0 when the move favors side, else 0.
func SettlementPnL(m *Market, p *Position) (uint64, error) {
	pnl, err := UnrealizedPnL(p.Side, p.Size, m.T0Price, m.T2Price)
	if err != nil {
		return 0, err
	}
	if pnl.Loss {
		return 0, nil
	}
	return pnl.Amount, nil
}

// Settle pays a favorable settlement PnL from the vault and burns the
// position's tokens. Collateral is not refunded. The caller closes the
// position record afterwards.
func Settle(m *Market, p *Position, host ledger.Host) (SettlementResult, error) {
	if m.Status != MarketStatusSettled {
		return SettlementResult{}, fault.New(fault.MarketNotSettled, "market status %s", m.Status)
	}
	if p.Liquidated {
		return SettlementResult{}, fault.New(fault.PositionAlreadyLiquidated, "liquidated at height %d", p.LiquidatedHeight)
	}

	payout, err := SettlementPnL(m, p)
	if err != nil {
		return SettlementResult{}, err
	}
	if payout > 0 {
		if err := host.Transfer(
			ledger.VaultAccount(m.CollateralVault, ledger.AssetUSDC),
			ledger.UserAccount(p.Owner, ledger.AssetUSDC),
			payout, m.Key,
		); err != nil {
			return SettlementResult{}, err
		}
	}
	if err := host.Burn(p.TokenAccount(), p.MintedTokens, p.Owner); err != nil {
		return SettlementResult{}, err
	}
	return SettlementResult{Payout: payout, TokensBurned: p.MintedTokens}, nil
}
