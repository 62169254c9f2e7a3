package state

import "CfdLedger/internal/math"

// MaintenanceRatioBps is the collateral ratio below which a position may be
// liquidated.
const MaintenanceRatioBps uint64 = 900

// PnL is a signed profit/loss magnitude.
type PnL struct {
	Amount uint64
	Loss   bool
}

// UnrealizedPnL returns |price - entry| * size / entry, signed by whether
// the move favors side. The product is taken at 256 bits.
func UnrealizedPnL(side Side, size, entry, price uint64) (PnL, error) {
	delta, up := math.AbsDiff(price, entry)
	amount, err := math.MulDiv(delta, size, entry)
	if err != nil {
		return PnL{}, err
	}
	favorable := (side == SideLong) == up
	if delta == 0 {
		favorable = true
	}
	return PnL{Amount: amount, Loss: !favorable}, nil
}

// CurrentCollateralValue returns max(0, collateral + pnl).
func CurrentCollateralValue(collateral uint64, pnl PnL) (uint64, error) {
	if pnl.Loss {
		if pnl.Amount >= collateral {
			return 0, nil
		}
		return collateral - pnl.Amount, nil
	}
	return math.CheckedAdd(collateral, pnl.Amount)
}

// CollateralRatioBps returns value * 10000 / size.
func CollateralRatioBps(value, size uint64) (uint64, error) {
	return math.MulDiv(value, math.BpsDenominator, size)
}

// MarginSnapshot is the mark-to-market view of a position at a price.
type MarginSnapshot struct {
	PnL                    PnL
	CurrentCollateralValue uint64
	CollateralRatioBps     uint64
}

// Liquidatable reports whether the ratio is below maintenance.
func (s MarginSnapshot) Liquidatable() bool {
	return s.CollateralRatioBps < MaintenanceRatioBps
}

// MarkToMarket values p at price.
func MarkToMarket(p *Position, price uint64) (MarginSnapshot, error) {
	pnl, err := UnrealizedPnL(p.Side, p.Size, p.EntryPrice, price)
	if err != nil {
		return MarginSnapshot{}, err
	}
	value, err := CurrentCollateralValue(p.Collateral, pnl)
	if err != nil {
		return MarginSnapshot{}, err
	}
	ratio, err := CollateralRatioBps(value, p.Size)
	if err != nil {
		return MarginSnapshot{}, err
	}
	return MarginSnapshot{PnL: pnl, CurrentCollateralValue: value, CollateralRatioBps: ratio}, nil
}
