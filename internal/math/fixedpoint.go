package math

import (
	"sort"

	"github.com/holiman/uint256"

	"CfdLedger/internal/fault"
)

const (
	// MicroScale is the fixed-point scale of every monetary amount (1e6).
	MicroScale uint64 = 1_000_000

	// BpsDenominator is the number of basis points in 1.
	BpsDenominator uint64 = 10_000
)

// MulDiv computes floor(a * b / d) with a 256-bit intermediate product.
// It fails with MathOverflow when d is zero or the quotient does not fit in
// 64 bits.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, fault.New(fault.MathOverflow, "division by zero in %d*%d/%d", a, b, d)
	}
	var z uint256.Int
	_, overflow := z.MulDivOverflow(uint256.NewInt(a), uint256.NewInt(b), uint256.NewInt(d))
	if overflow || !z.IsUint64() {
		return 0, fault.New(fault.MathOverflow, "%d*%d/%d exceeds 64 bits", a, b, d)
	}
	return z.Uint64(), nil
}

// ApplyBps returns floor(amount * bps / 10000).
func ApplyBps(amount, bps uint64) (uint64, error) {
	return MulDiv(amount, bps, BpsDenominator)
}

// CheckedAdd returns a + b or MathOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	s := a + b
	if s < a {
		return 0, fault.New(fault.MathOverflow, "%d + %d overflows", a, b)
	}
	return s, nil
}

// CheckedSub returns a - b or MathOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fault.New(fault.MathOverflow, "%d - %d underflows", a, b)
	}
	return a - b, nil
}

// CheckedMul returns a * b or MathOverflow.
func CheckedMul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := a * b
	if p/b != a {
		return 0, fault.New(fault.MathOverflow, "%d * %d overflows", a, b)
	}
	return p, nil
}

// SqrtProduct returns floor(sqrt(a * b)). The result always fits in 64 bits.
func SqrtProduct(a, b uint64) uint64 {
	var p uint256.Int
	p.Mul(uint256.NewInt(a), uint256.NewInt(b))
	return new(uint256.Int).Sqrt(&p).Uint64()
}

// AbsDiff returns |a - b| and whether a >= b.
func AbsDiff(a, b uint64) (diff uint64, up bool) {
	if a >= b {
		return a - b, true
	}
	return b - a, false
}

// Average returns floor((a + b) / 2) without overflowing.
func Average(a, b uint64) uint64 {
	return a/2 + b/2 + (a%2+b%2)/2
}

// MedianNonZero returns the median of the non-zero values. Zero entries are
// absent observations. An even count averages the two middle values; no
// observations yields zero.
func MedianNonZero(values ...uint64) uint64 {
	present := make([]uint64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return 0
	}
	sort.Slice(present, func(i, j int) bool { return present[i] < present[j] })

	mid := len(present) / 2
	if len(present)%2 == 0 {
		return Average(present[mid-1], present[mid])
	}
	return present[mid]
}

// Min returns the smaller of a and b.
func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
