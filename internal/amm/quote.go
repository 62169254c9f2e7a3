// Package amm implements the constant-product pools: the LONG/SHORT pool
// with LP shares and the simplified settlement-slot/USDC pool.
package amm

import (
	"CfdLedger/internal/fault"
	"CfdLedger/internal/math"
)

// MaxFeeBps caps any pool fee at 10%.
const MaxFeeBps uint64 = 1_000

// Quote is the result of pricing a swap against two reserves.
type Quote struct {
	AmountIn    uint64 `json:"amount_in"`
	Fee         uint64 `json:"fee"`
	AmountInNet uint64 `json:"amount_in_net"`
	AmountOut   uint64 `json:"amount_out"`
}

// QuoteExactIn prices amountIn against (reserveIn, reserveOut):
// fee = in * feeBps / 10000, out = net * reserveOut / (reserveIn + net).
// Intermediates are 256-bit.
func QuoteExactIn(amountIn, reserveIn, reserveOut, feeBps uint64) (Quote, error) {
	if feeBps > math.BpsDenominator {
		return Quote{}, fault.New(fault.InvalidFeeRate, "fee %d bps", feeBps)
	}
	fee, err := math.ApplyBps(amountIn, feeBps)
	if err != nil {
		return Quote{}, err
	}
	net := amountIn - fee
	q := Quote{AmountIn: amountIn, Fee: fee, AmountInNet: net}
	if net == 0 {
		return q, nil
	}
	denom, err := math.CheckedAdd(reserveIn, net)
	if err != nil {
		return Quote{}, err
	}
	q.AmountOut, err = math.MulDiv(net, reserveOut, denom)
	if err != nil {
		return Quote{}, err
	}
	return q, nil
}

// SplitFee divides a swap fee into protocol and LP parts in the ratio
// protocolBps:swapBps.
func SplitFee(fee, protocolBps, swapBps uint64) (protocolFee, lpFee uint64, err error) {
	if swapBps == 0 {
		return 0, fee, nil
	}
	protocolFee, err = math.MulDiv(fee, protocolBps, swapBps)
	if err != nil {
		return 0, 0, err
	}
	if protocolFee > fee {
		protocolFee = fee
	}
	return protocolFee, fee - protocolFee, nil
}
