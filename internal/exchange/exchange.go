// Package exchange abstracts the local swap venue a fund uses to turn
// purchase tokens into basket assets and back.
package exchange

import (
	"fmt"

	amount "IndexBridge/internal/math"
	"IndexBridge/internal/protocol"
)

// Exchange executes an exact-input swap on the local chain. A failed
// swap returns an error and the caller aborts the whole operation;
// partial fills are not representable.
type Exchange interface {
	SwapExact(receiver protocol.Address, amountIn uint64, tokenIn, tokenOut protocol.Address) (uint64, error)
}

// FixedRate swaps at a static price per token pair, expressed as a
// rational numerator/denominator. Used for deterministic settlement in
// environments without a live venue, and by tests.
type FixedRate struct {
	rates map[pair]rate
}

type pair struct {
	in, out protocol.Address
}

type rate struct {
	num, den uint64
}

func NewFixedRate() *FixedRate {
	return &FixedRate{rates: make(map[pair]rate)}
}

// SetRate configures tokenIn -> tokenOut at num/den output per input.
func (f *FixedRate) SetRate(tokenIn, tokenOut protocol.Address, num, den uint64) {
	f.rates[pair{tokenIn, tokenOut}] = rate{num, den}
}

func (f *FixedRate) SwapExact(_ protocol.Address, amountIn uint64, tokenIn, tokenOut protocol.Address) (uint64, error) {
	r, ok := f.rates[pair{tokenIn, tokenOut}]
	if !ok {
		return 0, fmt.Errorf("no rate configured for %s -> %s", tokenIn, tokenOut)
	}
	return amount.MulDiv(amountIn, r.num, r.den)
}

// NoOp passes amounts through unchanged. Stands in where an asset does
// not need conversion, e.g. the purchase token itself appearing in a
// basket.
type NoOp struct{}

func (NoOp) SwapExact(_ protocol.Address, amountIn uint64, _, _ protocol.Address) (uint64, error) {
	return amountIn, nil
}
