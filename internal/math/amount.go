package math

import (
	"github.com/holiman/uint256"

	"IndexBridge/internal/protocol"
)

// Amounts are unsigned fixed-point integers scaled by the underlying
// token's native decimals. All division truncates toward zero; negative
// amounts are not representable.

// MulDiv computes a * b / c with a 256-bit intermediate so the product
// cannot overflow. Returns ErrDivisionByZero when c == 0.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, protocol.ErrDivisionByZero
	}
	num := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	num.Div(num, uint256.NewInt(c))
	return num.Uint64(), nil
}

// Sum adds the given terms with a 256-bit accumulator and reports
// whether the total fits in a uint64.
func Sum(terms []uint64) (uint64, bool) {
	acc := new(uint256.Int)
	for _, t := range terms {
		acc.Add(acc, uint256.NewInt(t))
	}
	if !acc.IsUint64() {
		return 0, false
	}
	return acc.Uint64(), true
}
