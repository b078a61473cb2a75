// Package fpmath provides the checked integer arithmetic used by the trove
// ledger. All monetary math is done on uint64 amounts with 128-bit (big.Int)
// intermediates and floor division — never floating point, so results are
// identical across replicated execution.
package fpmath

import (
	"errors"
	"math"
	"math/big"
	"sync"
)

// ScaleFactor is the fixed-point scale for the Product-Sum accumulators
// (pFactor, sFactor) and the redistribution accumulators (L_debt,
// L_collateral): 10^18.
const ScaleFactor = 1_000_000_000_000_000_000

var (
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrDivideByZero   = errors.New("divide by zero")
	ErrInvalidDecimal = errors.New("invalid decimal exponent")
)

// bigIntPool reduces GC pressure on the hot liquidation/redemption paths.
var bigIntPool = sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigIntPool.Get().(*big.Int)
}

func putBig(x *big.Int) {
	x.SetInt64(0)
	bigIntPool.Put(x)
}

var scaleConst = new(big.Int).SetUint64(ScaleFactor)

// ScaleBig returns a fresh big.Int holding ScaleFactor.
func ScaleBig() *big.Int {
	return new(big.Int).SetUint64(ScaleFactor)
}

// CheckedAdd returns a+b or ErrOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// CheckedSub returns a-b or ErrOverflow on underflow.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// MulDiv computes floor(a * b / c) with a 128-bit intermediate product.
// Returns ErrDivideByZero if c == 0 and ErrOverflow if the quotient does not
// fit in a uint64.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivideByZero
	}

	x := getBig().SetUint64(a)
	y := getBig().SetUint64(b)
	defer putBig(x)
	defer putBig(y)

	x.Mul(x, y)
	x.Quo(x, y.SetUint64(c))

	if !x.IsUint64() {
		return 0, ErrOverflow
	}
	return x.Uint64(), nil
}

// MulDivBig computes floor(a * b / c) where b and c are accumulator values in
// u128 range (pFactor, sFactor deltas). Used for compounded-stake and gain
// math.
func MulDivBig(a uint64, b, c *big.Int) (uint64, error) {
	if c == nil || c.Sign() == 0 {
		return 0, ErrDivideByZero
	}

	x := getBig().SetUint64(a)
	defer putBig(x)

	x.Mul(x, b)
	x.Quo(x, c)

	if x.Sign() < 0 || !x.IsUint64() {
		return 0, ErrOverflow
	}
	return x.Uint64(), nil
}

// MulScaleDiv computes floor(a * ScaleFactor / b) as a fresh big.Int. This is
// the accumulator advance: seized*SCALE/totalStake, uncovered*SCALE/totalCollateral.
func MulScaleDiv(a, b uint64) (*big.Int, error) {
	if b == 0 {
		return nil, ErrDivideByZero
	}

	out := new(big.Int).SetUint64(a)
	out.Mul(out, scaleConst)

	div := getBig().SetUint64(b)
	defer putBig(div)
	out.Quo(out, div)

	return out, nil
}

// DeltaMulDivScale computes floor((hi - lo) * amount / ScaleFactor), the
// pending-reward formula. Accumulators only ever advance, so a negative delta
// reports ErrOverflow (corrupted snapshot).
func DeltaMulDivScale(hi, lo *big.Int, amount uint64) (uint64, error) {
	delta := getBig().Sub(hi, lo)
	defer putBig(delta)

	if delta.Sign() < 0 {
		return 0, ErrOverflow
	}

	x := getBig().SetUint64(amount)
	defer putBig(x)

	x.Mul(x, delta)
	x.Quo(x, scaleConst)

	if !x.IsUint64() {
		return 0, ErrOverflow
	}
	return x.Uint64(), nil
}

// Pow10 returns 10^exp, or ErrInvalidDecimal when exp would push the divisor
// past uint64 range.
func Pow10(exp uint8) (uint64, error) {
	if exp > 19 {
		return 0, ErrInvalidDecimal
	}
	out := uint64(1)
	for i := uint8(0); i < exp; i++ {
		out *= 10
	}
	return out, nil
}
