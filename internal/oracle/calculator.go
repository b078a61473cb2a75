package oracle

import (
	fpmath "TroveLedger/internal/math"
)

// Ratio units: CollateralRatio returns value*10^6/debt, so 1_000_000 means
// exactly 100% collateralization and 1% == RatioPercent.
const (
	RatioPercent = 10_000

	// LiquidationThresholdRatio is the fixed eligibility bound for
	// liquidation: troves below 110% may be liquidated regardless of the
	// configured open/borrow minimum.
	LiquidationThresholdRatio = 110 * RatioPercent
)

// CollateralValue converts a raw token amount into micro-USD:
// value = amount * price / 10^decimal, 128-bit intermediate, floor.
// The decimal exponent must already be adjusted for the token's native
// decimals and the quote's price exponent (see AdjustedDecimal).
func CollateralValue(amount, price uint64, decimal uint8) (uint64, error) {
	divisor, err := fpmath.Pow10(decimal)
	if err != nil {
		return 0, err
	}
	return fpmath.MulDiv(amount, price, divisor)
}

// CollateralRatio computes ratio = collateralValue * 10^6 / debt.
// Zero debt is a caller error (a debt-free trove has no meaningful ratio);
// it reports ErrDivideByZero rather than inventing a sentinel.
func CollateralRatio(collateralValue, debt uint64) (uint64, error) {
	return fpmath.MulDiv(collateralValue, 1_000_000, debt)
}

// AdjustedDecimal combines a token's native decimals with the oracle price
// exponent so CollateralValue yields micro-USD (6 decimals):
// adjusted = tokenDecimals + priceExponent - 6.
// A combination that would go negative reports ErrInvalidDecimal.
func AdjustedDecimal(tokenDecimals, priceExponent uint8) (uint8, error) {
	sum := int(tokenDecimals) + int(priceExponent) - 6
	if sum < 0 || sum > 19 {
		return 0, fpmath.ErrInvalidDecimal
	}
	return uint8(sum), nil
}
