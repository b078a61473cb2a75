// Package state holds the in-memory protocol state mutated by the
// deterministic core: the global protocol aggregates, per-user troves and
// collateral positions, per-denomination totals and redistribution
// accumulators, and the stability-pool books. Nothing here is a process-wide
// singleton — everything hangs off injected structs so tests can build
// isolated states.
package state

import (
	"math/big"

	fpmath "TroveLedger/internal/math"
)

// Protocol constants carried over from the on-chain deployment.
const (
	// MinimumLoanAmount is the smallest debt a trove may carry (and the
	// smallest partial stability-pool withdrawal), in stablecoin base units.
	MinimumLoanAmount = 1_000_000_000_000_000

	// MinimumCollateralAmount is the smallest collateral position, in raw
	// token base units.
	MinimumCollateralAmount = 1_000_000

	// DefaultMinimumCollateralRatio is the open/borrow minimum, plain percent.
	DefaultMinimumCollateralRatio = 115

	// DefaultProtocolFeePercent is taken from every newly minted loan.
	DefaultProtocolFeePercent = 5

	// MaxLiquidationBatchSize bounds one liquidation request.
	MaxLiquidationBatchSize = 50
)

// ProtocolState is the global aggregate record. pFactor starts at
// ScaleFactor and only ever shrinks within an epoch; epoch increments each
// time the stability pool fully depletes.
type ProtocolState struct {
	TotalDebt  uint64
	TotalStake uint64
	PFactor    *big.Int
	Epoch      uint64

	// MinimumCollateralRatio is stored in ratio units (percent * 10_000),
	// converted from the plain-percent configuration value.
	MinimumCollateralRatio uint64

	// ProtocolFeePercent of each minted loan routed to the fee account.
	ProtocolFeePercent uint64
}

// NewProtocolState builds a fresh state with the given plain-percent minimum
// ratio and fee percent (zero values select the defaults).
func NewProtocolState(minRatioPercent, feePercent uint64) *ProtocolState {
	if minRatioPercent == 0 {
		minRatioPercent = DefaultMinimumCollateralRatio
	}
	if feePercent == 0 {
		feePercent = DefaultProtocolFeePercent
	}
	return &ProtocolState{
		PFactor:                fpmath.ScaleBig(),
		MinimumCollateralRatio: minRatioPercent * 10_000,
		ProtocolFeePercent:     feePercent,
	}
}
