package trove

import (
	"fmt"

	fpmath "TroveLedger/internal/math"
	"TroveLedger/internal/state"
)

// PendingRewards computes the user's unapplied redistribution deltas since
// their last snapshot, without mutating anything:
//
//	pending = (L_now - L_snapshot) * userCollateral / SCALE
//
// for both the debt and collateral accumulators of the position's denom.
func PendingRewards(t *state.Trove, c *state.CollateralPosition, totals *state.CollateralTotals) (pendingDebt, pendingColl uint64, err error) {
	if c.Amount == 0 {
		return 0, 0, nil
	}

	pendingDebt, err = fpmath.DeltaMulDivScale(totals.LDebt, t.DebtSnapshot, c.Amount)
	if err != nil {
		return 0, 0, fmt.Errorf("pending debt: %w", err)
	}

	pendingColl, err = fpmath.DeltaMulDivScale(totals.LCollateral, c.CollateralSnapshot, c.Amount)
	if err != nil {
		return 0, 0, fmt.Errorf("pending collateral: %w", err)
	}

	return pendingDebt, pendingColl, nil
}

// ApplyPendingRedistribution folds the user's pending redistribution rewards
// into their live debt and collateral and refreshes both snapshots to the
// current accumulator values. It runs before any other validation in every
// trove-mutating operation, and is idempotent: a second call with no
// intervening liquidation is a no-op.
func ApplyPendingRedistribution(t *state.Trove, c *state.CollateralPosition, totals *state.CollateralTotals) error {
	pendingDebt, pendingColl, err := PendingRewards(t, c, totals)
	if err != nil {
		return err
	}

	if pendingDebt > 0 {
		t.Debt, err = fpmath.CheckedAdd(t.Debt, pendingDebt)
		if err != nil {
			return fmt.Errorf("apply pending debt: %w", err)
		}
	}
	if pendingColl > 0 {
		c.Amount, err = fpmath.CheckedAdd(c.Amount, pendingColl)
		if err != nil {
			return fmt.Errorf("apply pending collateral: %w", err)
		}
	}

	t.DebtSnapshot.Set(totals.LDebt)
	c.CollateralSnapshot.Set(totals.LCollateral)
	return nil
}

// Redistribute spreads an uncovered liquidation shortfall across all
// remaining open troves in O(1) by advancing the per-denomination
// accumulators:
//
//	L_debt       += uncoveredDebt          * SCALE / totalRemainingCollateral
//	L_collateral += redistributedCollateral * SCALE / totalRemainingCollateral
//
// The caller must already have removed the liquidated trove's collateral
// from totals.Amount, so totals.Amount is exactly the remaining troves'
// collateral. The redistributed collateral is added back to the aggregate
// afterwards, since it now (lazily) belongs to the remaining troves.
func Redistribute(totals *state.CollateralTotals, uncoveredDebt, redistributedCollateral uint64) error {
	if totals.Amount == 0 {
		// No remaining troves to absorb the shortfall. This is an
		// arithmetic-level fault: the protocol cannot account for the
		// debt anywhere.
		return fmt.Errorf("redistribute %s: %w", totals.Denom, fpmath.ErrDivideByZero)
	}

	debtAdvance, err := fpmath.MulScaleDiv(uncoveredDebt, totals.Amount)
	if err != nil {
		return fmt.Errorf("redistribute debt: %w", err)
	}
	collAdvance, err := fpmath.MulScaleDiv(redistributedCollateral, totals.Amount)
	if err != nil {
		return fmt.Errorf("redistribute collateral: %w", err)
	}

	totals.LDebt.Add(totals.LDebt, debtAdvance)
	totals.LCollateral.Add(totals.LCollateral, collAdvance)

	totals.Amount, err = fpmath.CheckedAdd(totals.Amount, redistributedCollateral)
	if err != nil {
		return fmt.Errorf("redistribute totals: %w", err)
	}
	return nil
}
