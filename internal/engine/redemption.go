package engine

import (
	"fmt"

	fpmath "TroveLedger/internal/math"
	"TroveLedger/internal/state"
	"TroveLedger/internal/trove"

	"github.com/google/uuid"
)

// RedemptionEntry is the settled outcome for one trove in a redemption.
type RedemptionEntry struct {
	Owner              uuid.UUID
	DebtRedeemed       uint64
	CollateralSent     uint64
	Closed             bool
	ReturnedCollateral uint64
}

// RedemptionResult is the outcome of one all-or-nothing redemption.
type RedemptionResult struct {
	Denom     string
	Requested uint64
	Redeemed  uint64
	Entries   []RedemptionEntry
}

// redemptionPlan is one staged trove settlement, computed before any
// redemption mutation so the whole operation can be rejected cleanly.
type redemptionPlan struct {
	t     *state.Trove
	c     *state.CollateralPosition
	entry RedemptionEntry
}

// Redeem exchanges amount of stablecoin for collateral of denom, walking the
// caller-supplied candidate list. The list must be sorted by ascending live
// ratio (riskiest first); it is validated, never re-sorted. Troves with no
// debt or no position in denom are skipped, as are troves whose pro-rata
// payout floors to zero. If the list cannot absorb the full amount the whole
// redemption is rejected with no state change beyond pending-redistribution
// application, which is semantically a no-op.
func (e *Engine) Redeem(amount uint64, denom string, candidates []uuid.UUID, opTimestamp int64) (*RedemptionResult, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero redemption", trove.ErrInvalidAmount)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: empty candidate list", trove.ErrInvalidAmount)
	}

	totals := e.book.Totals(denom)
	if totals == nil {
		return nil, fmt.Errorf("%w: %s", trove.ErrUnknownDenom, denom)
	}

	// Pass 1: apply pending rewards, validate ordering, and stage the
	// per-trove settlements without mutating debt or collateral.
	var (
		plans     []redemptionPlan
		remaining = amount
		prevICR   uint64
		ordered   bool
		seen      = make(map[uuid.UUID]struct{})
	)
	for _, owner := range candidates {
		if _, dup := seen[owner]; dup {
			continue
		}
		seen[owner] = struct{}{}

		t := e.book.Trove(owner)
		if t == nil || t.Debt == 0 {
			continue
		}
		c := e.book.Collateral(owner, denom)
		if c == nil || c.Amount == 0 {
			continue
		}
		if err := trove.ApplyPendingRedistribution(t, c, totals); err != nil {
			return nil, err
		}

		icr, err := e.troveICR(t.Debt, c.Amount, totals, opTimestamp)
		if err != nil {
			return nil, err
		}
		if ordered && icr < prevICR {
			return nil, fmt.Errorf("%w: ICR %d after %d", trove.ErrInvalidSortOrder, icr, prevICR)
		}
		prevICR, ordered = icr, true

		if remaining == 0 {
			continue
		}

		redeem := remaining
		if t.Debt < redeem {
			redeem = t.Debt
		}
		collateralToSend, err := fpmath.MulDiv(c.Amount, redeem, t.Debt)
		if err != nil {
			return nil, err
		}
		if collateralToSend == 0 {
			continue
		}

		plan := redemptionPlan{
			t: t,
			c: c,
			entry: RedemptionEntry{
				Owner:          owner,
				DebtRedeemed:   redeem,
				CollateralSent: collateralToSend,
			},
		}
		if redeem == t.Debt {
			plan.entry.Closed = true
			plan.entry.ReturnedCollateral = c.Amount - collateralToSend
		}
		plans = append(plans, plan)
		remaining -= redeem
	}

	if remaining != 0 {
		return nil, fmt.Errorf("%w: %d of %d unredeemed", trove.ErrInsufficientCollateral, remaining, amount)
	}

	// Pass 2: commit the staged settlements.
	result := &RedemptionResult{Denom: denom, Requested: amount, Redeemed: amount}
	for _, plan := range plans {
		leaving := plan.entry.CollateralSent + plan.entry.ReturnedCollateral

		newTotal, err := fpmath.CheckedSub(totals.Amount, leaving)
		if err != nil {
			return nil, err
		}
		newTotalDebt, err := fpmath.CheckedSub(e.protocol.TotalDebt, plan.entry.DebtRedeemed)
		if err != nil {
			return nil, err
		}

		plan.t.Debt -= plan.entry.DebtRedeemed
		plan.c.Amount -= leaving
		totals.Amount = newTotal
		e.protocol.TotalDebt = newTotalDebt

		if plan.entry.Closed {
			plan.t.CachedICR = 0
		} else {
			icr, err := e.troveICR(plan.t.Debt, plan.c.Amount, totals, opTimestamp)
			if err != nil {
				return nil, err
			}
			plan.t.CachedICR = icr
		}
		plan.t.Version++
		plan.c.Version++

		result.Entries = append(result.Entries, plan.entry)
	}
	return result, nil
}
