package trove_test

import (
	"errors"
	"math/big"
	"testing"

	fpmath "TroveLedger/internal/math"
	"TroveLedger/internal/state"
	"TroveLedger/internal/trove"

	"github.com/google/uuid"
)

// survivor builds a book with one open trove holding coll units so the
// accumulators have something to advance over.
func survivor(t *testing.T, debt, coll uint64) (*state.TroveBook, *state.Trove, *state.CollateralPosition, *state.CollateralTotals) {
	t.Helper()

	book := state.NewTroveBook()
	totals := book.RegisterDenom(testDenom, 6)

	owner := uuid.New()
	tr := book.EnsureTrove(owner)
	tr.Debt = debt
	c := book.EnsureCollateral(owner, testDenom)
	c.Amount = coll
	totals.Amount = coll

	return book, tr, c, totals
}

func TestRedistribute_AdvancesAccumulators(t *testing.T) {
	_, _, _, totals := survivor(t, 1_000, 1_000)

	if err := trove.Redistribute(totals, 500, 200); err != nil {
		t.Fatalf("Redistribute: %v", err)
	}

	// L_debt += 500*SCALE/1000 = SCALE/2; L_coll += 200*SCALE/1000 = SCALE/5.
	wantDebt := new(big.Int).Div(fpmath.ScaleBig(), big.NewInt(2))
	if totals.LDebt.Cmp(wantDebt) != 0 {
		t.Errorf("LDebt = %s, want %s", totals.LDebt, wantDebt)
	}
	wantColl := new(big.Int).Div(fpmath.ScaleBig(), big.NewInt(5))
	if totals.LCollateral.Cmp(wantColl) != 0 {
		t.Errorf("LCollateral = %s, want %s", totals.LCollateral, wantColl)
	}

	// The redistributed collateral rejoins the aggregate.
	if totals.Amount != 1_200 {
		t.Errorf("totals.Amount = %d, want 1200", totals.Amount)
	}
}

func TestRedistribute_NoSurvivorsIsFatal(t *testing.T) {
	book := state.NewTroveBook()
	totals := book.RegisterDenom(testDenom, 6)

	err := trove.Redistribute(totals, 500, 200)
	if !errors.Is(err, fpmath.ErrDivideByZero) {
		t.Fatalf("expected ErrDivideByZero, got %v", err)
	}
}

func TestApplyPendingRedistribution_FoldsRewards(t *testing.T) {
	_, tr, c, totals := survivor(t, 1_000, 1_000)

	if err := trove.Redistribute(totals, 500, 200); err != nil {
		t.Fatalf("Redistribute: %v", err)
	}

	if err := trove.ApplyPendingRedistribution(tr, c, totals); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// The sole survivor inherits the whole redistribution.
	if tr.Debt != 1_500 {
		t.Errorf("debt = %d, want 1500", tr.Debt)
	}
	if c.Amount != 1_200 {
		t.Errorf("collateral = %d, want 1200", c.Amount)
	}
	if tr.DebtSnapshot.Cmp(totals.LDebt) != 0 {
		t.Errorf("debt snapshot not refreshed")
	}
	if c.CollateralSnapshot.Cmp(totals.LCollateral) != 0 {
		t.Errorf("collateral snapshot not refreshed")
	}
}

func TestApplyPendingRedistribution_Idempotent(t *testing.T) {
	_, tr, c, totals := survivor(t, 1_000, 1_000)

	if err := trove.Redistribute(totals, 500, 200); err != nil {
		t.Fatalf("Redistribute: %v", err)
	}

	if err := trove.ApplyPendingRedistribution(tr, c, totals); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	debt, coll := tr.Debt, c.Amount

	// With no intervening liquidation the second application is a no-op.
	if err := trove.ApplyPendingRedistribution(tr, c, totals); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if tr.Debt != debt || c.Amount != coll {
		t.Errorf("second apply mutated state: debt %d -> %d, coll %d -> %d", debt, tr.Debt, coll, c.Amount)
	}
}

func TestPendingRewards_ZeroCollateralHasNoPending(t *testing.T) {
	_, tr, c, totals := survivor(t, 1_000, 1_000)
	c.Amount = 0

	totals.Amount = 500 // some other trove's collateral
	if err := trove.Redistribute(totals, 100, 50); err != nil {
		t.Fatalf("Redistribute: %v", err)
	}

	pd, pc, err := trove.PendingRewards(tr, c, totals)
	if err != nil || pd != 0 || pc != 0 {
		t.Fatalf("PendingRewards = %d, %d, %v, want 0, 0", pd, pc, err)
	}
}
