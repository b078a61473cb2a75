package engine_test

import (
	"errors"
	"testing"

	"TroveLedger/internal/trove"

	"github.com/google/uuid"
)

func TestRedeem_ProRataCollateral(t *testing.T) {
	f := newLiqFixture(t)
	owner := uuid.New()
	f.addTrove(owner, 500_000, 1_000_000) // ICR 2_000_000

	res, err := f.engine.Redeem(100_000, liqDenom, []uuid.UUID{owner}, liqOpTS)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if res.Redeemed != 100_000 || len(res.Entries) != 1 {
		t.Fatalf("result = %+v", res)
	}

	// collateralToSend = floor(1_000_000 * 100_000 / 500_000) = 200_000.
	e := res.Entries[0]
	if e.DebtRedeemed != 100_000 || e.CollateralSent != 200_000 {
		t.Errorf("entry = redeemed %d sent %d, want 100000/200000", e.DebtRedeemed, e.CollateralSent)
	}
	if e.Closed {
		t.Error("partial redemption must not close the trove")
	}

	tr := f.book.Trove(owner)
	c := f.book.Collateral(owner, liqDenom)
	if tr.Debt != 400_000 || c.Amount != 800_000 {
		t.Errorf("trove = debt %d coll %d, want 400000/800000", tr.Debt, c.Amount)
	}
	if tr.CachedICR != 2_000_000 {
		t.Errorf("CachedICR = %d, want 2000000", tr.CachedICR)
	}
	if f.protocol.TotalDebt != 400_000 {
		t.Errorf("TotalDebt = %d, want 400000", f.protocol.TotalDebt)
	}
	if f.totals.Amount != 800_000 {
		t.Errorf("totals.Amount = %d, want 800000", f.totals.Amount)
	}
}

func TestRedeem_SpansCandidatesAndCloses(t *testing.T) {
	f := newLiqFixture(t)
	riskier := uuid.New()
	safer := uuid.New()
	noDebt := uuid.New()
	f.addTrove(riskier, 500_000, 1_000_000) // ICR 2_000_000
	f.addTrove(safer, 200_000, 900_000)     // ICR 4_500_000
	f.addTrove(noDebt, 0, 100_000)

	// Debt-free and duplicate candidates are skipped without breaking the
	// ordering walk.
	candidates := []uuid.UUID{noDebt, riskier, riskier, safer}
	res, err := f.engine.Redeem(600_000, liqDenom, candidates, liqOpTS)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("entries = %+v, want 2", res.Entries)
	}

	first := res.Entries[0]
	if first.Owner != riskier || !first.Closed {
		t.Fatalf("first entry = %+v, want riskier closed", first)
	}
	if first.DebtRedeemed != 500_000 || first.CollateralSent != 1_000_000 {
		t.Errorf("first = redeemed %d sent %d, want 500000/1000000", first.DebtRedeemed, first.CollateralSent)
	}

	second := res.Entries[1]
	if second.Owner != safer || second.Closed {
		t.Fatalf("second entry = %+v, want safer partial", second)
	}
	// floor(900_000 * 100_000 / 200_000) = 450_000.
	if second.DebtRedeemed != 100_000 || second.CollateralSent != 450_000 {
		t.Errorf("second = redeemed %d sent %d, want 100000/450000", second.DebtRedeemed, second.CollateralSent)
	}

	if tr := f.book.Trove(riskier); tr.Debt != 0 || tr.CachedICR != 0 {
		t.Errorf("closed trove not zeroed: %+v", tr)
	}
	if f.protocol.TotalDebt != 100_000 {
		t.Errorf("TotalDebt = %d, want 100000", f.protocol.TotalDebt)
	}
}

func TestRedeem_AllOrNothing(t *testing.T) {
	f := newLiqFixture(t)
	owner := uuid.New()
	f.addTrove(owner, 500_000, 1_000_000)

	// The candidate list cannot absorb the full amount, so nothing changes.
	_, err := f.engine.Redeem(600_000, liqDenom, []uuid.UUID{owner}, liqOpTS)
	if !errors.Is(err, trove.ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}

	tr := f.book.Trove(owner)
	c := f.book.Collateral(owner, liqDenom)
	if tr.Debt != 500_000 || c.Amount != 1_000_000 {
		t.Errorf("rejected redemption mutated the trove: debt %d coll %d", tr.Debt, c.Amount)
	}
	if f.protocol.TotalDebt != 500_000 || f.totals.Amount != 1_000_000 {
		t.Errorf("rejected redemption mutated totals: debt %d coll %d", f.protocol.TotalDebt, f.totals.Amount)
	}
}

func TestRedeem_SortOrderValidated(t *testing.T) {
	f := newLiqFixture(t)
	riskier := uuid.New()
	safer := uuid.New()
	f.addTrove(riskier, 500_000, 1_000_000) // ICR 2_000_000
	f.addTrove(safer, 200_000, 900_000)     // ICR 4_500_000

	_, err := f.engine.Redeem(100_000, liqDenom, []uuid.UUID{safer, riskier}, liqOpTS)
	if !errors.Is(err, trove.ErrInvalidSortOrder) {
		t.Fatalf("expected ErrInvalidSortOrder, got %v", err)
	}
}

func TestRedeem_Validation(t *testing.T) {
	f := newLiqFixture(t)
	owner := uuid.New()
	f.addTrove(owner, 500_000, 1_000_000)

	if _, err := f.engine.Redeem(0, liqDenom, []uuid.UUID{owner}, liqOpTS); !errors.Is(err, trove.ErrInvalidAmount) {
		t.Errorf("zero amount: got %v", err)
	}
	if _, err := f.engine.Redeem(100_000, liqDenom, nil, liqOpTS); !errors.Is(err, trove.ErrInvalidAmount) {
		t.Errorf("empty candidates: got %v", err)
	}
	if _, err := f.engine.Redeem(100_000, "OSMO", []uuid.UUID{owner}, liqOpTS); !errors.Is(err, trove.ErrUnknownDenom) {
		t.Errorf("unknown denom: got %v", err)
	}
}
