package trove_test

import (
	"errors"
	"testing"

	"TroveLedger/internal/oracle"
	"TroveLedger/internal/state"
	"TroveLedger/internal/trove"

	"github.com/google/uuid"
)

const (
	testDenom = "ATOM"

	// Quote: 1_000_000 micro-USD per base unit with decimal exponent 0, so
	// with 6 token decimals the adjusted decimal is 0 and value == amount * price.
	testPrice = uint64(1_000_000)

	quoteTS = int64(1_700_000_000_000_000)
	opTS    = quoteTS + 1_000_000 // 1s after the quote

	// 2e15 debt at the minimum 115% ratio needs 2.3e15 micro-USD of value,
	// which is 2_300_000_000 base units at testPrice.
	testDebt     = uint64(2_000_000_000_000_000)
	boundaryColl = uint64(2_300_000_000)
)

func newTestLedger(t *testing.T) (*trove.Ledger, *state.TroveBook, *state.ProtocolState) {
	t.Helper()

	book := state.NewTroveBook()
	book.RegisterDenom(testDenom, 6)

	protocol := state.NewProtocolState(115, 5)

	prices := oracle.NewCache()
	if err := prices.Update(oracle.PriceQuote{
		Denom:           testDenom,
		Price:           testPrice,
		DecimalExponent: 0,
		Confidence:      0,
		Timestamp:       quoteTS,
	}); err != nil {
		t.Fatalf("seed price: %v", err)
	}

	return trove.NewLedger(book, protocol, prices), book, protocol
}

func TestOpen_MintsWithFee(t *testing.T) {
	l, book, protocol := newTestLedger(t)
	owner := uuid.New()

	res, err := l.Open(owner, testDebt, boundaryColl, testDenom, opTS, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if res.GrossDebt != testDebt {
		t.Errorf("GrossDebt = %d, want %d", res.GrossDebt, testDebt)
	}
	wantFee := testDebt * 5 / 100
	if res.Fee != wantFee {
		t.Errorf("Fee = %d, want %d", res.Fee, wantFee)
	}
	if res.NetMinted != testDebt-wantFee {
		t.Errorf("NetMinted = %d, want %d", res.NetMinted, testDebt-wantFee)
	}
	if res.ICR != 1_150_000 {
		t.Errorf("ICR = %d, want 1150000", res.ICR)
	}

	if protocol.TotalDebt != testDebt {
		t.Errorf("TotalDebt = %d, want %d", protocol.TotalDebt, testDebt)
	}
	if got := book.Totals(testDenom).Amount; got != boundaryColl {
		t.Errorf("totals.Amount = %d, want %d", got, boundaryColl)
	}
	if tr := book.Trove(owner); tr.Debt != testDebt || tr.CachedICR != 1_150_000 {
		t.Errorf("trove = debt %d icr %d", tr.Debt, tr.CachedICR)
	}
}

func TestOpen_MinimumRatioBoundary(t *testing.T) {
	// Exactly the minimum passes.
	l, _, _ := newTestLedger(t)
	if _, err := l.Open(uuid.New(), testDebt, boundaryColl, testDenom, opTS, nil); err != nil {
		t.Fatalf("open at exact minimum ratio: %v", err)
	}

	// One collateral unit below floors the ratio under the minimum.
	l2, _, _ := newTestLedger(t)
	_, err := l2.Open(uuid.New(), testDebt, boundaryColl-1, testDenom, opTS, nil)
	if !errors.Is(err, trove.ErrCollateralBelowMinimum) {
		t.Fatalf("expected ErrCollateralBelowMinimum, got %v", err)
	}
}

func TestOpen_Validation(t *testing.T) {
	l, _, _ := newTestLedger(t)
	owner := uuid.New()

	if _, err := l.Open(owner, state.MinimumLoanAmount-1, boundaryColl, testDenom, opTS, nil); !errors.Is(err, trove.ErrInvalidAmount) {
		t.Errorf("below minimum loan: got %v", err)
	}
	if _, err := l.Open(owner, testDebt, state.MinimumCollateralAmount-1, testDenom, opTS, nil); !errors.Is(err, trove.ErrInvalidAmount) {
		t.Errorf("below minimum collateral: got %v", err)
	}
	if _, err := l.Open(owner, testDebt, boundaryColl, "OSMO", opTS, nil); !errors.Is(err, trove.ErrUnknownDenom) {
		t.Errorf("unknown denom: got %v", err)
	}

	if _, err := l.Open(owner, testDebt, boundaryColl, testDenom, opTS, nil); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := l.Open(owner, testDebt, boundaryColl, testDenom, opTS, nil); !errors.Is(err, trove.ErrTroveAlreadyExists) {
		t.Errorf("double open: got %v", err)
	}
}

func TestOpen_StalePriceRejected(t *testing.T) {
	l, _, _ := newTestLedger(t)

	staleTS := quoteTS + oracle.MaxPriceAgeMicros + 1
	_, err := l.Open(uuid.New(), testDebt, boundaryColl, testDenom, staleTS, nil)
	if !errors.Is(err, oracle.ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
}

func TestBorrow_RechecksRatio(t *testing.T) {
	l, book, protocol := newTestLedger(t)
	owner := uuid.New()

	// Open comfortably above the minimum, then borrow up to it.
	if _, err := l.Open(owner, testDebt, 2*boundaryColl, testDenom, opTS, nil); err != nil {
		t.Fatalf("open: %v", err)
	}

	res, err := l.Borrow(owner, testDebt, testDenom, opTS, nil)
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if res.ICR != 1_150_000 {
		t.Errorf("ICR after borrow = %d, want 1150000", res.ICR)
	}
	if protocol.TotalDebt != 2*testDebt {
		t.Errorf("TotalDebt = %d, want %d", protocol.TotalDebt, 2*testDebt)
	}
	if tr := book.Trove(owner); tr.Debt != 2*testDebt {
		t.Errorf("trove debt = %d, want %d", tr.Debt, 2*testDebt)
	}

	// Any further borrowing breaches the minimum ratio.
	if _, err := l.Borrow(owner, state.MinimumLoanAmount, testDenom, opTS, nil); !errors.Is(err, trove.ErrCollateralBelowMinimum) {
		t.Errorf("borrow past minimum: got %v", err)
	}
}

func TestRepay_FullClosesTrove(t *testing.T) {
	l, book, protocol := newTestLedger(t)
	owner := uuid.New()

	if _, err := l.Open(owner, testDebt, boundaryColl, testDenom, opTS, nil); err != nil {
		t.Fatalf("open: %v", err)
	}

	res, err := l.Repay(owner, testDebt, testDenom, opTS, nil)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if !res.Closed {
		t.Fatal("expected trove closed")
	}
	if res.ReturnedCollateral != boundaryColl {
		t.Errorf("ReturnedCollateral = %d, want %d", res.ReturnedCollateral, boundaryColl)
	}

	if tr := book.Trove(owner); tr.Debt != 0 || tr.CachedICR != 0 {
		t.Errorf("trove not zeroed: debt %d icr %d", tr.Debt, tr.CachedICR)
	}
	if protocol.TotalDebt != 0 {
		t.Errorf("TotalDebt = %d, want 0", protocol.TotalDebt)
	}
	if got := book.Totals(testDenom).Amount; got != 0 {
		t.Errorf("totals.Amount = %d, want 0", got)
	}
}

func TestRepay_PartialMinimumLoanFloor(t *testing.T) {
	l, book, _ := newTestLedger(t)
	owner := uuid.New()

	if _, err := l.Open(owner, testDebt, boundaryColl, testDenom, opTS, nil); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Leaving one unit less than the minimum loan is rejected.
	tooMuch := testDebt - state.MinimumLoanAmount + 1
	if _, err := l.Repay(owner, tooMuch, testDenom, opTS, nil); !errors.Is(err, trove.ErrInvalidAmount) {
		t.Fatalf("partial below minimum: got %v", err)
	}

	// Leaving exactly the minimum loan is fine.
	res, err := l.Repay(owner, testDebt-state.MinimumLoanAmount, testDenom, opTS, nil)
	if err != nil {
		t.Fatalf("repay to minimum: %v", err)
	}
	if res.Closed {
		t.Fatal("partial repay should not close")
	}
	if tr := book.Trove(owner); tr.Debt != state.MinimumLoanAmount {
		t.Errorf("remaining debt = %d, want %d", tr.Debt, uint64(state.MinimumLoanAmount))
	}
}

func TestRemoveCollateral_RatioFloor(t *testing.T) {
	l, book, _ := newTestLedger(t)
	owner := uuid.New()

	extra := uint64(700_000_000)
	if _, err := l.Open(owner, testDebt, boundaryColl+extra, testDenom, opTS, nil); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Removing down to the exact minimum ratio is allowed.
	res, err := l.RemoveCollateral(owner, extra, testDenom, opTS, nil)
	if err != nil {
		t.Fatalf("remove to boundary: %v", err)
	}
	if res.ICR != 1_150_000 {
		t.Errorf("ICR = %d, want 1150000", res.ICR)
	}

	// One more unit breaches it.
	if _, err := l.RemoveCollateral(owner, 1, testDenom, opTS, nil); !errors.Is(err, trove.ErrCollateralBelowMinimum) {
		t.Fatalf("remove past boundary: got %v", err)
	}

	if c := book.Collateral(owner, testDenom); c.Amount != boundaryColl {
		t.Errorf("collateral = %d, want %d", c.Amount, boundaryColl)
	}
}

func TestAddCollateral_RaisesRatio(t *testing.T) {
	l, book, _ := newTestLedger(t)
	owner := uuid.New()

	if _, err := l.Open(owner, testDebt, boundaryColl, testDenom, opTS, nil); err != nil {
		t.Fatalf("open: %v", err)
	}

	res, err := l.AddCollateral(owner, boundaryColl, testDenom, opTS, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if res.ICR != 2_300_000 {
		t.Errorf("ICR = %d, want 2300000", res.ICR)
	}
	if got := book.Totals(testDenom).Amount; got != 2*boundaryColl {
		t.Errorf("totals.Amount = %d, want %d", got, 2*boundaryColl)
	}
}

func TestHints_OrderingValidated(t *testing.T) {
	l, _, _ := newTestLedger(t)

	// Opening at ICR 1_150_000 with a prev hint above it is out of order.
	badPrev := uint64(1_200_000)
	_, err := l.Open(uuid.New(), testDebt, boundaryColl, testDenom, opTS, &trove.NeighborHints{PrevICR: &badPrev})
	if !errors.Is(err, trove.ErrInvalidSortOrder) {
		t.Fatalf("expected ErrInvalidSortOrder, got %v", err)
	}

	// Correct neighbors pass.
	prev, next := uint64(1_100_000), uint64(1_200_000)
	if _, err := l.Open(uuid.New(), testDebt, boundaryColl, testDenom, opTS, &trove.NeighborHints{PrevICR: &prev, NextICR: &next}); err != nil {
		t.Fatalf("open with valid hints: %v", err)
	}
}
