package trove

import (
	"fmt"

	fpmath "TroveLedger/internal/math"
	"TroveLedger/internal/oracle"
	"TroveLedger/internal/state"

	"github.com/google/uuid"
)

// Ledger executes the atomic trove-mutating operations against an injected
// TroveBook and ProtocolState. Every operation validates fully before
// mutating (after the mandatory pending-redistribution application), so a
// returned error guarantees unchanged state.
type Ledger struct {
	book     *state.TroveBook
	protocol *state.ProtocolState
	prices   *oracle.Cache
}

func NewLedger(book *state.TroveBook, protocol *state.ProtocolState, prices *oracle.Cache) *Ledger {
	return &Ledger{book: book, protocol: protocol, prices: prices}
}

// OpenResult reports the committed amounts of an open or borrow: the gross
// debt added to the trove, the protocol fee carved out of the mint, and the
// net stablecoin owed to the user.
type OpenResult struct {
	Owner      uuid.UUID
	Denom      string
	GrossDebt  uint64
	Fee        uint64
	NetMinted  uint64
	Collateral uint64
	ICR        uint64
}

// RepayResult reports a repayment; Closed means the trove was fully repaid
// and ReturnedCollateral was released back to the owner.
type RepayResult struct {
	Owner              uuid.UUID
	Denom              string
	Repaid             uint64
	Closed             bool
	ReturnedCollateral uint64
	ICR                uint64
}

// CollateralResult reports an add/remove collateral mutation.
type CollateralResult struct {
	Owner  uuid.UUID
	Denom  string
	Amount uint64
	ICR    uint64
}

// currentICR computes the trove's live ratio from the freshest validated
// quote. opTimestamp anchors the staleness check (the core never reads the
// wall clock).
func (l *Ledger) currentICR(debt, collAmount uint64, totals *state.CollateralTotals, opTimestamp int64) (uint64, error) {
	quote, err := l.prices.GetFresh(totals.Denom, opTimestamp)
	if err != nil {
		return 0, err
	}

	decimal, err := oracle.AdjustedDecimal(totals.Decimals, quote.DecimalExponent)
	if err != nil {
		return 0, err
	}

	value, err := oracle.CollateralValue(collAmount, quote.Price, decimal)
	if err != nil {
		return 0, err
	}

	return oracle.CollateralRatio(value, debt)
}

// Open creates a trove: minimum debt and collateral, closed-trove check, ICR
// against the configured minimum, accumulator snapshots at creation time so
// the new trove never retroactively collects earlier redistributions.
func (l *Ledger) Open(owner uuid.UUID, debt, collAmount uint64, denom string, opTimestamp int64, hints *NeighborHints) (*OpenResult, error) {
	if debt < state.MinimumLoanAmount {
		return nil, fmt.Errorf("%w: debt %d below minimum loan %d", ErrInvalidAmount, debt, uint64(state.MinimumLoanAmount))
	}
	if collAmount < state.MinimumCollateralAmount {
		return nil, fmt.Errorf("%w: collateral %d below minimum %d", ErrInvalidAmount, collAmount, uint64(state.MinimumCollateralAmount))
	}

	totals := l.book.Totals(denom)
	if totals == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDenom, denom)
	}

	t := l.book.EnsureTrove(owner)
	if t.Debt != 0 {
		return nil, fmt.Errorf("%w: owner %s", ErrTroveAlreadyExists, owner)
	}

	icr, err := l.currentICR(debt, collAmount, totals, opTimestamp)
	if err != nil {
		return nil, err
	}
	if icr < l.protocol.MinimumCollateralRatio {
		return nil, fmt.Errorf("%w: ICR %d < minimum %d", ErrCollateralBelowMinimum, icr, l.protocol.MinimumCollateralRatio)
	}
	if err := validateHints(icr, hints); err != nil {
		return nil, err
	}

	fee := debt * l.protocol.ProtocolFeePercent / 100
	newTotalDebt, err := fpmath.CheckedAdd(l.protocol.TotalDebt, debt)
	if err != nil {
		return nil, err
	}
	newTotalColl, err := fpmath.CheckedAdd(totals.Amount, collAmount)
	if err != nil {
		return nil, err
	}

	// Commit.
	c := l.book.EnsureCollateral(owner, denom)
	t.Debt = debt
	t.DebtSnapshot.Set(totals.LDebt)
	t.CachedICR = icr
	t.Version++
	c.Amount = collAmount
	c.CollateralSnapshot.Set(totals.LCollateral)
	c.Version++
	totals.Amount = newTotalColl
	l.protocol.TotalDebt = newTotalDebt

	return &OpenResult{
		Owner:      owner,
		Denom:      denom,
		GrossDebt:  debt,
		Fee:        fee,
		NetMinted:  debt - fee,
		Collateral: collAmount,
		ICR:        icr,
	}, nil
}

// Borrow adds debt to an open trove after recomputing ICR at the increased
// debt level.
func (l *Ledger) Borrow(owner uuid.UUID, additional uint64, denom string, opTimestamp int64, hints *NeighborHints) (*OpenResult, error) {
	if additional == 0 {
		return nil, fmt.Errorf("%w: zero borrow", ErrInvalidAmount)
	}

	t, c, totals, err := l.openTrove(owner, denom)
	if err != nil {
		return nil, err
	}
	if err := ApplyPendingRedistribution(t, c, totals); err != nil {
		return nil, err
	}

	newDebt, err := fpmath.CheckedAdd(t.Debt, additional)
	if err != nil {
		return nil, err
	}
	newTotalDebt, err := fpmath.CheckedAdd(l.protocol.TotalDebt, additional)
	if err != nil {
		return nil, err
	}

	icr, err := l.currentICR(newDebt, c.Amount, totals, opTimestamp)
	if err != nil {
		return nil, err
	}
	if icr < l.protocol.MinimumCollateralRatio {
		return nil, fmt.Errorf("%w: ICR %d < minimum %d", ErrCollateralBelowMinimum, icr, l.protocol.MinimumCollateralRatio)
	}
	if err := validateHints(icr, hints); err != nil {
		return nil, err
	}

	fee := additional * l.protocol.ProtocolFeePercent / 100

	t.Debt = newDebt
	t.CachedICR = icr
	t.Version++
	l.protocol.TotalDebt = newTotalDebt

	return &OpenResult{
		Owner:      owner,
		Denom:      denom,
		GrossDebt:  additional,
		Fee:        fee,
		NetMinted:  additional - fee,
		Collateral: c.Amount,
		ICR:        icr,
	}, nil
}

// Repay burns stablecoin against the trove's debt. A full repayment closes
// the trove and releases the entire collateral position; a partial repayment
// must leave at least the minimum loan.
func (l *Ledger) Repay(owner uuid.UUID, amount uint64, denom string, opTimestamp int64, hints *NeighborHints) (*RepayResult, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero repay", ErrInvalidAmount)
	}

	t, c, totals, err := l.openTrove(owner, denom)
	if err != nil {
		return nil, err
	}
	if err := ApplyPendingRedistribution(t, c, totals); err != nil {
		return nil, err
	}

	if amount > t.Debt {
		return nil, fmt.Errorf("%w: repay %d exceeds debt %d", ErrInvalidAmount, amount, t.Debt)
	}

	if amount == t.Debt {
		// Full repayment: close the trove and return all collateral.
		returned := c.Amount

		newTotalColl, err := fpmath.CheckedSub(totals.Amount, returned)
		if err != nil {
			return nil, err
		}
		newTotalDebt, err := fpmath.CheckedSub(l.protocol.TotalDebt, amount)
		if err != nil {
			return nil, err
		}

		t.Debt = 0
		t.CachedICR = 0
		t.Version++
		c.Amount = 0
		c.Version++
		totals.Amount = newTotalColl
		l.protocol.TotalDebt = newTotalDebt

		return &RepayResult{
			Owner:              owner,
			Denom:              denom,
			Repaid:             amount,
			Closed:             true,
			ReturnedCollateral: returned,
		}, nil
	}

	remaining := t.Debt - amount
	if remaining < state.MinimumLoanAmount {
		return nil, fmt.Errorf("%w: remaining debt %d below minimum loan", ErrInvalidAmount, remaining)
	}

	icr, err := l.currentICR(remaining, c.Amount, totals, opTimestamp)
	if err != nil {
		return nil, err
	}
	if err := validateHints(icr, hints); err != nil {
		return nil, err
	}

	newTotalDebt, err := fpmath.CheckedSub(l.protocol.TotalDebt, amount)
	if err != nil {
		return nil, err
	}

	t.Debt = remaining
	t.CachedICR = icr
	t.Version++
	l.protocol.TotalDebt = newTotalDebt

	return &RepayResult{
		Owner:  owner,
		Denom:  denom,
		Repaid: amount,
		ICR:    icr,
	}, nil
}

// AddCollateral increases the position and refreshes the cached ICR.
func (l *Ledger) AddCollateral(owner uuid.UUID, amount uint64, denom string, opTimestamp int64, hints *NeighborHints) (*CollateralResult, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero collateral add", ErrInvalidAmount)
	}

	t, c, totals, err := l.openTrove(owner, denom)
	if err != nil {
		return nil, err
	}
	if err := ApplyPendingRedistribution(t, c, totals); err != nil {
		return nil, err
	}

	newAmount, err := fpmath.CheckedAdd(c.Amount, amount)
	if err != nil {
		return nil, err
	}
	newTotal, err := fpmath.CheckedAdd(totals.Amount, amount)
	if err != nil {
		return nil, err
	}

	icr, err := l.currentICR(t.Debt, newAmount, totals, opTimestamp)
	if err != nil {
		return nil, err
	}
	if err := validateHints(icr, hints); err != nil {
		return nil, err
	}

	c.Amount = newAmount
	c.Version++
	totals.Amount = newTotal
	t.CachedICR = icr
	t.Version++

	return &CollateralResult{Owner: owner, Denom: denom, Amount: amount, ICR: icr}, nil
}

// RemoveCollateral decreases the position, rejecting removals that would
// breach the minimum collateral floor or the minimum ratio.
func (l *Ledger) RemoveCollateral(owner uuid.UUID, amount uint64, denom string, opTimestamp int64, hints *NeighborHints) (*CollateralResult, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero collateral removal", ErrInvalidAmount)
	}

	t, c, totals, err := l.openTrove(owner, denom)
	if err != nil {
		return nil, err
	}
	if err := ApplyPendingRedistribution(t, c, totals); err != nil {
		return nil, err
	}

	newAmount, err := fpmath.CheckedSub(c.Amount, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: removal %d exceeds collateral %d", ErrInvalidAmount, amount, c.Amount)
	}
	if newAmount < state.MinimumCollateralAmount {
		return nil, fmt.Errorf("%w: remaining collateral %d below minimum", ErrCollateralBelowMinimum, newAmount)
	}

	icr, err := l.currentICR(t.Debt, newAmount, totals, opTimestamp)
	if err != nil {
		return nil, err
	}
	if icr < l.protocol.MinimumCollateralRatio {
		return nil, fmt.Errorf("%w: ICR %d < minimum %d", ErrCollateralBelowMinimum, icr, l.protocol.MinimumCollateralRatio)
	}
	if err := validateHints(icr, hints); err != nil {
		return nil, err
	}

	newTotal, err := fpmath.CheckedSub(totals.Amount, amount)
	if err != nil {
		return nil, err
	}

	c.Amount = newAmount
	c.Version++
	totals.Amount = newTotal
	t.CachedICR = icr
	t.Version++

	return &CollateralResult{Owner: owner, Denom: denom, Amount: amount, ICR: icr}, nil
}

// RefreshICR recomputes and caches the trove's ICR without other mutation.
// Used after redistribution-affecting events so external sorted indexes can
// re-read a consistent value.
func (l *Ledger) RefreshICR(owner uuid.UUID, denom string, opTimestamp int64) (uint64, error) {
	t, c, totals, err := l.openTrove(owner, denom)
	if err != nil {
		return 0, err
	}
	if err := ApplyPendingRedistribution(t, c, totals); err != nil {
		return 0, err
	}

	icr, err := l.currentICR(t.Debt, c.Amount, totals, opTimestamp)
	if err != nil {
		return 0, err
	}
	t.CachedICR = icr
	t.Version++
	return icr, nil
}

// openTrove fetches the (trove, collateral, totals) triple for a mutating
// operation, requiring an open trove and a matching denomination.
func (l *Ledger) openTrove(owner uuid.UUID, denom string) (*state.Trove, *state.CollateralPosition, *state.CollateralTotals, error) {
	totals := l.book.Totals(denom)
	if totals == nil {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrUnknownDenom, denom)
	}

	t := l.book.Trove(owner)
	if t == nil || t.Debt == 0 {
		return nil, nil, nil, fmt.Errorf("%w: owner %s", ErrTroveNotFound, owner)
	}

	c := l.book.Collateral(owner, denom)
	if c == nil {
		return nil, nil, nil, fmt.Errorf("%w: owner %s has no %s position", ErrTroveNotFound, owner, denom)
	}

	return t, c, totals, nil
}
