// Package engine implements the risk operations that span troves and the
// stability pool: liquidation (single and batch) and redemption.
package engine

import (
	"errors"
	"fmt"

	fpmath "TroveLedger/internal/math"
	"TroveLedger/internal/oracle"
	"TroveLedger/internal/pool"
	"TroveLedger/internal/state"
	"TroveLedger/internal/trove"

	"github.com/google/uuid"
)

// LiquidationPath names which of the three settlement paths a trove took.
type LiquidationPath string

const (
	// PathPoolBurn settles the whole debt against the stability pool.
	PathPoolBurn LiquidationPath = "pool_burn"
	// PathPartial burns what the pool holds and redistributes the rest.
	PathPartial LiquidationPath = "partial"
	// PathRedistribute spreads everything across the remaining troves.
	PathRedistribute LiquidationPath = "redistribute"
)

// LiquidationRecord is the outcome for one liquidated trove.
type LiquidationRecord struct {
	Owner                   uuid.UUID
	Denom                   string
	Path                    LiquidationPath
	ICR                     uint64
	Debt                    uint64
	Collateral              uint64
	BurnedFromPool          uint64
	SeizedToPool            uint64
	RedistributedDebt       uint64
	RedistributedCollateral uint64
	EpochRolled             bool
}

// SkippedTrove records a batch entry that could not be liquidated for a
// per-trove reason (missing, or not eligible at the current price).
type SkippedTrove struct {
	Owner  uuid.UUID
	Reason string
}

// BatchResult is the outcome of one liquidation batch.
type BatchResult struct {
	Liquidated []LiquidationRecord
	Skipped    []SkippedTrove
}

// Engine executes liquidations and redemptions against the injected books.
type Engine struct {
	book      *state.TroveBook
	stability *pool.Pool
	protocol  *state.ProtocolState
	prices    *oracle.Cache
}

func NewEngine(book *state.TroveBook, stability *pool.Pool, protocol *state.ProtocolState, prices *oracle.Cache) *Engine {
	return &Engine{book: book, stability: stability, protocol: protocol, prices: prices}
}

// troveICR computes the live ratio of an open trove against a fresh quote.
func (e *Engine) troveICR(debt, collAmount uint64, totals *state.CollateralTotals, opTimestamp int64) (uint64, error) {
	quote, err := e.prices.GetFresh(totals.Denom, opTimestamp)
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

// Liquidate settles one undercollateralized trove. Eligibility is a live
// ratio strictly below the liquidation threshold after pending
// redistribution is applied. The trove is zeroed on every path.
func (e *Engine) Liquidate(owner uuid.UUID, denom string, opTimestamp int64) (*LiquidationRecord, error) {
	totals := e.book.Totals(denom)
	if totals == nil {
		return nil, fmt.Errorf("%w: %s", trove.ErrUnknownDenom, denom)
	}

	t := e.book.Trove(owner)
	if t == nil || t.Debt == 0 {
		return nil, fmt.Errorf("%w: owner %s", trove.ErrTroveNotFound, owner)
	}
	c := e.book.Collateral(owner, denom)
	if c == nil {
		return nil, fmt.Errorf("%w: owner %s has no %s position", trove.ErrTroveNotFound, owner, denom)
	}

	if err := trove.ApplyPendingRedistribution(t, c, totals); err != nil {
		return nil, err
	}

	icr, err := e.troveICR(t.Debt, c.Amount, totals, opTimestamp)
	if err != nil {
		return nil, err
	}
	if icr >= oracle.LiquidationThresholdRatio {
		return nil, fmt.Errorf("%w: ICR %d not below threshold %d", trove.ErrCollateralBelowMinimum, icr, uint64(oracle.LiquidationThresholdRatio))
	}

	debt := t.Debt
	coll := c.Amount
	totalStake := e.protocol.TotalStake

	rec := &LiquidationRecord{
		Owner:      owner,
		Denom:      denom,
		ICR:        icr,
		Debt:       debt,
		Collateral: coll,
	}

	// The liquidated trove's collateral leaves the aggregate first so the
	// redistribution accumulators advance over the remaining troves only.
	remainingColl, err := fpmath.CheckedSub(totals.Amount, coll)
	if err != nil {
		return nil, err
	}

	switch {
	case totalStake >= debt:
		// Pool covers the whole debt: burn it and seize all collateral.
		absorbed, err := e.stability.AbsorbDebt(debt, coll, denom)
		if err != nil {
			return nil, err
		}
		totals.Amount = remainingColl
		e.protocol.TotalDebt, err = fpmath.CheckedSub(e.protocol.TotalDebt, debt)
		if err != nil {
			return nil, err
		}
		rec.Path = PathPoolBurn
		rec.BurnedFromPool = debt
		rec.SeizedToPool = coll
		rec.EpochRolled = absorbed.EpochRolled

	case totalStake > 0:
		// Pool covers part of the debt. The pool seizes collateral pro
		// rata to the debt it burns; the floor remainder joins the
		// redistributed side.
		covered, err := fpmath.MulDiv(coll, totalStake, debt)
		if err != nil {
			return nil, err
		}
		absorbed, err := e.stability.AbsorbDebt(totalStake, covered, denom)
		if err != nil {
			return nil, err
		}
		totals.Amount = remainingColl
		uncovered := debt - totalStake
		if err := trove.Redistribute(totals, uncovered, coll-covered); err != nil {
			return nil, err
		}
		e.protocol.TotalDebt, err = fpmath.CheckedSub(e.protocol.TotalDebt, absorbed.Burned)
		if err != nil {
			return nil, err
		}
		rec.Path = PathPartial
		rec.BurnedFromPool = absorbed.Burned
		rec.SeizedToPool = covered
		rec.RedistributedDebt = uncovered
		rec.RedistributedCollateral = coll - covered
		rec.EpochRolled = absorbed.EpochRolled

	default:
		// Empty pool: everything spreads across the remaining troves.
		totals.Amount = remainingColl
		if err := trove.Redistribute(totals, debt, coll); err != nil {
			return nil, err
		}
		rec.Path = PathRedistribute
		rec.RedistributedDebt = debt
		rec.RedistributedCollateral = coll
	}

	t.Debt = 0
	t.CachedICR = 0
	t.Version++
	c.Amount = 0
	c.Version++

	return rec, nil
}

// LiquidateBatch processes up to MaxLiquidationBatchSize troves. Per-trove
// failures (missing trove, not eligible) are recorded and skipped;
// arithmetic and oracle failures abort the whole batch.
func (e *Engine) LiquidateBatch(owners []uuid.UUID, denom string, opTimestamp int64) (*BatchResult, error) {
	if len(owners) == 0 {
		return nil, fmt.Errorf("%w: empty liquidation batch", trove.ErrInvalidAmount)
	}
	if len(owners) > state.MaxLiquidationBatchSize {
		return nil, fmt.Errorf("%w: batch size %d exceeds %d", trove.ErrInvalidAmount, len(owners), state.MaxLiquidationBatchSize)
	}

	result := &BatchResult{}
	for _, owner := range owners {
		rec, err := e.Liquidate(owner, denom, opTimestamp)
		if err != nil {
			if isSkippable(err) {
				result.Skipped = append(result.Skipped, SkippedTrove{Owner: owner, Reason: err.Error()})
				continue
			}
			return nil, fmt.Errorf("liquidate %s: %w", owner, err)
		}
		result.Liquidated = append(result.Liquidated, *rec)
	}
	return result, nil
}

// isSkippable reports whether a liquidation error is a per-trove condition
// rather than a protocol-level fault.
func isSkippable(err error) bool {
	return errors.Is(err, trove.ErrTroveNotFound) || errors.Is(err, trove.ErrCollateralBelowMinimum)
}
