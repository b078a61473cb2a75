// Package pool implements the stability pool: stablecoin deposits that
// absorb liquidated debt in exchange for seized collateral, tracked with the
// Product-Sum accumulator scheme so every liquidation is O(1) regardless of
// depositor count.
package pool

import (
	"fmt"
	"math/big"

	fpmath "TroveLedger/internal/math"
	"TroveLedger/internal/state"
	"TroveLedger/internal/trove"

	"github.com/google/uuid"
)

// Pool executes stability-pool operations against the injected books. The
// product factor and epoch live on ProtocolState; per-denomination sum
// factors live on the StakeBook's pool snapshots.
type Pool struct {
	book     *state.StakeBook
	protocol *state.ProtocolState
}

func NewPool(book *state.StakeBook, protocol *state.ProtocolState) *Pool {
	return &Pool{book: book, protocol: protocol}
}

// StakeResult reports a deposit: the compounded prior stake it was merged
// with, the resulting deposit, and any collateral gains paid out alongside.
type StakeResult struct {
	Owner      uuid.UUID
	Staked     uint64
	NewDeposit uint64
	Gains      map[string]uint64
}

// UnstakeResult reports a withdrawal. Full means the deposit was emptied and
// the reward snapshots cleared.
type UnstakeResult struct {
	Owner     uuid.UUID
	Withdrawn uint64
	Remaining uint64
	Full      bool
	Gains     map[string]uint64
}

// AbsorbResult reports one liquidation offset against the pool.
type AbsorbResult struct {
	Burned      uint64
	Seized      uint64
	Denom       string
	EpochRolled bool
}

// CompoundedStake derives the depositor's current stake from the nominal
// deposit and the product-factor snapshot:
//
//	compounded = deposit * pFactor_now / pFactor_snapshot
//
// A deposit from a finished epoch was fully consumed and compounds to zero.
func (p *Pool) CompoundedStake(s *state.UserStake) (uint64, error) {
	if s == nil || s.Amount == 0 {
		return 0, nil
	}
	if s.EpochSnapshot != p.protocol.Epoch {
		return 0, nil
	}
	if s.PSnapshot.Sign() == 0 {
		return s.Amount, nil
	}
	if p.protocol.PFactor.Sign() == 0 {
		return 0, nil
	}
	return fpmath.MulDivBig(s.Amount, p.protocol.PFactor, s.PSnapshot)
}

// CollateralGains computes the depositor's unpaid seized-collateral rewards
// per denomination:
//
//	gain = deposit * (sFactor_now - sFactor_snapshot) / pFactor_snapshot
//
// For deposits from a finished epoch the terminal sFactor frozen at rollover
// stands in for the live one, so the gains from the depleting liquidation
// are not lost.
func (p *Pool) CollateralGains(s *state.UserStake) (map[string]uint64, error) {
	gains := make(map[string]uint64)
	if s == nil || s.Amount == 0 || s.PSnapshot.Sign() == 0 {
		return gains, nil
	}

	for _, pl := range p.book.AllPools() {
		sCur := pl.SFactor
		if s.EpochSnapshot != p.protocol.Epoch {
			frozen, ok := pl.EpochEndS[s.EpochSnapshot]
			if !ok {
				continue
			}
			sCur = frozen
		}

		sSnap := s.SSnapshots[pl.Denom]
		if sSnap == nil {
			sSnap = new(big.Int)
		}
		delta := new(big.Int).Sub(sCur, sSnap)
		if delta.Sign() <= 0 {
			continue
		}

		gain, err := fpmath.MulDivBig(s.Amount, delta, s.PSnapshot)
		if err != nil {
			return nil, fmt.Errorf("gain %s: %w", pl.Denom, err)
		}
		if gain > 0 {
			gains[pl.Denom] = gain
		}
	}
	return gains, nil
}

// Stake deposits stablecoin. Any prior deposit is first compounded and its
// collateral gains paid out, then the fresh amount is merged in and all
// reward snapshots reset to the current accumulators.
func (p *Pool) Stake(owner uuid.UUID, amount uint64) (*StakeResult, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero stake", trove.ErrInvalidAmount)
	}

	s := p.book.EnsureStake(owner)
	compounded, err := p.CompoundedStake(s)
	if err != nil {
		return nil, err
	}
	gains, err := p.CollateralGains(s)
	if err != nil {
		return nil, err
	}

	newDeposit, err := fpmath.CheckedAdd(compounded, amount)
	if err != nil {
		return nil, err
	}
	newTotal, err := fpmath.CheckedAdd(p.protocol.TotalStake, amount)
	if err != nil {
		return nil, err
	}

	p.settleGains(gains)
	p.resetSnapshots(s)
	s.Amount = newDeposit
	s.Version++
	p.protocol.TotalStake = newTotal

	return &StakeResult{Owner: owner, Staked: amount, NewDeposit: newDeposit, Gains: gains}, nil
}

// Unstake withdraws against the compounded stake. Emptying the deposit is
// always allowed; a partial withdrawal must leave at least the minimum loan
// amount behind. Collateral gains are paid out either way.
func (p *Pool) Unstake(owner uuid.UUID, amount uint64) (*UnstakeResult, error) {
	if amount == 0 {
		return nil, fmt.Errorf("%w: zero unstake", trove.ErrInvalidAmount)
	}

	s := p.book.Stake(owner)
	if s == nil || s.Amount == 0 {
		return nil, fmt.Errorf("%w: no stake for %s", trove.ErrInsufficientFunds, owner)
	}

	compounded, err := p.CompoundedStake(s)
	if err != nil {
		return nil, err
	}
	if amount > compounded {
		return nil, fmt.Errorf("%w: unstake %d exceeds compounded stake %d", trove.ErrInsufficientFunds, amount, compounded)
	}
	gains, err := p.CollateralGains(s)
	if err != nil {
		return nil, err
	}

	newTotal, err := fpmath.CheckedSub(p.protocol.TotalStake, amount)
	if err != nil {
		return nil, err
	}

	if amount == compounded {
		p.settleGains(gains)
		s.Amount = 0
		s.PSnapshot.SetInt64(0)
		s.SSnapshots = make(map[string]*big.Int)
		s.Version++
		p.protocol.TotalStake = newTotal

		return &UnstakeResult{Owner: owner, Withdrawn: amount, Full: true, Gains: gains}, nil
	}

	remaining := compounded - amount
	if remaining < state.MinimumLoanAmount {
		return nil, fmt.Errorf("%w: remaining stake %d below minimum", trove.ErrInvalidAmount, remaining)
	}

	p.settleGains(gains)
	p.resetSnapshots(s)
	s.Amount = remaining
	s.Version++
	p.protocol.TotalStake = newTotal

	return &UnstakeResult{Owner: owner, Withdrawn: amount, Remaining: remaining, Gains: gains}, nil
}

// WithdrawGains pays out accrued collateral gains without touching the
// stake. The deposit itself is rebased to its compounded value so the reward
// snapshots can be reset.
func (p *Pool) WithdrawGains(owner uuid.UUID) (map[string]uint64, error) {
	s := p.book.Stake(owner)
	if s == nil || s.Amount == 0 {
		return nil, fmt.Errorf("%w: no stake for %s", trove.ErrInsufficientFunds, owner)
	}

	compounded, err := p.CompoundedStake(s)
	if err != nil {
		return nil, err
	}
	gains, err := p.CollateralGains(s)
	if err != nil {
		return nil, err
	}

	p.settleGains(gains)
	p.resetSnapshots(s)
	s.Amount = compounded
	s.Version++
	return gains, nil
}

// AbsorbDebt offsets a liquidation against the pool: burn debtToBurn from
// the total stake and credit seizedCollateral of denom to depositors via the
// sum factor. The caller guarantees 0 < debtToBurn <= TotalStake.
//
// The sum factor advances against the pre-burn total stake. A burn that
// consumes the entire stake rolls the epoch: every denomination's sFactor is
// frozen for the finished epoch, the product factor resets to the scale
// constant, and the total stake drops to zero.
func (p *Pool) AbsorbDebt(debtToBurn, seizedCollateral uint64, denom string) (*AbsorbResult, error) {
	total := p.protocol.TotalStake
	if debtToBurn == 0 || debtToBurn > total {
		return nil, fmt.Errorf("absorb %d against stake %d: %w", debtToBurn, total, trove.ErrInsufficientFunds)
	}

	pl := p.book.Pool(denom)
	if seizedCollateral > 0 {
		advance, err := fpmath.MulScaleDiv(seizedCollateral, total)
		if err != nil {
			return nil, fmt.Errorf("sum factor advance: %w", err)
		}
		pl.SFactor.Add(pl.SFactor, advance)
		pl.TotalCollateralGained, err = fpmath.CheckedAdd(pl.TotalCollateralGained, seizedCollateral)
		if err != nil {
			return nil, err
		}
	}

	if debtToBurn == total {
		for _, each := range p.book.AllPools() {
			each.EpochEndS[p.protocol.Epoch] = new(big.Int).Set(each.SFactor)
			each.SFactor.SetInt64(0)
			each.Epoch = p.protocol.Epoch + 1
		}
		p.protocol.Epoch++
		p.protocol.PFactor = fpmath.ScaleBig()
		p.protocol.TotalStake = 0

		return &AbsorbResult{Burned: debtToBurn, Seized: seizedCollateral, Denom: denom, EpochRolled: true}, nil
	}

	// pFactor *= (total - burned) / total, floored in big-int space.
	remaining := new(big.Int).SetUint64(total - debtToBurn)
	p.protocol.PFactor.Mul(p.protocol.PFactor, remaining)
	p.protocol.PFactor.Quo(p.protocol.PFactor, new(big.Int).SetUint64(total))
	p.protocol.TotalStake = total - debtToBurn

	return &AbsorbResult{Burned: debtToBurn, Seized: seizedCollateral, Denom: denom}, nil
}

// settleGains deducts paid-out gains from the per-pool outstanding totals.
func (p *Pool) settleGains(gains map[string]uint64) {
	for denom, gain := range gains {
		pl := p.book.Pool(denom)
		if gain > pl.TotalCollateralGained {
			pl.TotalCollateralGained = 0
			continue
		}
		pl.TotalCollateralGained -= gain
	}
}

// resetSnapshots rebases the depositor onto the current accumulators.
func (p *Pool) resetSnapshots(s *state.UserStake) {
	s.PSnapshot.Set(p.protocol.PFactor)
	s.EpochSnapshot = p.protocol.Epoch
	s.SSnapshots = make(map[string]*big.Int)
	for _, pl := range p.book.AllPools() {
		s.SSnapshots[pl.Denom] = new(big.Int).Set(pl.SFactor)
	}
}
