package pool_test

import (
	"errors"
	"math/big"
	"testing"

	fpmath "TroveLedger/internal/math"
	"TroveLedger/internal/pool"
	"TroveLedger/internal/state"
	"TroveLedger/internal/trove"

	"github.com/google/uuid"
)

const poolDenom = "ATOM"

// minStake keeps partial withdrawals above the minimum-loan floor.
const minStake = uint64(state.MinimumLoanAmount)

func newTestPool() (*pool.Pool, *state.StakeBook, *state.ProtocolState) {
	book := state.NewStakeBook()
	protocol := state.NewProtocolState(0, 0)
	return pool.NewPool(book, protocol), book, protocol
}

func TestCompoundedStake_HalvedPFactor(t *testing.T) {
	p, book, protocol := newTestPool()

	// A 1000 deposit snapshotted at pFactor=SCALE compounds to 500 once the
	// live pFactor has halved.
	s := book.EnsureStake(uuid.New())
	s.Amount = 1000
	s.PSnapshot.Set(fpmath.ScaleBig())

	protocol.PFactor = new(big.Int).Div(fpmath.ScaleBig(), big.NewInt(2))

	got, err := p.CompoundedStake(s)
	if err != nil || got != 500 {
		t.Fatalf("CompoundedStake = %d, %v, want 500", got, err)
	}
}

func TestCompoundedStake_EdgeCases(t *testing.T) {
	p, book, protocol := newTestPool()
	s := book.EnsureStake(uuid.New())
	s.Amount = 1000

	// Zero pFactor snapshot (pre-accumulator deposit) passes through.
	got, err := p.CompoundedStake(s)
	if err != nil || got != 1000 {
		t.Fatalf("zero snapshot: got %d, %v, want 1000", got, err)
	}

	// A deposit from a finished epoch was fully consumed.
	s.PSnapshot.Set(fpmath.ScaleBig())
	protocol.Epoch = 1
	got, err = p.CompoundedStake(s)
	if err != nil || got != 0 {
		t.Fatalf("stale epoch: got %d, %v, want 0", got, err)
	}

	// Zero live pFactor also compounds to zero.
	protocol.Epoch = 0
	protocol.PFactor = new(big.Int)
	got, err = p.CompoundedStake(s)
	if err != nil || got != 0 {
		t.Fatalf("zero live pFactor: got %d, %v, want 0", got, err)
	}
}

func TestAbsorbDebt_PartialBurn(t *testing.T) {
	p, book, protocol := newTestPool()
	owner := uuid.New()

	if _, err := p.Stake(owner, 2*minStake); err != nil {
		t.Fatalf("stake: %v", err)
	}

	// Burn half the pool and seize 600 units of collateral.
	res, err := p.AbsorbDebt(minStake, 600, poolDenom)
	if err != nil {
		t.Fatalf("absorb: %v", err)
	}
	if res.EpochRolled {
		t.Fatal("partial burn must not roll the epoch")
	}
	if protocol.TotalStake != minStake {
		t.Errorf("TotalStake = %d, want %d", protocol.TotalStake, minStake)
	}

	wantP := new(big.Int).Div(fpmath.ScaleBig(), big.NewInt(2))
	if protocol.PFactor.Cmp(wantP) != 0 {
		t.Errorf("PFactor = %s, want %s", protocol.PFactor, wantP)
	}

	s := book.Stake(owner)
	compounded, err := p.CompoundedStake(s)
	if err != nil || compounded != minStake {
		t.Fatalf("compounded = %d, %v, want %d", compounded, err, minStake)
	}

	gains, err := p.CollateralGains(s)
	if err != nil {
		t.Fatalf("gains: %v", err)
	}
	if gains[poolDenom] != 600 {
		t.Errorf("gain = %d, want 600", gains[poolDenom])
	}
}

func TestAbsorbDebt_FullDepletionRollsEpoch(t *testing.T) {
	p, book, protocol := newTestPool()
	owner := uuid.New()

	if _, err := p.Stake(owner, minStake); err != nil {
		t.Fatalf("stake: %v", err)
	}

	res, err := p.AbsorbDebt(minStake, 500, poolDenom)
	if err != nil {
		t.Fatalf("absorb: %v", err)
	}
	if !res.EpochRolled {
		t.Fatal("expected epoch roll on full depletion")
	}
	if protocol.Epoch != 1 {
		t.Errorf("Epoch = %d, want 1", protocol.Epoch)
	}
	if protocol.TotalStake != 0 {
		t.Errorf("TotalStake = %d, want 0", protocol.TotalStake)
	}
	if protocol.PFactor.Cmp(fpmath.ScaleBig()) != 0 {
		t.Errorf("PFactor = %s, want SCALE", protocol.PFactor)
	}

	pl := book.Pool(poolDenom)
	if pl.SFactor.Sign() != 0 {
		t.Errorf("SFactor = %s, want 0", pl.SFactor)
	}
	if _, ok := pl.EpochEndS[0]; !ok {
		t.Error("terminal sFactor for epoch 0 not frozen")
	}

	// The depositor's stake is gone, but the depleting liquidation's gains
	// survive via the frozen sFactor.
	s := book.Stake(owner)
	compounded, err := p.CompoundedStake(s)
	if err != nil || compounded != 0 {
		t.Fatalf("compounded = %d, %v, want 0", compounded, err)
	}
	gains, err := p.CollateralGains(s)
	if err != nil {
		t.Fatalf("gains: %v", err)
	}
	if gains[poolDenom] != 500 {
		t.Errorf("gain = %d, want 500", gains[poolDenom])
	}
}

func TestAbsorbDebt_Validation(t *testing.T) {
	p, _, _ := newTestPool()

	if _, err := p.AbsorbDebt(0, 0, poolDenom); !errors.Is(err, trove.ErrInsufficientFunds) {
		t.Errorf("zero burn: got %v", err)
	}
	if _, err := p.AbsorbDebt(1, 0, poolDenom); !errors.Is(err, trove.ErrInsufficientFunds) {
		t.Errorf("burn above stake: got %v", err)
	}
}

func TestUnstake_FullAlwaysAllowed(t *testing.T) {
	p, _, protocol := newTestPool()
	owner := uuid.New()

	if _, err := p.Stake(owner, 2*minStake); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := p.AbsorbDebt(minStake, 300, poolDenom); err != nil {
		t.Fatalf("absorb: %v", err)
	}

	// A partial withdrawal that would leave less than the minimum is
	// rejected; emptying the deposit is always allowed.
	if _, err := p.Unstake(owner, 1); !errors.Is(err, trove.ErrInvalidAmount) {
		t.Fatalf("partial below minimum: got %v", err)
	}

	res, err := p.Unstake(owner, minStake)
	if err != nil {
		t.Fatalf("full unstake: %v", err)
	}
	if !res.Full {
		t.Fatal("expected full withdrawal")
	}
	if res.Gains[poolDenom] != 300 {
		t.Errorf("gains = %d, want 300", res.Gains[poolDenom])
	}
	if protocol.TotalStake != 0 {
		t.Errorf("TotalStake = %d, want 0", protocol.TotalStake)
	}
}

func TestUnstake_Validation(t *testing.T) {
	p, _, _ := newTestPool()
	owner := uuid.New()

	if _, err := p.Unstake(owner, 1); !errors.Is(err, trove.ErrInsufficientFunds) {
		t.Errorf("no stake: got %v", err)
	}

	if _, err := p.Stake(owner, minStake); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := p.Unstake(owner, minStake+1); !errors.Is(err, trove.ErrInsufficientFunds) {
		t.Errorf("over-withdraw: got %v", err)
	}
	if _, err := p.Unstake(owner, 0); !errors.Is(err, trove.ErrInvalidAmount) {
		t.Errorf("zero unstake: got %v", err)
	}
}

func TestStake_MergesCompoundedDeposit(t *testing.T) {
	p, book, protocol := newTestPool()
	owner := uuid.New()

	if _, err := p.Stake(owner, 2*minStake); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := p.AbsorbDebt(minStake, 400, poolDenom); err != nil {
		t.Fatalf("absorb: %v", err)
	}

	// Re-staking merges the compounded remainder, pays out the pending
	// gains, and rebases the snapshots.
	res, err := p.Stake(owner, minStake)
	if err != nil {
		t.Fatalf("second stake: %v", err)
	}
	if res.NewDeposit != 2*minStake {
		t.Errorf("NewDeposit = %d, want %d", res.NewDeposit, 2*minStake)
	}
	if res.Gains[poolDenom] != 400 {
		t.Errorf("gains = %d, want 400", res.Gains[poolDenom])
	}

	s := book.Stake(owner)
	if s.PSnapshot.Cmp(protocol.PFactor) != 0 {
		t.Error("pFactor snapshot not rebased")
	}
	gains, err := p.CollateralGains(s)
	if err != nil {
		t.Fatalf("gains after rebase: %v", err)
	}
	if len(gains) != 0 {
		t.Errorf("unexpected residual gains: %v", gains)
	}
}

func TestWithdrawGains_LeavesStake(t *testing.T) {
	p, book, _ := newTestPool()
	owner := uuid.New()

	if _, err := p.Stake(owner, 2*minStake); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := p.AbsorbDebt(minStake, 250, poolDenom); err != nil {
		t.Fatalf("absorb: %v", err)
	}

	gains, err := p.WithdrawGains(owner)
	if err != nil {
		t.Fatalf("withdraw gains: %v", err)
	}
	if gains[poolDenom] != 250 {
		t.Errorf("gains = %d, want 250", gains[poolDenom])
	}

	// The deposit is rebased to its compounded value.
	s := book.Stake(owner)
	if s.Amount != minStake {
		t.Errorf("rebased deposit = %d, want %d", s.Amount, minStake)
	}

	again, err := p.WithdrawGains(owner)
	if err != nil {
		t.Fatalf("second withdraw: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no residual gains, got %v", again)
	}

	pl := book.Pool(poolDenom)
	if pl.TotalCollateralGained != 0 {
		t.Errorf("outstanding pool gains = %d, want 0", pl.TotalCollateralGained)
	}
}
