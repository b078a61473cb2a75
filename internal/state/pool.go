package state

import (
	"math/big"
	"sort"

	"github.com/google/uuid"
)

// PoolSnapshot is the per-denomination stability-pool reward record:
// sFactor is cumulative collateral-per-unit-staked scaled by ScaleFactor,
// restarting from zero each epoch. EpochEndS freezes the terminal sFactor of
// every finished epoch so depositors who lived through a full depletion can
// still collect the gains from the liquidation that depleted the pool.
type PoolSnapshot struct {
	Denom                 string
	SFactor               *big.Int
	EpochEndS             map[uint64]*big.Int
	TotalCollateralGained uint64
	Epoch                 uint64
}

// UserStake is one stability-pool depositor's record. Amount is the nominal
// deposit; the compounded (post-depletion) stake is derived lazily from the
// pFactor snapshot. SSnapshots records sFactor per denomination at the last
// deposit/withdrawal so gains accrue only from that point.
type UserStake struct {
	Owner         uuid.UUID
	Amount        uint64
	PSnapshot     *big.Int
	EpochSnapshot uint64
	SSnapshots    map[string]*big.Int

	Version int64
}

// StakeBook owns the stability-pool records. Only the single-threaded core
// mutates it.
type StakeBook struct {
	stakes map[uuid.UUID]*UserStake
	pools  map[string]*PoolSnapshot
}

func NewStakeBook() *StakeBook {
	return &StakeBook{
		stakes: make(map[uuid.UUID]*UserStake),
		pools:  make(map[string]*PoolSnapshot),
	}
}

// Stake returns the user's stake record, or nil.
func (b *StakeBook) Stake(owner uuid.UUID) *UserStake {
	return b.stakes[owner]
}

// EnsureStake returns the user's stake record, creating an empty one on
// first use.
func (b *StakeBook) EnsureStake(owner uuid.UUID) *UserStake {
	s, ok := b.stakes[owner]
	if !ok {
		s = &UserStake{
			Owner:      owner,
			PSnapshot:  new(big.Int),
			SSnapshots: make(map[string]*big.Int),
		}
		b.stakes[owner] = s
	}
	return s
}

// Pool returns the pool snapshot for denom, creating it on first use.
func (b *StakeBook) Pool(denom string) *PoolSnapshot {
	p, ok := b.pools[denom]
	if !ok {
		p = &PoolSnapshot{
			Denom:     denom,
			SFactor:   new(big.Int),
			EpochEndS: make(map[uint64]*big.Int),
		}
		b.pools[denom] = p
	}
	return p
}

// AllStakes returns every stake sorted by owner for deterministic iteration.
func (b *StakeBook) AllStakes() []*UserStake {
	out := make([]*UserStake, 0, len(b.stakes))
	for _, s := range b.stakes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Owner.String() < out[j].Owner.String()
	})
	return out
}

// AllPools returns every pool snapshot sorted by denom.
func (b *StakeBook) AllPools() []*PoolSnapshot {
	out := make([]*PoolSnapshot, 0, len(b.pools))
	for _, p := range b.pools {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	return out
}

// SetStake installs a stake record directly (snapshot restore).
func (b *StakeBook) SetStake(s *UserStake) {
	if s.PSnapshot == nil {
		s.PSnapshot = new(big.Int)
	}
	if s.SSnapshots == nil {
		s.SSnapshots = make(map[string]*big.Int)
	}
	b.stakes[s.Owner] = s
}

// SetPool installs a pool snapshot directly (snapshot restore).
func (b *StakeBook) SetPool(p *PoolSnapshot) {
	if p.SFactor == nil {
		p.SFactor = new(big.Int)
	}
	if p.EpochEndS == nil {
		p.EpochEndS = make(map[uint64]*big.Int)
	}
	b.pools[p.Denom] = p
}
