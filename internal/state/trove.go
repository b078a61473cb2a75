package state

import (
	"math/big"
	"sort"

	"github.com/google/uuid"
)

// Trove is one user's loan position. Debt == 0 means the trove is closed.
// DebtSnapshot records L_debt for the trove's denomination at the last
// mutation; the gap to the live accumulator is the user's unapplied
// redistribution debt.
type Trove struct {
	Owner        uuid.UUID
	Debt         uint64
	DebtSnapshot *big.Int

	// CachedICR is refreshed on every debt/collateral mutation; external
	// callers use it to maintain their sorted index.
	CachedICR uint64

	Version int64
}

// CollateralPosition is one (user, denomination) collateral record.
type CollateralPosition struct {
	Owner              uuid.UUID
	Denom              string
	Amount             uint64
	CollateralSnapshot *big.Int

	Version int64
}

// CollateralTotals is the per-denomination aggregate plus the two global
// redistribution accumulators, scaled by ScaleFactor.
type CollateralTotals struct {
	Denom       string
	Amount      uint64
	LDebt       *big.Int
	LCollateral *big.Int

	// Decimals is the token's native decimal count, registered via the
	// collateral-params admin event and used for price normalization.
	Decimals uint8
}

type collateralKey struct {
	owner uuid.UUID
	denom string
}

// TroveBook owns every trove, collateral position, and per-denomination
// totals record. Only the single-threaded core mutates it.
type TroveBook struct {
	troves     map[uuid.UUID]*Trove
	collateral map[collateralKey]*CollateralPosition
	totals     map[string]*CollateralTotals
}

func NewTroveBook() *TroveBook {
	return &TroveBook{
		troves:     make(map[uuid.UUID]*Trove),
		collateral: make(map[collateralKey]*CollateralPosition),
		totals:     make(map[string]*CollateralTotals),
	}
}

// RegisterDenom creates (or updates the decimals of) a denomination's totals
// record. Accumulators start at zero.
func (b *TroveBook) RegisterDenom(denom string, decimals uint8) *CollateralTotals {
	t, ok := b.totals[denom]
	if !ok {
		t = &CollateralTotals{
			Denom:       denom,
			LDebt:       new(big.Int),
			LCollateral: new(big.Int),
		}
		b.totals[denom] = t
	}
	t.Decimals = decimals
	return t
}

// Totals returns the totals record for denom, or nil if never registered.
func (b *TroveBook) Totals(denom string) *CollateralTotals {
	return b.totals[denom]
}

// AllDenoms returns registered denominations in deterministic order.
func (b *TroveBook) AllDenoms() []string {
	denoms := make([]string, 0, len(b.totals))
	for d := range b.totals {
		denoms = append(denoms, d)
	}
	sort.Strings(denoms)
	return denoms
}

// AllTotals returns every totals record in denom order.
func (b *TroveBook) AllTotals() []*CollateralTotals {
	out := make([]*CollateralTotals, 0, len(b.totals))
	for _, d := range b.AllDenoms() {
		out = append(out, b.totals[d])
	}
	return out
}

// Trove returns the user's trove, or nil if none exists yet.
func (b *TroveBook) Trove(owner uuid.UUID) *Trove {
	return b.troves[owner]
}

// EnsureTrove returns the user's trove, creating a closed one on first use.
func (b *TroveBook) EnsureTrove(owner uuid.UUID) *Trove {
	t, ok := b.troves[owner]
	if !ok {
		t = &Trove{Owner: owner, DebtSnapshot: new(big.Int)}
		b.troves[owner] = t
	}
	return t
}

// Collateral returns the (owner, denom) position, or nil.
func (b *TroveBook) Collateral(owner uuid.UUID, denom string) *CollateralPosition {
	return b.collateral[collateralKey{owner, denom}]
}

// EnsureCollateral returns the (owner, denom) position, creating an empty one
// on first use.
func (b *TroveBook) EnsureCollateral(owner uuid.UUID, denom string) *CollateralPosition {
	key := collateralKey{owner, denom}
	c, ok := b.collateral[key]
	if !ok {
		c = &CollateralPosition{Owner: owner, Denom: denom, CollateralSnapshot: new(big.Int)}
		b.collateral[key] = c
	}
	return c
}

// AllTroves returns every trove sorted by owner for deterministic iteration.
func (b *TroveBook) AllTroves() []*Trove {
	out := make([]*Trove, 0, len(b.troves))
	for _, t := range b.troves {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Owner.String() < out[j].Owner.String()
	})
	return out
}

// AllCollateral returns every collateral position sorted by (owner, denom).
func (b *TroveBook) AllCollateral() []*CollateralPosition {
	out := make([]*CollateralPosition, 0, len(b.collateral))
	for _, c := range b.collateral {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner.String() < out[j].Owner.String()
		}
		return out[i].Denom < out[j].Denom
	})
	return out
}

// SetTrove installs a trove directly (snapshot restore).
func (b *TroveBook) SetTrove(t *Trove) {
	if t.DebtSnapshot == nil {
		t.DebtSnapshot = new(big.Int)
	}
	b.troves[t.Owner] = t
}

// SetCollateral installs a collateral position directly (snapshot restore).
func (b *TroveBook) SetCollateral(c *CollateralPosition) {
	if c.CollateralSnapshot == nil {
		c.CollateralSnapshot = new(big.Int)
	}
	b.collateral[collateralKey{c.Owner, c.Denom}] = c
}

// SetTotals installs a totals record directly (snapshot restore).
func (b *TroveBook) SetTotals(t *CollateralTotals) {
	if t.LDebt == nil {
		t.LDebt = new(big.Int)
	}
	if t.LCollateral == nil {
		t.LCollateral = new(big.Int)
	}
	b.totals[t.Denom] = t
}
