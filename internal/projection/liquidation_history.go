package projection

import (
	"github.com/google/uuid"
)

// LiquidationEntry represents one liquidated trove in the history projection.
type LiquidationEntry struct {
	Owner                   uuid.UUID
	Denom                   string
	Path                    string // pool_burn, partial, redistribute
	ICR                     uint64
	Debt                    uint64
	Collateral              uint64
	BurnedFromPool          uint64
	SeizedToPool            uint64
	RedistributedDebt       uint64
	RedistributedCollateral uint64
	Timestamp               int64
}

// LiquidationHistoryProjection maintains a queryable in-memory liquidation
// history alongside the Postgres table, for hot-path queries that should not
// touch the database.
type LiquidationHistoryProjection struct {
	entries []LiquidationEntry
}

func NewLiquidationHistoryProjection() *LiquidationHistoryProjection {
	return &LiquidationHistoryProjection{
		entries: make([]LiquidationEntry, 0),
	}
}

// AddEntry records a liquidation.
func (p *LiquidationHistoryProjection) AddEntry(entry LiquidationEntry) {
	p.entries = append(p.entries, entry)
}

// QueryByOwner returns the most recent liquidations of a trove owner.
func (p *LiquidationHistoryProjection) QueryByOwner(owner uuid.UUID, limit int) []LiquidationEntry {
	result := make([]LiquidationEntry, 0)

	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].Owner == owner {
			result = append(result, p.entries[i])
		}
	}

	return result
}

// QueryByDenom returns the most recent liquidations for a denomination.
func (p *LiquidationHistoryProjection) QueryByDenom(denom string, limit int) []LiquidationEntry {
	result := make([]LiquidationEntry, 0)

	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].Denom == denom {
			result = append(result, p.entries[i])
		}
	}

	return result
}
