package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// Snapshots contain balances, troves, collateral positions, pool state,
// oracle quotes, idempotency keys, sequence counters, and the state hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData contains the full in-memory state at a point in time.
// Accumulators are serialized as decimal strings because they exceed int64.
type SnapshotData struct {
	Sequence        int64                 `json:"sequence"`
	StateHash       []byte                `json:"state_hash"`
	Balances        map[string]int64      `json:"balances"` // AccountPath -> balance
	Assets          []string              `json:"assets"`
	Protocol        *ProtocolSnap         `json:"protocol"`
	Troves          []TroveSnap           `json:"troves"`
	Collateral      []CollateralSnap      `json:"collateral"`
	Totals          []TotalsSnap          `json:"totals"`
	Stakes          []StakeSnap           `json:"stakes"`
	Pools           []PoolSnap            `json:"pools"`
	Prices          map[string]PriceSnap  `json:"prices"`         // denom -> quote
	SequenceState   map[string]int64      `json:"sequence_state"` // partition -> next expected seq
	IdempotencyKeys []string              `json:"idempotency_keys"`
	CreatedAt       time.Time             `json:"created_at"`
}

// ProtocolSnap is the serializable protocol-wide state.
type ProtocolSnap struct {
	TotalDebt              uint64 `json:"total_debt"`
	TotalStake             uint64 `json:"total_stake"`
	PFactor                string `json:"p_factor"`
	Epoch                  uint64 `json:"epoch"`
	MinimumCollateralRatio uint64 `json:"minimum_collateral_ratio"`
	ProtocolFeePercent     uint64 `json:"protocol_fee_percent"`
}

// TroveSnap is a serializable trove.
type TroveSnap struct {
	Owner        string `json:"owner"`
	Debt         uint64 `json:"debt"`
	DebtSnapshot string `json:"debt_snapshot"`
	CachedICR    uint64 `json:"cached_icr"`
	Version      int64  `json:"version"`
}

// CollateralSnap is a serializable collateral position.
type CollateralSnap struct {
	Owner              string `json:"owner"`
	Denom              string `json:"denom"`
	Amount             uint64 `json:"amount"`
	CollateralSnapshot string `json:"collateral_snapshot"`
	Version            int64  `json:"version"`
}

// TotalsSnap is a serializable per-denomination totals record.
type TotalsSnap struct {
	Denom       string `json:"denom"`
	Amount      uint64 `json:"amount"`
	LDebt       string `json:"l_debt"`
	LCollateral string `json:"l_collateral"`
	Decimals    uint8  `json:"decimals"`
}

// StakeSnap is a serializable stability pool deposit.
type StakeSnap struct {
	Owner         string            `json:"owner"`
	Amount        uint64            `json:"amount"`
	PSnapshot     string            `json:"p_snapshot"`
	EpochSnapshot uint64            `json:"epoch_snapshot"`
	SSnapshots    map[string]string `json:"s_snapshots"` // denom -> sFactor
	Version       int64             `json:"version"`
}

// PoolSnap is a serializable per-denomination pool gain record.
type PoolSnap struct {
	Denom                 string            `json:"denom"`
	SFactor               string            `json:"s_factor"`
	EpochEndS             map[uint64]string `json:"epoch_end_s"` // epoch -> terminal sFactor
	TotalCollateralGained uint64            `json:"total_collateral_gained"`
	Epoch                 uint64            `json:"epoch"`
}

// PriceSnap is a serializable oracle quote.
type PriceSnap struct {
	Price           uint64 `json:"price"`
	DecimalExponent uint8  `json:"decimal_exponent"`
	Confidence      uint64 `json:"confidence"`
	Timestamp       int64  `json:"timestamp_us"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically (every N events) plus once on graceful shutdown.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO trove_ledger.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. On warm
// restart the caller restores from it and replays events from sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM trove_ledger.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot — cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE trove_ledger.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay. Used for
// warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, partition, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM trove_ledger.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Partition,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM trove_ledger.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
