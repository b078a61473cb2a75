package event

import (
	"fmt"

	"github.com/google/uuid"
)

// TroveOpen creates a trove with initial debt and collateral.
// JSON tags mirror the wire format so stored payloads replay through the
// same parser that handles live NATS traffic.
type TroveOpen struct {
	TxID       uuid.UUID `json:"tx_id"`
	Owner      uuid.UUID `json:"owner"`
	Denom      string    `json:"denom"`
	Debt       uint64    `json:"debt"`
	Collateral uint64    `json:"collateral"`
	PrevICR    *uint64   `json:"prev_icr,omitempty"` // optional sorted-index hint
	NextICR    *uint64   `json:"next_icr,omitempty"`
	Sequence   int64     `json:"sequence"`
	Timestamp  int64     `json:"timestamp_us"` // Epoch microseconds (versioned input)
}

func (e *TroveOpen) IdempotencyKey() string {
	return e.TxID.String()
}

func (e *TroveOpen) EventType() EventType {
	return EventTypeTroveOpen
}

func (e *TroveOpen) Partition() string {
	return "user:" + e.Owner.String()
}

func (e *TroveOpen) SourceSequence() int64 {
	return e.Sequence
}

// TroveBorrow mints additional debt against an open trove.
type TroveBorrow struct {
	TxID      uuid.UUID `json:"tx_id"`
	Owner     uuid.UUID `json:"owner"`
	Denom     string    `json:"denom"`
	Amount    uint64    `json:"amount"`
	PrevICR   *uint64   `json:"prev_icr,omitempty"`
	NextICR   *uint64   `json:"next_icr,omitempty"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"`
}

func (e *TroveBorrow) IdempotencyKey() string {
	return e.TxID.String()
}

func (e *TroveBorrow) EventType() EventType {
	return EventTypeTroveBorrow
}

func (e *TroveBorrow) Partition() string {
	return "user:" + e.Owner.String()
}

func (e *TroveBorrow) SourceSequence() int64 {
	return e.Sequence
}

// TroveRepay burns stablecoin against the trove's debt; repaying everything
// closes the trove.
type TroveRepay struct {
	TxID      uuid.UUID `json:"tx_id"`
	Owner     uuid.UUID `json:"owner"`
	Denom     string    `json:"denom"`
	Amount    uint64    `json:"amount"`
	PrevICR   *uint64   `json:"prev_icr,omitempty"`
	NextICR   *uint64   `json:"next_icr,omitempty"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"`
}

func (e *TroveRepay) IdempotencyKey() string {
	return e.TxID.String()
}

func (e *TroveRepay) EventType() EventType {
	return EventTypeTroveRepay
}

func (e *TroveRepay) Partition() string {
	return "user:" + e.Owner.String()
}

func (e *TroveRepay) SourceSequence() int64 {
	return e.Sequence
}

// CollateralAdd tops up the trove's collateral position.
type CollateralAdd struct {
	TxID      uuid.UUID `json:"tx_id"`
	Owner     uuid.UUID `json:"owner"`
	Denom     string    `json:"denom"`
	Amount    uint64    `json:"amount"`
	PrevICR   *uint64   `json:"prev_icr,omitempty"`
	NextICR   *uint64   `json:"next_icr,omitempty"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"`
}

func (e *CollateralAdd) IdempotencyKey() string {
	return fmt.Sprintf("%s:add", e.TxID)
}

func (e *CollateralAdd) EventType() EventType {
	return EventTypeCollateralAdd
}

func (e *CollateralAdd) Partition() string {
	return "user:" + e.Owner.String()
}

func (e *CollateralAdd) SourceSequence() int64 {
	return e.Sequence
}

// CollateralRemove withdraws collateral, subject to the minimum ratio.
type CollateralRemove struct {
	TxID      uuid.UUID `json:"tx_id"`
	Owner     uuid.UUID `json:"owner"`
	Denom     string    `json:"denom"`
	Amount    uint64    `json:"amount"`
	PrevICR   *uint64   `json:"prev_icr,omitempty"`
	NextICR   *uint64   `json:"next_icr,omitempty"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"`
}

func (e *CollateralRemove) IdempotencyKey() string {
	return fmt.Sprintf("%s:remove", e.TxID)
}

func (e *CollateralRemove) EventType() EventType {
	return EventTypeCollateralRemove
}

func (e *CollateralRemove) Partition() string {
	return "user:" + e.Owner.String()
}

func (e *CollateralRemove) SourceSequence() int64 {
	return e.Sequence
}
