package event

import (
	"github.com/google/uuid"
)

// RedemptionRequest exchanges stablecoin for collateral against the listed
// troves. Candidates must arrive sorted by ascending collateral ratio; the
// core validates the order and rejects the whole request otherwise.
type RedemptionRequest struct {
	TxID       uuid.UUID   `json:"tx_id"`
	Redeemer   uuid.UUID   `json:"redeemer"`
	Denom      string      `json:"denom"`
	Amount     uint64      `json:"amount"`
	Candidates []uuid.UUID `json:"candidates"`
	Sequence   int64       `json:"sequence"`
	Timestamp  int64       `json:"timestamp_us"`
}

func (e *RedemptionRequest) IdempotencyKey() string {
	return e.TxID.String()
}

func (e *RedemptionRequest) EventType() EventType {
	return EventTypeRedemptionRequest
}

func (e *RedemptionRequest) Partition() string {
	return PartitionGlobal
}

func (e *RedemptionRequest) SourceSequence() int64 {
	return e.Sequence
}
