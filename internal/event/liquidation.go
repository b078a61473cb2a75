package event

import (
	"github.com/google/uuid"
)

// LiquidationRequest asks the core to liquidate up to a batch of troves.
// Per-trove ineligibility is reported, not fatal.
type LiquidationRequest struct {
	TxID      uuid.UUID   `json:"tx_id"`
	Caller    uuid.UUID   `json:"caller"`
	Denom     string      `json:"denom"`
	Owners    []uuid.UUID `json:"owners"`
	Sequence  int64       `json:"sequence"`
	Timestamp int64       `json:"timestamp_us"`
}

func (e *LiquidationRequest) IdempotencyKey() string {
	return e.TxID.String()
}

func (e *LiquidationRequest) EventType() EventType {
	return EventTypeLiquidationRequest
}

// Partition is global: liquidations touch the pool and the redistribution
// accumulators, so they serialize against every other risk operation.
func (e *LiquidationRequest) Partition() string {
	return PartitionGlobal
}

func (e *LiquidationRequest) SourceSequence() int64 {
	return e.Sequence
}
