package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeTroveOpen
	EventTypeTroveBorrow
	EventTypeTroveRepay
	EventTypeCollateralAdd
	EventTypeCollateralRemove
	EventTypePoolStake
	EventTypePoolUnstake
	EventTypePoolWithdrawGains
	EventTypeLiquidationRequest
	EventTypeRedemptionRequest
	EventTypePriceUpdate
	EventTypeCollateralParamUpdate
)

// PartitionGlobal orders protocol-wide events (liquidations, redemptions,
// parameter updates) on a single sequence lane.
const PartitionGlobal = "global"

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Partition key the event was sequence-validated on
	Partition string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Partition returns the sequence-validation lane
	Partition() string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeTroveOpen:
		return "TroveOpen"
	case EventTypeTroveBorrow:
		return "TroveBorrow"
	case EventTypeTroveRepay:
		return "TroveRepay"
	case EventTypeCollateralAdd:
		return "CollateralAdd"
	case EventTypeCollateralRemove:
		return "CollateralRemove"
	case EventTypePoolStake:
		return "PoolStake"
	case EventTypePoolUnstake:
		return "PoolUnstake"
	case EventTypePoolWithdrawGains:
		return "PoolWithdrawGains"
	case EventTypeLiquidationRequest:
		return "LiquidationRequest"
	case EventTypeRedemptionRequest:
		return "RedemptionRequest"
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeCollateralParamUpdate:
		return "CollateralParamUpdate"
	default:
		return "Unknown"
	}
}
