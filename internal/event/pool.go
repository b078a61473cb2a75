package event

import (
	"fmt"

	"github.com/google/uuid"
)

// PoolStake deposits stablecoin into the stability pool.
type PoolStake struct {
	TxID      uuid.UUID `json:"tx_id"`
	Owner     uuid.UUID `json:"owner"`
	Amount    uint64    `json:"amount"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"`
}

func (e *PoolStake) IdempotencyKey() string {
	return e.TxID.String()
}

func (e *PoolStake) EventType() EventType {
	return EventTypePoolStake
}

func (e *PoolStake) Partition() string {
	return "user:" + e.Owner.String()
}

func (e *PoolStake) SourceSequence() int64 {
	return e.Sequence
}

// PoolUnstake withdraws against the compounded stake.
type PoolUnstake struct {
	TxID      uuid.UUID `json:"tx_id"`
	Owner     uuid.UUID `json:"owner"`
	Amount    uint64    `json:"amount"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"`
}

func (e *PoolUnstake) IdempotencyKey() string {
	return e.TxID.String()
}

func (e *PoolUnstake) EventType() EventType {
	return EventTypePoolUnstake
}

func (e *PoolUnstake) Partition() string {
	return "user:" + e.Owner.String()
}

func (e *PoolUnstake) SourceSequence() int64 {
	return e.Sequence
}

// PoolWithdrawGains pays out accrued collateral gains, leaving the stake.
type PoolWithdrawGains struct {
	TxID      uuid.UUID `json:"tx_id"`
	Owner     uuid.UUID `json:"owner"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"`
}

func (e *PoolWithdrawGains) IdempotencyKey() string {
	return fmt.Sprintf("%s:gains", e.TxID)
}

func (e *PoolWithdrawGains) EventType() EventType {
	return EventTypePoolWithdrawGains
}

func (e *PoolWithdrawGains) Partition() string {
	return "user:" + e.Owner.String()
}

func (e *PoolWithdrawGains) SourceSequence() int64 {
	return e.Sequence
}
