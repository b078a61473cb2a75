package event

import (
	"fmt"
)

// CollateralParamUpdate registers a collateral denomination or updates the
// protocol parameters. Zero-valued fields leave the current setting alone.
type CollateralParamUpdate struct {
	Denom           string `json:"denom"`
	Decimals        uint8  `json:"decimals"`          // token base-unit decimals
	MinRatioPercent uint64 `json:"min_ratio_percent"` // plain percent, e.g. 115
	FeePercent      uint64 `json:"fee_percent"`       // plain percent of minted loans
	EffectiveSeq    int64  `json:"effective_seq"`     // Sequence at which params take effect
	Sequence        int64  `json:"sequence"`
	Timestamp       int64  `json:"timestamp_us"`
}

func (e *CollateralParamUpdate) IdempotencyKey() string {
	return fmt.Sprintf("collateral_param:%s:%d", e.Denom, e.EffectiveSeq)
}

func (e *CollateralParamUpdate) EventType() EventType {
	return EventTypeCollateralParamUpdate
}

func (e *CollateralParamUpdate) Partition() string {
	return PartitionGlobal
}

func (e *CollateralParamUpdate) SourceSequence() int64 {
	return e.Sequence
}
