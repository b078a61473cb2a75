package event

import "fmt"

// PriceUpdate carries one oracle quote for a collateral denomination.
// PriceSequence is monotonic per denom; stale updates are silently dropped
// and gaps are tolerated.
type PriceUpdate struct {
	Denom           string `json:"denom"`
	Price           uint64 `json:"price"`
	DecimalExponent uint8  `json:"decimal_exponent"`
	Confidence      uint64 `json:"confidence"`
	PriceSequence   int64  `json:"price_sequence"`
	PriceTimestamp  int64  `json:"price_timestamp_us"` // Epoch microseconds (versioned input)
}

func (e *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:price:%d", e.Denom, e.PriceSequence)
}

func (e *PriceUpdate) EventType() EventType {
	return EventTypePriceUpdate
}

func (e *PriceUpdate) Partition() string {
	return "price:" + e.Denom
}

func (e *PriceUpdate) SourceSequence() int64 {
	return e.PriceSequence
}
