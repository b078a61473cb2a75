package ingestion

import (
	"TroveLedger/internal/event"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GRPCIngestService provides admin/manual event injection via gRPC.
// Admin injection is for operational use (registering a collateral
// denomination, forcing a price, kicking off a liquidation sweep), not for
// high-throughput ingestion; NATS covers that.
type GRPCIngestService struct {
	eventChan chan<- event.Event
}

func NewGRPCIngestService(eventChan chan<- event.Event) *GRPCIngestService {
	return &GRPCIngestService{eventChan: eventChan}
}

// InjectPrice manually injects a PriceUpdate event.
func (s *GRPCIngestService) InjectPrice(
	ctx context.Context,
	denom string,
	price uint64,
	decimalExponent uint8,
	priceSequence int64,
) error {
	if price == 0 {
		return fmt.Errorf("price must be positive")
	}

	evt := &event.PriceUpdate{
		Denom:           denom,
		Price:           price,
		DecimalExponent: decimalExponent,
		Confidence:      price, // Admin-injected: fully confident
		PriceSequence:   priceSequence,
		PriceTimestamp:  time.Now().UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectCollateralParams manually injects a CollateralParamUpdate event.
func (s *GRPCIngestService) InjectCollateralParams(
	ctx context.Context,
	denom string,
	decimals uint8,
	minRatioPercent uint64,
	feePercent uint64,
) error {
	if denom == "" {
		return fmt.Errorf("denom is required")
	}

	now := time.Now().UnixMicro()
	evt := &event.CollateralParamUpdate{
		Denom:           denom,
		Decimals:        decimals,
		MinRatioPercent: minRatioPercent,
		FeePercent:      feePercent,
		EffectiveSeq:    now, // Admin-injected: use timestamp as sequence
		Sequence:        now,
		Timestamp:       now,
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectLiquidation manually injects a LiquidationRequest event for the
// given trove owners.
func (s *GRPCIngestService) InjectLiquidation(
	ctx context.Context,
	caller uuid.UUID,
	denom string,
	owners []uuid.UUID,
) error {
	if len(owners) == 0 {
		return fmt.Errorf("at least one owner is required")
	}

	now := time.Now().UnixMicro()
	evt := &event.LiquidationRequest{
		TxID:      uuid.New(),
		Caller:    caller,
		Denom:     denom,
		Owners:    owners,
		Sequence:  now,
		Timestamp: now,
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
