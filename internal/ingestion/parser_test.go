package ingestion_test

import (
	"TroveLedger/internal/event"
	"TroveLedger/internal/ingestion"
	"encoding/json"
	"testing"
	"time"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseTroveOpen(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":        "550e8400-e29b-41d4-a716-446655440000",
		"owner":        "660e8400-e29b-41d4-a716-446655440001",
		"denom":        "ATOM",
		"debt":         uint64(2_000_000_000_000_000),
		"collateral":   uint64(50_000_000),
		"sequence":     int64(42),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "TroveOpen")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	to, ok := evt.(*event.TroveOpen)
	if !ok {
		t.Fatalf("expected *event.TroveOpen, got %T", evt)
	}

	if to.Denom != "ATOM" {
		t.Errorf("denom: got %s, want ATOM", to.Denom)
	}
	if to.Debt != 2_000_000_000_000_000 {
		t.Errorf("debt: got %d, want 2_000_000_000_000_000", to.Debt)
	}
	if to.Collateral != 50_000_000 {
		t.Errorf("collateral: got %d, want 50_000_000", to.Collateral)
	}
	if to.PrevICR != nil || to.NextICR != nil {
		t.Error("hints: expected nil when omitted from payload")
	}
	if to.Sequence != 42 {
		t.Errorf("sequence: got %d, want 42", to.Sequence)
	}
	if to.EventType() != event.EventTypeTroveOpen {
		t.Errorf("event type: got %v, want TroveOpen", to.EventType())
	}
}

func TestParseTroveOpen_WithHints(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":        "550e8400-e29b-41d4-a716-446655440000",
		"owner":        "660e8400-e29b-41d4-a716-446655440001",
		"denom":        "ATOM",
		"debt":         uint64(2_000_000_000_000_000),
		"collateral":   uint64(50_000_000),
		"prev_icr":     uint64(1_200_000),
		"next_icr":     uint64(1_500_000),
		"sequence":     int64(43),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "TroveOpen")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	to := evt.(*event.TroveOpen)
	if to.PrevICR == nil || *to.PrevICR != 1_200_000 {
		t.Errorf("prev_icr: got %v, want 1_200_000", to.PrevICR)
	}
	if to.NextICR == nil || *to.NextICR != 1_500_000 {
		t.Errorf("next_icr: got %v, want 1_500_000", to.NextICR)
	}
}

func TestParseTroveRepay(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":        "550e8400-e29b-41d4-a716-446655440000",
		"owner":        "660e8400-e29b-41d4-a716-446655440001",
		"denom":        "ATOM",
		"amount":       uint64(1_000_000_000_000_000),
		"sequence":     int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "TroveRepay")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tr, ok := evt.(*event.TroveRepay)
	if !ok {
		t.Fatalf("expected *event.TroveRepay, got %T", evt)
	}

	if tr.Amount != 1_000_000_000_000_000 {
		t.Errorf("amount: got %d, want 1_000_000_000_000_000", tr.Amount)
	}
	if tr.EventType() != event.EventTypeTroveRepay {
		t.Errorf("event type: got %v, want TroveRepay", tr.EventType())
	}
}

func TestParsePoolStake(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":        "550e8400-e29b-41d4-a716-446655440000",
		"owner":        "660e8400-e29b-41d4-a716-446655440001",
		"amount":       uint64(5_000_000_000_000_000),
		"sequence":     int64(3),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PoolStake")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ps, ok := evt.(*event.PoolStake)
	if !ok {
		t.Fatalf("expected *event.PoolStake, got %T", evt)
	}

	if ps.Amount != 5_000_000_000_000_000 {
		t.Errorf("amount: got %d, want 5_000_000_000_000_000", ps.Amount)
	}
	if ps.EventType() != event.EventTypePoolStake {
		t.Errorf("event type: got %v, want PoolStake", ps.EventType())
	}
}

func TestParseLiquidationRequest(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":  "550e8400-e29b-41d4-a716-446655440000",
		"caller": "660e8400-e29b-41d4-a716-446655440001",
		"denom":  "ATOM",
		"owners": []string{
			"770e8400-e29b-41d4-a716-446655440002",
			"880e8400-e29b-41d4-a716-446655440003",
		},
		"sequence":     int64(9),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "LiquidationRequest")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	lr, ok := evt.(*event.LiquidationRequest)
	if !ok {
		t.Fatalf("expected *event.LiquidationRequest, got %T", evt)
	}

	if len(lr.Owners) != 2 {
		t.Errorf("owners: got %d, want 2", len(lr.Owners))
	}
	if lr.Partition() != event.PartitionGlobal {
		t.Errorf("partition: got %s, want global", lr.Partition())
	}
}

func TestParseRedemptionRequest(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":    "550e8400-e29b-41d4-a716-446655440000",
		"redeemer": "660e8400-e29b-41d4-a716-446655440001",
		"denom":    "ATOM",
		"amount":   uint64(500_000),
		"candidates": []string{
			"770e8400-e29b-41d4-a716-446655440002",
		},
		"sequence":     int64(11),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "RedemptionRequest")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rr, ok := evt.(*event.RedemptionRequest)
	if !ok {
		t.Fatalf("expected *event.RedemptionRequest, got %T", evt)
	}

	if rr.Amount != 500_000 {
		t.Errorf("amount: got %d, want 500_000", rr.Amount)
	}
	if len(rr.Candidates) != 1 {
		t.Errorf("candidates: got %d, want 1", len(rr.Candidates))
	}
}

func TestParsePriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"denom":              "ATOM",
		"price":              uint64(8_500_000),
		"decimal_exponent":   uint8(6),
		"confidence":         uint64(8_000),
		"price_sequence":     int64(100),
		"price_timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pu, ok := evt.(*event.PriceUpdate)
	if !ok {
		t.Fatalf("expected *event.PriceUpdate, got %T", evt)
	}

	if pu.Denom != "ATOM" {
		t.Errorf("denom: got %s, want ATOM", pu.Denom)
	}
	if pu.Price != 8_500_000 {
		t.Errorf("price: got %d, want 8_500_000", pu.Price)
	}
	if pu.PriceSequence != 100 {
		t.Errorf("price_sequence: got %d, want 100", pu.PriceSequence)
	}
}

func TestParseCollateralParamUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"denom":             "OSMO",
		"decimals":          uint8(6),
		"min_ratio_percent": uint64(115),
		"fee_percent":       uint64(5),
		"effective_seq":     int64(99),
		"sequence":          int64(1),
		"timestamp_us":      int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "CollateralParamUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cp, ok := evt.(*event.CollateralParamUpdate)
	if !ok {
		t.Fatalf("expected *event.CollateralParamUpdate, got %T", evt)
	}

	if cp.Denom != "OSMO" {
		t.Errorf("denom: got %s, want OSMO", cp.Denom)
	}
	if cp.MinRatioPercent != 115 {
		t.Errorf("min_ratio_percent: got %d, want 115", cp.MinRatioPercent)
	}
	if cp.FeePercent != 5 {
		t.Errorf("fee_percent: got %d, want 5", cp.FeePercent)
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "TroveOpen")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"tx_id":        "not-a-uuid",
		"owner":        "also-not-a-uuid",
		"denom":        "ATOM",
		"debt":         uint64(1),
		"collateral":   uint64(1),
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "TroveOpen")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
