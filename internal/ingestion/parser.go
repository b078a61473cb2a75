package ingestion

import (
	"TroveLedger/internal/event"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// events before sending to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "TroveOpen":
		return parseTroveOpen(raw.Data)
	case "TroveBorrow":
		return parseTroveBorrow(raw.Data)
	case "TroveRepay":
		return parseTroveRepay(raw.Data)
	case "CollateralAdd":
		return parseCollateralAdd(raw.Data)
	case "CollateralRemove":
		return parseCollateralRemove(raw.Data)
	case "PoolStake":
		return parsePoolStake(raw.Data)
	case "PoolUnstake":
		return parsePoolUnstake(raw.Data)
	case "PoolWithdrawGains":
		return parsePoolWithdrawGains(raw.Data)
	case "LiquidationRequest":
		return parseLiquidationRequest(raw.Data)
	case "RedemptionRequest":
		return parseRedemptionRequest(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	case "CollateralParamUpdate":
		return parseCollateralParamUpdate(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type troveOpenJSON struct {
	TxID        string  `json:"tx_id"`
	Owner       string  `json:"owner"`
	Denom       string  `json:"denom"`
	Debt        uint64  `json:"debt"`
	Collateral  uint64  `json:"collateral"`
	PrevICR     *uint64 `json:"prev_icr,omitempty"`
	NextICR     *uint64 `json:"next_icr,omitempty"`
	Sequence    int64   `json:"sequence"`
	TimestampUs int64   `json:"timestamp_us"`
}

func parseTroveOpen(data []byte) (*event.TroveOpen, error) {
	var j troveOpenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TroveOpen: %w", err)
	}

	txID, err := uuid.Parse(j.TxID)
	if err != nil {
		return nil, fmt.Errorf("parse tx_id: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}

	return &event.TroveOpen{
		TxID:       txID,
		Owner:      owner,
		Denom:      j.Denom,
		Debt:       j.Debt,
		Collateral: j.Collateral,
		PrevICR:    j.PrevICR,
		NextICR:    j.NextICR,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

type troveAdjustJSON struct {
	TxID        string  `json:"tx_id"`
	Owner       string  `json:"owner"`
	Denom       string  `json:"denom"`
	Amount      uint64  `json:"amount"`
	PrevICR     *uint64 `json:"prev_icr,omitempty"`
	NextICR     *uint64 `json:"next_icr,omitempty"`
	Sequence    int64   `json:"sequence"`
	TimestampUs int64   `json:"timestamp_us"`
}

func (j *troveAdjustJSON) ids() (uuid.UUID, uuid.UUID, error) {
	txID, err := uuid.Parse(j.TxID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parse tx_id: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parse owner: %w", err)
	}
	return txID, owner, nil
}

func parseTroveBorrow(data []byte) (*event.TroveBorrow, error) {
	var j troveAdjustJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TroveBorrow: %w", err)
	}
	txID, owner, err := j.ids()
	if err != nil {
		return nil, err
	}
	return &event.TroveBorrow{
		TxID:      txID,
		Owner:     owner,
		Denom:     j.Denom,
		Amount:    j.Amount,
		PrevICR:   j.PrevICR,
		NextICR:   j.NextICR,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

func parseTroveRepay(data []byte) (*event.TroveRepay, error) {
	var j troveAdjustJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TroveRepay: %w", err)
	}
	txID, owner, err := j.ids()
	if err != nil {
		return nil, err
	}
	return &event.TroveRepay{
		TxID:      txID,
		Owner:     owner,
		Denom:     j.Denom,
		Amount:    j.Amount,
		PrevICR:   j.PrevICR,
		NextICR:   j.NextICR,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

func parseCollateralAdd(data []byte) (*event.CollateralAdd, error) {
	var j troveAdjustJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CollateralAdd: %w", err)
	}
	txID, owner, err := j.ids()
	if err != nil {
		return nil, err
	}
	return &event.CollateralAdd{
		TxID:      txID,
		Owner:     owner,
		Denom:     j.Denom,
		Amount:    j.Amount,
		PrevICR:   j.PrevICR,
		NextICR:   j.NextICR,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

func parseCollateralRemove(data []byte) (*event.CollateralRemove, error) {
	var j troveAdjustJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CollateralRemove: %w", err)
	}
	txID, owner, err := j.ids()
	if err != nil {
		return nil, err
	}
	return &event.CollateralRemove{
		TxID:      txID,
		Owner:     owner,
		Denom:     j.Denom,
		Amount:    j.Amount,
		PrevICR:   j.PrevICR,
		NextICR:   j.NextICR,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type poolOpJSON struct {
	TxID        string `json:"tx_id"`
	Owner       string `json:"owner"`
	Amount      uint64 `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func (j *poolOpJSON) ids() (uuid.UUID, uuid.UUID, error) {
	txID, err := uuid.Parse(j.TxID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parse tx_id: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("parse owner: %w", err)
	}
	return txID, owner, nil
}

func parsePoolStake(data []byte) (*event.PoolStake, error) {
	var j poolOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolStake: %w", err)
	}
	txID, owner, err := j.ids()
	if err != nil {
		return nil, err
	}
	return &event.PoolStake{
		TxID:      txID,
		Owner:     owner,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

func parsePoolUnstake(data []byte) (*event.PoolUnstake, error) {
	var j poolOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolUnstake: %w", err)
	}
	txID, owner, err := j.ids()
	if err != nil {
		return nil, err
	}
	return &event.PoolUnstake{
		TxID:      txID,
		Owner:     owner,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

func parsePoolWithdrawGains(data []byte) (*event.PoolWithdrawGains, error) {
	var j poolOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PoolWithdrawGains: %w", err)
	}
	txID, owner, err := j.ids()
	if err != nil {
		return nil, err
	}
	return &event.PoolWithdrawGains{
		TxID:      txID,
		Owner:     owner,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type liquidationRequestJSON struct {
	TxID        string   `json:"tx_id"`
	Caller      string   `json:"caller"`
	Denom       string   `json:"denom"`
	Owners      []string `json:"owners"`
	Sequence    int64    `json:"sequence"`
	TimestampUs int64    `json:"timestamp_us"`
}

func parseLiquidationRequest(data []byte) (*event.LiquidationRequest, error) {
	var j liquidationRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidationRequest: %w", err)
	}
	txID, err := uuid.Parse(j.TxID)
	if err != nil {
		return nil, fmt.Errorf("parse tx_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	owners := make([]uuid.UUID, 0, len(j.Owners))
	for i, s := range j.Owners {
		owner, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse owners[%d]: %w", i, err)
		}
		owners = append(owners, owner)
	}
	return &event.LiquidationRequest{
		TxID:      txID,
		Caller:    caller,
		Denom:     j.Denom,
		Owners:    owners,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type redemptionRequestJSON struct {
	TxID        string   `json:"tx_id"`
	Redeemer    string   `json:"redeemer"`
	Denom       string   `json:"denom"`
	Amount      uint64   `json:"amount"`
	Candidates  []string `json:"candidates"`
	Sequence    int64    `json:"sequence"`
	TimestampUs int64    `json:"timestamp_us"`
}

func parseRedemptionRequest(data []byte) (*event.RedemptionRequest, error) {
	var j redemptionRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RedemptionRequest: %w", err)
	}
	txID, err := uuid.Parse(j.TxID)
	if err != nil {
		return nil, fmt.Errorf("parse tx_id: %w", err)
	}
	redeemer, err := uuid.Parse(j.Redeemer)
	if err != nil {
		return nil, fmt.Errorf("parse redeemer: %w", err)
	}
	candidates := make([]uuid.UUID, 0, len(j.Candidates))
	for i, s := range j.Candidates {
		owner, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse candidates[%d]: %w", i, err)
		}
		candidates = append(candidates, owner)
	}
	return &event.RedemptionRequest{
		TxID:       txID,
		Redeemer:   redeemer,
		Denom:      j.Denom,
		Amount:     j.Amount,
		Candidates: candidates,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

type priceUpdateJSON struct {
	Denom            string `json:"denom"`
	Price            uint64 `json:"price"`
	DecimalExponent  uint8  `json:"decimal_exponent"`
	Confidence       uint64 `json:"confidence"`
	PriceSequence    int64  `json:"price_sequence"`
	PriceTimestampUs int64  `json:"price_timestamp_us"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	return &event.PriceUpdate{
		Denom:           j.Denom,
		Price:           j.Price,
		DecimalExponent: j.DecimalExponent,
		Confidence:      j.Confidence,
		PriceSequence:   j.PriceSequence,
		PriceTimestamp:  j.PriceTimestampUs,
	}, nil
}

type collateralParamUpdateJSON struct {
	Denom           string `json:"denom"`
	Decimals        uint8  `json:"decimals"`
	MinRatioPercent uint64 `json:"min_ratio_percent"`
	FeePercent      uint64 `json:"fee_percent"`
	EffectiveSeq    int64  `json:"effective_seq"`
	Sequence        int64  `json:"sequence"`
	TimestampUs     int64  `json:"timestamp_us"`
}

func parseCollateralParamUpdate(data []byte) (*event.CollateralParamUpdate, error) {
	var j collateralParamUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CollateralParamUpdate: %w", err)
	}
	return &event.CollateralParamUpdate{
		Denom:           j.Denom,
		Decimals:        j.Decimals,
		MinRatioPercent: j.MinRatioPercent,
		FeePercent:      j.FeePercent,
		EffectiveSeq:    j.EffectiveSeq,
		Sequence:        j.Sequence,
		Timestamp:       j.TimestampUs,
	}, nil
}
