package query

import "github.com/google/uuid"

// TroveResponse represents a trove for API queries. Debt includes pending
// redistribution debt so callers see the amount a repayment must cover.
type TroveResponse struct {
	Owner        uuid.UUID `json:"owner"`
	Denom        string    `json:"denom"`
	Debt         uint64    `json:"debt"`
	PendingDebt  uint64    `json:"pending_debt"`
	Collateral   uint64    `json:"collateral"`
	CachedICR    uint64    `json:"cached_icr"`
	Open         bool      `json:"open"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// StakeResponse represents a stability pool deposit for API queries.
type StakeResponse struct {
	Owner           uuid.UUID         `json:"owner"`
	DepositedAmount uint64            `json:"deposited_amount"`
	CompoundedStake uint64            `json:"compounded_stake"`
	CollateralGains map[string]uint64 `json:"collateral_gains"`
	EpochSnapshot   uint64            `json:"epoch_snapshot"`
	AsOfSequence    int64             `json:"as_of_sequence"`
}

// DenomStats is the per-denomination slice of the protocol stats.
type DenomStats struct {
	Denom           string `json:"denom"`
	TotalCollateral uint64 `json:"total_collateral"`
	Decimals        uint8  `json:"decimals"`
}

// ProtocolStatsResponse represents protocol-wide aggregates.
type ProtocolStatsResponse struct {
	TotalDebt              uint64       `json:"total_debt"`
	TotalStake             uint64       `json:"total_stake"`
	PoolEpoch              uint64       `json:"pool_epoch"`
	MinimumCollateralRatio uint64       `json:"minimum_collateral_ratio"`
	ProtocolFeePercent     uint64       `json:"protocol_fee_percent"`
	Denoms                 []DenomStats `json:"denoms"`
	AsOfSequence           int64        `json:"as_of_sequence"`
}

// LiquidationHistoryResponse represents a past liquidation for API queries.
type LiquidationHistoryResponse struct {
	Owner                   uuid.UUID `json:"owner"`
	Denom                   string    `json:"denom"`
	Path                    string    `json:"path"`
	ICR                     uint64    `json:"icr"`
	Debt                    uint64    `json:"debt"`
	Collateral              uint64    `json:"collateral"`
	BurnedFromPool          uint64    `json:"burned_from_pool"`
	SeizedToPool            uint64    `json:"seized_to_pool"`
	RedistributedDebt       uint64    `json:"redistributed_debt"`
	RedistributedCollateral uint64    `json:"redistributed_collateral"`
	Sequence                int64     `json:"sequence"`
	Timestamp               int64     `json:"timestamp_us"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
