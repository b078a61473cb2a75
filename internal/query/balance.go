package query

import (
	"github.com/google/uuid"
)

// BalanceResponse represents user balance state for API queries.
type BalanceResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Asset  string    `json:"asset"`

	// Wallet balance from the projected journal entries
	WalletBalance int64 `json:"wallet_balance"`

	// Collateral currently locked in the vault for this user's trove
	LockedCollateral uint64 `json:"locked_collateral"`

	// Stablecoin staked in the stability pool (compounded)
	StakedAmount uint64 `json:"staked_amount"`

	// Metadata
	AsOfSequence int64 `json:"as_of_sequence"` // last projected event sequence
}
