package ledger

import (
	"fmt"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateVaultsNonNegative checks that no system vault is overdrawn for the
// given asset.
func (v *InvariantValidator) ValidateVaultsNonNegative(assetID AssetID) error {
	for _, subType := range []AccountSubType{SubTypeCollateralVault, SubTypeStabilityVault, SubTypeGainReserve, SubTypeSystemFees} {
		if err := v.tracker.ValidateNonNegative(NewSystemAccountKey(subType, assetID)); err != nil {
			return err
		}
	}
	return nil
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			return fmt.Errorf("global balance for asset %d is non-zero: %d", assetID, total)
		}
	}

	return nil
}
