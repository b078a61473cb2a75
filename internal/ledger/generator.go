package ledger

import (
	"fmt"
	"sort"

	"TroveLedger/internal/engine"
	"TroveLedger/internal/pool"
	"TroveLedger/internal/trove"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from committed operation
// results. Every batch is the token-movement view of one event; operations
// that move no tokens (pure redistribution, price updates) produce no batch.
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // for vault pre-checks
	assets         *AssetRegistry
	stableID       AssetID
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker, assets *AssetRegistry) *JournalGenerator {
	stableID, _ := assets.ID(StablecoinAsset)
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
		assets:         assets,
		stableID:       stableID,
	}
}

// SetSequence aligns the generator with the core's sequence counter after a
// snapshot restore.
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(eventRef string, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 4),
	}
}

func (jg *JournalGenerator) appendJournal(b *Batch, debit, credit AccountKey, assetID AssetID, amount uint64, jt JournalType) {
	if amount == 0 {
		return
	}
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

func (jg *JournalGenerator) finish(b *Batch) *Batch {
	jg.sequence++
	if len(b.Journals) == 0 {
		return nil
	}
	return b
}

// GenerateTroveOpen records the mint (net to the user, fee to the protocol)
// and the collateral lock of a freshly opened trove.
func (jg *JournalGenerator) GenerateTroveOpen(res *trove.OpenResult, eventRef string, timestamp int64) (*Batch, error) {
	collID := jg.assets.Register(res.Denom)
	batch := jg.newBatch(eventRef, timestamp)

	wallet := NewUserAccountKey(res.Owner, jg.stableID)
	supply := NewExternalAccountKey(SubTypeSupply, jg.stableID)
	jg.appendJournal(batch, wallet, supply, jg.stableID, res.NetMinted, JournalTypeMint)
	jg.appendJournal(batch, NewSystemAccountKey(SubTypeSystemFees, jg.stableID), supply, jg.stableID, res.Fee, JournalTypeFee)

	jg.appendJournal(batch,
		NewSystemAccountKey(SubTypeCollateralVault, collID),
		NewUserAccountKey(res.Owner, collID),
		collID, res.Collateral, JournalTypeCollateralLock)

	return jg.finish(batch), nil
}

// GenerateTroveBorrow records the mint of an additional loan.
func (jg *JournalGenerator) GenerateTroveBorrow(res *trove.OpenResult, eventRef string, timestamp int64) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)

	wallet := NewUserAccountKey(res.Owner, jg.stableID)
	supply := NewExternalAccountKey(SubTypeSupply, jg.stableID)
	jg.appendJournal(batch, wallet, supply, jg.stableID, res.NetMinted, JournalTypeMint)
	jg.appendJournal(batch, NewSystemAccountKey(SubTypeSystemFees, jg.stableID), supply, jg.stableID, res.Fee, JournalTypeFee)

	return jg.finish(batch), nil
}

// GenerateTroveRepay records the burn, and on a full repayment the release
// of the whole collateral position back to the owner.
func (jg *JournalGenerator) GenerateTroveRepay(res *trove.RepayResult, eventRef string, timestamp int64) (*Batch, error) {
	collID := jg.assets.Register(res.Denom)

	if res.Closed {
		if err := jg.balanceTracker.ValidateSufficientVault(SubTypeCollateralVault, collID, res.ReturnedCollateral); err != nil {
			return nil, fmt.Errorf("repay pre-check failed: %w", err)
		}
	}

	batch := jg.newBatch(eventRef, timestamp)

	supply := NewExternalAccountKey(SubTypeSupply, jg.stableID)
	jg.appendJournal(batch, supply, NewUserAccountKey(res.Owner, jg.stableID), jg.stableID, res.Repaid, JournalTypeBurn)

	if res.Closed {
		jg.appendJournal(batch,
			NewUserAccountKey(res.Owner, collID),
			NewSystemAccountKey(SubTypeCollateralVault, collID),
			collID, res.ReturnedCollateral, JournalTypeCollateralRelease)
	}

	return jg.finish(batch), nil
}

// GenerateCollateralAdd locks additional collateral into the vault.
func (jg *JournalGenerator) GenerateCollateralAdd(res *trove.CollateralResult, eventRef string, timestamp int64) (*Batch, error) {
	collID := jg.assets.Register(res.Denom)
	batch := jg.newBatch(eventRef, timestamp)

	jg.appendJournal(batch,
		NewSystemAccountKey(SubTypeCollateralVault, collID),
		NewUserAccountKey(res.Owner, collID),
		collID, res.Amount, JournalTypeCollateralLock)

	return jg.finish(batch), nil
}

// GenerateCollateralRemove releases collateral from the vault.
func (jg *JournalGenerator) GenerateCollateralRemove(res *trove.CollateralResult, eventRef string, timestamp int64) (*Batch, error) {
	collID := jg.assets.Register(res.Denom)

	if err := jg.balanceTracker.ValidateSufficientVault(SubTypeCollateralVault, collID, res.Amount); err != nil {
		return nil, fmt.Errorf("collateral removal pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp)
	jg.appendJournal(batch,
		NewUserAccountKey(res.Owner, collID),
		NewSystemAccountKey(SubTypeCollateralVault, collID),
		collID, res.Amount, JournalTypeCollateralRelease)

	return jg.finish(batch), nil
}

// GenerateStake records the deposit into the stability vault plus any gains
// paid out alongside.
func (jg *JournalGenerator) GenerateStake(res *pool.StakeResult, eventRef string, timestamp int64) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)

	jg.appendJournal(batch,
		NewSystemAccountKey(SubTypeStabilityVault, jg.stableID),
		NewUserAccountKey(res.Owner, jg.stableID),
		jg.stableID, res.Staked, JournalTypeStakeDeposit)

	if err := jg.appendGainPayouts(batch, res.Owner, res.Gains); err != nil {
		return nil, err
	}
	return jg.finish(batch), nil
}

// GenerateUnstake records the withdrawal from the stability vault plus any
// gains paid out alongside.
func (jg *JournalGenerator) GenerateUnstake(res *pool.UnstakeResult, eventRef string, timestamp int64) (*Batch, error) {
	if err := jg.balanceTracker.ValidateSufficientVault(SubTypeStabilityVault, jg.stableID, res.Withdrawn); err != nil {
		return nil, fmt.Errorf("unstake pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp)

	jg.appendJournal(batch,
		NewUserAccountKey(res.Owner, jg.stableID),
		NewSystemAccountKey(SubTypeStabilityVault, jg.stableID),
		jg.stableID, res.Withdrawn, JournalTypeStakeWithdraw)

	if err := jg.appendGainPayouts(batch, res.Owner, res.Gains); err != nil {
		return nil, err
	}
	return jg.finish(batch), nil
}

// GenerateGainWithdrawal pays out accrued collateral gains only.
func (jg *JournalGenerator) GenerateGainWithdrawal(owner uuid.UUID, gains map[string]uint64, eventRef string, timestamp int64) (*Batch, error) {
	batch := jg.newBatch(eventRef, timestamp)
	if err := jg.appendGainPayouts(batch, owner, gains); err != nil {
		return nil, err
	}
	return jg.finish(batch), nil
}

// GenerateLiquidation records the pool-side movements of one liquidated
// trove: the stablecoin burn out of the stability vault and the collateral
// seizure into the gain reserve. A pure redistribution moves no tokens and
// yields no batch.
func (jg *JournalGenerator) GenerateLiquidation(rec *engine.LiquidationRecord, eventRef string, timestamp int64) (*Batch, error) {
	collID := jg.assets.Register(rec.Denom)

	if rec.BurnedFromPool > 0 {
		if err := jg.balanceTracker.ValidateSufficientVault(SubTypeStabilityVault, jg.stableID, rec.BurnedFromPool); err != nil {
			return nil, fmt.Errorf("liquidation pre-check failed: %w", err)
		}
	}
	if rec.SeizedToPool > 0 {
		if err := jg.balanceTracker.ValidateSufficientVault(SubTypeCollateralVault, collID, rec.SeizedToPool); err != nil {
			return nil, fmt.Errorf("liquidation pre-check failed: %w", err)
		}
	}

	batch := jg.newBatch(eventRef, timestamp)

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeSupply, jg.stableID),
		NewSystemAccountKey(SubTypeStabilityVault, jg.stableID),
		jg.stableID, rec.BurnedFromPool, JournalTypeBurn)

	jg.appendJournal(batch,
		NewSystemAccountKey(SubTypeGainReserve, collID),
		NewSystemAccountKey(SubTypeCollateralVault, collID),
		collID, rec.SeizedToPool, JournalTypeSeizure)

	return jg.finish(batch), nil
}

// GenerateRedemption records the redeemer's burn and the collateral payouts
// to the redeemer, plus collateral returned to owners of fully redeemed
// troves.
func (jg *JournalGenerator) GenerateRedemption(redeemer uuid.UUID, res *engine.RedemptionResult, eventRef string, timestamp int64) (*Batch, error) {
	collID := jg.assets.Register(res.Denom)

	var leavingVault uint64
	for _, e := range res.Entries {
		leavingVault += e.CollateralSent + e.ReturnedCollateral
	}
	if err := jg.balanceTracker.ValidateSufficientVault(SubTypeCollateralVault, collID, leavingVault); err != nil {
		return nil, fmt.Errorf("redemption pre-check failed: %w", err)
	}

	batch := jg.newBatch(eventRef, timestamp)

	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeSupply, jg.stableID),
		NewUserAccountKey(redeemer, jg.stableID),
		jg.stableID, res.Redeemed, JournalTypeBurn)

	vault := NewSystemAccountKey(SubTypeCollateralVault, collID)
	for _, e := range res.Entries {
		jg.appendJournal(batch,
			NewUserAccountKey(redeemer, collID), vault,
			collID, e.CollateralSent, JournalTypeRedemptionPayout)
		jg.appendJournal(batch,
			NewUserAccountKey(e.Owner, collID), vault,
			collID, e.ReturnedCollateral, JournalTypeCollateralRelease)
	}

	return jg.finish(batch), nil
}

// appendGainPayouts moves paid-out seized collateral from the gain reserve
// to the user's wallet, in sorted denom order for deterministic journals.
func (jg *JournalGenerator) appendGainPayouts(batch *Batch, owner uuid.UUID, gains map[string]uint64) error {
	denoms := make([]string, 0, len(gains))
	for denom := range gains {
		denoms = append(denoms, denom)
	}
	sort.Strings(denoms)

	for _, denom := range denoms {
		gain := gains[denom]
		collID := jg.assets.Register(denom)
		if err := jg.balanceTracker.ValidateSufficientVault(SubTypeGainReserve, collID, gain); err != nil {
			return fmt.Errorf("gain payout pre-check failed: %w", err)
		}
		jg.appendJournal(batch,
			NewUserAccountKey(owner, collID),
			NewSystemAccountKey(SubTypeGainReserve, collID),
			collID, gain, JournalTypeGainPayout)
	}
	return nil
}
