package core

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"time"

	"TroveLedger/internal/engine"
	"TroveLedger/internal/event"
	"TroveLedger/internal/ledger"
	"TroveLedger/internal/observability"
	"TroveLedger/internal/oracle"
	"TroveLedger/internal/pool"
	"TroveLedger/internal/state"
	"TroveLedger/internal/trove"
)

// DefaultIdempotencyLRUCapacity is used when the configured capacity is
// zero or negative.
const DefaultIdempotencyLRUCapacity = 1_000_000

// DeterministicCore is the single-threaded event processor
type DeterministicCore struct {
	sequence          int64
	hasher            *StateHasher
	balanceTracker    *ledger.BalanceTracker
	journalGen        *ledger.JournalGenerator
	validator         *ledger.InvariantValidator
	assets            *ledger.AssetRegistry
	protocol          *state.ProtocolState
	troves            *state.TroveBook
	stakes            *state.StakeBook
	prices            *oracle.Cache
	troveLedger       *trove.Ledger
	stability         *pool.Pool
	riskEngine        *engine.Engine
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	// replaying marks recovery replay: logged events fed back through
	// ProcessEvent skip the Postgres idempotency tier and output emission.
	replaying bool

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput carries one applied event downstream: the envelope for the
// event log, the journal batch (nil for state-only events), the state digest
// bytes, and the typed operation result for projections and publishers.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte
	Result     any
}

func NewDeterministicCore(
	startSequence int64,
	minRatioPercent, feePercent uint64,
	idempotencyLRUCapacity int,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *DeterministicCore {
	balanceTracker := ledger.NewBalanceTracker()
	validator := ledger.NewInvariantValidator(balanceTracker)
	assets := ledger.NewAssetRegistry()
	journalGen := ledger.NewJournalGenerator(startSequence, balanceTracker, assets)

	protocol := state.NewProtocolState(minRatioPercent, feePercent)
	troves := state.NewTroveBook()
	stakes := state.NewStakeBook()
	prices := oracle.NewCache()

	stability := pool.NewPool(stakes, protocol)

	if idempotencyLRUCapacity <= 0 {
		idempotencyLRUCapacity = DefaultIdempotencyLRUCapacity
	}
	idempotencyChecker := NewIdempotencyChecker(idempotencyLRUCapacity, dbChecker)
	sequenceValidator := NewSequenceValidator()

	return &DeterministicCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        journalGen,
		validator:         validator,
		assets:            assets,
		protocol:          protocol,
		troves:            troves,
		stakes:            stakes,
		prices:            prices,
		troveLedger:       trove.NewLedger(troves, protocol, prices),
		stability:         stability,
		riskEngine:        engine.NewEngine(troves, stability, protocol, prices),
		idempotency:       idempotencyChecker,
		sequenceValidator: sequenceValidator,
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessEvent is the main processing pipeline
func (c *DeterministicCore) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check. Two-tier normally; during recovery replay
	// only the LRU is consulted, because every replayed event already sits
	// in the log table the Postgres tier queries.
	var isDuplicate bool
	if c.replaying {
		isDuplicate = c.idempotency.IsDuplicateInMemory(eventType, idempotencyKey)
	} else {
		isDuplicate = c.idempotency.IsDuplicate(eventType, idempotencyKey)
	}

	// Step 2: Sequence validation
	partition := evt.Partition()
	sourceSequence := evt.SourceSequence()

	// Special handling for price updates (gaps tolerated, stale ignored)
	if priceEvt, ok := evt.(*event.PriceUpdate); ok {
		if err := c.sequenceValidator.ValidatePriceSequence(priceEvt.Denom, priceEvt.PriceSequence); err != nil {
			return err
		}
	} else {
		// Regular sequence validation
		if err := c.sequenceValidator.ValidateSequence(partition, sourceSequence, idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Event dispatch
	batch, result, err := c.dispatchEvent(evt)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "rejected").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// A state-only event (price update, param update, pure redistribution)
	// produces no journals but still needs an envelope in the event log.
	if batch == nil {
		batch = &ledger.Batch{
			EventRef:  idempotencyKey,
			Sequence:  c.sequence,
			Timestamp: c.getEventTimestamp(evt).UnixMicro(),
		}
	}

	// Step 4: Validate and apply the journal batch
	if len(batch.Journals) > 0 {
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := c.balanceTracker.ApplyBatch(batch); err != nil {
			return fmt.Errorf("apply batch failed: %w", err)
		}
	}

	// Step 5: Compute state digest and chain hash
	stateDigest := c.computeStateDigest(batch)
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	// The payload is the wire-format event so recovery can replay the log
	// through the same parser that handles live ingestion.
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Partition:      partition,
		Timestamp:      c.getEventTimestamp(evt),
		SourceSequence: sourceSequence,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       c.hasher.GetPrevHash(),
	}

	output := CoreOutput{
		Envelope:   envelope,
		Batch:      batch,
		StateDelta: stateDigest,
		Result:     result,
	}
	c.sequence++

	// Step 6: Post-checks
	if err := c.postCheckInvariants(batch); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 7: Emit outputs. Persist channel uses BLOCKING send
	// (backpressure); projection channel uses NON-BLOCKING send with drop.
	// Replayed events are already in the log and the journal, so replay
	// emits nothing downstream.
	if !c.replaying {
		c.persistChan <- output

		select {
		case c.projectionChan <- output:
		default:
			// Dropped — projection will catch up via rebuild
		}
	}

	// Step 8: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	// Record metrics
	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	return nil
}

// getEventTimestamp extracts the versioned timestamp from the event. The
// core MUST NOT call time.Now(); all timestamps are versioned inputs.
func (c *DeterministicCore) getEventTimestamp(evt event.Event) time.Time {
	switch e := evt.(type) {
	case *event.TroveOpen:
		return time.UnixMicro(e.Timestamp)
	case *event.TroveBorrow:
		return time.UnixMicro(e.Timestamp)
	case *event.TroveRepay:
		return time.UnixMicro(e.Timestamp)
	case *event.CollateralAdd:
		return time.UnixMicro(e.Timestamp)
	case *event.CollateralRemove:
		return time.UnixMicro(e.Timestamp)
	case *event.PoolStake:
		return time.UnixMicro(e.Timestamp)
	case *event.PoolUnstake:
		return time.UnixMicro(e.Timestamp)
	case *event.PoolWithdrawGains:
		return time.UnixMicro(e.Timestamp)
	case *event.LiquidationRequest:
		return time.UnixMicro(e.Timestamp)
	case *event.RedemptionRequest:
		return time.UnixMicro(e.Timestamp)
	case *event.PriceUpdate:
		return time.UnixMicro(e.PriceTimestamp)
	case *event.CollateralParamUpdate:
		return time.UnixMicro(e.Timestamp)
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T — deterministic core cannot use wall-clock time", evt))
	}
}

// computeStateDigest creates canonical bytes for state hash
func (c *DeterministicCore) computeStateDigest(batch *ledger.Batch) []byte {
	// Collect all affected accounts
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	// Sort accounts deterministically
	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}

	// Sort by AccountPath (deterministic string ordering)
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	// Build digest
	digest := make([]byte, 0, len(accounts)*64)

	for _, key := range accounts {
		balance := c.balanceTracker.GetBalance(key)

		// Append account path
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)

		// Append balance (8 bytes LE)
		digest = appendInt64LE(digest, balance)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates invariants after batch application
func (c *DeterministicCore) postCheckInvariants(batch *ledger.Batch) error {
	// No system vault touched by this batch may be overdrawn
	checked := make(map[ledger.AssetID]bool)
	if batch != nil {
		for _, j := range batch.Journals {
			if checked[j.AssetID] {
				continue
			}
			checked[j.AssetID] = true
			if err := c.validator.ValidateVaultsNonNegative(j.AssetID); err != nil {
				return err
			}
		}
	}

	// Periodic global zero-sum check
	if c.sequence > 0 && c.sequence%1000 == 0 {
		if err := c.validator.ValidateGlobalBalance(); err != nil {
			return fmt.Errorf("post-check global balance: %w (at seq %d)", err, c.sequence)
		}
	}

	return nil
}

func (c *DeterministicCore) dispatchEvent(evt event.Event) (*ledger.Batch, any, error) {
	switch e := evt.(type) {
	case *event.TroveOpen:
		return c.handleTroveOpen(e)
	case *event.TroveBorrow:
		return c.handleTroveBorrow(e)
	case *event.TroveRepay:
		return c.handleTroveRepay(e)
	case *event.CollateralAdd:
		return c.handleCollateralAdd(e)
	case *event.CollateralRemove:
		return c.handleCollateralRemove(e)
	case *event.PoolStake:
		return c.handlePoolStake(e)
	case *event.PoolUnstake:
		return c.handlePoolUnstake(e)
	case *event.PoolWithdrawGains:
		return c.handlePoolWithdrawGains(e)
	case *event.LiquidationRequest:
		return c.handleLiquidationRequest(e)
	case *event.RedemptionRequest:
		return c.handleRedemptionRequest(e)
	case *event.PriceUpdate:
		return c.handlePriceUpdate(e)
	case *event.CollateralParamUpdate:
		return c.handleCollateralParamUpdate(e)
	default:
		return nil, nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

func hintsFrom(prev, next *uint64) *trove.NeighborHints {
	if prev == nil && next == nil {
		return nil
	}
	return &trove.NeighborHints{PrevICR: prev, NextICR: next}
}

func (c *DeterministicCore) handleTroveOpen(evt *event.TroveOpen) (*ledger.Batch, any, error) {
	res, err := c.troveLedger.Open(evt.Owner, evt.Debt, evt.Collateral, evt.Denom, evt.Timestamp, hintsFrom(evt.PrevICR, evt.NextICR))
	if err != nil {
		return nil, nil, err
	}
	batch, err := c.journalGen.GenerateTroveOpen(res, evt.IdempotencyKey(), evt.Timestamp)
	return batch, res, err
}

func (c *DeterministicCore) handleTroveBorrow(evt *event.TroveBorrow) (*ledger.Batch, any, error) {
	res, err := c.troveLedger.Borrow(evt.Owner, evt.Amount, evt.Denom, evt.Timestamp, hintsFrom(evt.PrevICR, evt.NextICR))
	if err != nil {
		return nil, nil, err
	}
	batch, err := c.journalGen.GenerateTroveBorrow(res, evt.IdempotencyKey(), evt.Timestamp)
	return batch, res, err
}

func (c *DeterministicCore) handleTroveRepay(evt *event.TroveRepay) (*ledger.Batch, any, error) {
	res, err := c.troveLedger.Repay(evt.Owner, evt.Amount, evt.Denom, evt.Timestamp, hintsFrom(evt.PrevICR, evt.NextICR))
	if err != nil {
		return nil, nil, err
	}
	batch, err := c.journalGen.GenerateTroveRepay(res, evt.IdempotencyKey(), evt.Timestamp)
	return batch, res, err
}

func (c *DeterministicCore) handleCollateralAdd(evt *event.CollateralAdd) (*ledger.Batch, any, error) {
	res, err := c.troveLedger.AddCollateral(evt.Owner, evt.Amount, evt.Denom, evt.Timestamp, hintsFrom(evt.PrevICR, evt.NextICR))
	if err != nil {
		return nil, nil, err
	}
	batch, err := c.journalGen.GenerateCollateralAdd(res, evt.IdempotencyKey(), evt.Timestamp)
	return batch, res, err
}

func (c *DeterministicCore) handleCollateralRemove(evt *event.CollateralRemove) (*ledger.Batch, any, error) {
	res, err := c.troveLedger.RemoveCollateral(evt.Owner, evt.Amount, evt.Denom, evt.Timestamp, hintsFrom(evt.PrevICR, evt.NextICR))
	if err != nil {
		return nil, nil, err
	}
	batch, err := c.journalGen.GenerateCollateralRemove(res, evt.IdempotencyKey(), evt.Timestamp)
	return batch, res, err
}

func (c *DeterministicCore) handlePoolStake(evt *event.PoolStake) (*ledger.Batch, any, error) {
	res, err := c.stability.Stake(evt.Owner, evt.Amount)
	if err != nil {
		return nil, nil, err
	}
	batch, err := c.journalGen.GenerateStake(res, evt.IdempotencyKey(), evt.Timestamp)
	return batch, res, err
}

func (c *DeterministicCore) handlePoolUnstake(evt *event.PoolUnstake) (*ledger.Batch, any, error) {
	res, err := c.stability.Unstake(evt.Owner, evt.Amount)
	if err != nil {
		return nil, nil, err
	}
	batch, err := c.journalGen.GenerateUnstake(res, evt.IdempotencyKey(), evt.Timestamp)
	return batch, res, err
}

func (c *DeterministicCore) handlePoolWithdrawGains(evt *event.PoolWithdrawGains) (*ledger.Batch, any, error) {
	gains, err := c.stability.WithdrawGains(evt.Owner)
	if err != nil {
		return nil, nil, err
	}
	batch, err := c.journalGen.GenerateGainWithdrawal(evt.Owner, gains, evt.IdempotencyKey(), evt.Timestamp)
	return batch, gains, err
}

// handleLiquidationRequest settles a batch of troves. All liquidated troves
// share one envelope; the journal legs are merged into a single batch so the
// state digest covers every movement.
func (c *DeterministicCore) handleLiquidationRequest(evt *event.LiquidationRequest) (*ledger.Batch, any, error) {
	res, err := c.riskEngine.LiquidateBatch(evt.Owners, evt.Denom, evt.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	var merged *ledger.Batch
	for i := range res.Liquidated {
		batch, err := c.journalGen.GenerateLiquidation(&res.Liquidated[i], evt.IdempotencyKey(), evt.Timestamp)
		if err != nil {
			// The trove state already moved; a pre-check failure here
			// means books and balances disagree.
			panic(fmt.Sprintf("FATAL: liquidation journal generation failed: %v", err))
		}
		if batch == nil {
			continue
		}
		if merged == nil {
			merged = batch
			continue
		}
		for _, j := range batch.Journals {
			j.BatchID = merged.BatchID
			merged.Journals = append(merged.Journals, j)
		}
	}

	if c.metrics != nil {
		c.metrics.LiquidationsExecuted.WithLabelValues(evt.Denom).Add(float64(len(res.Liquidated)))
		c.metrics.LiquidationsSkipped.WithLabelValues(evt.Denom).Add(float64(len(res.Skipped)))
	}

	return merged, res, nil
}

func (c *DeterministicCore) handleRedemptionRequest(evt *event.RedemptionRequest) (*ledger.Batch, any, error) {
	res, err := c.riskEngine.Redeem(evt.Amount, evt.Denom, evt.Candidates, evt.Timestamp)
	if err != nil {
		return nil, nil, err
	}
	batch, err := c.journalGen.GenerateRedemption(evt.Redeemer, res, evt.IdempotencyKey(), evt.Timestamp)
	if err != nil {
		return nil, nil, err
	}

	if c.metrics != nil {
		c.metrics.RedemptionsExecuted.WithLabelValues(evt.Denom).Inc()
	}
	return batch, res, nil
}

// handlePriceUpdate refreshes the oracle cache. No journal entries are
// generated; the quote only mutates in-memory state.
func (c *DeterministicCore) handlePriceUpdate(evt *event.PriceUpdate) (*ledger.Batch, any, error) {
	quote := oracle.PriceQuote{
		Denom:           evt.Denom,
		Price:           evt.Price,
		DecimalExponent: evt.DecimalExponent,
		Confidence:      evt.Confidence,
		Timestamp:       evt.PriceTimestamp,
	}
	if err := c.prices.Update(quote); err != nil {
		return nil, nil, err
	}
	return nil, quote, nil
}

// handleCollateralParamUpdate registers a denomination and applies protocol
// parameter changes. State-only.
func (c *DeterministicCore) handleCollateralParamUpdate(evt *event.CollateralParamUpdate) (*ledger.Batch, any, error) {
	if evt.Denom != "" {
		c.troves.RegisterDenom(evt.Denom, evt.Decimals)
		c.assets.Register(evt.Denom)
	}
	if evt.MinRatioPercent > 0 {
		c.protocol.MinimumCollateralRatio = evt.MinRatioPercent * 10_000
	}
	if evt.FeePercent > 0 {
		c.protocol.ProtocolFeePercent = evt.FeePercent
	}
	return nil, nil, nil
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	Assets          []string
	Protocol        *state.ProtocolState
	Troves          []*state.Trove
	Collateral      []*state.CollateralPosition
	Totals          []*state.CollateralTotals
	Stakes          []*state.UserStake
	Pools           []*state.PoolSnapshot
	Prices          map[string]oracle.PriceQuote
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's in-memory state from a snapshot.
// On warm restart, load latest snapshot then replay events.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1 // Next sequence to assign
	c.hasher.SetPrevHash(snap.StateHash)

	for _, asset := range snap.Assets {
		c.assets.Register(asset)
	}
	for key, balance := range snap.Balances {
		c.balanceTracker.SetBalance(key, balance)
	}

	if snap.Protocol != nil {
		*c.protocol = *snap.Protocol
		if c.protocol.PFactor == nil {
			c.protocol.PFactor = new(big.Int)
		}
	}

	for _, totals := range snap.Totals {
		c.troves.SetTotals(totals)
	}
	for _, t := range snap.Troves {
		c.troves.SetTrove(t)
	}
	for _, pos := range snap.Collateral {
		c.troves.SetCollateral(pos)
	}
	for _, p := range snap.Pools {
		c.stakes.SetPool(p)
	}
	for _, s := range snap.Stakes {
		c.stakes.SetStake(s)
	}

	c.prices.Restore(snap.Prices)

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.SetExpectedSequence(partition, nextSeq)
	}

	c.journalGen.SetSequence(c.sequence)
}

// WarmLRU loads recent idempotency keys into the LRU cache to avoid
// cold-path DB lookups for recently processed events.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// BeginReplay switches the core into recovery replay mode: events fed back
// from the durable log are deduplicated against the LRU only (the Postgres
// tier would flag every one of them) and produce no downstream outputs.
func (c *DeterministicCore) BeginReplay() {
	c.replaying = true
}

// EndReplay returns the core to normal two-tier processing.
func (c *DeterministicCore) EndReplay() {
	c.replaying = false
}

// GetSequence returns the current global sequence number.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.balanceTracker.Snapshot(),
		Assets:          c.assets.Names(),
		Protocol:        c.protocol,
		Troves:          c.troves.AllTroves(),
		Collateral:      c.troves.AllCollateral(),
		Totals:          c.troves.AllTotals(),
		Stakes:          c.stakes.AllStakes(),
		Pools:           c.stakes.AllPools(),
		Prices:          c.prices.Snapshot(),
		SequenceState:   c.sequenceValidator.Sequences(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}
}

// --- Query accessors (read-only views for the query service) ---

func (c *DeterministicCore) TroveBook() *state.TroveBook {
	return c.troves
}

func (c *DeterministicCore) StakeBook() *state.StakeBook {
	return c.stakes
}

func (c *DeterministicCore) Protocol() *state.ProtocolState {
	return c.protocol
}

func (c *DeterministicCore) Balances() *ledger.BalanceTracker {
	return c.balanceTracker
}

func (c *DeterministicCore) Assets() *ledger.AssetRegistry {
	return c.assets
}

func (c *DeterministicCore) Prices() *oracle.Cache {
	return c.prices
}

func (c *DeterministicCore) StabilityPool() *pool.Pool {
	return c.stability
}
