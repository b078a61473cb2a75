package core_test

import (
	"testing"

	"TroveLedger/internal/core"
	"TroveLedger/internal/engine"
	"TroveLedger/internal/event"
	"TroveLedger/internal/ledger"

	"github.com/google/uuid"
)

// --- Test helpers ---

const (
	coreDenom   = "ATOM"
	coreQuoteTS = int64(1_700_000_000_000_000)
	coreOpTS    = coreQuoteTS + 1_000_000

	// At the seed price (1_000_000, exponent 0, 6 token decimals) collateral
	// value equals amount * price, so this pair opens at exactly ICR 1_150_000.
	coreDebt = uint64(2_000_000_000_000_000)
	coreColl = uint64(2_300_000_000)
)

// newTestCore creates a DeterministicCore with buffered channels and no DB checker.
func newTestCore() (*core.DeterministicCore, chan core.CoreOutput, chan core.CoreOutput) {
	persistChan := make(chan core.CoreOutput, 1024)
	projChan := make(chan core.CoreOutput, 1024)
	c := core.NewDeterministicCore(0, 115, 5, 0, persistChan, projChan, nil, nil)
	return c, persistChan, projChan
}

// seedCollateral registers the test denom (global partition seq 0) and pushes
// the first oracle quote (price partition seq 1).
func seedCollateral(t *testing.T, c *core.DeterministicCore) {
	t.Helper()

	err := c.ProcessEvent(&event.CollateralParamUpdate{
		Denom:     coreDenom,
		Decimals:  6,
		Sequence:  0,
		Timestamp: coreQuoteTS,
	})
	if err != nil {
		t.Fatalf("param update failed: %v", err)
	}

	if err := c.ProcessEvent(mustPriceUpdate(1_000_000, 1, coreQuoteTS)); err != nil {
		t.Fatalf("price update failed: %v", err)
	}
}

func mustPriceUpdate(price uint64, priceSeq, ts int64) *event.PriceUpdate {
	return &event.PriceUpdate{
		Denom:          coreDenom,
		Price:          price,
		PriceSequence:  priceSeq,
		PriceTimestamp: ts,
	}
}

func mustTroveOpen(owner uuid.UUID, debt, coll uint64, seq int64) *event.TroveOpen {
	return &event.TroveOpen{
		TxID:       uuid.New(),
		Owner:      owner,
		Denom:      coreDenom,
		Debt:       debt,
		Collateral: coll,
		Sequence:   seq,
		Timestamp:  coreOpTS,
	}
}

func mustTroveRepay(owner uuid.UUID, amount uint64, seq int64) *event.TroveRepay {
	return &event.TroveRepay{
		TxID:      uuid.New(),
		Owner:     owner,
		Denom:     coreDenom,
		Amount:    amount,
		Sequence:  seq,
		Timestamp: coreOpTS,
	}
}

func mustPoolStake(owner uuid.UUID, amount uint64, seq int64) *event.PoolStake {
	return &event.PoolStake{
		TxID:      uuid.New(),
		Owner:     owner,
		Amount:    amount,
		Sequence:  seq,
		Timestamp: coreOpTS,
	}
}

func drainOutputs(ch chan core.CoreOutput) []core.CoreOutput {
	var outputs []core.CoreOutput
	for {
		select {
		case o := <-ch:
			outputs = append(outputs, o)
		default:
			return outputs
		}
	}
}

// assetSums folds every tracked balance by asset. Journals always move value
// between two accounts of the same asset, so each sum must stay zero.
func assetSums(c *core.DeterministicCore) map[ledger.AssetID]int64 {
	sums := make(map[ledger.AssetID]int64)
	for key, balance := range c.Balances().Snapshot() {
		sums[key.AssetID] += balance
	}
	return sums
}

func assertConservation(t *testing.T, c *core.DeterministicCore) {
	t.Helper()
	for assetID, sum := range assetSums(c) {
		if sum != 0 {
			t.Errorf("asset %d balances sum to %d, want 0", assetID, sum)
		}
	}
}

// ============================================================================
// Test: Trove Open Pipeline
// ============================================================================

func TestTroveOpen_FullPipeline(t *testing.T) {
	c, persistCh, _ := newTestCore()
	seedCollateral(t, c)
	owner := uuid.New()

	if err := c.ProcessEvent(mustTroveOpen(owner, coreDebt, coreColl, 0)); err != nil {
		t.Fatalf("trove open failed: %v", err)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 3 {
		t.Fatalf("expected 3 outputs (param, price, open), got %d", len(outputs))
	}
	for i, o := range outputs {
		if o.Envelope.Sequence != int64(i) {
			t.Errorf("output %d: sequence = %d", i, o.Envelope.Sequence)
		}
	}

	open := outputs[2]
	if open.Envelope.EventType != event.EventTypeTroveOpen {
		t.Errorf("event type = %v", open.Envelope.EventType)
	}
	if len(open.Batch.Journals) != 3 {
		t.Fatalf("expected mint, fee, and lock journals, got %d", len(open.Batch.Journals))
	}

	types := make(map[ledger.JournalType]bool)
	for _, j := range open.Batch.Journals {
		types[j.JournalType] = true
	}
	for _, want := range []ledger.JournalType{ledger.JournalTypeMint, ledger.JournalTypeFee, ledger.JournalTypeCollateralLock} {
		if !types[want] {
			t.Errorf("missing journal type %d", want)
		}
	}

	if got := c.Protocol().TotalDebt; got != coreDebt {
		t.Errorf("TotalDebt = %d, want %d", got, coreDebt)
	}
	if tr := c.TroveBook().Trove(owner); tr == nil || tr.Debt != coreDebt || tr.CachedICR != 1_150_000 {
		t.Errorf("trove state = %+v", tr)
	}

	assertConservation(t, c)
}

func TestTroveRepay_ClosesAndBalances(t *testing.T) {
	c, persistCh, _ := newTestCore()
	seedCollateral(t, c)
	owner := uuid.New()

	if err := c.ProcessEvent(mustTroveOpen(owner, coreDebt, coreColl, 0)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	drainOutputs(persistCh)

	if err := c.ProcessEvent(mustTroveRepay(owner, coreDebt, 1)); err != nil {
		t.Fatalf("repay failed: %v", err)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	if len(outputs[0].Batch.Journals) != 2 {
		t.Fatalf("expected burn and release journals, got %d", len(outputs[0].Batch.Journals))
	}

	if got := c.Protocol().TotalDebt; got != 0 {
		t.Errorf("TotalDebt = %d, want 0", got)
	}
	if tr := c.TroveBook().Trove(owner); tr.Debt != 0 {
		t.Errorf("trove debt = %d, want 0", tr.Debt)
	}

	assertConservation(t, c)
}

// ============================================================================
// Test: Idempotency
// ============================================================================

func TestDuplicateEvent_Suppressed(t *testing.T) {
	c, persistCh, _ := newTestCore()
	seedCollateral(t, c)
	drainOutputs(persistCh)
	owner := uuid.New()

	open := mustTroveOpen(owner, coreDebt, coreColl, 0)
	if err := c.ProcessEvent(open); err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if got := len(drainOutputs(persistCh)); got != 1 {
		t.Fatalf("expected 1 output, got %d", got)
	}

	// Redelivery of the same transaction is silently absorbed.
	if err := c.ProcessEvent(open); err != nil {
		t.Fatalf("duplicate should not error: %v", err)
	}
	if got := len(drainOutputs(persistCh)); got != 0 {
		t.Errorf("expected no output for duplicate, got %d", got)
	}
	if got := c.Protocol().TotalDebt; got != coreDebt {
		t.Errorf("duplicate mutated TotalDebt: %d", got)
	}
}

// ============================================================================
// Test: Sequence Validation
// ============================================================================

func TestSequenceGap_Rejected(t *testing.T) {
	c, _, _ := newTestCore()
	seedCollateral(t, c)
	owner := uuid.New()

	if err := c.ProcessEvent(mustTroveOpen(owner, coreDebt, 2*coreColl, 0)); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// User partition expects seq 1 next; seq 2 is a gap.
	err := c.ProcessEvent(&event.TroveBorrow{
		TxID:      uuid.New(),
		Owner:     owner,
		Denom:     coreDenom,
		Amount:    coreDebt,
		Sequence:  2,
		Timestamp: coreOpTS,
	})
	if err == nil {
		t.Fatal("expected sequence gap error, got nil")
	}
}

func TestStalePrice_KeepsNewerQuote(t *testing.T) {
	c, _, _ := newTestCore()
	seedCollateral(t, c)

	if err := c.ProcessEvent(mustPriceUpdate(2_000_000, 5, coreQuoteTS+2)); err != nil {
		t.Fatalf("price seq 5 failed: %v", err)
	}

	// A late quote with a lower sequence and older timestamp must not win.
	if err := c.ProcessEvent(mustPriceUpdate(1_500_000, 3, coreQuoteTS+1)); err != nil {
		t.Fatalf("stale price should not error: %v", err)
	}

	if got := c.Prices().Snapshot()[coreDenom].Price; got != 2_000_000 {
		t.Errorf("cached price = %d, want 2000000", got)
	}
}

// ============================================================================
// Test: State Hash Chain
// ============================================================================

func TestStateHashChain_Links(t *testing.T) {
	c, persistCh, _ := newTestCore()
	seedCollateral(t, c)

	owner := uuid.New()
	if err := c.ProcessEvent(mustTroveOpen(owner, coreDebt, coreColl, 0)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := c.ProcessEvent(mustPoolStake(uuid.New(), coreDebt, 0)); err != nil {
		t.Fatalf("stake failed: %v", err)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 4 {
		t.Fatalf("expected 4 outputs, got %d", len(outputs))
	}

	var zero [32]byte
	if outputs[0].Envelope.PrevHash != zero {
		t.Error("first envelope should chain from the zero hash")
	}
	for i := 1; i < len(outputs); i++ {
		if outputs[i].Envelope.PrevHash != outputs[i-1].Envelope.StateHash {
			t.Errorf("envelope %d prev hash does not match envelope %d state hash", i, i-1)
		}
	}
}

func TestStateHashChain_Deterministic(t *testing.T) {
	owner := uuid.New()
	txID := uuid.New()

	run := func() [][32]byte {
		c, persistCh, _ := newTestCore()
		seedCollateral(t, c)

		open := mustTroveOpen(owner, coreDebt, coreColl, 0)
		open.TxID = txID
		if err := c.ProcessEvent(open); err != nil {
			t.Fatalf("open failed: %v", err)
		}

		outputs := drainOutputs(persistCh)
		hashes := make([][32]byte, len(outputs))
		for i, o := range outputs {
			hashes[i] = o.Envelope.StateHash
		}
		return hashes
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("output counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("hash %d differs across identical runs", i)
		}
	}
}

// ============================================================================
// Test: Liquidation Through the Core
// ============================================================================

func TestLiquidation_PoolBurnPipeline(t *testing.T) {
	c, persistCh, _ := newTestCore()
	seedCollateral(t, c)

	victim := uuid.New()
	survivor := uuid.New()
	staker := uuid.New()

	if err := c.ProcessEvent(mustTroveOpen(victim, coreDebt, coreColl, 0)); err != nil {
		t.Fatalf("victim open failed: %v", err)
	}
	if err := c.ProcessEvent(mustTroveOpen(survivor, coreDebt, 2*coreColl, 0)); err != nil {
		t.Fatalf("survivor open failed: %v", err)
	}
	if err := c.ProcessEvent(mustPoolStake(staker, coreDebt, 0)); err != nil {
		t.Fatalf("stake failed: %v", err)
	}

	// Price drop: the victim's ratio falls to 1_035_000, below the 110%
	// liquidation threshold; the survivor stays at 2_070_000.
	if err := c.ProcessEvent(mustPriceUpdate(900_000, 2, coreQuoteTS+2)); err != nil {
		t.Fatalf("price drop failed: %v", err)
	}
	drainOutputs(persistCh)

	err := c.ProcessEvent(&event.LiquidationRequest{
		TxID:      uuid.New(),
		Caller:    uuid.New(),
		Denom:     coreDenom,
		Owners:    []uuid.UUID{victim, survivor},
		Sequence:  1, // global partition: seq 0 was the param update
		Timestamp: coreOpTS,
	})
	if err != nil {
		t.Fatalf("liquidation failed: %v", err)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}

	res, ok := outputs[0].Result.(*engine.BatchResult)
	if !ok {
		t.Fatalf("result = %T, want *engine.BatchResult", outputs[0].Result)
	}
	if len(res.Liquidated) != 1 || res.Liquidated[0].Owner != victim {
		t.Fatalf("liquidated = %+v, want just the victim", res.Liquidated)
	}
	if res.Liquidated[0].Path != engine.PathPoolBurn {
		t.Errorf("path = %s, want %s", res.Liquidated[0].Path, engine.PathPoolBurn)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Owner != survivor {
		t.Errorf("skipped = %+v, want the healthy survivor", res.Skipped)
	}

	// The pool covers the whole debt: one burn and one seizure journal.
	if len(outputs[0].Batch.Journals) != 2 {
		t.Fatalf("expected 2 journals, got %d", len(outputs[0].Batch.Journals))
	}

	if tr := c.TroveBook().Trove(victim); tr.Debt != 0 || tr.CachedICR != 0 {
		t.Errorf("victim not zeroed: %+v", tr)
	}
	if got := c.Protocol().TotalDebt; got != coreDebt {
		t.Errorf("TotalDebt = %d, want %d (survivor only)", got, coreDebt)
	}
	if got := c.Protocol().TotalStake; got != 0 {
		t.Errorf("TotalStake = %d, want 0 after full burn", got)
	}

	assertConservation(t, c)
}

// ============================================================================
// Test: Recovery Replay
// ============================================================================

// alwaysDuplicateDB stands in for the Postgres tier during recovery, where
// every event fed back from the log is by definition already a row in the
// table the tier queries.
type alwaysDuplicateDB struct {
	calls int
}

func (d *alwaysDuplicateDB) IsDuplicate(eventType, idempotencyKey string) (bool, error) {
	d.calls++
	return true, nil
}

func TestReplay_ReappliesLoggedEvents(t *testing.T) {
	persistCh := make(chan core.CoreOutput, 1024)
	projCh := make(chan core.CoreOutput, 1024)
	db := &alwaysDuplicateDB{}
	c := core.NewDeterministicCore(0, 115, 5, 0, persistCh, projCh, db, nil)
	owner := uuid.New()

	c.BeginReplay()
	seedCollateral(t, c)
	open := mustTroveOpen(owner, coreDebt, coreColl, 0)
	if err := c.ProcessEvent(open); err != nil {
		t.Fatalf("replayed open failed: %v", err)
	}
	c.EndReplay()

	// Replay must rebuild state without asking the DB tier and without
	// re-emitting outputs the persist worker already wrote.
	if got := c.Protocol().TotalDebt; got != coreDebt {
		t.Errorf("TotalDebt = %d after replay, want %d", got, coreDebt)
	}
	if db.calls != 0 {
		t.Errorf("replay consulted the DB tier %d times, want 0", db.calls)
	}
	if got := len(drainOutputs(persistCh)); got != 0 {
		t.Errorf("replay emitted %d persist outputs, want 0", got)
	}
	if got := c.GetSequence(); got != 3 {
		t.Errorf("sequence = %d after replay, want 3", got)
	}

	// A live redelivery of a replayed transaction is absorbed by the LRU.
	if err := c.ProcessEvent(open); err != nil {
		t.Fatalf("redelivered open errored: %v", err)
	}
	if got := len(drainOutputs(persistCh)); got != 0 {
		t.Errorf("redelivery emitted %d outputs, want 0", got)
	}
	if got := c.Protocol().TotalDebt; got != coreDebt {
		t.Errorf("redelivery mutated TotalDebt: %d", got)
	}

	// A fresh transaction goes back through the DB tier.
	if err := c.ProcessEvent(mustPoolStake(owner, coreDebt, 1)); err != nil {
		t.Fatalf("post-replay stake errored: %v", err)
	}
	if db.calls != 1 {
		t.Errorf("DB tier calls after replay = %d, want 1", db.calls)
	}
	if got := c.Protocol().TotalStake; got != 0 {
		t.Errorf("TotalStake = %d, want 0 (DB tier flagged the stake)", got)
	}
}

// ============================================================================
// Test: Idempotency LRU Capacity
// ============================================================================

func TestIdempotencyLRUCapacity_Configurable(t *testing.T) {
	persistCh := make(chan core.CoreOutput, 1024)
	projCh := make(chan core.CoreOutput, 1024)
	c := core.NewDeterministicCore(0, 115, 5, 1, persistCh, projCh, nil, nil)
	seedCollateral(t, c)
	owner := uuid.New()

	open := mustTroveOpen(owner, coreDebt, coreColl, 0)
	if err := c.ProcessEvent(open); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := c.ProcessEvent(mustPoolStake(owner, coreDebt, 1)); err != nil {
		t.Fatalf("stake failed: %v", err)
	}

	// With room for one key the open's key has been evicted, so its
	// redelivery is no longer recognized as a duplicate and trips sequence
	// validation instead of being absorbed.
	if err := c.ProcessEvent(open); err == nil {
		t.Fatal("expected evicted redelivery to fail sequence validation")
	}
}

// ============================================================================
// Test: Projection Channel (non-blocking drop)
// ============================================================================

func TestProjectionChannel_DropsOnFull(t *testing.T) {
	persistCh := make(chan core.CoreOutput, 1024)
	projCh := make(chan core.CoreOutput, 1)
	c := core.NewDeterministicCore(0, 115, 5, 0, persistCh, projCh, nil, nil)
	seedCollateral(t, c)
	owner := uuid.New()

	// Events keep flowing even once the projection buffer is full.
	if err := c.ProcessEvent(mustTroveOpen(owner, coreDebt, 2*coreColl, 0)); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := c.ProcessEvent(mustPoolStake(owner, coreDebt, 1)); err != nil {
		t.Fatalf("stake failed: %v", err)
	}

	if got := len(drainOutputs(persistCh)); got != 4 {
		t.Errorf("expected 4 persist outputs, got %d", got)
	}
}
