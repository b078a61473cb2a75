package query

import (
	"TroveLedger/internal/ledger"
	"TroveLedger/internal/pool"
	"TroveLedger/internal/state"
	"TroveLedger/internal/trove"
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// StateView is the read-only window into the core's in-memory state. Trove
// and stake lookups are served from memory for freshness; balance, journal,
// and history queries read the Postgres projections. The core owns these
// structures, so view reads are best-effort point-in-time.
type StateView interface {
	TroveBook() *state.TroveBook
	StakeBook() *state.StakeBook
	Protocol() *state.ProtocolState
	Assets() *ledger.AssetRegistry
	GetSequence() int64
}

// QueryService provides read-only access to the in-memory state and the
// projection tables. All responses include as_of_sequence for freshness
// semantics.
type QueryService struct {
	db   *sql.DB
	view StateView
}

func NewQueryService(db *sql.DB, view StateView) *QueryService {
	return &QueryService{db: db, view: view}
}

// GetTrove returns a user's trove with its collateral position for a denom.
// Debt is reported as stored; PendingDebt adds the unapplied redistribution
// share so callers see the true repayment obligation.
func (qs *QueryService) GetTrove(
	ctx context.Context,
	owner uuid.UUID,
	denom string,
) (*TroveResponse, error) {
	book := qs.view.TroveBook()

	t := book.Trove(owner)
	if t == nil || t.Debt == 0 {
		return &TroveResponse{
			Owner:        owner,
			Denom:        denom,
			Open:         false,
			AsOfSequence: qs.view.GetSequence(),
		}, nil
	}

	resp := &TroveResponse{
		Owner:        owner,
		Denom:        denom,
		Debt:         t.Debt,
		CachedICR:    t.CachedICR,
		Open:         true,
		AsOfSequence: qs.view.GetSequence(),
	}

	if c := book.Collateral(owner, denom); c != nil {
		resp.Collateral = c.Amount

		// Unapplied redistribution debt: (L_now - L_snap) * coll / SCALE
		if totals := book.Totals(denom); totals != nil {
			if pending, _, err := trove.PendingRewards(t, c, totals); err == nil {
				resp.PendingDebt = pending
			}
		}
	}

	return resp, nil
}

// ListTroves returns open troves holding collateral in the given denom,
// sorted by owner for stable pagination.
func (qs *QueryService) ListTroves(
	ctx context.Context,
	denom string,
	limit int,
) ([]TroveResponse, error) {
	book := qs.view.TroveBook()
	asOfSeq := qs.view.GetSequence()

	var out []TroveResponse
	for _, c := range book.AllCollateral() {
		if c.Denom != denom || c.Amount == 0 {
			continue
		}
		t := book.Trove(c.Owner)
		if t == nil || t.Debt == 0 {
			continue
		}

		resp := TroveResponse{
			Owner:        c.Owner,
			Denom:        denom,
			Debt:         t.Debt,
			Collateral:   c.Amount,
			CachedICR:    t.CachedICR,
			Open:         true,
			AsOfSequence: asOfSeq,
		}
		if totals := book.Totals(denom); totals != nil {
			if pending, _, err := trove.PendingRewards(t, c, totals); err == nil {
				resp.PendingDebt = pending
			}
		}

		out = append(out, resp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out, nil
}

// GetStake returns a user's stability pool deposit with the compounded
// value and accrued collateral gains computed at query time.
func (qs *QueryService) GetStake(
	ctx context.Context,
	owner uuid.UUID,
) (*StakeResponse, error) {
	stakes := qs.view.StakeBook()
	stability := pool.NewPool(stakes, qs.view.Protocol())

	resp := &StakeResponse{
		Owner:           owner,
		CollateralGains: make(map[string]uint64),
		AsOfSequence:    qs.view.GetSequence(),
	}

	s := stakes.Stake(owner)
	if s == nil {
		return resp, nil
	}

	resp.DepositedAmount = s.Amount
	resp.EpochSnapshot = s.EpochSnapshot

	compounded, err := stability.CompoundedStake(s)
	if err != nil {
		return nil, fmt.Errorf("compounded stake: %w", err)
	}
	resp.CompoundedStake = compounded

	gains, err := stability.CollateralGains(s)
	if err != nil {
		return nil, fmt.Errorf("collateral gains: %w", err)
	}
	resp.CollateralGains = gains

	return resp, nil
}

// GetProtocolStats returns protocol-wide aggregates.
func (qs *QueryService) GetProtocolStats(ctx context.Context) (*ProtocolStatsResponse, error) {
	protocol := qs.view.Protocol()
	book := qs.view.TroveBook()

	resp := &ProtocolStatsResponse{
		TotalDebt:              protocol.TotalDebt,
		TotalStake:             protocol.TotalStake,
		PoolEpoch:              protocol.Epoch,
		MinimumCollateralRatio: protocol.MinimumCollateralRatio,
		ProtocolFeePercent:     protocol.ProtocolFeePercent,
		AsOfSequence:           qs.view.GetSequence(),
	}

	for _, totals := range book.AllTotals() {
		resp.Denoms = append(resp.Denoms, DenomStats{
			Denom:           totals.Denom,
			TotalCollateral: totals.Amount,
			Decimals:        totals.Decimals,
		})
	}

	return resp, nil
}

// GetBalance returns a user's projected wallet balance for an asset.
func (qs *QueryService) GetBalance(
	ctx context.Context,
	userID uuid.UUID,
	asset string,
) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	assetID, ok := qs.view.Assets().ID(asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset %q", asset)
	}

	walletPath := fmt.Sprintf("user:%s:wallet:%d", userID, assetID)
	wallet, err := qs.getProjectedBalance(ctx, walletPath)
	if err != nil {
		return nil, err
	}

	resp := &BalanceResponse{
		UserID:        userID,
		Asset:         asset,
		WalletBalance: wallet,
		AsOfSequence:  asOfSeq,
	}

	// Locked collateral and staked amount come from the in-memory state
	book := qs.view.TroveBook()
	if c := book.Collateral(userID, asset); c != nil {
		resp.LockedCollateral = c.Amount
	}
	if s := qs.view.StakeBook().Stake(userID); s != nil {
		stability := pool.NewPool(qs.view.StakeBook(), qs.view.Protocol())
		if compounded, err := stability.CompoundedStake(s); err == nil {
			resp.StakedAmount = compounded
		}
	}

	return resp, nil
}

// GetLiquidationHistory returns past liquidations, optionally filtered by
// owner. Supports cursor-based pagination on sequence.
func (qs *QueryService) GetLiquidationHistory(
	ctx context.Context,
	owner *uuid.UUID,
	denom *string,
	limit int,
	afterSequence *int64,
) ([]LiquidationHistoryResponse, error) {
	query := `
		SELECT sequence, owner, denom, path, icr, debt, collateral,
		       burned_from_pool, seized_to_pool, redistributed_debt, redistributed_collateral, timestamp_us
		FROM projections.liquidation_history
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if owner != nil {
		query += fmt.Sprintf(" AND owner = $%d", argIdx)
		args = append(args, owner.String())
		argIdx++
	}

	if denom != nil {
		query += fmt.Sprintf(" AND denom = $%d", argIdx)
		args = append(args, *denom)
		argIdx++
	}

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []LiquidationHistoryResponse
	for rows.Next() {
		var h LiquidationHistoryResponse
		var ownerStr string
		var icr, debt, coll, burned, seized, redisDebt, redisColl int64
		if err := rows.Scan(
			&h.Sequence, &ownerStr, &h.Denom, &h.Path, &icr, &debt, &coll,
			&burned, &seized, &redisDebt, &redisColl, &h.Timestamp,
		); err != nil {
			return nil, err
		}
		h.Owner, _ = uuid.Parse(ownerStr)
		h.ICR = uint64(icr)
		h.Debt = uint64(debt)
		h.Collateral = uint64(coll)
		h.BurnedFromPool = uint64(burned)
		h.SeizedToPool = uint64(seized)
		h.RedistributedDebt = uint64(redisDebt)
		h.RedistributedCollateral = uint64(redisColl)
		history = append(history, h)
	}

	return history, rows.Err()
}

// GetJournalHistory returns journal entries for a user with pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM trove_ledger.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain and global balance invariants against
// the durable event log and projections.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Check hash chain continuity
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence, e1.prev_hash, e2.state_hash
		FROM trove_ledger.events e1
		LEFT JOIN trove_ledger.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var prevHash, expectedHash []byte
		if err := rows.Scan(&seq, &prevHash, &expectedHash); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}

	// Global balance must sum to zero across all accounts per asset
	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) as total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID uint16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   assetID,
			Imbalance: total,
		})
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
