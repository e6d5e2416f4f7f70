// Package ledger_repo provides the PostgreSQL implementation of the stock
// ledger and its balance snapshot.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
	"rxledger/internal/core/types"
	"rxledger/internal/domain/ledger"
	"rxledger/internal/infrastructure/storage/postgres"
)

const (
	ledgerEntriesTable = "ledger_entries"
	stockBalancesTable = "stock_balances"
	lastPurchasesTable = "last_purchases"
)

var ledgerColumns = []string{
	"id", "company_id", "branch_id", "item_id",
	"batch_number", "expiry_date",
	"transaction_type", "reference_type", "reference_id",
	"quantity_delta", "unit_cost", "total_cost",
	"notes", "created_by", "created_at",
}

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *LedgerRepo) querier(ctx context.Context) postgres.Querier {
	return r.txManager.GetQuerier(ctx)
}

// AppendEntries inserts ledger rows. Inside a transaction the COPY
// protocol is used; appends must share the transaction with the snapshot
// upsert, so the non-transactional fallback is multi-VALUES insert only
// for callers that genuinely have nothing else to commit.
func (r *LedgerRepo) AppendEntries(ctx context.Context, entries []entity.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	if tx := r.txManager.GetTx(ctx); tx != nil {
		inserter := postgres.NewBatchInserter(r.txManager)
		rows := make([][]any, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []any{
				e.ID, e.CompanyID, e.BranchID, e.ItemID,
				nullableString(e.BatchNumber), e.ExpiryDate,
				e.TransactionType, e.ReferenceType, e.ReferenceID,
				e.QuantityDelta, e.UnitCost, e.TotalCost,
				e.Notes, e.CreatedBy, e.CreatedAt,
			})
		}
		if _, err := inserter.CopyFromSlice(ctx, ledgerEntriesTable, ledgerColumns, rows); err != nil {
			return fmt.Errorf("copy ledger entries: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(ledgerEntriesTable).Columns(ledgerColumns...)
	for _, e := range entries {
		q = q.Values(
			e.ID, e.CompanyID, e.BranchID, e.ItemID,
			nullableString(e.BatchNumber), e.ExpiryDate,
			e.TransactionType, e.ReferenceType, e.ReferenceID,
			e.QuantityDelta, e.UnitCost, e.TotalCost,
			e.Notes, e.CreatedBy, e.CreatedAt,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert ledger entries: %w", err)
	}

	return nil
}

// SumDeltas computes the current stock straight from the ledger.
func (r *LedgerRepo) SumDeltas(ctx context.Context, companyID, branchID, itemID id.ID) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(quantity_delta), 0)
		FROM ledger_entries
		WHERE company_id = $1 AND branch_id = $2 AND item_id = $3
	`

	var sum types.Quantity
	err := r.querier(ctx).QueryRow(ctx, sql, companyID, branchID, itemID).Scan(&sum)
	if err != nil {
		return types.ZeroQuantity(), fmt.Errorf("sum deltas: %w", err)
	}

	return sum, nil
}

// EntriesByReference retrieves all entries a document produced.
func (r *LedgerRepo) EntriesByReference(ctx context.Context, refType entity.ReferenceType, refID id.ID) ([]entity.LedgerEntry, error) {
	q := r.builder.Select(ledgerColumns...).
		From(ledgerEntriesTable).
		Where(squirrel.Eq{"reference_type": refType, "reference_id": refID}).
		OrderBy("created_at", "id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []entity.LedgerEntry
	if err := pgxscan.Select(ctx, r.querier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}

	return entries, nil
}

// MovementHistory returns entries for an item at a branch, newest first.
func (r *LedgerRepo) MovementHistory(ctx context.Context, companyID, branchID, itemID id.ID, filter ledger.MovementFilter) ([]entity.LedgerEntry, error) {
	q := r.builder.Select(ledgerColumns...).
		From(ledgerEntriesTable).
		Where(squirrel.Eq{
			"company_id": companyID,
			"branch_id":  branchID,
			"item_id":    itemID,
		})

	if filter.TransactionType != nil {
		q = q.Where(squirrel.Eq{"transaction_type": *filter.TransactionType})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}

	q = q.OrderBy("created_at DESC", "id DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entries []entity.LedgerEntry
	if err := pgxscan.Select(ctx, r.querier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}

	return entries, nil
}

// BatchesFor returns per-batch remainders in FEFO order: expiry ascending
// with nulls last, batch number as tie-break. Depleted batches are kept
// out at the SQL level so the allocator never sees them.
func (r *LedgerRepo) BatchesFor(ctx context.Context, companyID, branchID, itemID id.ID) ([]entity.BatchStock, error) {
	sql := `
		SELECT
			batch_number,
			expiry_date,
			SUM(quantity_delta) AS remaining,
			(array_agg(unit_cost ORDER BY created_at DESC, id DESC))[1] AS unit_cost
		FROM ledger_entries
		WHERE company_id = $1 AND branch_id = $2 AND item_id = $3
		  AND batch_number IS NOT NULL
		GROUP BY batch_number, expiry_date
		HAVING SUM(quantity_delta) > 0
		ORDER BY expiry_date ASC NULLS LAST, batch_number ASC
	`

	var batches []entity.BatchStock
	if err := pgxscan.Select(ctx, r.querier(ctx), &batches, sql, companyID, branchID, itemID); err != nil {
		return nil, fmt.Errorf("select batches: %w", err)
	}

	return batches, nil
}

// BatchRemaining returns the remainder of one specific batch, depleted
// or not. NotFound means the batch never appeared in the ledger.
func (r *LedgerRepo) BatchRemaining(ctx context.Context, companyID, branchID, itemID id.ID, batchNumber string, expiryDate *time.Time) (entity.BatchStock, error) {
	sql := `
		SELECT
			batch_number,
			expiry_date,
			SUM(quantity_delta) AS remaining,
			(array_agg(unit_cost ORDER BY created_at DESC, id DESC))[1] AS unit_cost
		FROM ledger_entries
		WHERE company_id = $1 AND branch_id = $2 AND item_id = $3
		  AND batch_number = $4
		  AND expiry_date IS NOT DISTINCT FROM $5
		GROUP BY batch_number, expiry_date
	`

	var batch entity.BatchStock
	err := pgxscan.Get(ctx, r.querier(ctx), &batch, sql, companyID, branchID, itemID, batchNumber, expiryDate)
	if err != nil {
		if pgxscan.NotFound(err) {
			return batch, apperror.NewNotFound("batch", batchNumber)
		}
		return batch, fmt.Errorf("get batch remaining: %w", err)
	}

	return batch, nil
}

var balanceColumns = []string{
	"company_id", "branch_id", "item_id",
	"current_stock", "last_movement_at", "updated_at",
}

// GetBalance returns the snapshot row, NotFound if never written.
func (r *LedgerRepo) GetBalance(ctx context.Context, companyID, branchID, itemID id.ID) (entity.StockBalance, error) {
	return r.getBalance(ctx, companyID, branchID, itemID, false)
}

// GetBalanceForUpdate returns the snapshot row with a row lock.
func (r *LedgerRepo) GetBalanceForUpdate(ctx context.Context, companyID, branchID, itemID id.ID) (entity.StockBalance, error) {
	return r.getBalance(ctx, companyID, branchID, itemID, true)
}

func (r *LedgerRepo) getBalance(ctx context.Context, companyID, branchID, itemID id.ID, forUpdate bool) (entity.StockBalance, error) {
	var balance entity.StockBalance

	q := r.builder.Select(balanceColumns...).
		From(stockBalancesTable).
		Where(squirrel.Eq{
			"company_id": companyID,
			"branch_id":  branchID,
			"item_id":    itemID,
		}).
		Limit(1)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return balance, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Get(ctx, r.querier(ctx), &balance, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return balance, apperror.NewNotFound("stock balance", itemID.String())
		}
		return balance, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}

// UpsertBalance increments the snapshot row atomically and returns the
// post-apply balance. The increment (not overwrite) form lets concurrent
// documents on the same key serialize on the row without losing either
// delta.
func (r *LedgerRepo) UpsertBalance(ctx context.Context, companyID, branchID, itemID id.ID, delta types.Quantity, movedAt time.Time) (types.Quantity, error) {
	sql := `
		INSERT INTO stock_balances (
			company_id, branch_id, item_id,
			current_stock, last_movement_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (company_id, branch_id, item_id) DO UPDATE SET
			current_stock = stock_balances.current_stock + EXCLUDED.current_stock,
			last_movement_at = GREATEST(stock_balances.last_movement_at, EXCLUDED.last_movement_at),
			updated_at = NOW()
		RETURNING current_stock
	`

	var balance types.Quantity
	err := r.querier(ctx).QueryRow(ctx, sql, companyID, branchID, itemID, delta, movedAt).Scan(&balance)
	if err != nil {
		return types.ZeroQuantity(), fmt.Errorf("upsert balance: %w", err)
	}

	return balance, nil
}

// RebuildBalances re-derives snapshot rows from the ledger. Rows whose
// stored balance differs from the ledger sum are rewritten; the count of
// such drifted keys is returned. Keys present in the snapshot but absent
// from the ledger scope are zeroed rather than deleted, so a stale
// positive balance cannot survive a rebuild.
func (r *LedgerRepo) RebuildBalances(ctx context.Context, companyID id.ID, branchID, itemID *id.ID) (int, error) {
	conditions := "company_id = $1"
	args := []any{companyID}
	argIndex := 2

	if branchID != nil {
		conditions += fmt.Sprintf(" AND branch_id = $%d", argIndex)
		args = append(args, *branchID)
		argIndex++
	}
	if itemID != nil {
		conditions += fmt.Sprintf(" AND item_id = $%d", argIndex)
		args = append(args, *itemID)
	}

	sql := fmt.Sprintf(`
		WITH truth AS (
			SELECT company_id, branch_id, item_id,
			       SUM(quantity_delta) AS current_stock,
			       MAX(created_at) AS last_movement_at
			FROM ledger_entries
			WHERE %s
			GROUP BY company_id, branch_id, item_id
		),
		zeroed AS (
			UPDATE stock_balances sb
			SET current_stock = 0, updated_at = NOW()
			WHERE %s
			  AND current_stock <> 0
			  AND NOT EXISTS (
				SELECT 1 FROM truth t
				WHERE t.company_id = sb.company_id
				  AND t.branch_id = sb.branch_id
				  AND t.item_id = sb.item_id
			  )
			RETURNING 1
		),
		repaired AS (
			INSERT INTO stock_balances (
				company_id, branch_id, item_id,
				current_stock, last_movement_at, updated_at
			)
			SELECT company_id, branch_id, item_id,
			       current_stock, last_movement_at, NOW()
			FROM truth
			ON CONFLICT (company_id, branch_id, item_id) DO UPDATE SET
				current_stock = EXCLUDED.current_stock,
				last_movement_at = EXCLUDED.last_movement_at,
				updated_at = NOW()
			WHERE stock_balances.current_stock <> EXCLUDED.current_stock
			RETURNING 1
		)
		SELECT (SELECT COUNT(*) FROM zeroed) + (SELECT COUNT(*) FROM repaired)
	`, conditions, conditions)

	var drifted int
	if err := r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&drifted); err != nil {
		return 0, fmt.Errorf("rebuild balances: %w", err)
	}

	return drifted, nil
}

// UpsertLastPurchase records the most recent purchase for fast reads.
// Older data never overwrites newer: the update is guarded on purchased_at.
func (r *LedgerRepo) UpsertLastPurchase(ctx context.Context, lp entity.LastPurchase) error {
	sql := `
		INSERT INTO last_purchases (
			company_id, branch_id, item_id,
			unit_cost, batch_number, expiry_date, purchased_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (company_id, branch_id, item_id) DO UPDATE SET
			unit_cost = EXCLUDED.unit_cost,
			batch_number = EXCLUDED.batch_number,
			expiry_date = EXCLUDED.expiry_date,
			purchased_at = EXCLUDED.purchased_at
		WHERE last_purchases.purchased_at <= EXCLUDED.purchased_at
	`

	_, err := r.querier(ctx).Exec(ctx, sql,
		lp.CompanyID, lp.BranchID, lp.ItemID,
		lp.UnitCost, nullableString(lp.BatchNumber), lp.ExpiryDate, lp.PurchasedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert last purchase: %w", err)
	}

	return nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ensure interface compliance.
var _ ledger.Repository = (*LedgerRepo)(nil)
