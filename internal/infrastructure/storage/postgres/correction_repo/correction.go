// Package correction_repo provides the PostgreSQL implementation of the
// correction audit trail and the two permitted ledger-row mutations.
package correction_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/id"
	"rxledger/internal/core/types"
	"rxledger/internal/domain/corrections"
	"rxledger/internal/infrastructure/storage/postgres"
)

const correctionsTable = "correction_records"

var correctionColumns = []string{
	"id", "company_id", "branch_id", "item_id",
	"batch_number", "expiry_date", "kind",
	"changes", "changes_compressed", "compression_algo",
	"ledger_entry_id", "reason", "created_by", "created_at",
}

// CorrectionRepo implements corrections.Repository.
type CorrectionRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewCorrectionRepo creates a new correction repository.
func NewCorrectionRepo(txManager *postgres.TxManager) *CorrectionRepo {
	return &CorrectionRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *CorrectionRepo) querier(ctx context.Context) postgres.Querier {
	return r.txManager.GetQuerier(ctx)
}

// Create inserts a correction record. Records are never updated or
// deleted afterwards.
func (r *CorrectionRepo) Create(ctx context.Context, record *corrections.CorrectionRecord) error {
	q := r.builder.Insert(correctionsTable).
		Columns(correctionColumns...).
		Values(
			record.ID, record.CompanyID, record.BranchID, record.ItemID,
			record.BatchNumber, record.ExpiryDate, record.Kind,
			record.Changes, record.ChangesCompressed, record.CompressionAlgo,
			record.LedgerEntryID, record.Reason, record.CreatedBy, record.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert correction: %w", err)
	}

	return nil
}

// GetByID retrieves a correction record.
func (r *CorrectionRepo) GetByID(ctx context.Context, recordID id.ID) (*corrections.CorrectionRecord, error) {
	q := r.builder.Select(correctionColumns...).
		From(correctionsTable).
		Where(squirrel.Eq{"id": recordID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var record corrections.CorrectionRecord
	if err := pgxscan.Get(ctx, r.querier(ctx), &record, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("correction", recordID.String())
		}
		return nil, fmt.Errorf("get correction: %w", err)
	}

	return &record, nil
}

// History lists corrections for a batch, newest first.
func (r *CorrectionRepo) History(ctx context.Context, companyID, branchID, itemID id.ID, batchNumber string) ([]corrections.CorrectionRecord, error) {
	q := r.builder.Select(correctionColumns...).
		From(correctionsTable).
		Where(squirrel.Eq{
			"company_id":   companyID,
			"branch_id":    branchID,
			"item_id":      itemID,
			"batch_number": batchNumber,
		}).
		OrderBy("created_at DESC", "id DESC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var records []corrections.CorrectionRecord
	if err := pgxscan.Select(ctx, r.querier(ctx), &records, sql, args...); err != nil {
		return nil, fmt.Errorf("select corrections: %w", err)
	}

	return records, nil
}

// UpdateBatchCost rewrites unit_cost and recomputes total_cost on every
// ledger entry of the batch. This is the cost-only mutation the audit
// trail permits; quantity columns are never touched here.
func (r *CorrectionRepo) UpdateBatchCost(ctx context.Context, companyID, branchID, itemID id.ID, batchNumber string, expiryDate *time.Time, newUnitCost types.Money) (int, error) {
	sql := `
		UPDATE ledger_entries
		SET unit_cost = $6,
		    total_cost = ABS(quantity_delta) * $6
		WHERE company_id = $1 AND branch_id = $2 AND item_id = $3
		  AND batch_number = $4
		  AND expiry_date IS NOT DISTINCT FROM $5
	`

	result, err := r.querier(ctx).Exec(ctx, sql,
		companyID, branchID, itemID, batchNumber, expiryDate, newUnitCost)
	if err != nil {
		return 0, fmt.Errorf("update batch cost: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// RenameBatch rewrites batch_number and expiry_date on every ledger
// entry of the batch.
func (r *CorrectionRepo) RenameBatch(ctx context.Context, companyID, branchID, itemID id.ID, batchNumber string, expiryDate *time.Time, newBatchNumber string, newExpiryDate *time.Time) (int, error) {
	sql := `
		UPDATE ledger_entries
		SET batch_number = $6,
		    expiry_date = $7
		WHERE company_id = $1 AND branch_id = $2 AND item_id = $3
		  AND batch_number = $4
		  AND expiry_date IS NOT DISTINCT FROM $5
	`

	result, err := r.querier(ctx).Exec(ctx, sql,
		companyID, branchID, itemID, batchNumber, expiryDate, newBatchNumber, newExpiryDate)
	if err != nil {
		return 0, fmt.Errorf("rename batch: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// Ensure interface compliance.
var _ corrections.Repository = (*CorrectionRepo)(nil)
