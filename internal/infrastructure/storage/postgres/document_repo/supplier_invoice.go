package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"rxledger/internal/core/id"
	"rxledger/internal/domain"
	"rxledger/internal/domain/documents/supplier_invoice"
	"rxledger/internal/infrastructure/storage/postgres"
)

const (
	supplierInvoicesTable     = "doc_supplier_invoices"
	supplierInvoiceLinesTable = "doc_supplier_invoice_lines"
)

// SupplierInvoiceRepo implements supplier_invoice.Repository.
type SupplierInvoiceRepo struct {
	*BaseDocumentRepo[*supplier_invoice.SupplierInvoice]
}

// NewSupplierInvoiceRepo creates a new supplier invoice repository.
func NewSupplierInvoiceRepo(txManager *postgres.TxManager) *SupplierInvoiceRepo {
	return &SupplierInvoiceRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txManager,
			supplierInvoicesTable,
			postgres.ExtractDBColumns[supplier_invoice.SupplierInvoice](),
			func() *supplier_invoice.SupplierInvoice { return &supplier_invoice.SupplierInvoice{} },
		),
	}
}

func (r *SupplierInvoiceRepo) GetLines(ctx context.Context, docID id.ID) ([]supplier_invoice.Line, error) {
	q := r.Builder().
		Select(
			"line_id", "line_no", "item_id",
			"quantity", "unit_name", "batch_number", "expiry_date",
			"unit_cost", "line_total",
		).
		From(supplierInvoiceLinesTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []supplier_invoice.Line
	if err := pgxscan.Select(ctx, r.querier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return lines, nil
}

func (r *SupplierInvoiceRepo) SaveLines(ctx context.Context, docID id.ID, lines []supplier_invoice.Line) error {
	querier := r.querier(ctx)

	deleteSQL := "DELETE FROM " + supplierInvoiceLinesTable + " WHERE document_id = $1"
	if _, err := querier.Exec(ctx, deleteSQL, docID); err != nil {
		return fmt.Errorf("delete existing lines: %w", err)
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(supplierInvoiceLinesTable).
		Columns(
			"line_id", "document_id", "line_no", "item_id",
			"quantity", "unit_name", "batch_number", "expiry_date",
			"unit_cost", "line_total",
		)

	for _, line := range lines {
		q = q.Values(
			line.LineID, docID, line.LineNo, line.ItemID,
			line.Quantity, line.UnitName, line.BatchNumber, line.ExpiryDate,
			line.UnitCost, line.LineTotal,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert lines: %w", err)
	}

	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}

	return nil
}

func (r *SupplierInvoiceRepo) ExistsRecentWithHash(ctx context.Context, companyID id.ID, createdBy, contentHash string, since time.Time) (bool, error) {
	q := r.Builder().
		Select("1").
		From(supplierInvoicesTable).
		Where(squirrel.Eq{
			"company_id":   companyID,
			"created_by":   createdBy,
			"content_hash": contentHash,
		}).
		Where(squirrel.GtOrEq{"created_at": since}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&one)
	if err != nil {
		if pgxscan.NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("check recent hash: %w", err)
	}

	return true, nil
}

func (r *SupplierInvoiceRepo) List(ctx context.Context, filter supplier_invoice.ListFilter) (domain.ListResult[*supplier_invoice.SupplierInvoice], error) {
	q := r.applyCommonFilter(r.baseSelect(), filter.ListFilter)
	if filter.SupplierID != nil {
		q = q.Where(squirrel.Eq{"supplier_id": *filter.SupplierID})
	}
	return r.finishList(ctx, q, filter.ListFilter)
}
