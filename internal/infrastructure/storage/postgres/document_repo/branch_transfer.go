package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"rxledger/internal/core/id"
	"rxledger/internal/domain/documents/branch_transfer"
	"rxledger/internal/infrastructure/storage/postgres"
)

const (
	branchOrdersTable     = "doc_branch_orders"
	branchOrderLinesTable = "doc_branch_order_lines"
	branchTransfersTable  = "doc_branch_transfers"
	transferLinesTable    = "doc_branch_transfer_lines"
	transferReceiptsTable = "doc_transfer_receipts"
	receiptLinesTable     = "doc_transfer_receipt_lines"
)

// BranchOrderRepo implements branch_transfer.OrderRepository.
type BranchOrderRepo struct {
	*BaseDocumentRepo[*branch_transfer.BranchOrder]
}

// NewBranchOrderRepo creates a new branch order repository.
func NewBranchOrderRepo(txManager *postgres.TxManager) *BranchOrderRepo {
	return &BranchOrderRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txManager,
			branchOrdersTable,
			postgres.ExtractDBColumns[branch_transfer.BranchOrder](),
			func() *branch_transfer.BranchOrder { return &branch_transfer.BranchOrder{} },
		),
	}
}

func (r *BranchOrderRepo) GetLines(ctx context.Context, docID id.ID) ([]branch_transfer.OrderLine, error) {
	q := r.Builder().
		Select(
			"line_id", "line_no", "item_id",
			"quantity", "unit_name", "quantity_base", "fulfilled_qty_base",
		).
		From(branchOrderLinesTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []branch_transfer.OrderLine
	if err := pgxscan.Select(ctx, r.querier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return lines, nil
}

func (r *BranchOrderRepo) SaveLines(ctx context.Context, docID id.ID, lines []branch_transfer.OrderLine) error {
	querier := r.querier(ctx)

	deleteSQL := "DELETE FROM " + branchOrderLinesTable + " WHERE document_id = $1"
	if _, err := querier.Exec(ctx, deleteSQL, docID); err != nil {
		return fmt.Errorf("delete existing lines: %w", err)
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(branchOrderLinesTable).
		Columns(
			"line_id", "document_id", "line_no", "item_id",
			"quantity", "unit_name", "quantity_base", "fulfilled_qty_base",
		)

	for _, line := range lines {
		q = q.Values(
			line.LineID, docID, line.LineNo, line.ItemID,
			line.Quantity, line.UnitName, line.QuantityBase, line.FulfilledQtyBase,
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

func (r *BranchOrderRepo) UpdateLineFulfillment(ctx context.Context, lines []branch_transfer.OrderLine) error {
	querier := r.querier(ctx)

	// LEAST against quantity_base holds the cap even if a concurrent
	// writer slipped a line update through outside the document lock.
	updateSQL := "UPDATE " + branchOrderLinesTable + `
		SET fulfilled_qty_base = LEAST($2, quantity_base)
		WHERE line_id = $1`

	for _, line := range lines {
		if _, err := querier.Exec(ctx, updateSQL, line.LineID, line.FulfilledQtyBase); err != nil {
			return fmt.Errorf("update line %s fulfillment: %w", line.LineID, err)
		}
	}

	return nil
}

// BranchTransferRepo implements branch_transfer.TransferRepository.
type BranchTransferRepo struct {
	*BaseDocumentRepo[*branch_transfer.BranchTransfer]
}

// NewBranchTransferRepo creates a new branch transfer repository.
func NewBranchTransferRepo(txManager *postgres.TxManager) *BranchTransferRepo {
	return &BranchTransferRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txManager,
			branchTransfersTable,
			postgres.ExtractDBColumns[branch_transfer.BranchTransfer](),
			func() *branch_transfer.BranchTransfer { return &branch_transfer.BranchTransfer{} },
		),
	}
}

func (r *BranchTransferRepo) GetLines(ctx context.Context, docID id.ID) ([]branch_transfer.TransferLine, error) {
	q := r.Builder().
		Select(
			"line_id", "line_no", "item_id",
			"quantity", "unit_name", "quantity_base",
			"batch_number", "expiry_date", "unit_cost",
		).
		From(transferLinesTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []branch_transfer.TransferLine
	if err := pgxscan.Select(ctx, r.querier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return lines, nil
}

func (r *BranchTransferRepo) SaveLines(ctx context.Context, docID id.ID, lines []branch_transfer.TransferLine) error {
	querier := r.querier(ctx)

	deleteSQL := "DELETE FROM " + transferLinesTable + " WHERE document_id = $1"
	if _, err := querier.Exec(ctx, deleteSQL, docID); err != nil {
		return fmt.Errorf("delete existing lines: %w", err)
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(transferLinesTable).
		Columns(
			"line_id", "document_id", "line_no", "item_id",
			"quantity", "unit_name", "quantity_base",
			"batch_number", "expiry_date", "unit_cost",
		)

	for _, line := range lines {
		q = q.Values(
			line.LineID, docID, line.LineNo, line.ItemID,
			line.Quantity, line.UnitName, line.QuantityBase,
			line.BatchNumber, line.ExpiryDate, line.UnitCost,
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

// TransferReceiptRepo implements branch_transfer.ReceiptRepository.
type TransferReceiptRepo struct {
	*BaseDocumentRepo[*branch_transfer.TransferReceipt]
}

// NewTransferReceiptRepo creates a new transfer receipt repository.
func NewTransferReceiptRepo(txManager *postgres.TxManager) *TransferReceiptRepo {
	return &TransferReceiptRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txManager,
			transferReceiptsTable,
			postgres.ExtractDBColumns[branch_transfer.TransferReceipt](),
			func() *branch_transfer.TransferReceipt { return &branch_transfer.TransferReceipt{} },
		),
	}
}

func (r *TransferReceiptRepo) GetLines(ctx context.Context, docID id.ID) ([]branch_transfer.ReceiptLine, error) {
	q := r.Builder().
		Select(
			"line_id", "line_no", "item_id",
			"quantity_base", "batch_number", "expiry_date", "unit_cost",
		).
		From(receiptLinesTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []branch_transfer.ReceiptLine
	if err := pgxscan.Select(ctx, r.querier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return lines, nil
}

func (r *TransferReceiptRepo) SaveLines(ctx context.Context, docID id.ID, lines []branch_transfer.ReceiptLine) error {
	querier := r.querier(ctx)

	deleteSQL := "DELETE FROM " + receiptLinesTable + " WHERE document_id = $1"
	if _, err := querier.Exec(ctx, deleteSQL, docID); err != nil {
		return fmt.Errorf("delete existing lines: %w", err)
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(receiptLinesTable).
		Columns(
			"line_id", "document_id", "line_no", "item_id",
			"quantity_base", "batch_number", "expiry_date", "unit_cost",
		)

	for _, line := range lines {
		q = q.Values(
			line.LineID, docID, line.LineNo, line.ItemID,
			line.QuantityBase, line.BatchNumber, line.ExpiryDate, line.UnitCost,
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
