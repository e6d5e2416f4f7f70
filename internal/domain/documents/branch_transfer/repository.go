package branch_transfer

import (
	"context"

	"rxledger/internal/core/id"
	"rxledger/internal/domain"
)

// OrderRepository persists branch orders.
type OrderRepository interface {
	Create(ctx context.Context, doc *BranchOrder) error
	GetByID(ctx context.Context, docID id.ID) (*BranchOrder, error)
	GetByIDForUpdate(ctx context.Context, docID id.ID) (*BranchOrder, error)
	Update(ctx context.Context, doc *BranchOrder) error
	Delete(ctx context.Context, docID id.ID) error

	GetLines(ctx context.Context, docID id.ID) ([]OrderLine, error)
	SaveLines(ctx context.Context, docID id.ID, lines []OrderLine) error
	// UpdateLineFulfillment writes the new fulfilled quantities for the
	// given lines; called inside the transfer-completion transaction.
	UpdateLineFulfillment(ctx context.Context, lines []OrderLine) error

	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*BranchOrder], error)
}

// TransferRepository persists branch transfers.
type TransferRepository interface {
	Create(ctx context.Context, doc *BranchTransfer) error
	GetByID(ctx context.Context, docID id.ID) (*BranchTransfer, error)
	GetByIDForUpdate(ctx context.Context, docID id.ID) (*BranchTransfer, error)
	Update(ctx context.Context, doc *BranchTransfer) error
	Delete(ctx context.Context, docID id.ID) error

	GetLines(ctx context.Context, docID id.ID) ([]TransferLine, error)
	SaveLines(ctx context.Context, docID id.ID, lines []TransferLine) error

	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*BranchTransfer], error)
}

// ReceiptRepository persists transfer receipts.
type ReceiptRepository interface {
	Create(ctx context.Context, doc *TransferReceipt) error
	GetByID(ctx context.Context, docID id.ID) (*TransferReceipt, error)
	GetByIDForUpdate(ctx context.Context, docID id.ID) (*TransferReceipt, error)
	Update(ctx context.Context, doc *TransferReceipt) error

	GetLines(ctx context.Context, docID id.ID) ([]ReceiptLine, error)
	SaveLines(ctx context.Context, docID id.ID, lines []ReceiptLine) error

	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*TransferReceipt], error)
}
