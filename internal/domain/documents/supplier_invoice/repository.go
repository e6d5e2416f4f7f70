package supplier_invoice

import (
	"context"
	"time"

	"rxledger/internal/core/id"
	"rxledger/internal/domain"
)

// Repository defines persistence for supplier invoices.
type Repository interface {
	// Create inserts a new document
	Create(ctx context.Context, doc *SupplierInvoice) error

	// GetByID retrieves a document header
	GetByID(ctx context.Context, docID id.ID) (*SupplierInvoice, error)

	// GetByIDForUpdate retrieves the header with a row lock. Batching
	// acquires this lock before re-checking status so concurrent batch
	// requests for the same document serialize.
	GetByIDForUpdate(ctx context.Context, docID id.ID) (*SupplierInvoice, error)

	// Update modifies an existing document (optimistic locking)
	Update(ctx context.Context, doc *SupplierInvoice) error

	// Delete soft-deletes a draft document
	Delete(ctx context.Context, docID id.ID) error

	// GetLines retrieves line items ordered by line number
	GetLines(ctx context.Context, docID id.ID) ([]Line, error)

	// SaveLines replaces the document's line items
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error

	// ExistsRecentWithHash reports whether the same actor created a document
	// with the same content hash since the given time (dedup window).
	ExistsRecentWithHash(ctx context.Context, companyID id.ID, createdBy, contentHash string, since time.Time) (bool, error)

	// List retrieves documents with filtering
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*SupplierInvoice], error)
}

// ListFilter extends the common document filter.
type ListFilter struct {
	domain.ListFilter

	SupplierID *id.ID
}
