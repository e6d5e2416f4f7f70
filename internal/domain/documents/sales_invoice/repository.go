package sales_invoice

import (
	"context"
	"time"

	"rxledger/internal/core/id"
	"rxledger/internal/domain"
)

// ListFilter extends the common filter with sales-specific criteria.
type ListFilter struct {
	domain.ListFilter
	CustomerID *id.ID
}

// Repository defines the persistence interface for sales invoices.
type Repository interface {
	Create(ctx context.Context, doc *SalesInvoice) error
	GetByID(ctx context.Context, docID id.ID) (*SalesInvoice, error)
	// GetByIDForUpdate locks the document row so a concurrent batch
	// attempt serializes behind the caller.
	GetByIDForUpdate(ctx context.Context, docID id.ID) (*SalesInvoice, error)
	Update(ctx context.Context, doc *SalesInvoice) error
	Delete(ctx context.Context, docID id.ID) error

	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error

	// ExistsRecentWithHash reports whether the same actor created a
	// document with the same content hash after the given instant.
	ExistsRecentWithHash(ctx context.Context, companyID id.ID, createdBy, contentHash string, since time.Time) (bool, error)

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*SalesInvoice], error)
}
