// Package domain provides shared list/filter types for domain repositories.
package domain

import (
	"time"

	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
)

// ListFilter contains common filtering options for document list operations.
type ListFilter struct {
	// Search performs a pattern match on document number
	Search string

	// IDs filters by specific IDs
	IDs []id.ID

	// BranchID narrows to one branch
	BranchID *id.ID

	// Status narrows to one lifecycle state
	Status *entity.DocStatus

	// IncludeDeleted includes soft-deleted records
	IncludeDeleted bool

	// Date range on the business date
	DateFrom *time.Time
	DateTo   *time.Time

	// OrderBy specifies sorting: a column name, prefixed with "-" for
	// descending (e.g., "-date", "number")
	OrderBy string

	// Pagination
	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{
		Limit:   50,
		OrderBy: "-date",
	}
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}
