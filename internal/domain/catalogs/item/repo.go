package item

import (
	"context"

	"rxledger/internal/core/id"
)

// Repository defines the interface for Item persistence.
type Repository interface {
	// Create inserts a new item
	Create(ctx context.Context, item *Item) error

	// GetByID retrieves an item by ID
	GetByID(ctx context.Context, id id.ID) (*Item, error)

	// GetByCode retrieves an item by code
	GetByCode(ctx context.Context, code string) (*Item, error)

	// Update modifies an existing item (with optimistic locking)
	Update(ctx context.Context, item *Item) error

	// FindByBarcode retrieves an item by retail barcode
	FindByBarcode(ctx context.Context, barcode string) (*Item, error)
}
