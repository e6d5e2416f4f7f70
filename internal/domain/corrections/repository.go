package corrections

import (
	"context"
	"time"

	"rxledger/internal/core/id"
	"rxledger/internal/core/types"
)

// Repository persists correction records and carries the two permitted
// in-place mutations of ledger rows. Keeping these mutations here, off
// the ledger repository, keeps the ledger interface append-only.
type Repository interface {
	Create(ctx context.Context, record *CorrectionRecord) error
	GetByID(ctx context.Context, recordID id.ID) (*CorrectionRecord, error)
	// History lists corrections for a batch, newest first.
	History(ctx context.Context, companyID, branchID, itemID id.ID, batchNumber string) ([]CorrectionRecord, error)

	// UpdateBatchCost rewrites unit_cost and recomputes total_cost on
	// every ledger entry of the batch. Quantity columns are untouched.
	// Returns the number of entries rewritten.
	UpdateBatchCost(ctx context.Context, companyID, branchID, itemID id.ID, batchNumber string, expiryDate *time.Time, newUnitCost types.Money) (int, error)

	// RenameBatch rewrites batch_number and expiry_date on every ledger
	// entry of the batch. Returns the number of entries rewritten.
	RenameBatch(ctx context.Context, companyID, branchID, itemID id.ID, batchNumber string, expiryDate *time.Time, newBatchNumber string, newExpiryDate *time.Time) (int, error)
}
