// Package ledger provides the append-only stock ledger and the materialized
// balance snapshot kept consistent with it.
package ledger

import (
	"context"
	"time"

	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
	"rxledger/internal/core/types"
)

// Repository defines persistence for the ledger and its snapshots.
//
// The ledger contract is append-only: no update or delete of ledger rows is
// exposed anywhere. Corrections are additive events handled by the
// corrections package.
type Repository interface {
	// Ledger facts

	// AppendEntries inserts ledger rows (COPY inside a transaction)
	AppendEntries(ctx context.Context, entries []entity.LedgerEntry) error

	// SumDeltas computes current stock straight from the ledger.
	// This is the ground truth and the fallback when the snapshot is absent.
	SumDeltas(ctx context.Context, companyID, branchID, itemID id.ID) (types.Quantity, error)

	// EntriesByReference retrieves all entries a document produced
	EntriesByReference(ctx context.Context, refType entity.ReferenceType, refID id.ID) ([]entity.LedgerEntry, error)

	// MovementHistory returns entries for an item at a branch, newest first
	MovementHistory(ctx context.Context, companyID, branchID, itemID id.ID, filter MovementFilter) ([]entity.LedgerEntry, error)

	// Batch views

	// BatchesFor returns per-batch remainders for (item, branch), expiry
	// ascending with nulls last, batch number as tie-break. Backs the FEFO
	// allocator and batch listings.
	BatchesFor(ctx context.Context, companyID, branchID, itemID id.ID) ([]entity.BatchStock, error)

	// BatchRemaining returns the remainder of one specific batch
	BatchRemaining(ctx context.Context, companyID, branchID, itemID id.ID, batchNumber string, expiryDate *time.Time) (entity.BatchStock, error)

	// Balance snapshot

	// GetBalance returns the snapshot row; NotFound if never written
	GetBalance(ctx context.Context, companyID, branchID, itemID id.ID) (entity.StockBalance, error)

	// GetBalanceForUpdate returns the snapshot row with a row lock
	GetBalanceForUpdate(ctx context.Context, companyID, branchID, itemID id.ID) (entity.StockBalance, error)

	// UpsertBalance atomically creates the row with delta as initial value or
	// increments the existing value, returning the post-apply balance.
	// Must run in the same transaction as the ledger append it mirrors.
	UpsertBalance(ctx context.Context, companyID, branchID, itemID id.ID, delta types.Quantity, movedAt time.Time) (types.Quantity, error)

	// RebuildBalances re-derives snapshot rows from the ledger (projection
	// replay). Branch and item narrow the scope when non-nil. Returns the
	// number of keys whose stored balance drifted from the ledger sum.
	RebuildBalances(ctx context.Context, companyID id.ID, branchID, itemID *id.ID) (int, error)

	// Auxiliary read snapshots

	// UpsertLastPurchase records the most recent purchase for fast reads
	UpsertLastPurchase(ctx context.Context, lp entity.LastPurchase) error
}

// MovementFilter narrows MovementHistory queries.
type MovementFilter struct {
	TransactionType *entity.TransactionType
	FromDate        *time.Time
	ToDate          *time.Time
	Limit           int
	Offset          int
}
