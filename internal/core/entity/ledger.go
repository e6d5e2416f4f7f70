package entity

import (
	"context"
	"time"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/id"
	"rxledger/internal/core/types"
)

// TransactionType classifies a ledger entry. The set is closed: consumption
// sites (allocator, snapshot updater, reporting) switch over it exhaustively
// instead of comparing strings.
type TransactionType string

const (
	TxTypePurchase       TransactionType = "purchase"
	TxTypeSale           TransactionType = "sale"
	TxTypeAdjustment     TransactionType = "adjustment"
	TxTypeTransfer       TransactionType = "transfer"
	TxTypeOpeningBalance TransactionType = "opening_balance"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TxTypePurchase, TxTypeSale, TxTypeAdjustment, TxTypeTransfer, TxTypeOpeningBalance:
		return true
	}
	return false
}

// ReferenceType identifies the kind of document that produced an entry.
type ReferenceType string

const (
	RefSupplierInvoice ReferenceType = "supplier_invoice"
	RefSalesInvoice    ReferenceType = "sales_invoice"
	RefBranchTransfer  ReferenceType = "branch_transfer"
	RefTransferReceipt ReferenceType = "transfer_receipt"
	RefCorrection      ReferenceType = "correction"
	RefOpeningBalance  ReferenceType = "opening_balance"
)

// LedgerEntry is an immutable stock movement fact. Entries are only ever
// appended; corrections are separate forward events, never edits.
// Current stock for (item, branch) is the signed sum of quantity_delta over
// all entries for that pair - the ledger is the ground truth, the balance
// snapshot is a cache of it.
type LedgerEntry struct {
	ID id.ID `db:"id" json:"id"`

	// Dimensions
	CompanyID id.ID `db:"company_id" json:"companyId"`
	BranchID  id.ID `db:"branch_id" json:"branchId"`
	ItemID    id.ID `db:"item_id" json:"itemId"`

	// Batch identity; empty/nil for untracked stock
	BatchNumber string     `db:"batch_number" json:"batchNumber,omitempty"`
	ExpiryDate  *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`

	// Classification
	TransactionType TransactionType `db:"transaction_type" json:"transactionType"`
	ReferenceType   ReferenceType   `db:"reference_type" json:"referenceType"`
	ReferenceID     id.ID           `db:"reference_id" json:"referenceId"`

	// QuantityDelta is signed and non-zero, in base (wholesale) units
	QuantityDelta types.Quantity `db:"quantity_delta" json:"quantityDelta"`

	// Cost per base unit and extended cost for this entry
	UnitCost  types.Money `db:"unit_cost" json:"unitCost"`
	TotalCost types.Money `db:"total_cost" json:"totalCost"`

	Notes     string    `db:"notes" json:"notes,omitempty"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewLedgerEntry builds an entry with generated ID and timestamp.
// TotalCost is derived from the delta magnitude and unit cost.
func NewLedgerEntry(
	companyID, branchID, itemID id.ID,
	txType TransactionType,
	refType ReferenceType,
	refID id.ID,
	delta types.Quantity,
	unitCost types.Money,
	createdBy string,
) LedgerEntry {
	return LedgerEntry{
		ID:              id.New(),
		CompanyID:       companyID,
		BranchID:        branchID,
		ItemID:          itemID,
		TransactionType: txType,
		ReferenceType:   refType,
		ReferenceID:     refID,
		QuantityDelta:   delta,
		UnitCost:        unitCost,
		TotalCost:       delta.Abs().Mul(unitCost),
		CreatedBy:       createdBy,
		CreatedAt:       time.Now().UTC(),
	}
}

// WithBatch attaches batch identity to the entry.
func (e LedgerEntry) WithBatch(batchNumber string, expiryDate *time.Time) LedgerEntry {
	e.BatchNumber = batchNumber
	e.ExpiryDate = expiryDate
	return e
}

// IsOutbound reports whether the entry removes stock.
func (e *LedgerEntry) IsOutbound() bool {
	return e.QuantityDelta.IsNegative()
}

// Validate implements Validatable. quantity_delta must be non-zero; a zero
// delta would be a no-op fact and breaks batch depletion accounting.
func (e *LedgerEntry) Validate(ctx context.Context) error {
	if id.IsNil(e.CompanyID) || id.IsNil(e.BranchID) || id.IsNil(e.ItemID) {
		return apperror.NewValidation("company, branch and item are required").
			WithDetail("entry_id", e.ID.String())
	}

	if e.QuantityDelta.IsZero() {
		return apperror.NewValidation("quantity_delta must be non-zero").
			WithDetail("entry_id", e.ID.String())
	}

	if !e.TransactionType.Valid() {
		return apperror.NewValidation("unknown transaction type").
			WithDetail("transaction_type", string(e.TransactionType))
	}

	if id.IsNil(e.ReferenceID) {
		return apperror.NewValidation("reference document is required").
			WithDetail("entry_id", e.ID.String())
	}

	return nil
}

// StockBalance is the materialized current-stock row for one
// (company, branch, item) key. Created lazily, updated in the same
// transaction as the ledger append it mirrors. At any durable point
// current_stock equals the ledger sum for the key; a mismatch means the
// snapshot must be re-derived from the ledger.
type StockBalance struct {
	CompanyID id.ID `db:"company_id" json:"companyId"`
	BranchID  id.ID `db:"branch_id" json:"branchId"`
	ItemID    id.ID `db:"item_id" json:"itemId"`

	CurrentStock types.Quantity `db:"current_stock" json:"currentStock"`

	LastMovementAt time.Time `db:"last_movement_at" json:"lastMovementAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// BatchStock is the derived view of one physical batch: the group of ledger
// entries sharing (item, branch, batch_number, expiry_date). Remaining is the
// signed sum of those entries' deltas; a batch with remaining <= 0 is depleted
// and must not be allocated from or cost-adjusted.
type BatchStock struct {
	BatchNumber string         `db:"batch_number" json:"batchNumber"`
	ExpiryDate  *time.Time     `db:"expiry_date" json:"expiryDate,omitempty"`
	Remaining   types.Quantity `db:"remaining" json:"remaining"`
	UnitCost    types.Money    `db:"unit_cost" json:"unitCost"`
}

// IsDepleted reports whether the batch has no remaining stock.
func (b *BatchStock) IsDepleted() bool {
	return !b.Remaining.IsPositive()
}

// IsExpiredAt reports whether the batch expiry is strictly before the given day.
// Batches without an expiry date never expire.
func (b *BatchStock) IsExpiredAt(day time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(day)
}

// LastPurchase is the auxiliary read-optimization snapshot recording the most
// recent purchase of an item at a branch. It exists for fast list/report
// reads; stock correctness never depends on it.
type LastPurchase struct {
	CompanyID id.ID `db:"company_id" json:"companyId"`
	BranchID  id.ID `db:"branch_id" json:"branchId"`
	ItemID    id.ID `db:"item_id" json:"itemId"`

	UnitCost    types.Money `db:"unit_cost" json:"unitCost"`
	BatchNumber string      `db:"batch_number" json:"batchNumber,omitempty"`
	ExpiryDate  *time.Time  `db:"expiry_date" json:"expiryDate,omitempty"`
	PurchasedAt time.Time   `db:"purchased_at" json:"purchasedAt"`
}
