package entity

import (
	"context"
	"time"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/id"
)

// DocStatus is the lifecycle state of a stock document.
// Transitions only move forward; no document regresses to an earlier state.
type DocStatus string

const (
	// StatusDraft - document is editable, no stock has moved
	StatusDraft DocStatus = "draft"
	// StatusBatched - ledger entries written, document locked (invoices, orders)
	StatusBatched DocStatus = "batched"
	// StatusCompleted - stock deducted at the supplying branch (transfers)
	StatusCompleted DocStatus = "completed"
	// StatusPending - receipt awaiting confirmation at the receiving branch
	StatusPending DocStatus = "pending"
	// StatusReceived - receipt confirmed, stock added
	StatusReceived DocStatus = "received"
)

// Document is the base type for stock documents: supplier invoices,
// sales invoices, branch orders, transfers and receipts.
type Document struct {
	BaseDocument

	// Number is the document number (auto-generated, unique within type+period)
	Number string `db:"number" json:"number"`

	// Date is the business date of the document
	Date time.Time `db:"date" json:"date"`

	// Status is the lifecycle state
	Status DocStatus `db:"status" json:"status"`

	// CompanyID is the owning company (tenant scoping happens outside the core)
	CompanyID id.ID `db:"company_id" json:"companyId"`

	// BranchID is the branch this document operates on
	BranchID id.ID `db:"branch_id" json:"branchId"`

	// Comment is an optional user comment
	Comment string `db:"comment" json:"comment,omitempty"`
}

// NewDocument creates a new draft Document with generated ID.
func NewDocument(companyID, branchID id.ID) Document {
	return Document{
		BaseDocument: NewBaseDocument(),
		Date:         time.Now().UTC(),
		Status:       StatusDraft,
		CompanyID:    companyID,
		BranchID:     branchID,
	}
}

// Validate implements Validatable interface.
func (d *Document) Validate(ctx context.Context) error {
	if id.IsNil(d.CompanyID) {
		return apperror.NewValidation("company is required").
			WithDetail("field", "companyId")
	}

	if id.IsNil(d.BranchID) {
		return apperror.NewValidation("branch is required").
			WithDetail("field", "branchId")
	}

	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}

	return nil
}

// IsDraft reports whether the document is still editable.
func (d *Document) IsDraft() bool {
	return d.Status == StatusDraft
}

// CanModify checks if document can be modified or deleted.
// Only draft documents may change; anything later has moved stock.
func (d *Document) CanModify(docType string) error {
	if d.Status != StatusDraft {
		return apperror.NewInvalidTransition(docType, string(d.Status), string(StatusDraft))
	}
	return nil
}

// RequireStatus returns InvalidTransition unless the document is in want.
// Callers re-check this under the row lock before transitioning.
func (d *Document) RequireStatus(docType string, want DocStatus) error {
	if d.Status != want {
		return apperror.NewInvalidTransition(docType, string(d.Status), string(want))
	}
	return nil
}

// TransitionTo moves the document into the target state and bumps version.
func (d *Document) TransitionTo(status DocStatus) {
	d.Status = status
	d.Touch()
}
