// Package supplier_invoice provides the SupplierInvoice document: a purchase
// receipt that adds batch-tracked stock to a branch when batched.
package supplier_invoice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
	"rxledger/internal/core/types"
)

// DocType is the document type name used in errors and ledger references.
const DocType = "SupplierInvoice"

// SupplierInvoice records incoming goods from a supplier into a branch.
// Inbound stock carries explicit batch metadata; no allocation is involved.
type SupplierInvoice struct {
	entity.Document

	// Supplier reference
	SupplierID id.ID `db:"supplier_id" json:"supplierId"`

	// Supplier's own document reference
	SupplierDocNumber string     `db:"supplier_doc_number" json:"supplierDocNumber,omitempty"`
	SupplierDocDate   *time.Time `db:"supplier_doc_date" json:"supplierDocDate,omitempty"`

	// ContentHash fingerprints the payload for the duplicate-submission guard
	ContentHash string `db:"content_hash" json:"-"`

	// TotalCost is the document total (sum of line totals)
	TotalCost types.Money `db:"total_cost" json:"totalCost"`

	// Table part: received goods
	Lines []Line `db:"-" json:"lines"`
}

// Line is one received batch of one item.
type Line struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	ItemID id.ID `db:"item_id" json:"itemId"`

	// Quantity in UnitName (converted to base units at batching)
	Quantity types.Quantity `db:"quantity" json:"quantity"`
	UnitName string         `db:"unit_name" json:"unitName"`

	// Batch identity as printed on the physical stock
	BatchNumber string     `db:"batch_number" json:"batchNumber"`
	ExpiryDate  *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`

	// UnitCost per purchased unit (in UnitName); the per-base-unit cost is
	// derived at batching
	UnitCost types.Money `db:"unit_cost" json:"unitCost"`

	// LineTotal = Quantity * UnitCost
	LineTotal types.Money `db:"line_total" json:"lineTotal"`
}

// NewSupplierInvoice creates a new draft supplier invoice.
func NewSupplierInvoice(companyID, branchID, supplierID id.ID) *SupplierInvoice {
	return &SupplierInvoice{
		Document:   entity.NewDocument(companyID, branchID),
		SupplierID: supplierID,
		TotalCost:  types.ZeroMoney(),
		Lines:      make([]Line, 0),
	}
}

// AddLine appends a received batch and recalculates totals.
func (d *SupplierInvoice) AddLine(itemID id.ID, quantity types.Quantity, unitName, batchNumber string, expiryDate *time.Time, unitCost types.Money) {
	line := Line{
		LineID:      id.New(),
		LineNo:      len(d.Lines) + 1,
		ItemID:      itemID,
		Quantity:    quantity,
		UnitName:    unitName,
		BatchNumber: batchNumber,
		ExpiryDate:  expiryDate,
		UnitCost:    unitCost,
		LineTotal:   quantity.Mul(unitCost),
	}

	d.Lines = append(d.Lines, line)
	d.recalculateTotals()
}

func (d *SupplierInvoice) recalculateTotals() {
	d.TotalCost = types.ZeroMoney()
	for _, line := range d.Lines {
		d.TotalCost = d.TotalCost.Add(line.LineTotal)
	}
}

// Fingerprint computes the content hash used by the duplicate-submission
// guard: same actor, same supplier, same line content within the dedup
// window means a double-click, not a new delivery.
func (d *SupplierInvoice) Fingerprint() string {
	parts := make([]string, 0, len(d.Lines)+2)
	parts = append(parts, d.SupplierID.String(), d.BranchID.String())
	for _, line := range d.Lines {
		expiry := ""
		if line.ExpiryDate != nil {
			expiry = line.ExpiryDate.Format("2006-01-02")
		}
		parts = append(parts, fmt.Sprintf("%s|%s|%s|%s|%s|%s",
			line.ItemID, line.Quantity, line.UnitName, line.BatchNumber, expiry, line.UnitCost))
	}
	sort.Strings(parts[2:])

	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}

// Validate implements entity.Validatable.
func (d *SupplierInvoice) Validate(ctx context.Context) error {
	if err := d.Document.Validate(ctx); err != nil {
		return err
	}

	if id.IsNil(d.SupplierID) {
		return apperror.NewValidation("supplier is required").
			WithDetail("field", "supplierId")
	}

	if len(d.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}

	for i, line := range d.Lines {
		if id.IsNil(line.ItemID) {
			return apperror.NewValidation("item is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if strings.TrimSpace(line.BatchNumber) == "" {
			return apperror.NewValidation("batch number is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.UnitCost.IsNegative() {
			return apperror.NewValidation("unit cost must not be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}

	return nil
}
