package sales_invoice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
	"rxledger/internal/core/types"
)

const DocType = "SalesInvoice"

// SalesInvoice records a dispensing or over-the-counter sale at a branch.
// Batching allocates stock FEFO, so lines name only item, quantity and unit.
type SalesInvoice struct {
	entity.Document

	CustomerID  *id.ID      `db:"customer_id" json:"customer_id,omitempty"`
	ContentHash string      `db:"content_hash" json:"-"`
	TotalAmount types.Money `db:"total_amount" json:"total_amount"`

	Lines []Line `db:"-" json:"lines,omitempty"`
}

// Line is one sold position, quantity expressed in any of the item's units.
type Line struct {
	LineID    id.ID          `db:"line_id" json:"line_id"`
	LineNo    int            `db:"line_no" json:"line_no"`
	ItemID    id.ID          `db:"item_id" json:"item_id"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	UnitName  string         `db:"unit_name" json:"unit_name"`
	UnitPrice types.Money    `db:"unit_price" json:"unit_price"`
	LineTotal types.Money    `db:"line_total" json:"line_total"`
}

// NewSalesInvoice creates a new draft sales invoice.
func NewSalesInvoice(companyID, branchID id.ID) *SalesInvoice {
	return &SalesInvoice{
		Document: entity.NewDocument(companyID, branchID),
	}
}

// AddLine appends a line and recalculates totals.
func (d *SalesInvoice) AddLine(line Line) {
	if id.IsNil(line.LineID) {
		line.LineID = id.New()
	}
	line.LineNo = len(d.Lines) + 1
	line.LineTotal = line.Quantity.Mul(line.UnitPrice)
	d.Lines = append(d.Lines, line)
	d.recalculateTotals()
}

func (d *SalesInvoice) recalculateTotals() {
	total := types.ZeroMoney()
	for _, line := range d.Lines {
		total = total.Add(line.LineTotal)
	}
	d.TotalAmount = total
}

// Fingerprint returns a stable hash of the document content used to
// detect duplicate submissions.
func (d *SalesInvoice) Fingerprint() string {
	parts := make([]string, 0, len(d.Lines)+1)
	customer := ""
	if d.CustomerID != nil {
		customer = d.CustomerID.String()
	}
	parts = append(parts, fmt.Sprintf("%s|%s|%s", DocType, d.BranchID, customer))
	for _, line := range d.Lines {
		parts = append(parts, fmt.Sprintf("%s|%s|%s|%s",
			line.ItemID, line.Quantity.String(), strings.ToLower(line.UnitName), line.UnitPrice.String()))
	}
	sort.Strings(parts[1:])
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}

// Validate checks the invoice before persistence.
func (d *SalesInvoice) Validate(ctx context.Context) error {
	if err := d.Document.Validate(ctx); err != nil {
		return err
	}
	if len(d.Lines) == 0 {
		return apperror.NewValidation("sales invoice must have at least one line")
	}
	for i, line := range d.Lines {
		if id.IsNil(line.ItemID) {
			return apperror.NewValidation(fmt.Sprintf("line %d: item is required", i+1))
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("line %d: quantity must be positive", i+1))
		}
		if line.UnitName == "" {
			return apperror.NewValidation(fmt.Sprintf("line %d: unit name is required", i+1))
		}
		if line.UnitPrice.IsNegative() {
			return apperror.NewValidation(fmt.Sprintf("line %d: unit price cannot be negative", i+1))
		}
	}
	return nil
}
