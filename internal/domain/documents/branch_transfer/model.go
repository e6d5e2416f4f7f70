package branch_transfer

import (
	"context"
	"fmt"
	"time"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
	"rxledger/internal/core/types"
)

const (
	OrderDocType    = "BranchOrder"
	TransferDocType = "BranchTransfer"
	ReceiptDocType  = "TransferReceipt"
)

// BranchOrder is the requesting branch's intent: "send us this much".
// BranchID on the embedded document is the ordering branch.
type BranchOrder struct {
	entity.Document

	SupplyingBranchID id.ID `db:"supplying_branch_id" json:"supplying_branch_id"`

	Lines []OrderLine `db:"-" json:"lines,omitempty"`
}

// OrderLine carries the requested quantity in any of the item's units
// plus its base-unit equivalent. FulfilledQtyBase accumulates across
// transfers and never exceeds QuantityBase.
type OrderLine struct {
	LineID           id.ID          `db:"line_id" json:"line_id"`
	LineNo           int            `db:"line_no" json:"line_no"`
	ItemID           id.ID          `db:"item_id" json:"item_id"`
	Quantity         types.Quantity `db:"quantity" json:"quantity"`
	UnitName         string         `db:"unit_name" json:"unit_name"`
	QuantityBase     types.Quantity `db:"quantity_base" json:"quantity_base"`
	FulfilledQtyBase types.Quantity `db:"fulfilled_qty_base" json:"fulfilled_qty_base"`
}

// RemainingBase is the unfulfilled part of the line in base units.
func (l OrderLine) RemainingBase() types.Quantity {
	return l.QuantityBase.Sub(l.FulfilledQtyBase)
}

// NewBranchOrder creates a new draft order at the given ordering branch.
func NewBranchOrder(companyID, orderingBranchID, supplyingBranchID id.ID) *BranchOrder {
	return &BranchOrder{
		Document:          entity.NewDocument(companyID, orderingBranchID),
		SupplyingBranchID: supplyingBranchID,
	}
}

// Validate checks the order before persistence.
func (d *BranchOrder) Validate(ctx context.Context) error {
	if err := d.Document.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(d.SupplyingBranchID) {
		return apperror.NewValidation("supplying branch is required")
	}
	if d.SupplyingBranchID == d.BranchID {
		return apperror.NewValidation("supplying branch must differ from ordering branch")
	}
	if len(d.Lines) == 0 {
		return apperror.NewValidation("branch order must have at least one line")
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
	}
	return nil
}

// BranchTransfer moves stock out of the supplying branch. BranchID on
// the embedded document is the supplying branch. Until completion the
// lines hold the requested quantities; completion replaces them with
// the FEFO-resolved batch allocation.
type BranchTransfer struct {
	entity.Document

	ReceivingBranchID id.ID  `db:"receiving_branch_id" json:"receiving_branch_id"`
	OrderID           *id.ID `db:"order_id" json:"order_id,omitempty"`

	Lines []TransferLine `db:"-" json:"lines,omitempty"`
}

// TransferLine is either a requested line (unit quantity, no batch) or,
// after completion, one allocated batch slice in base units.
type TransferLine struct {
	LineID       id.ID          `db:"line_id" json:"line_id"`
	LineNo       int            `db:"line_no" json:"line_no"`
	ItemID       id.ID          `db:"item_id" json:"item_id"`
	Quantity     types.Quantity `db:"quantity" json:"quantity"`
	UnitName     string         `db:"unit_name" json:"unit_name"`
	QuantityBase types.Quantity `db:"quantity_base" json:"quantity_base"`
	BatchNumber  string         `db:"batch_number" json:"batch_number,omitempty"`
	ExpiryDate   *time.Time     `db:"expiry_date" json:"expiry_date,omitempty"`
	UnitCost     types.Money    `db:"unit_cost" json:"unit_cost"`
}

// NewBranchTransfer creates a new draft transfer out of the supplying branch.
func NewBranchTransfer(companyID, supplyingBranchID, receivingBranchID id.ID) *BranchTransfer {
	return &BranchTransfer{
		Document:          entity.NewDocument(companyID, supplyingBranchID),
		ReceivingBranchID: receivingBranchID,
	}
}

// Validate checks the transfer before persistence.
func (d *BranchTransfer) Validate(ctx context.Context) error {
	if err := d.Document.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(d.ReceivingBranchID) {
		return apperror.NewValidation("receiving branch is required")
	}
	if d.ReceivingBranchID == d.BranchID {
		return apperror.NewValidation("receiving branch must differ from supplying branch")
	}
	if len(d.Lines) == 0 {
		return apperror.NewValidation("branch transfer must have at least one line")
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
	}
	return nil
}

// TransferReceipt adds the transferred stock at the receiving branch.
// BranchID on the embedded document is the receiving branch. Exactly
// one receipt exists per completed transfer.
type TransferReceipt struct {
	entity.Document

	TransferID        id.ID `db:"transfer_id" json:"transfer_id"`
	SupplyingBranchID id.ID `db:"supplying_branch_id" json:"supplying_branch_id"`

	Lines []ReceiptLine `db:"-" json:"lines,omitempty"`
}

// ReceiptLine mirrors one allocated batch slice from the transfer.
type ReceiptLine struct {
	LineID       id.ID          `db:"line_id" json:"line_id"`
	LineNo       int            `db:"line_no" json:"line_no"`
	ItemID       id.ID          `db:"item_id" json:"item_id"`
	QuantityBase types.Quantity `db:"quantity_base" json:"quantity_base"`
	BatchNumber  string         `db:"batch_number" json:"batch_number"`
	ExpiryDate   *time.Time     `db:"expiry_date" json:"expiry_date,omitempty"`
	UnitCost     types.Money    `db:"unit_cost" json:"unit_cost"`
}
