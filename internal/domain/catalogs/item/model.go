// Package item provides the pharmacy item catalog with the three-tier unit
// configuration every stock quantity pivots through.
package item

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/entity"
)

// Item represents a stocked pharmacy product.
//
// Unit hierarchy: 1 supplier unit = WholesaleUnitsPerSupplier wholesale units;
// 1 wholesale unit (the base unit, multiplier 1) = PackSize retail units.
// All ledger quantities are stored in wholesale units.
type Item struct {
	entity.BaseCatalog

	// Code is the internal item code (unique per company)
	Code string `db:"code" json:"code"`

	// Name is the display name
	Name string `db:"name" json:"name"`

	// Barcode is the retail barcode (EAN-13, etc.)
	Barcode *string `db:"barcode" json:"barcode,omitempty"`

	// GenericName is the active-ingredient name for substitution search
	GenericName *string `db:"generic_name" json:"genericName,omitempty"`

	// Unit configuration
	SupplierUnit  string `db:"supplier_unit" json:"supplierUnit"`
	WholesaleUnit string `db:"wholesale_unit" json:"wholesaleUnit"`
	RetailUnit    string `db:"retail_unit" json:"retailUnit"`

	// PackSize: 1 wholesale unit = PackSize retail units
	PackSize decimal.Decimal `db:"pack_size" json:"packSize"`

	// WholesaleUnitsPerSupplier: 1 supplier unit = N wholesale units
	WholesaleUnitsPerSupplier decimal.Decimal `db:"wholesale_units_per_supplier" json:"wholesaleUnitsPerSupplier"`

	// CanBreakBulk allows selling retail fractions of a wholesale unit
	CanBreakBulk bool `db:"can_break_bulk" json:"canBreakBulk"`

	// RequiresPrescription flags controlled items
	RequiresPrescription bool `db:"requires_prescription" json:"requiresPrescription"`
}

// NewItem creates a new Item with required fields and sane unit defaults.
func NewItem(code, name string) *Item {
	return &Item{
		BaseCatalog:               entity.NewBaseCatalog(),
		Code:                      code,
		Name:                      name,
		SupplierUnit:              "carton",
		WholesaleUnit:             "pack",
		RetailUnit:                "piece",
		PackSize:                  decimal.NewFromInt(1),
		WholesaleUnitsPerSupplier: decimal.NewFromInt(1),
	}
}

// Validate implements entity.Validatable.
func (i *Item) Validate(ctx context.Context) error {
	if strings.TrimSpace(i.Code) == "" {
		return apperror.NewValidation("code is required").
			WithDetail("field", "code")
	}

	if strings.TrimSpace(i.Name) == "" {
		return apperror.NewValidation("name is required").
			WithDetail("field", "name")
	}

	if strings.TrimSpace(i.WholesaleUnit) == "" {
		return apperror.NewValidation("wholesale (base) unit is required").
			WithDetail("field", "wholesaleUnit")
	}

	if !i.PackSize.IsPositive() {
		return apperror.NewValidation("pack size must be positive").
			WithDetail("field", "packSize")
	}

	if !i.WholesaleUnitsPerSupplier.IsPositive() {
		return apperror.NewValidation("wholesale units per supplier unit must be positive").
			WithDetail("field", "wholesaleUnitsPerSupplier")
	}

	// Breaking bulk only makes sense when a wholesale unit splits into
	// more than one retail unit.
	if i.CanBreakBulk && !i.PackSize.GreaterThan(decimal.NewFromInt(1)) {
		return apperror.NewValidation("can_break_bulk requires pack size greater than 1").
			WithDetail("field", "canBreakBulk")
	}

	return nil
}
