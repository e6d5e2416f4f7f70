// Package units converts quantities between an item's three-tier unit
// hierarchy (supplier unit -> wholesale/base unit -> retail unit).
//
// Every conversion pivots through the wholesale unit: it is the base unit all
// ledger quantities are stored in, with multiplier 1.
package units

import (
	"strings"

	"github.com/shopspring/decimal"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/types"
	"rxledger/internal/domain/catalogs/item"
)

// Resolver converts quantities between an item's configured units.
// It is stateless; all configuration lives on the item.
type Resolver struct{}

// NewResolver creates a unit conversion resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// multiplier resolves the base-unit multiplier for a unit name.
// Matching is case-insensitive and ignores surrounding whitespace.
// Resolution order: wholesale (x1), retail (1/pack_size),
// supplier (x wholesale_units_per_supplier).
func (r *Resolver) multiplier(it *item.Item, unitName string) (decimal.Decimal, error) {
	name := strings.ToLower(strings.TrimSpace(unitName))

	switch name {
	case strings.ToLower(strings.TrimSpace(it.WholesaleUnit)):
		return decimal.NewFromInt(1), nil
	case strings.ToLower(strings.TrimSpace(it.RetailUnit)):
		return decimal.NewFromInt(1).Div(it.PackSize), nil
	case strings.ToLower(strings.TrimSpace(it.SupplierUnit)):
		return it.WholesaleUnitsPerSupplier, nil
	}

	return decimal.Zero, apperror.NewUnitNotFound(it.ID.String(), unitName)
}

// ToBaseUnits converts a quantity expressed in unitName into base
// (wholesale) units. Fractional results are legal: 3 retail pieces of a
// 10-piece pack is 0.3 base units.
func (r *Resolver) ToBaseUnits(it *item.Item, quantity types.Quantity, unitName string) (types.Quantity, error) {
	m, err := r.multiplier(it, unitName)
	if err != nil {
		return decimal.Zero, err
	}
	return quantity.Mul(m), nil
}

// FromBaseUnits converts a base-unit quantity into unitName.
func (r *Resolver) FromBaseUnits(it *item.Item, quantityBase types.Quantity, unitName string) (types.Quantity, error) {
	m, err := r.multiplier(it, unitName)
	if err != nil {
		return decimal.Zero, err
	}
	return quantityBase.Div(m), nil
}
