// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Quantity represents a stock quantity in base (wholesale) units with full
// decimal precision. Fractional values are legal: breaking bulk produces
// retail fractions of a base unit (e.g. 3 tablets out of a pack of 10).
//
// Maps to Postgres NUMERIC; pgx scanning is wired through
// pgx-shopspring-decimal (see storage/postgres.NewPool).
type Quantity = decimal.Decimal

// Money represents a monetary value (unit cost, line total) with full
// precision. Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewQuantity creates a Quantity from a float.
// WARNING: Use NewQuantityFromString for precise values.
func NewQuantity(f float64) Quantity {
	return decimal.NewFromFloat(f)
}

// NewQuantityFromInt creates a whole-unit Quantity.
func NewQuantityFromInt(n int64) Quantity {
	return decimal.NewFromInt(n)
}

// NewQuantityFromString creates a Quantity from a decimal string.
// This is the preferred constructor for exact values.
func NewQuantityFromString(s string) (Quantity, error) {
	return decimal.NewFromString(s)
}

// MustQuantity creates a Quantity from a string, panics on error.
// Use only for constants and tests.
func MustQuantity(s string) Quantity {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ZeroQuantity returns the zero Quantity.
func ZeroQuantity() Quantity {
	return decimal.Zero
}

// NewMoneyFromString creates a Money value from a string.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ZeroMoney returns the zero Money value.
func ZeroMoney() Money {
	return decimal.Zero
}
