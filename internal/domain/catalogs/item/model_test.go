package item

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxledger/internal/core/apperror"
)

func TestValidate_Defaults(t *testing.T) {
	it := NewItem("PARA-500", "Paracetamol 500mg")
	require.NoError(t, it.Validate(context.Background()))
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Item)
		field  string
	}{
		{"missing code", func(i *Item) { i.Code = "  " }, "code"},
		{"missing name", func(i *Item) { i.Name = "" }, "name"},
		{"missing base unit", func(i *Item) { i.WholesaleUnit = "" }, "wholesaleUnit"},
		{"zero pack size", func(i *Item) { i.PackSize = decimal.Zero }, "packSize"},
		{"negative supplier multiplier", func(i *Item) {
			i.WholesaleUnitsPerSupplier = decimal.NewFromInt(-2)
		}, "wholesaleUnitsPerSupplier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := NewItem("PARA-500", "Paracetamol 500mg")
			tt.mutate(it)

			err := it.Validate(context.Background())
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, appErr.Details["field"])
		})
	}
}

func TestValidate_BreakBulkNeedsSplittablePack(t *testing.T) {
	it := NewItem("INSULIN", "Insulin Pen")
	it.CanBreakBulk = true // pack size defaults to 1

	err := it.Validate(context.Background())
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	it.PackSize = decimal.NewFromInt(5)
	require.NoError(t, it.Validate(context.Background()))
}
