package allocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/entity"
	"rxledger/internal/core/types"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func batch(number string, expiry *time.Time, remaining string) entity.BatchStock {
	return entity.BatchStock{
		BatchNumber: number,
		ExpiryDate:  expiry,
		Remaining:   types.MustQuantity(remaining),
		UnitCost:    types.MustMoney("10"),
	}
}

func TestPlan_FEFOOrder(t *testing.T) {
	// B1 expires before B2 and must be drained first; the remainder
	// comes from B2.
	batches := []entity.BatchStock{
		batch("B2", date(2027, 6, 1), "10"),
		batch("B1", date(2026, 12, 1), "5"),
	}

	plan, err := Plan(batches, types.MustQuantity("7"), Options{})
	require.NoError(t, err)
	require.Len(t, plan, 2)

	assert.Equal(t, "B1", plan[0].BatchNumber)
	assert.True(t, plan[0].Quantity.Equal(types.MustQuantity("5")))
	assert.Equal(t, "B2", plan[1].BatchNumber)
	assert.True(t, plan[1].Quantity.Equal(types.MustQuantity("2")))
}

func TestPlan_InsufficientStock(t *testing.T) {
	batches := []entity.BatchStock{
		batch("B1", date(2026, 12, 1), "5"),
		batch("B2", date(2027, 6, 1), "10"),
	}

	plan, err := Plan(batches, types.MustQuantity("20"), Options{})
	require.Error(t, err)
	assert.Nil(t, plan, "no partial plan on shortfall")
	assert.True(t, apperror.IsInsufficientStock(err))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "20", appErr.Details["needed"])
	assert.Equal(t, "15", appErr.Details["available"])
}

func TestPlan_SkipsDepletedBatches(t *testing.T) {
	batches := []entity.BatchStock{
		batch("B0", date(2026, 1, 1), "0"),
		batch("B1", date(2026, 2, 1), "-3"),
		batch("B2", date(2026, 3, 1), "8"),
	}

	plan, err := Plan(batches, types.MustQuantity("4"), Options{})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "B2", plan[0].BatchNumber)
}

func TestPlan_ExcludeExpired(t *testing.T) {
	today := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	batches := []entity.BatchStock{
		batch("OLD", date(2026, 1, 1), "100"),
		batch("NEW", date(2027, 1, 1), "5"),
	}

	// Without the flag the expired batch is eligible (FEFO picks it first).
	plan, err := Plan(batches, types.MustQuantity("5"), Options{Today: today})
	require.NoError(t, err)
	assert.Equal(t, "OLD", plan[0].BatchNumber)

	// With the flag it is skipped entirely, even though ordering prefers it.
	plan, err = Plan(batches, types.MustQuantity("5"), Options{ExcludeExpired: true, Today: today})
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "NEW", plan[0].BatchNumber)

	// Availability shrinks accordingly.
	_, err = Plan(batches, types.MustQuantity("6"), Options{ExcludeExpired: true, Today: today})
	assert.True(t, apperror.IsInsufficientStock(err))
}

func TestPlan_ExpiryBoundary(t *testing.T) {
	// A batch expiring today is not yet expired (strictly-before rule).
	today := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	batches := []entity.BatchStock{
		batch("TODAY", date(2026, 8, 28), "5"),
	}

	plan, err := Plan(batches, types.MustQuantity("5"), Options{ExcludeExpired: true, Today: today})
	require.NoError(t, err)
	assert.Equal(t, "TODAY", plan[0].BatchNumber)
}

func TestPlan_NullExpiryLast(t *testing.T) {
	batches := []entity.BatchStock{
		batch("NOEXP", nil, "10"),
		batch("DATED", date(2027, 1, 1), "10"),
	}

	plan, err := Plan(batches, types.MustQuantity("15"), Options{})
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "DATED", plan[0].BatchNumber)
	assert.Equal(t, "NOEXP", plan[1].BatchNumber)
}

func TestPlan_TieBreakByBatchNumber(t *testing.T) {
	sameDay := date(2027, 1, 1)
	batches := []entity.BatchStock{
		batch("B", sameDay, "5"),
		batch("A", sameDay, "5"),
		batch("D", nil, "5"),
		batch("C", nil, "5"),
	}

	plan, err := Plan(batches, types.MustQuantity("20"), Options{})
	require.NoError(t, err)
	require.Len(t, plan, 4)
	assert.Equal(t, "A", plan[0].BatchNumber)
	assert.Equal(t, "B", plan[1].BatchNumber)
	assert.Equal(t, "C", plan[2].BatchNumber)
	assert.Equal(t, "D", plan[3].BatchNumber)
}

func TestPlan_Deterministic(t *testing.T) {
	batches := []entity.BatchStock{
		batch("B3", date(2027, 3, 1), "4"),
		batch("B1", date(2027, 1, 1), "4"),
		batch("B2", date(2027, 2, 1), "4"),
		batch("B4", nil, "4"),
	}

	first, err := Plan(batches, types.MustQuantity("10"), Options{})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Plan(batches, types.MustQuantity("10"), Options{})
		require.NoError(t, err)
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].BatchNumber, again[j].BatchNumber)
			assert.True(t, first[j].Quantity.Equal(again[j].Quantity))
		}
	}
}

func TestPlan_RejectsNonPositiveDemand(t *testing.T) {
	batches := []entity.BatchStock{batch("B1", nil, "5")}

	_, err := Plan(batches, types.ZeroQuantity(), Options{})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = Plan(batches, types.MustQuantity("-1"), Options{})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestPlan_FractionalQuantities(t *testing.T) {
	// Retail fractions of a base unit allocate exactly.
	batches := []entity.BatchStock{
		batch("B1", date(2027, 1, 1), "0.3"),
		batch("B2", date(2027, 2, 1), "1"),
	}

	plan, err := Plan(batches, types.MustQuantity("0.5"), Options{})
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.True(t, plan[0].Quantity.Equal(types.MustQuantity("0.3")))
	assert.True(t, plan[1].Quantity.Equal(types.MustQuantity("0.2")))
}
