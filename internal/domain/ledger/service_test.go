package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
	"rxledger/internal/core/types"
)

// memRepo is an in-memory Repository backed by appended entries, with
// snapshot balances folded the same way the SQL upsert does.
type memRepo struct {
	entries  []entity.LedgerEntry
	balances map[balanceKey]types.Quantity

	appendCalls  int
	upsertCalls  int
	balanceErr   error
	lastPurchase []entity.LastPurchase
}

func newMemRepo() *memRepo {
	return &memRepo{balances: make(map[balanceKey]types.Quantity)}
}

func (m *memRepo) AppendEntries(ctx context.Context, entries []entity.LedgerEntry) error {
	m.appendCalls++
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memRepo) SumDeltas(ctx context.Context, companyID, branchID, itemID id.ID) (types.Quantity, error) {
	sum := types.ZeroQuantity()
	for _, e := range m.entries {
		if e.CompanyID == companyID && e.BranchID == branchID && e.ItemID == itemID {
			sum = sum.Add(e.QuantityDelta)
		}
	}
	return sum, nil
}

func (m *memRepo) EntriesByReference(ctx context.Context, refType entity.ReferenceType, refID id.ID) ([]entity.LedgerEntry, error) {
	var out []entity.LedgerEntry
	for _, e := range m.entries {
		if e.ReferenceType == refType && e.ReferenceID == refID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRepo) MovementHistory(ctx context.Context, companyID, branchID, itemID id.ID, filter MovementFilter) ([]entity.LedgerEntry, error) {
	return nil, nil
}

func (m *memRepo) BatchesFor(ctx context.Context, companyID, branchID, itemID id.ID) ([]entity.BatchStock, error) {
	return nil, nil
}

func (m *memRepo) BatchRemaining(ctx context.Context, companyID, branchID, itemID id.ID, batchNumber string, expiryDate *time.Time) (entity.BatchStock, error) {
	return entity.BatchStock{}, apperror.NewNotFound("batch", batchNumber)
}

func (m *memRepo) GetBalance(ctx context.Context, companyID, branchID, itemID id.ID) (entity.StockBalance, error) {
	if m.balanceErr != nil {
		return entity.StockBalance{}, m.balanceErr
	}
	key := balanceKey{companyID, branchID, itemID}
	stock, ok := m.balances[key]
	if !ok {
		return entity.StockBalance{}, apperror.NewNotFound("stock balance", itemID.String())
	}
	return entity.StockBalance{
		CompanyID:    companyID,
		BranchID:     branchID,
		ItemID:       itemID,
		CurrentStock: stock,
	}, nil
}

func (m *memRepo) GetBalanceForUpdate(ctx context.Context, companyID, branchID, itemID id.ID) (entity.StockBalance, error) {
	return m.GetBalance(ctx, companyID, branchID, itemID)
}

func (m *memRepo) UpsertBalance(ctx context.Context, companyID, branchID, itemID id.ID, delta types.Quantity, movedAt time.Time) (types.Quantity, error) {
	m.upsertCalls++
	key := balanceKey{companyID, branchID, itemID}
	next := m.balances[key].Add(delta)
	m.balances[key] = next
	return next, nil
}

func (m *memRepo) RebuildBalances(ctx context.Context, companyID id.ID, branchID, itemID *id.ID) (int, error) {
	return 0, nil
}

func (m *memRepo) UpsertLastPurchase(ctx context.Context, lp entity.LastPurchase) error {
	m.lastPurchase = append(m.lastPurchase, lp)
	return nil
}

var _ Repository = (*memRepo)(nil)

func purchaseEntry(companyID, branchID, itemID id.ID, qty string) entity.LedgerEntry {
	return entity.NewLedgerEntry(
		companyID, branchID, itemID,
		entity.TxTypePurchase, entity.RefSupplierInvoice, id.New(),
		types.MustQuantity(qty), types.MustMoney("4.50"), "tester",
	).WithBatch("B-100", nil)
}

func saleEntry(companyID, branchID, itemID id.ID, qty string) entity.LedgerEntry {
	return entity.NewLedgerEntry(
		companyID, branchID, itemID,
		entity.TxTypeSale, entity.RefSalesInvoice, id.New(),
		types.MustQuantity(qty), types.MustMoney("4.50"), "tester",
	).WithBatch("B-100", nil)
}

func TestAppend_SnapshotMatchesLedgerSum(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo, nil)

	companyID, branchID, itemID := id.New(), id.New(), id.New()

	require.NoError(t, svc.Append(ctx, []entity.LedgerEntry{
		purchaseEntry(companyID, branchID, itemID, "100"),
		saleEntry(companyID, branchID, itemID, "-30"),
		saleEntry(companyID, branchID, itemID, "-20"),
	}))

	sum, err := repo.SumDeltas(ctx, companyID, branchID, itemID)
	require.NoError(t, err)

	balance, err := repo.GetBalance(ctx, companyID, branchID, itemID)
	require.NoError(t, err)

	assert.True(t, balance.CurrentStock.Equal(sum))
	assert.True(t, balance.CurrentStock.Equal(types.MustQuantity("50")))

	// The three entries for one key fold into a single snapshot upsert.
	assert.Equal(t, 1, repo.upsertCalls)
}

func TestAppend_SanityViolationOnNegativeBalance(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo, nil)

	companyID, branchID, itemID := id.New(), id.New(), id.New()

	require.NoError(t, svc.Append(ctx, []entity.LedgerEntry{
		purchaseEntry(companyID, branchID, itemID, "10"),
	}))

	err := svc.Append(ctx, []entity.LedgerEntry{
		saleEntry(companyID, branchID, itemID, "-15"),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsSanityViolation(err))
}

func TestAppend_FoldsPerItemKey(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo, nil)

	companyID, branchID := id.New(), id.New()
	itemA, itemB := id.New(), id.New()

	require.NoError(t, svc.Append(ctx, []entity.LedgerEntry{
		purchaseEntry(companyID, branchID, itemA, "10"),
		purchaseEntry(companyID, branchID, itemB, "5"),
		purchaseEntry(companyID, branchID, itemA, "7"),
	}))

	assert.Equal(t, 2, repo.upsertCalls, "one snapshot upsert per (branch, item) key")

	balanceA, err := repo.GetBalance(ctx, companyID, branchID, itemA)
	require.NoError(t, err)
	assert.True(t, balanceA.CurrentStock.Equal(types.MustQuantity("17")))
}

func TestAppend_RejectsZeroDelta(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo, nil)

	entry := purchaseEntry(id.New(), id.New(), id.New(), "10")
	entry.QuantityDelta = types.ZeroQuantity()

	err := svc.Append(ctx, []entity.LedgerEntry{entry})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	assert.Equal(t, 0, repo.appendCalls, "invalid batch must not reach storage")
}

func TestAppend_EmptyIsNoOp(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)

	require.NoError(t, svc.Append(context.Background(), nil))
	assert.Equal(t, 0, repo.appendCalls)
}

func TestAppend_RecordsLastPurchase(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo, nil)

	companyID, branchID, itemID := id.New(), id.New(), id.New()

	require.NoError(t, svc.Append(ctx, []entity.LedgerEntry{
		purchaseEntry(companyID, branchID, itemID, "40"),
	}))

	require.Len(t, repo.lastPurchase, 1)
	assert.Equal(t, itemID, repo.lastPurchase[0].ItemID)
	assert.Equal(t, "B-100", repo.lastPurchase[0].BatchNumber)
}

func TestCurrentStock_SnapshotHit(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo, nil)

	companyID, branchID, itemID := id.New(), id.New(), id.New()
	repo.balances[balanceKey{companyID, branchID, itemID}] = types.MustQuantity("42")

	got, err := svc.CurrentStock(ctx, companyID, branchID, itemID)
	require.NoError(t, err)
	assert.True(t, got.Equal(types.MustQuantity("42")))
}

func TestCurrentStock_FallsBackToLedgerSum(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo, nil)

	companyID, branchID, itemID := id.New(), id.New(), id.New()

	// Entries exist but no snapshot row was ever written.
	repo.entries = append(repo.entries,
		purchaseEntry(companyID, branchID, itemID, "25"),
		saleEntry(companyID, branchID, itemID, "-5"),
	)

	got, err := svc.CurrentStock(ctx, companyID, branchID, itemID)
	require.NoError(t, err)
	assert.True(t, got.Equal(types.MustQuantity("20")))
}
