package supplier_invoice

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
	"rxledger/internal/core/types"
	"rxledger/internal/domain"
	"rxledger/internal/domain/catalogs/item"
	"rxledger/internal/domain/units"
)

// fakeTxManager runs the function directly; transactional behavior is
// exercised against a real database elsewhere.
type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memRepo struct {
	docs      map[id.ID]*SupplierInvoice
	lines     map[id.ID][]Line
	recentDup bool
}

func newMemRepo() *memRepo {
	return &memRepo{docs: make(map[id.ID]*SupplierInvoice), lines: make(map[id.ID][]Line)}
}

func (m *memRepo) Create(ctx context.Context, doc *SupplierInvoice) error {
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, docID id.ID) (*SupplierInvoice, error) {
	doc, ok := m.docs[docID]
	if !ok {
		return nil, apperror.NewNotFound(DocType, docID)
	}
	cp := *doc
	return &cp, nil
}

func (m *memRepo) GetByIDForUpdate(ctx context.Context, docID id.ID) (*SupplierInvoice, error) {
	return m.GetByID(ctx, docID)
}

func (m *memRepo) Update(ctx context.Context, doc *SupplierInvoice) error {
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memRepo) Delete(ctx context.Context, docID id.ID) error {
	delete(m.docs, docID)
	return nil
}

func (m *memRepo) GetLines(ctx context.Context, docID id.ID) ([]Line, error) {
	return m.lines[docID], nil
}

func (m *memRepo) SaveLines(ctx context.Context, docID id.ID, lines []Line) error {
	m.lines[docID] = lines
	return nil
}

func (m *memRepo) ExistsRecentWithHash(ctx context.Context, companyID id.ID, createdBy, contentHash string, since time.Time) (bool, error) {
	return m.recentDup, nil
}

func (m *memRepo) List(ctx context.Context, filter ListFilter) (domain.ListResult[*SupplierInvoice], error) {
	return domain.ListResult[*SupplierInvoice]{}, nil
}

var _ Repository = (*memRepo)(nil)

type fakeItems struct {
	items map[id.ID]*item.Item
}

func (f *fakeItems) GetByID(ctx context.Context, itemID id.ID) (*item.Item, error) {
	it, ok := f.items[itemID]
	if !ok {
		return nil, apperror.NewNotFound("item", itemID)
	}
	return it, nil
}

type fakeLedger struct {
	entries []entity.LedgerEntry
}

func (f *fakeLedger) Append(ctx context.Context, entries []entity.LedgerEntry) error {
	f.entries = append(f.entries, entries...)
	return nil
}

func testItem(packSize, perSupplier int64) *item.Item {
	it := item.NewItem("AMOX-500", "Amoxicillin 500mg")
	it.PackSize = decimal.NewFromInt(packSize)
	it.WholesaleUnitsPerSupplier = decimal.NewFromInt(perSupplier)
	it.CanBreakBulk = packSize > 1
	return it
}

func newTestService(repo *memRepo, items *fakeItems, led *fakeLedger) *Service {
	return NewService(repo, items, units.NewResolver(), led, nil, fakeTxManager{})
}

func TestFingerprint_StableAndOrderInsensitive(t *testing.T) {
	companyID, branchID, supplierID := id.New(), id.New(), id.New()
	itemA, itemB := id.New(), id.New()

	docA := NewSupplierInvoice(companyID, branchID, supplierID)
	docA.AddLine(itemA, types.MustQuantity("10"), "carton", "B-1", nil, types.MustMoney("50"))
	docA.AddLine(itemB, types.MustQuantity("5"), "pack", "B-2", nil, types.MustMoney("8"))

	docB := NewSupplierInvoice(companyID, branchID, supplierID)
	docB.AddLine(itemB, types.MustQuantity("5"), "pack", "B-2", nil, types.MustMoney("8"))
	docB.AddLine(itemA, types.MustQuantity("10"), "carton", "B-1", nil, types.MustMoney("50"))

	assert.Equal(t, docA.Fingerprint(), docA.Fingerprint())
	assert.Equal(t, docA.Fingerprint(), docB.Fingerprint(), "line order must not change the fingerprint")

	docB.Lines[0].Quantity = types.MustQuantity("6")
	assert.NotEqual(t, docA.Fingerprint(), docB.Fingerprint())
}

func TestValidate_Lines(t *testing.T) {
	companyID, branchID, supplierID := id.New(), id.New(), id.New()
	ctx := context.Background()

	doc := NewSupplierInvoice(companyID, branchID, supplierID)
	err := doc.Validate(ctx)
	require.Error(t, err, "empty invoice must not validate")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	doc.AddLine(id.New(), types.MustQuantity("10"), "pack", "", nil, types.MustMoney("5"))
	err = doc.Validate(ctx)
	require.Error(t, err, "missing batch number must not validate")

	doc.Lines[0].BatchNumber = "B-1"
	require.NoError(t, doc.Validate(ctx))
}

func TestCreate_DuplicateSubmissionRejected(t *testing.T) {
	repo := newMemRepo()
	repo.recentDup = true
	svc := newTestService(repo, &fakeItems{}, &fakeLedger{})

	doc := NewSupplierInvoice(id.New(), id.New(), id.New())
	doc.Number = "PI-2026-00001"
	doc.AddLine(id.New(), types.MustQuantity("10"), "pack", "B-1", nil, types.MustMoney("5"))

	err := svc.Create(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeDuplicateSubmission))
	assert.Empty(t, repo.docs, "duplicate must not be persisted")
}

func TestBatch_ConvertsUnitsAndCost(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	led := &fakeLedger{}

	it := testItem(10, 12)
	items := &fakeItems{items: map[id.ID]*item.Item{it.ID: it}}
	svc := newTestService(repo, items, led)

	doc := NewSupplierInvoice(id.New(), id.New(), id.New())
	doc.Number = "PI-2026-00002"
	expiry := time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC)
	// 3 cartons at 60.00 each; 1 carton = 12 packs (base units).
	doc.AddLine(it.ID, types.MustQuantity("3"), "carton", "LOT-42", &expiry, types.MustMoney("60"))
	require.NoError(t, repo.Create(ctx, doc))
	require.NoError(t, repo.SaveLines(ctx, doc.ID, doc.Lines))

	require.NoError(t, svc.Batch(ctx, doc.ID))

	require.Len(t, led.entries, 1)
	entry := led.entries[0]
	assert.Equal(t, entity.TxTypePurchase, entry.TransactionType)
	assert.Equal(t, entity.RefSupplierInvoice, entry.ReferenceType)
	assert.Equal(t, doc.ID, entry.ReferenceID)
	assert.True(t, entry.QuantityDelta.Equal(types.MustQuantity("36")), "delta %s", entry.QuantityDelta)
	// 180.00 line total over 36 base units = 5.00 per base unit.
	assert.True(t, entry.UnitCost.Equal(types.MustMoney("5")), "unit cost %s", entry.UnitCost)
	assert.Equal(t, "LOT-42", entry.BatchNumber)
	require.NotNil(t, entry.ExpiryDate)
	assert.True(t, entry.ExpiryDate.Equal(expiry))

	stored, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusBatched, stored.Status)
}

func TestBatch_SecondAttemptRejected(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	led := &fakeLedger{}

	it := testItem(1, 1)
	items := &fakeItems{items: map[id.ID]*item.Item{it.ID: it}}
	svc := newTestService(repo, items, led)

	doc := NewSupplierInvoice(id.New(), id.New(), id.New())
	doc.Number = "PI-2026-00003"
	doc.AddLine(it.ID, types.MustQuantity("10"), "pack", "B-7", nil, types.MustMoney("2"))
	require.NoError(t, repo.Create(ctx, doc))
	require.NoError(t, repo.SaveLines(ctx, doc.ID, doc.Lines))

	require.NoError(t, svc.Batch(ctx, doc.ID))
	require.Len(t, led.entries, 1)

	err := svc.Batch(ctx, doc.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.Len(t, led.entries, 1, "repeat batch must not append entries")
}

func TestDelete_OnlyDrafts(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := newTestService(repo, &fakeItems{}, &fakeLedger{})

	doc := NewSupplierInvoice(id.New(), id.New(), id.New())
	doc.Status = entity.StatusBatched
	require.NoError(t, repo.Create(ctx, doc))

	err := svc.Delete(ctx, doc.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidTransition(err))
}
