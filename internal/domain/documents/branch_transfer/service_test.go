package branch_transfer

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
	"rxledger/internal/core/types"
	"rxledger/internal/domain"
	"rxledger/internal/domain/allocation"
	"rxledger/internal/domain/catalogs/item"
	"rxledger/internal/domain/units"
	"rxledger/pkg/numerator"
)

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// seqRow feeds the numerator a monotonically increasing sequence value.
type seqRow struct {
	val int64
}

func (r seqRow) Scan(dest ...any) error {
	if p, ok := dest[0].(*int64); ok {
		*p = r.val
	}
	return nil
}

type seqQuerier struct {
	counters map[string]int64
}

func (q *seqQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if q.counters == nil {
		q.counters = make(map[string]int64)
	}
	key, _ := args[0].(string)
	inc := int64(1)
	if len(args) > 1 {
		if n, ok := args[1].(int64); ok {
			inc = n
		}
	}
	q.counters[key] += inc
	return seqRow{val: q.counters[key]}
}

type memOrders struct {
	docs  map[id.ID]*BranchOrder
	lines map[id.ID][]OrderLine
}

func newMemOrders() *memOrders {
	return &memOrders{docs: make(map[id.ID]*BranchOrder), lines: make(map[id.ID][]OrderLine)}
}

func (m *memOrders) Create(ctx context.Context, doc *BranchOrder) error {
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memOrders) GetByID(ctx context.Context, docID id.ID) (*BranchOrder, error) {
	doc, ok := m.docs[docID]
	if !ok {
		return nil, apperror.NewNotFound(OrderDocType, docID)
	}
	cp := *doc
	return &cp, nil
}

func (m *memOrders) GetByIDForUpdate(ctx context.Context, docID id.ID) (*BranchOrder, error) {
	return m.GetByID(ctx, docID)
}

func (m *memOrders) Update(ctx context.Context, doc *BranchOrder) error {
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memOrders) Delete(ctx context.Context, docID id.ID) error {
	delete(m.docs, docID)
	return nil
}

func (m *memOrders) GetLines(ctx context.Context, docID id.ID) ([]OrderLine, error) {
	out := make([]OrderLine, len(m.lines[docID]))
	copy(out, m.lines[docID])
	return out, nil
}

func (m *memOrders) SaveLines(ctx context.Context, docID id.ID, lines []OrderLine) error {
	m.lines[docID] = append([]OrderLine(nil), lines...)
	return nil
}

func (m *memOrders) UpdateLineFulfillment(ctx context.Context, lines []OrderLine) error {
	for docID, stored := range m.lines {
		for i := range stored {
			for _, upd := range lines {
				if stored[i].LineID == upd.LineID {
					// Mirror the SQL cap: fulfillment never exceeds
					// the ordered base quantity.
					next := upd.FulfilledQtyBase
					if next.GreaterThan(stored[i].QuantityBase) {
						next = stored[i].QuantityBase
					}
					stored[i].FulfilledQtyBase = next
				}
			}
		}
		m.lines[docID] = stored
	}
	return nil
}

func (m *memOrders) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*BranchOrder], error) {
	return domain.ListResult[*BranchOrder]{}, nil
}

var _ OrderRepository = (*memOrders)(nil)

type memTransfers struct {
	docs  map[id.ID]*BranchTransfer
	lines map[id.ID][]TransferLine
}

func newMemTransfers() *memTransfers {
	return &memTransfers{docs: make(map[id.ID]*BranchTransfer), lines: make(map[id.ID][]TransferLine)}
}

func (m *memTransfers) Create(ctx context.Context, doc *BranchTransfer) error {
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memTransfers) GetByID(ctx context.Context, docID id.ID) (*BranchTransfer, error) {
	doc, ok := m.docs[docID]
	if !ok {
		return nil, apperror.NewNotFound(TransferDocType, docID)
	}
	cp := *doc
	return &cp, nil
}

func (m *memTransfers) GetByIDForUpdate(ctx context.Context, docID id.ID) (*BranchTransfer, error) {
	return m.GetByID(ctx, docID)
}

func (m *memTransfers) Update(ctx context.Context, doc *BranchTransfer) error {
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memTransfers) Delete(ctx context.Context, docID id.ID) error {
	delete(m.docs, docID)
	return nil
}

func (m *memTransfers) GetLines(ctx context.Context, docID id.ID) ([]TransferLine, error) {
	out := make([]TransferLine, len(m.lines[docID]))
	copy(out, m.lines[docID])
	return out, nil
}

func (m *memTransfers) SaveLines(ctx context.Context, docID id.ID, lines []TransferLine) error {
	m.lines[docID] = append([]TransferLine(nil), lines...)
	return nil
}

func (m *memTransfers) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*BranchTransfer], error) {
	return domain.ListResult[*BranchTransfer]{}, nil
}

var _ TransferRepository = (*memTransfers)(nil)

type memReceipts struct {
	docs  map[id.ID]*TransferReceipt
	lines map[id.ID][]ReceiptLine
}

func newMemReceipts() *memReceipts {
	return &memReceipts{docs: make(map[id.ID]*TransferReceipt), lines: make(map[id.ID][]ReceiptLine)}
}

func (m *memReceipts) Create(ctx context.Context, doc *TransferReceipt) error {
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memReceipts) GetByID(ctx context.Context, docID id.ID) (*TransferReceipt, error) {
	doc, ok := m.docs[docID]
	if !ok {
		return nil, apperror.NewNotFound(ReceiptDocType, docID)
	}
	cp := *doc
	return &cp, nil
}

func (m *memReceipts) GetByIDForUpdate(ctx context.Context, docID id.ID) (*TransferReceipt, error) {
	return m.GetByID(ctx, docID)
}

func (m *memReceipts) Update(ctx context.Context, doc *TransferReceipt) error {
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memReceipts) GetLines(ctx context.Context, docID id.ID) ([]ReceiptLine, error) {
	out := make([]ReceiptLine, len(m.lines[docID]))
	copy(out, m.lines[docID])
	return out, nil
}

func (m *memReceipts) SaveLines(ctx context.Context, docID id.ID, lines []ReceiptLine) error {
	m.lines[docID] = append([]ReceiptLine(nil), lines...)
	return nil
}

func (m *memReceipts) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*TransferReceipt], error) {
	return domain.ListResult[*TransferReceipt]{}, nil
}

var _ ReceiptRepository = (*memReceipts)(nil)

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

// planAllocator plans with the real FEFO algorithm over canned batches.
type planAllocator struct {
	batches map[id.ID][]entity.BatchStock
}

func (p *planAllocator) Allocate(ctx context.Context, companyID, branchID, itemID id.ID, neededBase types.Quantity, opts allocation.Options) ([]allocation.BatchAllocation, error) {
	return allocation.Plan(p.batches[itemID], neededBase, opts)
}

type fixture struct {
	orders    *memOrders
	transfers *memTransfers
	receipts  *memReceipts
	led       *fakeLedger
	alloc     *planAllocator
	svc       *Service
	item      *item.Item
}

func newFixture() *fixture {
	it := item.NewItem("IBU-400", "Ibuprofen 400mg")
	it.PackSize = decimal.NewFromInt(10)
	it.CanBreakBulk = true

	f := &fixture{
		orders:    newMemOrders(),
		transfers: newMemTransfers(),
		receipts:  newMemReceipts(),
		led:       &fakeLedger{},
		alloc:     &planAllocator{batches: make(map[id.ID][]entity.BatchStock)},
		item:      it,
	}
	f.svc = NewService(
		f.orders, f.transfers, f.receipts,
		&fakeItems{items: map[id.ID]*item.Item{it.ID: it}},
		units.NewResolver(), f.led, f.alloc,
		numerator.New(&seqQuerier{}), fakeTxManager{},
	)
	return f
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func stock(number string, expiry *time.Time, remaining, cost string) entity.BatchStock {
	return entity.BatchStock{
		BatchNumber: number,
		ExpiryDate:  expiry,
		Remaining:   types.MustQuantity(remaining),
		UnitCost:    types.MustMoney(cost),
	}
}

func TestCompleteTransfer_AllocatesAndCreatesPendingReceipt(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	companyID, supplyID, receiveID := id.New(), id.New(), id.New()
	f.alloc.batches[f.item.ID] = []entity.BatchStock{
		stock("B1", date(2026, 11, 1), "6", "3.00"),
		stock("B2", date(2027, 2, 1), "20", "3.20"),
	}

	transfer := NewBranchTransfer(companyID, supplyID, receiveID)
	transfer.Lines = []TransferLine{{
		ItemID:   f.item.ID,
		Quantity: types.MustQuantity("10"),
		UnitName: "pack",
	}}
	require.NoError(t, f.svc.CreateTransfer(ctx, transfer))

	receipt, err := f.svc.CompleteTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	require.NotNil(t, receipt)

	// Deduction at the supplying branch: 6 from B1, 4 from B2.
	require.Len(t, f.led.entries, 2)
	for _, e := range f.led.entries {
		assert.Equal(t, entity.TxTypeTransfer, e.TransactionType)
		assert.Equal(t, entity.RefBranchTransfer, e.ReferenceType)
		assert.Equal(t, supplyID, e.BranchID)
		assert.True(t, e.QuantityDelta.IsNegative())
	}
	assert.Equal(t, "B1", f.led.entries[0].BatchNumber)
	assert.True(t, f.led.entries[0].QuantityDelta.Equal(types.MustQuantity("-6")))
	assert.True(t, f.led.entries[1].QuantityDelta.Equal(types.MustQuantity("-4")))

	// The receipt waits at the receiving branch with the allocated batches.
	assert.Equal(t, entity.StatusPending, receipt.Status)
	assert.Equal(t, receiveID, receipt.BranchID)
	assert.Equal(t, supplyID, receipt.SupplyingBranchID)
	assert.NotEmpty(t, receipt.Number)
	require.Len(t, receipt.Lines, 2)
	assert.Equal(t, "B1", receipt.Lines[0].BatchNumber)
	assert.True(t, receipt.Lines[0].QuantityBase.Equal(types.MustQuantity("6")))

	// The transfer keeps the original request alongside the batch lines.
	stored, err := f.svc.GetTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, stored.Status)
	assert.True(t, stored.Attributes.Has("requested_lines"))
	require.Len(t, stored.Lines, 2)
	assert.Equal(t, "B2", stored.Lines[1].BatchNumber)
}

func TestCompleteTransfer_InsufficientStockLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	companyID, supplyID, receiveID := id.New(), id.New(), id.New()
	f.alloc.batches[f.item.ID] = []entity.BatchStock{
		stock("B1", date(2026, 11, 1), "3", "3.00"),
	}

	transfer := NewBranchTransfer(companyID, supplyID, receiveID)
	transfer.Lines = []TransferLine{{
		ItemID:   f.item.ID,
		Quantity: types.MustQuantity("10"),
		UnitName: "pack",
	}}
	require.NoError(t, f.svc.CreateTransfer(ctx, transfer))

	_, err := f.svc.CompleteTransfer(ctx, transfer.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	assert.Empty(t, f.led.entries, "failed allocation must not move stock")
	assert.Empty(t, f.receipts.docs, "no receipt for a failed transfer")

	stored, getErr := f.svc.GetTransfer(ctx, transfer.ID)
	require.NoError(t, getErr)
	assert.Equal(t, entity.StatusDraft, stored.Status)
}

func TestConfirmReceipt_AddsStockOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	companyID, supplyID, receiveID := id.New(), id.New(), id.New()
	f.alloc.batches[f.item.ID] = []entity.BatchStock{
		stock("B1", date(2026, 11, 1), "50", "3.00"),
	}

	transfer := NewBranchTransfer(companyID, supplyID, receiveID)
	transfer.Lines = []TransferLine{{
		ItemID:   f.item.ID,
		Quantity: types.MustQuantity("8"),
		UnitName: "pack",
	}}
	require.NoError(t, f.svc.CreateTransfer(ctx, transfer))

	receipt, err := f.svc.CompleteTransfer(ctx, transfer.ID)
	require.NoError(t, err)
	outbound := len(f.led.entries)

	require.NoError(t, f.svc.ConfirmReceipt(ctx, receipt.ID))

	inbound := f.led.entries[outbound:]
	require.Len(t, inbound, 1)
	assert.Equal(t, entity.TxTypeTransfer, inbound[0].TransactionType)
	assert.Equal(t, entity.RefTransferReceipt, inbound[0].ReferenceType)
	assert.Equal(t, receiveID, inbound[0].BranchID)
	assert.True(t, inbound[0].QuantityDelta.Equal(types.MustQuantity("8")))
	assert.Equal(t, "B1", inbound[0].BatchNumber)
	assert.True(t, inbound[0].UnitCost.Equal(types.MustMoney("3.00")), "cost follows the stock across branches")

	// A second confirmation fails the status re-check and adds nothing.
	err = f.svc.ConfirmReceipt(ctx, receipt.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.Len(t, f.led.entries, outbound+1)
}

func TestOrderWorkflow_FulfillmentIsCapped(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	companyID, orderingID, supplyID := id.New(), id.New(), id.New()
	f.alloc.batches[f.item.ID] = []entity.BatchStock{
		stock("B1", date(2027, 1, 1), "100", "3.00"),
	}

	order := NewBranchOrder(companyID, orderingID, supplyID)
	order.Lines = []OrderLine{{
		ItemID:   f.item.ID,
		Quantity: types.MustQuantity("10"),
		UnitName: "pack",
	}}
	require.NoError(t, f.svc.CreateOrder(ctx, order))
	require.NoError(t, f.svc.BatchOrder(ctx, order.ID))

	// Two transfers against the same order deliver 6 packs each; the
	// second may only count 4 toward the 10 ordered.
	for i := 0; i < 2; i++ {
		transfer := NewBranchTransfer(companyID, supplyID, orderingID)
		transfer.OrderID = &order.ID
		transfer.Lines = []TransferLine{{
			ItemID:   f.item.ID,
			Quantity: types.MustQuantity("6"),
			UnitName: "pack",
		}}
		require.NoError(t, f.svc.CreateTransfer(ctx, transfer))
		_, err := f.svc.CompleteTransfer(ctx, transfer.ID)
		require.NoError(t, err)
	}

	stored, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	assert.True(t, stored.Lines[0].FulfilledQtyBase.Equal(types.MustQuantity("10")),
		"fulfilled %s", stored.Lines[0].FulfilledQtyBase)
	assert.True(t, stored.Lines[0].RemainingBase().IsZero())
}

func TestCreateTransferFromOrder_CopiesRemainders(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	companyID, orderingID, supplyID := id.New(), id.New(), id.New()
	f.alloc.batches[f.item.ID] = []entity.BatchStock{
		stock("B1", date(2027, 1, 1), "100", "3.00"),
	}

	order := NewBranchOrder(companyID, orderingID, supplyID)
	order.Lines = []OrderLine{{
		ItemID:   f.item.ID,
		Quantity: types.MustQuantity("10"),
		UnitName: "pack",
	}}
	require.NoError(t, f.svc.CreateOrder(ctx, order))

	// Drafts cannot source transfers.
	_, err := f.svc.CreateTransferFromOrder(ctx, order.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidTransition(err))

	require.NoError(t, f.svc.BatchOrder(ctx, order.ID))

	first, err := f.svc.CreateTransferFromOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, first.Lines, 1)
	assert.True(t, first.Lines[0].QuantityBase.Equal(types.MustQuantity("10")))
	assert.Equal(t, supplyID, first.BranchID)
	assert.Equal(t, orderingID, first.ReceivingBranchID)

	// Partially fulfill by shipping a smaller ad-hoc transfer first.
	partial := NewBranchTransfer(companyID, supplyID, orderingID)
	partial.OrderID = &order.ID
	partial.Lines = []TransferLine{{
		ItemID:   f.item.ID,
		Quantity: types.MustQuantity("7"),
		UnitName: "pack",
	}}
	require.NoError(t, f.svc.CreateTransfer(ctx, partial))
	_, err = f.svc.CompleteTransfer(ctx, partial.ID)
	require.NoError(t, err)

	second, err := f.svc.CreateTransferFromOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, second.Lines, 1)
	assert.True(t, second.Lines[0].QuantityBase.Equal(types.MustQuantity("3")),
		"remainder %s", second.Lines[0].QuantityBase)
}
