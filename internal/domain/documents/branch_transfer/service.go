package branch_transfer

import (
	"context"
	"fmt"

	appctx "rxledger/internal/core/context"
	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
	"rxledger/internal/core/tx"
	"rxledger/internal/core/types"
	"rxledger/internal/domain"
	"rxledger/internal/domain/allocation"
	"rxledger/internal/domain/catalogs/item"
	"rxledger/internal/domain/units"
	"rxledger/pkg/logger"
	"rxledger/pkg/numerator"
)

// Ledger is the slice of the ledger service the workflow needs.
type Ledger interface {
	Append(ctx context.Context, entries []entity.LedgerEntry) error
}

// Items resolves item unit configuration.
type Items interface {
	GetByID(ctx context.Context, itemID id.ID) (*item.Item, error)
}

// Allocator plans which batches cover a required base quantity.
type Allocator interface {
	Allocate(ctx context.Context, companyID, branchID, itemID id.ID, neededBase types.Quantity, opts allocation.Options) ([]allocation.BatchAllocation, error)
}

// Service drives the order → transfer → receipt workflow.
type Service struct {
	orders    OrderRepository
	transfers TransferRepository
	receipts  ReceiptRepository
	items     Items
	units     *units.Resolver
	ledger    Ledger
	allocator Allocator
	numerator *numerator.Service
	txManager tx.Manager
}

// NewService creates a new branch transfer service.
func NewService(
	orders OrderRepository,
	transfers TransferRepository,
	receipts ReceiptRepository,
	items Items,
	unitResolver *units.Resolver,
	ledger Ledger,
	allocator Allocator,
	num *numerator.Service,
	txManager tx.Manager,
) *Service {
	return &Service{
		orders:    orders,
		transfers: transfers,
		receipts:  receipts,
		items:     items,
		units:     unitResolver,
		ledger:    ledger,
		allocator: allocator,
		numerator: num,
		txManager: txManager,
	}
}

// CreateOrder creates a draft branch order. Line quantities are converted
// to base units up front so fulfillment tracking has a single scale.
func (s *Service) CreateOrder(ctx context.Context, doc *BranchOrder) error {
	if err := doc.Validate(ctx); err != nil {
		return err
	}

	for i := range doc.Lines {
		line := &doc.Lines[i]
		if id.IsNil(line.LineID) {
			line.LineID = id.New()
		}
		line.LineNo = i + 1

		it, err := s.items.GetByID(ctx, line.ItemID)
		if err != nil {
			return fmt.Errorf("load item %s: %w", line.ItemID, err)
		}
		baseQty, err := s.units.ToBaseUnits(it, line.Quantity, line.UnitName)
		if err != nil {
			return err
		}
		line.QuantityBase = baseQty
		line.FulfilledQtyBase = types.ZeroQuantity()
	}

	doc.CreatedBy = appctx.GetActorID(ctx)

	if doc.Number == "" {
		number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("BO"), &numerator.Options{Strategy: NumeratorStrategy}, doc.Date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		doc.Number = number
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, doc); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := s.orders.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "branch order created", "id", doc.ID, "number", doc.Number)
	return nil
}

// GetOrder retrieves an order with its lines.
func (s *Service) GetOrder(ctx context.Context, docID id.ID) (*BranchOrder, error) {
	doc, err := s.orders.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	lines, err := s.orders.GetLines(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	doc.Lines = lines
	return doc, nil
}

// BatchOrder locks the order against further edits. No stock moves:
// the order only records intent that transfers fulfill later.
func (s *Service) BatchOrder(ctx context.Context, docID id.ID) error {
	actor := appctx.GetActorID(ctx)

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.orders.GetByIDForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.RequireStatus(OrderDocType, entity.StatusDraft); err != nil {
			return err
		}

		doc.TransitionTo(entity.StatusBatched)
		doc.UpdatedBy = actor
		if err := s.orders.Update(ctx, doc); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		logger.Info(ctx, "branch order batched", "id", doc.ID, "number", doc.Number)
		return nil
	})
}

// ListOrders retrieves branch orders with filtering.
func (s *Service) ListOrders(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*BranchOrder], error) {
	return s.orders.List(ctx, filter)
}

// CreateTransfer creates an ad-hoc draft transfer.
func (s *Service) CreateTransfer(ctx context.Context, doc *BranchTransfer) error {
	if err := doc.Validate(ctx); err != nil {
		return err
	}

	for i := range doc.Lines {
		line := &doc.Lines[i]
		if id.IsNil(line.LineID) {
			line.LineID = id.New()
		}
		line.LineNo = i + 1
	}

	doc.CreatedBy = appctx.GetActorID(ctx)

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.transfers.Create(ctx, doc); err != nil {
			return fmt.Errorf("create transfer: %w", err)
		}
		if err := s.transfers.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "branch transfer created", "id", doc.ID)
	return nil
}

// CreateTransferFromOrder creates a draft transfer carrying the order's
// unfulfilled quantities. The order must already be batched.
func (s *Service) CreateTransferFromOrder(ctx context.Context, orderID id.ID) (*BranchTransfer, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.RequireStatus(OrderDocType, entity.StatusBatched); err != nil {
		return nil, err
	}

	doc := NewBranchTransfer(order.CompanyID, order.SupplyingBranchID, order.BranchID)
	doc.OrderID = &order.ID

	for _, ol := range order.Lines {
		remaining := ol.RemainingBase()
		if !remaining.IsPositive() {
			continue
		}
		it, err := s.items.GetByID(ctx, ol.ItemID)
		if err != nil {
			return nil, fmt.Errorf("load item %s: %w", ol.ItemID, err)
		}
		qty, err := s.units.FromBaseUnits(it, remaining, ol.UnitName)
		if err != nil {
			return nil, err
		}
		doc.Lines = append(doc.Lines, TransferLine{
			ItemID:       ol.ItemID,
			Quantity:     qty,
			UnitName:     ol.UnitName,
			QuantityBase: remaining,
		})
	}

	if err := s.CreateTransfer(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetTransfer retrieves a transfer with its lines.
func (s *Service) GetTransfer(ctx context.Context, docID id.ID) (*BranchTransfer, error) {
	doc, err := s.transfers.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	lines, err := s.transfers.GetLines(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	doc.Lines = lines
	return doc, nil
}

// CompleteTransfer deducts stock from the supplying branch and creates
// the pending receipt, all in one transaction.
//
// Steps under the document lock: allocate FEFO per item at the supplying
// branch, append negative transfer entries (the snapshot update and the
// sanity guard run inside the append), replace the requested lines with
// the batch-resolved allocation while keeping the original request in
// the document attributes, push fulfillment onto the originating order,
// and create the PENDING receipt mirroring the allocated batches.
func (s *Service) CompleteTransfer(ctx context.Context, docID id.ID) (*TransferReceipt, error) {
	actor := appctx.GetActorID(ctx)

	var receipt *TransferReceipt
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.transfers.GetByIDForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.RequireStatus(TransferDocType, entity.StatusDraft); err != nil {
			return err
		}

		if doc.Number == "" {
			number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("BT"), &numerator.Options{Strategy: NumeratorStrategy}, doc.Date)
			if err != nil {
				return fmt.Errorf("generate number: %w", err)
			}
			doc.Number = number
		}

		requested, err := s.transfers.GetLines(ctx, docID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}

		// Same item across several lines competes for the same batches,
		// so allocation runs once per item on the summed base quantity.
		needs := make(map[id.ID]types.Quantity)
		order := make([]id.ID, 0, len(requested))
		for i := range requested {
			line := &requested[i]
			if line.QuantityBase.IsZero() {
				it, err := s.items.GetByID(ctx, line.ItemID)
				if err != nil {
					return fmt.Errorf("load item %s: %w", line.ItemID, err)
				}
				baseQty, err := s.units.ToBaseUnits(it, line.Quantity, line.UnitName)
				if err != nil {
					return err
				}
				line.QuantityBase = baseQty
			}
			if _, seen := needs[line.ItemID]; !seen {
				order = append(order, line.ItemID)
			}
			needs[line.ItemID] = needs[line.ItemID].Add(line.QuantityBase)
		}

		var entries []entity.LedgerEntry
		var allocated []TransferLine
		fulfilled := make(map[id.ID]types.Quantity)
		for _, itemID := range order {
			// Expired stock stays where it is; it is never shipped
			// to another branch.
			allocations, err := s.allocator.Allocate(ctx, doc.CompanyID, doc.BranchID, itemID, needs[itemID], allocation.Options{ExcludeExpired: true})
			if err != nil {
				return err
			}

			for _, alloc := range allocations {
				entries = append(entries, entity.NewLedgerEntry(
					doc.CompanyID, doc.BranchID, itemID,
					entity.TxTypeTransfer, entity.RefBranchTransfer, doc.ID,
					alloc.Quantity.Neg(), alloc.UnitCost, actor,
				).WithBatch(alloc.BatchNumber, alloc.ExpiryDate))

				allocated = append(allocated, TransferLine{
					LineID:       id.New(),
					LineNo:       len(allocated) + 1,
					ItemID:       itemID,
					Quantity:     alloc.Quantity,
					UnitName:     "", // batch lines are in base units
					QuantityBase: alloc.Quantity,
					BatchNumber:  alloc.BatchNumber,
					ExpiryDate:   alloc.ExpiryDate,
					UnitCost:     alloc.UnitCost,
				})
			}
			fulfilled[itemID] = needs[itemID]
		}

		if err := s.ledger.Append(ctx, entries); err != nil {
			return err
		}

		// Keep the pre-allocation request readable after the lines are
		// replaced with batch slices.
		doc.Attributes.Set("requested_lines", requestedSnapshot(requested))
		doc.Lines = allocated
		if err := s.transfers.SaveLines(ctx, doc.ID, allocated); err != nil {
			return fmt.Errorf("save allocated lines: %w", err)
		}

		if doc.OrderID != nil {
			if err := s.applyFulfillment(ctx, *doc.OrderID, fulfilled); err != nil {
				return err
			}
		}

		receipt = &TransferReceipt{
			Document:          entity.NewDocument(doc.CompanyID, doc.ReceivingBranchID),
			TransferID:        doc.ID,
			SupplyingBranchID: doc.BranchID,
		}
		receipt.Status = entity.StatusPending
		receipt.CreatedBy = actor
		number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("TR"), &numerator.Options{Strategy: NumeratorStrategy}, receipt.Date)
		if err != nil {
			return fmt.Errorf("generate receipt number: %w", err)
		}
		receipt.Number = number
		for _, line := range allocated {
			receipt.Lines = append(receipt.Lines, ReceiptLine{
				LineID:       id.New(),
				LineNo:       len(receipt.Lines) + 1,
				ItemID:       line.ItemID,
				QuantityBase: line.QuantityBase,
				BatchNumber:  line.BatchNumber,
				ExpiryDate:   line.ExpiryDate,
				UnitCost:     line.UnitCost,
			})
		}
		if err := s.receipts.Create(ctx, receipt); err != nil {
			return fmt.Errorf("create receipt: %w", err)
		}
		if err := s.receipts.SaveLines(ctx, receipt.ID, receipt.Lines); err != nil {
			return fmt.Errorf("save receipt lines: %w", err)
		}

		doc.TransitionTo(entity.StatusCompleted)
		doc.UpdatedBy = actor
		if err := s.transfers.Update(ctx, doc); err != nil {
			return fmt.Errorf("update transfer: %w", err)
		}

		logger.Info(ctx, "branch transfer completed",
			"id", doc.ID, "number", doc.Number,
			"receipt_id", receipt.ID, "entries", len(entries))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// applyFulfillment distributes delivered base quantities across the
// order's lines in line order, capping each line at its ordered
// quantity. Over-fulfillment is therefore impossible regardless of how
// many transfers run against the order.
func (s *Service) applyFulfillment(ctx context.Context, orderID id.ID, delivered map[id.ID]types.Quantity) error {
	// Lock the order so two transfers fulfilling it serialize.
	if _, err := s.orders.GetByIDForUpdate(ctx, orderID); err != nil {
		return err
	}

	lines, err := s.orders.GetLines(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get order lines: %w", err)
	}

	changed := make([]OrderLine, 0, len(lines))
	for i := range lines {
		line := &lines[i]
		left := delivered[line.ItemID]
		if !left.IsPositive() {
			continue
		}
		take := left
		if room := line.RemainingBase(); take.GreaterThan(room) {
			take = room
		}
		if !take.IsPositive() {
			continue
		}
		line.FulfilledQtyBase = line.FulfilledQtyBase.Add(take)
		delivered[line.ItemID] = left.Sub(take)
		changed = append(changed, *line)
	}

	if len(changed) == 0 {
		return nil
	}
	if err := s.orders.UpdateLineFulfillment(ctx, changed); err != nil {
		return fmt.Errorf("update fulfillment: %w", err)
	}
	return nil
}

// GetReceipt retrieves a receipt with its lines.
func (s *Service) GetReceipt(ctx context.Context, docID id.ID) (*TransferReceipt, error) {
	doc, err := s.receipts.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	lines, err := s.receipts.GetLines(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	doc.Lines = lines
	return doc, nil
}

// ConfirmReceipt adds the transferred stock at the receiving branch.
// Only PENDING receipts can be confirmed; a repeat call fails the
// status re-check under the row lock, so stock arrives exactly once.
func (s *Service) ConfirmReceipt(ctx context.Context, docID id.ID) error {
	actor := appctx.GetActorID(ctx)

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.receipts.GetByIDForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.RequireStatus(ReceiptDocType, entity.StatusPending); err != nil {
			return err
		}

		lines, err := s.receipts.GetLines(ctx, docID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}

		entries := make([]entity.LedgerEntry, 0, len(lines))
		for _, line := range lines {
			entries = append(entries, entity.NewLedgerEntry(
				doc.CompanyID, doc.BranchID, line.ItemID,
				entity.TxTypeTransfer, entity.RefTransferReceipt, doc.ID,
				line.QuantityBase, line.UnitCost, actor,
			).WithBatch(line.BatchNumber, line.ExpiryDate))
		}

		if err := s.ledger.Append(ctx, entries); err != nil {
			return err
		}

		doc.TransitionTo(entity.StatusReceived)
		doc.UpdatedBy = actor
		if err := s.receipts.Update(ctx, doc); err != nil {
			return fmt.Errorf("update receipt: %w", err)
		}

		logger.Info(ctx, "transfer receipt confirmed",
			"id", doc.ID, "number", doc.Number, "entries", len(entries))
		return nil
	})
}

// ListReceipts retrieves receipts with filtering.
func (s *Service) ListReceipts(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*TransferReceipt], error) {
	return s.receipts.List(ctx, filter)
}

func requestedSnapshot(lines []TransferLine) []map[string]any {
	snap := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		snap = append(snap, map[string]any{
			"item_id":       line.ItemID.String(),
			"quantity":      line.Quantity.String(),
			"unit_name":     line.UnitName,
			"quantity_base": line.QuantityBase.String(),
		})
	}
	return snap
}
