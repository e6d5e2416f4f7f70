package supplier_invoice

import (
	"context"
	"fmt"
	"time"

	"rxledger/internal/core/apperror"
	appctx "rxledger/internal/core/context"
	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
	"rxledger/internal/core/tx"
	"rxledger/internal/domain"
	"rxledger/internal/domain/catalogs/item"
	"rxledger/internal/domain/units"
	"rxledger/pkg/logger"
	"rxledger/pkg/numerator"
)

// DedupWindow is how long an identical create request from the same actor is
// treated as a double-click rather than a new document.
const DedupWindow = 5 * time.Second

// Ledger is the slice of the ledger service batching needs.
type Ledger interface {
	Append(ctx context.Context, entries []entity.LedgerEntry) error
}

// Items resolves item unit configuration.
type Items interface {
	GetByID(ctx context.Context, itemID id.ID) (*item.Item, error)
}

// Service provides business operations for supplier invoices.
type Service struct {
	repo      Repository
	items     Items
	units     *units.Resolver
	ledger    Ledger
	numerator *numerator.Service
	txManager tx.Manager
}

// NewService creates a new supplier invoice service.
func NewService(
	repo Repository,
	items Items,
	unitResolver *units.Resolver,
	ledger Ledger,
	num *numerator.Service,
	txManager tx.Manager,
) *Service {
	return &Service{
		repo:      repo,
		items:     items,
		units:     unitResolver,
		ledger:    ledger,
		numerator: num,
		txManager: txManager,
	}
}

// Create creates a new draft supplier invoice.
// Rejects a near-identical request from the same actor inside DedupWindow.
func (s *Service) Create(ctx context.Context, doc *SupplierInvoice) error {
	if err := doc.Validate(ctx); err != nil {
		return err
	}

	doc.CreatedBy = appctx.GetActorID(ctx)
	doc.ContentHash = doc.Fingerprint()

	dup, err := s.repo.ExistsRecentWithHash(ctx, doc.CompanyID, doc.CreatedBy, doc.ContentHash, time.Now().UTC().Add(-DedupWindow))
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if dup {
		return apperror.NewDuplicateSubmission(DedupWindow)
	}

	if doc.Number == "" {
		number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("PI"), &numerator.Options{Strategy: NumeratorStrategy}, doc.Date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		doc.Number = number
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "supplier invoice created", "id", doc.ID, "number", doc.Number)
	return nil
}

// GetByID retrieves an invoice with its lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*SupplierInvoice, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}

	lines, err := s.repo.GetLines(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	doc.Lines = lines

	return doc, nil
}

// Update modifies a draft invoice.
func (s *Service) Update(ctx context.Context, doc *SupplierInvoice) error {
	if err := doc.CanModify(DocType); err != nil {
		return err
	}
	if err := doc.Validate(ctx); err != nil {
		return err
	}

	doc.ContentHash = doc.Fingerprint()
	doc.UpdatedBy = appctx.GetActorID(ctx)

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, doc); err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return nil
	})
}

// Delete soft-deletes a draft invoice.
func (s *Service) Delete(ctx context.Context, docID id.ID) error {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return err
	}

	if err := doc.CanModify(DocType); err != nil {
		return err
	}

	return s.repo.Delete(ctx, docID)
}

// Batch appends purchase ledger entries for the invoice and locks it.
//
// The whole transition is one transaction: the document row is locked
// first, status re-checked under the lock (a concurrent batch attempt
// serializes behind us and sees the updated status), then batch-level
// ledger entries are appended and the snapshot updated. Inbound stock
// carries explicit batch metadata, so no allocation happens here.
func (s *Service) Batch(ctx context.Context, docID id.ID) error {
	actor := appctx.GetActorID(ctx)

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.repo.GetByIDForUpdate(ctx, docID)
		if err != nil {
			return err
		}

		if err := doc.RequireStatus(DocType, entity.StatusDraft); err != nil {
			return err
		}

		lines, err := s.repo.GetLines(ctx, docID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}

		entries := make([]entity.LedgerEntry, 0, len(lines))
		for _, line := range lines {
			it, err := s.items.GetByID(ctx, line.ItemID)
			if err != nil {
				return fmt.Errorf("load item %s: %w", line.ItemID, err)
			}

			baseQty, err := s.units.ToBaseUnits(it, line.Quantity, line.UnitName)
			if err != nil {
				return err
			}

			// Cost was captured per purchased unit; the ledger stores
			// cost per base unit.
			unitCostBase := line.LineTotal.Div(baseQty)

			entry := entity.NewLedgerEntry(
				doc.CompanyID, doc.BranchID, line.ItemID,
				entity.TxTypePurchase, entity.RefSupplierInvoice, doc.ID,
				baseQty, unitCostBase, actor,
			).WithBatch(line.BatchNumber, line.ExpiryDate)
			entries = append(entries, entry)
		}

		if err := s.ledger.Append(ctx, entries); err != nil {
			return err
		}

		doc.TransitionTo(entity.StatusBatched)
		doc.UpdatedBy = actor
		if err := s.repo.Update(ctx, doc); err != nil {
			return fmt.Errorf("update document: %w", err)
		}

		logger.Info(ctx, "supplier invoice batched",
			"id", doc.ID, "number", doc.Number, "entries", len(entries))
		return nil
	})
}

// List retrieves supplier invoices with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*SupplierInvoice], error) {
	return s.repo.List(ctx, filter)
}
