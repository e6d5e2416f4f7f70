package sales_invoice

import (
	"context"
	"fmt"
	"time"

	"rxledger/internal/core/apperror"
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

// DedupWindow bounds the duplicate-submission guard for sales.
const DedupWindow = 5 * time.Second

// Ledger is the slice of the ledger service batching needs.
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

// Service provides business operations for sales invoices.
type Service struct {
	repo      Repository
	items     Items
	units     *units.Resolver
	ledger    Ledger
	allocator Allocator
	numerator *numerator.Service
	txManager tx.Manager
}

// NewService creates a new sales invoice service.
func NewService(
	repo Repository,
	items Items,
	unitResolver *units.Resolver,
	ledger Ledger,
	allocator Allocator,
	num *numerator.Service,
	txManager tx.Manager,
) *Service {
	return &Service{
		repo:      repo,
		items:     items,
		units:     unitResolver,
		ledger:    ledger,
		allocator: allocator,
		numerator: num,
		txManager: txManager,
	}
}

// Create creates a new draft sales invoice.
func (s *Service) Create(ctx context.Context, doc *SalesInvoice) error {
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
		number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("SI"), &numerator.Options{Strategy: NumeratorStrategy}, doc.Date)
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

	logger.Info(ctx, "sales invoice created", "id", doc.ID, "number", doc.Number)
	return nil
}

// GetByID retrieves an invoice with its lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*SalesInvoice, error) {
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
func (s *Service) Update(ctx context.Context, doc *SalesInvoice) error {
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

// Batch allocates stock for the invoice and appends sale ledger entries.
//
// The document lock plus the availability check inside the same
// transaction is the authoritative guard against overselling: two
// concurrent sales of the same item serialize on the balance row, and
// the second one sees the depleted batches. Expired batches are never
// dispensed, so allocation excludes them.
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

		// A multi-line invoice may sell the same item in different
		// units. Allocation runs once per item over the summed base
		// quantity so lines cannot compete for the same batch.
		needs := make(map[id.ID]types.Quantity)
		order := make([]id.ID, 0, len(lines))
		for _, line := range lines {
			it, err := s.items.GetByID(ctx, line.ItemID)
			if err != nil {
				return fmt.Errorf("load item %s: %w", line.ItemID, err)
			}
			baseQty, err := s.units.ToBaseUnits(it, line.Quantity, line.UnitName)
			if err != nil {
				return err
			}
			if _, seen := needs[line.ItemID]; !seen {
				order = append(order, line.ItemID)
			}
			needs[line.ItemID] = needs[line.ItemID].Add(baseQty)
		}

		var entries []entity.LedgerEntry
		for _, itemID := range order {
			allocations, err := s.allocator.Allocate(ctx, doc.CompanyID, doc.BranchID, itemID, needs[itemID], allocation.Options{ExcludeExpired: true})
			if err != nil {
				return err
			}

			for _, alloc := range allocations {
				entry := entity.NewLedgerEntry(
					doc.CompanyID, doc.BranchID, itemID,
					entity.TxTypeSale, entity.RefSalesInvoice, doc.ID,
					alloc.Quantity.Neg(), alloc.UnitCost, actor,
				).WithBatch(alloc.BatchNumber, alloc.ExpiryDate)
				entries = append(entries, entry)
			}
		}

		if err := s.ledger.Append(ctx, entries); err != nil {
			return err
		}

		doc.TransitionTo(entity.StatusBatched)
		doc.UpdatedBy = actor
		if err := s.repo.Update(ctx, doc); err != nil {
			return fmt.Errorf("update document: %w", err)
		}

		logger.Info(ctx, "sales invoice batched",
			"id", doc.ID, "number", doc.Number, "entries", len(entries))
		return nil
	})
}

// List retrieves sales invoices with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*SalesInvoice], error) {
	return s.repo.List(ctx, filter)
}
