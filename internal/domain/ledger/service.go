package ledger

import (
	"context"
	"fmt"
	"time"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
	"rxledger/internal/core/types"
	"rxledger/pkg/logger"
)

// ListingRefresher is the collaborator keeping the search/listing snapshot in
// step with the ledger. It is a read optimization only: failures are logged
// and never abort the stock transaction.
type ListingRefresher interface {
	StockChanged(ctx context.Context, companyID, branchID, itemID id.ID) error
}

// Service provides business operations over the ledger and balance snapshot.
// All mutating methods must be called inside a transaction managed by the
// document workflow: the ledger append and the snapshot update commit as one.
type Service struct {
	repo      Repository
	refresher ListingRefresher // optional
}

// NewService creates a new ledger service.
func NewService(repo Repository, refresher ListingRefresher) *Service {
	return &Service{
		repo:      repo,
		refresher: refresher,
	}
}

// balanceKey folds entries per snapshot row.
type balanceKey struct {
	companyID id.ID
	branchID  id.ID
	itemID    id.ID
}

type balanceDelta struct {
	delta    types.Quantity
	outbound bool
	movedAt  time.Time
}

// Append validates and appends ledger entries, then applies the folded delta
// of each (company, branch, item) key to the balance snapshot in the same
// transaction.
//
// Sanity guard: after any outbound movement the post-apply balance must be
// >= 0. A violation returns SanityViolation so the enclosing transaction
// rolls back - negative stock is never allowed to persist, and never
// silently clamped.
func (s *Service) Append(ctx context.Context, entries []entity.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	for i := range entries {
		if err := entries[i].Validate(ctx); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}

	if err := s.repo.AppendEntries(ctx, entries); err != nil {
		return fmt.Errorf("append entries: %w", err)
	}

	deltas := make(map[balanceKey]*balanceDelta)
	order := make([]balanceKey, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		key := balanceKey{e.CompanyID, e.BranchID, e.ItemID}
		agg, ok := deltas[key]
		if !ok {
			agg = &balanceDelta{delta: types.ZeroQuantity()}
			deltas[key] = agg
			order = append(order, key)
		}
		agg.delta = agg.delta.Add(e.QuantityDelta)
		if e.IsOutbound() {
			agg.outbound = true
		}
		if e.CreatedAt.After(agg.movedAt) {
			agg.movedAt = e.CreatedAt
		}
	}

	for _, key := range order {
		agg := deltas[key]
		balance, err := s.repo.UpsertBalance(ctx, key.companyID, key.branchID, key.itemID, agg.delta, agg.movedAt)
		if err != nil {
			return fmt.Errorf("upsert balance for item %s: %w", key.itemID, err)
		}

		if agg.outbound && balance.IsNegative() {
			return apperror.NewSanityViolation(key.itemID.String(), key.branchID.String(), balance.String())
		}
	}

	s.refreshReadSnapshots(ctx, entries, order)

	logger.Info(ctx, "appended ledger entries",
		"count", len(entries),
		"reference_type", entries[0].ReferenceType,
		"reference_id", entries[0].ReferenceID,
	)

	return nil
}

// refreshReadSnapshots updates the last-purchase snapshot and signals the
// listing refresher. Both are read optimizations; errors do not fail the
// stock transaction.
func (s *Service) refreshReadSnapshots(ctx context.Context, entries []entity.LedgerEntry, keys []balanceKey) {
	lastPurchase := make(map[balanceKey]*entity.LedgerEntry)
	for i := range entries {
		e := &entries[i]
		if e.TransactionType != entity.TxTypePurchase || !e.QuantityDelta.IsPositive() {
			continue
		}
		key := balanceKey{e.CompanyID, e.BranchID, e.ItemID}
		if prev, ok := lastPurchase[key]; !ok || e.CreatedAt.After(prev.CreatedAt) {
			lastPurchase[key] = e
		}
	}

	for key, e := range lastPurchase {
		err := s.repo.UpsertLastPurchase(ctx, entity.LastPurchase{
			CompanyID:   key.companyID,
			BranchID:    key.branchID,
			ItemID:      key.itemID,
			UnitCost:    e.UnitCost,
			BatchNumber: e.BatchNumber,
			ExpiryDate:  e.ExpiryDate,
			PurchasedAt: e.CreatedAt,
		})
		if err != nil {
			logger.Warn(ctx, "last-purchase snapshot update failed",
				"item_id", key.itemID, "error", err)
		}
	}

	if s.refresher == nil {
		return
	}
	for _, key := range keys {
		if err := s.refresher.StockChanged(ctx, key.companyID, key.branchID, key.itemID); err != nil {
			logger.Warn(ctx, "listing snapshot refresh failed",
				"item_id", key.itemID, "error", err)
		}
	}
}

// CurrentStock returns the snapshot balance for (item, branch), falling back
// to summing the ledger when no snapshot row exists yet. The ledger remains
// authoritative either way.
func (s *Service) CurrentStock(ctx context.Context, companyID, branchID, itemID id.ID) (types.Quantity, error) {
	balance, err := s.repo.GetBalance(ctx, companyID, branchID, itemID)
	if err == nil {
		return balance.CurrentStock, nil
	}
	if !apperror.IsNotFound(err) {
		return types.ZeroQuantity(), fmt.Errorf("get balance: %w", err)
	}

	sum, err := s.repo.SumDeltas(ctx, companyID, branchID, itemID)
	if err != nil {
		return types.ZeroQuantity(), fmt.Errorf("sum ledger deltas: %w", err)
	}
	return sum, nil
}

// BatchesFor returns the per-batch remainders for (item, branch) in FEFO
// order. Backs both the allocator and UI batch listings.
func (s *Service) BatchesFor(ctx context.Context, companyID, branchID, itemID id.ID) ([]entity.BatchStock, error) {
	return s.repo.BatchesFor(ctx, companyID, branchID, itemID)
}

// BatchRemaining returns the remainder of one specific batch.
func (s *Service) BatchRemaining(ctx context.Context, companyID, branchID, itemID id.ID, batchNumber string, expiryDate *time.Time) (entity.BatchStock, error) {
	return s.repo.BatchRemaining(ctx, companyID, branchID, itemID, batchNumber, expiryDate)
}

// MovementHistory returns the ledger trail for an item at a branch.
func (s *Service) MovementHistory(ctx context.Context, companyID, branchID, itemID id.ID, filter MovementFilter) ([]entity.LedgerEntry, error) {
	return s.repo.MovementHistory(ctx, companyID, branchID, itemID, filter)
}

// RebuildBalances re-derives the snapshot table from the ledger. Used by the
// snapshot-rebuild maintenance command when a snapshot is suspected stale;
// returns how many keys had drifted.
func (s *Service) RebuildBalances(ctx context.Context, companyID id.ID, branchID, itemID *id.ID) (int, error) {
	drifted, err := s.repo.RebuildBalances(ctx, companyID, branchID, itemID)
	if err != nil {
		return 0, fmt.Errorf("rebuild balances: %w", err)
	}

	if drifted > 0 {
		logger.Warn(ctx, "balance snapshot drift repaired",
			"company_id", companyID, "keys", drifted)
	}

	return drifted, nil
}
