// Package allocation implements First-Expiry-First-Out batch allocation:
// given a demand in base units, it plans which physical batches satisfy it,
// nearest expiry first.
//
// Allocation is a pure read-then-plan step. It never writes the ledger;
// consuming the planned stock is the calling workflow's ledger append, inside
// the same transaction.
package allocation

import (
	"context"
	"sort"
	"time"

	"rxledger/internal/core/apperror"
	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
	"rxledger/internal/core/types"
)

// BatchAllocation is one planned draw from a batch.
type BatchAllocation struct {
	BatchNumber string         `json:"batchNumber"`
	ExpiryDate  *time.Time     `json:"expiryDate,omitempty"`
	Quantity    types.Quantity `json:"quantity"`
	UnitCost    types.Money    `json:"unitCost"`
}

// Options tune an allocation request.
type Options struct {
	// ExcludeExpired skips batches whose expiry is strictly before Today,
	// even when FEFO ordering would pick them first.
	ExcludeExpired bool

	// Today anchors expiry comparison; zero means time.Now (UTC, midnight).
	Today time.Time
}

func (o Options) today() time.Time {
	if !o.Today.IsZero() {
		return o.Today
	}
	return time.Now().UTC().Truncate(24 * time.Hour)
}

// BatchSource supplies the batch remainders allocation plans over.
// ledger.Service satisfies it.
type BatchSource interface {
	BatchesFor(ctx context.Context, companyID, branchID, itemID id.ID) ([]entity.BatchStock, error)
}

// Service plans FEFO allocations against the ledger's batch view.
type Service struct {
	batches BatchSource
}

// NewService creates a FEFO allocation service.
func NewService(batches BatchSource) *Service {
	return &Service{batches: batches}
}

// Allocate plans how neededBase units of an item at a branch are drawn from
// batches. All-or-nothing: when total available falls short it returns
// InsufficientStock carrying needed vs available, and no plan.
func (s *Service) Allocate(ctx context.Context, companyID, branchID, itemID id.ID, neededBase types.Quantity, opts Options) ([]BatchAllocation, error) {
	batches, err := s.batches.BatchesFor(ctx, companyID, branchID, itemID)
	if err != nil {
		return nil, err
	}

	plan, err := Plan(batches, neededBase, opts)
	if err != nil {
		if appErr, ok := apperror.AsAppError(err); ok && appErr.Code == apperror.CodeInsufficientStock {
			appErr.WithDetail("item_id", itemID.String()).WithDetail("branch_id", branchID.String())
		}
		return nil, err
	}
	return plan, nil
}

// Plan is the pure FEFO algorithm over a batch set.
//
// Batches are consumed in expiry order (ascending, nulls last, batch number
// as tie-break), taking min(remaining, still needed) from each. Depleted
// batches (remaining <= 0) are never selected. The result is deterministic
// for a fixed input: the sort is total, so repeated calls with the same
// arguments return the identical plan.
func Plan(batches []entity.BatchStock, neededBase types.Quantity, opts Options) ([]BatchAllocation, error) {
	if !neededBase.IsPositive() {
		return nil, apperror.NewValidation("allocation quantity must be positive").
			WithDetail("needed", neededBase.String())
	}

	today := opts.today()

	eligible := make([]entity.BatchStock, 0, len(batches))
	for _, b := range batches {
		if b.IsDepleted() {
			continue
		}
		if opts.ExcludeExpired && b.IsExpiredAt(today) {
			continue
		}
		eligible = append(eligible, b)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate == nil:
			return a.BatchNumber < b.BatchNumber
		case a.ExpiryDate == nil:
			return false // nulls last
		case b.ExpiryDate == nil:
			return true
		case a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.BatchNumber < b.BatchNumber
		default:
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
	})

	available := types.ZeroQuantity()
	for _, b := range eligible {
		available = available.Add(b.Remaining)
	}
	if available.LessThan(neededBase) {
		return nil, apperror.NewInsufficientStock("", neededBase.String(), available.String())
	}

	plan := make([]BatchAllocation, 0, len(eligible))
	still := neededBase
	for _, b := range eligible {
		if !still.IsPositive() {
			break
		}
		take := decimalMin(b.Remaining, still)
		plan = append(plan, BatchAllocation{
			BatchNumber: b.BatchNumber,
			ExpiryDate:  b.ExpiryDate,
			Quantity:    take,
			UnitCost:    b.UnitCost,
		})
		still = still.Sub(take)
	}

	return plan, nil
}

func decimalMin(a, b types.Quantity) types.Quantity {
	if a.LessThan(b) {
		return a
	}
	return b
}
