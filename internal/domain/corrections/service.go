package corrections

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"rxledger/internal/core/apperror"
	appctx "rxledger/internal/core/context"
	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
	"rxledger/internal/core/tx"
	"rxledger/internal/core/types"
	"rxledger/pkg/logger"
)

// compressThreshold is the payload size above which Changes is stored
// zstd-compressed.
const compressThreshold = 10 * 1024

// Ledger is the slice of the ledger service corrections need.
type Ledger interface {
	Append(ctx context.Context, entries []entity.LedgerEntry) error
	BatchRemaining(ctx context.Context, companyID, branchID, itemID id.ID, batchNumber string, expiryDate *time.Time) (entity.BatchStock, error)
}

// Service applies manual corrections to existing batches and records
// every one of them in the audit trail.
type Service struct {
	repo      Repository
	ledger    Ledger
	txManager tx.Manager
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// NewService creates a new corrections service.
func NewService(repo Repository, ledger Ledger, txManager tx.Manager) (*Service, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Service{
		repo:      repo,
		ledger:    ledger,
		txManager: txManager,
		encoder:   encoder,
		decoder:   decoder,
	}, nil
}

// BatchRef identifies the batch a correction targets.
type BatchRef struct {
	CompanyID   id.ID
	BranchID    id.ID
	ItemID      id.ID
	BatchNumber string
	ExpiryDate  *time.Time
}

// AdjustCost rewrites the unit cost on all of the batch's ledger
// entries. Quantity is untouched, so no snapshot update is needed.
// Depleted batches are refused: their cost has already flowed out.
func (s *Service) AdjustCost(ctx context.Context, ref BatchRef, newUnitCost types.Money, reason string) (*CorrectionRecord, error) {
	if newUnitCost.IsNegative() {
		return nil, apperror.NewValidation("unit cost cannot be negative")
	}
	if reason == "" {
		return nil, apperror.NewValidation("correction reason is required")
	}

	var record *CorrectionRecord
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		batch, err := s.requireLiveBatch(ctx, ref)
		if err != nil {
			return err
		}

		updated, err := s.repo.UpdateBatchCost(ctx, ref.CompanyID, ref.BranchID, ref.ItemID, ref.BatchNumber, ref.ExpiryDate, newUnitCost)
		if err != nil {
			return fmt.Errorf("update batch cost: %w", err)
		}

		record, err = s.record(ctx, ref, KindCost, map[string]any{
			"old_unit_cost":   batch.UnitCost.String(),
			"new_unit_cost":   newUnitCost.String(),
			"entries_updated": updated,
		}, nil, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "batch cost corrected",
		"item_id", ref.ItemID, "batch_number", ref.BatchNumber, "new_unit_cost", newUnitCost)
	return record, nil
}

// AdjustQuantity corrects a batch's remaining quantity by appending a
// forward adjustment entry. The original entries stay untouched; the
// snapshot and sanity guard run inside the ledger append.
func (s *Service) AdjustQuantity(ctx context.Context, ref BatchRef, delta types.Quantity, reason string) (*CorrectionRecord, error) {
	if delta.IsZero() {
		return nil, apperror.NewValidation("quantity delta cannot be zero")
	}
	if reason == "" {
		return nil, apperror.NewValidation("correction reason is required")
	}

	actor := appctx.GetActorID(ctx)

	var record *CorrectionRecord
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		batch, err := s.ledger.BatchRemaining(ctx, ref.CompanyID, ref.BranchID, ref.ItemID, ref.BatchNumber, ref.ExpiryDate)
		if err != nil {
			return err
		}

		// The entry references the correction record; the record points
		// back at the entry.
		recordID := id.New()
		entry := entity.NewLedgerEntry(
			ref.CompanyID, ref.BranchID, ref.ItemID,
			entity.TxTypeAdjustment, entity.RefCorrection, recordID,
			delta, batch.UnitCost, actor,
		).WithBatch(ref.BatchNumber, ref.ExpiryDate)
		entry.Notes = reason

		if err := s.ledger.Append(ctx, []entity.LedgerEntry{entry}); err != nil {
			return err
		}

		record, err = s.recordWithID(ctx, recordID, ref, KindQuantity, map[string]any{
			"old_remaining": batch.Remaining.String(),
			"delta":         delta.String(),
			"new_remaining": batch.Remaining.Add(delta).String(),
		}, &entry.ID, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "batch quantity corrected",
		"item_id", ref.ItemID, "batch_number", ref.BatchNumber, "delta", delta)
	return record, nil
}

// AmendBatchMetadata rewrites batch number and expiry date across the
// batch's ledger entries, for fixing data-entry mistakes before the
// batch moves. Depleted batches are refused.
func (s *Service) AmendBatchMetadata(ctx context.Context, ref BatchRef, newBatchNumber string, newExpiryDate *time.Time, reason string) (*CorrectionRecord, error) {
	if newBatchNumber == "" {
		return nil, apperror.NewValidation("new batch number is required")
	}
	if reason == "" {
		return nil, apperror.NewValidation("correction reason is required")
	}

	var record *CorrectionRecord
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.requireLiveBatch(ctx, ref); err != nil {
			return err
		}

		updated, err := s.repo.RenameBatch(ctx, ref.CompanyID, ref.BranchID, ref.ItemID, ref.BatchNumber, ref.ExpiryDate, newBatchNumber, newExpiryDate)
		if err != nil {
			return fmt.Errorf("rename batch: %w", err)
		}

		changes := map[string]any{
			"old_batch_number": ref.BatchNumber,
			"new_batch_number": newBatchNumber,
			"entries_updated":  updated,
		}
		if ref.ExpiryDate != nil {
			changes["old_expiry_date"] = ref.ExpiryDate.Format("2006-01-02")
		}
		if newExpiryDate != nil {
			changes["new_expiry_date"] = newExpiryDate.Format("2006-01-02")
		}

		record, err = s.record(ctx, ref, KindMetadata, changes, nil, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "batch metadata amended",
		"item_id", ref.ItemID, "batch_number", ref.BatchNumber, "new_batch_number", newBatchNumber)
	return record, nil
}

// History returns the correction trail for a batch, newest first.
func (s *Service) History(ctx context.Context, companyID, branchID, itemID id.ID, batchNumber string) ([]CorrectionRecord, error) {
	records, err := s.repo.History(ctx, companyID, branchID, itemID, batchNumber)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if err := s.decompress(&records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// requireLiveBatch loads the batch and refuses depleted ones.
func (s *Service) requireLiveBatch(ctx context.Context, ref BatchRef) (entity.BatchStock, error) {
	batch, err := s.ledger.BatchRemaining(ctx, ref.CompanyID, ref.BranchID, ref.ItemID, ref.BatchNumber, ref.ExpiryDate)
	if err != nil {
		return entity.BatchStock{}, err
	}
	if batch.IsDepleted() {
		return entity.BatchStock{}, apperror.NewBatchDepleted(ref.ItemID.String(), ref.BatchNumber)
	}
	return batch, nil
}

func (s *Service) record(ctx context.Context, ref BatchRef, kind Kind, changes map[string]any, ledgerEntryID *id.ID, reason string) (*CorrectionRecord, error) {
	return s.recordWithID(ctx, id.New(), ref, kind, changes, ledgerEntryID, reason)
}

func (s *Service) recordWithID(ctx context.Context, recordID id.ID, ref BatchRef, kind Kind, changes map[string]any, ledgerEntryID *id.ID, reason string) (*CorrectionRecord, error) {
	payload, err := json.Marshal(changes)
	if err != nil {
		return nil, fmt.Errorf("marshal changes: %w", err)
	}

	record := &CorrectionRecord{
		ID:              recordID,
		CompanyID:       ref.CompanyID,
		BranchID:        ref.BranchID,
		ItemID:          ref.ItemID,
		BatchNumber:     ref.BatchNumber,
		ExpiryDate:      ref.ExpiryDate,
		Kind:            kind,
		Changes:         payload,
		CompressionAlgo: CompressionNone,
		LedgerEntryID:   ledgerEntryID,
		Reason:          reason,
		CreatedBy:       appctx.GetActorID(ctx),
		CreatedAt:       time.Now().UTC(),
	}

	if len(record.Changes) > compressThreshold {
		record.ChangesCompressed = s.encoder.EncodeAll(record.Changes, nil)
		record.Changes = nil
		record.CompressionAlgo = CompressionZstd
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create correction record: %w", err)
	}
	return record, nil
}

func (s *Service) decompress(record *CorrectionRecord) error {
	if record.CompressionAlgo != CompressionZstd || len(record.ChangesCompressed) == 0 {
		return nil
	}
	raw, err := s.decoder.DecodeAll(record.ChangesCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress correction %s: %w", record.ID, err)
	}
	record.Changes = raw
	record.ChangesCompressed = nil
	record.CompressionAlgo = CompressionNone
	return nil
}
