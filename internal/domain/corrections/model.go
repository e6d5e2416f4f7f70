package corrections

import (
	"encoding/json"
	"time"

	"rxledger/internal/core/id"
)

// Kind classifies what a correction changed on the batch.
type Kind string

const (
	KindCost     Kind = "cost"
	KindQuantity Kind = "quantity"
	KindMetadata Kind = "metadata"
)

// CompressionAlgo specifies the compression algorithm used for Changes.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// CorrectionRecord is one append-only audit entry for a post-hoc change
// to an existing batch. The ledger itself is never edited for quantity:
// quantity corrections reference the forward-correcting entry instead.
type CorrectionRecord struct {
	ID          id.ID      `db:"id"`
	CompanyID   id.ID      `db:"company_id"`
	BranchID    id.ID      `db:"branch_id"`
	ItemID      id.ID      `db:"item_id"`
	BatchNumber string     `db:"batch_number"`
	ExpiryDate  *time.Time `db:"expiry_date"`
	Kind        Kind       `db:"kind"`

	// Changes holds the before/after payload as JSON; payloads over the
	// compression threshold move to ChangesCompressed.
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`

	// LedgerEntryID points at the forward-correcting entry for
	// quantity corrections; nil for cost/metadata corrections.
	LedgerEntryID *id.ID `db:"ledger_entry_id"`

	Reason    string    `db:"reason"`
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}
