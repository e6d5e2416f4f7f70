package ledger_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rxledger/internal/core/entity"
	"rxledger/internal/infrastructure/storage/postgres"
)

func TestLedgerColumns_MatchEntityTags(t *testing.T) {
	// The COPY path and the INSERT fallback both feed values positionally
	// against ledgerColumns, so the list must stay in lockstep with the
	// entity's db tags.
	assert.Equal(t, postgres.ExtractDBColumns[entity.LedgerEntry](), ledgerColumns)
}

func TestNullableString(t *testing.T) {
	assert.Nil(t, nullableString(""))
	assert.Equal(t, "LOT-1", nullableString("LOT-1"))
}
