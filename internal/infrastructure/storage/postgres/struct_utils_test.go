package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rxledger/internal/core/entity"
	"rxledger/internal/core/id"
)

type mockDocument struct {
	entity.BaseDocument
	Number string `db:"number" json:"number"`
	Status string `db:"status" json:"status"`
	Lines  []int  `db:"-" json:"lines"`
}

func TestExtractDBColumns_EmbeddedStructs(t *testing.T) {
	cols := ExtractDBColumns[mockDocument]()

	expectedCols := []string{
		"id", "deletion_mark", "version", "attributes",
		"created_at", "updated_at", "created_by", "updated_by",
		"number", "status",
	}

	for _, expected := range expectedCols {
		assert.Contains(t, cols, expected)
	}

	// db:"-" fields must never become columns
	assert.NotContains(t, cols, "lines")
	assert.NotContains(t, cols, "-")
}

func TestStructToMap_EmbeddedStructs(t *testing.T) {
	doc := mockDocument{
		BaseDocument: entity.NewBaseDocument(),
		Number:       "PI-2026-00001",
		Status:       "draft",
	}
	doc.DeletionMark = true
	doc.Version = 5

	m := StructToMap(doc)

	assert.Equal(t, doc.ID, m["id"])
	assert.Equal(t, true, m["deletion_mark"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, "PI-2026-00001", m["number"])
	assert.Equal(t, "draft", m["status"])
	assert.NotContains(t, m, "lines")
}

func TestStructToMap_PointerAndNil(t *testing.T) {
	doc := &mockDocument{
		BaseDocument: entity.NewBaseDocument(),
		Number:       "SI-2026-00042",
	}

	m := StructToMap(doc)
	assert.Equal(t, "SI-2026-00042", m["number"])

	var nilDoc *mockDocument
	assert.Empty(t, StructToMap(nilDoc))
}

func TestStructToMap_CacheStability(t *testing.T) {
	// Two different instances of the same type must produce maps with
	// identical key sets (metadata cache must not leak values).
	a := mockDocument{BaseDocument: entity.NewBaseDocument(), Number: "A"}
	b := mockDocument{BaseDocument: entity.NewBaseDocument(), Number: "B"}

	ma := StructToMap(a)
	mb := StructToMap(b)

	assert.Equal(t, len(ma), len(mb))
	assert.Equal(t, "A", ma["number"])
	assert.Equal(t, "B", mb["number"])
	assert.NotEqual(t, ma["id"].(id.ID), mb["id"].(id.ID))
}
