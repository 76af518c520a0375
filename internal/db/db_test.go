package db

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

func TestSearchQuery(t *testing.T) {
	store := NewVectorStore(&config.DatabaseConfig{DSN: "postgres://postgres@localhost:5432/postgres?sslmode=disable"}, 2)
	defer store.Close()

	var docs []Document
	sql := store.searchQuery(&docs, []float32{1, 0}, 3, 0.5).String()

	assert.Contains(t, sql, `FROM "documents" AS "d"`)
	assert.Contains(t, sql, "1 - (embedding <=> '[1,0]') AS score")
	assert.Contains(t, sql, "ORDER BY embedding <=> '[1,0]'")
	assert.Contains(t, sql, "LIMIT 3")
}

func TestDocumentConversion(t *testing.T) {
	p := models.Passage{
		ID:          "7f1c",
		Content:     "Mantenimiento mensual | $5.00",
		Source:      "tarifas.pdf",
		ContentType: "pdf",
		PageNumber:  2,
		ChunkID:     4,
		Embedding:   []float32{0.1, 0.2, 0.3},
	}
	assert.Equal(t, p, fromDocument(toDocument(p)))
}
