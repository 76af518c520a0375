package chromemdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-chat/internal/models"
)

func newManager(t *testing.T, path string) *VectorDBManager {
	t.Helper()
	return NewVectorDBManager(Options{Path: path, CollectionName: "documents"})
}

func passage(id, content string, vec ...float32) models.Passage {
	return models.Passage{
		ID:          id,
		Content:     content,
		Source:      "tarifas.html",
		ContentType: "html",
		PageNumber:  1,
		ChunkID:     1,
		Embedding:   vec,
	}
}

func TestOpen_MissingDirectory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "missing")
	m := newManager(t, path)

	ok, err := m.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	err = m.Open(ctx)
	require.ErrorIs(t, err, models.ErrIndexNotFound)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = m.SimilaritySearch(ctx, []float32{1, 0}, 3, 0)
	assert.ErrorIs(t, err, models.ErrIndexNotFound)

	// reads never create the directory
	ok, err = m.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSimilaritySearch(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir())

	require.NoError(t, m.Add(ctx, []models.Passage{
		passage("a", "mantenimiento $5", 1, 0, 0),
		passage("b", "tarjeta $10", 0.9, 0.1, 0),
		passage("c", "horario", 0, 0, 1),
	}))

	count, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	t.Run("best first and bounded by k", func(t *testing.T) {
		hits, err := m.SimilaritySearch(ctx, []float32{1, 0, 0}, 2, 0)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "a", hits[0].ID)
		assert.Equal(t, "b", hits[1].ID)
		assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
		assert.Equal(t, "tarifas.html", hits[0].Source)
		assert.Equal(t, "html", hits[0].ContentType)
		assert.Equal(t, 1, hits[0].PageNumber)
	})

	t.Run("k larger than the collection", func(t *testing.T) {
		hits, err := m.SimilaritySearch(ctx, []float32{1, 0, 0}, 10, 0)
		require.NoError(t, err)
		assert.Len(t, hits, 3)
	})

	t.Run("threshold filters low scores", func(t *testing.T) {
		hits, err := m.SimilaritySearch(ctx, []float32{1, 0, 0}, 10, 0.9)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		for _, h := range hits {
			assert.GreaterOrEqual(t, h.Score, float32(0.9))
		}
	})

	t.Run("threshold above one returns nothing", func(t *testing.T) {
		hits, err := m.SimilaritySearch(ctx, []float32{1, 0, 0}, 10, 1.01)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("zero k", func(t *testing.T) {
		hits, err := m.SimilaritySearch(ctx, []float32{1, 0, 0}, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestSimilaritySearch_EmptyCollection(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir())

	hits, err := m.SimilaritySearch(ctx, []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAdd_RequiresEmbedding(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir())

	err := m.Add(ctx, []models.Passage{passage("a", "sin vector")})
	assert.Error(t, err)
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := newManager(t, dir)
	require.NoError(t, first.Add(ctx, []models.Passage{passage("a", "mantenimiento $5", 1, 0)}))

	second := newManager(t, dir)
	count, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := second.SimilaritySearch(ctx, []float32{1, 0}, 1, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "mantenimiento $5", hits[0].Content)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newManager(t, t.TempDir())
	require.NoError(t, src.Add(ctx, []models.Passage{
		passage("a", "mantenimiento $5", 1, 0),
		passage("b", "tarjeta $10", 0, 1),
	}))

	file, err := src.Export(ctx)
	require.NoError(t, err)
	assert.FileExists(t, file)

	dst := newManager(t, t.TempDir())
	require.NoError(t, dst.Import(ctx, file))
	count, err := dst.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestExport_BadKey(t *testing.T) {
	ctx := context.Background()
	m := NewVectorDBManager(Options{Path: t.TempDir(), CollectionName: "documents", EncryptionKey: "short"})
	_, err := m.Export(ctx)
	assert.Error(t, err)
}
