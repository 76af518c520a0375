package chromemdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"document-chat/internal/models"
)

// VectorDBManager encapsulates the chromem-go database operations.
// The database is opened lazily so that a missing index directory is never
// created by a read.
type VectorDBManager struct {
	mu             sync.Mutex
	db             *chromem.DB
	collection     *chromem.Collection
	dbPath         string
	collectionName string
	compress       bool
	encryptionKey  string
	embed          chromem.EmbeddingFunc
}

// Options configures a VectorDBManager.
type Options struct {
	Path           string
	CollectionName string
	Compress       bool
	EncryptionKey  string
	// EmbeddingFunc is only called when chromem needs to embed text itself.
	EmbeddingFunc chromem.EmbeddingFunc
}

// NewVectorDBManager returns a manager for the persistent index at opts.Path.
func NewVectorDBManager(opts Options) *VectorDBManager {
	return &VectorDBManager{
		dbPath:         opts.Path,
		collectionName: opts.CollectionName,
		compress:       opts.Compress,
		encryptionKey:  opts.EncryptionKey,
		embed:          opts.EmbeddingFunc,
	}
}

// Path returns the index directory.
func (m *VectorDBManager) Path() string {
	return m.dbPath
}

// Exists reports whether the index directory is present.
func (m *VectorDBManager) Exists(_ context.Context) (bool, error) {
	info, err := os.Stat(m.dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat vector index: %w", err)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("vector index path %s is not a directory", m.dbPath)
	}
	return true, nil
}

// Open loads the persistent database and the collection. It fails with
// ErrIndexNotFound when the directory does not exist.
func (m *VectorDBManager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open(ctx)
}

func (m *VectorDBManager) open(ctx context.Context) error {
	if m.collection != nil {
		return nil
	}
	ok, err := m.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrIndexNotFound, m.dbPath)
	}

	db, err := chromem.NewPersistentDB(m.dbPath, m.compress)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	c, err := db.GetOrCreateCollection(m.collectionName, nil, m.embed)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}

	m.db = db
	m.collection = c
	log.Debug().Str("path", m.dbPath).Str("collection", m.collectionName).Int("documents", c.Count()).Msg("Opened vector index")
	return nil
}

func (m *VectorDBManager) ready(ctx context.Context) (*chromem.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.open(ctx); err != nil {
		return nil, err
	}
	return m.collection, nil
}

// Add appends passages with their embeddings to the collection.
func (m *VectorDBManager) Add(ctx context.Context, passages []models.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	c, err := m.ready(ctx)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(passages))
	for i, p := range passages {
		if len(p.Embedding) == 0 {
			return fmt.Errorf("passage %s has no embedding", p.ID)
		}
		docs[i] = chromem.Document{
			ID:        p.ID,
			Content:   p.Content,
			Metadata:  CreateMetadata(p),
			Embedding: p.Embedding,
		}
	}

	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// SimilaritySearch returns at most k passages whose cosine similarity to
// vector is at least threshold, best first. No match is not an error.
func (m *VectorDBManager) SimilaritySearch(ctx context.Context, vector []float32, k int, threshold float32) ([]models.ScoredPassage, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	if k <= 0 {
		return nil, nil
	}
	c, err := m.ready(ctx)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection
	n := min(k, c.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := c.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]models.ScoredPassage, 0, len(results))
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		hits = append(hits, models.ScoredPassage{
			Passage: passageFromResult(r),
			Score:   r.Similarity,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

// Count returns the number of stored passages.
func (m *VectorDBManager) Count(ctx context.Context) (int, error) {
	c, err := m.ready(ctx)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

// delete collection
func (m *VectorDBManager) DeleteCollection(ctx context.Context) error {
	c, err := m.ready(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.DeleteCollection(c.Name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	m.collection = nil
	return nil
}

func (m *VectorDBManager) exportFile() string {
	ext := ".gob"
	if m.compress {
		ext += ".gz"
	}
	if m.encryptionKey != "" {
		ext += ".enc"
	}
	return filepath.Join(m.dbPath, m.collectionName+ext)
}

// Export writes the collection to a single (optionally compressed and
// encrypted) file inside the index directory and returns its path.
func (m *VectorDBManager) Export(ctx context.Context) (string, error) {
	if _, err := m.ready(ctx); err != nil {
		return "", err
	}
	if m.encryptionKey != "" && len(m.encryptionKey) != 32 {
		return "", fmt.Errorf("encryption key must be 32 bytes long")
	}

	filePath := m.exportFile()
	log.Debug().Str("collection", m.collectionName).Str("file", filePath).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, m.collectionName); err != nil {
		return "", fmt.Errorf("failed to export database: %w", err)
	}
	return filePath, nil
}

// Import loads a file written by Export into the collection.
func (m *VectorDBManager) Import(ctx context.Context, filePath string) error {
	if _, err := m.ready(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.ImportFromFile(filePath, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	// import replaces the collection object
	c := m.db.GetCollection(m.collectionName, m.embed)
	if c == nil {
		return fmt.Errorf("collection %s missing after import", m.collectionName)
	}
	m.collection = c
	return nil
}

// CreateMetadata stores everything needed to rebuild a passage from a hit.
func CreateMetadata(p models.Passage) map[string]string {
	return map[string]string{
		models.MetaSource:      p.Source,
		models.MetaContentType: p.ContentType,
		models.MetaPageNumber:  strconv.Itoa(p.PageNumber),
		models.MetaChunkID:     strconv.Itoa(p.ChunkID),
	}
}

func passageFromResult(r chromem.Result) models.Passage {
	page, _ := strconv.Atoi(r.Metadata[models.MetaPageNumber])
	chunkID, _ := strconv.Atoi(r.Metadata[models.MetaChunkID])
	return models.Passage{
		ID:          r.ID,
		Content:     r.Content,
		Source:      r.Metadata[models.MetaSource],
		ContentType: r.Metadata[models.MetaContentType],
		PageNumber:  page,
		ChunkID:     chunkID,
		Embedding:   r.Embedding,
	}
}
