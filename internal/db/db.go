package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

const tableName = "documents"

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            string          `bun:"id,pk"`
	Content       string          `bun:"content,notnull"`
	Source        string          `bun:"source,notnull"`
	ContentType   string          `bun:"content_type"`
	PageNumber    int             `bun:"page_number"`
	ChunkID       int             `bun:"chunk_id"`
	Embedding     pgvector.Vector `bun:"embedding,type:vector,notnull"`
	Score         float32         `bun:"score,scanonly"`
}

// VectorStore keeps passages in a Postgres table with a pgvector column.
type VectorStore struct {
	db        *bun.DB
	dimension int
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(dsn, password string) *sql.DB {
	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if password != "" {
		opts = append(opts, pgdriver.WithPassword(password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...))
}

// NewVectorStore connects lazily; nothing is sent to the server until first use.
func NewVectorStore(dbConfig *config.DatabaseConfig, dimension int) *VectorStore {
	return &VectorStore{
		db:        NewDB(ConnectDB(dbConfig.DSN, dbConfig.Password), dbConfig.Debug),
		dimension: dimension,
	}
}

// InitDB creates the vector extension and the documents table.
func (s *VectorStore) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	// the vector column needs the model dimension, so the DDL is written by hand
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id text PRIMARY KEY,
	content text NOT NULL,
	source text NOT NULL,
	content_type text,
	page_number integer,
	chunk_id integer,
	embedding vector(%d) NOT NULL
)`, tableName, s.dimension))
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	log.Debug().Str("table", tableName).Int("dimension", s.dimension).Msg("Initialized pgvector store")
	return nil
}

// Exists reports whether the documents table is present.
func (s *VectorStore) Exists(ctx context.Context) (bool, error) {
	var ok bool
	err := s.db.NewRaw("SELECT to_regclass(?) IS NOT NULL", tableName).Scan(ctx, &ok)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrServiceUnavailable, err)
	}
	return ok, nil
}

func (s *VectorStore) ready(ctx context.Context) error {
	ok, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: table %s", models.ErrIndexNotFound, tableName)
	}
	return nil
}

func (s *VectorStore) Add(ctx context.Context, passages []models.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	if err := s.ready(ctx); err != nil {
		return err
	}
	docs := make([]Document, len(passages))
	for i, p := range passages {
		docs[i] = toDocument(p)
	}
	if _, err := s.db.NewInsert().Model(&docs).Exec(ctx); err != nil {
		return fmt.Errorf("failed to store documents: %w", err)
	}
	return nil
}

// SimilaritySearch ranks rows by cosine similarity, 1 - cosine distance.
func (s *VectorStore) SimilaritySearch(ctx context.Context, vector []float32, k int, threshold float32) ([]models.ScoredPassage, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	if k <= 0 {
		return nil, nil
	}
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var docs []Document
	if err := s.searchQuery(&docs, vector, k, threshold).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	hits := make([]models.ScoredPassage, len(docs))
	for i, d := range docs {
		hits[i] = models.ScoredPassage{Passage: fromDocument(d), Score: d.Score}
	}
	return hits, nil
}

func (s *VectorStore) searchQuery(dest *[]Document, vector []float32, k int, threshold float32) *bun.SelectQuery {
	q := pgvector.NewVector(vector)
	return s.db.NewSelect().
		Model(dest).
		Column("id", "content", "source", "content_type", "page_number", "chunk_id", "embedding").
		ColumnExpr("1 - (embedding <=> ?) AS score", q).
		Where("1 - (embedding <=> ?) >= ?", q, threshold).
		OrderExpr("embedding <=> ?", q).
		Limit(k)
}

func (s *VectorStore) Count(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	n, err := s.db.NewSelect().Model((*Document)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// drop table documents
func (s *VectorStore) DropDocuments(ctx context.Context) error {
	_, err := s.db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}

func (s *VectorStore) Close() error {
	return s.db.Close()
}

func toDocument(p models.Passage) Document {
	return Document{
		ID:          p.ID,
		Content:     p.Content,
		Source:      p.Source,
		ContentType: p.ContentType,
		PageNumber:  p.PageNumber,
		ChunkID:     p.ChunkID,
		Embedding:   pgvector.NewVector(p.Embedding),
	}
}

func fromDocument(d Document) models.Passage {
	return models.Passage{
		ID:          d.ID,
		Content:     d.Content,
		Source:      d.Source,
		ContentType: d.ContentType,
		PageNumber:  d.PageNumber,
		ChunkID:     d.ChunkID,
		Embedding:   d.Embedding.Slice(),
	}
}
