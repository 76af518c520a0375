package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"document-chat/internal/agent"
	"document-chat/internal/chromemdb"
	"document-chat/internal/config"
	"document-chat/internal/db"
	"document-chat/internal/embedding"
	"document-chat/internal/helper"
	"document-chat/internal/ingest"
	"document-chat/internal/llmservice"
	"document-chat/internal/metrics"
	"document-chat/internal/rag"
	"document-chat/internal/session"
)

// vectorIndex is what both index backends offer.
type vectorIndex interface {
	ingest.Index
	rag.Searcher
	Count(ctx context.Context) (int, error)
}

// openIndex returns the configured backend and a cleanup function. Nothing
// is created on disk or in the database.
func openIndex(c *config.Config, emb *embedding.Client) (vectorIndex, func(), error) {
	switch c.VectorStore.Type {
	case "chromem":
		index := chromemdb.NewVectorDBManager(chromemdb.Options{
			Path:           c.VectorStore.Path,
			CollectionName: c.VectorStore.CollectionName,
			Compress:       c.VectorStore.Compress,
			EncryptionKey:  c.VectorStore.EncryptionKey,
			EmbeddingFunc:  emb.ChromemFunc(),
		})
		return index, func() {}, nil
	case "pgvector":
		store := db.NewVectorStore(&c.Database, c.RAG.VectorSize)
		return store, func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing database")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector store type: %s", c.VectorStore.Type)
	}
}

// createIndex prepares the index location: the directory for chromem, the
// extension and table for pgvector.
func createIndex(ctx context.Context, c *config.Config, index vectorIndex) error {
	switch idx := index.(type) {
	case *chromemdb.VectorDBManager:
		return helper.CreateFolder(idx.Path())
	case *db.VectorStore:
		return idx.InitDB(ctx)
	default:
		return fmt.Errorf("cannot create index of type %T", index)
	}
}

// resetIndex removes every stored passage so the next ingestion starts empty.
func resetIndex(ctx context.Context, index vectorIndex) error {
	switch idx := index.(type) {
	case *chromemdb.VectorDBManager:
		return idx.DeleteCollection(ctx)
	case *db.VectorStore:
		if err := idx.DropDocuments(ctx); err != nil {
			return err
		}
		return idx.InitDB(ctx)
	default:
		return fmt.Errorf("cannot reset index of type %T", index)
	}
}

// writeMetrics saves the counters of a one-shot command when --metrics-file is set.
func writeMetrics(m *metrics.Metrics) {
	if metricsFile == "" {
		return
	}
	if err := m.WriteTextfile(metricsFile); err != nil {
		log.Warn().Err(err).Str("file", metricsFile).Msg("Failed to write metrics")
		return
	}
	log.Info().Str("file", metricsFile).Msg("Wrote metrics")
}

type app struct {
	agent   *agent.Agent
	store   *session.Store
	metrics *metrics.Metrics
	close   func()
}

// newApp wires the serving path: embedder, index, chat model, chain, agent.
func newApp(c *config.Config) (*app, error) {
	emb, err := embedding.New(&c.EmbedLLM, c.RAG.VectorSize)
	if err != nil {
		return nil, err
	}
	index, closeIndex, err := openIndex(c, emb)
	if err != nil {
		return nil, err
	}
	llm, err := llmservice.New(&c.ChatLLM)
	if err != nil {
		closeIndex()
		return nil, err
	}

	chain := rag.NewChain(
		rag.NewRetriever(emb, index, c.RAG.TopK, c.RAG.Threshold()),
		llm,
		rag.OptionsFromConfig(&c.RAG)...,
	)
	store := session.NewStore()
	m := metrics.New()
	return &app{
		agent:   agent.New(chain, index, emb, store, m),
		store:   store,
		metrics: m,
		close:   closeIndex,
	}, nil
}
