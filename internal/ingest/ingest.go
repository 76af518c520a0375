package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"document-chat/internal/models"
	"document-chat/internal/parser"
)

// Index is the write side of a vector index.
type Index interface {
	Exists(ctx context.Context) (bool, error)
	Add(ctx context.Context, passages []models.Passage) error
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Splitter interface {
	Split(units []models.TextUnit) []models.Passage
}

type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Item is the outcome for one file.
type Item struct {
	Path     string `json:"path"`
	Status   Status `json:"status"`
	Passages int    `json:"passages"`
	Error    string `json:"error,omitempty"`
}

type Summary struct {
	Dir       string `json:"dir"`
	Files     int    `json:"files"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Passages  int    `json:"passages"`
	DryRun    bool   `json:"dry_run"`
	Items     []Item `json:"items"`
}

func (s *Summary) record(item Item) {
	s.Items = append(s.Items, item)
	switch item.Status {
	case StatusProcessed:
		s.Processed++
		s.Passages += item.Passages
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

// Observer is told about every finished file, e.g. to update metrics.
type Observer func(item Item)

type Pipeline struct {
	index     Index
	embedder  Embedder
	splitter  Splitter
	batchSize int
	dryRun    bool
	observe   Observer
	prepare   func(ctx context.Context) error
}

type Option func(*Pipeline)

// WithBatchSize sets how many passages are embedded per request.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithDryRun makes the pipeline normalize and chunk without embedding or writing.
func WithDryRun(dryRun bool) Option {
	return func(p *Pipeline) { p.dryRun = dryRun }
}

func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observe = o }
}

// WithPrepare runs fn once the document directory is known to hold files and
// before the index is checked, e.g. to create or empty the index. It is not
// called on a dry run.
func WithPrepare(fn func(ctx context.Context) error) Option {
	return func(p *Pipeline) { p.prepare = fn }
}

func NewPipeline(index Index, embedder Embedder, splitter Splitter, opts ...Option) *Pipeline {
	p := &Pipeline{
		index:     index,
		embedder:  embedder,
		splitter:  splitter,
		batchSize: 32,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest indexes every regular file under dir, in lexical path order.
// Files that cannot be parsed or embedded are recorded and skipped over; the
// error return is reserved for conditions that stop the whole run.
func (p *Pipeline) Ingest(ctx context.Context, dir string) (*Summary, error) {
	files, err := listFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files in %s", models.ErrEmptyInput, dir)
	}

	if !p.dryRun && p.prepare != nil {
		if err := p.prepare(ctx); err != nil {
			return nil, err
		}
	}

	if !p.dryRun {
		ok, err := p.index.Exists(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, models.ErrIndexNotFound
		}
	}

	summary := &Summary{Dir: dir, Files: len(files), DryRun: p.dryRun}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		item := p.ingestFile(ctx, path)
		summary.record(item)
		if p.observe != nil {
			p.observe(item)
		}
	}

	log.Info().
		Str("dir", dir).
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("passages", summary.Passages).
		Bool("dry_run", p.dryRun).
		Msg("Ingestion finished")
	return summary, nil
}

func (p *Pipeline) ingestFile(ctx context.Context, path string) Item {
	item := Item{Path: path}

	doc, err := parser.Normalize(path)
	if err != nil {
		item.Error = err.Error()
		if errors.Is(err, models.ErrUnsupportedInput) {
			log.Warn().Str("file", path).Msg("Skipping unsupported file")
			item.Status = StatusSkipped
			return item
		}
		log.Error().Err(err).Str("file", path).Msg("Error parsing document")
		item.Status = StatusFailed
		return item
	}

	passages := p.splitter.Split(doc.Units)
	if len(passages) == 0 {
		log.Warn().Str("file", path).Msg("No text extracted")
		item.Status = StatusSkipped
		item.Error = models.ErrEmptyInput.Error()
		return item
	}
	item.Passages = len(passages)

	if p.dryRun {
		item.Status = StatusProcessed
		return item
	}

	if err := p.embed(ctx, passages); err != nil {
		log.Error().Err(err).Str("file", path).Msg("Error generating embedding")
		item.Status, item.Error, item.Passages = StatusFailed, err.Error(), 0
		return item
	}
	if err := p.index.Add(ctx, passages); err != nil {
		log.Error().Err(err).Str("file", path).Msg("Error adding passages to vector index")
		item.Status, item.Error, item.Passages = StatusFailed, err.Error(), 0
		return item
	}

	log.Debug().Str("file", path).Int("passages", len(passages)).Msg("Indexed document")
	item.Status = StatusProcessed
	return item
}

func (p *Pipeline) embed(ctx context.Context, passages []models.Passage) error {
	for start := 0; start < len(passages); start += p.batchSize {
		end := min(start+p.batchSize, len(passages))
		texts := make([]string, 0, end-start)
		for _, passage := range passages[start:end] {
			texts = append(texts, passage.Content)
		}
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d passages", models.ErrServiceUnavailable, len(vectors), len(texts))
		}
		for i, v := range vectors {
			passages[start+i].Embedding = v
		}
	}
	return nil
}

func listFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrDocumentsNotFound, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", models.ErrDocumentsNotFound, dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
