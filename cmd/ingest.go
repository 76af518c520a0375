package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"document-chat/internal/chromemdb"
	"document-chat/internal/chunker"
	"document-chat/internal/embedding"
	"document-chat/internal/helper"
	"document-chat/internal/ingest"
	"document-chat/internal/metrics"
	"document-chat/internal/models"
)

var (
	ingestDir         string
	ingestCreateIndex bool
	ingestDryRun      bool
	ingestExport      bool
	ingestReset       bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Parse, chunk, embed and index every document in a directory",
	Long: `Builds the vector index from a document directory. The index location must
already exist unless --create-index is given; re-running appends duplicates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dir := ingestDir
		if dir == "" {
			dir = cfg.Fetch.DocumentDir
		}

		emb, err := embedding.New(&cfg.EmbedLLM, cfg.RAG.VectorSize)
		if err != nil {
			return err
		}
		index, closeIndex, err := openIndex(cfg, emb)
		if err != nil {
			return err
		}
		defer closeIndex()

		m := metrics.New()
		defer writeMetrics(m)
		pipeline := ingest.NewPipeline(index, emb, chunker.New(cfg.RAG.ChunkSize, cfg.RAG.Overlap()),
			ingest.WithBatchSize(cfg.EmbedLLM.BatchSize),
			ingest.WithDryRun(ingestDryRun),
			ingest.WithObserver(func(item ingest.Item) { m.IngestFile(string(item.Status), item.Passages) }),
			ingest.WithPrepare(func(ctx context.Context) error { return prepareIndex(ctx, index) }),
		)

		summary, err := pipeline.Ingest(ctx, dir)
		if errors.Is(err, models.ErrIndexNotFound) {
			return fmt.Errorf("%w (run with --create-index to create it)", err)
		}
		if err != nil {
			return err
		}
		helper.PrettyPrint(cmd.OutOrStdout(), summary)

		if ingestExport && !ingestDryRun {
			manager, ok := index.(*chromemdb.VectorDBManager)
			if !ok {
				return errors.New("--export is only supported by the chromem vector store")
			}
			file, err := manager.Export(ctx)
			if err != nil {
				return err
			}
			log.Info().Str("file", file).Msg("Exported collection")
		}
		return nil
	},
}

// prepareIndex applies --create-index and --reset. The pipeline calls it only
// once the document directory is known to hold files.
func prepareIndex(ctx context.Context, index vectorIndex) error {
	if ingestCreateIndex {
		if err := createIndex(ctx, cfg, index); err != nil {
			return err
		}
	}
	if ingestReset {
		if err := resetIndex(ctx, index); err != nil {
			return err
		}
		log.Info().Msg("Removed existing passages")
	}
	return nil
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestDir, "dir", "d", "", "document directory (defaults to fetch.document_dir)")
	ingestCmd.Flags().BoolVar(&ingestCreateIndex, "create-index", false, "create the index location if it is missing")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "parse and chunk only, do not embed or store")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "remove existing passages before indexing")
	ingestCmd.Flags().BoolVar(&ingestExport, "export", false, "export the collection to a single file after indexing")
	rootCmd.AddCommand(ingestCmd)
}
