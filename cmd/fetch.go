package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"document-chat/internal/fetcher"
	"document-chat/internal/metrics"
)

var (
	fetchInput string
	fetchOut   string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the documents listed in a workbook or text file",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := fetchOut
		if out == "" {
			out = cfg.Fetch.DocumentDir
		}

		targets, err := fetcher.ReadTargets(fetchInput, cfg.Fetch.NameColumn, cfg.Fetch.URLColumn)
		if err != nil {
			return err
		}
		log.Info().Int("targets", len(targets)).Str("input", fetchInput).Msg("Found URLs")

		m := metrics.New()
		defer writeMetrics(m)
		f := fetcher.New(&cfg.Fetch, out, fetcher.WithObserver(func(r fetcher.Result) { m.Fetch(r.OK()) }))
		results, err := f.FetchAll(cmd.Context(), targets)

		failed := 0
		for _, r := range results {
			if !r.OK() {
				failed++
			}
		}
		log.Info().
			Int("downloaded", len(results)-failed).
			Int("failed", failed).
			Str("dir", out).
			Msg("All downloads completed")
		return err
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchInput, "input", "i", "", "XLSX workbook or text file with the URLs")
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "output directory (defaults to fetch.document_dir)")
	_ = fetchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(fetchCmd)
}
