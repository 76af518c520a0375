package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"document-chat/internal/config"
	"document-chat/internal/helper"
)

const configFilePath = "./configs/config.yaml"

var (
	cfgPath     string
	metricsFile string
	cfg         *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "document-chat",
	Short: "Retrieval-augmented chat over a document collection",
	Long: `Indexes PDF, HTML and office documents into a vector store and answers
questions about them through a session-based chat API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		helper.SetupLogger(cfg.Log.Level, cfg.Log.Format)
		log.Debug().Interface("config", redacted(cfg)).Msg("Loaded config")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", configFilePath, "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write run metrics to this file in Prometheus text format (ingest, fetch)")
}

// redacted returns a copy of cfg safe to log.
func redacted(c *config.Config) config.Config {
	out := *c
	if out.EmbedLLM.Key != "" {
		out.EmbedLLM.Key = "***"
	}
	if out.ChatLLM.Key != "" {
		out.ChatLLM.Key = "***"
	}
	if out.Database.Password != "" {
		out.Database.Password = "***"
	}
	if out.VectorStore.EncryptionKey != "" {
		out.VectorStore.EncryptionKey = "***"
	}
	return out
}

func main() {
	helper.SetupLogger("info", "console")
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
