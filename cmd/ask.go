package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var askQuestion string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question in a fresh session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		question := askQuestion
		if question == "" {
			question = strings.Join(args, " ")
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		info, err := a.agent.CreateSession(ctx)
		if err != nil {
			return err
		}
		answer, err := a.agent.Chat(ctx, info.SessionID, question)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Fprintf(out, "%s\n\n", question)

		log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		for _, p := range answer.Sources {
			fmt.Fprintf(out, "%s (page %d, chunk %d, score %.3f)\n", p.Source, p.PageNumber, p.ChunkID, p.Score)
		}
		fmt.Fprintln(out)

		log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Fprintf(out, "%s\n\n", answer.Content)
		return nil
	},
}

func init() {
	askCmd.Flags().StringVarP(&askQuestion, "question", "q", "", "question to ask")
	rootCmd.AddCommand(askCmd)
}
