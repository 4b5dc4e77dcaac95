package main

import (
	"github.com/aretw0/voicesurvey/internal/cli"
	"github.com/aretw0/voicesurvey/pkg/adapters/catalog"
	"github.com/spf13/cobra"
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Print the question catalog",
	Long:  `Loads the configured question file and prints the questions in the order they are asked.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := catalog.LoadFile(cmd.Context(), cfg.Survey.Questions)
		if err != nil {
			return err
		}
		return cli.PrintQuestions(cmd.OutOrStdout(), c)
	},
}

func init() {
	rootCmd.AddCommand(questionsCmd)
}
