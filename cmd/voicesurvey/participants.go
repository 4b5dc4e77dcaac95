package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/voicesurvey/internal/cli"
	"github.com/spf13/cobra"
)

var participantsCmd = &cobra.Command{
	Use:   "participants",
	Short: "Inspect stored survey participants",
	Long:  `List and inspect participants kept in the configured store.`,
}

var participantsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all participants with their survey status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, backends, err := cli.OpenEngine(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer backends.Close()

		views, err := engine.Participants(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing participants: %w", err)
		}
		return cli.PrintParticipants(cmd.OutOrStdout(), engine.Catalog().Len(), views)
	},
}

var participantsInspectCmd = &cobra.Command{
	Use:   "inspect <call-id>",
	Short: "Print one participant as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		callID := args[0]
		_, backends, err := cli.OpenEngine(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer backends.Close()

		p, err := backends.Store.Find(cmd.Context(), callID)
		if err != nil {
			return fmt.Errorf("error loading participant '%s': %w", callID, err)
		}

		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return fmt.Errorf("error marshaling participant: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(participantsCmd)
	participantsCmd.AddCommand(participantsLsCmd)
	participantsCmd.AddCommand(participantsInspectCmd)
}
