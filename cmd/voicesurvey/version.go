package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/aretw0/voicesurvey"
	"github.com/spf13/cobra"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		release := strings.TrimSpace(voicesurvey.Version)
		if versionShort {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), release)
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "voicesurvey version %s (%s %s/%s)\n",
			release, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return err
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "print the release only")
	rootCmd.AddCommand(versionCmd)
}
