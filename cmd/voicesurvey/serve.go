package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/voicesurvey/internal/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Starts the survey engine behind the /callStep webhook, together with the
/participants, /admin, /events, /play, /health and /metrics endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return cli.Serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.StringP("addr", "a", "", "Address to listen on (default :8080)")
	flags.String("public-url", "", "Externally reachable /callStep URL")
	flags.Bool("strict", false, "Reject malformed callback payloads with 422")

	mustBind("server.addr", flags.Lookup("addr"))
	mustBind("server.public_url", flags.Lookup("public-url"))
	mustBind("survey.strict_payloads", flags.Lookup("strict"))
}

func mustBind(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
