package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/voicesurvey/internal/config"
	"github.com/aretw0/voicesurvey/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	v       = viper.New()
	cfg     *config.Config
	logger  *slog.Logger
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "voicesurvey",
	Short: "voicesurvey runs automated voice surveys over telephony webhooks",
	Long: `voicesurvey answers the telephony platform's call-flow webhook, asks a fixed
list of questions, records one answer per question and stores them per call.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		level, err := logging.ParseLevel(loaded.Log.Level)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.NewWithWriter(cmd.ErrOrStderr(), level, loaded.Log.Format)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	flags.String("questions", "", "Question catalog file (.json or .yaml)")
	flags.String("store", "", "Participant store: memory, redis, mongo, sqlite or postgres")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: text or json")

	mustBind("survey.questions", flags.Lookup("questions"))
	mustBind("store.type", flags.Lookup("store"))
	mustBind("log.level", flags.Lookup("log-level"))
	mustBind("log.format", flags.Lookup("log-format"))
}
