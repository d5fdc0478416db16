package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/portfoliosim/internal/models"
)

const (
	appName = "portfoliosim"
	version = "v0.4.0"
)

// Exit codes
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfigError = 2
	exitDataError   = 3
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Daily multi-asset portfolio simulation",
		Version: version,
		Long: `portfoliosim replays daily price bars against target portfolio weights,
applying commission, slippage, stop-loss and trailing-stop exits, and writes
the trade ledger, equity curve and performance summary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			jsonLogs, _ := cmd.Flags().GetBool("json-logs")
			return setupLogging(level, jsonLogs)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default configs/portfoliosim.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Force JSON log lines even on a terminal")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

func setupLogging(level string, jsonLogs bool) error {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return &models.ConfigError{Field: "log-level", Reason: fmt.Sprintf("unknown level %q", level)}
	}
	zerolog.SetGlobalLevel(lvl)

	if !jsonLogs && term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, models.ErrConfiguration):
		return exitConfigError
	case errors.Is(err, models.ErrDataQuality):
		return exitDataError
	default:
		return exitFailure
	}
}
