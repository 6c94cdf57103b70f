package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sawpanic/wbws/internal/bars"
	"github.com/sawpanic/wbws/internal/config"
)

const (
	appName = "wbws"
	version = "v0.4.0"
)

// Exit codes
const (
	exitOK = iota
	exitFailure
	exitConfig
	exitData
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var level, format string

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Candle reversal signals with higher-timeframe bias and risk simulation",
		Version: version,
		Long: `wbws detects candle-color reversals on a base timeframe, keeps the ones that
agree with the higher-timeframe bias, runs them through momentum filters and a
session gate, and simulates an ATR stop with a fixed reward-to-risk target.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(os.Stderr, level, format)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&level, "log-level", "info", "Log level (trace|debug|info|warn|error)")
	flags.StringVar(&format, "log-format", "auto", "Log format (auto|console|json)")
	rootCmd.SetGlobalNormalizationFunc(wordSepNormalizeFunc)

	rootCmd.AddCommand(
		newBacktestCmd(),
		newSweepCmd(),
		newResampleCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// wordSepNormalizeFunc accepts snake_case spellings of every flag
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func setupLogging(out *os.File, level, format string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = out
	switch format {
	case "console":
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	case "json":
	case "auto":
		if term.IsTerminal(int(out.Fd())) {
			w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
		}
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	log.Logger = zerolog.New(w).With().Timestamp().Str("app", appName).Logger()
	return nil
}

func exitCode(err error) int {
	var ce *config.ConfigurationError
	var de *bars.DataIntegrityError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ce):
		return exitConfig
	case errors.As(err, &de):
		return exitData
	default:
		return exitFailure
	}
}
