package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/wbws/internal/engine"
	"github.com/sawpanic/wbws/internal/persistence"
	"github.com/sawpanic/wbws/internal/persistence/postgres"
	"github.com/sawpanic/wbws/internal/report"
	"github.com/sawpanic/wbws/internal/stats"
)

type backtestOptions struct {
	configPath string
	barsPath   string
	htfPath    string
	symbol     string
	outputDir  string
	persist    bool
	dsn        string
}

func newBacktestCmd() *cobra.Command {
	opts := backtestOptions{}

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run the signal pipeline over a bar file and write the execution report",
		Long: `Reads the strategy config and the base-timeframe bars, derives or loads the
higher-timeframe bars, and writes <out>/<date>/<run-id>_report.{json,md} plus the
signals and trades CSV tables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "config/wbws.yaml", "Strategy config file")
	f.StringVar(&opts.barsPath, "bars", "", "Base timeframe bar CSV (required)")
	f.StringVar(&opts.htfPath, "htf-bars", "", "Higher timeframe bar CSV; derived from --bars when empty")
	f.StringVar(&opts.symbol, "symbol", "", "Symbol label; defaults to the config symbol")
	f.StringVar(&opts.outputDir, "out", "out/backtest", "Report output directory")
	f.BoolVar(&opts.persist, "persist", false, "Store the run and its trades in Postgres")
	f.StringVar(&opts.dsn, "dsn", os.Getenv("DATABASE_URL"), "Postgres DSN for --persist (default $DATABASE_URL)")
	_ = cmd.MarkFlagRequired("bars")

	return cmd
}

func runBacktest(ctx context.Context, out io.Writer, opts backtestOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	absOutputDir, err := filepath.Abs(opts.outputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}

	in, err := engine.LoadInputs(opts.configPath, opts.barsPath, opts.htfPath, opts.symbol)
	if err != nil {
		return err
	}

	log.Info().
		Str("config", opts.configPath).
		Str("bars", opts.barsPath).
		Str("htf_bars", opts.htfPath).
		Int("ltf_bars", in.LTF.Len()).
		Str("output_dir", absOutputDir).
		Msg("Starting backtest")

	res, err := engine.Run(in.LTF, in.HTF, in.Config, engine.WithLogger(log.Logger))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	runID := uuid.New()
	rep := report.New(runID.String(), in.Config, res, now)
	paths, err := report.NewWriter(absOutputDir, now).WriteAll(rep)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if opts.persist {
		if err := persistRun(ctx, opts.dsn, persistence.NewRun(runID, in.Config.Name, res, now), persistence.NewTrades(runID, res.Trades)); err != nil {
			return err
		}
	}

	printSummary(out, runID.String(), rep.Summary, paths)
	return nil
}

func persistRun(ctx context.Context, dsn string, run persistence.Run, trades []persistence.Trade) error {
	cfg := postgres.DefaultConfig()
	cfg.DSN = dsn
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store := persistence.NewBreakerStore(postgres.NewStore(db, cfg.QueryTimeout), persistence.DefaultBreakerConfig())
	if err := store.SaveRun(ctx, run, trades); err != nil {
		return fmt.Errorf("failed to persist run %s: %w", run.ID, err)
	}
	log.Info().Str("run_id", run.ID.String()).Int("trades", len(trades)).Msg("Run persisted")
	return nil
}

func printSummary(out io.Writer, runID string, s stats.Summary, paths []string) {
	fmt.Fprintf(out, "Run %s\n", runID)
	fmt.Fprintf(out, "  candidates %d, htf rejected %d, signals %d, survived %d, skipped %d\n",
		s.Candidates, s.HTFRejected, s.Signals, s.Survived, s.Skipped)
	fmt.Fprintf(out, "  trades %d (win %d / loss %d / expired %d), win rate %.1f%%\n",
		s.Trades, s.Wins, s.Losses, s.Expired, s.WinRate*100)
	fmt.Fprintf(out, "  total R %.2f, expectancy %.3f R, max drawdown %.2f R\n",
		s.TotalR, s.Expectancy, s.MaxDrawdownR)
	for _, p := range paths {
		fmt.Fprintf(out, "  wrote %s\n", p)
	}
}
