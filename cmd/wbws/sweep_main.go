package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/wbws/internal/engine"
	"github.com/sawpanic/wbws/internal/sweep"
)

type sweepOptions struct {
	configPath  string
	barsPath    string
	htfPath     string
	symbol      string
	outputPath  string
	concurrency int
	grid        sweep.Grid
}

func newSweepCmd() *cobra.Command {
	opts := sweepOptions{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the pipeline over a grid of ATR multipliers and reward-to-risk ratios",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "config/wbws.yaml", "Strategy config file")
	f.StringVar(&opts.barsPath, "bars", "", "Base timeframe bar CSV (required)")
	f.StringVar(&opts.htfPath, "htf-bars", "", "Higher timeframe bar CSV; derived from --bars when empty")
	f.StringVar(&opts.symbol, "symbol", "", "Symbol label; defaults to the config symbol")
	f.StringVar(&opts.outputPath, "out", "", "Write the ranked grid as JSON to this file")
	f.IntVar(&opts.concurrency, "concurrency", 0, "Parallel runs (0 = GOMAXPROCS)")
	addGridFlags(f, &opts.grid)
	_ = cmd.MarkFlagRequired("bars")

	return cmd
}

func addGridFlags(f *pflag.FlagSet, g *sweep.Grid) {
	f.Float64SliceVar(&g.ATRMultipliers, "atr-multipliers", []float64{1.0, 1.4, 2.0}, "ATR multipliers to try")
	f.Float64SliceVar(&g.RewardToRisks, "reward-to-risk", []float64{1.5, 2.0, 3.0}, "Reward-to-risk ratios to try")
}

func runSweep(ctx context.Context, out io.Writer, opts sweepOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	in, err := engine.LoadInputs(opts.configPath, opts.barsPath, opts.htfPath, opts.symbol)
	if err != nil {
		return err
	}

	start := time.Now()
	log.Info().Int("points", opts.grid.Size()).Int("ltf_bars", in.LTF.Len()).Msg("Starting sweep")

	points, err := sweep.Run(ctx, in.LTF, in.HTF, in.Config, opts.grid, sweep.Options{
		Concurrency: opts.concurrency,
		Logger:      log.Logger,
	})
	if err != nil {
		return err
	}
	ranked := sweep.Rank(points)
	log.Info().Dur("duration", time.Since(start)).Msg("Sweep complete")

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ATR_MULT\tRR\tTRADES\tWIN_RATE\tTOTAL_R\tEXPECTANCY\tMAX_DD_R")
	for _, p := range ranked {
		s := p.Summary
		fmt.Fprintf(tw, "%g\t%g\t%d\t%.1f%%\t%.2f\t%.3f\t%.2f\n",
			p.ATRMultiplier, p.RewardToRisk, s.Trades, s.WinRate*100, s.TotalR, s.Expectancy, s.MaxDrawdownR)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if opts.outputPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(ranked, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sweep: %w", err)
	}
	if err := os.WriteFile(opts.outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write sweep: %w", err)
	}
	fmt.Fprintf(out, "wrote %s\n", opts.outputPath)
	return nil
}
