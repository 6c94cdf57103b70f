package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/wbws/internal/bars"
)

func newResampleCmd() *cobra.Command {
	var (
		inPath, outPath, symbol, tz string
		from, to                    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "resample",
		Short: "Aggregate a bar CSV into a longer timeframe",
		Long: `Buckets start on multiples of the target period in the given timezone, so
daily bars begin at local midnight. Buckets without bars are dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("invalid timezone %q: %w", tz, err)
			}
			s, err := bars.LoadCSV(inPath, symbol, from, loc)
			if err != nil {
				return err
			}
			if err := s.Validate("input"); err != nil {
				return err
			}
			agg, err := bars.Resample(s, to, loc)
			if err != nil {
				return err
			}

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outPath, err)
			}
			defer f.Close()
			if err := bars.WriteCSV(f, agg); err != nil {
				return err
			}

			log.Info().Int("in", s.Len()).Int("out", agg.Len()).Dur("period", to).Str("file", outPath).Msg("Resampled bars")
			return f.Close()
		},
	}

	f := cmd.Flags()
	f.StringVar(&inPath, "in", "", "Input bar CSV (required)")
	f.StringVar(&outPath, "out", "", "Output bar CSV (required)")
	f.StringVar(&symbol, "symbol", "", "Symbol label")
	f.StringVar(&tz, "timezone", "Europe/Berlin", "IANA timezone for naive timestamps and bucket alignment")
	f.DurationVar(&from, "from", time.Minute, "Timeframe of the input bars")
	f.DurationVar(&to, "to", time.Hour, "Target timeframe")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
