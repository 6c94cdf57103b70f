// Package sweep runs the pipeline over a grid of risk parameters.
package sweep

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/wbws/internal/bars"
	"github.com/sawpanic/wbws/internal/config"
	"github.com/sawpanic/wbws/internal/engine"
	"github.com/sawpanic/wbws/internal/stats"
)

// Grid lists the values tried for each swept parameter
type Grid struct {
	ATRMultipliers []float64
	RewardToRisks  []float64
}

// Size is the number of grid points
func (g Grid) Size() int { return len(g.ATRMultipliers) * len(g.RewardToRisks) }

// Point is the outcome of one parameter combination
type Point struct {
	ATRMultiplier float64       `json:"atr_multiplier"`
	RewardToRisk  float64       `json:"reward_to_risk"`
	ConfigHash    string        `json:"config_hash"`
	Summary       stats.Summary `json:"summary"`
}

// Options tunes a sweep
type Options struct {
	// Concurrency caps parallel runs; zero uses GOMAXPROCS
	Concurrency int
	Logger      zerolog.Logger
}

// Run evaluates every grid point against the same bars. Points come back in
// grid order (atr multiplier major) whatever order they finished in. The
// first failing point cancels the rest.
func Run(ctx context.Context, ltf, htf bars.Series, base config.Config, grid Grid, opts Options) ([]Point, error) {
	if grid.Size() == 0 {
		return nil, fmt.Errorf("sweep grid is empty")
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	points := make([]Point, grid.Size())
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, m := range grid.ATRMultipliers {
		for j, rr := range grid.RewardToRisks {
			idx := i*len(grid.RewardToRisks) + j
			cfg := base
			cfg.Filters = append([]config.FilterConfig(nil), base.Filters...)
			cfg.Risk.ATRMultiplier = m
			cfg.Risk.RewardToRisk = rr

			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				res, err := engine.Run(ltf, htf, cfg, engine.WithLogger(opts.Logger))
				if err != nil {
					return fmt.Errorf("atr_multiplier=%g reward_to_risk=%g: %w", m, rr, err)
				}
				points[idx] = Point{
					ATRMultiplier: m,
					RewardToRisk:  rr,
					ConfigHash:    res.ConfigHash,
					Summary:       stats.Summarize(res),
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

// Rank returns the points ordered by total R, best first. Ties keep grid order.
func Rank(points []Point) []Point {
	out := append([]Point(nil), points...)
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Summary.TotalR > out[b].Summary.TotalR
	})
	return out
}
