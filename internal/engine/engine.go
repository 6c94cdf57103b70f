package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/wbws/internal/bars"
	"github.com/sawpanic/wbws/internal/candles"
	"github.com/sawpanic/wbws/internal/config"
	"github.com/sawpanic/wbws/internal/filters"
	"github.com/sawpanic/wbws/internal/htf"
	"github.com/sawpanic/wbws/internal/indicators"
	"github.com/sawpanic/wbws/internal/reversal"
	"github.com/sawpanic/wbws/internal/risk"
	"github.com/sawpanic/wbws/internal/signals"
)

// Result is everything one run decided, ordered by bar index.
type Result struct {
	Symbol     string           `json:"symbol"`
	ConfigHash string           `json:"config_hash"`
	Signals    []signals.Signal `json:"signals"`
	Trades     []risk.Trade     `json:"trades"`

	Bars        int `json:"bars"`
	HTFBars     int `json:"htf_bars"`
	Candidates  int `json:"candidates"`
	HTFRejected int `json:"htf_rejected"`
	Skipped     int `json:"skipped"`

	CandleCounts  map[string]int `json:"candle_counts"`
	StratCounts   map[string]int `json:"strat_counts"`
	HTFBiasCounts map[string]int `json:"htf_bias_counts"`

	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

type options struct {
	logger   zerolog.Logger
	registry *filters.Registry
}

// Option tunes a run
type Option func(*options)

// WithLogger routes run diagnostics to l
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry resolves filter names against r instead of filters.Default
func WithRegistry(r *filters.Registry) Option {
	return func(o *options) { o.registry = r }
}

// Run executes the full pipeline over ltf. An empty htf series is derived
// from ltf by resampling to the configured trend timeframe.
//
// Configuration errors are returned before any bar is read. Data integrity
// errors halt the run. Signals short on indicator history are annotated and
// produce no trade.
func Run(ltf, htfSeries bars.Series, cfg config.Config, opts ...Option) (*Result, error) {
	o := options{logger: zerolog.Nop(), registry: filters.Default}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	ltfDur, err := cfg.LTFPeriod()
	if err != nil {
		return nil, err
	}
	htfDur, err := cfg.HTFPeriod()
	if err != nil {
		return nil, err
	}
	chain, err := cfg.FilterChain(o.registry)
	if err != nil {
		return nil, err
	}
	gate, err := cfg.SessionGate()
	if err != nil {
		return nil, err
	}
	rp, err := cfg.RiskParams()
	if err != nil {
		return nil, err
	}
	manager, err := risk.NewManager(rp)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "risk", Reason: err.Error()}
	}

	ltf, err = adoptTimeframe(ltf, ltfDur, "timeframes.ltf")
	if err != nil {
		return nil, err
	}
	if ltf.Location == nil {
		ltf.Location = loc
	}
	if err := ltf.Validate("ltf"); err != nil {
		return nil, err
	}

	if htfSeries.Len() == 0 {
		htfSeries, err = bars.Resample(ltf, htfDur, loc)
		if err != nil {
			return nil, &config.ConfigurationError{Field: "timeframes.htf", Reason: err.Error()}
		}
		o.logger.Debug().Int("htf_bars", htfSeries.Len()).Dur("period", htfDur).Msg("Derived HTF series from LTF")
	} else {
		htfSeries, err = adoptTimeframe(htfSeries, htfDur, "timeframes.htf")
		if err != nil {
			return nil, err
		}
	}
	if htfSeries.Location == nil {
		htfSeries.Location = loc
	}
	if err := htfSeries.Validate("htf"); err != nil {
		return nil, err
	}

	classes := candles.ClassifyAll(ltf, cfg.Candles.DojiThreshold)
	contexts, err := htf.Build(ltf, htfSeries, cfg.Candles.DojiThreshold)
	if err != nil {
		if errors.Is(err, htf.ErrTimeframeOrder) {
			return nil, &config.ConfigurationError{Field: "timeframes.htf", Reason: err.Error()}
		}
		return nil, err
	}
	candidates := reversal.Scan(classes, cfg.Reversal.RunLength, cfg.Reversal.StrengthThreshold)

	res := &Result{
		Symbol:        ltf.Symbol,
		ConfigHash:    cfg.Hash(),
		Signals:       []signals.Signal{},
		Trades:        []risk.Trade{},
		Bars:          ltf.Len(),
		HTFBars:       htfSeries.Len(),
		Candidates:    len(candidates),
		CandleCounts:  make(map[string]int),
		StratCounts:   make(map[string]int),
		HTFBiasCounts: make(map[string]int),
	}
	if ltf.Len() > 0 {
		res.Start = ltf.Bars[0].Timestamp
		res.End = ltf.Bars[ltf.Len()-1].Timestamp
	}
	for i, c := range classes {
		res.CandleCounts[c.Type.String()]++
		res.HTFBiasCounts[contexts[i].Bias.String()]++
	}
	for _, s := range candles.StratSeries(ltf)[min(1, ltf.Len()):] {
		res.StratCounts[s.String()]++
	}

	composer := signals.Composer{RequireAlignment: cfg.HTF.RequireAlignment}
	history := indicators.NewHistory(ltf)

	for _, cand := range candidates {
		idx := cand.Index
		sig, ok := composer.Compose(cand, ltf.Bars[idx].Timestamp, contexts[idx])
		if !ok {
			res.HTFRejected++
			continue
		}

		window := history.At(idx)
		sig = chain.Apply(sig, window)
		if sig.Survived && !gate.Allows(sig.Timestamp) {
			sig = sig.Rejected(signals.RejectedBySession)
		}

		if sig.Survived {
			trade, err := manager.Open(sig, window, ltf)
			var skip *risk.SkipError
			switch {
			case errors.As(err, &skip):
				sig = sig.Annotated(skip.Annotation)
				res.Skipped++
			case err != nil:
				return nil, fmt.Errorf("signal at bar %d: %w", idx, err)
			default:
				res.Trades = append(res.Trades, trade)
			}
		}

		o.logger.Debug().
			Int("index", idx).
			Str("side", sig.Side.String()).
			Bool("survived", sig.Survived).
			Str("rejected_by", sig.RejectedBy).
			Msg("Signal evaluated")
		res.Signals = append(res.Signals, sig)
	}

	o.logger.Info().
		Str("symbol", res.Symbol).
		Int("bars", res.Bars).
		Int("candidates", res.Candidates).
		Int("signals", len(res.Signals)).
		Int("trades", len(res.Trades)).
		Int("skipped", res.Skipped).
		Msg("Run complete")

	return res, nil
}

func adoptTimeframe(s bars.Series, want time.Duration, field string) (bars.Series, error) {
	if s.Timeframe == 0 {
		s.Timeframe = want
		return s, nil
	}
	if s.Timeframe != want {
		return s, &config.ConfigurationError{
			Field:  field,
			Reason: fmt.Sprintf("series timeframe %v differs from configured %v", s.Timeframe, want),
		}
	}
	return s, nil
}
