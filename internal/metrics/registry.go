package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/wbws/internal/engine"
)

// Registry holds all Prometheus metrics for wbws
type Registry struct {
	// Pipeline output
	Signals  *prometheus.CounterVec
	Trades   *prometheus.CounterVec
	TradeR   prometheus.Histogram
	Bars     prometheus.Counter
	Skipped  prometheus.Counter
	Rejected prometheus.Counter

	// Run execution
	RunDuration  *prometheus.HistogramVec
	StepDuration *prometheus.HistogramVec
	ActiveRuns   prometheus.Gauge
	TotalRuns    *prometheus.CounterVec

	// Result cache
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewRegistry creates the metrics and registers them on reg. A nil reg uses a
// fresh registry so tests and parallel servers never collide.
func NewRegistry(reg *prometheus.Registry) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Registry{
		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wbws_signals_total",
				Help: "Confirmed signals by side and result (survived or rejecting stage)",
			},
			[]string{"side", "result"},
		),

		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wbws_trades_total",
				Help: "Simulated trades by outcome",
			},
			[]string{"outcome"},
		),

		TradeR: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wbws_trade_r_multiple",
				Help:    "Realized R-multiple per simulated trade",
				Buckets: []float64{-1, -0.5, 0, 0.5, 1, 1.5, 2, 3, 5},
			},
		),

		Bars: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wbws_bars_processed_total",
				Help: "Base timeframe bars processed",
			},
		),

		Skipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wbws_signals_skipped_total",
				Help: "Surviving signals that could not open a trade",
			},
		),

		Rejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wbws_candidates_htf_rejected_total",
				Help: "Reversal candidates dropped for higher-timeframe bias",
			},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wbws_run_duration_seconds",
				Help:    "Duration of a full pipeline run in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"result"},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wbws_step_duration_seconds",
				Help:    "Duration of each command step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"step", "result"},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wbws_active_runs",
				Help: "Number of runs currently executing",
			},
		),

		TotalRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wbws_runs_total",
				Help: "Runs finished by result",
			},
			[]string{"result"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wbws_cache_hits_total",
				Help: "Total number of cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wbws_cache_misses_total",
				Help: "Total number of cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		gatherer: reg,
	}

	reg.MustRegister(
		m.Signals,
		m.Trades,
		m.TradeR,
		m.Bars,
		m.Skipped,
		m.Rejected,
		m.RunDuration,
		m.StepDuration,
		m.ActiveRuns,
		m.TotalRuns,
		m.CacheHits,
		m.CacheMisses,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveRun records the output of a finished run
func (m *Registry) ObserveRun(res *engine.Result, d time.Duration) {
	m.RunDuration.WithLabelValues("ok").Observe(d.Seconds())
	m.TotalRuns.WithLabelValues("ok").Inc()
	m.Bars.Add(float64(res.Bars))
	m.Skipped.Add(float64(res.Skipped))
	m.Rejected.Add(float64(res.HTFRejected))

	for _, sig := range res.Signals {
		result := "survived"
		if !sig.Survived {
			result = sig.RejectedBy
		}
		m.Signals.WithLabelValues(sig.Side.String(), result).Inc()
	}
	for _, tr := range res.Trades {
		m.Trades.WithLabelValues(tr.Outcome.String()).Inc()
		m.TradeR.Observe(tr.RMultiple)
	}
}

// ObserveFailure records a run that returned an error
func (m *Registry) ObserveFailure(d time.Duration) {
	m.RunDuration.WithLabelValues("error").Observe(d.Seconds())
	m.TotalRuns.WithLabelValues("error").Inc()
}

// RecordCacheHit records a cache hit for the specified cache type
func (m *Registry) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss for the specified cache type
func (m *Registry) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}

// StepTimer tracks execution time for command steps
type StepTimer struct {
	metrics *Registry
	step    string
	start   time.Time
}

// StartStepTimer begins timing a step
func (m *Registry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{
		metrics: m,
		step:    step,
		start:   time.Now(),
	}
}

// Stop completes the step timing and records the metric
func (st *StepTimer) Stop(result string) time.Duration {
	duration := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(duration.Seconds())

	log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("Step completed")
	return duration
}
