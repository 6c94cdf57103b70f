package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/wbws/internal/engine"
	"github.com/sawpanic/wbws/internal/risk"
	"github.com/sawpanic/wbws/internal/stats"
)

var (
	// ErrNotFound is returned when a run id has no stored record
	ErrNotFound = errors.New("run not found")
	// ErrDuplicateRun is returned when a run id was already saved
	ErrDuplicateRun = errors.New("duplicate run")
)

// TimeRange bounds queries on run creation time
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Run is the stored header of one pipeline run
type Run struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Symbol     string    `db:"symbol" json:"symbol"`
	ConfigHash string    `db:"config_hash" json:"config_hash"`
	StartTs    time.Time `db:"start_ts" json:"start"`
	EndTs      time.Time `db:"end_ts" json:"end"`
	Bars       int       `db:"bars" json:"bars"`
	Signals    int       `db:"signals" json:"signals"`
	Survived   int       `db:"survived" json:"survived"`
	Trades     int       `db:"trades" json:"trades"`
	WinRate    float64   `db:"win_rate" json:"win_rate"`
	TotalR     float64   `db:"total_r" json:"total_r"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Trade is one simulated trade row, keyed by run
type Trade struct {
	RunID        uuid.UUID `db:"run_id" json:"run_id"`
	SignalIndex  int       `db:"signal_index" json:"signal_index"`
	Side         string    `db:"side" json:"side"`
	EntryTs      time.Time `db:"entry_ts" json:"entry_time"`
	EntryPrice   float64   `db:"entry_price" json:"entry_price"`
	StopLoss     float64   `db:"stop_loss" json:"stop_loss"`
	TakeProfit   float64   `db:"take_profit" json:"take_profit"`
	StopDistance float64   `db:"stop_distance" json:"stop_distance"`
	Capped       bool      `db:"capped" json:"capped"`
	ExitIndex    int       `db:"exit_index" json:"exit_index"`
	ExitTs       time.Time `db:"exit_ts" json:"exit_time"`
	ExitPrice    float64   `db:"exit_price" json:"exit_price"`
	Outcome      string    `db:"outcome" json:"outcome"`
	ExitReason   string    `db:"exit_reason" json:"exit_reason"`
	BarsHeld     int       `db:"bars_held" json:"bars_held"`
	RMultiple    float64   `db:"r_multiple" json:"r_multiple"`
}

// NewRun summarizes res into a run header
func NewRun(id uuid.UUID, name string, res *engine.Result, createdAt time.Time) Run {
	sum := stats.Summarize(res)
	return Run{
		ID:         id,
		Name:       name,
		Symbol:     res.Symbol,
		ConfigHash: res.ConfigHash,
		StartTs:    res.Start,
		EndTs:      res.End,
		Bars:       res.Bars,
		Signals:    sum.Signals,
		Survived:   sum.Survived,
		Trades:     sum.Trades,
		WinRate:    sum.WinRate,
		TotalR:     sum.TotalR,
		CreatedAt:  createdAt,
	}
}

// NewTrades converts simulated trades into rows for runID
func NewTrades(runID uuid.UUID, trades []risk.Trade) []Trade {
	out := make([]Trade, 0, len(trades))
	for _, t := range trades {
		out = append(out, Trade{
			RunID:        runID,
			SignalIndex:  t.SignalIndex,
			Side:         t.Side.String(),
			EntryTs:      t.EntryTime,
			EntryPrice:   t.EntryPrice,
			StopLoss:     t.StopLoss,
			TakeProfit:   t.TakeProfit,
			StopDistance: t.StopDistance,
			Capped:       t.Capped,
			ExitIndex:    t.ExitIndex,
			ExitTs:       t.ExitTime,
			ExitPrice:    t.ExitPrice,
			Outcome:      t.Outcome.String(),
			ExitReason:   t.ExitReason.String(),
			BarsHeld:     t.BarsHeld,
			RMultiple:    t.RMultiple,
		})
	}
	return out
}

// Store persists runs together with their trades
type Store interface {
	// SaveRun writes the run header and all its trades atomically
	SaveRun(ctx context.Context, run Run, trades []Trade) error

	// GetRun returns ErrNotFound for unknown ids
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)

	// ListRuns returns runs created within tr, newest first
	ListRuns(ctx context.Context, tr TimeRange, limit int) ([]Run, error)

	// ListTrades returns the trades of a run ordered by signal index
	ListTrades(ctx context.Context, runID uuid.UUID) ([]Trade, error)

	// CountByOutcome groups a run's trades by outcome
	CountByOutcome(ctx context.Context, runID uuid.UUID) (map[string]int64, error)

	Ping(ctx context.Context) error
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool      `json:"healthy"`
	Error          string    `json:"error,omitempty"`
	LastCheck      time.Time `json:"last_check"`
	ResponseTimeMS int64     `json:"response_time_ms"`
}

// Health pings s and reports how long it took
func Health(ctx context.Context, s Store) HealthCheck {
	start := time.Now()
	err := s.Ping(ctx)
	hc := HealthCheck{
		Healthy:        err == nil,
		LastCheck:      start,
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		hc.Error = err.Error()
	}
	return hc
}
