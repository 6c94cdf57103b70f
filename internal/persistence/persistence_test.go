package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/wbws/internal/engine"
	"github.com/sawpanic/wbws/internal/risk"
	"github.com/sawpanic/wbws/internal/signals"
)

type fakeStore struct {
	err   error
	calls int
	runs  map[uuid.UUID]Run
}

func (f *fakeStore) SaveRun(_ context.Context, run Run, _ []Trade) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.runs == nil {
		f.runs = make(map[uuid.UUID]Run)
	}
	f.runs[run.ID] = run
	return nil
}

func (f *fakeStore) GetRun(_ context.Context, id uuid.UUID) (*Run, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	run, ok := f.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &run, nil
}

func (f *fakeStore) ListRuns(context.Context, TimeRange, int) ([]Run, error) {
	f.calls++
	return nil, f.err
}

func (f *fakeStore) ListTrades(context.Context, uuid.UUID) ([]Trade, error) {
	f.calls++
	return []Trade{}, f.err
}

func (f *fakeStore) CountByOutcome(context.Context, uuid.UUID) (map[string]int64, error) {
	f.calls++
	return map[string]int64{}, f.err
}

func (f *fakeStore) Ping(context.Context) error {
	f.calls++
	return f.err
}

func TestNewRunSummarizesResult(t *testing.T) {
	ts := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	res := &engine.Result{
		Symbol:     "BTCUSDT",
		ConfigHash: "h",
		Bars:       120,
		Start:      ts,
		End:        ts.Add(2 * time.Hour),
		Signals: []signals.Signal{
			{Index: 19, Side: signals.Sell, Survived: true},
			{Index: 40, Side: signals.Buy, RejectedBy: "rsi"},
		},
		Trades: []risk.Trade{
			{SignalIndex: 19, Side: signals.Sell, Outcome: risk.Win, ExitReason: risk.TakeProfit, RMultiple: 2},
		},
	}
	id := uuid.New()

	run := NewRun(id, "wbws", res, ts)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, 120, run.Bars)
	assert.Equal(t, 2, run.Signals)
	assert.Equal(t, 1, run.Survived)
	assert.Equal(t, 1, run.Trades)
	assert.InDelta(t, 2.0, run.TotalR, 1e-9)

	rows := NewTrades(id, res.Trades)
	require.Len(t, rows, 1)
	assert.Equal(t, "sell", rows[0].Side)
	assert.Equal(t, "win", rows[0].Outcome)
	assert.Equal(t, "take_profit", rows[0].ExitReason)
	assert.Equal(t, id, rows[0].RunID)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &fakeStore{err: errors.New("connection refused")}
	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 3
	b := NewBreakerStore(inner, cfg)

	for i := 0; i < 3; i++ {
		assert.Error(t, b.Ping(context.Background()))
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.SaveRun(context.Background(), Run{ID: uuid.New()}, nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, inner.calls, "open breaker must not reach the store")
}

func TestBreakerTreatsNotFoundAsSuccess(t *testing.T) {
	inner := &fakeStore{}
	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 1
	b := NewBreakerStore(inner, cfg)

	_, err := b.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, gobreaker.StateClosed, b.State())

	run := Run{ID: uuid.New(), Name: "x"}
	require.NoError(t, b.SaveRun(context.Background(), run, nil))
	got, err := b.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Name)
}

func TestHealthReportsError(t *testing.T) {
	hc := Health(context.Background(), &fakeStore{err: errors.New("down")})
	assert.False(t, hc.Healthy)
	assert.Equal(t, "down", hc.Error)
}
