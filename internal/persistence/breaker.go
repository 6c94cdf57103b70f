package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker around a Store
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig opens after five consecutive failures
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "postgres",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerStore stops calling a failing database until it has had time to recover
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker
}

var _ Store = (*BreakerStore)(nil)

// NewBreakerStore wraps inner
func NewBreakerStore(inner Store, cfg BreakerConfig) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Persistence circuit breaker state changed")
		},
		// Lookups of unknown or duplicate runs mean the database answered.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateRun)
		},
	}
	return &BreakerStore{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State reports the breaker state
func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }

func (b *BreakerStore) SaveRun(ctx context.Context, run Run, trades []Trade) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.SaveRun(ctx, run, trades)
	})
	return err
}

func (b *BreakerStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetRun(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Run), nil
}

func (b *BreakerStore) ListRuns(ctx context.Context, tr TimeRange, limit int) ([]Run, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ListRuns(ctx, tr, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Run), nil
}

func (b *BreakerStore) ListTrades(ctx context.Context, runID uuid.UUID) ([]Trade, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ListTrades(ctx, runID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Trade), nil
}

func (b *BreakerStore) CountByOutcome(ctx context.Context, runID uuid.UUID) (map[string]int64, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.CountByOutcome(ctx, runID)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]int64), nil
}

func (b *BreakerStore) Ping(ctx context.Context) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Ping(ctx)
	})
	return err
}
