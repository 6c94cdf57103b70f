package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/wbws/internal/persistence"
)

const uniqueViolation = "23505"

// store implements persistence.Store for PostgreSQL
type store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewStore creates a PostgreSQL run store. Every call is bounded by timeout.
func NewStore(db *sqlx.DB, timeout time.Duration) persistence.Store {
	return &store{db: db, timeout: timeout}
}

const insertRun = `
	INSERT INTO wbws_runs (id, name, symbol, config_hash, start_ts, end_ts, bars, signals, survived, trades, win_rate, total_r, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

const insertTrade = `
	INSERT INTO wbws_trades (run_id, signal_index, side, entry_ts, entry_price, stop_loss, take_profit, stop_distance,
		capped, exit_index, exit_ts, exit_price, outcome, exit_reason, bars_held, r_multiple)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

// SaveRun inserts the header and the trades in one transaction
func (s *store) SaveRun(ctx context.Context, run persistence.Run, trades []persistence.Trade) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout*time.Duration(len(trades)/100+1))
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, insertRun,
		run.ID, run.Name, run.Symbol, run.ConfigHash, run.StartTs, run.EndTs,
		run.Bars, run.Signals, run.Survived, run.Trades, run.WinRate, run.TotalR, run.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", persistence.ErrDuplicateRun, run.ID)
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(trades) > 0 {
		stmt, err := tx.PrepareContext(ctx, insertTrade)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, t := range trades {
			if t.RunID != run.ID {
				return fmt.Errorf("trade for signal %d belongs to run %s, not %s", t.SignalIndex, t.RunID, run.ID)
			}
			_, err = stmt.ExecContext(ctx,
				t.RunID, t.SignalIndex, t.Side, t.EntryTs, t.EntryPrice, t.StopLoss, t.TakeProfit, t.StopDistance,
				t.Capped, t.ExitIndex, t.ExitTs, t.ExitPrice, t.Outcome, t.ExitReason, t.BarsHeld, t.RMultiple)
			if err != nil {
				return fmt.Errorf("failed to insert trade in batch: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `id, name, symbol, config_hash, start_ts, end_ts, bars, signals, survived, trades, win_rate, total_r, created_at`

func (s *store) GetRun(ctx context.Context, id uuid.UUID) (*persistence.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var run persistence.Run
	err := s.db.GetContext(ctx, &run, `SELECT `+runColumns+` FROM wbws_runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", persistence.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (s *store) ListRuns(ctx context.Context, tr persistence.TimeRange, limit int) ([]persistence.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	runs := []persistence.Run{}
	err := s.db.SelectContext(ctx, &runs, `
		SELECT `+runColumns+`
		FROM wbws_runs
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT $3`, tr.From, tr.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func (s *store) ListTrades(ctx context.Context, runID uuid.UUID) ([]persistence.Trade, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	trades := []persistence.Trade{}
	err := s.db.SelectContext(ctx, &trades, `
		SELECT run_id, signal_index, side, entry_ts, entry_price, stop_loss, take_profit, stop_distance,
			capped, exit_index, exit_ts, exit_price, outcome, exit_reason, bars_held, r_multiple
		FROM wbws_trades
		WHERE run_id = $1
		ORDER BY signal_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

func (s *store) CountByOutcome(ctx context.Context, runID uuid.UUID) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx, `
		SELECT outcome, COUNT(*)
		FROM wbws_trades
		WHERE run_id = $1
		GROUP BY outcome`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[outcome] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return counts, nil
}

func (s *store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}
