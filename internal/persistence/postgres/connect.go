package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Config holds database connection configuration
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// DefaultConfig returns pool defaults; DSN must still be set
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

// Open connects, pings and migrates the schema
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS wbws_runs (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		config_hash CHAR(64) NOT NULL,
		start_ts TIMESTAMPTZ,
		end_ts TIMESTAMPTZ,
		bars INT NOT NULL,
		signals INT NOT NULL,
		survived INT NOT NULL,
		trades INT NOT NULL,
		win_rate DOUBLE PRECISION NOT NULL,
		total_r DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_wbws_runs_created_at ON wbws_runs(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS wbws_trades (
		id BIGSERIAL PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES wbws_runs(id) ON DELETE CASCADE,
		signal_index INT NOT NULL,
		side VARCHAR(4) NOT NULL,
		entry_ts TIMESTAMPTZ NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		stop_loss DOUBLE PRECISION NOT NULL,
		take_profit DOUBLE PRECISION NOT NULL,
		stop_distance DOUBLE PRECISION NOT NULL,
		capped BOOLEAN NOT NULL DEFAULT false,
		exit_index INT NOT NULL,
		exit_ts TIMESTAMPTZ NOT NULL,
		exit_price DOUBLE PRECISION NOT NULL,
		outcome VARCHAR(16) NOT NULL,
		exit_reason VARCHAR(16) NOT NULL,
		bars_held INT NOT NULL,
		r_multiple DOUBLE PRECISION NOT NULL,
		UNIQUE (run_id, signal_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_wbws_trades_run_id ON wbws_trades(run_id)`,
}

// Migrate creates the tables when missing
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
