package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/wbws/internal/cache"
	"github.com/sawpanic/wbws/internal/httpapi"
	"github.com/sawpanic/wbws/internal/metrics"
	"github.com/sawpanic/wbws/internal/persistence"
	"github.com/sawpanic/wbws/internal/persistence/postgres"
)

func newServeCmd() *cobra.Command {
	cfg := httpapi.DefaultConfig()
	var dsn string
	var cacheTTL time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve runs over HTTP with a websocket replay and Prometheus metrics",
		Long: `Starts the run API on localhost. Results are cached in Redis when REDIS_ADDR
is set, in memory otherwise. Runs are stored in Postgres when a DSN is given. Run requests may only name
files under --data-root; relative paths are resolved against it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			results := cache.NewResults(cache.NewAuto(), cacheTTL)
			log.Info().Str("backend", results.Backend()).Dur("ttl", results.TTL()).Msg("Result cache ready")

			deps := httpapi.Deps{
				Results: results,
				Metrics: metrics.NewRegistry(nil),
				Logger:  log.Logger,
			}
			if dsn != "" {
				pg := postgres.DefaultConfig()
				pg.DSN = dsn
				db, err := postgres.Open(ctx, pg)
				if err != nil {
					return err
				}
				defer db.Close()
				deps.Store = persistence.NewBreakerStore(postgres.NewStore(db, pg.QueryTimeout), persistence.DefaultBreakerConfig())
			}

			srv := httpapi.NewServer(cfg, deps)
			if !srv.IsLocal() {
				log.Warn().Str("host", cfg.Host).Str("data_root", cfg.DataRoot).Msg("Server is reachable beyond localhost; run requests read files under the data root")
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Host, "host", cfg.Host, "Listen host")
	f.IntVar(&cfg.Port, "port", cfg.Port, "Listen port (default $HTTP_PORT or 8080)")
	f.StringVar(&cfg.DataRoot, "data-root", cfg.DataRoot, "Directory run requests may read config and bar files from (default $WBWS_DATA_ROOT or ./data)")
	f.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Requests per second per client")
	f.IntVar(&cfg.RateBurst, "rate-burst", cfg.RateBurst, "Burst size per client")
	f.StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (default $DATABASE_URL); empty keeps runs in memory")
	f.DurationVar(&cacheTTL, "cache-ttl", cache.DefaultTTL, "Result cache TTL")

	return cmd
}
