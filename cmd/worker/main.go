package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"prism/internal/adapter/repo"
	"prism/internal/admission"
	"prism/internal/infra"
	"prism/internal/orchestrator"
)

// The worker fails jobs whose owning API instance died without restarting.
// It only makes sense against the shared Postgres store.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	if err := infra.Migrate(ctx, runner); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to apply schema")
	}

	controller := admission.NewController(admission.NewPostgresStore(runner), admission.Options{
		Limit:         cfg.RateLimitPerWindow,
		Window:        cfg.RateLimitWindow,
		MaxConcurrent: cfg.MaxConcurrentJobs,
		Logger:        logger,
	})
	sweeper := orchestrator.NewSweeper(repo.NewJobRepository(runner), controller, logger, nil)

	if err := run(ctx, sweeper, cfg.SweepInterval, cfg.JobTimeout, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// run sweeps once immediately and then on every tick until ctx ends.
func run(ctx context.Context, sweeper *orchestrator.Sweeper, interval, staleAfter time.Duration, logger infra.Logger) error {
	if interval <= 0 {
		interval = time.Minute
	}
	logger.Info().Dur("interval", interval).Dur("stale_after", staleAfter).Msg("worker: started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := sweeper.Sweep(ctx, staleAfter)
		switch {
		case err != nil:
			logger.Error().Err(err).Int("recovered", n).Msg("worker: sweep failed")
		case n > 0:
			logger.Info().Int("recovered", n).Msg("worker: swept stale jobs")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
