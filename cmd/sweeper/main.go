package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/admission"
	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/infra/metrics"
	"server/internal/orchestrator"
	"server/internal/quota"
)

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
		logger.Fatal().Err(err).Msg("sweeper: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: redis connection failed")
	}
	if rdb == nil {
		// In-process counters in the sweeper would drift from the API's;
		// the sweeper only makes sense against the shared store.
		logger.Fatal().Msg("sweeper: REDIS_URL is required")
	}
	defer rdb.Close()

	catalog := domain.DefaultCatalog()
	if cfg.GlobalConcurrency > 0 {
		catalog.GlobalConcurrency = cfg.GlobalConcurrency
	}

	orch := orchestrator.New(orchestrator.Options{
		Ledger:      credits.NewRedisLedger(rdb, ""),
		Quota:       quota.NewRedisTracker(rdb, ""),
		Rate:        admission.NewRedisRateLimiter(rdb, ""),
		Concurrency: admission.NewRedisConcurrency(rdb, "", catalog.GlobalConcurrency),
		Jobs:        repo.NewPgJobRepository(runner),
		Usage:       repo.NewPgUsageRepository(runner),
		Catalog:     catalog,
		Logger:      logger,
		Metrics:     metrics.NewProm("gensweeper"),
	})

	sweeper := &orchestrator.Sweeper{
		Orchestrator: orch,
		Interval:     cfg.SweepInterval,
		Logger:       logger,
	}
	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("sweeper: stopped with error")
	}
	logger.Info().Msg("sweeper: stopped")
}
