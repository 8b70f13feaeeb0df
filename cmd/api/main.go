package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/admission"
	"server/internal/credits"
	"server/internal/domain"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/metrics"
	"server/internal/moderation"
	"server/internal/orchestrator"
	"server/internal/provider"
	"server/internal/quota"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	catalog := domain.DefaultCatalog()
	if cfg.GlobalConcurrency > 0 {
		catalog.GlobalConcurrency = cfg.GlobalConcurrency
	}

	var (
		ledger  credits.Ledger
		tracker quota.Tracker
		rate    admission.RateLimiter
		conc    admission.ConcurrencyController
	)
	if rdb != nil {
		ledger = credits.NewRedisLedger(rdb, "")
		tracker = quota.NewRedisTracker(rdb, "")
		rate = admission.NewRedisRateLimiter(rdb, "")
		conc = admission.NewRedisConcurrency(rdb, "", catalog.GlobalConcurrency)
		logger.Info().Msg("using redis-backed admission stores")
	} else {
		ledger = credits.NewMemoryLedger()
		tracker = quota.NewMemoryTracker()
		rate = admission.NewMemoryRateLimiter()
		conc = admission.NewMemoryConcurrency(catalog.GlobalConcurrency)
		logger.Warn().Msg("REDIS_URL not set, using in-process admission stores")
	}

	gemini := provider.NewGemini(provider.GeminiOptions{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Logger:  &logger,
	})
	veo := provider.NewVeo(provider.VeoOptions{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Logger:     &logger,
		Turnaround: cfg.VeoTurnaround,
	})
	adapters := map[string]provider.Adapter{
		"gemini-image":   gemini,
		"qwen-image":     gemini,
		"speech-tts":     gemini,
		"veo-video":      veo,
		"avatar-lipsync": veo,
	}

	orch := orchestrator.New(orchestrator.Options{
		Ledger:      ledger,
		Quota:       tracker,
		Rate:        rate,
		Concurrency: conc,
		Jobs:        repo.NewPgJobRepository(runner),
		Usage:       repo.NewPgUsageRepository(runner),
		Moderation:  moderation.Blocklist{Terms: cfg.ModerationBlocklist},
		Catalog:     catalog,
		Adapters:    adapters,
		Logger:      logger,
		Metrics:     metrics.NewProm("genapi"),
	})

	app := &handlers.App{Orchestrator: orch, Ledger: ledger, Logger: logger}
	router := httpapi.NewRouter(cfg, app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
