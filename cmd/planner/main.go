package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/aristath/helmsman/internal/cache"
	"github.com/aristath/helmsman/internal/config"
	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/evaluation"
	"github.com/aristath/helmsman/internal/opportunities"
	"github.com/aristath/helmsman/internal/planner"
	"github.com/aristath/helmsman/internal/resilience"
	"github.com/aristath/helmsman/internal/safety"
	"github.com/aristath/helmsman/internal/sequences"
	"github.com/aristath/helmsman/internal/server"
	"github.com/aristath/helmsman/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info", Pretty: true})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting planner")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("Failed to create data directory")
	}

	cacheStore, err := cache.NewStore(filepath.Join(cfg.DataDir, "cache.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache store")
	}
	defer cacheStore.Close()

	sweeper, err := cache.StartSweeper(cacheStore, "@daily", log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start cache sweeper")
	}
	defer sweeper.Stop()

	tradeLog, err := safety.NewTradeLogStore(filepath.Join(cfg.DataDir, "trades.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open trade log")
	}
	defer tradeLog.Close()

	plannerDefaults := domain.NewDefaultConfiguration()
	gate := safety.NewGate(tradeLog, safety.NewGateConfigFrom(plannerDefaults), log)
	limiter := safety.NewFrequencyLimiter(tradeLog, safety.NewFrequencyConfigFrom(plannerDefaults), log)

	breakers := resilience.NewBreakerRegistry(resilience.NewDefaultBreakerSettings(), log)
	retry := resilience.NewDefaultRetryPolicy(log)

	workers := cfg.EvaluatorWorkers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	evaluationService := evaluation.NewService(workers, log)

	// Remote evaluator replicas when configured, in-process otherwise.
	var evaluators []planner.Evaluator
	for _, endpoint := range cfg.EvaluatorEndpoints {
		evaluators = append(evaluators, planner.NewHTTPEvaluator(endpoint, cfg.RequestTimeout))
	}
	if len(evaluators) == 0 {
		evaluators = append(evaluators, planner.NewLocalEvaluator(evaluationService))
	}
	pool := planner.NewEvaluatorPool(evaluators, breakers, retry, log)

	opportunityService := opportunities.New(log)
	sequenceService := sequences.New(log)
	recommendations := cache.NewRecommendationCache(cacheStore, cfg.RecommendationTTL)
	analytics := cache.NewAnalyticsCache(cacheStore, cfg.AnalyticsTTL)

	coordinator := planner.NewCoordinator(
		opportunityService,
		sequenceService,
		pool,
		gate,
		limiter,
		recommendations,
		analytics,
		log,
	)

	srv := server.New(server.Config{
		Port:           cfg.Port,
		Log:            log,
		Coordinator:    coordinator,
		Evaluation:     evaluationService,
		Opportunities:  opportunityService,
		Sequences:      sequenceService,
		Breakers:       breakers,
		CacheStore:     cacheStore,
		RequestTimeout: cfg.RequestTimeout,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().
		Int("port", cfg.Port).
		Int("evaluators", len(evaluators)).
		Msg("Planner started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down planner...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Planner stopped")
}
