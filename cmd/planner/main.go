package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/weskerllc/cronicorn/config"
	"github.com/weskerllc/cronicorn/internal/clock"
	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/health"
	"github.com/weskerllc/cronicorn/internal/infrastructure/postgres"
	ctxlog "github.com/weskerllc/cronicorn/internal/log"
	"github.com/weskerllc/cronicorn/internal/metrics"
	"github.com/weskerllc/cronicorn/internal/planner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	endpointRepo := postgres.NewEndpointRepository(pool)
	jobRepo := postgres.NewJobRepository(pool)
	runRepo := postgres.NewRunRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	clk := clock.System{}
	quota := planner.NewQuotaGuard(userRepo, sessionRepo, clk, logger)
	client := planner.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)

	worker := planner.NewWorker(
		endpointRepo, jobRepo, runRepo, sessionRepo, userRepo,
		quota, client, clk, logger,
		planner.WorkerConfig{
			Interval:  cfg.PlannerInterval(),
			BatchSize: cfg.PlannerBatchSize,
			MaxTokens: cfg.LLMMaxTokens,
			Floors:    tierFloors(cfg),
		},
	)
	go worker.Start(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("planner shut down")
}

func tierFloors(cfg *config.Config) map[domain.Tier]time.Duration {
	return map[domain.Tier]time.Duration{
		domain.TierFree:       time.Duration(cfg.FreeMinIntervalMs) * time.Millisecond,
		domain.TierPro:        time.Duration(cfg.ProMinIntervalMs) * time.Millisecond,
		domain.TierEnterprise: time.Duration(cfg.EnterpriseMinIntervalMs) * time.Millisecond,
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
