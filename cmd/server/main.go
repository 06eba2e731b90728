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
	"github.com/weskerllc/cronicorn/internal/schedule"
	"github.com/weskerllc/cronicorn/internal/scheduler"
	httptransport "github.com/weskerllc/cronicorn/internal/transport/http"
	"github.com/weskerllc/cronicorn/internal/transport/http/handler"
	"github.com/weskerllc/cronicorn/internal/usecase"
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

	jobRepo := postgres.NewJobRepository(pool)
	endpointRepo := postgres.NewEndpointRepository(pool)
	runRepo := postgres.NewRunRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	jobUsecase := usecase.NewJobUsecase(jobRepo)
	endpointUsecase := usecase.NewEndpointUsecase(
		endpointRepo, jobRepo, runRepo, sessionRepo, userRepo,
		scheduler.NewExecutor(logger),
		schedule.CronEvaluator{},
		clock.System{},
		tierFloors(cfg),
	)

	jobHandler := handler.NewJobHandler(jobUsecase, logger)
	endpointHandler := handler.NewEndpointHandler(endpointUsecase, logger)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, jobHandler, endpointHandler, userRepo, []byte(cfg.JWTSecret)),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
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
