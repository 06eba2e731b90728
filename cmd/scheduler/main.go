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
	"github.com/weskerllc/cronicorn/internal/email"
	"github.com/weskerllc/cronicorn/internal/health"
	"github.com/weskerllc/cronicorn/internal/infrastructure/postgres"
	ctxlog "github.com/weskerllc/cronicorn/internal/log"
	"github.com/weskerllc/cronicorn/internal/metrics"
	"github.com/weskerllc/cronicorn/internal/schedule"
	"github.com/weskerllc/cronicorn/internal/scheduler"
)

// sweepInterval is how often the zombie sweeper wakes; the zombie age itself
// comes from config.
const sweepInterval = time.Minute

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
	runRepo := postgres.NewRunRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	alerts := email.NewAlertNotifier(sender, cfg.AlertsTo, logger)

	worker := scheduler.NewWorker(
		endpointRepo,
		runRepo,
		userRepo,
		scheduler.NewExecutor(logger),
		schedule.NewGovernor(schedule.CronEvaluator{}, tierFloors(cfg)),
		scheduler.NewMeter(runRepo, userRepo, logger),
		alerts,
		clock.System{},
		logger,
		scheduler.WorkerConfig{
			BatchSize: cfg.BatchSize,
			PoolSize:  cfg.WorkerPool,
			Idle:      cfg.Idle(),
			Lease:     cfg.Lease(),
		},
	)

	workerDone := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(workerDone)
	}()

	sweeper := scheduler.NewSweeper(runRepo, clock.System{}, logger, sweepInterval, cfg.ZombieAge())
	go sweeper.Start(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	// Drain in-flight dispatches, then abandon: their leases will expire and
	// the sweeper marks the half-finished runs failed.
	select {
	case <-workerDone:
	case <-time.After(cfg.ShutdownTimeout()):
		logger.Warn("shutdown timeout reached, abandoning in-flight runs")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
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
