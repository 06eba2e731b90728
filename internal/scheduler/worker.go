package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/weskerllc/cronicorn/internal/clock"
	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/email"
	ctxlog "github.com/weskerllc/cronicorn/internal/log"
	"github.com/weskerllc/cronicorn/internal/metrics"
	"github.com/weskerllc/cronicorn/internal/repository"
	"github.com/weskerllc/cronicorn/internal/schedule"
)

// Worker is the scheduler tick loop: claim due endpoints under leases,
// dispatch them in a bounded pool, record the runs, and advance next-run via
// the governor. Multiple worker processes coexist against one database; the
// lease taken by ClaimDue is the only mutual exclusion needed.
type Worker struct {
	id        string
	endpoints repository.EndpointRepository
	runs      repository.RunRepository
	users     repository.UserRepository
	executor  *Executor
	governor  *schedule.Governor
	meter     *Meter
	alerts    *email.AlertNotifier
	clock     clock.Clock
	logger    *slog.Logger

	batchSize int
	poolSize  int
	idle      time.Duration
	lease     time.Duration
}

type WorkerConfig struct {
	BatchSize int
	PoolSize  int
	Idle      time.Duration
	Lease     time.Duration
}

func NewWorker(
	endpoints repository.EndpointRepository,
	runs repository.RunRepository,
	users repository.UserRepository,
	executor *Executor,
	governor *schedule.Governor,
	meter *Meter,
	alerts *email.AlertNotifier,
	clk clock.Clock,
	logger *slog.Logger,
	cfg WorkerConfig,
) *Worker {
	hostname, _ := os.Hostname()
	return &Worker{
		id:        fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		endpoints: endpoints,
		runs:      runs,
		users:     users,
		executor:  executor,
		governor:  governor,
		meter:     meter,
		alerts:    alerts,
		clock:     clk,
		logger:    logger.With("component", "worker"),
		batchSize: cfg.BatchSize,
		poolSize:  cfg.PoolSize,
		idle:      cfg.Idle,
		lease:     cfg.Lease,
	}
}

// Start runs until ctx is canceled. In-flight dispatches finish before
// return; the caller bounds that wait with its shutdown timeout.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("worker started",
		"worker_id", w.id, "batch_size", w.batchSize, "pool", w.poolSize)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shut down", "worker_id", w.id)
			return
		default:
		}

		claimed := w.processBatch(ctx)
		if claimed == 0 {
			select {
			case <-ctx.Done():
				w.logger.Info("worker shut down", "worker_id", w.id)
				return
			case <-time.After(w.idle):
			}
		}
	}
}

// processBatch claims one batch and dispatches it through the bounded pool.
// Returns the number of endpoints claimed.
func (w *Worker) processBatch(ctx context.Context) int {
	now := w.clock.Now()
	ids, err := w.endpoints.ClaimDue(ctx, now, now.Add(w.lease), w.batchSize)
	if err != nil {
		w.logger.Error("claim due endpoints", "error", err)
		return 0
	}
	metrics.ClaimBatchSize.Observe(float64(len(ids)))
	if len(ids) == 0 {
		return 0
	}

	w.logger.Debug("claimed endpoints", "count", len(ids))

	sem := make(chan struct{}, w.poolSize)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			w.processOne(ctx, id)
		}(id)
	}
	wg.Wait()
	return len(ids)
}

// processOne runs the full claim→dispatch→record→advance pipeline for one
// leased endpoint. Every failure path is contained here: one endpoint can
// never poison the batch.
func (w *Worker) processOne(ctx context.Context, id string) {
	ctx = ctxlog.WithEndpoint(ctx, id)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in processOne", "endpoint_id", id, "panic", r)
		}
	}()

	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	ep, err := w.endpoints.GetByID(ctx, id)
	if err != nil {
		w.logger.Error("load claimed endpoint", "endpoint_id", id, "error", err)
		w.releaseLock(ctx, id)
		return
	}
	// The claim query filters archived rows, but an archive racing the claim
	// can land between the two statements.
	if ep.ArchivedAt != nil {
		w.releaseLock(ctx, id)
		return
	}

	tier := w.tierOf(ctx, ep.TenantID)

	if ok, deferUntil := w.meter.Allow(ctx, ep.TenantID, w.clock.Now()); !ok {
		metrics.RunsDeferredTotal.Inc()
		w.logger.Info("monthly run cap reached, deferring",
			"endpoint_id", ep.ID, "tenant_id", ep.TenantID, "until", deferUntil)
		if err := w.endpoints.SetNextRunAt(ctx, ep.ID, deferUntil); err != nil {
			w.logger.Error("defer endpoint", "endpoint_id", ep.ID, "error", err)
		}
		w.releaseLock(ctx, ep.ID)
		return
	}

	startedAt := w.clock.Now()
	run, err := w.runs.Create(ctx, repository.CreateRunInput{
		EndpointID: ep.ID,
		TenantID:   ep.TenantID,
		Attempt:    ep.FailureCount + 1,
		Source:     domain.RunSourceSchedule,
		StartedAt:  startedAt,
	})
	if err != nil {
		w.logger.Error("create run", "endpoint_id", ep.ID, "error", err)
		w.releaseLock(ctx, ep.ID)
		return
	}
	ctx = ctxlog.WithRun(ctx, run.ID)

	outcome := w.executor.Execute(ctx, ep)

	metrics.DispatchDuration.WithLabelValues(string(outcome.Status)).
		Observe(float64(outcome.DurationMs) / 1000)
	metrics.RunsCompletedTotal.WithLabelValues(string(outcome.Status)).Inc()

	finishedAt := w.clock.Now()
	if err := w.runs.Finish(ctx, run.ID, repository.FinishRunInput{
		Status:       outcome.Status,
		FinishedAt:   finishedAt,
		DurationMs:   outcome.DurationMs,
		StatusCode:   outcome.StatusCode,
		ResponseBody: outcome.ResponseBody,
		ErrorMessage: outcome.ErrorMessage,
	}); err != nil {
		w.logger.Error("finish run", "run_id", run.ID, "error", err)
	}

	success := outcome.Status == domain.RunStatusSuccess

	// The governor sees the endpoint as of this run: lastRunAt is when the
	// run started, now is its completion. On success the failure count is
	// reset before the decision; on failure the stored count drives the
	// backoff and the increment lands with the same update.
	nextState := *ep
	nextState.LastRunAt = &startedAt
	if success {
		nextState.FailureCount = 0
	}
	nextRunAt := w.governor.NextRun(&nextState, tier, finishedAt)

	failureCount, err := w.endpoints.UpdateAfterRun(ctx, ep.ID, repository.UpdateAfterRunInput{
		LastRunAt:     startedAt,
		NextRunAt:     nextRunAt,
		ResetFailures: success,
	})
	if err != nil {
		// The lease will expire and the next claim reschedules; the run row
		// is already finalized, so no double-execution.
		w.logger.Error("update after run", "endpoint_id", ep.ID, "error", err)
		return
	}

	w.logger.InfoContext(ctx, "endpoint advanced",
		"endpoint_id", ep.ID,
		"status", outcome.Status,
		"duration_ms", outcome.DurationMs,
		"next_run_at", nextRunAt,
		"failure_count", failureCount,
	)

	if !success && w.alerts != nil && failureCount == email.FailureStreakThreshold {
		w.alerts.FailureStreak(ctx, ep, failureCount)
	}
}

func (w *Worker) tierOf(ctx context.Context, tenantID string) domain.Tier {
	user, err := w.users.FindByID(ctx, tenantID)
	if err != nil {
		w.logger.Warn("tier lookup failed, assuming free", "tenant_id", tenantID, "error", err)
		return domain.TierFree
	}
	return user.Tier
}

func (w *Worker) releaseLock(ctx context.Context, id string) {
	if err := w.endpoints.ClearLock(ctx, id); err != nil {
		w.logger.Error("release lock", "endpoint_id", id, "error", err)
	}
}
