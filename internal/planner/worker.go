package planner

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/weskerllc/cronicorn/internal/clock"
	"github.com/weskerllc/cronicorn/internal/domain"
	ctxlog "github.com/weskerllc/cronicorn/internal/log"
	"github.com/weskerllc/cronicorn/internal/metrics"
	"github.com/weskerllc/cronicorn/internal/repository"
)

const (
	fallbackReasoning    = "No reasoning provided"
	defaultAnalysisDelay = 5 * time.Minute
)

// Worker is the planner loop. It runs beside the scheduler worker but on its
// own cadence; writes are idempotent latest-hint-wins, so no leases are
// needed here.
type Worker struct {
	endpoints repository.EndpointRepository
	jobs      repository.JobRepository
	runs      repository.RunRepository
	sessions  repository.SessionRepository
	users     repository.UserRepository
	quota     *QuotaGuard
	client    Client
	clock     clock.Clock
	logger    *slog.Logger

	interval  time.Duration
	batchSize int
	maxTokens int
	floors    map[domain.Tier]time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	MaxTokens int
	Floors    map[domain.Tier]time.Duration
}

func NewWorker(
	endpoints repository.EndpointRepository,
	jobs repository.JobRepository,
	runs repository.RunRepository,
	sessions repository.SessionRepository,
	users repository.UserRepository,
	quota *QuotaGuard,
	client Client,
	clk clock.Clock,
	logger *slog.Logger,
	cfg WorkerConfig,
) *Worker {
	return &Worker{
		endpoints: endpoints,
		jobs:      jobs,
		runs:      runs,
		sessions:  sessions,
		users:     users,
		quota:     quota,
		client:    client,
		clock:     clk,
		logger:    logger.With("component", "planner"),
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		maxTokens: cfg.MaxTokens,
		floors:    cfg.Floors,
	}
}

func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("planner started", "interval", w.interval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("planner shut down")
			return
		case <-ticker.C:
			w.analyzeBatch(ctx)
		}
	}
}

func (w *Worker) analyzeBatch(ctx context.Context) {
	now := w.clock.Now()
	due, err := w.endpoints.ListDueForAnalysis(ctx, now, w.batchSize)
	if err != nil {
		w.logger.Error("list due for analysis", "error", err)
		return
	}

	for _, ep := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}
		// One endpoint must never poison the batch.
		w.analyzeOne(ctx, ep)
	}
}

func (w *Worker) analyzeOne(ctx context.Context, ep *domain.Endpoint) {
	ctx = ctxlog.WithEndpoint(ctx, ep.ID)
	defer func() {
		if r := recover(); r != nil {
			metrics.PlannerSessionsTotal.WithLabelValues("panic").Inc()
			w.logger.Error("panic in analyzeOne", "endpoint_id", ep.ID, "panic", r)
		}
	}()

	if !w.quota.CanProceed(ctx, ep.TenantID) {
		metrics.PlannerSessionsTotal.WithLabelValues("quota_denied").Inc()
		w.logger.Info("AI quota exhausted, skipping analysis",
			"endpoint_id", ep.ID, "tenant_id", ep.TenantID)
		return
	}

	job, err := w.jobs.GetByID(ctx, ep.JobID, ep.TenantID)
	if err != nil {
		w.failSession(ctx, ep, "load job", err)
		return
	}
	health, err := w.runs.HealthSummary(ctx, ep.ID, w.clock.Now())
	if err != nil {
		w.failSession(ctx, ep, "health summary", err)
		return
	}
	siblings, err := w.endpoints.ListByJob(ctx, ep.JobID)
	if err != nil {
		w.failSession(ctx, ep, "list siblings", err)
		return
	}
	var siblingNames []string
	for _, sib := range siblings {
		if sib.ID != ep.ID {
			siblingNames = append(siblingNames, sib.Name)
		}
	}

	tools := &sessionTools{
		endpoint:  ep,
		floor:     w.floorFor(ctx, ep.TenantID),
		endpoints: w.endpoints,
		runs:      w.runs,
		clock:     w.clock,
	}

	now := w.clock.Now()
	start := time.Now()

	result, err := w.client.PlanWithTools(ctx, PlanRequest{
		Input:         buildPrompt(ep, job, health, siblingNames, now),
		Tools:         tools.all(),
		MaxTokens:     w.maxTokens,
		FinalToolName: toolSubmitAnalysis,
	})
	if err != nil {
		w.failSession(ctx, ep, "plan with tools", err)
		return
	}

	durationMs := time.Since(start).Milliseconds()
	metrics.PlannerTokensTotal.Add(float64(result.TokenUsage))
	for _, call := range result.ToolCalls {
		metrics.PlannerToolCallsTotal.WithLabelValues(call.Tool).Inc()
	}

	reasoning, nextDelay := w.interpret(ep, result)
	nextAnalysisAt := now.Add(nextDelay)

	session := &domain.AISession{
		EndpointID:           ep.ID,
		TenantID:             ep.TenantID,
		AnalyzedAt:           now,
		ToolCalls:            result.ToolCalls,
		Reasoning:            reasoning,
		DurationMs:           &durationMs,
		NextAnalysisAt:       &nextAnalysisAt,
		EndpointFailureCount: ep.FailureCount,
	}
	if result.TokenUsage > 0 {
		session.TokenUsage = &result.TokenUsage
	}

	if _, err := w.sessions.Create(ctx, session); err != nil {
		metrics.PlannerSessionsTotal.WithLabelValues("store_error").Inc()
		w.logger.Error("persist session", "endpoint_id", ep.ID, "error", err)
		return
	}

	metrics.PlannerSessionsTotal.WithLabelValues("ok").Inc()
	w.logger.InfoContext(ctx, "endpoint analyzed",
		"endpoint_id", ep.ID,
		"tool_calls", len(result.ToolCalls),
		"tokens", result.TokenUsage,
		"next_analysis_at", nextAnalysisAt,
	)
}

// interpret extracts the reasoning and next-analysis delay from the terminal
// tool call, falling back through the session text, the endpoint's baseline
// interval, and finally the default cadence.
func (w *Worker) interpret(ep *domain.Endpoint, result *PlanResult) (string, time.Duration) {
	reasoning := result.Reasoning
	nextDelay := defaultAnalysisDelay
	if ep.BaselineIntervalMs != nil {
		nextDelay = time.Duration(*ep.BaselineIntervalMs) * time.Millisecond
	}

	if result.FinalArgs != nil {
		var args analysisArgs
		if err := json.Unmarshal(result.FinalArgs, &args); err == nil {
			if args.Reasoning != "" {
				reasoning = args.Reasoning
			}
			if args.NextAnalysisInMs != nil && *args.NextAnalysisInMs > 0 {
				nextDelay = time.Duration(*args.NextAnalysisInMs) * time.Millisecond
			}
		}
	}

	if reasoning == "" {
		reasoning = fallbackReasoning
	}
	return reasoning, nextDelay
}

// failSession logs the error and still records a session so the endpoint's
// cadence advances instead of retrying the same failure every tick.
func (w *Worker) failSession(ctx context.Context, ep *domain.Endpoint, stage string, err error) {
	metrics.PlannerSessionsTotal.WithLabelValues("error").Inc()
	w.logger.Error("analysis failed", "endpoint_id", ep.ID, "stage", stage, "error", err)

	now := w.clock.Now()
	nextAnalysisAt := now.Add(defaultAnalysisDelay)
	session := &domain.AISession{
		EndpointID:           ep.ID,
		TenantID:             ep.TenantID,
		AnalyzedAt:           now,
		Reasoning:            fallbackReasoning,
		NextAnalysisAt:       &nextAnalysisAt,
		EndpointFailureCount: ep.FailureCount,
	}
	if _, storeErr := w.sessions.Create(ctx, session); storeErr != nil {
		w.logger.Error("persist failed session", "endpoint_id", ep.ID, "error", storeErr)
	}
}

func (w *Worker) floorFor(ctx context.Context, tenantID string) time.Duration {
	tier := domain.TierFree
	if user, err := w.users.FindByID(ctx, tenantID); err == nil {
		tier = user.Tier
	}
	if w.floors != nil {
		if d, ok := w.floors[tier]; ok {
			return d
		}
	}
	return time.Duration(domain.LimitsFor(tier).MinIntervalMs) * time.Millisecond
}
