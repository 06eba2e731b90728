package repository

import (
	"context"
	"time"

	"github.com/weskerllc/cronicorn/internal/domain"
)

// CreateRunInput opens a run row in the running state at dispatch start.
type CreateRunInput struct {
	EndpointID string
	TenantID   string
	Attempt    int
	Source     domain.RunSource
	StartedAt  time.Time
}

// FinishRunInput closes a running row with the dispatch outcome.
type FinishRunInput struct {
	Status       domain.RunStatus
	FinishedAt   time.Time
	DurationMs   int64
	StatusCode   *int
	ResponseBody *string
	ErrorMessage *string
}

// MetricsFilter narrows the run aggregate used by metering and /usage.
type MetricsFilter struct {
	UserID string
	Since  time.Time
	JobID  *string
	Source *domain.RunSource
}

type RunRepository interface {
	Create(ctx context.Context, in CreateRunInput) (*domain.Run, error)
	Finish(ctx context.Context, runID string, in FinishRunInput) error

	// HealthSummary aggregates 1h/4h/24h outcome windows, average duration,
	// and the failure streak derived from the chronological tail.
	HealthSummary(ctx context.Context, endpointID string, now time.Time) (*domain.HealthSummary, error)

	LatestResponse(ctx context.Context, endpointID string) (*domain.Run, error)

	// ResponseHistory returns finished runs newest-first. limit is capped
	// at 10 by the implementation for token economy.
	ResponseHistory(ctx context.Context, endpointID string, limit, offset int) ([]*domain.Run, error)

	// SiblingLatestResponses returns the latest finished run of every other
	// endpoint in the job.
	SiblingLatestResponses(ctx context.Context, jobID, excludingEndpointID string) ([]*domain.Run, error)

	ListByEndpoint(ctx context.Context, endpointID string, limit, offset int) ([]*domain.Run, error)

	Metrics(ctx context.Context, f MetricsFilter) (*domain.UsageMetrics, error)

	// CleanupZombies marks running rows older than maxAge as failed.
	// Returns the number of rows swept.
	CleanupZombies(ctx context.Context, now time.Time, maxAge time.Duration) (int, error)
}
