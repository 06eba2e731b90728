package repository

import (
	"context"
	"time"

	"github.com/weskerllc/cronicorn/internal/domain"
)

// UpdateAfterRunInput advances an endpoint's execution state after one run.
// ResetFailures selects the failure-count policy: reset to zero on success,
// increment otherwise.
type UpdateAfterRunInput struct {
	LastRunAt     time.Time
	NextRunAt     time.Time
	ResetFailures bool
}

// Workers and usecases depend on this interface, not the pgx implementation,
// so tests can pass closure-based fakes and the backend stays swappable.
type EndpointRepository interface {
	Create(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error)
	GetByID(ctx context.Context, id string) (*domain.Endpoint, error)
	GetByIDForUser(ctx context.Context, id, userID string) (*domain.Endpoint, error)
	ListByJob(ctx context.Context, jobID string) ([]*domain.Endpoint, error)
	Update(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error)
	Archive(ctx context.Context, id, userID string) error
	CountByUser(ctx context.Context, userID string) (int, error)

	// ClaimDue atomically selects up to limit due endpoints (next_run_at in
	// the past, unlocked, unpaused, not archived, parent job active) and
	// takes a lease on each until `until`. Concurrent callers never observe
	// the same endpoint.
	ClaimDue(ctx context.Context, now, until time.Time, limit int) ([]string, error)

	SetLock(ctx context.Context, id string, until time.Time) error
	ClearLock(ctx context.Context, id string) error

	// UpdateAfterRun applies the whole post-run transition — last/next run,
	// failure-count policy, lock release — in one statement. Returns the
	// endpoint's failure count after the update.
	UpdateAfterRun(ctx context.Context, id string, in UpdateAfterRunInput) (int, error)

	// SetNextRunAtIfEarlier moves next_run_at to candidate only if that is
	// sooner than the current value. Idempotent.
	SetNextRunAtIfEarlier(ctx context.Context, id string, candidate time.Time) error

	// SetNextRunAt overwrites next_run_at unconditionally. Metering is the
	// one caller allowed to push a run later with this.
	SetNextRunAt(ctx context.Context, id string, next time.Time) error

	// WriteAIHint replaces all hint fields atomically.
	WriteAIHint(ctx context.Context, id string, hint domain.AIHint) error
	ClearAIHints(ctx context.Context, id string) error

	SetPausedUntil(ctx context.Context, id string, until *time.Time) error
	ResetFailureCount(ctx context.Context, id string) error

	// ListDueForAnalysis returns active endpoints whose latest planner
	// session either scheduled the next analysis at or before now, or that
	// have never been analyzed.
	ListDueForAnalysis(ctx context.Context, now time.Time, limit int) ([]*domain.Endpoint, error)
}
