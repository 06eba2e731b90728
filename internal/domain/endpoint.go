package domain

import (
	"errors"
	"time"
)

var (
	ErrEndpointNotFound     = errors.New("endpoint not found")
	ErrEndpointNameConflict = errors.New("endpoint with this name already exists in job")
	ErrInvalidCronExpr      = errors.New("invalid cron expression")
	ErrInvalidSchedule      = errors.New("exactly one of cron expression or baseline interval is required")
	ErrInvalidRequest       = errors.New("invalid request definition")
	ErrIntervalTooSmall     = errors.New("interval is below the allowed minimum")
	ErrEndpointLimitReached = errors.New("endpoint limit for tier reached")
)

// MinIntervalFloorMs is the absolute floor below which no interval may go,
// regardless of tier.
const MinIntervalFloorMs int64 = 1000

// Endpoint is a scheduled HTTP invocation target. Exactly one of CronExpr
// and BaselineIntervalMs is set. The execution-state columns (NextRunAt,
// LockedUntil, FailureCount, ...) are owned by the store: workers hold only
// transient copies and mutate through atomic store operations.
type Endpoint struct {
	ID          string  `json:"id"`
	JobID       string  `json:"jobID"`
	TenantID    string  `json:"tenantID"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`

	// Baseline schedule — exactly one non-nil.
	CronExpr           *string `json:"cronExpr,omitempty"`
	BaselineIntervalMs *int64  `json:"baselineIntervalMs,omitempty"`

	// Clamp bounds applied after hint/backoff resolution.
	MinIntervalMs *int64 `json:"minIntervalMs,omitempty"`
	MaxIntervalMs *int64 `json:"maxIntervalMs,omitempty"`

	// Request definition.
	URL                string            `json:"url"`
	Method             string            `json:"method"`
	Headers            map[string]string `json:"headers"`
	Body               *string           `json:"body,omitempty"`
	TimeoutMs          *int64            `json:"timeoutMs,omitempty"`
	MaxExecutionTimeMs *int64            `json:"maxExecutionTimeMs,omitempty"`
	MaxResponseSizeKb  *int64            `json:"maxResponseSizeKb,omitempty"`

	// Execution state.
	NextRunAt    time.Time  `json:"nextRunAt"`
	LastRunAt    *time.Time `json:"lastRunAt,omitempty"`
	FailureCount int        `json:"failureCount"`
	PausedUntil  *time.Time `json:"pausedUntil,omitempty"`
	LockedUntil  *time.Time `json:"lockedUntil,omitempty"`

	// AI hint fields. All co-expire at AIHintExpiresAt.
	AIHintIntervalMs *int64     `json:"aiHintIntervalMs,omitempty"`
	AIHintNextRunAt  *time.Time `json:"aiHintNextRunAt,omitempty"`
	AIHintExpiresAt  *time.Time `json:"aiHintExpiresAt,omitempty"`
	AIHintReason     *string    `json:"aiHintReason,omitempty"`

	ArchivedAt *time.Time `json:"archivedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// HintActive reports whether the endpoint carries an unexpired AI hint.
func (e *Endpoint) HintActive(now time.Time) bool {
	return e.AIHintExpiresAt != nil && e.AIHintExpiresAt.After(now)
}

// Paused reports whether the endpoint is inert until a future time.
func (e *Endpoint) Paused(now time.Time) bool {
	return e.PausedUntil != nil && e.PausedUntil.After(now)
}

// AIHint is the planner-written schedule override.
type AIHint struct {
	IntervalMs *int64
	NextRunAt  *time.Time
	ExpiresAt  time.Time
	Reason     *string
}
