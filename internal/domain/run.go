package domain

import (
	"errors"
	"time"
)

var ErrRunNotFound = errors.New("run not found")

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusTimeout RunStatus = "timeout"
)

type RunSource string

const (
	RunSourceSchedule RunSource = "schedule"
	RunSourceTest     RunSource = "test"
	RunSourceManual   RunSource = "manual"
)

// Run is one execution attempt of an endpoint. Rows are created in the
// running state and finalized exactly once by the worker that owns them;
// rows stuck in running past the zombie threshold are swept to failed.
type Run struct {
	ID           string     `json:"id"`
	EndpointID   string     `json:"endpointID"`
	TenantID     string     `json:"tenantID"`
	Attempt      int        `json:"attempt"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	Status       RunStatus  `json:"status"`
	DurationMs   *int64     `json:"durationMs,omitempty"`
	StatusCode   *int       `json:"statusCode,omitempty"`
	ResponseBody *string    `json:"responseBody,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	Source       RunSource  `json:"source"`
}

// HealthWindow aggregates run outcomes over one lookback window.
type HealthWindow struct {
	SuccessCount int     `json:"successCount"`
	FailureCount int     `json:"failureCount"`
	SuccessRate  float64 `json:"successRate"`
}

// HealthSummary is the multi-window view the planner reasons over.
// FailureStreak counts the tail of the chronological run list that ends in
// non-success runs; it is derived, never stored.
type HealthSummary struct {
	Window1h      HealthWindow `json:"window1h"`
	Window4h      HealthWindow `json:"window4h"`
	Window24h     HealthWindow `json:"window24h"`
	AvgDurationMs float64      `json:"avgDurationMs"`
	FailureStreak int          `json:"failureStreak"`
}

// UsageMetrics aggregates runs for metering and the usage endpoint.
type UsageMetrics struct {
	TotalRuns     int     `json:"totalRuns"`
	SuccessCount  int     `json:"successCount"`
	FailureCount  int     `json:"failureCount"`
	AvgDurationMs float64 `json:"avgDurationMs"`
}
