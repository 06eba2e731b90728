package usecase

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/weskerllc/cronicorn/internal/clock"
	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/repository"
	"github.com/weskerllc/cronicorn/internal/schedule"
	"github.com/weskerllc/cronicorn/internal/scheduler"
)

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

type EndpointUsecase struct {
	endpoints repository.EndpointRepository
	jobs      repository.JobRepository
	runs      repository.RunRepository
	sessions  repository.SessionRepository
	users     repository.UserRepository
	executor  *scheduler.Executor
	cron      schedule.Evaluator
	clock     clock.Clock
	floors    map[domain.Tier]time.Duration
}

func NewEndpointUsecase(
	endpoints repository.EndpointRepository,
	jobs repository.JobRepository,
	runs repository.RunRepository,
	sessions repository.SessionRepository,
	users repository.UserRepository,
	executor *scheduler.Executor,
	cron schedule.Evaluator,
	clk clock.Clock,
	floors map[domain.Tier]time.Duration,
) *EndpointUsecase {
	return &EndpointUsecase{
		endpoints: endpoints,
		jobs:      jobs,
		runs:      runs,
		sessions:  sessions,
		users:     users,
		executor:  executor,
		cron:      cron,
		clock:     clk,
		floors:    floors,
	}
}

type EndpointScheduleInput struct {
	CronExpr           *string
	BaselineIntervalMs *int64
	MinIntervalMs      *int64
	MaxIntervalMs      *int64
}

type CreateEndpointInput struct {
	JobID       string
	UserID      string
	Name        string
	Description *string

	Schedule EndpointScheduleInput

	URL                string
	Method             string
	Headers            map[string]string
	Body               *string
	TimeoutMs          *int64
	MaxExecutionTimeMs *int64
	MaxResponseSizeKb  *int64
}

func (u *EndpointUsecase) CreateEndpoint(ctx context.Context, input CreateEndpointInput) (*domain.Endpoint, error) {
	job, err := u.jobs.GetByID(ctx, input.JobID, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.Status == domain.JobStatusArchived {
		return nil, domain.ErrJobNotFound
	}

	tier := u.tierOf(ctx, input.UserID)
	if err := u.validateSchedule(input.Schedule, tier); err != nil {
		return nil, err
	}
	if err := validateRequest(input.URL, input.Method); err != nil {
		return nil, err
	}

	count, err := u.endpoints.CountByUser(ctx, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("count endpoints: %w", err)
	}
	if count >= domain.LimitsFor(tier).MaxEndpoints {
		return nil, domain.ErrEndpointLimitReached
	}

	now := u.clock.Now()
	nextRunAt, err := u.firstRunAt(input.Schedule, now)
	if err != nil {
		return nil, err
	}

	headers := input.Headers
	if headers == nil {
		headers = make(map[string]string)
	}

	ep := &domain.Endpoint{
		JobID:              input.JobID,
		TenantID:           input.UserID,
		Name:               input.Name,
		Description:        input.Description,
		CronExpr:           input.Schedule.CronExpr,
		BaselineIntervalMs: input.Schedule.BaselineIntervalMs,
		MinIntervalMs:      input.Schedule.MinIntervalMs,
		MaxIntervalMs:      input.Schedule.MaxIntervalMs,
		URL:                input.URL,
		Method:             input.Method,
		Headers:            headers,
		Body:               input.Body,
		TimeoutMs:          input.TimeoutMs,
		MaxExecutionTimeMs: input.MaxExecutionTimeMs,
		MaxResponseSizeKb:  input.MaxResponseSizeKb,
		NextRunAt:          nextRunAt,
	}

	created, err := u.endpoints.Create(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("create endpoint: %w", err)
	}
	return created, nil
}

type UpdateEndpointInput struct {
	Name        *string
	Description *string

	Schedule *EndpointScheduleInput

	URL                *string
	Method             *string
	Headers            map[string]string
	Body               *string
	TimeoutMs          *int64
	MaxExecutionTimeMs *int64
	MaxResponseSizeKb  *int64
}

func (u *EndpointUsecase) UpdateEndpoint(ctx context.Context, id, userID string, input UpdateEndpointInput) (*domain.Endpoint, error) {
	ep, err := u.endpoints.GetByIDForUser(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("get endpoint: %w", err)
	}
	if ep.ArchivedAt != nil {
		return nil, domain.ErrEndpointNotFound
	}

	if input.Name != nil {
		ep.Name = *input.Name
	}
	if input.Description != nil {
		ep.Description = input.Description
	}
	if input.URL != nil {
		ep.URL = *input.URL
	}
	if input.Method != nil {
		ep.Method = *input.Method
	}
	if input.Headers != nil {
		ep.Headers = input.Headers
	}
	if input.Body != nil {
		ep.Body = input.Body
	}
	if input.TimeoutMs != nil {
		ep.TimeoutMs = input.TimeoutMs
	}
	if input.MaxExecutionTimeMs != nil {
		ep.MaxExecutionTimeMs = input.MaxExecutionTimeMs
	}
	if input.MaxResponseSizeKb != nil {
		ep.MaxResponseSizeKb = input.MaxResponseSizeKb
	}

	if input.Schedule != nil {
		tier := u.tierOf(ctx, userID)
		if err := u.validateSchedule(*input.Schedule, tier); err != nil {
			return nil, err
		}
		ep.CronExpr = input.Schedule.CronExpr
		ep.BaselineIntervalMs = input.Schedule.BaselineIntervalMs
		ep.MinIntervalMs = input.Schedule.MinIntervalMs
		ep.MaxIntervalMs = input.Schedule.MaxIntervalMs

		nextRunAt, err := u.firstRunAt(*input.Schedule, u.clock.Now())
		if err != nil {
			return nil, err
		}
		ep.NextRunAt = nextRunAt
	}

	if err := validateRequest(ep.URL, ep.Method); err != nil {
		return nil, err
	}

	updated, err := u.endpoints.Update(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("update endpoint: %w", err)
	}
	return updated, nil
}

func (u *EndpointUsecase) GetEndpoint(ctx context.Context, id, userID string) (*domain.Endpoint, error) {
	ep, err := u.endpoints.GetByIDForUser(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("get endpoint: %w", err)
	}
	return ep, nil
}

func (u *EndpointUsecase) ListEndpoints(ctx context.Context, jobID, userID string) ([]*domain.Endpoint, error) {
	if _, err := u.jobs.GetByID(ctx, jobID, userID); err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	endpoints, err := u.endpoints.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	return endpoints, nil
}

func (u *EndpointUsecase) ArchiveEndpoint(ctx context.Context, id, userID string) error {
	if err := u.endpoints.Archive(ctx, id, userID); err != nil {
		return fmt.Errorf("archive endpoint: %w", err)
	}
	return nil
}

// PauseEndpoint pauses until the given time; nil resumes immediately.
func (u *EndpointUsecase) PauseEndpoint(ctx context.Context, id, userID string, until *time.Time) error {
	if _, err := u.endpoints.GetByIDForUser(ctx, id, userID); err != nil {
		return fmt.Errorf("get endpoint: %w", err)
	}
	if until != nil && !until.After(u.clock.Now()) {
		return fmt.Errorf("%w: pausedUntil must be in the future", domain.ErrInvalidRequest)
	}
	if err := u.endpoints.SetPausedUntil(ctx, id, until); err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	return nil
}

func (u *EndpointUsecase) ClearHints(ctx context.Context, id, userID string) error {
	if _, err := u.endpoints.GetByIDForUser(ctx, id, userID); err != nil {
		return fmt.Errorf("get endpoint: %w", err)
	}
	if err := u.endpoints.ClearAIHints(ctx, id); err != nil {
		return fmt.Errorf("clear hints: %w", err)
	}
	return nil
}

// TestRun dispatches the endpoint immediately, outside the schedule. The run
// is recorded with source=test; metering is bypassed and the schedule is not
// advanced.
func (u *EndpointUsecase) TestRun(ctx context.Context, id, userID string) (*domain.Run, error) {
	ep, err := u.endpoints.GetByIDForUser(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("get endpoint: %w", err)
	}
	if ep.ArchivedAt != nil {
		return nil, domain.ErrEndpointNotFound
	}

	startedAt := u.clock.Now()
	run, err := u.runs.Create(ctx, repository.CreateRunInput{
		EndpointID: ep.ID,
		TenantID:   ep.TenantID,
		Attempt:    1,
		Source:     domain.RunSourceTest,
		StartedAt:  startedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	outcome := u.executor.Execute(ctx, ep)

	if err := u.runs.Finish(ctx, run.ID, repository.FinishRunInput{
		Status:       outcome.Status,
		FinishedAt:   u.clock.Now(),
		DurationMs:   outcome.DurationMs,
		StatusCode:   outcome.StatusCode,
		ResponseBody: outcome.ResponseBody,
		ErrorMessage: outcome.ErrorMessage,
	}); err != nil {
		return nil, fmt.Errorf("finish run: %w", err)
	}

	return u.runs.LatestResponse(ctx, ep.ID)
}

func (u *EndpointUsecase) ListRuns(ctx context.Context, id, userID string, limit, offset int) ([]*domain.Run, error) {
	if _, err := u.endpoints.GetByIDForUser(ctx, id, userID); err != nil {
		return nil, fmt.Errorf("get endpoint: %w", err)
	}
	runs, err := u.runs.ListByEndpoint(ctx, id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (u *EndpointUsecase) ListSessions(ctx context.Context, id, userID string, limit int) ([]*domain.AISession, error) {
	if _, err := u.endpoints.GetByIDForUser(ctx, id, userID); err != nil {
		return nil, fmt.Errorf("get endpoint: %w", err)
	}
	sessions, err := u.sessions.ListByEndpoint(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Usage is the month-to-date view surfaced at /usage.
type Usage struct {
	Tier          domain.Tier         `json:"tier"`
	PeriodStart   time.Time           `json:"periodStart"`
	Runs          domain.UsageMetrics `json:"runs"`
	RunCap        int                 `json:"runCap"`
	AITokensUsed  int                 `json:"aiTokensUsed"`
	AITokenCap    int                 `json:"aiTokenCap"`
	EndpointCount int                 `json:"endpointCount"`
	EndpointCap   int                 `json:"endpointCap"`
}

func (u *EndpointUsecase) GetUsage(ctx context.Context, userID string) (*Usage, error) {
	tier := u.tierOf(ctx, userID)
	limits := domain.LimitsFor(tier)
	monthStart := scheduler.MonthStartUTC(u.clock.Now())

	metrics, err := u.runs.Metrics(ctx, repository.MetricsFilter{UserID: userID, Since: monthStart})
	if err != nil {
		return nil, fmt.Errorf("run metrics: %w", err)
	}
	tokens, err := u.sessions.TokenUsageSince(ctx, userID, monthStart)
	if err != nil {
		return nil, fmt.Errorf("token usage: %w", err)
	}
	count, err := u.endpoints.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count endpoints: %w", err)
	}

	return &Usage{
		Tier:          tier,
		PeriodStart:   monthStart,
		Runs:          *metrics,
		RunCap:        limits.MonthlyRunCap,
		AITokensUsed:  tokens,
		AITokenCap:    limits.MonthlyAITokens,
		EndpointCount: count,
		EndpointCap:   limits.MaxEndpoints,
	}, nil
}

// ---- validation ----

func (u *EndpointUsecase) validateSchedule(s EndpointScheduleInput, tier domain.Tier) error {
	if (s.CronExpr == nil) == (s.BaselineIntervalMs == nil) {
		return domain.ErrInvalidSchedule
	}
	if s.CronExpr != nil {
		if err := schedule.ValidateCron(*s.CronExpr); err != nil {
			return err
		}
	}

	floorMs := u.floorFor(tier).Milliseconds()
	for _, v := range []*int64{s.BaselineIntervalMs, s.MinIntervalMs} {
		if v == nil {
			continue
		}
		if *v < domain.MinIntervalFloorMs || *v < floorMs {
			return domain.ErrIntervalTooSmall
		}
	}
	if s.MinIntervalMs != nil && s.MaxIntervalMs != nil && *s.MaxIntervalMs < *s.MinIntervalMs {
		return domain.ErrIntervalTooSmall
	}
	return nil
}

func (u *EndpointUsecase) firstRunAt(s EndpointScheduleInput, now time.Time) (time.Time, error) {
	if s.CronExpr != nil {
		next, err := u.cron.Next(*s.CronExpr, now)
		if err != nil {
			return time.Time{}, err
		}
		return next, nil
	}
	return now.Add(time.Duration(*s.BaselineIntervalMs) * time.Millisecond), nil
}

func (u *EndpointUsecase) tierOf(ctx context.Context, userID string) domain.Tier {
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return domain.TierFree
	}
	return user.Tier
}

func (u *EndpointUsecase) floorFor(tier domain.Tier) time.Duration {
	if u.floors != nil {
		if d, ok := u.floors[tier]; ok {
			return d
		}
	}
	return time.Duration(domain.LimitsFor(tier).MinIntervalMs) * time.Millisecond
}

func validateRequest(rawURL, method string) error {
	if !allowedMethods[method] {
		return fmt.Errorf("%w: method %q not allowed", domain.ErrInvalidRequest, method)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: invalid url", domain.ErrInvalidRequest)
	}
	return nil
}
