package planner

import (
	"context"
	"time"

	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/repository"
)

// ---- fakes ----

type fakeEndpointRepo struct {
	listByJob             func(ctx context.Context, jobID string) ([]*domain.Endpoint, error)
	writeAIHint           func(ctx context.Context, id string, hint domain.AIHint) error
	clearAIHints          func(ctx context.Context, id string) error
	setNextRunAtIfEarlier func(ctx context.Context, id string, candidate time.Time) error
	setPausedUntil        func(ctx context.Context, id string, until *time.Time) error
	listDueForAnalysis    func(ctx context.Context, now time.Time, limit int) ([]*domain.Endpoint, error)
}

func (r *fakeEndpointRepo) Create(context.Context, *domain.Endpoint) (*domain.Endpoint, error) {
	panic("not used")
}
func (r *fakeEndpointRepo) GetByID(context.Context, string) (*domain.Endpoint, error) {
	panic("not used")
}
func (r *fakeEndpointRepo) GetByIDForUser(context.Context, string, string) (*domain.Endpoint, error) {
	panic("not used")
}

func (r *fakeEndpointRepo) ListByJob(ctx context.Context, jobID string) ([]*domain.Endpoint, error) {
	return r.listByJob(ctx, jobID)
}

func (r *fakeEndpointRepo) Update(context.Context, *domain.Endpoint) (*domain.Endpoint, error) {
	panic("not used")
}
func (r *fakeEndpointRepo) Archive(context.Context, string, string) error { panic("not used") }
func (r *fakeEndpointRepo) CountByUser(context.Context, string) (int, error) {
	panic("not used")
}
func (r *fakeEndpointRepo) ClaimDue(context.Context, time.Time, time.Time, int) ([]string, error) {
	panic("not used")
}
func (r *fakeEndpointRepo) SetLock(context.Context, string, time.Time) error { panic("not used") }
func (r *fakeEndpointRepo) ClearLock(context.Context, string) error          { panic("not used") }
func (r *fakeEndpointRepo) UpdateAfterRun(context.Context, string, repository.UpdateAfterRunInput) (int, error) {
	panic("not used")
}

func (r *fakeEndpointRepo) SetNextRunAtIfEarlier(ctx context.Context, id string, candidate time.Time) error {
	return r.setNextRunAtIfEarlier(ctx, id, candidate)
}

func (r *fakeEndpointRepo) SetNextRunAt(context.Context, string, time.Time) error {
	panic("not used")
}

func (r *fakeEndpointRepo) WriteAIHint(ctx context.Context, id string, hint domain.AIHint) error {
	return r.writeAIHint(ctx, id, hint)
}

func (r *fakeEndpointRepo) ClearAIHints(ctx context.Context, id string) error {
	return r.clearAIHints(ctx, id)
}

func (r *fakeEndpointRepo) SetPausedUntil(ctx context.Context, id string, until *time.Time) error {
	return r.setPausedUntil(ctx, id, until)
}

func (r *fakeEndpointRepo) ResetFailureCount(context.Context, string) error { panic("not used") }

func (r *fakeEndpointRepo) ListDueForAnalysis(ctx context.Context, now time.Time, limit int) ([]*domain.Endpoint, error) {
	return r.listDueForAnalysis(ctx, now, limit)
}

type fakeRunRepo struct {
	latestResponse         func(ctx context.Context, endpointID string) (*domain.Run, error)
	responseHistory        func(ctx context.Context, endpointID string, limit, offset int) ([]*domain.Run, error)
	siblingLatestResponses func(ctx context.Context, jobID, excludingEndpointID string) ([]*domain.Run, error)
	healthSummary          func(ctx context.Context, endpointID string, now time.Time) (*domain.HealthSummary, error)
}

func (r *fakeRunRepo) Create(context.Context, repository.CreateRunInput) (*domain.Run, error) {
	panic("not used")
}
func (r *fakeRunRepo) Finish(context.Context, string, repository.FinishRunInput) error {
	panic("not used")
}

func (r *fakeRunRepo) HealthSummary(ctx context.Context, endpointID string, now time.Time) (*domain.HealthSummary, error) {
	return r.healthSummary(ctx, endpointID, now)
}

func (r *fakeRunRepo) LatestResponse(ctx context.Context, endpointID string) (*domain.Run, error) {
	return r.latestResponse(ctx, endpointID)
}

func (r *fakeRunRepo) ResponseHistory(ctx context.Context, endpointID string, limit, offset int) ([]*domain.Run, error) {
	return r.responseHistory(ctx, endpointID, limit, offset)
}

func (r *fakeRunRepo) SiblingLatestResponses(ctx context.Context, jobID, excludingEndpointID string) ([]*domain.Run, error) {
	return r.siblingLatestResponses(ctx, jobID, excludingEndpointID)
}

func (r *fakeRunRepo) ListByEndpoint(context.Context, string, int, int) ([]*domain.Run, error) {
	panic("not used")
}
func (r *fakeRunRepo) Metrics(context.Context, repository.MetricsFilter) (*domain.UsageMetrics, error) {
	panic("not used")
}
func (r *fakeRunRepo) CleanupZombies(context.Context, time.Time, time.Duration) (int, error) {
	panic("not used")
}

type fakeSessionRepo struct {
	create          func(ctx context.Context, s *domain.AISession) (*domain.AISession, error)
	tokenUsageSince func(ctx context.Context, tenantID string, since time.Time) (int, error)
}

func (r *fakeSessionRepo) Create(ctx context.Context, s *domain.AISession) (*domain.AISession, error) {
	return r.create(ctx, s)
}

func (r *fakeSessionRepo) ListByEndpoint(context.Context, string, int) ([]*domain.AISession, error) {
	panic("not used")
}

func (r *fakeSessionRepo) TokenUsageSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	return r.tokenUsageSince(ctx, tenantID, since)
}

type fakeJobRepo struct {
	getByID func(ctx context.Context, id, userID string) (*domain.Job, error)
}

func (r *fakeJobRepo) Create(context.Context, *domain.Job) (*domain.Job, error) { panic("not used") }

func (r *fakeJobRepo) GetByID(ctx context.Context, id, userID string) (*domain.Job, error) {
	return r.getByID(ctx, id, userID)
}

func (r *fakeJobRepo) List(context.Context, string) ([]*domain.Job, error) { panic("not used") }
func (r *fakeJobRepo) Update(context.Context, string, string, repository.UpdateJobInput) (*domain.Job, error) {
	panic("not used")
}
func (r *fakeJobRepo) Archive(context.Context, string, string) error { panic("not used") }

type fakeUserRepo struct {
	findByID func(ctx context.Context, id string) (*domain.User, error)
}

func (r *fakeUserRepo) Upsert(context.Context, string) error { panic("not used") }

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findByID(ctx, id)
}

type fakeClient struct {
	plan func(ctx context.Context, req PlanRequest) (*PlanResult, error)
}

func (c *fakeClient) PlanWithTools(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	return c.plan(ctx, req)
}
