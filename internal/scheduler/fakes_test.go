package scheduler_test

import (
	"context"
	"time"

	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/repository"
)

// ---- fakes ----

type fakeEndpointRepo struct {
	getByID               func(ctx context.Context, id string) (*domain.Endpoint, error)
	claimDue              func(ctx context.Context, now, until time.Time, limit int) ([]string, error)
	clearLock             func(ctx context.Context, id string) error
	updateAfterRun        func(ctx context.Context, id string, in repository.UpdateAfterRunInput) (int, error)
	setNextRunAt          func(ctx context.Context, id string, next time.Time) error
	setNextRunAtIfEarlier func(ctx context.Context, id string, candidate time.Time) error
	writeAIHint           func(ctx context.Context, id string, hint domain.AIHint) error
	clearAIHints          func(ctx context.Context, id string) error
	setPausedUntil        func(ctx context.Context, id string, until *time.Time) error
	listDueForAnalysis    func(ctx context.Context, now time.Time, limit int) ([]*domain.Endpoint, error)
}

func (r *fakeEndpointRepo) Create(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error) {
	panic("not used")
}

func (r *fakeEndpointRepo) GetByID(ctx context.Context, id string) (*domain.Endpoint, error) {
	return r.getByID(ctx, id)
}

func (r *fakeEndpointRepo) GetByIDForUser(ctx context.Context, id, userID string) (*domain.Endpoint, error) {
	panic("not used")
}

func (r *fakeEndpointRepo) ListByJob(ctx context.Context, jobID string) ([]*domain.Endpoint, error) {
	panic("not used")
}

func (r *fakeEndpointRepo) Update(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error) {
	panic("not used")
}

func (r *fakeEndpointRepo) Archive(ctx context.Context, id, userID string) error { panic("not used") }

func (r *fakeEndpointRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	panic("not used")
}

func (r *fakeEndpointRepo) ClaimDue(ctx context.Context, now, until time.Time, limit int) ([]string, error) {
	return r.claimDue(ctx, now, until, limit)
}

func (r *fakeEndpointRepo) SetLock(ctx context.Context, id string, until time.Time) error {
	panic("not used")
}

func (r *fakeEndpointRepo) ClearLock(ctx context.Context, id string) error {
	return r.clearLock(ctx, id)
}

func (r *fakeEndpointRepo) UpdateAfterRun(ctx context.Context, id string, in repository.UpdateAfterRunInput) (int, error) {
	return r.updateAfterRun(ctx, id, in)
}

func (r *fakeEndpointRepo) SetNextRunAtIfEarlier(ctx context.Context, id string, candidate time.Time) error {
	return r.setNextRunAtIfEarlier(ctx, id, candidate)
}

func (r *fakeEndpointRepo) SetNextRunAt(ctx context.Context, id string, next time.Time) error {
	return r.setNextRunAt(ctx, id, next)
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

func (r *fakeEndpointRepo) ResetFailureCount(ctx context.Context, id string) error {
	panic("not used")
}

func (r *fakeEndpointRepo) ListDueForAnalysis(ctx context.Context, now time.Time, limit int) ([]*domain.Endpoint, error) {
	return r.listDueForAnalysis(ctx, now, limit)
}

type fakeRunRepo struct {
	create         func(ctx context.Context, in repository.CreateRunInput) (*domain.Run, error)
	finish         func(ctx context.Context, runID string, in repository.FinishRunInput) error
	metrics        func(ctx context.Context, f repository.MetricsFilter) (*domain.UsageMetrics, error)
	cleanupZombies func(ctx context.Context, now time.Time, maxAge time.Duration) (int, error)
}

func (r *fakeRunRepo) Create(ctx context.Context, in repository.CreateRunInput) (*domain.Run, error) {
	return r.create(ctx, in)
}

func (r *fakeRunRepo) Finish(ctx context.Context, runID string, in repository.FinishRunInput) error {
	return r.finish(ctx, runID, in)
}

func (r *fakeRunRepo) HealthSummary(ctx context.Context, endpointID string, now time.Time) (*domain.HealthSummary, error) {
	panic("not used")
}

func (r *fakeRunRepo) LatestResponse(ctx context.Context, endpointID string) (*domain.Run, error) {
	panic("not used")
}

func (r *fakeRunRepo) ResponseHistory(ctx context.Context, endpointID string, limit, offset int) ([]*domain.Run, error) {
	panic("not used")
}

func (r *fakeRunRepo) SiblingLatestResponses(ctx context.Context, jobID, excludingEndpointID string) ([]*domain.Run, error) {
	panic("not used")
}

func (r *fakeRunRepo) ListByEndpoint(ctx context.Context, endpointID string, limit, offset int) ([]*domain.Run, error) {
	panic("not used")
}

func (r *fakeRunRepo) Metrics(ctx context.Context, f repository.MetricsFilter) (*domain.UsageMetrics, error) {
	return r.metrics(ctx, f)
}

func (r *fakeRunRepo) CleanupZombies(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	return r.cleanupZombies(ctx, now, maxAge)
}

type fakeUserRepo struct {
	findByID func(ctx context.Context, id string) (*domain.User, error)
}

func (r *fakeUserRepo) Upsert(ctx context.Context, id string) error { panic("not used") }

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findByID(ctx, id)
}
