package usecase_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/weskerllc/cronicorn/internal/clock"
	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/repository"
	"github.com/weskerllc/cronicorn/internal/schedule"
	"github.com/weskerllc/cronicorn/internal/scheduler"
	"github.com/weskerllc/cronicorn/internal/usecase"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ms(v int64) *int64 { return &v }

func strp(s string) *string { return &s }

// ---- fakes ----

type fakeEndpointRepo struct {
	create         func(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error)
	getByIDForUser func(ctx context.Context, id, userID string) (*domain.Endpoint, error)
	countByUser    func(ctx context.Context, userID string) (int, error)
	setPausedUntil func(ctx context.Context, id string, until *time.Time) error
	clearAIHints   func(ctx context.Context, id string) error
}

func (r *fakeEndpointRepo) Create(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error) {
	return r.create(ctx, e)
}
func (r *fakeEndpointRepo) GetByID(context.Context, string) (*domain.Endpoint, error) {
	panic("not used")
}
func (r *fakeEndpointRepo) GetByIDForUser(ctx context.Context, id, userID string) (*domain.Endpoint, error) {
	return r.getByIDForUser(ctx, id, userID)
}
func (r *fakeEndpointRepo) ListByJob(context.Context, string) ([]*domain.Endpoint, error) {
	panic("not used")
}
func (r *fakeEndpointRepo) Update(context.Context, *domain.Endpoint) (*domain.Endpoint, error) {
	panic("not used")
}
func (r *fakeEndpointRepo) Archive(context.Context, string, string) error { panic("not used") }
func (r *fakeEndpointRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	return r.countByUser(ctx, userID)
}
func (r *fakeEndpointRepo) ClaimDue(context.Context, time.Time, time.Time, int) ([]string, error) {
	panic("not used")
}
func (r *fakeEndpointRepo) SetLock(context.Context, string, time.Time) error { panic("not used") }
func (r *fakeEndpointRepo) ClearLock(context.Context, string) error          { panic("not used") }
func (r *fakeEndpointRepo) UpdateAfterRun(context.Context, string, repository.UpdateAfterRunInput) (int, error) {
	panic("not used")
}
func (r *fakeEndpointRepo) SetNextRunAtIfEarlier(context.Context, string, time.Time) error {
	panic("not used")
}
func (r *fakeEndpointRepo) SetNextRunAt(context.Context, string, time.Time) error {
	panic("not used")
}
func (r *fakeEndpointRepo) WriteAIHint(context.Context, string, domain.AIHint) error {
	panic("not used")
}
func (r *fakeEndpointRepo) ClearAIHints(ctx context.Context, id string) error {
	return r.clearAIHints(ctx, id)
}
func (r *fakeEndpointRepo) SetPausedUntil(ctx context.Context, id string, until *time.Time) error {
	return r.setPausedUntil(ctx, id, until)
}
func (r *fakeEndpointRepo) ResetFailureCount(context.Context, string) error { panic("not used") }
func (r *fakeEndpointRepo) ListDueForAnalysis(context.Context, time.Time, int) ([]*domain.Endpoint, error) {
	panic("not used")
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
	tier domain.Tier
}

func (r *fakeUserRepo) Upsert(context.Context, string) error { panic("not used") }
func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	return &domain.User{ID: id, Tier: r.tier}, nil
}

// ---- helpers ----

func activeJob(_ context.Context, id, userID string) (*domain.Job, error) {
	return &domain.Job{ID: id, UserID: userID, Status: domain.JobStatusActive}, nil
}

func echoCreate(_ context.Context, e *domain.Endpoint) (*domain.Endpoint, error) { return e, nil }

func newUsecase(endpoints *fakeEndpointRepo, jobs *fakeJobRepo, tier domain.Tier) *usecase.EndpointUsecase {
	return usecase.NewEndpointUsecase(
		endpoints, jobs, nil, nil, &fakeUserRepo{tier: tier},
		scheduler.NewExecutor(slog.Default()),
		schedule.CronEvaluator{},
		clock.Fixed(t0),
		nil,
	)
}

func validInput() usecase.CreateEndpointInput {
	return usecase.CreateEndpointInput{
		JobID:  "job-1",
		UserID: "user-1",
		Name:   "health-check",
		Schedule: usecase.EndpointScheduleInput{
			BaselineIntervalMs: ms(60_000),
		},
		URL:    "https://example.com/health",
		Method: "GET",
	}
}

// ---- CreateEndpoint ----

func TestCreateEndpoint_SetsInitialNextRun(t *testing.T) {
	endpoints := &fakeEndpointRepo{
		create:      echoCreate,
		countByUser: func(_ context.Context, _ string) (int, error) { return 0, nil },
	}
	u := newUsecase(endpoints, &fakeJobRepo{getByID: activeJob}, domain.TierFree)

	ep, err := u.CreateEndpoint(context.Background(), validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := t0.Add(time.Minute); !ep.NextRunAt.Equal(want) {
		t.Fatalf("nextRunAt = %s, want %s", ep.NextRunAt, want)
	}
}

func TestCreateEndpoint_RejectsBothOrNeitherSchedule(t *testing.T) {
	u := newUsecase(&fakeEndpointRepo{}, &fakeJobRepo{getByID: activeJob}, domain.TierFree)

	input := validInput()
	input.Schedule.CronExpr = strp("*/5 * * * *")
	if _, err := u.CreateEndpoint(context.Background(), input); err != domain.ErrInvalidSchedule {
		t.Fatalf("both set: err = %v, want ErrInvalidSchedule", err)
	}

	input = validInput()
	input.Schedule.BaselineIntervalMs = nil
	if _, err := u.CreateEndpoint(context.Background(), input); err != domain.ErrInvalidSchedule {
		t.Fatalf("neither set: err = %v, want ErrInvalidSchedule", err)
	}
}

func TestCreateEndpoint_RejectsIntervalBelowTierFloor(t *testing.T) {
	u := newUsecase(&fakeEndpointRepo{}, &fakeJobRepo{getByID: activeJob}, domain.TierFree)

	input := validInput()
	input.Schedule.BaselineIntervalMs = ms(10_000) // below free tier's 60s floor

	if _, err := u.CreateEndpoint(context.Background(), input); err != domain.ErrIntervalTooSmall {
		t.Fatalf("err = %v, want ErrIntervalTooSmall", err)
	}
}

func TestCreateEndpoint_ProTierAllowsTighterInterval(t *testing.T) {
	endpoints := &fakeEndpointRepo{
		create:      echoCreate,
		countByUser: func(_ context.Context, _ string) (int, error) { return 0, nil },
	}
	u := newUsecase(endpoints, &fakeJobRepo{getByID: activeJob}, domain.TierPro)

	input := validInput()
	input.Schedule.BaselineIntervalMs = ms(10_000)

	if _, err := u.CreateEndpoint(context.Background(), input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateEndpoint_RejectsInvalidCron(t *testing.T) {
	u := newUsecase(&fakeEndpointRepo{}, &fakeJobRepo{getByID: activeJob}, domain.TierFree)

	input := validInput()
	input.Schedule.BaselineIntervalMs = nil
	input.Schedule.CronExpr = strp("not a cron")

	if _, err := u.CreateEndpoint(context.Background(), input); err != domain.ErrInvalidCronExpr {
		t.Fatalf("err = %v, want ErrInvalidCronExpr", err)
	}
}

func TestCreateEndpoint_RejectsMaxBelowMin(t *testing.T) {
	u := newUsecase(&fakeEndpointRepo{}, &fakeJobRepo{getByID: activeJob}, domain.TierFree)

	input := validInput()
	input.Schedule.MinIntervalMs = ms(120_000)
	input.Schedule.MaxIntervalMs = ms(60_000)

	if _, err := u.CreateEndpoint(context.Background(), input); err != domain.ErrIntervalTooSmall {
		t.Fatalf("err = %v, want ErrIntervalTooSmall", err)
	}
}

func TestCreateEndpoint_EnforcesTierEndpointCap(t *testing.T) {
	endpoints := &fakeEndpointRepo{
		countByUser: func(_ context.Context, _ string) (int, error) {
			return domain.LimitsFor(domain.TierFree).MaxEndpoints, nil
		},
	}
	u := newUsecase(endpoints, &fakeJobRepo{getByID: activeJob}, domain.TierFree)

	if _, err := u.CreateEndpoint(context.Background(), validInput()); err != domain.ErrEndpointLimitReached {
		t.Fatalf("err = %v, want ErrEndpointLimitReached", err)
	}
}

func TestCreateEndpoint_CronSchedulesFirstFire(t *testing.T) {
	endpoints := &fakeEndpointRepo{
		create:      echoCreate,
		countByUser: func(_ context.Context, _ string) (int, error) { return 0, nil },
	}
	u := newUsecase(endpoints, &fakeJobRepo{getByID: activeJob}, domain.TierFree)

	input := validInput()
	input.Schedule.BaselineIntervalMs = nil
	input.Schedule.CronExpr = strp("0 * * * *")

	ep, err := u.CreateEndpoint(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC); !ep.NextRunAt.Equal(want) {
		t.Fatalf("nextRunAt = %s, want %s", ep.NextRunAt, want)
	}
}
