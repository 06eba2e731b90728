package scheduler_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/weskerllc/cronicorn/internal/clock"
	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/repository"
	"github.com/weskerllc/cronicorn/internal/schedule"
	"github.com/weskerllc/cronicorn/internal/scheduler"
)

var workerT0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// workerHarness wires a Worker against fakes and runs exactly one batch.
type workerHarness struct {
	endpoints *fakeEndpointRepo
	runs      *fakeRunRepo
	users     *fakeUserRepo
}

func runOneBatch(t *testing.T, h *workerHarness, ids []string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	claims := 0
	h.endpoints.claimDue = func(_ context.Context, _, _ time.Time, _ int) ([]string, error) {
		claims++
		if claims == 1 {
			return ids, nil
		}
		cancel()
		return nil, nil
	}

	w := scheduler.NewWorker(
		h.endpoints, h.runs, h.users,
		scheduler.NewExecutor(slog.Default()),
		schedule.NewGovernor(schedule.CronEvaluator{}, nil),
		scheduler.NewMeter(h.runs, h.users, slog.Default()),
		nil,
		clock.Fixed(workerT0),
		slog.Default(),
		scheduler.WorkerConfig{BatchSize: 10, PoolSize: 4, Idle: time.Millisecond, Lease: time.Minute},
	)
	w.Start(ctx)
}

func enterpriseUser(_ context.Context, id string) (*domain.User, error) {
	return &domain.User{ID: id, Tier: domain.TierEnterprise}, nil
}

func underCap(_ context.Context, _ repository.MetricsFilter) (*domain.UsageMetrics, error) {
	return &domain.UsageMetrics{TotalRuns: 0}, nil
}

func TestWorker_SuccessPathAdvancesAndResets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ep := testEndpoint(srv.URL)
	ep.BaselineIntervalMs = ms(60_000)
	ep.TenantID = "user-1"

	var createdRun *repository.CreateRunInput
	var finished *repository.FinishRunInput
	var advanced *repository.UpdateAfterRunInput

	h := &workerHarness{
		endpoints: &fakeEndpointRepo{
			getByID: func(_ context.Context, _ string) (*domain.Endpoint, error) { return ep, nil },
			updateAfterRun: func(_ context.Context, _ string, in repository.UpdateAfterRunInput) (int, error) {
				advanced = &in
				return 0, nil
			},
		},
		runs: &fakeRunRepo{
			create: func(_ context.Context, in repository.CreateRunInput) (*domain.Run, error) {
				createdRun = &in
				return &domain.Run{ID: "run-1", EndpointID: in.EndpointID}, nil
			},
			finish: func(_ context.Context, _ string, in repository.FinishRunInput) error {
				finished = &in
				return nil
			},
			metrics: underCap,
		},
		users: &fakeUserRepo{findByID: enterpriseUser},
	}

	runOneBatch(t, h, []string{"ep-1"})

	if createdRun == nil || createdRun.Attempt != 1 || createdRun.Source != domain.RunSourceSchedule {
		t.Fatalf("unexpected run creation: %+v", createdRun)
	}
	if finished == nil || finished.Status != domain.RunStatusSuccess {
		t.Fatalf("expected run finished as success, got %+v", finished)
	}
	if advanced == nil {
		t.Fatal("expected UpdateAfterRun")
	}
	if !advanced.ResetFailures {
		t.Fatal("expected failure count reset on success")
	}
	if !advanced.LastRunAt.Equal(workerT0) {
		t.Fatalf("expected lastRunAt = start time, got %s", advanced.LastRunAt)
	}
	if want := workerT0.Add(60 * time.Second); !advanced.NextRunAt.Equal(want) {
		t.Fatalf("expected nextRunAt %s, got %s", want, advanced.NextRunAt)
	}
}

func TestWorker_FailureBacksOff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ep := testEndpoint(srv.URL)
	ep.BaselineIntervalMs = ms(10_000)
	ep.FailureCount = 3
	ep.TenantID = "user-1"

	var advanced *repository.UpdateAfterRunInput

	h := &workerHarness{
		endpoints: &fakeEndpointRepo{
			getByID: func(_ context.Context, _ string) (*domain.Endpoint, error) { return ep, nil },
			updateAfterRun: func(_ context.Context, _ string, in repository.UpdateAfterRunInput) (int, error) {
				advanced = &in
				return 4, nil
			},
		},
		runs: &fakeRunRepo{
			create: func(_ context.Context, in repository.CreateRunInput) (*domain.Run, error) {
				if in.Attempt != 4 {
					t.Errorf("expected attempt 4, got %d", in.Attempt)
				}
				return &domain.Run{ID: "run-1"}, nil
			},
			finish:  func(_ context.Context, _ string, _ repository.FinishRunInput) error { return nil },
			metrics: underCap,
		},
		users: &fakeUserRepo{findByID: enterpriseUser},
	}

	runOneBatch(t, h, []string{"ep-1"})

	if advanced == nil {
		t.Fatal("expected UpdateAfterRun")
	}
	if advanced.ResetFailures {
		t.Fatal("expected failure count increment on failure")
	}
	// Three prior failures drive the backoff: 10s baseline × 2^3 = 80s.
	if want := workerT0.Add(80 * time.Second); !advanced.NextRunAt.Equal(want) {
		t.Fatalf("expected nextRunAt %s, got %s", want, advanced.NextRunAt)
	}
}

func TestWorker_ArchivedMidClaimIsSkipped(t *testing.T) {
	archivedAt := workerT0.Add(-time.Second)
	ep := testEndpoint("http://unused.invalid")
	ep.ArchivedAt = &archivedAt

	lockCleared := false
	h := &workerHarness{
		endpoints: &fakeEndpointRepo{
			getByID:   func(_ context.Context, _ string) (*domain.Endpoint, error) { return ep, nil },
			clearLock: func(_ context.Context, _ string) error { lockCleared = true; return nil },
		},
		runs: &fakeRunRepo{
			create: func(_ context.Context, _ repository.CreateRunInput) (*domain.Run, error) {
				t.Error("run must not be created for an archived endpoint")
				return nil, nil
			},
		},
		users: &fakeUserRepo{findByID: enterpriseUser},
	}

	runOneBatch(t, h, []string{"ep-1"})

	if !lockCleared {
		t.Fatal("expected lock released for archived endpoint")
	}
}

func TestWorker_MonthlyCapDefersDispatch(t *testing.T) {
	ep := testEndpoint("http://unused.invalid")
	ep.BaselineIntervalMs = ms(60_000)
	ep.TenantID = "user-1"

	var deferredTo time.Time
	lockCleared := false

	h := &workerHarness{
		endpoints: &fakeEndpointRepo{
			getByID: func(_ context.Context, _ string) (*domain.Endpoint, error) { return ep, nil },
			setNextRunAt: func(_ context.Context, _ string, next time.Time) error {
				deferredTo = next
				return nil
			},
			clearLock: func(_ context.Context, _ string) error { lockCleared = true; return nil },
		},
		runs: &fakeRunRepo{
			create: func(_ context.Context, _ repository.CreateRunInput) (*domain.Run, error) {
				t.Error("run must not be created past the monthly cap")
				return nil, nil
			},
			metrics: func(_ context.Context, _ repository.MetricsFilter) (*domain.UsageMetrics, error) {
				return &domain.UsageMetrics{TotalRuns: 1_000_000}, nil
			},
		},
		users: &fakeUserRepo{findByID: enterpriseUser},
	}

	runOneBatch(t, h, []string{"ep-1"})

	if want := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC); !deferredTo.Equal(want) {
		t.Fatalf("expected deferral to %s, got %s", want, deferredTo)
	}
	if !lockCleared {
		t.Fatal("expected lock released on deferral")
	}
}
