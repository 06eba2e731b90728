package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/repository"
)

// Meter gates dispatch on the tenant's monthly run cap. Lookup errors fail
// open: a broken metering query must not stop the fleet.
type Meter struct {
	runs   repository.RunRepository
	users  repository.UserRepository
	logger *slog.Logger
}

func NewMeter(runs repository.RunRepository, users repository.UserRepository, logger *slog.Logger) *Meter {
	return &Meter{runs: runs, users: users, logger: logger.With("component", "meter")}
}

// Allow reports whether the tenant may dispatch now. When the monthly cap is
// reached it returns false plus the start of the next UTC month, which the
// caller writes as the endpoint's next run — the one sanctioned case of
// pushing a run later.
func (m *Meter) Allow(ctx context.Context, tenantID string, now time.Time) (bool, time.Time) {
	user, err := m.users.FindByID(ctx, tenantID)
	if err != nil {
		m.logger.WarnContext(ctx, "tier lookup failed, allowing dispatch", "tenant_id", tenantID, "error", err)
		return true, time.Time{}
	}

	metrics, err := m.runs.Metrics(ctx, repository.MetricsFilter{
		UserID: tenantID,
		Since:  MonthStartUTC(now),
	})
	if err != nil {
		m.logger.WarnContext(ctx, "metering query failed, allowing dispatch", "tenant_id", tenantID, "error", err)
		return true, time.Time{}
	}

	cap := domain.LimitsFor(user.Tier).MonthlyRunCap
	if metrics.TotalRuns >= cap {
		return false, NextMonthStartUTC(now)
	}
	return true, time.Time{}
}

// MonthStartUTC returns midnight on the first of now's month, UTC.
func MonthStartUTC(now time.Time) time.Time {
	t := now.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMonthStartUTC returns midnight on the first of the following month, UTC.
func NextMonthStartUTC(now time.Time) time.Time {
	return MonthStartUTC(now).AddDate(0, 1, 0)
}
