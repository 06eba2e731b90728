package planner

import (
	"context"
	"log/slog"

	"github.com/weskerllc/cronicorn/internal/clock"
	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/repository"
	"github.com/weskerllc/cronicorn/internal/scheduler"
)

// QuotaGuard gates planner sessions on the tenant's monthly AI token budget.
// Unlike run metering it fails closed: LLM calls cost real money, so an
// unanswerable quota question means no call.
type QuotaGuard struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	clock    clock.Clock
	logger   *slog.Logger
}

func NewQuotaGuard(users repository.UserRepository, sessions repository.SessionRepository, clk clock.Clock, logger *slog.Logger) *QuotaGuard {
	return &QuotaGuard{
		users:    users,
		sessions: sessions,
		clock:    clk,
		logger:   logger.With("component", "quota"),
	}
}

func (q *QuotaGuard) CanProceed(ctx context.Context, tenantID string) bool {
	user, err := q.users.FindByID(ctx, tenantID)
	if err != nil {
		q.logger.WarnContext(ctx, "tier lookup failed, denying AI analysis", "tenant_id", tenantID, "error", err)
		return false
	}

	monthStart := scheduler.MonthStartUTC(q.clock.Now())
	used, err := q.sessions.TokenUsageSince(ctx, tenantID, monthStart)
	if err != nil {
		q.logger.WarnContext(ctx, "token usage lookup failed, denying AI analysis", "tenant_id", tenantID, "error", err)
		return false
	}

	cap := domain.LimitsFor(user.Tier).MonthlyAITokens
	if used >= cap {
		q.logger.InfoContext(ctx, "AI token cap reached", "tenant_id", tenantID, "used", used, "cap", cap)
		return false
	}
	return true
}
