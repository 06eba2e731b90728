package repository

import (
	"context"
	"time"

	"github.com/weskerllc/cronicorn/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, s *domain.AISession) (*domain.AISession, error)
	ListByEndpoint(ctx context.Context, endpointID string, limit int) ([]*domain.AISession, error)

	// TokenUsageSince sums token usage across a tenant's sessions from
	// `since` onward. Feeds the AI quota guard.
	TokenUsageSince(ctx context.Context, tenantID string, since time.Time) (int, error)
}
