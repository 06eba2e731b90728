package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/weskerllc/cronicorn/internal/domain"
)

const sessionColumns = `id, endpoint_id, tenant_id, analyzed_at, tool_calls, reasoning,
	token_usage, duration_ms, next_analysis_at, endpoint_failure_count`

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.AISession) (*domain.AISession, error) {
	toolCalls, err := json.Marshal(s.ToolCalls)
	if err != nil {
		return nil, fmt.Errorf("marshal tool calls: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO ai_sessions (
			endpoint_id, tenant_id, analyzed_at, tool_calls, reasoning,
			token_usage, duration_ms, next_analysis_at, endpoint_failure_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+sessionColumns,
		s.EndpointID, s.TenantID, s.AnalyzedAt, toolCalls, s.Reasoning,
		s.TokenUsage, s.DurationMs, s.NextAnalysisAt, s.EndpointFailureCount)
	return scanSession(row)
}

func (r *SessionRepository) ListByEndpoint(ctx context.Context, endpointID string, limit int) ([]*domain.AISession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM ai_sessions
		WHERE endpoint_id = $1
		ORDER BY analyzed_at DESC
		LIMIT $2`, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.AISession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) TokenUsageSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(token_usage), 0) FROM ai_sessions
		WHERE tenant_id = $1 AND analyzed_at >= $2`, tenantID, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("token usage: %w", err)
	}
	return total, nil
}

func scanSession(row rowScanner) (*domain.AISession, error) {
	var s domain.AISession
	var toolCalls []byte
	err := row.Scan(
		&s.ID, &s.EndpointID, &s.TenantID, &s.AnalyzedAt, &toolCalls, &s.Reasoning,
		&s.TokenUsage, &s.DurationMs, &s.NextAnalysisAt, &s.EndpointFailureCount,
	)
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if len(toolCalls) > 0 {
		if err := json.Unmarshal(toolCalls, &s.ToolCalls); err != nil {
			return nil, fmt.Errorf("unmarshal tool calls: %w", err)
		}
	}
	return &s, nil
}
