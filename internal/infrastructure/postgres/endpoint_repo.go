package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/repository"
)

const endpointColumns = `id, job_id, tenant_id, name, description,
	cron_expr, baseline_interval_ms, min_interval_ms, max_interval_ms,
	url, method, headers, body, timeout_ms, max_execution_time_ms, max_response_size_kb,
	next_run_at, last_run_at, failure_count, paused_until, locked_until,
	ai_hint_interval_ms, ai_hint_next_run_at, ai_hint_expires_at, ai_hint_reason,
	archived_at, created_at, updated_at`

// endpointColumnsQualified disambiguates the column list in joined queries.
const endpointColumnsQualified = `e.id, e.job_id, e.tenant_id, e.name, e.description,
	e.cron_expr, e.baseline_interval_ms, e.min_interval_ms, e.max_interval_ms,
	e.url, e.method, e.headers, e.body, e.timeout_ms, e.max_execution_time_ms, e.max_response_size_kb,
	e.next_run_at, e.last_run_at, e.failure_count, e.paused_until, e.locked_until,
	e.ai_hint_interval_ms, e.ai_hint_next_run_at, e.ai_hint_expires_at, e.ai_hint_reason,
	e.archived_at, e.created_at, e.updated_at`

type EndpointRepository struct {
	pool *pgxpool.Pool
}

func NewEndpointRepository(pool *pgxpool.Pool) *EndpointRepository {
	return &EndpointRepository{pool: pool}
}

func (r *EndpointRepository) Create(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error) {
	query := `
		INSERT INTO endpoints (
			job_id, tenant_id, name, description,
			cron_expr, baseline_interval_ms, min_interval_ms, max_interval_ms,
			url, method, headers, body, timeout_ms, max_execution_time_ms, max_response_size_kb,
			next_run_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING ` + endpointColumns

	row := r.pool.QueryRow(ctx, query,
		e.JobID, e.TenantID, e.Name, e.Description,
		e.CronExpr, e.BaselineIntervalMs, e.MinIntervalMs, e.MaxIntervalMs,
		e.URL, e.Method, e.Headers, e.Body, e.TimeoutMs, e.MaxExecutionTimeMs, e.MaxResponseSizeKb,
		e.NextRunAt,
	)

	created, err := scanEndpoint(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrEndpointNameConflict
		}
		return nil, err
	}
	return created, nil
}

func (r *EndpointRepository) GetByID(ctx context.Context, id string) (*domain.Endpoint, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE id = $1`, id)
	return scanEndpoint(row)
}

func (r *EndpointRepository) GetByIDForUser(ctx context.Context, id, userID string) (*domain.Endpoint, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE id = $1 AND tenant_id = $2`, id, userID)
	return scanEndpoint(row)
}

func (r *EndpointRepository) ListByJob(ctx context.Context, jobID string) ([]*domain.Endpoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+endpointColumns+` FROM endpoints
		 WHERE job_id = $1 AND archived_at IS NULL
		 ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

func (r *EndpointRepository) Update(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error) {
	query := `
		UPDATE endpoints SET
			name = $3, description = $4,
			cron_expr = $5, baseline_interval_ms = $6,
			min_interval_ms = $7, max_interval_ms = $8,
			url = $9, method = $10, headers = $11, body = $12,
			timeout_ms = $13, max_execution_time_ms = $14, max_response_size_kb = $15,
			next_run_at = $16, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND archived_at IS NULL
		RETURNING ` + endpointColumns

	row := r.pool.QueryRow(ctx, query,
		e.ID, e.TenantID, e.Name, e.Description,
		e.CronExpr, e.BaselineIntervalMs, e.MinIntervalMs, e.MaxIntervalMs,
		e.URL, e.Method, e.Headers, e.Body,
		e.TimeoutMs, e.MaxExecutionTimeMs, e.MaxResponseSizeKb,
		e.NextRunAt,
	)
	return scanEndpoint(row)
}

func (r *EndpointRepository) Archive(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE endpoints SET archived_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND archived_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("archive endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEndpointNotFound
	}
	return nil
}

func (r *EndpointRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM endpoints WHERE tenant_id = $1 AND archived_at IS NULL`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count endpoints: %w", err)
	}
	return count, nil
}

// ClaimDue is the scheduler's single-statement claim. FOR UPDATE SKIP LOCKED
// guarantees two concurrent workers never lease the same endpoint.
func (r *EndpointRepository) ClaimDue(ctx context.Context, now, until time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE endpoints
		SET    locked_until = $2,
		       updated_at   = NOW()
		WHERE id IN (
			SELECT e.id FROM endpoints e
			JOIN jobs j ON j.id = e.job_id
			WHERE  e.next_run_at <= $1
			  AND  (e.locked_until IS NULL OR e.locked_until < $1)
			  AND  (e.paused_until IS NULL OR e.paused_until <= $1)
			  AND  e.archived_at IS NULL
			  AND  j.status = 'active'
			ORDER BY e.next_run_at ASC
			LIMIT $3
			FOR UPDATE OF e SKIP LOCKED
		)
		RETURNING id`, now, until, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due endpoints: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan claimed id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *EndpointRepository) SetLock(ctx context.Context, id string, until time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE endpoints SET locked_until = $2, updated_at = NOW() WHERE id = $1`, id, until)
	return err
}

func (r *EndpointRepository) ClearLock(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE endpoints SET locked_until = NULL, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// UpdateAfterRun advances execution state and releases the lease in one
// statement, so a crash can never leave a half-advanced endpoint.
func (r *EndpointRepository) UpdateAfterRun(ctx context.Context, id string, in repository.UpdateAfterRunInput) (int, error) {
	var failureCount int
	err := r.pool.QueryRow(ctx, `
		UPDATE endpoints
		SET    last_run_at   = $2,
		       next_run_at   = $3,
		       failure_count = CASE WHEN $4 THEN 0 ELSE LEAST(failure_count + 1, 1000000) END,
		       locked_until  = NULL,
		       updated_at    = NOW()
		WHERE id = $1
		RETURNING failure_count`,
		id, in.LastRunAt, in.NextRunAt, in.ResetFailures,
	).Scan(&failureCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrEndpointNotFound
		}
		return 0, fmt.Errorf("update after run: %w", err)
	}
	return failureCount, nil
}

// SetNextRunAtIfEarlier only ever pulls a run earlier; applying it N times
// is the same as applying it once.
func (r *EndpointRepository) SetNextRunAtIfEarlier(ctx context.Context, id string, candidate time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE endpoints SET next_run_at = LEAST(next_run_at, $2), updated_at = NOW()
		 WHERE id = $1 AND archived_at IS NULL`, id, candidate)
	return err
}

func (r *EndpointRepository) SetNextRunAt(ctx context.Context, id string, next time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE endpoints SET next_run_at = $2, updated_at = NOW()
		 WHERE id = $1 AND archived_at IS NULL`, id, next)
	return err
}

func (r *EndpointRepository) WriteAIHint(ctx context.Context, id string, hint domain.AIHint) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE endpoints
		SET    ai_hint_interval_ms = $2,
		       ai_hint_next_run_at = $3,
		       ai_hint_expires_at  = $4,
		       ai_hint_reason      = $5,
		       updated_at          = NOW()
		WHERE id = $1 AND archived_at IS NULL`,
		id, hint.IntervalMs, hint.NextRunAt, hint.ExpiresAt, hint.Reason)
	return err
}

func (r *EndpointRepository) ClearAIHints(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE endpoints
		SET    ai_hint_interval_ms = NULL,
		       ai_hint_next_run_at = NULL,
		       ai_hint_expires_at  = NULL,
		       ai_hint_reason      = NULL,
		       updated_at          = NOW()
		WHERE id = $1`, id)
	return err
}

func (r *EndpointRepository) SetPausedUntil(ctx context.Context, id string, until *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE endpoints SET paused_until = $2, updated_at = NOW()
		 WHERE id = $1 AND archived_at IS NULL`, id, until)
	return err
}

func (r *EndpointRepository) ResetFailureCount(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE endpoints SET failure_count = 0, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// ListDueForAnalysis picks active endpoints whose most recent planner session
// scheduled next_analysis_at at or before now, or that were never analyzed.
func (r *EndpointRepository) ListDueForAnalysis(ctx context.Context, now time.Time, limit int) ([]*domain.Endpoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+endpointColumnsQualified+` FROM endpoints e
		JOIN jobs j ON j.id = e.job_id
		LEFT JOIN LATERAL (
			SELECT next_analysis_at FROM ai_sessions
			WHERE endpoint_id = e.id
			ORDER BY analyzed_at DESC
			LIMIT 1
		) latest ON TRUE
		WHERE e.archived_at IS NULL
		  AND j.status = 'active'
		  AND (latest.next_analysis_at IS NULL OR latest.next_analysis_at <= $1)
		ORDER BY e.next_run_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due for analysis: %w", err)
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

func scanEndpoint(row rowScanner) (*domain.Endpoint, error) {
	var e domain.Endpoint
	err := row.Scan(
		&e.ID, &e.JobID, &e.TenantID, &e.Name, &e.Description,
		&e.CronExpr, &e.BaselineIntervalMs, &e.MinIntervalMs, &e.MaxIntervalMs,
		&e.URL, &e.Method, &e.Headers, &e.Body, &e.TimeoutMs, &e.MaxExecutionTimeMs, &e.MaxResponseSizeKb,
		&e.NextRunAt, &e.LastRunAt, &e.FailureCount, &e.PausedUntil, &e.LockedUntil,
		&e.AIHintIntervalMs, &e.AIHintNextRunAt, &e.AIHintExpiresAt, &e.AIHintReason,
		&e.ArchivedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEndpointNotFound
		}
		return nil, fmt.Errorf("scan endpoint: %w", err)
	}
	return &e, nil
}

func scanEndpoints(rows pgx.Rows) ([]*domain.Endpoint, error) {
	var endpoints []*domain.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}
