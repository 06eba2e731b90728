package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/repository"
)

const runColumns = `id, endpoint_id, tenant_id, attempt, started_at, finished_at,
	status, duration_ms, status_code, response_body, error_message, source`

// failureStreakLookback bounds how many recent runs the streak scan reads.
const failureStreakLookback = 50

type RunRepository struct {
	pool *pgxpool.Pool
}

func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

func (r *RunRepository) Create(ctx context.Context, in repository.CreateRunInput) (*domain.Run, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO runs (endpoint_id, tenant_id, attempt, started_at, status, source)
		VALUES ($1, $2, $3, $4, 'running', $5)
		RETURNING `+runColumns,
		in.EndpointID, in.TenantID, in.Attempt, in.StartedAt, in.Source)
	return scanRun(row)
}

// Finish closes a running row exactly once; a row already finalized (for
// example by the zombie sweep) is left untouched.
func (r *RunRepository) Finish(ctx context.Context, runID string, in repository.FinishRunInput) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE runs
		SET    status        = $2,
		       finished_at   = $3,
		       duration_ms   = $4,
		       status_code   = $5,
		       response_body = $6,
		       error_message = $7
		WHERE id = $1 AND status = 'running'`,
		runID, in.Status, in.FinishedAt, in.DurationMs, in.StatusCode, in.ResponseBody, in.ErrorMessage)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func (r *RunRepository) HealthSummary(ctx context.Context, endpointID string, now time.Time) (*domain.HealthSummary, error) {
	var s domain.HealthSummary
	var avg *float64
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE started_at >= $2 - INTERVAL '1 hour'  AND status = 'success'),
			COUNT(*) FILTER (WHERE started_at >= $2 - INTERVAL '1 hour'  AND status IN ('failed', 'timeout')),
			COUNT(*) FILTER (WHERE started_at >= $2 - INTERVAL '4 hours' AND status = 'success'),
			COUNT(*) FILTER (WHERE started_at >= $2 - INTERVAL '4 hours' AND status IN ('failed', 'timeout')),
			COUNT(*) FILTER (WHERE started_at >= $2 - INTERVAL '24 hours' AND status = 'success'),
			COUNT(*) FILTER (WHERE started_at >= $2 - INTERVAL '24 hours' AND status IN ('failed', 'timeout')),
			AVG(duration_ms) FILTER (WHERE started_at >= $2 - INTERVAL '24 hours' AND duration_ms IS NOT NULL)
		FROM runs
		WHERE endpoint_id = $1 AND status <> 'running'`,
		endpointID, now,
	).Scan(
		&s.Window1h.SuccessCount, &s.Window1h.FailureCount,
		&s.Window4h.SuccessCount, &s.Window4h.FailureCount,
		&s.Window24h.SuccessCount, &s.Window24h.FailureCount,
		&avg,
	)
	if err != nil {
		return nil, fmt.Errorf("health summary: %w", err)
	}
	if avg != nil {
		s.AvgDurationMs = *avg
	}
	fillRate(&s.Window1h)
	fillRate(&s.Window4h)
	fillRate(&s.Window24h)

	streak, err := r.failureStreak(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	s.FailureStreak = streak
	return &s, nil
}

// failureStreak counts the tail of the chronological run list that ends in
// non-success runs. Derived here rather than stored so it can never go stale.
func (r *RunRepository) failureStreak(ctx context.Context, endpointID string) (int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status FROM runs
		WHERE endpoint_id = $1 AND status <> 'running'
		ORDER BY started_at DESC
		LIMIT $2`, endpointID, failureStreakLookback)
	if err != nil {
		return 0, fmt.Errorf("failure streak: %w", err)
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var status domain.RunStatus
		if err := rows.Scan(&status); err != nil {
			return 0, fmt.Errorf("scan run status: %w", err)
		}
		if status == domain.RunStatusSuccess {
			break
		}
		streak++
	}
	return streak, rows.Err()
}

func fillRate(w *domain.HealthWindow) {
	total := w.SuccessCount + w.FailureCount
	if total > 0 {
		w.SuccessRate = float64(w.SuccessCount) / float64(total)
	}
}

func (r *RunRepository) LatestResponse(ctx context.Context, endpointID string) (*domain.Run, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE endpoint_id = $1 AND status <> 'running'
		ORDER BY started_at DESC
		LIMIT 1`, endpointID)
	return scanRun(row)
}

func (r *RunRepository) ResponseHistory(ctx context.Context, endpointID string, limit, offset int) ([]*domain.Run, error) {
	if limit <= 0 || limit > 10 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE endpoint_id = $1 AND status <> 'running'
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`, endpointID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("response history: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// SiblingLatestResponses returns the newest finished run of every other
// endpoint in the job — one row per sibling.
func (r *RunRepository) SiblingLatestResponses(ctx context.Context, jobID, excludingEndpointID string) ([]*domain.Run, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (r.endpoint_id) `+runColumnsQualified+`
		FROM runs r
		JOIN endpoints e ON e.id = r.endpoint_id
		WHERE e.job_id = $1
		  AND r.endpoint_id <> $2
		  AND e.archived_at IS NULL
		  AND r.status <> 'running'
		ORDER BY r.endpoint_id, r.started_at DESC`, jobID, excludingEndpointID)
	if err != nil {
		return nil, fmt.Errorf("sibling latest responses: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func (r *RunRepository) ListByEndpoint(ctx context.Context, endpointID string, limit, offset int) ([]*domain.Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE endpoint_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`, endpointID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func (r *RunRepository) Metrics(ctx context.Context, f repository.MetricsFilter) (*domain.UsageMetrics, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE r.status = 'success'),
			COUNT(*) FILTER (WHERE r.status IN ('failed', 'timeout')),
			COALESCE(AVG(r.duration_ms) FILTER (WHERE r.duration_ms IS NOT NULL), 0)
		FROM runs r
		WHERE r.tenant_id = $1 AND r.started_at >= $2`
	args := []any{f.UserID, f.Since}

	if f.JobID != nil {
		args = append(args, *f.JobID)
		query += fmt.Sprintf(` AND r.endpoint_id IN (SELECT id FROM endpoints WHERE job_id = $%d)`, len(args))
	}
	if f.Source != nil {
		args = append(args, *f.Source)
		query += fmt.Sprintf(` AND r.source = $%d`, len(args))
	}

	var m domain.UsageMetrics
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&m.TotalRuns, &m.SuccessCount, &m.FailureCount, &m.AvgDurationMs)
	if err != nil {
		return nil, fmt.Errorf("run metrics: %w", err)
	}
	return &m, nil
}

// CleanupZombies sweeps rows stuck in running past maxAge to failed. The
// owning worker either crashed or lost its database connection; its lease
// has expired by now and the next claim reschedules the endpoint.
func (r *RunRepository) CleanupZombies(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	cutoff := now.Add(-maxAge)
	tag, err := r.pool.Exec(ctx, `
		UPDATE runs
		SET    status        = 'failed',
		       finished_at   = $2,
		       error_message = 'zombie'
		WHERE status = 'running' AND started_at < $1`, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("cleanup zombie runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const runColumnsQualified = `r.id, r.endpoint_id, r.tenant_id, r.attempt, r.started_at, r.finished_at,
	r.status, r.duration_ms, r.status_code, r.response_body, r.error_message, r.source`

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	err := row.Scan(
		&run.ID, &run.EndpointID, &run.TenantID, &run.Attempt, &run.StartedAt, &run.FinishedAt,
		&run.Status, &run.DurationMs, &run.StatusCode, &run.ResponseBody, &run.ErrorMessage, &run.Source,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &run, nil
}

func scanRuns(rows pgx.Rows) ([]*domain.Run, error) {
	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
