package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/repository"
)

const jobColumns = `id, user_id, name, description, status, created_at, updated_at`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO jobs (user_id, name, description, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+jobColumns,
		job.UserID, job.Name, job.Description, job.Status)

	created, err := scanJob(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrJobNameConflict
		}
		return nil, err
	}
	return created, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id, userID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id = $2`, id, userID)
	return scanJob(row)
}

func (r *JobRepository) List(ctx context.Context, userID string) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE user_id = $1 AND status <> 'archived'
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) Update(ctx context.Context, id, userID string, in repository.UpdateJobInput) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE jobs
		SET    name        = COALESCE($3, name),
		       description = COALESCE($4, description),
		       status      = COALESCE($5, status),
		       updated_at  = NOW()
		WHERE id = $1 AND user_id = $2 AND status <> 'archived'
		RETURNING `+jobColumns,
		id, userID, in.Name, in.Description, in.Status)
	return scanJob(row)
}

// Archive flips the job to archived and archives every child endpoint in the
// same transaction, so a crash can never leave live endpoints under a dead job.
func (r *JobRepository) Archive(ctx context.Context, id, userID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE jobs SET status = 'archived', updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status <> 'archived'`, id, userID)
	if err != nil {
		return fmt.Errorf("archive job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}

	if _, err := tx.Exec(ctx, `
		UPDATE endpoints SET archived_at = NOW(), updated_at = NOW()
		WHERE job_id = $1 AND archived_at IS NULL`, id); err != nil {
		return fmt.Errorf("archive job endpoints: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(&j.ID, &j.UserID, &j.Name, &j.Description, &j.Status, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}
