package repository

import (
	"context"

	"github.com/weskerllc/cronicorn/internal/domain"
)

type UpdateJobInput struct {
	Name        *string
	Description *string
	Status      *domain.JobStatus
}

type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) (*domain.Job, error)
	GetByID(ctx context.Context, id, userID string) (*domain.Job, error)
	List(ctx context.Context, userID string) ([]*domain.Job, error)
	Update(ctx context.Context, id, userID string, in UpdateJobInput) (*domain.Job, error)

	// Archive sets the job to archived and archives all child endpoints in
	// the same transaction.
	Archive(ctx context.Context, id, userID string) error
}
