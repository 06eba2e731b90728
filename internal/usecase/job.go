package usecase

import (
	"context"
	"fmt"

	"github.com/weskerllc/cronicorn/internal/domain"
	"github.com/weskerllc/cronicorn/internal/repository"
)

type JobUsecase struct {
	jobs repository.JobRepository
}

func NewJobUsecase(jobs repository.JobRepository) *JobUsecase {
	return &JobUsecase{jobs: jobs}
}

type CreateJobInput struct {
	UserID      string
	Name        string
	Description *string
}

func (u *JobUsecase) CreateJob(ctx context.Context, input CreateJobInput) (*domain.Job, error) {
	job := &domain.Job{
		UserID:      input.UserID,
		Name:        input.Name,
		Description: input.Description,
		Status:      domain.JobStatusActive,
	}
	created, err := u.jobs.Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return created, nil
}

func (u *JobUsecase) GetJob(ctx context.Context, id, userID string) (*domain.Job, error) {
	job, err := u.jobs.GetByID(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (u *JobUsecase) ListJobs(ctx context.Context, userID string) ([]*domain.Job, error) {
	jobs, err := u.jobs.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

type UpdateJobInput struct {
	Name        *string
	Description *string
	Status      *domain.JobStatus
}

func (u *JobUsecase) UpdateJob(ctx context.Context, id, userID string, input UpdateJobInput) (*domain.Job, error) {
	// Archiving goes through ArchiveJob so the endpoint cascade applies.
	if input.Status != nil && *input.Status != domain.JobStatusActive && *input.Status != domain.JobStatusPaused {
		return nil, domain.ErrJobNotFound
	}
	job, err := u.jobs.Update(ctx, id, userID, repository.UpdateJobInput{
		Name:        input.Name,
		Description: input.Description,
		Status:      input.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	return job, nil
}

func (u *JobUsecase) ArchiveJob(ctx context.Context, id, userID string) error {
	if err := u.jobs.Archive(ctx, id, userID); err != nil {
		return fmt.Errorf("archive job: %w", err)
	}
	return nil
}
