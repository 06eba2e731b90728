package repository

import (
	"context"

	"github.com/weskerllc/cronicorn/internal/domain"
)

type UserRepository interface {
	// Upsert makes sure the authenticated user exists so FK constraints on
	// jobs and endpoints always hold.
	Upsert(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
}
