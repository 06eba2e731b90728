package domain

import (
	"errors"
	"time"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobNameConflict = errors.New("job with this name already exists")
)

type JobStatus string

const (
	JobStatusActive   JobStatus = "active"
	JobStatusPaused   JobStatus = "paused"
	JobStatusArchived JobStatus = "archived"
)

// Job is a logical grouping of endpoints owned by one user. Jobs are never
// destroyed — archiving a job archives all of its endpoints with it, and a
// paused job suppresses dispatch of every child endpoint.
type Job struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userID"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Status      JobStatus `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
