package domain

import "context"

// MutateFunc edits a job inside a single atomic read-modify-write.
// Returning an error aborts the write.
type MutateFunc func(job *Job) error

// JobRepository defines persistence for job entities.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	Update(ctx context.Context, jobID string, mutate MutateFunc) (*Job, error)
	ListByState(ctx context.Context, states ...JobState) ([]*Job, error)
}
