package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"prism/internal/domain"
)

// MemoryJobRepository keeps jobs in process memory. Used in mock mode and tests.
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

// NewMemoryJobRepository returns an empty in-memory repository.
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*domain.Job)}
}

func (r *MemoryJobRepository) Create(_ context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("create job: missing id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("create job %s: already exists", job.ID)
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *MemoryJobRepository) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// Update runs mutate on a private copy and swaps it in only when mutate succeeds.
func (r *MemoryJobRepository) Update(_ context.Context, jobID string, mutate domain.MutateFunc) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	r.jobs[jobID] = next
	return next.Clone(), nil
}

func (r *MemoryJobRepository) ListByState(_ context.Context, states ...domain.JobState) ([]*domain.Job, error) {
	want := make(map[domain.JobState]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Job
	for _, job := range r.jobs {
		if want[job.State] {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ domain.JobRepository = (*MemoryJobRepository)(nil)
