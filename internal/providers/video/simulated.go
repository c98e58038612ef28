package video

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"prism/internal/domain"
)

// ErrUnknownTask is returned when polling an id the renderer never issued.
var ErrUnknownTask = errors.New("video: unknown task")

// SimulatedOptions tunes the simulated renderer.
type SimulatedOptions struct {
	// PendingPolls is how many polls report pending before a task finishes.
	PendingPolls int
	// MediaBaseURL prefixes the synthetic video URLs.
	MediaBaseURL string
	// FailSubmit, when set, rejects matching submissions.
	FailSubmit func(domain.RenderRequest) bool
	// FailRender, when set, makes matching tasks finish as failed.
	FailRender func(domain.RenderRequest) bool
}

// Simulated is an in-memory renderer used in mock mode and tests.
type Simulated struct {
	opts SimulatedOptions

	mu    sync.Mutex
	tasks map[string]*simTask
}

type simTask struct {
	req   domain.RenderRequest
	polls int
}

// NewSimulated returns a renderer that never leaves the process.
func NewSimulated(opts SimulatedOptions) *Simulated {
	if opts.MediaBaseURL == "" {
		opts.MediaBaseURL = "sim://renders"
	}
	return &Simulated{opts: opts, tasks: make(map[string]*simTask)}
}

func (s *Simulated) Submit(ctx context.Context, req domain.RenderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.opts.FailSubmit != nil && s.opts.FailSubmit(req) {
		return "", fmt.Errorf("video: simulated submission rejected for seed %d", req.Seed)
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.tasks[id] = &simTask{req: req}
	s.mu.Unlock()
	return id, nil
}

func (s *Simulated) Poll(ctx context.Context, taskID string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return Result{}, ErrUnknownTask
	}
	task.polls++
	if task.polls <= s.opts.PendingPolls {
		return Result{Status: StatusPending}, nil
	}
	if s.opts.FailRender != nil && s.opts.FailRender(task.req) {
		return Result{Status: StatusFailed, Error: "simulated render failure"}, nil
	}
	return Result{Status: StatusSucceeded, VideoURL: fmt.Sprintf("%s/%s.mp4", s.opts.MediaBaseURL, taskID)}, nil
}

// Submitted returns a copy of every request the renderer accepted.
func (s *Simulated) Submitted() []domain.RenderRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RenderRequest, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.req)
	}
	return out
}

var _ Renderer = (*Simulated)(nil)
