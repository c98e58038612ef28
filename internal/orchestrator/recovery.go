package orchestrator

import (
	"context"
	"errors"
	"time"

	"prism/internal/domain"
	"prism/internal/infra"
	"prism/internal/jobstate"
)

// ReasonRestart marks jobs failed by the startup sweep.
const ReasonRestart = "orchestrator_restart"

// SlotReleaser is implemented by admission controllers that can return a
// concurrency slot without the release func from Admit.
type SlotReleaser interface {
	DecrementConcurrency(ctx context.Context, clientID string) error
}

// Sweeper fails open jobs whose workflow can no longer be running.
type Sweeper struct {
	repo     domain.JobRepository
	machine  *jobstate.Machine
	releaser SlotReleaser
	log      infra.Logger
	now      func() time.Time
}

// NewSweeper builds a sweeper over repo. releaser may be nil.
func NewSweeper(repo domain.JobRepository, releaser SlotReleaser, logger infra.Logger, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		repo:     repo,
		machine:  jobstate.New(repo, logger),
		releaser: releaser,
		log:      logger,
		now:      now,
	}
}

// Sweep fails PENDING and RUNNING jobs whose last transition is older than
// staleAfter and hands back the slot recorded in SlotClient, if any.
// staleAfter <= 0 sweeps every open job.
func (s *Sweeper) Sweep(ctx context.Context, staleAfter time.Duration) (int, error) {
	jobs, err := s.repo.ListByState(ctx, domain.JobStatePending, domain.JobStateRunning)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-staleAfter)

	recovered := 0
	var errs []error
	for _, job := range jobs {
		last := job.UpdatedAt
		if tr, ok := job.LastTransition(); ok {
			last = tr.Timestamp
		}
		if staleAfter > 0 && last.After(cutoff) {
			continue
		}
		details := &domain.ErrorDetails{
			Stage:   string(domain.StageInternal),
			Code:    ReasonRestart,
			Message: "job was interrupted by an orchestrator restart",
		}
		_, err := s.machine.TransitionWith(ctx, job.ID, domain.JobStateFailed, ReasonRestart, func(j *domain.Job) error {
			j.ErrorDetails = details
			return nil
		})
		if err != nil {
			// Another instance may have finished it between list and update.
			if errors.Is(err, domain.ErrIllegalTransition) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		recovered++
		if s.releaser != nil && job.SlotClient != "" {
			if err := s.releaser.DecrementConcurrency(ctx, job.SlotClient); err != nil {
				errs = append(errs, err)
			}
		}
		s.log.Warn().Str("job_id", job.ID).Str("previous_state", string(job.State)).Msg("orchestrator: recovered stale job")
	}
	return recovered, errors.Join(errs...)
}

// Recover runs one sweep with the engine's repository and admission
// controller. Call it before serving traffic.
func (e *Engine) Recover(ctx context.Context, staleAfter time.Duration) (int, error) {
	releaser, _ := e.deps.Admission.(SlotReleaser)
	return NewSweeper(e.deps.Repo, releaser, e.log, e.opts.Now).Sweep(ctx, staleAfter)
}
