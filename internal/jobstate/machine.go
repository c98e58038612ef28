// Package jobstate records validated lifecycle transitions on jobs.
package jobstate

import (
	"context"
	"fmt"
	"time"

	"prism/internal/domain"
	"prism/internal/infra"
)

// Machine applies transitions through the repository's atomic update so the
// audit log and the state column always move together.
type Machine struct {
	repo   domain.JobRepository
	logger infra.Logger
	now    func() time.Time
}

// New returns a Machine writing through repo.
func New(repo domain.JobRepository, logger infra.Logger) *Machine {
	return &Machine{repo: repo, logger: logger, now: time.Now}
}

// Transition moves the job to state `to`, appending one audit entry.
// Illegal transitions return domain.ErrIllegalTransition and leave the job untouched.
func (m *Machine) Transition(ctx context.Context, jobID string, to domain.JobState, reason string) (*domain.Job, error) {
	return m.TransitionWith(ctx, jobID, to, reason, nil)
}

// TransitionWith applies mutate and the transition in the same atomic write.
// mutate runs after validation, so it never sees an illegal move.
func (m *Machine) TransitionWith(ctx context.Context, jobID string, to domain.JobState, reason string, mutate domain.MutateFunc) (*domain.Job, error) {
	var from domain.JobState
	job, err := m.repo.Update(ctx, jobID, func(job *domain.Job) error {
		from = job.State
		if err := domain.ValidateTransition(job.State, to, reason); err != nil {
			return fmt.Errorf("job %s: %w", jobID, err)
		}
		if mutate != nil {
			if err := mutate(job); err != nil {
				return err
			}
		}
		Append(job, to, reason, m.now())
		return nil
	})
	if err != nil {
		m.logger.Error().Err(err).Str("job_id", jobID).Str("to", string(to)).Str("reason", reason).Msg("jobstate: transition rejected")
		return nil, err
	}
	m.logger.Info().Str("job_id", jobID).Str("from", string(from)).Str("to", string(to)).Str("reason", reason).Msg("jobstate: transition")
	return job, nil
}

// History returns the job's audit log in execution order.
func (m *Machine) History(ctx context.Context, jobID string) ([]domain.StateTransition, error) {
	job, err := m.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job.StateTransitions, nil
}

// IsTerminal reports whether state ends the ordinary lifecycle.
func IsTerminal(state domain.JobState) bool {
	return domain.IsTerminal(state)
}

// Append records a transition on an in-memory job without validation. Used
// for the initial PENDING entry and inside already-validated mutations.
func Append(job *domain.Job, to domain.JobState, reason string, at time.Time) {
	job.StateTransitions = append(job.StateTransitions, domain.StateTransition{
		From:      job.State,
		To:        to,
		Timestamp: at.UTC(),
		Reason:    reason,
	})
	job.State = to
}
