package domain

import "fmt"

// ReasonFinalizationStarted is the only reason that may reopen a terminal job.
const ReasonFinalizationStarted = "finalization_started"

var validTransitions = map[JobState]map[JobState]bool{
	JobStatePending: {
		JobStateRunning: true,
		JobStateFailed:  true, // recovery of jobs that never started
	},
	JobStateRunning: {
		JobStateSucceeded: true,
		JobStateFailed:    true,
	},
	JobStateSucceeded: {},
	JobStateFailed:    {},
	JobStateCancelled: {},
}

// IsTerminal reports whether no ordinary transition may leave state.
func IsTerminal(state JobState) bool {
	return state == JobStateSucceeded || state == JobStateFailed || state == JobStateCancelled
}

// ValidateTransition checks a transition against the lifecycle rules.
// SUCCEEDED -> RUNNING is accepted only for finalization.
func ValidateTransition(from, to JobState, reason string) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown source state %q", ErrIllegalTransition, from)
	}
	if allowed[to] {
		return nil
	}
	if from == JobStateSucceeded && to == JobStateRunning && reason == ReasonFinalizationStarted {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s (%s)", ErrIllegalTransition, from, to, reason)
}
