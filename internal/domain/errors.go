package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidState      = errors.New("invalid job state")
	ErrAdmissionRejected = errors.New("admission rejected")
	ErrStageFailure      = errors.New("stage failure")
	ErrIllegalTransition = errors.New("illegal state transition")
	ErrNoTemplateMatch   = errors.New("no suitable template found")
)

// Stage names a pipeline step for failure attribution.
type Stage string

const (
	StageIngest      Stage = "ingest"
	StageInterpret   Stage = "interpret"
	StageRoute       Stage = "route"
	StageInstantiate Stage = "instantiate"
	StageValidate    Stage = "validate"
	StageCompile     Stage = "compile"
	StageSubmit      Stage = "submit"
	StagePoll        Stage = "poll"
	StageDownload    Stage = "download"
	StageStore       Stage = "store"
	StageRender      Stage = "render"
	StageFinalize    Stage = "finalize"
	StageInternal    Stage = "internal"
)

// AdmissionError is a recoverable rejection; callers retry after RetryAfter.
type AdmissionError struct {
	Reason     string
	RetryAfter time.Time
	Limit      int
	Current    int
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission rejected: %s (limit %d, retry after %s)", e.Reason, e.Limit, e.RetryAfter.UTC().Format(time.RFC3339))
}

func (e *AdmissionError) Unwrap() error { return ErrAdmissionRejected }

// ValidationError reports caller input that must be corrected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StageError attributes a workflow failure to a stage and, optionally, a shot.
type StageError struct {
	Stage  Stage
	ShotID *int
	Err    error
}

// NewStageError wraps err for stage.
func NewStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// NewShotError wraps err for a single shot.
func NewShotError(stage Stage, shotID int, err error) *StageError {
	id := shotID
	return &StageError{Stage: stage, ShotID: &id, Err: err}
}

func (e *StageError) Error() string {
	if e.ShotID != nil {
		return fmt.Sprintf("%s failed for shot %d: %v", e.Stage, *e.ShotID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error { return []error{ErrStageFailure, e.Err} }

// Details converts the error into the payload persisted on a FAILED job.
func (e *StageError) Details() *ErrorDetails {
	code := string(e.Stage) + "_failed"
	if errors.Is(e.Err, ErrNoTemplateMatch) {
		code = "no_template_match"
	}
	return &ErrorDetails{Stage: string(e.Stage), Code: code, Message: e.Err.Error(), ShotID: e.ShotID}
}

// InvalidStateError reports an operation attempted from the wrong state.
func InvalidStateError(op string, state JobState) error {
	return fmt.Errorf("%w: %s requires SUCCEEDED, job is %s", ErrInvalidState, op, state)
}
