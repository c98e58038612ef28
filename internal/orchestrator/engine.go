// Package orchestrator runs the generation, revision and finalization
// workflows against a job repository and a set of pipeline collaborators.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"prism/internal/domain"
	"prism/internal/infra"
	"prism/internal/input"
	"prism/internal/jobstate"
	"prism/internal/observability"
	"prism/internal/providers/video"
	"prism/internal/storage"
)

// ErrShuttingDown rejects new work once Shutdown has begun.
var ErrShuttingDown = errors.New("orchestrator: shutting down")

// Admitter gates job creation. holder is the counter that carries the slot,
// empty when none was taken. release must be called when the workflow ends.
type Admitter interface {
	Admit(ctx context.Context, clientID string) (holder string, release func(), err error)
}

// InputProcessor scrubs raw text at ingest.
type InputProcessor interface {
	Process(raw, locale string) input.Result
}

// Interpreter produces the IR for redacted text.
type Interpreter interface {
	Interpret(ctx context.Context, text string, mode domain.QualityMode) (*domain.IR, error)
}

// TemplateRouter matches IRs to catalog templates.
type TemplateRouter interface {
	Match(ctx context.Context, ir *domain.IR) (domain.TemplateMatch, error)
	Lookup(id string) (*domain.Template, bool)
}

// PromptCompiler turns a shot into a render request.
type PromptCompiler interface {
	Compile(shot domain.Shot, plan *domain.ShotPlan, ir *domain.IR, resolution string) domain.RenderRequest
}

// AssetStore moves downloaded media into permanent storage.
type AssetStore interface {
	Promote(ctx context.Context, jobID string, shotID int, tempPath string, final bool) (string, error)
}

// Deps are the collaborators the engine drives.
type Deps struct {
	Repo        domain.JobRepository
	Admission   Admitter
	Input       InputProcessor
	Interpreter Interpreter
	Router      TemplateRouter
	Compiler    PromptCompiler
	Renderer    video.Renderer
	Downloader  storage.Downloader
	Store       AssetStore
}

// Options tunes timing and parallelism.
type Options struct {
	PollInterval         time.Duration
	ShotTimeout          time.Duration
	JobTimeout           time.Duration
	MaxParallelShots     int
	SubmitMaxRetries     int
	RetryInitialInterval time.Duration
	Logger               infra.Logger
	Metrics              *observability.Metrics
	Now                  func() time.Time
}

// Engine owns background workflows. Construct once per process.
type Engine struct {
	deps    Deps
	opts    Options
	log     infra.Logger
	machine *jobstate.Machine

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New validates deps and applies option defaults.
func New(deps Deps, opts Options) (*Engine, error) {
	switch {
	case deps.Repo == nil:
		return nil, errors.New("orchestrator: job repository is required")
	case deps.Input == nil, deps.Interpreter == nil, deps.Router == nil, deps.Compiler == nil:
		return nil, errors.New("orchestrator: pipeline collaborators are required")
	case deps.Renderer == nil, deps.Downloader == nil, deps.Store == nil:
		return nil, errors.New("orchestrator: render collaborators are required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.ShotTimeout <= 0 {
		opts.ShotTimeout = 10 * time.Minute
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Minute
	}
	if opts.MaxParallelShots <= 0 {
		opts.MaxParallelShots = 4
	}
	if opts.SubmitMaxRetries <= 0 {
		opts.SubmitMaxRetries = 3
	}
	if opts.RetryInitialInterval <= 0 {
		opts.RetryInitialInterval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		deps:    deps,
		opts:    opts,
		log:     opts.Logger,
		machine: jobstate.New(deps.Repo, opts.Logger),
		baseCtx: ctx,
		cancel:  cancel,
	}, nil
}

// GenerationRequest is the input of SubmitGeneration.
type GenerationRequest struct {
	Text        string
	QualityMode string
	Resolution  string
	ClientID    string
	Locale      string
}

// SubmitGeneration admits the request, records a PENDING job and starts the
// pipeline in the background. It returns without waiting for any stage.
func (e *Engine) SubmitGeneration(ctx context.Context, req GenerationRequest) (*domain.Job, error) {
	if e.isClosed() {
		return nil, ErrShuttingDown
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, &domain.ValidationError{Field: "user_input", Message: "input text is required"}
	}
	mode, err := domain.ParseQualityMode(req.QualityMode)
	if err != nil {
		return nil, err
	}
	resolution, err := normalizeResolution(req.Resolution, domain.DefaultResolution)
	if err != nil {
		return nil, err
	}

	holder, release, err := e.admit(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	ingested := e.deps.Input.Process(req.Text, req.Locale)
	now := e.opts.Now().UTC()
	job := &domain.Job{
		ID:                uuid.NewString(),
		ClientID:          req.ClientID,
		SlotClient:        holder,
		UserInputRedacted: ingested.Redacted,
		UserInputHash:     ingested.Hash,
		PIIFlags:          ingested.PIIFlags,
		Locale:            ingested.Locale,
		QualityMode:       mode,
		Resolution:        resolution,
		Assets:            []domain.Asset{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	jobstate.Append(job, domain.JobStatePending, "job_created", now)
	if err := e.deps.Repo.Create(ctx, job); err != nil {
		release()
		return nil, fmt.Errorf("orchestrator: create job: %w", err)
	}
	e.log.Info().Str("job_id", job.ID).Str("client_id", req.ClientID).Str("quality_mode", string(mode)).Strs("pii_flags", job.PIIFlags).Msg("orchestrator: generation accepted")

	e.launch(kindGeneration, job.ID, release, func(ctx context.Context) error {
		return e.runGeneration(ctx, job.ID)
	})
	return job, nil
}

// GetJob returns the current snapshot of a job.
func (e *Engine) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return e.deps.Repo.GetByID(ctx, jobID)
}

// History returns a job's transition log.
func (e *Engine) History(ctx context.Context, jobID string) ([]domain.StateTransition, error) {
	return e.machine.History(ctx, jobID)
}

// Shutdown stops accepting work and waits for in-flight workflows. When ctx
// expires first, running workflows are cancelled and still recorded as FAILED.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.log.Warn().Msg("orchestrator: shutdown deadline reached, cancelling workflows")
		e.cancel()
		<-done
		return ctx.Err()
	}
}

const (
	kindGeneration   = "generation"
	kindRevision     = "revision"
	kindFinalization = "finalization"
)

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) admit(ctx context.Context, clientID string) (string, func(), error) {
	if e.deps.Admission == nil {
		return "", func() {}, nil
	}
	return e.deps.Admission.Admit(ctx, clientID)
}

// admitDerived gates revision and finalization only when the caller
// identified itself.
func (e *Engine) admitDerived(ctx context.Context, clientID string) (string, func(), error) {
	if clientID == "" {
		return "", func() {}, nil
	}
	return e.admit(ctx, clientID)
}

// launch runs fn in the background. release always runs exactly once, after
// the job has reached a terminal state or the launch was refused.
func (e *Engine) launch(kind, jobID string, release func(), fn func(ctx context.Context) error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		defer release()
		e.fail(e.baseCtx, jobID, NewShutdownError())
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	e.opts.Metrics.WorkflowStarted(kind)
	go func() {
		defer e.wg.Done()
		defer release()
		ctx, cancel := context.WithTimeout(e.baseCtx, e.opts.JobTimeout)
		defer cancel()
		state := e.runWorkflow(ctx, kind, jobID, fn)
		e.opts.Metrics.WorkflowFinished(kind, string(state))
	}()
}

// runWorkflow is the workflow boundary: errors and panics escaping fn turn
// the job FAILED instead of propagating.
func (e *Engine) runWorkflow(ctx context.Context, kind, jobID string, fn func(ctx context.Context) error) (state domain.JobState) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("job_id", jobID).Str("workflow", kind).Interface("panic", r).Msg("orchestrator: workflow panicked")
			state = e.fail(ctx, jobID, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			err = e.abortError(ctx)
		}
		return e.fail(ctx, jobID, err)
	}
	e.opts.Metrics.ObserveStage(kind, start)
	if job, err := e.deps.Repo.GetByID(context.WithoutCancel(ctx), jobID); err == nil {
		return job.State
	}
	return ""
}

// abortError attributes a cancelled workflow to shutdown or to its own deadline.
func (e *Engine) abortError(ctx context.Context) error {
	if e.baseCtx.Err() != nil {
		return NewShutdownError()
	}
	return domain.NewStageError(domain.StageInternal, fmt.Errorf("workflow aborted: %w", ctx.Err()))
}

// fail records err on the job and moves it to FAILED. It writes with a
// detached context so jobs whose own deadline expired are still closed out.
func (e *Engine) fail(ctx context.Context, jobID string, err error) domain.JobState {
	details := errorDetails(err)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	e.log.Error().Err(err).Str("job_id", jobID).Str("stage", details.Stage).Str("code", details.Code).Msg("orchestrator: job failed")
	_, terr := e.machine.TransitionWith(wctx, jobID, domain.JobStateFailed, details.Code, func(job *domain.Job) error {
		job.ErrorDetails = details
		return nil
	})
	if terr != nil {
		e.log.Error().Err(terr).Str("job_id", jobID).Msg("orchestrator: could not record failure")
		if job, gerr := e.deps.Repo.GetByID(wctx, jobID); gerr == nil {
			return job.State
		}
		return ""
	}
	return domain.JobStateFailed
}

// NewShutdownError is recorded on jobs that could not start because the engine stopped.
func NewShutdownError() error {
	return &domain.StageError{Stage: domain.StageInternal, Err: ErrShuttingDown}
}

func errorDetails(err error) *domain.ErrorDetails {
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		d := stageErr.Details()
		if errors.Is(err, ErrShuttingDown) {
			d.Code = "shutdown"
		}
		if errors.Is(err, context.DeadlineExceeded) && stageErr.Stage == domain.StageInternal {
			d.Code = "job_timeout"
		}
		return d
	}
	return &domain.ErrorDetails{Stage: string(domain.StageInternal), Code: "internal_error", Message: "internal error"}
}

func normalizeResolution(raw, fallback string) (string, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return fallback, nil
	}
	if _, _, err := domain.ParseResolution(raw); err != nil {
		return "", err
	}
	return raw, nil
}
