package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prism/internal/domain"
	"prism/internal/templates"
	"prism/internal/validator"
)

var errAllShotsFailed = errors.New("every shot failed to render")

func (e *Engine) runGeneration(ctx context.Context, jobID string) error {
	job, err := e.machine.Transition(ctx, jobID, domain.JobStateRunning, "processing_started")
	if err != nil {
		return domain.NewStageError(domain.StageInternal, err)
	}

	ir, err := e.interpret(ctx, job.UserInputRedacted, job.QualityMode)
	if err != nil {
		return err
	}
	match, err := e.route(ctx, ir)
	if err != nil {
		return err
	}
	plan, err := e.instantiate(ir, match.Template, job.QualityMode)
	if err != nil {
		return err
	}
	job, err = e.persistPlan(ctx, jobID, ir, match.ID, match.Version, plan)
	if err != nil {
		return err
	}

	assets, err := e.renderShots(ctx, job, plan.ShotIDs(), renderTarget{resolution: job.Resolution})
	if err != nil {
		return err
	}
	return e.complete(ctx, jobID, "processing_complete", domain.StageRender, assets, false)
}

func (e *Engine) interpret(ctx context.Context, text string, mode domain.QualityMode) (*domain.IR, error) {
	start := time.Now()
	defer e.opts.Metrics.ObserveStage(string(domain.StageInterpret), start)

	ir, err := e.deps.Interpreter.Interpret(ctx, text, mode)
	if err != nil {
		return nil, domain.NewStageError(domain.StageInterpret, err)
	}
	if ir == nil || len(ir.Shots) == 0 {
		return nil, domain.NewStageError(domain.StageInterpret, errors.New("interpreter returned no shots"))
	}
	return ir, nil
}

// route never retries: a missing template is a business outcome.
func (e *Engine) route(ctx context.Context, ir *domain.IR) (domain.TemplateMatch, error) {
	start := time.Now()
	defer e.opts.Metrics.ObserveStage(string(domain.StageRoute), start)

	match, err := e.deps.Router.Match(ctx, ir)
	if err != nil {
		e.opts.Metrics.TemplateMatched("")
		return domain.TemplateMatch{}, domain.NewStageError(domain.StageRoute, err)
	}
	e.opts.Metrics.TemplateMatched(match.ID)
	return match, nil
}

func (e *Engine) instantiate(ir *domain.IR, tmpl *domain.Template, mode domain.QualityMode) (*domain.ShotPlan, error) {
	plan, err := templates.Instantiate(ir, tmpl, mode)
	if err != nil {
		return nil, domain.NewStageError(domain.StageInstantiate, err)
	}
	if err := validator.ValidatePlan(plan, mode); err != nil {
		return nil, domain.NewStageError(domain.StageValidate, err)
	}
	return plan, nil
}

// persistPlan writes the interpretation artifacts before any render work so
// a crash after this point keeps the plan.
func (e *Engine) persistPlan(ctx context.Context, jobID string, ir *domain.IR, templateID, version string, plan *domain.ShotPlan) (*domain.Job, error) {
	job, err := e.deps.Repo.Update(ctx, jobID, func(job *domain.Job) error {
		job.IR = ir
		job.TemplateID = templateID
		job.TemplateVersion = version
		job.ShotPlan = plan
		job.TotalDurationS = plan.DurationS
		return nil
	})
	if err != nil {
		return nil, domain.NewStageError(domain.StageInstantiate, fmt.Errorf("persist plan: %w", err))
	}
	e.log.Info().Str("job_id", jobID).Str("template_id", templateID).Int("shots", len(plan.Shots)).Int("duration_s", plan.DurationS).Msg("orchestrator: plan persisted")
	return job, nil
}

// complete persists assets and closes the job. A run where no rendered shot
// completed fails at failStage; partial failures still succeed.
func (e *Engine) complete(ctx context.Context, jobID, reason string, failStage domain.Stage, rendered []domain.Asset, final bool) error {
	// Shots cut short by cancellation say nothing about the renders.
	if err := ctx.Err(); err != nil {
		return err
	}
	completed := 0
	for _, a := range rendered {
		if a.Status == domain.AssetStatusCompleted {
			completed++
		}
	}
	if len(rendered) > 0 && completed == 0 {
		details := domain.NewStageError(failStage, errAllShotsFailed).Details()
		_, err := e.machine.TransitionWith(ctx, jobID, domain.JobStateFailed, details.Code, func(job *domain.Job) error {
			job.Assets = mergeAssets(job.Assets, rendered, final)
			job.ErrorDetails = details
			return nil
		})
		if err != nil {
			return domain.NewStageError(domain.StageInternal, err)
		}
		e.log.Warn().Str("job_id", jobID).Int("shots", len(rendered)).Msg("orchestrator: all shots failed")
		return nil
	}

	job, err := e.machine.TransitionWith(ctx, jobID, domain.JobStateSucceeded, reason, func(job *domain.Job) error {
		job.Assets = mergeAssets(job.Assets, rendered, final)
		job.ErrorDetails = nil
		return nil
	})
	if err != nil {
		return domain.NewStageError(domain.StageInternal, err)
	}
	e.log.Info().Str("job_id", jobID).Int("assets", len(job.Assets)).Int("failed_shots", job.FailedShots()).Msg("orchestrator: job complete")
	return nil
}
