package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"prism/internal/domain"
)

// FinalizationRequest is the input of SubmitFinalization.
type FinalizationRequest struct {
	JobID         string
	SelectedSeeds map[int]int
	Resolution    string
	ClientID      string
}

// SubmitFinalization re-renders the selected shots of a SUCCEEDED job with
// pinned seeds at the target resolution. The job keeps its id; its assets are
// replaced in place and it moves back through RUNNING.
func (e *Engine) SubmitFinalization(ctx context.Context, req FinalizationRequest) (*domain.Job, error) {
	if e.isClosed() {
		return nil, ErrShuttingDown
	}
	if len(req.SelectedSeeds) == 0 {
		return nil, &domain.ValidationError{Field: "selected_seeds", Message: "at least one shot seed is required"}
	}
	for shotID, seed := range req.SelectedSeeds {
		if shotID <= 0 || seed < 0 {
			return nil, &domain.ValidationError{Field: "selected_seeds", Message: fmt.Sprintf("invalid seed %d for shot %d", seed, shotID)}
		}
	}
	resolution, err := normalizeResolution(req.Resolution, domain.DefaultFinalResolution)
	if err != nil {
		return nil, err
	}

	job, err := e.deps.Repo.GetByID(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.State != domain.JobStateSucceeded {
		return nil, domain.InvalidStateError("finalize", job.State)
	}
	for shotID := range req.SelectedSeeds {
		if _, ok := job.ShotPlan.Shot(shotID); !ok {
			return nil, &domain.ValidationError{Field: "selected_seeds", Message: fmt.Sprintf("shot %d is not in the plan", shotID)}
		}
	}

	holder, release, err := e.admitDerived(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	seeds := make(map[int]int, len(req.SelectedSeeds))
	for k, v := range req.SelectedSeeds {
		seeds[k] = v
	}
	job, err = e.machine.TransitionWith(ctx, req.JobID, domain.JobStateRunning, domain.ReasonFinalizationStarted, func(j *domain.Job) error {
		j.SelectedSeeds = seeds
		j.ErrorDetails = nil
		j.SlotClient = holder
		return nil
	})
	if err != nil {
		release()
		// A concurrent finalization may have won the race for the job.
		if errors.Is(err, domain.ErrIllegalTransition) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
		}
		return nil, err
	}
	e.log.Info().Str("job_id", job.ID).Str("resolution", resolution).Int("shots", len(seeds)).Msg("orchestrator: finalization accepted")

	e.launch(kindFinalization, job.ID, release, func(ctx context.Context) error {
		return e.runFinalization(ctx, job.ID, seeds, resolution)
	})
	return job, nil
}

func (e *Engine) runFinalization(ctx context.Context, jobID string, seeds map[int]int, resolution string) error {
	job, err := e.deps.Repo.GetByID(ctx, jobID)
	if err != nil {
		return domain.NewStageError(domain.StageFinalize, err)
	}
	shotIDs := make([]int, 0, len(seeds))
	for id := range seeds {
		shotIDs = append(shotIDs, id)
	}
	sort.Ints(shotIDs)

	assets, err := e.renderShots(ctx, job, shotIDs, renderTarget{resolution: resolution, seeds: seeds, final: true})
	if err != nil {
		return err
	}
	return e.complete(ctx, jobID, "finalization_complete", domain.StageFinalize, assets, true)
}
