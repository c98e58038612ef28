package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"prism/internal/domain"
	"prism/internal/providers/video"
)

// maxPollErrors is how many consecutive poll failures a shot tolerates
// before it is recorded as failed.
const maxPollErrors = 3

// renderTarget carries the per-run render overrides.
type renderTarget struct {
	resolution string
	// seeds pins shot seeds; shots absent from the map keep their plan seed.
	seeds map[int]int
	final bool
}

type shotTask struct {
	shot    domain.Shot
	request domain.ShotRequest
}

// renderShots fans out compile+submit for the given shots, persists the
// request table, then fans in per-shot polling. Shot failures are recorded
// in the returned assets and never abort siblings. Results follow shot id
// order regardless of completion order.
func (e *Engine) renderShots(ctx context.Context, job *domain.Job, shotIDs []int, target renderTarget) ([]domain.Asset, error) {
	tasks := make([]shotTask, 0, len(shotIDs))
	for _, id := range shotIDs {
		shot, ok := job.ShotPlan.Shot(id)
		if !ok {
			return nil, domain.NewShotError(domain.StageCompile, id, errors.New("shot not in plan"))
		}
		if seed, pinned := target.seeds[id]; pinned {
			shot.Seed = seed
		}
		tasks = append(tasks, shotTask{shot: shot})
	}

	e.submitAll(ctx, job, tasks, target)

	requests := make([]domain.ShotRequest, len(tasks))
	for i, t := range tasks {
		requests[i] = t.request
	}
	if _, err := e.deps.Repo.Update(ctx, job.ID, func(j *domain.Job) error {
		j.ShotRequests = mergeShotRequests(j.ShotRequests, requests)
		return nil
	}); err != nil {
		return nil, domain.NewStageError(domain.StageSubmit, fmt.Errorf("persist shot requests: %w", err))
	}

	assets := e.collectAll(ctx, job.ID, tasks, target)
	sort.Slice(assets, func(i, j int) bool { return assets[i].ShotID < assets[j].ShotID })
	return assets, nil
}

func (e *Engine) submitAll(ctx context.Context, job *domain.Job, tasks []shotTask, target renderTarget) {
	start := time.Now()
	defer e.opts.Metrics.ObserveStage(string(domain.StageSubmit), start)

	var g errgroup.Group
	g.SetLimit(e.opts.MaxParallelShots)
	for i := range tasks {
		g.Go(func() error {
			t := &tasks[i]
			req := e.deps.Compiler.Compile(t.shot, job.ShotPlan, job.IR, target.resolution)
			t.request = domain.ShotRequest{ShotID: t.shot.ShotID, Request: req}

			taskID, err := e.submitWithRetry(ctx, job.ID, t.shot.ShotID, req)
			if err != nil {
				t.request.SubmitError = err.Error()
				e.log.Error().Err(err).Str("job_id", job.ID).Int("shot_id", t.shot.ShotID).Msg("orchestrator: shot submission failed")
				return nil
			}
			t.request.TaskID = &taskID
			e.log.Info().Str("job_id", job.ID).Int("shot_id", t.shot.ShotID).Str("task_id", taskID).Int("seed", req.Seed).Msg("orchestrator: shot submitted")
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) submitWithRetry(ctx context.Context, jobID string, shotID int, req domain.RenderRequest) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.RetryInitialInterval
	b.MaxInterval = 8 * e.opts.RetryInitialInterval

	return backoff.Retry(ctx, func() (string, error) {
		id, err := e.deps.Renderer.Submit(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		if id == "" {
			return "", backoff.Permanent(errors.New("renderer returned an empty task id"))
		}
		return id, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.opts.SubmitMaxRetries)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			e.log.Warn().Err(err).Str("job_id", jobID).Int("shot_id", shotID).Dur("retry_in", wait).Msg("orchestrator: retrying shot submission")
		}),
	)
}

func (e *Engine) collectAll(ctx context.Context, jobID string, tasks []shotTask, target renderTarget) []domain.Asset {
	start := time.Now()
	defer e.opts.Metrics.ObserveStage(string(domain.StagePoll), start)

	assets := make([]domain.Asset, len(tasks))
	var g errgroup.Group
	g.SetLimit(e.opts.MaxParallelShots)
	for i := range tasks {
		g.Go(func() error {
			assets[i] = e.collectShot(ctx, jobID, tasks[i], target)
			e.opts.Metrics.ShotOutcome(string(assets[i].Status))
			return nil
		})
	}
	_ = g.Wait()
	return assets
}

// collectShot polls one task to a terminal status under the shot timeout,
// then downloads and promotes the media.
func (e *Engine) collectShot(ctx context.Context, jobID string, t shotTask, target renderTarget) domain.Asset {
	req := t.request.Request
	asset := domain.Asset{
		ShotID:     t.shot.ShotID,
		Status:     domain.AssetStatusFailed,
		Seed:       req.Seed,
		Resolution: target.resolution,
		DurationS:  req.DurationS,
	}
	if t.request.TaskID == nil {
		asset.Error = "submission failed: " + t.request.SubmitError
		return asset
	}
	taskID := *t.request.TaskID
	asset.TaskID = taskID
	log := e.log.With().Str("job_id", jobID).Int("shot_id", t.shot.ShotID).Str("task_id", taskID).Logger()

	shotCtx, cancel := context.WithTimeout(ctx, e.opts.ShotTimeout)
	defer cancel()

	result, err := e.pollUntilDone(shotCtx, taskID)
	if err != nil {
		log.Error().Err(err).Msg("orchestrator: shot poll failed")
		asset.Error = err.Error()
		return asset
	}
	if result.Status != video.StatusSucceeded {
		log.Warn().Str("render_error", result.Error).Msg("orchestrator: shot render failed")
		asset.Error = firstNonEmpty(result.Error, "render failed")
		return asset
	}

	tempPath, err := e.deps.Downloader.Download(shotCtx, result.VideoURL)
	if err != nil {
		log.Error().Err(err).Msg("orchestrator: shot download failed")
		asset.Error = domain.NewShotError(domain.StageDownload, t.shot.ShotID, err).Error()
		return asset
	}
	url, err := e.deps.Store.Promote(shotCtx, jobID, t.shot.ShotID, tempPath, target.final)
	if err != nil {
		log.Error().Err(err).Msg("orchestrator: shot store failed")
		asset.Error = domain.NewShotError(domain.StageStore, t.shot.ShotID, err).Error()
		return asset
	}

	asset.Status = domain.AssetStatusCompleted
	asset.VideoURL = url
	log.Info().Str("video_url", url).Msg("orchestrator: shot completed")
	return asset
}

func (e *Engine) pollUntilDone(ctx context.Context, taskID string) (video.Result, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return video.Result{}, fmt.Errorf("poll timed out after %s", e.opts.ShotTimeout)
			}
			return video.Result{}, ctx.Err()
		case <-timer.C:
		}

		result, err := e.deps.Renderer.Poll(ctx, taskID)
		switch {
		case err != nil:
			failures++
			if failures >= maxPollErrors || errors.Is(err, video.ErrUnknownTask) {
				return video.Result{}, fmt.Errorf("poll task %s: %w", taskID, err)
			}
		case result.Terminal():
			return result, nil
		default:
			failures = 0
		}
		timer.Reset(e.opts.PollInterval)
	}
}

// mergeShotRequests replaces entries by shot id and keeps shot id order.
func mergeShotRequests(existing, updates []domain.ShotRequest) []domain.ShotRequest {
	byID := make(map[int]domain.ShotRequest, len(existing)+len(updates))
	for _, r := range existing {
		byID[r.ShotID] = r
	}
	for _, r := range updates {
		byID[r.ShotID] = r
	}
	out := make([]domain.ShotRequest, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShotID < out[j].ShotID })
	return out
}

// mergeAssets replaces assets by shot id. Final renders remember the preview
// they replace.
func mergeAssets(existing, updates []domain.Asset, final bool) []domain.Asset {
	byID := make(map[int]domain.Asset, len(existing)+len(updates))
	for _, a := range existing {
		byID[a.ShotID] = a
	}
	for _, a := range updates {
		if prev, ok := byID[a.ShotID]; ok && final {
			a.PreviewURL = firstNonEmpty(prev.PreviewURL, prev.VideoURL)
		}
		byID[a.ShotID] = a
	}
	out := make([]domain.Asset, 0, len(byID))
	for _, a := range byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShotID < out[j].ShotID })
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
