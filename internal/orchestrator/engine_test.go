package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"prism/internal/adapter/repo"
	"prism/internal/admission"
	"prism/internal/domain"
	"prism/internal/infra"
	"prism/internal/input"
	"prism/internal/jobstate"
	"prism/internal/prompt"
	"prism/internal/providers/interpreter"
	"prism/internal/providers/video"
	"prism/internal/storage"
	"prism/internal/templates"
)

const avocadoInput = "Show a healthy breakfast with avocado toast"

type harness struct {
	engine    *Engine
	repo      *repo.MemoryJobRepository
	renderer  *video.Simulated
	admission *admission.Controller
}

type harnessConfig struct {
	interp        Interpreter
	sim           video.SimulatedOptions
	pollInterval  time.Duration
	maxConcurrent int
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), "http://cdn.test/static")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	catalog, err := templates.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	if cfg.interp == nil {
		cfg.interp = interpreter.NewFixed()
	}
	if cfg.pollInterval == 0 {
		cfg.pollInterval = time.Millisecond
	}
	if cfg.maxConcurrent == 0 {
		cfg.maxConcurrent = 5
	}
	jobs := repo.NewMemoryJobRepository()
	renderer := video.NewSimulated(cfg.sim)
	controller := admission.NewController(admission.NewMemoryStore(), admission.Options{
		Limit:         100,
		Window:        time.Minute,
		MaxConcurrent: cfg.maxConcurrent,
		Logger:        infra.NopLogger(),
	})

	engine, err := New(Deps{
		Repo:        jobs,
		Admission:   controller,
		Input:       input.NewProcessor(),
		Interpreter: cfg.interp,
		Router:      templates.NewRouter(catalog),
		Compiler:    prompt.NewCompiler(false),
		Renderer:    renderer,
		Downloader:  storage.NewFixtureDownloader(store),
		Store:       store,
	}, Options{
		PollInterval:         cfg.pollInterval,
		ShotTimeout:          2 * time.Second,
		JobTimeout:           10 * time.Second,
		MaxParallelShots:     4,
		SubmitMaxRetries:     2,
		RetryInitialInterval: time.Millisecond,
		Logger:               infra.NopLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = engine.Shutdown(ctx)
	})
	return &harness{engine: engine, repo: jobs, renderer: renderer, admission: controller}
}

// waitFor polls the job until done reports true or the deadline passes.
func (h *harness) waitFor(t *testing.T, jobID string, done func(*domain.Job) bool) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := h.repo.GetByID(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetByID(%s): %v", jobID, err)
		}
		if done(job) {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %s", jobID, job.State)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) waitTerminal(t *testing.T, jobID string) *domain.Job {
	t.Helper()
	return h.waitFor(t, jobID, func(j *domain.Job) bool { return domain.IsTerminal(j.State) })
}

func (h *harness) generate(t *testing.T, req GenerationRequest) *domain.Job {
	t.Helper()
	job, err := h.engine.SubmitGeneration(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitGeneration: %v", err)
	}
	return h.waitTerminal(t, job.ID)
}

// seedJob stores a job that already walked to state, with a two-shot plan.
func (h *harness) seedJob(t *testing.T, state domain.JobState) *domain.Job {
	t.Helper()
	now := time.Now().UTC()
	job := &domain.Job{
		ID:                "seed-" + strings.ToLower(string(state)),
		UserInputRedacted: avocadoInput,
		QualityMode:       domain.QualityBalanced,
		Resolution:        domain.DefaultResolution,
		TemplateID:        "healthy-eating",
		TemplateVersion:   "1.2",
		IR:                &domain.IR{Topic: "avocado toast", Style: domain.IRStyle{Visual: "warm"}},
		ShotPlan: &domain.ShotPlan{DurationS: 10, Shots: []domain.Shot{
			{ShotID: 1, VisualPrompt: "avocado on toast", DurationS: 5, Seed: 12345, Steps: 30},
			{ShotID: 2, VisualPrompt: "breakfast table", DurationS: 5, Seed: 12346, Steps: 30},
		}},
		Assets: []domain.Asset{
			{ShotID: 1, Status: domain.AssetStatusCompleted, VideoURL: "http://cdn.test/static/videos/p1.mp4"},
			{ShotID: 2, Status: domain.AssetStatusCompleted, VideoURL: "http://cdn.test/static/videos/p2.mp4"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	jobstate.Append(job, domain.JobStatePending, "job_created", now)
	switch state {
	case domain.JobStateRunning:
		jobstate.Append(job, domain.JobStateRunning, "processing_started", now)
	case domain.JobStateSucceeded:
		jobstate.Append(job, domain.JobStateRunning, "processing_started", now)
		jobstate.Append(job, domain.JobStateSucceeded, "processing_complete", now)
	case domain.JobStateFailed:
		jobstate.Append(job, domain.JobStateRunning, "processing_started", now)
		jobstate.Append(job, domain.JobStateFailed, "render_failed", now)
	}
	if err := h.repo.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func TestGenerationEndToEnd(t *testing.T) {
	h := newHarness(t, harnessConfig{sim: video.SimulatedOptions{PendingPolls: 2}})

	accepted, err := h.engine.SubmitGeneration(context.Background(), GenerationRequest{
		Text:        avocadoInput + ", email chef@example.com",
		QualityMode: "balanced",
		Resolution:  "1280x720",
		ClientID:    "client-a",
	})
	if err != nil {
		t.Fatalf("SubmitGeneration: %v", err)
	}
	if accepted.State != domain.JobStatePending {
		t.Fatalf("accepted state = %s, want PENDING", accepted.State)
	}
	if strings.Contains(accepted.UserInputRedacted, "chef@example.com") {
		t.Fatalf("input not redacted: %q", accepted.UserInputRedacted)
	}
	if len(accepted.PIIFlags) != 1 || accepted.PIIFlags[0] != "email" {
		t.Fatalf("pii flags = %v", accepted.PIIFlags)
	}

	job := h.waitTerminal(t, accepted.ID)
	if job.State != domain.JobStateSucceeded {
		t.Fatalf("state = %s (%+v), want SUCCEEDED", job.State, job.ErrorDetails)
	}
	if job.TemplateID != "healthy-eating" {
		t.Fatalf("template = %q", job.TemplateID)
	}
	if job.IR == nil || len(job.IR.Shots) == 0 {
		t.Fatalf("ir has no shots")
	}
	if n := len(job.ShotPlan.Shots); n == 0 || n > domain.MaxShotsPerPlan {
		t.Fatalf("plan has %d shots", n)
	}
	budget := domain.QualityBalanced.Budget().Steps
	total := 0
	for _, s := range job.ShotPlan.Shots {
		if s.Steps > budget {
			t.Fatalf("shot %d steps %d over budget %d", s.ShotID, s.Steps, budget)
		}
		total += s.DurationS
	}
	if total > domain.MaxTotalDurationS || job.TotalDurationS != total {
		t.Fatalf("total duration %d (recorded %d)", total, job.TotalDurationS)
	}
	if len(job.ShotRequests) != len(job.ShotPlan.Shots) {
		t.Fatalf("shot requests = %d, want %d", len(job.ShotRequests), len(job.ShotPlan.Shots))
	}
	for _, r := range job.ShotRequests {
		if r.TaskID == nil {
			t.Fatalf("shot %d has no task id", r.ShotID)
		}
		if r.Request.Size != "1280*720" {
			t.Fatalf("shot %d size = %q", r.ShotID, r.Request.Size)
		}
	}
	if len(job.Assets) != len(job.ShotPlan.Shots) || job.FailedShots() != 0 {
		t.Fatalf("assets = %+v", job.Assets)
	}
	for i, a := range job.Assets {
		if a.ShotID != i+1 {
			t.Fatalf("asset %d has shot id %d, want plan order", i, a.ShotID)
		}
		if !strings.HasPrefix(a.VideoURL, "http://cdn.test/static/videos/"+job.ID+"_") {
			t.Fatalf("asset url = %q", a.VideoURL)
		}
	}
}

func TestGenerationTransitionLog(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	job := h.generate(t, GenerationRequest{Text: avocadoInput, ClientID: "client-a"})

	history, err := h.engine.History(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := []struct {
		to     domain.JobState
		reason string
	}{
		{domain.JobStatePending, "job_created"},
		{domain.JobStateRunning, "processing_started"},
		{domain.JobStateSucceeded, "processing_complete"},
	}
	if len(history) != len(want) {
		t.Fatalf("history = %+v", history)
	}
	prev := domain.JobState("")
	for i, w := range want {
		tr := history[i]
		if tr.From != prev || tr.To != w.to || tr.Reason != w.reason {
			t.Fatalf("transition %d = %+v, want %s->%s (%s)", i, tr, prev, w.to, w.reason)
		}
		if i > 0 && tr.Timestamp.Before(history[i-1].Timestamp) {
			t.Fatalf("transition %d goes back in time", i)
		}
		prev = tr.To
	}

	if _, err := h.engine.machine.Transition(context.Background(), job.ID, domain.JobStateRunning, "again"); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("reopen err = %v, want ErrIllegalTransition", err)
	}
}

func TestGenerationIsolatesSubmissionFailure(t *testing.T) {
	h := newHarness(t, harnessConfig{sim: video.SimulatedOptions{
		FailSubmit: func(r domain.RenderRequest) bool { return r.Seed == templates.BaseSeed+1 },
	}})
	job := h.generate(t, GenerationRequest{Text: avocadoInput, ClientID: "client-a"})

	if job.State != domain.JobStateSucceeded {
		t.Fatalf("state = %s, want SUCCEEDED with a degraded shot", job.State)
	}
	n := len(job.ShotPlan.Shots)
	if len(job.Assets) != n {
		t.Fatalf("assets = %d, want %d", len(job.Assets), n)
	}
	if job.FailedShots() != 1 {
		t.Fatalf("failed shots = %d, want 1", job.FailedShots())
	}
	failed, _ := job.AssetFor(2)
	if failed.Status != domain.AssetStatusFailed || !strings.Contains(failed.Error, "submission failed") {
		t.Fatalf("shot 2 asset = %+v", failed)
	}
	for _, r := range job.ShotRequests {
		if r.ShotID == 2 && (r.TaskID != nil || r.SubmitError == "") {
			t.Fatalf("shot 2 request = %+v, want nil task id with error", r)
		}
		if r.ShotID != 2 && r.TaskID == nil {
			t.Fatalf("shot %d lost its task id", r.ShotID)
		}
	}
}

func TestGenerationFailsWhenEveryShotFails(t *testing.T) {
	h := newHarness(t, harnessConfig{sim: video.SimulatedOptions{
		FailRender: func(domain.RenderRequest) bool { return true },
	}})
	job := h.generate(t, GenerationRequest{Text: avocadoInput, ClientID: "client-a"})

	if job.State != domain.JobStateFailed {
		t.Fatalf("state = %s, want FAILED", job.State)
	}
	if job.ErrorDetails == nil || job.ErrorDetails.Stage != string(domain.StageRender) {
		t.Fatalf("error details = %+v", job.ErrorDetails)
	}
	if len(job.Assets) != len(job.ShotPlan.Shots) || job.FailedShots() != len(job.Assets) {
		t.Fatalf("assets = %+v", job.Assets)
	}
}

type stubInterpreter struct {
	ir    *domain.IR
	err   error
	panic bool
}

func (s stubInterpreter) Interpret(context.Context, string, domain.QualityMode) (*domain.IR, error) {
	if s.panic {
		panic("interpreter exploded")
	}
	return s.ir, s.err
}

func TestGenerationStageFailures(t *testing.T) {
	oversized := &domain.IR{Topic: "healthy breakfast", Tags: []string{"breakfast"}}
	for i := 0; i < domain.MaxShotsPerPlan+2; i++ {
		oversized.Shots = append(oversized.Shots, domain.IRShot{VisualPrompt: "toast", DurationS: 3})
	}

	tests := []struct {
		name      string
		interp    Interpreter
		text      string
		wantStage domain.Stage
		wantCode  string
	}{
		{
			name:      "interpreter error",
			interp:    stubInterpreter{err: errors.New("model unavailable")},
			text:      avocadoInput,
			wantStage: domain.StageInterpret,
			wantCode:  "interpret_failed",
		},
		{
			name:      "no template match",
			text:      "Explain quantum mechanics lecture",
			wantStage: domain.StageRoute,
			wantCode:  "no_template_match",
		},
		{
			name:      "plan over limits",
			interp:    stubInterpreter{ir: oversized},
			text:      avocadoInput,
			wantStage: domain.StageValidate,
			wantCode:  "validate_failed",
		},
		{
			name:      "panic is contained",
			interp:    stubInterpreter{panic: true},
			text:      avocadoInput,
			wantStage: domain.StageInternal,
			wantCode:  "internal_error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, harnessConfig{interp: tc.interp, maxConcurrent: 1})
			job := h.generate(t, GenerationRequest{Text: tc.text, ClientID: "client-a"})

			if job.State != domain.JobStateFailed {
				t.Fatalf("state = %s, want FAILED", job.State)
			}
			if job.ErrorDetails == nil || job.ErrorDetails.Stage != string(tc.wantStage) || job.ErrorDetails.Code != tc.wantCode {
				t.Fatalf("error details = %+v, want %s/%s", job.ErrorDetails, tc.wantStage, tc.wantCode)
			}
			if n := len(h.renderer.Submitted()); n != 0 {
				t.Fatalf("renderer saw %d submissions before the failure", n)
			}
			if last, _ := job.LastTransition(); last.Reason != tc.wantCode {
				t.Fatalf("last reason = %q, want %q", last.Reason, tc.wantCode)
			}
			// The slot must be free again for the same client.
			h.waitConcurrency(t, "client-a", 0)
		})
	}
}

func (h *harness) waitConcurrency(t *testing.T, clientID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		d, err := h.admission.CheckConcurrency(context.Background(), clientID)
		if err != nil {
			t.Fatalf("CheckConcurrency: %v", err)
		}
		if d.Current == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("concurrency for %s = %d, want %d", clientID, d.Current, want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSubmitGenerationValidation(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	tests := []struct {
		name string
		req  GenerationRequest
	}{
		{"empty text", GenerationRequest{Text: "  "}},
		{"bad quality", GenerationRequest{Text: avocadoInput, QualityMode: "ultra"}},
		{"bad resolution", GenerationRequest{Text: avocadoInput, Resolution: "wide"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.SubmitGeneration(context.Background(), tc.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
	jobs, _ := h.repo.ListByState(context.Background(), domain.JobStatePending, domain.JobStateRunning)
	if len(jobs) != 0 {
		t.Fatalf("rejected requests created %d jobs", len(jobs))
	}
}

func TestAdmissionRejectionAndShutdown(t *testing.T) {
	h := newHarness(t, harnessConfig{
		sim:           video.SimulatedOptions{PendingPolls: 1000},
		pollInterval:  time.Hour,
		maxConcurrent: 1,
	})
	ctx := context.Background()

	first, err := h.engine.SubmitGeneration(ctx, GenerationRequest{Text: avocadoInput, ClientID: "client-a"})
	if err != nil {
		t.Fatalf("first SubmitGeneration: %v", err)
	}
	h.waitFor(t, first.ID, func(j *domain.Job) bool { return len(j.ShotRequests) > 0 })

	_, err = h.engine.SubmitGeneration(ctx, GenerationRequest{Text: avocadoInput, ClientID: "client-a"})
	var admErr *domain.AdmissionError
	if !errors.As(err, &admErr) || admErr.Reason != admission.ReasonConcurrencyLimited {
		t.Fatalf("second submit err = %v, want concurrency rejection", err)
	}
	if admErr.RetryAfter.IsZero() {
		t.Fatalf("rejection carries no retry-after")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := h.engine.Shutdown(shutdownCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown err = %v, want deadline exceeded", err)
	}

	job, err := h.engine.GetJob(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.State != domain.JobStateFailed || job.ErrorDetails == nil || job.ErrorDetails.Code != "shutdown" {
		t.Fatalf("interrupted job = %s %+v, want FAILED with code shutdown", job.State, job.ErrorDetails)
	}
	h.waitConcurrency(t, "client-a", 0)

	if _, err := h.engine.SubmitGeneration(ctx, GenerationRequest{Text: avocadoInput, ClientID: "client-b"}); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("submit after shutdown err = %v, want ErrShuttingDown", err)
	}
}

func TestRecoverFailsStaleJobs(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()
	old := time.Now().Add(-time.Hour).UTC()

	stale := &domain.Job{ID: "stale", ClientID: "client-a", SlotClient: "client-a", QualityMode: domain.QualityFast, Assets: []domain.Asset{}, CreatedAt: old, UpdatedAt: old}
	jobstate.Append(stale, domain.JobStatePending, "job_created", old)
	jobstate.Append(stale, domain.JobStateRunning, "processing_started", old)
	fresh := &domain.Job{ID: "fresh", QualityMode: domain.QualityFast, Assets: []domain.Asset{}, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	jobstate.Append(fresh, domain.JobStatePending, "job_created", time.Now())
	for _, j := range []*domain.Job{stale, fresh} {
		if err := h.repo.Create(ctx, j); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := h.admission.IncrementConcurrency(ctx, "client-a"); err != nil {
		t.Fatalf("IncrementConcurrency: %v", err)
	}

	n, err := h.engine.Recover(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered = %d, want 1", n)
	}
	got, _ := h.repo.GetByID(ctx, "stale")
	last, _ := got.LastTransition()
	if got.State != domain.JobStateFailed || last.Reason != ReasonRestart || last.From != domain.JobStateRunning {
		t.Fatalf("stale job = %s %+v", got.State, last)
	}
	if still, _ := h.repo.GetByID(ctx, "fresh"); still.State != domain.JobStatePending {
		t.Fatalf("fresh job state = %s, want PENDING", still.State)
	}
	h.waitConcurrency(t, "client-a", 0)
}

// newParkedHarness keeps every render pending so workflows stay open until
// the engine is shut down.
func newParkedHarness(t *testing.T) *harness {
	t.Helper()
	return newHarness(t, harnessConfig{
		sim:          video.SimulatedOptions{PendingPolls: 1000},
		pollInterval: time.Hour,
	})
}

func (h *harness) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = h.engine.Shutdown(ctx)
}

func TestRecoverReleasesAnonymousGenerationSlot(t *testing.T) {
	h := newParkedHarness(t)
	defer h.stop()
	ctx := context.Background()

	accepted, err := h.engine.SubmitGeneration(ctx, GenerationRequest{Text: avocadoInput})
	if err != nil {
		t.Fatalf("SubmitGeneration: %v", err)
	}
	job := h.waitFor(t, accepted.ID, func(j *domain.Job) bool { return len(j.ShotRequests) > 0 })
	if job.ClientID != "" || job.SlotClient == "" {
		t.Fatalf("client_id = %q slot_client = %q, want anonymous slot recorded", job.ClientID, job.SlotClient)
	}
	h.waitConcurrency(t, job.SlotClient, 1)

	n, err := h.engine.Recover(ctx, 0)
	if err != nil || n != 1 {
		t.Fatalf("Recover = %d, %v; want 1, nil", n, err)
	}
	d, _ := h.admission.CheckConcurrency(ctx, job.SlotClient)
	if d.Current != 0 {
		t.Fatalf("%s concurrency after sweep = %d, want 0", job.SlotClient, d.Current)
	}
}

func TestRecoverSkipsDerivedJobsWithoutSlot(t *testing.T) {
	h := newParkedHarness(t)
	defer h.stop()
	ctx := context.Background()

	parent := h.seedJob(t, domain.JobStateSucceeded)
	if _, err := h.repo.Update(ctx, parent.ID, func(j *domain.Job) error {
		j.ClientID = "client-a"
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// client-a's slot belongs to a job running elsewhere.
	if err := h.admission.IncrementConcurrency(ctx, "client-a"); err != nil {
		t.Fatalf("IncrementConcurrency: %v", err)
	}

	rev, err := h.engine.SubmitRevision(ctx, RevisionRequest{
		ParentID:       parent.ID,
		Feedback:       "Make it look like film noir",
		TargetedFields: []string{"visual_style"},
	})
	if err != nil {
		t.Fatalf("SubmitRevision: %v", err)
	}
	fin, err := h.engine.SubmitFinalization(ctx, FinalizationRequest{
		JobID:         parent.ID,
		SelectedSeeds: map[int]int{1: 12345},
	})
	if err != nil {
		t.Fatalf("SubmitFinalization: %v", err)
	}
	for _, j := range []*domain.Job{rev, fin} {
		if j.ClientID != "client-a" || j.SlotClient != "" {
			t.Fatalf("job %s client_id = %q slot_client = %q, want inherited owner and no slot", j.ID, j.ClientID, j.SlotClient)
		}
	}
	h.waitFor(t, rev.ID, func(j *domain.Job) bool { return len(j.ShotRequests) > 0 })

	n, err := h.engine.Recover(ctx, 0)
	if err != nil || n != 2 {
		t.Fatalf("Recover = %d, %v; want 2, nil", n, err)
	}
	d, _ := h.admission.CheckConcurrency(ctx, "client-a")
	if d.Current != 1 {
		t.Fatalf("client-a concurrency after sweep = %d, want 1", d.Current)
	}
}

func TestRecoverReleasesDerivedJobSlots(t *testing.T) {
	h := newParkedHarness(t)
	defer h.stop()
	ctx := context.Background()

	parent := h.seedJob(t, domain.JobStateSucceeded)
	rev, err := h.engine.SubmitRevision(ctx, RevisionRequest{
		ParentID:       parent.ID,
		Feedback:       "Make it look like film noir",
		TargetedFields: []string{"visual_style"},
		ClientID:       "client-b",
	})
	if err != nil {
		t.Fatalf("SubmitRevision: %v", err)
	}
	fin, err := h.engine.SubmitFinalization(ctx, FinalizationRequest{
		JobID:         parent.ID,
		SelectedSeeds: map[int]int{1: 12345},
		ClientID:      "client-c",
	})
	if err != nil {
		t.Fatalf("SubmitFinalization: %v", err)
	}
	if rev.SlotClient != "client-b" || fin.SlotClient != "client-c" {
		t.Fatalf("slot clients = %q, %q", rev.SlotClient, fin.SlotClient)
	}
	h.waitConcurrency(t, "client-b", 1)
	h.waitConcurrency(t, "client-c", 1)
	h.waitFor(t, rev.ID, func(j *domain.Job) bool { return len(j.ShotRequests) > 0 })

	if n, err := h.engine.Recover(ctx, 0); err != nil || n != 2 {
		t.Fatalf("Recover = %d, %v; want 2, nil", n, err)
	}
	for _, client := range []string{"client-b", "client-c"} {
		d, _ := h.admission.CheckConcurrency(ctx, client)
		if d.Current != 0 {
			t.Fatalf("%s concurrency after sweep = %d, want 0", client, d.Current)
		}
	}
}

func TestSweeperWithoutReleaser(t *testing.T) {
	ctx := context.Background()
	jobs := repo.NewMemoryJobRepository()
	now := time.Now().UTC()
	for _, id := range []string{"a", "b"} {
		j := &domain.Job{ID: id, QualityMode: domain.QualityFast, Assets: []domain.Asset{}, CreatedAt: now, UpdatedAt: now}
		jobstate.Append(j, domain.JobStatePending, "job_created", now)
		if err := jobs.Create(ctx, j); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	sweeper := NewSweeper(jobs, nil, infra.NopLogger(), nil)
	n, err := sweeper.Sweep(ctx, 0)
	if err != nil || n != 2 {
		t.Fatalf("Sweep = %d, %v; want 2, nil", n, err)
	}
	if n, err := sweeper.Sweep(ctx, 0); err != nil || n != 0 {
		t.Fatalf("second Sweep = %d, %v; want 0, nil", n, err)
	}
	got, _ := jobs.GetByID(ctx, "a")
	if got.ErrorDetails == nil || got.ErrorDetails.Code != ReasonRestart {
		t.Fatalf("error details = %+v", got.ErrorDetails)
	}
}
