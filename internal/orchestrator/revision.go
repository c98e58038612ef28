package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"prism/internal/domain"
	"prism/internal/jobstate"
	"prism/internal/templates"
	"prism/internal/validator"
)

// RevisionScope orders how much of the pipeline a revision re-runs.
type RevisionScope int

const (
	// ScopeNarration rewrites audio direction only; media is reused.
	ScopeNarration RevisionScope = iota + 1
	// ScopeRender recompiles prompts and re-renders every shot.
	ScopeRender
	// ScopeReplan re-instantiates the template, then re-renders.
	ScopeReplan
	// ScopeReinterpret runs the full pipeline on amended text.
	ScopeReinterpret
)

func (s RevisionScope) String() string {
	switch s {
	case ScopeNarration:
		return "narration"
	case ScopeRender:
		return "render"
	case ScopeReplan:
		return "replan"
	case ScopeReinterpret:
		return "reinterpret"
	}
	return "unknown"
}

// revisionPolicy maps a targeted field to the earliest stage it invalidates.
var revisionPolicy = map[string]RevisionScope{
	"narration":      ScopeNarration,
	"narration_tone": ScopeNarration,
	"music":          ScopeNarration,
	"visual_style":   ScopeRender,
	"lighting":       ScopeRender,
	"camera":         ScopeRender,
	"resolution":     ScopeRender,
	"quality_mode":   ScopeRender,
	"pacing":         ScopeReplan,
	"duration":       ScopeReplan,
	"topic":          ScopeReinterpret,
	"content":        ScopeReinterpret,
}

// feedbackHints infers targeted fields when the caller names none.
var feedbackHints = []struct {
	field string
	words []string
}{
	{"narration_tone", []string{"narration", "narrator", "voice", "tone"}},
	{"music", []string{"music", "soundtrack", "song"}},
	{"lighting", []string{"lighting", "brighter", "darker", "light"}},
	{"camera", []string{"camera", "angle", "zoom", "close-up"}},
	{"pacing", []string{"faster", "slower", "pace", "pacing", "shorter", "longer"}},
	{"topic", []string{"topic", "instead", "different subject"}},
	{"visual_style", []string{"style", "color", "colour", "look"}},
}

// ScopeFor returns the broadest scope implied by fields.
func ScopeFor(fields []string) RevisionScope {
	scope := ScopeNarration
	for _, f := range fields {
		if s := revisionPolicy[f]; s > scope {
			scope = s
		}
	}
	return scope
}

// RevisionRequest is the input of SubmitRevision.
type RevisionRequest struct {
	ParentID               string
	Feedback               string
	TargetedFields         []string
	SuggestedModifications map[string]any
	ClientID               string
}

// SubmitRevision branches a new job from a SUCCEEDED parent and re-runs only
// the stages the targeted fields invalidate.
func (e *Engine) SubmitRevision(ctx context.Context, req RevisionRequest) (*domain.Job, error) {
	if e.isClosed() {
		return nil, ErrShuttingDown
	}
	if err := validator.ValidateFeedback(req.Feedback); err != nil {
		return nil, err
	}
	fields, err := normalizeFields(req.TargetedFields, req.Feedback)
	if err != nil {
		return nil, err
	}

	parent, err := e.deps.Repo.GetByID(ctx, req.ParentID)
	if err != nil {
		return nil, err
	}
	if parent.State != domain.JobStateSucceeded {
		return nil, domain.InvalidStateError("revise", parent.State)
	}

	mode := parent.QualityMode
	if raw, ok := stringMod(req.SuggestedModifications, "quality_mode"); ok {
		if mode, err = domain.ParseQualityMode(raw); err != nil {
			return nil, err
		}
	}
	resolution := parent.Resolution
	if raw, ok := stringMod(req.SuggestedModifications, "resolution"); ok {
		if resolution, err = normalizeResolution(raw, parent.Resolution); err != nil {
			return nil, err
		}
	}

	holder, release, err := e.admitDerived(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	now := e.opts.Now().UTC()
	parentID := parent.ID
	job := &domain.Job{
		ID:                uuid.NewString(),
		RevisionOf:        &parentID,
		TargetedFields:    fields,
		ClientID:          firstNonEmpty(req.ClientID, parent.ClientID),
		SlotClient:        holder,
		UserInputRedacted: parent.UserInputRedacted,
		UserInputHash:     parent.UserInputHash,
		PIIFlags:          parent.PIIFlags,
		Locale:            parent.Locale,
		TemplateID:        parent.TemplateID,
		TemplateVersion:   parent.TemplateVersion,
		QualityMode:       mode,
		Resolution:        resolution,
		TotalDurationS:    parent.TotalDurationS,
		Assets:            []domain.Asset{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	jobstate.Append(job, domain.JobStatePending, "revision_created", now)
	if err := e.deps.Repo.Create(ctx, job); err != nil {
		release()
		return nil, fmt.Errorf("orchestrator: create revision: %w", err)
	}
	scope := ScopeFor(fields)
	e.log.Info().Str("job_id", job.ID).Str("revision_of", parentID).Strs("targeted_fields", fields).Str("scope", scope.String()).Msg("orchestrator: revision accepted")

	rev := revision{
		parent:   parent,
		feedback: strings.TrimSpace(req.Feedback),
		fields:   fields,
		mods:     req.SuggestedModifications,
		scope:    scope,
	}
	e.launch(kindRevision, job.ID, release, func(ctx context.Context) error {
		return e.runRevision(ctx, job.ID, rev)
	})
	return job, nil
}

type revision struct {
	parent   *domain.Job
	feedback string
	fields   []string
	mods     map[string]any
	scope    RevisionScope
}

func (e *Engine) runRevision(ctx context.Context, jobID string, rev revision) error {
	job, err := e.machine.Transition(ctx, jobID, domain.JobStateRunning, "revision_started")
	if err != nil {
		return domain.NewStageError(domain.StageInternal, err)
	}

	if rev.scope == ScopeReinterpret {
		text := rev.parent.UserInputRedacted + "\nRevision: " + rev.feedback
		ir, err := e.interpret(ctx, text, job.QualityMode)
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
		if job, err = e.persistPlan(ctx, jobID, ir, match.ID, match.Version, plan); err != nil {
			return err
		}
		return e.rerender(ctx, job)
	}

	if rev.parent.IR == nil || rev.parent.ShotPlan == nil {
		return domain.NewStageError(domain.StageInstantiate, errors.New("parent job has no plan to revise"))
	}
	ir := rev.parent.IR
	plan := rev.parent.ShotPlan
	rev.applyToIR(ir)

	switch rev.scope {
	case ScopeNarration:
		rev.applyNarration(plan)
		_, err := e.machine.TransitionWith(ctx, jobID, domain.JobStateSucceeded, "revision_complete", func(j *domain.Job) error {
			j.IR = ir
			j.ShotPlan = plan
			j.ShotRequests = rev.parent.ShotRequests
			j.Assets = rev.parent.Assets
			return nil
		})
		if err != nil {
			return domain.NewStageError(domain.StageInternal, err)
		}
		e.log.Info().Str("job_id", jobID).Msg("orchestrator: narration revision reused parent media")
		return nil

	case ScopeReplan:
		tmpl, ok := e.deps.Router.Lookup(rev.parent.TemplateID)
		if !ok {
			return domain.NewStageError(domain.StageRoute, fmt.Errorf("%w: template %q is no longer in the catalog", domain.ErrNoTemplateMatch, rev.parent.TemplateID))
		}
		replanned, err := templates.Instantiate(ir, tmpl, job.QualityMode)
		if err != nil {
			return domain.NewStageError(domain.StageInstantiate, err)
		}
		templates.Rescale(replanned, rev.targetDuration(plan.DurationS))
		plan = replanned
	}

	rev.applyToPlan(plan, job.QualityMode)
	if err := validator.ValidatePlan(plan, job.QualityMode); err != nil {
		return domain.NewStageError(domain.StageValidate, err)
	}
	if job, err = e.persistPlan(ctx, jobID, ir, job.TemplateID, job.TemplateVersion, plan); err != nil {
		return err
	}
	return e.rerender(ctx, job)
}

func (e *Engine) rerender(ctx context.Context, job *domain.Job) error {
	assets, err := e.renderShots(ctx, job, job.ShotPlan.ShotIDs(), renderTarget{resolution: job.Resolution})
	if err != nil {
		return err
	}
	return e.complete(ctx, job.ID, "revision_complete", domain.StageRender, assets, false)
}

func (r revision) value(field string) string {
	if v, ok := stringMod(r.mods, field); ok {
		return v
	}
	return r.feedback
}

func (r revision) targets(field string) bool {
	for _, f := range r.fields {
		if f == field {
			return true
		}
	}
	return false
}

func (r revision) applyToIR(ir *domain.IR) {
	if r.targets("visual_style") {
		ir.Style.Visual = r.value("visual_style")
	}
	if r.targets("narration_tone") {
		ir.Audio.NarrationTone = r.value("narration_tone")
	}
	if r.targets("music") {
		ir.Audio.Music = r.value("music")
	}
}

// applyNarration only rewrites narration lines the caller spelled out.
func (r revision) applyNarration(plan *domain.ShotPlan) {
	line, ok := stringMod(r.mods, "narration")
	if !ok {
		return
	}
	for i := range plan.Shots {
		plan.Shots[i].Narration = line
	}
}

func (r revision) applyToPlan(plan *domain.ShotPlan, mode domain.QualityMode) {
	steps := mode.Budget().Steps
	for i := range plan.Shots {
		if r.targets("lighting") {
			plan.Shots[i].Lighting = r.value("lighting")
		}
		if r.targets("camera") {
			plan.Shots[i].Camera = r.value("camera")
		}
		plan.Shots[i].Steps = steps
	}
}

// targetDuration reads an explicit duration or derives one from pacing words.
func (r revision) targetDuration(current int) int {
	if v, ok := intMod(r.mods, "duration_s"); ok {
		return min(v, domain.MaxTotalDurationS)
	}
	if v, ok := intMod(r.mods, "duration"); ok {
		return min(v, domain.MaxTotalDurationS)
	}
	text := strings.ToLower(r.feedback)
	switch {
	case strings.Contains(text, "faster"), strings.Contains(text, "shorter"):
		return max(current*3/4, 1)
	case strings.Contains(text, "slower"), strings.Contains(text, "longer"):
		return min(current*5/4, domain.MaxTotalDurationS)
	}
	return current
}

func normalizeFields(raw []string, feedback string) ([]string, error) {
	seen := map[string]struct{}{}
	var fields []string
	for _, f := range raw {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, ok := revisionPolicy[f]; !ok {
			return nil, &domain.ValidationError{Field: "targeted_fields", Message: fmt.Sprintf("unknown field %q", f)}
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		fields = inferFields(feedback)
	}
	sort.Strings(fields)
	return fields, nil
}

func inferFields(feedback string) []string {
	text := strings.ToLower(feedback)
	var fields []string
	for _, h := range feedbackHints {
		for _, w := range h.words {
			if strings.Contains(text, w) {
				fields = append(fields, h.field)
				break
			}
		}
	}
	if len(fields) == 0 {
		return []string{"visual_style"}
	}
	return fields
}

func stringMod(mods map[string]any, key string) (string, bool) {
	v, ok := mods[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func intMod(mods map[string]any, key string) (int, bool) {
	switch v := mods[key].(type) {
	case int:
		return v, v > 0
	case float64:
		n := int(math.Round(v))
		return n, n > 0
	}
	return 0, false
}
