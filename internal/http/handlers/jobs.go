package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"prism/internal/middleware"
	"prism/internal/orchestrator"
)

type generateRequest struct {
	UserInput   string `json:"user_input"`
	QualityMode string `json:"quality_mode"`
	Resolution  string `json:"resolution"`
	Locale      string `json:"locale"`
}

type reviseRequest struct {
	Feedback               string         `json:"feedback"`
	TargetedFields         []string       `json:"targeted_fields"`
	SuggestedModifications map[string]any `json:"suggested_modifications"`
}

type finalizeRequest struct {
	SelectedSeeds map[int]int `json:"selected_seeds"`
	Resolution    string      `json:"resolution"`
}

func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !a.decode(w, r, &req) {
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}
	job, err := a.Jobs.SubmitGeneration(r.Context(), orchestrator.GenerationRequest{
		Text:        req.UserInput,
		QualityMode: req.QualityMode,
		Resolution:  req.Resolution,
		ClientID:    middleware.ClientIDFromContext(r.Context()),
		Locale:      locale,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, newJobView(job))
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newJobView(job))
}

func (a *App) Transitions(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	history, err := a.Jobs.History(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"job_id": jobID, "transitions": history})
}

func (a *App) Revise(w http.ResponseWriter, r *http.Request) {
	var req reviseRequest
	if !a.decode(w, r, &req) {
		return
	}
	job, err := a.Jobs.SubmitRevision(r.Context(), orchestrator.RevisionRequest{
		ParentID:               chi.URLParam(r, "id"),
		Feedback:               req.Feedback,
		TargetedFields:         req.TargetedFields,
		SuggestedModifications: req.SuggestedModifications,
		ClientID:               middleware.ClientIDFromContext(r.Context()),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, newJobView(job))
}

func (a *App) Finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if !a.decode(w, r, &req) {
		return
	}
	job, err := a.Jobs.SubmitFinalization(r.Context(), orchestrator.FinalizationRequest{
		JobID:         chi.URLParam(r, "id"),
		SelectedSeeds: req.SelectedSeeds,
		Resolution:    req.Resolution,
		ClientID:      middleware.ClientIDFromContext(r.Context()),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, newJobView(job))
}
