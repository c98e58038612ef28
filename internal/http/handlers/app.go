// Package handlers exposes the job engine over JSON HTTP endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"prism/internal/domain"
	"prism/internal/infra"
	"prism/internal/observability"
	"prism/internal/orchestrator"
)

// JobService is the engine surface the handlers drive.
type JobService interface {
	SubmitGeneration(ctx context.Context, req orchestrator.GenerationRequest) (*domain.Job, error)
	SubmitRevision(ctx context.Context, req orchestrator.RevisionRequest) (*domain.Job, error)
	SubmitFinalization(ctx context.Context, req orchestrator.FinalizationRequest) (*domain.Job, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	History(ctx context.Context, jobID string) ([]domain.StateTransition, error)
}

type App struct {
	Jobs    JobService
	Logger  infra.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

func NewApp(jobs JobService, logger infra.Logger, metrics *observability.Metrics) *App {
	return &App{Jobs: jobs, Logger: logger, Metrics: metrics, Now: time.Now}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Reason  string `json:"reason,omitempty"`
	// RetryAfter is an RFC 3339 timestamp for admission rejections.
	RetryAfter string `json:"retry_after,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, errorBody{Error: kind, Message: message})
}

// fail maps engine errors onto HTTP statuses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		admErr *domain.AdmissionError
		valErr *domain.ValidationError
	)
	switch {
	case errors.As(err, &admErr):
		wait := int(math.Ceil(admErr.RetryAfter.Sub(a.Now()).Seconds()))
		if wait < 1 {
			wait = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(wait))
		a.json(w, http.StatusTooManyRequests, errorBody{
			Error:      "admission_rejected",
			Message:    err.Error(),
			Reason:     admErr.Reason,
			RetryAfter: admErr.RetryAfter.UTC().Format(time.RFC3339),
		})
	case errors.As(err, &valErr):
		a.json(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: valErr.Message, Field: valErr.Field})
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, orchestrator.ErrShuttingDown):
		a.error(w, http.StatusServiceUnavailable, "unavailable", "server is shutting down")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}
