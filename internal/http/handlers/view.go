package handlers

import (
	"fmt"
	"strings"
	"time"

	"prism/internal/domain"
)

type jobView struct {
	JobID           string                  `json:"job_id"`
	State           domain.JobState         `json:"state"`
	Progress        int                     `json:"progress"`
	RevisionOf      *string                 `json:"revision_of,omitempty"`
	TargetedFields  []string                `json:"targeted_fields,omitempty"`
	QualityMode     domain.QualityMode      `json:"quality_mode"`
	Resolution      string                  `json:"resolution"`
	TemplateID      string                  `json:"template_id,omitempty"`
	TemplateVersion string                  `json:"template_version,omitempty"`
	TotalDurationS  int                     `json:"total_duration_s,omitempty"`
	PIIFlags        []string                `json:"pii_flags"`
	Script          string                  `json:"script,omitempty"`
	ShotPlan        *domain.ShotPlan        `json:"shot_plan,omitempty"`
	Assets          []domain.Asset          `json:"assets"`
	FailedShots     int                     `json:"failed_shots"`
	SelectedSeeds   map[int]int             `json:"selected_seeds,omitempty"`
	ErrorDetails    *domain.ErrorDetails    `json:"error_details,omitempty"`
	LastTransition  *domain.StateTransition `json:"last_transition,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

func newJobView(job *domain.Job) jobView {
	v := jobView{
		JobID:           job.ID,
		State:           job.State,
		Progress:        progressFor(job.State),
		RevisionOf:      job.RevisionOf,
		TargetedFields:  job.TargetedFields,
		QualityMode:     job.QualityMode,
		Resolution:      job.Resolution,
		TemplateID:      job.TemplateID,
		TemplateVersion: job.TemplateVersion,
		TotalDurationS:  job.TotalDurationS,
		PIIFlags:        job.PIIFlags,
		Script:          scriptFor(job),
		ShotPlan:        job.ShotPlan,
		Assets:          job.Assets,
		FailedShots:     job.FailedShots(),
		SelectedSeeds:   job.SelectedSeeds,
		ErrorDetails:    job.ErrorDetails,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
	if v.PIIFlags == nil {
		v.PIIFlags = []string{}
	}
	if v.Assets == nil {
		v.Assets = []domain.Asset{}
	}
	if tr, ok := job.LastTransition(); ok {
		v.LastTransition = &tr
	}
	return v
}

func progressFor(state domain.JobState) int {
	switch state {
	case domain.JobStateRunning:
		return 50
	case domain.JobStateSucceeded:
		return 100
	}
	return 0
}

// scriptFor prefers the interpreter's script and falls back to shot narration.
func scriptFor(job *domain.Job) string {
	if job.IR != nil && strings.TrimSpace(job.IR.Script) != "" {
		return job.IR.Script
	}
	if job.ShotPlan == nil {
		return ""
	}
	var b strings.Builder
	for _, s := range job.ShotPlan.Shots {
		if s.Narration == "" {
			continue
		}
		fmt.Fprintf(&b, "[Shot %d] %s\n", s.ShotID, s.Narration)
	}
	return strings.TrimSpace(b.String())
}
