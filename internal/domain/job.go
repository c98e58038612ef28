package domain

import (
	"encoding/json"
	"time"
)

// JobState enumerates job lifecycle states.
type JobState string

const (
	JobStatePending   JobState = "PENDING"
	JobStateRunning   JobState = "RUNNING"
	JobStateSucceeded JobState = "SUCCEEDED"
	JobStateFailed    JobState = "FAILED"
	// JobStateCancelled is reserved; nothing transitions into it yet.
	JobStateCancelled JobState = "CANCELLED"
)

// StateTransition is one immutable entry of a job's audit log.
type StateTransition struct {
	From      JobState  `json:"from"`
	To        JobState  `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// AssetStatus enumerates per-shot result states.
type AssetStatus string

const (
	AssetStatusCompleted AssetStatus = "completed"
	AssetStatusFailed    AssetStatus = "failed"
)

// Asset is the per-shot result record stored on a job.
type Asset struct {
	ShotID     int         `json:"shot_id"`
	Status     AssetStatus `json:"status"`
	VideoURL   string      `json:"video_url,omitempty"`
	Error      string      `json:"error,omitempty"`
	Seed       int         `json:"seed,omitempty"`
	Resolution string      `json:"resolution,omitempty"`
	DurationS  int         `json:"duration_s,omitempty"`
	TaskID     string      `json:"task_id,omitempty"`
	PreviewURL string      `json:"preview_url,omitempty"`
}

// RenderRequest is the compiled, renderer-ready description of a single shot.
type RenderRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	DurationS      int    `json:"duration"`
	Size           string `json:"size"`
	Seed           int    `json:"seed"`
	Steps          int    `json:"steps,omitempty"`
	PromptExtend   bool   `json:"prompt_extend"`
	Watermark      bool   `json:"watermark"`
}

// ShotRequest pairs a compiled render request with the renderer task id.
// TaskID stays nil when submission failed.
type ShotRequest struct {
	ShotID      int           `json:"shot_id"`
	Request     RenderRequest `json:"request"`
	TaskID      *string       `json:"task_id"`
	SubmitError string        `json:"submit_error,omitempty"`
}

// ErrorDetails is the structured failure payload of a FAILED job.
type ErrorDetails struct {
	Stage   string `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
	ShotID  *int   `json:"shot_id,omitempty"`
}

// Job is the unit of work tracked through generation, revision and finalization.
type Job struct {
	ID             string   `json:"job_id"`
	RevisionOf     *string  `json:"revision_of,omitempty"`
	TargetedFields []string `json:"targeted_fields,omitempty"`
	ClientID       string   `json:"client_id,omitempty"`
	// SlotClient is the admission counter holding a concurrency slot for the
	// workflow currently running on this job. Empty when none was taken.
	SlotClient     string   `json:"slot_client,omitempty"`

	State            JobState          `json:"state"`
	StateTransitions []StateTransition `json:"state_transitions"`

	UserInputRedacted string   `json:"user_input_redacted"`
	UserInputHash     string   `json:"user_input_hash"`
	PIIFlags          []string `json:"pii_flags"`
	Locale            string   `json:"locale,omitempty"`

	TemplateID      string      `json:"template_id,omitempty"`
	TemplateVersion string      `json:"template_version,omitempty"`
	QualityMode     QualityMode `json:"quality_mode"`
	Resolution      string      `json:"resolution"`
	TotalDurationS  int         `json:"total_duration_s,omitempty"`

	IR            *IR           `json:"ir,omitempty"`
	ShotPlan      *ShotPlan     `json:"shot_plan,omitempty"`
	ShotRequests  []ShotRequest `json:"shot_requests,omitempty"`
	Assets        []Asset       `json:"assets"`
	SelectedSeeds map[int]int   `json:"selected_seeds,omitempty"`

	ErrorDetails *ErrorDetails `json:"error_details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so stores never hand out aliased state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	raw, err := json.Marshal(j)
	if err != nil {
		panic("domain: clone job: " + err.Error())
	}
	var out Job
	if err := json.Unmarshal(raw, &out); err != nil {
		panic("domain: clone job: " + err.Error())
	}
	return &out
}

// FailedShots counts assets recorded as failed.
func (j *Job) FailedShots() int {
	n := 0
	for _, a := range j.Assets {
		if a.Status == AssetStatusFailed {
			n++
		}
	}
	return n
}

// AssetFor returns the asset recorded for shotID, if any.
func (j *Job) AssetFor(shotID int) (Asset, bool) {
	for _, a := range j.Assets {
		if a.ShotID == shotID {
			return a, true
		}
	}
	return Asset{}, false
}

// LastTransition returns the most recent audit entry.
func (j *Job) LastTransition() (StateTransition, bool) {
	if len(j.StateTransitions) == 0 {
		return StateTransition{}, false
	}
	return j.StateTransitions[len(j.StateTransitions)-1], true
}
