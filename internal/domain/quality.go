package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// QualityMode selects the render budget for a job.
type QualityMode string

const (
	QualityFast     QualityMode = "fast"
	QualityBalanced QualityMode = "balanced"
	QualityHigh     QualityMode = "high"
)

// QualityBudget bounds the renderer work allowed for a quality mode.
type QualityBudget struct {
	PreviewSeeds int
	Steps        int
}

var qualityBudgets = map[QualityMode]QualityBudget{
	QualityFast:     {PreviewSeeds: 1, Steps: 20},
	QualityBalanced: {PreviewSeeds: 2, Steps: 30},
	QualityHigh:     {PreviewSeeds: 4, Steps: 50},
}

const (
	// MaxShotsPerPlan caps the number of shots a plan may contain.
	MaxShotsPerPlan = 10
	// MaxTotalDurationS caps the summed duration of a plan.
	MaxTotalDurationS = 60
	// DefaultResolution is used when a request omits the resolution.
	DefaultResolution = "1280x720"
	// DefaultFinalResolution is the finalization target when none is given.
	DefaultFinalResolution = "1920x1080"
)

// ParseQualityMode validates a raw quality mode; empty means balanced.
func ParseQualityMode(raw string) (QualityMode, error) {
	mode := QualityMode(strings.ToLower(strings.TrimSpace(raw)))
	if mode == "" {
		return QualityBalanced, nil
	}
	if _, ok := qualityBudgets[mode]; !ok {
		return "", &ValidationError{Field: "quality_mode", Message: fmt.Sprintf("invalid quality mode %q (want fast, balanced or high)", raw)}
	}
	return mode, nil
}

// Budget returns the render budget for the mode.
func (m QualityMode) Budget() QualityBudget {
	if b, ok := qualityBudgets[m]; ok {
		return b
	}
	return qualityBudgets[QualityBalanced]
}

// ParseResolution validates a "WIDTHxHEIGHT" string and returns its parts.
func ParseResolution(raw string) (int, int, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(raw)), "x")
	if len(parts) != 2 {
		return 0, 0, &ValidationError{Field: "resolution", Message: fmt.Sprintf("resolution %q must look like 1280x720", raw)}
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, &ValidationError{Field: "resolution", Message: fmt.Sprintf("resolution %q must look like 1280x720", raw)}
	}
	return w, h, nil
}

// RenderSize converts "1280x720" into the renderer's "1280*720" notation.
func RenderSize(resolution string) string {
	return strings.Replace(strings.ToLower(resolution), "x", "*", 1)
}
