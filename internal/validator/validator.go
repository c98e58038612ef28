// Package validator enforces plan and feedback bounds before any render work.
package validator

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"prism/internal/domain"
)

const (
	MinFeedbackChars = 2
	MaxFeedbackChars = 500
)

// ValidatePlan checks shot count, total duration and per-shot budgets.
// Every violation is reported; the result unwraps to domain.ErrValidation.
func ValidatePlan(plan *domain.ShotPlan, mode domain.QualityMode) error {
	if plan == nil || len(plan.Shots) == 0 {
		return &domain.ValidationError{Field: "shot_plan", Message: "plan has no shots"}
	}
	var errs []error
	if len(plan.Shots) > domain.MaxShotsPerPlan {
		errs = append(errs, &domain.ValidationError{
			Field:   "shot_plan.shots",
			Message: fmt.Sprintf("%d shots exceeds the limit of %d", len(plan.Shots), domain.MaxShotsPerPlan),
		})
	}
	budget := mode.Budget()
	total := 0
	seen := make(map[int]struct{}, len(plan.Shots))
	for _, s := range plan.Shots {
		if _, dup := seen[s.ShotID]; dup {
			errs = append(errs, &domain.ValidationError{Field: "shot_id", Message: fmt.Sprintf("duplicate shot id %d", s.ShotID)})
		}
		seen[s.ShotID] = struct{}{}
		if s.DurationS <= 0 {
			errs = append(errs, &domain.ValidationError{Field: "duration_s", Message: fmt.Sprintf("shot %d has no duration", s.ShotID)})
		}
		if s.Steps > budget.Steps {
			errs = append(errs, &domain.ValidationError{
				Field:   "steps",
				Message: fmt.Sprintf("shot %d uses %d steps, %s allows %d", s.ShotID, s.Steps, mode, budget.Steps),
			})
		}
		total += s.DurationS
	}
	if total > domain.MaxTotalDurationS {
		errs = append(errs, &domain.ValidationError{
			Field:   "duration_s",
			Message: fmt.Sprintf("total duration %ds exceeds the limit of %ds", total, domain.MaxTotalDurationS),
		})
	}
	return errors.Join(errs...)
}

// ValidateFeedback bounds revision feedback length in characters.
func ValidateFeedback(feedback string) error {
	trimmed := strings.TrimSpace(feedback)
	if utf8.RuneCountInString(trimmed) < MinFeedbackChars {
		return &domain.ValidationError{Field: "feedback", Message: "feedback is too short"}
	}
	if utf8.RuneCountInString(feedback) > MaxFeedbackChars {
		return &domain.ValidationError{Field: "feedback", Message: fmt.Sprintf("feedback exceeds %d characters", MaxFeedbackChars)}
	}
	return nil
}
