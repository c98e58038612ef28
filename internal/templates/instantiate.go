package templates

import (
	"fmt"

	"prism/internal/domain"
)

// BaseSeed is the first default seed; shot i gets BaseSeed+i-1.
const BaseSeed = 12345

// Instantiate pours the IR into the template's skeletons. One shot is
// produced per IR shot, or one per skeleton when the IR has none.
// Skeleton camera and lighting fill gaps cyclically.
func Instantiate(ir *domain.IR, tmpl *domain.Template, mode domain.QualityMode) (*domain.ShotPlan, error) {
	if tmpl == nil || len(tmpl.Skeletons) == 0 {
		return nil, fmt.Errorf("instantiate: template has no shot skeletons")
	}
	if ir == nil {
		return nil, fmt.Errorf("instantiate: missing ir")
	}
	steps := mode.Budget().Steps

	n := len(ir.Shots)
	if n == 0 {
		n = len(tmpl.Skeletons)
	}
	plan := &domain.ShotPlan{NegativePrompt: tmpl.NegativePrompt}
	for i := 0; i < n; i++ {
		sk := tmpl.Skeletons[i%len(tmpl.Skeletons)]
		shot := domain.Shot{
			ShotID:    i + 1,
			DurationS: sk.DurationS,
			Camera:    sk.Camera,
			Lighting:  sk.Lighting,
			Seed:      BaseSeed + i,
			Steps:     steps,
		}
		if i < len(ir.Shots) {
			src := ir.Shots[i]
			shot.VisualPrompt = src.VisualPrompt
			shot.Narration = src.Narration
			if src.DurationS > 0 {
				shot.DurationS = src.DurationS
			}
			if src.Camera != "" {
				shot.Camera = src.Camera
			}
			if src.Lighting != "" {
				shot.Lighting = src.Lighting
			}
		} else {
			shot.VisualPrompt = fmt.Sprintf("%s, %s", ir.Topic, sk.Role)
			if sk.Visual != "" {
				shot.VisualPrompt = sk.Visual
			}
		}
		if shot.DurationS <= 0 {
			shot.DurationS = 5
		}
		if sk.Role != "" {
			shot.Extensions = map[string]any{"role": sk.Role}
		}
		plan.Shots = append(plan.Shots, shot)
		plan.DurationS += shot.DurationS
	}
	return plan, nil
}

// Rescale stretches or shrinks shot durations proportionally toward target
// seconds, keeping every shot at least one second long.
func Rescale(plan *domain.ShotPlan, target int) {
	if plan == nil || target <= 0 || plan.DurationS == 0 || plan.DurationS == target {
		return
	}
	total := 0
	for i := range plan.Shots {
		d := plan.Shots[i].DurationS * target / plan.DurationS
		if d < 1 {
			d = 1
		}
		plan.Shots[i].DurationS = d
		total += d
	}
	plan.DurationS = total
}
