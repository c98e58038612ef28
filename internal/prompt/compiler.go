// Package prompt compiles shot descriptors into renderer requests.
package prompt

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"prism/internal/domain"
)

const defaultShotDuration = 5

// Compiler turns a shot into a domain.RenderRequest. It is safe for
// concurrent use; casers are stateful so one is built per call.
type Compiler struct {
	PromptExtend bool
}

// NewCompiler returns a compiler; promptExtend lets the renderer rewrite prompts.
func NewCompiler(promptExtend bool) *Compiler {
	return &Compiler{PromptExtend: promptExtend}
}

// Compile builds "visual, Camera: c, Lighting: l, Style: s" plus render
// parameters. resolution is "WxH"; an empty one uses domain.DefaultResolution.
func (c *Compiler) Compile(shot domain.Shot, plan *domain.ShotPlan, ir *domain.IR, resolution string) domain.RenderRequest {
	parts := []string{strings.TrimSpace(shot.VisualPrompt)}
	if shot.Camera != "" {
		parts = append(parts, "Camera: "+shot.Camera)
	}
	if shot.Lighting != "" {
		parts = append(parts, "Lighting: "+shot.Lighting)
	}
	if ir != nil && strings.TrimSpace(ir.Style.Visual) != "" {
		parts = append(parts, "Style: "+cases.Title(language.English).String(strings.TrimSpace(ir.Style.Visual)))
	}
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}

	if resolution == "" {
		resolution = domain.DefaultResolution
	}
	duration := shot.DurationS
	if duration <= 0 {
		duration = defaultShotDuration
	}
	seed := shot.Seed
	if seed == 0 {
		seed = 12345
	}
	req := domain.RenderRequest{
		Prompt:       strings.Join(kept, ", "),
		DurationS:    duration,
		Size:         domain.RenderSize(resolution),
		Seed:         seed,
		Steps:        shot.Steps,
		PromptExtend: c.PromptExtend,
		Watermark:    false,
	}
	if plan != nil {
		req.NegativePrompt = plan.NegativePrompt
	}
	return req
}
