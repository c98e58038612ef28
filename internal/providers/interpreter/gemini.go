// Package interpreter turns redacted user text into a structured IR.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"prism/internal/domain"
	"prism/internal/providers/genai"
)

// ErrEmptyIR is returned when the model answers without any usable shot.
var ErrEmptyIR = errors.New("interpreter: response contained no shots")

const irInstruction = `You are a video director. Break the user's request into a short multi-shot video.
Respond strictly with JSON matching this schema:
{"title":string,"topic":string,"tags":string[],"style":{"visual":string,"mood":string},
"audio":{"narration_tone":string,"music":string},
"shots":[{"visual_prompt":string,"narration":string,"duration_s":int,"camera":string,"lighting":string}],
"script":string}
Use at most %d shots, a total duration of at most %d seconds and %s.`

// Gemini interprets requests with a Gemini model.
type Gemini struct {
	client *genai.Client
}

// NewGemini wraps an existing Gemini client.
func NewGemini(client *genai.Client) *Gemini {
	return &Gemini{client: client}
}

// Interpret asks the model for an IR sized to the quality mode.
func (g *Gemini) Interpret(ctx context.Context, text string, mode domain.QualityMode) (*domain.IR, error) {
	instruction := fmt.Sprintf(irInstruction, maxShotsFor(mode), domain.MaxTotalDurationS, detailFor(mode))
	var ir domain.IR
	if err := g.client.GenerateJSON(ctx, instruction, text, &ir); err != nil {
		return nil, err
	}
	if len(ir.Shots) == 0 {
		return nil, ErrEmptyIR
	}
	normalize(&ir, text)
	return &ir, nil
}

func maxShotsFor(mode domain.QualityMode) int {
	switch mode {
	case domain.QualityFast:
		return 3
	case domain.QualityHigh:
		return 6
	default:
		return 4
	}
}

func detailFor(mode domain.QualityMode) string {
	switch mode {
	case domain.QualityFast:
		return "keep visual prompts brief"
	case domain.QualityHigh:
		return "write rich, cinematic visual prompts"
	default:
		return "write clear, concrete visual prompts"
	}
}

// normalize fills fields a model commonly omits.
func normalize(ir *domain.IR, text string) {
	if strings.TrimSpace(ir.Topic) == "" {
		ir.Topic = strings.TrimSpace(text)
	}
	if strings.TrimSpace(ir.Title) == "" {
		ir.Title = ir.Topic
	}
	if len(ir.Tags) == 0 {
		ir.Tags = Keywords(text)
	}
	for i := range ir.Shots {
		if ir.Shots[i].DurationS <= 0 {
			ir.Shots[i].DurationS = 5
		}
	}
}
