package interpreter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"prism/internal/domain"
)

var stopwords = map[string]struct{}{
	"show": {}, "with": {}, "make": {}, "create": {}, "video": {}, "about": {},
	"that": {}, "this": {}, "from": {}, "into": {}, "some": {}, "please": {},
	"the": {}, "and": {}, "for": {},
}

// Keywords extracts lowercase content words in order of first appearance.
func Keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	seen := map[string]struct{}{}
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Fixed produces a deterministic four-scene IR from the text alone.
// It backs simulation mode and tests.
type Fixed struct{}

// NewFixed returns the deterministic interpreter.
func NewFixed() *Fixed { return &Fixed{} }

func (Fixed) Interpret(ctx context.Context, text string, mode domain.QualityMode) (*domain.IR, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(text)
	if subject == "" {
		return nil, errors.New("interpreter: empty input")
	}
	tags := Keywords(subject)
	scenes := []struct {
		title, visual, narration, camera, lighting string
	}{
		{"Opening", "Establishing view of %s", "Let's begin: %s.", "wide shot", "morning sunlight"},
		{"Detail", "Close-up details of %s", "Every detail matters.", "close-up", "soft diffused light"},
		{"Process", "Hands preparing %s", "Simple steps, great results.", "overhead shot", "warm kitchen light"},
		{"Closing", "People enjoying %s together", "Enjoy the moment.", "medium shot", "golden hour"},
	}
	n := maxShotsFor(mode)
	if n > len(scenes) {
		n = len(scenes)
	}

	ir := &domain.IR{
		Title: subject,
		Topic: subject,
		Tags:  tags,
		Style: domain.IRStyle{Visual: "warm", Mood: "uplifting"},
		Audio: domain.IRAudio{NarrationTone: "friendly", Music: "acoustic"},
	}
	var script strings.Builder
	for i := 0; i < n; i++ {
		s := scenes[i]
		shot := domain.IRShot{
			VisualPrompt: fmt.Sprintf(s.visual, subject),
			DurationS:    10,
			Camera:       s.camera,
			Lighting:     s.lighting,
		}
		if strings.Contains(s.narration, "%s") {
			shot.Narration = fmt.Sprintf(s.narration, subject)
		} else {
			shot.Narration = s.narration
		}
		ir.Shots = append(ir.Shots, shot)
		fmt.Fprintf(&script, "[Scene %d] %s\nVisual: %s\nNarration: %s\n\n", i+1, s.title, shot.VisualPrompt, shot.Narration)
	}
	ir.Script = strings.TrimSpace(script.String())
	return ir, nil
}
