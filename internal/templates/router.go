package templates

import (
	"context"
	"strings"
	"unicode"

	"prism/internal/domain"
)

// Router scores templates by keyword overlap with the IR.
type Router struct {
	catalog *Catalog
}

// NewRouter builds a router over catalog.
func NewRouter(catalog *Catalog) *Router {
	return &Router{catalog: catalog}
}

// Match returns the highest scoring template. Ties go to the lowest id.
// A zero score is domain.ErrNoTemplateMatch.
func (r *Router) Match(ctx context.Context, ir *domain.IR) (domain.TemplateMatch, error) {
	if err := ctx.Err(); err != nil {
		return domain.TemplateMatch{}, err
	}
	terms := irTerms(ir)
	var (
		best      *domain.Template
		bestScore int
	)
	for _, t := range r.catalog.All() {
		score := 0
		for _, kw := range t.Keywords {
			if _, ok := terms[kw]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = t, score
		}
	}
	if best == nil {
		return domain.TemplateMatch{}, domain.ErrNoTemplateMatch
	}
	return domain.TemplateMatch{Template: best, ID: best.ID, Version: best.Version, Score: bestScore}, nil
}

// Lookup returns a catalog template by id, for re-planning an existing job.
func (r *Router) Lookup(id string) (*domain.Template, bool) {
	return r.catalog.Get(id)
}

func irTerms(ir *domain.IR) map[string]struct{} {
	terms := map[string]struct{}{}
	add := func(text string) {
		for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
		}) {
			terms[f] = struct{}{}
		}
	}
	if ir == nil {
		return terms
	}
	add(ir.Topic)
	add(ir.Title)
	for _, tag := range ir.Tags {
		add(tag)
	}
	for _, s := range ir.Shots {
		add(s.VisualPrompt)
	}
	return terms
}
