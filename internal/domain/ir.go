package domain

// IR is the structured interpretation of the user's request.
// Extensions carries template-specific keys the typed fields do not model.
type IR struct {
	Title      string         `json:"title"`
	Topic      string         `json:"topic"`
	Tags       []string       `json:"tags,omitempty"`
	Style      IRStyle        `json:"style"`
	Audio      IRAudio        `json:"audio"`
	Shots      []IRShot       `json:"shots"`
	Script     string         `json:"script,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// IRStyle captures the visual direction.
type IRStyle struct {
	Visual string `json:"visual,omitempty"`
	Mood   string `json:"mood,omitempty"`
}

// IRAudio captures narration and music direction.
type IRAudio struct {
	NarrationTone string `json:"narration_tone,omitempty"`
	Music         string `json:"music,omitempty"`
}

// IRShot is the interpreter's breakdown of one scene.
type IRShot struct {
	VisualPrompt string `json:"visual_prompt"`
	Narration    string `json:"narration,omitempty"`
	DurationS    int    `json:"duration_s,omitempty"`
	Camera       string `json:"camera,omitempty"`
	Lighting     string `json:"lighting,omitempty"`
}

// Shot is a concrete shot descriptor inside a shot plan.
type Shot struct {
	ShotID       int            `json:"shot_id"`
	VisualPrompt string         `json:"visual_prompt"`
	Narration    string         `json:"narration,omitempty"`
	DurationS    int            `json:"duration_s"`
	Camera       string         `json:"camera,omitempty"`
	Lighting     string         `json:"lighting,omitempty"`
	Seed         int            `json:"seed"`
	Steps        int            `json:"steps"`
	Extensions   map[string]any `json:"extensions,omitempty"`
}

// ShotPlan is the ordered list of shots derived from a template and an IR.
type ShotPlan struct {
	Shots          []Shot `json:"shots"`
	DurationS      int    `json:"duration_s"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

// ShotIDs returns the plan's shot ids in plan order.
func (p *ShotPlan) ShotIDs() []int {
	if p == nil {
		return nil
	}
	ids := make([]int, 0, len(p.Shots))
	for _, s := range p.Shots {
		ids = append(ids, s.ShotID)
	}
	return ids
}

// Shot returns the shot with the given id.
func (p *ShotPlan) Shot(id int) (Shot, bool) {
	if p == nil {
		return Shot{}, false
	}
	for _, s := range p.Shots {
		if s.ShotID == id {
			return s, true
		}
	}
	return Shot{}, false
}

// Template describes a reusable shot structure from the catalog.
type Template struct {
	ID             string         `json:"template_id" yaml:"id"`
	Version        string         `json:"version" yaml:"version"`
	Name           string         `json:"name" yaml:"name"`
	Keywords       []string       `json:"keywords" yaml:"keywords"`
	NegativePrompt string         `json:"negative_prompt,omitempty" yaml:"negative_prompt"`
	Skeletons      []ShotSkeleton `json:"shot_skeletons" yaml:"shot_skeletons"`
	Extensions     map[string]any `json:"extensions,omitempty" yaml:"extensions"`
}

// ShotSkeleton is a template slot that an IR shot is poured into.
type ShotSkeleton struct {
	Role      string `json:"role" yaml:"role"`
	Camera    string `json:"camera,omitempty" yaml:"camera"`
	Lighting  string `json:"lighting,omitempty" yaml:"lighting"`
	DurationS int    `json:"duration_s" yaml:"duration_s"`
	Visual    string `json:"visual,omitempty" yaml:"visual"`
}

// TemplateMatch is the router's answer for an IR.
type TemplateMatch struct {
	Template *Template
	ID       string
	Version  string
	Score    int
}
