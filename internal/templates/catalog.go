// Package templates loads the shot-template catalog and matches IRs against it.
package templates

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"prism/internal/domain"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Catalog is an immutable, id-indexed set of templates.
type Catalog struct {
	templates []*domain.Template
	byID      map[string]*domain.Template
}

// Builtin parses the catalog compiled into the binary.
func Builtin() (*Catalog, error) {
	return Parse(builtinCatalog)
}

// LoadFile parses a catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("templates: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML list of templates.
func Parse(raw []byte) (*Catalog, error) {
	var list []*domain.Template
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("templates: decode catalog: %w", err)
	}
	c := &Catalog{byID: make(map[string]*domain.Template, len(list))}
	for i, t := range list {
		if t == nil || strings.TrimSpace(t.ID) == "" {
			return nil, fmt.Errorf("templates: entry %d has no id", i)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("templates: duplicate id %q", t.ID)
		}
		if len(t.Skeletons) == 0 {
			return nil, fmt.Errorf("templates: %s has no shot skeletons", t.ID)
		}
		for j := range t.Keywords {
			t.Keywords[j] = strings.ToLower(strings.TrimSpace(t.Keywords[j]))
		}
		c.byID[t.ID] = t
		c.templates = append(c.templates, t)
	}
	sort.Slice(c.templates, func(i, j int) bool { return c.templates[i].ID < c.templates[j].ID })
	return c, nil
}

// Get returns the template with id.
func (c *Catalog) Get(id string) (*domain.Template, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// All returns templates ordered by id.
func (c *Catalog) All() []*domain.Template {
	return c.templates
}
