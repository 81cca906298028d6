package domain

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed collections.yaml
var collectionsYAML []byte

// Collection describes one searchable vector collection: its display
// label, ranking weight, and which filterable attributes it indexes.
// YearField is empty when the collection has no year attribute.
type Collection struct {
	Name          string  `yaml:"name" json:"name"`
	Label         string  `yaml:"label" json:"label"`
	Weight        float64 `yaml:"weight" json:"weight"`
	AntigenFilter bool    `yaml:"antigen_filter" json:"antigen_filter"`
	YearField     string  `yaml:"year_field" json:"year_field,omitempty"`
}

// Registry is the fixed set of collections the engine federates across.
// Ordering follows the descriptor file and is stable across calls.
type Registry struct {
	ordered []Collection
	byName  map[string]Collection
}

// NewRegistry parses the embedded descriptor set. Weights are data, not
// code: retuning the ranking only touches the YAML.
func NewRegistry() (*Registry, error) {
	return newRegistryFrom(collectionsYAML)
}

func newRegistryFrom(raw []byte) (*Registry, error) {
	var doc struct {
		Collections []Collection `yaml:"collections"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse collection registry: %w", err)
	}
	if len(doc.Collections) == 0 {
		return nil, fmt.Errorf("parse collection registry: no collections defined")
	}
	reg := &Registry{
		ordered: doc.Collections,
		byName:  make(map[string]Collection, len(doc.Collections)),
	}
	for _, col := range doc.Collections {
		if col.Name == "" {
			return nil, fmt.Errorf("parse collection registry: unnamed collection")
		}
		if col.Weight < 0 || col.Weight > 1 {
			return nil, fmt.Errorf("parse collection registry: %s: weight %v outside [0,1]", col.Name, col.Weight)
		}
		if _, dup := reg.byName[col.Name]; dup {
			return nil, fmt.Errorf("parse collection registry: duplicate collection %s", col.Name)
		}
		reg.byName[col.Name] = col
	}
	return reg, nil
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (Collection, bool) {
	col, ok := r.byName[name]
	return col, ok
}

// All returns every descriptor in registry order.
func (r *Registry) All() []Collection {
	out := make([]Collection, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Names returns the collection names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, col := range r.ordered {
		names[i] = col.Name
	}
	return names
}

// AntigenFilterable returns the descriptors that index a target antigen
// attribute, in registry order.
func (r *Registry) AntigenFilterable() []Collection {
	var out []Collection
	for _, col := range r.ordered {
		if col.AntigenFilter {
			out = append(out, col)
		}
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.ordered)
}
