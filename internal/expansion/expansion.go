// Package expansion broadens CAR-T questions into related domain terms
// using curated keyword maps. Matching is substring-based over the
// lowercased query; expansion is a single pass and never recursive.
package expansion

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed expansion.yaml
var expansionYAML []byte

type category struct {
	Name     string              `yaml:"name"`
	Keywords map[string][]string `yaml:"keywords"`
}

// Engine holds the parsed expansion maps.
type Engine struct {
	categories []category
	byName     map[string]category
}

// NewEngine parses the embedded expansion maps.
func NewEngine() (*Engine, error) {
	return newEngineFrom(expansionYAML)
}

func newEngineFrom(raw []byte) (*Engine, error) {
	var doc struct {
		Categories []category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse expansion maps: %w", err)
	}
	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("parse expansion maps: no categories defined")
	}
	eng := &Engine{
		categories: doc.Categories,
		byName:     make(map[string]category, len(doc.Categories)),
	}
	for _, cat := range doc.Categories {
		if cat.Name == "" {
			return nil, fmt.Errorf("parse expansion maps: unnamed category")
		}
		eng.byName[cat.Name] = cat
	}
	return eng, nil
}

// Expand scans query for every known keyword and returns the union of the
// matched term lists, sorted and deduplicated. No matches yields an empty
// slice. Expanding an already-expanded term set adds nothing new beyond
// one pass: the output is terms, not keywords re-fed into the maps.
func (e *Engine) Expand(query string) []string {
	lowered := strings.ToLower(query)
	matched := make(map[string]struct{})
	for _, cat := range e.categories {
		for keyword, terms := range cat.Keywords {
			if !strings.Contains(lowered, keyword) {
				continue
			}
			for _, term := range terms {
				matched[term] = struct{}{}
			}
		}
	}
	if len(matched) == 0 {
		return nil
	}
	out := make([]string, 0, len(matched))
	for term := range matched {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// ExpandByCategory restricts the scan to a single named map. An unknown
// category yields an empty slice.
func (e *Engine) ExpandByCategory(query, categoryName string) []string {
	cat, ok := e.byName[categoryName]
	if !ok {
		return nil
	}
	lowered := strings.ToLower(query)
	matched := make(map[string]struct{})
	for keyword, terms := range cat.Keywords {
		if !strings.Contains(lowered, keyword) {
			continue
		}
		for _, term := range terms {
			matched[term] = struct{}{}
		}
	}
	if len(matched) == 0 {
		return nil
	}
	out := make([]string, 0, len(matched))
	for term := range matched {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// CategoryStats reports keyword and term counts for one expansion map.
type CategoryStats struct {
	Keywords   int `json:"keywords"`
	TotalTerms int `json:"total_terms"`
}

// Stats returns per-category keyword and term counts.
func (e *Engine) Stats() map[string]CategoryStats {
	stats := make(map[string]CategoryStats, len(e.categories))
	for _, cat := range e.categories {
		total := 0
		for _, terms := range cat.Keywords {
			total += len(terms)
		}
		stats[cat.Name] = CategoryStats{Keywords: len(cat.Keywords), TotalTerms: total}
	}
	return stats
}

// Categories returns the map names in declaration order.
func (e *Engine) Categories() []string {
	names := make([]string, len(e.categories))
	for i, cat := range e.categories {
		names[i] = cat.Name
	}
	return names
}
