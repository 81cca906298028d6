package knowledge

import (
	"fmt"
	"strings"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
)

// ResolveEntity maps a raw mention onto a known entity. Matching runs in
// priority order: target antigens exact, then the alias table, then
// toxicities (space/underscore tolerant), then manufacturing processes
// (prefix or substring), then biomarkers. Unrecognized input returns
// ok=false; resolution never fails with an error.
func (g *Graph) ResolveEntity(raw string) (domain.ResolvedEntity, bool) {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	if cleaned == "" {
		return domain.ResolvedEntity{}, false
	}

	if t, ok := g.targetByName[cleaned]; ok {
		return domain.ResolvedEntity{Kind: domain.EntityTarget, Name: t.Name, Canonical: t.Name}, true
	}

	if a, ok := g.aliasByName[cleaned]; ok {
		resolved := domain.ResolvedEntity{Kind: domain.EntityKind(a.Kind), Name: a.Canonical, Canonical: a.Canonical}
		if a.Target != "" {
			resolved.Canonical = a.Target
		}
		return resolved, true
	}

	toxKey := strings.ReplaceAll(cleaned, " ", "_")
	if t, ok := g.toxicityByName[toxKey]; ok {
		return domain.ResolvedEntity{Kind: domain.EntityToxicity, Name: t.Name, Canonical: t.Name}, true
	}

	mfgKey := strings.ToLower(strings.ReplaceAll(cleaned, " ", "_"))
	for i := range g.manufacturing {
		name := strings.ToLower(g.manufacturing[i].Name)
		if strings.Contains(name, mfgKey) || strings.HasPrefix(name, strings.ToLower(cleaned)) {
			return domain.ResolvedEntity{
				Kind:      domain.EntityManufacturing,
				Name:      g.manufacturing[i].Name,
				Canonical: g.manufacturing[i].Name,
			}, true
		}
	}

	for i := range g.biomarkers {
		m := &g.biomarkers[i]
		if strings.EqualFold(m.Name, cleaned) || strings.EqualFold(m.FullName, cleaned) {
			return domain.ResolvedEntity{Kind: domain.EntityBiomarker, Name: m.Name, Canonical: m.Name}, true
		}
	}

	return domain.ResolvedEntity{}, false
}

// TargetAntigen reports whether term names a known target antigen,
// ignoring case, dashes and spaces, and returns the canonical name.
func (g *Graph) TargetAntigen(term string) (string, bool) {
	norm := normalizeAntigen(term)
	if norm == "" {
		return "", false
	}
	for i := range g.targets {
		if normalizeAntigen(g.targets[i].Name) == norm {
			return g.targets[i].Name, true
		}
	}
	return "", false
}

func normalizeAntigen(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}

// ComparisonContext renders both entities' knowledge blocks side by
// side, separated by a divider. Products render through the context of
// the antigen they target.
func (g *Graph) ComparisonContext(a, b domain.ResolvedEntity) string {
	var sections []string
	if ctx := g.entityContext(a); ctx != "" {
		sections = append(sections, fmt.Sprintf("### %s\n%s", a.Name, ctx))
	}
	if ctx := g.entityContext(b); ctx != "" {
		sections = append(sections, fmt.Sprintf("### %s\n%s", b.Name, ctx))
	}
	return strings.Join(sections, "\n\n---\n\n")
}

func (g *Graph) entityContext(e domain.ResolvedEntity) string {
	switch e.Kind {
	case domain.EntityTarget, domain.EntityProduct:
		return g.TargetContext(e.Canonical)
	case domain.EntityToxicity:
		return g.ToxicityContext(e.Canonical)
	case domain.EntityManufacturing:
		return g.ManufacturingContext(e.Canonical)
	case domain.EntityBiomarker:
		return g.BiomarkerContext(e.Canonical)
	case domain.EntityCostim:
		return fmt.Sprintf("Costimulatory Domain: %s", e.Name)
	default:
		return ""
	}
}
