package usecase

import (
	"context"
	"regexp"
	"strings"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
)

var (
	versusPattern  = regexp.MustCompile(`(?i)(.+?)\s+(?:vs\.?|versus)\s+(.+)$`)
	comparePattern = regexp.MustCompile(`(?i)(?:compare|comparing)\s+(.+?)\s+(?:and|with)\s+(.+?)(?:\s+(?:for|in)\b.*)?$`)
	leadingCompare = regexp.MustCompile(`(?i)^(?:compare|comparing)\s+`)

	// Trailing qualifiers stripped from each side of a comparison, in
	// order. "CD19 vs BCMA for multiple myeloma" must yield bare
	// entity mentions before resolution.
	trailingQualifiers = compileQualifiers([]string{
		`costimulatory domains`,
		`costimulatory domain`,
		`domains`,
		`domain`,
		`signaling`,
		`resistance mechanisms`,
		`resistance`,
		`mechanisms`,
		`for .*`,
		`in .*`,
		`differences`,
		`comparison`,
		`toxicity`,
		`efficacy`,
		`outcomes`,
		`safety`,
	})
)

func compileQualifiers(patterns []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(`(?i)\s+` + p + `$`)
	}
	return res
}

// parseComparison splits a comparative question into its two entity
// mentions. It recognizes "X vs Y" / "X versus Y" and
// "compare X and/with Y"; ok=false means the question is not
// comparative in form.
func parseComparison(question string) (a, b string, ok bool) {
	q := strings.TrimSpace(question)

	if m := versusPattern.FindStringSubmatch(q); m != nil {
		a, b = m[1], m[2]
	} else if m := comparePattern.FindStringSubmatch(q); m != nil {
		a, b = m[1], m[2]
	} else {
		return "", "", false
	}

	a = leadingCompare.ReplaceAllString(strings.TrimSpace(a), "")
	a = cleanEntityMention(a)
	b = cleanEntityMention(b)
	if a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

func cleanEntityMention(s string) string {
	s = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), "?.,;:"))
	for _, re := range trailingQualifiers {
		s = re.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}

// RetrieveComparative handles questions that set two entities against
// each other. ok=false means the question either is not comparative or
// mentions an entity the knowledge graph cannot resolve; neither case
// is an error. Each resolved side gets its own retrieval, filtered to
// its target antigen when it has one.
func (uc *RetrieveUseCase) RetrieveComparative(ctx context.Context, question string, opts domain.RetrieveOptions) (*domain.ComparativeResult, bool, error) {
	if uc.graph == nil {
		return nil, false, nil
	}
	rawA, rawB, ok := parseComparison(question)
	if !ok {
		return nil, false, nil
	}
	entityA, okA := uc.graph.ResolveEntity(rawA)
	entityB, okB := uc.graph.ResolveEntity(rawB)
	if !okA || !okB {
		return nil, false, nil
	}

	hitsA, err := uc.retrieveForEntity(ctx, question, entityA, opts)
	if err != nil {
		return nil, false, err
	}
	hitsB, err := uc.retrieveForEntity(ctx, question, entityB, opts)
	if err != nil {
		return nil, false, err
	}

	return &domain.ComparativeResult{
		Query:             question,
		EntityA:           entityA,
		EntityB:           entityB,
		HitsA:             hitsA,
		HitsB:             hitsB,
		ComparisonContext: uc.graph.ComparisonContext(entityA, entityB),
	}, true, nil
}

func (uc *RetrieveUseCase) retrieveForEntity(ctx context.Context, question string, entity domain.ResolvedEntity, opts domain.RetrieveOptions) ([]domain.SearchHit, error) {
	sideOpts := opts
	if antigen := entityAntigen(entity); antigen != "" {
		sideOpts.Filters.TargetAntigen = antigen
	}
	result, err := uc.Retrieve(ctx, question, sideOpts)
	if err != nil {
		return nil, err
	}
	return result.Hits, nil
}

// entityAntigen yields the antigen to filter evidence by: the entity
// itself for targets, the targeted antigen for products, nothing for
// everything else.
func entityAntigen(e domain.ResolvedEntity) string {
	switch e.Kind {
	case domain.EntityTarget, domain.EntityProduct:
		return e.Canonical
	default:
		return ""
	}
}
