package usecase

import (
	"context"
	"log/slog"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
)

// Score multipliers for secondary searches driven by query expansion.
// Expanded evidence always ranks behind what the primary query found.
const (
	antigenTermScale  = 0.8
	expandedTermScale = 0.7
	expandedTermTopK  = 2
)

// expandedSearch runs secondary searches for expansion terms derived
// from the question. Terms naming a known target antigen reuse the
// primary vector with an entity filter over the antigen-filterable
// collections; other terms are embedded on their own and federated
// shallowly. Embedding failures here only drop the term.
func (uc *RetrieveUseCase) expandedSearch(
	ctx context.Context,
	question string,
	primaryVector []float32,
	subset []domain.Collection,
	topK int,
) []domain.SearchHit {
	terms := uc.expander.Expand(question)
	if len(terms) > uc.settings.MaxExpansionTerms {
		terms = terms[:uc.settings.MaxExpansionTerms]
	}

	var hits []domain.SearchHit
	for _, term := range terms {
		if uc.graph != nil {
			if antigen, ok := uc.graph.TargetAntigen(term); ok {
				hits = append(hits, uc.antigenTermSearch(ctx, primaryVector, antigen, subset, topK)...)
				continue
			}
		}
		hits = append(hits, uc.termSearch(ctx, term, subset)...)
	}
	return hits
}

func (uc *RetrieveUseCase) antigenTermSearch(
	ctx context.Context,
	vector []float32,
	antigen string,
	subset []domain.Collection,
	topK int,
) []domain.SearchHit {
	limit := topK
	if limit > 3 {
		limit = 3
	}

	var filterable []domain.Collection
	filters := make(map[string]domain.CollectionFilter)
	for _, col := range subset {
		if !col.AntigenFilter {
			continue
		}
		filterable = append(filterable, col)
		filters[col.Name] = domain.CollectionFilter{TargetAntigen: antigen}
	}
	if len(filterable) == 0 {
		return nil
	}

	raw := uc.searchAll(ctx, vector, limit, filters, filterable)

	var hits []domain.SearchHit
	for _, col := range filterable {
		hits = append(hits, uc.annotate(col, raw[col.Name], antigenTermScale)...)
	}
	return hits
}

func (uc *RetrieveUseCase) termSearch(ctx context.Context, term string, subset []domain.Collection) []domain.SearchHit {
	vector, err := uc.embedder.EmbedQuery(ctx, queryInstructionPrefix+term)
	if err != nil {
		uc.logger.Warn("expansion term embedding failed",
			slog.String("term", term),
			slog.Any("error", err))
		return nil
	}

	raw := uc.searchAll(ctx, vector, expandedTermTopK, nil, subset)

	var hits []domain.SearchHit
	for _, col := range subset {
		hits = append(hits, uc.annotate(col, raw[col.Name], expandedTermScale)...)
	}
	return hits
}
