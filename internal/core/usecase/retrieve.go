package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
	"github.com/ajones1923/cart-intelligence-agent/internal/core/ports"
	"github.com/ajones1923/cart-intelligence-agent/internal/expansion"
	"github.com/ajones1923/cart-intelligence-agent/internal/knowledge"
)

// BGE-style instruction prefix prepended to every embedded query.
const queryInstructionPrefix = "Represent this sentence for searching relevant passages: "

// Settings tunes the retrieval pipeline. Zero values fall back to the
// documented defaults.
type Settings struct {
	TopKPerCollection int
	ScoreThreshold    float64
	MaxMergedHits     int
	MaxExpansionTerms int
	HighRelevance     float64
	MediumRelevance   float64
	SearchTimeout     time.Duration
}

func (s Settings) normalize() Settings {
	if s.TopKPerCollection <= 0 {
		s.TopKPerCollection = 5
	}
	if s.ScoreThreshold <= 0 {
		s.ScoreThreshold = 0.4
	}
	if s.MaxMergedHits <= 0 {
		s.MaxMergedHits = 30
	}
	if s.MaxExpansionTerms <= 0 {
		s.MaxExpansionTerms = 5
	}
	if s.HighRelevance <= 0 {
		s.HighRelevance = 0.75
	}
	if s.MediumRelevance <= 0 {
		s.MediumRelevance = 0.55
	}
	if s.SearchTimeout <= 0 {
		s.SearchTimeout = 10 * time.Second
	}
	return s
}

// RetrieveUseCase federates a question across every registered
// collection, merges the evidence and augments it with knowledge graph
// context. A nil expander disables query expansion; a nil graph
// disables knowledge augmentation and entity resolution.
type RetrieveUseCase struct {
	embedder ports.Embedder
	store    ports.VectorStore
	registry *domain.Registry
	expander *expansion.Engine
	graph    *knowledge.Graph
	settings Settings
	logger   *slog.Logger

	collectionErrHook func(collection string)
}

// OnCollectionError registers a hook invoked whenever a collection
// search degrades. Keeps metrics out of the core package.
func (uc *RetrieveUseCase) OnCollectionError(hook func(collection string)) {
	uc.collectionErrHook = hook
}

func NewRetrieveUseCase(
	embedder ports.Embedder,
	store ports.VectorStore,
	registry *domain.Registry,
	expander *expansion.Engine,
	graph *knowledge.Graph,
	settings Settings,
	logger *slog.Logger,
) *RetrieveUseCase {
	return &RetrieveUseCase{
		embedder: embedder,
		store:    store,
		registry: registry,
		expander: expander,
		graph:    graph,
		settings: settings.normalize(),
		logger:   logger,
	}
}

// Retrieve runs one federated retrieval. An embedding failure is the
// only fatal error; individual collection failures degrade to empty
// result sets.
func (uc *RetrieveUseCase) Retrieve(ctx context.Context, question string, opts domain.RetrieveOptions) (*domain.CrossCollectionResult, error) {
	start := time.Now()

	if err := opts.Filters.Validate(); err != nil {
		return nil, err
	}
	subset, err := uc.resolveCollections(opts.Collections)
	if err != nil {
		return nil, err
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = uc.settings.TopKPerCollection
	}

	searchText := question
	if opts.PriorContext != "" {
		searchText = fmt.Sprintf("%s\n\nCurrent question: %s", opts.PriorContext, question)
	}

	vector, err := uc.embedder.EmbedQuery(ctx, queryInstructionPrefix+searchText)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed query", err)
	}

	filters := uc.collectionFilters(subset, opts.Filters)
	raw := uc.searchAll(ctx, vector, topK, filters, subset)

	var hits []domain.SearchHit
	for _, col := range subset {
		hits = append(hits, uc.annotate(col, raw[col.Name], 1.0)...)
	}

	if opts.ExpandQuery && uc.expander != nil {
		hits = append(hits, uc.expandedSearch(ctx, question, vector, subset, topK)...)
	}

	merged := uc.mergeAndRank(hits)

	knowledgeContext := ""
	if uc.graph != nil {
		knowledgeContext = uc.graph.AllContextForQuery(question)
	}

	return &domain.CrossCollectionResult{
		Query:               question,
		Hits:                merged,
		KnowledgeContext:    knowledgeContext,
		CollectionsSearched: len(subset),
		ElapsedMS:           time.Since(start).Milliseconds(),
	}, nil
}

// FindRelated gathers everything the collections hold about one entity:
// a product name, target antigen, trial ID or any free-text mention.
// Known entities are canonicalized through the knowledge graph; anything
// else is embedded as-is. Hits keep their raw scores and only non-empty
// collections appear in the result.
func (uc *RetrieveUseCase) FindRelated(ctx context.Context, entity string, topK int) (map[string][]domain.SearchHit, error) {
	searchText := entity
	if uc.graph != nil {
		if resolved, ok := uc.graph.ResolveEntity(entity); ok {
			searchText = resolved.Name
		}
	}
	if topK <= 0 {
		topK = uc.settings.TopKPerCollection
	}

	vector, err := uc.embedder.EmbedQuery(ctx, queryInstructionPrefix+searchText)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed entity", err)
	}

	subset := uc.registry.All()
	raw := uc.searchAll(ctx, vector, topK, nil, subset)

	results := make(map[string][]domain.SearchHit)
	for _, col := range subset {
		if len(raw[col.Name]) == 0 {
			continue
		}
		var hits []domain.SearchHit
		for _, sh := range raw[col.Name] {
			hits = append(hits, domain.SearchHit{
				Collection:    col.Label,
				ID:            sh.ID,
				Score:         sh.Score,
				WeightedScore: sh.Score,
				Relevance:     uc.relevance(sh.Score),
				Text:          sh.Text,
				Attributes:    sh.Attributes,
			})
		}
		results[col.Name] = hits
	}
	return results, nil
}

func (uc *RetrieveUseCase) resolveCollections(names []string) ([]domain.Collection, error) {
	if len(names) == 0 {
		return uc.registry.All(), nil
	}
	subset := make([]domain.Collection, 0, len(names))
	for _, name := range names {
		col, ok := uc.registry.Lookup(name)
		if !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "resolve collections", fmt.Errorf("unknown collection %q", name))
		}
		subset = append(subset, col)
	}
	return subset, nil
}

// collectionFilters narrows the requested filters down to what each
// collection actually indexes. Unsupported attributes are dropped per
// collection, never rejected.
func (uc *RetrieveUseCase) collectionFilters(subset []domain.Collection, f domain.Filters) map[string]domain.CollectionFilter {
	filters := make(map[string]domain.CollectionFilter, len(subset))
	for _, col := range subset {
		cf := domain.CollectionFilter{}
		if f.TargetAntigen != "" && col.AntigenFilter {
			cf.TargetAntigen = f.TargetAntigen
		}
		if col.YearField != "" && (f.YearMin != 0 || f.YearMax != 0) {
			cf.YearField = col.YearField
			cf.YearMin = f.YearMin
			cf.YearMax = f.YearMax
		}
		if cf != (domain.CollectionFilter{}) {
			filters[col.Name] = cf
		}
	}
	return filters
}

// annotate turns raw store hits into scored search hits: the weighted
// score folds in the collection weight, the relevance tier comes from
// the raw score, and scoreScale discounts expansion-driven hits.
func (uc *RetrieveUseCase) annotate(col domain.Collection, raw []domain.StoreHit, scoreScale float64) []domain.SearchHit {
	if len(raw) == 0 {
		return nil
	}
	hits := make([]domain.SearchHit, 0, len(raw))
	for _, sh := range raw {
		score := sh.Score * scoreScale
		hits = append(hits, domain.SearchHit{
			Collection:    col.Label,
			ID:            sh.ID,
			Score:         score,
			WeightedScore: score * (1 + col.Weight),
			Relevance:     uc.relevance(sh.Score),
			Text:          sh.Text,
			Attributes:    sh.Attributes,
		})
	}
	return hits
}

func (uc *RetrieveUseCase) relevance(rawScore float64) domain.Relevance {
	switch {
	case rawScore >= uc.settings.HighRelevance:
		return domain.RelevanceHigh
	case rawScore >= uc.settings.MediumRelevance:
		return domain.RelevanceMedium
	default:
		return domain.RelevanceLow
	}
}
