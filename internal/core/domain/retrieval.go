package domain

import "fmt"

// Relevance buckets a raw similarity score against configured thresholds.
type Relevance string

const (
	RelevanceHigh   Relevance = "high"
	RelevanceMedium Relevance = "medium"
	RelevanceLow    Relevance = "low"
)

// SearchHit is one piece of evidence returned by a collection search.
// Score is the raw similarity in [0,1]; WeightedScore folds the owning
// collection's weight in and drives the final ordering.
type SearchHit struct {
	Collection    string         `json:"collection"`
	ID            string         `json:"id"`
	Score         float64        `json:"score"`
	WeightedScore float64        `json:"weighted_score"`
	Relevance     Relevance      `json:"relevance"`
	Text          string         `json:"text"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// Filters restricts a federated search to an antigen and/or a year window.
// Collections that do not index an attribute simply ignore it.
type Filters struct {
	TargetAntigen string `json:"target_antigen,omitempty"`
	YearMin       int    `json:"year_min,omitempty"`
	YearMax       int    `json:"year_max,omitempty"`
}

const (
	minFilterYear = 1900
	maxFilterYear = 2100
)

// Validate rejects malformed filters before any network call is made.
func (f Filters) Validate() error {
	for _, year := range []int{f.YearMin, f.YearMax} {
		if year != 0 && (year < minFilterYear || year > maxFilterYear) {
			return WrapError(ErrInvalidInput, "validate filters", fmt.Errorf("year %d outside [%d, %d]", year, minFilterYear, maxFilterYear))
		}
	}
	if f.YearMin != 0 && f.YearMax != 0 && f.YearMin > f.YearMax {
		return WrapError(ErrInvalidInput, "validate filters", fmt.Errorf("year_min %d exceeds year_max %d", f.YearMin, f.YearMax))
	}
	return nil
}

// CollectionFilter is a per-collection filter already narrowed to the
// attributes that collection indexes. YearField names the collection's
// year attribute; it is empty when no year constraint applies.
type CollectionFilter struct {
	TargetAntigen string
	YearField     string
	YearMin       int
	YearMax       int
}

// StoreHit is a raw vector-store match before weighting and merging.
type StoreHit struct {
	ID         string
	Score      float64
	Text       string
	Attributes map[string]any
}

// RetrieveOptions tunes one retrieval run. A zero TopK falls back to
// the configured per-collection default; an empty Collections list
// searches the whole registry.
type RetrieveOptions struct {
	Filters     Filters
	TopK        int
	Collections []string
	ExpandQuery bool
	SessionID   string

	// PriorContext carries rendered earlier conversation turns. When
	// set it is folded into the text that gets embedded, not into the
	// question itself.
	PriorContext string
}

// AgentAnswer pairs a generated answer with the evidence behind it.
// Exactly one of Evidence or Comparative is set, matching Mode.
type AgentAnswer struct {
	Answer      string                 `json:"answer"`
	Mode        string                 `json:"mode"`
	Evidence    *CrossCollectionResult `json:"evidence,omitempty"`
	Comparative *ComparativeResult     `json:"comparative,omitempty"`
}

// CrossCollectionResult is the merged outcome of one federated retrieval.
// Hits are deduplicated by (Collection, ID), sorted by WeightedScore
// descending and capped.
type CrossCollectionResult struct {
	Query               string      `json:"query"`
	Hits                []SearchHit `json:"hits"`
	KnowledgeContext    string      `json:"knowledge_context,omitempty"`
	CollectionsSearched int         `json:"collections_searched"`
	ElapsedMS           int64       `json:"elapsed_ms"`
}

// HitsByCollection groups the merged hits by their source collection,
// preserving rank order within each group.
func (r *CrossCollectionResult) HitsByCollection() map[string][]SearchHit {
	grouped := make(map[string][]SearchHit)
	for _, hit := range r.Hits {
		grouped[hit.Collection] = append(grouped[hit.Collection], hit)
	}
	return grouped
}

// ComparativeResult holds two independent retrievals for a resolved
// "A vs B" question.
type ComparativeResult struct {
	Query             string         `json:"query"`
	EntityA           ResolvedEntity `json:"entity_a"`
	EntityB           ResolvedEntity `json:"entity_b"`
	HitsA             []SearchHit    `json:"hits_a"`
	HitsB             []SearchHit    `json:"hits_b"`
	ComparisonContext string         `json:"comparison_context,omitempty"`
}

func (r *ComparativeResult) TotalHits() int {
	return len(r.HitsA) + len(r.HitsB)
}

// EntityKind classifies a resolved domain entity.
type EntityKind string

const (
	EntityTarget        EntityKind = "target"
	EntityProduct       EntityKind = "product"
	EntityToxicity      EntityKind = "toxicity"
	EntityManufacturing EntityKind = "manufacturing_process"
	EntityBiomarker     EntityKind = "biomarker"
	EntityCostim        EntityKind = "costimulatory_domain"
)

// ResolvedEntity is the canonical form of a surface mention. Canonical is
// the knowledge-graph key; for products it names the targeted antigen.
type ResolvedEntity struct {
	Kind      EntityKind `json:"kind"`
	Name      string     `json:"name"`
	Canonical string     `json:"canonical"`
}
