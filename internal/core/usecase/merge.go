package usecase

import (
	"sort"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
)

// mergeAndRank deduplicates hits by (collection, id) keeping the first
// occurrence, then orders by weighted score descending. The stable sort
// preserves arrival order between equal scores. The merged list is
// capped after deduplication so duplicates never crowd out evidence.
func (uc *RetrieveUseCase) mergeAndRank(hits []domain.SearchHit) []domain.SearchHit {
	seen := make(map[string]struct{}, len(hits))
	merged := make([]domain.SearchHit, 0, len(hits))
	for _, h := range hits {
		key := h.Collection + "\x00" + h.ID
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, h)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].WeightedScore > merged[j].WeightedScore
	})
	if len(merged) > uc.settings.MaxMergedHits {
		merged = merged[:uc.settings.MaxMergedHits]
	}
	return merged
}
