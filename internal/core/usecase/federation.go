package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
)

// searchAll fans one vector out across the given collections
// concurrently. Each collection gets the shared deadline; a failing
// collection logs a warning and contributes nothing, it never fails
// the whole search.
func (uc *RetrieveUseCase) searchAll(
	ctx context.Context,
	vector []float32,
	topK int,
	filters map[string]domain.CollectionFilter,
	subset []domain.Collection,
) map[string][]domain.StoreHit {
	ctx, cancel := context.WithTimeout(ctx, uc.settings.SearchTimeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string][]domain.StoreHit, len(subset))
	)
	for _, col := range subset {
		wg.Add(1)
		go func(col domain.Collection) {
			defer wg.Done()
			hits, err := uc.store.Search(ctx, col.Name, vector, topK, filters[col.Name], uc.settings.ScoreThreshold)
			if err != nil {
				uc.logger.Warn("collection search failed",
					slog.String("collection", col.Name),
					slog.Any("error", err))
				if uc.collectionErrHook != nil {
					uc.collectionErrHook(col.Name)
				}
				return
			}
			mu.Lock()
			results[col.Name] = hits
			mu.Unlock()
		}(col)
	}
	wg.Wait()
	return results
}
