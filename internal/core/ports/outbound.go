package ports

import (
	"context"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
)

// Embedder builds a query vector for retrieval.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore performs semantic search against one collection. The
// filter carries only attributes the collection actually indexes; the
// store translates it into its native filter syntax. Hits below the
// score threshold are dropped by the store.
type VectorStore interface {
	Search(ctx context.Context, collection string, vector []float32, limit int, filter domain.CollectionFilter, scoreThreshold float64) ([]domain.StoreHit, error)
	CollectionRowCount(ctx context.Context, collection string) (int64, error)
}

// AnswerGenerator creates the final user-facing answer from an
// assembled prompt. StreamFromPrompt delivers token deltas through
// onToken and returns the full text.
type AnswerGenerator interface {
	GenerateFromPrompt(ctx context.Context, system, prompt string) (string, error)
	StreamFromPrompt(ctx context.Context, system, prompt string, onToken func(string)) (string, error)
}

// SessionStore persists conversation turns used as prior context for
// follow-up questions.
type SessionStore interface {
	AppendTurn(ctx context.Context, sessionID, question, answer string) error
	RecentContext(ctx context.Context, sessionID string, limit int) (string, error)
}
