package ports

import (
	"context"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
)

// EvidenceRetriever is the inbound contract for federated retrieval.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, question string, opts domain.RetrieveOptions) (*domain.CrossCollectionResult, error)
	RetrieveComparative(ctx context.Context, question string, opts domain.RetrieveOptions) (*domain.ComparativeResult, bool, error)
	FindRelated(ctx context.Context, entity string, topK int) (map[string][]domain.SearchHit, error)
}

// AnswerService is the inbound contract for retrieval plus generation.
type AnswerService interface {
	Answer(ctx context.Context, question string, opts domain.RetrieveOptions) (*domain.AgentAnswer, error)
	AnswerStream(ctx context.Context, question string, opts domain.RetrieveOptions, onEvidence func(*domain.AgentAnswer), onToken func(string)) (*domain.AgentAnswer, error)
}
