package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	httpadapter "github.com/ajones1923/cart-intelligence-agent/internal/adapters/http"
	"github.com/ajones1923/cart-intelligence-agent/internal/config"
	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
	"github.com/ajones1923/cart-intelligence-agent/internal/core/ports"
	"github.com/ajones1923/cart-intelligence-agent/internal/core/usecase"
	"github.com/ajones1923/cart-intelligence-agent/internal/expansion"
	"github.com/ajones1923/cart-intelligence-agent/internal/infrastructure/llm/openai"
	"github.com/ajones1923/cart-intelligence-agent/internal/infrastructure/repository/postgres"
	"github.com/ajones1923/cart-intelligence-agent/internal/infrastructure/resilience"
	"github.com/ajones1923/cart-intelligence-agent/internal/infrastructure/vector/milvus"
	"github.com/ajones1923/cart-intelligence-agent/internal/knowledge"
	"github.com/ajones1923/cart-intelligence-agent/internal/observability/metrics"
)

// App wires the retrieval engine: vector store, embedding and chat
// backends, knowledge graph, query expansion and the HTTP surface.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Handler http.Handler

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	registry, err := domain.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("build collection registry: %w", err)
	}
	graph, err := knowledge.NewGraph()
	if err != nil {
		return nil, fmt.Errorf("build knowledge graph: %w", err)
	}
	expander, err := expansion.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("build expansion engine: %w", err)
	}

	store := milvus.New(cfg.MilvusURL, cfg.MilvusToken)
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	embedClient := openai.New(openai.Options{
		BaseURL: cfg.EmbeddingBaseURL,
		APIKey:  cfg.EmbeddingAPIKey,
	}, executor)
	embedder := openai.NewEmbedder(embedClient, cfg.EmbeddingModel, cfg.EmbeddingDim)

	chatClient := openai.New(openai.Options{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
	}, executor)
	generator := openai.NewGenerator(chatClient, cfg.LLMModel, cfg.LLMMaxTokens, cfg.LLMTemperature)

	serverMetrics := metrics.NewHTTPServerMetrics("api")

	retrieveUC := usecase.NewRetrieveUseCase(embedder, store, registry, expander, graph, usecase.Settings{
		TopKPerCollection: cfg.TopKPerCollection,
		ScoreThreshold:    cfg.ScoreThreshold,
		MaxMergedHits:     cfg.MaxMergedHits,
		MaxExpansionTerms: cfg.MaxExpansionTerms,
		HighRelevance:     cfg.HighRelevance,
		MediumRelevance:   cfg.MediumRelevance,
		SearchTimeout:     cfg.SearchTimeout,
	}, logger)
	retrieveUC.OnCollectionError(func(collection string) {
		serverMetrics.RecordCollectionError("api", collection)
	})

	var sessions ports.SessionStore
	closeFn := func() {}
	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewSessionRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure session schema: %w", err)
		}
		sessions = repo
		closeFn = func() { _ = db.Close() }
	} else {
		logger.Info("no postgres dsn configured, conversation sessions disabled")
	}

	answerUC := usecase.NewAnswerUseCase(retrieveUC, generator, sessions, logger)
	answerUC.SetContextTurns(cfg.SessionContextSize)

	router := httpadapter.NewRouter(retrieveUC, answerUC, store, registry, graph, expander,
		serverMetrics, httpadapter.Options{
			Service:        "api",
			RateLimitRPS:   cfg.APIRateLimitRPS,
			RateLimitBurst: cfg.APIRateLimitBurst,
			MaxConcurrent:  cfg.APIMaxConcurrent,
			QueueWait:      cfg.APIQueueWait,
		})

	return &App{
		Config:  cfg,
		Logger:  logger,
		Handler: router.Handler(),
		closeFn: closeFn,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
