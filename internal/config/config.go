package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIPort  string
	LogLevel string

	APIRateLimitRPS   float64
	APIRateLimitBurst int
	APIMaxConcurrent  int
	APIQueueWait      time.Duration

	PostgresDSN string

	MilvusURL   string
	MilvusToken string

	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingModel   string
	EmbeddingDim     int

	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64

	TopKPerCollection  int
	ScoreThreshold     float64
	MaxMergedHits      int
	MaxExpansionTerms  int
	HighRelevance      float64
	MediumRelevance    float64
	SearchTimeout      time.Duration
	SessionContextSize int
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		APIRateLimitRPS:   mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxConcurrent:  mustEnvInt("API_MAX_CONCURRENT", 64),
		APIQueueWait:      time.Duration(mustEnvInt("API_QUEUE_WAIT_MS", 200)) * time.Millisecond,

		// Empty DSN disables conversation sessions.
		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		MilvusURL:   mustEnv("MILVUS_URL", "http://localhost:19530"),
		MilvusToken: mustEnv("MILVUS_TOKEN", ""),

		EmbeddingBaseURL: mustEnv("EMBEDDING_BASE_URL", "http://localhost:8081/v1"),
		EmbeddingAPIKey:  mustEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:   mustEnv("EMBEDDING_MODEL", "BAAI/bge-small-en-v1.5"),
		EmbeddingDim:     mustEnvInt("EMBEDDING_DIM", 384),

		LLMBaseURL:     mustEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:      mustEnv("LLM_API_KEY", ""),
		LLMModel:       mustEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   mustEnvInt("LLM_MAX_TOKENS", 2048),
		LLMTemperature: mustEnvFloat("LLM_TEMPERATURE", 0.7),

		TopKPerCollection:  mustEnvInt("TOP_K_PER_COLLECTION", 5),
		ScoreThreshold:     mustEnvFloat("SCORE_THRESHOLD", 0.4),
		MaxMergedHits:      mustEnvInt("MAX_MERGED_HITS", 30),
		MaxExpansionTerms:  mustEnvInt("MAX_EXPANSION_TERMS", 5),
		HighRelevance:      mustEnvFloat("HIGH_RELEVANCE_THRESHOLD", 0.75),
		MediumRelevance:    mustEnvFloat("MEDIUM_RELEVANCE_THRESHOLD", 0.55),
		SearchTimeout:      time.Duration(mustEnvInt("SEARCH_TIMEOUT_SECONDS", 10)) * time.Second,
		SessionContextSize: mustEnvInt("SESSION_CONTEXT_TURNS", 3),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
