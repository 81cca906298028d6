package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/ajones1923/cart-intelligence-agent/internal/core/domain"
	"github.com/ajones1923/cart-intelligence-agent/internal/infrastructure/resilience"
)

func testExecutor(attempts int) *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1.0,
		BreakerEnabled:      false,
	})
}

func TestEmbedQuery(t *testing.T) {
	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, APIKey: "key"}, testExecutor(1))
	embedder := NewEmbedder(client, "BAAI/bge-small-en-v1.5", 384)

	vec, err := embedder.EmbedQuery(context.Background(), "some query")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("vector = %v", vec)
	}
	if gotReq["model"] != "BAAI/bge-small-en-v1.5" {
		t.Errorf("model = %v", gotReq["model"])
	}
}

func TestGenerateFromPromptSendsSystemAndUser(t *testing.T) {
	var gotReq goopenai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"the answer"}}]}`))
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, APIKey: "key"}, testExecutor(1))
	gen := NewGenerator(client, "gpt-4o-mini", 2048, 0.7)

	answer, err := gen.GenerateFromPrompt(context.Background(), "you are an agent", "the prompt")
	if err != nil {
		t.Fatalf("GenerateFromPrompt() error = %v", err)
	}
	if answer != "the answer" {
		t.Fatalf("answer = %q", answer)
	}
	if len(gotReq.Messages) != 2 {
		t.Fatalf("got %d messages", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != goopenai.ChatMessageRoleSystem || gotReq.Messages[0].Content != "you are an agent" {
		t.Errorf("system message = %+v", gotReq.Messages[0])
	}
	if gotReq.Messages[1].Role != goopenai.ChatMessageRoleUser {
		t.Errorf("user message = %+v", gotReq.Messages[1])
	}
	if gotReq.MaxTokens != 2048 {
		t.Errorf("max tokens = %d", gotReq.MaxTokens)
	}
}

func TestStreamFromPromptDeliversDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"one "}}]}`,
			`{"choices":[{"delta":{"content":"two"}}]}`,
		}
		for _, c := range chunks {
			_, _ = w.Write([]byte("data: " + c + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, APIKey: "key"}, testExecutor(1))
	gen := NewGenerator(client, "gpt-4o-mini", 512, 0.2)

	var streamed strings.Builder
	full, err := gen.StreamFromPrompt(context.Background(), "sys", "prompt", func(tok string) {
		streamed.WriteString(tok)
	})
	if err != nil {
		t.Fatalf("StreamFromPrompt() error = %v", err)
	}
	if full != "one two" {
		t.Fatalf("full = %q", full)
	}
	if streamed.String() != full {
		t.Fatalf("streamed %q, full %q", streamed.String(), full)
	}
}

func TestGenerateRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, APIKey: "key"}, testExecutor(2))
	gen := NewGenerator(client, "gpt-4o-mini", 64, 0)

	answer, err := gen.GenerateFromPrompt(context.Background(), "sys", "p")
	if err != nil {
		t.Fatalf("GenerateFromPrompt() error = %v", err)
	}
	if answer != "ok" {
		t.Fatalf("answer = %q", answer)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestClassifyAPIError(t *testing.T) {
	cases := []struct {
		name          string
		err           error
		retryable     bool
		recordFailure bool
	}{
		{"nil", nil, false, false},
		{"canceled", context.Canceled, false, false},
		{"rate limited", &goopenai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true, true},
		{"bad request", &goopenai.APIError{HTTPStatusCode: http.StatusBadRequest}, false, false},
		{"unknown", errors.New("boom"), false, true},
	}
	for _, tc := range cases {
		class := classifyAPIError(tc.err)
		if class.Retryable != tc.retryable || class.RecordFailure != tc.recordFailure {
			t.Errorf("%s: classification = %+v", tc.name, class)
		}
	}
}

func TestTemporaryWrapping(t *testing.T) {
	err := wrapTemporaryIfNeeded("generate answer", &goopenai.APIError{HTTPStatusCode: http.StatusBadGateway})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("retryable failure should be marked temporary: %v", err)
	}

	err = wrapTemporaryIfNeeded("generate answer", &goopenai.APIError{HTTPStatusCode: http.StatusUnauthorized})
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("auth failure must not be temporary: %v", err)
	}
}
