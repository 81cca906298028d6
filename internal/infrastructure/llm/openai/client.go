package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/ajones1923/cart-intelligence-agent/internal/infrastructure/resilience"
)

// Client wraps an OpenAI-compatible API endpoint. Both the embedding
// sidecar (a TEI/vLLM server exposing the OpenAI surface) and the chat
// backend go through this type; each gets its own instance with its
// own base URL and model.
type Client struct {
	api      *goopenai.Client
	executor *resilience.Executor
}

type Options struct {
	BaseURL string
	APIKey  string
}

func New(opts Options, executor *resilience.Executor) *Client {
	cfg := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &Client{
		api:      goopenai.NewClientWithConfig(cfg),
		executor: executor,
	}
}

// Embedder produces query vectors through the embeddings endpoint.
type Embedder struct {
	client     *Client
	model      string
	dimensions int
}

func NewEmbedder(client *Client, model string, dimensions int) *Embedder {
	return &Embedder{client: client, model: model, dimensions: dimensions}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := e.client.executor.Execute(ctx, "embed_query", func(ctx context.Context) error {
		resp, err := e.client.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
			Input:      []string{text},
			Model:      goopenai.EmbeddingModel(e.model),
			Dimensions: e.dimensions,
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("empty embedding result")
		}
		vector = resp.Data[0].Embedding
		return nil
	}, classifyAPIError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed query", err)
	}
	return vector, nil
}

// Generator produces answers through the chat completions endpoint.
type Generator struct {
	client      *Client
	model       string
	maxTokens   int
	temperature float32
}

func NewGenerator(client *Client, model string, maxTokens int, temperature float64) *Generator {
	return &Generator{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
	}
}

func (g *Generator) GenerateFromPrompt(ctx context.Context, system, prompt string) (string, error) {
	var answer string
	err := g.client.executor.Execute(ctx, "chat_completion", func(ctx context.Context) error {
		resp, err := g.client.api.CreateChatCompletion(ctx, g.chatRequest(system, prompt, false))
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty completion result")
		}
		answer = resp.Choices[0].Message.Content
		return nil
	}, classifyAPIError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("generate answer", err)
	}
	return answer, nil
}

// StreamFromPrompt delivers token deltas through onToken and returns
// the assembled answer. Streams are not retried once tokens have been
// delivered, so the resilience executor only guards the first byte.
func (g *Generator) StreamFromPrompt(ctx context.Context, system, prompt string, onToken func(string)) (string, error) {
	var stream *goopenai.ChatCompletionStream
	err := g.client.executor.Execute(ctx, "chat_completion_stream", func(ctx context.Context) error {
		s, err := g.client.api.CreateChatCompletionStream(ctx, g.chatRequest(system, prompt, true))
		if err != nil {
			return err
		}
		stream = s
		return nil
	}, classifyAPIError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("open answer stream", err)
	}
	defer stream.Close()

	var full []byte
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", wrapTemporaryIfNeeded("read answer stream", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full = append(full, delta...)
		if onToken != nil {
			onToken(delta)
		}
	}
	return string(full), nil
}

func (g *Generator) chatRequest(system, prompt string, stream bool) goopenai.ChatCompletionRequest {
	return goopenai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Stream:      stream,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	}
}
