package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

var ErrEmbedding = errors.New("embedding provider error")

// Dimensions is the output width of text-embedding-3-small; the index table
// is created with the same vector width.
const Dimensions = 1536

type Embedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewEmbedder(apiKey string) *Embedder {
	return &Embedder{client: openai.NewClient(apiKey), model: openai.SmallEmbedding3}
}

// NewEmbedderWithBaseURL targets an OpenAI-compatible endpoint. Tests point
// this at an httptest server.
func NewEmbedderWithBaseURL(apiKey, baseURL string) *Embedder {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Embedder{client: openai.NewClientWithConfig(cfg), model: openai.SmallEmbedding3}
}

func (e *Embedder) Embed(ctx context.Context, content string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(content))

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{content},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrEmbedding)
	}
	return resp.Data[0].Embedding, nil
}
