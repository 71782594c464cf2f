package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var ErrEmbedding = errors.New("embedding provider error")

// Embedder is the Gemini alternative to the default OpenAI embedder. The
// configured model must produce vectors matching the index dimensionality.
type Embedder struct {
	client *genai.Client
	model  string
}

func NewEmbedder(ctx context.Context, apiKey string) (*Embedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	return &Embedder{client: client, model: "gemini-embedding-001"}, nil
}

func (e *Embedder) Embed(ctx context.Context, content string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(content))

	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("%w: empty embedding response", ErrEmbedding)
	}
	return res.Embedding.Values, nil
}
