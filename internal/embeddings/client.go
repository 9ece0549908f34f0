// Package embeddings wraps the OpenAI embeddings endpoint. It is the
// backing capability for semantic note search; when no API key is
// configured the capability is absent and callers receive a
// configuration error rather than a degraded substring search.
package embeddings

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/starford/ansuz/internal/apperr"
)

// DefaultModel is used when the config names no embedding model.
const DefaultModel = string(openai.EmbeddingModelTextEmbedding3Small)

// Client computes embedding vectors for batches of texts.
type Client struct {
	api   openai.Client
	model string
}

// NewClient builds a client. baseURL is optional and exists for tests
// and OpenAI-compatible endpoints.
func NewClient(apiKey, model, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embeddings: %w (set OPENAI_API_KEY)", apperr.ErrNoCredential)
	}
	if model == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Client{api: openai.NewClient(opts...), model: model}, nil
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, &apperr.TransportError{Endpoint: "embeddings", Cause: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	vectors := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("embeddings: vector index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Model reports the configured embedding model name.
func (c *Client) Model() string { return c.model }
