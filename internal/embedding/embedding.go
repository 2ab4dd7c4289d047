// Package embedding turns document and chunk text into vectors through an
// OpenAI-compatible embeddings endpoint.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config configures the OpenAI-compatible client.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
}

// OpenAI calls the embeddings API of OpenAI or any compatible server
// (LiteLLM, Ollama, vLLM).
type OpenAI struct {
	client    *openai.Client
	model     string
	dimension int
}

var _ Embedder = (*OpenAI)(nil)

// NewOpenAI creates an embedder. A local server usually needs no key, so an
// empty key is replaced with a dummy value.
func NewOpenAI(cfg Config) *OpenAI {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "dummy-key"
	}
	config := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(config),
		model:     model,
		dimension: cfg.Dimension,
	}
}

// Embed returns the embeddings of texts in input order.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: o.dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding: vector index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
