package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
	"golang.org/x/time/rate"

	"github.com/docchat/docchat/internal/models"
)

// EmbedderConfig represents the configuration for the embedding client.
type EmbedderConfig struct {
	Model     string
	BaseURL   string // Ollama server URL
	Dimension int
	RateLimit float64 // max embedding calls per second, 0 = unlimited
}

// Embedder produces fixed-dimension vectors via an Ollama embedding
// model. Calls are rate limited to avoid overwhelming the provider.
type Embedder struct {
	config  EmbedderConfig
	llm     *ollama.LLM
	limiter *rate.Limiter
}

// NewEmbedderWithConfig creates an Embedder, applying defaults for any
// unset config fields.
func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Dimension == 0 {
		config.Dimension = 768 // nomic-embed-text output size
	}

	emb, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	return &Embedder{
		config:  config,
		llm:     emb,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}

	embeddings, err := e.llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: provider returned no vectors", models.ErrEmbedding)
	}

	vec := embeddings[0]
	if len(vec) != e.config.Dimension {
		return nil, fmt.Errorf("%w: got %d dimensions, expected %d", models.ErrEmbedding, len(vec), e.config.Dimension)
	}
	return vec, nil
}

// Dimension reports the configured vector size.
func (e *Embedder) Dimension() int {
	return e.config.Dimension
}
