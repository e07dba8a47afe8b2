// Package embedding provides the text-embedding backends the Semantic
// Validator (C6) uses to turn a function body into a vector for cosine
// comparison. Adapted from the teacher's internal/embedding package: the
// same Provider contract, the same Ollama-via-shared-HTTP-client and
// OpenAI-via-go-openai implementations, generalized to embed syntax-node
// text instead of chunked document text.
package embedding

import (
	"context"
	"fmt"
)

// Provider embeds text into fixed-dimension vectors. A nil Provider means
// embeddings are unavailable; callers fall back to structural-only
// validation (spec §4.6).
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
}

// Config is the subset of engine configuration an embedding provider needs.
// Mirrors internal/config.EmbeddingConfig's field names so callers can pass
// that struct directly.
type Config struct {
	Provider  string
	Model     string
	Dimension int
	BaseURL   string
	APIKey    string
	BatchSize int
}

// NewProvider constructs a Provider from cfg. An empty Provider field
// disables embeddings entirely (nil, nil), which is a valid configuration
// per spec §9 ("no hardcoded API token; embeddings are optional").
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "ollama":
		return NewOllamaProvider(cfg)
	case "openai":
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
