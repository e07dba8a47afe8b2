package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/heefoo/codesurgeon/internal/httpclient"
)

// OllamaProvider embeds text via a local Ollama server's /api/embeddings
// endpoint, adapted verbatim in structure from the teacher's OllamaProvider.
type OllamaProvider struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaProvider constructs an OllamaProvider from cfg, defaulting to
// nomic-embed-text's 768-dimensional output per spec §4.
func NewOllamaProvider(cfg Config) (*OllamaProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = 768
	}

	return &OllamaProvider{
		baseURL:   baseURL,
		model:     cfg.Model,
		dimension: dimension,
		client:    httpclient.GetSharedClient(60 * time.Second),
	}, nil
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Dimension() int { return p.dimension }

// EmbedSingle embeds one piece of text.
func (p *OllamaProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embedding error: %s - %s", resp.Status, string(msg))
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("ollama decode error: %w", err)
	}

	return embedResp.Embedding, nil
}

// Embed embeds each of texts concurrently, since Ollama has no native batch
// API. Partial failures return whatever embeddings succeeded alongside the
// first error; total failure returns nil.
func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("cannot embed empty text list")
	}

	const maxConcurrency = 10

	embeddings := make([][]float32, len(texts))
	errs := make([]error, len(texts))

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, text := range texts {
		wg.Add(1)
		go func(idx int, txt string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			default:
			}

			emb, err := p.EmbedSingle(ctx, txt)
			if err != nil {
				errs[idx] = err
				return
			}
			embeddings[idx] = emb
		}(i, text)
	}

	wg.Wait()

	var firstErr error
	errCount := 0
	for i, err := range errs {
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to embed text %d: %w", i, err)
			}
			errCount++
		}
	}

	if errCount == len(texts) {
		return nil, firstErr
	}
	if errCount > 0 {
		return embeddings, firstErr
	}
	return embeddings, nil
}
