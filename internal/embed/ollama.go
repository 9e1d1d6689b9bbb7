package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default configuration values.
const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "all-minilm"
	DefaultTimeout    = 30 * time.Second
	DefaultDimensions = 384 // all-minilm output size, matches the corpus schema
)

// Config holds configuration for the Ollama embedding client.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model to use (default: all-minilm).
	Model string

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration

	// Dimensions is the expected vector size (model-dependent, default 384).
	Dimensions int
}

// Ollama generates embeddings through the Ollama HTTP API.
// One instance holds one shared http.Client and is safe for concurrent use.
type Ollama struct {
	client     *http.Client
	baseURL    string
	model      string
	dimensions int
}

var _ Embedder = (*Ollama)(nil)

// embedRequest is the Ollama /api/embeddings request format.
type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embedResponse is the Ollama /api/embeddings response format.
type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllama creates an Ollama embedding client.
func NewOllama(cfg Config) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}

	return &Ollama{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// Embed generates a vector embedding for the given text.
// A vector whose length differs from the configured dimension is a
// configuration error and is reported, never truncated.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := embedRequest{
		Model:  o.model,
		Prompt: text,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		o.baseURL+"/api/embeddings",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
		}
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(embedResp.Embedding) != o.dimensions {
		return nil, fmt.Errorf("model %s returned %d dimensions, expected %d",
			o.model, len(embedResp.Embedding), o.dimensions)
	}

	embedding := make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		embedding[i] = float32(v)
	}

	return embedding, nil
}

// EmbedBatch generates embeddings for multiple texts.
// Ollama has no native batch API, so texts are embedded sequentially.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := o.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

// Dimensions returns the embedding vector size.
func (o *Ollama) Dimensions() int {
	return o.dimensions
}
