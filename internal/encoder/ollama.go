package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/docdex/docdex/internal/config"
)

// Ollama implements Encoder using Ollama's local embeddings API.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	dims    int
}

// NewOllama creates an Ollama encoder and verifies the service is
// reachable before returning.
func NewOllama(cfg config.Encoder) (*Ollama, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "all-minilm" // Default: 384 dimensions, fast
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = config.DefaultDimensions
	}

	// Test connection
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(baseURL + "/api/tags")
	if err != nil {
		return nil, fmt.Errorf("ollama not running at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	return &Ollama{
		baseURL: baseURL,
		model:   model,
		client:  client,
		dims:    dims,
	}, nil
}

// Embed generates an embedding for a single text
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, o.dims), nil
	}

	reqBody := map[string]interface{}{
		"model":  o.model,
		"prompt": text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		o.baseURL+"/api/embeddings",
		bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	if len(result.Embedding) != o.dims {
		return nil, fmt.Errorf("model %q returned %d dimensions, want %d; pick a %d-dimension model or rebuild the index",
			o.model, len(result.Embedding), o.dims, o.dims)
	}

	l2normalize(result.Embedding)
	return result.Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))

	// Ollama doesn't have native batch API, so we call individually
	for i, text := range texts {
		emb, err := o.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return embeddings, nil
}

// Dimensions returns the embedding dimension size
func (o *Ollama) Dimensions() int {
	return o.dims
}

// Name returns the model name
func (o *Ollama) Name() string {
	return fmt.Sprintf("ollama/%s", o.model)
}
