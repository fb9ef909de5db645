package encoder

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docdex/docdex/internal/config"
)

// maxConcurrentBatches bounds parallel OpenAI requests during a large
// build. Results land at their input index, so order is preserved.
const maxConcurrentBatches = 4

// OpenAI implements Encoder using OpenAI's embeddings API, requesting the
// configured dimension so vectors match the index contract.
type OpenAI struct {
	client *openai.Client
	model  string
	dims   int
	batch  int
}

// NewOpenAI creates an OpenAI encoder. The API key comes from the config,
// or from OPENAI_API_KEY when use_env_key is set or no key is stored.
func NewOpenAI(cfg config.Encoder) (*OpenAI, error) {
	key := cfg.APIKey
	if cfg.UseEnvKey || key == "" {
		if env := os.Getenv("OPENAI_API_KEY"); env != "" {
			key = env
		}
	}
	if key == "" {
		return nil, fmt.Errorf("OpenAI API key not set (config api_key or OPENAI_API_KEY)")
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = config.DefaultDimensions
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = config.DefaultBatchSize
	}

	client := openai.NewClient(key)
	if cfg.BaseURL != "" {
		clientCfg := openai.DefaultConfig(key)
		clientCfg.BaseURL = cfg.BaseURL
		client = openai.NewClientWithConfig(clientCfg)
	}

	return &OpenAI{
		client: client,
		model:  model,
		dims:   dims,
		batch:  batch,
	}, nil
}

// Embed generates an embedding for a single text
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, o.dims), nil
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(o.model),
		Input:      []string{text},
		Dimensions: o.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	emb := resp.Data[0].Embedding
	if len(emb) != o.dims {
		return nil, fmt.Errorf("model %q returned %d dimensions, want %d; pick a model that supports the dimensions parameter",
			o.model, len(emb), o.dims)
	}

	l2normalize(emb)
	return emb, nil
}

// EmbedBatch generates embeddings for multiple texts. Texts are sent in
// config-sized batches with bounded parallelism; output index i always
// corresponds to input index i.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))

	// Empty texts never reach the API; they encode to the zero vector.
	var pending []item
	for i, text := range texts {
		if text == "" {
			embeddings[i] = make([]float32, o.dims)
			continue
		}
		pending = append(pending, item{idx: i, text: text})
	}

	var groups [][]item
	for start := 0; start < len(pending); start += o.batch {
		end := start + o.batch
		if end > len(pending) {
			end = len(pending)
		}
		groups = append(groups, pending[start:end])
	}

	sem := make(chan struct{}, maxConcurrentBatches)
	errChan := make(chan error, len(groups))

	for _, group := range groups {
		sem <- struct{}{} // Acquire semaphore
		go func(group []item) {
			defer func() { <-sem }() // Release semaphore
			errChan <- o.embedGroup(ctx, group, embeddings)
		}(group)
	}

	var firstErr error
	for range groups {
		if err := <-errChan; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	return embeddings, nil
}

// embedGroup requests one batch and writes each result at its caller-side
// index. Goroutines touch disjoint slice elements, so no lock is needed.
func (o *OpenAI) embedGroup(ctx context.Context, group []item, embeddings [][]float32) error {
	inputs := make([]string, len(group))
	for i, it := range group {
		inputs[i] = it.text
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(o.model),
		Input:      inputs,
		Dimensions: o.dims,
	})
	if err != nil {
		return fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Data) != len(group) {
		return fmt.Errorf("OpenAI returned %d embeddings for %d inputs", len(resp.Data), len(group))
	}

	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(group) {
			return fmt.Errorf("OpenAI returned out-of-range index %d", d.Index)
		}
		emb := d.Embedding
		if len(emb) != o.dims {
			return fmt.Errorf("model %q returned %d dimensions, want %d", o.model, len(emb), o.dims)
		}
		l2normalize(emb)
		embeddings[group[d.Index].idx] = emb
	}
	return nil
}

// item pairs a text with its position in the caller's batch.
type item struct {
	idx  int
	text string
}

// Dimensions returns the embedding dimension size
func (o *OpenAI) Dimensions() int {
	return o.dims
}

// Name returns the model name
func (o *OpenAI) Name() string {
	return fmt.Sprintf("openai/%s", o.model)
}
