package encoder

import (
	"context"
	"fmt"
	"math"

	"github.com/docdex/docdex/internal/config"
)

// Encoder converts text into fixed-dimension, L2-normalized vectors.
// Implementations must be deterministic for identical input and must
// preserve input order in EmbedBatch.
type Encoder interface {
	// Embed generates an embedding vector for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the size of the embedding vectors
	Dimensions() int

	// Name returns the name/model of this encoder
	Name() string
}

// New creates an encoder based on the config. The hash provider is the
// default and needs no external service.
func New(cfg config.Encoder) (Encoder, error) {
	switch cfg.Provider {
	case config.ProviderHash, "":
		return NewHash(cfg.Dimensions), nil
	case config.ProviderOllama:
		return NewOllama(cfg)
	case config.ProviderOpenAI:
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown encoder provider: %q", cfg.Provider)
	}
}

// l2normalize scales v to unit Euclidean length in place. The zero vector
// is left untouched so empty text never produces NaN.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
