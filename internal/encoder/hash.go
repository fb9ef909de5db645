package encoder

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/docdex/docdex/internal/config"
)

// Hash is the default encoder: a deterministic token-hashing stand-in for a
// learned embedding model. Each token lands in two buckets derived from the
// halves of one 64-bit FNV hash, with a hash-derived sign, so a single
// bucket collision cannot dominate a similarity. It is stateless and safe
// for concurrent use.
type Hash struct {
	dims int
}

// NewHash creates a hash encoder. dims falls back to the shared default
// dimension when not positive.
func NewHash(dims int) *Hash {
	if dims <= 0 {
		dims = config.DefaultDimensions
	}
	return &Hash{dims: dims}
}

// Embed generates an embedding for a single text. Text with no tokens
// (including the empty string) encodes to the all-zero vector.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()

		lo := uint32(sum)
		hi := uint32(sum >> 32)
		addProbe(vec, lo)
		addProbe(vec, hi)
	}
	l2normalize(vec)
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts, output index i
// corresponding to input index i.
func (h *Hash) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension size
func (h *Hash) Dimensions() int {
	return h.dims
}

// Name identifies the encoder; it is stored with the index so a stale
// index built by a different encoder can be reported.
func (h *Hash) Name() string {
	return "hash/fnv64-v1"
}

func addProbe(vec []float32, p uint32) {
	idx := int(p % uint32(len(vec)))
	if p&(1<<31) != 0 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}

// tokenize lowercases and splits on anything that is not a letter, digit,
// hyphen or underscore.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			current.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()

	return tokens
}
