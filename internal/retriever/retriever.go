package retriever

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/encoder"
	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/metastore"
	"github.com/docdex/docdex/internal/store"
)

// Chunk is one contiguous piece of a source document, ready for encoding.
// ChunkID is the 0-based sequence number within DocID.
type Chunk struct {
	DocID      string
	ChunkID    int
	SourcePath string
	Text       string
}

// Result is one search hit. Rank is the 1-based position in descending
// score order; Score is the raw inner product between query and chunk
// vectors, which for L2-normalized vectors equals their cosine similarity.
type Result struct {
	Rank  int     `json:"rank"`
	Score float32 `json:"score"`
	metastore.Record
}

// Retriever composes the encoder, the vector index and the metadata store
// behind one query surface. Build a fresh index with New + Build + Save;
// query an existing one with Open or OpenDefault + Search.
//
// Concurrent builds targeting the same store must be serialized by the
// caller; Search is non-mutating and safe for concurrent callers.
type Retriever struct {
	cfg   *config.Config
	enc   encoder.Encoder
	store store.Store
	debug bool

	mu    sync.RWMutex
	idx   *index.Flat
	meta  *metastore.Store
	ready bool
}

func compose(cfg *config.Config) (*Retriever, error) {
	enc, err := encoder.New(cfg.Encoder)
	if err != nil {
		return nil, err
	}
	st, err := store.New(cfg.Store)
	if err != nil {
		return nil, err
	}
	return &Retriever{cfg: cfg, enc: enc, store: st}, nil
}

// New creates a retriever for a fresh build: empty index, empty metadata.
// If the store already holds an index the caller must pass overwrite;
// replacing a built index is always an explicit choice, never implicit.
func New(cfg *config.Config, overwrite bool) (*Retriever, error) {
	r, err := compose(cfg)
	if err != nil {
		return nil, err
	}
	exists, err := r.store.Exists()
	if err != nil {
		return nil, err
	}
	if exists && !overwrite {
		return nil, fmt.Errorf("%w in the %s; rerun with overwrite to replace it", ErrIndexExists, r.store.Describe())
	}
	r.idx = index.New(r.enc.Dimensions())
	r.meta = metastore.New()
	return r, nil
}

// Open loads a previously saved index for searching.
func Open(ctx context.Context, cfg *config.Config) (*Retriever, error) {
	r, err := compose(cfg)
	if err != nil {
		return nil, err
	}
	set, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if set.Index.Len() != set.Meta.Len() {
		return nil, &ConsistencyError{IndexRows: set.Index.Len(), MetaRows: set.Meta.Len()}
	}
	if set.Index.Dim() != r.enc.Dimensions() {
		return nil, fmt.Errorf("%w: index has %d dimensions but encoder %s produces %d; rebuild the index",
			index.ErrDimension, set.Index.Dim(), r.enc.Name(), r.enc.Dimensions())
	}
	if set.Encoder != "" && set.Encoder != r.enc.Name() {
		return nil, fmt.Errorf("index was built with encoder %s but the configuration selects %s; rebuild the index",
			set.Encoder, r.enc.Name())
	}
	r.idx = set.Index
	r.meta = set.Meta
	r.ready = true
	return r, nil
}

// OpenDefault loads the index using the user's configuration file, falling
// back to the built-in defaults when none has been written yet.
func OpenDefault(ctx context.Context) (*Retriever, error) {
	cfg, err := config.LoadOrDefault()
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg)
}

// SetDebug enables debug logging to stderr.
func (r *Retriever) SetDebug(debug bool) {
	r.debug = debug
}

// Build encodes the chunk texts in batches and fills index and metadata in
// the same order, so row i's vector always describes record i. It may be
// called once per instance; re-indexing means creating a fresh instance.
// An empty chunk slice builds a valid empty corpus.
func (r *Retriever) Build(ctx context.Context, chunks []Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ready {
		return ErrAlreadyBuilt
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	batch := r.cfg.Encoder.BatchSize
	if batch <= 0 {
		batch = config.DefaultBatchSize
	}

	vecs := make([][]float32, 0, len(chunks))
	for start := 0; start < len(texts); start += batch {
		end := start + batch
		if end > len(texts) {
			end = len(texts)
		}
		if r.debug {
			fmt.Fprintf(os.Stderr, "[DEBUG] Retriever: encoding chunks %d..%d of %d\n", start, end-1, len(texts))
		}
		got, err := r.enc.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return fmt.Errorf("failed to encode chunks %d..%d: %w", start, end-1, err)
		}
		vecs = append(vecs, got...)
	}

	if err := r.idx.Build(vecs); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	for _, c := range chunks {
		r.meta.Append(metastore.Record{
			DocID:      c.DocID,
			ChunkID:    c.ChunkID,
			SourcePath: c.SourcePath,
			Text:       c.Text,
		})
	}
	r.ready = true
	return nil
}

// Save persists index and metadata through the store, which keeps the pair
// together: sqlite in one transaction, the file backend behind a
// checksummed manifest written last.
func (r *Retriever) Save(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.ready {
		return fmt.Errorf("%w; call Build first", ErrNotReady)
	}

	set := &store.Set{Index: r.idx, Meta: r.meta, Encoder: r.enc.Name()}
	if err := r.store.Save(ctx, set); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	if r.debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] Retriever: saved %d chunks to the %s\n", r.idx.Len(), r.store.Describe())
	}
	return nil
}

// Search encodes the query with the build-time encoder, ranks every
// indexed chunk by inner product and joins the winners against their
// metadata. Ranks start at 1. topK larger than the corpus returns
// everything; withText=false clears the text field of each result. An
// empty query is valid: it encodes to the zero vector, so every chunk
// scores 0 and results come back in row order.
func (r *Retriever) Search(ctx context.Context, query string, topK int, withText bool) ([]Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.ready {
		return nil, fmt.Errorf("%w; build or open an index first", ErrNotReady)
	}

	qvec, err := r.enc.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	hits, err := r.idx.Search(qvec, topK)
	if err != nil {
		return nil, err
	}
	if r.debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] Retriever: query %q matched %d of %d chunks\n", query, len(hits), r.idx.Len())
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		rec, err := r.meta.Get(h.Row)
		if err != nil {
			return nil, fmt.Errorf("row %d has no metadata record: %w", h.Row, err)
		}
		if !withText {
			rec.Text = ""
		}
		results[i] = Result{Rank: i + 1, Score: h.Score, Record: rec}
	}
	return results, nil
}

// Count returns the number of indexed chunks, 0 before build or load.
func (r *Retriever) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.idx == nil {
		return 0
	}
	return r.idx.Len()
}

// Dim returns the vector dimension shared by the encoder and the index.
func (r *Retriever) Dim() int {
	return r.enc.Dimensions()
}

// EncoderName identifies the configured encoder, e.g. "hash/fnv64-v1".
func (r *Retriever) EncoderName() string {
	return r.enc.Name()
}

// Describe names the store backing this retriever.
func (r *Retriever) Describe() string {
	return r.store.Describe()
}
