package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// Magic identifies the on-disk index format.
const Magic = "DDXIDX01"

const headerSize = len(Magic) + 8 // magic + uint32 dim + uint32 count

var (
	// ErrDimension is wrapped by every vector-length disagreement.
	ErrDimension = errors.New("index: dimension mismatch")
	// ErrInvalidK reports a non-positive k passed to Search.
	ErrInvalidK = errors.New("index: k must be positive")
	// ErrFormat reports data that is not an index file.
	ErrFormat = errors.New("index: unrecognized format")
	// ErrTruncated reports an index file shorter than its header claims.
	ErrTruncated = errors.New("index: truncated data")
	// ErrBuilt reports a second Build on the same instance.
	ErrBuilt = errors.New("index: already built")
)

// DimensionError carries the expected and actual vector lengths. Row is the
// offending input row, or -1 for a query vector.
type DimensionError struct {
	Want int
	Got  int
	Row  int
}

func (e *DimensionError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("index: query has %d dimensions, index expects %d", e.Got, e.Want)
	}
	return fmt.Sprintf("index: vector %d has %d dimensions, index expects %d", e.Row, e.Got, e.Want)
}

func (e *DimensionError) Unwrap() error { return ErrDimension }

// Hit is one search result: a row id and its raw inner-product score.
type Hit struct {
	Row   int
	Score float32
}

// Flat is an exact brute-force inner-product index. Row ids are assigned
// 0..n-1 in Build order. After Build the index is immutable, so Search is
// safe for concurrent callers without locking.
type Flat struct {
	dim   int
	vecs  [][]float32
	built bool
}

// New creates an empty index expecting vectors of the given dimension.
func New(dim int) *Flat {
	return &Flat{dim: dim}
}

// Dim returns the configured vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Len returns the number of indexed vectors.
func (f *Flat) Len() int { return len(f.vecs) }

// Vector returns the stored vector for a row. The slice is shared, not
// copied; callers must not modify it.
func (f *Flat) Vector(row int) ([]float32, error) {
	if row < 0 || row >= len(f.vecs) {
		return nil, fmt.Errorf("index: row %d out of range (0..%d)", row, len(f.vecs)-1)
	}
	return f.vecs[row], nil
}

// Build indexes the vectors in order, assigning row ids 0..n-1. It may be
// called once per instance; an empty input builds a valid empty index.
func (f *Flat) Build(vectors [][]float32) error {
	if f.built {
		return ErrBuilt
	}
	for i, v := range vectors {
		if len(v) != f.dim {
			return &DimensionError{Want: f.dim, Got: len(v), Row: i}
		}
	}
	f.vecs = make([][]float32, len(vectors))
	copy(f.vecs, vectors)
	f.built = true
	return nil
}

// Search returns the k rows with the highest inner product against the
// query, descending; equal scores order by lower row id. k larger than the
// index returns everything.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidK, k)
	}
	if len(query) != f.dim {
		return nil, &DimensionError{Want: f.dim, Got: len(query), Row: -1}
	}

	hits := make([]Hit, len(f.vecs))
	for i, v := range f.vecs {
		// float64 accumulation keeps scores deterministic and stable
		// for the tie-break below.
		var sum float64
		for j := range v {
			sum += float64(v[j]) * float64(query[j])
		}
		hits[i] = Hit{Row: i, Score: float32(sum)}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Row < hits[b].Row
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// MarshalBinary encodes the index: magic, uint32 dim, uint32 count, then
// count*dim little-endian float32 values.
func (f *Flat) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(headerSize + len(f.vecs)*f.dim*4)
	buf.WriteString(Magic)
	if err := binary.Write(buf, binary.LittleEndian, uint32(f.dim)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(f.vecs))); err != nil {
		return nil, err
	}
	for _, v := range f.vecs {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces the index contents with the encoded data.
// Round-trips are exact: reloaded vectors are bit-identical.
func (f *Flat) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("%w: %d bytes, want at least %d", ErrTruncated, len(data), headerSize)
	}
	if string(data[:len(Magic)]) != Magic {
		return fmt.Errorf("%w: bad magic %q", ErrFormat, data[:len(Magic)])
	}

	dim := binary.LittleEndian.Uint32(data[len(Magic):])
	count := binary.LittleEndian.Uint32(data[len(Magic)+4:])

	need := uint64(headerSize) + uint64(dim)*uint64(count)*4
	if uint64(len(data)) < need {
		return fmt.Errorf("%w: %d bytes, header promises %d", ErrTruncated, len(data), need)
	}

	vecs := make([][]float32, count)
	off := headerSize
	for i := range vecs {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vecs[i] = vec
	}

	f.dim = int(dim)
	f.vecs = vecs
	f.built = true
	return nil
}

// Save writes the index to path via a temporary file and rename, so a
// crash never leaves a half-written file that looks valid.
func (f *Flat) Save(path string) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write index file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace index file %s: %w", path, err)
	}
	return nil
}

// Load reads an index previously written by Save.
func Load(path string) (*Flat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index file %s: %w", path, err)
	}
	f := &Flat{}
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("index file %s: %w", path, err)
	}
	return f, nil
}
