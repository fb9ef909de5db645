package metastore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrOutOfRange is wrapped by Get for rows past the end of the store.
var ErrOutOfRange = errors.New("metastore: row out of range")

// Record is the persisted copy of one chunk. RowID is written for
// diagnostic readability only; a record's line position is authoritative
// and Load reassigns RowID from it.
type Record struct {
	RowID      int    `json:"row_id"`
	DocID      string `json:"doc_id"`
	ChunkID    int    `json:"chunk_id"`
	SourcePath string `json:"source_path"`
	Text       string `json:"text,omitempty"`
}

// Store is an append-only, order-preserving record list. Row ids are
// positions: record i describes index row i.
type Store struct {
	records []Record
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Append adds one record and returns its assigned row id.
func (s *Store) Append(r Record) int {
	r.RowID = len(s.records)
	s.records = append(s.records, r)
	return r.RowID
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Get returns the record at a row position in O(1).
func (s *Store) Get(row int) (Record, error) {
	if row < 0 || row >= len(s.records) {
		return Record{}, fmt.Errorf("%w: row %d, store holds %d records", ErrOutOfRange, row, len(s.records))
	}
	return s.records[row], nil
}

// All returns the backing record slice in row order. The slice is shared,
// not copied; callers must not modify it.
func (s *Store) All() []Record {
	return s.records
}

// Encode writes the records to w, one JSON object per line, in row order.
func (s *Store) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, r := range s.records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode metadata record %d: %w", r.RowID, err)
		}
	}
	return bw.Flush()
}

// Decode reads records from r in order, rebuilding the positional row-id
// mapping. The store is read-only after decode by convention.
func Decode(r io.Reader) (*Store, error) {
	s := New()
	dec := json.NewDecoder(bufio.NewReader(r))
	for {
		var rec Record
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("metadata record %d: %w", len(s.records), err)
		}
		// Position wins over whatever row_id the file claims.
		rec.RowID = len(s.records)
		s.records = append(s.records, rec)
	}
	return s, nil
}

// Save writes the records to path via a temporary file and rename.
func (s *Store) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create metadata file %s: %w", tmp, err)
	}

	if err := s.Encode(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write metadata file %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close metadata file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace metadata file %s: %w", path, err)
	}
	return nil
}

// Load reads records previously written by Save or Encode.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file %s: %w", path, err)
	}
	defer f.Close()

	s, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("metadata file %s: %w", path, err)
	}
	return s, nil
}
