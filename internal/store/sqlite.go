package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/metastore"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	row_id INTEGER PRIMARY KEY,
	doc_id TEXT NOT NULL,
	chunk_id INTEGER NOT NULL,
	source_path TEXT NOT NULL,
	text TEXT NOT NULL,
	embedding BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);
`

// SQLite persists the set in a single database file. Save replaces the
// previous contents inside one transaction, so a crash mid-save leaves
// the old index intact rather than a torn one.
type SQLite struct {
	path string
}

// NewSQLite creates a sqlite store backed by the database file at path.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

// Describe names the backend location.
func (s *SQLite) Describe() string {
	return fmt.Sprintf("sqlite store at %s", s.path)
}

// Exists reports whether the database file is present.
func (s *SQLite) Exists() (bool, error) {
	if _, err := os.Stat(s.path); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to check %s: %w", s.path, err)
	}
	return false, nil
}

// Save writes index and metadata rows into the database, replacing any
// previous index in the same transaction.
func (s *SQLite) Save(ctx context.Context, set *Set) error {
	if err := checkCounts(set); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM metadata`); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (row_id, doc_id, chunk_id, source_path, text, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for row := 0; row < set.Index.Len(); row++ {
		vec, err := set.Index.Vector(row)
		if err != nil {
			return err
		}
		rec, err := set.Meta.Get(row)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row, rec.DocID, rec.ChunkID, rec.SourcePath, rec.Text, encodeVector(vec)); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", row, err)
		}
	}

	meta := map[string]string{
		"version":    "1",
		"encoder":    set.Encoder,
		"dimensions": strconv.Itoa(set.Index.Dim()),
		"count":      strconv.Itoa(set.Index.Len()),
		"indexed_at": time.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("failed to store metadata %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Load reads the persisted set back, verifying that the stored rows are
// contiguous and agree with the recorded count and dimensions.
func (s *SQLite) Load(ctx context.Context) (*Set, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w at %s; run an index build first", ErrNotFound, s.path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", s.path, err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	dimsStr, err := getMetaValue(ctx, db, "dimensions")
	if err != nil {
		return nil, fmt.Errorf("failed to read dimensions metadata: %w", err)
	}
	dims, err := strconv.Atoi(dimsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid dimensions: %w", err)
	}
	countStr, err := getMetaValue(ctx, db, "count")
	if err != nil {
		return nil, fmt.Errorf("failed to read count metadata: %w", err)
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return nil, fmt.Errorf("invalid count: %w", err)
	}
	encoder, err := getMetaValue(ctx, db, "encoder")
	if err != nil {
		return nil, fmt.Errorf("failed to read encoder metadata: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT row_id, doc_id, chunk_id, source_path, text, embedding
		FROM chunks ORDER BY row_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	vecs := make([][]float32, 0, count)
	meta := metastore.New()
	for rows.Next() {
		var (
			rowID int
			rec   metastore.Record
			blob  []byte
		)
		if err := rows.Scan(&rowID, &rec.DocID, &rec.ChunkID, &rec.SourcePath, &rec.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if rowID != len(vecs) {
			return nil, fmt.Errorf("chunk rows are not contiguous: got row_id %d, want %d", rowID, len(vecs))
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowID, err)
		}
		if len(vec) != dims {
			return nil, fmt.Errorf("row %d: embedding has %d dimensions, database says %d", rowID, len(vec), dims)
		}
		vecs = append(vecs, vec)
		meta.Append(rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	if len(vecs) != count {
		return nil, fmt.Errorf("database says %d chunks but has %d", count, len(vecs))
	}

	idx := index.New(dims)
	if err := idx.Build(vecs); err != nil {
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}
	return &Set{Index: idx, Meta: meta, Encoder: encoder}, nil
}

func getMetaValue(ctx context.Context, db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("metadata key not found: %s", key)
	}
	return value, err
}

// encodeVector encodes a float32 slice to little-endian binary.
func encodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

// decodeVector decodes binary data back to a float32 slice.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d (not a multiple of 4)", len(b))
	}
	v := make([]float32, len(b)/4)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &v); err != nil {
		return nil, err
	}
	return v, nil
}
