package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/metastore"
)

var (
	_ Store = (*File)(nil)
	_ Store = (*SQLite)(nil)
)

func buildTestSet(t *testing.T) *Set {
	t.Helper()

	idx := index.New(4)
	vecs := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.5, 0.5, 0, 0},
		{0, 0, 1, 0},
	}
	if err := idx.Build(vecs); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	meta := metastore.New()
	meta.Append(metastore.Record{DocID: "ssh-hardening", ChunkID: 0, SourcePath: "docs/ssh.md", Text: "disable root login"})
	meta.Append(metastore.Record{DocID: "pump-maintenance", ChunkID: 0, SourcePath: "docs/pump.md", Text: "grease the bearings monthly"})
	meta.Append(metastore.Record{DocID: "pump-maintenance", ChunkID: 1, SourcePath: "docs/pump.md", Text: ""})
	meta.Append(metastore.Record{DocID: "unicode-notes", ChunkID: 0, SourcePath: "docs/unicode.md", Text: "naïve café 日本語"})

	return &Set{Index: idx, Meta: meta, Encoder: "hash/fnv64-v1"}
}

// assertSetsEqual checks that a loaded set matches the saved one: same
// vectors bit for bit, same records, same encoder name.
func assertSetsEqual(t *testing.T, got, want *Set) {
	t.Helper()

	if got.Index.Len() != want.Index.Len() {
		t.Fatalf("Index.Len() = %d, want %d", got.Index.Len(), want.Index.Len())
	}
	if got.Index.Dim() != want.Index.Dim() {
		t.Fatalf("Index.Dim() = %d, want %d", got.Index.Dim(), want.Index.Dim())
	}
	for row := 0; row < want.Index.Len(); row++ {
		wv, err := want.Index.Vector(row)
		if err != nil {
			t.Fatalf("want.Vector(%d) error = %v", row, err)
		}
		gv, err := got.Index.Vector(row)
		if err != nil {
			t.Fatalf("got.Vector(%d) error = %v", row, err)
		}
		if !reflect.DeepEqual(gv, wv) {
			t.Errorf("vector %d = %v, want %v", row, gv, wv)
		}
	}

	if got.Meta.Len() != want.Meta.Len() {
		t.Fatalf("Meta.Len() = %d, want %d", got.Meta.Len(), want.Meta.Len())
	}
	for row := 0; row < want.Meta.Len(); row++ {
		wr, _ := want.Meta.Get(row)
		gr, _ := got.Meta.Get(row)
		if gr != wr {
			t.Errorf("record %d = %+v, want %+v", row, gr, wr)
		}
	}

	if got.Encoder != want.Encoder {
		t.Errorf("Encoder = %q, want %q", got.Encoder, want.Encoder)
	}
}

func TestNewFactory(t *testing.T) {
	st, err := New(config.Store{Backend: config.BackendFile, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New(file) error = %v", err)
	}
	if _, ok := st.(*File); !ok {
		t.Errorf("New(file) = %T, want *File", st)
	}

	st, err = New(config.Store{Backend: "", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New(default) error = %v", err)
	}
	if _, ok := st.(*File); !ok {
		t.Errorf("New(default) = %T, want *File", st)
	}

	st, err = New(config.Store{Backend: config.BackendSQLite, Path: filepath.Join(t.TempDir(), "docdex.db")})
	if err != nil {
		t.Fatalf("New(sqlite) error = %v", err)
	}
	if _, ok := st.(*SQLite); !ok {
		t.Errorf("New(sqlite) = %T, want *SQLite", st)
	}

	if _, err := New(config.Store{Backend: "redis"}); err == nil {
		t.Error("New(redis) expected error, got nil")
	}
}

func TestFileSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := NewFile(dir)

	set := buildTestSet(t)
	if err := st.Save(ctx, set); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	for _, name := range []string{indexFileName, metaFileName, manifestFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s after save: %v", name, err)
		}
	}
	tmps, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(tmps) != 0 {
		t.Errorf("temporary files left behind: %v", tmps)
	}

	data, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if m.Count != 4 || m.Dimensions != 4 || m.Encoder != "hash/fnv64-v1" {
		t.Errorf("manifest = %+v, want count 4 dim 4 encoder hash/fnv64-v1", m)
	}

	loaded, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertSetsEqual(t, loaded, set)

	// Reloaded index must search exactly like the original.
	query := []float32{0.9, 0.1, 0, 0}
	wantHits, err := set.Index.Search(query, 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	gotHits, err := loaded.Index.Search(query, 3)
	if err != nil {
		t.Fatalf("loaded Search() error = %v", err)
	}
	if !reflect.DeepEqual(gotHits, wantHits) {
		t.Errorf("loaded hits = %v, want %v", gotHits, wantHits)
	}
}

func TestFileOverwrite(t *testing.T) {
	ctx := context.Background()
	st := NewFile(t.TempDir())

	if err := st.Save(ctx, buildTestSet(t)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	idx := index.New(4)
	if err := idx.Build([][]float32{{0, 0, 0, 1}}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	meta := metastore.New()
	meta.Append(metastore.Record{DocID: "only", ChunkID: 0, SourcePath: "docs/only.md", Text: "replacement"})
	small := &Set{Index: idx, Meta: meta, Encoder: "hash/fnv64-v1"}

	if err := st.Save(ctx, small); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	loaded, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertSetsEqual(t, loaded, small)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	st := NewFile(dir)

	exists, err := st.Exists()
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true before save")
	}

	if err := st.Save(context.Background(), buildTestSet(t)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	exists, err = st.Exists()
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists() = false after save")
	}

	// A lone data file, as left by an interrupted save, still counts.
	dir2 := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir2, metaFileName), []byte("{}\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	exists, err = NewFile(dir2).Exists()
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists() = false with partial artifacts present")
	}
}

func TestFileLoadMissing(t *testing.T) {
	_, err := NewFile(t.TempDir()).Load(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestFileLoadTampered(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := NewFile(dir)
	if err := st.Save(ctx, buildTestSet(t)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	metaPath := filepath.Join(dir, metaFileName)
	orig, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if err := os.WriteFile(metaPath, append(orig, []byte("{\"doc_id\":\"extra\"}\n")...), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err = st.Load(ctx)
	if err == nil {
		t.Fatal("Load() expected checksum error, got nil")
	}
	if !strings.Contains(err.Error(), "checksum") {
		t.Errorf("Load() error = %v, want checksum mismatch", err)
	}

	// Restore metadata, corrupt the index file instead.
	if err := os.WriteFile(metaPath, orig, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	idxPath := filepath.Join(dir, indexFileName)
	idxData, err := os.ReadFile(idxPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	idxData[len(idxData)-1] ^= 0xFF
	if err := os.WriteFile(idxPath, idxData, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err = st.Load(ctx)
	if err == nil || !strings.Contains(err.Error(), "checksum") {
		t.Errorf("Load() error = %v, want checksum mismatch", err)
	}
}

func TestFileLoadWithoutManifest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := NewFile(dir)
	if err := st.Save(ctx, buildTestSet(t)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := os.Remove(filepath.Join(dir, manifestFileName)); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	_, err := st.Load(ctx)
	if err == nil {
		t.Fatal("Load() expected error, got nil")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v; data files present, want incomplete-index error", err)
	}
	if !strings.Contains(err.Error(), "manifest") {
		t.Errorf("Load() error = %v, want mention of missing manifest", err)
	}
}

func TestSaveCountMismatch(t *testing.T) {
	set := buildTestSet(t)
	set.Meta.Append(metastore.Record{DocID: "orphan", ChunkID: 0, SourcePath: "docs/orphan.md"})

	err := NewFile(t.TempDir()).Save(context.Background(), set)
	if err == nil {
		t.Fatal("Save() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "rows but metadata") {
		t.Errorf("Save() error = %v, want count mismatch", err)
	}

	err = NewSQLite(filepath.Join(t.TempDir(), "docdex.db")).Save(context.Background(), set)
	if err == nil || !strings.Contains(err.Error(), "rows but metadata") {
		t.Errorf("sqlite Save() error = %v, want count mismatch", err)
	}
}

func TestSQLiteSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docdex.db")
	st := NewSQLite(path)

	exists, err := st.Exists()
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true before save")
	}

	set := buildTestSet(t)
	if err := st.Save(ctx, set); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	exists, err = st.Exists()
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists() = false after save")
	}

	loaded, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertSetsEqual(t, loaded, set)

	// Saving again replaces the previous index entirely.
	idx := index.New(4)
	if err := idx.Build([][]float32{{0, 0, 0, 1}}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	meta := metastore.New()
	meta.Append(metastore.Record{DocID: "only", ChunkID: 0, SourcePath: "docs/only.md", Text: "replacement"})
	small := &Set{Index: idx, Meta: meta, Encoder: "hash/fnv64-v1"}

	if err := st.Save(ctx, small); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	loaded, err = st.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	assertSetsEqual(t, loaded, small)
}

func TestSQLiteLoadMissing(t *testing.T) {
	st := NewSQLite(filepath.Join(t.TempDir(), "missing.db"))
	_, err := st.Load(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestEmptyCorpusRoundTrip(t *testing.T) {
	ctx := context.Background()

	backends := []struct {
		name  string
		store Store
	}{
		{"file", NewFile(t.TempDir())},
		{"sqlite", NewSQLite(filepath.Join(t.TempDir(), "docdex.db"))},
	}

	for _, tc := range backends {
		t.Run(tc.name, func(t *testing.T) {
			idx := index.New(384)
			if err := idx.Build(nil); err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			set := &Set{Index: idx, Meta: metastore.New(), Encoder: "hash/fnv64-v1"}

			if err := tc.store.Save(ctx, set); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			loaded, err := tc.store.Load(ctx)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loaded.Index.Len() != 0 {
				t.Errorf("Index.Len() = %d, want 0", loaded.Index.Len())
			}
			if loaded.Index.Dim() != 384 {
				t.Errorf("Index.Dim() = %d, want 384", loaded.Index.Dim())
			}
			if loaded.Meta.Len() != 0 {
				t.Errorf("Meta.Len() = %d, want 0", loaded.Meta.Len())
			}

			query := make([]float32, 384)
			hits, err := loaded.Index.Search(query, 5)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(hits) != 0 {
				t.Errorf("Search() returned %d hits, want 0", len(hits))
			}
		})
	}
}

func TestDecodeVector(t *testing.T) {
	vec := []float32{1.5, -0.25, 0}
	got, err := decodeVector(encodeVector(vec))
	if err != nil {
		t.Fatalf("decodeVector() error = %v", err)
	}
	if !reflect.DeepEqual(got, vec) {
		t.Errorf("decodeVector() = %v, want %v", got, vec)
	}

	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("decodeVector(3 bytes) expected error, got nil")
	}
}
