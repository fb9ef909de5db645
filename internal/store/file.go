package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/metastore"
)

const (
	indexFileName    = "vectors.idx"
	metaFileName     = "chunks.jsonl"
	manifestFileName = "manifest.json"

	manifestVersion = 1
)

// manifest is the completion marker for a file-backend save. It is renamed
// into place last, and its checksums cover both data files, so any partial
// save is detected at load instead of being silently searched.
type manifest struct {
	Version      int    `json:"index_version"`
	CreatedAt    string `json:"created_at"`
	Encoder      string `json:"encoder,omitempty"`
	Dimensions   int    `json:"dimensions"`
	Count        int    `json:"count"`
	IndexFile    string `json:"index_file"`
	IndexSHA     string `json:"index_sha256"`
	MetadataFile string `json:"metadata_file"`
	MetadataSHA  string `json:"metadata_sha256"`
}

// File persists the index as three siblings in one directory: the binary
// vector file, the JSONL metadata file, and the manifest.
type File struct {
	dir string
}

// NewFile creates a file store rooted at dir.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

// Describe names the backend location.
func (f *File) Describe() string {
	return fmt.Sprintf("file store at %s", f.dir)
}

func (f *File) indexPath() string    { return filepath.Join(f.dir, indexFileName) }
func (f *File) metaPath() string     { return filepath.Join(f.dir, metaFileName) }
func (f *File) manifestPath() string { return filepath.Join(f.dir, manifestFileName) }

// Exists reports whether any index artifact is present, so an overwrite
// guard also fires on the wreckage of an interrupted save.
func (f *File) Exists() (bool, error) {
	for _, path := range []string{f.manifestPath(), f.indexPath(), f.metaPath()} {
		if _, err := os.Stat(path); err == nil {
			return true, nil
		} else if !os.IsNotExist(err) {
			return false, fmt.Errorf("failed to check %s: %w", path, err)
		}
	}
	return false, nil
}

// Save writes index and metadata to temporary files first and renames them
// only after both writes succeed, then seals the pair with the manifest.
// The renames themselves cannot be jointly atomic; a crash between them is
// caught at load by the manifest checksums.
func (f *File) Save(_ context.Context, set *Set) error {
	if err := checkCounts(set); err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory %s: %w", f.dir, err)
	}

	idxData, err := set.Index.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	var metaBuf bytes.Buffer
	if err := set.Meta.Encode(&metaBuf); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	metaData := metaBuf.Bytes()

	m := manifest{
		Version:      manifestVersion,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		Encoder:      set.Encoder,
		Dimensions:   set.Index.Dim(),
		Count:        set.Index.Len(),
		IndexFile:    indexFileName,
		IndexSHA:     sha256Hex(idxData),
		MetadataFile: metaFileName,
		MetadataSHA:  sha256Hex(metaData),
	}
	manifestData, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	idxTmp := f.indexPath() + ".tmp"
	metaTmp := f.metaPath() + ".tmp"
	manifestTmp := f.manifestPath() + ".tmp"
	cleanup := func() {
		os.Remove(idxTmp)
		os.Remove(metaTmp)
		os.Remove(manifestTmp)
	}

	if err := os.WriteFile(idxTmp, idxData, 0644); err != nil {
		cleanup()
		return fmt.Errorf("failed to write index file %s: %w", idxTmp, err)
	}
	if err := os.WriteFile(metaTmp, metaData, 0644); err != nil {
		cleanup()
		return fmt.Errorf("failed to write metadata file %s: %w", metaTmp, err)
	}
	if err := os.WriteFile(manifestTmp, manifestData, 0644); err != nil {
		cleanup()
		return fmt.Errorf("failed to write manifest %s: %w", manifestTmp, err)
	}

	// All payloads are on disk; now swap the trio into place, manifest
	// last so it only ever describes complete data.
	if err := os.Rename(idxTmp, f.indexPath()); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace index file: %w", err)
	}
	if err := os.Rename(metaTmp, f.metaPath()); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace metadata file: %w", err)
	}
	if err := os.Rename(manifestTmp, f.manifestPath()); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

// Load reads the persisted set, verifying the manifest checksums before
// trusting either file.
func (f *File) Load(_ context.Context) (*Set, error) {
	manifestData, err := os.ReadFile(f.manifestPath())
	if os.IsNotExist(err) {
		if present, _ := f.Exists(); present {
			return nil, fmt.Errorf("index at %s has no manifest (interrupted save?); rebuild the index", f.dir)
		}
		return nil, fmt.Errorf("%w at %s; run an index build first", ErrNotFound, f.dir)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", f.manifestPath(), err)
	}

	var m manifest
	if err := json.Unmarshal(manifestData, &m); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", f.manifestPath(), err)
	}

	idxData, err := os.ReadFile(f.indexPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read index file %s: %w", f.indexPath(), err)
	}
	metaData, err := os.ReadFile(f.metaPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file %s: %w", f.metaPath(), err)
	}

	if got := sha256Hex(idxData); got != m.IndexSHA {
		return nil, fmt.Errorf("index file %s does not match its manifest checksum (interrupted save?); rebuild the index", f.indexPath())
	}
	if got := sha256Hex(metaData); got != m.MetadataSHA {
		return nil, fmt.Errorf("metadata file %s does not match its manifest checksum (interrupted save?); rebuild the index", f.metaPath())
	}

	idx := &index.Flat{}
	if err := idx.UnmarshalBinary(idxData); err != nil {
		return nil, fmt.Errorf("index file %s: %w", f.indexPath(), err)
	}
	meta, err := metastore.Decode(bytes.NewReader(metaData))
	if err != nil {
		return nil, fmt.Errorf("metadata file %s: %w", f.metaPath(), err)
	}

	return &Set{Index: idx, Meta: meta, Encoder: m.Encoder}, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
