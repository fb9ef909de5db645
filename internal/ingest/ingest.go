// Package ingest walks a documents directory and turns every readable
// file into encoder-ready chunks.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/docdex/docdex/internal/chunker"
	"github.com/docdex/docdex/internal/convert"
	"github.com/docdex/docdex/internal/retriever"
)

// Ingestor loads documents and chunks them. Plain text and markdown are
// read directly; other formats go through a convert.Converter when the
// matching tool is installed and are skipped otherwise. Files and
// directories named with a leading "." or "_" are ignored.
type Ingestor struct {
	chunker *chunker.Chunker
	debug   bool

	// convFor routes a path to its converter; swapped in tests.
	convFor func(path string) convert.Converter
}

// New creates a new ingestor.
func New(c *chunker.Chunker) *Ingestor {
	return NewWithDebug(c, false)
}

// NewWithDebug creates a new ingestor with debug logging.
func NewWithDebug(c *chunker.Chunker, debug bool) *Ingestor {
	return &Ingestor{chunker: c, debug: debug, convFor: convert.For}
}

// LoadAll walks dir in lexical order and returns the chunks of every
// document it can read, plus one note per skipped file. A file that
// cannot be read or converted is skipped with its reason, not fatal; the
// caller decides how loudly to surface the notes. Document ids are file
// stems unless a markdown frontmatter id overrides them; chunk ids
// restart at 0 for each document.
func (g *Ingestor) LoadAll(ctx context.Context, dir string) ([]retriever.Chunk, []string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("data directory %s does not exist", dir)
	}

	var (
		chunks  []retriever.Chunk
		skipped []string
	)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			return nil
		}

		docChunks, reason := g.loadFile(ctx, path)
		if reason != "" {
			skipped = append(skipped, fmt.Sprintf("%s (%s)", path, reason))
			return nil
		}
		chunks = append(chunks, docChunks...)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	if g.debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] Ingest: %d chunks from %s, %d files skipped\n", len(chunks), dir, len(skipped))
	}
	return chunks, skipped, nil
}

// loadFile chunks one document. A non-empty reason means the file was
// skipped.
func (g *Ingestor) loadFile(ctx context.Context, path string) ([]retriever.Chunk, string) {
	ext := strings.ToLower(filepath.Ext(path))

	var text string
	switch ext {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Sprintf("read failed: %v", err)
		}
		text = string(data)
	default:
		conv := g.convFor(path)
		if conv == nil {
			return nil, "unsupported format"
		}
		if !conv.Available() {
			return nil, fmt.Sprintf("%s is not installed", conv.Name())
		}
		converted, err := conv.Convert(ctx, path)
		if err != nil {
			return nil, fmt.Sprintf("%s failed: %v", conv.Name(), err)
		}
		text = converted
	}

	docID := stem(path)
	if ext == ".md" {
		fm, body, err := splitFrontmatter(text)
		if err != nil {
			return nil, fmt.Sprintf("bad frontmatter: %v", err)
		}
		if fm.ID != "" {
			docID = fm.ID
		}
		text = body
	}

	pieces := g.chunker.Split(text)
	if g.debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] Ingest: %s: %d chunks (doc %s)\n", path, len(pieces), docID)
	}

	chunks := make([]retriever.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = retriever.Chunk{
			DocID:      docID,
			ChunkID:    i,
			SourcePath: path,
			Text:       piece,
		}
	}
	return chunks, ""
}

// stem returns the file name without directory or extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
