package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/metastore"
)

// ErrNotFound is wrapped when Load finds no persisted index.
var ErrNotFound = errors.New("store: no index found")

// Set bundles everything one build persists: the vector index, the
// metadata records bound to its rows, and the name of the encoder that
// produced the vectors (so a stale index can be reported instead of
// silently searched with the wrong encoder).
type Set struct {
	Index   *index.Flat
	Meta    *metastore.Store
	Encoder string
}

// Store persists a Set. Backends keep index and metadata together so the
// row bijection between them cannot drift: the sqlite backend replaces
// both inside one transaction, the file backend writes both files before
// renaming either and seals them with a checksummed manifest.
type Store interface {
	// Save persists the set, replacing any previous one.
	Save(ctx context.Context, set *Set) error

	// Load reads the persisted set back.
	Load(ctx context.Context) (*Set, error)

	// Exists reports whether a persisted index (complete or partial)
	// is already present at the backend's location.
	Exists() (bool, error)

	// Describe names the backend location for error messages and logs.
	Describe() string
}

// New creates a store from the config, resolving default locations under
// the config directory.
func New(cfg config.Store) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		dir, err := cfg.IndexDir()
		if err != nil {
			return nil, err
		}
		return NewFile(dir), nil
	case config.BackendSQLite:
		path, err := cfg.DBPath()
		if err != nil {
			return nil, err
		}
		return NewSQLite(path), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Backend)
	}
}

// checkCounts guards the save side of the row bijection: a set with
// mismatched index and metadata counts must never reach disk.
func checkCounts(set *Set) error {
	if set.Index.Len() != set.Meta.Len() {
		return fmt.Errorf("store: index has %d rows but metadata has %d records", set.Index.Len(), set.Meta.Len())
	}
	return nil
}
