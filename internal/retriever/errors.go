package retriever

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady reports a Search or Save before an index was built or
	// loaded.
	ErrNotReady = errors.New("retriever: no index built or loaded")

	// ErrAlreadyBuilt reports a second Build on the same instance.
	// Rebuilding needs a fresh instance.
	ErrAlreadyBuilt = errors.New("retriever: index already built")

	// ErrIndexExists reports a build over an existing index without the
	// overwrite flag.
	ErrIndexExists = errors.New("retriever: an index already exists")

	// ErrConsistency is wrapped when index rows and metadata records
	// disagree at load time.
	ErrConsistency = errors.New("retriever: index and metadata disagree")
)

// ConsistencyError reports how far apart index and metadata are. A
// mismatch means the two were built from different chunk sets or one was
// saved without the other; searching such a pair would silently return
// wrong chunks, so loading fails instead.
type ConsistencyError struct {
	IndexRows int
	MetaRows  int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("retriever: index has %d rows but metadata has %d records; rebuild the index", e.IndexRows, e.MetaRows)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }
