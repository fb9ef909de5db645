// Package answer composes chat answers from retrieved context. The only
// implementation is extractive: it quotes the best passage instead of
// calling a language model, so the chat surface works offline.
package answer

import (
	"fmt"
	"strings"

	"github.com/docdex/docdex/internal/retriever"
)

// Composer turns a query and its retrieved context into an answer.
type Composer interface {
	Compose(query string, results []retriever.Result) string
}

// Extractive answers by quoting the top retrieved chunk and naming its
// source.
type Extractive struct {
	// MaxQuote caps the quoted passage in runes; 0 means no cap.
	MaxQuote int
}

// NewExtractive creates a composer with the default quote cap.
func NewExtractive() *Extractive {
	return &Extractive{MaxQuote: 500}
}

// Compose builds the answer text. Zero results produce a no-match
// answer, never an error.
func (e *Extractive) Compose(query string, results []retriever.Result) string {
	if len(results) == 0 {
		return "No matching passages were found in the indexed documentation."
	}

	top := results[0]
	quote := strings.TrimSpace(top.Text)
	if e.MaxQuote > 0 {
		quote = truncate(quote, e.MaxQuote)
	}

	var b strings.Builder
	if quote != "" {
		fmt.Fprintf(&b, "From %s (chunk %d, %s):\n\n%s", top.DocID, top.ChunkID, top.SourcePath, quote)
	} else {
		fmt.Fprintf(&b, "The best match is %s (chunk %d, %s).", top.DocID, top.ChunkID, top.SourcePath)
	}
	if len(results) > 1 {
		fmt.Fprintf(&b, "\n\n%d more passages matched; see the returned context.", len(results)-1)
	}
	return b.String()
}

// truncate cuts s to max runes, marking the cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
