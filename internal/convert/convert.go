// Package convert extracts plain text from non-plaintext documents by
// delegating to external command-line tools (pdftotext, pandoc) instead
// of bundling format parsers. A missing tool means the format is skipped,
// not an error.
package convert

import (
	"context"
	"path/filepath"
	"strings"
)

// Converter extracts the plain text of one document format.
type Converter interface {
	// Name identifies the backing tool in logs and error messages.
	Name() string

	// Available reports whether the backing tool is installed.
	Available() bool

	// Convert extracts the text of the file at path.
	Convert(ctx context.Context, path string) (string, error)
}

// For returns the converter responsible for a file, or nil when the
// format has none (plain text needs no converter and is not routed here).
func For(path string) Converter {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return &PDFToText{}
	case ".docx", ".html", ".htm", ".epub", ".rtf", ".odt":
		return &Pandoc{}
	default:
		return nil
	}
}
