package convert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Pandoc extracts text from the richer formats pandoc can read: docx,
// html, epub, rtf, odt.
type Pandoc struct{}

// Name returns the tool name.
func (p *Pandoc) Name() string { return "pandoc" }

// Available reports whether pandoc is on PATH.
func (p *Pandoc) Available() bool {
	_, err := exec.LookPath("pandoc")
	return err == nil
}

// Convert runs pandoc with plain-text output.
func (p *Pandoc) Convert(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "pandoc", "--to=plain", path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to run pandoc on %s: %w\nStderr: %s", path, err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}
