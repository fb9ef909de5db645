package convert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// PDFToText extracts PDF text with the poppler pdftotext tool.
type PDFToText struct{}

// Name returns the tool name.
func (p *PDFToText) Name() string { return "pdftotext" }

// Available reports whether pdftotext is on PATH.
func (p *PDFToText) Available() bool {
	_, err := exec.LookPath("pdftotext")
	return err == nil
}

// Convert runs pdftotext with stdout as the target.
func (p *PDFToText) Convert(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to run pdftotext on %s: %w\nStderr: %s", path, err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}
