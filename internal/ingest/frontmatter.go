package ingest

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatter is the optional YAML header of a markdown document.
type frontmatter struct {
	ID string `yaml:"id"`
}

// splitFrontmatter strips a leading YAML frontmatter fence and returns
// the parsed header plus the remaining body. Documents without a fence
// come back whole.
func splitFrontmatter(text string) (frontmatter, string, error) {
	var fm frontmatter

	lines := strings.Split(text, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return fm, text, nil
	}

	endIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			endIdx = i
			break
		}
	}
	if endIdx == -1 {
		return fm, "", fmt.Errorf("unclosed frontmatter")
	}

	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:endIdx], "\n")), &fm); err != nil {
		return fm, "", fmt.Errorf("failed to parse YAML: %w", err)
	}
	return fm, strings.Join(lines[endIdx+1:], "\n"), nil
}
