package ui

import (
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// defaultWidth is used when stdout is not a terminal.
const defaultWidth = 100

// TermWidth reports the terminal width in columns.
func TermWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// Shorten collapses whitespace in s and truncates it to width runes,
// preferring a word boundary and marking the cut.
func Shorten(s string, width int) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(collapsed) <= width {
		return collapsed
	}

	const marker = "..."
	budget := width - len(marker)
	if budget < 1 {
		return string([]rune(collapsed)[:width])
	}

	out := ""
	count := 0
	for _, word := range strings.Fields(collapsed) {
		wordLen := utf8.RuneCountInString(word)
		sep := 0
		if out != "" {
			sep = 1
		}
		if count+sep+wordLen > budget {
			break
		}
		if sep == 1 {
			out += " "
		}
		out += word
		count += sep + wordLen
	}
	if out == "" {
		// The first word alone blows the budget; cut mid-word.
		out = string([]rune(collapsed)[:budget])
	}
	return out + marker
}
