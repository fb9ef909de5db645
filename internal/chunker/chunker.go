package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrConfig is wrapped by every configuration validation failure.
var ErrConfig = errors.New("chunker: invalid configuration")

// Policy selects the chunking strategy.
type Policy string

const (
	// PolicyWindow slides a fixed-size character window over the document,
	// stepping by window minus overlap.
	PolicyWindow Policy = "window"
	// PolicyParagraph splits on blank lines and greedily packs consecutive
	// paragraphs up to the window size, carrying the trailing overlap of
	// the previous chunk into the next one.
	PolicyParagraph Policy = "paragraph"
)

// ParsePolicy converts a config/flag string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyWindow, PolicyParagraph:
		return Policy(s), nil
	case "":
		return PolicyWindow, nil
	default:
		return "", fmt.Errorf("%w: unknown policy %q", ErrConfig, s)
	}
}

// Config holds the chunking parameters. Window and Overlap count characters
// (runes), matching how documents are sliced regardless of encoding.
type Config struct {
	Policy  Policy
	Window  int
	Overlap int
}

// Chunker splits document text into overlapping chunks under one policy.
// A Chunker is stateless and safe to share; each Scan call returns an
// independent Scanner.
type Chunker struct {
	policy  Policy
	window  int
	overlap int
}

// New validates the configuration and returns a Chunker. Overlap must be
// smaller than Window, otherwise the scan could stop making progress.
func New(cfg Config) (*Chunker, error) {
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyWindow
	}
	if policy != PolicyWindow && policy != PolicyParagraph {
		return nil, fmt.Errorf("%w: unknown policy %q", ErrConfig, cfg.Policy)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %d", ErrConfig, cfg.Window)
	}
	if cfg.Overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", ErrConfig, cfg.Overlap)
	}
	if cfg.Overlap >= cfg.Window {
		return nil, fmt.Errorf("%w: overlap (%d) must be smaller than window (%d)", ErrConfig, cfg.Overlap, cfg.Window)
	}
	return &Chunker{policy: policy, window: cfg.Window, overlap: cfg.Overlap}, nil
}

// Window returns the configured chunk size in runes.
func (c *Chunker) Window() int { return c.window }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Policy returns the configured policy.
func (c *Chunker) Policy() Policy { return c.policy }

// Split chunks a whole document eagerly. An empty document yields no
// chunks; a document shorter than the window yields exactly one.
func (c *Chunker) Split(text string) []string {
	var chunks []string
	s := c.Scan(text)
	for s.Next() {
		chunks = append(chunks, s.Text())
	}
	return chunks
}

// Scan returns a lazy scanner over the document's chunks. Scanners are
// independent; creating a second one restarts from the beginning.
func (c *Chunker) Scan(text string) *Scanner {
	s := &Scanner{c: c}
	switch c.policy {
	case PolicyParagraph:
		s.paras = splitParagraphs(text)
	default:
		s.runes = []rune(text)
	}
	return s
}

// Scanner yields successive chunks of one document. Use it like
// bufio.Scanner: for s.Next() { use s.Text() }.
type Scanner struct {
	c    *Chunker
	text string
	done bool

	// window policy
	runes []rune
	start int

	// paragraph policy
	paras     []string
	pi        int
	cur       string
	carryOnly bool
}

// Text returns the chunk produced by the last successful Next.
func (s *Scanner) Text() string { return s.text }

// Next advances to the next chunk, returning false when the document is
// exhausted.
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}
	if s.c.policy == PolicyParagraph {
		return s.nextParagraph()
	}
	return s.nextWindow()
}

func (s *Scanner) nextWindow() bool {
	if len(s.runes) == 0 {
		s.done = true
		return false
	}
	end := s.start + s.c.window
	if end >= len(s.runes) {
		end = len(s.runes)
		s.done = true
	}
	s.text = string(s.runes[s.start:end])
	if !s.done {
		s.start = end - s.c.overlap
	}
	return true
}

func (s *Scanner) nextParagraph() bool {
	for s.pi < len(s.paras) {
		p := s.paras[s.pi]
		if s.cur != "" && !s.carryOnly && joinedLen(s.cur, p) > s.c.window {
			out := s.cur
			s.cur = tail(out, s.c.overlap)
			s.carryOnly = true
			s.text = out
			return true
		}
		if s.cur == "" {
			s.cur = p
		} else {
			s.cur += "\n\n" + p
		}
		s.carryOnly = false
		s.pi++
	}
	if s.cur != "" && !s.carryOnly {
		s.text = s.cur
		s.cur = ""
		s.done = true
		return true
	}
	s.done = true
	return false
}

// splitParagraphs breaks a document on blank-line boundaries, dropping
// empty segments.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

func joinedLen(cur, next string) int {
	return utf8.RuneCountInString(cur) + 2 + utf8.RuneCountInString(next)
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
