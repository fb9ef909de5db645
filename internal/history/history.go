package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docdex/docdex/internal/config"
)

const (
	HistoryFileName = "history.json"

	// maxEntries bounds the file; the oldest entries fall off.
	maxEntries = 100
)

// Entry represents a single search history entry
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	TopK      int       `json:"top_k"`
	Results   int       `json:"results"`
	TopDocID  string    `json:"top_doc_id,omitempty"`
}

// History manages search history, newest entry first
type History struct {
	Entries []Entry `json:"entries"`
}

// GetHistoryPath returns the path to the history file
func GetHistoryPath() (string, error) {
	configDir, err := config.GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, HistoryFileName), nil
}

// Load reads the history from disk
func Load() (*History, error) {
	historyPath, err := GetHistoryPath()
	if err != nil {
		return nil, err
	}

	// If history doesn't exist, return empty history
	if _, err := os.Stat(historyPath); os.IsNotExist(err) {
		return &History{Entries: []Entry{}}, nil
	}

	data, err := os.ReadFile(historyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var hist History
	if err := json.Unmarshal(data, &hist); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}

	return &hist, nil
}

// Save writes the history to disk
func (h *History) Save() error {
	historyPath, err := GetHistoryPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(historyPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.WriteFile(historyPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	return nil
}

// AddEntry prepends a new entry and trims the history to its cap
func (h *History) AddEntry(entry Entry) {
	h.Entries = append([]Entry{entry}, h.Entries...)
	if len(h.Entries) > maxEntries {
		h.Entries = h.Entries[:maxEntries]
	}
}

// Recent returns the n newest entries; n < 1 returns all of them
func (h *History) Recent(n int) []Entry {
	if n < 1 || n > len(h.Entries) {
		return h.Entries
	}
	return h.Entries[:n]
}

// NewEntry creates a new history entry
func NewEntry(query string, topK, results int, topDocID string) Entry {
	return Entry{
		Timestamp: time.Now(),
		Query:     query,
		TopK:      topK,
		Results:   results,
		TopDocID:  topDocID,
	}
}
