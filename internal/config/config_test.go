package config

import (
	"path/filepath"
	"testing"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Encoder.Provider != ProviderHash {
		t.Errorf("default provider = %q, want %q", cfg.Encoder.Provider, ProviderHash)
	}
	if cfg.Encoder.Dimensions != DefaultDimensions {
		t.Errorf("default dimensions = %d, want %d", cfg.Encoder.Dimensions, DefaultDimensions)
	}
	if cfg.Chunking.Overlap >= cfg.Chunking.Window {
		t.Errorf("default overlap %d not smaller than window %d", cfg.Chunking.Overlap, cfg.Chunking.Window)
	}
	if cfg.Retrieval.TopK != DefaultTopK {
		t.Errorf("default top_k = %d, want %d", cfg.Retrieval.TopK, DefaultTopK)
	}
	if cfg.Store.Backend != BackendFile {
		t.Errorf("default backend = %q, want %q", cfg.Store.Backend, BackendFile)
	}
}

func TestNewDefaultEncoder(t *testing.T) {
	ollama := NewDefaultEncoder(ProviderOllama)
	if ollama.BaseURL == "" {
		t.Error("ollama defaults missing base URL")
	}
	if ollama.Model == "" {
		t.Error("ollama defaults missing model")
	}

	openai := NewDefaultEncoder(ProviderOpenAI)
	if !openai.UseEnvKey {
		t.Error("openai defaults should read the API key from the environment")
	}

	// Every provider shares the same dimension contract.
	for _, p := range []Provider{ProviderHash, ProviderOllama, ProviderOpenAI} {
		if got := NewDefaultEncoder(p).Dimensions; got != DefaultDimensions {
			t.Errorf("%s dimensions = %d, want %d", p, got, DefaultDimensions)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with no config file: %v", err)
	}
	if cfg != nil {
		t.Fatalf("Load with no config file = %+v, want nil", cfg)
	}

	want := NewDefault()
	want.Encoder = NewDefaultEncoder(ProviderOllama)
	want.Retrieval.TopK = 7
	want.Chunking.Policy = "paragraph"

	if err := Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	exists, err := Exists()
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("Exists = false after Save")
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("Load returned nil after Save")
	}
	if got.Encoder.Provider != ProviderOllama {
		t.Errorf("loaded provider = %q, want %q", got.Encoder.Provider, ProviderOllama)
	}
	if got.Retrieval.TopK != 7 {
		t.Errorf("loaded top_k = %d, want 7", got.Retrieval.TopK)
	}
	if got.Chunking.Policy != "paragraph" {
		t.Errorf("loaded policy = %q, want %q", got.Chunking.Policy, "paragraph")
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadOrDefault()
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadOrDefault returned nil config")
	}
	if cfg.Encoder.Provider != ProviderHash {
		t.Errorf("fallback provider = %q, want %q", cfg.Encoder.Provider, ProviderHash)
	}
}

func TestStorePathFallbacks(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	var s Store

	dir, err := s.IndexDir()
	if err != nil {
		t.Fatalf("IndexDir: %v", err)
	}
	if want := filepath.Join(home, ConfigDirName, IndexDirName); dir != want {
		t.Errorf("IndexDir = %q, want %q", dir, want)
	}

	dbPath, err := s.DBPath()
	if err != nil {
		t.Fatalf("DBPath: %v", err)
	}
	if want := filepath.Join(home, ConfigDirName, IndexDirName, "docdex.db"); dbPath != want {
		t.Errorf("DBPath = %q, want %q", dbPath, want)
	}

	s.Dir = "/tmp/custom"
	s.Path = "/tmp/custom.db"
	if dir, _ := s.IndexDir(); dir != "/tmp/custom" {
		t.Errorf("explicit IndexDir = %q, want /tmp/custom", dir)
	}
	if p, _ := s.DBPath(); p != "/tmp/custom.db" {
		t.Errorf("explicit DBPath = %q, want /tmp/custom.db", p)
	}
}
