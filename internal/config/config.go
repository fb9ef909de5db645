package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	ConfigDirName  = ".docdex"
	ConfigFileName = "config.yaml"
	IndexDirName   = "index"

	// DefaultDimensions is the vector dimension shared by the encoder and
	// the index. Changing it invalidates any previously built index.
	DefaultDimensions = 384

	DefaultBatchSize = 16
	DefaultTopK      = 5
	DefaultWindow    = 800
	DefaultOverlap   = 100
)

// Provider selects the embedding backend.
type Provider string

const (
	ProviderHash   Provider = "hash"
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Backend selects how a built index is persisted.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

// Config represents the application configuration
type Config struct {
	Encoder   Encoder   `yaml:"encoder"`
	Chunking  Chunking  `yaml:"chunking"`
	Retrieval Retrieval `yaml:"retrieval"`
	Store     Store     `yaml:"store"`
	Server    Server    `yaml:"server"`
	Data      Data      `yaml:"data"`
}

// Encoder configures the embedding backend. Model, BaseURL, Device and
// BatchSize only apply to the external providers; the hash provider ignores
// them and needs no service to be running.
type Encoder struct {
	Provider   Provider `yaml:"provider"`
	Model      string   `yaml:"model,omitempty"`
	BaseURL    string   `yaml:"base_url,omitempty"`
	APIKey     string   `yaml:"api_key,omitempty"`
	UseEnvKey  bool     `yaml:"use_env_key,omitempty"`
	Device     string   `yaml:"device,omitempty"`
	BatchSize  int      `yaml:"batch_size"`
	Dimensions int      `yaml:"dimensions"`
}

// Chunking configures how documents are split before encoding.
// Overlap must be smaller than Window; the chunker enforces this.
type Chunking struct {
	Policy  string `yaml:"policy"`
	Window  int    `yaml:"window"`
	Overlap int    `yaml:"overlap"`
}

// Retrieval holds query-time defaults.
type Retrieval struct {
	TopK int `yaml:"top_k"`
}

// Store configures index persistence. Dir is used by the file backend,
// Path by the sqlite backend; both fall back to locations under the
// config directory when empty.
type Store struct {
	Backend Backend `yaml:"backend"`
	Dir     string  `yaml:"dir,omitempty"`
	Path    string  `yaml:"path,omitempty"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `yaml:"addr"`
}

// Data points at the directory of raw documents to ingest.
type Data struct {
	Dir string `yaml:"dir"`
}

// NewDefault returns a configuration that works with no external services:
// hash encoder, window chunking, file store.
func NewDefault() *Config {
	return &Config{
		Encoder:   NewDefaultEncoder(ProviderHash),
		Chunking:  Chunking{Policy: "window", Window: DefaultWindow, Overlap: DefaultOverlap},
		Retrieval: Retrieval{TopK: DefaultTopK},
		Store:     Store{Backend: BackendFile},
		Server:    Server{Addr: ":8080"},
		Data:      Data{Dir: "data"},
	}
}

// NewDefaultEncoder returns the default encoder settings for a provider.
func NewDefaultEncoder(p Provider) Encoder {
	switch p {
	case ProviderOllama:
		return Encoder{
			Provider:   ProviderOllama,
			Model:      "all-minilm",
			BaseURL:    "http://localhost:11434",
			Device:     "cpu",
			BatchSize:  DefaultBatchSize,
			Dimensions: DefaultDimensions,
		}
	case ProviderOpenAI:
		return Encoder{
			Provider:   ProviderOpenAI,
			Model:      "text-embedding-3-small",
			UseEnvKey:  true,
			BatchSize:  DefaultBatchSize,
			Dimensions: DefaultDimensions,
		}
	default:
		return Encoder{
			Provider:   ProviderHash,
			BatchSize:  DefaultBatchSize,
			Dimensions: DefaultDimensions,
		}
	}
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ConfigDirName), nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// IndexDir returns the directory the file backend persists into,
// falling back to <config dir>/index when unset.
func (s Store) IndexDir() (string, error) {
	if s.Dir != "" {
		return s.Dir, nil
	}
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, IndexDirName), nil
}

// DBPath returns the sqlite database path, falling back to
// <config dir>/index/docdex.db when unset.
func (s Store) DBPath() (string, error) {
	if s.Path != "" {
		return s.Path, nil
	}
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, IndexDirName, "docdex.db"), nil
}

// Load reads the configuration from disk
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	// If config doesn't exist, return nil (not an error)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault reads the configuration from disk, returning the defaults
// when no config file has been written yet.
func LoadOrDefault() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return NewDefault(), nil
	}
	return cfg, nil
}

// Save writes the configuration to disk
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists checks if a configuration file exists
func Exists() (bool, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(configPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}
