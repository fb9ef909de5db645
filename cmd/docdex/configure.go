package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/docdex/docdex/internal/chunker"
	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/encoder"
	"github.com/docdex/docdex/internal/store"
	"github.com/docdex/docdex/internal/ui"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ConfigStatus represents the current state of the configuration
type ConfigStatus struct {
	HasConfig  bool
	Provider   string
	Backend    string
	Policy     string
	DataDir    string
	IndexReady bool
	ConfigPath string
}

// analyzeCurrentConfig examines the current configuration state
func analyzeCurrentConfig() (*ConfigStatus, *config.Config, error) {
	status := &ConfigStatus{}

	configPath, _ := config.GetConfigPath()
	status.ConfigPath = configPath

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg == nil {
		// No config exists yet
		status.HasConfig = false
		return status, nil, nil
	}

	status.HasConfig = true
	status.Provider = string(cfg.Encoder.Provider)
	status.Backend = string(cfg.Store.Backend)
	status.Policy = cfg.Chunking.Policy
	status.DataDir = cfg.Data.Dir

	// Probe the store without opening the index; opening would need the
	// encoder, which may want credentials we don't have here.
	if st, err := store.New(cfg.Store); err == nil {
		if exists, err := st.Exists(); err == nil {
			status.IndexReady = exists
		}
	}

	return status, cfg, nil
}

// displayConfigStatus shows a summary of current configuration
func displayConfigStatus(status *ConfigStatus) {
	fmt.Println()
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	fmt.Print("  Encoder: ")
	green.Println(status.Provider)

	fmt.Print("  Store: ")
	green.Println(status.Backend)

	fmt.Print("  Index: ")
	if status.IndexReady {
		green.Println("built ✓")
	} else {
		gray.Println("not built yet")
	}

	fmt.Println()
}

// runInitialSetup performs first-time setup
func runInitialSetup() error {
	ui.ShowInfo("No configuration found. Let's set up docdex.\n")

	cfg := config.NewDefault()

	provider, err := ui.PromptProvider()
	if err != nil {
		return err
	}

	switch provider {
	case "ollama":
		if err := setupOllama(cfg); err != nil {
			return err
		}
	case "openai":
		if err := setupOpenAI(cfg); err != nil {
			return err
		}
	default:
		setupHash(cfg)
	}

	// Save configuration
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	configPath, _ := config.GetConfigPath()
	ui.ShowSuccess(fmt.Sprintf("Configuration saved to %s", configPath))
	ui.ShowInfo(fmt.Sprintf("\nNext: put documents in ./%s and run: docdex index", cfg.Data.Dir))

	return nil
}

func runConfigure(cmd *cobra.Command, args []string) error {
	ui.ShowSection("Docdex Configuration")

	// Analyze current configuration
	status, cfg, err := analyzeCurrentConfig()
	if err != nil {
		return fmt.Errorf("failed to analyze configuration: %w", err)
	}

	// If no configuration exists, run initial setup
	if !status.HasConfig {
		return runInitialSetup()
	}

	// Configuration exists - show menu
	for {
		// Display current status
		displayConfigStatus(status)

		options := []string{
			"Encoder Settings",
			"Chunking Settings",
			"Store Backend",
			"View Current Configuration",
			"Exit",
		}

		selected, err := ui.ShowMenu("What would you like to configure?", options)
		if err != nil {
			return err
		}

		switch selected {
		case 0: // Encoder
			if err := configureEncoderMenu(cfg); err != nil {
				ui.ShowError(fmt.Sprintf("Encoder configuration failed: %v", err))
			}
		case 1: // Chunking
			if err := configureChunkingMenu(cfg); err != nil {
				ui.ShowError(fmt.Sprintf("Chunking configuration failed: %v", err))
			}
		case 2: // Store
			if err := configureStoreMenu(cfg); err != nil {
				ui.ShowError(fmt.Sprintf("Store configuration failed: %v", err))
			}
		case 3: // View Configuration
			viewCurrentConfiguration(status, cfg)
		case 4: // Exit
			ui.ShowInfo("Configuration menu closed")
			return nil
		}

		// Re-analyze after changes
		status, cfg, err = analyzeCurrentConfig()
		if err != nil {
			return fmt.Errorf("failed to reload configuration: %w", err)
		}
	}
}

// configureEncoderMenu changes the embedding provider
func configureEncoderMenu(cfg *config.Config) error {
	ui.ShowSection("Encoder Setup")

	ui.ShowInfo(fmt.Sprintf("\nCurrent provider: %s\n", cfg.Encoder.Provider))

	provider, err := ui.PromptProvider()
	if err != nil {
		return err
	}

	// Don't change if same provider
	if provider == string(cfg.Encoder.Provider) {
		ui.ShowInfo("Provider unchanged")
		return nil
	}

	switch provider {
	case "ollama":
		if err := setupOllama(cfg); err != nil {
			return err
		}
	case "openai":
		if err := setupOpenAI(cfg); err != nil {
			return err
		}
	case "hash":
		setupHash(cfg)
	default:
		return fmt.Errorf("unknown provider: %s", provider)
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	ui.ShowSuccess(fmt.Sprintf("Provider changed to: %s", provider))
	ui.ShowInfo("Note: run 'docdex index --overwrite' to rebuild the index with the new encoder")

	return nil
}

// configureChunkingMenu changes the chunking policy and sizes
func configureChunkingMenu(cfg *config.Config) error {
	ui.ShowSection("Chunking Settings")

	ui.ShowInfo(fmt.Sprintf("\nCurrent: policy=%s window=%d overlap=%d\n",
		cfg.Chunking.Policy, cfg.Chunking.Window, cfg.Chunking.Overlap))

	options := []string{
		"Change policy",
		"Change window size",
		"Change overlap",
		"Back to main menu",
	}

	selected, err := ui.ShowMenu("Actions:", options)
	if err != nil {
		return err
	}

	updated := *cfg
	switch selected {
	case 0: // Policy
		policies := []string{"window", "paragraph"}
		idx, err := ui.ShowMenu("Chunking policy:", policies)
		if err != nil {
			return err
		}
		updated.Chunking.Policy = policies[idx]
	case 1: // Window
		value, err := promptInt("Window size in characters:")
		if err != nil {
			return err
		}
		updated.Chunking.Window = value
	case 2: // Overlap
		value, err := promptInt("Overlap in characters:")
		if err != nil {
			return err
		}
		updated.Chunking.Overlap = value
	case 3: // Back
		return nil
	}

	// Reject settings the chunker would refuse at index time.
	if _, err := chunker.New(chunker.Config{
		Policy:  chunker.Policy(updated.Chunking.Policy),
		Window:  updated.Chunking.Window,
		Overlap: updated.Chunking.Overlap,
	}); err != nil {
		return err
	}

	*cfg = updated
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	ui.ShowSuccess("Chunking settings saved")
	ui.ShowInfo("Note: chunking applies at index time; rerun 'docdex index --overwrite' to apply")

	return nil
}

// configureStoreMenu changes the persistence backend
func configureStoreMenu(cfg *config.Config) error {
	ui.ShowSection("Store Backend")

	ui.ShowInfo(fmt.Sprintf("\nCurrent backend: %s\n", cfg.Store.Backend))

	idx, err := ui.ShowMenu("Persistence backend:", []string{
		"file (vectors.idx + chunks.jsonl + manifest.json)",
		"sqlite (single database file)",
		"Back to main menu",
	})
	if err != nil {
		return err
	}

	var backend config.Backend
	switch idx {
	case 0:
		backend = config.BackendFile
	case 1:
		backend = config.BackendSQLite
	default:
		return nil
	}

	if backend == cfg.Store.Backend {
		ui.ShowInfo("Backend unchanged")
		return nil
	}

	cfg.Store.Backend = backend
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	ui.ShowSuccess(fmt.Sprintf("Backend changed to: %s", backend))
	ui.ShowInfo("Note: an index built under the old backend is not migrated; run 'docdex index' to build one here")

	return nil
}

// viewCurrentConfiguration displays the full configuration
func viewCurrentConfiguration(status *ConfigStatus, cfg *config.Config) {
	ui.ShowSection("Current Configuration")

	fmt.Println()

	cyan := color.New(color.FgCyan, color.Bold)

	cyan.Println("Encoder:")
	fmt.Printf("  Provider: %s\n", cfg.Encoder.Provider)
	if cfg.Encoder.Model != "" {
		fmt.Printf("  Model: %s\n", cfg.Encoder.Model)
	}
	if cfg.Encoder.BaseURL != "" {
		fmt.Printf("  Base URL: %s\n", cfg.Encoder.BaseURL)
	}
	fmt.Printf("  Dimensions: %d\n", cfg.Encoder.Dimensions)
	fmt.Printf("  Batch size: %d\n", cfg.Encoder.BatchSize)
	fmt.Println()

	cyan.Println("Chunking:")
	fmt.Printf("  Policy: %s\n", cfg.Chunking.Policy)
	fmt.Printf("  Window: %d\n", cfg.Chunking.Window)
	fmt.Printf("  Overlap: %d\n", cfg.Chunking.Overlap)
	fmt.Println()

	cyan.Println("Retrieval:")
	fmt.Printf("  Top K: %d\n", cfg.Retrieval.TopK)
	fmt.Println()

	cyan.Println("Store:")
	fmt.Printf("  Backend: %s\n", cfg.Store.Backend)
	if location, err := storeLocation(cfg.Store); err == nil {
		fmt.Printf("  Location: %s\n", location)
	}
	if status.IndexReady {
		fmt.Println("  Index: ✓ built")
	} else {
		fmt.Println("  Index: not built yet")
	}
	fmt.Println()

	cyan.Println("Server:")
	fmt.Printf("  Addr: %s\n", cfg.Server.Addr)
	fmt.Println()

	cyan.Println("Data:")
	fmt.Printf("  Dir: %s\n", cfg.Data.Dir)
	fmt.Println()

	fmt.Printf("Configuration file: %s\n", status.ConfigPath)
	fmt.Println()

	fmt.Println("Press Enter to return to menu...")
	fmt.Scanln()
}

// storeLocation resolves where the configured backend keeps its files.
func storeLocation(s config.Store) (string, error) {
	if s.Backend == config.BackendSQLite {
		return s.DBPath()
	}
	return s.IndexDir()
}

// setupHash selects the offline hash encoder
func setupHash(cfg *config.Config) {
	cfg.Encoder = config.NewDefaultEncoder(config.ProviderHash)

	ui.ShowSuccess("Hash encoder selected")
	ui.ShowInfo("  - Deterministic and fully offline")
	ui.ShowInfo("  - No external services required")
}

// setupOllama configures and verifies the Ollama encoder
func setupOllama(cfg *config.Config) error {
	ui.ShowSection("Ollama Setup")

	enc := config.NewDefaultEncoder(config.ProviderOllama)

	ui.ShowInfo(fmt.Sprintf("Testing Ollama at %s...", enc.BaseURL))
	oll, err := encoder.NewOllama(enc)
	if err != nil {
		ui.ShowError("Could not reach Ollama")
		ui.ShowInfo("Start it with 'ollama serve' and try again")
		return fmt.Errorf("ollama test failed: %w", err)
	}

	// The service answered; now make sure the model is pulled.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := oll.Embed(ctx, "connection test"); err != nil {
		ui.ShowError(fmt.Sprintf("Embedding with model %s failed", enc.Model))
		ui.ShowInfo(fmt.Sprintf("Pull it with 'ollama pull %s' and try again", enc.Model))
		return fmt.Errorf("ollama test failed: %w", err)
	}

	ui.ShowSuccess("Ollama is working!")
	ui.ShowInfo(fmt.Sprintf("Model: %s (%d dimensions)", enc.Model, enc.Dimensions))

	cfg.Encoder = enc
	return nil
}

// setupOpenAI configures and verifies the OpenAI encoder
func setupOpenAI(cfg *config.Config) error {
	ui.ShowSection("OpenAI Setup")

	enc := config.NewDefaultEncoder(config.ProviderOpenAI)

	useEnv, err := ui.PromptYesNo("Read the API key from the OPENAI_API_KEY environment variable?", true)
	if err != nil {
		return err
	}

	if useEnv {
		if os.Getenv("OPENAI_API_KEY") == "" {
			ui.ShowWarning("OPENAI_API_KEY environment variable not set")
			ui.ShowInfo("")
			ui.ShowInfo("Set it in your shell or in a project-local .env file:")
			ui.ShowInfo("  export OPENAI_API_KEY=sk-...")
			ui.ShowInfo("")
			return fmt.Errorf("OPENAI_API_KEY not set")
		}
		enc.UseEnvKey = true
	} else {
		apiKey, err := ui.PromptPassword("Enter OpenAI API key:")
		if err != nil {
			return err
		}
		enc.APIKey = apiKey
		enc.UseEnvKey = false

		ui.ShowWarning("API key will be saved to ~/.docdex/config.yaml")
	}

	// Test the API key
	ui.ShowInfo("Testing OpenAI connection...")
	oa, err := encoder.NewOpenAI(enc)
	if err != nil {
		return fmt.Errorf("openai test failed: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := oa.Embed(ctx, "connection test"); err != nil {
		return fmt.Errorf("openai test failed: %w", err)
	}

	ui.ShowSuccess("OpenAI configured successfully!")
	ui.ShowInfo(fmt.Sprintf("Model: %s", enc.Model))

	cfg.Encoder = enc
	return nil
}

// promptInt asks for a whole number
func promptInt(message string) (int, error) {
	raw, err := ui.PromptInput(message)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	return value, nil
}
