package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/docdex/docdex/internal/answer"
	"github.com/docdex/docdex/internal/api"
	"github.com/docdex/docdex/internal/chunker"
	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/history"
	"github.com/docdex/docdex/internal/ingest"
	"github.com/docdex/docdex/internal/retriever"
	"github.com/docdex/docdex/internal/store"
	"github.com/docdex/docdex/internal/ui"
	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var (
	// version is set by goreleaser at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// CLI flags
	debug        bool
	dataDir      string
	overwrite    bool
	chunkPolicy  string
	chunkWindow  int
	chunkOverlap int
	topK         int
	jsonOut      bool
	noText       bool
	copyTop      bool
	interactive  bool
	serveAddr    string
	historyLimit int
)

func main() {
	// A project-local .env may carry OPENAI_API_KEY.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     "docdex [query]",
		Short:   "Semantic search over your local documentation",
		Long:    "docdex indexes local documents and answers free-text queries with vector search",
		Version: version,
		Args:    cobra.MinimumNArgs(1),
		RunE:    runSearch,
	}

	// Add global debug flag
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	addSearchFlags(rootCmd)

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	addSearchFlags(searchCmd)

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Ingest documents and build the vector index",
		RunE:  runIndex,
	}
	indexCmd.Flags().StringVar(&dataDir, "data", "", "Directory of documents to ingest (overrides config)")
	indexCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing index")
	indexCmd.Flags().StringVar(&chunkPolicy, "policy", "", "Chunking policy: window or paragraph (overrides config)")
	indexCmd.Flags().IntVar(&chunkWindow, "window", 0, "Chunk window in characters (overrides config)")
	indexCmd.Flags().IntVar(&chunkOverlap, "overlap", -1, "Chunk overlap in characters (overrides config)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search and chat over HTTP",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")

	configureCmd := &cobra.Command{
		Use:   "configure",
		Short: "Configure the encoder, chunking and storage backend",
		RunE:  runConfigure,
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent searches",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of entries to show")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(historyCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addSearchFlags registers the search flags; the root command doubles as
// the search command so both carry the same set.
func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of results (0 uses the configured default)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print raw results as JSON")
	cmd.Flags().BoolVar(&noText, "no-text", false, "Omit chunk text from results")
	cmd.Flags().BoolVar(&copyTop, "copy", false, "Copy the top passage to the clipboard")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Pick results interactively")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	if debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] Main: starting with query: %q\n", query)
	}

	cfg, err := config.LoadOrDefault()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := context.Background()
	r, err := openIndex(ctx, cfg)
	if err != nil || r == nil {
		return err
	}
	r.SetDebug(debug)

	k := topK
	if k < 1 {
		k = cfg.Retrieval.TopK
	}
	if k < 1 {
		k = config.DefaultTopK
	}

	results, err := r.Search(ctx, query, k, !noText)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	recordSearch(query, k, results)

	if jsonOut {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		ui.ShowInfo("No results found. Did you index the right documents?")
		return nil
	}

	printResults(query, results)

	if copyTop {
		if err := clipboard.WriteAll(results[0].Text); err != nil {
			ui.ShowError(fmt.Sprintf("Failed to copy to clipboard: %v", err))
		} else {
			ui.ShowSuccess("Top passage copied to clipboard!")
		}
	}

	if interactive {
		return pickResults(results)
	}

	return nil
}

// openIndex opens the saved index, translating a missing index into
// guidance instead of a bare error. A nil retriever with nil error means
// the message was already shown.
func openIndex(ctx context.Context, cfg *config.Config) (*retriever.Retriever, error) {
	r, err := retriever.Open(ctx, cfg)
	if errors.Is(err, store.ErrNotFound) {
		ui.ShowError("No index found")
		ui.ShowInfo("Run 'docdex index --data <dir>' to build one")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	if debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] Main: opened index with %d chunks (dim %d) from the %s\n", r.Count(), r.Dim(), r.Describe())
	}
	return r, nil
}

// printResults renders ranked hits with snippets fitted to the terminal.
func printResults(query string, results []retriever.Result) {
	fmt.Printf("Query: %q\n", query)
	fmt.Printf("Top-%d results:\n\n", len(results))

	width := ui.TermWidth() - 4
	if width < 20 {
		width = 20
	}
	for _, res := range results {
		fmt.Printf("[%d] score=%.4f  doc=%s  chunk=%d\n", res.Rank, res.Score, res.DocID, res.ChunkID)
		if res.Text != "" {
			fmt.Printf("    %s\n", ui.Shorten(res.Text, width))
		}
		fmt.Println()
	}
}

// pickResults runs the interactive action loop over search hits.
func pickResults(results []retriever.Result) error {
	for {
		options := make([]string, 0, len(results)+1)
		for _, res := range results {
			label := fmt.Sprintf("[%d] %s chunk %d (score %.4f)", res.Rank, res.DocID, res.ChunkID, res.Score)
			options = append(options, label)
		}
		options = append(options, "Quit")

		selected, err := ui.ShowMenu("Results:", options)
		if err != nil {
			return err
		}
		if selected == len(results) {
			return nil
		}

		res := results[selected]
		action, err := ui.ConfirmResult(ui.Shorten(res.Text, 120))
		if err != nil {
			return err
		}

		switch action {
		case ui.ActionShow:
			fmt.Printf("\n%s (chunk %d, %s)\n\n%s\n\n", res.DocID, res.ChunkID, res.SourcePath, res.Text)
		case ui.ActionCopy:
			if err := clipboard.WriteAll(res.Text); err != nil {
				ui.ShowError(fmt.Sprintf("Failed to copy to clipboard: %v", err))
			} else {
				ui.ShowSuccess("Passage copied to clipboard!")
			}
		case ui.ActionBack:
			// Loop continues to show the results again
		case ui.ActionQuit:
			return nil
		}
	}
}

// recordSearch appends the query to the history file. History is
// best-effort; a failure never breaks the search itself.
func recordSearch(query string, k int, results []retriever.Result) {
	if debug {
		histPath, _ := history.GetHistoryPath()
		fmt.Fprintf(os.Stderr, "[DEBUG] History: recording search in %s\n", histPath)
	}

	hist, err := history.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load history: %v\n", err)
		return
	}

	topDoc := ""
	if len(results) > 0 {
		topDoc = results[0].DocID
	}
	hist.AddEntry(history.NewEntry(query, k, len(results), topDoc))
	if err := hist.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save history: %v\n", err)
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	ui.ShowSection("Building Index")

	cfg, err := config.LoadOrDefault()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Flag overrides for this build only; the config file is not touched.
	if dataDir != "" {
		cfg.Data.Dir = dataDir
	}
	if chunkPolicy != "" {
		cfg.Chunking.Policy = chunkPolicy
	}
	if chunkWindow > 0 {
		cfg.Chunking.Window = chunkWindow
	}
	if chunkOverlap >= 0 {
		cfg.Chunking.Overlap = chunkOverlap
	}

	if debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] Main: indexing %s (policy=%s window=%d overlap=%d encoder=%s)\n",
			cfg.Data.Dir, cfg.Chunking.Policy, cfg.Chunking.Window, cfg.Chunking.Overlap, cfg.Encoder.Provider)
	}

	ck, err := chunker.New(chunker.Config{
		Policy:  chunker.Policy(cfg.Chunking.Policy),
		Window:  cfg.Chunking.Window,
		Overlap: cfg.Chunking.Overlap,
	})
	if err != nil {
		return fmt.Errorf("invalid chunking settings: %w", err)
	}

	r, err := retriever.New(cfg, overwrite)
	if errors.Is(err, retriever.ErrIndexExists) {
		ui.ShowError("An index already exists")
		ui.ShowInfo("Rerun with --overwrite to replace it")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to prepare index: %w", err)
	}
	r.SetDebug(debug)

	ctx := context.Background()
	ing := ingest.NewWithDebug(ck, debug)

	ui.ShowInfo(fmt.Sprintf("Ingesting documents from %s...", cfg.Data.Dir))
	chunks, skipped, err := ing.LoadAll(ctx, cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("failed to ingest documents: %w", err)
	}
	for _, note := range skipped {
		ui.ShowWarning("Skipped " + note)
	}
	if len(chunks) == 0 {
		ui.ShowWarning("No chunks produced")
		ui.ShowInfo(fmt.Sprintf("Add .txt or .md files to %s and rerun", cfg.Data.Dir))
	}

	ui.ShowInfo(fmt.Sprintf("Encoding %d chunks with the %s encoder...", len(chunks), cfg.Encoder.Provider))
	start := time.Now()
	if err := r.Build(ctx, chunks); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	if err := r.Save(ctx); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}

	ui.ShowSuccess(fmt.Sprintf("Indexed %d chunks in %s", r.Count(), time.Since(start).Round(time.Millisecond)))
	ui.ShowInfo("Store: " + r.Describe())

	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefault()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := context.Background()
	r, err := openIndex(ctx, cfg)
	if err != nil || r == nil {
		return err
	}
	r.SetDebug(debug)

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if addr == "" {
		addr = ":8080"
	}

	ui.ShowInfo(fmt.Sprintf("Serving %d chunks on %s", r.Count(), addr))
	srv := api.NewServer(r, answer.NewExtractive(), cfg.Retrieval.TopK)
	return srv.Start(addr)
}

func runHistory(cmd *cobra.Command, args []string) error {
	hist, err := history.Load()
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	entries := hist.Recent(historyLimit)
	if len(entries) == 0 {
		ui.ShowInfo("No searches recorded yet")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%s  %q", e.Timestamp.Format("2006-01-02 15:04"), e.Query)
		if e.Results > 0 {
			fmt.Printf("  (%d results, top %s)", e.Results, e.TopDocID)
		} else {
			fmt.Printf("  (no results)")
		}
		fmt.Println()
	}

	return nil
}
