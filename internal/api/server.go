// Package api exposes the retriever over HTTP. The surface is small:
// health and stats probes plus JSON search and chat endpoints backed by
// an already-loaded index.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/docdex/docdex/internal/answer"
	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/retriever"
)

// Searcher is the slice of the retriever the HTTP layer uses.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, withText bool) ([]retriever.Result, error)
	Count() int
	Dim() int
	EncoderName() string
}

// Server handles HTTP requests against a loaded index.
type Server struct {
	searcher Searcher
	composer answer.Composer
	topK     int
}

// NewServer creates a server. topK is used when a request omits top_k;
// values below 1 fall back to the configuration default.
func NewServer(searcher Searcher, composer answer.Composer, topK int) *Server {
	if topK < 1 {
		topK = config.DefaultTopK
	}
	if composer == nil {
		composer = answer.NewExtractive()
	}
	return &Server{searcher: searcher, composer: composer, topK: topK}
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
	// WithText defaults to true when omitted.
	WithText *bool `json:"with_text,omitempty"`
}

// SearchResponse is the body of a successful POST /search.
type SearchResponse struct {
	Query   string             `json:"query"`
	Results []retriever.Result `json:"results"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Query   string             `json:"query"`
	Answer  string             `json:"answer"`
	Context []retriever.Result `json:"context"`
}

// HandleHealth responds to GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// HandleStats responds to GET /stats with index counters.
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chunks":  s.searcher.Count(),
		"dim":     s.searcher.Dim(),
		"encoder": s.searcher.EncoderName(),
	})
}

// HandleSearch responds to POST /search.
func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.topK
	}
	withText := true
	if req.WithText != nil {
		withText = *req.WithText
	}

	results, err := s.searcher.Search(r.Context(), req.Query, topK, withText)
	if err != nil {
		writeSearchError(w, "search", err)
		return
	}
	if results == nil {
		results = []retriever.Result{}
	}

	log.Printf("[search] query=%q top_k=%d results=%d", req.Query, topK, len(results))
	writeJSON(w, http.StatusOK, SearchResponse{Query: req.Query, Results: results})
}

// HandleChat responds to POST /chat with an extractive answer and the
// passages it was composed from.
func (s *Server) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.topK
	}

	results, err := s.searcher.Search(r.Context(), req.Query, topK, true)
	if err != nil {
		writeSearchError(w, "chat", err)
		return
	}
	if results == nil {
		results = []retriever.Result{}
	}

	log.Printf("[chat] query=%q top_k=%d results=%d", req.Query, topK, len(results))
	writeJSON(w, http.StatusOK, ChatResponse{
		Query:   req.Query,
		Answer:  s.composer.Compose(req.Query, results),
		Context: results,
	})
}

// Router returns the HTTP handler with all routes registered.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/stats", s.HandleStats)
	mux.HandleFunc("/search", s.HandleSearch)
	mux.HandleFunc("/chat", s.HandleChat)
	return mux
}

// Start runs the HTTP server on the given address. It blocks until the
// server stops.
func (s *Server) Start(addr string) error {
	log.Printf("API server listening on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}

// writeSearchError maps retrieval failures to HTTP statuses. Bad
// requests echo the cause; internal failures are logged but not leaked.
func writeSearchError(w http.ResponseWriter, tag string, err error) {
	log.Printf("[%s] failed: %v", tag, err)
	switch {
	case errors.Is(err, index.ErrInvalidK):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, retriever.ErrNotReady):
		http.Error(w, "No index loaded; build one first", http.StatusServiceUnavailable)
	default:
		http.Error(w, "Search failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
