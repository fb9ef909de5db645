package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/metastore"
	"github.com/docdex/docdex/internal/retriever"
)

var _ Searcher = (*retriever.Retriever)(nil)
var _ Searcher = (*mockSearcher)(nil)

type mockSearcher struct {
	SearchFn func(ctx context.Context, query string, topK int, withText bool) ([]retriever.Result, error)
	count    int
	dim      int
	name     string
}

func (m *mockSearcher) Search(ctx context.Context, query string, topK int, withText bool) ([]retriever.Result, error) {
	return m.SearchFn(ctx, query, topK, withText)
}

func (m *mockSearcher) Count() int          { return m.count }
func (m *mockSearcher) Dim() int            { return m.dim }
func (m *mockSearcher) EncoderName() string { return m.name }

func fixedResults() []retriever.Result {
	return []retriever.Result{
		{Rank: 1, Score: 0.92, Record: metastore.Record{RowID: 3, DocID: "ssh-hardening", ChunkID: 1, SourcePath: "docs/ssh-hardening.md", Text: "Disable root login over SSH."}},
		{Rank: 2, Score: 0.41, Record: metastore.Record{RowID: 0, DocID: "firewall", ChunkID: 0, SourcePath: "docs/firewall.md", Text: "Default-deny inbound traffic."}},
	}
}

func newTestServer(m *mockSearcher) http.Handler {
	return NewServer(m, nil, 0).Router()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(&mockSearcher{})

	rec := doJSON(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestStats(t *testing.T) {
	h := newTestServer(&mockSearcher{count: 42, dim: 384, name: "hash/fnv64-v1"})

	rec := doJSON(t, h, http.MethodGet, "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /stats status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body struct {
		Chunks  int    `json:"chunks"`
		Dim     int    `json:"dim"`
		Encoder string `json:"encoder"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Chunks != 42 || body.Dim != 384 || body.Encoder != "hash/fnv64-v1" {
		t.Errorf("stats = %+v, want chunks 42, dim 384, encoder hash/fnv64-v1", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(&mockSearcher{
		SearchFn: func(context.Context, string, int, bool) ([]retriever.Result, error) {
			return nil, nil
		},
	})

	tests := []struct {
		method, path string
	}{
		{http.MethodPost, "/health"},
		{http.MethodPost, "/stats"},
		{http.MethodGet, "/search"},
		{http.MethodGet, "/chat"},
	}
	for _, tt := range tests {
		rec := doJSON(t, h, tt.method, tt.path, "{}")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, rec.Code, http.StatusMethodNotAllowed)
		}
	}
}

func TestSearch(t *testing.T) {
	var gotQuery string
	var gotTopK int
	var gotWithText bool
	h := newTestServer(&mockSearcher{
		SearchFn: func(_ context.Context, query string, topK int, withText bool) ([]retriever.Result, error) {
			gotQuery, gotTopK, gotWithText = query, topK, withText
			return fixedResults(), nil
		},
	})

	rec := doJSON(t, h, http.MethodPost, "/search", `{"query":"ssh hardening","top_k":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /search status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if gotQuery != "ssh hardening" || gotTopK != 2 || !gotWithText {
		t.Errorf("retriever saw (%q, %d, %t), want (%q, 2, true)", gotQuery, gotTopK, gotWithText, "ssh hardening")
	}

	var body SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Query != "ssh hardening" {
		t.Errorf("response query = %q, want %q", body.Query, "ssh hardening")
	}
	if len(body.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(body.Results))
	}
	first := body.Results[0]
	if first.Rank != 1 || first.DocID != "ssh-hardening" || first.ChunkID != 1 {
		t.Errorf("first result = %+v, want rank 1 ssh-hardening chunk 1", first)
	}
}

func TestSearchResultJSONShape(t *testing.T) {
	h := newTestServer(&mockSearcher{
		SearchFn: func(context.Context, string, int, bool) ([]retriever.Result, error) {
			return fixedResults()[:1], nil
		},
	})

	rec := doJSON(t, h, http.MethodPost, "/search", `{"query":"ssh"}`)

	var body struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(body.Results))
	}
	for _, key := range []string{"rank", "score", "row_id", "doc_id", "chunk_id", "source_path", "text"} {
		if _, ok := body.Results[0][key]; !ok {
			t.Errorf("result JSON is missing key %q: %v", key, body.Results[0])
		}
	}
}

func TestSearchDefaults(t *testing.T) {
	var gotTopK int
	var gotWithText bool
	mock := &mockSearcher{
		SearchFn: func(_ context.Context, _ string, topK int, withText bool) ([]retriever.Result, error) {
			gotTopK, gotWithText = topK, withText
			return nil, nil
		},
	}
	h := NewServer(mock, nil, 7).Router()

	doJSON(t, h, http.MethodPost, "/search", `{"query":"ssh"}`)
	if gotTopK != 7 {
		t.Errorf("default top_k = %d, want 7", gotTopK)
	}
	if !gotWithText {
		t.Errorf("default with_text = false, want true")
	}

	doJSON(t, h, http.MethodPost, "/search", `{"query":"ssh","with_text":false}`)
	if gotWithText {
		t.Errorf("with_text=false was not passed through")
	}
}

func TestSearchEmptyResults(t *testing.T) {
	h := newTestServer(&mockSearcher{
		SearchFn: func(context.Context, string, int, bool) ([]retriever.Result, error) {
			return []retriever.Result{}, nil
		},
	})

	rec := doJSON(t, h, http.MethodPost, "/search", `{"query":"nothing matches"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"results":[]`) {
		t.Errorf("body %q does not contain an empty results array", rec.Body.String())
	}
}

func TestSearchBadJSON(t *testing.T) {
	h := newTestServer(&mockSearcher{})

	rec := doJSON(t, h, http.MethodPost, "/search", `{"query":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSearchErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid top_k", fmt.Errorf("search: %w", index.ErrInvalidK), http.StatusBadRequest},
		{"not ready", fmt.Errorf("%w; build or open an index first", retriever.ErrNotReady), http.StatusServiceUnavailable},
		{"internal", errors.New("disk exploded"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&mockSearcher{
				SearchFn: func(context.Context, string, int, bool) ([]retriever.Result, error) {
					return nil, tt.err
				},
			})

			rec := doJSON(t, h, http.MethodPost, "/search", `{"query":"ssh"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "disk exploded") {
				t.Errorf("internal error detail leaked to the client: %q", rec.Body.String())
			}
		})
	}
}

func TestChat(t *testing.T) {
	var gotWithText bool
	var gotTopK int
	h := newTestServer(&mockSearcher{
		SearchFn: func(_ context.Context, _ string, topK int, withText bool) ([]retriever.Result, error) {
			gotTopK, gotWithText = topK, withText
			return fixedResults(), nil
		},
	})

	rec := doJSON(t, h, http.MethodPost, "/chat", `{"query":"how do I harden ssh?","top_k":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /chat status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if !gotWithText {
		t.Errorf("chat searched without text; the composer needs it")
	}
	if gotTopK != 2 {
		t.Errorf("top_k = %d, want 2", gotTopK)
	}

	var body ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !strings.Contains(body.Answer, "Disable root login over SSH.") {
		t.Errorf("answer %q does not quote the top passage", body.Answer)
	}
	if len(body.Context) != 2 {
		t.Errorf("got %d context passages, want 2", len(body.Context))
	}
}

func TestChatNoMatches(t *testing.T) {
	h := newTestServer(&mockSearcher{
		SearchFn: func(context.Context, string, int, bool) ([]retriever.Result, error) {
			return nil, nil
		},
	})

	rec := doJSON(t, h, http.MethodPost, "/chat", `{"query":"quantum pottery"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !strings.Contains(body.Answer, "No matching passages") {
		t.Errorf("answer = %q, want a no-match explanation", body.Answer)
	}
	if len(body.Context) != 0 {
		t.Errorf("got %d context passages, want 0", len(body.Context))
	}
}
