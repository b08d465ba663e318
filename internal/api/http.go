// Package api exposes the thought store over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/engram/internal/answer"
	"github.com/kalambet/engram/internal/semantic"
	"github.com/kalambet/engram/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// ThoughtService is the slice of the semantic service the HTTP layer needs.
type ThoughtService interface {
	CreateIndex(ctx context.Context, name, algorithm string) (storage.Index, error)
	ListIndexes(ctx context.Context) ([]storage.Index, error)
	ResolveIndex(ctx context.Context, name string) (storage.Index, error)
	AddThought(ctx context.Context, t storage.Thought, indexID string) (int64, error)
	Query(ctx context.Context, query, indexID string, k int) ([]semantic.SearchHit, error)
	Archive(ctx context.Context, embeddingID string) error
}

// Asker answers a question from recalled thoughts.
type Asker interface {
	Ask(ctx context.Context, question, indexID string) (answer.Answer, error)
}

// Reconciler replays pending links into the vector index.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// AppDeps holds dependencies for the HTTP API.
type AppDeps struct {
	Service    ThoughtService
	Asker      Asker      // optional; if nil, /ask returns an error
	Reconciler Reconciler // optional; if nil, /repair returns an error
	Token      string
}

// NewAppHandler returns the authenticated HTTP API.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/indexes", handleCreateIndex(deps))
		r.Get("/indexes", handleListIndexes(deps))
		r.Post("/thoughts", handleAddThought(deps))
		r.Delete("/thoughts/{id}", handleArchiveThought(deps))
		r.Post("/query", handleQuery(deps))
		r.Post("/ask", handleAsk(deps))
		r.Post("/repair", handleRepair(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type createIndexRequest struct {
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
}

type indexResponse struct {
	IndexID   string `json:"index_id"`
	IndexName string `json:"index_name"`
	Algorithm string `json:"algorithm"`
	CreatedAt string `json:"created_at"`
}

func toIndexResponse(idx storage.Index) indexResponse {
	return indexResponse{
		IndexID:   idx.IndexID,
		IndexName: idx.IndexName,
		Algorithm: idx.Algorithm,
		CreatedAt: idx.CreatedAt.Format(time.RFC3339Nano),
	}
}

func handleCreateIndex(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createIndexRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		idx, err := deps.Service.CreateIndex(r.Context(), req.Name, req.Algorithm)
		if errors.Is(err, storage.ErrDuplicateIndexName) {
			httpError(w, http.StatusConflict, "conflict", "index %q already exists", req.Name)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create index: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(toIndexResponse(idx))
	}
}

func handleListIndexes(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		indexes, err := deps.Service.ListIndexes(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list indexes: %v", err)
			return
		}

		out := make([]indexResponse, len(indexes))
		for i, idx := range indexes {
			out[i] = toIndexResponse(idx)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

type addThoughtRequest struct {
	Index string   `json:"index"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

func handleAddThought(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req addThoughtRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Index == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "index is required")
			return
		}
		if req.Body == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "body is required")
			return
		}

		idx, err := deps.Service.ResolveIndex(r.Context(), req.Index)
		if errors.Is(err, storage.ErrUnknownIndex) {
			httpError(w, http.StatusNotFound, "not_found", "index %q not found", req.Index)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve index: %v", err)
			return
		}

		id64, err := deps.Service.AddThought(r.Context(), storage.Thought{Body: req.Body, Tags: req.Tags}, idx.IndexID)
		if err != nil && id64 == 0 {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store thought: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			// Durable in metadata but not yet searchable; the repair sweep
			// will finish the vector write.
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]any{
				"id64":   id64,
				"status": "pending",
			})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id64":   id64,
			"status": "complete",
		})
	}
}

func handleArchiveThought(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Service.Archive(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "thought not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to archive thought: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "archived"})
	}
}

type queryRequest struct {
	Index string `json:"index"`
	Query string `json:"query"`
	K     int    `json:"k"`
}

type hitResponse struct {
	EmbeddingID string   `json:"embedding_id"`
	ID64        int64    `json:"id64"`
	Body        string   `json:"body"`
	Tags        []string `json:"tags"`
	Score       float32  `json:"score"`
	Rank        int      `json:"rank"`
	CreatedAt   string   `json:"created_at"`
}

func toHitResponses(hits []semantic.SearchHit) []hitResponse {
	out := make([]hitResponse, len(hits))
	for i, h := range hits {
		out[i] = hitResponse{
			EmbeddingID: h.Record.EmbeddingID,
			ID64:        h.Record.ID64,
			Body:        h.Record.Body,
			Tags:        h.Record.Tags,
			Score:       h.Score,
			Rank:        h.Rank,
			CreatedAt:   h.Record.CreatedAt.Format(time.RFC3339Nano),
		}
	}
	return out
}

func handleQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Index == "" || req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "index and query are required")
			return
		}
		if req.K <= 0 {
			req.K = 5
		}
		if req.K > 100 {
			req.K = 100
		}

		idx, err := deps.Service.ResolveIndex(r.Context(), req.Index)
		if errors.Is(err, storage.ErrUnknownIndex) {
			httpError(w, http.StatusNotFound, "not_found", "index %q not found", req.Index)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve index: %v", err)
			return
		}

		hits, err := deps.Service.Query(r.Context(), req.Query, idx.IndexID, req.K)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "query failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toHitResponses(hits))
	}
}

type askRequest struct {
	Index    string `json:"index"`
	Question string `json:"question"`
}

func handleAsk(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Asker == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "ask not available: no chat model configured")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Index == "" || req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "index and question are required")
			return
		}

		idx, err := deps.Service.ResolveIndex(r.Context(), req.Index)
		if errors.Is(err, storage.ErrUnknownIndex) {
			httpError(w, http.StatusNotFound, "not_found", "index %q not found", req.Index)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve index: %v", err)
			return
		}

		ans, err := deps.Asker.Ask(r.Context(), req.Question, idx.IndexID)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "ask failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"answer":  ans.Text,
			"sources": toHitResponses(ans.Hits),
		})
	}
}

func handleRepair(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Reconciler == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "repair not available")
			return
		}

		repaired, err := deps.Reconciler.Reconcile(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "repair failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"repaired": repaired})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
