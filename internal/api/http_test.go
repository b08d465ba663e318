package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kalambet/engram/internal/answer"
	"github.com/kalambet/engram/internal/semantic"
	"github.com/kalambet/engram/internal/storage"
)

const testToken = "test-token"

// fakeService is an in-memory ThoughtService for handler tests.
type fakeService struct {
	indexes   map[string]storage.Index // by name
	hits      []semantic.SearchHit
	queryErr  error
	addID64   int64
	addErr    error
	archived  []string
	archiveOK bool
	lastQuery string
	lastK     int
}

func newFakeService() *fakeService {
	return &fakeService{
		indexes:   map[string]storage.Index{},
		addID64:   1,
		archiveOK: true,
	}
}

func (f *fakeService) CreateIndex(_ context.Context, name, algorithm string) (storage.Index, error) {
	if _, ok := f.indexes[name]; ok {
		return storage.Index{}, fmt.Errorf("index %q: %w", name, storage.ErrDuplicateIndexName)
	}
	idx := storage.Index{
		IndexID:   fmt.Sprintf("idx-%d", len(f.indexes)+1),
		IndexName: name,
		Algorithm: algorithm,
		CreatedAt: time.Now().UTC(),
	}
	f.indexes[name] = idx
	return idx, nil
}

func (f *fakeService) ListIndexes(context.Context) ([]storage.Index, error) {
	out := make([]storage.Index, 0, len(f.indexes))
	for _, idx := range f.indexes {
		out = append(out, idx)
	}
	return out, nil
}

func (f *fakeService) ResolveIndex(_ context.Context, name string) (storage.Index, error) {
	idx, ok := f.indexes[name]
	if !ok {
		return storage.Index{}, fmt.Errorf("index %q: %w", name, storage.ErrUnknownIndex)
	}
	return idx, nil
}

func (f *fakeService) AddThought(_ context.Context, t storage.Thought, _ string) (int64, error) {
	return f.addID64, f.addErr
}

func (f *fakeService) Query(_ context.Context, query, _ string, k int) ([]semantic.SearchHit, error) {
	f.lastQuery = query
	f.lastK = k
	return f.hits, f.queryErr
}

func (f *fakeService) Archive(_ context.Context, embeddingID string) error {
	if !f.archiveOK {
		return fmt.Errorf("embedding %q: %w", embeddingID, storage.ErrNotFound)
	}
	f.archived = append(f.archived, embeddingID)
	return nil
}

type fakeAsker struct {
	answer answer.Answer
	err    error
}

func (f *fakeAsker) Ask(context.Context, string, string) (answer.Answer, error) {
	return f.answer, f.err
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestBearerAuth(t *testing.T) {
	handler := NewAppHandler(AppDeps{Service: newFakeService(), Token: testToken})

	req := httptest.NewRequest(http.MethodGet, "/indexes", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/indexes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status %d, want 401", rec.Code)
	}
}

func TestHealth_Unauthenticated(t *testing.T) {
	handler := NewAppHandler(AppDeps{Service: newFakeService(), Token: testToken})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status %d, want 200", rec.Code)
	}
}

func TestCreateIndex(t *testing.T) {
	svc := newFakeService()
	handler := NewAppHandler(AppDeps{Service: svc, Token: testToken})

	rec := doRequest(t, handler, http.MethodPost, "/indexes", map[string]string{"name": "notes", "algorithm": "flat-ip"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp indexResponse
	decodeBody(t, rec, &resp)
	if resp.IndexName != "notes" || resp.IndexID == "" {
		t.Errorf("unexpected response: %+v", resp)
	}

	rec = doRequest(t, handler, http.MethodPost, "/indexes", map[string]string{"name": "notes"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate: status %d, want 409", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPost, "/indexes", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing name: status %d, want 400", rec.Code)
	}
}

func TestAddThought(t *testing.T) {
	svc := newFakeService()
	svc.indexes["notes"] = storage.Index{IndexID: "idx-1", IndexName: "notes"}
	svc.addID64 = 7
	handler := NewAppHandler(AppDeps{Service: svc, Token: testToken})

	rec := doRequest(t, handler, http.MethodPost, "/thoughts", map[string]any{
		"index": "notes", "body": "buy milk", "tags": []string{"errand"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["status"] != "complete" || resp["id64"] != float64(7) {
		t.Errorf("unexpected response: %v", resp)
	}

	rec = doRequest(t, handler, http.MethodPost, "/thoughts", map[string]any{"index": "missing", "body": "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown index: status %d, want 404", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPost, "/thoughts", map[string]any{"index": "notes"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing body: status %d, want 400", rec.Code)
	}
}

func TestAddThought_PendingPartialFailure(t *testing.T) {
	svc := newFakeService()
	svc.indexes["notes"] = storage.Index{IndexID: "idx-1", IndexName: "notes"}
	svc.addID64 = 9
	svc.addErr = fmt.Errorf("vector index unavailable")
	handler := NewAppHandler(AppDeps{Service: svc, Token: testToken})

	rec := doRequest(t, handler, http.MethodPost, "/thoughts", map[string]any{"index": "notes", "body": "x"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["status"] != "pending" || resp["id64"] != float64(9) {
		t.Errorf("unexpected response: %v", resp)
	}
}

func TestAddThought_TotalFailure(t *testing.T) {
	svc := newFakeService()
	svc.indexes["notes"] = storage.Index{IndexID: "idx-1", IndexName: "notes"}
	svc.addID64 = 0
	svc.addErr = fmt.Errorf("database locked")
	handler := NewAppHandler(AppDeps{Service: svc, Token: testToken})

	rec := doRequest(t, handler, http.MethodPost, "/thoughts", map[string]any{"index": "notes", "body": "x"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status %d, want 500", rec.Code)
	}
}

func TestArchiveThought(t *testing.T) {
	svc := newFakeService()
	handler := NewAppHandler(AppDeps{Service: svc, Token: testToken})

	rec := doRequest(t, handler, http.MethodDelete, "/thoughts/emb-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	if len(svc.archived) != 1 || svc.archived[0] != "emb-1" {
		t.Errorf("archived = %v", svc.archived)
	}

	svc.archiveOK = false
	rec = doRequest(t, handler, http.MethodDelete, "/thoughts/emb-2", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing thought: status %d, want 404", rec.Code)
	}
}

func TestQuery(t *testing.T) {
	svc := newFakeService()
	svc.indexes["notes"] = storage.Index{IndexID: "idx-1", IndexName: "notes"}
	svc.hits = []semantic.SearchHit{
		{Record: storage.ThoughtRecord{EmbeddingID: "e-1", ID64: 3, Body: "buy milk", Tags: []string{"errand"}}, Score: 0.97, Rank: 0},
	}
	handler := NewAppHandler(AppDeps{Service: svc, Token: testToken})

	rec := doRequest(t, handler, http.MethodPost, "/query", map[string]any{"index": "notes", "query": "milk"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var hits []hitResponse
	decodeBody(t, rec, &hits)
	if len(hits) != 1 || hits[0].Body != "buy milk" || hits[0].Rank != 0 {
		t.Errorf("unexpected hits: %+v", hits)
	}
	if svc.lastK != 5 {
		t.Errorf("default k = %d, want 5", svc.lastK)
	}

	rec = doRequest(t, handler, http.MethodPost, "/query", map[string]any{"index": "missing", "query": "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown index: status %d, want 404", rec.Code)
	}
}

func TestAsk(t *testing.T) {
	svc := newFakeService()
	svc.indexes["notes"] = storage.Index{IndexID: "idx-1", IndexName: "notes"}
	asker := &fakeAsker{answer: answer.Answer{
		Text: "You planned to buy milk.",
		Hits: []semantic.SearchHit{
			{Record: storage.ThoughtRecord{EmbeddingID: "e-1", ID64: 3, Body: "buy milk"}, Score: 0.97, Rank: 0},
		},
	}}
	handler := NewAppHandler(AppDeps{Service: svc, Asker: asker, Token: testToken})

	rec := doRequest(t, handler, http.MethodPost, "/ask", map[string]any{"index": "notes", "question": "what to buy?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Answer  string        `json:"answer"`
		Sources []hitResponse `json:"sources"`
	}
	decodeBody(t, rec, &resp)
	if resp.Answer != "You planned to buy milk." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Body != "buy milk" {
		t.Errorf("sources = %+v", resp.Sources)
	}
}

type fakeReconciler struct {
	repaired int
	err      error
}

func (f *fakeReconciler) Reconcile(context.Context) (int, error) {
	return f.repaired, f.err
}

func TestRepair(t *testing.T) {
	svc := newFakeService()
	handler := NewAppHandler(AppDeps{Service: svc, Reconciler: &fakeReconciler{repaired: 3}, Token: testToken})

	rec := doRequest(t, handler, http.MethodPost, "/repair", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]int
	decodeBody(t, rec, &resp)
	if resp["repaired"] != 3 {
		t.Errorf("repaired = %d, want 3", resp["repaired"])
	}

	handler = NewAppHandler(AppDeps{Service: svc, Token: testToken})
	rec = doRequest(t, handler, http.MethodPost, "/repair", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no reconciler: status %d, want 503", rec.Code)
	}
}

func TestAsk_NoAskerConfigured(t *testing.T) {
	svc := newFakeService()
	svc.indexes["notes"] = storage.Index{IndexID: "idx-1", IndexName: "notes"}
	handler := NewAppHandler(AppDeps{Service: svc, Token: testToken})

	rec := doRequest(t, handler, http.MethodPost, "/ask", map[string]any{"index": "notes", "question": "q"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", rec.Code)
	}
}
