package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/engram/internal/answer"
	"github.com/kalambet/engram/internal/semantic"
	"github.com/kalambet/engram/internal/storage"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPCreateIndex(t *testing.T) {
	svc := newFakeService()
	deps := MCPDeps{Service: svc}

	result, err := mcpCreateIndex(deps)(context.Background(), makeCallToolRequest("create_index", map[string]interface{}{
		"name": "notes",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "notes") {
		t.Errorf("result missing index name: %s", toolText(t, result))
	}

	result, _ = mcpCreateIndex(deps)(context.Background(), makeCallToolRequest("create_index", map[string]interface{}{
		"name": "notes",
	}))
	if !result.IsError || !strings.Contains(toolText(t, result), "already exists") {
		t.Errorf("duplicate create: %s", toolText(t, result))
	}
}

func TestMCPListIndexes(t *testing.T) {
	svc := newFakeService()
	svc.indexes["notes"] = storage.Index{IndexID: "idx-1", IndexName: "notes"}
	deps := MCPDeps{Service: svc}

	result, err := mcpListIndexes(deps)(context.Background(), makeCallToolRequest("list_indexes", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var indexes []indexResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &indexes); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(indexes) != 1 || indexes[0].IndexName != "notes" {
		t.Errorf("unexpected indexes: %+v", indexes)
	}
}

func TestMCPAddThought(t *testing.T) {
	svc := newFakeService()
	svc.indexes["notes"] = storage.Index{IndexID: "idx-1", IndexName: "notes"}
	svc.addID64 = 4
	deps := MCPDeps{Service: svc}

	result, err := mcpAddThought(deps)(context.Background(), makeCallToolRequest("add_thought", map[string]interface{}{
		"index": "notes",
		"body":  "buy milk",
		"tags":  []interface{}{"errand"},
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "4") {
		t.Errorf("result missing id64: %s", toolText(t, result))
	}

	result, _ = mcpAddThought(deps)(context.Background(), makeCallToolRequest("add_thought", map[string]interface{}{
		"index": "missing",
		"body":  "x",
	}))
	if !result.IsError || !strings.Contains(toolText(t, result), "not found") {
		t.Errorf("unknown index: %s", toolText(t, result))
	}
}

func TestMCPAddThought_PendingPartialFailure(t *testing.T) {
	svc := newFakeService()
	svc.indexes["notes"] = storage.Index{IndexID: "idx-1", IndexName: "notes"}
	svc.addID64 = 6
	svc.addErr = fmt.Errorf("vector index unavailable")
	deps := MCPDeps{Service: svc}

	result, err := mcpAddThought(deps)(context.Background(), makeCallToolRequest("add_thought", map[string]interface{}{
		"index": "notes",
		"body":  "x",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("partial failure should not be a tool error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "repair") {
		t.Errorf("result should mention the repair sweep: %s", toolText(t, result))
	}
}

func TestMCPRecall(t *testing.T) {
	svc := newFakeService()
	svc.indexes["notes"] = storage.Index{IndexID: "idx-1", IndexName: "notes"}
	svc.hits = []semantic.SearchHit{
		{Record: storage.ThoughtRecord{EmbeddingID: "e-1", ID64: 3, Body: "buy milk"}, Score: 0.97, Rank: 0},
	}
	deps := MCPDeps{Service: svc}

	result, err := mcpRecall(deps)(context.Background(), makeCallToolRequest("recall", map[string]interface{}{
		"index": "notes",
		"query": "milk",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var hits []hitResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &hits); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(hits) != 1 || hits[0].Body != "buy milk" {
		t.Errorf("unexpected hits: %+v", hits)
	}
}

func TestMCPRecall_Empty(t *testing.T) {
	svc := newFakeService()
	svc.indexes["notes"] = storage.Index{IndexID: "idx-1", IndexName: "notes"}
	deps := MCPDeps{Service: svc}

	result, err := mcpRecall(deps)(context.Background(), makeCallToolRequest("recall", map[string]interface{}{
		"index": "notes",
		"query": "anything",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if toolText(t, result) != "[]" {
		t.Errorf("empty recall = %q, want []", toolText(t, result))
	}
}

func TestMCPAsk(t *testing.T) {
	svc := newFakeService()
	svc.indexes["notes"] = storage.Index{IndexID: "idx-1", IndexName: "notes"}
	asker := &fakeAsker{answer: answer.Answer{Text: "You planned to buy milk."}}
	deps := MCPDeps{Service: svc, Asker: asker}

	result, err := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"index":    "notes",
		"question": "what to buy?",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if toolText(t, result) != "You planned to buy milk." {
		t.Errorf("answer = %q", toolText(t, result))
	}
}

func TestMCPAsk_NoAskerConfigured(t *testing.T) {
	svc := newFakeService()
	svc.indexes["notes"] = storage.Index{IndexID: "idx-1", IndexName: "notes"}
	deps := MCPDeps{Service: svc}

	result, err := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"index":    "notes",
		"question": "q",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error with no asker configured")
	}
}
