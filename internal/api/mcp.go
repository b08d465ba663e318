package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/engram/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service ThoughtService
	Asker   Asker // optional; if nil, the ask tool returns an error
}

// NewMCPServer creates an MCP server with the thought-store tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"engram",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("engram — local semantic store for short thoughts with recall over named indexes."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("create_index",
			mcp.WithDescription("Create a named semantic index for storing thoughts."),
			mcp.WithString("name", mcp.Description("Unique index name"), mcp.Required()),
			mcp.WithString("algorithm", mcp.Description("Advisory algorithm label (default flat-ip)")),
		),
		mcpCreateIndex(deps),
	)

	s.AddTool(
		mcp.NewTool("list_indexes",
			mcp.WithDescription("List all semantic indexes, newest first."),
		),
		mcpListIndexes(deps),
	)

	s.AddTool(
		mcp.NewTool("add_thought",
			mcp.WithDescription("Store a short thought into an index for later semantic recall."),
			mcp.WithString("index", mcp.Description("Target index name"), mcp.Required()),
			mcp.WithString("body", mcp.Description("The thought text to store"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags for categorization")),
		),
		mcpAddThought(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Semantically search an index and return the most similar thoughts."),
			mcp.WithString("index", mcp.Description("Index name to search"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecall(deps),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question using the most relevant stored thoughts as context."),
			mcp.WithString("index", mcp.Description("Index name to recall from"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	return s
}

func resolveIndexArg(ctx context.Context, deps MCPDeps, req mcp.CallToolRequest) (storage.Index, *mcp.CallToolResult) {
	name, err := req.RequireString("index")
	if err != nil {
		return storage.Index{}, mcpError("index is required")
	}
	idx, err := deps.Service.ResolveIndex(ctx, name)
	if errors.Is(err, storage.ErrUnknownIndex) {
		return storage.Index{}, mcpError(fmt.Sprintf("index %q not found", name))
	}
	if err != nil {
		return storage.Index{}, mcpError(fmt.Sprintf("failed to resolve index: %v", err))
	}
	return idx, nil
}

func mcpCreateIndex(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		algorithm := req.GetString("algorithm", "flat-ip")

		idx, err := deps.Service.CreateIndex(ctx, name, algorithm)
		if errors.Is(err, storage.ErrDuplicateIndexName) {
			return mcpError(fmt.Sprintf("index %q already exists", name)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create index: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Created index %s (%s)", idx.IndexName, idx.IndexID)), nil
	}
}

func mcpListIndexes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		indexes, err := deps.Service.ListIndexes(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list indexes: %v", err)), nil
		}

		out := make([]indexResponse, len(indexes))
		for i, idx := range indexes {
			out[i] = toIndexResponse(idx)
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal indexes: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddThought(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		body, err := req.RequireString("body")
		if err != nil {
			return mcpError("body is required"), nil
		}
		tags := req.GetStringSlice("tags", nil)

		idx, errResult := resolveIndexArg(ctx, deps, req)
		if errResult != nil {
			return errResult, nil
		}

		id64, err := deps.Service.AddThought(ctx, storage.Thought{Body: body, Tags: tags}, idx.IndexID)
		if err != nil && id64 == 0 {
			return mcpError(fmt.Sprintf("failed to store thought: %v", err)), nil
		}
		if err != nil {
			return mcpText(fmt.Sprintf("Stored thought %d; it will become searchable after the next repair sweep (%v)", id64, err)), nil
		}
		return mcpText(fmt.Sprintf("Stored thought %d in index %s", id64, idx.IndexName)), nil
	}
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		idx, errResult := resolveIndexArg(ctx, deps, req)
		if errResult != nil {
			return errResult, nil
		}

		hits, err := deps.Service.Query(ctx, query, idx.IndexID, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}
		if len(hits) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(toHitResponses(hits))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Asker == nil {
			return mcpError("ask not available: no chat model configured"), nil
		}

		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		idx, errResult := resolveIndexArg(ctx, deps, req)
		if errResult != nil {
			return errResult, nil
		}

		ans, err := deps.Asker.Ask(ctx, question, idx.IndexID)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}
		return mcpText(ans.Text), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
