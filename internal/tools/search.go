package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lmoretti/stride/internal/syncer"
)

// SearchTool handles the wf_search MCP tool.
// It runs a semantic similarity search over cached past sessions.
type SearchTool struct {
	sync *syncer.Syncer
}

// NewSearchTool creates a SearchTool with the given syncer.
func NewSearchTool(sync *syncer.Syncer) *SearchTool {
	return &SearchTool{sync: sync}
}

// Definition returns the MCP tool definition for registration.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("wf_search",
		mcp.WithDescription(
			"Search past workflow sessions by meaning. Embeds the query and "+
				"returns cached sessions ranked by similarity (0–1), optionally "+
				"narrowed by status or client.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural-language description of the work to find."),
		),
		mcp.WithString("status",
			mcp.Description("Only return sessions with this status (e.g. COMPLETED)."),
		),
		mcp.WithString("client_id",
			mcp.Description("Only return sessions belonging to this client."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return. Defaults to 5."),
		),
	)
}

// Handle processes the wf_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required."), nil
	}

	filters := make(map[string]string)
	if status := req.GetString("status", ""); status != "" {
		filters["status"] = status
	}
	if clientID := req.GetString("client_id", ""); clientID != "" {
		filters["client_id"] = clientID
	}

	limit := int(req.GetFloat("limit", 5))
	results := t.sync.SemanticSearch(query, filters, limit)
	if len(results) == 0 {
		return mcp.NewToolResultText("No matching sessions found in the cache."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Search Results (%d)\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "## %d. %s (%.0f%% match)\n\n", i+1, r.WorkflowName, r.Similarity*100)
		fmt.Fprintf(&b, "- **Session:** `%s` (client %s)\n", r.SessionID, r.ClientID)
		fmt.Fprintf(&b, "- **Node:** %s, **Status:** %s\n", r.CurrentNode, r.Status)
		fmt.Fprintf(&b, "- **Summary:** %s\n\n", r.Summary)
	}
	return mcp.NewToolResultText(b.String()), nil
}
