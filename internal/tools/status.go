package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lmoretti/stride/internal/guidance"
	"github.com/lmoretti/stride/internal/session"
	"github.com/lmoretti/stride/internal/workflow"
)

// StatusTool handles the wf_status MCP tool.
// It shows one session's full guidance, or lists a client's sessions.
type StatusTool struct {
	store  *session.Store
	loader *workflow.Loader
}

// NewStatusTool creates a StatusTool with the given store and loader.
func NewStatusTool(store *session.Store, loader *workflow.Loader) *StatusTool {
	return &StatusTool{store: store, loader: loader}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("wf_status",
		mcp.WithDescription(
			"Show workflow session status. With `session_id`, returns that "+
				"session's current goal, criteria, and next steps. Without it, "+
				"lists the client's sessions.",
		),
		mcp.WithString("session_id",
			mcp.Description("Specific session to inspect."),
		),
		mcp.WithString("client_id",
			mcp.Description("Client whose sessions to list when session_id is omitted. Defaults to 'default'."),
		),
	)
}

// Handle processes the wf_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("session_id", "")
	clientID := req.GetString("client_id", DefaultClientID)

	if sessionID == "" {
		return mcp.NewToolResultText(t.listForClient(clientID)), nil
	}

	s := t.store.Get(sessionID)
	if s == nil {
		return mcp.NewToolResultError(fmt.Sprintf(
			"Session %q not found. Use wf_status without session_id to list sessions, "+
				"or wf_resume to restore cached ones.", sessionID)), nil
	}

	if def := definitionFor(s, t.store, t.loader); def != nil {
		return mcp.NewToolResultText(guidance.NodeGuidance(s, def)), nil
	}
	// Definition unavailable — the state dump is still useful.
	return mcp.NewToolResultText(guidance.SessionDump(s)), nil
}

func (t *StatusTool) listForClient(clientID string) string {
	sessions := t.store.GetByClient(clientID)
	if len(sessions) == 0 {
		return fmt.Sprintf("No sessions for client %q. Start one with wf_start.", clientID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Sessions for %s\n\n", clientID)
	b.WriteString("| Session | Workflow | Node | Status | Updated |\n")
	b.WriteString("|---------|----------|------|--------|--------|\n")
	for _, s := range sessions {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s |\n",
			s.SessionID, s.WorkflowName, s.CurrentNode, s.Status,
			s.LastUpdated.UTC().Format("2006-01-02 15:04"))
	}
	b.WriteString("\nInspect one with wf_status and its session_id.\n")
	return b.String()
}
