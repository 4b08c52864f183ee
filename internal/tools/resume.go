package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lmoretti/stride/internal/session"
	"github.com/lmoretti/stride/internal/syncer"
)

// ResumeTool handles the wf_resume MCP tool.
// It restores a client's cached sessions after a server restart and
// lists what came back.
type ResumeTool struct {
	store *session.Store
	sync  *syncer.Syncer
}

// NewResumeTool creates a ResumeTool with the given store and syncer.
func NewResumeTool(store *session.Store, sync *syncer.Syncer) *ResumeTool {
	return &ResumeTool{store: store, sync: sync}
}

// Definition returns the MCP tool definition for registration.
func (t *ResumeTool) Definition() mcp.Tool {
	return mcp.NewTool("wf_resume",
		mcp.WithDescription(
			"Restore workflow sessions from the cache after a server restart. "+
				"Revives the client's cached sessions into memory and lists "+
				"them, so work can continue with wf_next.",
		),
		mcp.WithString("client_id",
			mcp.Description("Client whose sessions to restore. Defaults to 'default'."),
		),
	)
}

// Handle processes the wf_resume tool call.
func (t *ResumeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clientID := req.GetString("client_id", DefaultClientID)

	restored := t.sync.RestoreForClient(clientID)
	sessions := t.store.GetByClient(clientID)

	if len(sessions) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No sessions found for client %q, in memory or in the cache. Start one with wf_start.",
			clientID)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Resume: %s\n\n", clientID)
	fmt.Fprintf(&b, "Restored %d session(s) from the cache; %d now live.\n\n", restored, len(sessions))
	b.WriteString("| Session | Workflow | Node | Status |\n")
	b.WriteString("|---------|----------|------|--------|\n")
	for _, s := range sessions {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", s.SessionID, s.WorkflowName, s.CurrentNode, s.Status)
	}
	b.WriteString("\nContinue a session with wf_next and its session_id.\n")
	return mcp.NewToolResultText(b.String()), nil
}
