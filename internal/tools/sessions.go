package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lmoretti/stride/internal/session"
)

// SessionsTool handles the wf_sessions MCP tool.
// It reports store-wide statistics and optionally cleans up old
// terminal sessions.
type SessionsTool struct {
	store *session.Store
}

// NewSessionsTool creates a SessionsTool with the given store.
func NewSessionsTool(store *session.Store) *SessionsTool {
	return &SessionsTool{store: store}
}

// Definition returns the MCP tool definition for registration.
func (t *SessionsTool) Definition() mcp.Tool {
	return mcp.NewTool("wf_sessions",
		mcp.WithDescription(
			"Report session-store statistics: totals by status and distinct "+
				"clients. Set `cleanup_older_than_hours` to also delete "+
				"completed/errored sessions not updated within that window.",
		),
		mcp.WithNumber("cleanup_older_than_hours",
			mcp.Description("Retention window in hours for cleanup. 0 (default) skips cleanup."),
		),
	)
}

// Handle processes the wf_sessions tool call.
func (t *SessionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hours := req.GetFloat("cleanup_older_than_hours", 0)

	removed := -1
	if hours > 0 {
		removed = t.store.Cleanup(time.Duration(hours * float64(time.Hour)))
	}

	stats := t.store.Stats()

	var b strings.Builder
	b.WriteString("# Session Store\n\n")
	fmt.Fprintf(&b, "- **Total sessions:** %d\n", stats.Total)
	fmt.Fprintf(&b, "- **Distinct clients:** %d\n", stats.Clients)

	if len(stats.ByStatus) > 0 {
		b.WriteString("\n## By Status\n\n")
		statuses := make([]string, 0, len(stats.ByStatus))
		for status := range stats.ByStatus {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			fmt.Fprintf(&b, "- %s: %d\n", status, stats.ByStatus[status])
		}
	}

	if removed >= 0 {
		fmt.Fprintf(&b, "\nCleanup removed %d session(s) (terminal status, idle > %.0fh).\n", removed, hours)
	}
	return mcp.NewToolResultText(b.String()), nil
}
