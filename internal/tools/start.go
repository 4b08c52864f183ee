package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lmoretti/stride/internal/guidance"
	"github.com/lmoretti/stride/internal/session"
	"github.com/lmoretti/stride/internal/syncer"
	"github.com/lmoretti/stride/internal/workflow"
)

// StartTool handles the wf_start MCP tool.
// It creates a new session on the named workflow's root node.
type StartTool struct {
	store  *session.Store
	loader *workflow.Loader
	sync   *syncer.Syncer
}

// NewStartTool creates a StartTool with its dependencies.
func NewStartTool(store *session.Store, loader *workflow.Loader, sync *syncer.Syncer) *StartTool {
	return &StartTool{store: store, loader: loader, sync: sync}
}

// Definition returns the MCP tool definition for registration.
func (t *StartTool) Definition() mcp.Tool {
	return mcp.NewTool("wf_start",
		mcp.WithDescription(
			"Start a guided workflow session. Loads the named workflow "+
				"definition, creates a session on its root node, and returns "+
				"the first goal with acceptance criteria and next steps. "+
				"Use wf_next to advance the session afterwards.",
		),
		mcp.WithString("task_description",
			mcp.Required(),
			mcp.Description("What the user wants done. Becomes the session's task_description input."),
		),
		mcp.WithString("workflow",
			mcp.Description("Workflow name (e.g. 'development', 'bugfix'). Defaults to 'development'."),
		),
		mcp.WithString("client_id",
			mcp.Description("Identifier grouping this caller's sessions. Defaults to 'default'."),
		),
	)
}

// Handle processes the wf_start tool call.
func (t *StartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task := req.GetString("task_description", "")
	name := req.GetString("workflow", "development")
	clientID := req.GetString("client_id", DefaultClientID)

	if task == "" {
		return mcp.NewToolResultError("task_description is required — describe what should be done."), nil
	}

	def, err := t.loader.LoadByName(name)
	if err != nil {
		return mcp.NewToolResultError(t.unknownWorkflow(name, err)), nil
	}

	composed, err := workflow.Compose(def, t.loader)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Workflow %q failed to compose: %v", name, err)), nil
	}

	s := t.store.Create(clientID, task, composed, composed.Source)
	t.sync.Sync(s)

	return mcp.NewToolResultText(guidance.NodeGuidance(s, composed)), nil
}

// unknownWorkflow lists the discoverable workflows so the agent can
// self-correct a bad name.
func (t *StartTool) unknownWorkflow(name string, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow %q could not be loaded: %v\n\n", name, err)

	files, derr := t.loader.Discover()
	if derr != nil || len(files) == 0 {
		return b.String()
	}
	b.WriteString("Available workflow files:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "- %s\n", strings.TrimSuffix(filepath.Base(f), filepath.Ext(f)))
	}
	return b.String()
}
