package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lmoretti/stride/internal/workflow"
)

// ValidateTool handles the wf_validate MCP tool.
// It runs the field-level checks on a workflow file and renders the
// report, so workflow authors get actionable errors instead of parse
// stack traces.
type ValidateTool struct {
	loader *workflow.Loader
}

// NewValidateTool creates a ValidateTool with the given loader.
func NewValidateTool(loader *workflow.Loader) *ValidateTool {
	return &ValidateTool{loader: loader}
}

// Definition returns the MCP tool definition for registration.
func (t *ValidateTool) Definition() mcp.Tool {
	return mcp.NewTool("wf_validate",
		mcp.WithDescription(
			"Validate a workflow YAML file: name/description present, root "+
				"node exists, tree non-empty, every transition target defined. "+
				"Returns the full error list, not just the first failure.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the workflow YAML file, relative to the workflows directory or absolute."),
		),
	)
}

// Handle processes the wf_validate tool call.
func (t *ValidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("path is required."), nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.loader.Root(), path)
	}

	report := t.loader.ValidateFile(path)
	if report.Valid {
		return mcp.NewToolResultText(fmt.Sprintf("✅ %s is a valid workflow definition.", path)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "❌ %s has %d problem(s):\n\n", path, len(report.Errors))
	for _, e := range report.Errors {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	return mcp.NewToolResultText(b.String()), nil
}
