// Package resources implements MCP resource handlers for workflow state.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (stride://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lmoretti/stride/internal/session"
	"github.com/lmoretti/stride/internal/workflow"
)

// Handler manages stride resource endpoints.
type Handler struct {
	store  *session.Store
	loader *workflow.Loader
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(store *session.Store, loader *workflow.Loader) *Handler {
	return &Handler{store: store, loader: loader}
}

// SessionsResource returns the MCP resource definition for live sessions.
func (h *Handler) SessionsResource() mcp.Resource {
	return mcp.NewResource(
		"stride://sessions",
		"Workflow Sessions",
		mcp.WithResourceDescription("All live workflow sessions with their current node, status, and history."),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleSessions returns every live session as JSON.
func (h *Handler) HandleSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(h.store.GetAll(), "", "  ")
	if err != nil {
		return errorResource(req.Params.URI, fmt.Sprintf("encoding sessions: %v", err)), nil
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// WorkflowsResource returns the MCP resource definition for the
// available workflow definitions.
func (h *Handler) WorkflowsResource() mcp.Resource {
	return mcp.NewResource(
		"stride://workflows",
		"Workflow Definitions",
		mcp.WithResourceDescription("The loadable workflow definitions: names, descriptions, inputs, and node graphs."),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleWorkflows returns every loadable workflow definition as JSON.
// Invalid files are skipped, matching bulk discovery semantics.
func (h *Handler) HandleWorkflows(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	defs, err := h.loader.LoadAll()
	if err != nil {
		return errorResource(req.Params.URI, fmt.Sprintf("discovering workflows: %v", err)), nil
	}
	data, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return errorResource(req.Params.URI, fmt.Sprintf("encoding workflows: %v", err)), nil
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
