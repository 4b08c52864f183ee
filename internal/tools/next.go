package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lmoretti/stride/internal/engine"
	"github.com/lmoretti/stride/internal/guidance"
	"github.com/lmoretti/stride/internal/session"
	"github.com/lmoretti/stride/internal/syncer"
	"github.com/lmoretti/stride/internal/workflow"
)

// NextTool handles the wf_next MCP tool: the main advance-the-session
// operation. It parses the context payload, checks acceptance criteria,
// validates and executes the requested transition, and renders the new
// node's guidance. Every refusal is rendered as guidance text, never as
// a raw error.
type NextTool struct {
	store  *session.Store
	loader *workflow.Loader
	engine *engine.Engine
	sync   *syncer.Syncer
}

// NewNextTool creates a NextTool with its dependencies.
func NewNextTool(store *session.Store, loader *workflow.Loader, eng *engine.Engine, sync *syncer.Syncer) *NextTool {
	return &NextTool{store: store, loader: loader, engine: eng, sync: sync}
}

// Definition returns the MCP tool definition for registration.
func (t *NextTool) Definition() mcp.Tool {
	return mcp.NewTool("wf_next",
		mcp.WithDescription(
			"Advance a workflow session. The context payload selects the next "+
				"node and carries acceptance-criteria evidence: either a JSON "+
				"object {\"choose\": <node>, \"criteria_evidence\": {...}, "+
				"\"user_approval\": <bool>} or the legacy string \"choose: <node>\". "+
				"The payload may instead set \"workflow\": <path> to switch to an "+
				"external workflow, or \"return_from_workflow\": true to return "+
				"to the caller.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("The session to advance, as returned by wf_start."),
		),
		mcp.WithString("context",
			mcp.Description("Context payload (JSON object or legacy 'choose: <node>' string)."),
		),
	)
}

// Handle processes the wf_next tool call.
func (t *NextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contextText := req.GetString("context", "")
	sessionID := resolveSessionID(req.GetString("session_id", ""), contextText)
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required. Start a session with wf_start first."), nil
	}

	s := t.store.Get(sessionID)
	if s == nil {
		return mcp.NewToolResultError(fmt.Sprintf(
			"Session %q not found. It may have been cleaned up — use wf_resume to restore "+
				"cached sessions, or wf_start to begin a new one.", sessionID)), nil
	}

	def := definitionFor(s, t.store, t.loader)
	if def == nil {
		return mcp.NewToolResultError(fmt.Sprintf(
			"Session %q has no loadable workflow definition (file %q). Start a new session.",
			sessionID, s.WorkflowFile)), nil
	}

	payload := ParsePayload(contextText)

	switch {
	case payload.Return:
		return t.returnFromWorkflow(sessionID)
	case payload.Workflow != "":
		return t.switchWorkflow(sessionID, payload.Workflow)
	case payload.Choose == "":
		return t.withoutChoice(s, def)
	}

	return t.transition(s, def, payload)
}

// withoutChoice handles a call that names no target: a terminal node
// completes (or returns to the caller workflow), anything else is a
// missing choice.
func (t *NextTool) withoutChoice(s *session.Session, def *workflow.Definition) (*mcp.CallToolResult, error) {
	node := def.Node(s.CurrentNode)
	if node != nil && node.IsTerminal() {
		if len(s.WorkflowStack) > 0 {
			return t.returnFromWorkflow(s.SessionID)
		}
		t.store.Update(s.SessionID, func(live *session.Session) {
			live.Status = session.StatusCompleted
			live.AddLog("workflow %q completed at node %q", live.WorkflowName, live.CurrentNode)
		})
		done := t.store.Get(s.SessionID)
		t.sync.Sync(done)
		return mcp.NewToolResultText(guidance.WorkflowComplete(done)), nil
	}
	return mcp.NewToolResultText(guidance.MissingChoice(s, def)), nil
}

// transition runs the criteria check, validation, and execution for a
// normal node-to-node move.
func (t *NextTool) transition(s *session.Session, def *workflow.Definition, payload Payload) (*mcp.CallToolResult, error) {
	current := def.Node(s.CurrentNode)

	if current != nil && len(current.AcceptanceCriteria) > 0 {
		allMet, missing := t.engine.CheckCompletionCriteria(s.SessionID, def, payload.CriteriaEvidence)
		if !allMet {
			fresh := t.store.Get(s.SessionID)
			t.sync.Sync(fresh)
			return mcp.NewToolResultText(guidance.MissingCriteria(missing, fresh, def)), nil
		}
	}

	if ok, reason := engine.ValidateTransition(s, def, payload.Choose, payload.UserApproval); !ok {
		if current != nil && current.NeedsApproval && !current.IsTerminal() &&
			!payload.UserApproval && current.Allows(payload.Choose) {
			t.store.Update(s.SessionID, func(live *session.Session) {
				live.Status = session.StatusNeedsPlanApproval
				live.AddLog("approval required before leaving node %q", live.CurrentNode)
			})
			fresh := t.store.Get(s.SessionID)
			t.sync.Sync(fresh)
			return mcp.NewToolResultText(guidance.ApprovalRequired(s.CurrentNode, payload.Choose, fresh, def)), nil
		}
		return mcp.NewToolResultText(guidance.InvalidTransition(reason, s, def)), nil
	}

	outputs := make(map[string]any, len(payload.CriteriaEvidence))
	for k, v := range payload.CriteriaEvidence {
		outputs[k] = v
	}
	if !t.engine.ExecuteTransition(s.SessionID, def, payload.Choose, outputs, payload.UserApproval) {
		fresh := t.store.Get(s.SessionID)
		return mcp.NewToolResultText(guidance.InvalidTransition(
			fmt.Sprintf("transition to %q was refused", payload.Choose), fresh, def)), nil
	}

	fresh := t.store.Get(s.SessionID)
	if arrived := def.Node(fresh.CurrentNode); arrived != nil {
		switch {
		case arrived.IsTerminal() && len(fresh.WorkflowStack) == 0:
			t.store.Update(s.SessionID, func(live *session.Session) {
				live.Status = session.StatusCompleted
				live.AddLog("workflow %q completed at node %q", live.WorkflowName, live.CurrentNode)
			})
			done := t.store.Get(s.SessionID)
			t.sync.Sync(done)
			return mcp.NewToolResultText(guidance.WorkflowComplete(done)), nil
		case arrived.NeedsApproval:
			t.store.Update(s.SessionID, func(live *session.Session) {
				live.Status = session.StatusNeedsPlanApproval
			})
			fresh = t.store.Get(s.SessionID)
		}
	}

	t.sync.Sync(fresh)
	return mcp.NewToolResultText(guidance.NodeGuidance(fresh, def)), nil
}

// switchWorkflow performs the stack-pushing cross-workflow transition.
func (t *NextTool) switchWorkflow(sessionID, path string) (*mcp.CallToolResult, error) {
	ok, reason := t.engine.ExecuteWorkflowTransition(sessionID, path)
	fresh := t.store.Get(sessionID)
	if !ok {
		if fresh == nil {
			return mcp.NewToolResultError(reason), nil
		}
		def := definitionFor(fresh, t.store, t.loader)
		if def == nil {
			return mcp.NewToolResultError(reason), nil
		}
		return mcp.NewToolResultText(guidance.InvalidTransition(reason, fresh, def)), nil
	}
	t.sync.Sync(fresh)
	return mcp.NewToolResultText(guidance.NodeGuidance(fresh, fresh.Definition)), nil
}

// returnFromWorkflow pops the workflow stack back to the caller.
func (t *NextTool) returnFromWorkflow(sessionID string) (*mcp.CallToolResult, error) {
	ok, reason := t.engine.ReturnFromWorkflow(sessionID)
	fresh := t.store.Get(sessionID)
	if fresh == nil {
		return mcp.NewToolResultError(reason), nil
	}
	def := definitionFor(fresh, t.store, t.loader)
	if !ok {
		if def == nil {
			return mcp.NewToolResultError(reason), nil
		}
		return mcp.NewToolResultText(guidance.InvalidTransition(reason, fresh, def)), nil
	}
	t.sync.Sync(fresh)
	return mcp.NewToolResultText(guidance.NodeGuidance(fresh, def)), nil
}
