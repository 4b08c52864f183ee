// Package engine validates and executes transitions between workflow
// nodes for a session. It never owns session state: every mutation is
// routed through the session store so locking and sync invariants hold.
//
// Validation failures are values, not errors — the tool layer renders
// the reason back to the agent as guidance text.
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lmoretti/stride/internal/session"
	"github.com/lmoretti/stride/internal/workflow"
)

// Engine walks workflow definitions on behalf of sessions.
type Engine struct {
	store  *session.Store
	loader *workflow.Loader
}

// New creates an engine bound to the given store and loader.
func New(store *session.Store, loader *workflow.Loader) *Engine {
	return &Engine{store: store, loader: loader}
}

// ValidateTransition checks whether the session may move from its
// current node to target. It returns (false, reason) when:
//   - the current node is absent from the definition
//   - the target is absent from the definition
//   - the target is not in the current node's allowed set (the reason
//     lists the allowed set)
//   - the current node requires approval and userApproval is false (the
//     reason explains the exact approval contract)
//
// Approval only gates transitions away from nodes that still have
// outgoing edges — a terminal node never blocks on approval.
func ValidateTransition(s *session.Session, def *workflow.Definition, target string, userApproval bool) (bool, string) {
	current := def.Node(s.CurrentNode)
	if current == nil {
		return false, fmt.Sprintf("current node %q does not exist in workflow %q", s.CurrentNode, def.Name)
	}

	if def.Node(target) == nil {
		return false, fmt.Sprintf("target node %q does not exist in workflow %q", target, def.Name)
	}

	if !current.Allows(target) {
		allowed := append([]string(nil), current.NextAllowedNodes...)
		sort.Strings(allowed)
		return false, fmt.Sprintf(
			"transition from %q to %q is not allowed; allowed next nodes: [%s]",
			s.CurrentNode, target, strings.Join(allowed, ", "),
		)
	}

	if current.NeedsApproval && !current.IsTerminal() && !userApproval {
		return false, fmt.Sprintf(
			"node %q requires explicit user approval before leaving it: ask the user to confirm, "+
				"then repeat the request with {\"choose\": %q, \"user_approval\": true}",
			s.CurrentNode, target,
		)
	}

	return true, fmt.Sprintf("transition from %q to %q is allowed", s.CurrentNode, target)
}

// ValidateTransition is the method form used by the tool layer.
func (e *Engine) ValidateTransition(s *session.Session, def *workflow.Definition, target string, userApproval bool) (bool, string) {
	return ValidateTransition(s, def, target, userApproval)
}

// ExecuteTransition re-validates the transition (it never trusts a
// pre-check), records any captured outputs against the departing node,
// advances the current node, appends to node history, marks the session
// running, and logs the new node's goal. On any validation failure it
// logs a failure line and returns false instead of erroring, so the
// caller can render a user-facing message.
func (e *Engine) ExecuteTransition(sessionID string, def *workflow.Definition, target string, outputs map[string]any, userApproval bool) bool {
	executed := false
	found := e.store.Update(sessionID, func(s *session.Session) {
		ok, reason := ValidateTransition(s, def, target, userApproval)
		if !ok {
			s.AddLog("transition to %q refused: %s", target, reason)
			return
		}

		departing := s.CurrentNode
		s.RecordOutputs(departing, outputs)

		s.CurrentNode = target
		s.NodeHistory = append(s.NodeHistory, target)
		s.Status = session.StatusRunning

		goal := def.Node(target).Goal
		s.AddLog("entered node %q: %s", target, workflow.SubstituteInputs(goal, s.Inputs))
		executed = true
	})
	return found && executed
}

// CheckCompletionCriteria checks the current node's acceptance criteria
// against caller-supplied evidence. A criterion is met only if the
// evidence mapping contains its key; the evidence text itself is never
// verified — this is an agent-honesty contract, not a proof system.
// Each satisfied and missing criterion is logged on the session.
func (e *Engine) CheckCompletionCriteria(sessionID string, def *workflow.Definition, evidence map[string]string) (bool, []string) {
	var missing []string
	e.store.Update(sessionID, func(s *session.Session) {
		node := def.Node(s.CurrentNode)
		if node == nil {
			return
		}
		for _, crit := range node.AcceptanceCriteria {
			if _, ok := evidence[crit.Name]; ok {
				s.AddLog("criterion %q satisfied on node %q", crit.Name, s.CurrentNode)
			} else {
				s.AddLog("criterion %q missing on node %q", crit.Name, s.CurrentNode)
				missing = append(missing, crit.Name)
			}
		}
	})
	return len(missing) == 0, missing
}

// ExecuteWorkflowTransition switches the session's active definition to
// an external workflow mid-run, pushing the caller's context onto the
// workflow stack for a later ReturnFromWorkflow. This is distinct from
// composition: no tree splicing happens, the session literally starts
// walking a different definition.
//
// The external workflow is loaded and composed before any store lock is
// taken — the load's file I/O must never run under the session lock.
func (e *Engine) ExecuteWorkflowTransition(sessionID, workflowPath string) (bool, string) {
	snap := e.store.Get(sessionID)
	if snap == nil {
		return false, fmt.Sprintf("session %q not found", sessionID)
	}

	ext, err := e.loader.LoadExternal(workflowPath, snap.WorkflowFile)
	if err != nil {
		return false, err.Error()
	}
	composed, err := workflow.Compose(ext, e.loader)
	if err != nil {
		return false, err.Error()
	}

	ok := e.store.Update(sessionID, func(s *session.Session) {
		frame := session.StackFrame{
			WorkflowName: s.WorkflowName,
			WorkflowFile: s.WorkflowFile,
			Node:         s.CurrentNode,
			NodeOutputs:  s.NodeOutputs,
			Definition:   s.Definition,
		}
		s.WorkflowStack = append(s.WorkflowStack, frame)

		s.WorkflowName = composed.Name
		s.WorkflowFile = composed.Source
		s.Definition = composed
		s.CurrentNode = composed.Workflow.Root
		s.NodeHistory = append(s.NodeHistory, composed.Workflow.Root)
		s.NodeOutputs = make(map[string]map[string]any)
		s.Status = session.StatusRunning
		s.AddLog("switched to workflow %q at node %q", composed.Name, composed.Workflow.Root)
	})
	if !ok {
		return false, fmt.Sprintf("session %q not found", sessionID)
	}
	return true, fmt.Sprintf("now running workflow %q", composed.Name)
}

// ReturnFromWorkflow pops the workflow stack and restores the caller's
// context. The completed sub-workflow's outputs are recorded on the
// caller under the sub-workflow's name, flattened to "<node>.<key>"
// entries.
func (e *Engine) ReturnFromWorkflow(sessionID string) (bool, string) {
	reason := ""
	popped := false
	ok := e.store.Update(sessionID, func(s *session.Session) {
		if len(s.WorkflowStack) == 0 {
			reason = "workflow stack is empty — the session is not inside a sub-workflow"
			return
		}

		subName := s.WorkflowName
		subOutputs := flattenOutputs(s.NodeOutputs)

		frame := s.WorkflowStack[len(s.WorkflowStack)-1]
		s.WorkflowStack = s.WorkflowStack[:len(s.WorkflowStack)-1]

		s.WorkflowName = frame.WorkflowName
		s.WorkflowFile = frame.WorkflowFile
		s.Definition = frame.Definition
		s.CurrentNode = frame.Node
		s.NodeOutputs = frame.NodeOutputs
		if s.NodeOutputs == nil {
			s.NodeOutputs = make(map[string]map[string]any)
		}
		s.RecordOutputs(subName, subOutputs)
		s.NodeHistory = append(s.NodeHistory, frame.Node)
		s.AddLog("returned from workflow %q to node %q", subName, frame.Node)

		reason = fmt.Sprintf("returned to workflow %q at node %q", frame.WorkflowName, frame.Node)
		popped = true
	})
	if !ok {
		return false, fmt.Sprintf("session %q not found", sessionID)
	}
	return popped, reason
}

// flattenOutputs merges per-node output maps into one mapping keyed
// "<node>.<key>", so a caller workflow keeps the full picture without
// nested structures.
func flattenOutputs(nodeOutputs map[string]map[string]any) map[string]any {
	if len(nodeOutputs) == 0 {
		return nil
	}
	flat := make(map[string]any)
	for node, vals := range nodeOutputs {
		for k, v := range vals {
			flat[node+"."+k] = v
		}
	}
	return flat
}
