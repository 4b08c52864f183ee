// Package guidance renders engine and store state into the markdown
// text the driving agent reads. It is stateless: every function takes
// snapshots and returns a string, so the tool layer stays a thin
// dispatcher.
//
// Design principles:
// - SRP: formatting only — no session mutation, no I/O
// - Errors from lower layers become guidance sections, never exceptions
package guidance

import (
	"fmt"
	"strings"

	"github.com/lmoretti/stride/internal/session"
	"github.com/lmoretti/stride/internal/workflow"
)

// ApprovalPayload is the exact context payload an agent must send to
// leave a node that requires approval.
func ApprovalPayload(target string) string {
	return fmt.Sprintf(`{"choose": %q, "user_approval": true}`, target)
}

// ChoicePayload is the context payload for a plain transition.
func ChoicePayload(target string) string {
	return fmt.Sprintf(`{"choose": %q}`, target)
}

// NodeGuidance is the main status rendering: the current goal with
// input placeholders substituted, the node's acceptance criteria, the
// available next steps (flagging approval gates with the exact payload
// to send), and a dump of session state.
func NodeGuidance(s *session.Session, def *workflow.Definition) string {
	node := def.Node(s.CurrentNode)
	if node == nil {
		return fmt.Sprintf(
			"# Session Error\n\nCurrent node %q does not exist in workflow %q. "+
				"The session state is inconsistent; start a new session.",
			s.CurrentNode, def.Name,
		)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Workflow: %s\n\n", def.Name)
	fmt.Fprintf(&b, "## Current Node: %s\n\n", s.CurrentNode)
	fmt.Fprintf(&b, "**Goal:** %s\n\n", workflow.SubstituteInputs(node.Goal, s.Inputs))

	if len(node.AcceptanceCriteria) > 0 {
		b.WriteString("## Acceptance Criteria\n\n")
		b.WriteString("Provide evidence for each criterion (as `criteria_evidence`) before moving on:\n\n")
		for _, crit := range node.AcceptanceCriteria {
			fmt.Fprintf(&b, "- **%s**: %s\n", crit.Name, crit.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString(nextSteps(s, node, def))
	b.WriteString(SessionDump(s))
	return b.String()
}

// nextSteps renders the allowed transitions out of the current node.
func nextSteps(s *session.Session, node *workflow.Node, def *workflow.Definition) string {
	var b strings.Builder
	b.WriteString("## Next Steps\n\n")

	if node.IsTerminal() {
		b.WriteString("This is a terminal node. The workflow is complete.\n\n")
		return b.String()
	}

	for _, target := range node.NextAllowedNodes {
		next := def.Node(target)
		goal := ""
		if next != nil {
			goal = workflow.SubstituteInputs(next.Goal, s.Inputs)
		}
		fmt.Fprintf(&b, "- **%s** — %s\n", target, goal)
		if node.NeedsApproval {
			fmt.Fprintf(&b, "  Requires user approval. After the user confirms, send: `%s`\n", ApprovalPayload(target))
		} else {
			fmt.Fprintf(&b, "  To choose it, send: `%s`\n", ChoicePayload(target))
		}
	}
	b.WriteString("\n")
	return b.String()
}

// SessionDump renders the session's state as a markdown section.
func SessionDump(s *session.Session) string {
	var b strings.Builder
	b.WriteString("## Session State\n\n")
	fmt.Fprintf(&b, "- **Session ID:** `%s`\n", s.SessionID)
	fmt.Fprintf(&b, "- **Status:** %s\n", s.Status)
	fmt.Fprintf(&b, "- **Workflow file:** %s\n", s.WorkflowFile)
	if len(s.NodeHistory) > 0 {
		fmt.Fprintf(&b, "- **Path so far:** %s\n", strings.Join(s.NodeHistory, " → "))
	}
	if len(s.WorkflowStack) > 0 {
		fmt.Fprintf(&b, "- **Workflow stack depth:** %d\n", len(s.WorkflowStack))
	}

	if len(s.Items) > 0 {
		b.WriteString("\n### Items\n\n")
		for _, item := range s.Items {
			fmt.Fprintf(&b, "- [%d] %s — %s\n", item.ID, item.Description, item.Status)
		}
	}

	if len(s.Log) > 0 {
		b.WriteString("\n### Recent Log\n\n")
		start := len(s.Log) - 5
		if start < 0 {
			start = 0
		}
		for _, line := range s.Log[start:] {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// InvalidTransition renders a refused transition with the reason and
// the guidance for the current node, so the agent can self-correct in
// one read.
func InvalidTransition(reason string, s *session.Session, def *workflow.Definition) string {
	return fmt.Sprintf("# Invalid Transition\n\n%s\n\n---\n\n%s", reason, NodeGuidance(s, def))
}

// ApprovalRequired renders the approval gate with the exact payload the
// agent must send after the user confirms.
func ApprovalRequired(currentNode, target string, s *session.Session, def *workflow.Definition) string {
	var b strings.Builder
	b.WriteString("# Approval Required\n\n")
	fmt.Fprintf(&b, "Node %q requires explicit user approval before leaving it.\n\n", currentNode)
	b.WriteString("1. Present the plan and this node's outcomes to the user.\n")
	b.WriteString("2. Wait for an explicit confirmation.\n")
	fmt.Fprintf(&b, "3. Repeat the call with context: `%s`\n\n---\n\n", ApprovalPayload(target))
	b.WriteString(NodeGuidance(s, def))
	return b.String()
}

// MissingChoice renders the "no target selected" guidance listing the
// options and the payload format.
func MissingChoice(s *session.Session, def *workflow.Definition) string {
	return fmt.Sprintf(
		"# Missing Choice\n\nNo target node was selected. Send a context payload like `%s` "+
			"(or the legacy string form `choose: <node>`), picking one of the next steps below.\n\n---\n\n%s",
		ChoicePayload("<node>"), NodeGuidance(s, def),
	)
}

// MissingCriteria renders the unmet acceptance criteria that block a
// transition.
func MissingCriteria(missing []string, s *session.Session, def *workflow.Definition) string {
	var b strings.Builder
	b.WriteString("# Acceptance Criteria Not Met\n\n")
	b.WriteString("Provide evidence for the following criteria via `criteria_evidence`, then retry:\n\n")
	for _, name := range missing {
		desc := ""
		if node := def.Node(s.CurrentNode); node != nil {
			desc, _ = node.AcceptanceCriteria.Get(name)
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", name, desc)
	}
	b.WriteString("\n---\n\n")
	b.WriteString(NodeGuidance(s, def))
	return b.String()
}

// WorkflowComplete renders the terminal-node message.
func WorkflowComplete(s *session.Session) string {
	return fmt.Sprintf(
		"# Workflow Complete\n\nWorkflow %q finished at node %q.\n\n%s",
		s.WorkflowName, s.CurrentNode, SessionDump(s),
	)
}
