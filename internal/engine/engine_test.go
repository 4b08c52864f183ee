package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lmoretti/stride/internal/session"
	"github.com/lmoretti/stride/internal/workflow"
)

func twoNodeDefinition(startNeedsApproval bool) *workflow.Definition {
	return &workflow.Definition{
		Name:        "two-node",
		Description: "start then end",
		Workflow: workflow.Tree{
			Goal: "test",
			Root: "start",
			Tree: map[string]*workflow.Node{
				"start": {
					Goal:             "begin ${{ inputs.task_description }}",
					NextAllowedNodes: []string{"end"},
					NeedsApproval:    startNeedsApproval,
					AcceptanceCriteria: workflow.CriteriaList{
						{Name: "understood", Description: "the task is understood"},
						{Name: "planned", Description: "a plan exists"},
					},
				},
				"end": {Goal: "finish"},
			},
		},
	}
}

func newFixture(t *testing.T, def *workflow.Definition) (*Engine, *session.Store, *session.Session) {
	t.Helper()
	store := session.NewStore()
	loader := workflow.NewLoader(t.TempDir())
	s := store.Create("client-1", "the task", def, "two-node.yaml")
	store.Update(s.SessionID, func(live *session.Session) { live.Definition = def })
	return New(store, loader), store, s
}

func TestValidateTransition(t *testing.T) {
	def := twoNodeDefinition(false)

	tests := []struct {
		name        string
		currentNode string
		target      string
		approval    bool
		wantOK      bool
		wantHint    string
	}{
		{"allowed without approval", "start", "end", false, true, ""},
		{"unknown current node", "ghost", "end", false, false, "ghost"},
		{"unknown target", "start", "nowhere", false, false, "nowhere"},
		{"target not in allowed set", "end", "start", false, false, "allowed next nodes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &session.Session{CurrentNode: tt.currentNode}
			ok, reason := ValidateTransition(s, def, tt.target, tt.approval)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v (reason: %s)", ok, tt.wantOK, reason)
			}
			if !ok && !strings.Contains(reason, tt.wantHint) {
				t.Errorf("reason %q does not mention %q", reason, tt.wantHint)
			}
		})
	}
}

func TestValidateTransitionApproval(t *testing.T) {
	def := twoNodeDefinition(true)
	s := &session.Session{CurrentNode: "start"}

	ok, reason := ValidateTransition(s, def, "end", false)
	if ok {
		t.Fatal("approval-gated transition allowed without approval")
	}
	if !strings.Contains(reason, "approval") {
		t.Errorf("reason %q does not mention approval", reason)
	}

	ok, _ = ValidateTransition(s, def, "end", true)
	if !ok {
		t.Error("approval-gated transition refused despite approval")
	}
}

func TestValidateTransitionTerminalNeverBlocksOnApproval(t *testing.T) {
	// A terminal node's approval flag is irrelevant: with no outgoing
	// edges there is nothing to approve. Validation should fail on the
	// allowed set, not on approval.
	def := twoNodeDefinition(false)
	def.Node("end").NeedsApproval = true
	s := &session.Session{CurrentNode: "end"}

	ok, reason := ValidateTransition(s, def, "start", false)
	if ok {
		t.Fatal("transition from terminal node should fail on allowed set")
	}
	if strings.Contains(reason, "approval") {
		t.Errorf("terminal node blocked on approval: %s", reason)
	}
}

func TestExecuteTransition(t *testing.T) {
	def := twoNodeDefinition(false)
	eng, store, s := newFixture(t, def)

	outputs := map[string]any{"summary": "analyzed it"}
	if !eng.ExecuteTransition(s.SessionID, def, "end", outputs, false) {
		t.Fatal("ExecuteTransition returned false for a valid transition")
	}

	got := store.Get(s.SessionID)
	if got.CurrentNode != "end" {
		t.Errorf("CurrentNode = %q", got.CurrentNode)
	}
	if got.Status != session.StatusRunning {
		t.Errorf("Status = %q", got.Status)
	}
	// Outputs land on the departing node, not the target.
	if got.NodeOutputs["start"]["summary"] != "analyzed it" {
		t.Errorf("NodeOutputs = %v", got.NodeOutputs)
	}
	if got.NodeHistory[len(got.NodeHistory)-1] != "end" {
		t.Errorf("NodeHistory = %v", got.NodeHistory)
	}
	// The new node's goal is logged.
	if !strings.Contains(strings.Join(got.Log, "\n"), "finish") {
		t.Errorf("goal not logged: %v", got.Log)
	}
}

func TestExecuteTransitionRefusalDoesNotMutate(t *testing.T) {
	def := twoNodeDefinition(true)
	eng, store, s := newFixture(t, def)

	// validate says no, so execute must also refuse and must not touch
	// current node or history.
	if ok, _ := ValidateTransition(store.Get(s.SessionID), def, "end", false); ok {
		t.Fatal("precondition: transition should be blocked on approval")
	}
	if eng.ExecuteTransition(s.SessionID, def, "end", map[string]any{"x": 1}, false) {
		t.Fatal("ExecuteTransition succeeded despite failing validation")
	}

	got := store.Get(s.SessionID)
	if got.CurrentNode != "start" {
		t.Errorf("CurrentNode mutated to %q", got.CurrentNode)
	}
	if len(got.NodeHistory) != 1 {
		t.Errorf("NodeHistory mutated: %v", got.NodeHistory)
	}
	if len(got.NodeOutputs) != 0 {
		t.Errorf("outputs recorded on refused transition: %v", got.NodeOutputs)
	}
	// The refusal itself is logged.
	if !strings.Contains(strings.Join(got.Log, "\n"), "refused") {
		t.Errorf("refusal not logged: %v", got.Log)
	}
}

func TestExecuteTransitionMissingSession(t *testing.T) {
	def := twoNodeDefinition(false)
	eng := New(session.NewStore(), workflow.NewLoader(t.TempDir()))
	if eng.ExecuteTransition("missing", def, "end", nil, false) {
		t.Error("ExecuteTransition on missing session should return false")
	}
}

func TestCheckCompletionCriteria(t *testing.T) {
	def := twoNodeDefinition(false)
	eng, store, s := newFixture(t, def)

	allMet, missing := eng.CheckCompletionCriteria(s.SessionID, def, map[string]string{
		"understood": "read the code in internal/parser",
	})
	if allMet {
		t.Fatal("criteria reported met with one missing")
	}
	if len(missing) != 1 || missing[0] != "planned" {
		t.Errorf("missing = %v, want [planned]", missing)
	}

	log := strings.Join(store.Get(s.SessionID).Log, "\n")
	if !strings.Contains(log, `"understood" satisfied`) || !strings.Contains(log, `"planned" missing`) {
		t.Errorf("criteria outcomes not logged: %s", log)
	}

	allMet, missing = eng.CheckCompletionCriteria(s.SessionID, def, map[string]string{
		"understood": "yes",
		"planned":    "plan in blueprint.md",
	})
	if !allMet || len(missing) != 0 {
		t.Errorf("allMet = %v, missing = %v", allMet, missing)
	}
}

const subWorkflowYAML = `
name: audit
description: audit sub-workflow
workflow:
  goal: audit everything
  root: collect
  tree:
    collect:
      goal: gather evidence
      next_allowed_nodes: [conclude]
    conclude:
      goal: write the verdict
`

func TestWorkflowTransitionAndReturn(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "audit.yaml"), []byte(subWorkflowYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	def := twoNodeDefinition(false)
	store := session.NewStore()
	loader := workflow.NewLoader(dir)
	eng := New(store, loader)

	s := store.Create("client-1", "task", def, filepath.Join(dir, "main.yaml"))
	store.Update(s.SessionID, func(live *session.Session) {
		live.Definition = def
		live.RecordOutputs("start", map[string]any{"note": "pre-switch"})
	})

	ok, reason := eng.ExecuteWorkflowTransition(s.SessionID, "audit.yaml")
	if !ok {
		t.Fatalf("ExecuteWorkflowTransition: %s", reason)
	}

	got := store.Get(s.SessionID)
	if got.WorkflowName != "audit" {
		t.Errorf("WorkflowName = %q", got.WorkflowName)
	}
	if got.CurrentNode != "collect" {
		t.Errorf("CurrentNode = %q", got.CurrentNode)
	}
	if len(got.WorkflowStack) != 1 {
		t.Fatalf("WorkflowStack = %v", got.WorkflowStack)
	}
	if len(got.NodeOutputs) != 0 {
		t.Errorf("sub-workflow should start with fresh outputs: %v", got.NodeOutputs)
	}

	// Work inside the sub-workflow, then return.
	if !eng.ExecuteTransition(s.SessionID, got.Definition, "conclude", map[string]any{"verdict": "pass"}, false) {
		t.Fatal("transition inside sub-workflow failed")
	}

	ok, reason = eng.ReturnFromWorkflow(s.SessionID)
	if !ok {
		t.Fatalf("ReturnFromWorkflow: %s", reason)
	}

	got = store.Get(s.SessionID)
	if got.WorkflowName != "two-node" || got.CurrentNode != "start" {
		t.Errorf("caller context not restored: %s@%s", got.WorkflowName, got.CurrentNode)
	}
	if len(got.WorkflowStack) != 0 {
		t.Errorf("stack not popped: %v", got.WorkflowStack)
	}
	// The caller's own outputs survive, and the sub-workflow's outputs
	// are recorded under its name.
	if got.NodeOutputs["start"]["note"] != "pre-switch" {
		t.Errorf("caller outputs lost: %v", got.NodeOutputs)
	}
	if got.NodeOutputs["audit"]["collect.verdict"] != "pass" {
		t.Errorf("sub-workflow outputs not recorded: %v", got.NodeOutputs)
	}
}

func TestReturnFromWorkflowEmptyStack(t *testing.T) {
	def := twoNodeDefinition(false)
	eng, _, s := newFixture(t, def)

	ok, reason := eng.ReturnFromWorkflow(s.SessionID)
	if ok {
		t.Fatal("ReturnFromWorkflow succeeded with empty stack")
	}
	if !strings.Contains(reason, "stack") {
		t.Errorf("reason = %q", reason)
	}
}
