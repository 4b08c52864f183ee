package workflow

import (
	"testing"
)

const parentWorkflow = `
name: parent
description: parent workflow
workflow:
  goal: parent goal
  root: start
  tree:
    start:
      goal: begin
      next_allowed_nodes: [review]
    review:
      goal: run the review sub-workflow
      workflow: child.yaml
      next_allowed_nodes: [finish]
    finish:
      goal: done
`

const childWorkflow = `
name: child
description: child workflow
workflow:
  goal: child goal
  root: inspect
  tree:
    inspect:
      goal: look closely
      next_allowed_nodes: [report]
    report:
      goal: write it up
`

func TestCompose(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "child.yaml", childWorkflow)
	parentPath := writeWorkflow(t, dir, "parent.yaml", parentWorkflow)

	loader := NewLoader(dir)
	def, err := loader.Load(parentPath)
	if err != nil {
		t.Fatal(err)
	}

	composed, err := Compose(def, loader)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	// The call site now enters the expansion.
	review := composed.Node("review")
	if review == nil {
		t.Fatal("review node missing after composition")
	}
	if review.IsWorkflowNode() {
		t.Error("review should no longer be a workflow node")
	}
	if len(review.NextAllowedNodes) != 1 || review.NextAllowedNodes[0] != "review_inspect" {
		t.Errorf("review.next = %v, want [review_inspect]", review.NextAllowedNodes)
	}

	// Internal transitions are rewritten to prefixed names.
	inspect := composed.Node("review_inspect")
	if inspect == nil {
		t.Fatal("review_inspect missing")
	}
	if len(inspect.NextAllowedNodes) != 1 || inspect.NextAllowedNodes[0] != "review_report" {
		t.Errorf("review_inspect.next = %v, want [review_report]", inspect.NextAllowedNodes)
	}

	// The external terminal node is spliced onto the call site's successors.
	report := composed.Node("review_report")
	if report == nil {
		t.Fatal("review_report missing")
	}
	if len(report.NextAllowedNodes) != 1 || report.NextAllowedNodes[0] != "finish" {
		t.Errorf("review_report.next = %v, want [finish]", report.NextAllowedNodes)
	}

	// Every transition target must exist in the flattened tree.
	if err := composed.Validate(); err != nil {
		t.Errorf("composed definition invalid: %v", err)
	}
}

func TestComposeDoesNotMutateInput(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "child.yaml", childWorkflow)
	parentPath := writeWorkflow(t, dir, "parent.yaml", parentWorkflow)

	loader := NewLoader(dir)
	def, err := loader.Load(parentPath)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Compose(def, loader); err != nil {
		t.Fatal(err)
	}

	if !def.Node("review").IsWorkflowNode() {
		t.Error("Compose mutated the loaded definition")
	}
	if len(def.Workflow.Tree) != 3 {
		t.Errorf("loaded tree grew to %d nodes", len(def.Workflow.Tree))
	}
}

const selfWorkflow = `
name: looper
description: includes itself
workflow:
  goal: loop goal
  root: start
  tree:
    start:
      goal: begin
      next_allowed_nodes: [again]
    again:
      goal: recurse
      workflow: looper.yaml
      next_allowed_nodes: [stop]
    stop:
      goal: done
`

func TestComposeCycleSafe(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkflow(t, dir, "looper.yaml", selfWorkflow)

	loader := NewLoader(dir)
	def, err := loader.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	// A workflow that includes itself must terminate expansion and leave
	// the offending node unexpanded.
	composed, err := Compose(def, loader)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	again := composed.Node("again")
	if again == nil {
		t.Fatal("again node missing")
	}
	if !again.IsWorkflowNode() {
		t.Error("cyclic call site should be left unexpanded")
	}
}

const diamondWorkflow = `
name: diamond
description: references the same sub-workflow twice
workflow:
  goal: diamond goal
  root: first
  tree:
    first:
      goal: first pass
      workflow: child.yaml
      next_allowed_nodes: [second]
    second:
      goal: second pass
      workflow: child.yaml
      next_allowed_nodes: [finish]
    finish:
      goal: done
`

func TestComposeDiamond(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "child.yaml", childWorkflow)
	path := writeWorkflow(t, dir, "diamond.yaml", diamondWorkflow)

	loader := NewLoader(dir)
	def, err := loader.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	// Two independent call sites referencing the same sub-workflow are
	// both expanded: only true recursion stops expansion.
	composed, err := Compose(def, loader)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	for _, name := range []string{"first", "second"} {
		if composed.Node(name).IsWorkflowNode() {
			t.Errorf("call site %q left unexpanded", name)
		}
	}
	for _, name := range []string{"first_inspect", "first_report", "second_inspect", "second_report"} {
		if composed.Node(name) == nil {
			t.Errorf("expanded node %q missing", name)
		}
	}
	if err := composed.Validate(); err != nil {
		t.Errorf("composed definition invalid: %v", err)
	}
}

const chainAWorkflow = `
name: chain-a
description: includes chain-b
workflow:
  goal: a
  root: a1
  tree:
    a1:
      goal: step
      workflow: chain-b.yaml
      next_allowed_nodes: [a2]
    a2:
      goal: end
`

const chainBWorkflow = `
name: chain-b
description: includes chain-a
workflow:
  goal: b
  root: b1
  tree:
    b1:
      goal: step
      workflow: chain-a.yaml
      next_allowed_nodes: [b2]
    b2:
      goal: end
`

func TestComposeIndirectCycle(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "chain-a.yaml", chainAWorkflow)
	writeWorkflow(t, dir, "chain-b.yaml", chainBWorkflow)

	loader := NewLoader(dir)
	def, err := loader.LoadByName("chain-a")
	if err != nil {
		t.Fatal(err)
	}

	composed, err := Compose(def, loader)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	// chain-b was spliced in once; its back-reference to chain-a stays
	// unexpanded.
	if composed.Node("a1").IsWorkflowNode() {
		t.Error("a1 should have been expanded")
	}
	inner := composed.Node("a1_b1")
	if inner == nil {
		t.Fatal("a1_b1 missing")
	}
	if !inner.IsWorkflowNode() {
		t.Error("indirect cycle back to chain-a should stay unexpanded")
	}
}

func TestComposeMissingExternal(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkflow(t, dir, "parent.yaml", parentWorkflow)

	loader := NewLoader(dir)
	def, err := loader.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Compose(def, loader); err == nil {
		t.Fatal("expected error for missing external workflow")
	}
}

func TestSubstituteInputs(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		inputs map[string]any
		want   string
	}{
		{
			name:   "simple",
			text:   "Deliver ${{ inputs.task_description }} now",
			inputs: map[string]any{"task_description": "the fix"},
			want:   "Deliver the fix now",
		},
		{
			name:   "tight spacing",
			text:   "${{inputs.x}}",
			inputs: map[string]any{"x": "y"},
			want:   "y",
		},
		{
			name:   "non-string value",
			text:   "retries: ${{ inputs.count }}",
			inputs: map[string]any{"count": 3},
			want:   "retries: 3",
		},
		{
			name:   "unknown placeholder kept",
			text:   "see ${{ inputs.missing }}",
			inputs: map[string]any{"other": 1},
			want:   "see ${{ inputs.missing }}",
		},
		{
			name: "no inputs",
			text: "plain text",
			want: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SubstituteInputs(tt.text, tt.inputs)
			if got != tt.want {
				t.Errorf("SubstituteInputs = %q, want %q", got, tt.want)
			}
		})
	}
}
