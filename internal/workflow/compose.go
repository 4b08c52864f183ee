package workflow

import (
	"fmt"
	"sort"
)

// --- Workflow composition ---
//
// Composition is a pure tree rewrite performed once, at session-creation
// time: every node that references an external workflow is replaced by
// that workflow's nodes, renamed with a "<callsite>_" prefix to avoid
// collisions, with the external terminal nodes spliced onto the call-site
// node's successors. There is no runtime indirection afterward — the
// session walks a single flattened tree.

// Compose expands all workflow nodes in def into a single flattened
// definition. The input definition is never mutated.
//
// Circular inclusion is cycle-safe: a workflow already on the expansion
// path leading to a call site is left unexpanded there rather than
// recursing forever. Independent call sites referencing the same
// sub-workflow each get their own expansion.
func Compose(def *Definition, loader *Loader) (*Definition, error) {
	out := def.clone()

	// Expansion ancestry per call site: the workflow names spliced on
	// the path leading to that node. Nodes of the top-level tree have
	// the implicit ancestry {def.Name}.
	ancestors := map[string]map[string]bool{}
	// Call sites we have already looked at, including ones deliberately
	// left unexpanded.
	visited := map[string]bool{}

	for {
		name, node := nextWorkflowNode(out, visited)
		if node == nil {
			break
		}
		visited[name] = true

		ext, err := loader.LoadExternal(node.Workflow, out.Source)
		if err != nil {
			return nil, fmt.Errorf("composing node %q: %w", name, err)
		}

		chain := ancestors[name]
		if chain == nil {
			chain = map[string]bool{def.Name: true}
		}
		if chain[ext.Name] {
			// True recursion: this workflow is already on the expansion
			// path leading here. Leave the call site unexpanded.
			continue
		}

		splice(out, name, node, ext)

		for extName := range ext.Workflow.Tree {
			child := make(map[string]bool, len(chain)+1)
			for wf := range chain {
				child[wf] = true
			}
			child[ext.Name] = true
			ancestors[name+"_"+extName] = child
		}
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("composed workflow is inconsistent: %w", err)
	}
	return out, nil
}

// nextWorkflowNode returns an unvisited workflow node in deterministic
// (sorted) order, or nil when none remain.
func nextWorkflowNode(def *Definition, visited map[string]bool) (string, *Node) {
	names := make([]string, 0, len(def.Workflow.Tree))
	for name := range def.Workflow.Tree {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		node := def.Workflow.Tree[name]
		if node != nil && node.IsWorkflowNode() && !visited[name] {
			return name, node
		}
	}
	return "", nil
}

// splice copies ext's nodes into def under a "<callsite>_" prefix,
// rewires internal transitions to the prefixed names, points the external
// terminal nodes at the call site's original successors, and turns the
// call-site node into a plain node leading into the external root.
func splice(def *Definition, callsite string, node *Node, ext *Definition) {
	prefix := callsite + "_"
	successors := append([]string(nil), node.NextAllowedNodes...)

	for extName, extNode := range ext.Workflow.Tree {
		copied := extNode.clone()

		if copied.IsTerminal() {
			copied.NextAllowedNodes = append([]string(nil), successors...)
		} else {
			renamed := make([]string, len(copied.NextAllowedNodes))
			for i, next := range copied.NextAllowedNodes {
				renamed[i] = prefix + next
			}
			copied.NextAllowedNodes = renamed
		}

		def.Workflow.Tree[prefix+extName] = copied
	}

	// The call site itself becomes the entry point into the expansion.
	node.Workflow = ""
	node.NextAllowedNodes = []string{prefix + ext.Workflow.Root}
	if node.Goal == "" {
		node.Goal = ext.Workflow.Goal
	}
}

// --- Deep copies ---
//
// Loaded definitions are shared and immutable; composition works on copies.

func (d *Definition) clone() *Definition {
	out := &Definition{
		Name:        d.Name,
		Description: d.Description,
		Source:      d.Source,
		Workflow: Tree{
			Goal: d.Workflow.Goal,
			Root: d.Workflow.Root,
			Tree: make(map[string]*Node, len(d.Workflow.Tree)),
		},
	}
	if d.Inputs != nil {
		out.Inputs = make(map[string]InputSpec, len(d.Inputs))
		for name, spec := range d.Inputs {
			out.Inputs[name] = spec
		}
	}
	for name, node := range d.Workflow.Tree {
		out.Workflow.Tree[name] = node.clone()
	}
	return out
}

func (n *Node) clone() *Node {
	out := &Node{
		Goal:          n.Goal,
		NeedsApproval: n.NeedsApproval,
		Workflow:      n.Workflow,
	}
	if n.AcceptanceCriteria != nil {
		out.AcceptanceCriteria = append(CriteriaList(nil), n.AcceptanceCriteria...)
	}
	if n.NextAllowedNodes != nil {
		out.NextAllowedNodes = append([]string(nil), n.NextAllowedNodes...)
	}
	if n.Outputs != nil {
		out.Outputs = make(map[string]string, len(n.Outputs))
		for k, v := range n.Outputs {
			out.Outputs[k] = v
		}
	}
	return out
}
