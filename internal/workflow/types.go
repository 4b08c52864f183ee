// Package workflow defines the static workflow model: named nodes with
// goals, acceptance criteria, and allowed transitions, loaded from YAML.
//
// Definitions are immutable once loaded. The engine package walks them;
// the session package records where each client currently is. This package
// follows the same design principles as the rest of the server:
// - SRP: types, loader, composition, and templating in separate files
// - DIP: the Loader is passed to consumers as a value, never reached
//   through package-level state
package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// --- Definition types ---

// InputSpec declares one workflow input: its type, whether the caller must
// provide it, and an optional default value.
type InputSpec struct {
	Type     string `yaml:"type" json:"type"`
	Required bool   `yaml:"required" json:"required"`
	Default  any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// Criterion is a single named acceptance criterion on a node.
type Criterion struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CriteriaList preserves the document order of a YAML acceptance_criteria
// mapping. Plain Go maps would lose the author's ordering, and criteria are
// rendered back to the agent in the order they were written.
type CriteriaList []Criterion

// UnmarshalYAML decodes a YAML mapping node into an ordered criteria list.
func (c *CriteriaList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("acceptance_criteria must be a mapping, got %s", yamlKindName(value.Kind))
	}
	out := make(CriteriaList, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		out = append(out, Criterion{
			Name:        value.Content[i].Value,
			Description: value.Content[i+1].Value,
		})
	}
	*c = out
	return nil
}

// Get returns the description for a criterion name, and whether it exists.
func (c CriteriaList) Get(name string) (string, bool) {
	for _, crit := range c {
		if crit.Name == name {
			return crit.Description, true
		}
	}
	return "", false
}

// Names returns the criterion names in document order.
func (c CriteriaList) Names() []string {
	names := make([]string, len(c))
	for i, crit := range c {
		names[i] = crit.Name
	}
	return names
}

// Node is one step in a workflow tree. A node either carries its own goal
// and criteria, or (when Workflow is set) references an external workflow
// to be spliced in by composition.
type Node struct {
	Goal               string            `yaml:"goal" json:"goal"`
	AcceptanceCriteria CriteriaList      `yaml:"acceptance_criteria,omitempty" json:"acceptance_criteria,omitempty"`
	NextAllowedNodes   []string          `yaml:"next_allowed_nodes,omitempty" json:"next_allowed_nodes,omitempty"`
	NeedsApproval      bool              `yaml:"needs_approval,omitempty" json:"needs_approval,omitempty"`
	Workflow           string            `yaml:"workflow,omitempty" json:"workflow,omitempty"`
	Outputs            map[string]string `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

// IsWorkflowNode reports whether this node references an external workflow.
// The flag is implicit in the YAML format: a node with a workflow path is a
// workflow node.
func (n *Node) IsWorkflowNode() bool {
	return n.Workflow != ""
}

// IsTerminal reports whether the node has no outgoing transitions.
func (n *Node) IsTerminal() bool {
	return len(n.NextAllowedNodes) == 0
}

// Allows reports whether target is in the node's allowed transition set.
func (n *Node) Allows(target string) bool {
	for _, next := range n.NextAllowedNodes {
		if next == target {
			return true
		}
	}
	return false
}

// Tree is the node graph of a workflow: an overall goal, a root node name,
// and the named nodes themselves.
type Tree struct {
	Goal string           `yaml:"goal" json:"goal"`
	Root string           `yaml:"root" json:"root"`
	Tree map[string]*Node `yaml:"tree" json:"tree"`
}

// Definition is a fully parsed workflow definition. Source records the file
// it was loaded from so relative external references can be resolved; it is
// not part of the YAML format.
type Definition struct {
	Name        string               `yaml:"name" json:"name"`
	Description string               `yaml:"description" json:"description"`
	Inputs      map[string]InputSpec `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Workflow    Tree                 `yaml:"workflow" json:"workflow"`

	Source string `yaml:"-" json:"-"`
}

// Node returns the named node, or nil if absent.
func (d *Definition) Node(name string) *Node {
	if d == nil || d.Workflow.Tree == nil {
		return nil
	}
	return d.Workflow.Tree[name]
}

// Validate checks the structural invariants established at load time:
// the root must exist in the tree and every transition target must
// reference an existing node.
func (d *Definition) Validate() error {
	report := d.Check()
	if report.Valid {
		return nil
	}
	return fmt.Errorf("invalid workflow %q: %s", d.Name, report.Errors[0])
}

// ValidationReport is a structured, field-level validation result. The
// error list is meant to be actionable for the agent, not a parse trace.
type ValidationReport struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Check runs all field-level validations and collects every problem found
// instead of stopping at the first.
func (d *Definition) Check() ValidationReport {
	var errs []string

	if d.Name == "" {
		errs = append(errs, "name must not be empty")
	}
	if d.Description == "" {
		errs = append(errs, "description must not be empty")
	}
	if len(d.Workflow.Tree) == 0 {
		errs = append(errs, "workflow.tree must contain at least one node")
	}
	if d.Workflow.Root == "" {
		errs = append(errs, "workflow.root must not be empty")
	} else if len(d.Workflow.Tree) > 0 {
		if _, ok := d.Workflow.Tree[d.Workflow.Root]; !ok {
			errs = append(errs, fmt.Sprintf("workflow.root %q does not exist in the tree", d.Workflow.Root))
		}
	}

	for name, node := range d.Workflow.Tree {
		if node == nil {
			errs = append(errs, fmt.Sprintf("node %q is empty", name))
			continue
		}
		for _, next := range node.NextAllowedNodes {
			if _, ok := d.Workflow.Tree[next]; !ok {
				errs = append(errs, fmt.Sprintf("node %q allows transition to %q, which does not exist", name, next))
			}
		}
	}

	return ValidationReport{Valid: len(errs) == 0, Errors: errs}
}

// DefaultInputs derives starting input values from the declared inputs.
// A declared default wins; otherwise the zero value for the declared type
// (booleans false, integers 0, arrays empty, strings "").
func (d *Definition) DefaultInputs() map[string]any {
	inputs := make(map[string]any, len(d.Inputs))
	for name, spec := range d.Inputs {
		if spec.Default != nil {
			inputs[name] = spec.Default
			continue
		}
		switch spec.Type {
		case "boolean", "bool":
			inputs[name] = false
		case "integer", "int", "number":
			inputs[name] = 0
		case "array", "list":
			inputs[name] = []any{}
		default:
			inputs[name] = ""
		}
	}
	return inputs
}

// --- Errors ---

// LoadError is the typed failure for malformed or unsafe workflow files.
// It is fatal to that one load, never to the process, and its Reason is
// written so the agent can self-correct (e.g. a rejected path explains the
// policy it violated).
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("loading workflow %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("loading workflow %s: %s", e.Path, e.Reason)
}

// Unwrap exposes the underlying cause, if any.
func (e *LoadError) Unwrap() error { return e.Err }

func yamlKindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
