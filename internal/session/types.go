// Package session holds the mutable unit of work — one in-progress
// execution of a workflow for a given client and task — and the
// thread-safe store that owns every Session object.
//
// Sessions are mutated exclusively through Store calls so the locking
// and auto-sync invariants hold; everything handed out by the store is
// a snapshot copy.
package session

import (
	"fmt"
	"time"

	"github.com/lmoretti/stride/internal/workflow"
)

// --- Status conventions ---
//
// Status is a free-form string by design (workflows may introduce their
// own), but these values are the conventional lifecycle.
const (
	StatusReady             = "READY"
	StatusRunning           = "RUNNING"
	StatusNeedsPlanApproval = "NEEDS_PLAN_APPROVAL"
	StatusCompleted         = "COMPLETED"
	StatusError             = "ERROR"
)

// IsTerminal reports whether a status ends the session's lifecycle.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusError
}

// Item is one entry in a session's ordered task list.
type Item struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// StackFrame captures a caller workflow's context when the session
// switches to an external workflow mid-run. ReturnFromWorkflow pops it
// to restore the caller.
type StackFrame struct {
	WorkflowName string                    `json:"workflow_name"`
	WorkflowFile string                    `json:"workflow_file"`
	Node         string                    `json:"node"`
	NodeOutputs  map[string]map[string]any `json:"node_outputs,omitempty"`

	Definition *workflow.Definition `json:"-"`
}

// Session is one in-progress execution of a workflow. The attached
// Definition is the (possibly composed) tree the session walks; it is
// not serialized — restore re-attaches it from disk by WorkflowFile.
type Session struct {
	SessionID     string                    `json:"session_id"`
	ClientID      string                    `json:"client_id"`
	WorkflowName  string                    `json:"workflow_name"`
	WorkflowFile  string                    `json:"workflow_file"`
	CurrentNode   string                    `json:"current_node"`
	Status        string                    `json:"status"`
	Inputs        map[string]any            `json:"inputs,omitempty"`
	NodeOutputs   map[string]map[string]any `json:"node_outputs,omitempty"`
	Items         []Item                    `json:"items,omitempty"`
	Log           []string                  `json:"log,omitempty"`
	NodeHistory   []string                  `json:"node_history,omitempty"`
	WorkflowStack []StackFrame              `json:"workflow_stack,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	LastUpdated   time.Time                 `json:"last_updated"`

	// MirrorFile is the stable filename assigned by the sync layer on
	// first write and reused afterward.
	MirrorFile string `json:"mirror_file,omitempty"`

	Definition *workflow.Definition `json:"-"`
}

// AddLog appends a timestamped line to the session log. Call it only
// inside a Store.Update mutation.
func (s *Session) AddLog(format string, args ...any) {
	line := fmt.Sprintf("%s: %s", timeNow().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	s.Log = append(s.Log, line)
}

// RecordOutputs merges captured outputs under the given node name.
// NodeOutputs is append-only per node: later captures extend earlier
// ones, never drop them.
func (s *Session) RecordOutputs(node string, outputs map[string]any) {
	if len(outputs) == 0 {
		return
	}
	if s.NodeOutputs == nil {
		s.NodeOutputs = make(map[string]map[string]any)
	}
	existing := s.NodeOutputs[node]
	if existing == nil {
		existing = make(map[string]any, len(outputs))
		s.NodeOutputs[node] = existing
	}
	for k, v := range outputs {
		existing[k] = v
	}
}

// Clone returns a deep copy of the session. The store hands out clones
// so callers can never mutate shared state outside the lock. The
// attached Definition is shared — definitions are immutable once loaded.
func (s *Session) Clone() *Session {
	out := *s
	if s.Inputs != nil {
		out.Inputs = make(map[string]any, len(s.Inputs))
		for k, v := range s.Inputs {
			out.Inputs[k] = v
		}
	}
	if s.NodeOutputs != nil {
		out.NodeOutputs = make(map[string]map[string]any, len(s.NodeOutputs))
		for node, vals := range s.NodeOutputs {
			inner := make(map[string]any, len(vals))
			for k, v := range vals {
				inner[k] = v
			}
			out.NodeOutputs[node] = inner
		}
	}
	out.Items = append([]Item(nil), s.Items...)
	out.Log = append([]string(nil), s.Log...)
	out.NodeHistory = append([]string(nil), s.NodeHistory...)
	if s.WorkflowStack != nil {
		out.WorkflowStack = make([]StackFrame, len(s.WorkflowStack))
		for i, frame := range s.WorkflowStack {
			copied := frame
			if frame.NodeOutputs != nil {
				copied.NodeOutputs = make(map[string]map[string]any, len(frame.NodeOutputs))
				for node, vals := range frame.NodeOutputs {
					inner := make(map[string]any, len(vals))
					for k, v := range vals {
						inner[k] = v
					}
					copied.NodeOutputs[node] = inner
				}
			}
			out.WorkflowStack[i] = copied
		}
	}
	return &out
}
