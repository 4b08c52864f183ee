package syncer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lmoretti/stride/internal/session"
)

// --- Session mirror encoding ---
//
// A mirror file is one of two equivalent renderings of a session:
//   - JSON: the session marshaled directly
//   - Markdown: the same state as a YAML frontmatter block, followed by
//     a human-readable body
//
// Both decode back to the same session (timestamp formatting aside), so
// mirrors can be moved between formats without losing state.

// EncodeJSON renders the session as indented JSON.
func EncodeJSON(s *session.Session) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding session %s: %w", s.SessionID, err)
	}
	return data, nil
}

// EncodeMarkdown renders the session as a frontmatter document: the
// full state in a YAML fence, then a readable summary body.
func EncodeMarkdown(s *session.Session) ([]byte, error) {
	// Round-trip through JSON so the YAML block uses the same field
	// names as the JSON encoding.
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding session %s: %w", s.SessionID, err)
	}
	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("encoding session %s: %w", s.SessionID, err)
	}
	meta, err := yaml.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encoding session %s: %w", s.SessionID, err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(meta, "\n"))
	buf.WriteString("\n---\n\n")
	buf.WriteString(markdownBody(s))
	return buf.Bytes(), nil
}

// Decode parses a mirror file in either format back into a session.
func Decode(data []byte) (*session.Session, error) {
	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	if bytes.HasPrefix(normalized, []byte("---\n")) {
		parts := bytes.SplitN(normalized[4:], []byte("\n---\n"), 2)
		if len(parts) < 2 {
			return nil, fmt.Errorf("decoding mirror: malformed frontmatter")
		}
		var state map[string]any
		if err := yaml.Unmarshal(parts[0], &state); err != nil {
			return nil, fmt.Errorf("decoding mirror frontmatter: %w", err)
		}
		raw, err := json.Marshal(state)
		if err != nil {
			return nil, fmt.Errorf("decoding mirror frontmatter: %w", err)
		}
		var s session.Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decoding mirror frontmatter: %w", err)
		}
		return &s, nil
	}

	var s session.Session
	if err := json.Unmarshal(normalized, &s); err != nil {
		return nil, fmt.Errorf("decoding mirror JSON: %w", err)
	}
	return &s, nil
}

// markdownBody renders the human-readable half of a Markdown mirror.
func markdownBody(s *session.Session) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session %s\n\n", s.SessionID)
	fmt.Fprintf(&b, "- **Client:** %s\n", s.ClientID)
	fmt.Fprintf(&b, "- **Workflow:** %s (`%s`)\n", s.WorkflowName, s.WorkflowFile)
	fmt.Fprintf(&b, "- **Current node:** %s\n", s.CurrentNode)
	fmt.Fprintf(&b, "- **Status:** %s\n", s.Status)

	if len(s.Items) > 0 {
		b.WriteString("\n## Items\n\n")
		for _, item := range s.Items {
			fmt.Fprintf(&b, "- [%d] %s — %s\n", item.ID, item.Description, item.Status)
		}
	}

	if len(s.NodeHistory) > 0 {
		b.WriteString("\n## Node history\n\n")
		fmt.Fprintf(&b, "%s\n", strings.Join(s.NodeHistory, " → "))
	}

	if len(s.Log) > 0 {
		b.WriteString("\n## Log\n\n")
		for _, line := range tail(s.Log, 20) {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	return b.String()
}

// Summary builds the short natural-language description of a session
// that gets embedded for the vector cache: workflow, position, status,
// inputs, and the most recent log lines.
func Summary(s *session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow %s at node %s, status %s.", s.WorkflowName, s.CurrentNode, s.Status)

	if len(s.Inputs) > 0 {
		b.WriteString(" Context:")
		for _, key := range sortedKeys(s.Inputs) {
			fmt.Fprintf(&b, " %s=%v;", key, s.Inputs[key])
		}
	}

	for _, line := range tail(s.Log, 5) {
		b.WriteString(" ")
		b.WriteString(line)
	}
	return b.String()
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
