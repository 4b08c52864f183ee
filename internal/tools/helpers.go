// Package tools implements the MCP tool handlers that drive workflow
// sessions.
//
// Design principles:
// - SRP: each file = one tool
// - DIP: tools depend on the store, engine, loader, and syncer they are
//   constructed with, never on globals
// - Nothing raises past the tool boundary: lower-layer failures become
//   guidance text the agent can act on
package tools

import (
	"log"
	"regexp"

	"github.com/lmoretti/stride/internal/session"
	"github.com/lmoretti/stride/internal/workflow"
)

// DefaultClientID groups sessions when the caller does not identify
// itself.
const DefaultClientID = "default"

// sessionIDHint matches a session ID mentioned in free-form context
// text, e.g. "session_id: 3f2a..." or "session-id = 3f2a...". An
// explicit session_id argument always wins over this.
var sessionIDHint = regexp.MustCompile(`(?i)session[_\- ]?id\s*[:=]\s*([0-9a-fA-F][0-9a-fA-F-]{7,})`)

// resolveSessionID picks the session to operate on: the explicit
// argument first, then a hint embedded in the context text.
func resolveSessionID(explicit, contextText string) string {
	if explicit != "" {
		return explicit
	}
	if m := sessionIDHint.FindStringSubmatch(contextText); m != nil {
		return m[1]
	}
	return ""
}

// definitionFor returns the session's workflow definition, reloading
// and re-composing it from disk when the in-memory attachment is
// missing (e.g. after a cache restore with an unreadable file). The
// reloaded definition is attached back onto the live session.
func definitionFor(s *session.Session, store *session.Store, loader *workflow.Loader) *workflow.Definition {
	if s.Definition != nil {
		return s.Definition
	}
	if loader == nil || s.WorkflowFile == "" {
		return nil
	}
	def, err := loader.Load(s.WorkflowFile)
	if err != nil {
		log.Printf("WARNING: session %s: reloading %s: %v", s.SessionID, s.WorkflowFile, err)
		return nil
	}
	composed, err := workflow.Compose(def, loader)
	if err != nil {
		log.Printf("WARNING: session %s: composing %s: %v", s.SessionID, s.WorkflowFile, err)
		composed = def
	}
	store.Update(s.SessionID, func(live *session.Session) { live.Definition = composed })
	s.Definition = composed
	return composed
}
