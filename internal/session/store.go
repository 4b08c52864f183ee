package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lmoretti/stride/internal/workflow"
)

// Stats holds aggregate counts over the live session map.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Clients  int            `json:"clients"`
}

// Store is the authoritative owner of all sessions for the process
// lifetime. One mutex guards the session map; a second, independent
// mutex guards the client→session-ids index. The index mutex is only
// ever held for the duration of a single register/unregister call, and
// never nested inside the session lock, so the two structures cannot
// deadlock against each other.
//
// The store performs no I/O: file and cache mirroring happen in the
// sync layer, after store calls return, so a slow disk or vector-store
// call never blocks unrelated sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idxMu    sync.Mutex
	byClient map[string][]string
}

// NewStore creates an empty session store. Construct it once at process
// start and pass it by reference to every component that needs it.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		byClient: make(map[string][]string),
	}
}

// Create builds a new session for the client+task+workflow triple:
// generates a session ID, derives default input values from the
// definition's declared inputs, lands on the definition root with
// status READY, and registers the session under the client ID.
func (st *Store) Create(clientID, taskDescription string, def *workflow.Definition, workflowFile string) *Session {
	now := timeNow().UTC()

	inputs := def.DefaultInputs()
	if taskDescription != "" {
		inputs["task_description"] = taskDescription
	}

	s := &Session{
		SessionID:    uuid.NewString(),
		ClientID:     clientID,
		WorkflowName: def.Name,
		WorkflowFile: workflowFile,
		CurrentNode:  def.Workflow.Root,
		Status:       StatusReady,
		Inputs:       inputs,
		NodeOutputs:  make(map[string]map[string]any),
		NodeHistory:  []string{def.Workflow.Root},
		CreatedAt:    now,
		LastUpdated:  now,
		Definition:   def,
	}
	s.AddLog("session created for workflow %q at node %q", def.Name, def.Workflow.Root)

	st.mu.Lock()
	st.sessions[s.SessionID] = s
	st.mu.Unlock()

	st.register(clientID, s.SessionID)

	return s.Clone()
}

// Insert adds an already-built session (used by cache restore). It
// refuses to overwrite a live session with the same ID.
func (st *Store) Insert(s *Session) bool {
	st.mu.Lock()
	if _, exists := st.sessions[s.SessionID]; exists {
		st.mu.Unlock()
		return false
	}
	st.sessions[s.SessionID] = s.Clone()
	st.mu.Unlock()

	st.register(s.ClientID, s.SessionID)
	return true
}

// Get returns a snapshot of the session, or nil if it does not exist.
func (st *Store) Get(sessionID string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[sessionID]
	if !ok {
		return nil
	}
	return s.Clone()
}

// Update applies mutate to the live session under the write lock and
// bumps LastUpdated. Returns false if the session does not exist.
func (st *Store) Update(sessionID string, mutate func(*Session)) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[sessionID]
	if !ok {
		return false
	}
	mutate(s)
	s.LastUpdated = timeNow().UTC()
	return true
}

// Delete removes the session and unregisters it from the client index.
// Returns false if the session does not exist.
func (st *Store) Delete(sessionID string) bool {
	st.mu.Lock()
	s, ok := st.sessions[sessionID]
	if ok {
		delete(st.sessions, sessionID)
	}
	st.mu.Unlock()

	if !ok {
		return false
	}
	st.unregister(s.ClientID, sessionID)
	return true
}

// GetByClient returns snapshots of every session registered for the
// client, ordered by creation time.
func (st *Store) GetByClient(clientID string) []*Session {
	st.idxMu.Lock()
	ids := append([]string(nil), st.byClient[clientID]...)
	st.idxMu.Unlock()

	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []*Session
	for _, id := range ids {
		if s, ok := st.sessions[id]; ok {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetAll returns a snapshot mapping of every session. Callers get a
// copy, never the live map, so they can iterate without holding any
// store lock.
func (st *Store) GetAll() map[string]*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make(map[string]*Session, len(st.sessions))
	for id, s := range st.sessions {
		out[id] = s.Clone()
	}
	return out
}

// Stats returns session counts by status and the distinct client count.
func (st *Store) Stats() Stats {
	st.mu.RLock()
	defer st.mu.RUnlock()

	stats := Stats{
		Total:    len(st.sessions),
		ByStatus: make(map[string]int),
	}
	clients := make(map[string]struct{})
	for _, s := range st.sessions {
		stats.ByStatus[s.Status]++
		clients[s.ClientID] = struct{}{}
	}
	stats.Clients = len(clients)
	return stats
}

// Cleanup deletes sessions whose status is terminal AND whose last
// update is older than the retention window. Active sessions and
// recently finished ones are always kept. Returns the removed count.
func (st *Store) Cleanup(keepRecent time.Duration) int {
	cutoff := timeNow().UTC().Add(-keepRecent)

	st.mu.Lock()
	var removed []*Session
	for id, s := range st.sessions {
		if IsTerminal(s.Status) && s.LastUpdated.Before(cutoff) {
			removed = append(removed, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range removed {
		st.unregister(s.ClientID, s.SessionID)
	}
	return len(removed)
}

// --- Client index ---
//
// The index is kept consistent with the session map via register and
// unregister calls made under its own short-lived lock.

func (st *Store) register(clientID, sessionID string) {
	st.idxMu.Lock()
	defer st.idxMu.Unlock()
	st.byClient[clientID] = append(st.byClient[clientID], sessionID)
}

func (st *Store) unregister(clientID, sessionID string) {
	st.idxMu.Lock()
	defer st.idxMu.Unlock()
	ids := st.byClient[clientID]
	for i, id := range ids {
		if id == sessionID {
			st.byClient[clientID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(st.byClient[clientID]) == 0 {
		delete(st.byClient, clientID)
	}
}
