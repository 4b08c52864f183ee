// Package syncer mirrors session state out of process memory: once as
// a file a human can open, once as an embedded entry in the vector
// cache. Both mirrors are best-effort — a failed write logs a warning
// and never fails the tool call that triggered it — and the cache
// mirror is what survives a restart.
package syncer

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lmoretti/stride/internal/session"
	"github.com/lmoretti/stride/internal/vecstore"
	"github.com/lmoretti/stride/internal/workflow"
)

// Mirror file formats.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

const archiveMarker = "_COMPLETED_"

// Config controls where and how sessions are mirrored.
type Config struct {
	// Dir is the directory for file mirrors. Empty disables file sync.
	Dir string
	// Format is FormatMarkdown (default) or FormatJSON.
	Format string
	// CacheEnabled turns the vector-cache mirror on.
	CacheEnabled bool
	// MinSimilarity is the search threshold; results below it are
	// dropped. Zero keeps everything.
	MinSimilarity float64
}

// Syncer writes session mirrors and restores sessions from the cache.
// All methods are safe for concurrent use.
type Syncer struct {
	cfg      Config
	store    *session.Store
	provider *vecstore.Provider
	loader   *workflow.Loader

	nameMu  sync.Mutex
	counter int
}

// New creates a syncer over the given store, vector provider, and
// workflow loader. The loader is only used during restore, to re-attach
// definitions to revived sessions.
func New(cfg Config, store *session.Store, provider *vecstore.Provider, loader *workflow.Loader) *Syncer {
	if cfg.Format == "" {
		cfg.Format = FormatMarkdown
	}
	return &Syncer{cfg: cfg, store: store, provider: provider, loader: loader}
}

// Sync mirrors the session to both targets. Call it after every store
// mutation, with the snapshot the mutation produced.
func (sy *Syncer) Sync(s *session.Session) {
	if s == nil {
		return
	}
	sy.SyncToFile(s)
	sy.SyncToCache(s)
}

// --- File mirror ---

// SyncToFile writes the session mirror to disk, assigning a stable
// filename on first write and archiving it when the session reaches a
// terminal status. Returns false (after logging) on any failure.
func (sy *Syncer) SyncToFile(s *session.Session) bool {
	if sy.cfg.Dir == "" {
		return false
	}
	if err := os.MkdirAll(sy.cfg.Dir, 0o755); err != nil {
		log.Printf("WARNING: file sync: creating %s: %v", sy.cfg.Dir, err)
		return false
	}

	name := s.MirrorFile
	if name == "" {
		name = sy.nextFilename(s.ClientID)
		sy.store.Update(s.SessionID, func(live *session.Session) {
			live.MirrorFile = name
		})
		s.MirrorFile = name
	}

	data, err := sy.encode(s)
	if err != nil {
		log.Printf("WARNING: file sync: session %s: %v", s.SessionID, err)
		return false
	}
	if err := writeFileAtomic(filepath.Join(sy.cfg.Dir, name), data); err != nil {
		log.Printf("WARNING: file sync: session %s: %v", s.SessionID, err)
		return false
	}

	if session.IsTerminal(s.Status) && !strings.Contains(name, archiveMarker) {
		sy.archive(s, name)
	}
	return true
}

// archive renames a finished session's mirror so completed work is
// visually separated from active work. The new name is recorded on the
// session so later syncs keep writing to the archived file.
func (sy *Syncer) archive(s *session.Session, name string) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	archived := fmt.Sprintf("%s%s%s%s", stem, archiveMarker, timeNow().UTC().Format(stampLayout), ext)

	oldPath := filepath.Join(sy.cfg.Dir, name)
	newPath := filepath.Join(sy.cfg.Dir, archived)
	if err := os.Rename(oldPath, newPath); err != nil {
		log.Printf("WARNING: file sync: archiving %s: %v", name, err)
		return
	}
	sy.store.Update(s.SessionID, func(live *session.Session) {
		live.MirrorFile = archived
	})
	s.MirrorFile = archived
}

const stampLayout = "20060102T150405"

// nextFilename builds a name unique within the process:
// <client>_<timestamp>_<counter>.<ext>. The counter disambiguates
// sessions created within the same second.
func (sy *Syncer) nextFilename(clientID string) string {
	sy.nameMu.Lock()
	sy.counter++
	n := sy.counter
	sy.nameMu.Unlock()

	ext := ".md"
	if sy.cfg.Format == FormatJSON {
		ext = ".json"
	}
	return fmt.Sprintf("%s_%s_%03d%s", sanitizeClientID(clientID), timeNow().UTC().Format(stampLayout), n, ext)
}

func (sy *Syncer) encode(s *session.Session) ([]byte, error) {
	if sy.cfg.Format == FormatJSON {
		return EncodeJSON(s)
	}
	return EncodeMarkdown(s)
}

// sanitizeClientID keeps mirror filenames portable: anything outside
// [A-Za-z0-9._-] becomes a dash.
func sanitizeClientID(clientID string) string {
	if clientID == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		}
		return '-'
	}, clientID)
}

// writeFileAtomic writes via a temp file in the same directory and
// renames it into place, so readers never observe a partial mirror.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mirror-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}

// --- Cache mirror ---

// SyncToCache upserts the session into the vector cache: the summary
// text is embedded, and the full state rides along as flat metadata.
// Returns false (after logging) on any failure.
func (sy *Syncer) SyncToCache(s *session.Session) bool {
	if !sy.cfg.CacheEnabled {
		return false
	}
	store, err := sy.provider.Store()
	if err != nil {
		log.Printf("WARNING: cache sync: session %s: %v", s.SessionID, err)
		return false
	}

	summary := Summary(s)
	vector, err := sy.provider.Embedder().Embed(summary)
	if err != nil {
		log.Printf("WARNING: cache sync: embedding session %s: %v", s.SessionID, err)
		return false
	}

	entry := vecstore.Entry{
		ID:       s.SessionID,
		Text:     summary,
		Vector:   vector,
		Metadata: cacheMetadata(s),
	}
	if err := store.Upsert(entry); err != nil {
		log.Printf("WARNING: cache sync: session %s: %v", s.SessionID, err)
		return false
	}
	return true
}

// cacheMetadata flattens a session into the string-only metadata map
// the vector store accepts. Scalars go in directly; timestamps as
// RFC 3339; structured fields as JSON strings.
func cacheMetadata(s *session.Session) map[string]string {
	meta := map[string]string{
		"session_id":    s.SessionID,
		"client_id":     s.ClientID,
		"workflow_name": s.WorkflowName,
		"workflow_file": s.WorkflowFile,
		"current_node":  s.CurrentNode,
		"status":        s.Status,
		"created_at":    s.CreatedAt.UTC().Format(time.RFC3339),
		"last_updated":  s.LastUpdated.UTC().Format(time.RFC3339),
	}
	if s.MirrorFile != "" {
		meta["mirror_file"] = s.MirrorFile
	}
	putJSON(meta, "inputs", s.Inputs)
	putJSON(meta, "node_outputs", s.NodeOutputs)
	putJSON(meta, "items", s.Items)
	putJSON(meta, "log", s.Log)
	putJSON(meta, "node_history", s.NodeHistory)
	putJSON(meta, "workflow_stack", s.WorkflowStack)
	return meta
}

func putJSON(meta map[string]string, key string, v any) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			return
		}
	case map[string]map[string]any:
		if len(val) == 0 {
			return
		}
	case []session.Item:
		if len(val) == 0 {
			return
		}
	case []string:
		if len(val) == 0 {
			return
		}
	case []session.StackFrame:
		if len(val) == 0 {
			return
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARNING: cache sync: encoding %s: %v", key, err)
		return
	}
	meta[key] = string(data)
}

// --- Semantic search ---

// SearchResult is one past session ranked by similarity to a query.
type SearchResult struct {
	SessionID    string  `json:"session_id"`
	ClientID     string  `json:"client_id"`
	WorkflowName string  `json:"workflow_name"`
	CurrentNode  string  `json:"current_node"`
	Status       string  `json:"status"`
	Similarity   float64 `json:"similarity"`
	Summary      string  `json:"summary"`
}

// SemanticSearch embeds the query and returns cached sessions ranked by
// similarity, best first, with scores converted to [0, 1]. Failures log
// and return an empty slice.
func (sy *Syncer) SemanticSearch(query string, filters map[string]string, limit int) []SearchResult {
	if !sy.cfg.CacheEnabled {
		return nil
	}
	store, err := sy.provider.Store()
	if err != nil {
		log.Printf("WARNING: semantic search: %v", err)
		return nil
	}
	vector, err := sy.provider.Embedder().Embed(query)
	if err != nil {
		log.Printf("WARNING: semantic search: embedding query: %v", err)
		return nil
	}
	if limit <= 0 {
		limit = 5
	}

	matches, err := store.Query(vector, filters, limit)
	if err != nil {
		log.Printf("WARNING: semantic search: %v", err)
		return nil
	}

	var out []SearchResult
	for _, m := range matches {
		sim := vecstore.Similarity(store.Metric(), m.Distance)
		if sy.cfg.MinSimilarity > 0 && sim < sy.cfg.MinSimilarity {
			continue
		}
		out = append(out, SearchResult{
			SessionID:    m.Metadata["session_id"],
			ClientID:     m.Metadata["client_id"],
			WorkflowName: m.Metadata["workflow_name"],
			CurrentNode:  m.Metadata["current_node"],
			Status:       m.Metadata["status"],
			Similarity:   sim,
			Summary:      m.Text,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out
}

// --- Restore ---

// RestoreOnStartup revives every cached session into the store. Called
// once at process start, before the server accepts tool calls. Returns
// the number of sessions restored.
func (sy *Syncer) RestoreOnStartup() int {
	return sy.restore(func(map[string]string) bool { return true })
}

// RestoreForClient revives only the cached sessions belonging to the
// given client. Used when a client reconnects after a server restart.
func (sy *Syncer) RestoreForClient(clientID string) int {
	return sy.restore(func(meta map[string]string) bool {
		return meta["client_id"] == clientID
	})
}

func (sy *Syncer) restore(keep func(map[string]string) bool) int {
	if !sy.cfg.CacheEnabled {
		return 0
	}
	store, err := sy.provider.Store()
	if err != nil {
		log.Printf("WARNING: restore: %v", err)
		return 0
	}
	entries, err := store.All()
	if err != nil {
		log.Printf("WARNING: restore: %v", err)
		return 0
	}

	restored := 0
	for _, entry := range entries {
		if entry.Metadata == nil || !keep(entry.Metadata) {
			continue
		}
		s, err := sessionFromMetadata(entry.Metadata)
		if err != nil {
			log.Printf("WARNING: restore: entry %s: %v", entry.ID, err)
			continue
		}
		sy.attachDefinition(s)
		if sy.store.Insert(s) {
			restored++
		}
	}
	if restored > 0 {
		log.Printf("restored %d session(s) from cache", restored)
	}
	return restored
}

// attachDefinition reloads and re-composes the session's workflow so a
// revived session can transition immediately. Failure leaves the
// definition nil; the session is still restored and tools that need the
// definition will report it missing.
func (sy *Syncer) attachDefinition(s *session.Session) {
	if sy.loader == nil || s.WorkflowFile == "" {
		return
	}
	def, err := sy.loader.Load(s.WorkflowFile)
	if err != nil {
		log.Printf("WARNING: restore: session %s: reloading %s: %v", s.SessionID, s.WorkflowFile, err)
		return
	}
	composed, err := workflow.Compose(def, sy.loader)
	if err != nil {
		log.Printf("WARNING: restore: session %s: composing %s: %v", s.SessionID, s.WorkflowFile, err)
		s.Definition = def
		return
	}
	s.Definition = composed
}

// sessionFromMetadata rebuilds a session from its flattened cache
// metadata. The scalar identity fields are required; everything else is
// optional and tolerated if absent or malformed in shape.
func sessionFromMetadata(meta map[string]string) (*session.Session, error) {
	s := &session.Session{
		SessionID:    meta["session_id"],
		ClientID:     meta["client_id"],
		WorkflowName: meta["workflow_name"],
		WorkflowFile: meta["workflow_file"],
		CurrentNode:  meta["current_node"],
		Status:       meta["status"],
		MirrorFile:   meta["mirror_file"],
	}
	if s.SessionID == "" {
		return nil, fmt.Errorf("missing session_id")
	}

	if raw := meta["created_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			s.CreatedAt = t
		}
	}
	if raw := meta["last_updated"]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			s.LastUpdated = t
		}
	}

	getJSON(meta, "inputs", &s.Inputs)
	getJSON(meta, "node_outputs", &s.NodeOutputs)
	getJSON(meta, "items", &s.Items)
	getJSON(meta, "log", &s.Log)
	getJSON(meta, "node_history", &s.NodeHistory)
	getJSON(meta, "workflow_stack", &s.WorkflowStack)
	return s, nil
}

func getJSON(meta map[string]string, key string, into any) {
	raw := meta[key]
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		log.Printf("WARNING: restore: decoding %s: %v", key, err)
	}
}
