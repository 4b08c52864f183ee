package vecstore

import "sync"

// MemoryStore is the in-memory Store used in tests and when the
// process is configured without a cache path. It mirrors the SQLite
// store's behavior exactly, minus persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	metric  Metric
}

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore(metric Metric) *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), metric: metric}
}

// Metric reports the configured distance metric.
func (m *MemoryStore) Metric() Metric { return m.metric }

// Upsert inserts or replaces the entry keyed by its ID.
func (m *MemoryStore) Upsert(entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = cloneEntry(entry)
	return nil
}

// Get returns the entry, or nil if absent.
func (m *MemoryStore) Get(id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	copied := cloneEntry(entry)
	return &copied, nil
}

// Delete removes the entry.
func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// All returns every entry.
func (m *MemoryStore) All() ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, cloneEntry(entry))
	}
	return out, nil
}

// Query returns the nearest neighbors under the store's metric.
func (m *MemoryStore) Query(vector []float32, filters map[string]string, limit int) ([]Result, error) {
	entries, err := m.All()
	if err != nil {
		return nil, err
	}
	return rank(m.metric, vector, entries, filters, limit), nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

func cloneEntry(entry Entry) Entry {
	out := entry
	out.Vector = append([]float32(nil), entry.Vector...)
	if entry.Metadata != nil {
		out.Metadata = make(map[string]string, len(entry.Metadata))
		for k, v := range entry.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
