package vecstore

import "sync"

// Config selects the vector services a process uses. InMemory is the
// explicit test-environment switch: it is injected by whoever builds
// the provider, never detected at runtime.
type Config struct {
	Path       string
	Metric     Metric
	Dimensions int
	InMemory   bool
}

// Provider lazily initializes the process-wide vector store and
// embedder. Both are created on first use; concurrent first use is
// serialized by sync.Once (Go's check-lock-check), so initialization
// happens exactly once even when several tool calls race the first
// cache access.
type Provider struct {
	cfg Config

	storeOnce sync.Once
	store     Store
	storeErr  error

	embedOnce sync.Once
	embedder  Embedder
}

// NewProvider creates a provider for the given configuration. Nothing
// is opened until the first Store or Embedder call.
func NewProvider(cfg Config) *Provider {
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	return &Provider{cfg: cfg}
}

// Store returns the process-wide vector store, initializing it on
// first use. A failed initialization is sticky: later calls return the
// same error instead of retrying a broken path forever.
func (p *Provider) Store() (Store, error) {
	p.storeOnce.Do(func() {
		if p.cfg.InMemory || p.cfg.Path == "" {
			p.store = NewMemoryStore(p.cfg.Metric)
			return
		}
		p.store, p.storeErr = OpenSQLite(p.cfg.Path, p.cfg.Metric)
	})
	return p.store, p.storeErr
}

// Embedder returns the process-wide embedder, initializing it on first
// use.
func (p *Provider) Embedder() Embedder {
	p.embedOnce.Do(func() {
		p.embedder = NewHashEmbedder(p.cfg.Dimensions)
	})
	return p.embedder
}

// Close releases the store if it was ever opened. Call it at shutdown,
// after all tool handlers have drained.
func (p *Provider) Close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}
