// Package vecstore provides the pluggable vector-index services used by
// the session cache: a key→vector store and a text→vector embedder.
//
// Each service is an interface with one production implementation (a
// SQLite-backed store, a local feature-hashing embedder) and one
// in-memory implementation for tests. Which one a process gets is
// decided by injected configuration, never by sniffing the environment
// at runtime.
package vecstore

import (
	"math"
)

// Metric identifies the distance function a store was built with. The
// raw distances it yields are converted to 0–1 similarities by
// Similarity.
type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricInnerProduct Metric = "ip"
	MetricL2           Metric = "l2"
)

// Entry is one cached record: the embedded summary text, its vector,
// and flat scalar metadata. The store only accepts flat string
// metadata — nested values must be JSON-encoded by the caller.
type Entry struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Result is an Entry with the raw distance reported by the store.
type Result struct {
	Entry
	Distance float64 `json:"distance"`
}

// Store is the pluggable key→vector store.
type Store interface {
	// Upsert inserts or replaces the entry keyed by its ID.
	Upsert(entry Entry) error
	// Get returns the entry, or nil if absent.
	Get(id string) (*Entry, error)
	// Delete removes the entry. Deleting an absent ID is not an error.
	Delete(id string) error
	// Query returns the nearest neighbors of vector, closest first,
	// restricted to entries whose metadata matches every filter.
	Query(vector []float32, filters map[string]string, limit int) ([]Result, error)
	// All returns every entry, for restore-on-startup.
	All() ([]Entry, error)
	// Metric reports the distance metric Query uses.
	Metric() Metric
	Close() error
}

// Embedder is the pluggable text→vector function.
type Embedder interface {
	Embed(text string) ([]float32, error)
	Dimensions() int
}

// Similarity converts a raw store distance into a similarity score in
// [0, 1], using the metric-specific formula:
//   - cosine: 1 - distance, clamped
//   - inner product: (distance + 1) / 2, clamped
//   - anything else: exponential decay exp(-distance)
func Similarity(metric Metric, distance float64) float64 {
	var sim float64
	switch metric {
	case MetricCosine:
		sim = 1 - distance
	case MetricInnerProduct:
		sim = (distance + 1) / 2
	default:
		sim = math.Exp(-distance)
	}
	return clamp01(sim)
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Distance computes the raw distance between two vectors under the
// given metric. Mismatched lengths yield +Inf so the entry simply ranks
// last instead of failing the whole query.
func Distance(metric Metric, a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	switch metric {
	case MetricCosine:
		return cosineDistance(a, b)
	case MetricInnerProduct:
		return dot(a, b)
	default:
		return l2Distance(a, b)
	}
}

// Closer reports whether raw distance a ranks nearer than b under the
// metric. Inner product is a score (larger is closer); the others are
// true distances (smaller is closer).
func Closer(metric Metric, a, b float64) bool {
	if metric == MetricInnerProduct {
		return a > b
	}
	return a < b
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosineDistance(a, b []float32) float64 {
	var d, na, nb float64
	for i := range a {
		d += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - d/(math.Sqrt(na)*math.Sqrt(nb))
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
