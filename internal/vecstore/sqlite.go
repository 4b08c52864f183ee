package vecstore

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the production vector store: entries live in a local
// SQLite database (WAL mode) with vectors stored as little-endian
// float32 blobs and metadata as a JSON column. Neighbor queries are a
// brute-force scan — session counts are small and the scan keeps the
// store free of index maintenance.
type SQLiteStore struct {
	db     *sql.DB
	metric Metric
}

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// OpenSQLite opens (or creates) the vector database at path and runs
// the schema migration.
func OpenSQLite(path string, metric Metric) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("vecstore: create data dir: %w", err)
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vecstore: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("vecstore: pragma %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS cache_entries (
			id         TEXT PRIMARY KEY,
			text       TEXT NOT NULL,
			vector     BLOB NOT NULL,
			metadata   TEXT NOT NULL DEFAULT '{}',
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("vecstore: migration: %w", err)
	}

	return &SQLiteStore{db: db, metric: metric}, nil
}

// Metric reports the configured distance metric.
func (s *SQLiteStore) Metric() Metric { return s.metric }

// Upsert inserts or replaces the entry keyed by its ID.
func (s *SQLiteStore) Upsert(entry Entry) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("vecstore: encode metadata: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO cache_entries (id, text, vector, metadata, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			vector = excluded.vector,
			metadata = excluded.metadata,
			updated_at = datetime('now')
	`, entry.ID, entry.Text, encodeVector(entry.Vector), string(meta))
	if err != nil {
		return fmt.Errorf("vecstore: upsert %s: %w", entry.ID, err)
	}
	return nil
}

// Get returns the entry, or nil if absent.
func (s *SQLiteStore) Get(id string) (*Entry, error) {
	row := s.db.QueryRow(`SELECT id, text, vector, metadata FROM cache_entries WHERE id = ?`, id)
	entry, err := scanEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vecstore: get %s: %w", id, err)
	}
	return entry, nil
}

// Delete removes the entry. Absent IDs are not an error.
func (s *SQLiteStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM cache_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("vecstore: delete %s: %w", id, err)
	}
	return nil
}

// All returns every entry.
func (s *SQLiteStore) All() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT id, text, vector, metadata FROM cache_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("vecstore: list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("vecstore: scan entry: %w", err)
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

// Query scans all entries, filters on metadata equality, and returns
// the nearest limit neighbors, closest first.
func (s *SQLiteStore) Query(vector []float32, filters map[string]string, limit int) ([]Result, error) {
	entries, err := s.All()
	if err != nil {
		return nil, err
	}
	return rank(s.metric, vector, entries, filters, limit), nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rank is the shared neighbor ranking used by both store implementations.
func rank(metric Metric, vector []float32, entries []Entry, filters map[string]string, limit int) []Result {
	var results []Result
	for _, entry := range entries {
		if !matchesFilters(entry.Metadata, filters) {
			continue
		}
		d := Distance(metric, vector, entry.Vector)
		if math.IsInf(d, 0) {
			// dimension mismatch — never comparable
			continue
		}
		results = append(results, Result{Entry: entry, Distance: d})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return Closer(metric, results[i].Distance, results[j].Distance)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func matchesFilters(metadata, filters map[string]string) bool {
	for k, v := range filters {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func scanEntry(scan func(dest ...any) error) (*Entry, error) {
	var entry Entry
	var blob []byte
	var meta string
	if err := scan(&entry.ID, &entry.Text, &blob, &meta); err != nil {
		return nil, err
	}
	entry.Vector = decodeVector(blob)
	if err := json.Unmarshal([]byte(meta), &entry.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &entry, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
