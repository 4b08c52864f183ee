package workflow

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed defs/*.yaml
var defaultDefs embed.FS

// EnsureDefaults materializes the embedded default workflow definitions
// into dir when it contains no definitions yet. Existing files are never
// overwritten — a repository that customizes its workflows keeps them.
func EnsureDefaults(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating workflows directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading workflows directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && (filepath.Ext(entry.Name()) == ".yaml" || filepath.Ext(entry.Name()) == ".yml") {
			return nil // already populated
		}
	}

	return fs.WalkDir(defaultDefs, "defs", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := defaultDefs.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading embedded workflow %s: %w", path, err)
		}
		dst := filepath.Join(dir, filepath.Base(path))
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("writing default workflow %s: %w", dst, err)
		}
		return nil
	})
}
