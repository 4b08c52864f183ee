package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultDir is the conventional subdirectory (under the repository path)
// where workflow definitions live.
const DefaultDir = "workflows"

// systemPrefixes are well-known system directories that an external
// workflow reference may never point into, even with an absolute path.
var systemPrefixes = []string{
	"/etc", "/usr", "/bin", "/sbin", "/boot", "/dev",
	"/proc", "/sys", "/var", "/root",
}

// Loader discovers and reads workflow definitions from a directory.
// All cross-file references are resolved through LoadExternal so the
// path-safety policy applies uniformly.
type Loader struct {
	root string
}

// NewLoader creates a loader rooted at the given workflows directory.
func NewLoader(root string) *Loader {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return &Loader{root: abs}
}

// Root returns the absolute workflows directory this loader serves.
func (l *Loader) Root() string { return l.root }

// Discover scans the workflows directory for candidate definition files.
// Results are sorted by filename so discovery order is stable. A missing
// directory is not an error — it just yields no candidates.
func (l *Loader) Discover() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading workflows directory %s: %w", l.root, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			paths = append(paths, filepath.Join(l.root, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadAll loads every discovered definition. Invalid files are skipped
// during bulk discovery (they still fail loudly on direct Load), so one
// broken file never hides the rest.
func (l *Loader) LoadAll() ([]*Definition, error) {
	paths, err := l.Discover()
	if err != nil {
		return nil, err
	}

	var defs []*Definition
	for _, path := range paths {
		def, err := l.Load(path)
		if err != nil {
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Load parses and structurally validates a single workflow file.
func (l *Loader) Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "reading file", Err: err}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &LoadError{Path: path, Reason: "parsing YAML", Err: err}
	}

	if err := def.Validate(); err != nil {
		return nil, &LoadError{Path: path, Reason: err.Error()}
	}

	def.Source = path
	return &def, nil
}

// LoadByName loads the definition whose filename (without extension)
// matches name, e.g. "development" → workflows/development.yaml.
func (l *Loader) LoadByName(name string) (*Definition, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(l.root, name+ext)
		if _, err := os.Stat(path); err == nil {
			return l.Load(path)
		}
	}
	return nil, &LoadError{Path: name, Reason: fmt.Sprintf("no workflow named %q in %s", name, l.root)}
}

// LoadExternal resolves a possibly-relative external workflow reference
// against the referencing workflow's directory, enforces the path policy,
// and loads the result. Policy violations are LoadErrors with a reason the
// agent can act on, never generic I/O errors.
func (l *Loader) LoadExternal(path, basePath string) (*Definition, error) {
	resolved, err := l.resolveExternal(path, basePath)
	if err != nil {
		return nil, err
	}
	return l.Load(resolved)
}

// resolveExternal applies the security policy for cross-file references:
//   - any path containing ".." or "~" is rejected outright
//   - absolute reference paths must not point into well-known system
//     directories
//   - the resolved path must end up inside the workflows root
func (l *Loader) resolveExternal(path, basePath string) (string, error) {
	if strings.Contains(path, "..") {
		return "", &LoadError{Path: path, Reason: "external workflow paths must not contain \"..\""}
	}
	if strings.Contains(path, "~") {
		return "", &LoadError{Path: path, Reason: "external workflow paths must not contain \"~\""}
	}

	resolved := path
	if !filepath.IsAbs(resolved) {
		base := basePath
		if base != "" {
			if info, err := os.Stat(base); err == nil && !info.IsDir() {
				base = filepath.Dir(base)
			} else if filepath.Ext(base) != "" {
				base = filepath.Dir(base)
			}
		} else {
			base = l.root
		}
		resolved = filepath.Join(base, path)
	}

	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", &LoadError{Path: path, Reason: "resolving absolute path", Err: err}
	}

	// The system-directory check applies to absolute references only.
	// Relative references are judged by root containment below, so a
	// workflows root that itself lives under /var or /root stays usable.
	if filepath.IsAbs(path) {
		for _, prefix := range systemPrefixes {
			if abs == prefix || strings.HasPrefix(abs, prefix+string(filepath.Separator)) {
				return "", &LoadError{
					Path:   path,
					Reason: fmt.Sprintf("external workflow path resolves into system directory %s", prefix),
				}
			}
		}
	}

	if abs != l.root && !strings.HasPrefix(abs, l.root+string(filepath.Separator)) {
		return "", &LoadError{
			Path:   path,
			Reason: fmt.Sprintf("external workflow path resolves outside the workflows root %s", l.root),
		}
	}

	return abs, nil
}

// ValidateFile produces a structured validation report for a workflow
// file without requiring a fully constructed definition. Parse failures
// come back as report entries, so the caller always gets an actionable
// list rather than a stack trace.
func (l *Loader) ValidateFile(path string) ValidationReport {
	data, err := os.ReadFile(path)
	if err != nil {
		return ValidationReport{Valid: false, Errors: []string{fmt.Sprintf("reading file: %v", err)}}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return ValidationReport{Valid: false, Errors: []string{fmt.Sprintf("parsing YAML: %v", err)}}
	}

	return def.Check()
}
