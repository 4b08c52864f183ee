// Package config holds the process configuration: where the repository
// lives, where workflow definitions are read from, and how session
// mirroring behaves. Values come from defaults, an optional
// stride.yaml, and STRIDE_* environment variables, in ascending
// priority.
package config

import (
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration for the stride server.
type Config struct {
	// RepositoryPath is the root containing the workflows directory
	// and all generated state.
	RepositoryPath string `mapstructure:"repository_path"`
	// WorkflowsDir is the workflow-definitions directory, relative to
	// RepositoryPath unless absolute.
	WorkflowsDir string `mapstructure:"workflows_dir"`

	Sync struct {
		// Enabled turns file mirroring on.
		Enabled bool `mapstructure:"enabled"`
		// Dir is the mirror directory, relative to RepositoryPath
		// unless absolute.
		Dir string `mapstructure:"dir"`
		// Format is "markdown" or "json".
		Format string `mapstructure:"format"`
	} `mapstructure:"sync"`

	Cache struct {
		// Enabled turns the vector-cache mirror on.
		Enabled bool `mapstructure:"enabled"`
		// Path is the SQLite database file, relative to RepositoryPath
		// unless absolute. Empty with Enabled selects the in-memory store.
		Path string `mapstructure:"path"`
		// Metric is "cosine" (default), "ip", or "l2".
		Metric string `mapstructure:"metric"`
		// Dimensions is the embedding vector width.
		Dimensions int `mapstructure:"dimensions"`
		// MinSimilarity drops search results scoring below it.
		MinSimilarity float64 `mapstructure:"min_similarity"`
		// InMemory forces the in-memory store regardless of Path.
		// Injected by tests; never detected at runtime.
		InMemory bool `mapstructure:"in_memory"`
	} `mapstructure:"cache"`

	// RetentionHours is the cleanup window for terminal sessions.
	RetentionHours int `mapstructure:"retention_hours"`
}

// Load reads the configuration for the given repository path. Defaults
// are overridden by an optional stride.yaml in the repository, which is
// overridden by STRIDE_* environment variables (nested keys joined with
// underscores, e.g. STRIDE_SYNC_FORMAT).
func Load(repositoryPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("repository_path", repositoryPath)
	v.SetDefault("workflows_dir", "workflows")
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.dir", "sessions")
	v.SetDefault("sync.format", "markdown")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", filepath.Join(".stride", "cache.db"))
	v.SetDefault("cache.metric", "cosine")
	v.SetDefault("cache.dimensions", 256)
	v.SetDefault("cache.min_similarity", 0.0)
	v.SetDefault("retention_hours", 24*7)

	v.SetConfigName("stride")
	v.SetConfigType("yaml")
	if repositoryPath != "" {
		v.AddConfigPath(repositoryPath)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("STRIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine — defaults + env apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &cfg, nil
}

// normalize anchors relative paths at the repository root.
func (c *Config) normalize() {
	if c.RepositoryPath == "" {
		c.RepositoryPath = "."
	}
	c.WorkflowsDir = c.anchor(c.WorkflowsDir)
	c.Sync.Dir = c.anchor(c.Sync.Dir)
	c.Cache.Path = c.anchor(c.Cache.Path)
}

func (c *Config) anchor(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.RepositoryPath, path)
}
