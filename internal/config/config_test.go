package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	repo := t.TempDir()

	cfg, err := Load(repo)
	require.NoError(t, err)

	assert.Equal(t, repo, cfg.RepositoryPath)
	assert.Equal(t, filepath.Join(repo, "workflows"), cfg.WorkflowsDir)
	assert.True(t, cfg.Sync.Enabled)
	assert.Equal(t, filepath.Join(repo, "sessions"), cfg.Sync.Dir)
	assert.Equal(t, "markdown", cfg.Sync.Format)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, filepath.Join(repo, ".stride", "cache.db"), cfg.Cache.Path)
	assert.Equal(t, "cosine", cfg.Cache.Metric)
	assert.Equal(t, 256, cfg.Cache.Dimensions)
	assert.Equal(t, 24*7, cfg.RetentionHours)
}

func TestLoadConfigFile(t *testing.T) {
	repo := t.TempDir()
	content := "sync:\n  enabled: false\n  format: json\ncache:\n  metric: l2\n  dimensions: 64\nretention_hours: 48\n"
	require.NoError(t, os.WriteFile(filepath.Join(repo, "stride.yaml"), []byte(content), 0o644))

	cfg, err := Load(repo)
	require.NoError(t, err)

	assert.False(t, cfg.Sync.Enabled)
	assert.Equal(t, "json", cfg.Sync.Format)
	assert.Equal(t, "l2", cfg.Cache.Metric)
	assert.Equal(t, 64, cfg.Cache.Dimensions)
	assert.Equal(t, 48, cfg.RetentionHours)
}

func TestLoadEnvOverride(t *testing.T) {
	repo := t.TempDir()
	t.Setenv("STRIDE_SYNC_FORMAT", "json")
	t.Setenv("STRIDE_CACHE_METRIC", "ip")

	cfg, err := Load(repo)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Sync.Format)
	assert.Equal(t, "ip", cfg.Cache.Metric)
}

func TestAbsolutePathsAreKept(t *testing.T) {
	repo := t.TempDir()
	abs := filepath.Join(t.TempDir(), "elsewhere")
	t.Setenv("STRIDE_WORKFLOWS_DIR", abs)

	cfg, err := Load(repo)
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.WorkflowsDir)
}

func TestLoadBadConfigFile(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "stride.yaml"), []byte("sync: ["), 0o644))

	_, err := Load(repo)
	assert.Error(t, err)
}
