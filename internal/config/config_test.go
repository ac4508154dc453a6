package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, ProjectDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0o644))
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, root, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(root, ProjectDir), cfg.DefinitionsDir)
	assert.Equal(t, filepath.Join(root, ProjectDir, "directives"), cfg.DirectivesDir)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 30*time.Minute, cfg.TierCacheTTL)
	assert.True(t, cfg.Metadata.Enabled)
	assert.Equal(t, 200, cfg.Scope.DescriptionBudget)
	assert.Contains(t, cfg.Scope.GlobalFiles, "go.mod")
	assert.Contains(t, cfg.Scope.GlobalPaths, "src")
	assert.Equal(t, filepath.Join(cfg.DataDir, "ctxkeeper.log"), cfg.Log.File)
	assert.Equal(t, filepath.Join(root, ProjectDir, "themes"), cfg.ThemesDir())
	assert.Equal(t, filepath.Join(root, ProjectDir, "flows"), cfg.FlowsDir())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
store_timeout: 500ms
tier_cache_ttl: 0s
metadata:
  enabled: false
scope:
  memory_ceiling: 1024
  global_files: [Taskfile.yml]
`)

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, time.Duration(0), cfg.TierCacheTTL)
	assert.False(t, cfg.Metadata.Enabled)
	assert.Equal(t, 1024, cfg.Scope.MemoryCeiling)
	assert.Equal(t, []string{"Taskfile.yml"}, cfg.Scope.GlobalFiles)
	// untouched keys keep defaults
	assert.Equal(t, 200, cfg.Scope.DescriptionBudget)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "log:\n  level: warn\n")
	t.Setenv("CTXKEEPER_LOG_LEVEL", "debug")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative ttl", "tier_cache_ttl: -1s\n"},
		{"zero budget", "scope:\n  description_budget: 0\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"broken yaml", "scope: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeConfig(t, root, tt.content)
			_, err := Load(root)
			assert.Error(t, err)
		})
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ProjectDir), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Equal(t, root, FindProjectRoot(nested))

	bare := t.TempDir()
	assert.Equal(t, bare, FindProjectRoot(bare))
}
