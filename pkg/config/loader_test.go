package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, writeFile(path, "data_path: /srv/activetigger\nmax_loaded_projects: 3\n"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/activetigger", cfg.DataPath)
	assert.Equal(t, 3, cfg.MaxLoadedProjects)
	// fields the file didn't set still come from defaults
	assert.Equal(t, Default().Queue.NWorkersCPU, cfg.Queue.NWorkersCPU)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, writeFile(path, "data_path: [unterminated\n"))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DATA_PATH", "/from/env")
	t.Setenv("MAX_LOADED_PROJECTS", "7")
	t.Setenv("UPDATE_TIMEOUT", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.DataPath)
	assert.Equal(t, 7, cfg.MaxLoadedProjects)
	assert.Equal(t, 2*time.Second, cfg.Queue.UpdateTimeout)
}

func TestUpdateTimeoutAcceptsGoDurationString(t *testing.T) {
	t.Setenv("UPDATE_TIMEOUT", "500ms")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.UpdateTimeout)
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}
