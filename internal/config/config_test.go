package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaults(t *testing.T) {
	t.Setenv("EXPLORER_CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.PageSize)
	assert.Equal(t, 500, cfg.DebounceMs)

	_, err = os.Stat(ConfigPath())
	assert.NoError(t, err)
}

func TestLoadReadsExisting(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EXPLORER_CONFIG_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"page_size": 25}`), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.PageSize)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, 10.0, cfg.RequestsPerSecond)
}

func TestEnvOverridesBaseURL(t *testing.T) {
	t.Setenv("EXPLORER_CONFIG_DIR", t.TempDir())
	t.Setenv("DATA_BASE_URL", "https://example.org/catalog")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/catalog", cfg.BaseURL)
}
