package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFileOrEnv(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "./data/engine.db", cfg.DBPath)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestLoadFile_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /var/lib/engine/prod.db
max_retries: 5
transport_timeout: 20s
renewal_reminder_days: [14, 7, 1]
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/engine/prod.db", cfg.DBPath)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 20*time.Second, cfg.TransportTimeout)
	assert.Equal(t, []int{14, 7, 1}, cfg.RenewalReminderDays)
	// Unset in the file: still the built-in default.
	assert.Equal(t, "127.0.0.1:8765", cfg.APIBindAddr)
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_retries: 5\n"), 0o600))

	t.Setenv("ENGINE_MAX_RETRIES", "9")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxRetries, "an env var always wins over the file")
}

func TestLoadFile_MissingFileReturnsError(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoad_HonoursEngineConfigFileEnvVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_bind_addr: 0.0.0.0:9000\n"), 0o600))

	t.Setenv("ENGINE_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.APIBindAddr)
}
