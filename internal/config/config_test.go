package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("CONSULT_ANALYSIS_API_KEY", "")
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "portaudio", cfg.Audio.Backend)
	assert.Equal(t, "gemini-1.5-flash", cfg.Analysis.Model)
	assert.Equal(t, 0.95, cfg.Analysis.TopP)
	assert.Equal(t, int64(40), cfg.Analysis.TopK)
	assert.Equal(t, int64(8192), cfg.Analysis.MaxOutputTokens)
	assert.Equal(t, 2*time.Minute, cfg.Analysis.Timeout())
	assert.Equal(t, "127.0.0.1:5000", cfg.Server.Listen)
	assert.Equal(t, filepath.Join(DataPath(), "recordings"), cfg.Storage.RecordingsDir)
	assert.Empty(t, cfg.Archive.Bucket)
	assert.Equal(t, path, cfg.Path())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"log_level": "debug",
		"audio": {"backend": "malgo", "device_id": "USB Mic"},
		"analysis": {"api_key": "file-key", "temperature": 0.4, "timeout_seconds": 30},
		"archive": {"bucket": "records"}
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "malgo", cfg.Audio.Backend)
	assert.Equal(t, "USB Mic", cfg.Audio.DeviceID)
	assert.Equal(t, "file-key", cfg.Analysis.APIKey)
	assert.Equal(t, 0.4, cfg.Analysis.Temperature)
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout())
	assert.Equal(t, "records", cfg.Archive.Bucket)
	// untouched keys keep their defaults
	assert.Equal(t, "gemini-1.5-flash", cfg.Analysis.Model)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONSULT_ANALYSIS_MODEL", "gemini-2.0-flash")
	t.Setenv("CONSULT_SERVER_LISTEN", ":8080")
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.0-flash", cfg.Analysis.Model)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "env-key", cfg.Analysis.APIKey)
}

func TestLoadInvalidFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	cfg.Audio.DeviceID = "Built-in Microphone"
	cfg.Analysis.APIKey = "saved-key"
	require.NoError(t, cfg.Save())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Built-in Microphone", again.Audio.DeviceID)
	assert.Equal(t, "saved-key", again.Analysis.APIKey)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestSaveDoesNotPersistEnvKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "env-key")
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw["analysis"], "api_key")
	assert.NotContains(t, string(data), "env-key")
}

func TestConfigPathUsesXDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG paths are linux only")
	}
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	assert.Equal(t, "/tmp/xdg-config/consult-recorder/config.json", configPath())
	assert.Equal(t, "/tmp/xdg-data/consult-recorder", DataPath())
}
