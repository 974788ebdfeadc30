package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// clearEnv unsets every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		t.Setenv(strings.ToUpper(key), "")
		os.Unsetenv(strings.ToUpper(key))
	}
	t.Setenv(EnvConfigFile, "")
	os.Unsetenv(EnvConfigFile)
}

func writeYAML(t *testing.T, v any) string {
	t.Helper()
	data, err := yaml.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "fileroot.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoad_EnvOnly(t *testing.T) {
	clearEnv(t)
	dataDir := t.TempDir()
	t.Setenv("DATA_DIR", dataDir)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.EventsEnabled)
	assert.False(t, cfg.RateLimitEnabled())
	assert.Equal(t, ":3000", cfg.Addr())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("PORT", "8081")
	t.Setenv("LISTEN_HOST", "127.0.0.1")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("EVENTS_ENABLED", "false")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("METRICS_ADDR", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8081", cfg.Addr())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.EventsEnabled)
	assert.True(t, cfg.RateLimitEnabled())
	assert.Equal(t, 3, cfg.RateLimitBurst)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoad_MissingDataDir(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DataDir")
}

func TestLoad_DataDirMustBeDirectory(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	t.Setenv("DATA_DIR", file)

	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("DATA_DIR", filepath.Join(t.TempDir(), "missing"))
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":       "70000",
		"LOG_LEVEL":  "chatty",
		"LOG_FORMAT": "xml",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("DATA_DIR", t.TempDir())
			t.Setenv(key, value)

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	dataDir := t.TempDir()
	path := writeYAML(t, map[string]any{
		"data_dir":         dataDir,
		"port":             4000,
		"log_format":       "console",
		"shutdown_timeout": "5s",
		"rate_limit_rps":   10,
		"rate_limit_burst": 20,
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 20, cfg.RateLimitBurst)

	// Environment wins over the file.
	t.Setenv("PORT", "5000")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
}

func TestLoad_ConfigFileFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, map[string]any{"data_dir": t.TempDir(), "port": 4100})
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4100, cfg.Port)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_DIR", t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMarshalYAML_RoundTrip(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("SHUTDOWN_TIMEOUT", "42s")
	orig, err := Load("")
	require.NoError(t, err)

	data, err := yaml.Marshal(orig)
	require.NoError(t, err)
	assert.Contains(t, string(data), "shutdown_timeout: 42s")

	clearEnv(t)
	path := filepath.Join(t.TempDir(), "dump.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, orig, loaded)
}
