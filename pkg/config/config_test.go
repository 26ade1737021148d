package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.Upload.Concurrency)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.Retry.MinDelay)
	assert.Equal(t, 3*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.DownloadTimeout)
	assert.Equal(t, "flows", cfg.Storage.KeyPrefix)
	assert.Equal(t, "info", cfg.Logging.Level)

	// Defaults alone must be a runnable configuration.
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FLOWVAULT_BUCKET", "flow-archive")
	t.Setenv("FLOWVAULT_UPLOAD_WORKERS", "4")
	t.Setenv("FLOWVAULT_MAX_RETRIES", "5")
	t.Setenv("FLOWVAULT_DELAY_MIN", "500ms")
	t.Setenv("FLOWVAULT_DELAY_MAX", "2s")
	t.Setenv("FLOWVAULT_DOWNLOAD_TIMEOUT", "90s")
	t.Setenv("FLOWVAULT_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "flow-archive", cfg.Storage.Bucket)
	assert.Equal(t, 4, cfg.Upload.Concurrency)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.MinDelay)
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.DownloadTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("FLOWVAULT_UPLOAD_WORKERS", "not-a-number")
	t.Setenv("FLOWVAULT_MAX_RETRIES", "-2")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 10, cfg.Upload.Concurrency)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  bucket: yaml-bucket
  key_prefix: app_flows
upload:
  concurrency: 7
pipeline:
  apps_file: my_apps.json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "yaml-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "app_flows", cfg.Storage.KeyPrefix)
	assert.Equal(t, 7, cfg.Upload.Concurrency)
	assert.Equal(t, "my_apps.json", cfg.Pipeline.AppsFile)
	// Untouched sections keep defaults.
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Upload.Concurrency = 0 }},
		{"excessive concurrency", func(c *Config) { c.Upload.Concurrency = 100 }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"inverted jitter window", func(c *Config) { c.Retry.MinDelay = 5 * time.Second; c.Retry.MaxDelay = time.Second }},
		{"zero download timeout", func(c *Config) { c.Pipeline.DownloadTimeout = 0 }},
		{"missing staging dir", func(c *Config) { c.Pipeline.StagingDir = "" }},
		{"missing checkpoint dir", func(c *Config) { c.Pipeline.CheckpointDir = "" }},
		{"no storage target", func(c *Config) { c.Storage.Bucket = ""; c.Storage.LocalDir = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"bucket":      "flag-bucket",
		"concurrent":  5,
		"max-retries": 7,
		"limit":       5,
		"log-level":   "warn",
	})

	assert.Equal(t, "flag-bucket", cfg.Storage.Bucket)
	assert.Equal(t, 5, cfg.Upload.Concurrency)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Pipeline.FlowLimit)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Storage.Bucket = "saved-bucket"
	require.NoError(t, cfg.Save(path))

	reloaded := DefaultConfig()
	require.NoError(t, reloaded.LoadFromFile(path))
	assert.Equal(t, "saved-bucket", reloaded.Storage.Bucket)
}
