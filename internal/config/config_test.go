package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestDefaultsAreComplete(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "moodatlas", cfg.Service.Name)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 1024, cfg.Bus.QueueSize)
	assert.Equal(t, "90s", cfg.Scheduler.LeaseDuration)
	assert.Equal(t, 10, cfg.Scheduler.StarvationBound)
	assert.Equal(t, 5, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 2, cfg.Aggregator.MinIntensitySupport)
	assert.Equal(t, "8080", cfg.Server.Port)

	// every duration field must already be parseable
	assert.NotPanics(t, func() {
		MustDuration(cfg.Scheduler.MinInterval)
		MustDuration(cfg.Pipeline.BaseBackoff)
		MustDuration(cfg.Aggregator.RetentionWindow)
	})
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[service]
name = "moodatlas-staging"

[scheduler]
workers = 8
lease_duration = "2m"

[pipeline]
max_attempts = 7
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "moodatlas-staging", cfg.Service.Name)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, "2m", cfg.Scheduler.LeaseDuration)
	assert.Equal(t, 7, cfg.Pipeline.MaxAttempts)

	// untouched sections keep their defaults
	assert.Equal(t, 1024, cfg.Bus.QueueSize)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
[scheduler]
lease_duration = "ninety seconds"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lease_duration")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestRetentionDefaultsFlowToAggregator(t *testing.T) {
	path := writeConfig(t, `
[storage]
retention = "240h"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "240h", cfg.Aggregator.RetentionWindow)
}
