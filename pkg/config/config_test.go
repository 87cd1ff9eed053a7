package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
batch:
  channel_concurrency: 4
  item_concurrency: 8
  batch_size: 25
  memory_limit_mb: 512
  progress_file: ./state/progress.json
quota:
  daily_limit: 10000
  costs:
    search: 100
retry:
  max_attempts: 5
  base_delay: 2s
  backoff: 1.5
  max_delay: 20s
breaker:
  failure_threshold: 4
  recovery_timeout: 45s
rate:
  requests_per_second: 2.5
  burst: 5
cache:
  enabled: true
  state_dir: ./state/cache
output_dir: ./out
language: de
channels:
  - UC111
  - "@somehandle"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Batch.ChannelConcurrency)
	assert.Equal(t, 8, cfg.Batch.ItemConcurrency)
	assert.Equal(t, 25, cfg.Batch.BatchSize)
	assert.Equal(t, 512, cfg.Batch.MemoryLimitMB)
	assert.Equal(t, 10000, cfg.Quota.DailyLimit)
	assert.Equal(t, 100, cfg.Quota.Costs["search"])
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 1.5, cfg.Retry.Backoff)
	assert.Equal(t, 4, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 45*time.Second, cfg.Breaker.RecoveryTimeout)
	assert.Equal(t, 2.5, cfg.Rate.RequestsPerSecond)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "de", cfg.Language)
	assert.Equal(t, []string{"UC111", "@somehandle"}, cfg.Channels)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "batch: [not: a: mapping"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}
