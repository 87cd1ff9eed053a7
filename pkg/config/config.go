package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BatchConfig controls concurrency and batching of the crawl run.
type BatchConfig struct {
	ChannelConcurrency int    `yaml:"channel_concurrency"`
	ItemConcurrency    int    `yaml:"item_concurrency"`
	BatchSize          int    `yaml:"batch_size"`
	MemoryLimitMB      int    `yaml:"memory_limit_mb,omitempty"`
	ProgressFile       string `yaml:"progress_file,omitempty"`
}

// QuotaConfig controls the shared daily operation budget.
type QuotaConfig struct {
	DailyLimit int `yaml:"daily_limit"`
	// Costs overrides the built-in per-operation cost table.
	Costs map[string]int `yaml:"costs,omitempty"`
}

// RetryConfig controls the backoff policy for transient failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay,omitempty"`
	Backoff     float64       `yaml:"backoff,omitempty"`
	MaxDelay    time.Duration `yaml:"max_delay,omitempty"`
}

// BreakerConfig controls the per-dependency circuit breakers.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout,omitempty"`
}

// RateConfig controls the shared token-bucket request limiter.
type RateConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst,omitempty"`
}

// CacheConfig controls the local caption cache.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	StateDir string `yaml:"state_dir,omitempty"`
}

// AppConfig holds the global application configuration.
type AppConfig struct {
	Batch   BatchConfig   `yaml:"batch"`
	Quota   QuotaConfig   `yaml:"quota"`
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
	Rate    RateConfig    `yaml:"rate"`
	Cache   CacheConfig   `yaml:"cache"`

	OutputDir string `yaml:"output_dir,omitempty"`
	Language  string `yaml:"language,omitempty"`

	// Channels may be listed directly in the config file in addition to the
	// CLI flags.
	Channels []string `yaml:"channels,omitempty"`
}

// Load reads and parses the YAML config file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}
	return &cfg, nil
}
