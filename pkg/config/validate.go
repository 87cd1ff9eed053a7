package config

import (
	"fmt"
	"time"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Batch
	if c.Batch.ChannelConcurrency <= 0 {
		warnings = append(warnings, "batch.channel_concurrency should be > 0, defaulting to 3")
		c.Batch.ChannelConcurrency = 3
	}
	if c.Batch.ItemConcurrency <= 0 {
		warnings = append(warnings, "batch.item_concurrency should be > 0, defaulting to 5")
		c.Batch.ItemConcurrency = 5
	}
	if c.Batch.BatchSize <= 0 {
		warnings = append(warnings, "batch.batch_size should be > 0, defaulting to 50")
		c.Batch.BatchSize = 50
	}
	if c.Batch.MemoryLimitMB < 0 {
		warnings = append(warnings, "batch.memory_limit_mb cannot be negative, disabling memory gate")
		c.Batch.MemoryLimitMB = 0
	}
	if c.Batch.ProgressFile == "" {
		warnings = append(warnings, "batch.progress_file is empty, defaulting to './crawl_progress.json'")
		c.Batch.ProgressFile = "./crawl_progress.json"
	}

	// Quota
	if c.Quota.DailyLimit <= 0 {
		warnings = append(warnings, "quota.daily_limit should be > 0, defaulting to 10000")
		c.Quota.DailyLimit = 10000
	}
	for op, cost := range c.Quota.Costs {
		if cost <= 0 {
			return warnings, fmt.Errorf("quota.costs['%s'] must be positive, got %d", op, cost)
		}
	}

	// Retry
	if c.Retry.MaxAttempts <= 0 {
		warnings = append(warnings, "retry.max_attempts should be > 0, defaulting to 3")
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = 1 * time.Second
	}
	if c.Retry.Backoff < 1 {
		c.Retry.Backoff = 2
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 30 * time.Second
	}
	if c.Retry.BaseDelay > c.Retry.MaxDelay {
		warnings = append(warnings, fmt.Sprintf(
			"retry.base_delay (%v) > retry.max_delay (%v), using max_delay for base",
			c.Retry.BaseDelay, c.Retry.MaxDelay))
		c.Retry.BaseDelay = c.Retry.MaxDelay
	}

	// Breaker
	if c.Breaker.FailureThreshold <= 0 {
		warnings = append(warnings, "breaker.failure_threshold should be > 0, defaulting to 5")
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.RecoveryTimeout <= 0 {
		c.Breaker.RecoveryTimeout = 60 * time.Second
	}

	// Rate
	if c.Rate.RequestsPerSecond <= 0 {
		warnings = append(warnings, "rate.requests_per_second should be > 0, defaulting to 5")
		c.Rate.RequestsPerSecond = 5
	}
	if c.Rate.Burst <= 0 {
		c.Rate.Burst = 10
	}

	// Cache
	if c.Cache.Enabled && c.Cache.StateDir == "" {
		warnings = append(warnings, "cache.state_dir is empty, defaulting to './caption_cache'")
		c.Cache.StateDir = "./caption_cache"
	}

	// Output / language
	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to './captions'")
		c.OutputDir = "./captions"
	}
	if c.Language == "" {
		c.Language = "en"
	}

	return warnings, nil
}
