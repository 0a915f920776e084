package resilience

import (
	"time"

	"github.com/odgsully/renoscore/internal/config"
)

// BreakerConfigFrom converts scoring breaker settings, filling defaults
// for unset values.
func BreakerConfigFrom(cfg config.BreakerConfig) BreakerConfig {
	return BreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         time.Duration(cfg.ResetTimeoutSecs) * time.Second,
	}.withDefaults()
}

// ChunkRetryConfig returns the retry policy for scoring one chunk:
// maxRetries retries after the first attempt. Every failed attempt is
// retried; the caller decides what counts as a failure.
func ChunkRetryConfig(maxRetries int, initialBackoff time.Duration) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = maxRetries + 1
	if initialBackoff > 0 {
		cfg.InitialBackoff = initialBackoff
	}
	cfg.MaxBackoff = 20 * time.Second
	cfg.ShouldRetry = func(error) bool { return true }
	return cfg
}
