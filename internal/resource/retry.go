package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig retries twice with backoff min(1s*2^n, 30s).
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     2,
	InitialBackoff: time.Second,
	MaxBackoff:     30 * time.Second,
}

// WithRetry runs fn until it succeeds, retries are exhausted, ctx is done or
// retryable reports false for the last error.
func WithRetry(ctx context.Context, cfg RetryConfig, log zerolog.Logger, retryable func(error) bool, fn func() error) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt < cfg.MaxRetries {
			log.Warn().Err(err).Int("attempt", attempt+1).Int("max", cfg.MaxRetries).Msg("fetch attempt failed")
		}
	}

	if cfg.MaxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
