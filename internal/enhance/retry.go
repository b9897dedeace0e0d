package enhance

import (
	"context"
	"time"
)

// RetryConfig defines retry behavior for provider calls.
type RetryConfig struct {
	// Attempts is the total number of tries including the first (default: 3).
	Attempts int
	// BaseDelay is the wait before the second attempt; it doubles on each
	// further attempt (default: 1s, so 1s, 2s, 4s, ...).
	BaseDelay time.Duration
}

const (
	defaultRetryAttempts = 3
	defaultBaseDelay     = time.Second
)

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = defaultRetryAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	return c
}

// WithRetry invokes fn up to cfg.Attempts times with exponentially growing
// delays between tries. Only errors marked transient are retried; anything
// else is returned immediately. The sleep honors context cancellation.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	cfg = cfg.withDefaults()

	delay := cfg.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt >= cfg.Attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
