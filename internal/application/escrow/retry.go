package escrow

import (
	"context"
	"time"
)

// PayoutRetryConfig bounds the retries of a transient payout failure
type PayoutRetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPayoutRetryConfig tries three times starting at 200ms, capped at 2s
func DefaultPayoutRetryConfig() PayoutRetryConfig {
	return PayoutRetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

func (c PayoutRetryConfig) normalized() PayoutRetryConfig {
	def := DefaultPayoutRetryConfig()
	if c.MaxAttempts < 1 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	return c
}

// backoff returns the delay before the retry following attempt (1-based)
func (c PayoutRetryConfig) backoff(attempt int) time.Duration {
	// Prevent overflow
	if attempt > 30 {
		return c.MaxDelay
	}
	delay := c.BaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
