package shared

import (
	"context"
	"time"
)

// DefaultIdempotencyTTL covers Stripe's three day webhook retry window
const DefaultIdempotencyTTL = 72 * time.Hour

// IdempotencyStore remembers keys of work already done, such as gateway
// webhook ids, outbox event deliveries and sweep windows.
type IdempotencyStore interface {
	// Claim records key for ttl. first is false when the key was already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (first bool, err error)
	// Seen reports whether key is held
	Seen(ctx context.Context, key string) (bool, error)
	// Forget drops key so the next Claim wins, used after the work failed
	Forget(ctx context.Context, key string) error
	Close() error
}

// IdempotencyConfig tunes duplicate suppression for event subscribers
type IdempotencyConfig struct {
	TTL     time.Duration
	Enabled bool
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{TTL: DefaultIdempotencyTTL, Enabled: true}
}
