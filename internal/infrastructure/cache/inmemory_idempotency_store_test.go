package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*InMemoryIdempotencyStore, *shared.ManualClock) {
	t.Helper()
	clock := shared.NewManualClock(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	store := NewInMemoryIdempotencyStore(WithClock(clock), WithSweepInterval(0))
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func TestInMemoryIdempotencyStore_Claim(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	first, err := store.Claim(ctx, "webhook:evt_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = store.Claim(ctx, "webhook:evt_1", time.Minute)
	require.NoError(t, err)
	assert.False(t, first, "key is held until it expires")

	clock.Advance(time.Minute)
	first, err = store.Claim(ctx, "webhook:evt_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first, "expired key is claimable again")
}

func TestInMemoryIdempotencyStore_Seen(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	seen, err := store.Seen(ctx, "webhook:evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = store.Claim(ctx, "webhook:evt_1", time.Hour)
	require.NoError(t, err)
	seen, _ = store.Seen(ctx, "webhook:evt_1")
	assert.True(t, seen)

	clock.Advance(2 * time.Hour)
	seen, _ = store.Seen(ctx, "webhook:evt_1")
	assert.False(t, seen)
}

func TestInMemoryIdempotencyStore_Forget(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Claim(ctx, "event:ledger:1", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Forget(ctx, "event:ledger:1"))
	require.NoError(t, store.Forget(ctx, "never-claimed"))

	first, err := store.Claim(ctx, "event:ledger:1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestInMemoryIdempotencyStore_Sweep(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	_, _ = store.Claim(ctx, "sweep:1", time.Minute)
	_, _ = store.Claim(ctx, "sweep:2", time.Minute)
	_, _ = store.Claim(ctx, "webhook:evt_9", shared.DefaultIdempotencyTTL)
	require.Equal(t, 3, store.Len())

	clock.Advance(time.Hour)
	assert.Equal(t, 2, store.sweep())
	assert.Equal(t, 1, store.Len())
	seen, _ := store.Seen(ctx, "webhook:evt_9")
	assert.True(t, seen)
}

func TestInMemoryIdempotencyStore_OneWinnerUnderContention(t *testing.T) {
	store, _ := newTestStore(t)
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if first, err := store.Claim(context.Background(), "payout:tx_1", time.Hour); err == nil && first {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore(WithSweepInterval(time.Millisecond))

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
