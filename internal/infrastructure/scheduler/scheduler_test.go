package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSweeper struct {
	calls     atomic.Int32
	marked    int
	err       error
	mu        sync.Mutex
	batchSize int
	deadline  bool
}

func (f *fakeSweeper) SweepOverdueMilestones(ctx context.Context, batchSize int) (int, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.batchSize = batchSize
	_, f.deadline = ctx.Deadline()
	f.mu.Unlock()
	return f.marked, f.err
}

type failingLease struct{}

func (failingLease) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func testConfig() OverdueSweepConfig {
	return OverdueSweepConfig{
		Enabled:   true,
		Interval:  10 * time.Millisecond,
		BatchSize: 50,
		Timeout:   time.Second,
	}
}

func TestOverdueSweepConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultOverdueSweepConfig().Validate())

	cfg := testConfig()
	cfg.Interval = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = testConfig()
	cfg.BatchSize = -1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = testConfig()
	cfg.Timeout = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := NewOverdueSweeper(OverdueSweepConfig{}, &fakeSweeper{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOverdueSweeper_RunOnce(t *testing.T) {
	sweeper := &fakeSweeper{marked: 3}
	clock := shared.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s, err := NewOverdueSweeper(testConfig(), sweeper, zap.NewNop(), WithClock(clock))
	require.NoError(t, err)

	marked, err := s.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, marked)
	assert.Equal(t, 50, sweeper.batchSize)
	assert.True(t, sweeper.deadline)
	at, count := s.LastRun()
	assert.Equal(t, clock.Now(), at)
	assert.Equal(t, 3, count)
}

func TestOverdueSweeper_RunOnce_Error(t *testing.T) {
	sweeper := &fakeSweeper{marked: 1, err: errors.New("db gone")}
	s, err := NewOverdueSweeper(testConfig(), sweeper, nil)
	require.NoError(t, err)

	marked, err := s.RunOnce(context.Background())

	assert.EqualError(t, err, "db gone")
	assert.Equal(t, 1, marked)
}

func TestOverdueSweeper_Lease(t *testing.T) {
	clock := shared.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := cache.NewInMemoryIdempotencyStore(cache.WithClock(clock))
	defer store.Close()

	cfg := testConfig()
	cfg.Interval = time.Minute
	first := &fakeSweeper{}
	second := &fakeSweeper{}
	a, err := NewOverdueSweeper(cfg, first, nil, WithLease(store), WithClock(clock))
	require.NoError(t, err)
	b, err := NewOverdueSweeper(cfg, second, nil, WithLease(store), WithClock(clock))
	require.NoError(t, err)

	_, err = a.RunOnce(context.Background())
	require.NoError(t, err)
	_, err = b.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrSweepSkipped)
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(0), second.calls.Load())

	// next window is free again
	clock.Advance(time.Minute)
	_, err = b.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), second.calls.Load())
}

func TestOverdueSweeper_LeaseError(t *testing.T) {
	sweeper := &fakeSweeper{}
	s, err := NewOverdueSweeper(testConfig(), sweeper, nil, WithLease(failingLease{}))
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())

	assert.ErrorContains(t, err, "claim sweep lease")
	assert.Equal(t, int32(0), sweeper.calls.Load())
}

func TestOverdueSweeper_StartStop(t *testing.T) {
	sweeper := &fakeSweeper{}
	s, err := NewOverdueSweeper(testConfig(), sweeper, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
	require.NoError(t, s.Stop(ctx))

	calls := sweeper.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, sweeper.calls.Load())
}

func TestOverdueSweeper_KeepsRunningAfterFailure(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("transient")}
	s, err := NewOverdueSweeper(testConfig(), sweeper, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
}

func TestOverdueSweeper_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	sweeper := &fakeSweeper{}
	s, err := NewOverdueSweeper(cfg, sweeper, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), sweeper.calls.Load())
}
