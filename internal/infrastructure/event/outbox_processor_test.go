package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type processorFixture struct {
	repo       *GormOutboxRepository
	serializer *EventSerializer
	bus        *InMemoryEventBus
	clock      *shared.ManualClock
	processor  *OutboxProcessor
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	repo, serializer := newOutboxFixture(t)
	bus := startedBus(t)
	clock := shared.NewManualClock(testNow)

	cfg := DefaultOutboxProcessorConfig()
	cfg.CleanupEnabled = false
	return &processorFixture{
		repo:       repo,
		serializer: serializer,
		bus:        bus,
		clock:      clock,
		processor:  NewOutboxProcessor(repo, bus, serializer, cfg, clock, zap.NewNop()),
	}
}

func TestOutboxProcessor_ProcessOnce_DeliversPending(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	handler := newTestHandler("TestEvent")
	f.bus.Subscribe(handler)

	event := newTestEvent("TestEvent")
	entry := newTestEntry(t, f.serializer, event)
	require.NoError(t, f.repo.Save(ctx, entry))

	assert.Equal(t, 1, f.processor.ProcessOnce(ctx))

	handled := handler.getHandled()
	require.Len(t, handled, 1)
	assert.Equal(t, event.EventID(), handled[0].EventID())

	stored, err := f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusSent, stored.Status)
	require.NotNil(t, stored.ProcessedAt)
	assert.True(t, testNow.Equal(*stored.ProcessedAt))

	assert.Zero(t, f.processor.ProcessOnce(ctx), "sent entries are not delivered twice")
}

func TestOutboxProcessor_ProcessOnce_RetriesAfterBackoff(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	handler := newTestHandler("TestEvent")
	handler.setError(errors.New("downstream unavailable"))
	f.bus.Subscribe(handler)

	entry := newTestEntry(t, f.serializer, newTestEvent("TestEvent"))
	require.NoError(t, f.repo.Save(ctx, entry))

	assert.Zero(t, f.processor.ProcessOnce(ctx))
	stored, err := f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Contains(t, stored.LastError, "downstream unavailable")

	assert.Zero(t, f.processor.ProcessOnce(ctx), "retry waits for the backoff")
	assert.Len(t, handler.getHandled(), 1)

	handler.setError(nil)
	f.clock.Advance(2 * time.Second)
	assert.Equal(t, 1, f.processor.ProcessOnce(ctx))

	stored, err = f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusSent, stored.Status)
}

func TestOutboxProcessor_ProcessOnce_DeadLetter(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	// No serializer registration for this type, so delivery can never succeed.
	entry := newTestEntry(t, f.serializer, newTestEvent("UnregisteredEvent"))
	entry.MaxRetries = 2
	require.NoError(t, f.repo.Save(ctx, entry))

	f.processor.ProcessOnce(ctx)
	f.clock.Advance(time.Minute)
	f.processor.ProcessOnce(ctx)

	stored, err := f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusDead, stored.Status)
	assert.Contains(t, stored.LastError, "unknown event type")
}

func TestOutboxProcessor_Housekeep(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	abandoned := newTestEntry(t, f.serializer, newTestEvent("TestEvent"))
	delivered := newTestEntry(t, f.serializer, newTestEvent("TestEvent"))
	require.NoError(t, f.repo.Save(ctx, abandoned, delivered))
	_, err := f.repo.Claim(ctx, []uuid.UUID{abandoned.ID}, testNow)
	require.NoError(t, err)
	delivered.MarkSent(testNow)
	require.NoError(t, f.repo.Update(ctx, delivered))

	f.clock.Advance(8 * 24 * time.Hour)
	f.processor.housekeep(ctx)

	stored, err := f.repo.FindByID(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusFailed, stored.Status)

	_, err = f.repo.FindByID(ctx, delivered.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	handler := newTestHandler("TestEvent")
	f.bus.Subscribe(handler)
	assert.Equal(t, 1, f.processor.ProcessOnce(ctx), "a released entry is delivered again")
}

func TestOutboxProcessor_StartStop(t *testing.T) {
	f := newProcessorFixture(t)
	handler := newTestHandler("TestEvent")
	f.bus.Subscribe(handler)

	require.NoError(t, f.repo.Save(context.Background(), newTestEntry(t, f.serializer, newTestEvent("TestEvent"))))

	cfg := DefaultOutboxProcessorConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.CleanupInterval = 10 * time.Millisecond
	processor := NewOutboxProcessor(f.repo, f.bus, f.serializer, cfg, f.clock, zap.NewNop())

	require.NoError(t, processor.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return len(handler.getHandled()) == 1
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, processor.Stop(ctx))
}
