package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvent struct {
	BaseDomainEvent
}

var outboxNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewOutboxEntry(t *testing.T) {
	evt := &stubEvent{BaseDomainEvent: NewBaseDomainEvent("PayoutRequested", "EscrowAccount", uuid.New(), outboxNow)}

	entry := NewOutboxEntry(evt, []byte(`{}`), 0)

	assert.Equal(t, evt.EventID(), entry.EventID)
	assert.Equal(t, "PayoutRequested", entry.EventType)
	assert.Equal(t, "EscrowAccount", entry.AggregateType)
	assert.Equal(t, OutboxStatusPending, entry.Status)
	assert.Equal(t, DefaultMaxRetries, entry.MaxRetries)
	assert.Equal(t, outboxNow, entry.CreatedAt)

	assert.Equal(t, 9, NewOutboxEntry(evt, nil, 9).MaxRetries)
}

func TestOutboxBackoff(t *testing.T) {
	tests := map[int]time.Duration{
		-1:  0,
		0:   0,
		1:   time.Second,
		2:   2 * time.Second,
		5:   16 * time.Second,
		9:   256 * time.Second,
		10:  MaxBackoff,
		64:  MaxBackoff,
		500: MaxBackoff,
	}
	for failures, want := range tests {
		assert.Equal(t, want, OutboxBackoff(failures), "failures=%d", failures)
	}
}

func TestOutboxEntry_MarkFailed(t *testing.T) {
	t.Run("schedules backoff", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusProcessing, MaxRetries: 5}

		entry.MarkFailed("bus down", outboxNow)
		require.NotNil(t, entry.NextRetryAt)
		assert.Equal(t, OutboxStatusFailed, entry.Status)
		assert.Equal(t, outboxNow.Add(time.Second), *entry.NextRetryAt)

		entry.MarkFailed("bus down", outboxNow)
		assert.Equal(t, outboxNow.Add(2*time.Second), *entry.NextRetryAt)
		assert.Equal(t, 2, entry.RetryCount)
	})

	t.Run("dies when the budget is spent", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusProcessing, MaxRetries: 2}
		entry.MarkFailed("one", outboxNow)
		entry.MarkFailed("two", outboxNow)

		assert.True(t, entry.IsDead())
		assert.Nil(t, entry.NextRetryAt)
		assert.Equal(t, "two", entry.LastError)
	})
}

func TestOutboxEntry_MarkProcessing(t *testing.T) {
	for _, status := range []OutboxStatus{OutboxStatusPending, OutboxStatusFailed} {
		entry := &OutboxEntry{Status: status}
		assert.NoError(t, entry.MarkProcessing(outboxNow))
		assert.Equal(t, OutboxStatusProcessing, entry.Status)
		assert.Equal(t, outboxNow, entry.UpdatedAt)
	}

	for _, status := range []OutboxStatus{OutboxStatusProcessing, OutboxStatusSent, OutboxStatusDead} {
		entry := &OutboxEntry{Status: status}
		assert.ErrorIs(t, entry.MarkProcessing(outboxNow), ErrOutboxTransition)
		assert.Equal(t, status, entry.Status)
	}
}

func TestOutboxEntry_ResetForRetry(t *testing.T) {
	t.Run("revives a dead entry", func(t *testing.T) {
		entry := &OutboxEntry{Status: OutboxStatusDead, RetryCount: 5, MaxRetries: 5, LastError: "boom"}
		require.NoError(t, entry.ResetForRetry(outboxNow))
		assert.Equal(t, OutboxStatusPending, entry.Status)
		assert.Zero(t, entry.RetryCount)
		assert.Empty(t, entry.LastError)
		assert.Equal(t, outboxNow, entry.UpdatedAt)
	})

	t.Run("refuses live entries", func(t *testing.T) {
		for _, status := range []OutboxStatus{OutboxStatusPending, OutboxStatusSent, OutboxStatusFailed} {
			entry := &OutboxEntry{Status: status, RetryCount: 1}
			err := entry.ResetForRetry(outboxNow)
			assert.ErrorIs(t, err, ErrOutboxTransition)
			assert.Equal(t, 1, entry.RetryCount)
		}
	})
}

func TestOutboxEntry_MarkSent(t *testing.T) {
	entry := &OutboxEntry{Status: OutboxStatusProcessing}
	entry.MarkSent(outboxNow)
	assert.Equal(t, OutboxStatusSent, entry.Status)
	require.NotNil(t, entry.ProcessedAt)
	assert.Equal(t, outboxNow, *entry.ProcessedAt)
}
