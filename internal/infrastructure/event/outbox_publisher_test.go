package event

import (
	"context"
	"errors"
	"testing"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestOutboxPublisher_SaveEvents_InTransaction(t *testing.T) {
	db := setupOutboxDB(t)
	serializer := NewEventSerializer()
	publisher := NewOutboxPublisher(serializer)
	ctx := context.Background()

	event := newTestEvent("TestEvent")
	err := db.Transaction(func(tx *gorm.DB) error {
		return publisher.SaveEvents(ctx, tx, event)
	})
	require.NoError(t, err)

	pending, err := NewGormOutboxRepository(db).FindDue(ctx, testNow, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, event.EventID(), pending[0].EventID)
	assert.Equal(t, "TestEvent", pending[0].EventType)
	assert.Equal(t, shared.OutboxStatusPending, pending[0].Status)
}

func TestOutboxPublisher_SaveEvents_RolledBackWithTransaction(t *testing.T) {
	db := setupOutboxDB(t)
	publisher := NewOutboxPublisher(NewEventSerializer())
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := publisher.SaveEvents(ctx, tx, newTestEvent("TestEvent")); err != nil {
			return err
		}
		return errors.New("aggregate save failed")
	})
	require.Error(t, err)

	pending, err := NewGormOutboxRepository(db).FindDue(ctx, testNow, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxPublisher_SaveEvents_RejectsUnknownTransaction(t *testing.T) {
	publisher := NewOutboxPublisher(NewEventSerializer())

	err := publisher.SaveEvents(context.Background(), "not a tx", newTestEvent("TestEvent"))

	assert.ErrorContains(t, err, "outbox needs a *gorm.DB transaction, got string")
}

func TestOutboxPublisher_SaveEvents_NoEvents(t *testing.T) {
	publisher := NewOutboxPublisher(NewEventSerializer())

	assert.NoError(t, publisher.SaveEvents(context.Background(), nil))
}

func TestOutboxPublisher_WithMaxRetries(t *testing.T) {
	db := setupOutboxDB(t)
	publisher := NewOutboxPublisher(NewEventSerializer(), WithMaxRetries(8))
	ctx := context.Background()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return publisher.SaveEvents(ctx, tx, newTestEvent("TestEvent"))
	}))

	pending, err := NewGormOutboxRepository(db).FindDue(ctx, testNow, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 8, pending[0].MaxRetries)
}
