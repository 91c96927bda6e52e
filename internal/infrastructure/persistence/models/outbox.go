package models

import (
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// OutboxEntryModel is a row of outbox_events. Rows are inserted in the
// transaction that changes the agreement or escrow account raising the event.
type OutboxEntryModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	EventID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	EventType     string    `gorm:"type:varchar(255);not null"`
	AggregateID   uuid.UUID `gorm:"type:uuid;not null"`
	AggregateType string    `gorm:"type:varchar(255);not null"`
	Payload       []byte    `gorm:"type:jsonb;not null"`

	OutboxDelivery `gorm:"embedded"`

	CreatedAt time.Time `gorm:"not null;index:idx_outbox_status_created,priority:2"`
	UpdatedAt time.Time `gorm:"not null"`
}

// OutboxDelivery holds the retry state columns
type OutboxDelivery struct {
	Status      shared.OutboxStatus `gorm:"type:varchar(20);default:PENDING;index:idx_outbox_status_created,priority:1"`
	RetryCount  int                 `gorm:"default:0"`
	MaxRetries  int                 `gorm:"default:5"`
	LastError   string              `gorm:"type:text"`
	NextRetryAt *time.Time          `gorm:"index:idx_outbox_next_retry"`
	ProcessedAt *time.Time
}

func (OutboxEntryModel) TableName() string {
	return "outbox_events"
}

// ToDomain converts the row into an outbox entry
func (m *OutboxEntryModel) ToDomain() *shared.OutboxEntry {
	d := m.OutboxDelivery
	return &shared.OutboxEntry{
		ID: m.ID, EventID: m.EventID, EventType: m.EventType,
		AggregateID: m.AggregateID, AggregateType: m.AggregateType, Payload: m.Payload,
		Status: d.Status, RetryCount: d.RetryCount, MaxRetries: d.MaxRetries,
		LastError: d.LastError, NextRetryAt: d.NextRetryAt, ProcessedAt: d.ProcessedAt,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

// OutboxEntryModelFromDomain builds the row for an outbox entry
func OutboxEntryModelFromDomain(e *shared.OutboxEntry) *OutboxEntryModel {
	return &OutboxEntryModel{
		ID: e.ID, EventID: e.EventID, EventType: e.EventType,
		AggregateID: e.AggregateID, AggregateType: e.AggregateType, Payload: e.Payload,
		OutboxDelivery: OutboxDelivery{
			Status: e.Status, RetryCount: e.RetryCount, MaxRetries: e.MaxRetries,
			LastError: e.LastError, NextRetryAt: e.NextRetryAt, ProcessedAt: e.ProcessedAt,
		},
		CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}
}
