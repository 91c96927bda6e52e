package shared

import (
	"time"

	"github.com/google/uuid"
)

// AggregateRoot is what repositories need from an agreement or escrow
// account: a version for optimistic locking and the events raised since the
// last save.
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
	RecordEvent(event DomainEvent)
	PendingEvents() []DomainEvent
	ClearEvents()
	Restore(version int, pending []DomainEvent)
}

// BaseAggregateRoot implements AggregateRoot. A fresh aggregate starts at
// version 1; each successful save bumps it by one.
type BaseAggregateRoot struct {
	BaseEntity
	Version int
	pending []DomainEvent
}

func (a *BaseAggregateRoot) GetVersion() int { return a.Version }

func (a *BaseAggregateRoot) IncrementVersion() { a.Version++ }

// RecordEvent queues event for the outbox write on the next save
func (a *BaseAggregateRoot) RecordEvent(event DomainEvent) {
	a.pending = append(a.pending, event)
}

// PendingEvents returns the queued events in the order they were raised
func (a *BaseAggregateRoot) PendingEvents() []DomainEvent {
	return a.pending
}

// ClearEvents drops the queue once it is stored
func (a *BaseAggregateRoot) ClearEvents() {
	a.pending = nil
}

// Restore puts back the version and queue captured before a save whose
// transaction did not commit
func (a *BaseAggregateRoot) Restore(version int, pending []DomainEvent) {
	a.Version = version
	a.pending = pending
}

// NewBaseAggregateRoot starts an aggregate at version 1 with no events
func NewBaseAggregateRoot(id uuid.UUID, now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity(id, now), Version: 1}
}

// RestoreBaseAggregateRoot rebuilds the bookkeeping of a loaded aggregate
func RestoreBaseAggregateRoot(id uuid.UUID, createdAt, updatedAt time.Time, version int) BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: BaseEntity{ID: id, CreatedAt: createdAt, UpdatedAt: updatedAt},
		Version:    version,
	}
}
