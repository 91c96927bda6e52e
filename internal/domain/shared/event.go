package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact an aggregate recorded about itself
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
}

// BaseDomainEvent carries the envelope fields. Concrete events embed it
// and add their payload; the JSON names are the outbox wire format.
type BaseDomainEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	AggID     uuid.UUID `json:"aggregate_id"`
	AggType   string    `json:"aggregate_type"`
}

// NewBaseDomainEvent stamps a fresh event id. occurredAt is the mutation
// time from the aggregate's clock, not the time of publication.
func NewBaseDomainEvent(eventType, aggType string, aggID uuid.UUID, occurredAt time.Time) BaseDomainEvent {
	return BaseDomainEvent{ID: uuid.New(), Type: eventType, Timestamp: occurredAt, AggID: aggID, AggType: aggType}
}

func (e *BaseDomainEvent) EventID() uuid.UUID     { return e.ID }
func (e *BaseDomainEvent) EventType() string      { return e.Type }
func (e *BaseDomainEvent) OccurredAt() time.Time  { return e.Timestamp }
func (e *BaseDomainEvent) AggregateID() uuid.UUID { return e.AggID }
func (e *BaseDomainEvent) AggregateType() string  { return e.AggType }

// EventHandler reacts to events. EventTypes lists the types it wants when
// subscribed without explicit types; empty means every type.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	EventTypes() []string
}

// HandlerFunc adapts a function to EventHandler for the given types
func HandlerFunc(fn func(ctx context.Context, event DomainEvent) error, eventTypes ...string) EventHandler {
	return &handlerFunc{fn: fn, types: eventTypes}
}

type handlerFunc struct {
	fn    func(ctx context.Context, event DomainEvent) error
	types []string
}

func (h *handlerFunc) Handle(ctx context.Context, event DomainEvent) error { return h.fn(ctx, event) }
func (h *handlerFunc) EventTypes() []string                                { return h.types }

type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus fans published events out to subscribers
type EventBus interface {
	EventPublisher
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// OutboxEventSaver writes events to the outbox inside the caller's
// transaction, passed as txProvider
type OutboxEventSaver interface {
	SaveEvents(ctx context.Context, txProvider any, events ...DomainEvent) error
}
