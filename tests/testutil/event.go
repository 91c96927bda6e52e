// Package testutil holds fixtures shared by the escrow backend tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/escrowhub/backend/internal/domain/escrow"
	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// EventRecorder is an event handler that keeps what it receives. It accepts
// any event type, so subscribe it by type or by aggregate.
type EventRecorder struct {
	mu     sync.Mutex
	types  []string
	events []shared.DomainEvent
	fail   error
}

// NewEventRecorder returns a recorder subscribed to types
func NewEventRecorder(types ...string) *EventRecorder {
	return &EventRecorder{types: types}
}

func (r *EventRecorder) EventTypes() []string { return r.types }

// Handle records event and returns the error set by FailWith, if any.
// Failed deliveries are recorded too.
func (r *EventRecorder) Handle(_ context.Context, event shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.fail
}

// FailWith makes later deliveries fail with err; nil restores success
func (r *EventRecorder) FailWith(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

// Events returns a copy of the recorded events in arrival order
func (r *EventRecorder) Events() []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.DomainEvent(nil), r.events...)
}

// Types returns the type of each recorded event in arrival order
func (r *EventRecorder) Types() []string {
	events := r.Events()
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType())
	}
	return out
}

// Count is the number of deliveries so far
func (r *EventRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reached reports whether at least n events arrived. It is meant for
// require.Eventually.
func (r *EventRecorder) Reached(n int) func() bool {
	return func() bool { return r.Count() >= n }
}

// AccountEvent builds a bare escrow account event of eventType. A nil id
// gets a fresh one.
func AccountEvent(eventType string, accountID uuid.UUID) shared.DomainEvent {
	if accountID == uuid.Nil {
		accountID = uuid.New()
	}
	return &accountEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, escrow.AggregateTypeEscrowAccount, accountID, time.Now().UTC()),
	}
}

type accountEvent struct {
	shared.BaseDomainEvent
}
