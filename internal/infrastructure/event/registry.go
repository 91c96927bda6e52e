package event

import (
	"slices"
	"sync"

	"github.com/escrowhub/backend/internal/domain/shared"
)

// HandlerRegistry routes events to subscribers. A handler subscribes to
// named event types, to every event of an aggregate type (all movements on
// an EscrowAccount, say), or to everything.
type HandlerRegistry struct {
	mu          sync.RWMutex
	byEvent     map[string][]shared.EventHandler
	byAggregate map[string][]shared.EventHandler
	catchAll    []shared.EventHandler
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		byEvent:     make(map[string][]shared.EventHandler),
		byAggregate: make(map[string][]shared.EventHandler),
	}
}

// Register subscribes handler to eventTypes. With no types it receives every event.
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(eventTypes) == 0 {
		r.catchAll = appendOnce(r.catchAll, handler)
		return
	}
	for _, t := range eventTypes {
		r.byEvent[t] = appendOnce(r.byEvent[t], handler)
	}
}

// RegisterAggregate subscribes handler to every event raised by the given aggregate types
func (r *HandlerRegistry) RegisterAggregate(handler shared.EventHandler, aggregateTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range aggregateTypes {
		r.byAggregate[t] = appendOnce(r.byAggregate[t], handler)
	}
}

// Unregister drops every subscription held by handler
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.catchAll = without(r.catchAll, handler)
	prune(r.byEvent, handler)
	prune(r.byAggregate, handler)
}

// HandlersFor returns the subscribers of event in registration order:
// event type first, then aggregate type, then catch-all. A handler matched
// more than one way appears once.
func (r *HandlerRegistry) HandlersFor(event shared.DomainEvent) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byEvent := r.byEvent[event.EventType()]
	byAggregate := r.byAggregate[event.AggregateType()]
	out := make([]shared.EventHandler, 0, len(byEvent)+len(byAggregate)+len(r.catchAll))
	for _, group := range [][]shared.EventHandler{byEvent, byAggregate, r.catchAll} {
		for _, h := range group {
			out = appendOnce(out, h)
		}
	}
	return out
}

// Handlers returns every distinct subscriber
func (r *HandlerRegistry) Handlers() []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := slices.Clone(r.catchAll)
	for _, m := range []map[string][]shared.EventHandler{r.byEvent, r.byAggregate} {
		for _, hs := range m {
			for _, h := range hs {
				out = appendOnce(out, h)
			}
		}
	}
	return out
}

func appendOnce(handlers []shared.EventHandler, h shared.EventHandler) []shared.EventHandler {
	if slices.Contains(handlers, h) {
		return handlers
	}
	return append(handlers, h)
}

func without(handlers []shared.EventHandler, target shared.EventHandler) []shared.EventHandler {
	return slices.DeleteFunc(handlers, func(h shared.EventHandler) bool { return h == target })
}

func prune(m map[string][]shared.EventHandler, target shared.EventHandler) {
	for key, hs := range m {
		if hs = without(hs, target); len(hs) == 0 {
			delete(m, key)
		} else {
			m[key] = hs
		}
	}
}
