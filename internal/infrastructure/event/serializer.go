package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/escrowhub/backend/internal/domain/shared"
)

var (
	// ErrUnknownEventType is returned for outbox rows whose type was never registered
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrEventTypeMismatch is returned when a payload names a different type than its row
	ErrEventTypeMismatch = errors.New("event payload type does not match")
)

type decoder struct {
	goType reflect.Type
	decode func(data []byte) (shared.DomainEvent, error)
}

// EventSerializer turns events into outbox payloads and back. Several event
// types may share one Go type, as the escrow ledger events do, so a decoded
// payload must name the same type as its row.
type EventSerializer struct {
	mu       sync.RWMutex
	decoders map[string]decoder
}

func NewEventSerializer() *EventSerializer {
	return &EventSerializer{decoders: make(map[string]decoder)}
}

// Register makes eventTypes decode into *T. Mapping a type that is already
// registered to a different T panics.
func Register[T any, PT interface {
	*T
	shared.DomainEvent
}](s *EventSerializer, eventTypes ...string) {
	d := decoder{
		goType: reflect.TypeFor[T](),
		decode: func(data []byte) (shared.DomainEvent, error) {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			return PT(&v), nil
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, eventType := range eventTypes {
		if prev, ok := s.decoders[eventType]; ok && prev.goType != d.goType {
			panic(fmt.Sprintf("event type %s already decodes into %s, not %s", eventType, prev.goType, d.goType))
		}
		s.decoders[eventType] = d
	}
}

func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event.EventType(), err)
	}
	return data, nil
}

// Deserialize decodes an outbox payload stored under eventType
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	d, ok := s.decoders[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	event, err := d.decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	if event.EventType() != eventType {
		return nil, fmt.Errorf("%w: row says %s, payload says %q", ErrEventTypeMismatch, eventType, event.EventType())
	}
	return event, nil
}

func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.decoders[eventType]
	return ok
}

// RegisteredTypes lists the decodable event types, sorted
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.decoders))
}
