package event

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"github.com/escrowhub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

var (
	// ErrBusStopped is returned by Publish before Start and after Stop
	ErrBusStopped = errors.New("event bus is not running")
	// ErrHandlerPanicked wraps a panic raised inside a subscriber
	ErrHandlerPanicked = errors.New("event handler panicked")
)

// InMemoryEventBus delivers events to subscribers in the publishing
// goroutine. Every subscriber of an event runs even when an earlier one
// fails; the failures come back joined so the outbox retries the entry.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	running  atomic.Bool
}

func NewInMemoryEventBus(log *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{registry: NewHandlerRegistry(), logger: log.Named("bus")}
}

// Publish hands each event to its subscribers, one span per event
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if !b.running.Load() {
		return ErrBusStopped
	}

	var errs []error
	for _, event := range events {
		if err := b.deliver(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryEventBus) deliver(ctx context.Context, event shared.DomainEvent) error {
	handlers := b.registry.HandlersFor(event)
	if len(handlers) == 0 {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "event.deliver "+event.EventType(),
		telemetry.WithAttribute("event_id", event.EventID().String()),
		telemetry.WithAttribute("aggregate_type", event.AggregateType()),
		telemetry.WithAttribute("subscribers", len(handlers)),
	)
	defer span.End()

	log := logger.WithLogger(ctx, b.logger).With(
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
	)

	var errs []error
	for _, h := range handlers {
		if err := b.invoke(ctx, h, event); err != nil {
			log.Error("Subscriber failed", zap.String("handler", fmt.Sprintf("%T", h)), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s to %T: %w", event.EventType(), h, err))
		}
	}
	err := errors.Join(errs...)
	telemetry.RecordError(span, err)
	return err
}

// invoke runs one subscriber and turns a panic into ErrHandlerPanicked
func (b *InMemoryEventBus) invoke(ctx context.Context, h shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanicked, r)
		}
	}()
	return h.Handle(ctx, event)
}

// Subscribe registers handler for eventTypes, or for handler.EventTypes()
// when none are given
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("Subscribed", zap.Strings("event_types", eventTypes))
}

// SubscribeAggregate registers handler for every event raised by the given aggregate types
func (b *InMemoryEventBus) SubscribeAggregate(handler shared.EventHandler, aggregateTypes ...string) {
	b.registry.RegisterAggregate(handler, aggregateTypes...)
	b.logger.Debug("Subscribed", zap.Strings("aggregate_types", aggregateTypes))
}

func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

func (b *InMemoryEventBus) Start(context.Context) error {
	if !b.running.Swap(true) {
		b.logger.Info("Event bus started")
	}
	return nil
}

func (b *InMemoryEventBus) Stop(context.Context) error {
	if b.running.Swap(false) {
		b.logger.Info("Event bus stopped")
	}
	return nil
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
