package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// IdempotencyStats counts what an IdempotentHandler did with its deliveries
type IdempotencyStats struct {
	Handled    int64 `json:"handled"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// IdempotentHandler runs a handler at most once per event. The outbox
// redelivers a whole entry when any subscriber fails, so subscribers that
// already succeeded are skipped here. Keys are scoped by handler name, which
// lets several subscribers share one store and still each see the event.
type IdempotentHandler struct {
	handler shared.EventHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	name    string
	logger  *zap.Logger

	handled, duplicates, failed atomic.Int64
}

// IdempotentHandlerOption configures an IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig overrides shared.DefaultIdempotencyConfig
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.config = config }
}

// WithHandlerName sets the key scope. It defaults to the handler's Go type.
func WithHandlerName(name string) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.name = name }
}

// NewIdempotentHandler wraps handler with a duplicate check against store
func NewIdempotentHandler(handler shared.EventHandler, store shared.IdempotencyStore, log *zap.Logger, opts ...IdempotentHandlerOption) *IdempotentHandler {
	h := &IdempotentHandler{
		handler: handler,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		name:    fmt.Sprintf("%T", handler),
		logger:  log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Key is the store key recorded for event
func (h *IdempotentHandler) Key(event shared.DomainEvent) string {
	return "event:" + h.name + ":" + event.EventID().String()
}

// Handle runs the wrapped handler unless event was handled before. When the
// store is unreachable the event is handled anyway. A failed run releases its
// key so the outbox retry can claim it.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, event)
	}

	key := h.Key(event)
	log := logger.WithLogger(ctx, h.logger).With(
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("handler", h.name),
	)

	first, err := h.store.Claim(ctx, key, h.config.TTL)
	switch {
	case err != nil:
		log.Warn("Idempotency store unavailable, handling event anyway", zap.Error(err))
	case !first:
		h.duplicates.Add(1)
		log.Debug("Event already handled, skipping")
		return nil
	}

	if err := h.handler.Handle(ctx, event); err != nil {
		h.failed.Add(1)
		log.Error("Event handler failed", zap.Error(err))
		if first {
			if ferr := h.store.Forget(ctx, key); ferr != nil {
				log.Warn("Failed to forget idempotency key", zap.Error(ferr))
			}
		}
		return err
	}

	h.handled.Add(1)
	return nil
}

// Stats returns the counters so far
func (h *IdempotentHandler) Stats() IdempotencyStats {
	return IdempotencyStats{
		Handled:    h.handled.Load(),
		Duplicates: h.duplicates.Load(),
		Failed:     h.failed.Load(),
	}
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
