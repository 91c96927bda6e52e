package event

import (
	"context"
	"fmt"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxPublisher is the shared.OutboxEventSaver repositories call while
// saving an aggregate. Entries share the repository's transaction, so an
// agreement or account change and its events commit together.
type OutboxPublisher struct {
	serializer *EventSerializer
	maxRetries int
}

// OutboxPublisherOption configures an OutboxPublisher
type OutboxPublisherOption func(*OutboxPublisher)

// WithMaxRetries sets the delivery budget of each new entry. Values below
// one keep shared.DefaultMaxRetries.
func WithMaxRetries(n int) OutboxPublisherOption {
	return func(p *OutboxPublisher) { p.maxRetries = n }
}

func NewOutboxPublisher(serializer *EventSerializer, opts ...OutboxPublisherOption) *OutboxPublisher {
	p := &OutboxPublisher{serializer: serializer}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SaveEvents serializes events and inserts them through txProvider, which
// must be the *gorm.DB of the open transaction.
func (p *OutboxPublisher) SaveEvents(ctx context.Context, txProvider any, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, ok := txProvider.(*gorm.DB)
	if !ok {
		return fmt.Errorf("outbox needs a *gorm.DB transaction, got %T", txProvider)
	}

	entries, err := p.entries(events)
	if err != nil {
		return err
	}
	if err := NewGormOutboxRepository(tx).Save(ctx, entries...); err != nil {
		return err
	}
	logger.L(ctx).Debug("Events queued in outbox",
		zap.Int("count", len(entries)),
		zap.String("aggregate_id", events[0].AggregateID().String()),
	)
	return nil
}

func (p *OutboxPublisher) entries(events []shared.DomainEvent) ([]*shared.OutboxEntry, error) {
	out := make([]*shared.OutboxEntry, len(events))
	for i, e := range events {
		payload, err := p.serializer.Serialize(e)
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", e.EventType(), err)
		}
		out[i] = shared.NewOutboxEntry(e, payload, p.maxRetries)
	}
	return out, nil
}

var _ shared.OutboxEventSaver = (*OutboxPublisher)(nil)
