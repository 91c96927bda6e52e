package event

import (
	"context"
	"sync"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"github.com/escrowhub/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxProcessorConfig tunes the relay and housekeeping loops
type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// ClaimTimeout bounds how long an entry may sit in PROCESSING
	ClaimTimeout     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		ClaimTimeout:     5 * time.Minute,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// OutboxProcessor moves committed outbox entries onto the event bus. An
// entry is published at least once; subscribers that must not repeat work
// are wrapped in an IdempotentHandler.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	bus        shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	clock      shared.Clock
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOutboxProcessor(
	repo shared.OutboxRepository,
	bus shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	clock shared.Clock,
	log *zap.Logger,
) *OutboxProcessor {
	return &OutboxProcessor{
		repo:       repo,
		bus:        bus,
		serializer: serializer,
		config:     config,
		clock:      clock,
		logger:     log.Named("outbox"),
	}
}

// Start runs the relay loop, and the housekeeping loop when cleanup is
// enabled, until Stop or until ctx ends
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	p.every(ctx, p.config.PollInterval, func(ctx context.Context) { p.ProcessOnce(ctx) })
	if p.config.CleanupEnabled {
		p.every(ctx, p.config.CleanupInterval, p.housekeep)
	}

	p.logger.Info("Outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Duration("claim_timeout", p.config.ClaimTimeout),
	)
	return nil
}

// Stop cancels the loops and waits for the batch in flight, or for ctx
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) every(ctx context.Context, interval time.Duration, run func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run(ctx)
			}
		}
	}()
}

// ProcessOnce claims one batch of due entries and publishes them. It returns
// how many were delivered.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) int {
	due, err := p.repo.FindDue(ctx, p.clock.Now(), p.config.BatchSize)
	if err != nil {
		logger.WithLogger(ctx, p.logger).Error("Failed to load due entries", zap.Error(err))
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	ids := make([]uuid.UUID, len(due))
	for i, e := range due {
		ids[i] = e.ID
	}
	claimed, err := p.repo.Claim(ctx, ids, p.clock.Now())
	if err != nil {
		logger.WithLogger(ctx, p.logger).Error("Failed to claim entries", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, entry := range claimed {
		if p.relay(ctx, entry) {
			delivered++
		}
	}
	return delivered
}

// relay publishes one claimed entry and records the outcome on it
func (p *OutboxProcessor) relay(ctx context.Context, entry *shared.OutboxEntry) bool {
	ctx, span := telemetry.StartSpan(ctx, "outbox.relay",
		telemetry.WithAttribute("event_type", entry.EventType),
		telemetry.WithAttribute("event_id", entry.EventID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrAttempt, entry.RetryCount+1),
	)
	defer span.End()

	log := logger.WithLogger(ctx, p.logger).With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
	)

	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err == nil {
		err = p.bus.Publish(ctx, event)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		entry.MarkFailed(err.Error(), p.clock.Now())
		if entry.IsDead() {
			log.Error("Event moved to dead letter queue",
				zap.String("aggregate_type", entry.AggregateType),
				zap.String("aggregate_id", entry.AggregateID.String()),
				zap.Int("attempts", entry.RetryCount),
				zap.Error(err),
			)
		} else {
			log.Warn("Event delivery failed, will retry",
				zap.Int("attempts", entry.RetryCount),
				zap.Timep("next_retry_at", entry.NextRetryAt),
				zap.Error(err),
			)
		}
		if err := p.repo.Update(ctx, entry); err != nil {
			log.Error("Failed to record delivery failure", zap.Error(err))
		}
		return false
	}

	entry.MarkSent(p.clock.Now())
	if err := p.repo.Update(ctx, entry); err != nil {
		log.Error("Failed to mark entry sent", zap.Error(err))
		return false
	}
	log.Debug("Event delivered")
	return true
}

// housekeep releases abandoned claims and purges old sent entries
func (p *OutboxProcessor) housekeep(ctx context.Context) {
	log := logger.WithLogger(ctx, p.logger)
	now := p.clock.Now()

	if p.config.ClaimTimeout > 0 {
		released, err := p.repo.ReleaseStale(ctx, now.Add(-p.config.ClaimTimeout), now)
		switch {
		case err != nil:
			log.Error("Failed to release stale claims", zap.Error(err))
		case released > 0:
			log.Warn("Released stale outbox claims", zap.Int64("released", released))
		}
	}

	cutoff := now.Add(-p.config.CleanupRetention)
	purged, err := p.repo.PurgeSent(ctx, cutoff)
	switch {
	case err != nil:
		log.Error("Failed to purge sent entries", zap.Error(err))
	case purged > 0:
		log.Info("Purged sent outbox entries", zap.Int64("purged", purged), zap.Time("cutoff", cutoff))
	}
}
