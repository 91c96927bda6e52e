package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is where an outbox entry is in its delivery
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

const (
	DefaultMaxRetries  = 5
	DefaultBaseBackoff = time.Second
	MaxBackoff         = 5 * time.Minute
)

// ErrOutboxTransition is returned for a status change the entry cannot make
var ErrOutboxTransition = errors.New("invalid outbox status transition")

// allows reports whether an entry in s may move to next. SENT is final and
// a DEAD entry only goes back to PENDING through an operator reset.
func (s OutboxStatus) allows(next OutboxStatus) bool {
	switch s {
	case OutboxStatusPending, OutboxStatusFailed:
		return next == OutboxStatusProcessing
	case OutboxStatusProcessing:
		return next == OutboxStatusSent || next == OutboxStatusFailed || next == OutboxStatusDead
	case OutboxStatusDead:
		return next == OutboxStatusPending
	}
	return false
}

// OutboxEntry is a serialized domain event written in the transaction of the
// aggregate that raised it. The relay delivers it to the bus afterwards.
type OutboxEntry struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte

	Status      OutboxStatus
	RetryCount  int
	MaxRetries  int
	LastError   string
	NextRetryAt *time.Time
	ProcessedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOutboxEntry queues payload as the pending entry for event. With
// maxRetries below one the entry gets DefaultMaxRetries attempts.
func NewOutboxEntry(event DomainEvent, payload []byte, maxRetries int) *OutboxEntry {
	created := event.OccurredAt()
	if created.IsZero() {
		created = time.Now().UTC()
	}
	entry := &OutboxEntry{
		ID:            uuid.New(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	if maxRetries > 0 {
		entry.MaxRetries = maxRetries
	}
	return entry
}

// OutboxBackoff returns how long an entry waits after its nth failure. The
// wait doubles from DefaultBaseBackoff and stops growing at MaxBackoff.
func OutboxBackoff(failures int) time.Duration {
	wait := time.Duration(0)
	for i := 0; i < failures; i++ {
		if wait == 0 {
			wait = DefaultBaseBackoff
			continue
		}
		if wait *= 2; wait >= MaxBackoff {
			return MaxBackoff
		}
	}
	return wait
}

func (e *OutboxEntry) transition(next OutboxStatus, now time.Time) error {
	if !e.Status.allows(next) {
		return fmt.Errorf("%w: %s to %s", ErrOutboxTransition, e.Status, next)
	}
	e.Status, e.UpdatedAt = next, now
	return nil
}

// MarkProcessing claims a pending or failed entry for delivery
func (e *OutboxEntry) MarkProcessing(now time.Time) error {
	return e.transition(OutboxStatusProcessing, now)
}

func (e *OutboxEntry) MarkSent(now time.Time) {
	e.Status, e.UpdatedAt = OutboxStatusSent, now
	e.ProcessedAt = &now
}

// MarkFailed counts a failed delivery of reason. The entry is due again
// after OutboxBackoff, or dead once RetryCount reaches MaxRetries.
func (e *OutboxEntry) MarkFailed(reason string, now time.Time) {
	e.RetryCount++
	e.LastError, e.UpdatedAt = reason, now
	e.NextRetryAt = nil

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		return
	}
	retryAt := now.Add(OutboxBackoff(e.RetryCount))
	e.Status, e.NextRetryAt = OutboxStatusFailed, &retryAt
}

// ResetForRetry puts a dead entry back in the queue with a fresh budget
func (e *OutboxEntry) ResetForRetry(now time.Time) error {
	if err := e.transition(OutboxStatusPending, now); err != nil {
		return err
	}
	e.RetryCount, e.LastError, e.NextRetryAt = 0, "", nil
	return nil
}

func (e *OutboxEntry) IsDead() bool { return e.Status == OutboxStatusDead }

// OutboxRepository stores outbox entries. Times are passed in by the caller
// so the relay and its tests share one Clock.
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	Update(ctx context.Context, entry *OutboxEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)

	// FindDue lists pending entries and failed entries whose retry time has
	// come, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*OutboxEntry, error)
	// Claim moves ids to PROCESSING and returns only the entries this caller
	// won. Another relay may have taken the rest.
	Claim(ctx context.Context, ids []uuid.UUID, now time.Time) ([]*OutboxEntry, error)
	// ReleaseStale fails every entry claimed before cutoff, making it due at
	// now or dead if it has no attempts left.
	ReleaseStale(ctx context.Context, cutoff, now time.Time) (int64, error)
	PurgeSent(ctx context.Context, before time.Time) (int64, error)

	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
