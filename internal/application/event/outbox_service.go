// Package event holds the operator side of the outbox: browsing entries that
// could not be delivered and putting them back in the queue.
package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEntryNotDead is returned when replaying an entry that is still in flight or already sent
var ErrEntryNotDead = shared.NewDomainError("OUTBOX_ENTRY_NOT_DEAD", "Only dead letter entries can be retried")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// OutboxEntryDTO is an outbox entry without its payload
type OutboxEntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func newOutboxEntryDTO(e *shared.OutboxEntry) *OutboxEntryDTO {
	return &OutboxEntryDTO{
		ID: e.ID, EventID: e.EventID, EventType: e.EventType,
		AggregateID: e.AggregateID, AggregateType: e.AggregateType,
		Status: string(e.Status), RetryCount: e.RetryCount, MaxRetries: e.MaxRetries,
		LastError: e.LastError, NextRetryAt: e.NextRetryAt, ProcessedAt: e.ProcessedAt,
		CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}
}

// OutboxFilter pages through the dead letter queue
type OutboxFilter struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// bounds applies the default page size and caps it at maxPageSize
func (f OutboxFilter) bounds() (page, size int) {
	page, size = max(f.Page, 1), f.PageSize
	switch {
	case size < 1:
		size = defaultPageSize
	case size > maxPageSize:
		size = maxPageSize
	}
	return page, size
}

// OutboxListResult is one page of entries
type OutboxListResult struct {
	Entries  []OutboxEntryDTO `json:"entries"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// OutboxStatsDTO counts entries per delivery status
type OutboxStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// OutboxService backs the operator endpoints for the outbox
type OutboxService struct {
	repo  shared.OutboxRepository
	clock shared.Clock
}

// NewOutboxService uses the system clock when clock is nil
func NewOutboxService(repo shared.OutboxRepository, clock shared.Clock) *OutboxService {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &OutboxService{repo: repo, clock: clock}
}

// GetDeadLetterEntries lists dead entries, most recently failed first
func (s *OutboxService) GetDeadLetterEntries(ctx context.Context, filter OutboxFilter) (*OutboxListResult, error) {
	page, size := filter.bounds()
	entries, total, err := s.repo.FindDead(ctx, page, size)
	if err != nil {
		return nil, fmt.Errorf("list dead letter entries: %w", err)
	}

	result := &OutboxListResult{Entries: make([]OutboxEntryDTO, 0, len(entries)), Total: total, Page: page, PageSize: size}
	for _, e := range entries {
		result.Entries = append(result.Entries, *newOutboxEntryDTO(e))
	}
	return result, nil
}

func (s *OutboxService) GetEntry(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return newOutboxEntryDTO(entry), nil
}

// RetryDeadEntry gives a dead entry a fresh retry budget. The processor
// picks it up on its next poll.
func (s *OutboxService) RetryDeadEntry(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.revive(ctx, entry, s.clock.Now()); err != nil {
		return nil, err
	}
	return newOutboxEntryDTO(entry), nil
}

// RetryAllDeadEntries revives the whole dead letter queue and returns how
// many entries went back to pending. Revived entries leave the queue, so
// the first page is read again until a pass makes no progress.
func (s *OutboxService) RetryAllDeadEntries(ctx context.Context) (int64, error) {
	var revived int64
	for ctx.Err() == nil {
		batch, _, err := s.repo.FindDead(ctx, 1, maxPageSize)
		if err != nil {
			return revived, fmt.Errorf("list dead letter entries: %w", err)
		}

		now, before := s.clock.Now(), revived
		for _, entry := range batch {
			if err := s.revive(ctx, entry, now); err != nil {
				logger.L(ctx).Error("Failed to revive outbox entry",
					zap.String("outbox_id", entry.ID.String()), zap.Error(err))
				continue
			}
			revived++
		}
		if revived == before || len(batch) < maxPageSize {
			break
		}
	}

	logger.L(ctx).Info("Dead letter queue replayed", zap.Int64("revived", revived))
	return revived, ctx.Err()
}

func (s *OutboxService) revive(ctx context.Context, entry *shared.OutboxEntry, now time.Time) error {
	if err := entry.ResetForRetry(now); err != nil {
		if errors.Is(err, shared.ErrOutboxTransition) {
			return ErrEntryNotDead
		}
		return err
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		return fmt.Errorf("update outbox entry %s: %w", entry.ID, err)
	}
	logger.L(ctx).Info("Outbox entry revived",
		zap.String("outbox_id", entry.ID.String()),
		zap.String("event_type", entry.EventType),
	)
	return nil
}

// GetStats counts entries per status
func (s *OutboxService) GetStats(ctx context.Context) (*OutboxStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count outbox entries: %w", err)
	}

	stats := &OutboxStatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}
