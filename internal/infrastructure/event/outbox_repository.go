package event

import (
	"context"
	"errors"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const staleClaimError = "delivery claim expired"

// GormOutboxRepository keeps outbox entries in the outbox_events table
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository works on db, which may be an open transaction
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

func (r *GormOutboxRepository) table(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.OutboxEntryModel{})
}

func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.OutboxEntryModel, len(entries))
	for i, e := range entries {
		rows[i] = models.OutboxEntryModelFromDomain(e)
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

func (r *GormOutboxRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*shared.OutboxEntry, error) {
	var rows []models.OutboxEntryModel
	err := r.table(ctx).
		Where("status = ?", shared.OutboxStatusPending).
		Or("status = ? AND next_retry_at <= ?", shared.OutboxStatusFailed, now).
		Order("created_at, id").
		Limit(limit).
		Find(&rows).Error
	return entriesOf(rows), err
}

// Claim locks the candidate rows with FOR UPDATE SKIP LOCKED on Postgres, so
// two processors polling at once split a batch instead of sharing it.
func (r *GormOutboxRepository) Claim(ctx context.Context, ids []uuid.UUID, now time.Time) ([]*shared.OutboxEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var claimed []*shared.OutboxEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.OutboxEntryModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("id IN ? AND status IN ?", ids, []shared.OutboxStatus{shared.OutboxStatusPending, shared.OutboxStatusFailed}).
			Find(&rows).Error
		if err != nil || len(rows) == 0 {
			return err
		}

		won := make([]uuid.UUID, 0, len(rows))
		for _, e := range entriesOf(rows) {
			if e.MarkProcessing(now) != nil {
				continue
			}
			won = append(won, e.ID)
			claimed = append(claimed, e)
		}
		if len(won) == 0 {
			return nil
		}
		return tx.Model(&models.OutboxEntryModel{}).
			Where("id IN ?", won).
			Updates(map[string]any{"status": shared.OutboxStatusProcessing, "updated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ReleaseStale recovers entries whose worker died mid delivery. The lost
// attempt counts against the budget, so an event that keeps crashing its
// worker ends up dead instead of looping.
func (r *GormOutboxRepository) ReleaseStale(ctx context.Context, cutoff, now time.Time) (int64, error) {
	var released int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := func() *gorm.DB {
			return tx.Model(&models.OutboxEntryModel{}).
				Where("status = ? AND updated_at < ?", shared.OutboxStatusProcessing, cutoff)
		}

		dead := stale().Where("retry_count + 1 >= max_retries").Updates(map[string]any{
			"status":        shared.OutboxStatusDead,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_error":    staleClaimError,
			"next_retry_at": nil,
			"updated_at":    now,
		})
		if dead.Error != nil {
			return dead.Error
		}
		retry := stale().Updates(map[string]any{
			"status":        shared.OutboxStatusFailed,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_error":    staleClaimError,
			"next_retry_at": now,
			"updated_at":    now,
		})
		released = dead.RowsAffected + retry.RowsAffected
		return retry.Error
	})
	return released, err
}

// Update writes every column of entry except created_at
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	return r.db.WithContext(ctx).
		Select("*").
		Omit("created_at").
		Updates(models.OutboxEntryModelFromDomain(entry)).Error
}

func (r *GormOutboxRepository) PurgeSent(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", shared.OutboxStatusSent, before).
		Delete(&models.OutboxEntryModel{})
	return res.RowsAffected, res.Error
}

// FindDead pages through dead entries, most recently failed first
func (r *GormOutboxRepository) FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	var total int64
	if err := r.table(ctx).Where("status = ?", shared.OutboxStatusDead).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.OutboxEntryModel
	err := r.table(ctx).
		Where("status = ?", shared.OutboxStatusDead).
		Order("updated_at DESC, id").
		Offset((max(page, 1) - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return entriesOf(rows), total, nil
}

func (r *GormOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	var row models.OutboxEntryModel
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound.WithMessage("Outbox entry not found")
	}
	if err != nil {
		return nil, err
	}
	return row.ToDomain(), nil
}

func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	var rows []struct {
		Status shared.OutboxStatus
		Count  int64
	}
	if err := r.table(ctx).Select("status, count(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[shared.OutboxStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func entriesOf(rows []models.OutboxEntryModel) []*shared.OutboxEntry {
	out := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
