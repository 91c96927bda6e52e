package persistence

import (
	"context"
	"errors"

	"github.com/escrowhub/backend/internal/domain/commission"
	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GormAgreementRepository implements commission.AgreementRepository using GORM
type GormAgreementRepository struct {
	db     *Database
	events shared.OutboxEventSaver
}

// NewGormAgreementRepository creates a new GormAgreementRepository.
// events may be nil, in which case raised domain events are dropped.
func NewGormAgreementRepository(db *Database, events shared.OutboxEventSaver) *GormAgreementRepository {
	return &GormAgreementRepository{db: db, events: events}
}

func preloadAgreement(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Parties", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		Preload("Milestones", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") })
}

// FindByID finds an agreement with its parties and milestones
func (r *GormAgreementRepository) FindByID(ctx context.Context, id uuid.UUID) (*commission.CommissionAgreement, error) {
	var model models.AgreementModel
	if err := preloadAgreement(r.db.Conn(ctx)).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("Commission agreement not found")
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByOwner lists the agreements owned by a user, newest first unless the
// filter names another whitelisted column
func (r *GormAgreementRepository) FindByOwner(ctx context.Context, ownerUserID uuid.UUID, filter commission.ListFilter) ([]*commission.CommissionAgreement, int64, error) {
	scoped := func() *gorm.DB {
		q := r.db.Conn(ctx).Model(&models.AgreementModel{}).Where("owner_user_id = ?", ownerUserID)
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	var rows []models.AgreementModel
	err := preloadAgreement(scoped()).
		Order(agreementSort.orderBy(filter.SortBy, filter.SortOrder)).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	agreements := make([]*commission.CommissionAgreement, 0, len(rows))
	for i := range rows {
		a, err := rows[i].ToDomain()
		if err != nil {
			return nil, 0, err
		}
		agreements = append(agreements, a)
	}
	return agreements, total, nil
}

// FindActiveIDs lists active agreements, oldest first
func (r *GormAgreementRepository) FindActiveIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Conn(ctx).Model(&models.AgreementModel{}).
		Where("status = ?", commission.AgreementStatusActive).
		Order("created_at").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// Create inserts a new agreement together with its children and pending events
func (r *GormAgreementRepository) Create(ctx context.Context, agreement *commission.CommissionAgreement) error {
	return r.db.Do(ctx, func(ctx context.Context) error {
		tx := r.db.Conn(ctx)
		model := models.AgreementModelFromDomain(agreement)
		if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return shared.ErrAlreadyExists.WithMessage("Commission agreement already exists").Wrap(err)
			}
			return err
		}
		if err := saveAgreementChildren(tx, model); err != nil {
			return err
		}
		return flushEvents(ctx, r.events, tx, agreement, false)
	})
}

// Save updates an agreement guarded by its version and bumps the version on success
func (r *GormAgreementRepository) Save(ctx context.Context, agreement *commission.CommissionAgreement) error {
	return r.db.Do(ctx, func(ctx context.Context) error {
		tx := r.db.Conn(ctx)
		expected := agreement.GetVersion()
		model := models.AgreementModelFromDomain(agreement)
		model.Version = expected + 1

		result := tx.Model(model).
			Where("version = ?", expected).
			Select("*").
			Omit("created_at", clause.Associations).
			UpdateColumns(model)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict.WithMessage("Commission agreement was modified concurrently")
		}
		if err := saveAgreementChildren(tx, model); err != nil {
			return err
		}
		return flushEvents(ctx, r.events, tx, agreement, true)
	})
}

// flushEvents writes the aggregate's pending events to the outbox inside tx
// and clears them. With bump the version moves on as well. Both changes are
// undone if the surrounding transaction rolls back, so a failed unit of work
// leaves the aggregate as it was before the save.
func flushEvents(ctx context.Context, saver shared.OutboxEventSaver, tx *gorm.DB, agg shared.AggregateRoot, bump bool) error {
	events := agg.PendingEvents()
	if saver != nil && len(events) > 0 {
		if err := saver.SaveEvents(ctx, tx, events...); err != nil {
			return err
		}
	}
	version := agg.GetVersion()
	OnRollback(ctx, func() { agg.Restore(version, events) })
	agg.ClearEvents()
	if bump {
		agg.IncrementVersion()
	}
	return nil
}

// upsertRows writes child rows keyed by primary key. Children are never
// removed from an aggregate, so an upsert covers both inserts and updates.
func upsertRows[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
}

func saveAgreementChildren(tx *gorm.DB, model *models.AgreementModel) error {
	if err := upsertRows(tx, model.Parties); err != nil {
		return err
	}
	return upsertRows(tx, model.Milestones)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

var _ commission.AgreementRepository = (*GormAgreementRepository)(nil)
