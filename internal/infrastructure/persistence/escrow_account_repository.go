package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/escrowhub/backend/internal/domain/escrow"
	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormEscrowAccountRepository implements escrow.AccountRepository using GORM
type GormEscrowAccountRepository struct {
	db     *Database
	events shared.OutboxEventSaver
}

// NewGormEscrowAccountRepository creates a new GormEscrowAccountRepository
func NewGormEscrowAccountRepository(db *Database, events shared.OutboxEventSaver) *GormEscrowAccountRepository {
	return &GormEscrowAccountRepository{db: db, events: events}
}

func (r *GormEscrowAccountRepository) findOne(ctx context.Context, query func(*gorm.DB) *gorm.DB) (*escrow.EscrowAccount, error) {
	var model models.EscrowAccountModel
	tx := r.db.Conn(ctx).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB { return db.Order("requested_at, id") })
	if err := query(tx).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("Escrow account not found")
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByID finds an escrow account with its full ledger
func (r *GormEscrowAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*escrow.EscrowAccount, error) {
	return r.findOne(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id = ?", id)
	})
}

// FindByAgreementID finds the escrow account attached to an agreement
func (r *GormEscrowAccountRepository) FindByAgreementID(ctx context.Context, agreementID uuid.UUID) (*escrow.EscrowAccount, error) {
	return r.findOne(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("agreement_id = ?", agreementID)
	})
}

// FindByPaymentIntentID finds the account holding the deposit created for a payment intent
func (r *GormEscrowAccountRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*escrow.EscrowAccount, error) {
	return r.findByLedgerColumn(ctx, "payment_intent_id", paymentIntentID)
}

// FindByTransferID finds the account holding the payout executed by a transfer.
// Split payouts store their transfer ids comma separated.
func (r *GormEscrowAccountRepository) FindByTransferID(ctx context.Context, transferID string) (*escrow.EscrowAccount, error) {
	if transferID == "" {
		return nil, shared.ErrNotFound.WithMessage("Escrow account not found")
	}
	id := likeEscaper.Replace(transferID)
	sub := r.db.Conn(ctx).Model(&models.EscrowTransactionModel{}).
		Select("escrow_account_id").
		Where(`external_transfer_id = ? OR external_transfer_id LIKE ? ESCAPE '\' OR external_transfer_id LIKE ? ESCAPE '\' OR external_transfer_id LIKE ? ESCAPE '\'`,
			transferID, id+",%", "%,"+id, "%,"+id+",%")
	return r.findOne(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN (?)", sub)
	})
}

// likeEscaper quotes LIKE wildcards. Gateway ids such as tr_1 contain '_'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *GormEscrowAccountRepository) findByLedgerColumn(ctx context.Context, column, value string) (*escrow.EscrowAccount, error) {
	if value == "" {
		return nil, shared.ErrNotFound.WithMessage("Escrow account not found")
	}
	sub := r.db.Conn(ctx).Model(&models.EscrowTransactionModel{}).
		Select("escrow_account_id").
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: value})
	return r.findOne(ctx, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN (?)", sub)
	})
}

// Create inserts a new escrow account with its ledger and pending events
func (r *GormEscrowAccountRepository) Create(ctx context.Context, account *escrow.EscrowAccount) error {
	return r.db.Do(ctx, func(ctx context.Context) error {
		tx := r.db.Conn(ctx)
		model := models.EscrowAccountModelFromDomain(account)
		if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return shared.ErrAlreadyExists.WithMessage("Agreement already has an escrow account").Wrap(err)
			}
			return err
		}
		if err := r.saveLedger(tx, model); err != nil {
			return err
		}
		return flushEvents(ctx, r.events, tx, account, false)
	})
}

// Save updates an escrow account guarded by its version and upserts its ledger
func (r *GormEscrowAccountRepository) Save(ctx context.Context, account *escrow.EscrowAccount) error {
	return r.db.Do(ctx, func(ctx context.Context) error {
		tx := r.db.Conn(ctx)
		expected := account.GetVersion()
		model := models.EscrowAccountModelFromDomain(account)
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
			return shared.ErrConcurrencyConflict.WithMessage("Escrow account was modified concurrently")
		}
		if err := r.saveLedger(tx, model); err != nil {
			return err
		}
		return flushEvents(ctx, r.events, tx, account, true)
	})
}

func (r *GormEscrowAccountRepository) saveLedger(tx *gorm.DB, model *models.EscrowAccountModel) error {
	if err := upsertRows(tx, model.Transactions); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return escrow.ErrDuplicateIdempotencyKey
		}
		return err
	}
	return nil
}

var _ escrow.AccountRepository = (*GormEscrowAccountRepository)(nil)
