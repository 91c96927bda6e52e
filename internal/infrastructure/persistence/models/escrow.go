package models

import (
	"time"

	"github.com/escrowhub/backend/internal/domain/escrow"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EscrowAccountModel is the persistence model for the EscrowAccount aggregate root.
// The balance is not stored; it is recomputed from the ledger on load.
type EscrowAccountModel struct {
	AggregateModel
	AgreementID       uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex"`
	OwnerUserID       uuid.UUID            `gorm:"type:uuid;not null;index"`
	Currency          string               `gorm:"type:varchar(3);not null"`
	Status            escrow.AccountStatus `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	StripeAccountID   string               `gorm:"type:varchar(255)"`
	StripeConnectedAt *time.Time
	SuspensionReason  string                   `gorm:"type:varchar(500)"`
	Transactions      []EscrowTransactionModel `gorm:"foreignKey:EscrowAccountID;references:ID"`
}

// TableName returns the table name for GORM
func (EscrowAccountModel) TableName() string {
	return "escrow_accounts"
}

// ToDomain converts the persistence model to a domain EscrowAccount.
func (m *EscrowAccountModel) ToDomain() (*escrow.EscrowAccount, error) {
	currency, err := valueobject.ParseCurrency(m.Currency)
	if err != nil {
		return nil, err
	}
	a := &escrow.EscrowAccount{
		BaseAggregateRoot: m.ToAggregate(),
		AgreementID:       m.AgreementID,
		OwnerUserID:       m.OwnerUserID,
		Currency:          currency,
		Status:            m.Status,
		StripeAccountID:   m.StripeAccountID,
		StripeConnectedAt: m.StripeConnectedAt,
		SuspensionReason:  m.SuspensionReason,
		Transactions:      make([]escrow.EscrowTransaction, len(m.Transactions)),
	}
	for i := range m.Transactions {
		tx, err := m.Transactions[i].ToDomain(currency)
		if err != nil {
			return nil, err
		}
		a.Transactions[i] = tx
	}
	return a, nil
}

// FromDomain populates the persistence model from a domain EscrowAccount.
func (m *EscrowAccountModel) FromDomain(a *escrow.EscrowAccount) {
	m.FromAggregate(a.BaseAggregateRoot)
	m.AgreementID = a.AgreementID
	m.OwnerUserID = a.OwnerUserID
	m.Currency = a.Currency.String()
	m.Status = a.Status
	m.StripeAccountID = a.StripeAccountID
	m.StripeConnectedAt = a.StripeConnectedAt
	m.SuspensionReason = a.SuspensionReason
	m.Transactions = make([]EscrowTransactionModel, len(a.Transactions))
	for i := range a.Transactions {
		m.Transactions[i].FromDomain(a.ID, &a.Transactions[i])
	}
}

// EscrowAccountModelFromDomain creates a new persistence model from a domain EscrowAccount.
func EscrowAccountModelFromDomain(a *escrow.EscrowAccount) *EscrowAccountModel {
	m := &EscrowAccountModel{}
	m.FromDomain(a)
	return m
}

// EscrowTransactionModel is one ledger row. The idempotency key is nullable so
// the (account, key) unique index only constrains keyed movements.
type EscrowTransactionModel struct {
	ID                 uuid.UUID                `gorm:"type:uuid;primaryKey"`
	EscrowAccountID    uuid.UUID                `gorm:"type:uuid;not null;index;uniqueIndex:idx_escrow_tx_account_key,priority:1"`
	Type               escrow.TransactionType   `gorm:"type:varchar(20);not null"`
	Status             escrow.TransactionStatus `gorm:"type:varchar(20);not null;index"`
	PartyID            *uuid.UUID               `gorm:"type:uuid"`
	MilestoneID        *uuid.UUID               `gorm:"type:uuid;index"`
	Amount             decimal.Decimal          `gorm:"type:decimal(18,2);not null"`
	Description        string                   `gorm:"type:varchar(500)"`
	PaymentIntentID    *string                  `gorm:"type:varchar(255);index"`
	ExternalTransferID *string                  `gorm:"type:varchar(255);index"`
	ReversedTransfers  string                   `gorm:"type:varchar(255)"`
	ReversalReason     string                   `gorm:"type:varchar(500)"`
	IdempotencyKey     *string                  `gorm:"type:varchar(255);uniqueIndex:idx_escrow_tx_account_key,priority:2"`
	RequestedBy        uuid.UUID                `gorm:"type:uuid;not null"`
	ApprovedBy         *uuid.UUID               `gorm:"type:uuid"`
	RejectedBy         *uuid.UUID               `gorm:"type:uuid"`
	RejectionReason    string                   `gorm:"type:varchar(500)"`
	FailureReason      string                   `gorm:"type:varchar(500)"`
	RequestedAt        time.Time                `gorm:"not null;index"`
	ApprovedAt         *time.Time
	RejectedAt         *time.Time
	CompletedAt        *time.Time
	FailedAt           *time.Time
	DisputedAt         *time.Time
	ReversedAt         *time.Time
	UpdatedAt          time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (EscrowTransactionModel) TableName() string {
	return "escrow_transactions"
}

// ToDomain converts the persistence model to a domain EscrowTransaction.
func (m *EscrowTransactionModel) ToDomain(currency valueobject.Currency) (escrow.EscrowTransaction, error) {
	amount, err := valueobject.NewMoney(m.Amount, currency)
	if err != nil {
		return escrow.EscrowTransaction{}, err
	}
	key, err := valueobject.NewIdempotencyKey(deref(m.IdempotencyKey))
	if err != nil {
		return escrow.EscrowTransaction{}, err
	}
	return escrow.EscrowTransaction{
		ID:                 m.ID,
		Type:               m.Type,
		PartyID:            m.PartyID,
		MilestoneID:        m.MilestoneID,
		Amount:             amount,
		Status:             m.Status,
		Description:        m.Description,
		PaymentIntentID:    deref(m.PaymentIntentID),
		ExternalTransferID: deref(m.ExternalTransferID),
		ReversedTransfers:  m.ReversedTransfers,
		ReversalReason:     m.ReversalReason,
		IdempotencyKey:     key,
		RequestedBy:        m.RequestedBy,
		ApprovedBy:         m.ApprovedBy,
		RejectedBy:         m.RejectedBy,
		RejectionReason:    m.RejectionReason,
		FailureReason:      m.FailureReason,
		RequestedAt:        m.RequestedAt,
		ApprovedAt:         m.ApprovedAt,
		RejectedAt:         m.RejectedAt,
		CompletedAt:        m.CompletedAt,
		FailedAt:           m.FailedAt,
		DisputedAt:         m.DisputedAt,
		ReversedAt:         m.ReversedAt,
		UpdatedAt:          m.UpdatedAt,
	}, nil
}

// FromDomain populates the persistence model from a domain EscrowTransaction.
func (m *EscrowTransactionModel) FromDomain(accountID uuid.UUID, t *escrow.EscrowTransaction) {
	m.ID = t.ID
	m.EscrowAccountID = accountID
	m.Type = t.Type
	m.Status = t.Status
	m.PartyID = t.PartyID
	m.MilestoneID = t.MilestoneID
	m.Amount = t.Amount.Amount()
	m.Description = t.Description
	m.PaymentIntentID = nullable(t.PaymentIntentID)
	m.ExternalTransferID = nullable(t.ExternalTransferID)
	m.ReversedTransfers = t.ReversedTransfers
	m.ReversalReason = t.ReversalReason
	m.IdempotencyKey = nullable(t.IdempotencyKey.String())
	m.RequestedBy = t.RequestedBy
	m.ApprovedBy = t.ApprovedBy
	m.RejectedBy = t.RejectedBy
	m.RejectionReason = t.RejectionReason
	m.FailureReason = t.FailureReason
	m.RequestedAt = t.RequestedAt
	m.ApprovedAt = t.ApprovedAt
	m.RejectedAt = t.RejectedAt
	m.CompletedAt = t.CompletedAt
	m.FailedAt = t.FailedAt
	m.DisputedAt = t.DisputedAt
	m.ReversedAt = t.ReversedAt
	m.UpdatedAt = t.UpdatedAt
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
