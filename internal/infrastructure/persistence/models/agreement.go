package models

import (
	"time"

	"github.com/escrowhub/backend/internal/domain/commission"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AgreementModel is the persistence model for the CommissionAgreement aggregate root.
type AgreementModel struct {
	AggregateModel
	OwnerUserID        uuid.UUID                  `gorm:"type:uuid;not null;index:idx_agreement_owner_status,priority:1"`
	Title              string                     `gorm:"type:varchar(200);not null"`
	Description        string                     `gorm:"type:text"`
	Terms              string                     `gorm:"type:text"`
	TotalValue         decimal.Decimal            `gorm:"type:decimal(18,2);not null"`
	Currency           string                     `gorm:"type:varchar(3);not null"`
	Status             commission.AgreementStatus `gorm:"type:varchar(20);not null;default:'DRAFT';index:idx_agreement_owner_status,priority:2"`
	EscrowAccountID    *uuid.UUID                 `gorm:"type:uuid"`
	ActivatedAt        *time.Time
	CompletedAt        *time.Time
	CanceledAt         *time.Time
	CancellationReason string           `gorm:"type:varchar(500)"`
	DisputeReason      string           `gorm:"type:varchar(500)"`
	Parties            []PartyModel     `gorm:"foreignKey:AgreementID;references:ID"`
	Milestones         []MilestoneModel `gorm:"foreignKey:AgreementID;references:ID"`
}

// TableName returns the table name for GORM
func (AgreementModel) TableName() string {
	return "commission_agreements"
}

// ToDomain converts the persistence model to a domain CommissionAgreement.
func (m *AgreementModel) ToDomain() (*commission.CommissionAgreement, error) {
	currency, err := valueobject.ParseCurrency(m.Currency)
	if err != nil {
		return nil, err
	}
	total, err := valueobject.NewMoney(m.TotalValue, currency)
	if err != nil {
		return nil, err
	}

	a := &commission.CommissionAgreement{
		BaseAggregateRoot:  m.ToAggregate(),
		OwnerUserID:        m.OwnerUserID,
		Title:              m.Title,
		Description:        m.Description,
		Terms:              m.Terms,
		TotalValue:         total,
		Currency:           currency,
		Status:             m.Status,
		EscrowAccountID:    m.EscrowAccountID,
		ActivatedAt:        m.ActivatedAt,
		CompletedAt:        m.CompletedAt,
		CanceledAt:         m.CanceledAt,
		CancellationReason: m.CancellationReason,
		DisputeReason:      m.DisputeReason,
		Parties:            make([]commission.Party, len(m.Parties)),
		Milestones:         make([]commission.Milestone, len(m.Milestones)),
	}
	for i := range m.Parties {
		p, err := m.Parties[i].ToDomain()
		if err != nil {
			return nil, err
		}
		a.Parties[i] = p
	}
	for i := range m.Milestones {
		ms, err := m.Milestones[i].ToDomain(currency)
		if err != nil {
			return nil, err
		}
		a.Milestones[i] = ms
	}
	return a, nil
}

// FromDomain populates the persistence model from a domain CommissionAgreement.
func (m *AgreementModel) FromDomain(a *commission.CommissionAgreement) {
	m.FromAggregate(a.BaseAggregateRoot)
	m.OwnerUserID = a.OwnerUserID
	m.Title = a.Title
	m.Description = a.Description
	m.Terms = a.Terms
	m.TotalValue = a.TotalValue.Amount()
	m.Currency = a.Currency.String()
	m.Status = a.Status
	m.EscrowAccountID = a.EscrowAccountID
	m.ActivatedAt = a.ActivatedAt
	m.CompletedAt = a.CompletedAt
	m.CanceledAt = a.CanceledAt
	m.CancellationReason = a.CancellationReason
	m.DisputeReason = a.DisputeReason
	m.Parties = make([]PartyModel, len(a.Parties))
	for i := range a.Parties {
		m.Parties[i].FromDomain(a.ID, &a.Parties[i])
	}
	m.Milestones = make([]MilestoneModel, len(a.Milestones))
	for i := range a.Milestones {
		m.Milestones[i].FromDomain(a.ID, &a.Milestones[i])
	}
}

// AgreementModelFromDomain creates a new persistence model from a domain CommissionAgreement.
func AgreementModelFromDomain(a *commission.CommissionAgreement) *AgreementModel {
	m := &AgreementModel{}
	m.FromDomain(a)
	return m
}

// PartyModel is the persistence model for an agreement party.
type PartyModel struct {
	ID                uuid.UUID            `gorm:"type:uuid;primaryKey"`
	AgreementID       uuid.UUID            `gorm:"type:uuid;not null;index"`
	ContactID         *uuid.UUID           `gorm:"type:uuid"`
	CompanyID         *uuid.UUID           `gorm:"type:uuid"`
	Name              string               `gorm:"type:varchar(200);not null"`
	Email             string               `gorm:"type:varchar(255)"`
	Split             decimal.Decimal      `gorm:"type:decimal(5,2);not null"`
	Role              commission.PartyRole `gorm:"type:varchar(20);not null"`
	StripeAccountID   string               `gorm:"type:varchar(255)"`
	StripeConnectedAt *time.Time
	HasAccepted       bool `gorm:"not null;default:false"`
	AcceptedAt        *time.Time
	CreatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PartyModel) TableName() string {
	return "agreement_parties"
}

// ToDomain converts the persistence model to a domain Party.
func (m *PartyModel) ToDomain() (commission.Party, error) {
	split, err := valueobject.NewPercentage(m.Split)
	if err != nil {
		return commission.Party{}, err
	}
	return commission.Party{
		ID:                m.ID,
		ContactID:         m.ContactID,
		CompanyID:         m.CompanyID,
		Name:              m.Name,
		Email:             m.Email,
		Split:             split,
		Role:              m.Role,
		StripeAccountID:   m.StripeAccountID,
		StripeConnectedAt: m.StripeConnectedAt,
		HasAccepted:       m.HasAccepted,
		AcceptedAt:        m.AcceptedAt,
		CreatedAt:         m.CreatedAt,
	}, nil
}

// FromDomain populates the persistence model from a domain Party.
func (m *PartyModel) FromDomain(agreementID uuid.UUID, p *commission.Party) {
	m.ID = p.ID
	m.AgreementID = agreementID
	m.ContactID = p.ContactID
	m.CompanyID = p.CompanyID
	m.Name = p.Name
	m.Email = p.Email
	m.Split = p.Split.Value()
	m.Role = p.Role
	m.StripeAccountID = p.StripeAccountID
	m.StripeConnectedAt = p.StripeConnectedAt
	m.HasAccepted = p.HasAccepted
	m.AcceptedAt = p.AcceptedAt
	m.CreatedAt = p.CreatedAt
}

// MilestoneModel is the persistence model for an agreement milestone.
type MilestoneModel struct {
	ID                          uuid.UUID                  `gorm:"type:uuid;primaryKey"`
	AgreementID                 uuid.UUID                  `gorm:"type:uuid;not null;index"`
	Description                 string                     `gorm:"type:varchar(500);not null"`
	Value                       decimal.Decimal            `gorm:"type:decimal(18,2);not null"`
	DueDate                     *time.Time                 `gorm:"index"`
	Status                      commission.MilestoneStatus `gorm:"type:varchar(20);not null;default:'PENDING'"`
	CompletedAt                 *time.Time
	Notes                       string     `gorm:"type:text"`
	ReleasedPayoutTransactionID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt                   time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MilestoneModel) TableName() string {
	return "agreement_milestones"
}

// ToDomain converts the persistence model to a domain Milestone in the agreement currency.
func (m *MilestoneModel) ToDomain(currency valueobject.Currency) (commission.Milestone, error) {
	value, err := valueobject.NewMoney(m.Value, currency)
	if err != nil {
		return commission.Milestone{}, err
	}
	ms := commission.Milestone{
		ID:                          m.ID,
		Description:                 m.Description,
		Value:                       value,
		Status:                      m.Status,
		CompletedAt:                 m.CompletedAt,
		Notes:                       m.Notes,
		ReleasedPayoutTransactionID: m.ReleasedPayoutTransactionID,
		CreatedAt:                   m.CreatedAt,
	}
	if m.DueDate != nil {
		ms.DueDate = *m.DueDate
	}
	return ms, nil
}

// FromDomain populates the persistence model from a domain Milestone.
func (m *MilestoneModel) FromDomain(agreementID uuid.UUID, ms *commission.Milestone) {
	m.ID = ms.ID
	m.AgreementID = agreementID
	m.Description = ms.Description
	m.Value = ms.Value.Amount()
	m.DueDate = nil
	if !ms.DueDate.IsZero() {
		due := ms.DueDate
		m.DueDate = &due
	}
	m.Status = ms.Status
	m.CompletedAt = ms.CompletedAt
	m.Notes = ms.Notes
	m.ReleasedPayoutTransactionID = ms.ReleasedPayoutTransactionID
	m.CreatedAt = ms.CreatedAt
}
