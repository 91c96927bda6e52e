package commission

import (
	"time"

	"github.com/escrowhub/backend/internal/domain/commission"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ==================== Agreement DTOs ====================

// CreateAgreementRequest represents a request to create a draft agreement
type CreateAgreementRequest struct {
	Title       string          `json:"title" binding:"required,min=1,max=200"`
	Description string          `json:"description" binding:"max=2000"`
	Terms       string          `json:"terms"`
	TotalValue  decimal.Decimal `json:"total_value" binding:"required,positive_amount"`
	Currency    string          `json:"currency" binding:"required,currency"`
}

// UpdateDetailsRequest replaces the descriptive fields of a draft agreement
type UpdateDetailsRequest struct {
	Title       string `json:"title" binding:"required,min=1,max=200"`
	Description string `json:"description" binding:"max=2000"`
	Terms       string `json:"terms"`
}

// AddPartyRequest represents a request to add a party to a draft agreement
type AddPartyRequest struct {
	ContactID       *uuid.UUID      `json:"contact_id"`
	CompanyID       *uuid.UUID      `json:"company_id"`
	Name            string          `json:"name" binding:"required,min=1,max=200"`
	Email           string          `json:"email" binding:"omitempty,email"`
	SplitPercentage decimal.Decimal `json:"split_percentage" binding:"required"`
	Role            string          `json:"role" binding:"required,oneof=AGENT PRINCIPAL REFERRER BROKER PARTNER"`
	StripeAccountID string          `json:"stripe_account_id" binding:"max=255"`
}

// AddMilestoneRequest represents a request to add a milestone
type AddMilestoneRequest struct {
	Description string          `json:"description" binding:"required,min=1,max=500"`
	Value       decimal.Decimal `json:"value" binding:"required,positive_amount"`
	DueDate     time.Time       `json:"due_date" binding:"required"`
}

// CompleteMilestoneRequest represents a request to complete a milestone by hand
type CompleteMilestoneRequest struct {
	Notes string `json:"notes" binding:"max=2000"`
}

// ReasonRequest carries the reason for a cancellation or a dispute
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=1000"`
}

// ConnectPartyPayoutAccountRequest links a party to its connected payout account
type ConnectPartyPayoutAccountRequest struct {
	StripeAccountID string `json:"stripe_account_id" binding:"required,max=255"`
}

// ListAgreementsQuery filters the owner's agreements
type ListAgreementsQuery struct {
	Status   string `form:"status" binding:"omitempty,oneof=DRAFT ACTIVE COMPLETED CANCELED DISPUTED"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	SortBy   string `form:"sort_by" binding:"omitempty,oneof=created_at updated_at title total_value status activated_at"`
	SortDir  string `form:"sort_dir" binding:"omitempty,oneof=asc desc ASC DESC"`
}

// PartyResponse represents a party in API responses
type PartyResponse struct {
	ID                uuid.UUID       `json:"id"`
	ContactID         *uuid.UUID      `json:"contact_id,omitempty"`
	CompanyID         *uuid.UUID      `json:"company_id,omitempty"`
	Name              string          `json:"name"`
	Email             string          `json:"email,omitempty"`
	SplitPercentage   decimal.Decimal `json:"split_percentage"`
	Role              string          `json:"role"`
	StripeAccountID   string          `json:"stripe_account_id,omitempty"`
	StripeConnectedAt *time.Time      `json:"stripe_connected_at,omitempty"`
	HasAccepted       bool            `json:"has_accepted"`
	AcceptedAt        *time.Time      `json:"accepted_at,omitempty"`
}

// MilestoneResponse represents a milestone in API responses
type MilestoneResponse struct {
	ID                          uuid.UUID       `json:"id"`
	Description                 string          `json:"description"`
	Value                       decimal.Decimal `json:"value"`
	Currency                    string          `json:"currency"`
	DueDate                     time.Time       `json:"due_date"`
	Status                      string          `json:"status"`
	CompletedAt                 *time.Time      `json:"completed_at,omitempty"`
	Notes                       string          `json:"notes,omitempty"`
	ReleasedPayoutTransactionID *uuid.UUID      `json:"released_payout_transaction_id,omitempty"`
}

// AgreementResponse represents a full agreement in API responses
type AgreementResponse struct {
	ID                 uuid.UUID           `json:"id"`
	OwnerUserID        uuid.UUID           `json:"owner_user_id"`
	Title              string              `json:"title"`
	Description        string              `json:"description,omitempty"`
	Terms              string              `json:"terms,omitempty"`
	TotalValue         decimal.Decimal     `json:"total_value"`
	Currency           string              `json:"currency"`
	Status             string              `json:"status"`
	Parties            []PartyResponse     `json:"parties"`
	Milestones         []MilestoneResponse `json:"milestones"`
	EscrowAccountID    *uuid.UUID          `json:"escrow_account_id,omitempty"`
	ActivatedAt        *time.Time          `json:"activated_at,omitempty"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	CanceledAt         *time.Time          `json:"canceled_at,omitempty"`
	CancellationReason string              `json:"cancellation_reason,omitempty"`
	DisputeReason      string              `json:"dispute_reason,omitempty"`
	Version            int                 `json:"version"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// AgreementListItemResponse is the compact listing form of an agreement
type AgreementListItemResponse struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	TotalValue      decimal.Decimal `json:"total_value"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	PartyCount      int             `json:"party_count"`
	MilestoneCount  int             `json:"milestone_count"`
	EscrowAccountID *uuid.UUID      `json:"escrow_account_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// AgreementListResponse is one page of agreements
type AgreementListResponse struct {
	Items    []AgreementListItemResponse `json:"items"`
	Total    int64                       `json:"total"`
	Page     int                         `json:"page"`
	PageSize int                         `json:"page_size"`
}

// OutstandingResponse is the agreement value not yet covered by completed milestones
type OutstandingResponse struct {
	AgreementID      uuid.UUID       `json:"agreement_id"`
	TotalValue       decimal.Decimal `json:"total_value"`
	CompletedValue   decimal.Decimal `json:"completed_value"`
	OutstandingValue decimal.Decimal `json:"outstanding_value"`
	Currency         string          `json:"currency"`
}

// ToAgreementResponse converts the aggregate to its response DTO
func ToAgreementResponse(a *commission.CommissionAgreement) AgreementResponse {
	resp := AgreementResponse{
		ID:                 a.ID,
		OwnerUserID:        a.OwnerUserID,
		Title:              a.Title,
		Description:        a.Description,
		Terms:              a.Terms,
		TotalValue:         a.TotalValue.Amount(),
		Currency:           a.Currency.String(),
		Status:             string(a.Status),
		Parties:            make([]PartyResponse, 0, len(a.Parties)),
		Milestones:         make([]MilestoneResponse, 0, len(a.Milestones)),
		EscrowAccountID:    a.EscrowAccountID,
		ActivatedAt:        a.ActivatedAt,
		CompletedAt:        a.CompletedAt,
		CanceledAt:         a.CanceledAt,
		CancellationReason: a.CancellationReason,
		DisputeReason:      a.DisputeReason,
		Version:            a.GetVersion(),
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
	for i := range a.Parties {
		resp.Parties = append(resp.Parties, ToPartyResponse(&a.Parties[i]))
	}
	for i := range a.Milestones {
		resp.Milestones = append(resp.Milestones, ToMilestoneResponse(&a.Milestones[i]))
	}
	return resp
}

// ToPartyResponse converts a party to its response DTO
func ToPartyResponse(p *commission.Party) PartyResponse {
	return PartyResponse{
		ID:                p.ID,
		ContactID:         p.ContactID,
		CompanyID:         p.CompanyID,
		Name:              p.Name,
		Email:             p.Email,
		SplitPercentage:   p.Split.Value(),
		Role:              string(p.Role),
		StripeAccountID:   p.StripeAccountID,
		StripeConnectedAt: p.StripeConnectedAt,
		HasAccepted:       p.HasAccepted,
		AcceptedAt:        p.AcceptedAt,
	}
}

// ToMilestoneResponse converts a milestone to its response DTO
func ToMilestoneResponse(m *commission.Milestone) MilestoneResponse {
	return MilestoneResponse{
		ID:                          m.ID,
		Description:                 m.Description,
		Value:                       m.Value.Amount(),
		Currency:                    m.Value.Currency().String(),
		DueDate:                     m.DueDate,
		Status:                      string(m.Status),
		CompletedAt:                 m.CompletedAt,
		Notes:                       m.Notes,
		ReleasedPayoutTransactionID: m.ReleasedPayoutTransactionID,
	}
}

// ToAgreementListItemResponse converts the aggregate to its listing form
func ToAgreementListItemResponse(a *commission.CommissionAgreement) AgreementListItemResponse {
	return AgreementListItemResponse{
		ID:              a.ID,
		Title:           a.Title,
		TotalValue:      a.TotalValue.Amount(),
		Currency:        a.Currency.String(),
		Status:          string(a.Status),
		PartyCount:      len(a.Parties),
		MilestoneCount:  len(a.Milestones),
		EscrowAccountID: a.EscrowAccountID,
		CreatedAt:       a.CreatedAt,
	}
}
