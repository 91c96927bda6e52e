package escrow

import (
	"time"

	"github.com/escrowhub/backend/internal/domain/escrow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ==================== Escrow DTOs ====================

// DepositRequest represents a request to fund an escrow account
type DepositRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required,positive_amount"`
	Description string          `json:"description" binding:"max=500"`
}

// RequestPayoutRequest represents a request to release funds from escrow
type RequestPayoutRequest struct {
	PartyID     *uuid.UUID      `json:"party_id"`
	MilestoneID *uuid.UUID      `json:"milestone_id"`
	Amount      decimal.Decimal `json:"amount" binding:"required,positive_amount"`
	Description string          `json:"description" binding:"max=500"`
}

// TriggerMilestonePayoutRequest releases a milestone's value. Amount defaults
// to the full milestone value.
type TriggerMilestonePayoutRequest struct {
	Amount      *decimal.Decimal `json:"amount" binding:"omitempty,positive_amount"`
	PartyID     *uuid.UUID       `json:"party_id"`
	Description string           `json:"description" binding:"max=500"`
}

// RejectPayoutRequest carries the rejection reason
type RejectPayoutRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=1000"`
}

// ResolveDisputeRequest settles a disputed payout
type ResolveDisputeRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason" binding:"max=1000"`
}

// ConnectPayoutAccountRequest carries the OAuth code returned by the payment provider
type ConnectPayoutAccountRequest struct {
	AuthorizationCode string `json:"authorization_code" binding:"required,min=1,max=255"`
}

// TransactionResponse represents one ledger entry in API responses
type TransactionResponse struct {
	ID                 uuid.UUID       `json:"id"`
	Type               string          `json:"type"`
	PartyID            *uuid.UUID      `json:"party_id,omitempty"`
	MilestoneID        *uuid.UUID      `json:"milestone_id,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Status             string          `json:"status"`
	Description        string          `json:"description,omitempty"`
	PaymentIntentID    string          `json:"payment_intent_id,omitempty"`
	ExternalTransferID string          `json:"external_transfer_id,omitempty"`
	ReversedTransfers  []string        `json:"reversed_transfer_ids,omitempty"`
	ReversalReason     string          `json:"reversal_reason,omitempty"`
	IdempotencyKey     string          `json:"idempotency_key,omitempty"`
	RequestedBy        uuid.UUID       `json:"requested_by"`
	ApprovedBy         *uuid.UUID      `json:"approved_by,omitempty"`
	RejectedBy         *uuid.UUID      `json:"rejected_by,omitempty"`
	RejectionReason    string          `json:"rejection_reason,omitempty"`
	FailureReason      string          `json:"failure_reason,omitempty"`
	RequestedAt        time.Time       `json:"requested_at"`
	ApprovedAt         *time.Time      `json:"approved_at,omitempty"`
	RejectedAt         *time.Time      `json:"rejected_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	FailedAt           *time.Time      `json:"failed_at,omitempty"`
	DisputedAt         *time.Time      `json:"disputed_at,omitempty"`
	ReversedAt         *time.Time      `json:"reversed_at,omitempty"`
}

// EscrowAccountResponse represents an escrow account and its ledger
type EscrowAccountResponse struct {
	ID                uuid.UUID             `json:"id"`
	AgreementID       uuid.UUID             `json:"agreement_id"`
	OwnerUserID       uuid.UUID             `json:"owner_user_id"`
	Currency          string                `json:"currency"`
	Status            string                `json:"status"`
	StripeAccountID   string                `json:"stripe_account_id,omitempty"`
	StripeConnectedAt *time.Time            `json:"stripe_connected_at,omitempty"`
	Balance           decimal.Decimal       `json:"balance"`
	AvailableBalance  decimal.Decimal       `json:"available_balance"`
	Transactions      []TransactionResponse `json:"transactions"`
	Version           int                   `json:"version"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// TransactionResultResponse is returned by commands acting on one transaction.
// Replayed is true when an idempotency key matched an earlier request.
type TransactionResultResponse struct {
	EscrowAccountID  uuid.UUID           `json:"escrow_account_id"`
	Transaction      TransactionResponse `json:"transaction"`
	Balance          decimal.Decimal     `json:"balance"`
	AvailableBalance decimal.Decimal     `json:"available_balance"`
	Replayed         bool                `json:"replayed"`
}

// DepositResponse adds the client secret needed to complete the payment
type DepositResponse struct {
	TransactionResultResponse
	ClientSecret string `json:"client_secret,omitempty"`
}

// WebhookResult reports how a payment provider notification was handled
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Outcome   string `json:"outcome"`
}

// Webhook outcomes
const (
	WebhookOutcomeApplied   = "applied"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeUnmatched = "unmatched"
)

// ToTransactionResponse converts a ledger entry to its response DTO
func ToTransactionResponse(tx *escrow.EscrowTransaction) TransactionResponse {
	return TransactionResponse{
		ID:                 tx.ID,
		Type:               string(tx.Type),
		PartyID:            tx.PartyID,
		MilestoneID:        tx.MilestoneID,
		Amount:             tx.Amount.Amount(),
		Currency:           tx.Amount.Currency().String(),
		Status:             string(tx.Status),
		Description:        tx.Description,
		PaymentIntentID:    tx.PaymentIntentID,
		ExternalTransferID: tx.ExternalTransferID,
		ReversedTransfers:  tx.ReversedTransferIDs(),
		ReversalReason:     tx.ReversalReason,
		IdempotencyKey:     tx.IdempotencyKey.String(),
		RequestedBy:        tx.RequestedBy,
		ApprovedBy:         tx.ApprovedBy,
		RejectedBy:         tx.RejectedBy,
		RejectionReason:    tx.RejectionReason,
		FailureReason:      tx.FailureReason,
		RequestedAt:        tx.RequestedAt,
		ApprovedAt:         tx.ApprovedAt,
		RejectedAt:         tx.RejectedAt,
		CompletedAt:        tx.CompletedAt,
		FailedAt:           tx.FailedAt,
		DisputedAt:         tx.DisputedAt,
		ReversedAt:         tx.ReversedAt,
	}
}

// ToEscrowAccountResponse converts the aggregate to its response DTO
func ToEscrowAccountResponse(a *escrow.EscrowAccount) EscrowAccountResponse {
	resp := EscrowAccountResponse{
		ID:                a.ID,
		AgreementID:       a.AgreementID,
		OwnerUserID:       a.OwnerUserID,
		Currency:          a.Currency.String(),
		Status:            string(a.Status),
		StripeAccountID:   a.StripeAccountID,
		StripeConnectedAt: a.StripeConnectedAt,
		Balance:           a.Balance().Amount(),
		AvailableBalance:  a.AvailableBalance().Amount(),
		Transactions:      make([]TransactionResponse, 0, len(a.Transactions)),
		Version:           a.GetVersion(),
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
	for i := range a.Transactions {
		resp.Transactions = append(resp.Transactions, ToTransactionResponse(&a.Transactions[i]))
	}
	return resp
}

func toResult(a *escrow.EscrowAccount, tx *escrow.EscrowTransaction, replayed bool) *TransactionResultResponse {
	return &TransactionResultResponse{
		EscrowAccountID:  a.ID,
		Transaction:      ToTransactionResponse(tx),
		Balance:          a.Balance().Amount(),
		AvailableBalance: a.AvailableBalance().Amount(),
		Replayed:         replayed,
	}
}
