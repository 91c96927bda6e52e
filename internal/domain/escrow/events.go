package escrow

import (
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AggregateTypeEscrowAccount is the aggregate type recorded on events and outbox rows
const AggregateTypeEscrowAccount = "EscrowAccount"

// Event type constants
const (
	EventTypeEscrowAccountOpened     = "EscrowAccountOpened"
	EventTypeEscrowDepositRegistered = "EscrowDepositRegistered"
	EventTypeEscrowDepositConfirmed  = "EscrowDepositConfirmed"
	EventTypeEscrowDepositFailed     = "EscrowDepositFailed"
	EventTypePayoutRequested         = "PayoutRequested"
	EventTypePayoutApproved          = "PayoutApproved"
	EventTypePayoutRejected          = "PayoutRejected"
	EventTypePayoutDisputeResolved   = "PayoutDisputeResolved"
	EventTypePayoutExecuted          = "PayoutExecuted"
	EventTypePayoutFailed            = "PayoutFailed"
	EventTypePayoutPartiallyExecuted = "PayoutPartiallyExecuted"
	EventTypePayoutReversed          = "PayoutReversed"
	EventTypeStripeAccountConnected  = "EscrowStripeAccountConnected"
	EventTypeEscrowAccountSuspended  = "EscrowAccountSuspended"
	EventTypeEscrowAccountReactivate = "EscrowAccountReactivated"
	EventTypeEscrowAccountClosed     = "EscrowAccountClosed"
)

func newEvent(eventType string, a *EscrowAccount, at time.Time) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypeEscrowAccount, a.ID, at)
}

// EscrowAccountOpenedEvent is raised when an escrow account is created for an agreement
type EscrowAccountOpenedEvent struct {
	shared.BaseDomainEvent
	EscrowAccountID uuid.UUID            `json:"escrow_account_id"`
	AgreementID     uuid.UUID            `json:"agreement_id"`
	Currency        valueobject.Currency `json:"currency"`
}

// TransactionEvent carries the state of a ledger entry after a change.
// Deposit, payout and terminal events all share this payload.
type TransactionEvent struct {
	shared.BaseDomainEvent
	EscrowAccountID    uuid.UUID         `json:"escrow_account_id"`
	AgreementID        uuid.UUID         `json:"agreement_id"`
	TransactionID      uuid.UUID         `json:"transaction_id"`
	TransactionType    TransactionType   `json:"transaction_type"`
	Status             TransactionStatus `json:"status"`
	Amount             valueobject.Money `json:"amount"`
	PartyID            *uuid.UUID        `json:"party_id,omitempty"`
	MilestoneID        *uuid.UUID        `json:"milestone_id,omitempty"`
	Actor              *uuid.UUID        `json:"actor,omitempty"`
	PaymentIntentID    string            `json:"payment_intent_id,omitempty"`
	ExternalTransferID string            `json:"external_transfer_id,omitempty"`
	Reason             string            `json:"reason,omitempty"`
}

func newTransactionEvent(eventType string, a *EscrowAccount, tx *EscrowTransaction, actor *uuid.UUID, reason string, at time.Time) *TransactionEvent {
	return &TransactionEvent{
		BaseDomainEvent:    newEvent(eventType, a, at),
		EscrowAccountID:    a.ID,
		AgreementID:        a.AgreementID,
		TransactionID:      tx.ID,
		TransactionType:    tx.Type,
		Status:             tx.Status,
		Amount:             tx.Amount,
		PartyID:            tx.PartyID,
		MilestoneID:        tx.MilestoneID,
		Actor:              actor,
		PaymentIntentID:    tx.PaymentIntentID,
		ExternalTransferID: tx.ExternalTransferID,
		Reason:             reason,
	}
}

// AccountStatusChangedEvent is raised on suspension, reactivation and closing
type AccountStatusChangedEvent struct {
	shared.BaseDomainEvent
	EscrowAccountID uuid.UUID     `json:"escrow_account_id"`
	Status          AccountStatus `json:"status"`
	Reason          string        `json:"reason,omitempty"`
}

// StripeAccountConnectedEvent is raised when the payout destination is connected
type StripeAccountConnectedEvent struct {
	shared.BaseDomainEvent
	EscrowAccountID uuid.UUID `json:"escrow_account_id"`
	StripeAccountID string    `json:"stripe_account_id"`
}
