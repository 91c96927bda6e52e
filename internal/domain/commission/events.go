package commission

import (
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AggregateTypeCommissionAgreement is the aggregate type recorded on events and outbox rows
const AggregateTypeCommissionAgreement = "CommissionAgreement"

// Event type constants
const (
	EventTypeAgreementCreated        = "AgreementCreated"
	EventTypeAgreementDetailsUpdated = "AgreementDetailsUpdated"
	EventTypePartyAdded              = "PartyAdded"
	EventTypePartyAccepted           = "PartyAccepted"
	EventTypePartyPayoutConnected    = "PartyPayoutAccountConnected"
	EventTypeMilestoneAdded          = "MilestoneAdded"
	EventTypeMilestoneCompleted      = "MilestoneCompleted"
	EventTypeMilestoneOverdue        = "MilestoneOverdue"
	EventTypeAgreementActivated      = "AgreementActivated"
	EventTypeAgreementCompleted      = "AgreementCompleted"
	EventTypeAgreementCanceled       = "AgreementCanceled"
	EventTypeAgreementDisputed       = "AgreementDisputed"
	EventTypeEscrowAttached          = "EscrowAccountAttached"
)

func newEvent(eventType string, a *CommissionAgreement, at time.Time) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, AggregateTypeCommissionAgreement, a.ID, at)
}

// AgreementCreatedEvent is raised when a draft agreement is created
type AgreementCreatedEvent struct {
	shared.BaseDomainEvent
	AgreementID uuid.UUID         `json:"agreement_id"`
	OwnerUserID uuid.UUID         `json:"owner_user_id"`
	Title       string            `json:"title"`
	TotalValue  valueobject.Money `json:"total_value"`
}

// AgreementDetailsUpdatedEvent is raised when title, description or terms change
type AgreementDetailsUpdatedEvent struct {
	shared.BaseDomainEvent
	AgreementID uuid.UUID `json:"agreement_id"`
	Title       string    `json:"title"`
}

// PartyAddedEvent is raised when a party joins the agreement
type PartyAddedEvent struct {
	shared.BaseDomainEvent
	AgreementID uuid.UUID `json:"agreement_id"`
	PartyID     uuid.UUID `json:"party_id"`
	PartyName   string    `json:"party_name"`
	Role        PartyRole `json:"role"`
	Split       string    `json:"split_percentage"`
}

// PartyAcceptedEvent is raised the first time a party accepts the agreement
type PartyAcceptedEvent struct {
	shared.BaseDomainEvent
	AgreementID uuid.UUID `json:"agreement_id"`
	PartyID     uuid.UUID `json:"party_id"`
	AcceptedAt  time.Time `json:"accepted_at"`
}

// PartyPayoutAccountConnectedEvent is raised when a party links a payout destination
type PartyPayoutAccountConnectedEvent struct {
	shared.BaseDomainEvent
	AgreementID     uuid.UUID `json:"agreement_id"`
	PartyID         uuid.UUID `json:"party_id"`
	StripeAccountID string    `json:"stripe_account_id"`
}

// MilestoneAddedEvent is raised when a milestone is added
type MilestoneAddedEvent struct {
	shared.BaseDomainEvent
	AgreementID uuid.UUID         `json:"agreement_id"`
	MilestoneID uuid.UUID         `json:"milestone_id"`
	Description string            `json:"description"`
	Value       valueobject.Money `json:"value"`
	DueDate     time.Time         `json:"due_date"`
}

// MilestoneCompletedEvent is raised when a milestone is completed
type MilestoneCompletedEvent struct {
	shared.BaseDomainEvent
	AgreementID                 uuid.UUID         `json:"agreement_id"`
	MilestoneID                 uuid.UUID         `json:"milestone_id"`
	Value                       valueobject.Money `json:"value"`
	ReleasedPayoutTransactionID *uuid.UUID        `json:"released_payout_transaction_id,omitempty"`
}

// MilestoneOverdueEvent is raised when a pending milestone passes its due date
type MilestoneOverdueEvent struct {
	shared.BaseDomainEvent
	AgreementID uuid.UUID `json:"agreement_id"`
	MilestoneID uuid.UUID `json:"milestone_id"`
	DueDate     time.Time `json:"due_date"`
}

// AgreementActivatedEvent is raised when a draft agreement becomes active
type AgreementActivatedEvent struct {
	shared.BaseDomainEvent
	AgreementID uuid.UUID `json:"agreement_id"`
	ActivatedBy uuid.UUID `json:"activated_by"`
}

// AgreementCompletedEvent is raised when an active agreement completes
type AgreementCompletedEvent struct {
	shared.BaseDomainEvent
	AgreementID uuid.UUID `json:"agreement_id"`
	CompletedBy uuid.UUID `json:"completed_by"`
}

// AgreementCanceledEvent is raised when an agreement is canceled
type AgreementCanceledEvent struct {
	shared.BaseDomainEvent
	AgreementID uuid.UUID       `json:"agreement_id"`
	CanceledBy  uuid.UUID       `json:"canceled_by"`
	Reason      string          `json:"reason"`
	FromStatus  AgreementStatus `json:"from_status"`
}

// AgreementDisputedEvent is raised when an active agreement is disputed
type AgreementDisputedEvent struct {
	shared.BaseDomainEvent
	AgreementID uuid.UUID `json:"agreement_id"`
	DisputedBy  uuid.UUID `json:"disputed_by"`
	Reason      string    `json:"reason"`
}

// EscrowAccountAttachedEvent is raised when the agreement is linked to its escrow account
type EscrowAccountAttachedEvent struct {
	shared.BaseDomainEvent
	AgreementID     uuid.UUID `json:"agreement_id"`
	EscrowAccountID uuid.UUID `json:"escrow_account_id"`
}
