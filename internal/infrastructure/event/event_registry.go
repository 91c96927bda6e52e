package event

import (
	"github.com/escrowhub/backend/internal/domain/commission"
	"github.com/escrowhub/backend/internal/domain/escrow"
)

// RegisterAllEvents teaches serializer every event the aggregates raise, so
// the outbox relay can decode any row it finds.
func RegisterAllEvents(s *EventSerializer) {
	Register[commission.AgreementCreatedEvent](s, commission.EventTypeAgreementCreated)
	Register[commission.AgreementDetailsUpdatedEvent](s, commission.EventTypeAgreementDetailsUpdated)
	Register[commission.PartyAddedEvent](s, commission.EventTypePartyAdded)
	Register[commission.PartyAcceptedEvent](s, commission.EventTypePartyAccepted)
	Register[commission.PartyPayoutAccountConnectedEvent](s, commission.EventTypePartyPayoutConnected)
	Register[commission.MilestoneAddedEvent](s, commission.EventTypeMilestoneAdded)
	Register[commission.MilestoneCompletedEvent](s, commission.EventTypeMilestoneCompleted)
	Register[commission.MilestoneOverdueEvent](s, commission.EventTypeMilestoneOverdue)
	Register[commission.AgreementActivatedEvent](s, commission.EventTypeAgreementActivated)
	Register[commission.AgreementCompletedEvent](s, commission.EventTypeAgreementCompleted)
	Register[commission.AgreementCanceledEvent](s, commission.EventTypeAgreementCanceled)
	Register[commission.AgreementDisputedEvent](s, commission.EventTypeAgreementDisputed)
	Register[commission.EscrowAccountAttachedEvent](s, commission.EventTypeEscrowAttached)

	Register[escrow.EscrowAccountOpenedEvent](s, escrow.EventTypeEscrowAccountOpened)
	Register[escrow.StripeAccountConnectedEvent](s, escrow.EventTypeStripeAccountConnected)
	Register[escrow.AccountStatusChangedEvent](s,
		escrow.EventTypeEscrowAccountSuspended,
		escrow.EventTypeEscrowAccountReactivate,
		escrow.EventTypeEscrowAccountClosed,
	)
	// ledger movements share one payload shape
	Register[escrow.TransactionEvent](s,
		escrow.EventTypeEscrowDepositRegistered,
		escrow.EventTypeEscrowDepositConfirmed,
		escrow.EventTypeEscrowDepositFailed,
		escrow.EventTypePayoutRequested,
		escrow.EventTypePayoutApproved,
		escrow.EventTypePayoutRejected,
		escrow.EventTypePayoutDisputeResolved,
		escrow.EventTypePayoutExecuted,
		escrow.EventTypePayoutFailed,
		escrow.EventTypePayoutPartiallyExecuted,
		escrow.EventTypePayoutReversed,
	)
}
