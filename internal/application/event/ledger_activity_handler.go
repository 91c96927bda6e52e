package event

import (
	"context"

	"github.com/escrowhub/backend/internal/domain/commission"
	"github.com/escrowhub/backend/internal/domain/escrow"
	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// attentionEvents need an operator to look at them
var attentionEvents = map[string]bool{
	escrow.EventTypeEscrowDepositFailed:     true,
	escrow.EventTypePayoutFailed:            true,
	escrow.EventTypePayoutPartiallyExecuted: true,
	escrow.EventTypePayoutReversed:          true,
	escrow.EventTypePayoutRejected:          true,
	commission.EventTypeAgreementDisputed:   true,
	commission.EventTypeMilestoneOverdue:    true,
}

// LedgerActivityHandler writes an activity line for every money movement and
// every agreement event that needs follow-up. Failures, rejections, disputes
// and overdue milestones are logged at Warn.
type LedgerActivityHandler struct{}

// NewLedgerActivityHandler creates a new LedgerActivityHandler
func NewLedgerActivityHandler() *LedgerActivityHandler {
	return &LedgerActivityHandler{}
}

// EventTypes returns the event types this handler subscribes to
func (h *LedgerActivityHandler) EventTypes() []string {
	return []string{
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
		commission.EventTypeAgreementDisputed,
		commission.EventTypeMilestoneOverdue,
	}
}

// Handle logs the event
func (h *LedgerActivityHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", evt.EventType()),
		zap.String("event_id", evt.EventID().String()),
		zap.String("aggregate_id", evt.AggregateID().String()),
	}

	switch e := evt.(type) {
	case *escrow.TransactionEvent:
		fields = append(fields,
			zap.String("agreement_id", e.AgreementID.String()),
			zap.String("transaction_id", e.TransactionID.String()),
			zap.String("transaction_type", string(e.TransactionType)),
			zap.String("status", string(e.Status)),
			zap.String("amount", e.Amount.Amount().String()),
			zap.String("currency", e.Amount.Currency().String()),
		)
		if e.MilestoneID != nil {
			fields = append(fields, zap.String("milestone_id", e.MilestoneID.String()))
		}
		if e.ExternalTransferID != "" {
			fields = append(fields, zap.String("transfer_id", e.ExternalTransferID))
		}
		if e.Reason != "" {
			fields = append(fields, zap.String("reason", e.Reason))
		}
	case *commission.AgreementDisputedEvent:
		fields = append(fields,
			zap.String("disputed_by", e.DisputedBy.String()),
			zap.String("reason", e.Reason),
		)
	case *commission.MilestoneOverdueEvent:
		fields = append(fields,
			zap.String("milestone_id", e.MilestoneID.String()),
			zap.Time("due_date", e.DueDate),
		)
	}

	log := logger.L(ctx)
	if attentionEvents[evt.EventType()] {
		log.Warn("Escrow activity needs attention", fields...)
		return nil
	}
	log.Info("Escrow activity", fields...)
	return nil
}
