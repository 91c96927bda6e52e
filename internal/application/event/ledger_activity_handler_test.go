package event

import (
	"context"
	"testing"
	"time"

	"github.com/escrowhub/backend/internal/domain/commission"
	"github.com/escrowhub/backend/internal/domain/escrow"
	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedContext() (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.WithContext(context.Background(), zap.New(core)), logs
}

func transactionEvent(t *testing.T, eventType string, status escrow.TransactionStatus) *escrow.TransactionEvent {
	t.Helper()
	amount, err := valueobject.NewMoneyFromString("1250.00", valueobject.BRL)
	require.NoError(t, err)
	milestoneID := uuid.New()
	return &escrow.TransactionEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "EscrowAccount", uuid.New(), time.Now()),
		EscrowAccountID: uuid.New(),
		AgreementID:     uuid.New(),
		TransactionID:   uuid.New(),
		TransactionType: escrow.TransactionTypePayout,
		Status:          status,
		Amount:          amount,
		MilestoneID:     &milestoneID,
		Reason:          "card_declined",
	}
}

func TestLedgerActivityHandler_EventTypes(t *testing.T) {
	types := NewLedgerActivityHandler().EventTypes()

	assert.Contains(t, types, escrow.EventTypePayoutExecuted)
	assert.Contains(t, types, commission.EventTypeMilestoneOverdue)
	assert.Contains(t, types, escrow.EventTypePayoutReversed)
	assert.NotContains(t, types, commission.EventTypeAgreementCreated)
}

func TestLedgerActivityHandler_Handle(t *testing.T) {
	h := NewLedgerActivityHandler()

	t.Run("settled payout is informational", func(t *testing.T) {
		ctx, logs := observedContext()
		evt := transactionEvent(t, escrow.EventTypePayoutExecuted, escrow.TransactionStatusCompleted)

		require.NoError(t, h.Handle(ctx, evt))

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, zapcore.InfoLevel, entry.Level)
		fields := entry.ContextMap()
		assert.Equal(t, "1250", fields["amount"])
		assert.Equal(t, "BRL", fields["currency"])
		assert.Equal(t, evt.TransactionID.String(), fields["transaction_id"])
		assert.Equal(t, evt.MilestoneID.String(), fields["milestone_id"])
	})

	t.Run("failed payout needs attention", func(t *testing.T) {
		ctx, logs := observedContext()

		require.NoError(t, h.Handle(ctx, transactionEvent(t, escrow.EventTypePayoutFailed, escrow.TransactionStatusFailed)))

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, zapcore.WarnLevel, entry.Level)
		assert.Equal(t, "card_declined", entry.ContextMap()["reason"])
	})

	t.Run("reversed transfer needs attention", func(t *testing.T) {
		ctx, logs := observedContext()
		evt := transactionEvent(t, escrow.EventTypePayoutReversed, escrow.TransactionStatusCompleted)
		evt.ExternalTransferID = "tr_9"

		require.NoError(t, h.Handle(ctx, evt))

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, zapcore.WarnLevel, entry.Level)
		assert.Equal(t, "tr_9", entry.ContextMap()["transfer_id"])
	})

	t.Run("overdue milestone", func(t *testing.T) {
		ctx, logs := observedContext()
		due := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
		evt := &commission.MilestoneOverdueEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(commission.EventTypeMilestoneOverdue, "CommissionAgreement", uuid.New(), time.Now()),
			AgreementID:     uuid.New(),
			MilestoneID:     uuid.New(),
			DueDate:         due,
		}

		require.NoError(t, h.Handle(ctx, evt))

		entry := logs.All()[0]
		assert.Equal(t, zapcore.WarnLevel, entry.Level)
		assert.Equal(t, evt.MilestoneID.String(), entry.ContextMap()["milestone_id"])
	})

	t.Run("dispute", func(t *testing.T) {
		ctx, logs := observedContext()
		evt := &commission.AgreementDisputedEvent{
			BaseDomainEvent: shared.NewBaseDomainEvent(commission.EventTypeAgreementDisputed, "CommissionAgreement", uuid.New(), time.Now()),
			DisputedBy:      uuid.New(),
			Reason:          "split disagreement",
		}

		require.NoError(t, h.Handle(ctx, evt))

		entry := logs.All()[0]
		assert.Equal(t, zapcore.WarnLevel, entry.Level)
		assert.Equal(t, "split disagreement", entry.ContextMap()["reason"])
	})
}
