package escrow

import (
	"context"

	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// DepositIntentStatus reports how far a deposit intent has progressed
type DepositIntentStatus string

const (
	DepositIntentRequiresAction DepositIntentStatus = "REQUIRES_ACTION"
	DepositIntentProcessing     DepositIntentStatus = "PROCESSING"
	DepositIntentSucceeded      DepositIntentStatus = "SUCCEEDED"
	DepositIntentCanceled       DepositIntentStatus = "CANCELED"
)

// DepositIntent is the payment rail's handle for collecting a deposit
type DepositIntent struct {
	IntentID     string
	ClientSecret string
	Status       DepositIntentStatus
}

// PayoutResultStatus is the payment rail's verdict on a transfer
type PayoutResultStatus string

const (
	PayoutResultSucceeded PayoutResultStatus = "SUCCEEDED"
	PayoutResultPending   PayoutResultStatus = "PENDING"
	PayoutResultFailed    PayoutResultStatus = "FAILED"
)

// PayoutResult is the outcome of a transfer to a connected account
type PayoutResult struct {
	Status        PayoutResultStatus
	TransferID    string
	FailureReason string
}

// WebhookEventType enumerates the asynchronous notifications the engine acts on
type WebhookEventType string

const (
	WebhookDepositSucceeded WebhookEventType = "deposit.succeeded"
	WebhookDepositFailed    WebhookEventType = "deposit.failed"
	WebhookPayoutReversed   WebhookEventType = "payout.reversed"
	WebhookAccountUpdated   WebhookEventType = "account.updated"
	WebhookIgnored          WebhookEventType = "ignored"
)

// WebhookEvent is a verified, decoded payment rail notification
type WebhookEvent struct {
	ID              string
	Type            WebhookEventType
	RawType         string
	EscrowAccountID *uuid.UUID
	PaymentIntentID string
	TransferID      string
	AccountID       string
	FailureReason   string
}

// PaymentGateway is the contract with the external payment rail.
// Every money moving call carries the idempotency key of the ledger entry it
// serves so a retried call cannot move money twice.
type PaymentGateway interface {
	CreateDepositIntent(ctx context.Context, escrowAccountID uuid.UUID, amount valueobject.Money, description string, key valueobject.IdempotencyKey) (*DepositIntent, error)
	ExecutePayout(ctx context.Context, escrowAccountID, transactionID uuid.UUID, amount valueobject.Money, destinationAccountID string, key valueobject.IdempotencyKey) (*PayoutResult, error)
	ConnectAccount(ctx context.Context, ownerUserID uuid.UUID, authorizationCode string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}
