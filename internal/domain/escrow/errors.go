package escrow

import (
	"errors"
	"fmt"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
)

// Stable error codes raised by the escrow aggregate and payout rules
const (
	CodeInvalidTransactionState  = "InvalidTransactionState"
	CodeTransactionNotFound      = "TransactionNotFound"
	CodeMilestoneValueExceeded   = "MilestoneValueExceeded"
	CodePayoutAlreadyReleased    = "PayoutAlreadyReleased"
	CodeAccountNotActive         = "AccountNotActive"
	CodeDuplicateIdempotencyKey  = "DuplicateIdempotencyKey"
	CodeIdempotencyKeyConflict   = "IdempotencyKeyConflict"
	CodeInvalidEscrowAccount     = "InvalidEscrowAccount"
	CodeAccountHasOpenFunds      = "AccountHasOpenFunds"
	CodePayoutDestinationMissing = "PayoutDestinationMissing"
	CodeGatewayFailure           = "PaymentGatewayFailure"
	CodeInvalidWebhookSignature  = "InvalidWebhookSignature"
)

// Codes earlier clients were built against. They map onto the stable codes above.
const (
	LegacyCodeCurrencyMismatch       = "MoedaDiferenteDaContaEscrow"
	LegacyCodeMilestoneValueExceeded = "ValorPayoutNaoPodeUltrapassarMilestone"
)

var (
	ErrCurrencyMismatch         = shared.ErrCurrencyMismatch
	ErrInsufficientBalance      = shared.ErrInsufficientBalance
	ErrInvalidAmount            = valueobject.ErrInvalidAmount
	ErrInvalidTransactionState  = shared.NewDomainError(CodeInvalidTransactionState, "Transaction is not in a state that allows this operation")
	ErrTransactionNotFound      = shared.NewDomainError(CodeTransactionNotFound, "Transaction not found in escrow account")
	ErrMilestoneValueExceeded   = shared.NewDomainError(CodeMilestoneValueExceeded, "Payout amount cannot exceed the milestone value")
	ErrPayoutAlreadyReleased    = shared.NewDomainError(CodePayoutAlreadyReleased, "Milestone already has a released payout")
	ErrAccountNotActive         = shared.NewDomainError(CodeAccountNotActive, "Escrow account is not active")
	ErrDuplicateIdempotencyKey  = shared.NewDomainError(CodeDuplicateIdempotencyKey, "A transaction with this idempotency key already exists")
	ErrIdempotencyKeyConflict   = shared.NewDomainError(CodeIdempotencyKeyConflict, "Idempotency key was already used for a different kind of operation")
	ErrInvalidEscrowAccount     = shared.NewDomainError(CodeInvalidEscrowAccount, "Escrow account data is invalid")
	ErrAccountHasOpenFunds      = shared.NewDomainError(CodeAccountHasOpenFunds, "Escrow account still holds funds or open payouts")
	ErrPayoutDestinationMissing = shared.NewDomainError(CodePayoutDestinationMissing, "No payout destination account is connected")
	ErrInvalidWebhookSignature  = shared.NewDomainError(CodeInvalidWebhookSignature, "Webhook payload could not be verified")
)

// GatewayError wraps a failure reported by the payment rail. Retryable marks
// transport level or rate limit failures that may succeed when repeated with
// the same idempotency key; anything else is a definitive rejection.
type GatewayError struct {
	Op        string
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment gateway %s failed (%s): %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("payment gateway %s failed: %s", e.Op, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsRetryableGatewayError reports whether err is a gateway failure worth retrying
func IsRetryableGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Retryable
}
