package escrow

import (
	"context"

	"github.com/google/uuid"
)

// AccountRepository persists EscrowAccount aggregates with their ledger.
// Save fails with shared.ErrConcurrencyConflict when the stored version moved,
// and with ErrDuplicateIdempotencyKey when a concurrent writer inserted a
// transaction under the same (account, key) pair first.
type AccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*EscrowAccount, error)
	FindByAgreementID(ctx context.Context, agreementID uuid.UUID) (*EscrowAccount, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*EscrowAccount, error)
	FindByTransferID(ctx context.Context, transferID string) (*EscrowAccount, error)
	Create(ctx context.Context, account *EscrowAccount) error
	Save(ctx context.Context, account *EscrowAccount) error
}
