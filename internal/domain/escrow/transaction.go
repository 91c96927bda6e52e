package escrow

import (
	"slices"
	"strings"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// TransactionType distinguishes money entering and leaving escrow
type TransactionType string

const (
	TransactionTypeDeposit TransactionType = "DEPOSIT"
	TransactionTypePayout  TransactionType = "PAYOUT"
)

// TransactionStatus is the state of a ledger entry.
//
//	PENDING -> APPROVED -> COMPLETED | FAILED
//	PENDING -> REJECTED
//	PENDING -> DISPUTED -> APPROVED | REJECTED
//
// Deposits only use PENDING, COMPLETED and FAILED.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusApproved  TransactionStatus = "APPROVED"
	TransactionStatusRejected  TransactionStatus = "REJECTED"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusDisputed  TransactionStatus = "DISPUTED"
)

// IsTerminal reports whether the transaction can no longer change
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed || s == TransactionStatusRejected
}

// ApprovalType is the outcome of the payout approval policy
type ApprovalType string

const (
	ApprovalTypeAutoApproved     ApprovalType = "AUTO_APPROVED"
	ApprovalTypeApprovalRequired ApprovalType = "APPROVAL_REQUIRED"
	ApprovalTypeDisputed         ApprovalType = "DISPUTED"
)

// IsValid checks if the approval type is known
func (t ApprovalType) IsValid() bool {
	switch t {
	case ApprovalTypeAutoApproved, ApprovalTypeApprovalRequired, ApprovalTypeDisputed:
		return true
	}
	return false
}

func (t ApprovalType) initialStatus() TransactionStatus {
	switch t {
	case ApprovalTypeAutoApproved:
		return TransactionStatusApproved
	case ApprovalTypeDisputed:
		return TransactionStatusDisputed
	default:
		return TransactionStatusPending
	}
}

// EscrowTransaction is one entry of an escrow account's ledger
type EscrowTransaction struct {
	ID                 uuid.UUID
	Type               TransactionType
	PartyID            *uuid.UUID
	MilestoneID        *uuid.UUID
	Amount             valueobject.Money
	Status             TransactionStatus
	Description        string
	PaymentIntentID    string
	ExternalTransferID string
	ReversedTransfers  string
	ReversalReason     string
	IdempotencyKey     valueobject.IdempotencyKey
	RequestedBy        uuid.UUID
	ApprovedBy         *uuid.UUID
	RejectedBy         *uuid.UUID
	RejectionReason    string
	FailureReason      string
	RequestedAt        time.Time
	ApprovedAt         *time.Time
	RejectedAt         *time.Time
	CompletedAt        *time.Time
	FailedAt           *time.Time
	DisputedAt         *time.Time
	ReversedAt         *time.Time
	UpdatedAt          time.Time
}

// TransferIDs lists the gateway transfers that moved this payout's funds.
// A split payout stores one id per party, comma separated.
func (t *EscrowTransaction) TransferIDs() []string {
	return splitIDs(t.ExternalTransferID)
}

// ReversedTransferIDs lists the transfers the gateway reported as reversed
func (t *EscrowTransaction) ReversedTransferIDs() []string {
	return splitIDs(t.ReversedTransfers)
}

// IsPartiallyExecuted reports an approved payout of which some transfers went through
func (t *EscrowTransaction) IsPartiallyExecuted() bool {
	return t.Status == TransactionStatusApproved && t.ExternalTransferID != ""
}

func splitIDs(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

func (t *EscrowTransaction) hasTransfer(transferID string) bool {
	return transferID != "" && slices.Contains(t.TransferIDs(), transferID)
}

// IsDeposit reports whether the transaction brings funds into escrow
func (t *EscrowTransaction) IsDeposit() bool {
	return t.Type == TransactionTypeDeposit
}

// IsPayout reports whether the transaction releases funds from escrow
func (t *EscrowTransaction) IsPayout() bool {
	return t.Type == TransactionTypePayout
}

// holdsFunds reports whether a payout counts against the settled balance
func (t *EscrowTransaction) holdsFunds() bool {
	return t.IsPayout() && (t.Status == TransactionStatusApproved || t.Status == TransactionStatusCompleted)
}

// reservesFunds reports whether a payout is still awaiting a decision
func (t *EscrowTransaction) reservesFunds() bool {
	return t.IsPayout() && (t.Status == TransactionStatusPending || t.Status == TransactionStatusDisputed)
}
