package escrow

import (
	"slices"
	"strings"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AccountStatus represents whether an escrow account accepts movements
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusClosed    AccountStatus = "CLOSED"
)

// EscrowAccount is the aggregate root holding the funds ledger of one agreement.
// The balance is always derived from Transactions and never stored.
type EscrowAccount struct {
	shared.BaseAggregateRoot
	AgreementID       uuid.UUID
	OwnerUserID       uuid.UUID
	Currency          valueobject.Currency
	Status            AccountStatus
	StripeAccountID   string
	StripeConnectedAt *time.Time
	SuspensionReason  string
	Transactions      []EscrowTransaction
}

// NewEscrowAccount opens an active account for an agreement
func NewEscrowAccount(id, agreementID, ownerUserID uuid.UUID, currency valueobject.Currency, clock shared.Clock) (*EscrowAccount, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidEscrowAccount.WithMessage("Escrow account ID cannot be empty")
	}
	if agreementID == uuid.Nil {
		return nil, ErrInvalidEscrowAccount.WithMessage("Agreement ID cannot be empty")
	}
	if ownerUserID == uuid.Nil {
		return nil, ErrInvalidEscrowAccount.WithMessage("Owner user ID cannot be empty")
	}
	cur, err := valueobject.ParseCurrency(string(currency))
	if err != nil {
		return nil, err
	}

	now := clock.Now()
	a := &EscrowAccount{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(id, now),
		AgreementID:       agreementID,
		OwnerUserID:       ownerUserID,
		Currency:          cur,
		Status:            AccountStatusActive,
		Transactions:      make([]EscrowTransaction, 0),
	}
	a.RecordEvent(&EscrowAccountOpenedEvent{
		BaseDomainEvent: newEvent(EventTypeEscrowAccountOpened, a, now),
		EscrowAccountID: id,
		AgreementID:     agreementID,
		Currency:        cur,
	})
	return a, nil
}

// Balance is completed deposits minus approved or completed payouts, floored at zero
func (a *EscrowAccount) Balance() valueobject.Money {
	deposits := valueobject.Zero(a.Currency)
	payouts := valueobject.Zero(a.Currency)
	for i := range a.Transactions {
		tx := &a.Transactions[i]
		switch {
		case tx.IsDeposit() && tx.Status == TransactionStatusCompleted:
			deposits, _ = deposits.Add(tx.Amount)
		case tx.holdsFunds():
			payouts, _ = payouts.Add(tx.Amount)
		}
	}
	balance, _ := deposits.SubtractFloorZero(payouts)
	return balance
}

// AvailableBalance is Balance minus payouts still pending or disputed,
// i.e. what a new payout request may draw on.
func (a *EscrowAccount) AvailableBalance() valueobject.Money {
	reserved := valueobject.Zero(a.Currency)
	for i := range a.Transactions {
		if a.Transactions[i].reservesFunds() {
			reserved, _ = reserved.Add(a.Transactions[i].Amount)
		}
	}
	available, _ := a.Balance().SubtractFloorZero(reserved)
	return available
}

// FindTransaction returns a copy of the transaction with the given ID
func (a *EscrowAccount) FindTransaction(txID uuid.UUID) (*EscrowTransaction, error) {
	tx, err := a.findRef(txID)
	if err != nil {
		return nil, err
	}
	cp := *tx
	return &cp, nil
}

// FindByIdempotencyKey returns a copy of the transaction recorded under key
func (a *EscrowAccount) FindByIdempotencyKey(key valueobject.IdempotencyKey) (*EscrowTransaction, bool) {
	if key.IsZero() {
		return nil, false
	}
	for i := range a.Transactions {
		if a.Transactions[i].IdempotencyKey.Equals(key) {
			cp := a.Transactions[i]
			return &cp, true
		}
	}
	return nil, false
}

// FindByPaymentIntent returns a copy of the deposit created for a payment intent
func (a *EscrowAccount) FindByPaymentIntent(paymentIntentID string) (*EscrowTransaction, bool) {
	for i := range a.Transactions {
		if a.Transactions[i].IsDeposit() && a.Transactions[i].PaymentIntentID == paymentIntentID {
			cp := a.Transactions[i]
			return &cp, true
		}
	}
	return nil, false
}

// FindByTransfer returns a copy of the payout that moved funds through transferID
func (a *EscrowAccount) FindByTransfer(transferID string) (*EscrowTransaction, bool) {
	if tx := a.findTransferRef(transferID); tx != nil {
		cp := *tx
		return &cp, true
	}
	return nil, false
}

// PendingPayouts lists payouts waiting for approval or dispute resolution
func (a *EscrowAccount) PendingPayouts() []EscrowTransaction {
	var out []EscrowTransaction
	for i := range a.Transactions {
		if a.Transactions[i].reservesFunds() {
			out = append(out, a.Transactions[i])
		}
	}
	return out
}

// RegisterDeposit appends a deposit. If key matches an existing deposit, that
// deposit is returned unchanged and nothing is recorded.
func (a *EscrowAccount) RegisterDeposit(
	txID uuid.UUID,
	amount valueobject.Money,
	description string,
	status TransactionStatus,
	paymentIntentID string,
	key valueobject.IdempotencyKey,
	clock shared.Clock,
) (*EscrowTransaction, error) {
	if existing, found, err := a.replay(key, TransactionTypeDeposit); found || err != nil {
		return existing, err
	}
	if a.Status != AccountStatusActive {
		return nil, ErrAccountNotActive.WithMessagef("Escrow account %s is %s", a.ID, a.Status)
	}
	if err := a.ensureCurrency(amount); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount.WithMessage("Deposit amount must be positive")
	}
	if status != TransactionStatusPending && status != TransactionStatusCompleted {
		return nil, ErrInvalidTransactionState.WithMessagef("Deposits cannot be registered as %s", status)
	}
	if txID == uuid.Nil {
		return nil, ErrInvalidEscrowAccount.WithMessage("Transaction ID cannot be empty")
	}
	if _, err := a.findRef(txID); err == nil {
		return nil, ErrInvalidEscrowAccount.WithMessagef("Transaction %s already exists", txID)
	}

	now := clock.Now()
	tx := EscrowTransaction{
		ID:              txID,
		Type:            TransactionTypeDeposit,
		Amount:          amount,
		Status:          status,
		Description:     strings.TrimSpace(description),
		PaymentIntentID: paymentIntentID,
		IdempotencyKey:  key,
		RequestedBy:     a.OwnerUserID,
		RequestedAt:     now,
		UpdatedAt:       now,
	}
	if status == TransactionStatusCompleted {
		tx.CompletedAt = &now
	}
	a.Transactions = append(a.Transactions, tx)
	a.Touch(now)
	a.RecordEvent(newTransactionEvent(EventTypeEscrowDepositRegistered, a, &tx, nil, "", now))

	cp := tx
	return &cp, nil
}

// ConfirmDeposit completes a pending deposit once the payment rail confirms it.
// Confirming an already completed deposit is a no-op.
func (a *EscrowAccount) ConfirmDeposit(paymentIntentID string, clock shared.Clock) (*EscrowTransaction, error) {
	tx, err := a.findDepositRef(paymentIntentID)
	if err != nil {
		return nil, err
	}
	if tx.Status == TransactionStatusCompleted {
		cp := *tx
		return &cp, nil
	}
	if tx.Status != TransactionStatusPending {
		return nil, a.stateError(tx, "confirm")
	}

	now := clock.Now()
	tx.Status = TransactionStatusCompleted
	tx.CompletedAt = &now
	tx.UpdatedAt = now
	a.Touch(now)
	a.RecordEvent(newTransactionEvent(EventTypeEscrowDepositConfirmed, a, tx, nil, "", now))

	cp := *tx
	return &cp, nil
}

// FailDeposit marks a pending deposit as failed
func (a *EscrowAccount) FailDeposit(paymentIntentID, reason string, clock shared.Clock) error {
	tx, err := a.findDepositRef(paymentIntentID)
	if err != nil {
		return err
	}
	if tx.Status != TransactionStatusPending {
		return a.stateError(tx, "fail")
	}

	now := clock.Now()
	tx.Status = TransactionStatusFailed
	tx.FailureReason = reason
	tx.FailedAt = &now
	tx.UpdatedAt = now
	a.Touch(now)
	a.RecordEvent(newTransactionEvent(EventTypeEscrowDepositFailed, a, tx, nil, reason, now))
	return nil
}

// RequestPayout records a payout request. The approval type decides the
// initial status. Replaying the same key returns the original transaction.
func (a *EscrowAccount) RequestPayout(
	txID uuid.UUID,
	partyID, milestoneID *uuid.UUID,
	amount valueobject.Money,
	description string,
	approvalType ApprovalType,
	key valueobject.IdempotencyKey,
	requestedBy uuid.UUID,
	clock shared.Clock,
) (*EscrowTransaction, error) {
	if existing, found, err := a.replay(key, TransactionTypePayout); found || err != nil {
		return existing, err
	}
	if a.Status != AccountStatusActive {
		return nil, ErrAccountNotActive.WithMessagef("Escrow account %s is %s", a.ID, a.Status)
	}
	if err := a.ensureCurrency(amount); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount.WithMessage("Payout amount must be positive")
	}
	if available := a.AvailableBalance(); amount.Amount().GreaterThan(available.Amount()) {
		return nil, ErrInsufficientBalance.WithMessagef("Payout of %s exceeds the available escrow balance of %s", amount, available)
	}
	if !approvalType.IsValid() {
		return nil, ErrInvalidTransactionState.WithMessagef("Unknown approval type %q", approvalType)
	}
	if txID == uuid.Nil {
		return nil, ErrInvalidEscrowAccount.WithMessage("Transaction ID cannot be empty")
	}
	if _, err := a.findRef(txID); err == nil {
		return nil, ErrInvalidEscrowAccount.WithMessagef("Transaction %s already exists", txID)
	}

	now := clock.Now()
	tx := EscrowTransaction{
		ID:             txID,
		Type:           TransactionTypePayout,
		PartyID:        copyID(partyID),
		MilestoneID:    copyID(milestoneID),
		Amount:         amount,
		Status:         approvalType.initialStatus(),
		Description:    strings.TrimSpace(description),
		IdempotencyKey: key,
		RequestedBy:    requestedBy,
		RequestedAt:    now,
		UpdatedAt:      now,
	}
	switch tx.Status {
	case TransactionStatusApproved:
		tx.ApprovedBy = &requestedBy
		tx.ApprovedAt = &now
	case TransactionStatusDisputed:
		tx.DisputedAt = &now
	}
	a.Transactions = append(a.Transactions, tx)
	a.Touch(now)
	a.RecordEvent(newTransactionEvent(EventTypePayoutRequested, a, &tx, &requestedBy, string(approvalType), now))

	cp := tx
	return &cp, nil
}

// ApprovePayout approves a pending payout
func (a *EscrowAccount) ApprovePayout(txID, approvedBy uuid.UUID, clock shared.Clock) error {
	tx, err := a.findPayoutRef(txID)
	if err != nil {
		return err
	}
	if tx.Status != TransactionStatusPending {
		return a.stateError(tx, "approve")
	}

	now := clock.Now()
	tx.Status = TransactionStatusApproved
	tx.ApprovedBy = &approvedBy
	tx.ApprovedAt = &now
	tx.UpdatedAt = now
	a.Touch(now)
	a.RecordEvent(newTransactionEvent(EventTypePayoutApproved, a, tx, &approvedBy, "", now))
	return nil
}

// RejectPayout rejects a pending payout, releasing its reserved funds
func (a *EscrowAccount) RejectPayout(txID, rejectedBy uuid.UUID, reason string, clock shared.Clock) error {
	tx, err := a.findPayoutRef(txID)
	if err != nil {
		return err
	}
	if tx.Status != TransactionStatusPending {
		return a.stateError(tx, "reject")
	}

	a.reject(tx, rejectedBy, reason, EventTypePayoutRejected, clock.Now())
	return nil
}

// ResolveDisputedPayout settles a disputed payout by approving or rejecting it
func (a *EscrowAccount) ResolveDisputedPayout(txID, resolvedBy uuid.UUID, approve bool, reason string, clock shared.Clock) error {
	tx, err := a.findPayoutRef(txID)
	if err != nil {
		return err
	}
	if tx.Status != TransactionStatusDisputed {
		return a.stateError(tx, "resolve")
	}

	now := clock.Now()
	if !approve {
		a.reject(tx, resolvedBy, reason, EventTypePayoutDisputeResolved, now)
		return nil
	}
	tx.Status = TransactionStatusApproved
	tx.ApprovedBy = &resolvedBy
	tx.ApprovedAt = &now
	tx.UpdatedAt = now
	a.Touch(now)
	a.RecordEvent(newTransactionEvent(EventTypePayoutDisputeResolved, a, tx, &resolvedBy, strings.TrimSpace(reason), now))
	return nil
}

// MarkPayoutExecuted completes an approved payout after the transfer succeeded
func (a *EscrowAccount) MarkPayoutExecuted(txID uuid.UUID, externalTransferID string, clock shared.Clock) error {
	tx, err := a.findPayoutRef(txID)
	if err != nil {
		return err
	}
	if tx.Status != TransactionStatusApproved {
		return a.stateError(tx, "execute")
	}

	now := clock.Now()
	tx.Status = TransactionStatusCompleted
	tx.ExternalTransferID = externalTransferID
	tx.FailureReason = ""
	tx.CompletedAt = &now
	tx.UpdatedAt = now
	a.Touch(now)
	a.RecordEvent(newTransactionEvent(EventTypePayoutExecuted, a, tx, nil, "", now))
	return nil
}

// MarkPayoutPartiallyExecuted records the transfers of a split payout that
// went through before another one was refused. The payout stays APPROVED and
// keeps holding its funds until execution is driven to completion.
func (a *EscrowAccount) MarkPayoutPartiallyExecuted(txID uuid.UUID, transferIDs []string, reason string, clock shared.Clock) error {
	tx, err := a.findPayoutRef(txID)
	if err != nil {
		return err
	}
	if tx.Status != TransactionStatusApproved {
		return a.stateError(tx, "partially execute")
	}
	if len(transferIDs) == 0 {
		return ErrInvalidTransactionState.WithMessagef("Payout %s has no completed transfers to record", tx.ID)
	}

	now := clock.Now()
	tx.ExternalTransferID = strings.Join(transferIDs, ",")
	tx.FailureReason = reason
	tx.UpdatedAt = now
	a.Touch(now)
	a.RecordEvent(newTransactionEvent(EventTypePayoutPartiallyExecuted, a, tx, nil, reason, now))
	return nil
}

// MarkPayoutFailed fails an approved payout after the transfer was refused
// or retries were exhausted. The funds return to the available balance, so a
// payout that already moved money through a transfer cannot fail.
func (a *EscrowAccount) MarkPayoutFailed(txID uuid.UUID, reason string, clock shared.Clock) error {
	tx, err := a.findPayoutRef(txID)
	if err != nil {
		return err
	}
	if tx.Status != TransactionStatusApproved {
		return a.stateError(tx, "fail")
	}
	if tx.ExternalTransferID != "" {
		return ErrInvalidTransactionState.WithMessagef("Payout %s already moved funds through %s and cannot fail", tx.ID, tx.ExternalTransferID)
	}

	now := clock.Now()
	tx.Status = TransactionStatusFailed
	tx.FailureReason = reason
	tx.FailedAt = &now
	tx.UpdatedAt = now
	a.Touch(now)
	a.RecordEvent(newTransactionEvent(EventTypePayoutFailed, a, tx, nil, reason, now))
	return nil
}

// RecordTransferReversal notes that the gateway pulled back transferID. The
// balance is left alone: reversed funds land on the platform account and are
// reconciled by an operator. Reporting the same reversal again is a no-op and
// returns false.
func (a *EscrowAccount) RecordTransferReversal(transferID, reason string, clock shared.Clock) (bool, error) {
	tx := a.findTransferRef(transferID)
	if tx == nil {
		return false, ErrTransactionNotFound.WithMessagef("No payout for transfer %q", transferID)
	}
	reversed := tx.ReversedTransferIDs()
	if slices.Contains(reversed, transferID) {
		return false, nil
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "transfer reversed"
	}
	now := clock.Now()
	tx.ReversedTransfers = strings.Join(append(reversed, transferID), ",")
	tx.ReversalReason = reason
	tx.ReversedAt = &now
	tx.UpdatedAt = now
	a.Touch(now)
	evt := newTransactionEvent(EventTypePayoutReversed, a, tx, nil, reason, now)
	evt.ExternalTransferID = transferID
	a.RecordEvent(evt)
	return true, nil
}

// ConnectStripeAccount records the connected account that receives payouts
func (a *EscrowAccount) ConnectStripeAccount(stripeAccountID string, clock shared.Clock) error {
	stripeAccountID = strings.TrimSpace(stripeAccountID)
	if stripeAccountID == "" {
		return ErrInvalidEscrowAccount.WithMessage("Stripe account ID cannot be empty")
	}
	if a.Status == AccountStatusClosed {
		return ErrAccountNotActive.WithMessage("Cannot connect a payout account to a closed escrow account")
	}

	now := clock.Now()
	a.StripeAccountID = stripeAccountID
	a.StripeConnectedAt = &now
	a.Touch(now)
	a.RecordEvent(&StripeAccountConnectedEvent{
		BaseDomainEvent: newEvent(EventTypeStripeAccountConnected, a, now),
		EscrowAccountID: a.ID,
		StripeAccountID: stripeAccountID,
	})
	return nil
}

// Suspend blocks new deposits and payout requests
func (a *EscrowAccount) Suspend(reason string, clock shared.Clock) error {
	if a.Status != AccountStatusActive {
		return ErrAccountNotActive.WithMessagef("Cannot suspend escrow account in %s status", a.Status)
	}
	a.SuspensionReason = strings.TrimSpace(reason)
	return a.changeStatus(AccountStatusSuspended, EventTypeEscrowAccountSuspended, a.SuspensionReason, clock)
}

// Reactivate lifts a suspension
func (a *EscrowAccount) Reactivate(clock shared.Clock) error {
	if a.Status != AccountStatusSuspended {
		return ErrInvalidEscrowAccount.WithMessagef("Cannot reactivate escrow account in %s status", a.Status)
	}
	a.SuspensionReason = ""
	return a.changeStatus(AccountStatusActive, EventTypeEscrowAccountReactivate, "", clock)
}

// Close closes an emptied account. Funds or undecided payouts block closing.
func (a *EscrowAccount) Close(clock shared.Clock) error {
	if a.Status == AccountStatusClosed {
		return ErrAccountNotActive.WithMessage("Escrow account is already closed")
	}
	if !a.Balance().IsZero() || len(a.PendingPayouts()) > 0 {
		return ErrAccountHasOpenFunds
	}
	for i := range a.Transactions {
		if a.Transactions[i].Status == TransactionStatusApproved {
			return ErrAccountHasOpenFunds.WithMessage("Approved payouts are still awaiting execution")
		}
	}
	return a.changeStatus(AccountStatusClosed, EventTypeEscrowAccountClosed, "", clock)
}

func (a *EscrowAccount) changeStatus(status AccountStatus, eventType, reason string, clock shared.Clock) error {
	now := clock.Now()
	a.Status = status
	a.Touch(now)
	a.RecordEvent(&AccountStatusChangedEvent{
		BaseDomainEvent: newEvent(eventType, a, now),
		EscrowAccountID: a.ID,
		Status:          status,
		Reason:          reason,
	})
	return nil
}

func (a *EscrowAccount) reject(tx *EscrowTransaction, by uuid.UUID, reason, eventType string, now time.Time) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no reason given"
	}
	tx.Status = TransactionStatusRejected
	tx.RejectedBy = &by
	tx.RejectedAt = &now
	tx.RejectionReason = reason
	tx.UpdatedAt = now
	a.Touch(now)
	a.RecordEvent(newTransactionEvent(eventType, a, tx, &by, reason, now))
}

// replay looks up a previous transaction recorded under key. A key reused
// for a different transaction type is a conflict rather than a replay.
func (a *EscrowAccount) replay(key valueobject.IdempotencyKey, txType TransactionType) (*EscrowTransaction, bool, error) {
	existing, found := a.FindByIdempotencyKey(key)
	if !found {
		return nil, false, nil
	}
	if existing.Type != txType {
		return nil, false, ErrIdempotencyKeyConflict.WithMessagef("Idempotency key %q already identifies a %s", key, existing.Type)
	}
	return existing, true, nil
}

func (a *EscrowAccount) ensureCurrency(amount valueobject.Money) error {
	if amount.Currency() != a.Currency {
		return ErrCurrencyMismatch.WithMessagef("Amount is in %s but escrow account %s holds %s", amount.Currency(), a.ID, a.Currency)
	}
	return nil
}

func (a *EscrowAccount) findRef(txID uuid.UUID) (*EscrowTransaction, error) {
	for i := range a.Transactions {
		if a.Transactions[i].ID == txID {
			return &a.Transactions[i], nil
		}
	}
	return nil, ErrTransactionNotFound.WithMessagef("Transaction %s not found in escrow account %s", txID, a.ID)
}

func (a *EscrowAccount) findPayoutRef(txID uuid.UUID) (*EscrowTransaction, error) {
	tx, err := a.findRef(txID)
	if err != nil {
		return nil, err
	}
	if !tx.IsPayout() {
		return nil, ErrInvalidTransactionState.WithMessagef("Transaction %s is not a payout", txID)
	}
	return tx, nil
}

func (a *EscrowAccount) findDepositRef(paymentIntentID string) (*EscrowTransaction, error) {
	for i := range a.Transactions {
		if a.Transactions[i].IsDeposit() && paymentIntentID != "" && a.Transactions[i].PaymentIntentID == paymentIntentID {
			return &a.Transactions[i], nil
		}
	}
	return nil, ErrTransactionNotFound.WithMessagef("No deposit for payment intent %q", paymentIntentID)
}

func (a *EscrowAccount) findTransferRef(transferID string) *EscrowTransaction {
	for i := range a.Transactions {
		if a.Transactions[i].IsPayout() && a.Transactions[i].hasTransfer(transferID) {
			return &a.Transactions[i]
		}
	}
	return nil
}

func (a *EscrowAccount) stateError(tx *EscrowTransaction, action string) error {
	return ErrInvalidTransactionState.WithMessagef("Cannot %s %s transaction %s in %s status",
		action, strings.ToLower(string(tx.Type)), tx.ID, tx.Status)
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
