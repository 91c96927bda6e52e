package escrow

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/escrowhub/backend/internal/domain/commission"
	"github.com/escrowhub/backend/internal/domain/escrow"
	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"github.com/escrowhub/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	serviceSpanCategory = "escrow"

	gatewayOpDeposit = "create_deposit_intent"
	gatewayOpPayout  = "execute_payout"
	gatewayOpConnect = "connect_account"

	// maxSaveAttempts bounds reload and reapply cycles after a version conflict
	maxSaveAttempts = 3

	webhookKeyPrefix = "webhook:stripe:"
)

// EscrowService runs the escrow account use cases. Gateway calls happen
// outside any database transaction; their outcome is persisted afterwards.
type EscrowService struct {
	accounts    escrow.AccountRepository
	agreements  commission.AgreementRepository
	uow         shared.UnitOfWork
	gateway     escrow.PaymentGateway
	payouts     *escrow.PayoutService
	idempotency shared.IdempotencyStore
	clock       shared.Clock

	metrics    *telemetry.EscrowMetrics
	retry      PayoutRetryConfig
	webhookTTL time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	newID      func() uuid.UUID
}

// NewEscrowService creates a new EscrowService
func NewEscrowService(
	accounts escrow.AccountRepository,
	agreements commission.AgreementRepository,
	uow shared.UnitOfWork,
	gateway escrow.PaymentGateway,
	payouts *escrow.PayoutService,
	idempotency shared.IdempotencyStore,
	clock shared.Clock,
) *EscrowService {
	if uow == nil {
		uow = shared.NoopUnitOfWork
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if payouts == nil {
		payouts = escrow.NewPayoutService(escrow.DefaultPayoutPolicy())
	}
	return &EscrowService{
		accounts:    accounts,
		agreements:  agreements,
		uow:         uow,
		gateway:     gateway,
		payouts:     payouts,
		idempotency: idempotency,
		clock:       clock,
		retry:       DefaultPayoutRetryConfig(),
		webhookTTL:  shared.DefaultIdempotencyTTL,
		sleep:       sleepContext,
		newID:       uuid.New,
	}
}

// SetMetrics enables business metrics. A nil value disables them.
func (s *EscrowService) SetMetrics(m *telemetry.EscrowMetrics) {
	s.metrics = m
}

// SetRetryConfig replaces the payout retry policy
func (s *EscrowService) SetRetryConfig(cfg PayoutRetryConfig) {
	s.retry = cfg.normalized()
}

// SetWebhookDedupeTTL sets how long processed webhook ids are remembered
func (s *EscrowService) SetWebhookDedupeTTL(ttl time.Duration) {
	if ttl > 0 {
		s.webhookTTL = ttl
	}
}

// OpenAccount opens the escrow account of an agreement and attaches it.
// Both aggregates commit in one unit of work.
func (s *EscrowService) OpenAccount(ctx context.Context, userID, agreementID uuid.UUID) (*EscrowAccountResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanCategory, "open_account")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrAgreementID, agreementID.String())

	agreement, err := s.agreements.FindByID(ctx, agreementID)
	if err != nil {
		return nil, s.fail(ctx, span, "open_account", err)
	}
	if agreement.OwnerUserID != userID {
		return nil, s.fail(ctx, span, "open_account", errNotOwner("agreement"))
	}

	account, err := escrow.NewEscrowAccount(s.newID(), agreement.ID, agreement.OwnerUserID, agreement.Currency, s.clock)
	if err != nil {
		return nil, s.fail(ctx, span, "open_account", err)
	}
	if err := agreement.AttachEscrowAccount(account.ID, s.clock); err != nil {
		return nil, s.fail(ctx, span, "open_account", err)
	}

	err = s.uow.Do(ctx, func(ctx context.Context) error {
		if err := s.accounts.Create(ctx, account); err != nil {
			return err
		}
		return s.agreements.Save(ctx, agreement)
	})
	if err != nil {
		return nil, s.fail(ctx, span, "open_account", err)
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrEscrowAccountID, account.ID.String())
	logger.L(ctx).Info("Escrow account opened",
		zap.String("escrow_account_id", account.ID.String()),
		zap.String("agreement_id", agreement.ID.String()),
		zap.String("currency", account.Currency.String()),
	)
	resp := ToEscrowAccountResponse(account)
	return &resp, nil
}

// GetAccount returns an escrow account with its ledger and derived balances
func (s *EscrowService) GetAccount(ctx context.Context, userID, accountID uuid.UUID) (*EscrowAccountResponse, error) {
	account, err := s.loadOwned(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	resp := ToEscrowAccountResponse(account)
	return &resp, nil
}

// Deposit funds the account through the payment gateway. A key already
// recorded on the account replays the original deposit without calling the
// gateway again.
func (s *EscrowService) Deposit(ctx context.Context, userID, accountID uuid.UUID, req DepositRequest, key valueobject.IdempotencyKey) (*DepositResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanCategory, "deposit")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEscrowAccountID, accountID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrIdempotencyKey, key.String(),
	)

	account, err := s.loadOwned(ctx, userID, accountID)
	if err != nil {
		return nil, s.fail(ctx, span, "deposit", err)
	}
	if existing, found := account.FindByIdempotencyKey(key); found {
		if !existing.IsDeposit() {
			return nil, s.fail(ctx, span, "deposit", escrow.ErrIdempotencyKeyConflict.WithMessagef("Idempotency key %q already identifies a %s", key, existing.Type))
		}
		logger.L(ctx).Info("Deposit replayed", zap.String("transaction_id", existing.ID.String()))
		return &DepositResponse{TransactionResultResponse: *toResult(account, existing, true)}, nil
	}

	amount, err := valueobject.NewMoney(req.Amount, account.Currency)
	if err != nil {
		return nil, s.fail(ctx, span, "deposit", err)
	}
	if !amount.IsPositive() {
		return nil, s.fail(ctx, span, "deposit", escrow.ErrInvalidAmount.WithMessage("Deposit amount must be positive"))
	}
	if account.Status != escrow.AccountStatusActive {
		return nil, s.fail(ctx, span, "deposit", escrow.ErrAccountNotActive.WithMessagef("Escrow account %s is %s", account.ID, account.Status))
	}

	txID := s.newID()
	gatewayKey := key
	if gatewayKey.IsZero() {
		gatewayKey = fallbackKey("deposit", txID)
	}

	var intent *escrow.DepositIntent
	err = s.callGateway(ctx, gatewayOpDeposit, func(ctx context.Context) error {
		var callErr error
		intent, callErr = s.gateway.CreateDepositIntent(ctx, account.ID, amount, req.Description, gatewayKey)
		return callErr
	})
	if err != nil {
		return nil, s.fail(ctx, span, "deposit", err)
	}

	status := escrow.TransactionStatusPending
	if intent.Status == escrow.DepositIntentSucceeded {
		status = escrow.TransactionStatusCompleted
	}
	tx, err := account.RegisterDeposit(txID, amount, req.Description, status, intent.IntentID, gatewayKey, s.clock)
	if err != nil {
		return nil, s.fail(ctx, span, "deposit", err)
	}

	if err := s.accounts.Save(ctx, account); err != nil {
		if winner, replay := s.reloadWinner(ctx, accountID, key, err); replay != nil {
			return &DepositResponse{TransactionResultResponse: *toResult(winner, replay, true)}, nil
		}
		return nil, s.fail(ctx, span, "deposit", err)
	}

	if tx.Status == escrow.TransactionStatusCompleted {
		s.metrics.DepositConfirmed(ctx, amount.Currency().String(), amount.Amount())
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrTransactionID, tx.ID.String())
	logger.L(ctx).Info("Deposit registered",
		zap.String("escrow_account_id", account.ID.String()),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("payment_intent_id", intent.IntentID),
		zap.String("status", string(tx.Status)),
		zap.String("amount", amount.String()),
	)
	return &DepositResponse{
		TransactionResultResponse: *toResult(account, tx, false),
		ClientSecret:              intent.ClientSecret,
	}, nil
}

// RequestPayout records a payout request. The approval policy decides
// whether it starts APPROVED, PENDING or DISPUTED. An approved payout tied
// to a milestone completes that milestone in the same unit of work.
func (s *EscrowService) RequestPayout(ctx context.Context, userID, accountID uuid.UUID, req RequestPayoutRequest, key valueobject.IdempotencyKey) (*TransactionResultResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanCategory, "request_payout")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEscrowAccountID, accountID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrIdempotencyKey, key.String(),
	)

	account, err := s.loadOwned(ctx, userID, accountID)
	if err != nil {
		return nil, s.fail(ctx, span, "request_payout", err)
	}
	agreement, err := s.agreements.FindByID(ctx, account.AgreementID)
	if err != nil {
		return nil, s.fail(ctx, span, "request_payout", err)
	}

	result, err := s.requestPayout(ctx, account, agreement, payoutCommand{
		partyID:     req.PartyID,
		milestoneID: req.MilestoneID,
		amount:      req.Amount,
		description: req.Description,
		key:         key,
		requestedBy: userID,
	})
	if err != nil {
		return nil, s.fail(ctx, span, "request_payout", err)
	}
	return result, nil
}

// TriggerMilestonePayout releases a milestone's value from the agreement's
// escrow account. Amount defaults to the milestone value.
func (s *EscrowService) TriggerMilestonePayout(ctx context.Context, userID, agreementID, milestoneID uuid.UUID, req TriggerMilestonePayoutRequest, key valueobject.IdempotencyKey) (*TransactionResultResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanCategory, "trigger_milestone_payout")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrAgreementID, agreementID.String(),
		telemetry.SpanAttrMilestoneID, milestoneID.String(),
		telemetry.SpanAttrIdempotencyKey, key.String(),
	)

	agreement, err := s.agreements.FindByID(ctx, agreementID)
	if err != nil {
		return nil, s.fail(ctx, span, "trigger_milestone_payout", err)
	}
	if agreement.OwnerUserID != userID {
		return nil, s.fail(ctx, span, "trigger_milestone_payout", errNotOwner("agreement"))
	}
	if agreement.EscrowAccountID == nil {
		return nil, s.fail(ctx, span, "trigger_milestone_payout",
			shared.ErrNotFound.WithMessage("Agreement has no escrow account"))
	}
	milestone, err := agreement.FindMilestone(milestoneID)
	if err != nil {
		return nil, s.fail(ctx, span, "trigger_milestone_payout", err)
	}
	account, err := s.loadOwned(ctx, userID, *agreement.EscrowAccountID)
	if err != nil {
		return nil, s.fail(ctx, span, "trigger_milestone_payout", err)
	}

	amount := milestone.Value.Amount()
	if req.Amount != nil {
		amount = *req.Amount
	}
	description := req.Description
	if description == "" {
		description = "Milestone payout: " + milestone.Description
	}

	result, err := s.requestPayout(ctx, account, agreement, payoutCommand{
		partyID:     req.PartyID,
		milestoneID: &milestone.ID,
		amount:      amount,
		description: description,
		key:         key,
		requestedBy: userID,
	})
	if err != nil {
		return nil, s.fail(ctx, span, "trigger_milestone_payout", err)
	}
	return result, nil
}

type payoutCommand struct {
	partyID     *uuid.UUID
	milestoneID *uuid.UUID
	amount      decimal.Decimal
	description string
	key         valueobject.IdempotencyKey
	requestedBy uuid.UUID
}

func (s *EscrowService) requestPayout(ctx context.Context, account *escrow.EscrowAccount, agreement *commission.CommissionAgreement, cmd payoutCommand) (*TransactionResultResponse, error) {
	if existing, found := account.FindByIdempotencyKey(cmd.key); found {
		if existing.IsDeposit() {
			return nil, escrow.ErrIdempotencyKeyConflict.WithMessagef("Idempotency key %q already identifies a %s", cmd.key, existing.Type)
		}
		logger.L(ctx).Info("Payout request replayed", zap.String("transaction_id", existing.ID.String()))
		return toResult(account, existing, true), nil
	}

	amount, err := valueobject.NewMoney(cmd.amount, account.Currency)
	if err != nil {
		return nil, err
	}
	if cmd.partyID != nil {
		if _, err := agreement.FindParty(*cmd.partyID); err != nil {
			return nil, err
		}
	}
	if cmd.milestoneID != nil {
		milestone, err := agreement.FindMilestone(*cmd.milestoneID)
		if err != nil {
			return nil, err
		}
		if err := s.payouts.EnsureMilestoneEligibleForPayout(agreement, milestone, amount); err != nil {
			return nil, err
		}
		if open := openPayoutForMilestone(account, milestone.ID); open != nil {
			return nil, escrow.ErrPayoutAlreadyReleased.WithMessagef("Milestone %s already has payout %s in status %s", milestone.ID, open.ID, open.Status)
		}
	}
	if err := s.payouts.EnsureEscrowCoverage(account, amount); err != nil {
		return nil, err
	}
	approval, err := s.payouts.DetermineApprovalPolicy(agreement, amount)
	if err != nil {
		return nil, err
	}

	tx, err := account.RequestPayout(s.newID(), cmd.partyID, cmd.milestoneID, amount, cmd.description, approval, cmd.key, cmd.requestedBy, s.clock)
	if err != nil {
		return nil, err
	}

	var changedAgreement *commission.CommissionAgreement
	if tx.Status == escrow.TransactionStatusApproved && tx.MilestoneID != nil {
		linked, err := s.linkMilestone(ctx, agreement, *tx.MilestoneID, tx.ID)
		if err != nil {
			return nil, err
		}
		if linked {
			changedAgreement = agreement
		}
	}

	if err := s.commit(ctx, account, changedAgreement); err != nil {
		if winner, replay := s.reloadWinner(ctx, account.ID, cmd.key, err); replay != nil {
			return toResult(winner, replay, true), nil
		}
		return nil, err
	}

	logger.L(ctx).Info("Payout requested",
		zap.String("escrow_account_id", account.ID.String()),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("approval_type", string(approval)),
		zap.String("status", string(tx.Status)),
		zap.String("amount", amount.String()),
	)
	return toResult(account, tx, false), nil
}

// ApprovePayout approves a pending payout. A payout tied to a milestone
// completes the milestone and links the payout to it.
func (s *EscrowService) ApprovePayout(ctx context.Context, userID, accountID, txID uuid.UUID) (*TransactionResultResponse, error) {
	return s.decide(ctx, "approve_payout", userID, accountID, txID, func(a *escrow.EscrowAccount) error {
		return a.ApprovePayout(txID, userID, s.clock)
	})
}

// RejectPayout rejects a pending payout, releasing its reserved funds
func (s *EscrowService) RejectPayout(ctx context.Context, userID, accountID, txID uuid.UUID, req RejectPayoutRequest) (*TransactionResultResponse, error) {
	return s.decide(ctx, "reject_payout", userID, accountID, txID, func(a *escrow.EscrowAccount) error {
		return a.RejectPayout(txID, userID, req.Reason, s.clock)
	})
}

// ResolveDispute approves or rejects a disputed payout
func (s *EscrowService) ResolveDispute(ctx context.Context, userID, accountID, txID uuid.UUID, req ResolveDisputeRequest) (*TransactionResultResponse, error) {
	return s.decide(ctx, "resolve_dispute", userID, accountID, txID, func(a *escrow.EscrowAccount) error {
		return a.ResolveDisputedPayout(txID, userID, req.Approve, req.Reason, s.clock)
	})
}

func (s *EscrowService) decide(
	ctx context.Context,
	operation string,
	userID, accountID, txID uuid.UUID,
	apply func(a *escrow.EscrowAccount) error,
) (*TransactionResultResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanCategory, operation)
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEscrowAccountID, accountID.String(),
		telemetry.SpanAttrTransactionID, txID.String(),
	)

	account, err := s.loadOwned(ctx, userID, accountID)
	if err != nil {
		return nil, s.fail(ctx, span, operation, err)
	}
	if err := apply(account); err != nil {
		return nil, s.fail(ctx, span, operation, err)
	}
	tx, err := account.FindTransaction(txID)
	if err != nil {
		return nil, s.fail(ctx, span, operation, err)
	}

	var changedAgreement *commission.CommissionAgreement
	if tx.Status == escrow.TransactionStatusApproved && tx.MilestoneID != nil {
		agreement, err := s.agreements.FindByID(ctx, account.AgreementID)
		if err != nil {
			return nil, s.fail(ctx, span, operation, err)
		}
		linked, err := s.linkMilestone(ctx, agreement, *tx.MilestoneID, tx.ID)
		if err != nil {
			return nil, s.fail(ctx, span, operation, err)
		}
		if linked {
			changedAgreement = agreement
		}
	}

	if err := s.commit(ctx, account, changedAgreement); err != nil {
		return nil, s.fail(ctx, span, operation, err)
	}

	logger.L(ctx).Info("Payout decision recorded",
		zap.String("operation", operation),
		zap.String("escrow_account_id", account.ID.String()),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("status", string(tx.Status)),
	)
	return toResult(account, tx, false), nil
}

// linkMilestone completes an open milestone with the payout that released it.
// It reports whether the agreement changed.
func (s *EscrowService) linkMilestone(ctx context.Context, agreement *commission.CommissionAgreement, milestoneID, txID uuid.UUID) (bool, error) {
	milestone, err := agreement.FindMilestone(milestoneID)
	if err != nil {
		return false, err
	}
	if !milestone.Status.IsOpen() {
		logger.L(ctx).Warn("Milestone already completed, payout not linked",
			zap.String("milestone_id", milestoneID.String()),
			zap.String("transaction_id", txID.String()),
		)
		return false, nil
	}
	if err := agreement.CompleteMilestone(milestoneID, "", &txID, s.clock); err != nil {
		return false, err
	}
	return true, nil
}

// transfer is one gateway call serving a payout
type transfer struct {
	partyID     *uuid.UUID
	destination string
	amount      valueobject.Money
	key         valueobject.IdempotencyKey
}

// ExecutePayout moves an approved payout's funds. Transient gateway failures
// are retried with exponential backoff under the same idempotency key. A
// definitive rejection, or exhausted retries, marks the payout FAILED.
func (s *EscrowService) ExecutePayout(ctx context.Context, userID, accountID, txID uuid.UUID) (*TransactionResultResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanCategory, "execute_payout")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEscrowAccountID, accountID.String(),
		telemetry.SpanAttrTransactionID, txID.String(),
	)

	account, err := s.loadOwned(ctx, userID, accountID)
	if err != nil {
		return nil, s.fail(ctx, span, "execute_payout", err)
	}
	tx, err := account.FindTransaction(txID)
	if err != nil {
		return nil, s.fail(ctx, span, "execute_payout", err)
	}
	if !tx.IsPayout() {
		return nil, s.fail(ctx, span, "execute_payout", escrow.ErrInvalidTransactionState.WithMessagef("Transaction %s is not a payout", tx.ID))
	}
	if tx.Status == escrow.TransactionStatusCompleted {
		return toResult(account, tx, true), nil
	}
	if tx.Status != escrow.TransactionStatusApproved {
		return nil, s.fail(ctx, span, "execute_payout", escrow.ErrInvalidTransactionState.WithMessagef("Payout %s is %s and cannot be executed", tx.ID, tx.Status))
	}

	agreement, err := s.agreements.FindByID(ctx, account.AgreementID)
	if err != nil {
		return nil, s.fail(ctx, span, "execute_payout", err)
	}
	transfers, err := s.planTransfers(account, agreement, tx)
	if err != nil {
		return nil, s.fail(ctx, span, "execute_payout", err)
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrAmount, tx.Amount.Amount().String(),
		telemetry.SpanAttrCurrency, tx.Amount.Currency().String(),
		"transfer_count", len(transfers),
	)

	transferIDs := make([]string, 0, len(transfers))
	var gatewayErr error
	for _, t := range transfers {
		result, err := s.executeTransfer(ctx, account.ID, tx.ID, t)
		if err != nil {
			gatewayErr = err
			break
		}
		transferIDs = append(transferIDs, result.TransferID)
	}

	currency := tx.Amount.Currency().String()
	if gatewayErr != nil {
		var gwErr *escrow.GatewayError
		definitive := errors.As(gatewayErr, &gwErr)
		switch {
		case len(transferIDs) > 0:
			// Part of a split went out. The payout keeps its funds and stays
			// APPROVED; executing it again replays the finished transfers
			// under their keys and retries the rest.
			logger.L(ctx).Error("Split payout partially executed",
				zap.String("transaction_id", tx.ID.String()),
				zap.Strings("transfer_ids", transferIDs),
				zap.Error(gatewayErr),
			)
			if _, err := s.saveWithReload(ctx, account, func(a *escrow.EscrowAccount) error {
				return a.MarkPayoutPartiallyExecuted(txID, transferIDs, gatewayErr.Error(), s.clock)
			}); err != nil {
				return nil, s.fail(ctx, span, "execute_payout", err)
			}
			s.metrics.PayoutExecuted(ctx, currency, "PARTIAL", tx.Amount.Amount())
		case definitive && !tx.IsPartiallyExecuted():
			if _, err := s.saveWithReload(ctx, account, func(a *escrow.EscrowAccount) error {
				return a.MarkPayoutFailed(txID, gwErr.Message, s.clock)
			}); err != nil {
				return nil, s.fail(ctx, span, "execute_payout", err)
			}
			s.metrics.PayoutExecuted(ctx, currency, string(escrow.TransactionStatusFailed), tx.Amount.Amount())
		}
		// Other errors leave the payout APPROVED for another execution.
		return nil, s.fail(ctx, span, "execute_payout", gatewayErr)
	}

	externalID := strings.Join(transferIDs, ",")
	saved, err := s.saveWithReload(ctx, account, func(a *escrow.EscrowAccount) error {
		return a.MarkPayoutExecuted(txID, externalID, s.clock)
	})
	if err != nil {
		logger.L(ctx).Error("Payout transferred but not recorded",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("transfer_ids", externalID),
			zap.Error(err),
		)
		return nil, s.fail(ctx, span, "execute_payout", err)
	}
	s.metrics.PayoutExecuted(ctx, currency, "RELEASED", tx.Amount.Amount())

	executed, err := saved.FindTransaction(txID)
	if err != nil {
		return nil, err
	}
	logger.L(ctx).Info("Payout executed",
		zap.String("escrow_account_id", saved.ID.String()),
		zap.String("transaction_id", txID.String()),
		zap.String("transfer_ids", externalID),
		zap.String("amount", tx.Amount.String()),
	)
	return toResult(saved, executed, false), nil
}

// planTransfers picks the payout destinations. A payout for one party goes to
// that party's connected account, falling back to the escrow account's. A
// payout for nobody in particular is split across the parties when they have
// connected accounts, otherwise it goes to the escrow account's.
func (s *EscrowService) planTransfers(account *escrow.EscrowAccount, agreement *commission.CommissionAgreement, tx *escrow.EscrowTransaction) ([]transfer, error) {
	key := tx.IdempotencyKey
	if key.IsZero() {
		key = fallbackKey("payout", tx.ID)
	}

	if tx.PartyID != nil {
		party, err := agreement.FindParty(*tx.PartyID)
		if err != nil {
			return nil, err
		}
		dest := party.StripeAccountID
		if dest == "" {
			dest = account.StripeAccountID
		}
		if dest == "" {
			return nil, escrow.ErrPayoutDestinationMissing.WithMessagef("Neither party %s nor the escrow account has a connected payout account", party.Name)
		}
		return []transfer{{partyID: tx.PartyID, destination: dest, amount: tx.Amount, key: key}}, nil
	}

	if anyPartyConnected(agreement) {
		if err := s.payouts.EnsureAllPartiesHavePayoutAccounts(agreement); err != nil {
			return nil, err
		}
		splits, err := s.payouts.CalculatePayoutSplits(agreement, tx.Amount)
		if err != nil {
			return nil, err
		}
		out := make([]transfer, 0, len(splits))
		for _, split := range splits {
			partyID := split.PartyID
			out = append(out, transfer{
				partyID:     &partyID,
				destination: split.StripeAccountID,
				amount:      split.Amount,
				key:         key.Derive(partyID.String()),
			})
		}
		return out, nil
	}

	if account.StripeAccountID == "" {
		return nil, escrow.ErrPayoutDestinationMissing
	}
	return []transfer{{destination: account.StripeAccountID, amount: tx.Amount, key: key}}, nil
}

func (s *EscrowService) executeTransfer(ctx context.Context, accountID, txID uuid.UUID, t transfer) (*escrow.PayoutResult, error) {
	retry := s.retry.normalized()
	var lastErr error
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		var result *escrow.PayoutResult
		err := s.callGateway(ctx, gatewayOpPayout, func(ctx context.Context) error {
			var callErr error
			result, callErr = s.gateway.ExecutePayout(ctx, accountID, txID, t.amount, t.destination, t.key)
			return callErr
		})
		if err == nil && result.Status == escrow.PayoutResultFailed {
			err = &escrow.GatewayError{Op: gatewayOpPayout, Code: "transfer_failed", Message: result.FailureReason}
		}
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !escrow.IsRetryableGatewayError(err) || attempt == retry.MaxAttempts {
			break
		}
		delay := retry.backoff(attempt)
		s.metrics.GatewayRetry(ctx, gatewayOpPayout)
		logger.L(ctx).Warn("Payout transfer failed, retrying",
			zap.String("transaction_id", txID.String()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// ConnectPayoutAccount exchanges an OAuth code for a connected account and
// records it as the escrow account's payout destination
func (s *EscrowService) ConnectPayoutAccount(ctx context.Context, userID, accountID uuid.UUID, req ConnectPayoutAccountRequest) (*EscrowAccountResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanCategory, "connect_payout_account")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrEscrowAccountID, accountID.String())

	account, err := s.loadOwned(ctx, userID, accountID)
	if err != nil {
		return nil, s.fail(ctx, span, "connect_payout_account", err)
	}

	var stripeAccountID string
	err = s.callGateway(ctx, gatewayOpConnect, func(ctx context.Context) error {
		var callErr error
		stripeAccountID, callErr = s.gateway.ConnectAccount(ctx, account.OwnerUserID, req.AuthorizationCode)
		return callErr
	})
	if err != nil {
		return nil, s.fail(ctx, span, "connect_payout_account", err)
	}

	saved, err := s.saveWithReload(ctx, account, func(a *escrow.EscrowAccount) error {
		return a.ConnectStripeAccount(stripeAccountID, s.clock)
	})
	if err != nil {
		return nil, s.fail(ctx, span, "connect_payout_account", err)
	}

	logger.L(ctx).Info("Payout account connected",
		zap.String("escrow_account_id", saved.ID.String()),
		zap.String("stripe_account_id", stripeAccountID),
	)
	resp := ToEscrowAccountResponse(saved)
	return &resp, nil
}

// HandleWebhook verifies and applies a payment provider notification.
// Deliveries are deduplicated on the provider's event id. The id is claimed
// before the event is applied and released again if applying fails, so a
// failed delivery is retried by the provider.
func (s *EscrowService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanCategory, "handle_webhook")
	defer span.End()

	event, err := s.gateway.HandleWebhook(ctx, payload, signature)
	if err != nil {
		s.metrics.WebhookProcessed(ctx, "unverified", "rejected")
		return nil, s.fail(ctx, span, "handle_webhook", err)
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrWebhookType, string(event.Type), "webhook.id", event.ID)
	result := &WebhookResult{EventID: event.ID, EventType: event.RawType}

	dedupeKey := webhookKeyPrefix + event.ID
	claimed := false
	if event.ID != "" && s.idempotency != nil {
		first, err := s.idempotency.Claim(ctx, dedupeKey, s.webhookTTL)
		switch {
		case err != nil:
			logger.L(ctx).Warn("Webhook dedupe unavailable, processing anyway", zap.String("event_id", event.ID), zap.Error(err))
		case !first:
			result.Outcome = WebhookOutcomeDuplicate
			s.metrics.WebhookProcessed(ctx, string(event.Type), result.Outcome)
			logger.L(ctx).Debug("Duplicate webhook skipped", zap.String("event_id", event.ID))
			return result, nil
		default:
			claimed = true
		}
	}

	outcome, err := s.applyWebhook(ctx, event)
	if err != nil {
		if claimed {
			s.releaseWebhook(ctx, dedupeKey)
		}
		s.metrics.WebhookProcessed(ctx, string(event.Type), "error")
		return nil, s.fail(ctx, span, "handle_webhook", err)
	}
	result.Outcome = outcome
	s.metrics.WebhookProcessed(ctx, string(event.Type), outcome)
	return result, nil
}

// releaseWebhook lets the gateway's retry of a failed webhook through
func (s *EscrowService) releaseWebhook(ctx context.Context, key string) {
	if err := s.idempotency.Forget(ctx, key); err != nil {
		logger.L(ctx).Warn("Failed to release webhook dedupe key", zap.String("key", key), zap.Error(err))
	}
}

func (s *EscrowService) applyWebhook(ctx context.Context, event *escrow.WebhookEvent) (string, error) {
	log := logger.L(ctx).With(zap.String("event_id", event.ID), zap.String("event_type", event.RawType))

	switch event.Type {
	case escrow.WebhookDepositSucceeded, escrow.WebhookDepositFailed:
		account, err := s.accounts.FindByPaymentIntentID(ctx, event.PaymentIntentID)
		if errors.Is(err, shared.ErrNotFound) {
			log.Warn("Webhook references unknown payment intent", zap.String("payment_intent_id", event.PaymentIntentID))
			return WebhookOutcomeUnmatched, nil
		}
		if err != nil {
			return "", err
		}
		if event.Type == escrow.WebhookDepositSucceeded {
			return s.confirmDeposit(ctx, account, event.PaymentIntentID)
		}
		return s.failDeposit(ctx, account, event.PaymentIntentID, event.FailureReason)

	case escrow.WebhookPayoutReversed:
		account, err := s.accounts.FindByTransferID(ctx, event.TransferID)
		if errors.Is(err, shared.ErrNotFound) {
			log.Warn("Webhook references unknown transfer", zap.String("transfer_id", event.TransferID))
			return WebhookOutcomeUnmatched, nil
		}
		if err != nil {
			return "", err
		}
		return s.reversePayout(ctx, account, event.TransferID, event.FailureReason)

	default:
		log.Debug("Webhook event ignored")
		return WebhookOutcomeIgnored, nil
	}
}

func (s *EscrowService) confirmDeposit(ctx context.Context, account *escrow.EscrowAccount, paymentIntentID string) (string, error) {
	tx, found := account.FindByPaymentIntent(paymentIntentID)
	if !found {
		return WebhookOutcomeUnmatched, nil
	}
	if tx.Status != escrow.TransactionStatusPending {
		logger.L(ctx).Debug("Deposit already settled",
			zap.String("transaction_id", tx.ID.String()), zap.String("status", string(tx.Status)))
		return WebhookOutcomeIgnored, nil
	}

	if _, err := s.saveWithReload(ctx, account, func(a *escrow.EscrowAccount) error {
		_, err := a.ConfirmDeposit(paymentIntentID, s.clock)
		return err
	}); err != nil {
		return "", err
	}
	s.metrics.DepositConfirmed(ctx, tx.Amount.Currency().String(), tx.Amount.Amount())
	logger.L(ctx).Info("Deposit confirmed",
		zap.String("escrow_account_id", account.ID.String()),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("amount", tx.Amount.String()),
	)
	return WebhookOutcomeApplied, nil
}

func (s *EscrowService) failDeposit(ctx context.Context, account *escrow.EscrowAccount, paymentIntentID, reason string) (string, error) {
	tx, found := account.FindByPaymentIntent(paymentIntentID)
	if !found {
		return WebhookOutcomeUnmatched, nil
	}
	if tx.Status != escrow.TransactionStatusPending {
		logger.L(ctx).Warn("Deposit failure for settled deposit ignored",
			zap.String("transaction_id", tx.ID.String()), zap.String("status", string(tx.Status)))
		return WebhookOutcomeIgnored, nil
	}
	if reason == "" {
		reason = "payment failed"
	}

	if _, err := s.saveWithReload(ctx, account, func(a *escrow.EscrowAccount) error {
		return a.FailDeposit(paymentIntentID, reason, s.clock)
	}); err != nil {
		return "", err
	}
	logger.L(ctx).Info("Deposit failed",
		zap.String("escrow_account_id", account.ID.String()),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("reason", reason),
	)
	return WebhookOutcomeApplied, nil
}

func (s *EscrowService) reversePayout(ctx context.Context, account *escrow.EscrowAccount, transferID, reason string) (string, error) {
	tx, found := account.FindByTransfer(transferID)
	if !found {
		return WebhookOutcomeUnmatched, nil
	}
	if slices.Contains(tx.ReversedTransferIDs(), transferID) {
		return WebhookOutcomeIgnored, nil
	}

	var recorded bool
	if _, err := s.saveWithReload(ctx, account, func(a *escrow.EscrowAccount) error {
		var err error
		recorded, err = a.RecordTransferReversal(transferID, reason, s.clock)
		return err
	}); err != nil {
		return "", err
	}
	if !recorded {
		return WebhookOutcomeIgnored, nil
	}
	logger.L(ctx).Warn("Payout transfer reversed, manual reconciliation required",
		zap.String("escrow_account_id", account.ID.String()),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("transfer_id", transferID),
		zap.String("status", string(tx.Status)),
	)
	return WebhookOutcomeApplied, nil
}

// commit saves the account and, when non nil, the agreement in one unit of work
func (s *EscrowService) commit(ctx context.Context, account *escrow.EscrowAccount, agreement *commission.CommissionAgreement) error {
	return s.uow.Do(ctx, func(ctx context.Context) error {
		if err := s.accounts.Save(ctx, account); err != nil {
			return err
		}
		if agreement != nil {
			return s.agreements.Save(ctx, agreement)
		}
		return nil
	})
}

// saveWithReload applies change to account and saves it. On a version
// conflict the account is reloaded and change applied again, so outcomes of
// gateway calls already made are never lost to a concurrent writer.
func (s *EscrowService) saveWithReload(ctx context.Context, account *escrow.EscrowAccount, change func(a *escrow.EscrowAccount) error) (*escrow.EscrowAccount, error) {
	current := account
	for attempt := 1; ; attempt++ {
		if err := change(current); err != nil {
			return nil, err
		}
		err := s.accounts.Save(ctx, current)
		if err == nil {
			return current, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) || attempt >= maxSaveAttempts {
			return nil, err
		}
		logger.L(ctx).Debug("Escrow account changed concurrently, reloading",
			zap.String("escrow_account_id", account.ID.String()), zap.Int("attempt", attempt))
		current, err = s.accounts.FindByID(ctx, account.ID)
		if err != nil {
			return nil, err
		}
	}
}

// reloadWinner resolves a lost race on an idempotency key: the transaction
// committed by the concurrent request is returned instead of an error.
func (s *EscrowService) reloadWinner(ctx context.Context, accountID uuid.UUID, key valueobject.IdempotencyKey, saveErr error) (*escrow.EscrowAccount, *escrow.EscrowTransaction) {
	if key.IsZero() {
		return nil, nil
	}
	if !errors.Is(saveErr, escrow.ErrDuplicateIdempotencyKey) && !errors.Is(saveErr, shared.ErrConcurrencyConflict) {
		return nil, nil
	}
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, nil
	}
	tx, found := account.FindByIdempotencyKey(key)
	if !found {
		return nil, nil
	}
	logger.L(ctx).Info("Concurrent request with the same idempotency key won, replaying",
		zap.String("transaction_id", tx.ID.String()))
	return account, tx
}

func (s *EscrowService) callGateway(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, "gateway."+op,
		telemetry.WithAttribute(telemetry.SpanAttrGateway, "stripe"),
		telemetry.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	s.metrics.GatewayCall(ctx, op, time.Since(start), err)
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return err
}

func (s *EscrowService) loadOwned(ctx context.Context, userID, accountID uuid.UUID) (*escrow.EscrowAccount, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.OwnerUserID != userID {
		return nil, errNotOwner("escrow account")
	}
	return account, nil
}

// fail records err on the span and logs domain rejections at Warn
func (s *EscrowService) fail(ctx context.Context, span trace.Span, operation string, err error) error {
	telemetry.RecordError(span, err)
	if domainErr, ok := shared.AsDomainError(err); ok {
		logger.L(ctx).Warn("Escrow command rejected",
			zap.String("operation", operation),
			zap.String("error_code", domainErr.Code),
			zap.String("error", domainErr.Message),
		)
	}
	return err
}

func errNotOwner(resource string) error {
	return shared.ErrForbidden.WithMessagef("Only the owner of the %s can perform this operation", resource)
}

func fallbackKey(kind string, txID uuid.UUID) valueobject.IdempotencyKey {
	return valueobject.MustIdempotencyKey(kind + ":" + txID.String())
}

func anyPartyConnected(agreement *commission.CommissionAgreement) bool {
	for i := range agreement.Parties {
		if agreement.Parties[i].HasPayoutAccount() {
			return true
		}
	}
	return false
}

func openPayoutForMilestone(account *escrow.EscrowAccount, milestoneID uuid.UUID) *escrow.EscrowTransaction {
	for i := range account.Transactions {
		tx := &account.Transactions[i]
		if !tx.IsPayout() || tx.MilestoneID == nil || *tx.MilestoneID != milestoneID {
			continue
		}
		switch tx.Status {
		case escrow.TransactionStatusPending, escrow.TransactionStatusApproved,
			escrow.TransactionStatusDisputed, escrow.TransactionStatusCompleted:
			return tx
		}
	}
	return nil
}
