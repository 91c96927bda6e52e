package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/escrowhub/backend/internal/domain/escrow"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/escrowhub/backend/internal/infrastructure/config"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/oauth"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/transfer"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

// Metadata keys written on Stripe objects so webhooks can be routed back
const (
	metadataType            = "type"
	metadataEscrowAccountID = "escrow_account_id"
	metadataTransactionID   = "transaction_id"

	metadataTypeDeposit = "escrow_deposit"
	metadataTypePayout  = "escrow_payout"
)

var minorUnits = decimal.NewFromInt(100)

// StripeGateway implements escrow.PaymentGateway on top of Stripe
// PaymentIntents, Connect transfers and Connect OAuth.
type StripeGateway struct {
	webhookSecret string
	logger        *zap.Logger
}

// NewStripeGateway configures the stripe-go client globals from cfg. The
// key must match the mode: sk_test_ in test mode, sk_live_ otherwise.
func NewStripeGateway(cfg config.StripeConfig, log *zap.Logger) (*StripeGateway, error) {
	if err := checkKeys(cfg); err != nil {
		return nil, err
	}

	stripe.Key = cfg.SecretKey
	if cfg.Timeout > 0 {
		stripe.SetHTTPClient(&http.Client{Timeout: cfg.Timeout})
	}
	return &StripeGateway{webhookSecret: cfg.WebhookSecret, logger: log}, nil
}

func checkKeys(cfg config.StripeConfig) error {
	wantPrefix, mode := "sk_live_", "live"
	if cfg.IsTestMode {
		wantPrefix, mode = "sk_test_", "test"
	}
	switch {
	case cfg.SecretKey == "":
		return errors.New("stripe: secret key is required")
	case !strings.HasPrefix(cfg.SecretKey, wantPrefix):
		return fmt.Errorf("stripe: %s mode needs a %s key, got %.8s...", mode, wantPrefix, cfg.SecretKey)
	case cfg.WebhookSecret != "" && !strings.HasPrefix(cfg.WebhookSecret, "whsec_"):
		return errors.New("stripe: webhook secret must start with whsec_")
	}
	return nil
}

// CreateDepositIntent opens a PaymentIntent that funds the escrow account
func (g *StripeGateway) CreateDepositIntent(
	ctx context.Context,
	escrowAccountID uuid.UUID,
	amount valueobject.Money,
	description string,
	key valueobject.IdempotencyKey,
) (*escrow.DepositIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(toMinorUnits(amount)),
		Currency:    stripe.String(strings.ToLower(amount.Currency().String())),
		Description: stripe.String(description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(metadataType, metadataTypeDeposit)
	params.AddMetadata(metadataEscrowAccountID, escrowAccountID.String())
	setIdempotencyKey(&params.Params, key)

	intent, err := paymentintent.New(params)
	if err != nil {
		logger.L(ctx).Error("stripe deposit intent failed",
			zap.String("escrow_account_id", escrowAccountID.String()),
			zap.Error(err),
		)
		return nil, wrapStripeError("create deposit intent", err)
	}

	logger.L(ctx).Info("stripe deposit intent created",
		zap.String("escrow_account_id", escrowAccountID.String()),
		zap.String("payment_intent_id", intent.ID),
		zap.String("status", string(intent.Status)),
	)

	return &escrow.DepositIntent{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       mapIntentStatus(intent.Status),
	}, nil
}

// ExecutePayout transfers funds to a connected account
func (g *StripeGateway) ExecutePayout(
	ctx context.Context,
	escrowAccountID, transactionID uuid.UUID,
	amount valueobject.Money,
	destinationAccountID string,
	key valueobject.IdempotencyKey,
) (*escrow.PayoutResult, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(toMinorUnits(amount)),
		Currency:      stripe.String(strings.ToLower(amount.Currency().String())),
		Destination:   stripe.String(destinationAccountID),
		TransferGroup: stripe.String(escrowAccountID.String()),
	}
	params.Context = ctx
	params.AddMetadata(metadataType, metadataTypePayout)
	params.AddMetadata(metadataEscrowAccountID, escrowAccountID.String())
	params.AddMetadata(metadataTransactionID, transactionID.String())
	setIdempotencyKey(&params.Params, key)

	tr, err := transfer.New(params)
	if err != nil {
		logger.L(ctx).Error("stripe transfer failed",
			zap.String("escrow_account_id", escrowAccountID.String()),
			zap.String("transaction_id", transactionID.String()),
			zap.Error(err),
		)
		return nil, wrapStripeError("execute payout", err)
	}

	if tr.Reversed {
		return &escrow.PayoutResult{
			Status:        escrow.PayoutResultFailed,
			TransferID:    tr.ID,
			FailureReason: "transfer was reversed",
		}, nil
	}

	logger.L(ctx).Info("stripe transfer created",
		zap.String("transaction_id", transactionID.String()),
		zap.String("transfer_id", tr.ID),
	)
	return &escrow.PayoutResult{
		Status:     escrow.PayoutResultSucceeded,
		TransferID: tr.ID,
	}, nil
}

// ConnectAccount exchanges a Connect OAuth authorization code for the
// connected account id
func (g *StripeGateway) ConnectAccount(ctx context.Context, ownerUserID uuid.UUID, authorizationCode string) (string, error) {
	params := &stripe.OAuthTokenParams{
		GrantType: stripe.String("authorization_code"),
		Code:      stripe.String(authorizationCode),
	}
	params.Context = ctx

	token, err := oauth.New(params)
	if err != nil {
		logger.L(ctx).Error("stripe connect failed",
			zap.String("owner_user_id", ownerUserID.String()),
			zap.Error(err),
		)
		return "", wrapStripeError("connect account", err)
	}
	if token.StripeUserID == "" {
		return "", &escrow.GatewayError{
			Op:      "connect account",
			Message: "stripe returned no connected account id",
		}
	}

	logger.L(ctx).Info("stripe account connected",
		zap.String("owner_user_id", ownerUserID.String()),
		zap.String("stripe_account_id", token.StripeUserID),
	)
	return token.StripeUserID, nil
}

// HandleWebhook verifies the Stripe-Signature header and decodes the event
func (g *StripeGateway) HandleWebhook(ctx context.Context, payload []byte, signature string) (*escrow.WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, escrow.ErrInvalidWebhookSignature.WithMessage("Webhook secret is not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		logger.L(ctx).Warn("stripe webhook rejected", zap.Error(err))
		return nil, escrow.ErrInvalidWebhookSignature
	}

	result := &escrow.WebhookEvent{
		ID:      event.ID,
		Type:    escrow.WebhookIgnored,
		RawType: string(event.Type),
	}
	if event.Data == nil {
		return result, nil
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("stripe: failed to decode payment intent: %w", err)
		}
		result.Type = escrow.WebhookDepositSucceeded
		if event.Type == stripe.EventTypePaymentIntentPaymentFailed {
			result.Type = escrow.WebhookDepositFailed
			if intent.LastPaymentError != nil {
				result.FailureReason = intent.LastPaymentError.Msg
			}
		}
		result.PaymentIntentID = intent.ID
		result.EscrowAccountID = parseMetadataID(intent.Metadata)

	case stripe.EventTypeTransferReversed:
		var tr stripe.Transfer
		if err := json.Unmarshal(event.Data.Raw, &tr); err != nil {
			return nil, fmt.Errorf("stripe: failed to decode transfer: %w", err)
		}
		result.Type = escrow.WebhookPayoutReversed
		result.TransferID = tr.ID
		result.FailureReason = "transfer was reversed"
		result.EscrowAccountID = parseMetadataID(tr.Metadata)

	case stripe.EventTypeAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return nil, fmt.Errorf("stripe: failed to decode account: %w", err)
		}
		result.Type = escrow.WebhookAccountUpdated
		result.AccountID = acct.ID
	}

	return result, nil
}

// toMinorUnits converts to cents, rounding half away from zero
func toMinorUnits(m valueobject.Money) int64 {
	return m.Amount().Mul(minorUnits).Round(0).IntPart()
}

func setIdempotencyKey(params *stripe.Params, key valueobject.IdempotencyKey) {
	if !key.IsZero() {
		params.SetIdempotencyKey(key.String())
	}
}

func parseMetadataID(metadata map[string]string) *uuid.UUID {
	raw, ok := metadata[metadataEscrowAccountID]
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func mapIntentStatus(status stripe.PaymentIntentStatus) escrow.DepositIntentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return escrow.DepositIntentSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return escrow.DepositIntentProcessing
	case stripe.PaymentIntentStatusCanceled:
		return escrow.DepositIntentCanceled
	default:
		return escrow.DepositIntentRequiresAction
	}
}

// wrapStripeError converts a stripe-go error into an escrow.GatewayError.
// Rate limits, server side errors and transport failures are retryable.
func wrapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return &escrow.GatewayError{
			Op:        op,
			Message:   err.Error(),
			Retryable: true,
			Err:       fmt.Errorf("stripe: failed to %s: %w", op, err),
		}
	}

	retryable := stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
		stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
		stripeErr.Type == stripe.ErrorTypeAPI

	message := strings.TrimSpace(stripeErr.Msg)
	if message == "" {
		message = "unknown stripe error"
	}
	return &escrow.GatewayError{
		Op:        op,
		Code:      string(stripeErr.Code),
		Message:   message,
		Retryable: retryable,
		Err:       fmt.Errorf("stripe: failed to %s: %w", op, err),
	}
}

var _ escrow.PaymentGateway = (*StripeGateway)(nil)
