package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	escrowapp "github.com/escrowhub/backend/internal/application/escrow"
	"github.com/escrowhub/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// MaxWebhookPayloadSize caps a Stripe notification body
const MaxWebhookPayloadSize = 64 << 10

// StripeSignatureHeader carries the payload signature Stripe computes
const StripeSignatureHeader = "Stripe-Signature"

// WebhookProcessor verifies and applies a payment provider notification
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*escrowapp.WebhookResult, error)
}

// StripeWebhookHandler handles Stripe webhook endpoints.
// These endpoints are called by Stripe and do not require authentication.
type StripeWebhookHandler struct {
	BaseHandler
	processor WebhookProcessor
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler
func NewStripeWebhookHandler(processor WebhookProcessor) *StripeWebhookHandler {
	return &StripeWebhookHandler{processor: processor}
}

// HandleStripeWebhook godoc
//
//	@ID				handleStripeWebhook
//	@Summary		Handle Stripe webhook
//	@Description	Receive deposit and transfer notifications from Stripe
//	@Tags			webhooks
//	@Accept			json
//	@Produce		json
//	@Param			Stripe-Signature	header		string	true	"Stripe webhook signature"
//	@Success		200					{object}	APIResponse[escrowapp.WebhookResult]
//	@Failure		400					{object}	ErrorResponse	"Missing or invalid signature"
//	@Failure		413					{object}	ErrorResponse	"Payload too large"
//	@Failure		500					{object}	ErrorResponse	"Processing failed, Stripe will retry"
//	@Router			/webhooks/stripe [post]
func (h *StripeWebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// Stripe requires the raw body for signature verification
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxWebhookPayloadSize+1))
	var tooLarge *http.MaxBytesError
	if err != nil && !errors.As(err, &tooLarge) {
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if tooLarge != nil || len(payload) > MaxWebhookPayloadSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Payload too large")
		return
	}

	signature := c.GetHeader(StripeSignatureHeader)
	if signature == "" {
		h.BadRequest(c, "Missing Stripe-Signature header")
		return
	}

	// Errors other than a bad signature answer 5xx so Stripe redelivers;
	// the dedupe key was released by the service.
	result, err := h.processor.HandleWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
