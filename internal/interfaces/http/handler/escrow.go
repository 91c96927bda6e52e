package handler

import (
	"context"

	escrowapp "github.com/escrowhub/backend/internal/application/escrow"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EscrowCommands is the escrow use case surface the handler drives
type EscrowCommands interface {
	OpenAccount(ctx context.Context, userID, agreementID uuid.UUID) (*escrowapp.EscrowAccountResponse, error)
	GetAccount(ctx context.Context, userID, accountID uuid.UUID) (*escrowapp.EscrowAccountResponse, error)
	Deposit(ctx context.Context, userID, accountID uuid.UUID, req escrowapp.DepositRequest, key valueobject.IdempotencyKey) (*escrowapp.DepositResponse, error)
	RequestPayout(ctx context.Context, userID, accountID uuid.UUID, req escrowapp.RequestPayoutRequest, key valueobject.IdempotencyKey) (*escrowapp.TransactionResultResponse, error)
	TriggerMilestonePayout(ctx context.Context, userID, agreementID, milestoneID uuid.UUID, req escrowapp.TriggerMilestonePayoutRequest, key valueobject.IdempotencyKey) (*escrowapp.TransactionResultResponse, error)
	ApprovePayout(ctx context.Context, userID, accountID, txID uuid.UUID) (*escrowapp.TransactionResultResponse, error)
	RejectPayout(ctx context.Context, userID, accountID, txID uuid.UUID, req escrowapp.RejectPayoutRequest) (*escrowapp.TransactionResultResponse, error)
	ResolveDispute(ctx context.Context, userID, accountID, txID uuid.UUID, req escrowapp.ResolveDisputeRequest) (*escrowapp.TransactionResultResponse, error)
	ExecutePayout(ctx context.Context, userID, accountID, txID uuid.UUID) (*escrowapp.TransactionResultResponse, error)
	ConnectPayoutAccount(ctx context.Context, userID, accountID uuid.UUID, req escrowapp.ConnectPayoutAccountRequest) (*escrowapp.EscrowAccountResponse, error)
}

// EscrowHandler handles escrow account and ledger endpoints
type EscrowHandler struct {
	BaseHandler
	escrow EscrowCommands
}

// NewEscrowHandler creates a new EscrowHandler
func NewEscrowHandler(escrow EscrowCommands) *EscrowHandler {
	return &EscrowHandler{escrow: escrow}
}

// createdOrReplayed answers 201 for a new ledger entry and 200 for a replay
func (h *EscrowHandler) createdOrReplayed(c *gin.Context, replayed bool, data any) {
	if replayed {
		h.Success(c, data)
		return
	}
	h.Created(c, data)
}

// OpenAccount godoc
//
//	@ID				openEscrowAccount
//	@Summary		Open the escrow account of an agreement
//	@Tags			escrow
//	@Produce		json
//	@Param			id	path		string	true	"Agreement ID"	format(uuid)
//	@Success		201	{object}	APIResponse[escrowapp.EscrowAccountResponse]
//	@Failure		422	{object}	ErrorResponse	"Agreement already has an escrow account"
//	@Security		BearerAuth
//	@Router			/agreements/{id}/escrow [post]
func (h *EscrowHandler) OpenAccount(c *gin.Context) {
	userID, ok := h.requirePrincipal(c)
	if !ok {
		return
	}
	agreementID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	account, err := h.escrow.OpenAccount(c.Request.Context(), userID, agreementID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, account)
}

// GetAccount godoc
//
//	@ID				getEscrowAccount
//	@Summary		Get an escrow account with its ledger
//	@Tags			escrow
//	@Produce		json
//	@Param			id	path		string	true	"Escrow account ID"	format(uuid)
//	@Success		200	{object}	APIResponse[escrowapp.EscrowAccountResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/escrow/{id} [get]
func (h *EscrowHandler) GetAccount(c *gin.Context) {
	userID, ok := h.requirePrincipal(c)
	if !ok {
		return
	}
	accountID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	account, err := h.escrow.GetAccount(c.Request.Context(), userID, accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, account)
}

// Deposit godoc
//
//	@ID				depositEscrow
//	@Summary		Fund an escrow account
//	@Description	Creates a deposit intent with the payment provider. A repeated Idempotency-Key replays the original deposit.
//	@Tags			escrow
//	@Accept			json
//	@Produce		json
//	@Param			id				path		string					true	"Escrow account ID"	format(uuid)
//	@Param			Idempotency-Key	header		string					false	"Client idempotency key"
//	@Param			request			body		escrowapp.DepositRequest	true	"Deposit"
//	@Success		201				{object}	APIResponse[escrowapp.DepositResponse]
//	@Success		200				{object}	APIResponse[escrowapp.DepositResponse]	"Replayed"
//	@Failure		400				{object}	ErrorResponse
//	@Failure		409				{object}	ErrorResponse
//	@Failure		502				{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/escrow/{id}/deposits [post]
func (h *EscrowHandler) Deposit(c *gin.Context) {
	userID, ok := h.requirePrincipal(c)
	if !ok {
		return
	}
	accountID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	key, err := getIdempotencyKey(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var req escrowapp.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.escrow.Deposit(c.Request.Context(), userID, accountID, req, key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.createdOrReplayed(c, result.Replayed, result)
}

// RequestPayout godoc
//
//	@ID				requestEscrowPayout
//	@Summary		Request a payout from escrow
//	@Description	The approval policy decides whether the payout is approved, pending review or disputed.
//	@Tags			escrow
//	@Accept			json
//	@Produce		json
//	@Param			id				path		string							true	"Escrow account ID"	format(uuid)
//	@Param			Idempotency-Key	header		string							false	"Client idempotency key"
//	@Param			request			body		escrowapp.RequestPayoutRequest	true	"Payout"
//	@Success		201				{object}	APIResponse[escrowapp.TransactionResultResponse]
//	@Failure		422				{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/escrow/{id}/payouts [post]
func (h *EscrowHandler) RequestPayout(c *gin.Context) {
	userID, ok := h.requirePrincipal(c)
	if !ok {
		return
	}
	accountID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	key, err := getIdempotencyKey(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var req escrowapp.RequestPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.escrow.RequestPayout(c.Request.Context(), userID, accountID, req, key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.createdOrReplayed(c, result.Replayed, result)
}

// TriggerMilestonePayout godoc
//
//	@ID				triggerMilestonePayout
//	@Summary		Release a milestone's value from escrow
//	@Description	Amount defaults to the milestone value. An approved payout completes the milestone.
//	@Tags			escrow
//	@Accept			json
//	@Produce		json
//	@Param			id				path		string									true	"Agreement ID"	format(uuid)
//	@Param			milestoneId		path		string									true	"Milestone ID"	format(uuid)
//	@Param			Idempotency-Key	header		string									false	"Client idempotency key"
//	@Param			request			body		escrowapp.TriggerMilestonePayoutRequest	false	"Overrides"
//	@Success		201				{object}	APIResponse[escrowapp.TransactionResultResponse]
//	@Failure		422				{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements/{id}/milestones/{milestoneId}/payout [post]
func (h *EscrowHandler) TriggerMilestonePayout(c *gin.Context) {
	userID, ok := h.requirePrincipal(c)
	if !ok {
		return
	}
	agreementID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	milestoneID, ok := h.parseUUIDParam(c, "milestoneId")
	if !ok {
		return
	}
	key, err := getIdempotencyKey(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var req escrowapp.TriggerMilestonePayoutRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.escrow.TriggerMilestonePayout(c.Request.Context(), userID, agreementID, milestoneID, req, key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.createdOrReplayed(c, result.Replayed, result)
}

// transactionParams resolves the caller, :id and :txId
func (h *EscrowHandler) transactionParams(c *gin.Context) (userID, accountID, txID uuid.UUID, ok bool) {
	if userID, ok = h.requirePrincipal(c); !ok {
		return
	}
	if accountID, ok = h.parseUUIDParam(c, "id"); !ok {
		return
	}
	txID, ok = h.parseUUIDParam(c, "txId")
	return
}

// ApprovePayout godoc
//
//	@ID				approveEscrowPayout
//	@Summary		Approve a pending payout
//	@Tags			escrow
//	@Produce		json
//	@Param			id		path		string	true	"Escrow account ID"	format(uuid)
//	@Param			txId	path		string	true	"Transaction ID"	format(uuid)
//	@Success		200		{object}	APIResponse[escrowapp.TransactionResultResponse]
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/escrow/{id}/payouts/{txId}/approve [post]
func (h *EscrowHandler) ApprovePayout(c *gin.Context) {
	userID, accountID, txID, ok := h.transactionParams(c)
	if !ok {
		return
	}

	result, err := h.escrow.ApprovePayout(c.Request.Context(), userID, accountID, txID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RejectPayout godoc
//
//	@ID				rejectEscrowPayout
//	@Summary		Reject a pending payout
//	@Tags			escrow
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string							true	"Escrow account ID"	format(uuid)
//	@Param			txId	path		string							true	"Transaction ID"	format(uuid)
//	@Param			request	body		escrowapp.RejectPayoutRequest	true	"Reason"
//	@Success		200		{object}	APIResponse[escrowapp.TransactionResultResponse]
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/escrow/{id}/payouts/{txId}/reject [post]
func (h *EscrowHandler) RejectPayout(c *gin.Context) {
	userID, accountID, txID, ok := h.transactionParams(c)
	if !ok {
		return
	}
	var req escrowapp.RejectPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.escrow.RejectPayout(c.Request.Context(), userID, accountID, txID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ResolveDispute godoc
//
//	@ID				resolveEscrowDispute
//	@Summary		Settle a disputed payout
//	@Tags			escrow
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string							true	"Escrow account ID"	format(uuid)
//	@Param			txId	path		string							true	"Transaction ID"	format(uuid)
//	@Param			request	body		escrowapp.ResolveDisputeRequest	true	"Resolution"
//	@Success		200		{object}	APIResponse[escrowapp.TransactionResultResponse]
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/escrow/{id}/payouts/{txId}/resolve [post]
func (h *EscrowHandler) ResolveDispute(c *gin.Context) {
	userID, accountID, txID, ok := h.transactionParams(c)
	if !ok {
		return
	}
	var req escrowapp.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.escrow.ResolveDispute(c.Request.Context(), userID, accountID, txID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ExecutePayout godoc
//
//	@ID				executeEscrowPayout
//	@Summary		Transfer an approved payout
//	@Description	Calls the payment provider with retries. A definitive rejection marks the payout failed.
//	@Tags			escrow
//	@Produce		json
//	@Param			id		path		string	true	"Escrow account ID"	format(uuid)
//	@Param			txId	path		string	true	"Transaction ID"	format(uuid)
//	@Success		200		{object}	APIResponse[escrowapp.TransactionResultResponse]
//	@Failure		422		{object}	ErrorResponse
//	@Failure		502		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/escrow/{id}/payouts/{txId}/execute [post]
func (h *EscrowHandler) ExecutePayout(c *gin.Context) {
	userID, accountID, txID, ok := h.transactionParams(c)
	if !ok {
		return
	}

	result, err := h.escrow.ExecutePayout(c.Request.Context(), userID, accountID, txID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ConnectPayoutAccount godoc
//
//	@ID				connectEscrowPayoutAccount
//	@Summary		Connect the account's default payout destination
//	@Tags			escrow
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string									true	"Escrow account ID"	format(uuid)
//	@Param			request	body		escrowapp.ConnectPayoutAccountRequest	true	"OAuth authorization code"
//	@Success		200		{object}	APIResponse[escrowapp.EscrowAccountResponse]
//	@Failure		502		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/escrow/{id}/connect [post]
func (h *EscrowHandler) ConnectPayoutAccount(c *gin.Context) {
	userID, ok := h.requirePrincipal(c)
	if !ok {
		return
	}
	accountID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req escrowapp.ConnectPayoutAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	account, err := h.escrow.ConnectPayoutAccount(c.Request.Context(), userID, accountID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, account)
}
