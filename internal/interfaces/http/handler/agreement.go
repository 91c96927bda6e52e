package handler

import (
	"context"
	"errors"
	"io"

	commissionapp "github.com/escrowhub/backend/internal/application/commission"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AgreementCommands is the agreement use case surface the handler drives
type AgreementCommands interface {
	Create(ctx context.Context, ownerID uuid.UUID, req commissionapp.CreateAgreementRequest) (*commissionapp.AgreementResponse, error)
	GetByID(ctx context.Context, userID, agreementID uuid.UUID) (*commissionapp.AgreementResponse, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, query commissionapp.ListAgreementsQuery) (*commissionapp.AgreementListResponse, error)
	UpdateDetails(ctx context.Context, userID, agreementID uuid.UUID, req commissionapp.UpdateDetailsRequest) (*commissionapp.AgreementResponse, error)
	AddParty(ctx context.Context, userID, agreementID uuid.UUID, req commissionapp.AddPartyRequest) (*commissionapp.AgreementResponse, error)
	AcceptAsParty(ctx context.Context, agreementID, partyID uuid.UUID) (*commissionapp.AgreementResponse, error)
	ConnectPartyPayoutAccount(ctx context.Context, userID, agreementID, partyID uuid.UUID, req commissionapp.ConnectPartyPayoutAccountRequest) (*commissionapp.AgreementResponse, error)
	AddMilestone(ctx context.Context, userID, agreementID uuid.UUID, req commissionapp.AddMilestoneRequest) (*commissionapp.AgreementResponse, error)
	Activate(ctx context.Context, userID, agreementID uuid.UUID) (*commissionapp.AgreementResponse, error)
	CompleteMilestone(ctx context.Context, userID, agreementID, milestoneID uuid.UUID, req commissionapp.CompleteMilestoneRequest) (*commissionapp.AgreementResponse, error)
	Complete(ctx context.Context, userID, agreementID uuid.UUID) (*commissionapp.AgreementResponse, error)
	Cancel(ctx context.Context, userID, agreementID uuid.UUID, req commissionapp.ReasonRequest) (*commissionapp.AgreementResponse, error)
	Dispute(ctx context.Context, userID, agreementID uuid.UUID, req commissionapp.ReasonRequest) (*commissionapp.AgreementResponse, error)
	Outstanding(ctx context.Context, userID, agreementID uuid.UUID) (*commissionapp.OutstandingResponse, error)
}

// AgreementHandler handles commission agreement endpoints
type AgreementHandler struct {
	BaseHandler
	agreements AgreementCommands
}

// NewAgreementHandler creates a new AgreementHandler
func NewAgreementHandler(agreements AgreementCommands) *AgreementHandler {
	return &AgreementHandler{agreements: agreements}
}

// agreementAction is a command taking only the caller and the agreement
type agreementAction func(ctx context.Context, userID, agreementID uuid.UUID) (*commissionapp.AgreementResponse, error)

// runOnAgreement resolves the caller and the :id parameter, binds the JSON
// body into body when given, then runs action
func (h *AgreementHandler) runOnAgreement(c *gin.Context, action agreementAction, body ...any) {
	userID, ok := h.requirePrincipal(c)
	if !ok {
		return
	}
	agreementID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	for _, dst := range body {
		if err := c.ShouldBindJSON(dst); err != nil {
			h.BindError(c, err)
			return
		}
	}

	agreement, err := action(c.Request.Context(), userID, agreementID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, agreement)
}

// Create godoc
//
//	@ID				createAgreement
//	@Summary		Create a commission agreement
//	@Description	Create a draft agreement owned by the caller
//	@Tags			agreements
//	@Accept			json
//	@Produce		json
//	@Param			request	body		commissionapp.CreateAgreementRequest	true	"Agreement"
//	@Success		201		{object}	APIResponse[commissionapp.AgreementResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements [post]
func (h *AgreementHandler) Create(c *gin.Context) {
	userID, ok := h.requirePrincipal(c)
	if !ok {
		return
	}
	var req commissionapp.CreateAgreementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	agreement, err := h.agreements.Create(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, agreement)
}

// List godoc
//
//	@ID				listAgreements
//	@Summary		List the caller's agreements
//	@Tags			agreements
//	@Produce		json
//	@Param			status		query		string	false	"Filter by status"	Enums(DRAFT, ACTIVE, COMPLETED, CANCELED, DISPUTED)
//	@Param			page		query		int		false	"Page number"	default(1)
//	@Param			page_size	query		int		false	"Page size"		default(20)
//	@Param			sort_by		query		string	false	"Sort column"	Enums(created_at, updated_at, title, total_value, status, activated_at)
//	@Param			sort_dir	query		string	false	"Sort direction"	Enums(asc, desc)
//	@Success		200			{object}	PagedResponse[commissionapp.AgreementListItemResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements [get]
func (h *AgreementHandler) List(c *gin.Context) {
	userID, ok := h.requirePrincipal(c)
	if !ok {
		return
	}
	var query commissionapp.ListAgreementsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}

	page, err := h.agreements.ListByOwner(c.Request.Context(), userID, query)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get godoc
//
//	@ID				getAgreement
//	@Summary		Get an agreement
//	@Tags			agreements
//	@Produce		json
//	@Param			id	path		string	true	"Agreement ID"	format(uuid)
//	@Success		200	{object}	APIResponse[commissionapp.AgreementResponse]
//	@Failure		403	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements/{id} [get]
func (h *AgreementHandler) Get(c *gin.Context) {
	h.runOnAgreement(c, h.agreements.GetByID)
}

// UpdateDetails godoc
//
//	@ID				updateAgreementDetails
//	@Summary		Edit a draft agreement
//	@Tags			agreements
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string								true	"Agreement ID"	format(uuid)
//	@Param			request	body		commissionapp.UpdateDetailsRequest	true	"Details"
//	@Success		200		{object}	APIResponse[commissionapp.AgreementResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements/{id} [patch]
func (h *AgreementHandler) UpdateDetails(c *gin.Context) {
	var req commissionapp.UpdateDetailsRequest
	h.runOnAgreement(c, func(ctx context.Context, userID, agreementID uuid.UUID) (*commissionapp.AgreementResponse, error) {
		return h.agreements.UpdateDetails(ctx, userID, agreementID, req)
	}, &req)
}

// AddParty godoc
//
//	@ID				addAgreementParty
//	@Summary		Add a party to a draft agreement
//	@Tags			agreements
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string							true	"Agreement ID"	format(uuid)
//	@Param			request	body		commissionapp.AddPartyRequest	true	"Party"
//	@Success		201		{object}	APIResponse[commissionapp.AgreementResponse]
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements/{id}/parties [post]
func (h *AgreementHandler) AddParty(c *gin.Context) {
	userID, ok := h.requirePrincipal(c)
	if !ok {
		return
	}
	agreementID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req commissionapp.AddPartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	agreement, err := h.agreements.AddParty(c.Request.Context(), userID, agreementID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, agreement)
}

// AcceptParty godoc
//
//	@ID				acceptAgreementParty
//	@Summary		Record a party's acceptance
//	@Tags			agreements
//	@Produce		json
//	@Param			id		path		string	true	"Agreement ID"	format(uuid)
//	@Param			partyId	path		string	true	"Party ID"		format(uuid)
//	@Success		200		{object}	APIResponse[commissionapp.AgreementResponse]
//	@Failure		404		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements/{id}/parties/{partyId}/accept [post]
func (h *AgreementHandler) AcceptParty(c *gin.Context) {
	if _, ok := h.requirePrincipal(c); !ok {
		return
	}
	agreementID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	partyID, ok := h.parseUUIDParam(c, "partyId")
	if !ok {
		return
	}

	agreement, err := h.agreements.AcceptAsParty(c.Request.Context(), agreementID, partyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, agreement)
}

// ConnectPartyPayoutAccount godoc
//
//	@ID				connectPartyPayoutAccount
//	@Summary		Set a party's connected payout account
//	@Tags			agreements
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string											true	"Agreement ID"	format(uuid)
//	@Param			partyId	path		string											true	"Party ID"		format(uuid)
//	@Param			request	body		commissionapp.ConnectPartyPayoutAccountRequest	true	"Connected account"
//	@Success		200		{object}	APIResponse[commissionapp.AgreementResponse]
//	@Failure		404		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements/{id}/parties/{partyId}/payout-account [post]
func (h *AgreementHandler) ConnectPartyPayoutAccount(c *gin.Context) {
	userID, ok := h.requirePrincipal(c)
	if !ok {
		return
	}
	agreementID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	partyID, ok := h.parseUUIDParam(c, "partyId")
	if !ok {
		return
	}
	var req commissionapp.ConnectPartyPayoutAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	agreement, err := h.agreements.ConnectPartyPayoutAccount(c.Request.Context(), userID, agreementID, partyID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, agreement)
}

// AddMilestone godoc
//
//	@ID				addAgreementMilestone
//	@Summary		Add a milestone to an agreement
//	@Tags			agreements
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string								true	"Agreement ID"	format(uuid)
//	@Param			request	body		commissionapp.AddMilestoneRequest	true	"Milestone"
//	@Success		201		{object}	APIResponse[commissionapp.AgreementResponse]
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements/{id}/milestones [post]
func (h *AgreementHandler) AddMilestone(c *gin.Context) {
	userID, ok := h.requirePrincipal(c)
	if !ok {
		return
	}
	agreementID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req commissionapp.AddMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	agreement, err := h.agreements.AddMilestone(c.Request.Context(), userID, agreementID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, agreement)
}

// CompleteMilestone godoc
//
//	@ID				completeAgreementMilestone
//	@Summary		Complete a milestone by hand
//	@Tags			agreements
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string									true	"Agreement ID"	format(uuid)
//	@Param			milestoneId	path		string									true	"Milestone ID"	format(uuid)
//	@Param			request		body		commissionapp.CompleteMilestoneRequest	false	"Notes"
//	@Success		200			{object}	APIResponse[commissionapp.AgreementResponse]
//	@Failure		422			{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements/{id}/milestones/{milestoneId}/complete [post]
func (h *AgreementHandler) CompleteMilestone(c *gin.Context) {
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
	var req commissionapp.CompleteMilestoneRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.BindError(c, err)
		return
	}

	agreement, err := h.agreements.CompleteMilestone(c.Request.Context(), userID, agreementID, milestoneID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, agreement)
}

// Activate godoc
//
//	@ID				activateAgreement
//	@Summary		Activate a draft agreement
//	@Description	Requires a split totalling 100% and every party's acceptance
//	@Tags			agreements
//	@Produce		json
//	@Param			id	path		string	true	"Agreement ID"	format(uuid)
//	@Success		200	{object}	APIResponse[commissionapp.AgreementResponse]
//	@Failure		422	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements/{id}/activate [post]
func (h *AgreementHandler) Activate(c *gin.Context) {
	h.runOnAgreement(c, h.agreements.Activate)
}

// Complete godoc
//
//	@ID				completeAgreement
//	@Summary		Complete an agreement
//	@Tags			agreements
//	@Produce		json
//	@Param			id	path		string	true	"Agreement ID"	format(uuid)
//	@Success		200	{object}	APIResponse[commissionapp.AgreementResponse]
//	@Failure		422	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements/{id}/complete [post]
func (h *AgreementHandler) Complete(c *gin.Context) {
	h.runOnAgreement(c, h.agreements.Complete)
}

// Cancel godoc
//
//	@ID				cancelAgreement
//	@Summary		Cancel an agreement
//	@Tags			agreements
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Agreement ID"	format(uuid)
//	@Param			request	body		commissionapp.ReasonRequest	true	"Reason"
//	@Success		200		{object}	APIResponse[commissionapp.AgreementResponse]
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements/{id}/cancel [post]
func (h *AgreementHandler) Cancel(c *gin.Context) {
	h.withReason(c, h.agreements.Cancel)
}

// Dispute godoc
//
//	@ID				disputeAgreement
//	@Summary		Put an active agreement in dispute
//	@Tags			agreements
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string						true	"Agreement ID"	format(uuid)
//	@Param			request	body		commissionapp.ReasonRequest	true	"Reason"
//	@Success		200		{object}	APIResponse[commissionapp.AgreementResponse]
//	@Failure		422		{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements/{id}/dispute [post]
func (h *AgreementHandler) Dispute(c *gin.Context) {
	h.withReason(c, h.agreements.Dispute)
}

func (h *AgreementHandler) withReason(c *gin.Context, action func(context.Context, uuid.UUID, uuid.UUID, commissionapp.ReasonRequest) (*commissionapp.AgreementResponse, error)) {
	var req commissionapp.ReasonRequest
	h.runOnAgreement(c, func(ctx context.Context, userID, agreementID uuid.UUID) (*commissionapp.AgreementResponse, error) {
		return action(ctx, userID, agreementID, req)
	}, &req)
}

// Outstanding godoc
//
//	@ID				getAgreementOutstanding
//	@Summary		Value not yet covered by completed milestones
//	@Tags			agreements
//	@Produce		json
//	@Param			id	path		string	true	"Agreement ID"	format(uuid)
//	@Success		200	{object}	APIResponse[commissionapp.OutstandingResponse]
//	@Failure		404	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/agreements/{id}/outstanding [get]
func (h *AgreementHandler) Outstanding(c *gin.Context) {
	userID, ok := h.requirePrincipal(c)
	if !ok {
		return
	}
	agreementID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	outstanding, err := h.agreements.Outstanding(c.Request.Context(), userID, agreementID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, outstanding)
}

// bindOptionalJSON binds a JSON body that callers may omit entirely
func bindOptionalJSON(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
