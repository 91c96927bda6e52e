package commission

import (
	"context"
	"errors"
	"strings"

	"github.com/escrowhub/backend/internal/domain/commission"
	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"github.com/escrowhub/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultPageSize     = 20
	defaultSweepBatch   = 200
	serviceSpanCategory = "agreement"
)

// AgreementService runs the commission agreement use cases
type AgreementService struct {
	repo  commission.AgreementRepository
	rules *commission.RulesService
	clock shared.Clock
	newID func() uuid.UUID
}

// NewAgreementService creates a new AgreementService
func NewAgreementService(repo commission.AgreementRepository, clock shared.Clock) *AgreementService {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &AgreementService{
		repo:  repo,
		rules: commission.NewRulesService(),
		clock: clock,
		newID: uuid.New,
	}
}

// Create creates a draft agreement owned by the caller
func (s *AgreementService) Create(ctx context.Context, ownerID uuid.UUID, req CreateAgreementRequest) (*AgreementResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanCategory, "create")
	defer span.End()

	currency, err := valueobject.ParseCurrency(req.Currency)
	if err != nil {
		return nil, s.fail(ctx, span, "create agreement", err)
	}
	total, err := valueobject.NewMoney(req.TotalValue, currency)
	if err != nil {
		return nil, s.fail(ctx, span, "create agreement", err)
	}

	agreement, err := commission.NewCommissionAgreement(s.newID(), ownerID, req.Title, req.Description, total, req.Terms, s.clock)
	if err != nil {
		return nil, s.fail(ctx, span, "create agreement", err)
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrAgreementID, agreement.ID.String(),
		telemetry.SpanAttrAmount, total.Amount().String(),
		telemetry.SpanAttrCurrency, currency.String(),
	)

	if err := s.repo.Create(ctx, agreement); err != nil {
		return nil, s.fail(ctx, span, "create agreement", err)
	}

	logger.L(ctx).Info("Commission agreement created",
		zap.String("agreement_id", agreement.ID.String()),
		zap.String("total_value", total.String()),
	)
	resp := ToAgreementResponse(agreement)
	return &resp, nil
}

// GetByID returns an agreement owned by the caller
func (s *AgreementService) GetByID(ctx context.Context, userID, agreementID uuid.UUID) (*AgreementResponse, error) {
	agreement, err := s.loadOwned(ctx, userID, agreementID)
	if err != nil {
		return nil, err
	}
	resp := ToAgreementResponse(agreement)
	return &resp, nil
}

// ListByOwner pages through the caller's agreements
func (s *AgreementService) ListByOwner(ctx context.Context, ownerID uuid.UUID, query ListAgreementsQuery) (*AgreementListResponse, error) {
	filter := commission.ListFilter{
		Status:    commission.AgreementStatus(strings.ToUpper(query.Status)),
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.SortBy,
		SortOrder: query.SortDir,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPageSize
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.ErrInvalidInput.WithMessage("Unknown agreement status " + query.Status)
	}

	agreements, total, err := s.repo.FindByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}

	items := make([]AgreementListItemResponse, 0, len(agreements))
	for _, a := range agreements {
		items = append(items, ToAgreementListItemResponse(a))
	}
	return &AgreementListResponse{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// UpdateDetails rewrites the title, description and terms while the agreement is a draft
func (s *AgreementService) UpdateDetails(ctx context.Context, userID, agreementID uuid.UUID, req UpdateDetailsRequest) (*AgreementResponse, error) {
	return s.mutate(ctx, "update_details", userID, agreementID, true, func(a *commission.CommissionAgreement) error {
		return a.UpdateDetails(req.Title, req.Description, req.Terms, s.clock)
	})
}

// AddParty adds a participant to a draft agreement
func (s *AgreementService) AddParty(ctx context.Context, userID, agreementID uuid.UUID, req AddPartyRequest) (*AgreementResponse, error) {
	split, err := valueobject.NewPercentage(req.SplitPercentage)
	if err != nil {
		return nil, err
	}
	partyID := s.newID()
	return s.mutate(ctx, "add_party", userID, agreementID, true, func(a *commission.CommissionAgreement) error {
		return a.AddParty(partyID, req.ContactID, req.CompanyID, req.Name, req.Email, split,
			commission.PartyRole(strings.ToUpper(req.Role)), req.StripeAccountID, s.clock)
	})
}

// AcceptAsParty records a party's acceptance. Parties are not the agreement
// owner, so no ownership check applies.
func (s *AgreementService) AcceptAsParty(ctx context.Context, agreementID, partyID uuid.UUID) (*AgreementResponse, error) {
	return s.mutate(ctx, "accept_as_party", uuid.Nil, agreementID, false, func(a *commission.CommissionAgreement) error {
		return a.AcceptAgreementAsParty(partyID, s.clock)
	})
}

// ConnectPartyPayoutAccount links a party to the connected account its split is paid to
func (s *AgreementService) ConnectPartyPayoutAccount(ctx context.Context, userID, agreementID, partyID uuid.UUID, req ConnectPartyPayoutAccountRequest) (*AgreementResponse, error) {
	return s.mutate(ctx, "connect_party_payout_account", userID, agreementID, true, func(a *commission.CommissionAgreement) error {
		return a.ConnectPartyPayoutAccount(partyID, req.StripeAccountID, s.clock)
	})
}

// AddMilestone adds a milestone in the agreement's currency
func (s *AgreementService) AddMilestone(ctx context.Context, userID, agreementID uuid.UUID, req AddMilestoneRequest) (*AgreementResponse, error) {
	milestoneID := s.newID()
	return s.mutate(ctx, "add_milestone", userID, agreementID, true, func(a *commission.CommissionAgreement) error {
		value, err := valueobject.NewMoney(req.Value, a.Currency)
		if err != nil {
			return err
		}
		return a.AddMilestone(milestoneID, req.Description, value, req.DueDate, s.clock)
	})
}

// Activate moves a draft agreement to ACTIVE once the split and acceptance rules hold
func (s *AgreementService) Activate(ctx context.Context, userID, agreementID uuid.UUID) (*AgreementResponse, error) {
	return s.mutate(ctx, "activate", userID, agreementID, true, func(a *commission.CommissionAgreement) error {
		if err := s.rules.EnsureCanActivate(a); err != nil {
			return err
		}
		return a.ActivateAgreement(userID, s.clock)
	})
}

// CompleteMilestone completes a milestone without releasing a payout
func (s *AgreementService) CompleteMilestone(ctx context.Context, userID, agreementID, milestoneID uuid.UUID, req CompleteMilestoneRequest) (*AgreementResponse, error) {
	return s.mutate(ctx, "complete_milestone", userID, agreementID, true, func(a *commission.CommissionAgreement) error {
		return a.CompleteMilestone(milestoneID, req.Notes, nil, s.clock)
	})
}

// Complete closes an active agreement whose milestones are all completed
func (s *AgreementService) Complete(ctx context.Context, userID, agreementID uuid.UUID) (*AgreementResponse, error) {
	return s.mutate(ctx, "complete", userID, agreementID, true, func(a *commission.CommissionAgreement) error {
		if err := s.rules.EnsureCanComplete(a); err != nil {
			return err
		}
		return a.CompleteAgreement(userID, s.clock)
	})
}

// Cancel cancels a draft or active agreement
func (s *AgreementService) Cancel(ctx context.Context, userID, agreementID uuid.UUID, req ReasonRequest) (*AgreementResponse, error) {
	return s.mutate(ctx, "cancel", userID, agreementID, true, func(a *commission.CommissionAgreement) error {
		return a.CancelAgreement(userID, req.Reason, s.clock)
	})
}

// Dispute flags an active agreement as disputed
func (s *AgreementService) Dispute(ctx context.Context, userID, agreementID uuid.UUID, req ReasonRequest) (*AgreementResponse, error) {
	return s.mutate(ctx, "dispute", userID, agreementID, true, func(a *commission.CommissionAgreement) error {
		return a.DisputeAgreement(userID, req.Reason, s.clock)
	})
}

// Outstanding reports the agreement value not yet covered by completed milestones
func (s *AgreementService) Outstanding(ctx context.Context, userID, agreementID uuid.UUID) (*OutstandingResponse, error) {
	agreement, err := s.loadOwned(ctx, userID, agreementID)
	if err != nil {
		return nil, err
	}
	outstanding, err := s.rules.CalculateOutstandingValue(agreement)
	if err != nil {
		return nil, err
	}
	completed, err := agreement.CompletedMilestoneValue()
	if err != nil {
		return nil, err
	}
	return &OutstandingResponse{
		AgreementID:      agreement.ID,
		TotalValue:       agreement.TotalValue.Amount(),
		CompletedValue:   completed.Amount(),
		OutstandingValue: outstanding.Amount(),
		Currency:         agreement.Currency.String(),
	}, nil
}

// SweepOverdueMilestones marks pending milestones past their due date as
// OVERDUE across active agreements. It returns the number of milestones
// marked. A version conflict on one agreement skips it until the next sweep.
func (s *AgreementService) SweepOverdueMilestones(ctx context.Context, batchSize int) (int, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanCategory, "sweep_overdue_milestones")
	defer span.End()

	if batchSize <= 0 {
		batchSize = defaultSweepBatch
	}
	ids, err := s.repo.FindActiveIDs(ctx, batchSize)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	marked := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return marked, err
		}
		n, err := s.markOverdue(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) || errors.Is(err, shared.ErrNotFound) {
				logger.L(ctx).Debug("Skipping agreement in overdue sweep",
					zap.String("agreement_id", id.String()), zap.Error(err))
				continue
			}
			telemetry.RecordError(span, err)
			return marked, err
		}
		marked += n
	}

	telemetry.SetAttribute(span, "milestones_marked", marked)
	if marked > 0 {
		logger.L(ctx).Info("Overdue milestones marked", zap.Int("count", marked), zap.Int("agreements_scanned", len(ids)))
	}
	return marked, nil
}

func (s *AgreementService) markOverdue(ctx context.Context, agreementID uuid.UUID) (int, error) {
	agreement, err := s.repo.FindByID(ctx, agreementID)
	if err != nil {
		return 0, err
	}
	overdue := s.rules.OverdueMilestones(agreement, s.clock)
	if len(overdue) == 0 {
		return 0, nil
	}
	for _, m := range overdue {
		if err := agreement.MarkMilestoneOverdue(m.ID, s.clock); err != nil {
			return 0, err
		}
	}
	if err := s.repo.Save(ctx, agreement); err != nil {
		return 0, err
	}
	return len(overdue), nil
}

// mutate is the load, check, mutate, save cycle shared by every command
func (s *AgreementService) mutate(
	ctx context.Context,
	operation string,
	userID, agreementID uuid.UUID,
	ownerOnly bool,
	fn func(a *commission.CommissionAgreement) error,
) (*AgreementResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceSpanCategory, operation)
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrAgreementID, agreementID.String())

	var agreement *commission.CommissionAgreement
	var err error
	if ownerOnly {
		agreement, err = s.loadOwned(ctx, userID, agreementID)
	} else {
		agreement, err = s.repo.FindByID(ctx, agreementID)
	}
	if err != nil {
		return nil, s.fail(ctx, span, operation, err)
	}

	if err := fn(agreement); err != nil {
		return nil, s.fail(ctx, span, operation, err)
	}
	if err := s.repo.Save(ctx, agreement); err != nil {
		return nil, s.fail(ctx, span, operation, err)
	}

	logger.L(ctx).Info("Commission agreement updated",
		zap.String("operation", operation),
		zap.String("agreement_id", agreement.ID.String()),
		zap.String("status", string(agreement.Status)),
	)
	resp := ToAgreementResponse(agreement)
	return &resp, nil
}

func (s *AgreementService) loadOwned(ctx context.Context, userID, agreementID uuid.UUID) (*commission.CommissionAgreement, error) {
	agreement, err := s.repo.FindByID(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if agreement.OwnerUserID != userID {
		return nil, shared.ErrForbidden.WithMessage("Only the agreement owner can perform this operation")
	}
	return agreement, nil
}

// fail records err on the span and logs domain rejections at Warn
func (s *AgreementService) fail(ctx context.Context, span trace.Span, operation string, err error) error {
	telemetry.RecordError(span, err)
	if domainErr, ok := shared.AsDomainError(err); ok {
		logger.L(ctx).Warn("Commission agreement command rejected",
			zap.String("operation", operation),
			zap.String("error_code", domainErr.Code),
			zap.String("error", domainErr.Message),
		)
	}
	return err
}
