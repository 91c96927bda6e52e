package commission

import (
	"strings"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AgreementStatus represents the lifecycle status of a commission agreement
type AgreementStatus string

const (
	AgreementStatusDraft     AgreementStatus = "DRAFT"
	AgreementStatusActive    AgreementStatus = "ACTIVE"
	AgreementStatusCompleted AgreementStatus = "COMPLETED"
	AgreementStatusDisputed  AgreementStatus = "DISPUTED"
	AgreementStatusCanceled  AgreementStatus = "CANCELED"
)

// IsValid checks if the status is a valid AgreementStatus
func (s AgreementStatus) IsValid() bool {
	switch s {
	case AgreementStatusDraft, AgreementStatusActive, AgreementStatusCompleted,
		AgreementStatusDisputed, AgreementStatusCanceled:
		return true
	}
	return false
}

// String returns the string representation of AgreementStatus
func (s AgreementStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s AgreementStatus) CanTransitionTo(target AgreementStatus) bool {
	switch s {
	case AgreementStatusDraft:
		return target == AgreementStatusActive || target == AgreementStatusCanceled
	case AgreementStatusActive:
		return target == AgreementStatusCompleted || target == AgreementStatusCanceled ||
			target == AgreementStatusDisputed
	}
	return false
}

// IsClosed reports whether the agreement accepts no further changes
func (s AgreementStatus) IsClosed() bool {
	return s == AgreementStatusCompleted || s == AgreementStatusCanceled
}

const maxTitleLength = 200

// CommissionAgreement is the aggregate root of a commission-sharing deal.
// It owns its parties and milestones and only references its escrow account by id.
type CommissionAgreement struct {
	shared.BaseAggregateRoot
	OwnerUserID        uuid.UUID
	Title              string
	Description        string
	Terms              string
	TotalValue         valueobject.Money
	Currency           valueobject.Currency
	Status             AgreementStatus
	Parties            []Party
	Milestones         []Milestone
	EscrowAccountID    *uuid.UUID
	ActivatedAt        *time.Time
	CompletedAt        *time.Time
	CanceledAt         *time.Time
	CancellationReason string
	DisputeReason      string
}

// NewCommissionAgreement creates a draft agreement
func NewCommissionAgreement(
	id, ownerUserID uuid.UUID,
	title, description string,
	totalValue valueobject.Money,
	terms string,
	clock shared.Clock,
) (*CommissionAgreement, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidAgreement.WithMessage("Agreement ID cannot be empty")
	}
	if ownerUserID == uuid.Nil {
		return nil, ErrInvalidAgreement.WithMessage("Owner user ID cannot be empty")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidAgreement.WithMessage("Title cannot be empty")
	}
	if len(title) > maxTitleLength {
		return nil, ErrInvalidAgreement.WithMessagef("Title cannot exceed %d characters", maxTitleLength)
	}
	if !totalValue.IsPositive() {
		return nil, ErrInvalidAgreement.WithMessage("Total value must be positive")
	}

	now := clock.Now()
	a := &CommissionAgreement{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(id, now),
		OwnerUserID:       ownerUserID,
		Title:             title,
		Description:       strings.TrimSpace(description),
		Terms:             strings.TrimSpace(terms),
		TotalValue:        totalValue,
		Currency:          totalValue.Currency(),
		Status:            AgreementStatusDraft,
		Parties:           make([]Party, 0),
		Milestones:        make([]Milestone, 0),
	}

	a.RecordEvent(&AgreementCreatedEvent{
		BaseDomainEvent: newEvent(EventTypeAgreementCreated, a, now),
		AgreementID:     a.ID,
		OwnerUserID:     ownerUserID,
		Title:           title,
		TotalValue:      totalValue,
	})
	return a, nil
}

// UpdateDetails replaces the descriptive fields of a draft agreement
func (a *CommissionAgreement) UpdateDetails(title, description, terms string, clock shared.Clock) error {
	if a.Status != AgreementStatusDraft {
		return a.transitionError("update details of")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidAgreement.WithMessage("Title cannot be empty")
	}
	if len(title) > maxTitleLength {
		return ErrInvalidAgreement.WithMessagef("Title cannot exceed %d characters", maxTitleLength)
	}

	now := clock.Now()
	a.Title = title
	a.Description = strings.TrimSpace(description)
	a.Terms = strings.TrimSpace(terms)
	a.Touch(now)
	a.RecordEvent(&AgreementDetailsUpdatedEvent{
		BaseDomainEvent: newEvent(EventTypeAgreementDetailsUpdated, a, now),
		AgreementID:     a.ID,
		Title:           title,
	})
	return nil
}

// AddParty adds a participant to a draft agreement. The split total may stay
// below 100 while parties are added one at a time; exactly 100 is only
// required at activation.
func (a *CommissionAgreement) AddParty(
	partyID uuid.UUID,
	contactID, companyID *uuid.UUID,
	name, email string,
	split valueobject.Percentage,
	role PartyRole,
	stripeAccountID string,
	clock shared.Clock,
) error {
	if a.Status != AgreementStatusDraft {
		return a.transitionError("add parties to")
	}
	if partyID == uuid.Nil {
		return ErrInvalidAgreement.WithMessage("Party ID cannot be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidAgreement.WithMessage("Party name cannot be empty")
	}
	if !role.IsValid() {
		return ErrInvalidAgreement.WithMessagef("Unknown party role %q", role)
	}
	if _, err := a.FindParty(partyID); err == nil {
		return ErrDuplicateParty.WithMessagef("Party %s already belongs to the agreement", partyID)
	}
	newTotal := a.SplitTotal().Add(split.Value())
	if newTotal.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidSplit.WithMessagef("Adding %s would bring the split total to %s%%", split, newTotal.String())
	}

	now := clock.Now()
	party := Party{
		ID:              partyID,
		ContactID:       contactID,
		CompanyID:       companyID,
		Name:            name,
		Email:           strings.TrimSpace(email),
		Split:           split,
		Role:            role,
		StripeAccountID: strings.TrimSpace(stripeAccountID),
		CreatedAt:       now,
	}
	if party.StripeAccountID != "" {
		party.StripeConnectedAt = &now
	}
	a.Parties = append(a.Parties, party)
	a.Touch(now)

	a.RecordEvent(&PartyAddedEvent{
		BaseDomainEvent: newEvent(EventTypePartyAdded, a, now),
		AgreementID:     a.ID,
		PartyID:         partyID,
		PartyName:       name,
		Role:            role,
		Split:           split.Value().String(),
	})
	return nil
}

// AcceptAgreementAsParty records a party's acceptance. Accepting twice is a no-op.
func (a *CommissionAgreement) AcceptAgreementAsParty(partyID uuid.UUID, clock shared.Clock) error {
	party, err := a.findPartyRef(partyID)
	if err != nil {
		return err
	}
	if a.Status.IsClosed() {
		return a.transitionError("accept")
	}

	now := clock.Now()
	if !party.accept(now) {
		return nil
	}
	a.Touch(now)
	a.RecordEvent(&PartyAcceptedEvent{
		BaseDomainEvent: newEvent(EventTypePartyAccepted, a, now),
		AgreementID:     a.ID,
		PartyID:         partyID,
		AcceptedAt:      now,
	})
	return nil
}

// ConnectPartyPayoutAccount records the external account that receives the party's share
func (a *CommissionAgreement) ConnectPartyPayoutAccount(partyID uuid.UUID, stripeAccountID string, clock shared.Clock) error {
	party, err := a.findPartyRef(partyID)
	if err != nil {
		return err
	}
	stripeAccountID = strings.TrimSpace(stripeAccountID)
	if stripeAccountID == "" {
		return ErrInvalidAgreement.WithMessage("Payout account ID cannot be empty")
	}

	now := clock.Now()
	party.connectPayoutAccount(stripeAccountID, now)
	a.Touch(now)
	a.RecordEvent(&PartyPayoutAccountConnectedEvent{
		BaseDomainEvent: newEvent(EventTypePartyPayoutConnected, a, now),
		AgreementID:     a.ID,
		PartyID:         partyID,
		StripeAccountID: stripeAccountID,
	})
	return nil
}

// AddMilestone adds a payout-gating milestone in the agreement's currency
func (a *CommissionAgreement) AddMilestone(
	milestoneID uuid.UUID,
	description string,
	value valueobject.Money,
	dueDate time.Time,
	clock shared.Clock,
) error {
	if a.Status.IsClosed() {
		return a.transitionError("add milestones to")
	}
	if milestoneID == uuid.Nil {
		return ErrInvalidAgreement.WithMessage("Milestone ID cannot be empty")
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return ErrInvalidAgreement.WithMessage("Milestone description cannot be empty")
	}
	if value.Currency() != a.Currency {
		return shared.ErrCurrencyMismatch.WithMessagef("Milestone value is in %s but the agreement uses %s", value.Currency(), a.Currency)
	}
	if !value.IsPositive() {
		return ErrInvalidAgreement.WithMessage("Milestone value must be positive")
	}
	if _, err := a.FindMilestone(milestoneID); err == nil {
		return ErrDuplicateMilestone.WithMessagef("Milestone %s already exists", milestoneID)
	}
	total, err := a.milestoneTotal()
	if err != nil {
		return err
	}
	total, err = total.Add(value)
	if err != nil {
		return err
	}
	if exceeds, _ := total.GreaterThan(a.TotalValue); exceeds {
		return ErrMilestoneTotalExceedsAgreement.WithMessagef("Milestones would total %s against an agreement value of %s", total, a.TotalValue)
	}

	now := clock.Now()
	a.Milestones = append(a.Milestones, Milestone{
		ID:          milestoneID,
		Description: description,
		Value:       value,
		DueDate:     dueDate.UTC(),
		Status:      MilestoneStatusPending,
		CreatedAt:   now,
	})
	a.Touch(now)
	a.RecordEvent(&MilestoneAddedEvent{
		BaseDomainEvent: newEvent(EventTypeMilestoneAdded, a, now),
		AgreementID:     a.ID,
		MilestoneID:     milestoneID,
		Description:     description,
		Value:           value,
		DueDate:         dueDate.UTC(),
	})
	return nil
}

// ActivateAgreement moves a draft agreement to Active once the activation rules pass
func (a *CommissionAgreement) ActivateAgreement(requestedBy uuid.UUID, clock shared.Clock) error {
	if !a.Status.CanTransitionTo(AgreementStatusActive) {
		return a.transitionError("activate")
	}
	if err := defaultRules.EnsureCanActivate(a); err != nil {
		return err
	}

	now := clock.Now()
	a.Status = AgreementStatusActive
	a.ActivatedAt = &now
	a.Touch(now)
	a.RecordEvent(&AgreementActivatedEvent{
		BaseDomainEvent: newEvent(EventTypeAgreementActivated, a, now),
		AgreementID:     a.ID,
		ActivatedBy:     requestedBy,
	})
	return nil
}

// CompleteMilestone completes an open milestone, optionally linking the payout
// transaction that released its value.
func (a *CommissionAgreement) CompleteMilestone(
	milestoneID uuid.UUID,
	notes string,
	releasedPayoutTransactionID *uuid.UUID,
	clock shared.Clock,
) error {
	milestone, err := a.findMilestoneRef(milestoneID)
	if err != nil {
		return err
	}
	if !milestone.Status.IsOpen() {
		return ErrAlreadyCompleted.WithMessagef("Milestone %s is already %s", milestoneID, milestone.Status)
	}
	if a.Status.IsClosed() {
		return a.transitionError("complete milestones of")
	}

	now := clock.Now()
	milestone.complete(strings.TrimSpace(notes), releasedPayoutTransactionID, now)
	a.Touch(now)
	a.RecordEvent(&MilestoneCompletedEvent{
		BaseDomainEvent:             newEvent(EventTypeMilestoneCompleted, a, now),
		AgreementID:                 a.ID,
		MilestoneID:                 milestoneID,
		Value:                       milestone.Value,
		ReleasedPayoutTransactionID: milestone.ReleasedPayoutTransactionID,
	})
	return nil
}

// MarkMilestoneOverdue flags a pending milestone whose due date has passed
func (a *CommissionAgreement) MarkMilestoneOverdue(milestoneID uuid.UUID, clock shared.Clock) error {
	milestone, err := a.findMilestoneRef(milestoneID)
	if err != nil {
		return err
	}
	if milestone.Status != MilestoneStatusPending {
		return ErrInvalidTransition.WithMessagef("Milestone %s is %s, not pending", milestoneID, milestone.Status)
	}
	now := clock.Now()
	if !milestone.IsPastDue(now) {
		return ErrMilestoneNotOverdue
	}

	milestone.Status = MilestoneStatusOverdue
	a.Touch(now)
	a.RecordEvent(&MilestoneOverdueEvent{
		BaseDomainEvent: newEvent(EventTypeMilestoneOverdue, a, now),
		AgreementID:     a.ID,
		MilestoneID:     milestoneID,
		DueDate:         milestone.DueDate,
	})
	return nil
}

// CompleteAgreement closes an active agreement after all milestones are done
func (a *CommissionAgreement) CompleteAgreement(requestedBy uuid.UUID, clock shared.Clock) error {
	if !a.Status.CanTransitionTo(AgreementStatusCompleted) {
		return a.transitionError("complete")
	}
	if err := defaultRules.EnsureCanComplete(a); err != nil {
		return err
	}

	now := clock.Now()
	a.Status = AgreementStatusCompleted
	a.CompletedAt = &now
	a.Touch(now)
	a.RecordEvent(&AgreementCompletedEvent{
		BaseDomainEvent: newEvent(EventTypeAgreementCompleted, a, now),
		AgreementID:     a.ID,
		CompletedBy:     requestedBy,
	})
	return nil
}

// CancelAgreement cancels a draft or active agreement
func (a *CommissionAgreement) CancelAgreement(requestedBy uuid.UUID, reason string, clock shared.Clock) error {
	if !a.Status.CanTransitionTo(AgreementStatusCanceled) {
		return a.transitionError("cancel")
	}

	now := clock.Now()
	from := a.Status
	a.Status = AgreementStatusCanceled
	a.CanceledAt = &now
	a.CancellationReason = strings.TrimSpace(reason)
	a.Touch(now)
	a.RecordEvent(&AgreementCanceledEvent{
		BaseDomainEvent: newEvent(EventTypeAgreementCanceled, a, now),
		AgreementID:     a.ID,
		CanceledBy:      requestedBy,
		Reason:          a.CancellationReason,
		FromStatus:      from,
	})
	return nil
}

// DisputeAgreement escalates an active agreement to dispute. Resolution happens outside the engine.
func (a *CommissionAgreement) DisputeAgreement(requestedBy uuid.UUID, reason string, clock shared.Clock) error {
	if !a.Status.CanTransitionTo(AgreementStatusDisputed) {
		return a.transitionError("dispute")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrInvalidAgreement.WithMessage("Dispute reason cannot be empty")
	}

	now := clock.Now()
	a.Status = AgreementStatusDisputed
	a.DisputeReason = reason
	a.Touch(now)
	a.RecordEvent(&AgreementDisputedEvent{
		BaseDomainEvent: newEvent(EventTypeAgreementDisputed, a, now),
		AgreementID:     a.ID,
		DisputedBy:      requestedBy,
		Reason:          reason,
	})
	return nil
}

// AttachEscrowAccount links the agreement to its escrow account. It can only happen once.
func (a *CommissionAgreement) AttachEscrowAccount(escrowAccountID uuid.UUID, clock shared.Clock) error {
	if a.EscrowAccountID != nil {
		return ErrEscrowAlreadyAttached.WithMessagef("Agreement already uses escrow account %s", *a.EscrowAccountID)
	}
	if escrowAccountID == uuid.Nil {
		return ErrInvalidAgreement.WithMessage("Escrow account ID cannot be empty")
	}
	if a.Status.IsClosed() {
		return a.transitionError("attach escrow to")
	}

	now := clock.Now()
	a.EscrowAccountID = &escrowAccountID
	a.Touch(now)
	a.RecordEvent(&EscrowAccountAttachedEvent{
		BaseDomainEvent: newEvent(EventTypeEscrowAttached, a, now),
		AgreementID:     a.ID,
		EscrowAccountID: escrowAccountID,
	})
	return nil
}

// FindParty returns a copy of the party with the given ID
func (a *CommissionAgreement) FindParty(partyID uuid.UUID) (Party, error) {
	p, err := a.findPartyRef(partyID)
	if err != nil {
		return Party{}, err
	}
	return *p, nil
}

// FindMilestone returns a copy of the milestone with the given ID
func (a *CommissionAgreement) FindMilestone(milestoneID uuid.UUID) (Milestone, error) {
	m, err := a.findMilestoneRef(milestoneID)
	if err != nil {
		return Milestone{}, err
	}
	return *m, nil
}

// SplitTotal returns the exact sum of all party split percentages
func (a *CommissionAgreement) SplitTotal() decimal.Decimal {
	splits := make([]valueobject.Percentage, len(a.Parties))
	for i := range a.Parties {
		splits[i] = a.Parties[i].Split
	}
	return valueobject.SumPercentages(splits...)
}

// AllPartiesAccepted reports whether there is at least one party and every party accepted
func (a *CommissionAgreement) AllPartiesAccepted() bool {
	if len(a.Parties) == 0 {
		return false
	}
	for i := range a.Parties {
		if !a.Parties[i].HasAccepted {
			return false
		}
	}
	return true
}

// CompletedMilestoneValue sums the value of completed milestones
func (a *CommissionAgreement) CompletedMilestoneValue() (valueobject.Money, error) {
	total := valueobject.Zero(a.Currency)
	for i := range a.Milestones {
		if !a.Milestones[i].IsCompleted() {
			continue
		}
		var err error
		if total, err = total.Add(a.Milestones[i].Value); err != nil {
			return valueobject.Money{}, err
		}
	}
	return total, nil
}

// MilestoneForPayout returns the milestone linked to a payout transaction, if any
func (a *CommissionAgreement) MilestoneForPayout(transactionID uuid.UUID) (Milestone, bool) {
	for i := range a.Milestones {
		m := a.Milestones[i]
		if m.ReleasedPayoutTransactionID != nil && *m.ReleasedPayoutTransactionID == transactionID {
			return m, true
		}
	}
	return Milestone{}, false
}

func (a *CommissionAgreement) milestoneTotal() (valueobject.Money, error) {
	total := valueobject.Zero(a.Currency)
	for i := range a.Milestones {
		var err error
		if total, err = total.Add(a.Milestones[i].Value); err != nil {
			return valueobject.Money{}, err
		}
	}
	return total, nil
}

func (a *CommissionAgreement) findPartyRef(partyID uuid.UUID) (*Party, error) {
	for i := range a.Parties {
		if a.Parties[i].ID == partyID {
			return &a.Parties[i], nil
		}
	}
	return nil, ErrPartyNotFound.WithMessagef("Party %s not found in agreement %s", partyID, a.ID)
}

func (a *CommissionAgreement) findMilestoneRef(milestoneID uuid.UUID) (*Milestone, error) {
	for i := range a.Milestones {
		if a.Milestones[i].ID == milestoneID {
			return &a.Milestones[i], nil
		}
	}
	return nil, ErrMilestoneNotFound.WithMessagef("Milestone %s not found in agreement %s", milestoneID, a.ID)
}

func (a *CommissionAgreement) transitionError(action string) error {
	return ErrInvalidTransition.WithMessagef("Cannot %s agreement in %s status", action, a.Status)
}
