package escrow

import (
	"fmt"

	"github.com/escrowhub/backend/internal/domain/commission"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutPolicy holds the materiality thresholds used to pick an approval type.
// Ratios are fractions of the agreement's total value.
type PayoutPolicy struct {
	// AutoApproveRatio is the largest share of the total value approved without review
	AutoApproveRatio decimal.Decimal
	// DisputeRatio is the share of the total value at or above which a payout is escalated
	DisputeRatio decimal.Decimal
	// DisputeThreshold escalates any payout above this absolute amount. Zero disables it.
	DisputeThreshold decimal.Decimal
}

// DefaultPayoutPolicy auto-approves up to 10% of the agreement value and
// escalates payouts of half the value or more.
func DefaultPayoutPolicy() PayoutPolicy {
	return PayoutPolicy{
		AutoApproveRatio: decimal.RequireFromString("0.10"),
		DisputeRatio:     decimal.RequireFromString("0.50"),
		DisputeThreshold: decimal.Zero,
	}
}

// Validate checks the thresholds are ordered and within [0, 1]
func (p PayoutPolicy) Validate() error {
	one := decimal.NewFromInt(1)
	if p.AutoApproveRatio.IsNegative() || p.AutoApproveRatio.GreaterThan(one) {
		return fmt.Errorf("auto approve ratio must be within 0..1, got %s", p.AutoApproveRatio)
	}
	if p.DisputeRatio.IsNegative() || p.DisputeRatio.GreaterThan(one) {
		return fmt.Errorf("dispute ratio must be within 0..1, got %s", p.DisputeRatio)
	}
	if p.AutoApproveRatio.GreaterThanOrEqual(p.DisputeRatio) {
		return fmt.Errorf("auto approve ratio %s must be below dispute ratio %s", p.AutoApproveRatio, p.DisputeRatio)
	}
	if p.DisputeThreshold.IsNegative() {
		return fmt.Errorf("dispute threshold cannot be negative")
	}
	return nil
}

// PayoutSplit is one party's share of a payout
type PayoutSplit struct {
	PartyID         uuid.UUID
	StripeAccountID string
	Amount          valueobject.Money
}

// PayoutService holds the stateless payout invariants spanning an agreement
// and its escrow account.
type PayoutService struct {
	policy PayoutPolicy
}

// NewPayoutService creates a PayoutService with the given policy
func NewPayoutService(policy PayoutPolicy) *PayoutService {
	return &PayoutService{policy: policy}
}

// EnsureMilestoneEligibleForPayout checks that milestone belongs to the
// agreement, that amount fits within the milestone value, and that the
// milestone has not already released a payout.
func (s *PayoutService) EnsureMilestoneEligibleForPayout(
	agreement *commission.CommissionAgreement,
	milestone commission.Milestone,
	amount valueobject.Money,
) error {
	current, err := agreement.FindMilestone(milestone.ID)
	if err != nil {
		return err
	}
	if amount.Currency() != current.Value.Currency() {
		return ErrCurrencyMismatch.WithMessagef("Payout is in %s but the milestone is valued in %s", amount.Currency(), current.Value.Currency())
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount.WithMessage("Payout amount must be positive")
	}
	if exceeds, _ := amount.GreaterThan(current.Value); exceeds {
		return ErrMilestoneValueExceeded.WithMessagef("Payout of %s exceeds milestone value of %s", amount, current.Value)
	}
	if agreement.Status != commission.AgreementStatusActive {
		return commission.ErrInvalidTransition.WithMessagef("Payouts require an active agreement, agreement is %s", agreement.Status)
	}
	if current.HasReleasedPayout() {
		return ErrPayoutAlreadyReleased.WithMessagef("Milestone %s already released payout %s", current.ID, *current.ReleasedPayoutTransactionID)
	}
	return nil
}

// DetermineApprovalPolicy compares amount with the agreement's total value
// against the configured thresholds.
func (s *PayoutService) DetermineApprovalPolicy(agreement *commission.CommissionAgreement, amount valueobject.Money) (ApprovalType, error) {
	ratio, err := amount.Ratio(agreement.TotalValue)
	if err != nil {
		return "", err
	}
	if s.policy.DisputeThreshold.IsPositive() && amount.Amount().GreaterThan(s.policy.DisputeThreshold) {
		return ApprovalTypeDisputed, nil
	}
	switch {
	case ratio.GreaterThanOrEqual(s.policy.DisputeRatio):
		return ApprovalTypeDisputed, nil
	case ratio.LessThanOrEqual(s.policy.AutoApproveRatio):
		return ApprovalTypeAutoApproved, nil
	default:
		return ApprovalTypeApprovalRequired, nil
	}
}

// EnsureEscrowCoverage checks currency first, then that the account's
// available balance covers amount.
func (s *PayoutService) EnsureEscrowCoverage(account *EscrowAccount, amount valueobject.Money) error {
	if err := account.ensureCurrency(amount); err != nil {
		return err
	}
	available := account.AvailableBalance()
	if available.Amount().LessThan(amount.Amount()) {
		return ErrInsufficientBalance.WithMessagef("Escrow account holds %s available, payout needs %s", available, amount)
	}
	return nil
}

// EnsureAllPartiesHavePayoutAccounts requires a connected payout account for every party
func (s *PayoutService) EnsureAllPartiesHavePayoutAccounts(agreement *commission.CommissionAgreement) error {
	for i := range agreement.Parties {
		if !agreement.Parties[i].HasPayoutAccount() {
			return ErrPayoutDestinationMissing.WithMessagef("Party %s has no connected payout account", agreement.Parties[i].Name)
		}
	}
	return nil
}

// CalculatePayoutSplits divides amount across the parties by split percentage.
// Leftover cents go to the first parties so the splits sum to amount.
func (s *PayoutService) CalculatePayoutSplits(agreement *commission.CommissionAgreement, amount valueobject.Money) ([]PayoutSplit, error) {
	if len(agreement.Parties) == 0 {
		return nil, commission.ErrPartyNotFound.WithMessage("Agreement has no parties to split the payout between")
	}
	if amount.Currency() != agreement.Currency {
		return nil, ErrCurrencyMismatch.WithMessagef("Payout is in %s but the agreement uses %s", amount.Currency(), agreement.Currency)
	}
	shares := make([]valueobject.Percentage, len(agreement.Parties))
	for i := range agreement.Parties {
		shares[i] = agreement.Parties[i].Split
	}
	parts, err := amount.AllocateByPercentages(shares)
	if err != nil {
		return nil, err
	}
	splits := make([]PayoutSplit, 0, len(parts))
	for i, part := range parts {
		if part.IsZero() {
			continue
		}
		splits = append(splits, PayoutSplit{
			PartyID:         agreement.Parties[i].ID,
			StripeAccountID: agreement.Parties[i].StripeAccountID,
			Amount:          part,
		})
	}
	return splits, nil
}
