package commission

import (
	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// RulesService holds the stateless invariants spanning an agreement's parties
// and milestones. It takes no locks and has no side effects.
type RulesService struct{}

var defaultRules = NewRulesService()

// NewRulesService creates a RulesService
func NewRulesService() *RulesService {
	return &RulesService{}
}

// EnsureCanActivate requires the split total to be exactly 100 and every party
// to have accepted. Missing milestones do not block activation.
func (s *RulesService) EnsureCanActivate(a *CommissionAgreement) error {
	total := a.SplitTotal()
	if !total.Equal(decimal.NewFromInt(100)) {
		return ErrSplitTotalMustBeOneHundredPercent.WithMessagef("Party splits add up to %s%%, expected exactly 100%%", total.String())
	}
	for i := range a.Parties {
		if !a.Parties[i].HasAccepted {
			return ErrPartiesNotAccepted.WithMessagef("Party %s (%s) has not accepted the agreement", a.Parties[i].Name, a.Parties[i].ID)
		}
	}
	return nil
}

// EnsureCanComplete requires every milestone to be completed
func (s *RulesService) EnsureCanComplete(a *CommissionAgreement) error {
	for i := range a.Milestones {
		if !a.Milestones[i].IsCompleted() {
			return ErrMilestonesIncomplete.WithMessagef("Milestone %q is still %s", a.Milestones[i].Description, a.Milestones[i].Status)
		}
	}
	return nil
}

// CalculateOutstandingValue is TotalValue minus the value of completed
// milestones, floored at zero and expressed in the agreement's currency.
func (s *RulesService) CalculateOutstandingValue(a *CommissionAgreement) (valueobject.Money, error) {
	completed, err := a.CompletedMilestoneValue()
	if err != nil {
		return valueobject.Money{}, err
	}
	return a.TotalValue.SubtractFloorZero(completed)
}

// OverdueMilestones lists pending milestones whose due date is behind the clock
func (s *RulesService) OverdueMilestones(a *CommissionAgreement, clock shared.Clock) []Milestone {
	now := clock.Now()
	var overdue []Milestone
	for i := range a.Milestones {
		m := a.Milestones[i]
		if m.Status == MilestoneStatusPending && m.IsPastDue(now) {
			overdue = append(overdue, m)
		}
	}
	return overdue
}
