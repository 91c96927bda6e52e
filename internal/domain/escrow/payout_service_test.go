package escrow

import (
	"errors"
	"testing"

	"github.com/escrowhub/backend/internal/domain/commission"
	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type agreementFixture struct {
	agreement   *commission.CommissionAgreement
	milestoneID uuid.UUID
	parties     []uuid.UUID
}

func newActiveAgreement(t *testing.T, clock shared.Clock, milestoneValue string) agreementFixture {
	t.Helper()
	a, err := commission.NewCommissionAgreement(uuid.New(), uuid.New(), "Harbor lease", "", brl("1000"), "", clock)
	require.NoError(t, err)

	f := agreementFixture{agreement: a, milestoneID: uuid.New()}
	for _, split := range []string{"60", "40"} {
		id := uuid.New()
		require.NoError(t, a.AddParty(id, nil, nil, "Party "+split, "", valueobject.MustPercentage(split), commission.PartyRoleAgent, "acct_"+split, clock))
		require.NoError(t, a.AcceptAgreementAsParty(id, clock))
		f.parties = append(f.parties, id)
	}
	require.NoError(t, a.AddMilestone(f.milestoneID, "Signing", brl(milestoneValue), testNow, clock))
	require.NoError(t, a.ActivateAgreement(a.OwnerUserID, clock))
	return f
}

func TestPayoutService_EnsureMilestoneEligibleForPayout(t *testing.T) {
	clock := shared.NewManualClock(testNow)
	svc := NewPayoutService(DefaultPayoutPolicy())
	f := newActiveAgreement(t, clock, "1000")
	m, err := f.agreement.FindMilestone(f.milestoneID)
	require.NoError(t, err)

	t.Run("rejects payouts above milestone value", func(t *testing.T) {
		err := svc.EnsureMilestoneEligibleForPayout(f.agreement, m, brl("1500"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMilestoneValueExceeded))
		de, _ := shared.AsDomainError(err)
		assert.Equal(t, CodeMilestoneValueExceeded, de.Code)
	})

	t.Run("accepts up to milestone value", func(t *testing.T) {
		assert.NoError(t, svc.EnsureMilestoneEligibleForPayout(f.agreement, m, brl("1000")))
	})

	t.Run("rejects foreign milestone", func(t *testing.T) {
		other := commission.Milestone{ID: uuid.New(), Value: brl("10")}
		err := svc.EnsureMilestoneEligibleForPayout(f.agreement, other, brl("1"))
		assert.True(t, errors.Is(err, commission.ErrMilestoneNotFound))
	})

	t.Run("rejects milestone that already released a payout", func(t *testing.T) {
		g := newActiveAgreement(t, clock, "500")
		txID := uuid.New()
		require.NoError(t, g.agreement.CompleteMilestone(g.milestoneID, "", &txID, clock))
		gm, _ := g.agreement.FindMilestone(g.milestoneID)
		err := svc.EnsureMilestoneEligibleForPayout(g.agreement, gm, brl("100"))
		assert.True(t, errors.Is(err, ErrPayoutAlreadyReleased))
	})
}

func TestPayoutService_DetermineApprovalPolicy(t *testing.T) {
	clock := shared.NewManualClock(testNow)
	svc := NewPayoutService(DefaultPayoutPolicy())
	a := newActiveAgreement(t, clock, "1000").agreement

	tests := []struct {
		amount string
		want   ApprovalType
	}{
		{"50", ApprovalTypeAutoApproved},
		{"100", ApprovalTypeAutoApproved},
		{"250", ApprovalTypeApprovalRequired},
		{"499.99", ApprovalTypeApprovalRequired},
		{"500", ApprovalTypeDisputed},
		{"600", ApprovalTypeDisputed},
	}
	for _, tt := range tests {
		got, err := svc.DetermineApprovalPolicy(a, brl(tt.amount))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.amount)
	}

	_, err := svc.DetermineApprovalPolicy(a, valueobject.MustMoney("10", valueobject.USD))
	assert.True(t, errors.Is(err, ErrCurrencyMismatch))

	t.Run("absolute threshold escalates small ratios", func(t *testing.T) {
		policy := DefaultPayoutPolicy()
		policy.DisputeThreshold = decimal.NewFromInt(50)
		got, err := NewPayoutService(policy).DetermineApprovalPolicy(a, brl("60"))
		require.NoError(t, err)
		assert.Equal(t, ApprovalTypeDisputed, got)
	})
}

func TestPayoutPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPayoutPolicy().Validate())
	bad := DefaultPayoutPolicy()
	bad.AutoApproveRatio = decimal.RequireFromString("0.6")
	assert.Error(t, bad.Validate())
}

func TestPayoutService_EnsureEscrowCoverage(t *testing.T) {
	clock := shared.NewManualClock(testNow)
	svc := NewPayoutService(DefaultPayoutPolicy())

	t.Run("currency mismatch regardless of balance", func(t *testing.T) {
		usd, err := NewEscrowAccount(uuid.New(), uuid.New(), uuid.New(), valueobject.USD, clock)
		require.NoError(t, err)
		_, err = usd.RegisterDeposit(uuid.New(), valueobject.MustMoney("1000", valueobject.USD), "", TransactionStatusCompleted, "", key("d"), clock)
		require.NoError(t, err)

		err = svc.EnsureEscrowCoverage(usd, brl("10"))
		assert.True(t, errors.Is(err, ErrCurrencyMismatch))
	})

	t.Run("insufficient balance", func(t *testing.T) {
		acct := fundedAccount(t, clock, "100")
		assert.True(t, errors.Is(svc.EnsureEscrowCoverage(acct, brl("100.01")), ErrInsufficientBalance))
		assert.NoError(t, svc.EnsureEscrowCoverage(acct, brl("100")))
	})
}

func TestPayoutService_CalculatePayoutSplits(t *testing.T) {
	clock := shared.NewManualClock(testNow)
	svc := NewPayoutService(DefaultPayoutPolicy())
	f := newActiveAgreement(t, clock, "1000")

	splits, err := svc.CalculatePayoutSplits(f.agreement, brl("333.33"))
	require.NoError(t, err)
	require.Len(t, splits, 2)
	assert.Equal(t, f.parties[0], splits[0].PartyID)
	assert.Equal(t, "acct_60", splits[0].StripeAccountID)

	total, err := splits[0].Amount.Add(splits[1].Amount)
	require.NoError(t, err)
	assert.True(t, total.Equals(brl("333.33")))
	assert.NoError(t, svc.EnsureAllPartiesHavePayoutAccounts(f.agreement))
}

func TestPayoutService_EnsureAllPartiesHavePayoutAccounts(t *testing.T) {
	clock := shared.NewManualClock(testNow)
	svc := NewPayoutService(DefaultPayoutPolicy())
	a, err := commission.NewCommissionAgreement(uuid.New(), uuid.New(), "Harbor lease", "", brl("1000"), "", clock)
	require.NoError(t, err)

	connected, pending := uuid.New(), uuid.New()
	require.NoError(t, a.AddParty(connected, nil, nil, "Ana", "", valueobject.MustPercentage("50"), commission.PartyRoleAgent, "acct_ana", clock))
	require.NoError(t, a.AddParty(pending, nil, nil, "Bruno", "", valueobject.MustPercentage("50"), commission.PartyRoleAgent, "", clock))

	err = svc.EnsureAllPartiesHavePayoutAccounts(a)
	assert.True(t, errors.Is(err, ErrPayoutDestinationMissing))
	assert.ErrorContains(t, err, "Bruno")

	require.NoError(t, a.ConnectPartyPayoutAccount(pending, "acct_bruno", clock))
	assert.NoError(t, svc.EnsureAllPartiesHavePayoutAccounts(a))
}

// Full happy path across both aggregates and both rule services.
func TestRoundTrip_AgreementToSettledPayout(t *testing.T) {
	clock := shared.NewManualClock(testNow)
	rules := commission.NewRulesService()
	payouts := NewPayoutService(DefaultPayoutPolicy())
	owner := uuid.New()

	agreement, err := commission.NewCommissionAgreement(uuid.New(), owner, "Harbor sale", "", brl("1000"), "", clock)
	require.NoError(t, err)
	for _, split := range []string{"60", "40"} {
		id := uuid.New()
		require.NoError(t, agreement.AddParty(id, nil, nil, "Party "+split, "", valueobject.MustPercentage(split), commission.PartyRoleBroker, "", clock))
		require.NoError(t, agreement.AcceptAgreementAsParty(id, clock))
	}
	milestoneID := uuid.New()
	require.NoError(t, agreement.AddMilestone(milestoneID, "Closing", brl("1000"), testNow.AddDate(0, 1, 0), clock))
	require.NoError(t, agreement.ActivateAgreement(owner, clock))

	account, err := NewEscrowAccount(uuid.New(), agreement.ID, owner, agreement.Currency, clock)
	require.NoError(t, err)
	require.NoError(t, agreement.AttachEscrowAccount(account.ID, clock))

	_, err = account.RegisterDeposit(uuid.New(), brl("1000"), "funding", TransactionStatusCompleted, "pi_rt", key("rt-dep"), clock)
	require.NoError(t, err)

	milestone, err := agreement.FindMilestone(milestoneID)
	require.NoError(t, err)
	amount := milestone.Value
	require.NoError(t, payouts.EnsureMilestoneEligibleForPayout(agreement, milestone, amount))
	require.NoError(t, payouts.EnsureEscrowCoverage(account, amount))

	tx, err := account.RequestPayout(uuid.New(), nil, &milestoneID, amount, "closing payout", ApprovalTypeApprovalRequired, key("rt-pay"), owner, clock)
	require.NoError(t, err)
	require.NoError(t, account.ApprovePayout(tx.ID, owner, clock))
	require.NoError(t, account.MarkPayoutExecuted(tx.ID, "tr_rt", clock))
	require.NoError(t, agreement.CompleteMilestone(milestoneID, "closed", &tx.ID, clock))

	outstanding, err := rules.CalculateOutstandingValue(agreement)
	require.NoError(t, err)
	assert.True(t, outstanding.IsZero())
	assert.True(t, account.Balance().IsZero())

	linked, ok := agreement.MilestoneForPayout(tx.ID)
	assert.True(t, ok)
	assert.Equal(t, milestoneID, linked.ID)
}
