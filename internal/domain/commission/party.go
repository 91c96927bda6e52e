package commission

import (
	"time"

	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// PartyRole describes how a party takes part in the deal
type PartyRole string

const (
	PartyRoleAgent     PartyRole = "AGENT"
	PartyRolePrincipal PartyRole = "PRINCIPAL"
	PartyRoleReferrer  PartyRole = "REFERRER"
	PartyRoleBroker    PartyRole = "BROKER"
	PartyRolePartner   PartyRole = "PARTNER"
)

// IsValid checks if the role is known
func (r PartyRole) IsValid() bool {
	switch r {
	case PartyRoleAgent, PartyRolePrincipal, PartyRoleReferrer, PartyRoleBroker, PartyRolePartner:
		return true
	}
	return false
}

// Party is a participant entitled to a share of the agreement value.
// ContactID and CompanyID are weak references into the CRM.
type Party struct {
	ID                uuid.UUID
	ContactID         *uuid.UUID
	CompanyID         *uuid.UUID
	Name              string
	Email             string
	Split             valueobject.Percentage
	Role              PartyRole
	StripeAccountID   string
	StripeConnectedAt *time.Time
	HasAccepted       bool
	AcceptedAt        *time.Time
	CreatedAt         time.Time
}

// HasPayoutAccount reports whether funds can be transferred to the party
func (p *Party) HasPayoutAccount() bool {
	return p.StripeAccountID != ""
}

// accept marks acceptance. It returns false when the party had already accepted.
func (p *Party) accept(now time.Time) bool {
	if p.HasAccepted {
		return false
	}
	p.HasAccepted = true
	p.AcceptedAt = &now
	return true
}

func (p *Party) connectPayoutAccount(accountID string, now time.Time) {
	p.StripeAccountID = accountID
	p.StripeConnectedAt = &now
}
