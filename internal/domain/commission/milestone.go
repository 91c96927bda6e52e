package commission

import (
	"time"

	"github.com/escrowhub/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// MilestoneStatus represents the status of a milestone
type MilestoneStatus string

const (
	MilestoneStatusPending   MilestoneStatus = "PENDING"
	MilestoneStatusOverdue   MilestoneStatus = "OVERDUE"
	MilestoneStatusCompleted MilestoneStatus = "COMPLETED"
)

// IsOpen reports whether the milestone can still be completed
func (s MilestoneStatus) IsOpen() bool {
	return s == MilestoneStatusPending || s == MilestoneStatusOverdue
}

// Milestone is a deliverable whose completion gates a payout
type Milestone struct {
	ID                          uuid.UUID
	Description                 string
	Value                       valueobject.Money
	DueDate                     time.Time
	Status                      MilestoneStatus
	CompletedAt                 *time.Time
	Notes                       string
	ReleasedPayoutTransactionID *uuid.UUID
	CreatedAt                   time.Time
}

// IsCompleted reports whether the milestone reached its terminal status
func (m *Milestone) IsCompleted() bool {
	return m.Status == MilestoneStatusCompleted
}

// HasReleasedPayout reports whether a payout transaction is already linked
func (m *Milestone) HasReleasedPayout() bool {
	return m.ReleasedPayoutTransactionID != nil
}

// IsPastDue reports whether the due date has passed at the given instant
func (m *Milestone) IsPastDue(now time.Time) bool {
	return !m.DueDate.IsZero() && now.After(m.DueDate)
}

func (m *Milestone) complete(notes string, payoutTxID *uuid.UUID, now time.Time) {
	m.Status = MilestoneStatusCompleted
	m.CompletedAt = &now
	m.Notes = notes
	if payoutTxID != nil {
		id := *payoutTxID
		m.ReleasedPayoutTransactionID = &id
	}
}
