package models

import (
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AggregateModel provides common persistence fields for aggregate roots.
// Version backs optimistic locking.
type AggregateModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
	Version   int       `gorm:"not null;default:1"`
}

// FromAggregate populates AggregateModel from domain BaseAggregateRoot
func (m *AggregateModel) FromAggregate(a shared.BaseAggregateRoot) {
	m.ID = a.ID
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
	m.Version = a.Version
}

// ToAggregate restores the aggregate bookkeeping fields
func (m *AggregateModel) ToAggregate() shared.BaseAggregateRoot {
	return shared.RestoreBaseAggregateRoot(m.ID, m.CreatedAt, m.UpdatedAt, m.Version)
}
