package shared

import (
	"time"

	"github.com/google/uuid"
)

// Entity is anything with a stable identity
type Entity interface {
	EntityID() uuid.UUID
}

// BaseEntity holds an identity and its audit times. The times come from a
// Clock passed to the operation, never from the wall clock directly.
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *BaseEntity) EntityID() uuid.UUID { return e.ID }

// Touch sets UpdatedAt to at. An instant before the current value is ignored.
func (e *BaseEntity) Touch(at time.Time) {
	if at.After(e.UpdatedAt) {
		e.UpdatedAt = at
	}
}

// NewBaseEntity stamps id as created and updated at now
func NewBaseEntity(id uuid.UUID, now time.Time) BaseEntity {
	return BaseEntity{ID: id, CreatedAt: now, UpdatedAt: now}
}
