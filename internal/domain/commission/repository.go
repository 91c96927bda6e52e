package commission

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter restricts agreement listings
type ListFilter struct {
	Status   AgreementStatus
	Page     int
	PageSize int
	// SortBy is a column name; stores fall back to created_at for unknown columns
	SortBy    string
	SortOrder string
}

// AgreementRepository persists CommissionAgreement aggregates.
// Create inserts a new aggregate. Save updates an existing one only if its
// stored version still matches, returning shared.ErrConcurrencyConflict
// otherwise. Both write pending domain events to the outbox in the same transaction.
type AgreementRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*CommissionAgreement, error)
	FindByOwner(ctx context.Context, ownerUserID uuid.UUID, filter ListFilter) ([]*CommissionAgreement, int64, error)
	// FindActiveIDs lists active agreements for the overdue milestone sweep
	FindActiveIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
	Create(ctx context.Context, agreement *CommissionAgreement) error
	Save(ctx context.Context, agreement *CommissionAgreement) error
}
