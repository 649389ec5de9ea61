package linking

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create writes a link record, keyed on (event_id, identity_id).
	// An existing record for the pair is left untouched and returned.
	Create(ctx context.Context, r *LinkRecord) (*LinkRecord, error)

	// ListByIdentity returns the identity's link records, oldest first.
	ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]*LinkRecord, error)

	// RepointIdentity moves every link from one identity to another. Used by
	// the reconciler when tombstoning a duplicate.
	RepointIdentity(ctx context.Context, from, to uuid.UUID) (int, error)
}
