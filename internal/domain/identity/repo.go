package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no identity matches the lookup.
var ErrNotFound = errors.New("identity not found")

// ErrDuplicateIdentifier is returned by Create when another active identity
// already holds the same canonical phone or MRN. The resolver recovers by
// re-running matching against the winning row.
var ErrDuplicateIdentifier = errors.New("identifier already claimed by an active identity")

type Repository interface {
	Create(ctx context.Context, p *PatientIdentity) error
	GetByID(ctx context.Context, id uuid.UUID) (*PatientIdentity, error)
	Update(ctx context.Context, p *PatientIdentity) error

	// CandidatePool returns active (non-merged) identities for matching.
	CandidatePool(ctx context.Context) ([]*PatientIdentity, error)

	// ActiveBetween returns active identities whose last activity falls
	// inside [from, to]. Used by the linker's search window.
	ActiveBetween(ctx context.Context, from, to time.Time) ([]*PatientIdentity, error)

	// TouchActivity advances an identity's last-activity timestamp.
	TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error
}
