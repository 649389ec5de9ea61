package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no ticket matches the lookup.
var ErrNotFound = errors.New("merge ticket not found")

type Repository interface {
	// Create writes a pending ticket. A pending ticket for the same
	// (loser, survivor) pair already on file is a no-op.
	Create(ctx context.Context, t *MergeTicket) error

	GetByID(ctx context.Context, id uuid.UUID) (*MergeTicket, error)
	ListPending(ctx context.Context) ([]*MergeTicket, error)
	Update(ctx context.Context, t *MergeTicket) error
}
