package chart

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an identity has no chart yet.
var ErrNotFound = errors.New("chart not found")

// ErrVersionConflict is returned when a save races a concurrent merge of the
// same chart. The caller's transaction rolls back.
var ErrVersionConflict = errors.New("chart version conflict")

type Repository interface {
	// Get returns the stored chart, or ErrNotFound if none exists yet.
	Get(ctx context.Context, identityID uuid.UUID) (*Chart, error)

	// Save writes the chart, guarded by the version it was read at.
	// expectedVersion zero means the chart must not exist yet.
	Save(ctx context.Context, c *Chart, expectedVersion int) error
}
