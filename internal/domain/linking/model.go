package linking

import (
	"time"

	"github.com/google/uuid"
)

// Event types a link can originate from.
const (
	EventAppointment = "appointment"
	EventCall        = "call"
	EventResolve     = "resolve"
)

// Link outcomes.
const (
	OutcomeLinked            = "linked"
	OutcomeNeedsConfirmation = "needs_confirmation"
	OutcomeManualReview      = "manual_review"
	OutcomeAttached          = "attached"
	OutcomeCreated           = "created"
)

// LinkRecord is one audit entry for an attach/link/merge decision. Records
// are immutable and append-only; re-running the same event against the same
// identity is a no-op on the (event_id, identity_id) natural key.
type LinkRecord struct {
	ID             uuid.UUID `db:"id" json:"id"`
	EventID        string    `db:"event_id" json:"event_id"`
	EventType      string    `db:"event_type" json:"event_type"`
	IdentityID     uuid.UUID `db:"identity_id" json:"identity_id"`
	IdentifierType string    `db:"identifier_type" json:"identifier_type,omitempty"`
	Confidence     float64   `db:"confidence" json:"confidence"`
	Method         string    `db:"method" json:"method"`
	Outcome        string    `db:"outcome" json:"outcome"`
	Source         string    `db:"source" json:"source,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Event is a scheduling or call event to be linked to an identity. The
// identifying fields are raw; the linker normalizes them before matching.
type Event struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Phone      string    `json:"phone,omitempty"`
	MRN        string    `json:"mrn,omitempty"`
	ShortID    string    `json:"short_id,omitempty"`
	FirstName  string    `json:"first_name,omitempty"`
	LastName   string    `json:"last_name,omitempty"`
	DOB        string    `json:"dob,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Source     string    `json:"source,omitempty"`
}
