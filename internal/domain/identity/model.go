package identity

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle of a patient identity. Provisional identities are
// created on first encounter without a high-confidence match; Confirmed means
// an exact identifier match has occurred; Merged is terminal: the record is
// a tombstone whose MergedInto pointer names the survivor.
type State string

const (
	StateProvisional State = "provisional"
	StateConfirmed   State = "confirmed"
	StateMerged      State = "merged"
)

// PatientIdentity is the canonical record for one real patient. Identifier
// fields hold normalized forms only; raw intake strings never reach storage.
type PatientIdentity struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	State              State      `db:"state" json:"state"`
	Phone              *string    `db:"phone" json:"phone,omitempty"`
	SecondaryPhone     *string    `db:"secondary_phone" json:"secondary_phone,omitempty"`
	MRN                *string    `db:"mrn" json:"mrn,omitempty"`
	ShortID            *string    `db:"short_id" json:"short_id,omitempty"`
	FirstName          string     `db:"first_name" json:"first_name"`
	LastName           string     `db:"last_name" json:"last_name"`
	DOB                *time.Time `db:"dob" json:"dob,omitempty"`
	NeedsManualLinking bool       `db:"needs_manual_linking" json:"needs_manual_linking"`
	ReviewCandidateID  *uuid.UUID `db:"review_candidate_id" json:"review_candidate_id,omitempty"`
	MergedInto         *uuid.UUID `db:"merged_into" json:"merged_into,omitempty"`
	CreatedVia         string     `db:"created_via" json:"created_via"`
	LastActivityAt     time.Time  `db:"last_activity_at" json:"last_activity_at"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Active reports whether the identity can still be matched against.
func (p *PatientIdentity) Active() bool {
	return p.State != StateMerged
}

// IdentifierCount counts populated identifiers; the reconciler's survivor
// election prefers the better-populated row.
func (p *PatientIdentity) IdentifierCount() int {
	n := 0
	for _, f := range []*string{p.Phone, p.SecondaryPhone, p.MRN, p.ShortID} {
		if f != nil && *f != "" {
			n++
		}
	}
	if p.DOB != nil {
		n++
	}
	return n
}

// Intake is one incoming record (import row, call event, document upload)
// with raw, unnormalized fields. Any subset may be present.
type Intake struct {
	Phone     string `json:"phone,omitempty"`
	MRN       string `json:"mrn,omitempty"`
	ShortID   string `json:"short_id,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	DOB       string `json:"dob,omitempty"`
	Source    string `json:"source"`
	SourceRef string `json:"source_ref,omitempty"`
}

// Resolution is the outcome of resolving an intake record.
type Resolution struct {
	Identity   *PatientIdentity `json:"identity"`
	Confidence float64          `json:"confidence"`
	Created    bool             `json:"created"`
	Outcome    string           `json:"outcome"`
}

// Resolution outcomes.
const (
	OutcomeAttached     = "attached"
	OutcomeCreated      = "created"
	OutcomeManualReview = "manual_review"
)
