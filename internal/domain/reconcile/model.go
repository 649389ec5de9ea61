package reconcile

import (
	"time"

	"github.com/google/uuid"
)

// Ticket statuses.
const (
	StatusPending = "pending"
	StatusApplied = "applied"
)

// MergeTicket records that two active identities are believed to be the same
// patient. Tickets are review-before-apply: the sweep writes them pending
// and Apply executes the merge.
type MergeTicket struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	LoserID    uuid.UUID  `db:"loser_id" json:"loser_id"`
	SurvivorID uuid.UUID  `db:"survivor_id" json:"survivor_id"`
	Evidence   string     `db:"evidence" json:"evidence"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	AppliedAt  *time.Time `db:"applied_at" json:"applied_at,omitempty"`
}

// ApplyResult reports what one executed merge did.
type ApplyResult struct {
	Ticket        *MergeTicket `json:"ticket"`
	LinksMoved    int          `json:"links_moved"`
	ChartSections []string     `json:"chart_sections_changed,omitempty"`
}
