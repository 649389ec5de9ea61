package chart

import (
	"time"

	"github.com/google/uuid"
)

// Chart is the consolidated clinical record for one patient identity. The
// whole chart is read and written as a unit; Version advances by exactly one
// per merge that changed anything.
type Chart struct {
	IdentityID  uuid.UUID    `json:"identity_id"`
	Version     int          `json:"version"`
	NeedsReview bool         `json:"needs_review"`
	Medications []Medication `json:"medications"`
	Diagnoses   []Diagnosis  `json:"diagnoses"`
	Allergies   []Allergy    `json:"allergies"`
	Labs        []LabResult  `json:"labs"`
	Vitals      []VitalEntry `json:"vitals"`
	Goals       []Goal       `json:"goals"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewChart returns an empty chart at version zero.
func NewChart(identityID uuid.UUID) *Chart {
	return &Chart{IdentityID: identityID}
}

// Medication statuses.
const (
	MedicationActive  = "active"
	MedicationStopped = "stopped"
)

type Medication struct {
	Name       string     `json:"name"`
	Dosage     string     `json:"dosage,omitempty"`
	Frequency  string     `json:"frequency,omitempty"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	Source     string     `json:"source,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
}

type Diagnosis struct {
	Code        string     `json:"code,omitempty"`
	Description string     `json:"description"`
	Status      string     `json:"status,omitempty"`
	DiagnosedAt *time.Time `json:"diagnosed_at,omitempty"`
	Source      string     `json:"source,omitempty"`
	RecordedAt  time.Time  `json:"recorded_at"`
}

type Allergy struct {
	Substance  string    `json:"substance"`
	Reaction   string    `json:"reaction,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	Source     string    `json:"source,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

type LabResult struct {
	TestName    string    `json:"test_name"`
	Value       string    `json:"value"`
	Unit        string    `json:"unit,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
	Source      string    `json:"source,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type VitalEntry struct {
	Kind       string    `json:"kind"`
	Value      string    `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	MeasuredAt time.Time `json:"measured_at"`
	Source     string    `json:"source,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Goal statuses.
const (
	GoalActive     = "active"
	GoalSuperseded = "superseded"
)

type Goal struct {
	Category   string    `json:"category,omitempty"`
	Text       string    `json:"text"`
	Status     string    `json:"status"`
	SetAt      time.Time `json:"set_at"`
	Source     string    `json:"source,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// LatestVitals returns the most recent entry per vital kind.
func (c *Chart) LatestVitals() map[string]VitalEntry {
	latest := make(map[string]VitalEntry)
	for _, v := range c.Vitals {
		cur, ok := latest[v.Kind]
		if !ok || !v.MeasuredAt.Before(cur.MeasuredAt) {
			latest[v.Kind] = v
		}
	}
	return latest
}

// LatestLabs returns the most recent result per test name.
func (c *Chart) LatestLabs() map[string]LabResult {
	latest := make(map[string]LabResult)
	for _, l := range c.Labs {
		cur, ok := latest[l.TestName]
		if !ok || !l.CollectedAt.Before(cur.CollectedAt) {
			latest[l.TestName] = l
		}
	}
	return latest
}
