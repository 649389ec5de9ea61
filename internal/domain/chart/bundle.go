package chart

import (
	"fmt"
	"strings"
	"time"
)

// maxFieldLen caps free-text fields coming from extraction or upload. Longer
// values are truncated, not rejected.
const maxFieldLen = 200

// Bundle is an untrusted batch of clinical entries from one source (an
// import row, a document extraction, a call transcript). Every field is a
// raw string; sanitize produces the typed entries that reach the chart.
type Bundle struct {
	Source      string             `json:"source"`
	Medications []BundleMedication `json:"medications,omitempty"`
	Diagnoses   []BundleDiagnosis  `json:"diagnoses,omitempty"`
	Allergies   []BundleAllergy    `json:"allergies,omitempty"`
	Labs        []BundleLab        `json:"labs,omitempty"`
	Vitals      []BundleVital      `json:"vitals,omitempty"`
	Goals       []BundleGoal       `json:"goals,omitempty"`
}

type BundleMedication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Status    string `json:"status,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
}

type BundleDiagnosis struct {
	Code        string `json:"code,omitempty"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
	DiagnosedAt string `json:"diagnosed_at,omitempty"`
}

type BundleAllergy struct {
	Substance string `json:"substance"`
	Reaction  string `json:"reaction,omitempty"`
	Severity  string `json:"severity,omitempty"`
}

type BundleLab struct {
	TestName    string `json:"test_name"`
	Value       string `json:"value"`
	Unit        string `json:"unit,omitempty"`
	CollectedAt string `json:"collected_at"`
}

type BundleVital struct {
	Kind       string `json:"kind"`
	Value      string `json:"value"`
	Unit       string `json:"unit,omitempty"`
	MeasuredAt string `json:"measured_at,omitempty"`
}

type BundleGoal struct {
	Category string `json:"category,omitempty"`
	Text     string `json:"text"`
	SetAt    string `json:"set_at,omitempty"`
}

var entryDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

func parseEntryDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range entryDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxFieldLen {
		// Truncate on a rune boundary so multi-byte text is never split
		// into an invalid sequence.
		if r := []rune(s); len(r) > maxFieldLen {
			s = string(r[:maxFieldLen])
		}
	}
	return s
}

// sanitized holds typed entries ready for folding, plus notes on what the
// guards dropped. Malformed entries never abort a merge.
type sanitized struct {
	medications []Medication
	diagnoses   []Diagnosis
	allergies   []Allergy
	labs        []LabResult
	vitals      []VitalEntry
	goals       []Goal
	dropped     []string
}

func (b Bundle) sanitize(now time.Time) sanitized {
	var out sanitized
	source := clean(b.Source)

	for i, m := range b.Medications {
		name := clean(m.Name)
		if name == "" {
			out.dropped = append(out.dropped, fmt.Sprintf("medication[%d]: missing name", i))
			continue
		}
		med := Medication{
			Name:       name,
			Dosage:     clean(m.Dosage),
			Frequency:  clean(m.Frequency),
			Status:     clean(m.Status),
			Source:     source,
			RecordedAt: now,
		}
		if med.Status == "" {
			med.Status = MedicationActive
		}
		if at, ok := parseEntryDate(m.StartedAt); ok {
			med.StartedAt = &at
		}
		out.medications = append(out.medications, med)
	}

	for i, d := range b.Diagnoses {
		desc := clean(d.Description)
		if desc == "" && clean(d.Code) == "" {
			out.dropped = append(out.dropped, fmt.Sprintf("diagnosis[%d]: missing code and description", i))
			continue
		}
		diag := Diagnosis{
			Code:        clean(d.Code),
			Description: desc,
			Status:      clean(d.Status),
			Source:      source,
			RecordedAt:  now,
		}
		if at, ok := parseEntryDate(d.DiagnosedAt); ok {
			diag.DiagnosedAt = &at
		}
		out.diagnoses = append(out.diagnoses, diag)
	}

	for i, a := range b.Allergies {
		substance := clean(a.Substance)
		if substance == "" {
			out.dropped = append(out.dropped, fmt.Sprintf("allergy[%d]: missing substance", i))
			continue
		}
		out.allergies = append(out.allergies, Allergy{
			Substance:  substance,
			Reaction:   clean(a.Reaction),
			Severity:   clean(a.Severity),
			Source:     source,
			RecordedAt: now,
		})
	}

	for i, l := range b.Labs {
		name := clean(l.TestName)
		if name == "" {
			out.dropped = append(out.dropped, fmt.Sprintf("lab[%d]: missing test name", i))
			continue
		}
		collected, ok := parseEntryDate(l.CollectedAt)
		if !ok {
			// Undated lab results are unusable for trending.
			out.dropped = append(out.dropped, fmt.Sprintf("lab[%d] %s: missing collection date", i, name))
			continue
		}
		out.labs = append(out.labs, LabResult{
			TestName:    name,
			Value:       clean(l.Value),
			Unit:        clean(l.Unit),
			CollectedAt: collected,
			Source:      source,
			RecordedAt:  now,
		})
	}

	for i, v := range b.Vitals {
		kind := clean(v.Kind)
		value := clean(v.Value)
		if kind == "" || value == "" {
			out.dropped = append(out.dropped, fmt.Sprintf("vital[%d]: missing kind or value", i))
			continue
		}
		measured, ok := parseEntryDate(v.MeasuredAt)
		if !ok {
			measured = now
		}
		out.vitals = append(out.vitals, VitalEntry{
			Kind:       kind,
			Value:      value,
			Unit:       clean(v.Unit),
			MeasuredAt: measured,
			Source:     source,
			RecordedAt: now,
		})
	}

	for i, g := range b.Goals {
		text := clean(g.Text)
		if text == "" {
			out.dropped = append(out.dropped, fmt.Sprintf("goal[%d]: missing text", i))
			continue
		}
		setAt, ok := parseEntryDate(g.SetAt)
		if !ok {
			setAt = now
		}
		out.goals = append(out.goals, Goal{
			Category:   clean(g.Category),
			Text:       text,
			Status:     GoalActive,
			SetAt:      setAt,
			Source:     source,
			RecordedAt: now,
		})
	}

	return out
}

// ChartToBundle renders a chart back into bundle form so the reconciler can
// fold a losing identity's chart into the survivor through the same merge
// policies a fresh source goes through.
func ChartToBundle(c *Chart, source string) Bundle {
	b := Bundle{Source: source}
	for _, m := range c.Medications {
		bm := BundleMedication{Name: m.Name, Dosage: m.Dosage, Frequency: m.Frequency, Status: m.Status}
		if m.StartedAt != nil {
			bm.StartedAt = m.StartedAt.Format(time.RFC3339)
		}
		b.Medications = append(b.Medications, bm)
	}
	for _, d := range c.Diagnoses {
		bd := BundleDiagnosis{Code: d.Code, Description: d.Description, Status: d.Status}
		if d.DiagnosedAt != nil {
			bd.DiagnosedAt = d.DiagnosedAt.Format(time.RFC3339)
		}
		b.Diagnoses = append(b.Diagnoses, bd)
	}
	for _, a := range c.Allergies {
		b.Allergies = append(b.Allergies, BundleAllergy{Substance: a.Substance, Reaction: a.Reaction, Severity: a.Severity})
	}
	for _, l := range c.Labs {
		b.Labs = append(b.Labs, BundleLab{
			TestName:    l.TestName,
			Value:       l.Value,
			Unit:        l.Unit,
			CollectedAt: l.CollectedAt.Format(time.RFC3339),
		})
	}
	for _, v := range c.Vitals {
		b.Vitals = append(b.Vitals, BundleVital{
			Kind:       v.Kind,
			Value:      v.Value,
			Unit:       v.Unit,
			MeasuredAt: v.MeasuredAt.Format(time.RFC3339),
		})
	}
	for _, g := range c.Goals {
		if g.Status != GoalActive {
			continue
		}
		b.Goals = append(b.Goals, BundleGoal{Category: g.Category, Text: g.Text, SetAt: g.SetAt.Format(time.RFC3339)})
	}
	return b
}
