package chart

import (
	"fmt"

	"github.com/medintake/registry/internal/domain/identifier"
)

// Section names reported in merge results.
const (
	SectionMedications = "medications"
	SectionDiagnoses   = "diagnoses"
	SectionAllergies   = "allergies"
	SectionLabs        = "labs"
	SectionVitals      = "vitals"
	SectionGoals       = "goals"
)

type foldResult struct {
	sections  []string
	conflicts []string
}

func (r *foldResult) changed() bool { return len(r.sections) > 0 }

func (r *foldResult) mark(section string) {
	for _, s := range r.sections {
		if s == section {
			return
		}
	}
	r.sections = append(r.sections, section)
}

func normKey(s string) string { return identifier.NormalizeName(s) }

// fold applies sanitized entries to the chart under the per-section merge
// policies. It mutates c and reports which sections changed and any
// conflicts that need human review.
func fold(c *Chart, in sanitized) foldResult {
	var res foldResult
	foldMedications(c, in.medications, &res)
	foldDiagnoses(c, in.diagnoses, &res)
	foldAllergies(c, in.allergies, &res)
	foldLabs(c, in.labs, &res)
	foldVitals(c, in.vitals, &res)
	foldGoals(c, in.goals, &res)
	if len(res.conflicts) > 0 {
		c.NeedsReview = true
	}
	return res
}

// Medications dedup on normalized name + dosage + frequency. The same drug
// arriving with a different dosage is kept as a second entry and flagged,
// never silently collapsed.
func foldMedications(c *Chart, incoming []Medication, res *foldResult) {
	type medKey struct{ name, dosage, frequency string }
	seen := make(map[medKey]bool, len(c.Medications))
	byName := make(map[string]Medication)
	for _, m := range c.Medications {
		seen[medKey{normKey(m.Name), normKey(m.Dosage), normKey(m.Frequency)}] = true
		if m.Status == MedicationActive {
			byName[normKey(m.Name)] = m
		}
	}
	for _, m := range incoming {
		k := medKey{normKey(m.Name), normKey(m.Dosage), normKey(m.Frequency)}
		if seen[k] {
			continue
		}
		if existing, ok := byName[k.name]; ok && m.Status == MedicationActive && normKey(existing.Dosage) != k.dosage {
			res.conflicts = append(res.conflicts, fmt.Sprintf(
				"medication %q: dosage %q conflicts with existing %q", m.Name, m.Dosage, existing.Dosage))
		}
		c.Medications = append(c.Medications, m)
		seen[k] = true
		if m.Status == MedicationActive {
			byName[k.name] = m
		}
		res.mark(SectionMedications)
	}
}

// Diagnoses dedup on code when present, normalized description otherwise.
func foldDiagnoses(c *Chart, incoming []Diagnosis, res *foldResult) {
	seen := make(map[string]bool, len(c.Diagnoses))
	for _, d := range c.Diagnoses {
		seen[diagnosisKey(d)] = true
	}
	for _, d := range incoming {
		k := diagnosisKey(d)
		if seen[k] {
			continue
		}
		c.Diagnoses = append(c.Diagnoses, d)
		seen[k] = true
		res.mark(SectionDiagnoses)
	}
}

func diagnosisKey(d Diagnosis) string {
	if d.Code != "" {
		return "code:" + normKey(d.Code)
	}
	return "desc:" + normKey(d.Description)
}

func foldAllergies(c *Chart, incoming []Allergy, res *foldResult) {
	seen := make(map[string]bool, len(c.Allergies))
	for _, a := range c.Allergies {
		seen[normKey(a.Substance)] = true
	}
	for _, a := range incoming {
		k := normKey(a.Substance)
		if seen[k] {
			continue
		}
		c.Allergies = append(c.Allergies, a)
		seen[k] = true
		res.mark(SectionAllergies)
	}
}

// Labs are append-only history; only a byte-identical repeat is skipped.
func foldLabs(c *Chart, incoming []LabResult, res *foldResult) {
	type labKey struct {
		name, value, unit string
		collected         int64
	}
	seen := make(map[labKey]bool, len(c.Labs))
	for _, l := range c.Labs {
		seen[labKey{normKey(l.TestName), l.Value, l.Unit, l.CollectedAt.Unix()}] = true
	}
	for _, l := range incoming {
		k := labKey{normKey(l.TestName), l.Value, l.Unit, l.CollectedAt.Unix()}
		if seen[k] {
			continue
		}
		c.Labs = append(c.Labs, l)
		seen[k] = true
		res.mark(SectionLabs)
	}
}

func foldVitals(c *Chart, incoming []VitalEntry, res *foldResult) {
	type vitalKey struct {
		kind, value string
		measured    int64
	}
	seen := make(map[vitalKey]bool, len(c.Vitals))
	for _, v := range c.Vitals {
		seen[vitalKey{normKey(v.Kind), v.Value, v.MeasuredAt.Unix()}] = true
	}
	for _, v := range incoming {
		k := vitalKey{normKey(v.Kind), v.Value, v.MeasuredAt.Unix()}
		if seen[k] {
			continue
		}
		c.Vitals = append(c.Vitals, v)
		seen[k] = true
		res.mark(SectionVitals)
	}
}

// Goals append; a new goal in the same category with different text
// supersedes the old active goal and flags the chart for review.
func foldGoals(c *Chart, incoming []Goal, res *foldResult) {
	for _, g := range incoming {
		duplicate := false
		for _, existing := range c.Goals {
			if existing.Status == GoalActive &&
				normKey(existing.Category) == normKey(g.Category) &&
				normKey(existing.Text) == normKey(g.Text) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		if g.Category != "" {
			for i := range c.Goals {
				old := &c.Goals[i]
				if old.Status == GoalActive && normKey(old.Category) == normKey(g.Category) {
					old.Status = GoalSuperseded
					res.conflicts = append(res.conflicts, fmt.Sprintf(
						"goal %q supersedes active goal %q in category %q", g.Text, old.Text, g.Category))
				}
			}
		}
		c.Goals = append(c.Goals, g)
		res.mark(SectionGoals)
	}
}
