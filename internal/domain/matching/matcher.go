// Package matching ranks known patient identities against a partial set of
// identifiers and demographics, producing confidence scores in [0,1].
// Scoring is deterministic: the same query against the same pool always
// yields the same ranking.
package matching

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/medintake/registry/internal/domain/identifier"
)

// Score levels, highest wins.
const (
	ScorePhoneExact    = 1.0
	ScoreMRNExact      = 0.95
	ScoreNameDOBExact  = 0.7
	ScoreNameDOBFuzzy  = 0.5
	ScoreLastNameExact = 0.3
	ScoreNameFuzzy     = 0.2
)

// fuzzyNameFloor is the minimum similarity for a first name to count as a
// fuzzy match.
const fuzzyNameFloor = 0.8

// Identifier types recorded on match results and link audit entries.
const (
	IdentTypePhone   = "phone"
	IdentTypeMRN     = "mrn"
	IdentTypeShortID = "short_id"
	IdentTypeName    = "name"
)

// Match methods.
const (
	MethodExact  = "exact"
	MethodFuzzy  = "fuzzy"
	MethodManual = "manual"
)

// Band classifies a confidence score against the configured thresholds.
type Band int

const (
	BandNoMatch Band = iota
	BandReview
	BandAuto
)

// Record is the matcher's view of a known identity. Identifier fields are
// canonical forms; names are normalized internally.
type Record struct {
	ID             uuid.UUID
	Phone          string
	SecondaryPhone string
	MRN            string
	ShortID        string
	FirstName      string
	LastName       string
	DOB            *time.Time
	LastActivityAt time.Time
}

// Query is a partial identifier set to match against the pool. Identifier
// fields must already be canonical.
type Query struct {
	Phone     string
	MRN       string
	ShortID   string
	FirstName string
	LastName  string
	DOB       *time.Time
}

// Match is one scored candidate.
type Match struct {
	ID             uuid.UUID
	Score          float64
	Method         string
	IdentifierType string
}

// Config carries the scoring thresholds and the pluggable name similarity.
// Floor is the minimum score for a record to appear in a ranking at all;
// when zero it defaults to the review threshold.
type Config struct {
	AutoThreshold   float64
	ReviewThreshold float64
	Floor           float64
	Similarity      Similarity
}

// DefaultConfig matches the production thresholds: >=0.9 auto-attach,
// [0.3,0.9) manual review, <0.3 no match.
func DefaultConfig() Config {
	return Config{
		AutoThreshold:   0.9,
		ReviewThreshold: 0.3,
		Floor:           0.3,
		Similarity:      LevenshteinSimilarity{},
	}
}

type Matcher struct {
	cfg Config
}

func NewMatcher(cfg Config) *Matcher {
	if cfg.Similarity == nil {
		cfg.Similarity = LevenshteinSimilarity{}
	}
	if cfg.Floor <= 0 {
		cfg.Floor = cfg.ReviewThreshold
	}
	return &Matcher{cfg: cfg}
}

// Rank scores every pool record against the query and returns candidates at
// or above the candidate floor, best first. Ties break on most recent
// activity, then on ID so the ordering is total.
func (m *Matcher) Rank(q Query, pool []Record) []Match {
	qFirst := identifier.NormalizeName(q.FirstName)
	qLast := identifier.NormalizeName(q.LastName)

	var out []Match
	for _, r := range pool {
		match := m.score(q, qFirst, qLast, r)
		if match.Score >= m.cfg.Floor {
			out = append(out, match)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		ai := activityOf(pool, out[i].ID)
		aj := activityOf(pool, out[j].ID)
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Best returns the top candidate, or ok=false when nothing clears the
// candidate floor.
func (m *Matcher) Best(q Query, pool []Record) (Match, bool) {
	ranked := m.Rank(q, pool)
	if len(ranked) == 0 {
		return Match{}, false
	}
	return ranked[0], true
}

// ClassifyScore places a confidence score into the auto / review / no-match band.
func (m *Matcher) ClassifyScore(score float64) Band {
	switch {
	case score >= m.cfg.AutoThreshold:
		return BandAuto
	case score >= m.cfg.ReviewThreshold:
		return BandReview
	default:
		return BandNoMatch
	}
}

func (m *Matcher) score(q Query, qFirst, qLast string, r Record) Match {
	best := Match{ID: r.ID}

	if q.Phone != "" && (q.Phone == r.Phone || q.Phone == r.SecondaryPhone) {
		return Match{ID: r.ID, Score: ScorePhoneExact, Method: MethodExact, IdentifierType: IdentTypePhone}
	}
	if q.MRN != "" && q.MRN == r.MRN {
		return Match{ID: r.ID, Score: ScoreMRNExact, Method: MethodExact, IdentifierType: IdentTypeMRN}
	}
	if q.ShortID != "" && q.ShortID == r.ShortID {
		return Match{ID: r.ID, Score: ScoreMRNExact, Method: MethodExact, IdentifierType: IdentTypeShortID}
	}

	rFirst := identifier.NormalizeName(r.FirstName)
	rLast := identifier.NormalizeName(r.LastName)
	dobEqual := q.DOB != nil && r.DOB != nil && q.DOB.Equal(*r.DOB)

	if qFirst != "" && qLast != "" && qFirst == rFirst && qLast == rLast && dobEqual {
		return Match{ID: r.ID, Score: ScoreNameDOBExact, Method: MethodExact, IdentifierType: IdentTypeName}
	}
	if qLast != "" && qLast == rLast && dobEqual && m.cfg.Similarity.Score(qFirst, rFirst) >= fuzzyNameFloor {
		return Match{ID: r.ID, Score: ScoreNameDOBFuzzy, Method: MethodFuzzy, IdentifierType: IdentTypeName}
	}
	if qLast != "" && qLast == rLast {
		// An exact surname alone sits at the bottom of the review band:
		// enough to flag the created identity for manual linking, never
		// enough to attach.
		return Match{ID: r.ID, Score: ScoreLastNameExact, Method: MethodFuzzy, IdentifierType: IdentTypeName}
	}
	if qLast != "" && rLast != "" {
		lastSim := m.cfg.Similarity.Score(qLast, rLast)
		firstSim := m.cfg.Similarity.Score(qFirst, rFirst)
		if lastSim >= fuzzyNameFloor && (qFirst == "" || firstSim >= fuzzyNameFloor) {
			best = Match{ID: r.ID, Score: ScoreNameFuzzy, Method: MethodFuzzy, IdentifierType: IdentTypeName}
		}
	}
	return best
}

func activityOf(pool []Record, id uuid.UUID) time.Time {
	for i := range pool {
		if pool[i].ID == id {
			return pool[i].LastActivityAt
		}
	}
	return time.Time{}
}
