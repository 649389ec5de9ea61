package matching

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func dob(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func testPool() []Record {
	return []Record{
		{
			ID:             uuid.MustParse("11111111-1111-1111-1111-111111111111"),
			Phone:          "+18325550101",
			MRN:            "MRN0001",
			FirstName:      "Maria",
			LastName:       "Garcia",
			DOB:            dob(1985, 3, 12),
			LastActivityAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:             uuid.MustParse("22222222-2222-2222-2222-222222222222"),
			Phone:          "+18325550202",
			MRN:            "MRN0002",
			FirstName:      "John",
			LastName:       "Smith",
			DOB:            dob(1970, 7, 4),
			LastActivityAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestRank_PhoneExactWins(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	best, ok := m.Best(Query{Phone: "+18325550101", LastName: "Smith"}, testPool())
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Score != ScorePhoneExact {
		t.Errorf("score = %v, want %v", best.Score, ScorePhoneExact)
	}
	if best.IdentifierType != IdentTypePhone || best.Method != MethodExact {
		t.Errorf("got %s/%s, want phone/exact", best.IdentifierType, best.Method)
	}
}

func TestRank_MRNExact(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	best, ok := m.Best(Query{MRN: "MRN0002"}, testPool())
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Score != ScoreMRNExact {
		t.Errorf("score = %v, want %v", best.Score, ScoreMRNExact)
	}
	if m.ClassifyScore(best.Score) != BandAuto {
		t.Error("MRN exact match should land in the auto band")
	}
}

func TestRank_NameAndDOB(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	best, ok := m.Best(Query{FirstName: "maria", LastName: "GARCIA", DOB: dob(1985, 3, 12)}, testPool())
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Score != ScoreNameDOBExact {
		t.Errorf("score = %v, want %v", best.Score, ScoreNameDOBExact)
	}
	if m.ClassifyScore(best.Score) != BandReview {
		t.Error("name+DOB match should require manual review")
	}
}

func TestRank_FuzzyFirstNameWithDOB(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	// One-letter typo in the first name.
	best, ok := m.Best(Query{FirstName: "Mario", LastName: "Garcia", DOB: dob(1985, 3, 12)}, testPool())
	if !ok {
		t.Fatal("expected a match")
	}
	if best.Score != ScoreNameDOBFuzzy {
		t.Errorf("score = %v, want %v", best.Score, ScoreNameDOBFuzzy)
	}
	if best.Method != MethodFuzzy {
		t.Errorf("method = %s, want fuzzy", best.Method)
	}
}

func TestRank_ExactSurnameLandsInReviewBand(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	// Same surname, unrelated first name, no DOB or shared identifier.
	best, ok := m.Best(Query{FirstName: "Josefina", LastName: "Garcia"}, testPool())
	if !ok {
		t.Fatal("expected a candidate")
	}
	if best.Score != ScoreLastNameExact {
		t.Errorf("score = %v, want %v", best.Score, ScoreLastNameExact)
	}
	if best.Method != MethodFuzzy || best.IdentifierType != IdentTypeName {
		t.Errorf("got %s/%s, want name/fuzzy", best.IdentifierType, best.Method)
	}
	if m.ClassifyScore(best.Score) != BandReview {
		t.Error("exact surname alone must land in the review band, never auto")
	}
}

func TestRank_FuzzySurnameOnlyBelowFloor(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	// Near-miss surname without DOB scores 0.2, under the default floor.
	ranked := m.Rank(Query{FirstName: "Maria", LastName: "Garzia"}, testPool())
	if len(ranked) != 0 {
		t.Errorf("fuzzy surname alone is below the candidate floor, got %d candidates", len(ranked))
	}
}

func TestRank_LoweredFloorSurfacesWeakCandidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Floor = 0.1
	m := NewMatcher(cfg)
	ranked := m.Rank(Query{FirstName: "Maria", LastName: "Garzia"}, testPool())
	if len(ranked) != 1 {
		t.Fatalf("expected the 0.2 candidate above a 0.1 floor, got %d", len(ranked))
	}
	if m.ClassifyScore(ranked[0].Score) != BandNoMatch {
		t.Error("a sub-review candidate is still classified no-match")
	}
}

func TestNewMatcher_FloorDefaultsToReviewThreshold(t *testing.T) {
	m := NewMatcher(Config{AutoThreshold: 0.9, ReviewThreshold: 0.4})
	ranked := m.Rank(Query{FirstName: "Josefina", LastName: "Garcia"}, testPool())
	if len(ranked) != 0 {
		t.Errorf("0.3 candidate must not clear an implied 0.4 floor, got %d", len(ranked))
	}
}

func TestRank_Deterministic(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	q := Query{FirstName: "Maria", LastName: "Garcia", DOB: dob(1985, 3, 12)}
	pool := testPool()
	first := m.Rank(q, pool)
	for i := 0; i < 10; i++ {
		again := m.Rank(q, pool)
		if len(again) != len(first) {
			t.Fatalf("run %d: length %d != %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("run %d: ranking changed at %d: %+v vs %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestRank_TieBreaksOnActivity(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	shared := dob(1990, 1, 1)
	older := Record{
		ID: uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		FirstName: "Ana", LastName: "Reyes", DOB: shared,
		LastActivityAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := Record{
		ID: uuid.MustParse("44444444-4444-4444-4444-444444444444"),
		FirstName: "Ana", LastName: "Reyes", DOB: shared,
		LastActivityAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	ranked := m.Rank(Query{FirstName: "Ana", LastName: "Reyes", DOB: shared}, []Record{older, newer})
	if len(ranked) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(ranked))
	}
	if ranked[0].ID != newer.ID {
		t.Error("most recently active identity should win the tie")
	}
}

func TestSoundex(t *testing.T) {
	cases := map[string]string{
		"Robert": "R163",
		"Rupert": "R163",
		"Smith":  "S530",
		"Smyth":  "S530",
	}
	for in, want := range cases {
		if got := soundex(in); got != want {
			t.Errorf("soundex(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLevenshteinSimilarity(t *testing.T) {
	sim := LevenshteinSimilarity{}
	if got := sim.Score("maria", "maria"); got != 1 {
		t.Errorf("identical strings: got %v", got)
	}
	if got := sim.Score("maria", "mario"); got < 0.79 || got > 0.81 {
		t.Errorf("one edit over five chars: got %v, want 0.8", got)
	}
	if got := sim.Score("", "maria"); got != 0 {
		t.Errorf("empty string: got %v", got)
	}
}
