package linking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medintake/registry/internal/domain/matching"
)

type pairKey struct {
	eventID    string
	identityID uuid.UUID
}

type mockRepo struct {
	records map[pairKey]*LinkRecord
	order   []pairKey
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[pairKey]*LinkRecord)}
}

func (m *mockRepo) Create(_ context.Context, r *LinkRecord) (*LinkRecord, error) {
	k := pairKey{r.EventID, r.IdentityID}
	if existing, ok := m.records[k]; ok {
		return existing, nil
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	cp := *r
	m.records[k] = &cp
	m.order = append(m.order, k)
	return &cp, nil
}

func (m *mockRepo) ListByIdentity(_ context.Context, identityID uuid.UUID) ([]*LinkRecord, error) {
	var out []*LinkRecord
	for _, k := range m.order {
		if k.identityID == identityID {
			cp := *m.records[k]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) RepointIdentity(_ context.Context, from, to uuid.UUID) (int, error) {
	moved := 0
	for i, k := range m.order {
		if k.identityID != from {
			continue
		}
		if _, taken := m.records[pairKey{k.eventID, to}]; taken {
			continue
		}
		rec := m.records[k]
		rec.IdentityID = to
		delete(m.records, k)
		nk := pairKey{k.eventID, to}
		m.records[nk] = rec
		m.order[i] = nk
		moved++
	}
	return moved, nil
}

type mockDirectory struct {
	records map[uuid.UUID]matching.Record
}

func newMockDirectory(records ...matching.Record) *mockDirectory {
	d := &mockDirectory{records: make(map[uuid.UUID]matching.Record)}
	for _, r := range records {
		d.records[r.ID] = r
	}
	return d
}

func (d *mockDirectory) ActiveBetween(_ context.Context, from, to time.Time) ([]matching.Record, error) {
	var out []matching.Record
	for _, r := range d.records {
		if !r.LastActivityAt.Before(from) && !r.LastActivityAt.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d *mockDirectory) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := d.records[id]
	return ok, nil
}

func newTestService(repo Repository, dir IdentityDirectory) *Service {
	return NewService(repo, dir, matching.NewMatcher(matching.DefaultConfig()), "1")
}

func activeRecord(phone, first, last string, activity time.Time) matching.Record {
	return matching.Record{
		ID:             uuid.New(),
		Phone:          phone,
		FirstName:      first,
		LastName:       last,
		LastActivityAt: activity,
	}
}

func TestLink_ExactPhoneInsideWindow(t *testing.T) {
	now := time.Now().UTC()
	rec := activeRecord("+18325550101", "Maria", "Garcia", now.Add(-24*time.Hour))
	repo := newMockRepo()
	svc := newTestService(repo, newMockDirectory(rec))

	link, err := svc.Link(context.Background(), Event{
		EventID:    "appt-1001",
		EventType:  EventAppointment,
		Phone:      "832-555-0101",
		OccurredAt: now,
		Source:     "scheduling",
	}, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Link() error: %v", err)
	}
	if link.IdentityID != rec.ID {
		t.Errorf("linked to %s, want %s", link.IdentityID, rec.ID)
	}
	if link.Outcome != OutcomeLinked || link.Method != matching.MethodExact {
		t.Errorf("outcome/method = %s/%s", link.Outcome, link.Method)
	}
	if link.Confidence != matching.ScorePhoneExact {
		t.Errorf("confidence = %v", link.Confidence)
	}
}

func TestLink_WindowExcludesStaleIdentity(t *testing.T) {
	now := time.Now().UTC()
	// Last activity two years ago; a 30-day window must not see it.
	stale := activeRecord("+18325550101", "Maria", "Garcia", now.Add(-2*365*24*time.Hour))
	svc := newTestService(newMockRepo(), newMockDirectory(stale))

	_, err := svc.Link(context.Background(), Event{
		EventID:    "appt-1002",
		EventType:  EventAppointment,
		Phone:      "832-555-0101",
		OccurredAt: now,
	}, 30*24*time.Hour)
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch for out-of-window identity, got %v", err)
	}
}

func TestLink_IdempotentOnEventIdentityPair(t *testing.T) {
	now := time.Now().UTC()
	rec := activeRecord("+18325550101", "Maria", "Garcia", now)
	repo := newMockRepo()
	svc := newTestService(repo, newMockDirectory(rec))

	ev := Event{EventID: "call-77", EventType: EventCall, Phone: "8325550101", OccurredAt: now}
	first, err := svc.Link(context.Background(), ev, 24*time.Hour)
	if err != nil {
		t.Fatalf("Link() error: %v", err)
	}
	second, err := svc.Link(context.Background(), ev, 24*time.Hour)
	if err != nil {
		t.Fatalf("re-Link() error: %v", err)
	}
	if first.ID != second.ID {
		t.Error("re-running the same event must return the original record")
	}
	if len(repo.records) != 1 {
		t.Errorf("records = %d, want 1", len(repo.records))
	}
}

func TestLink_ReviewBandNeedsConfirmation(t *testing.T) {
	now := time.Now().UTC()
	dob := time.Date(1985, 3, 12, 0, 0, 0, 0, time.UTC)
	rec := matching.Record{
		ID: uuid.New(), FirstName: "Maria", LastName: "Garcia",
		DOB: &dob, LastActivityAt: now,
	}
	svc := newTestService(newMockRepo(), newMockDirectory(rec))

	link, err := svc.Link(context.Background(), Event{
		EventID:    "appt-2001",
		EventType:  EventAppointment,
		FirstName:  "Maria",
		LastName:   "Garcia",
		DOB:        "1985-03-12",
		OccurredAt: now,
	}, 24*time.Hour)
	if err != nil {
		t.Fatalf("Link() error: %v", err)
	}
	if link.Outcome != OutcomeNeedsConfirmation {
		t.Errorf("outcome = %s, want needs_confirmation", link.Outcome)
	}
}

func TestLink_AmbiguousReviewCandidates(t *testing.T) {
	now := time.Now().UTC()
	dob := time.Date(1985, 3, 12, 0, 0, 0, 0, time.UTC)
	a := matching.Record{ID: uuid.New(), FirstName: "Maria", LastName: "Garcia", DOB: &dob, LastActivityAt: now}
	b := matching.Record{ID: uuid.New(), FirstName: "Maria", LastName: "Garcia", DOB: &dob, LastActivityAt: now}
	svc := newTestService(newMockRepo(), newMockDirectory(a, b))

	_, err := svc.Link(context.Background(), Event{
		EventID:    "appt-3001",
		EventType:  EventAppointment,
		FirstName:  "Maria",
		LastName:   "Garcia",
		DOB:        "1985-03-12",
		OccurredAt: now,
	}, 24*time.Hour)
	if !errors.Is(err, ErrAmbiguousMatch) {
		t.Fatalf("expected ErrAmbiguousMatch, got %v", err)
	}
}

func TestManualLink_BypassesScoring(t *testing.T) {
	now := time.Now().UTC()
	rec := activeRecord("+18325550101", "Maria", "Garcia", now)
	repo := newMockRepo()
	svc := newTestService(repo, newMockDirectory(rec))

	link, err := svc.ManualLink(context.Background(), Event{
		EventID:   "appt-4001",
		EventType: EventAppointment,
		Source:    "front_desk",
	}, rec.ID)
	if err != nil {
		t.Fatalf("ManualLink() error: %v", err)
	}
	if link.Method != matching.MethodManual || link.Outcome != OutcomeLinked {
		t.Errorf("method/outcome = %s/%s", link.Method, link.Outcome)
	}
	if link.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", link.Confidence)
	}
}

func TestManualLink_UnknownIdentity(t *testing.T) {
	svc := newTestService(newMockRepo(), newMockDirectory())
	if _, err := svc.ManualLink(context.Background(), Event{EventID: "appt-5001"}, uuid.New()); err == nil {
		t.Fatal("expected error for unknown identity")
	}
}

func TestRepoint_MovesLinksToSurvivor(t *testing.T) {
	now := time.Now().UTC()
	loser := uuid.New()
	survivor := uuid.New()
	repo := newMockRepo()
	svc := newTestService(repo, newMockDirectory())

	for _, eventID := range []string{"appt-1", "appt-2"} {
		if _, err := repo.Create(context.Background(), &LinkRecord{
			EventID: eventID, EventType: EventAppointment, IdentityID: loser,
			Method: matching.MethodExact, Outcome: OutcomeLinked, CreatedAt: now,
		}); err != nil {
			t.Fatalf("seed link: %v", err)
		}
	}
	if _, err := repo.Create(context.Background(), &LinkRecord{
		EventID: "appt-3", EventType: EventAppointment, IdentityID: survivor,
		Method: matching.MethodExact, Outcome: OutcomeLinked, CreatedAt: now,
	}); err != nil {
		t.Fatalf("seed link: %v", err)
	}

	moved, err := svc.Repoint(context.Background(), loser, survivor)
	if err != nil {
		t.Fatalf("Repoint() error: %v", err)
	}
	if moved != 2 {
		t.Errorf("moved = %d, want 2", moved)
	}
	links, _ := svc.ListLinks(context.Background(), survivor)
	if len(links) != 3 {
		t.Errorf("survivor links = %d, want 3", len(links))
	}
}
