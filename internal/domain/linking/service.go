package linking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medintake/registry/internal/domain/identifier"
	"github.com/medintake/registry/internal/domain/matching"
)

// ErrNoMatch means no identity scored above the floor inside the window.
// Callers treat it as a normal outcome, not a failure.
var ErrNoMatch = errors.New("no matching identity in window")

// ErrAmbiguousMatch means several candidates landed in the manual-review
// band with no clear winner. The event goes to a review queue; the linker
// never picks one.
var ErrAmbiguousMatch = errors.New("multiple review-band candidates")

// IdentityDirectory is the slice of the identity domain the linker needs.
// An adapter over identity.Repository is wired in main.
type IdentityDirectory interface {
	ActiveBetween(ctx context.Context, from, to time.Time) ([]matching.Record, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo        Repository
	directory   IdentityDirectory
	matcher     *matching.Matcher
	countryCode string
}

func NewService(repo Repository, directory IdentityDirectory, matcher *matching.Matcher, countryCode string) *Service {
	return &Service{repo: repo, directory: directory, matcher: matcher, countryCode: countryCode}
}

// Link matches an event against identities active inside the search window
// around the event time and writes the link record. The window keeps stale
// identities from winning on weak evidence. Exactly one record exists per
// (event, identity); re-linking the same pair is a no-op.
func (s *Service) Link(ctx context.Context, ev Event, window time.Duration) (*LinkRecord, error) {
	q, err := s.normalize(ev)
	if err != nil {
		return nil, err
	}

	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	pool, err := s.directory.ActiveBetween(ctx, occurred.Add(-window), occurred.Add(window))
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", ev.EventID, err)
	}

	ranked := s.matcher.Rank(q, pool)
	if len(ranked) == 0 {
		return nil, ErrNoMatch
	}

	best := ranked[0]
	switch s.matcher.ClassifyScore(best.Score) {
	case matching.BandAuto:
		return s.write(ctx, ev, best.ID, best.Method, best.IdentifierType, best.Score, OutcomeLinked)
	case matching.BandReview:
		if len(ranked) > 1 && s.matcher.ClassifyScore(ranked[1].Score) == matching.BandReview {
			return nil, ErrAmbiguousMatch
		}
		return s.write(ctx, ev, best.ID, best.Method, best.IdentifierType, best.Score, OutcomeNeedsConfirmation)
	default:
		return nil, ErrNoMatch
	}
}

// ManualLink records a forced link that bypasses scoring.
func (s *Service) ManualLink(ctx context.Context, ev Event, identityID uuid.UUID) (*LinkRecord, error) {
	ok, err := s.directory.Exists(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("manual link %s: %w", ev.EventID, err)
	}
	if !ok {
		return nil, fmt.Errorf("manual link %s: identity %s not found", ev.EventID, identityID)
	}
	return s.write(ctx, ev, identityID, matching.MethodManual, "", 1.0, OutcomeLinked)
}

// Record appends an externally decided audit entry (the resolver's
// attach/create decisions arrive through here).
func (s *Service) Record(ctx context.Context, rec *LinkRecord) (*LinkRecord, error) {
	return s.repo.Create(ctx, rec)
}

// ListLinks returns the audit trail for an identity, oldest first.
func (s *Service) ListLinks(ctx context.Context, identityID uuid.UUID) ([]*LinkRecord, error) {
	return s.repo.ListByIdentity(ctx, identityID)
}

// Repoint moves an identity's links to its merge survivor.
func (s *Service) Repoint(ctx context.Context, from, to uuid.UUID) (int, error) {
	return s.repo.RepointIdentity(ctx, from, to)
}

func (s *Service) write(ctx context.Context, ev Event, identityID uuid.UUID, method, identType string, confidence float64, outcome string) (*LinkRecord, error) {
	rec := &LinkRecord{
		EventID:        ev.EventID,
		EventType:      ev.EventType,
		IdentityID:     identityID,
		IdentifierType: identType,
		Confidence:     confidence,
		Method:         method,
		Outcome:        outcome,
		Source:         ev.Source,
	}
	stored, err := s.repo.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", ev.EventID, err)
	}
	return stored, nil
}

func (s *Service) normalize(ev Event) (matching.Query, error) {
	var q matching.Query
	var err error
	if ev.Phone != "" {
		if q.Phone, err = identifier.NormalizePhone(ev.Phone, s.countryCode); err != nil {
			return q, err
		}
	}
	if ev.MRN != "" {
		if q.MRN, err = identifier.NormalizeMRN(ev.MRN); err != nil {
			return q, err
		}
	}
	if ev.ShortID != "" {
		if q.ShortID, err = identifier.NormalizeShortID(ev.ShortID); err != nil {
			return q, err
		}
	}
	if ev.DOB != "" {
		dob, err := identifier.NormalizeDOB(ev.DOB)
		if err != nil {
			return q, err
		}
		q.DOB = &dob
	}
	q.FirstName = ev.FirstName
	q.LastName = ev.LastName
	return q, nil
}
