package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medintake/registry/internal/domain/identifier"
	"github.com/medintake/registry/internal/domain/matching"
)

// LinkDecision is the audit payload written for every resolve outcome.
type LinkDecision struct {
	EventRef       string
	Source         string
	IdentityID     uuid.UUID
	IdentifierType string
	Confidence     float64
	Method         string
	Outcome        string
	At             time.Time
}

// LinkAuditor records resolve decisions in the link audit trail. The concrete
// implementation lives in the linking domain; an adapter is wired in main.
type LinkAuditor interface {
	RecordDecision(ctx context.Context, d LinkDecision) error
}

type Service struct {
	repo        Repository
	matcher     *matching.Matcher
	auditor     LinkAuditor
	countryCode string
	logger      zerolog.Logger
}

func NewService(repo Repository, matcher *matching.Matcher, countryCode string, logger zerolog.Logger) *Service {
	if countryCode == "" {
		countryCode = identifier.DefaultCountryCode
	}
	return &Service{repo: repo, matcher: matcher, countryCode: countryCode, logger: logger}
}

// SetAuditor wires the link audit trail. Optional; resolution works without it.
func (s *Service) SetAuditor(a LinkAuditor) { s.auditor = a }

// Resolve finds or creates the canonical identity for an intake record.
// Weak evidence never merges: a candidate in the manual-review band yields a
// new provisional identity flagged for review instead of an attach. A
// creation that loses a uniqueness race is retried as a fresh resolution
// against the now-visible winning row.
func (s *Service) Resolve(ctx context.Context, in Intake) (*Resolution, error) {
	q, norm, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	const raceRetries = 1
	for attempt := 0; ; attempt++ {
		res, err := s.resolveOnce(ctx, in, q, norm)
		if errors.Is(err, ErrDuplicateIdentifier) && attempt < raceRetries {
			continue
		}
		return res, err
	}
}

// normalized holds the canonical forms of an intake's fields.
type normalized struct {
	phone   string
	mrn     string
	shortID string
	dob     *time.Time
}

func (s *Service) normalize(in Intake) (matching.Query, normalized, error) {
	var n normalized
	var err error

	if in.Phone != "" {
		if n.phone, err = identifier.NormalizePhone(in.Phone, s.countryCode); err != nil {
			return matching.Query{}, n, err
		}
	}
	if in.MRN != "" {
		if n.mrn, err = identifier.NormalizeMRN(in.MRN); err != nil {
			return matching.Query{}, n, err
		}
	}
	if in.ShortID != "" {
		if n.shortID, err = identifier.NormalizeShortID(in.ShortID); err != nil {
			return matching.Query{}, n, err
		}
	}
	if in.DOB != "" {
		dob, err := identifier.NormalizeDOB(in.DOB)
		if err != nil {
			return matching.Query{}, n, err
		}
		n.dob = &dob
	}

	q := matching.Query{
		Phone:     n.phone,
		MRN:       n.mrn,
		ShortID:   n.shortID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		DOB:       n.dob,
	}
	return q, n, nil
}

func (s *Service) resolveOnce(ctx context.Context, in Intake, q matching.Query, n normalized) (*Resolution, error) {
	pool, err := s.repo.CandidatePool(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	best, found := s.matcher.Best(q, toRecords(pool))
	if found {
		switch s.matcher.ClassifyScore(best.Score) {
		case matching.BandAuto:
			return s.attach(ctx, in, best, pool, n)
		case matching.BandReview:
			return s.createProvisional(ctx, in, n, &best)
		}
	}
	return s.createProvisional(ctx, in, n, nil)
}

// attach binds the intake to an existing identity. An exact-identifier match
// promotes a provisional identity to confirmed. Identifiers the intake
// carries that the identity lacks are filled in.
func (s *Service) attach(ctx context.Context, in Intake, m matching.Match, pool []*PatientIdentity, n normalized) (*Resolution, error) {
	var ident *PatientIdentity
	for _, p := range pool {
		if p.ID == m.ID {
			ident = p
			break
		}
	}
	if ident == nil {
		return nil, fmt.Errorf("resolve: matched identity %s missing from pool", m.ID)
	}

	changed := s.enrich(ident, n, in)
	if ident.State == StateProvisional && m.Method == matching.MethodExact {
		ident.State = StateConfirmed
		changed = true
	}
	now := time.Now().UTC()
	ident.LastActivityAt = now
	if changed {
		if err := s.repo.Update(ctx, ident); err != nil {
			return nil, fmt.Errorf("resolve attach: %w", err)
		}
	} else if err := s.repo.TouchActivity(ctx, ident.ID, now); err != nil {
		return nil, fmt.Errorf("resolve attach: %w", err)
	}

	s.audit(ctx, in, ident.ID, m.IdentifierType, m.Score, m.Method, OutcomeAttached)
	return &Resolution{Identity: ident, Confidence: m.Score, Outcome: OutcomeAttached}, nil
}

func (s *Service) createProvisional(ctx context.Context, in Intake, n normalized, reviewOf *matching.Match) (*Resolution, error) {
	ident := &PatientIdentity{
		State:      StateProvisional,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		DOB:        n.dob,
		CreatedVia: in.Source,
	}
	if n.phone != "" {
		ident.Phone = &n.phone
	}
	if n.mrn != "" {
		ident.MRN = &n.mrn
	}
	if n.shortID != "" {
		ident.ShortID = &n.shortID
	}

	outcome := OutcomeCreated
	confidence := 0.0
	method := matching.MethodExact
	identType := ""
	if reviewOf != nil {
		ident.NeedsManualLinking = true
		candidateID := reviewOf.ID
		ident.ReviewCandidateID = &candidateID
		outcome = OutcomeManualReview
		confidence = reviewOf.Score
		method = reviewOf.Method
		identType = reviewOf.IdentifierType
	}

	if err := s.repo.Create(ctx, ident); err != nil {
		return nil, err
	}

	s.audit(ctx, in, ident.ID, identType, confidence, method, outcome)
	return &Resolution{Identity: ident, Confidence: confidence, Created: true, Outcome: outcome}, nil
}

// enrich copies canonical identifiers the intake carries onto an identity
// that lacks them. A differing phone lands in the secondary slot; existing
// values are never overwritten.
func (s *Service) enrich(ident *PatientIdentity, n normalized, in Intake) bool {
	changed := false
	if n.phone != "" {
		switch {
		case ident.Phone == nil || *ident.Phone == "":
			ident.Phone = &n.phone
			changed = true
		case *ident.Phone != n.phone && (ident.SecondaryPhone == nil || *ident.SecondaryPhone == ""):
			ident.SecondaryPhone = &n.phone
			changed = true
		}
	}
	if n.mrn != "" && (ident.MRN == nil || *ident.MRN == "") {
		ident.MRN = &n.mrn
		changed = true
	}
	if n.shortID != "" && (ident.ShortID == nil || *ident.ShortID == "") {
		ident.ShortID = &n.shortID
		changed = true
	}
	if n.dob != nil && ident.DOB == nil {
		ident.DOB = n.dob
		changed = true
	}
	if ident.FirstName == "" && in.FirstName != "" {
		ident.FirstName = in.FirstName
		changed = true
	}
	if ident.LastName == "" && in.LastName != "" {
		ident.LastName = in.LastName
		changed = true
	}
	return changed
}

// Get returns an identity, following the forwarding pointer of merged
// tombstones so callers always land on the survivor.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*PatientIdentity, error) {
	const maxHops = 10
	for hop := 0; hop < maxHops; hop++ {
		p, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.State != StateMerged || p.MergedInto == nil {
			return p, nil
		}
		id = *p.MergedInto
	}
	return nil, fmt.Errorf("identity %s: forwarding chain too deep", id)
}

// GetRaw returns the stored row without following forwarding pointers.
func (s *Service) GetRaw(ctx context.Context, id uuid.UUID) (*PatientIdentity, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) audit(ctx context.Context, in Intake, id uuid.UUID, identType string, confidence float64, method, outcome string) {
	if s.auditor == nil {
		return
	}
	// Audit failures never fail the resolution itself.
	err := s.auditor.RecordDecision(ctx, LinkDecision{
		EventRef:       in.SourceRef,
		Source:         in.Source,
		IdentityID:     id,
		IdentifierType: identType,
		Confidence:     confidence,
		Method:         method,
		Outcome:        outcome,
		At:             time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("identity_id", id.String()).
			Str("outcome", outcome).
			Msg("link audit write failed")
	}
}

func toRecords(pool []*PatientIdentity) []matching.Record {
	records := make([]matching.Record, 0, len(pool))
	for _, p := range pool {
		r := matching.Record{
			ID:             p.ID,
			FirstName:      p.FirstName,
			LastName:       p.LastName,
			DOB:            p.DOB,
			LastActivityAt: p.LastActivityAt,
		}
		if p.Phone != nil {
			r.Phone = *p.Phone
		}
		if p.SecondaryPhone != nil {
			r.SecondaryPhone = *p.SecondaryPhone
		}
		if p.MRN != nil {
			r.MRN = *p.MRN
		}
		if p.ShortID != nil {
			r.ShortID = *p.ShortID
		}
		records = append(records, r)
	}
	return records
}
