package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medintake/registry/internal/domain/chart"
	"github.com/medintake/registry/internal/domain/identifier"
	"github.com/medintake/registry/internal/domain/identity"
)

// ChartMerger folds one identity's chart into another through the standard
// merge policies. chart.Service satisfies it.
type ChartMerger interface {
	Get(ctx context.Context, identityID uuid.UUID) (*chart.Chart, error)
	FoldFrom(ctx context.Context, dstID uuid.UUID, src *chart.Chart, source string) (*chart.MergeResult, error)
}

// LinkRepointer moves link records to the merge survivor. linking.Service
// satisfies it.
type LinkRepointer interface {
	Repoint(ctx context.Context, from, to uuid.UUID) (int, error)
}

// TxRunner runs fn inside one storage transaction; main wires db.WithTx.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	tickets    Repository
	identities identity.Repository
	charts     ChartMerger
	links      LinkRepointer
	inTx       TxRunner
	logger     zerolog.Logger
}

func NewService(tickets Repository, identities identity.Repository, charts ChartMerger, links LinkRepointer, inTx TxRunner, logger zerolog.Logger) *Service {
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		tickets:    tickets,
		identities: identities,
		charts:     charts,
		links:      links,
		inTx:       inTx,
		logger:     logger,
	}
}

// FindDuplicateCandidates sweeps active identities that share a normalized
// full name but carry different phone or MRN values, elects the survivor for
// each pair, and files pending merge tickets. It never merges by itself.
func (s *Service) FindDuplicateCandidates(ctx context.Context) ([]*MergeTicket, error) {
	pool, err := s.identities.CandidatePool(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile sweep: %w", err)
	}

	groups := make(map[string][]*identity.PatientIdentity)
	for _, p := range pool {
		first := identifier.NormalizeName(p.FirstName)
		last := identifier.NormalizeName(p.LastName)
		if first == "" || last == "" {
			continue
		}
		key := first + "|" + last
		groups[key] = append(groups[key], p)
	}

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return group[i].ID.String() < group[j].ID.String()
		})
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if !likelyDuplicates(a, b) {
					continue
				}
				survivor, loser := electSurvivor(a, b)
				ticket := &MergeTicket{
					LoserID:    loser.ID,
					SurvivorID: survivor.ID,
					Evidence:   evidence(survivor, loser),
				}
				if err := s.tickets.Create(ctx, ticket); err != nil {
					return nil, fmt.Errorf("reconcile sweep: %w", err)
				}
			}
		}
	}

	return s.tickets.ListPending(ctx)
}

// likelyDuplicates holds for same-name identities whose hard identifiers do
// not contradict each other. Matching phones or MRNs would have been caught
// at resolve time; the sweep exists for the pairs where one side is simply
// missing the identifier or typed it differently.
func likelyDuplicates(a, b *identity.PatientIdentity) bool {
	if strPtr(a.Phone) != "" && strPtr(b.Phone) != "" && strPtr(a.Phone) == strPtr(b.Phone) {
		// Same active phone should be impossible under the unique index.
		return true
	}
	if a.DOB != nil && b.DOB != nil && !a.DOB.Equal(*b.DOB) {
		return false
	}
	return true
}

// electSurvivor is deterministic: earliest created wins, then the row with
// more populated identifiers, then the lexically lowest id.
func electSurvivor(a, b *identity.PatientIdentity) (survivor, loser *identity.PatientIdentity) {
	switch {
	case a.CreatedAt.Before(b.CreatedAt):
		return a, b
	case b.CreatedAt.Before(a.CreatedAt):
		return b, a
	case a.IdentifierCount() > b.IdentifierCount():
		return a, b
	case b.IdentifierCount() > a.IdentifierCount():
		return b, a
	case a.ID.String() < b.ID.String():
		return a, b
	default:
		return b, a
	}
}

func evidence(survivor, loser *identity.PatientIdentity) string {
	return fmt.Sprintf("shared name %s %s; survivor phone=%s mrn=%s, loser phone=%s mrn=%s",
		survivor.FirstName, survivor.LastName,
		strPtr(survivor.Phone), strPtr(survivor.MRN),
		strPtr(loser.Phone), strPtr(loser.MRN))
}

// Apply executes a pending ticket: fold the loser's chart into the survivor,
// re-point the loser's links, carry over missing identifiers, tombstone the
// loser with a forwarding pointer, and close the ticket. The whole merge is
// one transaction.
func (s *Service) Apply(ctx context.Context, ticketID uuid.UUID) (*ApplyResult, error) {
	var result *ApplyResult
	err := s.inTx(ctx, func(ctx context.Context) error {
		ticket, err := s.tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status != StatusPending {
			return fmt.Errorf("ticket %s is %s, not pending", ticket.ID, ticket.Status)
		}

		loser, err := s.identities.GetByID(ctx, ticket.LoserID)
		if err != nil {
			return fmt.Errorf("load loser: %w", err)
		}
		survivor, err := s.identities.GetByID(ctx, ticket.SurvivorID)
		if err != nil {
			return fmt.Errorf("load survivor: %w", err)
		}
		if !loser.Active() {
			return fmt.Errorf("loser %s already merged", loser.ID)
		}
		if !survivor.Active() {
			return fmt.Errorf("survivor %s already merged", survivor.ID)
		}

		loserChart, err := s.charts.Get(ctx, loser.ID)
		if err != nil {
			return fmt.Errorf("load loser chart: %w", err)
		}
		mergeRes, err := s.charts.FoldFrom(ctx, survivor.ID, loserChart, "reconcile")
		if err != nil {
			return fmt.Errorf("fold chart: %w", err)
		}

		moved, err := s.links.Repoint(ctx, loser.ID, survivor.ID)
		if err != nil {
			return fmt.Errorf("repoint links: %w", err)
		}

		carryIdentifiers(survivor, loser)
		if survivor.LastActivityAt.Before(loser.LastActivityAt) {
			survivor.LastActivityAt = loser.LastActivityAt
		}

		// The loser's identifiers stay on the tombstone, but its merged
		// state removes it from every active-uniqueness index and pool.
		loser.State = identity.StateMerged
		loser.MergedInto = &survivor.ID
		if err := s.identities.Update(ctx, loser); err != nil {
			return fmt.Errorf("tombstone loser: %w", err)
		}
		if err := s.identities.Update(ctx, survivor); err != nil {
			return fmt.Errorf("update survivor: %w", err)
		}

		now := time.Now().UTC()
		ticket.Status = StatusApplied
		ticket.AppliedAt = &now
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return err
		}

		result = &ApplyResult{Ticket: ticket, LinksMoved: moved, ChartSections: mergeRes.SectionsChanged}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("ticket_id", result.Ticket.ID.String()).
		Str("loser_id", result.Ticket.LoserID.String()).
		Str("survivor_id", result.Ticket.SurvivorID.String()).
		Int("links_moved", result.LinksMoved).
		Msg("merge ticket applied")
	return result, nil
}

// ListPending returns open tickets for review.
func (s *Service) ListPending(ctx context.Context) ([]*MergeTicket, error) {
	return s.tickets.ListPending(ctx)
}

// Sweep runs the duplicate scan and logs the outcome; the cron entry point.
func (s *Service) Sweep(ctx context.Context) error {
	tickets, err := s.FindDuplicateCandidates(ctx)
	if err != nil {
		return err
	}
	s.logger.Info().Int("pending_tickets", len(tickets)).Msg("reconcile sweep complete")
	return nil
}

// carryIdentifiers copies identifiers the survivor lacks from the loser. A
// differing phone lands in the survivor's secondary slot.
func carryIdentifiers(survivor, loser *identity.PatientIdentity) {
	if p := strPtr(loser.Phone); p != "" {
		switch {
		case strPtr(survivor.Phone) == "":
			survivor.Phone = loser.Phone
		case strPtr(survivor.Phone) != p && strPtr(survivor.SecondaryPhone) == "":
			survivor.SecondaryPhone = loser.Phone
		}
	}
	if strPtr(survivor.MRN) == "" && strPtr(loser.MRN) != "" {
		survivor.MRN = loser.MRN
	}
	if strPtr(survivor.ShortID) == "" && strPtr(loser.ShortID) != "" {
		survivor.ShortID = loser.ShortID
	}
	if survivor.DOB == nil && loser.DOB != nil {
		survivor.DOB = loser.DOB
	}
}

func strPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
