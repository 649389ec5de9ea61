package chart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TxRunner runs fn inside a storage transaction. main wires db.WithTx here;
// tests pass straight through.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PassthroughTx is a TxRunner with no transaction, for callers already
// inside one and for tests.
func PassthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// MergeResult reports what one merge did.
type MergeResult struct {
	Version         int      `json:"version"`
	Changed         bool     `json:"changed"`
	SectionsChanged []string `json:"sections_changed,omitempty"`
	Conflicts       []string `json:"conflicts,omitempty"`
	Dropped         []string `json:"dropped,omitempty"`
}

type Service struct {
	repo   Repository
	inTx   TxRunner
	logger zerolog.Logger
}

func NewService(repo Repository, inTx TxRunner, logger zerolog.Logger) *Service {
	if inTx == nil {
		inTx = PassthroughTx
	}
	return &Service{repo: repo, inTx: inTx, logger: logger}
}

// Merge folds a source bundle into an identity's chart. The read, fold and
// write happen in one transaction; the version bumps by exactly one when
// anything changed and not at all otherwise, so replaying the same bundle is
// a no-op.
func (s *Service) Merge(ctx context.Context, identityID uuid.UUID, b Bundle) (*MergeResult, error) {
	in := b.sanitize(time.Now().UTC())
	result := &MergeResult{Dropped: in.dropped}

	err := s.inTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.Get(ctx, identityID)
		if errors.Is(err, ErrNotFound) {
			c = NewChart(identityID)
		} else if err != nil {
			return err
		}

		expected := c.Version
		fr := fold(c, in)
		result.SectionsChanged = fr.sections
		result.Conflicts = fr.conflicts
		result.Changed = fr.changed()
		if !result.Changed {
			result.Version = c.Version
			return nil
		}

		c.Version = expected + 1
		if err := s.repo.Save(ctx, c, expected); err != nil {
			return err
		}
		result.Version = c.Version
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge chart %s: %w", identityID, err)
	}

	for _, d := range result.Dropped {
		s.logger.Warn().Str("identity_id", identityID.String()).Str("entry", d).Msg("chart merge dropped entry")
	}
	return result, nil
}

// Get returns the chart, or an empty version-zero chart if none exists yet.
func (s *Service) Get(ctx context.Context, identityID uuid.UUID) (*Chart, error) {
	c, err := s.repo.Get(ctx, identityID)
	if errors.Is(err, ErrNotFound) {
		return NewChart(identityID), nil
	}
	return c, err
}

// FoldFrom merges the src chart's contents into dst's chart, used by the
// reconciler when collapsing duplicates. It joins the caller's transaction.
func (s *Service) FoldFrom(ctx context.Context, dstID uuid.UUID, src *Chart, source string) (*MergeResult, error) {
	return s.Merge(ctx, dstID, ChartToBundle(src, source))
}
