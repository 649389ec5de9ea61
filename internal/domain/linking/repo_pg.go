package linking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medintake/registry/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const linkCols = `id, event_id, event_type, identity_id, identifier_type,
	confidence, method, outcome, source, created_at`

func (r *repoPG) Create(ctx context.Context, rec *LinkRecord) (*LinkRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO link_record (
			id, event_id, event_type, identity_id, identifier_type,
			confidence, method, outcome, source, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (event_id, identity_id) DO NOTHING`,
		rec.ID, rec.EventID, rec.EventType, rec.IdentityID, rec.IdentifierType,
		rec.Confidence, rec.Method, rec.Outcome, rec.Source, rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create link record: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return rec, nil
	}

	// The pair already exists; records are immutable, so hand back the
	// original instead of the attempted duplicate.
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+linkCols+` FROM link_record
		WHERE event_id = $1 AND identity_id = $2`,
		rec.EventID, rec.IdentityID)
	existing, err := scanLink(row)
	if err != nil {
		return nil, fmt.Errorf("load existing link record: %w", err)
	}
	return existing, nil
}

func (r *repoPG) ListByIdentity(ctx context.Context, identityID uuid.UUID) ([]*LinkRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+linkCols+` FROM link_record
		WHERE identity_id = $1
		ORDER BY created_at ASC, id ASC`, identityID)
	if err != nil {
		return nil, fmt.Errorf("list link records: %w", err)
	}
	defer rows.Close()

	var out []*LinkRecord
	for rows.Next() {
		rec, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RepointIdentity moves links to the survivor. A link whose event already
// has a survivor-side record is left on the tombstone; reads still resolve
// through the forwarding pointer.
func (r *repoPG) RepointIdentity(ctx context.Context, from, to uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE link_record SET identity_id = $2
		WHERE identity_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM link_record existing
			WHERE existing.event_id = link_record.event_id
			  AND existing.identity_id = $2
		  )`, from, to)
	if err != nil {
		return 0, fmt.Errorf("repoint link records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanLink(row pgx.Row) (*LinkRecord, error) {
	var rec LinkRecord
	err := row.Scan(
		&rec.ID, &rec.EventID, &rec.EventType, &rec.IdentityID, &rec.IdentifierType,
		&rec.Confidence, &rec.Method, &rec.Outcome, &rec.Source, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
