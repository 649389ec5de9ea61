package reconcile

import (
	"context"
	"errors"
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

const ticketCols = `id, loser_id, survivor_id, evidence, status, created_at, applied_at`

func (r *repoPG) Create(ctx context.Context, t *MergeTicket) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO merge_ticket (id, loser_id, survivor_id, evidence, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (loser_id, survivor_id) WHERE status = 'pending' DO NOTHING`,
		t.ID, t.LoserID, t.SurvivorID, t.Evidence, t.Status, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create merge ticket: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*MergeTicket, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+ticketCols+` FROM merge_ticket WHERE id = $1`, id)
	t, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *repoPG) ListPending(ctx context.Context) ([]*MergeTicket, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+ticketCols+` FROM merge_ticket
		WHERE status = 'pending'
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending tickets: %w", err)
	}
	defer rows.Close()

	var out []*MergeTicket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan merge ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, t *MergeTicket) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE merge_ticket SET status = $2, applied_at = $3 WHERE id = $1`,
		t.ID, t.Status, t.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("update merge ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTicket(row pgx.Row) (*MergeTicket, error) {
	var t MergeTicket
	err := row.Scan(&t.ID, &t.LoserID, &t.SurvivorID, &t.Evidence, &t.Status, &t.CreatedAt, &t.AppliedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
