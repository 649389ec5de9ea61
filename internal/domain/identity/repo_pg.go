package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

const identityCols = `id, state, phone, secondary_phone, mrn, short_id,
	first_name, last_name, dob, needs_manual_linking, review_candidate_id,
	merged_into, created_via, last_activity_at, created_at, updated_at`

// candidatePoolLimit bounds the matcher's working set. Single-clinic scale
// keeps the full active pool well under this.
const candidatePoolLimit = 5000

func (r *repoPG) Create(ctx context.Context, p *PatientIdentity) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.LastActivityAt.IsZero() {
		p.LastActivityAt = now
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_identity (
			id, state, phone, secondary_phone, mrn, short_id,
			first_name, last_name, dob, needs_manual_linking, review_candidate_id,
			merged_into, created_via, last_activity_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.ID, p.State, p.Phone, p.SecondaryPhone, p.MRN, p.ShortID,
		p.FirstName, p.LastName, p.DOB, p.NeedsManualLinking, p.ReviewCandidateID,
		p.MergedInto, p.CreatedVia, p.LastActivityAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("create identity: %w", ErrDuplicateIdentifier)
		}
		return fmt.Errorf("create identity: %w", err)
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*PatientIdentity, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+identityCols+` FROM patient_identity WHERE id = $1`, id)
	p, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *repoPG) Update(ctx context.Context, p *PatientIdentity) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_identity SET
			state=$2, phone=$3, secondary_phone=$4, mrn=$5, short_id=$6,
			first_name=$7, last_name=$8, dob=$9, needs_manual_linking=$10,
			review_candidate_id=$11, merged_into=$12, last_activity_at=$13,
			updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.State, p.Phone, p.SecondaryPhone, p.MRN, p.ShortID,
		p.FirstName, p.LastName, p.DOB, p.NeedsManualLinking,
		p.ReviewCandidateID, p.MergedInto, p.LastActivityAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("update identity: %w", ErrDuplicateIdentifier)
		}
		return fmt.Errorf("update identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) CandidatePool(ctx context.Context) ([]*PatientIdentity, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+identityCols+` FROM patient_identity
		WHERE state != 'merged'
		ORDER BY last_activity_at DESC
		LIMIT $1`, candidatePoolLimit)
	if err != nil {
		return nil, fmt.Errorf("candidate pool: %w", err)
	}
	defer rows.Close()
	return scanIdentities(rows)
}

func (r *repoPG) ActiveBetween(ctx context.Context, from, to time.Time) ([]*PatientIdentity, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+identityCols+` FROM patient_identity
		WHERE state != 'merged' AND last_activity_at BETWEEN $1 AND $2
		ORDER BY last_activity_at DESC
		LIMIT $3`, from, to, candidatePoolLimit)
	if err != nil {
		return nil, fmt.Errorf("active between: %w", err)
	}
	defer rows.Close()
	return scanIdentities(rows)
}

func (r *repoPG) TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient_identity SET last_activity_at = GREATEST(last_activity_at, $2), updated_at = NOW() WHERE id = $1`,
		id, at)
	if err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	return nil
}

func scanIdentity(row pgx.Row) (*PatientIdentity, error) {
	var p PatientIdentity
	err := row.Scan(
		&p.ID, &p.State, &p.Phone, &p.SecondaryPhone, &p.MRN, &p.ShortID,
		&p.FirstName, &p.LastName, &p.DOB, &p.NeedsManualLinking, &p.ReviewCandidateID,
		&p.MergedInto, &p.CreatedVia, &p.LastActivityAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanIdentities(rows pgx.Rows) ([]*PatientIdentity, error) {
	var out []*PatientIdentity
	for rows.Next() {
		p, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
