package chart

import (
	"context"
	"encoding/json"
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

// chartData is the JSONB payload; version and review flag live in columns so
// the optimistic guard and review queries stay in SQL.
type chartData struct {
	Medications []Medication `json:"medications,omitempty"`
	Diagnoses   []Diagnosis  `json:"diagnoses,omitempty"`
	Allergies   []Allergy    `json:"allergies,omitempty"`
	Labs        []LabResult  `json:"labs,omitempty"`
	Vitals      []VitalEntry `json:"vitals,omitempty"`
	Goals       []Goal       `json:"goals,omitempty"`
}

func (r *repoPG) Get(ctx context.Context, identityID uuid.UUID) (*Chart, error) {
	var (
		c   Chart
		raw []byte
	)
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT identity_id, version, needs_review, data, updated_at
		FROM patient_chart WHERE identity_id = $1`, identityID,
	).Scan(&c.IdentityID, &c.Version, &c.NeedsReview, &raw, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chart: %w", err)
	}

	var data chartData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode chart %s: %w", identityID, err)
	}
	c.Medications = data.Medications
	c.Diagnoses = data.Diagnoses
	c.Allergies = data.Allergies
	c.Labs = data.Labs
	c.Vitals = data.Vitals
	c.Goals = data.Goals
	return &c, nil
}

func (r *repoPG) Save(ctx context.Context, c *Chart, expectedVersion int) error {
	raw, err := json.Marshal(chartData{
		Medications: c.Medications,
		Diagnoses:   c.Diagnoses,
		Allergies:   c.Allergies,
		Labs:        c.Labs,
		Vitals:      c.Vitals,
		Goals:       c.Goals,
	})
	if err != nil {
		return fmt.Errorf("encode chart %s: %w", c.IdentityID, err)
	}

	now := time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_chart (identity_id, version, needs_review, data, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_id) DO UPDATE
		SET version = EXCLUDED.version,
		    needs_review = EXCLUDED.needs_review,
		    data = EXCLUDED.data,
		    updated_at = EXCLUDED.updated_at
		WHERE patient_chart.version = $6`,
		c.IdentityID, c.Version, c.NeedsReview, raw, now, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("save chart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	c.UpdatedAt = now
	return nil
}
