package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/repository"
)

var _ repository.HandoffRepository = (*HandoffRepo)(nil)

// HandoffRepo is the router's append-only transition log. The seq column
// gives a total order per job independent of clock precision.
type HandoffRepo struct {
	pool *pgxpool.Pool
}

func NewHandoffRepo(pool *pgxpool.Pool) *HandoffRepo {
	return &HandoffRepo{pool: pool}
}

func (r *HandoffRepo) Append(ctx context.Context, tx repository.Tx, rec *model.HandoffRecord) error {
	const q = `
INSERT INTO handoff_records (id, job_id, from_stage, to_stage, payload_ref, created_at)
VALUES ($1,$2,$3,$4,$5,COALESCE($6,NOW()));`
	_, err := execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.JobID, string(rec.FromStage), string(rec.ToStage), rec.PayloadRef, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append handoff: %w", err)
	}
	return nil
}

const handoffColumns = `id, job_id, from_stage, to_stage, payload_ref, created_at`

func (r *HandoffRepo) Latest(ctx context.Context, tx repository.Tx, jobID string) (*model.HandoffRecord, error) {
	const q = `SELECT ` + handoffColumns + ` FROM handoff_records WHERE job_id=$1 ORDER BY seq DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, err
	}
	return scanHandoff(row)
}

func (r *HandoffRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.HandoffRecord, error) {
	const q = `SELECT ` + handoffColumns + ` FROM handoff_records WHERE job_id=$1 ORDER BY seq ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.HandoffRecord
	for rows.Next() {
		rec, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanHandoff(row pgx.Row) (*model.HandoffRecord, error) {
	var rec model.HandoffRecord
	var from, to string
	err := row.Scan(&rec.ID, &rec.JobID, &from, &to, &rec.PayloadRef, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan handoff: %w", domain.ErrReadDatabaseRow)
	}
	rec.FromStage = model.Stage(from)
	rec.ToStage = model.Stage(to)
	return &rec, nil
}
