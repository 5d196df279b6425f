package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*JobRepo)(nil)

// JobRepo persists generation jobs. The row is the durable anchor of a run:
// it is upserted on every router commit and never deleted.
type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, employee_id, company_id, assigned_by_id, mode, status, current_stage, plan_id, error, cancel_requested, created_at, updated_at`

func (r *JobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	job.UpdatedAt = time.Now()
	const q = `
INSERT INTO generation_jobs (id, employee_id, company_id, assigned_by_id, mode, status, current_stage, plan_id, error, cancel_requested, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10,COALESCE($11,NOW()),$12)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  current_stage = EXCLUDED.current_stage,
  plan_id = EXCLUDED.plan_id,
  error = EXCLUDED.error,
  cancel_requested = EXCLUDED.cancel_requested,
  updated_at = EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.EmployeeID, job.CompanyID, job.AssignedByID, string(job.Mode),
		string(job.Status), string(job.CurrentStage), job.PlanID, job.Error,
		job.CancelRequested, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (r *JobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *JobRepo) FindByPlanID(ctx context.Context, tx repository.Tx, planID string) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM generation_jobs WHERE plan_id=$1 ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, planID)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *JobRepo) FindActiveByEmployee(ctx context.Context, tx repository.Tx, employeeID, companyID string) (*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM generation_jobs
WHERE employee_id=$1 AND company_id=$2 AND status='running'
ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, employeeID, companyID)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *JobRepo) ListStale(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM generation_jobs
WHERE status='running' AND updated_at < $1
ORDER BY updated_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var mode, status, stage string
	var planID *string
	err := row.Scan(&j.ID, &j.EmployeeID, &j.CompanyID, &j.AssignedByID, &mode,
		&status, &stage, &planID, &j.Error, &j.CancelRequested, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", domain.ErrReadDatabaseRow)
	}
	j.Mode = model.GenerationMode(mode)
	j.Status = model.JobStatus(status)
	j.CurrentStage = model.Stage(stage)
	if planID != nil {
		j.PlanID = *planID
	}
	return &j, nil
}
