package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/repository"
)

var _ repository.PlanRepository = (*PlanRepo)(nil)

// PlanRepo persists course plans with an optimistic version column. Update
// only lands when the stored version still matches the caller's copy.
type PlanRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *PlanRepo {
	return &PlanRepo{pool: pool}
}

func (r *PlanRepo) Create(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	modules, err := json.Marshal(plan.Modules)
	if err != nil {
		return fmt.Errorf("marshal modules: %w", err)
	}
	gaps, err := json.Marshal(plan.PrioritizedGaps)
	if err != nil {
		return fmt.Errorf("marshal gaps: %w", err)
	}
	plan.Version = 1
	const q = `
INSERT INTO course_plans (id, employee_id, session_id, course_title, modules, prioritized_gaps, research_strategy, learning_path, approval_status, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,COALESCE($11,NOW()),COALESCE($12,NOW()));`
	_, err = execSQL(ctx, r.pool, tx, q,
		plan.ID, plan.EmployeeID, plan.SessionID, plan.CourseTitle, modules, gaps,
		plan.ResearchStrategy, plan.LearningPath, string(plan.ApprovalStatus),
		plan.Version, plan.CreatedAt, plan.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

func (r *PlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	const q = `
SELECT id, employee_id, session_id, course_title, modules, prioritized_gaps, research_strategy, learning_path, approval_status, version, created_at, updated_at, approved_at
FROM course_plans WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var p model.Plan
	var modules, gaps []byte
	var status string
	var approvedAt *time.Time
	err = row.Scan(&p.ID, &p.EmployeeID, &p.SessionID, &p.CourseTitle, &modules, &gaps,
		&p.ResearchStrategy, &p.LearningPath, &status, &p.Version, &p.CreatedAt, &p.UpdatedAt, &approvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan plan: %w", domain.ErrReadDatabaseRow)
	}
	if err := json.Unmarshal(modules, &p.Modules); err != nil {
		return nil, fmt.Errorf("unmarshal modules: %w", err)
	}
	if len(gaps) > 0 {
		if err := json.Unmarshal(gaps, &p.PrioritizedGaps); err != nil {
			return nil, fmt.Errorf("unmarshal gaps: %w", err)
		}
	}
	p.ApprovalStatus = model.ApprovalStatus(status)
	p.ApprovedAt = approvedAt
	return &p, nil
}

func (r *PlanRepo) Update(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	modules, err := json.Marshal(plan.Modules)
	if err != nil {
		return fmt.Errorf("marshal modules: %w", err)
	}
	gaps, err := json.Marshal(plan.PrioritizedGaps)
	if err != nil {
		return fmt.Errorf("marshal gaps: %w", err)
	}
	plan.UpdatedAt = time.Now()
	const q = `
UPDATE course_plans SET
  course_title=$2, modules=$3, prioritized_gaps=$4, research_strategy=$5,
  learning_path=$6, approval_status=$7, approved_at=$8, version=version+1, updated_at=$9
WHERE id=$1 AND version=$10;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		plan.ID, plan.CourseTitle, modules, gaps, plan.ResearchStrategy,
		plan.LearningPath, string(plan.ApprovalStatus), plan.ApprovedAt,
		plan.UpdatedAt, plan.Version)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row vanished or someone moved the version first.
		if _, ferr := r.FindByID(ctx, tx, plan.ID); errors.Is(ferr, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrConcurrencyConflict
	}
	plan.Version++
	return nil
}
