package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/repository"
)

var _ repository.ResearchRepository = (*ResearchRepo)(nil)

// ResearchRepo persists research sessions. The unique index on plan_id
// enforces the one-session-per-plan invariant at the store level.
type ResearchRepo struct {
	pool *pgxpool.Pool
}

func NewResearchRepo(pool *pgxpool.Pool) *ResearchRepo {
	return &ResearchRepo{pool: pool}
}

func (r *ResearchRepo) Create(ctx context.Context, tx repository.Tx, s *model.ResearchSession) error {
	queries, err := json.Marshal(s.Queries)
	if err != nil {
		return fmt.Errorf("marshal queries: %w", err)
	}
	findings, err := json.Marshal(s.Findings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}
	const q = `
INSERT INTO research_sessions (id, plan_id, queries, findings, topic_count, confidence, created_at)
VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7,NOW()));`
	_, err = execSQL(ctx, r.pool, tx, q, s.ID, s.PlanID, queries, findings, s.TopicCount, s.Confidence, s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create research session: %w", err)
	}
	return nil
}

func (r *ResearchRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ResearchSession, error) {
	const q = `SELECT id, plan_id, queries, findings, topic_count, confidence, created_at
FROM research_sessions WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanResearch(row)
}

func (r *ResearchRepo) FindByPlanID(ctx context.Context, tx repository.Tx, planID string) (*model.ResearchSession, error) {
	const q = `SELECT id, plan_id, queries, findings, topic_count, confidence, created_at
FROM research_sessions WHERE plan_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, planID)
	if err != nil {
		return nil, err
	}
	return scanResearch(row)
}

func scanResearch(row pgx.Row) (*model.ResearchSession, error) {
	var s model.ResearchSession
	var queries, findings []byte
	err := row.Scan(&s.ID, &s.PlanID, &queries, &findings, &s.TopicCount, &s.Confidence, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan research session: %w", domain.ErrReadDatabaseRow)
	}
	if len(queries) > 0 {
		if err := json.Unmarshal(queries, &s.Queries); err != nil {
			return nil, fmt.Errorf("unmarshal queries: %w", err)
		}
	}
	if len(findings) > 0 {
		if err := json.Unmarshal(findings, &s.Findings); err != nil {
			return nil, fmt.Errorf("unmarshal findings: %w", err)
		}
	}
	return &s, nil
}
