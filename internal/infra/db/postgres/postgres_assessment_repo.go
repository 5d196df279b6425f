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

var _ repository.AssessmentRepository = (*AssessmentRepo)(nil)

// AssessmentRepo is the append-only evaluation history. No update or delete.
type AssessmentRepo struct {
	pool *pgxpool.Pool
}

func NewAssessmentRepo(pool *pgxpool.Pool) *AssessmentRepo {
	return &AssessmentRepo{pool: pool}
}

func (r *AssessmentRepo) Create(ctx context.Context, tx repository.Tx, a *model.QualityAssessment) error {
	scores, err := json.Marshal(a.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	suggestions, err := json.Marshal(a.Suggestions)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}
	const q = `
INSERT INTO quality_assessments (id, content_id, attempt, scores, aggregate, verdict, suggestions, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,COALESCE($8,NOW()));`
	_, err = execSQL(ctx, r.pool, tx, q,
		a.ID, a.ContentID, a.Attempt, scores, a.Aggregate, string(a.Verdict), suggestions, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create assessment: %w", err)
	}
	return nil
}

const assessmentColumns = `id, content_id, attempt, scores, aggregate, verdict, suggestions, created_at`

func (r *AssessmentRepo) ListByContent(ctx context.Context, tx repository.Tx, contentID string) ([]*model.QualityAssessment, error) {
	const q = `SELECT ` + assessmentColumns + ` FROM quality_assessments WHERE content_id=$1 ORDER BY attempt ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, contentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.QualityAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AssessmentRepo) LatestByContent(ctx context.Context, tx repository.Tx, contentID string) (*model.QualityAssessment, error) {
	const q = `SELECT ` + assessmentColumns + ` FROM quality_assessments WHERE content_id=$1 ORDER BY attempt DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, contentID)
	if err != nil {
		return nil, err
	}
	return scanAssessment(row)
}

func scanAssessment(row pgx.Row) (*model.QualityAssessment, error) {
	var a model.QualityAssessment
	var scores, suggestions []byte
	var verdict string
	err := row.Scan(&a.ID, &a.ContentID, &a.Attempt, &scores, &a.Aggregate, &verdict, &suggestions, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan assessment: %w", domain.ErrReadDatabaseRow)
	}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &a.Scores); err != nil {
			return nil, fmt.Errorf("unmarshal scores: %w", err)
		}
	}
	if len(suggestions) > 0 {
		if err := json.Unmarshal(suggestions, &a.Suggestions); err != nil {
			return nil, fmt.Errorf("unmarshal suggestions: %w", err)
		}
	}
	a.Verdict = model.Verdict(verdict)
	return &a, nil
}
