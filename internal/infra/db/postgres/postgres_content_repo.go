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
	"coursegen-pipeline/internal/infra/security"
)

var _ repository.ContentRepository = (*ContentRepo)(nil)

// ContentRepo persists module contents with optional encryption-at-rest for
// the section payload. Updates are version-guarded like PlanRepo.
type ContentRepo struct {
	pool          *pgxpool.Pool
	encryptionSvc *security.EncryptionService // nil disables at-rest encryption
}

func NewContentRepo(pool *pgxpool.Pool, encryptionSvc *security.EncryptionService) *ContentRepo {
	return &ContentRepo{pool: pool, encryptionSvc: encryptionSvc}
}

func (r *ContentRepo) encodeSections(c *model.ModuleContent) (string, bool, error) {
	raw, err := json.Marshal(c.Sections)
	if err != nil {
		return "", false, fmt.Errorf("marshal sections: %w", err)
	}
	if r.encryptionSvc == nil {
		return string(raw), false, nil
	}
	enc, err := r.encryptionSvc.Encrypt(string(raw))
	if err != nil {
		return "", false, fmt.Errorf("encrypt sections: %w", err)
	}
	return enc, true, nil
}

func (r *ContentRepo) decodeSections(payload string, encrypted bool, c *model.ModuleContent) error {
	if encrypted {
		if r.encryptionSvc == nil {
			return fmt.Errorf("content %s is encrypted but no key is configured", c.ID)
		}
		plain, err := r.encryptionSvc.Decrypt(payload)
		if err != nil {
			return fmt.Errorf("decrypt sections: %w", err)
		}
		payload = plain
	}
	if err := json.Unmarshal([]byte(payload), &c.Sections); err != nil {
		return fmt.Errorf("unmarshal sections: %w", err)
	}
	return nil
}

func (r *ContentRepo) Create(ctx context.Context, tx repository.Tx, c *model.ModuleContent) error {
	payload, encrypted, err := r.encodeSections(c)
	if err != nil {
		return err
	}
	c.Version = 1
	const q = `
INSERT INTO module_contents (id, plan_id, module_index, sections, encrypted, status, enhancement_count, needs_manual_review, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,COALESCE($10,NOW()),COALESCE($11,NOW()));`
	_, err = execSQL(ctx, r.pool, tx, q,
		c.ID, c.PlanID, c.ModuleIndex, payload, encrypted, string(c.Status),
		c.EnhancementCount, c.NeedsManualReview, c.Version, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create module content: %w", err)
	}
	return nil
}

const contentColumns = `id, plan_id, module_index, sections, encrypted, status, enhancement_count, needs_manual_review, version, created_at, updated_at`

func (r *ContentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ModuleContent, error) {
	const q = `SELECT ` + contentColumns + ` FROM module_contents WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return r.scanContent(row)
}

func (r *ContentRepo) Update(ctx context.Context, tx repository.Tx, c *model.ModuleContent) error {
	payload, encrypted, err := r.encodeSections(c)
	if err != nil {
		return err
	}
	c.UpdatedAt = time.Now()
	const q = `
UPDATE module_contents SET
  sections=$2, encrypted=$3, status=$4, enhancement_count=$5,
  needs_manual_review=$6, version=version+1, updated_at=$7
WHERE id=$1 AND version=$8;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		c.ID, payload, encrypted, string(c.Status), c.EnhancementCount,
		c.NeedsManualReview, c.UpdatedAt, c.Version)
	if err != nil {
		return fmt.Errorf("update module content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, ferr := r.FindByID(ctx, tx, c.ID); errors.Is(ferr, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrConcurrencyConflict
	}
	c.Version++
	return nil
}

func (r *ContentRepo) ListByPlan(ctx context.Context, tx repository.Tx, planID string) ([]*model.ModuleContent, error) {
	const q = `SELECT ` + contentColumns + ` FROM module_contents WHERE plan_id=$1 ORDER BY module_index ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ModuleContent
	for rows.Next() {
		c, err := r.scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ContentRepo) CountByPlan(ctx context.Context, tx repository.Tx, planID string) (int, error) {
	const q = `SELECT COUNT(*) FROM module_contents WHERE plan_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, planID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *ContentRepo) scanContent(row pgx.Row) (*model.ModuleContent, error) {
	var c model.ModuleContent
	var payload, status string
	var encrypted bool
	err := row.Scan(&c.ID, &c.PlanID, &c.ModuleIndex, &payload, &encrypted, &status,
		&c.EnhancementCount, &c.NeedsManualReview, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan module content: %w", domain.ErrReadDatabaseRow)
	}
	c.Status = model.ContentStatus(status)
	if err := r.decodeSections(payload, encrypted, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
