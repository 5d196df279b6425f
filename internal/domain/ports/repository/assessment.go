package repository

import (
	"context"

	"coursegen-pipeline/internal/domain/model"
)

// AssessmentRepository is append-only: each evaluation attempt inserts a new
// row so retries stay auditable. There is no update method on purpose.
type AssessmentRepository interface {
	Create(ctx context.Context, tx Tx, a *model.QualityAssessment) error
	ListByContent(ctx context.Context, tx Tx, contentID string) ([]*model.QualityAssessment, error)
	LatestByContent(ctx context.Context, tx Tx, contentID string) (*model.QualityAssessment, error)
}
