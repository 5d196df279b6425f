package repository

import (
	"context"

	"coursegen-pipeline/internal/domain/model"
)

type ContentRepository interface {
	// Create inserts a new module content row at version 1.
	Create(ctx context.Context, tx Tx, content *model.ModuleContent) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ModuleContent, error)
	// Update is version-guarded like PlanRepository.Update.
	Update(ctx context.Context, tx Tx, content *model.ModuleContent) error
	// ListByPlan returns the plan's module contents ordered by module index.
	ListByPlan(ctx context.Context, tx Tx, planID string) ([]*model.ModuleContent, error)
	CountByPlan(ctx context.Context, tx Tx, planID string) (int, error)
}
