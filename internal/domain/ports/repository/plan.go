package repository

import (
	"context"

	"coursegen-pipeline/internal/domain/model"
)

type PlanRepository interface {
	// Create inserts a new plan at version 1.
	Create(ctx context.Context, tx Tx, plan *model.Plan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	// Update writes the plan guarded by its Version field: the write only
	// lands if the stored version still matches, otherwise
	// domain.ErrConcurrencyConflict is returned and the caller re-reads.
	// On success the plan's Version is incremented in place.
	Update(ctx context.Context, tx Tx, plan *model.Plan) error
}
