package repository

import (
	"context"

	"coursegen-pipeline/internal/domain/model"
)

type ResearchRepository interface {
	// Create inserts the session. At most one session exists per plan;
	// a second insert for the same plan returns domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, session *model.ResearchSession) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ResearchSession, error)
	FindByPlanID(ctx context.Context, tx Tx, planID string) (*model.ResearchSession, error)
}
