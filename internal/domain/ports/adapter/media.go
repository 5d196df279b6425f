package adapter

import (
	"context"

	"coursegen-pipeline/internal/domain/model"
)

// MediaRenderer produces presentation assets (slide decks, narration
// scripts) for a quality-checked module. Implementations return an opaque
// asset reference; the pipeline never inspects the artifact itself.
type MediaRenderer interface {
	RenderModule(ctx context.Context, plan *model.Plan, content *model.ModuleContent) (assetRef string, err error)
}
