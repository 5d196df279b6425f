package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
)

var _ adapter.MediaRenderer = (*LocalRenderer)(nil)

// LocalRenderer writes a slide-deck outline per module to the local
// filesystem. It stands in for a real presentation service; the pipeline only
// cares about the returned asset reference.
type LocalRenderer struct {
	dir string
	log *zerolog.Logger
}

func NewLocalRenderer(dir string, log *zerolog.Logger) (*LocalRenderer, error) {
	if dir == "" {
		dir = "assets"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &LocalRenderer{dir: dir, log: log}, nil
}

func (r *LocalRenderer) RenderModule(ctx context.Context, plan *model.Plan, content *model.ModuleContent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n## Module %d\n\n", plan.CourseTitle, content.ModuleIndex)
	for _, name := range model.SectionNames {
		s, ok := content.Sections[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "---\n### %s\n\n%s\n\n", strings.ReplaceAll(name, "_", " "), s.Text)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("%s-module-%d.md", plan.ID, content.ModuleIndex))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write deck: %w", err)
	}
	r.log.Debug().Str("path", path).Msg("deck written")
	return path, nil
}
