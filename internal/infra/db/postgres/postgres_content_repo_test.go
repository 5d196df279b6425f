//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/infra/security"
)

func newTestContent(planID string, index int) *model.ModuleContent {
	return &model.ModuleContent{
		ID:          uuid.NewString(),
		PlanID:      planID,
		ModuleIndex: index,
		Sections: map[string]model.ContentSection{
			model.SectionIntroduction: {Text: "why this matters", WordCount: 3},
			model.SectionCoreContent:  {Text: "the long middle", WordCount: 3},
		},
		Status:    model.ContentStatusDraft,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestContentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	plans := NewPlanRepo(testPool)
	encSvc, err := security.NewEncryptionService("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("encryption service: %v", err)
	}
	repo := NewContentRepo(testPool, encSvc)
	ctx := context.Background()
	cleanup(t)

	plan := newTestPlan()
	if err := plans.Create(ctx, nil, plan); err != nil {
		t.Fatalf("create plan: %v", err)
	}

	content := newTestContent(plan.ID, 0)

	t.Run("round-trips encrypted sections", func(t *testing.T) {
		if err := repo.Create(ctx, nil, content); err != nil {
			t.Fatalf("create content: %v", err)
		}

		// Ciphertext on disk, plaintext through the repo.
		var stored string
		var encrypted bool
		if err := testPool.QueryRow(ctx, `SELECT sections, encrypted FROM module_contents WHERE id=$1`, content.ID).
			Scan(&stored, &encrypted); err != nil {
			t.Fatalf("raw read: %v", err)
		}
		if !encrypted {
			t.Fatal("sections stored unencrypted")
		}
		if stored == "why this matters" || len(stored) == 0 {
			t.Fatal("sections look like plaintext on disk")
		}

		found, err := repo.FindByID(ctx, nil, content.ID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if found.Sections[model.SectionIntroduction].Text != "why this matters" {
			t.Errorf("decrypted sections mismatch: %+v", found.Sections)
		}
	})

	t.Run("update is version-guarded", func(t *testing.T) {
		fresh, _ := repo.FindByID(ctx, nil, content.ID)
		stale, _ := repo.FindByID(ctx, nil, content.ID)

		fresh.Status = model.ContentStatusQualityChecked
		if err := repo.Update(ctx, nil, fresh); err != nil {
			t.Fatalf("first update: %v", err)
		}

		stale.EnhancementCount = 99
		if err := repo.Update(ctx, nil, stale); !errors.Is(err, domain.ErrConcurrencyConflict) {
			t.Fatalf("stale update: want ErrConcurrencyConflict, got %v", err)
		}
	})

	t.Run("rejects a duplicate module index per plan", func(t *testing.T) {
		dup := newTestContent(plan.ID, 0)
		if err := repo.Create(ctx, nil, dup); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("want ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("lists by module index order", func(t *testing.T) {
		second := newTestContent(plan.ID, 1)
		if err := repo.Create(ctx, nil, second); err != nil {
			t.Fatalf("create second: %v", err)
		}
		list, err := repo.ListByPlan(ctx, nil, plan.ID)
		if err != nil {
			t.Fatalf("ListByPlan: %v", err)
		}
		if len(list) != 2 || list[0].ModuleIndex != 0 || list[1].ModuleIndex != 1 {
			t.Errorf("listing out of order: %+v", list)
		}
		n, _ := repo.CountByPlan(ctx, nil, plan.ID)
		if n != 2 {
			t.Errorf("count = %d, want 2", n)
		}
	})
}

func TestAssessmentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	plans := NewPlanRepo(testPool)
	contents := NewContentRepo(testPool, nil)
	repo := NewAssessmentRepo(testPool)
	ctx := context.Background()
	cleanup(t)

	plan := newTestPlan()
	if err := plans.Create(ctx, nil, plan); err != nil {
		t.Fatalf("create plan: %v", err)
	}
	content := newTestContent(plan.ID, 0)
	if err := contents.Create(ctx, nil, content); err != nil {
		t.Fatalf("create content: %v", err)
	}

	for attempt, agg := range []float64{0.6, 0.85} {
		a := &model.QualityAssessment{
			ID:        uuid.NewString(),
			ContentID: content.ID,
			Attempt:   attempt + 1,
			Scores:    map[string]float64{model.DimAccuracy: agg, model.DimClarity: agg},
			Aggregate: agg,
			Verdict:   model.VerdictFail,
			CreatedAt: time.Now(),
		}
		if agg >= 0.75 {
			a.Verdict = model.VerdictPass
		}
		if err := repo.Create(ctx, nil, a); err != nil {
			t.Fatalf("create assessment %d: %v", attempt+1, err)
		}
	}

	history, err := repo.ListByContent(ctx, nil, content.ID)
	if err != nil {
		t.Fatalf("ListByContent: %v", err)
	}
	if len(history) != 2 || history[0].Attempt != 1 || history[1].Attempt != 2 {
		t.Fatalf("history = %+v", history)
	}

	latest, err := repo.LatestByContent(ctx, nil, content.ID)
	if err != nil {
		t.Fatalf("LatestByContent: %v", err)
	}
	if latest.Attempt != 2 || latest.Verdict != model.VerdictPass {
		t.Errorf("latest = %+v", latest)
	}
	if latest.Scores[model.DimClarity] != 0.85 {
		t.Errorf("scores lost in round trip: %+v", latest.Scores)
	}
}
