package ai

import (
	"context"
	"strings"
	"time"

	"coursegen-pipeline/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter is a deterministic stand-in for local/dev runs. It keys on
// markers in the system prompt and replies with minimal well-formed JSON, so
// the whole pipeline can be exercised without provider credentials.
type NoopAIAdapter struct{}

func NewNoopAIAdapter() *NoopAIAdapter { return &NoopAIAdapter{} }

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop-model"}, nil
}

func (a *NoopAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(strings.Fields(m.Content))
	}
	return n, nil
}

func (a *NoopAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := a.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	select {
	case <-time.After(10 * time.Millisecond):
	case <-ctx.Done():
		return "", adapter.Usage{}, ctx.Err()
	}

	var system string
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			break
		}
	}

	reply := cannedReply(system)
	in, _ := a.CountTokens(ctx, model, messages)
	out := len(strings.Fields(reply))
	return reply, adapter.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}, nil
}

func cannedReply(system string) string {
	switch {
	case strings.Contains(system, "course_title"):
		return `{
  "course_title": "Practical Skills Refresher",
  "modules": [
    {"index": 0, "title": "Foundations", "objective": "Close the core knowledge gap", "mandatory": true},
    {"index": 1, "title": "Applied Practice", "objective": "Apply the foundations on the job", "mandatory": false},
    {"index": 2, "title": "Advanced Topics", "objective": "Deepen specialist knowledge", "mandatory": false}
  ],
  "prioritized_gaps": ["core concepts", "daily practice"],
  "research_strategy": "survey current best practice per module",
  "learning_path": "foundations first, then applied work"
}`
	case strings.Contains(system, "JSON array of search queries"):
		return `["core concepts primer", "workplace application examples"]`
	case strings.Contains(system, "topic (string), summary (string)"):
		return `{"topic": "core concepts", "summary": "A short synthesis of the essentials.", "sources": 3}`
	case strings.Contains(system, "quality reviewer"):
		return `{
  "scores": {"accuracy": 0.9, "clarity": 0.85, "engagement": 0.8, "personalization": 0.82, "structural_compliance": 0.9},
  "suggestions": ["tighten the introduction"]
}`
	default:
		// Drafting and enhancement both want the five-section map.
		return `{
  "introduction": {"text": "Welcome to this module."},
  "core_content": {"text": "The essential material, explained step by step."},
  "practical_applications": {"text": "How to use this at work tomorrow."},
  "case_studies": {"text": "Two short scenarios from the field."},
  "assessments": {"text": "Three questions to check understanding."}
}`
	}
}
