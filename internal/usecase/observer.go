package usecase

import (
	"time"

	"coursegen-pipeline/internal/domain/model"
)

// PipelineObserver receives orchestration events for metrics. The prometheus
// implementation lives in infra; the zero value used in tests observes nothing.
type PipelineObserver interface {
	StageTransition(mode model.GenerationMode, from, to model.Stage)
	StageLatency(stage model.Stage, d time.Duration, success bool)
	StageRetry(stage model.Stage)
	QualityScore(aggregate float64)
	JobFinished(status model.JobStatus)
}

type noopObserver struct{}

func (noopObserver) StageTransition(model.GenerationMode, model.Stage, model.Stage) {}
func (noopObserver) StageLatency(model.Stage, time.Duration, bool)                  {}
func (noopObserver) StageRetry(model.Stage)                                         {}
func (noopObserver) QualityScore(float64)                                           {}
func (noopObserver) JobFinished(model.JobStatus)                                    {}

// NopObserver is the default observer when none is wired.
var NopObserver PipelineObserver = noopObserver{}
