package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"coursegen-pipeline/internal/domain/model"
)

func init() {
	register(
		stageTransitionsTotal,
		stageLatencySeconds,
		stageRetriesTotal,
		qualityAggregateScore,
		runsFinishedTotal,
	)
}

var (
	stageTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_transitions_total",
			Help: "Committed stage handoffs, labeled by mode and edge.",
		},
		[]string{"mode", "from", "to"},
	)

	stageLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_latency_seconds",
			Help:    "Per-attempt stage execution latency.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage", "success"},
	)

	stageRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_retries_total",
			Help: "Transient-failure retries per stage.",
		},
		[]string{"stage"},
	)

	qualityAggregateScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_quality_aggregate_score",
			Help:    "Weighted aggregate score distribution across assessments.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
		},
	)

	runsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_finished_total",
			Help: "Terminal generation runs, labeled by outcome.",
		},
		[]string{"status"},
	)
)

// Observer implements usecase.PipelineObserver on top of the package
// collectors.
type Observer struct{}

func (Observer) StageTransition(mode model.GenerationMode, from, to model.Stage) {
	stageTransitionsTotal.WithLabelValues(norm(string(mode)), norm(string(from)), norm(string(to))).Inc()
}

func (Observer) StageLatency(stage model.Stage, d time.Duration, success bool) {
	stageLatencySeconds.WithLabelValues(norm(string(stage)), strconv.FormatBool(success)).
		Observe(d.Seconds())
}

func (Observer) StageRetry(stage model.Stage) {
	stageRetriesTotal.WithLabelValues(norm(string(stage))).Inc()
}

func (Observer) QualityScore(aggregate float64) {
	qualityAggregateScore.Observe(aggregate)
}

func (Observer) JobFinished(status model.JobStatus) {
	runsFinishedTotal.WithLabelValues(norm(string(status))).Inc()
}
