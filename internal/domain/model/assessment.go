package model

import "time"

type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// Quality dimensions scored by the quality stage, each in [0,1].
const (
	DimAccuracy        = "accuracy"
	DimClarity         = "clarity"
	DimEngagement      = "engagement"
	DimPersonalization = "personalization"
	DimStructure       = "structural_compliance"
)

// QualityAssessment is one evaluation attempt of a ModuleContent revision.
// Append-only: retries produce new rows so the full history stays auditable.
type QualityAssessment struct {
	ID          string
	ContentID   string
	Attempt     int
	Scores      map[string]float64
	Aggregate   float64
	Verdict     Verdict
	Suggestions []string
	CreatedAt   time.Time
}

// Aggregate combines per-dimension scores with the given weights. Dimensions
// missing a weight fall back to weight 1. Result is normalized to [0,1].
func AggregateScore(scores map[string]float64, weights map[string]float64) float64 {
	var sum, wsum float64
	for dim, s := range scores {
		w, ok := weights[dim]
		if !ok {
			w = 1
		}
		sum += s * w
		wsum += w
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}
