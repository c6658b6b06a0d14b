package anomaly

import (
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

// Severity grades how far a value sits from the personal baseline.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// Direction indicates which side of the baseline the deviation falls on.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Outcome is the feedback resolution state of a detected anomaly. An anomaly
// starts pending and transitions exactly once to a terminal outcome.
type Outcome string

const (
	OutcomePending       Outcome = "pending"
	OutcomeConfirmed     Outcome = "confirmed"
	OutcomeFalsePositive Outcome = "false_positive"
)

// Terminal reports whether the outcome can no longer change.
func (o Outcome) Terminal() bool {
	return o == OutcomeConfirmed || o == OutcomeFalsePositive
}

// RelatedMetric is corroborating or co-occurring evidence attached to a
// result during pattern composition.
type RelatedMetric struct {
	Metric       health.Metric `json:"metric"`
	Value        float64       `json:"value"`
	DeviationPct float64       `json:"deviation_pct"`
	Direction    Direction     `json:"direction"`
}

// Result is a single detected deviation for one (user, metric) pair.
//
// Results are value types: pattern composition never mutates a candidate in
// place, it derives labeled copies keyed by ID.
type Result struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Metric        health.Metric
	CurrentValue  float64
	BaselineValue float64
	// DeviationAbs is current minus baseline mean, in the metric's unit.
	DeviationAbs float64
	// DeviationPct is the relative deviation in percent for relative-kind
	// metrics; for absolute-kind metrics it carries the absolute magnitude
	// in the metric's own unit.
	DeviationPct float64
	// ZScore is nil when the baseline had zero variance.
	ZScore         *float64
	Direction      Direction
	Severity       Severity
	PatternName    string
	RelatedMetrics []RelatedMetric
	Confidence     float64
	DetectedAt     time.Time
	Outcome        Outcome
}

// WithPattern returns a copy labeled as part of a composed multi-metric
// pattern, with severity raised and the confidence boost applied.
func (r Result) WithPattern(name string, boost float64, related []RelatedMetric) Result {
	r.PatternName = name
	r.Severity = SeverityHigh
	r.Confidence = capConfidence(r.Confidence + boost)
	r.RelatedMetrics = append(append([]RelatedMetric(nil), r.RelatedMetrics...), related...)
	return r
}

// WithRelated returns a copy with extra corroborating evidence attached.
func (r Result) WithRelated(related []RelatedMetric) Result {
	r.RelatedMetrics = append(append([]RelatedMetric(nil), r.RelatedMetrics...), related...)
	return r
}

// MaxConfidence caps every confidence the engine reports.
const MaxConfidence = 0.95

func capConfidence(c float64) float64 {
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}
