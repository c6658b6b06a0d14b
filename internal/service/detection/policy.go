package detection

import (
	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

// DeviationKind selects how a metric's candidate test is expressed.
type DeviationKind string

const (
	// KindRelative tests the percentage deviation from the baseline mean.
	KindRelative DeviationKind = "relative"
	// KindAbsolute tests the raw value itself; the metric is already a
	// deviation measurement (e.g. wrist temperature delta).
	KindAbsolute DeviationKind = "absolute"
)

// PolicyDirection restricts which side of the baseline a policy flags.
type PolicyDirection string

const (
	DirectionBoth PolicyDirection = "both"
	DirectionHigh PolicyDirection = "high"
	DirectionLow  PolicyDirection = "low"
)

// SeverityBoundaries grade anomaly magnitude. For relative metrics the
// magnitude is |deviation %|; for absolute metrics it is |current value|.
type SeverityBoundaries struct {
	Moderate float64
	High     float64
}

// ThresholdPolicy is the static default detection policy for one metric.
type ThresholdPolicy struct {
	Metric             health.Metric
	ZScoreThreshold    float64
	DeviationThreshold float64
	Kind               DeviationKind
	Direction          PolicyDirection
	Severity           SeverityBoundaries
	// SensorErrorCeiling discards absolute-kind readings whose magnitude is
	// physically implausible. Zero means no ceiling.
	SensorErrorCeiling float64
}

// FallbackPolicy applies to metrics with no entry in the table, so unknown
// series still get conservative detection instead of branching on missing
// keys.
var FallbackPolicy = ThresholdPolicy{
	ZScoreThreshold:    2.5,
	DeviationThreshold: 20,
	Kind:               KindRelative,
	Direction:          DirectionBoth,
	Severity:           SeverityBoundaries{Moderate: 25, High: 40},
}

var defaultPolicies = map[health.Metric]ThresholdPolicy{
	health.MetricRestingHeartRate: {
		ZScoreThreshold:    1.5,
		DeviationThreshold: 8,
		Kind:               KindRelative,
		Direction:          DirectionBoth,
		Severity:           SeverityBoundaries{Moderate: 10, High: 15},
	},
	health.MetricHeartRateVariability: {
		ZScoreThreshold:    1.8,
		DeviationThreshold: 15,
		Kind:               KindRelative,
		Direction:          DirectionBoth,
		Severity:           SeverityBoundaries{Moderate: 20, High: 30},
	},
	health.MetricRespiratoryRate: {
		ZScoreThreshold:    2.0,
		DeviationThreshold: 10,
		Kind:               KindRelative,
		Direction:          DirectionBoth,
		Severity:           SeverityBoundaries{Moderate: 12, High: 20},
	},
	health.MetricBloodOxygen: {
		ZScoreThreshold:    2.0,
		DeviationThreshold: 3,
		Kind:               KindRelative,
		Direction:          DirectionLow,
		Severity:           SeverityBoundaries{Moderate: 4, High: 6},
	},
	health.MetricWristTemperatureDeviation: {
		ZScoreThreshold:    2.0,
		DeviationThreshold: 0.8,
		Kind:               KindAbsolute,
		Direction:          DirectionBoth,
		Severity:           SeverityBoundaries{Moderate: 1.0, High: 1.5},
		SensorErrorCeiling: 8.0,
	},
	health.MetricSleepDuration: {
		ZScoreThreshold:    2.0,
		DeviationThreshold: 20,
		Kind:               KindRelative,
		Direction:          DirectionBoth,
		Severity:           SeverityBoundaries{Moderate: 25, High: 35},
	},
	health.MetricDeepSleepDuration: {
		ZScoreThreshold:    2.0,
		DeviationThreshold: 25,
		Kind:               KindRelative,
		Direction:          DirectionBoth,
		Severity:           SeverityBoundaries{Moderate: 30, High: 45},
	},
	health.MetricRemSleepDuration: {
		ZScoreThreshold:    2.0,
		DeviationThreshold: 25,
		Kind:               KindRelative,
		Direction:          DirectionBoth,
		Severity:           SeverityBoundaries{Moderate: 30, High: 45},
	},
	health.MetricBloodGlucose: {
		ZScoreThreshold:    2.0,
		DeviationThreshold: 15,
		Kind:               KindRelative,
		Direction:          DirectionBoth,
		Severity:           SeverityBoundaries{Moderate: 20, High: 30},
	},
	health.MetricGlucoseVariability: {
		ZScoreThreshold:    2.0,
		DeviationThreshold: 25,
		Kind:               KindRelative,
		Direction:          DirectionHigh,
		Severity:           SeverityBoundaries{Moderate: 30, High: 45},
	},
	health.MetricStepCount: {
		ZScoreThreshold:    2.2,
		DeviationThreshold: 40,
		Kind:               KindRelative,
		Direction:          DirectionBoth,
		Severity:           SeverityBoundaries{Moderate: 50, High: 70},
	},
	health.MetricActiveEnergy: {
		ZScoreThreshold:    2.2,
		DeviationThreshold: 40,
		Kind:               KindRelative,
		Direction:          DirectionBoth,
		Severity:           SeverityBoundaries{Moderate: 50, High: 70},
	},
}

// PolicyFor resolves the static policy for a metric, falling back to the
// generic policy for unknown metrics.
func PolicyFor(m health.Metric) ThresholdPolicy {
	if p, ok := defaultPolicies[m]; ok {
		p.Metric = m
		return p
	}
	p := FallbackPolicy
	p.Metric = m
	return p
}
