package patternlib

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

func TestSimilarity_IdenticalSignatures(t *testing.T) {
	sig := map[health.Metric]float64{
		health.MetricRestingHeartRate:     2.0,
		health.MetricHeartRateVariability: -1.5,
	}
	assert.InDelta(t, 1.0, Similarity(sig, sig), 1e-9)
}

func TestSimilarity_SignMismatchVetoes(t *testing.T) {
	candidate := map[health.Metric]float64{
		health.MetricHeartRateVariability: -2.0,
		health.MetricRestingHeartRate:     1.8,
	}
	stored := map[health.Metric]float64{
		health.MetricHeartRateVariability: 2.0,
		health.MetricRestingHeartRate:     1.8,
	}
	assert.Zero(t, Similarity(candidate, stored),
		"HRV crashing is not the same event as HRV surging")
}

func TestSimilarity_NoSharedMetrics(t *testing.T) {
	candidate := map[health.Metric]float64{health.MetricStepCount: -2.0}
	stored := map[health.Metric]float64{health.MetricBloodGlucose: 1.5}
	assert.Zero(t, Similarity(candidate, stored))
}

func TestSimilarity_EmptyInputs(t *testing.T) {
	assert.Zero(t, Similarity(nil, map[health.Metric]float64{health.MetricStepCount: 1}))
	assert.Zero(t, Similarity(map[health.Metric]float64{health.MetricStepCount: 1}, nil))
}

func TestSimilarity_MagnitudeGapDiscounts(t *testing.T) {
	candidate := map[health.Metric]float64{health.MetricRestingHeartRate: 1.0}
	near := map[health.Metric]float64{health.MetricRestingHeartRate: 1.2}
	far := map[health.Metric]float64{health.MetricRestingHeartRate: 4.0}

	nearScore := Similarity(candidate, near)
	farScore := Similarity(candidate, far)

	assert.Greater(t, nearScore, farScore,
		"same direction but larger magnitude gap must score lower")
	assert.Greater(t, farScore, 0.0, "same direction never hard-zeroes")
}

func TestSimilarity_PartialOverlap(t *testing.T) {
	candidate := map[health.Metric]float64{
		health.MetricRestingHeartRate:     2.0,
		health.MetricRespiratoryRate:      1.5,
		health.MetricHeartRateVariability: -1.8,
	}
	stored := map[health.Metric]float64{
		health.MetricRestingHeartRate: 2.0,
		health.MetricRespiratoryRate:  1.5,
		health.MetricBloodOxygen:      -1.2,
	}

	score := Similarity(candidate, stored)
	// Two of four distinct metrics shared, perfectly aligned on the overlap:
	// 0.2*(2/4) + 0.8*1.0.
	assert.InDelta(t, 0.9, score, 1e-9)
}
