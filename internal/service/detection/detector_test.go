package detection

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/domain/anomaly"
	"github.com/davidleathers/health-insights-backend/internal/domain/feedback"
	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

func baselineWith(mean float64, stdDev float64, count int) *health.BaselineStats {
	b := &health.BaselineStats{Mean: mean, SampleCount: count, WindowDays: 30}
	if stdDev > 0 {
		b.StdDev = &stdDev
	}
	return b
}

func TestEvaluate_ElevatedRestingHeartRate(t *testing.T) {
	d := NewDetector(Sensitivity{}, zap.NewNop())
	userID := uuid.New()

	// Mean 71, stddev sqrt(2) comes from the window [72 70 71 69 73] after
	// the 150 reading is filtered upstream.
	results := d.Evaluate(Input{
		UserID:    userID,
		Currents:  map[health.Metric]float64{health.MetricRestingHeartRate: 85},
		Baselines: map[health.Metric]*health.BaselineStats{health.MetricRestingHeartRate: baselineWith(71, math.Sqrt(2), 5)},
		Now:       time.Now(),
	})
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, health.MetricRestingHeartRate, r.Metric)
	assert.Equal(t, anomaly.DirectionAbove, r.Direction)
	assert.Equal(t, anomaly.SeverityHigh, r.Severity, "19.7%% deviation clears the 15%% high boundary")
	assert.InDelta(t, 19.718, r.DeviationPct, 0.01)
	require.NotNil(t, r.ZScore)
	assert.InDelta(t, 14.0/math.Sqrt(2), *r.ZScore, 1e-9)
	assert.Equal(t, anomaly.OutcomePending, r.Outcome)
	assert.InDelta(t, 0.55, r.Confidence, 1e-9, "no history means accuracy 0.5")
}

func TestEvaluate_WithinThresholdNotFlagged(t *testing.T) {
	d := NewDetector(Sensitivity{}, zap.NewNop())

	results := d.Evaluate(Input{
		UserID:    uuid.New(),
		Currents:  map[health.Metric]float64{health.MetricRestingHeartRate: 73},
		Baselines: map[health.Metric]*health.BaselineStats{health.MetricRestingHeartRate: baselineWith(71, 3, 20)},
	})
	assert.Empty(t, results)
}

func TestEvaluate_DirectionFilter(t *testing.T) {
	d := NewDetector(Sensitivity{}, zap.NewNop())

	// Glucose variability only alerts when elevated; a big drop is good news.
	results := d.Evaluate(Input{
		UserID:    uuid.New(),
		Currents:  map[health.Metric]float64{health.MetricGlucoseVariability: 10},
		Baselines: map[health.Metric]*health.BaselineStats{health.MetricGlucoseVariability: baselineWith(25, 2, 20)},
	})
	assert.Empty(t, results)

	// Blood oxygen only alerts when depressed.
	results = d.Evaluate(Input{
		UserID:    uuid.New(),
		Currents:  map[health.Metric]float64{health.MetricBloodOxygen: 99.5},
		Baselines: map[health.Metric]*health.BaselineStats{health.MetricBloodOxygen: baselineWith(95, 0.5, 20)},
	})
	assert.Empty(t, results)
}

func TestEvaluate_SensorErrorCeilingDiscards(t *testing.T) {
	d := NewDetector(Sensitivity{}, zap.NewNop())

	results := d.Evaluate(Input{
		UserID:    uuid.New(),
		Currents:  map[health.Metric]float64{health.MetricWristTemperatureDeviation: 9.4},
		Baselines: map[health.Metric]*health.BaselineStats{health.MetricWristTemperatureDeviation: baselineWith(0.1, 0.3, 20)},
	})
	assert.Empty(t, results, "a 9.4 degree wrist delta is a sensor fault, not a fever")
}

func TestEvaluate_AbsoluteKindUsesRawValue(t *testing.T) {
	d := NewDetector(Sensitivity{}, zap.NewNop())

	results := d.Evaluate(Input{
		UserID:    uuid.New(),
		Currents:  map[health.Metric]float64{health.MetricWristTemperatureDeviation: 1.2},
		Baselines: map[health.Metric]*health.BaselineStats{health.MetricWristTemperatureDeviation: baselineWith(0.05, 0.2, 20)},
	})
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, anomaly.DirectionAbove, r.Direction)
	assert.Equal(t, anomaly.SeverityModerate, r.Severity)
	assert.InDelta(t, 1.2, r.DeviationPct, 1e-9, "absolute metrics report the raw delta")
}

func TestEvaluate_NilStdDevSkipsZPath(t *testing.T) {
	d := NewDetector(Sensitivity{}, zap.NewNop())

	// Flat baseline: stddev nil. A 5% deviation is below the 8% threshold
	// and the z path must not panic or flag.
	results := d.Evaluate(Input{
		UserID:    uuid.New(),
		Currents:  map[health.Metric]float64{health.MetricRestingHeartRate: 73.5},
		Baselines: map[health.Metric]*health.BaselineStats{health.MetricRestingHeartRate: baselineWith(70, 0, 20)},
	})
	assert.Empty(t, results)

	// A deviation past the percent threshold still flags, with nil z-score.
	results = d.Evaluate(Input{
		UserID:    uuid.New(),
		Currents:  map[health.Metric]float64{health.MetricRestingHeartRate: 80},
		Baselines: map[health.Metric]*health.BaselineStats{health.MetricRestingHeartRate: baselineWith(70, 0, 20)},
	})
	require.Len(t, results, 1)
	assert.Nil(t, results[0].ZScore)
}

func TestEvaluate_SuppressedMetricSkipped(t *testing.T) {
	d := NewDetector(Sensitivity{}, zap.NewNop())

	results := d.Evaluate(Input{
		UserID:     uuid.New(),
		Currents:   map[health.Metric]float64{health.MetricRestingHeartRate: 95},
		Baselines:  map[health.Metric]*health.BaselineStats{health.MetricRestingHeartRate: baselineWith(71, 2, 20)},
		Suppressed: map[health.Metric]bool{health.MetricRestingHeartRate: true},
	})
	assert.Empty(t, results)
}

func TestEvaluate_LearnedThresholdRelaxesDetection(t *testing.T) {
	d := NewDetector(Sensitivity{}, zap.NewNop())
	userID := uuid.New()

	learned := &feedback.PersonalizedThreshold{
		UserID:             userID,
		Metric:             health.MetricRestingHeartRate,
		ZScoreThreshold:    3.0,
		DeviationThreshold: 16,
		FalsePositiveCount: 2,
		AdjustmentFactor:   2.0,
	}

	// 12% over baseline with modest z: flagged under defaults, not under the
	// user's relaxed thresholds.
	in := Input{
		UserID:    userID,
		Currents:  map[health.Metric]float64{health.MetricRestingHeartRate: 79.5},
		Baselines: map[health.Metric]*health.BaselineStats{health.MetricRestingHeartRate: baselineWith(71, 4, 20)},
	}
	require.Len(t, d.Evaluate(in), 1)

	in.Learned = map[health.Metric]*feedback.PersonalizedThreshold{health.MetricRestingHeartRate: learned}
	assert.Empty(t, d.Evaluate(in))
}

func TestEvaluate_GlobalZScoreFloorOnlyRaises(t *testing.T) {
	// The resting HR policy z threshold is 1.5; a floor of 2.5 overrides it,
	// and the deviation is kept under 8% so only the z path could flag.
	d := NewDetector(Sensitivity{GlobalZScoreFloor: 2.5}, zap.NewNop())

	in := Input{
		UserID:    uuid.New(),
		Currents:  map[health.Metric]float64{health.MetricRestingHeartRate: 74},
		Baselines: map[health.Metric]*health.BaselineStats{health.MetricRestingHeartRate: baselineWith(71, 1.5, 20)},
	}
	assert.Empty(t, d.Evaluate(in), "z of 2.0 is below the raised floor")

	relaxed := NewDetector(Sensitivity{}, zap.NewNop())
	require.Len(t, relaxed.Evaluate(in), 1, "the same input flags without the floor")
}

func TestEvaluate_ConfidenceTracksAccuracy(t *testing.T) {
	d := NewDetector(Sensitivity{}, zap.NewNop())
	userID := uuid.New()

	learned := &feedback.PersonalizedThreshold{
		UserID:             userID,
		Metric:             health.MetricRestingHeartRate,
		ZScoreThreshold:    1.5,
		DeviationThreshold: 8,
		ConfirmedCount:     9,
		FalsePositiveCount: 1,
		AdjustmentFactor:   0.84,
	}

	results := d.Evaluate(Input{
		UserID:    userID,
		Currents:  map[health.Metric]float64{health.MetricRestingHeartRate: 85},
		Baselines: map[health.Metric]*health.BaselineStats{health.MetricRestingHeartRate: baselineWith(71, 2, 20)},
		Learned:   map[health.Metric]*feedback.PersonalizedThreshold{health.MetricRestingHeartRate: learned},
	})
	require.Len(t, results, 1)
	assert.InDelta(t, 0.3+0.9*0.5, results[0].Confidence, 1e-9)
}
