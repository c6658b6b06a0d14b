package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

func TestFingerprint_Deterministic(t *testing.T) {
	a := map[health.Metric]float64{
		health.MetricRestingHeartRate:     2.3,
		health.MetricHeartRateVariability: -1.8,
	}
	b := map[health.Metric]float64{
		health.MetricHeartRateVariability: -1.8,
		health.MetricRestingHeartRate:     2.3,
	}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Equal(t, "heart_rate_variability:-2.0|resting_heart_rate:+2.5", Fingerprint(a))
}

func TestFingerprint_QuantizationAbsorbsJitter(t *testing.T) {
	base := map[health.Metric]float64{health.MetricRestingHeartRate: 2.4}
	jittered := map[health.Metric]float64{health.MetricRestingHeartRate: 2.6}
	distinct := map[health.Metric]float64{health.MetricRestingHeartRate: 2.9}

	assert.Equal(t, Fingerprint(base), Fingerprint(jittered))
	assert.NotEqual(t, Fingerprint(base), Fingerprint(distinct))
}

func TestFingerprint_NegativeZeroNormalized(t *testing.T) {
	fp := Fingerprint(map[health.Metric]float64{health.MetricStepCount: -0.1})
	assert.Equal(t, "step_count:+0.0", fp)
}

func TestFingerprint_Empty(t *testing.T) {
	assert.Equal(t, "", Fingerprint(nil))
}

func TestSignatureOf_Sorted(t *testing.T) {
	sig := SignatureOf(map[health.Metric]float64{
		health.MetricStepCount:        -2.1,
		health.MetricBloodGlucose:     1.4,
		health.MetricRestingHeartRate: 1.9,
	})
	assert.Equal(t, []health.Metric{
		health.MetricBloodGlucose,
		health.MetricRestingHeartRate,
		health.MetricStepCount,
	}, sig)
}
