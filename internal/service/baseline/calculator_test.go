package baseline

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/domain/health"
	"github.com/davidleathers/health-insights-backend/internal/testutil"
)

type stubSampleStore struct {
	samples []health.Sample
	err     error
}

func (s *stubSampleStore) QueryWindowSamples(_ context.Context, _ uuid.UUID, _ []health.Metric, _ int) ([]health.Sample, error) {
	return s.samples, s.err
}

func TestCompute_RejectsIQROutliers(t *testing.T) {
	store := &stubSampleStore{
		samples: testutil.Series(health.MetricRestingHeartRate, 72, 70, 71, 69, 73, 150),
	}
	calc := NewCalculator(store, zap.NewNop(), 0)

	stats := calc.Compute(context.Background(), uuid.New(), []health.Metric{health.MetricRestingHeartRate}, 30)
	require.Len(t, stats, 1)

	b := stats[0]
	assert.Equal(t, health.MetricRestingHeartRate, b.Metric)
	assert.Equal(t, 5, b.SampleCount, "the 150 reading should be excluded")
	assert.InDelta(t, 71.0, b.Mean, 1e-9)
	require.NotNil(t, b.StdDev)
	assert.InDelta(t, math.Sqrt(2), *b.StdDev, 1e-9)
	assert.InDelta(t, 69.0, b.Min, 1e-9)
	assert.InDelta(t, 73.0, b.Max, 1e-9)
}

func TestCompute_RequiresMinimumSamples(t *testing.T) {
	store := &stubSampleStore{
		samples: testutil.Series(health.MetricRestingHeartRate, 70, 72),
	}
	calc := NewCalculator(store, zap.NewNop(), 0)

	stats := calc.Compute(context.Background(), uuid.New(), []health.Metric{health.MetricRestingHeartRate}, 30)
	assert.Empty(t, stats)
}

func TestCompute_ZeroVarianceHasNilStdDev(t *testing.T) {
	store := &stubSampleStore{
		samples: testutil.Series(health.MetricRespiratoryRate, 14, 14, 14, 14, 14),
	}
	calc := NewCalculator(store, zap.NewNop(), 0)

	stats := calc.Compute(context.Background(), uuid.New(), []health.Metric{health.MetricRespiratoryRate}, 30)
	require.Len(t, stats, 1)

	assert.Nil(t, stats[0].StdDev)
	assert.InDelta(t, 14.0, stats[0].Mean, 1e-9)
	assert.Nil(t, stats[0].ZScore(20), "z-score must be nil, never NaN, on flat series")
}

func TestCompute_SleepFloorExcludesNaps(t *testing.T) {
	store := &stubSampleStore{
		samples: testutil.Series(health.MetricSleepDuration, 420, 440, 60, 90, 430),
	}
	calc := NewCalculator(store, zap.NewNop(), 0)

	stats := calc.Compute(context.Background(), uuid.New(), []health.Metric{health.MetricSleepDuration}, 30)
	require.Len(t, stats, 1)

	assert.Equal(t, 3, stats[0].SampleCount, "sub-180-minute records are not nights")
	assert.InDelta(t, 430.0, stats[0].Mean, 1e-9)
}

func TestCompute_StoreFailureYieldsNoBaselines(t *testing.T) {
	store := &stubSampleStore{err: errors.New("connection refused")}
	calc := NewCalculator(store, zap.NewNop(), 0)

	stats := calc.Compute(context.Background(), uuid.New(), nil, 30)
	assert.Empty(t, stats)
}

func TestRejectOutliers_NegligibleIQRKeepsAll(t *testing.T) {
	values := []float64{14.0, 14.001, 14.002, 14.001, 25.0}
	kept := rejectOutliers(values)
	assert.Len(t, kept, len(values), "near-zero IQR must not reject anything")
}

func TestRejectOutliers_SmallInputsUntouched(t *testing.T) {
	values := []float64{10, 200, 30}
	assert.Equal(t, values, rejectOutliers(values))
}
