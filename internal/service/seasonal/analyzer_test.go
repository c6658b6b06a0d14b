package seasonal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/domain/anomaly"
	"github.com/davidleathers/health-insights-backend/internal/domain/health"
	"github.com/davidleathers/health-insights-backend/internal/testutil"
)

type stubHistoryStore struct {
	samples []health.Sample
	err     error
}

func (s *stubHistoryStore) QueryHistory(_ context.Context, _ uuid.UUID, _ []health.Metric, _ int) ([]health.Sample, error) {
	return s.samples, s.err
}

// winterElevatedSeries builds years of history where December through
// February run at winterValue and every other month at baseValue, with
// samplesPerMonth readings in each month.
func winterElevatedSeries(metric health.Metric, years, samplesPerMonth int, baseValue, winterValue float64) []health.Sample {
	return testutil.SeasonalSeries(metric, years, samplesPerMonth, baseValue, map[time.Month]float64{
		time.December: winterValue,
		time.January:  winterValue,
		time.February: winterValue,
	})
}

func TestAnalyze_WinterElevation(t *testing.T) {
	store := &stubHistoryStore{
		samples: winterElevatedSeries(health.MetricRestingHeartRate, 6, 15, 60, 70),
	}
	a := NewAnalyzer(store, zap.NewNop())

	insights := a.Analyze(context.Background(), uuid.New(), []health.Metric{health.MetricRestingHeartRate})
	require.Len(t, insights, 1)

	in := insights[0]
	assert.Equal(t, SeasonWinter, in.Season)
	assert.Equal(t, anomaly.DirectionAbove, in.Direction)
	require.Len(t, in.AffectedMetrics, 1)
	assert.Equal(t, health.MetricRestingHeartRate, in.AffectedMetrics[0].Metric)
	// All-months mean is 62.5, winter runs at 70: a 12% lift.
	assert.InDelta(t, 12.0, in.AffectedMetrics[0].DeviationPct, 1e-9)
	assert.InDelta(t, 12.0, in.MeanMagnitudePct, 1e-9)
	// 0.4 + 0.1 for one affected metric + 0.1 per year caps at 0.9.
	assert.InDelta(t, 0.9, in.Confidence, 1e-9)
}

func TestAnalyze_TooFewYears(t *testing.T) {
	store := &stubHistoryStore{
		samples: winterElevatedSeries(health.MetricRestingHeartRate, 4, 15, 60, 70),
	}
	a := NewAnalyzer(store, zap.NewNop())

	insights := a.Analyze(context.Background(), uuid.New(), []health.Metric{health.MetricRestingHeartRate})
	assert.Empty(t, insights, "four years of history cannot support seasonal claims")
}

func TestAnalyze_SparseMonthExcluded(t *testing.T) {
	// Two readings a month over six years leaves every month bucket with 12
	// samples, under the per-month floor of 14.
	store := &stubHistoryStore{
		samples: winterElevatedSeries(health.MetricRestingHeartRate, 6, 2, 60, 70),
	}
	a := NewAnalyzer(store, zap.NewNop())

	insights := a.Analyze(context.Background(), uuid.New(), []health.Metric{health.MetricRestingHeartRate})
	assert.Empty(t, insights)
}

func TestAnalyze_MissingMonthExcluded(t *testing.T) {
	samples := winterElevatedSeries(health.MetricRestingHeartRate, 6, 15, 60, 70)
	var withoutJuly []health.Sample
	for _, s := range samples {
		if s.Timestamp.Month() == time.July {
			continue
		}
		withoutJuly = append(withoutJuly, s)
	}
	a := NewAnalyzer(&stubHistoryStore{samples: withoutJuly}, zap.NewNop())

	insights := a.Analyze(context.Background(), uuid.New(), []health.Metric{health.MetricRestingHeartRate})
	assert.Empty(t, insights)
}

func TestAnalyze_SmallShiftNotAffected(t *testing.T) {
	// Winter at 63 vs base 60: roughly a 4% lift, under the 10% bar.
	store := &stubHistoryStore{
		samples: winterElevatedSeries(health.MetricRestingHeartRate, 6, 15, 60, 63),
	}
	a := NewAnalyzer(store, zap.NewNop())

	insights := a.Analyze(context.Background(), uuid.New(), []health.Metric{health.MetricRestingHeartRate})
	assert.Empty(t, insights)
}

func TestAnalyze_StoreFailureYieldsNothing(t *testing.T) {
	a := NewAnalyzer(&stubHistoryStore{err: errors.New("timeout")}, zap.NewNop())
	insights := a.Analyze(context.Background(), uuid.New(), nil)
	assert.Empty(t, insights)
}
