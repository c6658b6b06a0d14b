package baseline

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

const (
	// DefaultWindowDays is the rolling window for baseline statistics.
	DefaultWindowDays = 30

	// DefaultMinSamples is the minimum filtered sample count required before
	// a baseline is emitted for a metric.
	DefaultMinSamples = 3

	// iqrMultiplier bounds the outlier rejection band.
	iqrMultiplier = 1.5

	// negligibleIQR skips outlier rejection when the interquartile range is
	// numerically negligible, avoiding floating-point instability on nearly
	// constant series.
	negligibleIQR = 0.01
)

// SampleStore is the slice of the external time-series store the calculator
// reads from.
type SampleStore interface {
	QueryWindowSamples(ctx context.Context, userID uuid.UUID, metrics []health.Metric, windowDays int) ([]health.Sample, error)
}

// Calculator computes outlier-filtered rolling statistics per metric.
type Calculator struct {
	store      SampleStore
	logger     *zap.Logger
	minSamples int
	floors     map[health.Metric]float64
}

// NewCalculator creates a baseline calculator with the default per-metric
// value floors. A non-positive minSamples falls back to the default.
func NewCalculator(store SampleStore, logger *zap.Logger, minSamples int) *Calculator {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &Calculator{
		store:      store,
		logger:     logger,
		minSamples: minSamples,
		floors:     defaultFloors(),
	}
}

// defaultFloors excludes partial records from baselines: naps shorter than
// three hours are not a night's sleep, and sub-15-minute deep sleep usually
// means a truncated recording.
func defaultFloors() map[health.Metric]float64 {
	return map[health.Metric]float64{
		health.MetricSleepDuration:     180,
		health.MetricDeepSleepDuration: 15,
		health.MetricRemSleepDuration:  10,
	}
}

// Compute fetches the user's raw samples for the window and returns one
// BaselineStats per metric that retains at least the minimum sample count
// after floor and IQR filtering.
//
// Compute never fails: a store outage or an empty window yields an empty
// slice, logged at warn, because absence of data is a normal state here.
func (c *Calculator) Compute(ctx context.Context, userID uuid.UUID, metrics []health.Metric, windowDays int) []health.BaselineStats {
	if len(metrics) == 0 {
		metrics = health.AllMetrics()
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}

	samples, err := c.store.QueryWindowSamples(ctx, userID, metrics, windowDays)
	if err != nil {
		c.logger.Warn("baseline sample query failed, returning no baselines",
			zap.String("user_id", userID.String()),
			zap.Int("window_days", windowDays),
			zap.Error(err))
		return nil
	}

	byMetric := make(map[health.Metric][]float64)
	for _, s := range samples {
		floor, hasFloor := c.floors[s.Metric]
		if hasFloor && s.Value < floor {
			continue
		}
		byMetric[s.Metric] = append(byMetric[s.Metric], s.Value)
	}

	out := make([]health.BaselineStats, 0, len(byMetric))
	for _, m := range metrics {
		values, ok := byMetric[m]
		if !ok || len(values) < c.minSamples {
			continue
		}

		filtered := rejectOutliers(values)
		if len(filtered) < c.minSamples {
			c.logger.Debug("metric excluded after outlier filtering",
				zap.String("user_id", userID.String()),
				zap.String("metric", m.String()),
				zap.Int("kept", len(filtered)))
			continue
		}

		stats := summarize(filtered)
		stats.Metric = m
		stats.WindowDays = windowDays
		out = append(out, stats)
	}

	return out
}

// FloorFor exposes the configured minimum-value floor for a metric, zero
// when none applies.
func (c *Calculator) FloorFor(m health.Metric) float64 {
	return c.floors[m]
}
