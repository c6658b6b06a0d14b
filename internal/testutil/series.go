// Package testutil provides deterministic sample-series builders shared by
// service tests.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

// Series builds one sample per day, newest first, from the given values.
func Series(metric health.Metric, values ...float64) []health.Sample {
	userID := uuid.New()
	out := make([]health.Sample, 0, len(values))
	for i, v := range values {
		out = append(out, health.Sample{
			Metric:    metric,
			UserID:    userID,
			Value:     v,
			Timestamp: time.Now().Add(-time.Duration(i) * 24 * time.Hour),
		})
	}
	return out
}

// SeasonalSeries builds multi-year history with samplesPerMonth readings in
// every month of every year. Months listed in monthValues use that value;
// all other months use baseValue. The series starts in 2020.
func SeasonalSeries(metric health.Metric, years, samplesPerMonth int, baseValue float64, monthValues map[time.Month]float64) []health.Sample {
	userID := uuid.New()
	var out []health.Sample
	for y := 0; y < years; y++ {
		for m := time.January; m <= time.December; m++ {
			value := baseValue
			if v, ok := monthValues[m]; ok {
				value = v
			}
			for d := 1; d <= samplesPerMonth; d++ {
				out = append(out, health.Sample{
					Metric:    metric,
					UserID:    userID,
					Value:     value,
					Timestamp: time.Date(2020+y, m, d, 8, 0, 0, 0, time.UTC),
				})
			}
		}
	}
	return out
}
