package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds the engine's domain metrics.
type Registry struct {
	meter metric.Meter

	DetectionRuns     metric.Int64Counter
	DetectionDuration metric.Float64Histogram
	AnomalyCounter    metric.Int64Counter
	SuppressionSkips  metric.Int64Counter
	PatternMatches    metric.Int64Counter
	FeedbackCounter   metric.Int64Counter
}

// NewRegistry creates and registers all engine metrics.
func NewRegistry() (*Registry, error) {
	meter := otel.Meter("health-insights-backend")
	r := &Registry{meter: meter}

	var err error
	if r.DetectionRuns, err = meter.Int64Counter("detection.runs",
		metric.WithDescription("Completed detection passes")); err != nil {
		return nil, err
	}
	if r.DetectionDuration, err = meter.Float64Histogram("detection.duration",
		metric.WithDescription("Detection pass duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.AnomalyCounter, err = meter.Int64Counter("detection.anomalies",
		metric.WithDescription("Anomalies emitted, by metric and severity")); err != nil {
		return nil, err
	}
	if r.SuppressionSkips, err = meter.Int64Counter("detection.suppression_skips",
		metric.WithDescription("Metrics skipped due to an active suppression")); err != nil {
		return nil, err
	}
	if r.PatternMatches, err = meter.Int64Counter("patterns.matches",
		metric.WithDescription("Historical pattern matches returned")); err != nil {
		return nil, err
	}
	if r.FeedbackCounter, err = meter.Int64Counter("feedback.events",
		metric.WithDescription("Feedback events, by outcome")); err != nil {
		return nil, err
	}

	return r, nil
}

// RecordDetectionRun records one completed pass and its duration.
func (r *Registry) RecordDetectionRun(ctx context.Context, d time.Duration) {
	r.DetectionRuns.Add(ctx, 1)
	r.DetectionDuration.Record(ctx, d.Seconds())
}

// RecordAnomaly counts one emitted anomaly.
func (r *Registry) RecordAnomaly(ctx context.Context, metricName, severity string) {
	r.AnomalyCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("metric", metricName),
		attribute.String("severity", severity),
	))
}

// RecordSuppressionSkip counts a metric excluded by suppression.
func (r *Registry) RecordSuppressionSkip(ctx context.Context, metricName string) {
	r.SuppressionSkips.Add(ctx, 1, metric.WithAttributes(
		attribute.String("metric", metricName),
	))
}

// RecordPatternMatches counts matches returned by the pattern library.
func (r *Registry) RecordPatternMatches(ctx context.Context, n int) {
	r.PatternMatches.Add(ctx, int64(n))
}

// RecordFeedback counts one feedback resolution.
func (r *Registry) RecordFeedback(ctx context.Context, outcome string) {
	r.FeedbackCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
