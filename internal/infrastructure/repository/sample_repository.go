package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

// SampleRepository reads and writes raw metric samples.
type SampleRepository struct {
	db db
}

// NewSampleRepository creates a sample repository over the given pool.
func NewSampleRepository(db db) *SampleRepository {
	return &SampleRepository{db: db}
}

// InsertSamples bulk-inserts ingested measurements. Duplicate
// (user, metric, timestamp) rows are silently dropped so device re-syncs
// stay idempotent.
func (r *SampleRepository) InsertSamples(ctx context.Context, samples []health.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	query := `
		INSERT INTO metric_samples (user_id, metric, value, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, metric, recorded_at) DO NOTHING
	`

	for _, s := range samples {
		if _, err := r.db.Exec(ctx, query, s.UserID, s.Metric.String(), s.Value, s.Timestamp); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}
	return nil
}

// QueryWindowSamples returns all samples for the user and metrics within the
// trailing window, oldest first.
func (r *SampleRepository) QueryWindowSamples(ctx context.Context, userID uuid.UUID, metricSet []health.Metric, windowDays int) ([]health.Sample, error) {
	query := `
		SELECT user_id, metric, value, recorded_at
		FROM metric_samples
		WHERE user_id = $1
		  AND metric = ANY($2)
		  AND recorded_at >= now() - make_interval(days => $3)
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.Query(ctx, query, userID, metricNames(metricSet), windowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to query window samples: %w", err)
	}
	defer rows.Close()

	var samples []health.Sample
	for rows.Next() {
		var s health.Sample
		var metric string
		if err := rows.Scan(&s.UserID, &metric, &s.Value, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		s.Metric = health.Metric(metric)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// QueryRecentAggregates averages each metric's samples over the trailing
// lookback window. Metrics with no recent samples are absent from the map.
func (r *SampleRepository) QueryRecentAggregates(ctx context.Context, userID uuid.UUID, metricSet []health.Metric, lookbackHours int) (map[health.Metric]float64, error) {
	query := `
		SELECT metric, avg(value)
		FROM metric_samples
		WHERE user_id = $1
		  AND metric = ANY($2)
		  AND recorded_at >= now() - make_interval(hours => $3)
		GROUP BY metric
	`

	rows, err := r.db.Query(ctx, query, userID, metricNames(metricSet), lookbackHours)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent aggregates: %w", err)
	}
	defer rows.Close()

	out := make(map[health.Metric]float64)
	for rows.Next() {
		var metric string
		var avg float64
		if err := rows.Scan(&metric, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		out[health.Metric(metric)] = avg
	}
	return out, rows.Err()
}

// QueryHistory returns all samples for the user and metrics within the
// trailing number of calendar years, for seasonal analysis.
func (r *SampleRepository) QueryHistory(ctx context.Context, userID uuid.UUID, metricSet []health.Metric, years int) ([]health.Sample, error) {
	query := `
		SELECT user_id, metric, value, recorded_at
		FROM metric_samples
		WHERE user_id = $1
		  AND metric = ANY($2)
		  AND recorded_at >= now() - make_interval(years => $3)
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.Query(ctx, query, userID, metricNames(metricSet), years)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var samples []health.Sample
	for rows.Next() {
		var s health.Sample
		var metric string
		if err := rows.Scan(&s.UserID, &metric, &s.Value, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		s.Metric = health.Metric(metric)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// PruneSamples deletes samples older than the retention horizon. Returns the
// number of rows removed.
func (r *SampleRepository) PruneSamples(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM metric_samples WHERE recorded_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune samples: %w", err)
	}
	return tag.RowsAffected(), nil
}
