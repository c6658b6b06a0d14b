package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/davidleathers/health-insights-backend/internal/domain/anomaly"
	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

// AnomalyRepository persists detected anomalies and their feedback
// resolutions.
type AnomalyRepository struct {
	db db
}

// NewAnomalyRepository creates an anomaly repository over the given pool.
func NewAnomalyRepository(db db) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

// InsertAnomalies writes one detection pass's results.
func (r *AnomalyRepository) InsertAnomalies(ctx context.Context, results []anomaly.Result) error {
	query := `
		INSERT INTO anomalies (
			id, user_id, metric, current_value, baseline_value,
			deviation_abs, deviation_pct, z_score, direction, severity,
			pattern_name, related_metrics, confidence, detected_at, outcome
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)
	`

	for _, res := range results {
		related, err := json.Marshal(res.RelatedMetrics)
		if err != nil {
			return fmt.Errorf("failed to marshal related metrics: %w", err)
		}

		if _, err := r.db.Exec(ctx, query,
			res.ID, res.UserID, res.Metric.String(), res.CurrentValue, res.BaselineValue,
			res.DeviationAbs, res.DeviationPct, res.ZScore, string(res.Direction), string(res.Severity),
			res.PatternName, related, res.Confidence, res.DetectedAt, string(res.Outcome),
		); err != nil {
			return fmt.Errorf("failed to insert anomaly %s: %w", res.ID, err)
		}
	}
	return nil
}

// GetAnomaly retrieves one anomaly by ID. Returns (nil, nil) when no row
// exists.
func (r *AnomalyRepository) GetAnomaly(ctx context.Context, id uuid.UUID) (*anomaly.Result, error) {
	query := `
		SELECT id, user_id, metric, current_value, baseline_value,
		       deviation_abs, deviation_pct, z_score, direction, severity,
		       pattern_name, related_metrics, confidence, detected_at, outcome
		FROM anomalies
		WHERE id = $1
	`

	res, err := scanAnomaly(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get anomaly: %w", err)
	}
	return res, nil
}

// UpdateAnomalyOutcome moves a pending anomaly to a terminal outcome. The
// pending guard makes the transition single-shot even under concurrent
// feedback.
func (r *AnomalyRepository) UpdateAnomalyOutcome(ctx context.Context, id uuid.UUID, outcome anomaly.Outcome, note string) error {
	query := `
		UPDATE anomalies
		SET outcome = $2, feedback_note = $3, resolved_at = now()
		WHERE id = $1 AND outcome = 'pending'
	`

	tag, err := r.db.Exec(ctx, query, id, string(outcome), note)
	if err != nil {
		return fmt.Errorf("failed to update anomaly outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("anomaly %s not pending", id)
	}
	return nil
}

// ListAnomalies returns the user's most recent anomalies, newest first.
func (r *AnomalyRepository) ListAnomalies(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]anomaly.Result, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, user_id, metric, current_value, baseline_value,
		       deviation_abs, deviation_pct, z_score, direction, severity,
		       pattern_name, related_metrics, confidence, detected_at, outcome
		FROM anomalies
		WHERE user_id = $1 AND detected_at >= $2
		ORDER BY detected_at DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	defer rows.Close()

	var results []anomaly.Result
	for rows.Next() {
		res, err := scanAnomaly(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		results = append(results, *res)
	}
	return results, rows.Err()
}

func scanAnomaly(row pgx.Row) (*anomaly.Result, error) {
	var res anomaly.Result
	var metric, direction, severity, outcome string
	var related []byte

	if err := row.Scan(
		&res.ID, &res.UserID, &metric, &res.CurrentValue, &res.BaselineValue,
		&res.DeviationAbs, &res.DeviationPct, &res.ZScore, &direction, &severity,
		&res.PatternName, &related, &res.Confidence, &res.DetectedAt, &outcome,
	); err != nil {
		return nil, err
	}

	res.Metric = health.Metric(metric)
	res.Direction = anomaly.Direction(direction)
	res.Severity = anomaly.Severity(severity)
	res.Outcome = anomaly.Outcome(outcome)
	if len(related) > 0 {
		if err := json.Unmarshal(related, &res.RelatedMetrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal related metrics: %w", err)
		}
	}
	return &res, nil
}
