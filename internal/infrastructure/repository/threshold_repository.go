package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/davidleathers/health-insights-backend/internal/domain/feedback"
	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

// ThresholdRepository persists learned per-(user, metric) thresholds.
type ThresholdRepository struct {
	db db
}

// NewThresholdRepository creates a threshold repository over the given pool.
func NewThresholdRepository(db db) *ThresholdRepository {
	return &ThresholdRepository{db: db}
}

// GetThreshold returns the learned threshold for one (user, metric) pair, or
// (nil, nil) when nothing has been learned yet.
func (r *ThresholdRepository) GetThreshold(ctx context.Context, userID uuid.UUID, metric health.Metric) (*feedback.PersonalizedThreshold, error) {
	query := `
		SELECT user_id, metric, z_score_threshold, deviation_threshold,
		       false_positive_count, confirmed_count, adjustment_factor, updated_at
		FROM personalized_thresholds
		WHERE user_id = $1 AND metric = $2
	`

	t, err := scanThreshold(r.db.QueryRow(ctx, query, userID, metric.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get threshold: %w", err)
	}
	return t, nil
}

// ListThresholds returns all learned thresholds for the user.
func (r *ThresholdRepository) ListThresholds(ctx context.Context, userID uuid.UUID) ([]feedback.PersonalizedThreshold, error) {
	query := `
		SELECT user_id, metric, z_score_threshold, deviation_threshold,
		       false_positive_count, confirmed_count, adjustment_factor, updated_at
		FROM personalized_thresholds
		WHERE user_id = $1
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list thresholds: %w", err)
	}
	defer rows.Close()

	var out []feedback.PersonalizedThreshold
	for rows.Next() {
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan threshold: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// PutThreshold upserts one learned threshold row.
func (r *ThresholdRepository) PutThreshold(ctx context.Context, t feedback.PersonalizedThreshold) error {
	query := `
		INSERT INTO personalized_thresholds (
			user_id, metric, z_score_threshold, deviation_threshold,
			false_positive_count, confirmed_count, adjustment_factor, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, metric) DO UPDATE SET
			z_score_threshold = EXCLUDED.z_score_threshold,
			deviation_threshold = EXCLUDED.deviation_threshold,
			false_positive_count = EXCLUDED.false_positive_count,
			confirmed_count = EXCLUDED.confirmed_count,
			adjustment_factor = EXCLUDED.adjustment_factor,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.Exec(ctx, query,
		t.UserID, t.Metric.String(), t.ZScoreThreshold, t.DeviationThreshold,
		t.FalsePositiveCount, t.ConfirmedCount, t.AdjustmentFactor, t.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to put threshold: %w", err)
	}
	return nil
}

func scanThreshold(row pgx.Row) (*feedback.PersonalizedThreshold, error) {
	var t feedback.PersonalizedThreshold
	var metric string
	if err := row.Scan(
		&t.UserID, &metric, &t.ZScoreThreshold, &t.DeviationThreshold,
		&t.FalsePositiveCount, &t.ConfirmedCount, &t.AdjustmentFactor, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Metric = health.Metric(metric)
	return &t, nil
}

// SuppressionRepository persists data-quality suppressions.
type SuppressionRepository struct {
	db db
}

// NewSuppressionRepository creates a suppression repository over the given
// pool.
func NewSuppressionRepository(db db) *SuppressionRepository {
	return &SuppressionRepository{db: db}
}

// CreateSuppression records one suppression window.
func (r *SuppressionRepository) CreateSuppression(ctx context.Context, s feedback.Suppression) error {
	query := `
		INSERT INTO suppressions (user_id, metric, reason, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.db.Exec(ctx, query,
		s.UserID, s.Metric.String(), s.Reason, s.CreatedAt, s.ExpiresAt,
	); err != nil {
		return fmt.Errorf("failed to create suppression: %w", err)
	}
	return nil
}

// ListActiveSuppressions returns suppressions still in force at the given
// instant.
func (r *SuppressionRepository) ListActiveSuppressions(ctx context.Context, userID uuid.UUID, now time.Time) ([]feedback.Suppression, error) {
	query := `
		SELECT user_id, metric, reason, created_at, expires_at
		FROM suppressions
		WHERE user_id = $1 AND expires_at > $2
	`

	rows, err := r.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list suppressions: %w", err)
	}
	defer rows.Close()

	var out []feedback.Suppression
	for rows.Next() {
		var s feedback.Suppression
		var metric string
		if err := rows.Scan(&s.UserID, &metric, &s.Reason, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan suppression: %w", err)
		}
		s.Metric = health.Metric(metric)
		out = append(out, s)
	}
	return out, rows.Err()
}
