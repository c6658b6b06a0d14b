package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/davidleathers/health-insights-backend/internal/domain/health"
	"github.com/davidleathers/health-insights-backend/internal/domain/pattern"
)

// PatternRepository persists the per-user pattern library.
type PatternRepository struct {
	db db
}

// NewPatternRepository creates a pattern repository over the given pool.
func NewPatternRepository(db db) *PatternRepository {
	return &PatternRepository{db: db}
}

// GetPatternByFingerprint returns the user's pattern for a fingerprint, or
// (nil, nil) when none exists.
func (r *PatternRepository) GetPatternByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (*pattern.Pattern, error) {
	query := patternSelect + ` WHERE user_id = $1 AND fingerprint = $2`

	p, err := scanPattern(r.db.QueryRow(ctx, query, userID, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	return p, nil
}

// InsertPattern writes a first-seen pattern.
func (r *PatternRepository) InsertPattern(ctx context.Context, p *pattern.Pattern) error {
	signature, zScores, err := marshalPattern(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO patterns (
			id, user_id, fingerprint, name, metric_signature, average_z_scores,
			occurrence_count, confidence_score, first_observed, last_observed, typical_outcome
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	if _, err := r.db.Exec(ctx, query,
		p.ID, p.UserID, p.Fingerprint, p.Name, signature, zScores,
		p.OccurrenceCount, p.ConfidenceScore, p.FirstObserved, p.LastObserved, p.TypicalOutcome,
	); err != nil {
		return fmt.Errorf("failed to insert pattern: %w", err)
	}
	return nil
}

// UpdatePattern rewrites a recurring pattern's mutable fields.
func (r *PatternRepository) UpdatePattern(ctx context.Context, p *pattern.Pattern) error {
	_, zScores, err := marshalPattern(p)
	if err != nil {
		return err
	}

	query := `
		UPDATE patterns
		SET average_z_scores = $2, occurrence_count = $3, confidence_score = $4,
		    last_observed = $5, typical_outcome = $6
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		p.ID, zScores, p.OccurrenceCount, p.ConfidenceScore, p.LastObserved, p.TypicalOutcome,
	)
	if err != nil {
		return fmt.Errorf("failed to update pattern: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pattern %s not found", p.ID)
	}
	return nil
}

// ListPatterns returns the user's patterns at or above the confidence floor.
func (r *PatternRepository) ListPatterns(ctx context.Context, userID uuid.UUID, minConfidence float64) ([]pattern.Pattern, error) {
	query := patternSelect + ` WHERE user_id = $1 AND confidence_score >= $2 ORDER BY last_observed DESC`

	rows, err := r.db.Query(ctx, query, userID, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer rows.Close()

	var out []pattern.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

const patternSelect = `
	SELECT id, user_id, fingerprint, name, metric_signature, average_z_scores,
	       occurrence_count, confidence_score, first_observed, last_observed, typical_outcome
	FROM patterns`

func marshalPattern(p *pattern.Pattern) (signature, zScores []byte, err error) {
	signature, err = json.Marshal(p.MetricSignature)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal metric signature: %w", err)
	}
	zScores, err = json.Marshal(p.AverageZScores)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal z-scores: %w", err)
	}
	return signature, zScores, nil
}

func scanPattern(row pgx.Row) (*pattern.Pattern, error) {
	var p pattern.Pattern
	var signature, zScores []byte

	if err := row.Scan(
		&p.ID, &p.UserID, &p.Fingerprint, &p.Name, &signature, &zScores,
		&p.OccurrenceCount, &p.ConfidenceScore, &p.FirstObserved, &p.LastObserved, &p.TypicalOutcome,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(signature, &p.MetricSignature); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metric signature: %w", err)
	}
	p.AverageZScores = make(map[health.Metric]float64)
	if err := json.Unmarshal(zScores, &p.AverageZScores); err != nil {
		return nil, fmt.Errorf("failed to unmarshal z-scores: %w", err)
	}
	return &p, nil
}
