package patternlib

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/domain/anomaly"
	"github.com/davidleathers/health-insights-backend/internal/domain/health"
	"github.com/davidleathers/health-insights-backend/internal/domain/pattern"
	"github.com/davidleathers/health-insights-backend/internal/metrics"
)

const (
	// DefaultMatchThreshold is the minimum similarity for a match.
	DefaultMatchThreshold = 0.7

	// minPatternConfidence excludes barely-trusted patterns from matching.
	minPatternConfidence = 0.3

	// maxMatches caps the returned match list.
	maxMatches = 10

	// newPatternConfidence seeds a first-seen pattern.
	newPatternConfidence = 0.5

	// reobservationBoost grows a pattern's confidence each time it recurs.
	reobservationBoost = 0.05

	maxPatternConfidence = 0.95
)

// Store persists per-user patterns. GetPatternByFingerprint returns
// (nil, nil) when no pattern exists for the fingerprint.
type Store interface {
	GetPatternByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (*pattern.Pattern, error)
	InsertPattern(ctx context.Context, p *pattern.Pattern) error
	UpdatePattern(ctx context.Context, p *pattern.Pattern) error
	ListPatterns(ctx context.Context, userID uuid.UUID, minConfidence float64) ([]pattern.Pattern, error)
}

// Match is a stored pattern scored against a candidate signature.
type Match struct {
	Pattern               pattern.Pattern
	Similarity            float64
	DaysSinceLastObserved int
}

// Library persists recurring fingerprinted patterns per user and matches
// new signatures against history.
type Library struct {
	store    Store
	registry *metrics.Registry
	logger   *zap.Logger
}

// NewLibrary creates a pattern library over the given store.
func NewLibrary(store Store, registry *metrics.Registry, logger *zap.Logger) *Library {
	return &Library{store: store, registry: registry, logger: logger}
}

// UpsertPattern records one observation of a multi-metric deviation
// signature. First sight creates the pattern; recurrence increments the
// occurrence count, refreshes lastObserved, and folds the new z-scores into
// the running averages.
func (l *Library) UpsertPattern(ctx context.Context, userID uuid.UUID, name string, zScores map[health.Metric]float64) (*pattern.Pattern, error) {
	fp := pattern.Fingerprint(zScores)
	if fp == "" {
		return nil, nil
	}

	existing, err := l.store.GetPatternByFingerprint(ctx, userID, fp)
	if err != nil {
		l.logger.Warn("pattern lookup failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, err
	}

	now := time.Now()
	if existing == nil {
		p := &pattern.Pattern{
			ID:              uuid.New(),
			UserID:          userID,
			Fingerprint:     fp,
			Name:            name,
			MetricSignature: pattern.SignatureOf(zScores),
			AverageZScores:  copyZScores(zScores),
			OccurrenceCount: 1,
			ConfidenceScore: newPatternConfidence,
			FirstObserved:   now,
			LastObserved:    now,
		}
		if err := l.store.InsertPattern(ctx, p); err != nil {
			l.logger.Warn("pattern insert failed",
				zap.String("user_id", userID.String()),
				zap.Error(err))
			return nil, err
		}
		return p, nil
	}

	existing.OccurrenceCount++
	existing.LastObserved = now
	n := float64(existing.OccurrenceCount)
	for m, z := range zScores {
		prev := existing.AverageZScores[m]
		existing.AverageZScores[m] = prev + (z-prev)/n
	}
	if existing.ConfidenceScore < maxPatternConfidence {
		existing.ConfidenceScore = minF(maxPatternConfidence, existing.ConfidenceScore+reobservationBoost)
	}

	if err := l.store.UpdatePattern(ctx, existing); err != nil {
		l.logger.Warn("pattern update failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, err
	}
	return existing, nil
}

// FindMatchingPatterns scores the candidate signature against the user's
// stored patterns and returns those at or above the threshold, best first,
// capped to the top ten.
func (l *Library) FindMatchingPatterns(ctx context.Context, userID uuid.UUID, zScores map[health.Metric]float64, threshold float64) ([]Match, error) {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	if len(zScores) == 0 {
		return nil, nil
	}

	stored, err := l.store.ListPatterns(ctx, userID, minPatternConfidence)
	if err != nil {
		l.logger.Warn("pattern list failed, no matches returned",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, nil
	}

	now := time.Now()
	var matches []Match
	for _, p := range stored {
		score := Similarity(zScores, p.AverageZScores)
		if score < threshold {
			continue
		}
		matches = append(matches, Match{
			Pattern:               p,
			Similarity:            score,
			DaysSinceLastObserved: int(now.Sub(p.LastObserved).Hours() / 24),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}

	if l.registry != nil && len(matches) > 0 {
		l.registry.RecordPatternMatches(ctx, len(matches))
	}
	return matches, nil
}

// Observe is the asynchronous sink fed by the detection pipeline. Composed
// anomalies are grouped by pattern name and recorded as one observation
// each.
func (l *Library) Observe(ctx context.Context, userID uuid.UUID, results []anomaly.Result) {
	groups := make(map[string]map[health.Metric]float64)
	for _, r := range results {
		if r.PatternName == "" || r.ZScore == nil {
			continue
		}
		g, ok := groups[r.PatternName]
		if !ok {
			g = make(map[health.Metric]float64)
			groups[r.PatternName] = g
		}
		g[r.Metric] = *r.ZScore
	}

	for name, zScores := range groups {
		if len(zScores) < 2 {
			continue
		}
		if _, err := l.UpsertPattern(ctx, userID, name, zScores); err != nil {
			continue
		}
	}
}

func copyZScores(in map[health.Metric]float64) map[health.Metric]float64 {
	out := make(map[health.Metric]float64, len(in))
	for m, z := range in {
		out[m] = z
	}
	return out
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
