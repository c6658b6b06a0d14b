package feedback

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/domain/anomaly"
	fb "github.com/davidleathers/health-insights-backend/internal/domain/feedback"
	"github.com/davidleathers/health-insights-backend/internal/domain/health"
	"github.com/davidleathers/health-insights-backend/internal/metrics"
	"github.com/davidleathers/health-insights-backend/internal/service/detection"
)

const (
	// SuppressionTTL is how long a data-quality suppression lasts.
	SuppressionTTL = 7 * 24 * time.Hour

	// Adjustment steps: confirmations tighten slowly, false positives relax
	// fast. A user telling us we cried wolf matters more than one telling
	// us we were right.
	confirmStep       = 0.02
	falsePositiveStep = 0.1
)

// AnomalyStore reads and resolves persisted anomalies.
type AnomalyStore interface {
	GetAnomaly(ctx context.Context, id uuid.UUID) (*anomaly.Result, error)
	UpdateAnomalyOutcome(ctx context.Context, id uuid.UUID, outcome anomaly.Outcome, note string) error
}

// ThresholdStore persists learned per-(user, metric) thresholds.
// GetThreshold returns (nil, nil) when nothing has been learned yet.
type ThresholdStore interface {
	GetThreshold(ctx context.Context, userID uuid.UUID, metric health.Metric) (*fb.PersonalizedThreshold, error)
	PutThreshold(ctx context.Context, t fb.PersonalizedThreshold) error
}

// SuppressionWriter records new data-quality suppressions.
type SuppressionWriter interface {
	CreateSuppression(ctx context.Context, s fb.Suppression) error
}

// dataQualityVocabulary marks feedback text as describing a sensor or sync
// problem rather than a disputed reading.
var dataQualityVocabulary = []string{
	"device",
	"sensor",
	"sync",
	"duplicate",
	"inaccurate",
	"not wearing",
	"wasn't wearing",
	"glitch",
	"battery",
	"strap",
}

// Service is the feedback loop: it resolves anomaly outcomes, adapts
// per-user thresholds, and suppresses metrics the user reports as broken.
type Service struct {
	anomalies    AnomalyStore
	thresholds   ThresholdStore
	suppressions SuppressionWriter
	registry     *metrics.Registry
	logger       *zap.Logger
}

// NewService creates the feedback service.
func NewService(
	anomalies AnomalyStore,
	thresholds ThresholdStore,
	suppressions SuppressionWriter,
	registry *metrics.Registry,
	logger *zap.Logger,
) *Service {
	return &Service{
		anomalies:    anomalies,
		thresholds:   thresholds,
		suppressions: suppressions,
		registry:     registry,
		logger:       logger,
	}
}

// RecordFeedback resolves one anomaly and folds the signal into the user's
// personalized thresholds.
//
// It is idempotent: an unknown anomaly ID or an already-terminal outcome is
// a logged no-op, never an error to the caller, and the threshold
// adjustment is applied at most once per anomaly.
func (s *Service) RecordFeedback(ctx context.Context, userID, anomalyID uuid.UUID, confirmed bool, note string) error {
	result, err := s.anomalies.GetAnomaly(ctx, anomalyID)
	if err != nil || result == nil {
		s.logger.Info("feedback for unknown anomaly ignored",
			zap.String("anomaly_id", anomalyID.String()),
			zap.Error(err))
		return nil
	}
	if result.UserID != userID {
		s.logger.Warn("feedback user mismatch ignored",
			zap.String("anomaly_id", anomalyID.String()),
			zap.String("user_id", userID.String()))
		return nil
	}
	if result.Outcome.Terminal() {
		s.logger.Info("feedback for resolved anomaly ignored",
			zap.String("anomaly_id", anomalyID.String()),
			zap.String("outcome", string(result.Outcome)))
		return nil
	}

	outcome := anomaly.OutcomeFalsePositive
	if confirmed {
		outcome = anomaly.OutcomeConfirmed
	}
	if err := s.anomalies.UpdateAnomalyOutcome(ctx, anomalyID, outcome, note); err != nil {
		// Leave thresholds untouched so a retried feedback call cannot
		// double-apply the adjustment.
		s.logger.Warn("anomaly outcome update failed",
			zap.String("anomaly_id", anomalyID.String()),
			zap.Error(err))
		return nil
	}

	s.adjustThreshold(ctx, userID, result.Metric, confirmed)

	if note != "" {
		s.AnalyzeFeedbackText(ctx, userID, result.Metric, note)
	}

	if s.registry != nil {
		s.registry.RecordFeedback(ctx, string(outcome))
	}
	return nil
}

// adjustThreshold applies the learning rules: confirmations tighten the
// adjustment factor toward 0.8 and leave the thresholds themselves on their
// defaults; false positives relax both thresholds, capped at 2x default.
func (s *Service) adjustThreshold(ctx context.Context, userID uuid.UUID, metric health.Metric, confirmed bool) {
	policy := detection.PolicyFor(metric)

	t, err := s.thresholds.GetThreshold(ctx, userID, metric)
	if err != nil {
		s.logger.Warn("threshold load failed, adjustment skipped",
			zap.String("user_id", userID.String()),
			zap.String("metric", metric.String()),
			zap.Error(err))
		return
	}
	if t == nil {
		t = &fb.PersonalizedThreshold{
			UserID:             userID,
			Metric:             metric,
			ZScoreThreshold:    policy.ZScoreThreshold,
			DeviationThreshold: policy.DeviationThreshold,
			AdjustmentFactor:   1.0,
		}
	}

	if confirmed {
		t.ConfirmedCount++
		t.AdjustmentFactor = maxFloat(fb.MinAdjustmentFactor, t.AdjustmentFactor-confirmStep)
	} else {
		t.FalsePositiveCount++
		t.AdjustmentFactor = minFloat(fb.MaxAdjustmentFactor, t.AdjustmentFactor+falsePositiveStep)
		t.ZScoreThreshold = policy.ZScoreThreshold * t.AdjustmentFactor
		t.DeviationThreshold = policy.DeviationThreshold * t.AdjustmentFactor
	}
	t.UpdatedAt = time.Now()

	if err := s.thresholds.PutThreshold(ctx, *t); err != nil {
		s.logger.Warn("threshold persistence failed",
			zap.String("user_id", userID.String()),
			zap.String("metric", metric.String()),
			zap.Error(err))
	}
}

// AnalyzeFeedbackText scans free-text feedback for data-quality vocabulary
// and, on a match, suppresses the metric for the suppression TTL. Returns
// whether a suppression was created.
func (s *Service) AnalyzeFeedbackText(ctx context.Context, userID uuid.UUID, metric health.Metric, text string) bool {
	lowered := strings.ToLower(text)
	var matched string
	for _, term := range dataQualityVocabulary {
		if strings.Contains(lowered, term) {
			matched = term
			break
		}
	}
	if matched == "" {
		return false
	}

	now := time.Now()
	sup := fb.Suppression{
		UserID:    userID,
		Metric:    metric,
		Reason:    "data quality feedback: " + matched,
		CreatedAt: now,
		ExpiresAt: now.Add(SuppressionTTL),
	}
	if err := s.suppressions.CreateSuppression(ctx, sup); err != nil {
		s.logger.Warn("suppression persistence failed",
			zap.String("user_id", userID.String()),
			zap.String("metric", metric.String()),
			zap.Error(err))
		return false
	}

	s.logger.Info("metric suppressed on data-quality feedback",
		zap.String("user_id", userID.String()),
		zap.String("metric", metric.String()),
		zap.Time("expires_at", sup.ExpiresAt))
	return true
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
