package detection

import (
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/domain/anomaly"
	"github.com/davidleathers/health-insights-backend/internal/domain/feedback"
	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

const (
	// baseConfidenceFloor anchors confidence before historical accuracy is
	// mixed in.
	baseConfidenceFloor = 0.3
	// accuracyScaleFactor weights the user's historical confirm rate.
	accuracyScaleFactor = 0.5
	// defaultAccuracy applies when the user has no resolved anomalies yet.
	defaultAccuracy = 0.5
)

// Sensitivity carries the admin-configured global bounds read at detection
// time. The z floor can only raise sensitivity requirements, never relax a
// metric's own threshold.
type Sensitivity struct {
	GlobalZScoreFloor   float64
	GlobalMinConfidence float64
}

// Input is one user's assembled detection context for a single pass.
type Input struct {
	UserID     uuid.UUID
	Currents   map[health.Metric]float64
	Baselines  map[health.Metric]*health.BaselineStats
	Learned    map[health.Metric]*feedback.PersonalizedThreshold
	Suppressed map[health.Metric]bool
	Now        time.Time
}

// Detector flags individual metric deviations against personal baselines.
type Detector struct {
	logger      *zap.Logger
	sensitivity Sensitivity
}

// NewDetector creates a detector with the given global sensitivity bounds.
func NewDetector(sensitivity Sensitivity, logger *zap.Logger) *Detector {
	return &Detector{logger: logger, sensitivity: sensitivity}
}

// Evaluate returns candidate anomalies (outcome pending, not yet persisted)
// for every metric with a current value, a qualifying baseline, and no
// active suppression.
func (d *Detector) Evaluate(in Input) []anomaly.Result {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	var results []anomaly.Result
	for metric, current := range in.Currents {
		if in.Suppressed[metric] {
			d.logger.Debug("metric suppressed, skipping detection",
				zap.String("user_id", in.UserID.String()),
				zap.String("metric", metric.String()))
			continue
		}

		base, ok := in.Baselines[metric]
		if !ok || base == nil {
			continue
		}

		policy := PolicyFor(metric)

		// Absolute-kind metrics carry their own deviation; a magnitude past
		// the sensor ceiling is corrupt input, not a signal.
		if policy.Kind == KindAbsolute && policy.SensorErrorCeiling > 0 &&
			math.Abs(current) > policy.SensorErrorCeiling {
			d.logger.Debug("sensor-error reading discarded",
				zap.String("user_id", in.UserID.String()),
				zap.String("metric", metric.String()),
				zap.Float64("value", current))
			continue
		}

		deviationAbs := current - base.Mean
		zScore := base.ZScore(current)

		var magnitude float64
		var deviationPct float64
		switch policy.Kind {
		case KindAbsolute:
			magnitude = math.Abs(current)
			deviationPct = current
		default:
			if base.Mean != 0 {
				deviationPct = deviationAbs / base.Mean * 100
			}
			magnitude = math.Abs(deviationPct)
		}

		learned := in.Learned[metric]
		zThreshold, devThreshold := d.effectiveThresholds(policy, learned)

		crossed := magnitude >= devThreshold
		if !crossed && zScore != nil && math.Abs(*zScore) >= zThreshold {
			crossed = true
		}
		if !crossed {
			continue
		}

		direction := anomaly.DirectionAbove
		if policy.Kind == KindAbsolute {
			if current < 0 {
				direction = anomaly.DirectionBelow
			}
		} else if deviationAbs < 0 {
			direction = anomaly.DirectionBelow
		}

		if policy.Direction == DirectionHigh && direction == anomaly.DirectionBelow {
			continue
		}
		if policy.Direction == DirectionLow && direction == anomaly.DirectionAbove {
			continue
		}

		results = append(results, anomaly.Result{
			ID:            uuid.New(),
			UserID:        in.UserID,
			Metric:        metric,
			CurrentValue:  current,
			BaselineValue: base.Mean,
			DeviationAbs:  deviationAbs,
			DeviationPct:  deviationPct,
			ZScore:        zScore,
			Direction:     direction,
			Severity:      severityFor(policy, magnitude),
			Confidence:    d.confidence(learned),
			DetectedAt:    now,
			Outcome:       anomaly.OutcomePending,
		})
	}

	return results
}

// effectiveThresholds prefers learned per-user thresholds over the static
// policy. The global z floor is a lower bound on the z threshold: admins can
// force the engine to demand larger z-scores, never smaller ones.
func (d *Detector) effectiveThresholds(policy ThresholdPolicy, learned *feedback.PersonalizedThreshold) (zThreshold, devThreshold float64) {
	zThreshold = policy.ZScoreThreshold
	devThreshold = policy.DeviationThreshold
	if learned != nil {
		zThreshold = learned.ZScoreThreshold
		devThreshold = learned.DeviationThreshold
	}
	zThreshold = math.Max(d.sensitivity.GlobalZScoreFloor, zThreshold)
	return zThreshold, devThreshold
}

// confidence mixes the user's historical confirm rate for the metric into
// the base floor, capped at the global maximum.
func (d *Detector) confidence(learned *feedback.PersonalizedThreshold) float64 {
	accuracy := defaultAccuracy
	if learned != nil {
		accuracy = learned.Accuracy()
	}
	c := baseConfidenceFloor + accuracy*accuracyScaleFactor
	return math.Min(anomaly.MaxConfidence, c)
}

func severityFor(policy ThresholdPolicy, magnitude float64) anomaly.Severity {
	switch {
	case magnitude >= policy.Severity.High:
		return anomaly.SeverityHigh
	case magnitude >= policy.Severity.Moderate:
		return anomaly.SeverityModerate
	default:
		return anomaly.SeverityLow
	}
}
