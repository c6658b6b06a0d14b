package detection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/domain/anomaly"
	"github.com/davidleathers/health-insights-backend/internal/domain/errors"
	"github.com/davidleathers/health-insights-backend/internal/domain/feedback"
	"github.com/davidleathers/health-insights-backend/internal/domain/health"
	"github.com/davidleathers/health-insights-backend/internal/metrics"
	"github.com/davidleathers/health-insights-backend/internal/service/baseline"
)

// Store is the slice of the external time-series store the detection pass
// reads and writes. The engine is agnostic to the store's query dialect; it
// needs only windowed aggregation and point inserts.
type Store interface {
	QueryWindowSamples(ctx context.Context, userID uuid.UUID, metricSet []health.Metric, windowDays int) ([]health.Sample, error)
	QueryRecentAggregates(ctx context.Context, userID uuid.UUID, metricSet []health.Metric, lookbackHours int) (map[health.Metric]float64, error)
	InsertAnomalies(ctx context.Context, results []anomaly.Result) error
}

// ThresholdReader loads learned per-user threshold overrides.
type ThresholdReader interface {
	ListThresholds(ctx context.Context, userID uuid.UUID) ([]feedback.PersonalizedThreshold, error)
}

// SuppressionReader loads active data-quality suppressions.
type SuppressionReader interface {
	ListActiveSuppressions(ctx context.Context, userID uuid.UUID, now time.Time) ([]feedback.Suppression, error)
}

// PatternSink receives the final anomaly list for asynchronous pattern
// library upsert and matching.
type PatternSink interface {
	Observe(ctx context.Context, userID uuid.UUID, results []anomaly.Result)
}

// Gate throttles how often a full detection pass may run per user. It is
// advisory: a gate failure never blocks detection.
type Gate interface {
	Allow(ctx context.Context, userID uuid.UUID) bool
	Reset(ctx context.Context, userID uuid.UUID)
}

// Config carries the per-pass tunables.
type Config struct {
	WindowDays    int
	LookbackHours int
	Sensitivity   Sensitivity
	// PatternSinkTimeout bounds the async pattern library write.
	PatternSinkTimeout time.Duration
}

// RunOptions modify a single detection pass.
type RunOptions struct {
	// Privileged callers (the scheduler) bypass the cooldown gate.
	Privileged bool
	// Metrics narrows the pass; empty means all known metrics.
	Metrics []health.Metric
}

// Service runs the full per-user detection pipeline: baselines, individual
// deviation detection, pattern composition, persistence, async pattern
// library update.
type Service struct {
	store        Store
	thresholds   ThresholdReader
	suppressions SuppressionReader
	patterns     PatternSink
	gate         Gate
	calculator   *baseline.Calculator
	detector     *Detector
	composer     *Composer
	registry     *metrics.Registry
	logger       *zap.Logger
	tracer       trace.Tracer
	cfg          Config
}

// NewService wires the detection pipeline.
func NewService(
	store Store,
	thresholds ThresholdReader,
	suppressions SuppressionReader,
	patterns PatternSink,
	gate Gate,
	calculator *baseline.Calculator,
	registry *metrics.Registry,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = baseline.DefaultWindowDays
	}
	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = 48
	}
	if cfg.PatternSinkTimeout <= 0 {
		cfg.PatternSinkTimeout = 10 * time.Second
	}
	return &Service{
		store:        store,
		thresholds:   thresholds,
		suppressions: suppressions,
		patterns:     patterns,
		gate:         gate,
		calculator:   calculator,
		detector:     NewDetector(cfg.Sensitivity, logger),
		composer:     NewComposer(cfg.Sensitivity, logger),
		registry:     registry,
		logger:       logger,
		tracer:       otel.Tracer("service.detection"),
		cfg:          cfg,
	}
}

// Run executes one synchronous detection pass for a user. Once started it
// runs to completion; the cooldown gate is the only cancellation point.
//
// Store failures degrade to an empty result, never an error: this engine is
// advisory and must not fail upstream callers. The only error returned is
// ErrCooldownActive.
func (s *Service) Run(ctx context.Context, userID uuid.UUID, opts RunOptions) ([]anomaly.Result, error) {
	ctx, span := s.tracer.Start(ctx, "detection.run",
		trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()
	started := time.Now()

	if s.gate != nil {
		if opts.Privileged {
			// A forced pass does not claim the window; it also lifts any
			// active claim so fresher results are not locked behind a window
			// started before them.
			s.gate.Reset(ctx, userID)
		} else if !s.gate.Allow(ctx, userID) {
			s.logger.Debug("detection pass skipped, cooldown active",
				zap.String("user_id", userID.String()))
			return nil, errors.ErrCooldownActive
		}
	}

	metricSet := opts.Metrics
	if len(metricSet) == 0 {
		metricSet = health.AllMetrics()
	}

	baselines := s.calculator.Compute(ctx, userID, metricSet, s.cfg.WindowDays)
	if len(baselines) == 0 {
		s.finishRun(ctx, nil, started)
		return nil, nil
	}
	baselineByMetric := make(map[health.Metric]*health.BaselineStats, len(baselines))
	for i := range baselines {
		baselineByMetric[baselines[i].Metric] = &baselines[i]
	}

	currents, err := s.store.QueryRecentAggregates(ctx, userID, metricSet, s.cfg.LookbackHours)
	if err != nil {
		s.logger.Warn("recent aggregate query failed, skipping pass",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		s.finishRun(ctx, nil, started)
		return nil, nil
	}
	if len(currents) == 0 {
		s.finishRun(ctx, nil, started)
		return nil, nil
	}

	suppressed := s.loadSuppressions(ctx, userID)
	if s.registry != nil {
		for m := range currents {
			if suppressed[m] {
				s.registry.RecordSuppressionSkip(ctx, m.String())
			}
		}
	}

	candidates := s.detector.Evaluate(Input{
		UserID:     userID,
		Currents:   currents,
		Baselines:  baselineByMetric,
		Learned:    s.loadThresholds(ctx, userID),
		Suppressed: suppressed,
		Now:        started,
	})

	final := s.composer.Compose(candidates)
	if len(final) > 0 {
		if err := s.store.InsertAnomalies(ctx, final); err != nil {
			s.logger.Warn("anomaly persistence failed",
				zap.String("user_id", userID.String()),
				zap.Int("count", len(final)),
				zap.Error(err))
		}
		if s.patterns != nil {
			go s.observePatterns(userID, final)
		}
	}

	s.finishRun(ctx, final, started)
	return final, nil
}

// loadThresholds fails soft: no learned thresholds means defaults apply.
func (s *Service) loadThresholds(ctx context.Context, userID uuid.UUID) map[health.Metric]*feedback.PersonalizedThreshold {
	rows, err := s.thresholds.ListThresholds(ctx, userID)
	if err != nil {
		s.logger.Warn("personalized threshold load failed, using defaults",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil
	}
	out := make(map[health.Metric]*feedback.PersonalizedThreshold, len(rows))
	for i := range rows {
		out[rows[i].Metric] = &rows[i]
	}
	return out
}

// loadSuppressions fails soft: an unreadable suppression set suppresses
// nothing rather than everything.
func (s *Service) loadSuppressions(ctx context.Context, userID uuid.UUID) map[health.Metric]bool {
	rows, err := s.suppressions.ListActiveSuppressions(ctx, userID, time.Now())
	if err != nil {
		s.logger.Warn("suppression load failed, suppressing nothing",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil
	}
	out := make(map[health.Metric]bool, len(rows))
	for _, row := range rows {
		out[row.Metric] = true
	}
	return out
}

// observePatterns hands the final list to the pattern library on a detached
// context so the caller's request is not held open for library writes.
func (s *Service) observePatterns(userID uuid.UUID, results []anomaly.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PatternSinkTimeout)
	defer cancel()
	s.patterns.Observe(ctx, userID, results)
}

func (s *Service) finishRun(ctx context.Context, results []anomaly.Result, started time.Time) {
	if s.registry == nil {
		return
	}
	s.registry.RecordDetectionRun(ctx, time.Since(started))
	for _, r := range results {
		s.registry.RecordAnomaly(ctx, r.Metric.String(), string(r.Severity))
	}
}
