package detection

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/domain/anomaly"
	"github.com/davidleathers/health-insights-backend/internal/domain/errors"
	fb "github.com/davidleathers/health-insights-backend/internal/domain/feedback"
	"github.com/davidleathers/health-insights-backend/internal/domain/health"
	"github.com/davidleathers/health-insights-backend/internal/metrics"
	"github.com/davidleathers/health-insights-backend/internal/service/baseline"
	"github.com/davidleathers/health-insights-backend/internal/testutil"
)

// stubRunStore backs both the baseline calculator and the detection store.
type stubRunStore struct {
	windowSamples  []health.Sample
	aggregates     map[health.Metric]float64
	aggregateErr   error
	aggregateCalls int
	inserted       [][]anomaly.Result
}

func (s *stubRunStore) QueryWindowSamples(_ context.Context, _ uuid.UUID, _ []health.Metric, _ int) ([]health.Sample, error) {
	return s.windowSamples, nil
}

func (s *stubRunStore) QueryRecentAggregates(_ context.Context, _ uuid.UUID, _ []health.Metric, _ int) (map[health.Metric]float64, error) {
	s.aggregateCalls++
	return s.aggregates, s.aggregateErr
}

func (s *stubRunStore) InsertAnomalies(_ context.Context, results []anomaly.Result) error {
	s.inserted = append(s.inserted, results)
	return nil
}

type stubGate struct {
	allow      bool
	allowCalls int
	resetCalls int
}

func (g *stubGate) Allow(context.Context, uuid.UUID) bool {
	g.allowCalls++
	return g.allow
}

func (g *stubGate) Reset(context.Context, uuid.UUID) {
	g.resetCalls++
}

type stubSink struct {
	observed chan []anomaly.Result
}

func (s *stubSink) Observe(_ context.Context, _ uuid.UUID, results []anomaly.Result) {
	s.observed <- results
}

type stubThresholdReader struct{}

func (stubThresholdReader) ListThresholds(context.Context, uuid.UUID) ([]fb.PersonalizedThreshold, error) {
	return nil, nil
}

type stubSuppressionReader struct {
	suppressions []fb.Suppression
}

func (s *stubSuppressionReader) ListActiveSuppressions(context.Context, uuid.UUID, time.Time) ([]fb.Suppression, error) {
	return s.suppressions, nil
}

// elevatedRunStore seeds a steady resting heart rate baseline and a current
// aggregate far enough above it to flag.
func elevatedRunStore() *stubRunStore {
	return &stubRunStore{
		windowSamples: testutil.Series(health.MetricRestingHeartRate, 70, 71, 72, 69, 73),
		aggregates:    map[health.Metric]float64{health.MetricRestingHeartRate: 85},
	}
}

func newRunService(store *stubRunStore, gate Gate, sink PatternSink, suppressions SuppressionReader, registry *metrics.Registry) *Service {
	if suppressions == nil {
		suppressions = &stubSuppressionReader{}
	}
	return NewService(
		store,
		stubThresholdReader{},
		suppressions,
		sink,
		gate,
		baseline.NewCalculator(store, zap.NewNop(), 0),
		registry,
		Config{PatternSinkTimeout: time.Second},
		zap.NewNop(),
	)
}

func TestRun_CooldownRefusal(t *testing.T) {
	store := elevatedRunStore()
	svc := newRunService(store, &stubGate{allow: false}, nil, nil, nil)

	results, err := svc.Run(context.Background(), uuid.New(), RunOptions{})
	require.ErrorIs(t, err, errors.ErrCooldownActive)
	assert.Nil(t, results)
	assert.Zero(t, store.aggregateCalls, "a refused pass must not touch the store")
}

func TestRun_PrivilegedBypassesAndLiftsCooldown(t *testing.T) {
	store := elevatedRunStore()
	gate := &stubGate{allow: false}
	svc := newRunService(store, gate, nil, nil, nil)

	results, err := svc.Run(context.Background(), uuid.New(), RunOptions{Privileged: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, gate.allowCalls, "a forced pass never claims the window")
	assert.Equal(t, 1, gate.resetCalls, "a forced pass lifts the active window")
}

func TestRun_AggregateFailureDegradesToEmpty(t *testing.T) {
	store := elevatedRunStore()
	store.aggregateErr = stderrors.New("connection refused")
	svc := newRunService(store, &stubGate{allow: true}, nil, nil, nil)

	results, err := svc.Run(context.Background(), uuid.New(), RunOptions{})
	require.NoError(t, err, "store outages degrade, they do not propagate")
	assert.Empty(t, results)
	assert.Empty(t, store.inserted)
}

func TestRun_PersistsBeforeReturnAndHandsOffPatterns(t *testing.T) {
	store := elevatedRunStore()
	sink := &stubSink{observed: make(chan []anomaly.Result, 1)}
	svc := newRunService(store, &stubGate{allow: true}, sink, nil, nil)

	results, err := svc.Run(context.Background(), uuid.New(), RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, health.MetricRestingHeartRate, results[0].Metric)
	assert.Equal(t, anomaly.DirectionAbove, results[0].Direction)

	require.Len(t, store.inserted, 1, "results must be persisted before Run returns")
	require.Len(t, store.inserted[0], 1)
	assert.Equal(t, results[0].ID, store.inserted[0][0].ID)

	select {
	case observed := <-sink.observed:
		require.Len(t, observed, 1)
		assert.Equal(t, results[0].ID, observed[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("pattern sink was never handed the results")
	}
}

func TestRun_EmptyResultSkipsPersistenceAndSink(t *testing.T) {
	store := elevatedRunStore()
	store.aggregates = map[health.Metric]float64{health.MetricRestingHeartRate: 71.5}
	sink := &stubSink{observed: make(chan []anomaly.Result, 1)}
	svc := newRunService(store, &stubGate{allow: true}, sink, nil, nil)

	results, err := svc.Run(context.Background(), uuid.New(), RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, store.inserted)
	assert.Empty(t, sink.observed)
}

func TestRun_SuppressionSkipCounted(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	registry, err := metrics.NewRegistry()
	require.NoError(t, err)

	store := elevatedRunStore()
	userID := uuid.New()
	suppressions := &stubSuppressionReader{suppressions: []fb.Suppression{{
		UserID:    userID,
		Metric:    health.MetricRestingHeartRate,
		Reason:    "data quality feedback: strap",
		CreatedAt: time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(time.Hour),
	}}}
	svc := newRunService(store, &stubGate{allow: true}, nil, suppressions, registry)

	results, err := svc.Run(context.Background(), userID, RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, results, "the suppressed metric must not be flagged")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var skips int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "detection.suppression_skips" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				skips += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), skips)
}
