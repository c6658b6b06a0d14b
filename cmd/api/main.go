package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/api/rest"
	"github.com/davidleathers/health-insights-backend/internal/infrastructure/cache"
	"github.com/davidleathers/health-insights-backend/internal/infrastructure/config"
	"github.com/davidleathers/health-insights-backend/internal/infrastructure/database"
	"github.com/davidleathers/health-insights-backend/internal/infrastructure/repository"
	"github.com/davidleathers/health-insights-backend/internal/infrastructure/telemetry"
	"github.com/davidleathers/health-insights-backend/internal/metrics"
	"github.com/davidleathers/health-insights-backend/internal/service/baseline"
	"github.com/davidleathers/health-insights-backend/internal/service/detection"
	"github.com/davidleathers/health-insights-backend/internal/service/feedback"
	"github.com/davidleathers/health-insights-backend/internal/service/patternlib"
	"github.com/davidleathers/health-insights-backend/internal/service/seasonal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// detectionStore joins the sample and anomaly repositories into the single
// store surface the detection pipeline consumes.
type detectionStore struct {
	*repository.SampleRepository
	*repository.AnomalyRepository
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelProvider, err := telemetry.InitializeOpenTelemetry(ctx, &telemetry.Config{
		ServiceName:    "health-insights-backend",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer otelProvider.Shutdown(context.Background())

	registry, err := metrics.NewRegistry()
	if err != nil {
		return fmt.Errorf("creating metric registry: %w", err)
	}

	pool, err := database.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	redisCache, err := cache.NewRedisCache(&cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisCache.Close()

	samples := repository.NewSampleRepository(pool)
	anomalies := repository.NewAnomalyRepository(pool)
	thresholds := repository.NewThresholdRepository(pool)
	suppressions := repository.NewSuppressionRepository(pool)
	patterns := repository.NewPatternRepository(pool)

	gate := cache.NewCooldownGate(redisCache, cfg.Detection.CooldownWindow, logger)
	syncTracker := cache.NewSyncTracker(redisCache, cfg.Detection.SyncAttemptTTL, logger)
	library := patternlib.NewLibrary(patterns, registry, logger)
	calculator := baseline.NewCalculator(samples, logger, cfg.Detection.MinSampleCount)

	detectionSvc := detection.NewService(
		detectionStore{samples, anomalies},
		thresholds,
		suppressions,
		library,
		gate,
		calculator,
		registry,
		detection.Config{
			WindowDays:    cfg.Detection.BaselineWindowDays,
			LookbackHours: cfg.Detection.CurrentLookbackHours,
			Sensitivity: detection.Sensitivity{
				GlobalZScoreFloor:   cfg.Detection.GlobalZScoreFloor,
				GlobalMinConfidence: cfg.Detection.GlobalMinConfidence,
			},
			PatternSinkTimeout: cfg.Detection.PatternSinkTimeout,
		},
		logger,
	)

	feedbackSvc := feedback.NewService(anomalies, thresholds, suppressions, registry, logger)
	seasonalSvc := seasonal.NewAnalyzer(samples, logger)

	handler := rest.NewHandler(rest.Services{
		Detection: detectionSvc,
		Feedback:  feedbackSvc,
		Patterns:  patterns,
		Anomalies: anomalies,
		Samples:   samples,
		Seasonal:  seasonalSvc,
		Sync:      syncTracker,
	}, logger)

	server := rest.NewServer(&cfg.Server, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
