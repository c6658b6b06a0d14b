package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/domain/anomaly"
	"github.com/davidleathers/health-insights-backend/internal/domain/errors"
	"github.com/davidleathers/health-insights-backend/internal/domain/health"
	"github.com/davidleathers/health-insights-backend/internal/domain/pattern"
	"github.com/davidleathers/health-insights-backend/internal/service/detection"
	"github.com/davidleathers/health-insights-backend/internal/service/seasonal"
)

// DetectionRunner runs one detection pass.
type DetectionRunner interface {
	Run(ctx context.Context, userID uuid.UUID, opts detection.RunOptions) ([]anomaly.Result, error)
}

// FeedbackRecorder resolves anomaly outcomes.
type FeedbackRecorder interface {
	RecordFeedback(ctx context.Context, userID, anomalyID uuid.UUID, confirmed bool, note string) error
}

// PatternReader lists a user's stored patterns.
type PatternReader interface {
	ListPatterns(ctx context.Context, userID uuid.UUID, minConfidence float64) ([]pattern.Pattern, error)
}

// AnomalyReader lists a user's recent anomalies.
type AnomalyReader interface {
	ListAnomalies(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]anomaly.Result, error)
}

// SampleIngestor accepts raw device measurements.
type SampleIngestor interface {
	InsertSamples(ctx context.Context, samples []health.Sample) error
}

// SeasonalAnalyzer computes season-scale insights.
type SeasonalAnalyzer interface {
	Analyze(ctx context.Context, userID uuid.UUID, metricSet []health.Metric) []seasonal.Insight
}

// SyncMarker tracks device sync attempts per user and source.
type SyncMarker interface {
	MarkAttempt(ctx context.Context, userID uuid.UUID, source string)
}

// Services holds everything the REST API needs.
type Services struct {
	Detection DetectionRunner
	Feedback  FeedbackRecorder
	Patterns  PatternReader
	Anomalies AnomalyReader
	Samples   SampleIngestor
	Seasonal  SeasonalAnalyzer
	Sync      SyncMarker
}

// Handler serves the engine's HTTP API.
type Handler struct {
	services Services
	logger   *zap.Logger
}

// NewHandler creates the REST handler.
func NewHandler(services Services, logger *zap.Logger) *Handler {
	return &Handler{services: services, logger: logger}
}

// RegisterRoutes attaches all routes to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("POST /api/v1/users/{id}/samples", h.handleIngestSamples)
	mux.HandleFunc("POST /api/v1/users/{id}/detect", h.handleDetect)
	mux.HandleFunc("GET /api/v1/users/{id}/anomalies", h.handleListAnomalies)
	mux.HandleFunc("GET /api/v1/users/{id}/patterns", h.handleListPatterns)
	mux.HandleFunc("GET /api/v1/users/{id}/seasonal", h.handleSeasonal)
	mux.HandleFunc("POST /api/v1/feedback", h.handleFeedback)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestRequest struct {
	Samples []struct {
		Metric    string    `json:"metric"`
		Value     float64   `json:"value"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"samples"`
}

func (h *Handler) handleIngestSamples(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewValidationError("INVALID_BODY", "request body must be valid JSON"))
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, errors.NewValidationError("EMPTY_BATCH", "at least one sample is required"))
		return
	}

	samples := make([]health.Sample, 0, len(req.Samples))
	for _, s := range req.Samples {
		samples = append(samples, health.Sample{
			UserID:    userID,
			Metric:    health.Metric(s.Metric),
			Value:     s.Value,
			Timestamp: s.Timestamp,
		})
	}

	if err := h.services.Samples.InsertSamples(r.Context(), samples); err != nil {
		h.logger.Error("sample ingest failed", zap.String("user_id", userID.String()), zap.Error(err))
		writeError(w, errors.NewInternalError("failed to store samples"))
		return
	}

	if h.services.Sync != nil {
		source := r.Header.Get("X-Device-Source")
		if source == "" {
			source = "manual"
		}
		h.services.Sync.MarkAttempt(r.Context(), userID, source)
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(samples)})
}

// SchedulerSourceHeader identifies detection requests issued by the internal
// scheduler. Scheduler passes bypass the per-user cooldown window.
const SchedulerSourceHeader = "X-Scheduler-Source"

type detectRequest struct {
	Metrics []string `json:"metrics,omitempty"`
}

type detectResponse struct {
	Anomalies []anomalyResponse `json:"anomalies"`
}

func (h *Handler) handleDetect(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	var req detectRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, errors.NewValidationError("INVALID_BODY", "request body must be valid JSON"))
			return
		}
	}

	var metricSet []health.Metric
	for _, m := range req.Metrics {
		metricSet = append(metricSet, health.Metric(m))
	}

	results, err := h.services.Detection.Run(r.Context(), userID, detection.RunOptions{
		Metrics:    metricSet,
		Privileged: r.Header.Get(SchedulerSourceHeader) != "",
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detectResponse{Anomalies: toAnomalyResponses(results)})
}

func (h *Handler) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	since := time.Now().AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, errors.NewValidationError("INVALID_SINCE", "since must be RFC3339"))
			return
		}
		since = parsed
	}

	results, err := h.services.Anomalies.ListAnomalies(r.Context(), userID, since, 100)
	if err != nil {
		h.logger.Error("anomaly list failed", zap.String("user_id", userID.String()), zap.Error(err))
		writeError(w, errors.NewInternalError("failed to list anomalies"))
		return
	}

	writeJSON(w, http.StatusOK, detectResponse{Anomalies: toAnomalyResponses(results)})
}

type patternResponse struct {
	ID              uuid.UUID          `json:"id"`
	Name            string             `json:"name"`
	Fingerprint     string             `json:"fingerprint"`
	Metrics         []health.Metric    `json:"metrics"`
	AverageZScores  map[string]float64 `json:"average_z_scores"`
	OccurrenceCount int                `json:"occurrence_count"`
	Confidence      float64            `json:"confidence"`
	FirstObserved   time.Time          `json:"first_observed"`
	LastObserved    time.Time          `json:"last_observed"`
}

func (h *Handler) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	patterns, err := h.services.Patterns.ListPatterns(r.Context(), userID, 0)
	if err != nil {
		h.logger.Error("pattern list failed", zap.String("user_id", userID.String()), zap.Error(err))
		writeError(w, errors.NewInternalError("failed to list patterns"))
		return
	}

	out := make([]patternResponse, 0, len(patterns))
	for _, p := range patterns {
		zs := make(map[string]float64, len(p.AverageZScores))
		for m, z := range p.AverageZScores {
			zs[m.String()] = z
		}
		out = append(out, patternResponse{
			ID:              p.ID,
			Name:            p.Name,
			Fingerprint:     p.Fingerprint,
			Metrics:         p.MetricSignature,
			AverageZScores:  zs,
			OccurrenceCount: p.OccurrenceCount,
			Confidence:      p.ConfidenceScore,
			FirstObserved:   p.FirstObserved,
			LastObserved:    p.LastObserved,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"patterns": out})
}

func (h *Handler) handleSeasonal(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}

	insights := h.services.Seasonal.Analyze(r.Context(), userID, nil)
	if insights == nil {
		insights = []seasonal.Insight{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

type feedbackRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	AnomalyID uuid.UUID `json:"anomaly_id"`
	Confirmed bool      `json:"confirmed"`
	Note      string    `json:"note,omitempty"`
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewValidationError("INVALID_BODY", "request body must be valid JSON"))
		return
	}
	if req.UserID == uuid.Nil || req.AnomalyID == uuid.Nil {
		writeError(w, errors.NewValidationError("MISSING_ID", "user_id and anomaly_id are required"))
		return
	}

	if err := h.services.Feedback.RecordFeedback(r.Context(), req.UserID, req.AnomalyID, req.Confirmed, req.Note); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (h *Handler) pathUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, errors.NewValidationError("INVALID_USER_ID", "user id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

type anomalyResponse struct {
	ID             uuid.UUID               `json:"id"`
	Metric         health.Metric           `json:"metric"`
	CurrentValue   float64                 `json:"current_value"`
	BaselineValue  float64                 `json:"baseline_value"`
	DeviationPct   float64                 `json:"deviation_pct"`
	ZScore         *float64                `json:"z_score,omitempty"`
	Direction      anomaly.Direction       `json:"direction"`
	Severity       anomaly.Severity        `json:"severity"`
	PatternName    string                  `json:"pattern_name,omitempty"`
	RelatedMetrics []anomaly.RelatedMetric `json:"related_metrics,omitempty"`
	Confidence     float64                 `json:"confidence"`
	DetectedAt     time.Time               `json:"detected_at"`
	Outcome        anomaly.Outcome         `json:"outcome"`
}

func toAnomalyResponses(results []anomaly.Result) []anomalyResponse {
	out := make([]anomalyResponse, 0, len(results))
	for _, r := range results {
		out = append(out, anomalyResponse{
			ID:             r.ID,
			Metric:         r.Metric,
			CurrentValue:   r.CurrentValue,
			BaselineValue:  r.BaselineValue,
			DeviationPct:   r.DeviationPct,
			ZScore:         r.ZScore,
			Direction:      r.Direction,
			Severity:       r.Severity,
			PatternName:    r.PatternName,
			RelatedMetrics: r.RelatedMetrics,
			Confidence:     r.Confidence,
			DetectedAt:     r.DetectedAt,
			Outcome:        r.Outcome,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := errors.GetStatusCode(err)
	code := "INTERNAL_ERROR"
	message := "an unexpected error occurred"
	if appErr, ok := err.(*errors.AppError); ok {
		code = appErr.Code
		message = appErr.Message
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
