package pattern

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

// Pattern is a named, persisted, recurring multi-metric deviation signature
// for one user. Occurrences accumulate; patterns are never deleted.
type Pattern struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Fingerprint     string
	Name            string
	MetricSignature []health.Metric
	AverageZScores  map[health.Metric]float64
	OccurrenceCount int
	ConfidenceScore float64
	FirstObserved   time.Time
	LastObserved    time.Time
	TypicalOutcome  string
}

// Fingerprint derives the deterministic identity string for a multi-metric
// deviation signature. Metric names are sorted and each z-score is quantized
// to the nearest 0.5 keeping its sign, so the same physiological event maps
// to the same fingerprint regardless of input order or small z jitter.
func Fingerprint(zScores map[health.Metric]float64) string {
	if len(zScores) == 0 {
		return ""
	}

	metrics := make([]string, 0, len(zScores))
	for m := range zScores {
		metrics = append(metrics, string(m))
	}
	sort.Strings(metrics)

	parts := make([]string, 0, len(metrics))
	for _, m := range metrics {
		q := quantizeZ(zScores[health.Metric(m)])
		parts = append(parts, fmt.Sprintf("%s:%+.1f", m, q))
	}
	return strings.Join(parts, "|")
}

// quantizeZ rounds to the nearest 0.5 step. Negative zero normalizes to zero
// so "-0.0" never appears in a fingerprint.
func quantizeZ(z float64) float64 {
	q := math.Round(z*2) / 2
	if q == 0 {
		return 0
	}
	return q
}

// SignatureOf returns the sorted metric set of a z-score map.
func SignatureOf(zScores map[health.Metric]float64) []health.Metric {
	sig := make([]health.Metric, 0, len(zScores))
	for m := range zScores {
		sig = append(sig, m)
	}
	sort.Slice(sig, func(i, j int) bool { return sig[i] < sig[j] })
	return sig
}
