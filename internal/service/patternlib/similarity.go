package patternlib

import (
	"math"

	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

// Score weights: metric co-occurrence alone is a weak identity signal, so
// the direction-gated, distance-scaled cosine term dominates.
const (
	jaccardWeight = 0.20
	cosineWeight  = 0.80

	// distanceScale loosens the Euclidean-distance penalty as more metrics
	// are shared.
	distanceScale = 1.5
)

// Similarity scores how closely a candidate z-score signature matches a
// stored pattern's averages, in [0, 1].
//
// A sign disagreement on any shared metric disqualifies the pattern
// outright: HRV crashing is not the same event as HRV surging, no matter
// how similar the magnitudes. Same-direction but differently-sized
// deviations still match, discounted by an exponential penalty on the
// Euclidean distance between the shared vectors.
func Similarity(candidate, stored map[health.Metric]float64) float64 {
	if len(candidate) == 0 || len(stored) == 0 {
		return 0
	}

	var shared []health.Metric
	for m := range candidate {
		if _, ok := stored[m]; ok {
			shared = append(shared, m)
		}
	}
	if len(shared) == 0 {
		return 0
	}

	union := len(candidate) + len(stored) - len(shared)
	jaccard := float64(len(shared)) / float64(union)

	// Direction gate: any sign mismatch vetoes the whole pattern.
	for _, m := range shared {
		a, b := candidate[m], stored[m]
		if (a > 0 && b < 0) || (a < 0 && b > 0) {
			return 0
		}
	}

	var dot, normA, normB, distSq float64
	for _, m := range shared {
		a, b := candidate[m], stored[m]
		dot += a * b
		normA += a * a
		normB += b * b
		d := a - b
		distSq += d * d
	}

	var gated float64
	if normA > 0 && normB > 0 {
		cosine := dot / (math.Sqrt(normA) * math.Sqrt(normB))
		rescaled := (cosine + 1) / 2
		penalty := math.Exp(-math.Sqrt(distSq) / (float64(len(shared)) * distanceScale))
		gated = rescaled * penalty
	}

	return jaccardWeight*jaccard + cosineWeight*gated
}
