package baseline

import (
	"math"
	"sort"

	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

// rejectOutliers drops values outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR]. When the
// IQR is numerically negligible the input is returned unchanged; rejecting
// against a near-zero band would discard valid samples on flat series.
func rejectOutliers(values []float64) []float64 {
	if len(values) < 4 {
		return values
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := percentileFromSorted(sorted, 25)
	q3 := percentileFromSorted(sorted, 75)
	iqr := q3 - q1
	if iqr < negligibleIQR {
		return values
	}

	lower := q1 - iqrMultiplier*iqr
	upper := q3 + iqrMultiplier*iqr

	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= lower && v <= upper {
			kept = append(kept, v)
		}
	}
	return kept
}

// summarize computes the rolling statistics on an already-filtered set.
// StdDev is population standard deviation and is nil on zero variance.
func summarize(values []float64) health.BaselineStats {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean := meanOf(values)

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	stats := health.BaselineStats{
		Mean:        mean,
		Min:         sorted[0],
		Max:         sorted[len(sorted)-1],
		SampleCount: len(values),
		P10:         percentileFromSorted(sorted, 10),
		P25:         percentileFromSorted(sorted, 25),
		P75:         percentileFromSorted(sorted, 75),
		P90:         percentileFromSorted(sorted, 90),
	}

	if variance > 0 {
		sd := math.Sqrt(variance)
		stats.StdDev = &sd
	}
	return stats
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentileFromSorted interpolates linearly between adjacent ranks.
func percentileFromSorted(sorted []float64, percentile float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (percentile / 100.0) * float64(len(sorted)-1)
	lower := int(rank)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	fraction := rank - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}
