package health

import (
	"time"

	"github.com/google/uuid"
)

// Sample is a single raw measurement owned by the external time-series store.
// Samples are immutable once ingested.
type Sample struct {
	Metric    Metric
	UserID    uuid.UUID
	Value     float64
	Timestamp time.Time
}

// BaselineStats holds outlier-filtered rolling statistics for one metric over
// a fixed window. It is derived state, recomputed per detection pass.
//
// StdDev is nil (never NaN) when the filtered window has zero variance.
type BaselineStats struct {
	Metric      Metric
	WindowDays  int
	Mean        float64
	StdDev      *float64
	Min         float64
	Max         float64
	SampleCount int
	P10         float64
	P25         float64
	P75         float64
	P90         float64
}

// ZScore standardizes a value against the baseline. Returns nil when the
// baseline has no usable standard deviation.
func (b *BaselineStats) ZScore(value float64) *float64 {
	if b.StdDev == nil || *b.StdDev <= 0 {
		return nil
	}
	z := (value - b.Mean) / *b.StdDev
	return &z
}
