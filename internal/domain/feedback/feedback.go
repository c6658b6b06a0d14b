package feedback

import (
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

// Adjustment factor bounds for personalized thresholds. Repeated false
// positives can at most double the default thresholds; repeated
// confirmations can tighten them to 0.8x.
const (
	MinAdjustmentFactor = 0.8
	MaxAdjustmentFactor = 2.0
)

// PersonalizedThreshold is the learned per-(user, metric) threshold override.
// It is mutated only by feedback; writes are last-write-wins.
type PersonalizedThreshold struct {
	UserID             uuid.UUID
	Metric             health.Metric
	ZScoreThreshold    float64
	DeviationThreshold float64
	FalsePositiveCount int
	ConfirmedCount     int
	AdjustmentFactor   float64
	UpdatedAt          time.Time
}

// Accuracy is the share of this user's resolved anomalies for the metric
// that were confirmed real. Defaults to 0.5 with no history.
func (p *PersonalizedThreshold) Accuracy() float64 {
	total := p.ConfirmedCount + p.FalsePositiveCount
	if total == 0 {
		return 0.5
	}
	return float64(p.ConfirmedCount) / float64(total)
}

// Suppression is a time-boxed exclusion of one (user, metric) pair from
// detection, created when feedback text indicates a data-quality problem.
// Suppressions expire naturally; nothing deletes them.
type Suppression struct {
	UserID    uuid.UUID
	Metric    health.Metric
	Reason    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Active reports whether the suppression still applies at the given time.
func (s *Suppression) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
