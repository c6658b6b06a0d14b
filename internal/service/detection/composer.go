package detection

import (
	"sort"

	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/domain/anomaly"
	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

// patternConfidenceBoost is added to every anomaly matched into a composed
// multi-metric pattern, capped at the global confidence maximum.
const patternConfidenceBoost = 0.15

// Composed pattern rule names. These become the pattern names persisted by
// the pattern library.
const (
	PatternIllnessPrecursor   = "illness_precursor"
	PatternRecoveryDeficit    = "recovery_deficit"
	PatternGlucoseCorrelation = "glucose_correlation"
)

// compositionRule matches a fixed co-occurrence of directional anomalies.
// match returns the metrics participating in the pattern, or nil.
type compositionRule struct {
	name  string
	match func(byMetric map[health.Metric]anomaly.Result) []health.Metric
}

// illness precursor: at least two of temperature up, respiratory rate up,
// resting HR up, HRV down, SpO2 down.
func matchIllnessPrecursor(byMetric map[health.Metric]anomaly.Result) []health.Metric {
	want := map[health.Metric]anomaly.Direction{
		health.MetricWristTemperatureDeviation: anomaly.DirectionAbove,
		health.MetricRespiratoryRate:           anomaly.DirectionAbove,
		health.MetricRestingHeartRate:          anomaly.DirectionAbove,
		health.MetricHeartRateVariability:      anomaly.DirectionBelow,
		health.MetricBloodOxygen:               anomaly.DirectionBelow,
	}
	var matched []health.Metric
	for m, dir := range want {
		if r, ok := byMetric[m]; ok && r.Direction == dir {
			matched = append(matched, m)
		}
	}
	if len(matched) < 2 {
		return nil
	}
	return matched
}

// recovery deficit: HRV down plus a sleep shortfall.
func matchRecoveryDeficit(byMetric map[health.Metric]anomaly.Result) []health.Metric {
	hrv, ok := byMetric[health.MetricHeartRateVariability]
	if !ok || hrv.Direction != anomaly.DirectionBelow {
		return nil
	}
	matched := []health.Metric{health.MetricHeartRateVariability}
	for _, m := range []health.Metric{health.MetricSleepDuration, health.MetricDeepSleepDuration} {
		if r, ok := byMetric[m]; ok && r.Direction == anomaly.DirectionBelow {
			matched = append(matched, m)
		}
	}
	if len(matched) < 2 {
		return nil
	}
	return matched
}

// glucose correlation: a glucose-family anomaly co-occurring with an HRV,
// sleep, or activity anomaly in any direction.
func matchGlucoseCorrelation(byMetric map[health.Metric]anomaly.Result) []health.Metric {
	var glucose, companions []health.Metric
	for m := range byMetric {
		switch {
		case m.IsGlucoseFamily():
			glucose = append(glucose, m)
		case m == health.MetricHeartRateVariability, m.IsSleepFamily(),
			m == health.MetricStepCount, m == health.MetricActiveEnergy:
			companions = append(companions, m)
		}
	}
	if len(glucose) == 0 || len(companions) == 0 {
		return nil
	}
	return append(glucose, companions...)
}

// corroborationRequirement describes one acceptable second signal for a
// noisy-metric anomaly: the direction it must move given an above-baseline
// noisy reading, and the minimum deviation magnitude in percent. Crossing
// the corroborator's own threshold is not enough.
type corroborationRequirement struct {
	directionWhenAbove anomaly.Direction
	minDeviationPct    float64
}

// corroborationSet lists which vitals can vouch for a wrist-temperature
// anomaly. A fever-consistent picture is HR up, respiratory rate up, HRV
// down, SpO2 down; requirements invert when the temperature runs below.
var corroborationSet = map[health.Metric]corroborationRequirement{
	health.MetricRestingHeartRate:     {directionWhenAbove: anomaly.DirectionAbove, minDeviationPct: 5},
	health.MetricRespiratoryRate:      {directionWhenAbove: anomaly.DirectionAbove, minDeviationPct: 8},
	health.MetricHeartRateVariability: {directionWhenAbove: anomaly.DirectionBelow, minDeviationPct: 10},
	health.MetricBloodOxygen:          {directionWhenAbove: anomaly.DirectionBelow, minDeviationPct: 2},
}

// noisyMetrics are single-sensor, environmentally confounded signals that
// are never trusted alone.
var noisyMetrics = map[health.Metric]bool{
	health.MetricWristTemperatureDeviation: true,
}

// Composer correlates simultaneous anomalies into named patterns and vetoes
// weakly corroborated single-sensor signals.
type Composer struct {
	logger      *zap.Logger
	sensitivity Sensitivity
	rules       []compositionRule
}

// NewComposer creates a composer with the fixed co-occurrence rules.
func NewComposer(sensitivity Sensitivity, logger *zap.Logger) *Composer {
	return &Composer{
		logger:      logger,
		sensitivity: sensitivity,
		rules: []compositionRule{
			{name: PatternIllnessPrecursor, match: matchIllnessPrecursor},
			{name: PatternRecoveryDeficit, match: matchRecoveryDeficit},
			{name: PatternGlucoseCorrelation, match: matchGlucoseCorrelation},
		},
	}
}

// Compose labels pattern members, applies the confidence floor, then drops
// noisy-family anomalies with no qualifying corroborator. Candidates are
// never mutated; the returned results are derived copies keyed by ID.
func (c *Composer) Compose(candidates []anomaly.Result) []anomaly.Result {
	byMetric := make(map[health.Metric]anomaly.Result, len(candidates))
	for _, r := range candidates {
		byMetric[r.Metric] = r
	}

	labeled := make(map[health.Metric]anomaly.Result, len(byMetric))
	for m, r := range byMetric {
		labeled[m] = r
	}

	for _, rule := range c.rules {
		matched := rule.match(byMetric)
		if matched == nil {
			continue
		}
		c.logger.Debug("composition rule matched",
			zap.String("pattern", rule.name),
			zap.Int("members", len(matched)))

		for _, m := range matched {
			r := labeled[m]
			if r.PatternName != "" {
				continue
			}
			labeled[m] = r.WithPattern(rule.name, patternConfidenceBoost, relatedPeers(byMetric, matched, m))
		}
	}

	// Confidence floor.
	passing := make(map[health.Metric]anomaly.Result, len(labeled))
	for m, r := range labeled {
		if r.Confidence < c.sensitivity.GlobalMinConfidence {
			c.logger.Debug("anomaly below confidence floor",
				zap.String("metric", m.String()),
				zap.Float64("confidence", r.Confidence))
			continue
		}
		passing[m] = r
	}

	// Corroboration veto over the still-passing set.
	final := make([]anomaly.Result, 0, len(passing))
	for m, r := range passing {
		if !noisyMetrics[m] {
			final = append(final, r)
			continue
		}
		evidence := c.corroborate(r, passing)
		if evidence == nil {
			c.logger.Debug("noisy anomaly dropped, no corroboration",
				zap.String("metric", m.String()))
			continue
		}
		final = append(final, r.WithRelated(evidence))
	}

	sort.Slice(final, func(i, j int) bool { return final[i].Metric < final[j].Metric })
	return final
}

// corroborate returns the qualifying second signals for a noisy anomaly, or
// nil when none exists.
func (c *Composer) corroborate(noisy anomaly.Result, passing map[health.Metric]anomaly.Result) []anomaly.RelatedMetric {
	var evidence []anomaly.RelatedMetric
	for m, req := range corroborationSet {
		peer, ok := passing[m]
		if !ok {
			continue
		}

		expected := req.directionWhenAbove
		if noisy.Direction == anomaly.DirectionBelow {
			expected = invert(expected)
		}
		if peer.Direction != expected {
			continue
		}
		if absFloat(peer.DeviationPct) < req.minDeviationPct {
			continue
		}

		evidence = append(evidence, anomaly.RelatedMetric{
			Metric:       m,
			Value:        peer.CurrentValue,
			DeviationPct: peer.DeviationPct,
			Direction:    peer.Direction,
		})
	}
	return evidence
}

func relatedPeers(byMetric map[health.Metric]anomaly.Result, members []health.Metric, self health.Metric) []anomaly.RelatedMetric {
	related := make([]anomaly.RelatedMetric, 0, len(members)-1)
	for _, m := range members {
		if m == self {
			continue
		}
		peer := byMetric[m]
		related = append(related, anomaly.RelatedMetric{
			Metric:       m,
			Value:        peer.CurrentValue,
			DeviationPct: peer.DeviationPct,
			Direction:    peer.Direction,
		})
	}
	sort.Slice(related, func(i, j int) bool { return related[i].Metric < related[j].Metric })
	return related
}

func invert(d anomaly.Direction) anomaly.Direction {
	if d == anomaly.DirectionAbove {
		return anomaly.DirectionBelow
	}
	return anomaly.DirectionAbove
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
