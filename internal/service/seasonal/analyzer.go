package seasonal

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/health-insights-backend/internal/domain/anomaly"
	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

const (
	// Eligibility gates: season-scale conclusions need multi-year evidence.
	minYearsObserved   = 5
	minMonthsPresent   = 12
	minSamplesPerMonth = 14

	// affectedThresholdPct flags a metric for a season.
	affectedThresholdPct = 10.0

	maxSeasonalConfidence = 0.9
)

// Season is one of four fixed three-month spans.
type Season string

const (
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
)

var seasonMonths = map[Season][]time.Month{
	SeasonWinter: {time.December, time.January, time.February},
	SeasonSpring: {time.March, time.April, time.May},
	SeasonSummer: {time.June, time.July, time.August},
	SeasonAutumn: {time.September, time.October, time.November},
}

// seasonOrder keeps output deterministic.
var seasonOrder = []Season{SeasonWinter, SeasonSpring, SeasonSummer, SeasonAutumn}

// MetricDeviation is one metric's seasonal shift from its all-months mean.
type MetricDeviation struct {
	Metric       health.Metric
	DeviationPct float64
	Direction    anomaly.Direction
}

// Insight aggregates a season's affected metrics.
type Insight struct {
	Season           Season
	AffectedMetrics  []MetricDeviation
	MeanMagnitudePct float64
	Direction        anomaly.Direction
	Confidence       float64
}

// HistoryStore reads multi-year raw history from the time-series store.
type HistoryStore interface {
	QueryHistory(ctx context.Context, userID uuid.UUID, metricSet []health.Metric, years int) ([]health.Sample, error)
}

// Analyzer detects month/season-scale recurring deviations from multi-year
// history.
type Analyzer struct {
	store  HistoryStore
	logger *zap.Logger
}

// NewAnalyzer creates a seasonal analyzer.
func NewAnalyzer(store HistoryStore, logger *zap.Logger) *Analyzer {
	return &Analyzer{store: store, logger: logger}
}

// Analyze returns one insight per season with at least one affected metric.
// Metrics without enough history are skipped; store failures yield an empty
// result.
func (a *Analyzer) Analyze(ctx context.Context, userID uuid.UUID, metricSet []health.Metric) []Insight {
	if len(metricSet) == 0 {
		metricSet = health.AllMetrics()
	}

	samples, err := a.store.QueryHistory(ctx, userID, metricSet, minYearsObserved+1)
	if err != nil {
		a.logger.Warn("seasonal history query failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil
	}

	byMetric := make(map[health.Metric][]health.Sample)
	for _, s := range samples {
		byMetric[s.Metric] = append(byMetric[s.Metric], s)
	}

	type seasonHit struct {
		dev   MetricDeviation
		years int
	}
	hits := make(map[Season][]seasonHit)

	for _, m := range metricSet {
		series := byMetric[m]
		years, eligible := a.eligible(series)
		if !eligible {
			continue
		}

		allMean := meanValues(series)
		if allMean == 0 {
			continue
		}

		for season, months := range seasonMonths {
			seasonal := filterByMonths(series, months)
			if len(seasonal) == 0 {
				continue
			}
			deviationPct := (meanValues(seasonal) - allMean) / allMean * 100
			if math.Abs(deviationPct) < affectedThresholdPct {
				continue
			}

			dir := anomaly.DirectionAbove
			if deviationPct < 0 {
				dir = anomaly.DirectionBelow
			}
			hits[season] = append(hits[season], seasonHit{
				dev:   MetricDeviation{Metric: m, DeviationPct: deviationPct, Direction: dir},
				years: years,
			})
		}
	}

	var insights []Insight
	for _, season := range seasonOrder {
		seasonHits := hits[season]
		if len(seasonHits) == 0 {
			continue
		}

		var magnitude float64
		var above int
		var maxYears int
		devs := make([]MetricDeviation, 0, len(seasonHits))
		for _, h := range seasonHits {
			devs = append(devs, h.dev)
			magnitude += math.Abs(h.dev.DeviationPct)
			if h.dev.Direction == anomaly.DirectionAbove {
				above++
			}
			if h.years > maxYears {
				maxYears = h.years
			}
		}
		sort.Slice(devs, func(i, j int) bool { return devs[i].Metric < devs[j].Metric })

		direction := anomaly.DirectionBelow
		if above*2 >= len(seasonHits) {
			direction = anomaly.DirectionAbove
		}

		confidence := 0.4 + 0.1*float64(len(seasonHits)) + 0.1*float64(maxYears)
		insights = append(insights, Insight{
			Season:           season,
			AffectedMetrics:  devs,
			MeanMagnitudePct: magnitude / float64(len(seasonHits)),
			Direction:        direction,
			Confidence:       math.Min(maxSeasonalConfidence, confidence),
		})
	}

	return insights
}

// eligible enforces the history gates: at least five calendar years
// spanned, every calendar month represented, and a usable sample count in
// each represented month.
func (a *Analyzer) eligible(series []health.Sample) (yearsObserved int, ok bool) {
	if len(series) == 0 {
		return 0, false
	}

	perMonth := make(map[time.Month]int)
	minYear, maxYear := series[0].Timestamp.Year(), series[0].Timestamp.Year()
	for _, s := range series {
		perMonth[s.Timestamp.Month()]++
		y := s.Timestamp.Year()
		if y < minYear {
			minYear = y
		}
		if y > maxYear {
			maxYear = y
		}
	}

	yearsObserved = maxYear - minYear + 1
	if yearsObserved < minYearsObserved {
		return yearsObserved, false
	}
	if len(perMonth) < minMonthsPresent {
		return yearsObserved, false
	}
	for _, count := range perMonth {
		if count < minSamplesPerMonth {
			return yearsObserved, false
		}
	}
	return yearsObserved, true
}

func filterByMonths(series []health.Sample, months []time.Month) []health.Sample {
	wanted := make(map[time.Month]bool, len(months))
	for _, m := range months {
		wanted[m] = true
	}
	var out []health.Sample
	for _, s := range series {
		if wanted[s.Timestamp.Month()] {
			out = append(out, s)
		}
	}
	return out
}

func meanValues(series []health.Sample) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, s := range series {
		sum += s.Value
	}
	return sum / float64(len(series))
}
