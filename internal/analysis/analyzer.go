package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/models"
)

// Metric selects the value series DetectTrends analyzes.
type Metric string

const (
	// MetricDuration tracks test duration in seconds.
	MetricDuration Metric = "duration"
	// MetricOutcome tracks pass/fail as 1.0/0.0.
	MetricOutcome Metric = "outcome"
)

// Trend directions returned by DetectTrends.
const (
	TrendIncreasing       = "increasing"
	TrendDecreasing       = "decreasing"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

// trendWindow is the number of leading/trailing samples averaged to decide
// the trend direction.
const trendWindow = 3

// Analyzer bundles the analytics primitives. Methods are stateless and
// side-effect-free on their inputs.
type Analyzer struct {
	logger *logging.Logger
}

// NewAnalyzer creates a new analyzer instance
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		logger: logging.GetLogger("analysis"),
	}
}

// FailureRate returns the share of failed or errored results among all
// non-skipped results, 0.0 when there are none.
func (a *Analyzer) FailureRate(results []models.TestResult) float64 {
	relevant := 0
	failures := 0
	for _, r := range results {
		if r.Outcome == models.OutcomeSkipped {
			continue
		}
		relevant++
		if r.Outcome.IsFailed() {
			failures++
		}
	}
	if relevant == 0 {
		return 0.0
	}
	return float64(failures) / float64(relevant)
}

// TestMetrics summarizes a result set.
type TestMetrics struct {
	TotalCount  int     `json:"total_count"`
	FailureRate float64 `json:"failure_rate"`
	AvgDuration float64 `json:"avg_duration"`
	MinDuration float64 `json:"min_duration"`
	MaxDuration float64 `json:"max_duration"`
}

// TestMetrics computes count, failure rate and duration statistics; all
// fields are zero on empty input.
func (a *Analyzer) TestMetrics(results []models.TestResult) TestMetrics {
	if len(results) == 0 {
		return TestMetrics{}
	}

	sum := 0.0
	minDuration := results[0].Duration
	maxDuration := results[0].Duration
	for _, r := range results {
		sum += r.Duration
		if r.Duration < minDuration {
			minDuration = r.Duration
		}
		if r.Duration > maxDuration {
			maxDuration = r.Duration
		}
	}

	return TestMetrics{
		TotalCount:  len(results),
		FailureRate: a.FailureRate(results),
		AvgDuration: sum / float64(len(results)),
		MinDuration: minDuration,
		MaxDuration: maxDuration,
	}
}

// DataPoint is one sample of an analyzed series.
type DataPoint struct {
	Timestamp time.Time `json:"time"`
	Value     float64   `json:"value"`
}

// TrendAnalysis describes the direction and stability of a metric series.
type TrendAnalysis struct {
	Trend      string      `json:"trend"`
	Volatility float64     `json:"volatility"`
	DataPoints []DataPoint `json:"data_points"`
}

// DetectTrends orders the results by start time and compares the average of
// the first min(3,n) values against the average of the last min(3,n). A
// delta within 10% of the first average (or exactly zero) is stable,
// otherwise the sign of the delta decides. Volatility is the population
// stddev over the mean of the full series, 0 when the mean is 0. Fewer than
// two results yield insufficient_data with no points.
func (a *Analyzer) DetectTrends(results []models.TestResult, metric Metric) (*TrendAnalysis, error) {
	if metric != MetricDuration && metric != MetricOutcome {
		return nil, fmt.Errorf("unsupported metric: %s", metric)
	}
	if len(results) < 2 {
		return &TrendAnalysis{
			Trend:      TrendInsufficientData,
			Volatility: 0.0,
			DataPoints: []DataPoint{},
		}, nil
	}

	ordered := make([]models.TestResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartTime.Before(ordered[j].StartTime)
	})

	points := make([]DataPoint, 0, len(ordered))
	for _, r := range ordered {
		value := r.Duration
		if metric == MetricOutcome {
			value = 0.0
			if r.Outcome == models.OutcomePassed {
				value = 1.0
			}
		}
		points = append(points, DataPoint{Timestamp: r.StartTime, Value: value})
	}

	window := trendWindow
	if len(points) < window {
		window = len(points)
	}
	firstAvg := 0.0
	lastAvg := 0.0
	for i := 0; i < window; i++ {
		firstAvg += points[i].Value
		lastAvg += points[len(points)-window+i].Value
	}
	firstAvg /= float64(window)
	lastAvg /= float64(window)

	delta := lastAvg - firstAvg
	trend := TrendStable
	if delta != 0 && math.Abs(delta) >= 0.1*firstAvg {
		if delta > 0 {
			trend = TrendIncreasing
		} else {
			trend = TrendDecreasing
		}
	}

	mean := 0.0
	for _, p := range points {
		mean += p.Value
	}
	mean /= float64(len(points))
	volatility := 0.0
	if mean != 0 {
		variance := 0.0
		for _, p := range points {
			variance += (p.Value - mean) * (p.Value - mean)
		}
		variance /= float64(len(points))
		volatility = math.Sqrt(variance) / mean
	}

	a.logger.Debug("trend over %d results: %s (volatility %.3f)", len(points), trend, volatility)
	return &TrendAnalysis{
		Trend:      trend,
		Volatility: volatility,
		DataPoints: points,
	}, nil
}

// NodeFailures aggregates the failures of one nodeid.
type NodeFailures struct {
	FailureCount int       `json:"failure_count"`
	AvgDuration  float64   `json:"avg_duration"`
	FirstFailure time.Time `json:"first_failure"`
	LastFailure  time.Time `json:"last_failure"`
}

// WindowFailures aggregates the failures inside one grouping window.
type WindowFailures struct {
	FailureCount   int `json:"failure_count"`
	UniqueFailures int `json:"unique_failures"`
}

// FailurePatterns holds three independent groupings over the same failure
// set. A failure lands in one group of each kind, so the groupings overlap
// by design.
type FailurePatterns struct {
	// ByNodeID groups failures per test.
	ByNodeID map[string]NodeFailures `json:"by_nodeid"`
	// ByTime groups failures per minute-truncated start time (RFC3339 key).
	ByTime map[string]WindowFailures `json:"by_time"`
	// ByDuration groups failures per 10-second duration bucket ("<n>s" key).
	ByDuration map[string]WindowFailures `json:"by_duration"`

	TotalFailures int `json:"total_failures"`
}

// FailurePatterns groups the failed and errored results by nodeid, by
// minute and by duration bucket.
func (a *Analyzer) FailurePatterns(results []models.TestResult) FailurePatterns {
	failed := make([]models.TestResult, 0, len(results))
	for _, r := range results {
		if r.Outcome.IsFailed() {
			failed = append(failed, r)
		}
	}

	patterns := FailurePatterns{
		ByNodeID:      map[string]NodeFailures{},
		ByTime:        map[string]WindowFailures{},
		ByDuration:    map[string]WindowFailures{},
		TotalFailures: len(failed),
	}

	type nodeAcc struct {
		count    int
		duration float64
		first    time.Time
		last     time.Time
	}
	byNode := map[string]*nodeAcc{}
	timeNodes := map[string]map[string]struct{}{}
	durationNodes := map[string]map[string]struct{}{}

	for _, r := range failed {
		acc, ok := byNode[r.NodeID]
		if !ok {
			acc = &nodeAcc{first: r.StartTime, last: r.StartTime}
			byNode[r.NodeID] = acc
		}
		acc.count++
		acc.duration += r.Duration
		if r.StartTime.Before(acc.first) {
			acc.first = r.StartTime
		}
		if r.StartTime.After(acc.last) {
			acc.last = r.StartTime
		}

		timeKey := r.StartTime.Truncate(time.Minute).Format(time.RFC3339)
		if timeNodes[timeKey] == nil {
			timeNodes[timeKey] = map[string]struct{}{}
		}
		timeNodes[timeKey][r.NodeID] = struct{}{}
		window := patterns.ByTime[timeKey]
		window.FailureCount++
		window.UniqueFailures = len(timeNodes[timeKey])
		patterns.ByTime[timeKey] = window

		durationKey := fmt.Sprintf("%ds", int(r.Duration/10)*10)
		if durationNodes[durationKey] == nil {
			durationNodes[durationKey] = map[string]struct{}{}
		}
		durationNodes[durationKey][r.NodeID] = struct{}{}
		bucket := patterns.ByDuration[durationKey]
		bucket.FailureCount++
		bucket.UniqueFailures = len(durationNodes[durationKey])
		patterns.ByDuration[durationKey] = bucket
	}

	for nodeid, acc := range byNode {
		patterns.ByNodeID[nodeid] = NodeFailures{
			FailureCount: acc.count,
			AvgDuration:  acc.duration / float64(acc.count),
			FirstFailure: acc.first,
			LastFailure:  acc.last,
		}
	}

	return patterns
}

// HealthScore blends failure rate, duration and warning rate into a 0-100
// score.
type HealthScore struct {
	Score       float64 `json:"score"`
	FailureRate float64 `json:"failure_rate"`
	AvgDuration float64 `json:"avg_duration"`
	WarningRate float64 `json:"warning_rate"`
}

// HealthScore weighs failure rate at 40% and duration and warnings at 30%
// each. Durations saturate at 10 seconds; anything slower counts as fully
// unhealthy on that component.
func (a *Analyzer) HealthScore(results []models.TestResult) HealthScore {
	failureRate := a.FailureRate(results)

	avgDuration := 0.0
	warningRate := 0.0
	if len(results) > 0 {
		warnings := 0
		for _, r := range results {
			avgDuration += r.Duration
			if r.HasWarning {
				warnings++
			}
		}
		avgDuration /= float64(len(results))
		warningRate = float64(warnings) / float64(len(results))
	}

	score := (0.4*(1.0-failureRate) +
		0.3*(1.0-math.Min(avgDuration/10.0, 1.0)) +
		0.3*(1.0-warningRate)) * 100.0

	return HealthScore{
		Score:       score,
		FailureRate: failureRate,
		AvgDuration: avgDuration,
		WarningRate: warningRate,
	}
}

// SessionHealth holds per-session health scores and their average.
type SessionHealth struct {
	PerSession map[string]HealthScore `json:"per_session"`
	Overall    float64                `json:"overall"`
}

// SessionHealth scores each session and averages the scores; an empty input
// yields an empty report with overall 0.
func (a *Analyzer) SessionHealth(sessions []*models.TestSession) SessionHealth {
	health := SessionHealth{PerSession: map[string]HealthScore{}}
	if len(sessions) == 0 {
		return health
	}

	total := 0.0
	for _, s := range sessions {
		score := a.HealthScore(s.TestResults)
		health.PerSession[s.SessionID] = score
		total += score.Score
	}
	health.Overall = total / float64(len(sessions))

	a.logger.Debug("scored %d sessions, overall %.1f", len(sessions), health.Overall)
	return health
}
