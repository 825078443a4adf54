// Package comparison diffs two test sessions against each other and
// categorizes every change: outcome flips, performance shifts, and tests
// appearing or disappearing between the base and target side.
//
// A Comparison is a two-phase builder. Configuration chains filters onto two
// independent session queries (or binds storage profiles and thresholds);
// Execute then resolves one session per side and produces a
// ComparisonResult. Instances are single-use and must not be shared across
// goroutines while still being configured.
package comparison

import (
	"math"
	"sort"
	"strings"

	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/metrics"
	"github.com/moolen/insight/internal/models"
	"github.com/moolen/insight/internal/query"
)

const (
	defaultSlowerPercent = 20.0
	defaultFasterPercent = 20.0
)

// ProfileResolver resolves a storage profile name to a session loader.
// Wired by the caller so profile handling stays outside the diff engine.
type ProfileResolver func(name string) (query.SessionLoader, error)

// Comparison accumulates configuration for diffing a base side against a
// target side. Both sides carry their own SessionQuery so filters can
// differ, with BetweenSUTs and ApplyToBoth covering the symmetric cases.
type Comparison struct {
	logger  *logging.Logger
	metrics *metrics.Metrics

	baseQuery   *query.SessionQuery
	targetQuery *query.SessionQuery

	resolver      ProfileResolver
	baseProfile   string
	targetProfile string

	slowerRatio float64
	fasterRatio float64

	err error
}

// NewComparison returns a comparison with empty base and target queries and
// the default 20%/20% performance thresholds.
func NewComparison() *Comparison {
	return &Comparison{
		logger:      logging.GetLogger("comparison"),
		baseQuery:   query.NewQuery(),
		targetQuery: query.NewQuery(),
		slowerRatio: 1.0 + defaultSlowerPercent/100.0,
		fasterRatio: 1.0 - defaultFasterPercent/100.0,
	}
}

// WithMetrics attaches execution metrics.
func (c *Comparison) WithMetrics(m *metrics.Metrics) *Comparison {
	c.metrics = m
	return c
}

// WithProfileResolver wires the lookup used to bind storage profiles named
// via WithBaseProfile/WithTargetProfile/WithProfiles.
func (c *Comparison) WithProfileResolver(resolver ProfileResolver) *Comparison {
	c.resolver = resolver
	return c
}

// WithBaseProfile binds the base side to a named storage profile.
func (c *Comparison) WithBaseProfile(name string) *Comparison {
	c.baseProfile = name
	return c
}

// WithTargetProfile binds the target side to a named storage profile.
func (c *Comparison) WithTargetProfile(name string) *Comparison {
	c.targetProfile = name
	return c
}

// WithProfiles binds both sides to named storage profiles.
func (c *Comparison) WithProfiles(base, target string) *Comparison {
	return c.WithBaseProfile(base).WithTargetProfile(target)
}

// BetweenSUTs filters each side to one SUT and applies the base-*/target-*
// session id convention so direct captures stay distinguishable.
func (c *Comparison) BetweenSUTs(baseSUT, targetSUT string) *Comparison {
	c.baseQuery.ForSUT(baseSUT).WithSessionIDPattern("base-*")
	c.targetQuery.ForSUT(targetSUT).WithSessionIDPattern("target-*")
	return c
}

// InLastDays narrows both sides to sessions started within the last n days.
func (c *Comparison) InLastDays(days int) *Comparison {
	c.baseQuery.InLastDays(days)
	c.targetQuery.InLastDays(days)
	return c
}

// WithPerformanceThresholds overrides the default 20%/20% thresholds.
// slowerPercent must be greater than 0 and fasterPercent must lie strictly
// between 0 and 100; a violation is latched and surfaced by Execute.
func (c *Comparison) WithPerformanceThresholds(slowerPercent, fasterPercent float64) *Comparison {
	if slowerPercent <= 0 {
		return c.fail(NewComparisonError("slower percent must be greater than 0, got: %v", slowerPercent))
	}
	if fasterPercent <= 0 || fasterPercent >= 100 {
		return c.fail(NewComparisonError("faster percent must be between 0 and 100 exclusive, got: %v", fasterPercent))
	}
	c.slowerRatio = 1.0 + slowerPercent/100.0
	c.fasterRatio = 1.0 - fasterPercent/100.0
	return c
}

// ApplyToBoth applies an arbitrary query transform to both sides
// symmetrically.
func (c *Comparison) ApplyToBoth(fn func(*query.SessionQuery) *query.SessionQuery) *Comparison {
	fn(c.baseQuery)
	fn(c.targetQuery)
	return c
}

// WithEnvironment filters each side by its own set of session tags.
func (c *Comparison) WithEnvironment(baseTags, targetTags map[string]string) *Comparison {
	if len(baseTags) > 0 {
		c.baseQuery.WithTags(baseTags)
	}
	if len(targetTags) > 0 {
		c.targetQuery.WithTags(targetTags)
	}
	return c
}

// WithTestPattern keeps, on both sides, only sessions containing a test
// whose named text field matches the pattern.
func (c *Comparison) WithTestPattern(pattern string, field query.Field) *Comparison {
	c.baseQuery.FilterByTest().WithPattern(pattern, field).Done()
	c.targetQuery.FilterByTest().WithPattern(pattern, field).Done()
	return c
}

// WithDurationThreshold keeps, on both sides, only sessions containing a
// test that ran at least minSecs.
func (c *Comparison) WithDurationThreshold(minSecs float64) *Comparison {
	c.baseQuery.FilterByTest().WithDuration(minSecs, math.Inf(1)).Done()
	c.targetQuery.FilterByTest().WithDuration(minSecs, math.Inf(1)).Done()
	return c
}

// OnlyFailures keeps, on both sides, only sessions containing failed tests.
func (c *Comparison) OnlyFailures() *Comparison {
	c.baseQuery.FilterByTest().WithOutcome(models.OutcomeFailed).Done()
	c.targetQuery.FilterByTest().WithOutcome(models.OutcomeFailed).Done()
	return c
}

// BaseQuery exposes the base side for asymmetric configuration.
func (c *Comparison) BaseQuery() *query.SessionQuery {
	return c.baseQuery
}

// TargetQuery exposes the target side for asymmetric configuration.
func (c *Comparison) TargetQuery() *query.SessionQuery {
	return c.targetQuery
}

func (c *Comparison) fail(err error) *Comparison {
	if c.err == nil {
		c.err = err
	}
	return c
}

// Execute runs both side queries and diffs the resolved sessions. A session
// pool may be passed to feed the queries; without one each side loads from
// its bound storage. From each side the session with the latest start time
// is selected, ties resolved as the last in iteration order among ties.
func (c *Comparison) Execute(pool ...[]*models.TestSession) (*ComparisonResult, error) {
	if c.err != nil {
		c.metrics.ObserveComparison(true)
		return nil, c.err
	}
	if c.baseQuery.FilterCount() == 0 && c.targetQuery.FilterCount() == 0 &&
		c.baseProfile == "" && c.targetProfile == "" {
		c.metrics.ObserveComparison(true)
		return nil, NewComparisonError("no sessions provided and no filters configured")
	}
	if err := c.bindProfiles(); err != nil {
		c.metrics.ObserveComparison(true)
		return nil, err
	}

	baseResult, err := c.baseQuery.Execute(pool...)
	if err != nil {
		c.metrics.ObserveComparison(true)
		return nil, err
	}
	targetResult, err := c.targetQuery.Execute(pool...)
	if err != nil {
		c.metrics.ObserveComparison(true)
		return nil, err
	}
	if baseResult.IsEmpty() || targetResult.IsEmpty() {
		c.metrics.ObserveComparison(true)
		return nil, NewComparisonError("no matching base and target sessions found")
	}

	return c.diff(baseResult, targetResult,
		latestSession(baseResult.Sessions), latestSession(targetResult.Sessions)), nil
}

// ExecuteSessions compares exactly two sessions directly, skipping the side
// queries. The first session is the base and its id must start with
// "base-"; the second is the target and must start with "target-".
func (c *Comparison) ExecuteSessions(sessions ...*models.TestSession) (*ComparisonResult, error) {
	if c.err != nil {
		c.metrics.ObserveComparison(true)
		return nil, c.err
	}
	if len(sessions) != 2 {
		c.metrics.ObserveComparison(true)
		return nil, NewComparisonError("must provide exactly 2 sessions to compare, got: %d", len(sessions))
	}
	base, target := sessions[0], sessions[1]
	if !strings.HasPrefix(base.SessionID, "base-") {
		c.metrics.ObserveComparison(true)
		return nil, NewComparisonError("base session id must start with %q, got: %s", "base-", base.SessionID)
	}
	if !strings.HasPrefix(target.SessionID, "target-") {
		c.metrics.ObserveComparison(true)
		return nil, NewComparisonError("target session id must start with %q, got: %s", "target-", target.SessionID)
	}

	baseResult, err := query.NewQuery().Execute([]*models.TestSession{base})
	if err != nil {
		c.metrics.ObserveComparison(true)
		return nil, err
	}
	targetResult, err := query.NewQuery().Execute([]*models.TestSession{target})
	if err != nil {
		c.metrics.ObserveComparison(true)
		return nil, err
	}

	return c.diff(baseResult, targetResult, base, target), nil
}

func (c *Comparison) bindProfiles() error {
	if c.baseProfile == "" && c.targetProfile == "" {
		return nil
	}
	if c.resolver == nil {
		return NewComparisonError("storage profiles configured but no profile resolver wired")
	}
	if c.baseProfile != "" {
		loader, err := c.resolver(c.baseProfile)
		if err != nil {
			return NewComparisonError("resolving base profile %q: %v", c.baseProfile, err)
		}
		c.baseQuery.WithStorage(loader)
	}
	if c.targetProfile != "" {
		loader, err := c.resolver(c.targetProfile)
		if err != nil {
			return NewComparisonError("resolving target profile %q: %v", c.targetProfile, err)
		}
		c.targetQuery.WithStorage(loader)
	}
	return nil
}

// diff builds the categorized result. The nodeid maps are built in result
// order, so for rerun chains the final attempt wins the lookup.
func (c *Comparison) diff(baseResult, targetResult *query.QueryResult, baseSession, targetSession *models.TestSession) *ComparisonResult {
	baseTests := testsByNodeID(baseSession)
	targetTests := testsByNodeID(targetSession)

	result := &ComparisonResult{
		BaseResult:     baseResult,
		TargetResult:   targetResult,
		BaseSession:    baseSession,
		TargetSession:  targetSession,
		NewFailures:    []string{},
		NewPasses:      []string{},
		FlakyTests:     []string{},
		SlowerTests:    []string{},
		FasterTests:    []string{},
		MissingTests:   []string{},
		NewTests:       []string{},
		OutcomeChanges: map[string]OutcomeChange{},
	}

	common := make([]string, 0, len(baseTests))
	for nodeid := range baseTests {
		if _, ok := targetTests[nodeid]; ok {
			common = append(common, nodeid)
		} else {
			result.MissingTests = append(result.MissingTests, nodeid)
		}
	}
	for nodeid := range targetTests {
		if _, ok := baseTests[nodeid]; !ok {
			result.NewTests = append(result.NewTests, nodeid)
		}
	}
	sort.Strings(result.MissingTests)
	sort.Strings(result.NewTests)
	sort.Strings(common)

	for _, nodeid := range common {
		baseTest := baseTests[nodeid]
		targetTest := targetTests[nodeid]

		if baseTest.Outcome != targetTest.Outcome {
			result.OutcomeChanges[nodeid] = OutcomeChange{
				Base:   baseTest.Outcome,
				Target: targetTest.Outcome,
			}
			result.FlakyTests = append(result.FlakyTests, nodeid)

			switch {
			case baseTest.Outcome == models.OutcomePassed && targetTest.Outcome == models.OutcomeFailed:
				result.NewFailures = append(result.NewFailures, nodeid)
			case baseTest.Outcome == models.OutcomeFailed && targetTest.Outcome == models.OutcomePassed:
				result.NewPasses = append(result.NewPasses, nodeid)
			}
		}

		// Performance changes are tracked independently of outcome changes,
		// so a nodeid can land in several categories at once.
		if targetTest.Duration > baseTest.Duration*c.slowerRatio {
			result.SlowerTests = append(result.SlowerTests, nodeid)
		} else if targetTest.Duration < baseTest.Duration*c.fasterRatio {
			result.FasterTests = append(result.FasterTests, nodeid)
		}
	}

	c.metrics.ObserveComparison(false)
	c.logger.DebugWithFields("comparison executed",
		logging.Field("base_session", baseSession.SessionID),
		logging.Field("target_session", targetSession.SessionID),
		logging.Field("outcome_changes", len(result.OutcomeChanges)),
		logging.Field("missing", len(result.MissingTests)),
		logging.Field("new", len(result.NewTests)),
	)
	return result
}

// latestSession returns the session with the latest start time, preferring
// the last element among ties.
func latestSession(sessions []*models.TestSession) *models.TestSession {
	latest := sessions[0]
	for _, s := range sessions[1:] {
		if !s.SessionStartTime.Before(latest.SessionStartTime) {
			latest = s
		}
	}
	return latest
}

func testsByNodeID(s *models.TestSession) map[string]*models.TestResult {
	tests := make(map[string]*models.TestResult, len(s.TestResults))
	for i := range s.TestResults {
		tests[s.TestResults[i].NodeID] = &s.TestResults[i]
	}
	return tests
}
