// Package generator produces synthetic test sessions for demos and
// integration tests. Output is shaped by a seeded random source so the same
// seed reproduces the same outcomes, durations and rerun chains; only
// session IDs differ between runs.
package generator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/models"
)

const (
	defaultDays            = 7
	defaultSessionsPerDay  = 3
	defaultTestsPerSession = 25

	// Fixed shares of non-failing outcomes beyond the configured rates
	skippedShare = 0.03
	xfailShare   = 0.02
	xpassShare   = 0.25

	// Sessions for one day spread across this window before the day mark
	dayWindow = 8 * time.Hour
)

var (
	defaultSUTs = []string{"api-service", "web-frontend", "worker"}

	testAreas = []string{
		"auth", "api", "checkout", "search", "billing", "export", "cache", "queue",
	}
	testActions = []string{
		"create", "update", "delete", "list", "validate", "paginate",
		"timeout", "retry", "concurrent_access", "empty_input", "roundtrip",
		"permissions", "expiry", "bulk_import", "unicode", "ordering",
		"idempotency", "rate_limit", "rollback", "migration",
	}

	environments     = []string{"ci", "staging", "production"}
	platforms        = []string{"linux", "darwin", "windows"}
	releaseVersions  = []string{"1.8.3", "1.9.0", "1.9.1", "2.0.0"}
	failingServices  = []string{"database", "cache", "auth-service", "object-store"}
	failingFields    = []string{"email", "user_id", "timestamp", "status"}
	failingResponses = []int{404, 500, 502, 503}
)

// Config controls the size and shape of the generated data. Zero structural
// fields fall back to defaults; rate fields are taken literally, so a zero
// FailureRate really means no failures.
type Config struct {
	// SUTs is the list of system-under-test names to generate sessions for
	SUTs []string

	// Days is the number of days to spread sessions across, ending today
	Days int

	// SessionsPerDay is the number of sessions per SUT per day
	SessionsPerDay int

	// TestsPerSession is the number of distinct tests in each session
	TestsPerSession int

	// FailureRate is the fraction of tests that fail (0 to 1)
	FailureRate float64

	// WarningRate is the fraction of tests that emit warnings (0 to 1)
	WarningRate float64

	// RerunRate is the fraction of failing tests that get rerun chains (0 to 1)
	RerunRate float64

	// Seed seeds the random source (0 = use current time)
	Seed int64
}

// testCase is one entry of the stable test corpus. The nodeid and base
// duration recur across every generated session so cross-session joins and
// duration comparisons have something real to bite on.
type testCase struct {
	nodeid       string
	baseDuration float64
}

// Generator produces test sessions from a fixed corpus and a seeded
// random source. Not safe for concurrent use.
type Generator struct {
	config      Config
	rng         *rand.Rand
	logger      *logging.Logger
	corpus      []testCase
	sutPlatform map[string]string
	now         func() time.Time
}

// New creates a Generator for the given config, filling in defaults for
// zero structural fields.
func New(config Config) *Generator {
	if len(config.SUTs) == 0 {
		config.SUTs = defaultSUTs
	}
	if config.Days < 1 {
		config.Days = defaultDays
	}
	if config.SessionsPerDay < 1 {
		config.SessionsPerDay = defaultSessionsPerDay
	}
	if config.TestsPerSession < 1 {
		config.TestsPerSession = defaultTestsPerSession
	}
	if config.Seed == 0 {
		config.Seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(config.Seed))

	g := &Generator{
		config:      config,
		rng:         rng,
		logger:      logging.GetLogger("generator"),
		corpus:      buildCorpus(config.TestsPerSession, rng),
		sutPlatform: make(map[string]string),
		now:         time.Now,
	}

	// Pin each SUT to one platform so its sessions stay comparable
	for _, sut := range config.SUTs {
		g.sutPlatform[sut] = platforms[rng.Intn(len(platforms))]
	}

	return g
}

// Seed returns the seed the random source was initialized with, useful for
// reporting when the config left it to the clock.
func (g *Generator) Seed() int64 {
	return g.config.Seed
}

// Generate produces Days x SUTs x SessionsPerDay sessions, oldest day
// first. Every session draws from the same test corpus with per-session
// outcome and duration variation.
func (g *Generator) Generate() []*models.TestSession {
	end := g.now().UTC()

	sessions := make([]*models.TestSession, 0, g.config.Days*len(g.config.SUTs)*g.config.SessionsPerDay)
	for day := 0; day < g.config.Days; day++ {
		dayEnd := end.Add(-time.Duration(g.config.Days-1-day) * 24 * time.Hour)
		version := releaseVersions[day*len(releaseVersions)/g.config.Days]

		for _, sut := range g.config.SUTs {
			for run := 0; run < g.config.SessionsPerDay; run++ {
				// Spread runs evenly across the day window with a little
				// backwards jitter so starts never land past the day mark
				offset := time.Duration(float64(run+1) / float64(g.config.SessionsPerDay+1) * float64(dayWindow))
				jitter := time.Duration(g.rng.Intn(1800)) * time.Second
				start := dayEnd.Add(-dayWindow).Add(offset).Add(-jitter)

				sessions = append(sessions, g.session(sut, start, version))
			}
		}
	}

	g.logger.Info("Generated %d sessions for %d SUTs across %d days (seed %d)",
		len(sessions), len(g.config.SUTs), g.config.Days, g.config.Seed)
	return sessions
}

// session produces one session at the given start time, running the whole
// corpus sequentially.
func (g *Generator) session(sut string, start time.Time, version string) *models.TestSession {
	var results []models.TestResult
	current := start

	for _, tc := range g.corpus {
		executions := g.executions(tc, current)
		for i := range executions {
			current = executions[i].StopTime.Add(500 * time.Millisecond)
		}
		results = append(results, executions...)
	}

	session := &models.TestSession{
		SessionID:        fmt.Sprintf("%s-%s", sut, uuid.New().String()),
		SUTName:          sut,
		SessionStartTime: start,
		SessionStopTime:  current,
		SessionTags: map[string]string{
			"environment": g.environment(),
			"version":     version,
			"platform":    g.sutPlatform[sut],
		},
		TestResults:     results,
		RerunTestGroups: models.GroupRerunTests(results),
	}
	session.Normalize()

	return session
}

// executions produces the result list for one corpus entry: a single result
// normally, or a rerun chain of RERUN executions followed by a final outcome
// when a failing test is selected for reruns.
func (g *Generator) executions(tc testCase, start time.Time) []models.TestResult {
	roll := g.rng.Float64()

	switch {
	case roll < g.config.FailureRate:
		if g.rng.Float64() < g.config.RerunRate {
			return g.rerunChain(tc, start)
		}
		return []models.TestResult{g.result(tc, start, g.failOutcome(), false)}

	case roll < g.config.FailureRate+skippedShare:
		return []models.TestResult{g.result(tc, start, models.OutcomeSkipped, false)}

	case roll < g.config.FailureRate+skippedShare+xfailShare:
		outcome := models.OutcomeXFailed
		if g.rng.Float64() < xpassShare {
			outcome = models.OutcomeXPassed
		}
		return []models.TestResult{g.result(tc, start, outcome, false)}

	default:
		return []models.TestResult{g.result(tc, start, models.OutcomePassed, false)}
	}
}

// rerunChain produces one or two RERUN executions followed by a final
// result. Recovered chains end PASSED, the rest end with a failure outcome.
// Every member is flagged unreliable, mirroring what a capture plugin does
// for tests that needed reruns.
func (g *Generator) rerunChain(tc testCase, start time.Time) []models.TestResult {
	attempts := 1 + g.rng.Intn(2)
	recovered := g.rng.Float64() < 0.6

	final := g.failOutcome()
	if recovered {
		final = models.OutcomePassed
	}

	var chain []models.TestResult
	current := start
	for i := 0; i < attempts; i++ {
		r := g.result(tc, current, models.OutcomeRerun, true)
		chain = append(chain, r)
		current = r.StopTime.Add(time.Duration(g.rng.Intn(2000)) * time.Millisecond)
	}
	chain = append(chain, g.result(tc, current, final, true))

	return chain
}

// result produces one execution of a corpus entry with jittered duration
// and outcome-appropriate captured output.
func (g *Generator) result(tc testCase, start time.Time, outcome models.TestOutcome, unreliable bool) models.TestResult {
	duration := tc.baseDuration * (0.8 + 0.4*g.rng.Float64())
	switch outcome {
	case models.OutcomeSkipped:
		// Skips never run the test body
		duration = 0.001 + 0.01*g.rng.Float64()
	case models.OutcomeFailed, models.OutcomeError, models.OutcomeRerun:
		// Failures are often slow failures
		duration *= 1.0 + g.rng.Float64()
	}

	caplog := fmt.Sprintf("Test execution log for %s", tc.nodeid)
	hasWarning := g.rng.Float64() < g.config.WarningRate
	if hasWarning {
		caplog += fmt.Sprintf("\nWARNING: Deprecation warning in %s", tc.nodeid)
	}

	var longRepr string
	switch outcome {
	case models.OutcomeFailed, models.OutcomeError, models.OutcomeRerun, models.OutcomeXFailed:
		longRepr = g.errorMessage()
		caplog += fmt.Sprintf("\nERROR: %s", longRepr)
	}

	r := models.TestResult{
		NodeID:     tc.nodeid,
		Outcome:    outcome,
		StartTime:  start,
		Duration:   duration,
		Caplog:     caplog,
		LongRepr:   longRepr,
		HasWarning: hasWarning,
		Unreliable: unreliable,
	}
	r.Normalize()

	return r
}

// failOutcome picks between an assertion failure and a harder error
func (g *Generator) failOutcome() models.TestOutcome {
	if g.rng.Float64() < 0.2 {
		return models.OutcomeError
	}
	return models.OutcomeFailed
}

// environment picks a session environment, weighted towards CI runs
func (g *Generator) environment() string {
	r := g.rng.Float64()
	switch {
	case r < 0.5:
		return environments[0]
	case r < 0.8:
		return environments[1]
	default:
		return environments[2]
	}
}

// errorMessage generates a realistic failure message
func (g *Generator) errorMessage() string {
	switch g.rng.Intn(4) {
	case 0:
		return fmt.Sprintf("AssertionError: expected 200, got %d",
			failingResponses[g.rng.Intn(len(failingResponses))])
	case 1:
		return fmt.Sprintf("TimeoutError: operation timed out after %d seconds",
			30+g.rng.Intn(90))
	case 2:
		return fmt.Sprintf("ConnectionError: failed to connect to %s: connection refused",
			failingServices[g.rng.Intn(len(failingServices))])
	default:
		return fmt.Sprintf("ValidationError: invalid data format for field %q",
			failingFields[g.rng.Intn(len(failingFields))])
	}
}

// buildCorpus creates n test cases with stable nodeids and base durations.
// Nodeids are assigned deterministically from the area and action lists so
// the same corpus size yields the same identifiers regardless of seed; only
// the base durations draw from the random source.
func buildCorpus(n int, rng *rand.Rand) []testCase {
	cases := make([]testCase, 0, n)
	for i := 0; i < n; i++ {
		area := testAreas[i%len(testAreas)]
		action := testActions[(i/len(testAreas))%len(testActions)]

		nodeid := fmt.Sprintf("tests/test_%s.py::test_%s", area, action)
		if round := i / (len(testAreas) * len(testActions)); round > 0 {
			nodeid = fmt.Sprintf("%s_%d", nodeid, round+1)
		}

		// Mostly quick tests with a slow tail
		baseDuration := 0.05 + 2.0*rng.Float64()
		if rng.Float64() < 0.15 {
			baseDuration = 5.0 + 25.0*rng.Float64()
		}

		cases = append(cases, testCase{nodeid: nodeid, baseDuration: baseDuration})
	}
	return cases
}
