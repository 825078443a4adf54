package query

import (
	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/models"
)

// TestQuery accumulates test-level predicates bound to a parent
// SessionQuery. Applying it registers a single session-level predicate on
// the parent: keep the session iff at least one test satisfies every
// registered test predicate. Kept sessions are returned unmodified with
// their full original test lists, preserving cross-test correlation for
// downstream comparison and trend logic.
type TestQuery struct {
	parent  *SessionQuery
	logger  *logging.Logger
	filters []TestFilter
	err     error
}

func newTestQuery(parent *SessionQuery) *TestQuery {
	return &TestQuery{
		parent: parent,
		logger: logging.GetLogger("query"),
	}
}

// addFilter appends a constructed filter, or latches the first construction
// error so Apply fails fast.
func (q *TestQuery) addFilter(f TestFilter, err error) *TestQuery {
	if err != nil {
		if q.err == nil {
			q.err = err
		}
		return q
	}
	q.filters = append(q.filters, f)
	return q
}

// WithName keeps tests whose nodeid contains the substring
func (q *TestQuery) WithName(substring string) *TestQuery {
	f, err := NewNameFilter(substring)
	return q.addFilter(f, err)
}

// WithDuration keeps tests whose duration lies within the inclusive bounds
func (q *TestQuery) WithDuration(min, max float64) *TestQuery {
	f, err := NewDurationFilter(min, max)
	return q.addFilter(f, err)
}

// WithPattern keeps tests where the named text field contains the pattern
func (q *TestQuery) WithPattern(pattern string, field Field) *TestQuery {
	f, err := NewPatternFilter(pattern, field)
	return q.addFilter(f, err)
}

// WithRegex keeps tests where the compiled regex finds a match in the named
// text field. Invalid regexes fail at construction.
func (q *TestQuery) WithRegex(pattern string, field Field) *TestQuery {
	f, err := NewRegexFilter(pattern, field)
	return q.addFilter(f, err)
}

// WithOutcome keeps tests with the given outcome
func (q *TestQuery) WithOutcome(outcome models.TestOutcome) *TestQuery {
	f, err := NewTestOutcomeFilter(outcome)
	return q.addFilter(f, err)
}

// WithUnreliable keeps tests flagged unreliable
func (q *TestQuery) WithUnreliable() *TestQuery {
	return q.addFilter(NewUnreliableTestFilter(), nil)
}

// WithWarning keeps tests that emitted a warning
func (q *TestQuery) WithWarning() *TestQuery {
	return q.addFilter(NewTestWarningFilter(), nil)
}

// Apply registers the accumulated test predicates on the parent query as a
// single session selector and executes it. Sessions are kept only if at
// least one test satisfies every predicate (logical AND across predicates,
// OR across tests) and are returned with their full original test lists.
func (q *TestQuery) Apply(pool ...[]*models.TestSession) (*QueryResult, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.parent.addFilter(NewTestMatchFilter(q.filters), nil)
	return q.parent.Execute(pool...)
}

// Done registers the accumulated test predicates on the parent query
// without executing it, for callers that assemble the full pipeline up
// front and run it later.
func (q *TestQuery) Done() *SessionQuery {
	return q.parent.addFilter(NewTestMatchFilter(q.filters), q.err)
}

// Parent returns the session query this test query narrows
func (q *TestQuery) Parent() *SessionQuery {
	return q.parent
}

// Spec serializes the accumulated test predicates
func (q *TestQuery) Spec() []FilterSpec {
	specs := make([]FilterSpec, 0, len(q.filters))
	for _, f := range q.filters {
		specs = append(specs, f.Spec())
	}
	return specs
}

// TestInsight aggregates per-nodeid statistics across the matching tests of
// the filtered sessions. This is the one place individual test statistics
// are surfaced outside full-session context, and only as derived read-only
// numbers.
type TestInsight struct {
	// Runs is the number of matching executions across all filtered sessions
	Runs int `json:"runs"`

	// Reliability is passes divided by runs
	Reliability float64 `json:"reliability"`

	// AvgDuration is the mean duration in seconds of matching executions
	AvgDuration float64 `json:"avg_duration"`

	// Failures counts executions with outcome FAILED or ERROR
	Failures int `json:"failures"`
}

// Insight applies the query and computes per-nodeid aggregates over the
// matching tests of the filtered sessions: run count, reliability
// (passes/runs), average duration, and failure count.
func (q *TestQuery) Insight(pool ...[]*models.TestSession) (map[string]TestInsight, error) {
	result, err := q.Apply(pool...)
	if err != nil {
		return nil, err
	}

	type acc struct {
		runs     int
		passes   int
		failures int
		duration float64
	}
	byNode := make(map[string]*acc)

	for _, s := range result.Sessions {
		for i := range s.TestResults {
			r := &s.TestResults[i]
			if !testMatchesAll(r, q.filters) {
				continue
			}
			a := byNode[r.NodeID]
			if a == nil {
				a = &acc{}
				byNode[r.NodeID] = a
			}
			a.runs++
			a.duration += r.Duration
			if r.Outcome == models.OutcomePassed {
				a.passes++
			}
			if r.Outcome.IsFailed() {
				a.failures++
			}
		}
	}

	insights := make(map[string]TestInsight, len(byNode))
	for nodeid, a := range byNode {
		insight := TestInsight{
			Runs:     a.runs,
			Failures: a.failures,
		}
		if a.runs > 0 {
			insight.Reliability = float64(a.passes) / float64(a.runs)
			insight.AvgDuration = a.duration / float64(a.runs)
		}
		insights[nodeid] = insight
	}

	q.logger.DebugWithFields("test insight computed",
		logging.Field("sessions", result.Count()),
		logging.Field("nodeids", len(insights)))

	return insights, nil
}
