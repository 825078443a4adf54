// Package query implements the session/test query-filter engine: fluent
// builders that accumulate tagged predicate variants and execute them as a
// left-to-right intersection over an in-memory session pool.
//
// Builders mutate themselves and return the same instance for chaining, so a
// SessionQuery or TestQuery must not be shared across goroutines while it is
// being configured. Executed results are immutable snapshots and safe to
// share.
package query

import (
	"fmt"
	"time"

	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/metrics"
	"github.com/moolen/insight/internal/models"
)

// SessionLoader is the narrow storage contract the query engine consumes.
// Any storage implementation satisfying it is acceptable; the engine never
// assumes a persistence format.
type SessionLoader interface {
	LoadSessions() ([]*models.TestSession, error)
}

// SessionQuery accumulates session-level predicates and executes them
// against a session pool. The zero of filtering is the whole pool; every
// added predicate can only narrow the result (monotonic narrowing), and the
// unit of filtering is always the whole session.
type SessionQuery struct {
	logger     *logging.Logger
	loader     SessionLoader
	metrics    *metrics.Metrics
	clock      func() time.Time
	filters    []SessionFilter
	sessionIDs []string
	lastResult *QueryResult
	err        error
}

// NewQuery creates an empty session query
func NewQuery() *SessionQuery {
	return &SessionQuery{
		logger: logging.GetLogger("query"),
	}
}

// WithStorage binds the query to a session source used when Execute is
// called without an explicit pool
func (q *SessionQuery) WithStorage(loader SessionLoader) *SessionQuery {
	q.loader = loader
	return q
}

// WithClock injects the clock used by time-window filters. Tests use this
// to pin "now". Set it before adding time-window filters; filters capture
// the clock at construction.
func (q *SessionQuery) WithClock(clock func() time.Time) *SessionQuery {
	q.clock = clock
	return q
}

// WithMetrics attaches Prometheus metrics to query execution
func (q *SessionQuery) WithMetrics(m *metrics.Metrics) *SessionQuery {
	q.metrics = m
	return q
}

// addFilter appends a constructed filter, or latches the first construction
// error so Execute fails fast instead of running a half-built pipeline.
func (q *SessionQuery) addFilter(f SessionFilter, err error) *SessionQuery {
	if err != nil {
		if q.err == nil {
			q.err = err
		}
		return q
	}
	q.filters = append(q.filters, f)
	return q
}

// FilterCount returns the number of registered session-level predicates.
func (q *SessionQuery) FilterCount() int {
	return len(q.filters)
}

// ForSUT keeps sessions whose SUT name matches. The optional match type
// defaults to exact; exact and substring compare case-insensitively.
func (q *SessionQuery) ForSUT(name string, match ...MatchType) *SessionQuery {
	mt := MatchExact
	if len(match) > 0 {
		mt = match[0]
	}
	f, err := NewSUTFilter(name, mt)
	return q.addFilter(f, err)
}

// InLastDays keeps sessions that started at most n days ago. Sessions that
// started exactly n days ago are included.
func (q *SessionQuery) InLastDays(days int) *SessionQuery {
	f, err := NewLastDaysFilterAt(days, q.clock)
	return q.addFilter(f, err)
}

// WithReruns keeps sessions with at least one rerun group
func (q *SessionQuery) WithReruns() *SessionQuery {
	return q.addFilter(NewRerunsFilter(), nil)
}

// WithTags keeps sessions where all key/value pairs match the session tags.
// The optional match type defaults to exact.
func (q *SessionQuery) WithTags(tags map[string]string, match ...MatchType) *SessionQuery {
	mt := MatchExact
	if len(match) > 0 {
		mt = match[0]
	}
	f, err := NewTagsFilter(tags, mt)
	return q.addFilter(f, err)
}

// WithWarning keeps sessions with at least one warning-emitting result
func (q *SessionQuery) WithWarning() *SessionQuery {
	return q.addFilter(NewWarningFilter(), nil)
}

// WithOutcome keeps sessions where at least one test has the outcome
func (q *SessionQuery) WithOutcome(outcome models.TestOutcome) *SessionQuery {
	f, err := NewSessionOutcomeFilter(outcome, false)
	return q.addFilter(f, err)
}

// WithAllTestsOutcome keeps sessions where every test has the outcome.
// Sessions without tests never match.
func (q *SessionQuery) WithAllTestsOutcome(outcome models.TestOutcome) *SessionQuery {
	f, err := NewSessionOutcomeFilter(outcome, true)
	return q.addFilter(f, err)
}

// WithUnreliable keeps sessions with at least one result flagged unreliable
func (q *SessionQuery) WithUnreliable() *SessionQuery {
	return q.addFilter(NewUnreliableSessionFilter(), nil)
}

// WithSessionIDPattern keeps sessions whose id matches a shell glob pattern
func (q *SessionQuery) WithSessionIDPattern(pattern string) *SessionQuery {
	f, err := NewSessionIDPatternFilter(pattern)
	return q.addFilter(f, err)
}

// FilterByTest returns a test-level query bound to this session query.
// Applying it keeps whole sessions, never slices of their test lists.
func (q *SessionQuery) FilterByTest() *TestQuery {
	return newTestQuery(q)
}

// Execute applies all accumulated predicates in registration order as a
// left-to-right intersection and returns the filtered session list. The
// candidate pool is the optional argument, falling back to the bound
// storage. Execute is idempotent: re-running with no new predicates returns
// the same set.
func (q *SessionQuery) Execute(pool ...[]*models.TestSession) (*QueryResult, error) {
	if q.err != nil {
		return nil, q.err
	}

	start := time.Now()

	sessions, err := q.resolvePool(pool)
	if err != nil {
		return nil, err
	}

	if len(q.sessionIDs) > 0 {
		sessions = restrictToIDs(sessions, q.sessionIDs)
	}

	result := sessions
	for _, f := range q.filters {
		result = filterSessions(result, f)
	}

	elapsed := time.Since(start)
	q.lastResult = &QueryResult{Sessions: result, ExecutionTime: elapsed}
	q.metrics.ObserveQuery(elapsed.Seconds(), len(result))

	q.logger.DebugWithFields("query executed",
		logging.Field("filters", len(q.filters)),
		logging.Field("pool", len(sessions)),
		logging.Field("matched", len(result)),
		logging.Field("duration_ms", elapsed.Milliseconds()))

	return q.lastResult, nil
}

// Spec serializes the query: predicate type tags plus parameters, never
// closures, so the query can be persisted and replayed against a fresh
// session pool. After execution the spec also carries the matched session
// ids.
func (q *SessionQuery) Spec() QuerySpec {
	spec := QuerySpec{}
	if q.lastResult != nil {
		spec.Sessions = q.lastResult.SessionIDs()
	} else if len(q.sessionIDs) > 0 {
		spec.Sessions = append(spec.Sessions, q.sessionIDs...)
	}
	for _, f := range q.filters {
		spec.Filters = append(spec.Filters, f.Spec())
	}
	return spec
}

// FromSpec reconstructs a query from its serialized form. Session-level
// specs are restored in order; bare test-level specs (the flat wire form)
// are collected into a single test-match predicate appended last, which
// reproduces the AND-across-predicates, OR-across-tests semantics they were
// serialized with. Unknown type tags fail with UnknownFilterTypeError.
func FromSpec(spec QuerySpec) (*SessionQuery, error) {
	q := NewQuery()
	q.sessionIDs = append(q.sessionIDs, spec.Sessions...)

	var pendingTests []TestFilter
	for _, fs := range spec.Filters {
		if _, ok := sessionFilterDecoders[fs.Type]; ok {
			f, err := SessionFilterFromSpec(fs)
			if err != nil {
				return nil, err
			}
			q.filters = append(q.filters, f)
			continue
		}
		if _, ok := testFilterDecoders[fs.Type]; ok {
			f, err := TestFilterFromSpec(fs)
			if err != nil {
				return nil, err
			}
			pendingTests = append(pendingTests, f)
			continue
		}
		return nil, NewUnknownFilterTypeError(fs.Type)
	}

	if len(pendingTests) > 0 {
		q.filters = append(q.filters, NewTestMatchFilter(pendingTests))
	}

	return q, nil
}

// resolvePool picks the session pool for this execution
func (q *SessionQuery) resolvePool(pool [][]*models.TestSession) ([]*models.TestSession, error) {
	if len(pool) > 0 {
		return pool[0], nil
	}
	if q.loader == nil {
		return nil, fmt.Errorf("no session pool given and no storage bound")
	}
	sessions, err := q.loader.LoadSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return sessions, nil
}

// filterSessions narrows a session list by one predicate
func filterSessions(sessions []*models.TestSession, f SessionFilter) []*models.TestSession {
	filtered := make([]*models.TestSession, 0, len(sessions))
	for _, s := range sessions {
		if f.Matches(s) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// restrictToIDs narrows a session list to an id allow-list
func restrictToIDs(sessions []*models.TestSession, ids []string) []*models.TestSession {
	allowed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	filtered := make([]*models.TestSession, 0, len(sessions))
	for _, s := range sessions {
		if _, ok := allowed[s.SessionID]; ok {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
