package query

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/moolen/insight/internal/models"
)

// SessionFilter is a session-level predicate. Filters are immutable tagged
// variants: construction validates all parameters (so Matches never fails)
// and Spec returns the serialized form for persistence and replay.
type SessionFilter interface {
	Matches(s *models.TestSession) bool
	Spec() FilterSpec
}

// SUTFilter matches sessions by SUT name. Exact and substring comparisons
// are case-insensitive; the regex form is compiled case-insensitively for
// consistency.
type SUTFilter struct {
	Name  string
	Match MatchType

	re *regexp.Regexp
}

// NewSUTFilter creates a SUT name filter
func NewSUTFilter(name string, match MatchType) (*SUTFilter, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewInvalidFilterKindError("sut filter: name must be a non-empty string")
	}
	if !validMatchType(match) {
		return nil, NewInvalidFilterKindError("sut filter: unsupported match type %q", string(match))
	}
	f := &SUTFilter{Name: name, Match: match}
	if match == MatchRegex {
		re, err := compileInsensitive(name)
		if err != nil {
			return nil, NewInvalidFilterKindError("sut filter: invalid regex %q: %v", name, err)
		}
		f.re = re
	}
	return f, nil
}

// Matches reports whether the session's SUT name matches
func (f *SUTFilter) Matches(s *models.TestSession) bool {
	return matchInsensitive(s.SUTName, f.Name, f.Match, f.re)
}

// Spec returns the serialized form of the filter
func (f *SUTFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypeSUT, Params: map[string]interface{}{
		"name":       f.Name,
		"match_type": string(f.Match),
	}}
}

// LastDaysFilter keeps sessions whose start time falls within the last N
// days. The clock is injectable for tests; nil means time.Now.
type LastDaysFilter struct {
	Days int

	now func() time.Time
}

// NewLastDaysFilter creates a time window filter over the last N days
func NewLastDaysFilter(days int) (*LastDaysFilter, error) {
	return NewLastDaysFilterAt(days, nil)
}

// NewLastDaysFilterAt creates a time window filter with an injected clock
func NewLastDaysFilterAt(days int, now func() time.Time) (*LastDaysFilter, error) {
	if days < 0 {
		return nil, NewInvalidFilterKindError("last days filter: days must be non-negative, got %d", days)
	}
	return &LastDaysFilter{Days: days, now: now}, nil
}

// Matches reports whether the session started at or after the cutoff.
// Sessions that started exactly N days ago are included.
func (f *LastDaysFilter) Matches(s *models.TestSession) bool {
	now := time.Now
	if f.now != nil {
		now = f.now
	}
	cutoff := now().UTC().Add(-time.Duration(f.Days) * 24 * time.Hour)
	return !s.SessionStartTime.UTC().Before(cutoff)
}

// Spec returns the serialized form of the filter
func (f *LastDaysFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypeLastDays, Params: map[string]interface{}{
		"days": f.Days,
	}}
}

// RerunsFilter keeps sessions with at least one rerun group
type RerunsFilter struct{}

// NewRerunsFilter creates a rerun presence filter
func NewRerunsFilter() *RerunsFilter {
	return &RerunsFilter{}
}

// Matches reports whether the session contains rerun groups
func (f *RerunsFilter) Matches(s *models.TestSession) bool {
	return s.HasReruns()
}

// Spec returns the serialized form of the filter
func (f *RerunsFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypeReruns}
}

// TagsFilter keeps sessions where every key/value pair matches the session
// tags. A key missing from the session compares against the empty string.
type TagsFilter struct {
	Tags  map[string]string
	Match MatchType

	res map[string]*regexp.Regexp
}

// NewTagsFilter creates a session tag filter. All pairs must match.
func NewTagsFilter(tags map[string]string, match MatchType) (*TagsFilter, error) {
	if !validMatchType(match) {
		return nil, NewInvalidFilterKindError("tags filter: unsupported match type %q", string(match))
	}
	f := &TagsFilter{Tags: tags, Match: match}
	if match == MatchRegex {
		f.res = make(map[string]*regexp.Regexp, len(tags))
		for key, pattern := range tags {
			re, err := compileInsensitive(pattern)
			if err != nil {
				return nil, NewInvalidFilterKindError("tags filter: invalid regex %q for key %q: %v", pattern, key, err)
			}
			f.res[key] = re
		}
	}
	return f, nil
}

// Matches reports whether every configured pair matches the session tags
func (f *TagsFilter) Matches(s *models.TestSession) bool {
	for key, pattern := range f.Tags {
		if !matchInsensitive(s.Tag(key), pattern, f.Match, f.res[key]) {
			return false
		}
	}
	return true
}

// Spec returns the serialized form of the filter
func (f *TagsFilter) Spec() FilterSpec {
	tags := make(map[string]interface{}, len(f.Tags))
	for k, v := range f.Tags {
		tags[k] = v
	}
	return FilterSpec{Type: TypeTags, Params: map[string]interface{}{
		"tags":       tags,
		"match_type": string(f.Match),
	}}
}

// WarningFilter keeps sessions with at least one warning-emitting result
type WarningFilter struct{}

// NewWarningFilter creates a warning presence filter
func NewWarningFilter() *WarningFilter {
	return &WarningFilter{}
}

// Matches reports whether the session has at least one warning
func (f *WarningFilter) Matches(s *models.TestSession) bool {
	return s.HasWarnings()
}

// Spec returns the serialized form of the filter
func (f *WarningFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypeWarning}
}

// SessionOutcomeFilter keeps sessions by test outcome. With AllTests false
// (the default form) a session matches when any test has the outcome; with
// AllTests true every test must have it, and sessions without tests never
// match.
type SessionOutcomeFilter struct {
	Outcome  models.TestOutcome
	AllTests bool
}

// NewSessionOutcomeFilter creates an outcome presence filter
func NewSessionOutcomeFilter(outcome models.TestOutcome, allTests bool) (*SessionOutcomeFilter, error) {
	if !outcome.Valid() {
		return nil, NewInvalidFilterKindError("session outcome filter: unknown outcome %q", string(outcome))
	}
	return &SessionOutcomeFilter{Outcome: outcome, AllTests: allTests}, nil
}

// Matches reports whether the session satisfies the outcome condition
func (f *SessionOutcomeFilter) Matches(s *models.TestSession) bool {
	if f.AllTests {
		if len(s.TestResults) == 0 {
			return false
		}
		for i := range s.TestResults {
			if s.TestResults[i].Outcome != f.Outcome {
				return false
			}
		}
		return true
	}
	for i := range s.TestResults {
		if s.TestResults[i].Outcome == f.Outcome {
			return true
		}
	}
	return false
}

// Spec returns the serialized form of the filter
func (f *SessionOutcomeFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypeSessionOutcome, Params: map[string]interface{}{
		"outcome":   f.Outcome.String(),
		"all_tests": f.AllTests,
	}}
}

// UnreliableSessionFilter keeps sessions with at least one result flagged
// unreliable
type UnreliableSessionFilter struct{}

// NewUnreliableSessionFilter creates an unreliable presence filter
func NewUnreliableSessionFilter() *UnreliableSessionFilter {
	return &UnreliableSessionFilter{}
}

// Matches reports whether the session has unreliable results
func (f *UnreliableSessionFilter) Matches(s *models.TestSession) bool {
	return s.HasUnreliableTests()
}

// Spec returns the serialized form of the filter
func (f *UnreliableSessionFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypeUnreliableSession}
}

// SessionIDPatternFilter keeps sessions whose id matches a shell glob
// pattern ("base-*", "target-api-?"). Used by comparisons to split base and
// target populations by id prefix.
type SessionIDPatternFilter struct {
	Pattern string
}

// NewSessionIDPatternFilter creates a session id glob filter
func NewSessionIDPatternFilter(pattern string) (*SessionIDPatternFilter, error) {
	if pattern == "" {
		return nil, NewInvalidFilterKindError("session id pattern filter: pattern must not be empty")
	}
	// Probe the pattern once so malformed globs fail at construction.
	if _, err := path.Match(pattern, "probe"); err != nil {
		return nil, NewInvalidFilterKindError("session id pattern filter: invalid pattern %q: %v", pattern, err)
	}
	return &SessionIDPatternFilter{Pattern: pattern}, nil
}

// Matches reports whether the session id matches the glob
func (f *SessionIDPatternFilter) Matches(s *models.TestSession) bool {
	ok, err := path.Match(f.Pattern, s.SessionID)
	return err == nil && ok
}

// Spec returns the serialized form of the filter
func (f *SessionIDPatternFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypeSessionIDPattern, Params: map[string]interface{}{
		"pattern": f.Pattern,
	}}
}

// TestMatchFilter is the session-level form of a test filter chain: it keeps
// a session when at least one test satisfies every wrapped test predicate
// (AND across predicates, OR across tests). TestQuery.Apply registers one of
// these on its parent query, which is what makes test-level filtering a
// session selector rather than a test extractor.
type TestMatchFilter struct {
	Filters []TestFilter
}

// NewTestMatchFilter wraps a test filter chain as a session filter
func NewTestMatchFilter(filters []TestFilter) *TestMatchFilter {
	return &TestMatchFilter{Filters: filters}
}

// Matches reports whether any test satisfies every wrapped predicate
func (f *TestMatchFilter) Matches(s *models.TestSession) bool {
	for i := range s.TestResults {
		if testMatchesAll(&s.TestResults[i], f.Filters) {
			return true
		}
	}
	return false
}

// Spec returns the serialized form of the filter with nested test filter specs
func (f *TestMatchFilter) Spec() FilterSpec {
	nested := make([]interface{}, 0, len(f.Filters))
	for _, tf := range f.Filters {
		nested = append(nested, tf.Spec().toMap())
	}
	return FilterSpec{Type: TypeTestMatch, Params: map[string]interface{}{
		"filters": nested,
	}}
}

// testMatchesAll reports whether the result satisfies every filter
func testMatchesAll(r *models.TestResult, filters []TestFilter) bool {
	for _, f := range filters {
		if !f.Matches(r) {
			return false
		}
	}
	return true
}
