package query

import (
	"regexp"
	"strings"

	"github.com/moolen/insight/internal/models"
)

// Field names a text field of a test result that pattern filters may search.
// The allow-list is fixed: unknown fields are rejected at construction.
type Field string

const (
	// FieldNodeID searches the test identifier
	FieldNodeID Field = "nodeid"
	// FieldCaplog searches the captured log output
	FieldCaplog Field = "caplog"
	// FieldCapstdout searches the captured stdout
	FieldCapstdout Field = "capstdout"
	// FieldCapstderr searches the captured stderr
	FieldCapstderr Field = "capstderr"
	// FieldLongRepr searches the failure detail text
	FieldLongRepr Field = "longreprtext"
)

// validField reports whether f names a searchable text field
func validField(f Field) bool {
	switch f {
	case FieldNodeID, FieldCaplog, FieldCapstdout, FieldCapstderr, FieldLongRepr:
		return true
	}
	return false
}

// fieldValue extracts the named text field from a result
func fieldValue(r *models.TestResult, f Field) string {
	switch f {
	case FieldNodeID:
		return r.NodeID
	case FieldCaplog:
		return r.Caplog
	case FieldCapstdout:
		return r.Capstdout
	case FieldCapstderr:
		return r.Capstderr
	case FieldLongRepr:
		return r.LongRepr
	}
	return ""
}

// TestFilter is a test-level predicate. Like session filters, test filters
// are immutable tagged variants validated at construction.
type TestFilter interface {
	Matches(r *models.TestResult) bool
	Spec() FilterSpec
}

// NameFilter matches results whose nodeid contains a substring
type NameFilter struct {
	Substring string
}

// NewNameFilter creates a nodeid substring filter
func NewNameFilter(substring string) (*NameFilter, error) {
	if substring == "" {
		return nil, NewInvalidFilterKindError("name filter: substring must not be empty")
	}
	return &NameFilter{Substring: substring}, nil
}

// Matches reports whether the nodeid contains the substring
func (f *NameFilter) Matches(r *models.TestResult) bool {
	return strings.Contains(r.NodeID, f.Substring)
}

// Spec returns the serialized form of the filter
func (f *NameFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypeTestName, Params: map[string]interface{}{
		"name": f.Substring,
	}}
}

// DurationFilter matches results whose duration lies within inclusive bounds
type DurationFilter struct {
	Min float64
	Max float64
}

// NewDurationFilter creates an inclusive duration range filter
func NewDurationFilter(min, max float64) (*DurationFilter, error) {
	return &DurationFilter{Min: min, Max: max}, nil
}

// Matches reports whether min <= duration <= max
func (f *DurationFilter) Matches(r *models.TestResult) bool {
	return r.Duration >= f.Min && r.Duration <= f.Max
}

// Spec returns the serialized form of the filter
func (f *DurationFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypeDuration, Params: map[string]interface{}{
		"min": f.Min,
		"max": f.Max,
	}}
}

// PatternFilter matches results where a text field contains a substring
type PatternFilter struct {
	Pattern string
	Field   Field
}

// NewPatternFilter creates a substring filter over one of the fixed text fields
func NewPatternFilter(pattern string, field Field) (*PatternFilter, error) {
	if pattern == "" {
		return nil, NewInvalidFilterKindError("pattern filter: pattern must not be empty")
	}
	if !validField(field) {
		return nil, NewInvalidFilterKindError("pattern filter: unknown field %q", string(field))
	}
	return &PatternFilter{Pattern: pattern, Field: field}, nil
}

// Matches reports whether the field contains the pattern
func (f *PatternFilter) Matches(r *models.TestResult) bool {
	return strings.Contains(fieldValue(r, f.Field), f.Pattern)
}

// Spec returns the serialized form of the filter
func (f *PatternFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypePattern, Params: map[string]interface{}{
		"pattern": f.Pattern,
		"field":   string(f.Field),
	}}
}

// RegexFilter matches results where a compiled regex finds a match in a text
// field
type RegexFilter struct {
	Pattern string
	Field   Field

	re *regexp.Regexp
}

// NewRegexFilter creates a regex filter over one of the fixed text fields.
// Invalid patterns fail here, at construction.
func NewRegexFilter(pattern string, field Field) (*RegexFilter, error) {
	if !validField(field) {
		return nil, NewInvalidFilterKindError("regex filter: unknown field %q", string(field))
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, NewInvalidFilterKindError("regex filter: invalid regex %q: %v", pattern, err)
	}
	return &RegexFilter{Pattern: pattern, Field: field, re: re}, nil
}

// Matches reports whether the regex finds a match in the field
func (f *RegexFilter) Matches(r *models.TestResult) bool {
	return f.re.MatchString(fieldValue(r, f.Field))
}

// Spec returns the serialized form of the filter
func (f *RegexFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypeRegex, Params: map[string]interface{}{
		"pattern": f.Pattern,
		"field":   string(f.Field),
	}}
}

// TestOutcomeFilter matches results with a specific outcome
type TestOutcomeFilter struct {
	Outcome models.TestOutcome
}

// NewTestOutcomeFilter creates a test outcome filter
func NewTestOutcomeFilter(outcome models.TestOutcome) (*TestOutcomeFilter, error) {
	if !outcome.Valid() {
		return nil, NewInvalidFilterKindError("test outcome filter: unknown outcome %q", string(outcome))
	}
	return &TestOutcomeFilter{Outcome: outcome}, nil
}

// Matches reports whether the result has the outcome
func (f *TestOutcomeFilter) Matches(r *models.TestResult) bool {
	return r.Outcome == f.Outcome
}

// Spec returns the serialized form of the filter
func (f *TestOutcomeFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypeTestOutcome, Params: map[string]interface{}{
		"outcome": f.Outcome.String(),
	}}
}

// UnreliableTestFilter matches results flagged unreliable
type UnreliableTestFilter struct{}

// NewUnreliableTestFilter creates an unreliable flag filter
func NewUnreliableTestFilter() *UnreliableTestFilter {
	return &UnreliableTestFilter{}
}

// Matches reports whether the result is flagged unreliable
func (f *UnreliableTestFilter) Matches(r *models.TestResult) bool {
	return r.Unreliable
}

// Spec returns the serialized form of the filter
func (f *UnreliableTestFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypeUnreliableTest}
}

// TestWarningFilter matches results that emitted a warning
type TestWarningFilter struct{}

// NewTestWarningFilter creates a warning flag filter
func NewTestWarningFilter() *TestWarningFilter {
	return &TestWarningFilter{}
}

// Matches reports whether the result emitted a warning
func (f *TestWarningFilter) Matches(r *models.TestResult) bool {
	return r.HasWarning
}

// Spec returns the serialized form of the filter
func (f *TestWarningFilter) Spec() FilterSpec {
	return FilterSpec{Type: TypeTestWarning}
}
