package query

import (
	"github.com/moolen/insight/internal/models"
)

// Filter type tags. These are the wire names used in serialized query specs;
// changing one breaks saved queries.
const (
	TypeSUT               = "sut"
	TypeLastDays          = "last_days"
	TypeReruns            = "reruns"
	TypeTags              = "tags"
	TypeWarning           = "warning"
	TypeSessionOutcome    = "session_outcome"
	TypeUnreliableSession = "unreliable_session"
	TypeSessionIDPattern  = "session_id_pattern"
	TypeTestMatch         = "test_match"
	TypeTestName          = "test_name"
	TypeDuration          = "duration"
	TypePattern           = "pattern"
	TypeRegex             = "regex"
	TypeTestOutcome       = "test_outcome"
	TypeUnreliableTest    = "unreliable_test"
	TypeTestWarning       = "test_warning"
)

// FilterSpec is the serialized form of one predicate: a type tag plus its
// parameters. Params values are JSON-compatible (strings, numbers, bools,
// nested maps and lists) so a spec survives an encoding round trip.
type FilterSpec struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// toMap renders the spec as a plain map for nesting inside another spec
func (s FilterSpec) toMap() map[string]interface{} {
	m := map[string]interface{}{"type": s.Type}
	if len(s.Params) > 0 {
		m["params"] = s.Params
	}
	return m
}

// QuerySpec is the serialized form of a whole query: the session ids of its
// last result (empty when the query never executed) plus every registered
// predicate in registration order.
type QuerySpec struct {
	Sessions []string     `json:"sessions,omitempty"`
	Filters  []FilterSpec `json:"filters"`
}

type sessionFilterDecoder func(FilterSpec) (SessionFilter, error)
type testFilterDecoder func(FilterSpec) (TestFilter, error)

// The filter registries are built once at process start and never mutated
// afterward. They are unexported so no caller can register new kinds at
// runtime; adding a kind means adding a decoder here alongside its variant.
var (
	sessionFilterDecoders map[string]sessionFilterDecoder
	testFilterDecoders    map[string]testFilterDecoder
)

func init() {
	sessionFilterDecoders = map[string]sessionFilterDecoder{
		TypeSUT:               decodeSUTFilter,
		TypeLastDays:          decodeLastDaysFilter,
		TypeReruns:            func(FilterSpec) (SessionFilter, error) { return NewRerunsFilter(), nil },
		TypeTags:              decodeTagsFilter,
		TypeWarning:           func(FilterSpec) (SessionFilter, error) { return NewWarningFilter(), nil },
		TypeSessionOutcome:    decodeSessionOutcomeFilter,
		TypeUnreliableSession: func(FilterSpec) (SessionFilter, error) { return NewUnreliableSessionFilter(), nil },
		TypeSessionIDPattern:  decodeSessionIDPatternFilter,
		TypeTestMatch:         decodeTestMatchFilter,
	}
	testFilterDecoders = map[string]testFilterDecoder{
		TypeTestName:       decodeNameFilter,
		TypeDuration:       decodeDurationFilter,
		TypePattern:        decodePatternFilter,
		TypeRegex:          decodeRegexFilter,
		TypeTestOutcome:    decodeTestOutcomeFilter,
		TypeUnreliableTest: func(FilterSpec) (TestFilter, error) { return NewUnreliableTestFilter(), nil },
		TypeTestWarning:    func(FilterSpec) (TestFilter, error) { return NewTestWarningFilter(), nil },
	}
}

// SessionFilterFromSpec reconstructs a session filter from its serialized
// form. Unknown type tags fail with UnknownFilterTypeError; malformed
// parameters fail with the same construction errors as the typed
// constructors.
func SessionFilterFromSpec(spec FilterSpec) (SessionFilter, error) {
	decode, ok := sessionFilterDecoders[spec.Type]
	if !ok {
		return nil, NewUnknownFilterTypeError(spec.Type)
	}
	return decode(spec)
}

// TestFilterFromSpec reconstructs a test filter from its serialized form
func TestFilterFromSpec(spec FilterSpec) (TestFilter, error) {
	decode, ok := testFilterDecoders[spec.Type]
	if !ok {
		return nil, NewUnknownFilterTypeError(spec.Type)
	}
	return decode(spec)
}

func decodeSUTFilter(spec FilterSpec) (SessionFilter, error) {
	name, ok := paramString(spec.Params, "name")
	if !ok {
		return nil, NewInvalidFilterKindError("sut filter spec: missing name")
	}
	match := MatchExact
	if m, ok := paramString(spec.Params, "match_type"); ok {
		match = MatchType(m)
	}
	return NewSUTFilter(name, match)
}

func decodeLastDaysFilter(spec FilterSpec) (SessionFilter, error) {
	days, ok := paramInt(spec.Params, "days")
	if !ok {
		return nil, NewInvalidFilterKindError("last days filter spec: missing days")
	}
	return NewLastDaysFilter(days)
}

func decodeTagsFilter(spec FilterSpec) (SessionFilter, error) {
	tags, ok := paramStringMap(spec.Params, "tags")
	if !ok {
		return nil, NewInvalidFilterKindError("tags filter spec: missing tags")
	}
	match := MatchExact
	if m, ok := paramString(spec.Params, "match_type"); ok {
		match = MatchType(m)
	}
	return NewTagsFilter(tags, match)
}

func decodeSessionOutcomeFilter(spec FilterSpec) (SessionFilter, error) {
	name, ok := paramString(spec.Params, "outcome")
	if !ok {
		return nil, NewInvalidFilterKindError("session outcome filter spec: missing outcome")
	}
	outcome, err := models.ParseOutcome(name)
	if err != nil {
		return nil, NewInvalidFilterKindError("session outcome filter spec: %v", err)
	}
	allTests, _ := paramBool(spec.Params, "all_tests")
	return NewSessionOutcomeFilter(outcome, allTests)
}

func decodeSessionIDPatternFilter(spec FilterSpec) (SessionFilter, error) {
	pattern, ok := paramString(spec.Params, "pattern")
	if !ok {
		return nil, NewInvalidFilterKindError("session id pattern filter spec: missing pattern")
	}
	return NewSessionIDPatternFilter(pattern)
}

func decodeTestMatchFilter(spec FilterSpec) (SessionFilter, error) {
	raw, ok := paramList(spec.Params, "filters")
	if !ok {
		return nil, NewInvalidFilterKindError("test match filter spec: missing filters")
	}
	filters := make([]TestFilter, 0, len(raw))
	for _, entry := range raw {
		nested, err := specFromValue(entry)
		if err != nil {
			return nil, err
		}
		f, err := TestFilterFromSpec(nested)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return NewTestMatchFilter(filters), nil
}

func decodeNameFilter(spec FilterSpec) (TestFilter, error) {
	name, ok := paramString(spec.Params, "name")
	if !ok {
		return nil, NewInvalidFilterKindError("name filter spec: missing name")
	}
	return NewNameFilter(name)
}

func decodeDurationFilter(spec FilterSpec) (TestFilter, error) {
	min, okMin := paramFloat(spec.Params, "min")
	max, okMax := paramFloat(spec.Params, "max")
	if !okMin || !okMax {
		return nil, NewInvalidFilterKindError("duration filter spec: missing min or max")
	}
	return NewDurationFilter(min, max)
}

func decodePatternFilter(spec FilterSpec) (TestFilter, error) {
	pattern, ok := paramString(spec.Params, "pattern")
	if !ok {
		return nil, NewInvalidFilterKindError("pattern filter spec: missing pattern")
	}
	field, ok := paramString(spec.Params, "field")
	if !ok {
		return nil, NewInvalidFilterKindError("pattern filter spec: missing field")
	}
	return NewPatternFilter(pattern, Field(field))
}

func decodeRegexFilter(spec FilterSpec) (TestFilter, error) {
	pattern, ok := paramString(spec.Params, "pattern")
	if !ok {
		return nil, NewInvalidFilterKindError("regex filter spec: missing pattern")
	}
	field, ok := paramString(spec.Params, "field")
	if !ok {
		return nil, NewInvalidFilterKindError("regex filter spec: missing field")
	}
	return NewRegexFilter(pattern, Field(field))
}

func decodeTestOutcomeFilter(spec FilterSpec) (TestFilter, error) {
	name, ok := paramString(spec.Params, "outcome")
	if !ok {
		return nil, NewInvalidFilterKindError("test outcome filter spec: missing outcome")
	}
	outcome, err := models.ParseOutcome(name)
	if err != nil {
		return nil, NewInvalidFilterKindError("test outcome filter spec: %v", err)
	}
	return NewTestOutcomeFilter(outcome)
}

// specFromValue converts a nested spec value (a plain map, as produced by
// toMap or a JSON decode) back into a FilterSpec.
func specFromValue(v interface{}) (FilterSpec, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return FilterSpec{}, NewInvalidFilterKindError("nested filter spec must be an object, got %T", v)
	}
	typeTag, ok := m["type"].(string)
	if !ok {
		return FilterSpec{}, NewInvalidFilterKindError("nested filter spec missing type tag")
	}
	spec := FilterSpec{Type: typeTag}
	if params, ok := m["params"].(map[string]interface{}); ok {
		spec.Params = params
	}
	return spec, nil
}

// Param readers tolerate both programmatic values (int, map[string]string)
// and their post-JSON shapes (float64, map[string]interface{}).

func paramString(params map[string]interface{}, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func paramFloat(params map[string]interface{}, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func paramInt(params map[string]interface{}, key string) (int, bool) {
	f, ok := paramFloat(params, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func paramBool(params map[string]interface{}, key string) (bool, bool) {
	v, ok := params[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func paramStringMap(params map[string]interface{}, key string) (map[string]string, bool) {
	v, ok := params[key]
	if !ok {
		return nil, false
	}
	switch m := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	case map[string]interface{}:
		out := make(map[string]string, len(m))
		for k, val := range m {
			s, ok := val.(string)
			if !ok {
				return nil, false
			}
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

func paramList(params map[string]interface{}, key string) ([]interface{}, bool) {
	v, ok := params[key]
	if !ok {
		return nil, false
	}
	l, ok := v.([]interface{})
	return l, ok
}
