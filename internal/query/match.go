package query

import (
	"regexp"
	"strings"
)

// MatchType selects how a string-valued filter compares its pattern
type MatchType string

const (
	// MatchExact requires the whole value to equal the pattern
	MatchExact MatchType = "exact"
	// MatchSubstring requires the value to contain the pattern
	MatchSubstring MatchType = "substring"
	// MatchRegex treats the pattern as a regular expression and searches the value
	MatchRegex MatchType = "regex"
)

// validMatchType reports whether m is one of the supported match types
func validMatchType(m MatchType) bool {
	switch m {
	case MatchExact, MatchSubstring, MatchRegex:
		return true
	}
	return false
}

// compileInsensitive compiles a pattern for case-insensitive searching.
// SUT and tag filters match case-insensitively across all match types, so
// the regex form gets the same treatment.
func compileInsensitive(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

// matchInsensitive applies a match type case-insensitively.
// re must be the compiled form of pattern when matchType is MatchRegex.
func matchInsensitive(value, pattern string, matchType MatchType, re *regexp.Regexp) bool {
	switch matchType {
	case MatchExact:
		return strings.EqualFold(value, pattern)
	case MatchSubstring:
		return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
	case MatchRegex:
		return re.MatchString(value)
	}
	return false
}
