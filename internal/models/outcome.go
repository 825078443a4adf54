package models

import (
	"encoding/json"
	"strings"
)

// TestOutcome represents the outcome of a single test execution
type TestOutcome string

const (
	// OutcomePassed represents a test that passed
	OutcomePassed TestOutcome = "PASSED"
	// OutcomeFailed represents a test that failed an assertion
	OutcomeFailed TestOutcome = "FAILED"
	// OutcomeError represents a test that errored outside its assertions
	OutcomeError TestOutcome = "ERROR"
	// OutcomeSkipped represents a test that was skipped
	OutcomeSkipped TestOutcome = "SKIPPED"
	// OutcomeXFailed represents a test that failed as expected
	OutcomeXFailed TestOutcome = "XFAILED"
	// OutcomeXPassed represents a test that passed unexpectedly
	OutcomeXPassed TestOutcome = "XPASSED"
	// OutcomeRerun represents an intermediate execution that was retried
	OutcomeRerun TestOutcome = "RERUN"
)

// ParseOutcome converts a string to a TestOutcome, case-insensitively.
// Returns a ValidationError for unknown outcome names.
func ParseOutcome(s string) (TestOutcome, error) {
	switch TestOutcome(strings.ToUpper(s)) {
	case OutcomePassed, OutcomeFailed, OutcomeError, OutcomeSkipped,
		OutcomeXFailed, OutcomeXPassed, OutcomeRerun:
		return TestOutcome(strings.ToUpper(s)), nil
	default:
		return "", NewValidationError("unknown test outcome: %q", s)
	}
}

// String returns the serialized (lowercase) form of the outcome
func (o TestOutcome) String() string {
	return strings.ToLower(string(o))
}

// IsFailed returns true for outcomes that count as failures (FAILED, ERROR)
func (o TestOutcome) IsFailed() bool {
	return o == OutcomeFailed || o == OutcomeError
}

// Valid reports whether the outcome is one of the known values
func (o TestOutcome) Valid() bool {
	_, err := ParseOutcome(string(o))
	return err == nil
}

// MarshalJSON serializes the outcome in its lowercase form
func (o TestOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// UnmarshalJSON parses an outcome case-insensitively
func (o *TestOutcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
