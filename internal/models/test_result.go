package models

import (
	"time"
)

// TestResult represents a single execution of one test within a session.
// Results are immutable after creation and owned exclusively by the
// TestSession (or RerunTestGroup) that holds them.
type TestResult struct {
	// NodeID is the stable test identifier, used as the join key across sessions
	NodeID string `json:"nodeid"`

	// Outcome is the result of this execution
	Outcome TestOutcome `json:"outcome"`

	// StartTime is when the test started executing
	StartTime time.Time `json:"start_time"`

	// StopTime is when the test finished. Derived from StartTime and
	// Duration when absent.
	StopTime time.Time `json:"stop_time"`

	// Duration is the execution time in seconds. Derived from StopTime
	// minus StartTime when absent.
	Duration float64 `json:"duration"`

	// Caplog is the captured log output
	Caplog string `json:"caplog,omitempty"`

	// Capstderr is the captured stderr output
	Capstderr string `json:"capstderr,omitempty"`

	// Capstdout is the captured stdout output
	Capstdout string `json:"capstdout,omitempty"`

	// LongRepr is the failure detail text, empty unless the test failed or errored
	LongRepr string `json:"longreprtext,omitempty"`

	// HasWarning indicates the test emitted at least one warning
	HasWarning bool `json:"has_warning,omitempty"`

	// Unreliable flags a test with inconsistent historical outcomes,
	// independent of rerun grouping. Set by the capture collaborator.
	Unreliable bool `json:"unreliable,omitempty"`
}

// Normalize converts timestamps to UTC and derives the missing one of
// StopTime/Duration from the other. Timestamps from mixed sources (with and
// without zone offsets) become uniformly comparable after normalization.
func (r *TestResult) Normalize() {
	r.StartTime = r.StartTime.UTC()
	if r.StopTime.IsZero() {
		r.StopTime = r.StartTime.Add(secondsToDuration(r.Duration))
	} else {
		r.StopTime = r.StopTime.UTC()
		if r.Duration == 0 && r.StopTime.After(r.StartTime) {
			r.Duration = r.StopTime.Sub(r.StartTime).Seconds()
		}
	}
}

// Validate checks that the result has all required fields and is well-formed
func (r *TestResult) Validate() error {
	if r.NodeID == "" {
		return NewValidationError("nodeid must not be empty")
	}
	if !r.Outcome.Valid() {
		return NewValidationError("outcome %q is not a known test outcome", string(r.Outcome))
	}
	if r.Duration < 0 {
		return NewValidationError("duration must be non-negative, got %f", r.Duration)
	}
	if r.StartTime.IsZero() {
		return NewValidationError("start_time must be set")
	}
	return nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
