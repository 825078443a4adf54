package models

import (
	"time"
)

// TestSession represents one complete test-suite execution against a single
// SUT, with start/stop times and the full ordered set of test results.
//
// Sessions are read-only to the query, comparison and analysis engines:
// filtering always produces new slices or views, never edits of the
// original. Mutating methods exist only for the capture path that builds a
// session before it is committed to storage.
type TestSession struct {
	// SessionID uniquely identifies the session
	SessionID string `json:"session_id"`

	// SUTName names the system under test this session exercised
	SUTName string `json:"sut_name"`

	// SessionStartTime is when the test run started
	SessionStartTime time.Time `json:"session_start_time"`

	// SessionStopTime is when the test run finished
	SessionStopTime time.Time `json:"session_stop_time"`

	// SessionDuration is the run length in seconds, derived from the
	// start/stop times when absent
	SessionDuration float64 `json:"session_duration"`

	// SessionTags carries arbitrary key/value metadata (environment,
	// version, platform, ...)
	SessionTags map[string]string `json:"session_tags,omitempty"`

	// TestResults holds every captured result in execution order,
	// including intermediate RERUN executions
	TestResults []TestResult `json:"test_results"`

	// RerunTestGroups holds the derived rerun groups (only nodeids with
	// more than one result)
	RerunTestGroups []RerunTestGroup `json:"rerun_test_groups,omitempty"`
}

// Normalize converts all timestamps to UTC, derives the session duration,
// normalizes every test result, and derives the rerun groups when the
// capture side did not supply them. Called once at ingestion/deserialization.
func (s *TestSession) Normalize() {
	s.SessionStartTime = s.SessionStartTime.UTC()
	if s.SessionStopTime.IsZero() {
		s.SessionStopTime = s.SessionStartTime.Add(secondsToDuration(s.SessionDuration))
	} else {
		s.SessionStopTime = s.SessionStopTime.UTC()
		if s.SessionDuration == 0 && s.SessionStopTime.After(s.SessionStartTime) {
			s.SessionDuration = s.SessionStopTime.Sub(s.SessionStartTime).Seconds()
		}
	}
	for i := range s.TestResults {
		s.TestResults[i].Normalize()
	}
	for i := range s.RerunTestGroups {
		for j := range s.RerunTestGroups[i].Tests {
			s.RerunTestGroups[i].Tests[j].Normalize()
		}
	}
	if s.RerunTestGroups == nil {
		s.RerunTestGroups = GroupRerunTests(s.TestResults)
	}
}

// Validate checks that the session has all required fields and is well-formed
func (s *TestSession) Validate() error {
	if s.SessionID == "" {
		return NewValidationError("session_id must not be empty")
	}
	if s.SUTName == "" {
		return NewValidationError("sut_name must not be empty")
	}
	if s.SessionStartTime.IsZero() {
		return NewValidationError("session_start_time must be set")
	}
	if !s.SessionStopTime.IsZero() && s.SessionStopTime.Before(s.SessionStartTime) {
		return NewValidationError("session_stop_time must not be before session_start_time")
	}
	for i := range s.TestResults {
		if err := s.TestResults[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AddTestResult appends a result to the session. Capture-path only.
func (s *TestSession) AddTestResult(result TestResult) {
	s.TestResults = append(s.TestResults, result)
}

// AddRerunGroup appends a pre-built rerun group. Capture-path only.
func (s *TestSession) AddRerunGroup(group RerunTestGroup) {
	s.RerunTestGroups = append(s.RerunTestGroups, group)
}

// HasReruns reports whether the session contains at least one rerun group
func (s *TestSession) HasReruns() bool {
	return len(s.RerunTestGroups) > 0
}

// HasWarnings reports whether at least one result emitted a warning
func (s *TestSession) HasWarnings() bool {
	for i := range s.TestResults {
		if s.TestResults[i].HasWarning {
			return true
		}
	}
	return false
}

// HasUnreliableTests reports whether at least one result is flagged unreliable
func (s *TestSession) HasUnreliableTests() bool {
	for i := range s.TestResults {
		if s.TestResults[i].Unreliable {
			return true
		}
	}
	return false
}

// Tag returns the value for a session tag key. Missing keys return the
// empty string, which is what tag filters compare against.
func (s *TestSession) Tag(key string) string {
	if s.SessionTags == nil {
		return ""
	}
	return s.SessionTags[key]
}
