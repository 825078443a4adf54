package comparison

import (
	"github.com/moolen/insight/internal/models"
	"github.com/moolen/insight/internal/query"
)

// OutcomeChange records a test flipping outcome between the base and target
// sessions.
type OutcomeChange struct {
	Base   models.TestOutcome `json:"base"`
	Target models.TestOutcome `json:"target"`
}

// ComparisonResult holds the categorized differences between a base and a
// target session. Categories are not mutually exclusive: a test that flips
// from PASSED to FAILED while also running 1.5x longer appears in
// NewFailures, FlakyTests and SlowerTests at the same time. The full query
// results and the selected sessions are kept so callers can correlate a
// changed test with everything else that happened in its session.
type ComparisonResult struct {
	BaseResult   *query.QueryResult `json:"-"`
	TargetResult *query.QueryResult `json:"-"`

	BaseSession   *models.TestSession `json:"base_session"`
	TargetSession *models.TestSession `json:"target_session"`

	// NewFailures holds nodeids that passed in base and failed in target.
	NewFailures []string `json:"new_failures"`
	// NewPasses holds nodeids that failed in base and passed in target.
	NewPasses []string `json:"new_passes"`
	// FlakyTests holds every nodeid whose outcome changed between sessions.
	FlakyTests []string `json:"flaky_tests"`
	// SlowerTests holds nodeids whose target duration exceeded the slower
	// threshold relative to base.
	SlowerTests []string `json:"slower_tests"`
	// FasterTests holds nodeids whose target duration fell below the faster
	// threshold relative to base.
	FasterTests []string `json:"faster_tests"`
	// MissingTests holds nodeids present in base but absent from target.
	MissingTests []string `json:"missing_tests"`
	// NewTests holds nodeids present in target but absent from base.
	NewTests []string `json:"new_tests"`

	// OutcomeChanges maps each changed nodeid to its base and target
	// outcomes. Always populated in lockstep with FlakyTests.
	OutcomeChanges map[string]OutcomeChange `json:"outcome_changes"`
}

// HasChanges reports whether any category list recorded a difference.
func (r *ComparisonResult) HasChanges() bool {
	return len(r.NewFailures) > 0 ||
		len(r.NewPasses) > 0 ||
		len(r.FlakyTests) > 0 ||
		len(r.SlowerTests) > 0 ||
		len(r.FasterTests) > 0 ||
		len(r.MissingTests) > 0 ||
		len(r.NewTests) > 0
}
