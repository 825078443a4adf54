package query

import (
	"time"

	"github.com/moolen/insight/internal/models"
)

// QueryResult holds the sessions matched by one query execution. Results
// are immutable snapshots: the engine never mutates them after Execute
// returns, so they are safe to share across goroutines.
type QueryResult struct {
	Sessions      []*models.TestSession
	ExecutionTime time.Duration
}

// Count returns the number of matched sessions
func (r *QueryResult) Count() int {
	return len(r.Sessions)
}

// IsEmpty reports whether no session matched
func (r *QueryResult) IsEmpty() bool {
	return len(r.Sessions) == 0
}

// SessionIDs returns the matched session ids in result order
func (r *QueryResult) SessionIDs() []string {
	ids := make([]string, 0, len(r.Sessions))
	for _, s := range r.Sessions {
		ids = append(ids, s.SessionID)
	}
	return ids
}

// TotalTests returns the number of test results across all matched sessions
func (r *QueryResult) TotalTests() int {
	total := 0
	for _, s := range r.Sessions {
		total += len(s.TestResults)
	}
	return total
}
