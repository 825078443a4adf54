package models

// RerunTestGroup holds the chronological sequence of repeated executions of
// one nodeid within a session, produced by automatic retry-on-failure
// behavior. Groups are built once at session-ingestion time and never
// mutated afterward.
//
// A group is only materialized when it has more than one result. Capture
// guarantees that every result except the chronologically last has outcome
// RERUN and the last has any outcome except RERUN; Validate checks this
// explicitly for callers that do not trust their input.
type RerunTestGroup struct {
	// NodeID is the test identifier shared by all results in the group
	NodeID string `json:"nodeid"`

	// Tests holds the results ordered by StartTime
	Tests []TestResult `json:"tests"`
}

// FinalOutcome returns the outcome of the chronologically last execution.
// Returns the empty outcome for an empty group.
func (g *RerunTestGroup) FinalOutcome() TestOutcome {
	if len(g.Tests) == 0 {
		return ""
	}
	return g.Tests[len(g.Tests)-1].Outcome
}

// Recovered reports whether the group ended in a pass after at least one rerun
func (g *RerunTestGroup) Recovered() bool {
	return len(g.Tests) > 1 && g.FinalOutcome() == OutcomePassed
}

// Validate checks the rerun-group invariant: more than one result, every
// result except the last has outcome RERUN, and the last has any outcome
// except RERUN.
func (g *RerunTestGroup) Validate() error {
	if g.NodeID == "" {
		return NewValidationError("rerun group nodeid must not be empty")
	}
	if len(g.Tests) < 2 {
		return NewValidationError("rerun group %s must have more than one result, got %d", g.NodeID, len(g.Tests))
	}
	for i, r := range g.Tests {
		if r.NodeID != g.NodeID {
			return NewValidationError("rerun group %s contains result for %s", g.NodeID, r.NodeID)
		}
		last := i == len(g.Tests)-1
		if last && r.Outcome == OutcomeRerun {
			return NewValidationError("rerun group %s: final result must not have outcome rerun", g.NodeID)
		}
		if !last && r.Outcome != OutcomeRerun {
			return NewValidationError("rerun group %s: intermediate result %d has outcome %s, expected rerun", g.NodeID, i, r.Outcome)
		}
	}
	return nil
}
