package analysis

import (
	"sort"

	"github.com/moolen/insight/internal/models"
)

// UnreliableTest describes a test that only passed after being rerun.
type UnreliableTest struct {
	NodeID string `json:"nodeid"`
	// Reruns counts the discarded attempts across all sessions.
	Reruns     int      `json:"reruns"`
	SessionIDs []string `json:"session_ids"`
	// PassRate is final passes over total attempts (reruns + passes).
	PassRate float64 `json:"pass_rate"`
}

// UnreliableTests identifies tests that recovered through reruns, ordered
// by rerun count descending. A test that was rerun but never passed is not
// unreliable in this sense, it is just failing.
func (a *Analyzer) UnreliableTests(sessions []*models.TestSession) []UnreliableTest {
	type acc struct {
		reruns   int
		sessions map[string]struct{}
	}
	byNode := map[string]*acc{}

	for _, s := range sessions {
		for _, group := range s.RerunTestGroups {
			if group.FinalOutcome() != models.OutcomePassed {
				continue
			}
			entry, ok := byNode[group.NodeID]
			if !ok {
				entry = &acc{sessions: map[string]struct{}{}}
				byNode[group.NodeID] = entry
			}
			// The final passing attempt does not count as a rerun.
			entry.reruns += len(group.Tests) - 1
			entry.sessions[s.SessionID] = struct{}{}
		}
	}

	unreliable := make([]UnreliableTest, 0, len(byNode))
	for nodeid, entry := range byNode {
		ids := make([]string, 0, len(entry.sessions))
		for id := range entry.sessions {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		totalRuns := entry.reruns + len(ids)
		passRate := 0.0
		if totalRuns > 0 {
			passRate = float64(len(ids)) / float64(totalRuns)
		}
		unreliable = append(unreliable, UnreliableTest{
			NodeID:     nodeid,
			Reruns:     entry.reruns,
			SessionIDs: ids,
			PassRate:   passRate,
		})
	}

	sort.Slice(unreliable, func(i, j int) bool {
		if unreliable[i].Reruns != unreliable[j].Reruns {
			return unreliable[i].Reruns > unreliable[j].Reruns
		}
		return unreliable[i].NodeID < unreliable[j].NodeID
	})
	return unreliable
}

// UnstableTest describes a test that needed reruns, whatever the final
// outcome.
type UnstableTest struct {
	NodeID     string   `json:"nodeid"`
	Reruns     int      `json:"reruns"`
	SessionIDs []string `json:"session_ids"`
	// FinalOutcomes counts how each rerun chain ended, keyed by the
	// serialized outcome.
	FinalOutcomes map[string]int `json:"final_outcomes"`
}

// ReliabilityReport summarizes rerun behavior across sessions.
type ReliabilityReport struct {
	// ReliabilityIndex is 100 minus the percentage of tests that needed
	// reruns; 100 when there are no tests.
	ReliabilityIndex float64 `json:"reliability_index"`
	// RerunRecoveryRate is the percentage of rerun chains that ended
	// PASSED; 100 when nothing was rerun.
	RerunRecoveryRate float64 `json:"rerun_recovery_rate"`
	// HealthScorePenalty is the percentage of tests that needed reruns,
	// meant to be subtracted from a health score.
	HealthScorePenalty float64        `json:"health_score_penalty"`
	TotalUnstable      int            `json:"total_unstable"`
	UnstableTests      []UnstableTest `json:"unstable_tests"`
}

// Reliability computes the rerun-based reliability report over sessions.
// Unstable tests are ordered by rerun count descending.
func (a *Analyzer) Reliability(sessions []*models.TestSession) ReliabilityReport {
	type acc struct {
		reruns        int
		sessions      map[string]struct{}
		finalOutcomes map[string]int
	}
	byNode := map[string]*acc{}

	totalGroups := 0
	recovered := 0
	totalTests := 0

	for _, s := range sessions {
		totalTests += len(s.TestResults)
		for _, group := range s.RerunTestGroups {
			totalGroups++
			if group.FinalOutcome() == models.OutcomePassed {
				recovered++
			}

			entry, ok := byNode[group.NodeID]
			if !ok {
				entry = &acc{
					sessions:      map[string]struct{}{},
					finalOutcomes: map[string]int{},
				}
				byNode[group.NodeID] = entry
			}
			entry.reruns += len(group.Tests) - 1
			entry.sessions[s.SessionID] = struct{}{}
			entry.finalOutcomes[group.FinalOutcome().String()]++
		}
	}

	report := ReliabilityReport{
		ReliabilityIndex:  100.0,
		RerunRecoveryRate: 100.0,
		TotalUnstable:     len(byNode),
		UnstableTests:     []UnstableTest{},
	}
	if totalGroups > 0 {
		report.RerunRecoveryRate = float64(recovered) / float64(totalGroups) * 100.0
	}
	if totalTests > 0 {
		unstableShare := float64(len(byNode)) / float64(totalTests) * 100.0
		report.ReliabilityIndex = 100.0 - unstableShare
		report.HealthScorePenalty = unstableShare
	}

	for nodeid, entry := range byNode {
		ids := make([]string, 0, len(entry.sessions))
		for id := range entry.sessions {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		report.UnstableTests = append(report.UnstableTests, UnstableTest{
			NodeID:        nodeid,
			Reruns:        entry.reruns,
			SessionIDs:    ids,
			FinalOutcomes: entry.finalOutcomes,
		})
	}
	sort.Slice(report.UnstableTests, func(i, j int) bool {
		if report.UnstableTests[i].Reruns != report.UnstableTests[j].Reruns {
			return report.UnstableTests[i].Reruns > report.UnstableTests[j].Reruns
		}
		return report.UnstableTests[i].NodeID < report.UnstableTests[j].NodeID
	})

	return report
}
