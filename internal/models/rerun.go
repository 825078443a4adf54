package models

import (
	"sort"

	"github.com/moolen/insight/internal/logging"
)

// GroupRerunTests builds rerun groups from the flat, possibly unordered list
// of results captured during one test run. Results are bucketed by nodeid,
// each bucket is sorted by StartTime, and a bucket becomes a RerunTestGroup
// only when it has more than one member. Group order follows the first
// appearance of each nodeid in the input.
//
// Outcome sequencing is asserted by capture, not enforced here: a bucket
// whose intermediate outcomes are not RERUN is still grouped, but the
// violation is logged so inconsistent capture input does not go unnoticed.
// Pure transform otherwise; the input slice is not modified.
func GroupRerunTests(results []TestResult) []RerunTestGroup {
	buckets := make(map[string][]TestResult)
	var order []string

	for i := range results {
		nodeid := results[i].NodeID
		if _, seen := buckets[nodeid]; !seen {
			order = append(order, nodeid)
		}
		buckets[nodeid] = append(buckets[nodeid], results[i])
	}

	var groups []RerunTestGroup
	for _, nodeid := range order {
		bucket := buckets[nodeid]
		if len(bucket) <= 1 {
			continue
		}

		sorted := make([]TestResult, len(bucket))
		copy(sorted, bucket)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].StartTime.Before(sorted[j].StartTime)
		})

		group := RerunTestGroup{NodeID: nodeid, Tests: sorted}
		if err := group.Validate(); err != nil {
			logging.GetLogger("models").Warn("inconsistent rerun sequence for %s: %v", nodeid, err)
		}
		groups = append(groups, group)
	}

	return groups
}
