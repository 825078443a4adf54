package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
	"github.com/moolen/insight/internal/models"
	"github.com/moolen/insight/internal/query"
	"github.com/moolen/insight/internal/storage"
	"github.com/spf13/cobra"
)

var (
	querySUT        string
	querySUTMatch   string
	queryDays       int
	querySince      string
	queryReruns     bool
	queryTags       []string
	queryWarning    bool
	queryOutcome    string
	queryAllTests   bool
	queryUnreliable bool
	queryTestName   string
	queryMinDur     float64
	queryMaxDur     float64
	queryPattern    string
	queryRegex      string
	queryField      string
	queryInsight    bool
	queryJSON       bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query recorded test sessions",
	Long: `Query recorded test sessions with session-level and test-level filters.
Test-level filters select whole sessions that contain a matching test; the
matched sessions keep their full test list. Use --insight for per-test
aggregates across the matching tests instead.`,
	Run: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&querySUT, "sut", "", "Filter by system under test name")
	queryCmd.Flags().StringVar(&querySUTMatch, "sut-match", "exact", "SUT match type: exact, substring, or regex")
	queryCmd.Flags().IntVar(&queryDays, "days", 0, "Keep sessions that started within the last N days")
	queryCmd.Flags().StringVar(&querySince, "since", "", "Keep sessions that started at or after this time (Unix seconds, now-<duration>, or a human-readable date like '7 days ago')")
	queryCmd.Flags().BoolVar(&queryReruns, "with-reruns", false, "Keep sessions with at least one rerun group")
	queryCmd.Flags().StringArrayVar(&queryTags, "tag", nil, "Session tag filter as key=value (repeatable, all must match)")
	queryCmd.Flags().BoolVar(&queryWarning, "warning", false, "Keep sessions with at least one warning")
	queryCmd.Flags().StringVar(&queryOutcome, "outcome", "", "Keep sessions containing a test with this outcome (passed, failed, error, skipped, xfailed, xpassed)")
	queryCmd.Flags().BoolVar(&queryAllTests, "all-tests", false, "Require every test in the session to have the --outcome")
	queryCmd.Flags().BoolVar(&queryUnreliable, "unreliable", false, "Keep sessions with at least one unreliable test")
	queryCmd.Flags().StringVar(&queryTestName, "test-name", "", "Test-level filter: nodeid substring")
	queryCmd.Flags().Float64Var(&queryMinDur, "min-duration", 0, "Test-level filter: minimum duration in seconds (inclusive)")
	queryCmd.Flags().Float64Var(&queryMaxDur, "max-duration", -1, "Test-level filter: maximum duration in seconds (inclusive, -1 = unbounded)")
	queryCmd.Flags().StringVar(&queryPattern, "pattern", "", "Test-level filter: substring match against --field")
	queryCmd.Flags().StringVar(&queryRegex, "regex", "", "Test-level filter: regex search against --field")
	queryCmd.Flags().StringVar(&queryField, "field", "nodeid", "Field for --pattern/--regex: nodeid, caplog, capstdout, capstderr, longreprtext")
	queryCmd.Flags().BoolVar(&queryInsight, "insight", false, "Print per-test aggregates over the matching tests instead of sessions")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Output JSON instead of text")
}

func runQuery(cmd *cobra.Command, args []string) {
	cfg := setup()
	store, _ := openStorage(cfg)

	q := buildSessionQuery(cmd, store)

	pool, err := sincePool(store, querySince)
	HandleError(err, "Failed to parse --since")

	if hasTestFlags(cmd) || queryInsight {
		tq := buildTestQuery(cmd, q)
		if queryInsight {
			insights, err := tq.Insight(pool...)
			HandleError(err, "Query failed")
			printInsights(insights)
			return
		}
		result, err := tq.Apply(pool...)
		HandleError(err, "Query failed")
		printSessions(result.Sessions)
		return
	}

	result, err := q.Execute(pool...)
	HandleError(err, "Query failed")
	printSessions(result.Sessions)
}

// buildSessionQuery translates the session-level flags into a SessionQuery.
// Construction errors (bad match type, bad regex) are latched inside the
// query and surface on execution.
func buildSessionQuery(cmd *cobra.Command, store storage.Storage) *query.SessionQuery {
	q := query.NewQuery().WithStorage(store)

	if querySUT != "" {
		q = q.ForSUT(querySUT, query.MatchType(querySUTMatch))
	}
	if queryDays > 0 {
		q = q.InLastDays(queryDays)
	}
	if queryReruns {
		q = q.WithReruns()
	}
	if len(queryTags) > 0 {
		tags, err := parseTagFlags(queryTags)
		HandleError(err, "Invalid --tag")
		q = q.WithTags(tags)
	}
	if queryWarning {
		q = q.WithWarning()
	}
	if queryOutcome != "" {
		outcome, err := models.ParseOutcome(queryOutcome)
		HandleError(err, "Invalid --outcome")
		if queryAllTests {
			q = q.WithAllTestsOutcome(outcome)
		} else {
			q = q.WithOutcome(outcome)
		}
	}
	if queryUnreliable {
		q = q.WithUnreliable()
	}
	return q
}

// hasTestFlags reports whether any test-level filter flag was set.
func hasTestFlags(cmd *cobra.Command) bool {
	return queryTestName != "" || queryPattern != "" || queryRegex != "" ||
		cmd.Flags().Changed("min-duration") || cmd.Flags().Changed("max-duration")
}

func buildTestQuery(cmd *cobra.Command, q *query.SessionQuery) *query.TestQuery {
	tq := q.FilterByTest()
	if queryTestName != "" {
		tq = tq.WithName(queryTestName)
	}
	if cmd.Flags().Changed("min-duration") || cmd.Flags().Changed("max-duration") {
		max := queryMaxDur
		if max < 0 {
			max = maxTestDuration
		}
		tq = tq.WithDuration(queryMinDur, max)
	}
	if queryPattern != "" {
		tq = tq.WithPattern(queryPattern, query.Field(queryField))
	}
	if queryRegex != "" {
		tq = tq.WithRegex(queryRegex, query.Field(queryField))
	}
	return tq
}

// maxTestDuration stands in for an unbounded --max-duration. A year in
// seconds is beyond any plausible single test.
const maxTestDuration = 365 * 24 * 3600.0

// sincePool resolves the --since flag. An empty value means no pool: the
// query loads from storage directly. Otherwise the sessions are loaded and
// narrowed to those starting at or after the parsed time, then handed to
// the query as its candidate pool.
func sincePool(store storage.Storage, since string) ([][]*models.TestSession, error) {
	if since == "" {
		return nil, nil
	}
	cutoff, err := parseSince(since)
	if err != nil {
		return nil, err
	}
	sessions, err := store.LoadSessions()
	if err != nil {
		return nil, err
	}
	kept := make([]*models.TestSession, 0, len(sessions))
	for _, s := range sessions {
		if !s.SessionStartTime.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	return [][]*models.TestSession{kept}, nil
}

// parseSince parses a point in time from a Unix timestamp in seconds, a
// relative "now-<duration>" expression, or a human-readable date.
func parseSince(value string) (time.Time, error) {
	if unix, err := strconv.ParseInt(value, 10, 64); err == nil {
		if unix < 0 {
			return time.Time{}, fmt.Errorf("timestamp must be non-negative")
		}
		return time.Unix(unix, 0).UTC(), nil
	}

	if rest, ok := strings.CutPrefix(value, "now-"); ok {
		d, err := time.ParseDuration(rest)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid duration in %q: %v", value, err)
		}
		return time.Now().UTC().Add(-d), nil
	}

	parser := dps.Parser{}
	cfg := &dps.Configuration{
		PreferredDateSource: dps.CurrentPeriod,
	}
	parsed, err := parser.Parse(cfg, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a Unix timestamp, now-<duration>, or recognizable date: %v", value, err)
	}
	if parsed.IsZero() {
		return time.Time{}, fmt.Errorf("%q could not be parsed as a date", value)
	}
	return parsed.Time.UTC(), nil
}

// parseTagFlags splits repeated key=value flags into a tag map.
func parseTagFlags(flags []string) (map[string]string, error) {
	tags := make(map[string]string, len(flags))
	for _, flag := range flags {
		parts := strings.SplitN(flag, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("expected key=value, got %q", flag)
		}
		tags[parts[0]] = parts[1]
	}
	return tags, nil
}

func printSessions(sessions []*models.TestSession) {
	if queryJSON {
		printJSON(sessions)
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No matching sessions.")
		return
	}
	for _, s := range sessions {
		failed := 0
		for _, r := range s.TestResults {
			if r.Outcome.IsFailed() {
				failed++
			}
		}
		fmt.Printf("%s  sut=%s  start=%s  tests=%d  failed=%d  reruns=%d\n",
			s.SessionID, s.SUTName,
			s.SessionStartTime.Format(time.RFC3339),
			len(s.TestResults), failed, len(s.RerunTestGroups))
	}
	fmt.Printf("%d session(s) matched\n", len(sessions))
}

func printInsights(insights map[string]query.TestInsight) {
	if queryJSON {
		printJSON(insights)
		return
	}
	if len(insights) == 0 {
		fmt.Println("No matching tests.")
		return
	}
	nodeids := make([]string, 0, len(insights))
	for nodeid := range insights {
		nodeids = append(nodeids, nodeid)
	}
	sort.Strings(nodeids)
	for _, nodeid := range nodeids {
		in := insights[nodeid]
		fmt.Printf("%s  runs=%d  reliability=%.2f  avg_duration=%.3fs  failures=%d\n",
			nodeid, in.Runs, in.Reliability, in.AvgDuration, in.Failures)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		HandleError(err, "Failed to encode JSON")
	}
}
