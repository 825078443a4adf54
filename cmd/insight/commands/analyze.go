package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/moolen/insight/internal/analysis"
	"github.com/moolen/insight/internal/models"
	"github.com/moolen/insight/internal/query"
	"github.com/moolen/insight/internal/storage"
	"github.com/spf13/cobra"
)

var (
	analyzeSUT    string
	analyzeDays   int
	analyzeMetric string
	analyzeJSON   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze trends and failure patterns",
	Long: `Analyze the filtered session set: metric trend with volatility plus
three independent groupings of the failures (by test, by minute, by
duration bucket).`,
	Run: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeSUT, "sut", "", "Restrict to sessions of this SUT")
	analyzeCmd.Flags().IntVar(&analyzeDays, "days", 0, "Restrict to sessions from the last N days")
	analyzeCmd.Flags().StringVar(&analyzeMetric, "metric", "duration", "Trend metric: duration or outcome")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output JSON instead of text")
}

// analyzeReport is the JSON shape of the analyze command output.
type analyzeReport struct {
	Sessions int                      `json:"sessions"`
	Metrics  analysis.TestMetrics     `json:"metrics"`
	Trend    *analysis.TrendAnalysis  `json:"trend"`
	Patterns analysis.FailurePatterns `json:"failure_patterns"`
}

func runAnalyze(cmd *cobra.Command, args []string) {
	cfg := setup()
	store, _ := openStorage(cfg)

	sessions := matchedSessions(store, analyzeSUT, analyzeDays)
	results := flattenResults(sessions)

	analyzer := analysis.NewAnalyzer()
	trend, err := analyzer.DetectTrends(results, analysis.Metric(analyzeMetric))
	HandleError(err, "Trend analysis failed")

	report := analyzeReport{
		Sessions: len(sessions),
		Metrics:  analyzer.TestMetrics(results),
		Trend:    trend,
		Patterns: analyzer.FailurePatterns(results),
	}

	if analyzeJSON {
		printJSON(report)
		return
	}

	fmt.Printf("sessions analyzed: %d (%d test results)\n", report.Sessions, report.Metrics.TotalCount)
	fmt.Printf("failure rate: %.1f%%  avg duration: %.3fs (min %.3fs, max %.3fs)\n",
		report.Metrics.FailureRate*100,
		report.Metrics.AvgDuration, report.Metrics.MinDuration, report.Metrics.MaxDuration)
	fmt.Printf("%s trend: %s (volatility %.3f, %d points)\n",
		analyzeMetric, trend.Trend, trend.Volatility, len(trend.DataPoints))

	printFailurePatterns(report.Patterns)
}

func printFailurePatterns(p analysis.FailurePatterns) {
	if len(p.ByNodeID) == 0 {
		fmt.Println("no failures recorded")
		return
	}

	fmt.Println("failures by test:")
	nodeids := make([]string, 0, len(p.ByNodeID))
	for nodeid := range p.ByNodeID {
		nodeids = append(nodeids, nodeid)
	}
	sort.Slice(nodeids, func(i, j int) bool {
		if p.ByNodeID[nodeids[i]].FailureCount != p.ByNodeID[nodeids[j]].FailureCount {
			return p.ByNodeID[nodeids[i]].FailureCount > p.ByNodeID[nodeids[j]].FailureCount
		}
		return nodeids[i] < nodeids[j]
	})
	for _, nodeid := range nodeids {
		nf := p.ByNodeID[nodeid]
		fmt.Printf("  %s: %d failure(s), avg %.3fs, first %s, last %s\n",
			nodeid, nf.FailureCount, nf.AvgDuration,
			nf.FirstFailure.Format(time.RFC3339), nf.LastFailure.Format(time.RFC3339))
	}

	fmt.Println("failures by minute:")
	for _, window := range sortedKeys(p.ByTime) {
		wf := p.ByTime[window]
		fmt.Printf("  %s: %d failure(s) across %d test(s)\n", window, wf.FailureCount, wf.UniqueFailures)
	}

	fmt.Println("failures by duration bucket:")
	for _, bucket := range sortedKeys(p.ByDuration) {
		wf := p.ByDuration[bucket]
		fmt.Printf("  %s: %d failure(s) across %d test(s)\n", bucket, wf.FailureCount, wf.UniqueFailures)
	}
}

func sortedKeys(m map[string]analysis.WindowFailures) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// matchedSessions runs a session query built from the shared --sut/--days
// analysis flags against the given storage.
func matchedSessions(store storage.Storage, sut string, days int) []*models.TestSession {
	q := query.NewQuery().WithStorage(store)
	if sut != "" {
		q = q.ForSUT(sut)
	}
	if days > 0 {
		q = q.InLastDays(days)
	}
	result, err := q.Execute()
	HandleError(err, "Query failed")
	return result.Sessions
}

func flattenResults(sessions []*models.TestSession) []models.TestResult {
	var results []models.TestResult
	for _, s := range sessions {
		results = append(results, s.TestResults...)
	}
	return results
}
