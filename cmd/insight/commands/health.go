package commands

import (
	"fmt"
	"sort"

	"github.com/moolen/insight/internal/analysis"
	"github.com/spf13/cobra"
)

var (
	healthSUT  string
	healthDays int
	healthJSON bool
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Score session health and rerun reliability",
	Long: `Score each matched session 0-100 from its failure rate, average test
duration and warning rate, and report rerun-based reliability: which tests
needed reruns, how often reruns recovered, and the resulting penalty.`,
	Run: runHealth,
}

func init() {
	healthCmd.Flags().StringVar(&healthSUT, "sut", "", "Restrict to sessions of this SUT")
	healthCmd.Flags().IntVar(&healthDays, "days", 0, "Restrict to sessions from the last N days")
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Output JSON instead of text")
}

// healthReport is the JSON shape of the health command output.
type healthReport struct {
	Health      analysis.SessionHealth     `json:"health"`
	Reliability analysis.ReliabilityReport `json:"reliability"`
}

func runHealth(cmd *cobra.Command, args []string) {
	cfg := setup()
	store, _ := openStorage(cfg)

	sessions := matchedSessions(store, healthSUT, healthDays)
	analyzer := analysis.NewAnalyzer()

	report := healthReport{
		Health:      analyzer.SessionHealth(sessions),
		Reliability: analyzer.Reliability(sessions),
	}

	if healthJSON {
		printJSON(report)
		return
	}

	if len(report.Health.PerSession) == 0 {
		fmt.Println("No matching sessions.")
		return
	}

	ids := make([]string, 0, len(report.Health.PerSession))
	for id := range report.Health.PerSession {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		score := report.Health.PerSession[id]
		fmt.Printf("%s  score=%.1f  failure_rate=%.1f%%  avg_duration=%.3fs  warning_rate=%.1f%%\n",
			id, score.Score, score.FailureRate*100, score.AvgDuration, score.WarningRate*100)
	}
	fmt.Printf("overall health: %.1f\n", report.Health.Overall)

	r := report.Reliability
	fmt.Printf("reliability index: %.1f  rerun recovery: %.1f%%  penalty: %.1f\n",
		r.ReliabilityIndex, r.RerunRecoveryRate, r.HealthScorePenalty)
	for _, unstable := range r.UnstableTests {
		fmt.Printf("  unstable: %s (%d rerun(s) across %d session(s))\n",
			unstable.NodeID, unstable.Reruns, len(unstable.SessionIDs))
	}
}
