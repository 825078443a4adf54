package commands

import (
	"fmt"
	"sort"

	"github.com/moolen/insight/internal/comparison"
	"github.com/moolen/insight/internal/models"
	"github.com/moolen/insight/internal/query"
	"github.com/moolen/insight/internal/storage"
	"github.com/spf13/cobra"
)

var (
	compareBaseSUT       string
	compareTargetSUT     string
	compareBaseProfile   string
	compareTargetProfile string
	compareDays          int
	compareSlower        float64
	compareFaster        float64
	compareJSON          bool
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare a base and a target test session",
	Long: `Compare the latest matching base session against the latest matching
target session and categorize every test: new failures, new passes, outcome
changes, slower/faster tests, and tests added or removed. Categories overlap
deliberately; one test can show up in several.`,
	Run: runCompare,
}

func init() {
	compareCmd.Flags().StringVar(&compareBaseSUT, "base-sut", "", "SUT name for the base side (expects session ids prefixed base-)")
	compareCmd.Flags().StringVar(&compareTargetSUT, "target-sut", "", "SUT name for the target side (expects session ids prefixed target-)")
	compareCmd.Flags().StringVar(&compareBaseProfile, "base-profile", "", "Storage profile for the base side")
	compareCmd.Flags().StringVar(&compareTargetProfile, "target-profile", "", "Storage profile for the target side")
	compareCmd.Flags().IntVar(&compareDays, "days", 0, "Restrict both sides to sessions from the last N days")
	compareCmd.Flags().Float64Var(&compareSlower, "slower-percent", 0, "Mark a test slower when its target duration exceeds base by this percent (default from config)")
	compareCmd.Flags().Float64Var(&compareFaster, "faster-percent", 0, "Mark a test faster when its target duration undercuts base by this percent (default from config)")
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "Output JSON instead of text")
}

func runCompare(cmd *cobra.Command, args []string) {
	cfg := setup()
	store, manager := openStorage(cfg)

	c := comparison.NewComparison().
		WithProfileResolver(func(name string) (query.SessionLoader, error) {
			return manager.GetStorage(name)
		})

	slower := cfg.Comparison.SlowerPercent
	if cmd.Flags().Changed("slower-percent") {
		slower = compareSlower
	}
	faster := cfg.Comparison.FasterPercent
	if cmd.Flags().Changed("faster-percent") {
		faster = compareFaster
	}
	c = c.WithPerformanceThresholds(slower, faster)

	if compareDays > 0 {
		c = c.InLastDays(compareDays)
	}

	usesProfiles := compareBaseProfile != "" || compareTargetProfile != ""
	switch {
	case usesProfiles:
		if compareBaseProfile != "" {
			c = c.WithBaseProfile(compareBaseProfile)
		}
		if compareTargetProfile != "" {
			c = c.WithTargetProfile(compareTargetProfile)
		}
	case compareBaseSUT != "" && compareTargetSUT != "":
		c = c.BetweenSUTs(compareBaseSUT, compareTargetSUT)
	default:
		HandleError(fmt.Errorf("provide --base-sut/--target-sut or --base-profile/--target-profile"),
			"Invalid comparison")
	}

	var result *comparison.ComparisonResult
	var err error
	if usesProfiles {
		// Each side loads from its own profile's storage.
		result, err = c.Execute()
	} else {
		result, err = c.Execute(loadPool(store))
	}
	HandleError(err, "Comparison failed")
	printComparison(result)
}

func loadPool(store storage.Storage) []*models.TestSession {
	sessions, err := store.LoadSessions()
	HandleError(err, "Failed to load sessions")
	return sessions
}

func printComparison(result *comparison.ComparisonResult) {
	if compareJSON {
		printJSON(result)
		return
	}

	fmt.Printf("base:   %s (%s)\n", result.BaseSession.SessionID, result.BaseSession.SUTName)
	fmt.Printf("target: %s (%s)\n", result.TargetSession.SessionID, result.TargetSession.SUTName)

	if !result.HasChanges() {
		fmt.Println("No changes detected.")
		return
	}

	printCategory("new failures", result.NewFailures)
	printCategory("new passes", result.NewPasses)
	printCategory("flaky tests", result.FlakyTests)
	printCategory("slower tests", result.SlowerTests)
	printCategory("faster tests", result.FasterTests)
	printCategory("missing tests", result.MissingTests)
	printCategory("new tests", result.NewTests)

	if len(result.OutcomeChanges) > 0 {
		fmt.Println("outcome changes:")
		nodeids := make([]string, 0, len(result.OutcomeChanges))
		for nodeid := range result.OutcomeChanges {
			nodeids = append(nodeids, nodeid)
		}
		sort.Strings(nodeids)
		for _, nodeid := range nodeids {
			change := result.OutcomeChanges[nodeid]
			fmt.Printf("  %s: %s -> %s\n", nodeid, change.Base, change.Target)
		}
	}
}

func printCategory(name string, nodeids []string) {
	if len(nodeids) == 0 {
		return
	}
	fmt.Printf("%s (%d):\n", name, len(nodeids))
	for _, nodeid := range nodeids {
		fmt.Printf("  %s\n", nodeid)
	}
}
