package commands

import (
	"fmt"

	"github.com/moolen/insight/internal/generator"
	"github.com/moolen/insight/internal/storage"
	"github.com/spf13/cobra"
)

var (
	generateSUTs        []string
	generateDays        int
	generatePerDay      int
	generateTests       int
	generateFailureRate float64
	generateWarningRate float64
	generateRerunRate   float64
	generateSeed        int64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate synthetic practice sessions",
	Long: `Generate synthetic test sessions for demos and experiments and save
them through the active storage profile. A fixed --seed reproduces the
exact same data.`,
	Run: runGenerate,
}

func init() {
	generateCmd.Flags().StringSliceVar(&generateSUTs, "suts", nil, "SUT names to generate sessions for (default from config)")
	generateCmd.Flags().IntVar(&generateDays, "days", 0, "Number of days to spread sessions across (default from config)")
	generateCmd.Flags().IntVar(&generatePerDay, "sessions-per-day", 0, "Sessions per SUT per day (default from config)")
	generateCmd.Flags().IntVar(&generateTests, "tests", 0, "Tests per session (default from config)")
	generateCmd.Flags().Float64Var(&generateFailureRate, "failure-rate", -1, "Fraction of tests that fail, 0 to 1 (default from config)")
	generateCmd.Flags().Float64Var(&generateWarningRate, "warning-rate", -1, "Fraction of tests with warnings, 0 to 1 (default from config)")
	generateCmd.Flags().Float64Var(&generateRerunRate, "rerun-rate", -1, "Fraction of failing tests with rerun chains, 0 to 1 (default from config)")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 0, "Random seed (0 = derive from the clock)")
}

func runGenerate(cmd *cobra.Command, args []string) {
	cfg := setup()
	store, _ := openStorage(cfg)

	genCfg := generator.Config{
		SUTs:            cfg.Generator.SUTs,
		Days:            cfg.Generator.Days,
		SessionsPerDay:  cfg.Generator.SessionsPerDay,
		TestsPerSession: cfg.Generator.TestsPerSession,
		FailureRate:     cfg.Generator.FailureRate,
		WarningRate:     cfg.Generator.WarningRate,
		RerunRate:       cfg.Generator.RerunRate,
		Seed:            cfg.Generator.Seed,
	}
	if len(generateSUTs) > 0 {
		genCfg.SUTs = generateSUTs
	}
	if generateDays > 0 {
		genCfg.Days = generateDays
	}
	if generatePerDay > 0 {
		genCfg.SessionsPerDay = generatePerDay
	}
	if generateTests > 0 {
		genCfg.TestsPerSession = generateTests
	}
	if generateFailureRate >= 0 {
		genCfg.FailureRate = generateFailureRate
	}
	if generateWarningRate >= 0 {
		genCfg.WarningRate = generateWarningRate
	}
	if generateRerunRate >= 0 {
		genCfg.RerunRate = generateRerunRate
	}
	if generateSeed != 0 {
		genCfg.Seed = generateSeed
	}

	gen := generator.New(genCfg)
	sessions := gen.Generate()

	HandleError(storage.SaveAll(store, sessions), "Failed to save sessions")
	fmt.Printf("generated %d session(s) for %d SUT(s) (seed %d)\n",
		len(sessions), len(genCfg.SUTs), gen.Seed())
}
