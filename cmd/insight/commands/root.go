package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/moolen/insight/internal/config"
	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/storage"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	logLevelFlags []string // Supports multiple --log-level flags
	configPath    string
	profileFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "insight",
	Short: "Insight - Test Session Tracking and Analysis",
	Long: `Insight records the outcomes of test-suite executions and lets you query,
compare, and analyze them across time and across systems under test.`,
	Version: Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags available to all subcommands
	// Supports per-package log levels: --log-level debug --log-level storage.profiles=debug
	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level",
		[]string{"info"},
		"Log level for packages. Use 'default=level' for default, or 'package.name=level' for per-package.\n"+
			"Examples: --log-level debug (all), --log-level query=debug --log-level storage=warn")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to the insight config file (YAML). Missing file keeps built-in defaults.")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "",
		"Storage profile to use. Overrides the config file and the active profile.")

	// Add subcommands
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(generateCmd)
}

// HandleError prints error and exits
func HandleError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}

// setup initializes logging from the parsed log level flags and loads the
// application config. Every subcommand calls this first.
func setup() *config.Config {
	HandleError(setupLog(logLevelFlags), "Failed to initialize logging")
	cfg, err := config.Load(configPath)
	HandleError(err, "Failed to load config")
	return cfg
}

// openStorage resolves the storage backend for this invocation: the
// --profile flag wins, then the config file's profile, then the profile
// marked active in the profiles file.
func openStorage(cfg *config.Config) (storage.Storage, *storage.ProfileManager) {
	manager, err := storage.NewProfileManager(cfg.ProfilesPath)
	HandleError(err, "Failed to load storage profiles")

	name := profileFlag
	if name == "" {
		name = cfg.Profile
	}
	store, err := manager.GetStorage(name)
	HandleError(err, "Failed to open storage")
	return store, manager
}

// setupLog initializes the logging system with parsed log level flags
// Supports per-package log levels and environment variables
// Priority: CLI flags > Environment variables > Initialize default
func setupLog(flags []string) error {
	defaultLevel, packageLevels, err := parseLogLevelFlags(flags)
	if err != nil {
		return err
	}
	return logging.Initialize(defaultLevel, packageLevels)
}

// parseLogLevelFlags parses CLI flags and environment variables
// Priority: CLI flags > Environment variables
//
// CLI format: ["debug"], ["default=info", "storage.profiles=debug"], or ["info"]
// Env vars: LOG_LEVEL_STORAGE_PROFILES=debug (package name uppercased, dots to underscores)
//
// Returns: (defaultLevel, packageLevels map, error)
func parseLogLevelFlags(flags []string) (string, map[string]string, error) {
	result := make(map[string]string)

	// Step 1: Parse environment variables first (lower priority)
	for _, envPair := range os.Environ() {
		if strings.HasPrefix(envPair, "LOG_LEVEL_") {
			parts := strings.SplitN(envPair, "=", 2)
			if len(parts) != 2 {
				continue
			}
			// Convert back: LOG_LEVEL_STORAGE_PROFILES=debug -> storage.profiles
			packageName := convertEnvKeyToPackageName(parts[0])
			result[packageName] = parts[1]
		}
	}

	// Step 2: Parse CLI flags (override env vars)
	for _, flag := range flags {
		if !strings.Contains(flag, "=") {
			// Simple format like "debug" or "info" means default level
			result["default"] = flag
		} else {
			parts := strings.SplitN(flag, "=", 2)
			if len(parts) == 2 {
				result[parts[0]] = parts[1]
			}
		}
	}

	// Step 3: Extract default level (special key "default")
	defaultLevel := "info"
	if level, exists := result["default"]; exists {
		defaultLevel = level
		delete(result, "default")
	}

	// Step 4: Validate default level
	if err := validateLogLevel(defaultLevel); err != nil {
		return "", nil, err
	}

	// Step 5: Validate all package levels
	for pkg, level := range result {
		if err := validateLogLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %v", pkg, err)
		}
	}

	return defaultLevel, result, nil
}

// convertEnvKeyToPackageName converts LOG_LEVEL_STORAGE_PROFILES -> storage.profiles
func convertEnvKeyToPackageName(envKey string) string {
	name := strings.TrimPrefix(envKey, "LOG_LEVEL_")
	return strings.ToLower(strings.ReplaceAll(name, "_", "."))
}

// validateLogLevel checks if a level string is valid
func validateLogLevel(level string) error {
	if !logging.ValidLevel(level) {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error, fatal)", level)
	}
	return nil
}
