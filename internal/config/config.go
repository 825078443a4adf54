package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/moolen/insight/internal/logging"
)

// Config holds all configuration for the application.
//
// Example YAML structure:
//
//	profiles_path: /var/lib/insight/profiles.yaml
//	profile: staging
//	log_level: debug
//	comparison:
//	  slower_percent: 25
//	  faster_percent: 15
//	generator:
//	  suts: [api-service, web-frontend]
//	  days: 14
type Config struct {
	// ProfilesPath is the path to the storage profiles file.
	// Empty selects the default location under the user's home directory.
	ProfilesPath string `yaml:"profiles_path"`

	// Profile is the storage profile to use. Empty selects the profile
	// marked active in the profiles file.
	Profile string `yaml:"profile"`

	// LogLevel is the logging level (debug, info, warn, error, fatal)
	LogLevel string `yaml:"log_level"`

	// Comparison holds default thresholds for performance comparisons
	Comparison ComparisonConfig `yaml:"comparison"`

	// Generator holds defaults for synthetic session generation
	Generator GeneratorConfig `yaml:"generator"`
}

// ComparisonConfig holds the default performance thresholds applied when a
// comparison does not set its own.
type ComparisonConfig struct {
	// SlowerPercent marks a target test as slower when its duration exceeds
	// the base duration by this percentage
	SlowerPercent float64 `yaml:"slower_percent"`

	// FasterPercent marks a target test as faster when its duration undercuts
	// the base duration by this percentage
	FasterPercent float64 `yaml:"faster_percent"`
}

// GeneratorConfig holds defaults for the synthetic session generator.
type GeneratorConfig struct {
	// SUTs is the list of system-under-test names to generate sessions for
	SUTs []string `yaml:"suts"`

	// Days is the number of days to spread sessions across
	Days int `yaml:"days"`

	// SessionsPerDay is the number of sessions per SUT per day
	SessionsPerDay int `yaml:"sessions_per_day"`

	// TestsPerSession is the number of tests in each generated session
	TestsPerSession int `yaml:"tests_per_session"`

	// FailureRate is the fraction of tests that fail (0 to 1)
	FailureRate float64 `yaml:"failure_rate"`

	// WarningRate is the fraction of tests that carry warnings (0 to 1)
	WarningRate float64 `yaml:"warning_rate"`

	// RerunRate is the fraction of failing tests that get rerun chains (0 to 1)
	RerunRate float64 `yaml:"rerun_rate"`

	// Seed seeds the random source. Zero derives a seed from the clock.
	Seed int64 `yaml:"seed"`
}

// DefaultConfig returns a Config populated with the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Comparison: ComparisonConfig{
			SlowerPercent: 20.0,
			FasterPercent: 20.0,
		},
		Generator: GeneratorConfig{
			SUTs:            []string{"api-service", "web-frontend", "worker"},
			Days:            7,
			SessionsPerDay:  3,
			TestsPerSession: 25,
			FailureRate:     0.12,
			WarningRate:     0.08,
			RerunRate:       0.3,
		},
	}
}

// Load reads the application configuration from the YAML file at path using
// Koanf. A missing file is not an error: the defaults are returned unchanged.
// Values present in the file override the defaults and the merged result is
// validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to stat config file %q: %w", path, err)
	}

	// Create new Koanf instance with dot delimiter
	k := koanf.New(".")

	// Load file using file provider with YAML parser
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %q: %w", path, err)
	}

	// Unmarshal on top of the defaults so absent keys keep their values
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse config from %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed for %q: %w", path, err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if !logging.ValidLevel(c.LogLevel) {
		return NewConfigError(fmt.Sprintf("log_level %q is not a valid log level", c.LogLevel))
	}

	if c.Comparison.SlowerPercent <= 0 {
		return NewConfigError("comparison.slower_percent must be greater than 0")
	}

	if c.Comparison.FasterPercent <= 0 || c.Comparison.FasterPercent >= 100 {
		return NewConfigError("comparison.faster_percent must be between 0 and 100 exclusive")
	}

	if len(c.Generator.SUTs) == 0 {
		return NewConfigError("generator.suts must not be empty")
	}

	if c.Generator.Days < 1 {
		return NewConfigError("generator.days must be at least 1")
	}

	if c.Generator.SessionsPerDay < 1 {
		return NewConfigError("generator.sessions_per_day must be at least 1")
	}

	if c.Generator.TestsPerSession < 1 {
		return NewConfigError("generator.tests_per_session must be at least 1")
	}

	if c.Generator.FailureRate < 0 || c.Generator.FailureRate > 1 {
		return NewConfigError("generator.failure_rate must be between 0 and 1")
	}

	if c.Generator.WarningRate < 0 || c.Generator.WarningRate > 1 {
		return NewConfigError("generator.warning_rate must be between 0 and 1")
	}

	if c.Generator.RerunRate < 0 || c.Generator.RerunRate > 1 {
		return NewConfigError("generator.rerun_rate must be between 0 and 1")
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}

// IsConfigError checks if an error is a ConfigError, unwrapping as needed
// since Load annotates validation failures with the file path.
func IsConfigError(err error) bool {
	var cerr *ConfigError
	return errors.As(err, &cerr)
}
