package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, "", cfg.ProfilesPath)
	assert.Equal(t, "", cfg.Profile)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 20.0, cfg.Comparison.SlowerPercent)
	assert.Equal(t, 20.0, cfg.Comparison.FasterPercent)
	assert.NotEmpty(t, cfg.Generator.SUTs)
	assert.Greater(t, cfg.Generator.Days, 0)
	assert.Greater(t, cfg.Generator.TestsPerSession, 0)
}

func TestLoad_EmptyPath(t *testing.T) {
	// No config file configured at all
	cfg, err := Load("")
	assert.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	// A missing file is not an error, defaults win
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_Valid(t *testing.T) {
	// Create temporary test file with a full config
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "valid.yaml")

	content := `profiles_path: /var/lib/insight/profiles.yaml
profile: staging
log_level: debug
comparison:
  slower_percent: 35
  faster_percent: 10
generator:
  suts: [checkout, payments]
  days: 14
  sessions_per_day: 5
  tests_per_session: 40
  failure_rate: 0.2
  warning_rate: 0.1
  rerun_rate: 0.5
  seed: 42
`
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	// Load and verify
	cfg, err := Load(tmpFile)
	assert.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "/var/lib/insight/profiles.yaml", cfg.ProfilesPath)
	assert.Equal(t, "staging", cfg.Profile)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 35.0, cfg.Comparison.SlowerPercent)
	assert.Equal(t, 10.0, cfg.Comparison.FasterPercent)
	assert.Equal(t, []string{"checkout", "payments"}, cfg.Generator.SUTs)
	assert.Equal(t, 14, cfg.Generator.Days)
	assert.Equal(t, 5, cfg.Generator.SessionsPerDay)
	assert.Equal(t, 40, cfg.Generator.TestsPerSession)
	assert.Equal(t, 0.2, cfg.Generator.FailureRate)
	assert.Equal(t, 0.1, cfg.Generator.WarningRate)
	assert.Equal(t, 0.5, cfg.Generator.RerunRate)
	assert.Equal(t, int64(42), cfg.Generator.Seed)
}

func TestLoad_PartialOverride(t *testing.T) {
	// Keys absent from the file keep their default values
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "partial.yaml")

	content := `log_level: warn
comparison:
  slower_percent: 50
`
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(tmpFile)
	assert.NoError(t, err)
	require.NotNil(t, cfg)

	defaults := DefaultConfig()
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 50.0, cfg.Comparison.SlowerPercent)
	assert.Equal(t, defaults.Comparison.FasterPercent, cfg.Comparison.FasterPercent)
	assert.Equal(t, defaults.Generator, cfg.Generator)
	assert.Equal(t, defaults.ProfilesPath, cfg.ProfilesPath)
}

func TestLoad_InvalidYAML(t *testing.T) {
	// Create temporary test file with invalid YAML syntax
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "invalid-yaml.yaml")

	content := `log_level: "debug
# Missing closing quote above causes syntax error
`
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	// Load and expect parsing error
	cfg, err := Load(tmpFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "bad-level.yaml")

	content := `log_level: verbose
`
	err := os.WriteFile(tmpFile, []byte(content), 0644)
	require.NoError(t, err)

	// Load and expect validation error
	cfg, err := Load(tmpFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoad_InvalidThresholds(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "zero slower percent",
			content: `comparison:
  slower_percent: 0
`,
			want: "slower_percent",
		},
		{
			name: "faster percent at bound",
			content: `comparison:
  faster_percent: 100
`,
			want: "faster_percent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpFile := filepath.Join(t.TempDir(), "thresholds.yaml")
			err := os.WriteFile(tmpFile, []byte(tt.content), 0644)
			require.NoError(t, err)

			cfg, err := Load(tmpFile)
			assert.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, IsConfigError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_GeneratorBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "no suts",
			mutate: func(c *Config) { c.Generator.SUTs = nil },
			want:   "generator.suts",
		},
		{
			name:   "zero days",
			mutate: func(c *Config) { c.Generator.Days = 0 },
			want:   "generator.days",
		},
		{
			name:   "zero sessions per day",
			mutate: func(c *Config) { c.Generator.SessionsPerDay = 0 },
			want:   "generator.sessions_per_day",
		},
		{
			name:   "zero tests per session",
			mutate: func(c *Config) { c.Generator.TestsPerSession = 0 },
			want:   "generator.tests_per_session",
		},
		{
			name:   "failure rate above one",
			mutate: func(c *Config) { c.Generator.FailureRate = 1.5 },
			want:   "generator.failure_rate",
		},
		{
			name:   "negative warning rate",
			mutate: func(c *Config) { c.Generator.WarningRate = -0.1 },
			want:   "generator.warning_rate",
		},
		{
			name:   "rerun rate above one",
			mutate: func(c *Config) { c.Generator.RerunRate = 1.01 },
			want:   "generator.rerun_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			assert.Error(t, err)
			assert.True(t, IsConfigError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestIsConfigError(t *testing.T) {
	assert.True(t, IsConfigError(NewConfigError("bad value")))
	assert.True(t, IsConfigError(fmt.Errorf("wrapped: %w", NewConfigError("bad value"))))
	assert.False(t, IsConfigError(fmt.Errorf("plain error")))
	assert.False(t, IsConfigError(nil))
}
