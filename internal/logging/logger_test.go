package logging

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

// captureStdout redirects the stdlib log output into buf for the duration
// of the returned restore func.
func captureStdout(buf *bytes.Buffer) func() {
	old := log.Writer()
	log.SetOutput(buf)
	return func() {
		log.SetOutput(old)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	restore := captureStdout(&buf)
	defer restore()

	logger := &Logger{level: WARN, name: "test"}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Errorf("DEBUG should be filtered at WARN level, got: %s", out)
	}
	if strings.Contains(out, "info message") {
		t.Errorf("INFO should be filtered at WARN level, got: %s", out)
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("WARN should be logged at WARN level, got: %s", out)
	}
}

func TestLoggerName(t *testing.T) {
	var buf bytes.Buffer
	restore := captureStdout(&buf)
	defer restore()

	logger := &Logger{level: INFO, name: "comparison"}
	logger.Info("started")

	if !strings.Contains(buf.String(), "comparison: started") {
		t.Errorf("expected logger name in output, got: %s", buf.String())
	}
}

func TestLoggerFormatArgs(t *testing.T) {
	var buf bytes.Buffer
	restore := captureStdout(&buf)
	defer restore()

	logger := &Logger{level: INFO, name: "test"}
	logger.Info("loaded %d sessions for %s", 42, "api-service")

	if !strings.Contains(buf.String(), "loaded 42 sessions for api-service") {
		t.Errorf("format args not applied, got: %s", buf.String())
	}
}

func TestInfoWithFields(t *testing.T) {
	var buf bytes.Buffer
	restore := captureStdout(&buf)
	defer restore()

	logger := &Logger{level: INFO, name: "test"}
	logger.InfoWithFields("query executed",
		Field("matched", 3),
		Field("sut", "api"),
	)

	out := buf.String()
	if !strings.Contains(out, "query executed") {
		t.Fatalf("message missing, got: %s", out)
	}
	if !strings.Contains(out, "matched=3") {
		t.Errorf("field matched=3 missing, got: %s", out)
	}
	if !strings.Contains(out, "sut=api") {
		t.Errorf("field sut=api missing, got: %s", out)
	}
}

func TestWithFieldReturnsNewLogger(t *testing.T) {
	base := &Logger{level: INFO, name: "test", fields: make(map[string]interface{})}
	child := base.WithField("profile", "default")

	if len(base.fields) != 0 {
		t.Errorf("WithField must not mutate the parent logger, parent has %d fields", len(base.fields))
	}
	if child.fields["profile"] != "default" {
		t.Errorf("child logger missing persistent field, got %v", child.fields)
	}
}

func TestWithFieldPersistsAcrossCalls(t *testing.T) {
	var buf bytes.Buffer
	restore := captureStdout(&buf)
	defer restore()

	logger := (&Logger{level: INFO, name: "test"}).WithField("run", "abc123")
	logger.Info("first")
	logger.Info("second")

	out := buf.String()
	if strings.Count(out, "run=abc123") != 2 {
		t.Errorf("persistent field should appear on every line, got: %s", out)
	}
}

func TestMethodFieldsOverridePersistent(t *testing.T) {
	var buf bytes.Buffer
	restore := captureStdout(&buf)
	defer restore()

	logger := (&Logger{level: INFO, name: "test"}).WithField("side", "base")
	logger.InfoWithFields("selected", Field("side", "target"))

	out := buf.String()
	if !strings.Contains(out, "side=target") {
		t.Errorf("method field should win on collision, got: %s", out)
	}
	if strings.Contains(out, "side=base") {
		t.Errorf("overridden persistent field should not appear, got: %s", out)
	}
}

func TestPackageLogLevels(t *testing.T) {
	defer func() {
		_ = SetPackageLogLevels(map[string]string{})
	}()

	err := SetPackageLogLevels(map[string]string{
		"storage":   "DEBUG",
		"storage.*": "DEBUG",
		"query":     "ERROR",
	})
	if err != nil {
		t.Fatalf("SetPackageLogLevels failed: %v", err)
	}

	if got := GetPackageLogLevel("storage"); got != DEBUG {
		t.Errorf("exact match: expected DEBUG, got %v", got)
	}
	if got := GetPackageLogLevel("storage.profile"); got != DEBUG {
		t.Errorf("wildcard match: expected DEBUG, got %v", got)
	}
	if got := GetPackageLogLevel("query"); got != ERROR {
		t.Errorf("exact match: expected ERROR, got %v", got)
	}
	if got := GetPackageLogLevel("analysis"); got != LogLevel(-1) {
		t.Errorf("unconfigured package: expected -1, got %v", got)
	}
}

func TestSetPackageLogLevelsInvalid(t *testing.T) {
	err := SetPackageLogLevels(map[string]string{"storage": "LOUD"})
	if err == nil {
		t.Fatal("expected error for invalid level name")
	}
}

func TestErrorGoesToStderr(t *testing.T) {
	var stdout bytes.Buffer
	restore := captureStdout(&stdout)
	defer restore()

	// Swap stderr for a pipe to capture ERROR output.
	oldStderr := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stderr = w

	logger := &Logger{level: INFO, name: "test"}
	logger.Error("boom")

	w.Close()
	os.Stderr = oldStderr

	var stderr bytes.Buffer
	if _, err := stderr.ReadFrom(r); err != nil {
		t.Fatalf("read: %v", err)
	}

	if !strings.Contains(stderr.String(), "boom") {
		t.Errorf("ERROR should go to stderr, got stderr: %q", stderr.String())
	}
	if strings.Contains(stdout.String(), "boom") {
		t.Errorf("ERROR should not go to stdout, got stdout: %q", stdout.String())
	}
}

func TestFatalUsesExitFunc(t *testing.T) {
	oldStderr := os.Stderr
	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	os.Stderr = devnull
	defer func() {
		os.Stderr = oldStderr
		devnull.Close()
	}()

	exitCode := -1
	oldExit := exitFunc
	exitFunc = func(code int) { exitCode = code }
	defer func() { exitFunc = oldExit }()

	logger := &Logger{level: INFO, name: "test"}
	logger.Fatal("unrecoverable")

	if exitCode != 1 {
		t.Errorf("expected exit code 1, got %d", exitCode)
	}
}

func TestGetLoggerInitializesDefaults(t *testing.T) {
	logger := GetLogger("models")
	if logger == nil {
		t.Fatal("GetLogger returned nil")
	}
	if logger.name != "models" {
		t.Errorf("expected name models, got %s", logger.name)
	}
}

func TestTimestampOverride(t *testing.T) {
	t.Setenv("LOG_TIMESTAMP", "2026-01-01T00:00:00Z")
	if got := GetTimestamp(); got != "2026-01-01T00:00:00Z" {
		t.Errorf("expected env override, got %s", got)
	}
}
