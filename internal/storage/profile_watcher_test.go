package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// createTempProfilesFile writes a profiles file with the given content
// and returns its path.
func createTempProfilesFile(t *testing.T, content string) string {
	t.Helper()

	tmpFile := filepath.Join(t.TempDir(), "profiles.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0600); err != nil {
		t.Fatalf("failed to create temp profiles file: %v", err)
	}
	return tmpFile
}

func validProfiles() string {
	return `format_version: "1.0"
active_profile: default
profiles:
  default:
    name: default
    storage_type: json
    file_path: /tmp/default.json
`
}

func invalidProfiles() string {
	return `format_version: "0.1"
active_profile: default
profiles: {}
`
}

func TestProfileWatcherStartLoadsInitialProfiles(t *testing.T) {
	tmpFile := createTempProfilesFile(t, validProfiles())

	var callbackCalled atomic.Bool
	var received []*StorageProfile

	callback := func(profiles []*StorageProfile) error {
		received = profiles
		callbackCalled.Store(true)
		return nil
	}

	watcher, err := NewProfileWatcher(ProfileWatcherConfig{
		FilePath:       tmpFile,
		DebounceMillis: 100,
	}, callback)
	if err != nil {
		t.Fatalf("NewProfileWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	if !callbackCalled.Load() {
		t.Fatal("callback was not called on Start")
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(received))
	}
	if received[0].Name != "default" || received[0].StorageType != "json" {
		t.Errorf("unexpected initial profile: %+v", received[0])
	}
}

func TestProfileWatcherDetectsFileChange(t *testing.T) {
	tmpFile := createTempProfilesFile(t, validProfiles())

	var callCount atomic.Int32
	var mu sync.Mutex
	var lastProfiles []*StorageProfile

	callback := func(profiles []*StorageProfile) error {
		mu.Lock()
		lastProfiles = profiles
		mu.Unlock()
		callCount.Add(1)
		return nil
	}

	watcher, err := NewProfileWatcher(ProfileWatcherConfig{
		FilePath:       tmpFile,
		DebounceMillis: 100,
	}, callback)
	if err != nil {
		t.Fatalf("NewProfileWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	if callCount.Load() != 1 {
		t.Fatalf("expected 1 initial callback, got %d", callCount.Load())
	}

	// Give the watch time to settle before mutating the file
	time.Sleep(50 * time.Millisecond)

	updated := `format_version: "1.0"
active_profile: staging
profiles:
  default:
    name: default
    storage_type: json
    file_path: /tmp/default.json
  staging:
    name: staging
    storage_type: memory
`
	if err := os.WriteFile(tmpFile, []byte(updated), 0600); err != nil {
		t.Fatalf("failed to modify profiles file: %v", err)
	}

	// Wait for debounce + processing time
	time.Sleep(400 * time.Millisecond)

	if callCount.Load() != 2 {
		t.Errorf("expected 2 callbacks after file change, got %d", callCount.Load())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lastProfiles) != 2 {
		t.Fatalf("expected 2 profiles after reload, got %d", len(lastProfiles))
	}
	// loadProfileSet sorts by name
	if lastProfiles[1].Name != "staging" || lastProfiles[1].StorageType != "memory" {
		t.Errorf("unexpected reloaded profile: %+v", lastProfiles[1])
	}
}

func TestProfileWatcherDebouncesBursts(t *testing.T) {
	tmpFile := createTempProfilesFile(t, validProfiles())

	var callCount atomic.Int32
	callback := func(profiles []*StorageProfile) error {
		callCount.Add(1)
		return nil
	}

	watcher, err := NewProfileWatcher(ProfileWatcherConfig{
		FilePath:       tmpFile,
		DebounceMillis: 200,
	}, callback)
	if err != nil {
		t.Fatalf("NewProfileWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	if callCount.Load() != 1 {
		t.Fatalf("expected 1 initial callback, got %d", callCount.Load())
	}

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(tmpFile, []byte(validProfiles()), 0600); err != nil {
			t.Fatalf("failed to write profiles file: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	time.Sleep(500 * time.Millisecond)

	if callCount.Load() != 2 {
		t.Errorf("expected 2 callbacks after debouncing (initial + 1 coalesced), got %d", callCount.Load())
	}
}

func TestProfileWatcherSkipsInvalidFile(t *testing.T) {
	tmpFile := createTempProfilesFile(t, validProfiles())

	var callCount atomic.Int32
	callback := func(profiles []*StorageProfile) error {
		callCount.Add(1)
		return nil
	}

	watcher, err := NewProfileWatcher(ProfileWatcherConfig{
		FilePath:       tmpFile,
		DebounceMillis: 100,
	}, callback)
	if err != nil {
		t.Fatalf("NewProfileWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	time.Sleep(50 * time.Millisecond)

	// A file rejected by the format version gate must not reach the
	// callback, and the watcher must keep running.
	if err := os.WriteFile(tmpFile, []byte(invalidProfiles()), 0600); err != nil {
		t.Fatalf("failed to write invalid profiles file: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	if callCount.Load() != 1 {
		t.Errorf("expected invalid file to be skipped, got %d callbacks", callCount.Load())
	}

	if err := os.WriteFile(tmpFile, []byte(validProfiles()), 0600); err != nil {
		t.Fatalf("failed to restore profiles file: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	if callCount.Load() != 2 {
		t.Errorf("expected recovery callback after valid rewrite, got %d", callCount.Load())
	}
}

func TestProfileWatcherDetectsManagerSaves(t *testing.T) {
	manager, err := NewProfileManager(filepath.Join(t.TempDir(), "profiles.yaml"))
	if err != nil {
		t.Fatalf("NewProfileManager failed: %v", err)
	}

	reloaded := make(chan []*StorageProfile, 4)
	callback := func(profiles []*StorageProfile) error {
		reloaded <- profiles
		return nil
	}

	watcher, err := NewProfileWatcher(ProfileWatcherConfig{
		FilePath:       manager.Path(),
		DebounceMillis: 100,
	}, callback)
	if err != nil {
		t.Fatalf("NewProfileWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Initial load
	select {
	case profiles := <-reloaded:
		if len(profiles) != 1 {
			t.Fatalf("expected 1 initial profile, got %d", len(profiles))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial callback")
	}

	// The manager saves atomically (temp file + rename), the watcher
	// must survive the inode swap and pick up the new profile.
	if _, err := manager.CreateProfile("staging", "memory", ""); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	select {
	case profiles := <-reloaded:
		if len(profiles) != 2 {
			t.Fatalf("expected 2 profiles after create, got %d", len(profiles))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload after manager save")
	}
}

func TestNewProfileWatcherValidation(t *testing.T) {
	callback := func(profiles []*StorageProfile) error { return nil }

	if _, err := NewProfileWatcher(ProfileWatcherConfig{FilePath: ""}, callback); err == nil {
		t.Error("expected error for empty FilePath")
	}

	if _, err := NewProfileWatcher(ProfileWatcherConfig{FilePath: "/tmp/profiles.yaml"}, nil); err == nil {
		t.Error("expected error for nil callback")
	}

	watcher, err := NewProfileWatcher(ProfileWatcherConfig{FilePath: "/tmp/profiles.yaml"}, callback)
	if err != nil {
		t.Fatalf("expected success for valid config: %v", err)
	}
	if watcher.config.DebounceMillis != 500 {
		t.Errorf("expected default debounce 500ms, got %d", watcher.config.DebounceMillis)
	}
}

func TestProfileWatcherStopGraceful(t *testing.T) {
	tmpFile := createTempProfilesFile(t, validProfiles())

	watcher, err := NewProfileWatcher(ProfileWatcherConfig{
		FilePath:       tmpFile,
		DebounceMillis: 100,
	}, func(profiles []*StorageProfile) error { return nil })
	if err != nil {
		t.Fatalf("NewProfileWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	stopStart := time.Now()
	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if time.Since(stopStart) > 4*time.Second {
		t.Error("Stop took too long")
	}
}
