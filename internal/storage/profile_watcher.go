package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/moolen/insight/internal/logging"
)

// ProfileReloadCallback is called with the freshly loaded profile set
// when the profiles file is successfully reloaded. A returned error is
// logged but the watcher continues watching.
type ProfileReloadCallback func(profiles []*StorageProfile) error

// ProfileWatcherConfig holds configuration for the ProfileWatcher.
type ProfileWatcherConfig struct {
	// FilePath is the profiles file to watch
	FilePath string

	// DebounceMillis coalesces file change events within this period
	// into a single reload. Default: 500ms.
	DebounceMillis int
}

// ProfileWatcher watches the profiles file for changes and triggers
// reload callbacks with debouncing so editor save sequences and atomic
// rewrites do not cause reload storms.
//
// An invalid profiles file during reload is logged and skipped, the
// watcher keeps running with the previous profile set.
type ProfileWatcher struct {
	config   ProfileWatcherConfig
	callback ProfileReloadCallback
	logger   *logging.Logger
	cancel   context.CancelFunc
	stopped  chan struct{}
	ready    chan struct{}
	mu       sync.Mutex

	// debounceTimer coalesces bursts of file change events
	debounceTimer *time.Timer
}

// NewProfileWatcher creates a watcher for the given profiles file.
func NewProfileWatcher(config ProfileWatcherConfig, callback ProfileReloadCallback) (*ProfileWatcher, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("FilePath cannot be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}

	if config.DebounceMillis == 0 {
		config.DebounceMillis = 500
	}

	return &ProfileWatcher{
		config:   config,
		callback: callback,
		logger:   logging.GetLogger("storage.watcher"),
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}, nil
}

// Start loads the profiles file, invokes the callback with the initial
// profile set and begins watching for changes. It returns once the
// file watch is established, the watch itself runs in a goroutine until
// Stop is called or the context is cancelled.
func (w *ProfileWatcher) Start(ctx context.Context) error {
	initial, err := loadProfileSet(w.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to load initial profiles: %w", err)
	}

	if err := w.callback(initial); err != nil {
		return fmt.Errorf("initial callback failed: %w", err)
	}

	w.logger.Info("Loaded %d profiles from %s", len(initial), w.config.FilePath)

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.watchLoop(watchCtx)

	// Wait for the fsnotify watch to be registered before returning so
	// changes right after Start are not missed.
	select {
	case <-w.ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for file watcher to initialize")
	}

	return nil
}

// signalReady closes the ready channel exactly once
func (w *ProfileWatcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

// watchLoop is the main file watching loop
func (w *ProfileWatcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.config.FilePath); err != nil {
		w.logger.Error("Failed to watch %s: %v", w.config.FilePath, err)
		return
	}

	w.logger.Debug("Watching %s for changes (debounce: %dms)", w.config.FilePath, w.config.DebounceMillis)
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Profile watcher stopping")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			// Rename and Remove matter because the manager replaces the
			// file atomically, the watch follows the inode and must be
			// re-added once the new file is in place.
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.config.FilePath); err != nil {
					w.logger.Warn("Failed to re-add watch after %s: %v", event.Op, err)
				}
			}
			w.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error: %v", err)
		}
	}
}

// scheduleReload resets the debounce timer so a burst of change events
// results in one reload.
func (w *ProfileWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(
		time.Duration(w.config.DebounceMillis)*time.Millisecond,
		w.reload,
	)
}

// reload re-reads the profiles file and invokes the callback. Invalid
// files keep the previous profile set.
func (w *ProfileWatcher) reload() {
	profiles, err := loadProfileSet(w.config.FilePath)
	if err != nil {
		w.logger.Warn("Failed to reload profiles (keeping previous set): %v", err)
		return
	}

	if err := w.callback(profiles); err != nil {
		w.logger.Warn("Profile reload callback error (continuing to watch): %v", err)
		return
	}

	w.logger.Info("Profiles reloaded from %s (%d profiles)", w.config.FilePath, len(profiles))
}

// Stop gracefully stops the file watcher, waiting up to 5 seconds for
// the watch loop to exit.
func (w *ProfileWatcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}

	select {
	case <-w.stopped:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for watcher to stop")
	}
}

// loadProfileSet reads the profiles file and returns its profiles
// sorted by name.
func loadProfileSet(path string) ([]*StorageProfile, error) {
	pf, err := readProfilesFile(path)
	if err != nil {
		return nil, err
	}

	profiles := make([]*StorageProfile, 0, len(pf.Profiles))
	for name, profile := range pf.Profiles {
		if profile.Name == "" {
			profile.Name = name
		}
		profiles = append(profiles, profile)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})
	return profiles, nil
}
