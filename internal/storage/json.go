package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/metrics"
	"github.com/moolen/insight/internal/models"
)

// maxBackups is the number of timestamped backup files kept per storage
// file, older ones are pruned on write.
const maxBackups = 10

// sessionsFile is the on-disk envelope of a JSON storage file.
type sessionsFile struct {
	Sessions []*models.TestSession `json:"sessions"`
}

// JSONStorage persists sessions in a single JSON file. Every write
// replaces the whole file atomically: the new content goes to a
// uuid-suffixed temp file in the same directory and is renamed into
// place. A timestamped backup of the previous content is taken before
// each write and at most maxBackups are kept.
type JSONStorage struct {
	path    string
	mu      sync.RWMutex
	logger  *logging.Logger
	metrics *metrics.Metrics
	cache   *SessionCache
}

// NewJSONStorage creates a JSON storage at the given file path,
// initializing an empty storage file when none exists.
func NewJSONStorage(path string) (*JSONStorage, error) {
	logger := logging.GetLogger("storage")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.Error("Failed to create storage directory: %v", err)
		return nil, NewStorageError("failed to create storage directory for %s: %v", path, err)
	}

	cache, err := NewSessionCache(DefaultCacheCapacity, nil)
	if err != nil {
		return nil, err
	}

	s := &JSONStorage{
		path:   path,
		logger: logger,
		cache:  cache,
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.writeLocked(nil); err != nil {
			return nil, err
		}
	}

	logger.Debug("JSON storage initialized at %s", path)
	return s, nil
}

// WithMetrics attaches Prometheus metrics to the storage and its
// session cache.
func (s *JSONStorage) WithMetrics(m *metrics.Metrics) *JSONStorage {
	s.metrics = m
	s.cache.metrics = m
	return s
}

// Path returns the storage file path.
func (s *JSONStorage) Path() string {
	return s.path
}

// CacheStats returns statistics of the session cache fronting lookups
// by id.
func (s *JSONStorage) CacheStats() CacheStats {
	return s.cache.Stats()
}

// LoadSessions reads and deserializes all sessions from the storage
// file. Timestamps are normalized to UTC on the way in.
func (s *JSONStorage) LoadSessions() ([]*models.TestSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadSessionsLocked()
}

// SaveSession appends one session and rewrites the storage file.
func (s *JSONStorage) SaveSession(session *models.TestSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadSessionsLocked()
	if err != nil {
		return err
	}

	if session.SessionID == "" {
		session.SessionID = uuid.New().String()
	}
	sessions = append(sessions, session)

	if err := s.writeLocked(sessions); err != nil {
		return err
	}

	s.cache.Purge()
	s.logger.Debug("Saved session %s (%d total)", session.SessionID, len(sessions))
	return nil
}

// SaveSessions appends many sessions in a single write.
func (s *JSONStorage) SaveSessions(batch []*models.TestSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadSessionsLocked()
	if err != nil {
		return err
	}

	for _, session := range batch {
		if session.SessionID == "" {
			session.SessionID = uuid.New().String()
		}
		sessions = append(sessions, session)
	}

	if err := s.writeLocked(sessions); err != nil {
		return err
	}

	s.cache.Purge()
	s.logger.Debug("Saved %d sessions (%d total)", len(batch), len(sessions))
	return nil
}

// GetSessionByID returns the session with the given id, consulting the
// session cache before touching the file.
func (s *JSONStorage) GetSessionByID(id string) (*models.TestSession, error) {
	if session, ok := s.cache.Get(id); ok {
		return session, nil
	}

	s.mu.RLock()
	sessions, err := s.loadSessionsLocked()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	for _, session := range sessions {
		if session.SessionID == id {
			s.cache.Add(session)
			return session, nil
		}
	}
	return nil, ErrSessionNotFound
}

// GetLastSession returns the session with the most recent start time.
func (s *JSONStorage) GetLastSession() (*models.TestSession, error) {
	sessions, err := s.LoadSessions()
	if err != nil {
		return nil, err
	}

	latest := lastSession(sessions)
	if latest == nil {
		return nil, ErrSessionNotFound
	}
	return latest, nil
}

// ClearSessions truncates the storage file to an empty session list.
func (s *JSONStorage) ClearSessions() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLocked(nil); err != nil {
		return err
	}

	s.cache.Purge()
	s.logger.Debug("Cleared all sessions at %s", s.path)
	return nil
}

// loadSessionsLocked reads the storage file. Callers hold s.mu. Both
// the {"sessions": [...]} envelope and a bare session array are
// accepted, a file that parses as neither is quarantined with a
// .corrupt suffix and treated as empty.
func (s *JSONStorage) loadSessionsLocked() ([]*models.TestSession, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, NewStorageError("failed to read %s: %v", s.path, err)
	}

	var envelope sessionsFile
	if err := json.Unmarshal(data, &envelope); err != nil {
		var plain []*models.TestSession
		if err2 := json.Unmarshal(data, &plain); err2 != nil {
			s.quarantineCorrupt(data)
			return nil, nil
		}
		envelope.Sessions = plain
	}

	for _, session := range envelope.Sessions {
		session.Normalize()
	}
	return envelope.Sessions, nil
}

// quarantineCorrupt preserves the content of an unparsable storage file
// next to the original so the next write does not destroy it.
func (s *JSONStorage) quarantineCorrupt(data []byte) {
	quarantine := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().UnixNano())
	if err := os.WriteFile(quarantine, data, 0644); err != nil {
		s.logger.Error("Failed to quarantine corrupt storage file %s: %v", s.path, err)
		return
	}
	s.logger.Warn("Storage file %s is not valid JSON, content preserved at %s", s.path, quarantine)
}

// writeLocked replaces the storage file content atomically. Callers
// hold s.mu.
func (s *JSONStorage) writeLocked(sessions []*models.TestSession) error {
	if sessions == nil {
		sessions = []*models.TestSession{}
	}

	backupFile(s.path, s.logger)

	data, err := json.MarshalIndent(sessionsFile{Sessions: sessions}, "", "  ")
	if err != nil {
		return NewStorageError("failed to marshal sessions: %v", err)
	}

	if err := atomicWrite(s.path, data); err != nil {
		return err
	}
	return nil
}

// atomicWrite writes data to a uuid-suffixed temp file in the target
// directory and renames it into place so readers never observe a
// partial file.
func atomicWrite(path string, data []byte) error {
	tmpPath := fmt.Sprintf("%s.tmp.%s", path, uuid.New().String())
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return NewStorageError("failed to write temp file %s: %v", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return NewStorageError("failed to replace %s: %v", path, err)
	}
	return nil
}

// backupFile copies the current file content to a timestamped backup
// and prunes old backups. Backup failures are logged, never fatal.
func backupFile(path string, logger *logging.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read %s for backup: %v", path, err)
		}
		return
	}

	backupPath := fmt.Sprintf("%s.bak.%d", path, time.Now().UnixNano())
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		logger.Warn("Failed to create backup %s: %v", backupPath, err)
		return
	}

	pruneBackups(path, logger)
}

// pruneBackups removes the oldest backups beyond maxBackups. Unix
// nanosecond suffixes are fixed width so a lexical sort orders them
// chronologically.
func pruneBackups(path string, logger *logging.Logger) {
	backups, err := filepath.Glob(path + ".bak.*")
	if err != nil || len(backups) <= maxBackups {
		return
	}

	sort.Strings(backups)
	for _, old := range backups[:len(backups)-maxBackups] {
		if err := os.Remove(old); err != nil {
			logger.Warn("Failed to remove old backup %s: %v", old, err)
		}
	}
}
