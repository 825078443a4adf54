package storage

import (
	"sync"

	"github.com/google/uuid"

	"github.com/moolen/insight/internal/models"
)

// InMemoryStorage keeps sessions in a mutex-guarded slice. It backs
// profiles of type "memory" and is the storage of choice for tests.
type InMemoryStorage struct {
	mu       sync.RWMutex
	sessions []*models.TestSession
}

// NewInMemoryStorage creates an in-memory store, optionally seeded with
// sessions.
func NewInMemoryStorage(sessions ...*models.TestSession) *InMemoryStorage {
	s := &InMemoryStorage{}
	s.sessions = append(s.sessions, sessions...)
	return s
}

// LoadSessions returns all stored sessions. The slice is a copy so
// callers cannot perturb the store, the sessions themselves are shared
// and read-only by contract.
func (s *InMemoryStorage) LoadSessions() ([]*models.TestSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.TestSession, len(s.sessions))
	copy(out, s.sessions)
	return out, nil
}

// SaveSession appends a session, assigning a fresh uuid when the
// session id is empty.
func (s *InMemoryStorage) SaveSession(session *models.TestSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.SessionID == "" {
		session.SessionID = uuid.New().String()
	}
	s.sessions = append(s.sessions, session)
	return nil
}

// SaveSessions appends many sessions in one locked pass.
func (s *InMemoryStorage) SaveSessions(sessions []*models.TestSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range sessions {
		if session.SessionID == "" {
			session.SessionID = uuid.New().String()
		}
		s.sessions = append(s.sessions, session)
	}
	return nil
}

// GetSessionByID returns the stored session with the given id.
func (s *InMemoryStorage) GetSessionByID(id string) (*models.TestSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.sessions {
		if session.SessionID == id {
			return session, nil
		}
	}
	return nil, ErrSessionNotFound
}

// GetLastSession returns the session with the most recent start time.
func (s *InMemoryStorage) GetLastSession() (*models.TestSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := lastSession(s.sessions)
	if latest == nil {
		return nil, ErrSessionNotFound
	}
	return latest, nil
}

// ClearSessions removes all stored sessions.
func (s *InMemoryStorage) ClearSessions() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	return nil
}
