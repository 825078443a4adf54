package storage

import (
	"github.com/moolen/insight/internal/models"
)

// Storage is the persistence interface consumed by the query, comparison
// and analysis engines.
type Storage interface {
	// LoadSessions returns all stored sessions
	LoadSessions() ([]*models.TestSession, error)

	// SaveSession persists one session, assigning a session id when the
	// session carries none
	SaveSession(session *models.TestSession) error

	// GetSessionByID returns the session with the given id, or
	// ErrSessionNotFound when absent
	GetSessionByID(id string) (*models.TestSession, error)

	// GetLastSession returns the session with the most recent start
	// time, or ErrSessionNotFound when the store is empty
	GetLastSession() (*models.TestSession, error)

	// ClearSessions removes all stored sessions
	ClearSessions() error
}

// BatchSaver is implemented by backends that can persist many sessions
// in one write. Callers with bulk data should prefer it over repeated
// SaveSession calls when available.
type BatchSaver interface {
	SaveSessions(sessions []*models.TestSession) error
}

// SaveAll persists sessions through the batch path when the backend
// supports it and falls back to per-session saves otherwise.
func SaveAll(s Storage, sessions []*models.TestSession) error {
	if bs, ok := s.(BatchSaver); ok {
		return bs.SaveSessions(sessions)
	}
	for _, session := range sessions {
		if err := s.SaveSession(session); err != nil {
			return err
		}
	}
	return nil
}

// lastSession returns the session with the latest start time. Ties keep
// the earliest stored session.
func lastSession(sessions []*models.TestSession) *models.TestSession {
	if len(sessions) == 0 {
		return nil
	}
	latest := sessions[0]
	for _, s := range sessions[1:] {
		if s.SessionStartTime.After(latest.SessionStartTime) {
			latest = s
		}
	}
	return latest
}
