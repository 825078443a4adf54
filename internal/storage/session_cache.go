package storage

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/moolen/insight/internal/metrics"
	"github.com/moolen/insight/internal/models"
)

// DefaultCacheCapacity is the session cache size used when no explicit
// capacity is configured.
const DefaultCacheCapacity = 256

// SessionCache is an LRU cache of sessions keyed by session id. It
// fronts lookups by id so repeated GetSessionByID calls against a file
// backend do not re-read and re-parse the whole file.
type SessionCache struct {
	lru     *lru.Cache[string, *models.TestSession]
	metrics *metrics.Metrics

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewSessionCache creates a session cache holding up to capacity
// sessions.
func NewSessionCache(capacity int, m *metrics.Metrics) (*SessionCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}

	sc := &SessionCache{metrics: m}
	lruCache, err := lru.NewWithEvict[string, *models.TestSession](capacity, func(key string, value *models.TestSession) {
		atomic.AddUint64(&sc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}

	sc.lru = lruCache
	return sc, nil
}

// Get retrieves a cached session or returns false.
func (sc *SessionCache) Get(sessionID string) (*models.TestSession, bool) {
	session, ok := sc.lru.Get(sessionID)
	if ok {
		atomic.AddUint64(&sc.hits, 1)
	} else {
		atomic.AddUint64(&sc.misses, 1)
	}
	sc.metrics.ObserveCache(ok)
	return session, ok
}

// Add stores a session under its session id.
func (sc *SessionCache) Add(session *models.TestSession) {
	if session == nil || session.SessionID == "" {
		return
	}
	sc.lru.Add(session.SessionID, session)
}

// Purge removes all cached sessions. Hit and miss counters survive a
// purge.
func (sc *SessionCache) Purge() {
	sc.lru.Purge()
}

// Len returns the number of cached sessions.
func (sc *SessionCache) Len() int {
	return sc.lru.Len()
}

// CacheStats represents session cache statistics
type CacheStats struct {
	Items     int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	HitRate   float64
}

// Stats returns cache statistics
func (sc *SessionCache) Stats() CacheStats {
	hits := atomic.LoadUint64(&sc.hits)
	misses := atomic.LoadUint64(&sc.misses)

	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Items:     sc.lru.Len(),
		Hits:      hits,
		Misses:    misses,
		Evictions: atomic.LoadUint64(&sc.evictions),
		HitRate:   hitRate,
	}
}
