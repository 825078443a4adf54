package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/insight/internal/models"
)

func newTestJSONStorage(t *testing.T) *JSONStorage {
	t.Helper()

	store, err := NewJSONStorage(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)
	return store
}

func TestJSONStorageInitializesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.json")

	store, err := NewJSONStorage(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &envelope))
	require.Contains(t, envelope, "sessions")

	sessions, err := store.LoadSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestJSONStorageSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestJSONStorage(t)

	session := storedSession("run-1", storageStart)
	session.SessionTags = map[string]string{"environment": "staging"}
	require.NoError(t, store.SaveSession(session))

	sessions, err := store.LoadSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	got := sessions[0]
	assert.Equal(t, "run-1", got.SessionID)
	assert.Equal(t, "api-service", got.SUTName)
	assert.Equal(t, "staging", got.Tag("environment"))
	require.Len(t, got.TestResults, 1)
	assert.Equal(t, models.OutcomePassed, got.TestResults[0].Outcome)
	assert.Equal(t, 1.5, got.TestResults[0].Duration)
}

func TestJSONStorageNormalizesTimestampsToUTC(t *testing.T) {
	store := newTestJSONStorage(t)

	zone := time.FixedZone("CEST", 2*60*60)
	session := storedSession("run-1", storageStart.In(zone))
	require.NoError(t, store.SaveSession(session))

	sessions, err := store.LoadSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	got := sessions[0]
	assert.Equal(t, time.UTC, got.SessionStartTime.Location())
	assert.True(t, got.SessionStartTime.Equal(storageStart))
	assert.Equal(t, time.UTC, got.TestResults[0].StartTime.Location())
}

func TestJSONStorageAssignsSessionID(t *testing.T) {
	store := newTestJSONStorage(t)

	session := storedSession("", storageStart)
	require.NoError(t, store.SaveSession(session))
	assert.NotEmpty(t, session.SessionID)
}

func TestJSONStorageAcceptsBareArrayFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	legacy := []*models.TestSession{storedSession("run-legacy", storageStart)}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	store, err := NewJSONStorage(path)
	require.NoError(t, err)

	sessions, err := store.LoadSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "run-legacy", sessions[0].SessionID)
}

func TestJSONStorageQuarantinesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	store, err := NewJSONStorage(path)
	require.NoError(t, err)

	sessions, err := store.LoadSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)

	quarantined, err := filepath.Glob(path + ".corrupt.*")
	require.NoError(t, err)
	require.Len(t, quarantined, 1)

	preserved, err := os.ReadFile(quarantined[0])
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(preserved))
}

func TestJSONStorageGetSessionByIDUsesCache(t *testing.T) {
	store := newTestJSONStorage(t)

	require.NoError(t, store.SaveSession(storedSession("run-1", storageStart)))
	require.NoError(t, store.SaveSession(storedSession("run-2", storageStart.Add(time.Hour))))

	got, err := store.GetSessionByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.SessionID)

	again, err := store.GetSessionByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, got, again)

	stats := store.CacheStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestJSONStorageWriteInvalidatesCache(t *testing.T) {
	store := newTestJSONStorage(t)

	require.NoError(t, store.SaveSession(storedSession("run-1", storageStart)))

	_, err := store.GetSessionByID("run-1")
	require.NoError(t, err)
	require.Equal(t, 1, store.cache.Len())

	require.NoError(t, store.SaveSession(storedSession("run-2", storageStart)))
	assert.Equal(t, 0, store.cache.Len())
}

func TestJSONStorageGetSessionByIDNotFound(t *testing.T) {
	store := newTestJSONStorage(t)

	_, err := store.GetSessionByID("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJSONStorageGetLastSession(t *testing.T) {
	store := newTestJSONStorage(t)

	require.NoError(t, store.SaveSession(storedSession("old", storageStart)))
	require.NoError(t, store.SaveSession(storedSession("newest", storageStart.Add(72*time.Hour))))
	require.NoError(t, store.SaveSession(storedSession("middle", storageStart.Add(24*time.Hour))))

	last, err := store.GetLastSession()
	require.NoError(t, err)
	assert.Equal(t, "newest", last.SessionID)

	require.NoError(t, store.ClearSessions())
	_, err = store.GetLastSession()
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestJSONStorageSaveSessionsBatch(t *testing.T) {
	store := newTestJSONStorage(t)

	require.NoError(t, store.SaveSession(storedSession("run-0", storageStart)))

	batch := []*models.TestSession{
		storedSession("run-1", storageStart.Add(time.Hour)),
		storedSession("run-2", storageStart.Add(2*time.Hour)),
	}
	require.NoError(t, store.SaveSessions(batch))

	sessions, err := store.LoadSessions()
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
}

func TestJSONStorageRotatesBackups(t *testing.T) {
	store := newTestJSONStorage(t)

	for i := 0; i < 13; i++ {
		require.NoError(t, store.SaveSession(storedSession(fmt.Sprintf("run-%d", i), storageStart)))
	}

	backups, err := filepath.Glob(store.Path() + ".bak.*")
	require.NoError(t, err)
	assert.Equal(t, maxBackups, len(backups))
}

func TestJSONStorageLeavesNoTempFiles(t *testing.T) {
	store := newTestJSONStorage(t)

	require.NoError(t, store.SaveSession(storedSession("run-1", storageStart)))
	require.NoError(t, store.ClearSessions())

	leftovers, err := filepath.Glob(store.Path() + ".tmp.*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestJSONStoragePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")

	first, err := NewJSONStorage(path)
	require.NoError(t, err)
	require.NoError(t, first.SaveSession(storedSession("run-1", storageStart)))

	second, err := NewJSONStorage(path)
	require.NoError(t, err)

	sessions, err := second.LoadSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "run-1", sessions[0].SessionID)
}
