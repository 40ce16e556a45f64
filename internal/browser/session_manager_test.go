package browser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Fallbacks(t *testing.T) {
	var cfg Config
	assert.Equal(t, 1280, cfg.GetViewportWidth())
	assert.Equal(t, 900, cfg.GetViewportHeight())
	assert.Equal(t, 30*time.Second, cfg.GetNavigationTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.GetDrainInterval())

	cfg.DrainInterval = 5 * time.Millisecond
	assert.Equal(t, 5*time.Millisecond, cfg.GetDrainInterval())
}

func TestParseLaunchFlag(t *testing.T) {
	tests := []struct {
		raw, name, value string
		hasValue         bool
	}{
		{"--mute-audio", "mute-audio", "", false},
		{"--window-size=1280,900", "window-size", "1280,900", true},
		{"user-data-dir=/tmp/x", "user-data-dir", "/tmp/x", true},
	}
	for _, tt := range tests {
		name, value, hasValue := parseLaunchFlag(tt.raw)
		assert.Equal(t, tt.name, name, tt.raw)
		assert.Equal(t, tt.value, value, tt.raw)
		assert.Equal(t, tt.hasValue, hasValue, tt.raw)
	}
}

func TestSessionManager_PersistAndReload(t *testing.T) {
	store := filepath.Join(t.TempDir(), "browser", "sessions.json")
	cfg := DefaultConfig()
	cfg.SessionStore = store

	m := NewSessionManager(cfg)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.sessions["s1"] = &sessionRecord{meta: Session{
		ID:        "s1",
		TargetID:  "T1",
		URL:       "https://www.youtube.com/shorts/a",
		Status:    "active",
		CreatedAt: created,
	}}
	m.UpdateMetadata("s1", func(s Session) Session {
		s.Title = "Shorts"
		return s
	})

	_, err := os.Stat(store)
	require.NoError(t, err)

	reloaded := NewSessionManager(cfg)
	reloaded.mu.Lock()
	require.NoError(t, reloaded.loadSessionsLocked())
	reloaded.mu.Unlock()

	got, ok := reloaded.GetSession("s1")
	require.True(t, ok)
	assert.Equal(t, "detached", got.Status)
	assert.Equal(t, "Shorts", got.Title)
	assert.Equal(t, "T1", got.TargetID)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Len(t, reloaded.List(), 1)

	_, live := reloaded.Page("s1")
	assert.False(t, live, "persisted sessions have no page until reattached")
}

func TestSessionManager_NoStore(t *testing.T) {
	m := NewSessionManager(DefaultConfig())
	m.mu.Lock()
	require.NoError(t, m.loadSessionsLocked())
	m.mu.Unlock()
	require.NoError(t, m.persistSessions())
	assert.Empty(t, m.List())
}

func TestSessionManager_CorruptStore(t *testing.T) {
	store := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(store, []byte("{not json"), 0o644))

	cfg := DefaultConfig()
	cfg.SessionStore = store
	m := NewSessionManager(cfg)
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Error(t, m.loadSessionsLocked())
}

func TestSessionManager_UnknownSession(t *testing.T) {
	m := NewSessionManager(DefaultConfig())
	ctx := context.Background()

	assert.Error(t, m.Navigate(ctx, "nope", "https://www.youtube.com/shorts/a"))
	_, err := m.Host(ctx, "nope")
	assert.Error(t, err)
	assert.Empty(t, m.ControlURL())
	assert.NoError(t, m.Shutdown(ctx, false))
}
