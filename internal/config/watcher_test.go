package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReportsSettledChanges(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "adapters.yaml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(watched, []byte("adapters: []\n"), 0644))

	var mu sync.Mutex
	var changed []string
	w, err := NewWatcher(func(path string) {
		mu.Lock()
		changed = append(changed, path)
		mu.Unlock()
	}, watched, "")
	require.NoError(t, err)
	w.debounceDur = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(watched, []byte("adapters: []\n# edit\n"), 0644))
	}
	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) > 0
	}, 3*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	abs, err := filepath.Abs(watched)
	require.NoError(t, err)
	for _, p := range changed {
		assert.Equal(t, abs, p)
	}

	stats := w.Stats()
	assert.Equal(t, len(changed), stats.Reloads)
	assert.Equal(t, abs, stats.LastEventPath)
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w, err := NewWatcher(nil, filepath.Join(t.TempDir(), "reelbar.yaml"))
	require.NoError(t, err)
	w.Stop()
}

func TestWatcher_AddWhileRunning(t *testing.T) {
	first := filepath.Join(t.TempDir(), "reelbar.yaml")
	second := filepath.Join(t.TempDir(), "adapters.yaml")
	require.NoError(t, os.WriteFile(second, []byte("adapters: []\n"), 0644))

	changed := make(chan string, 4)
	w, err := NewWatcher(func(path string) { changed <- path }, first)
	require.NoError(t, err)
	w.debounceDur = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, w.Add(second))
	require.NoError(t, w.Add(second), "adding twice is a no-op")
	require.NoError(t, os.WriteFile(second, []byte("adapters: []\n# edit\n"), 0644))

	abs, err := filepath.Abs(second)
	require.NoError(t, err)
	select {
	case got := <-changed:
		assert.Equal(t, abs, got)
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported for the added file")
	}
}
