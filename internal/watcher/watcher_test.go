package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changes struct {
	mu    sync.Mutex
	calls [][]string
}

func (c *changes) record(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, paths)
}

func (c *changes) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func startWatcher(t *testing.T, root string, c *changes) *PluginWatcher {
	t.Helper()
	w, err := New(Config{
		Root:       root,
		Debounce:   50 * time.Millisecond,
		Extensions: []string{".lua", ".skill.json"},
		OnChange:   c.record,
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestNew_RequiresCallback(t *testing.T) {
	_, err := New(Config{Root: t.TempDir()}, zerolog.Nop())
	assert.Error(t, err)
}

func TestPluginWatcher_CoalescesBurst(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "echo"), 0755))

	c := &changes{}
	startWatcher(t, root, c)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "echo", "index.lua"), []byte("-- v"), 0644))
	}

	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, c.count())
}

func TestPluginWatcher_NewDirectory(t *testing.T) {
	root := t.TempDir()

	c := &changes{}
	startWatcher(t, root, c)

	dir := filepath.Join(root, "counter")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.Eventually(t, func() bool { return c.count() >= 1 }, 2*time.Second, 10*time.Millisecond)

	before := c.count()
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.lua"), []byte("-- v"), 0644))
	require.Eventually(t, func() bool { return c.count() > before }, 2*time.Second, 10*time.Millisecond)
}

func TestPluginWatcher_IgnoresIrrelevant(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "echo"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "__cache__"), 0755))

	c := &changes{}
	startWatcher(t, root, c)

	require.NoError(t, os.WriteFile(filepath.Join(root, "echo", "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "echo", ".index.lua.swp"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "__cache__", "index.lua"), []byte("x"), 0644))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, c.count())
}

func TestPluginWatcher_StopCancelsPending(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "echo"), 0755))

	c := &changes{}
	w, err := New(Config{Root: root, Debounce: 200 * time.Millisecond, OnChange: c.record}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start())

	require.NoError(t, os.WriteFile(filepath.Join(root, "echo", "index.lua"), []byte("x"), 0644))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, c.count())
}

func TestIsReserved(t *testing.T) {
	assert.True(t, isReserved("__pycache__"))
	assert.True(t, isReserved(".git"))
	assert.False(t, isReserved("echo"))
	assert.False(t, isReserved("_private"))
}
