package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingWriter(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "subdir", "bridge.log")

	rw, err := NewRotatingWriter(logFile, 10, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	_, err = os.Stat(logFile)
	assert.NoError(t, err)
}

func TestRotatingWriter_Rotates(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "bridge.log")

	rw, err := NewRotatingWriter(logFile, 1, 7, false)
	require.NoError(t, err)

	chunk := []byte(strings.Repeat("a", 600*1024))
	for i := 0; i < 2; i++ {
		n, err := rw.Write(chunk)
		require.NoError(t, err)
		assert.Equal(t, len(chunk), n)
	}
	require.NoError(t, rw.Close())

	rotated, err := filepath.Glob(logFile + ".*")
	require.NoError(t, err)
	assert.Len(t, rotated, 1)

	info, err := os.Stat(logFile)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk)), info.Size())
}

func TestRotatingWriter_Compresses(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "bridge.log")

	rw, err := NewRotatingWriter(logFile, 1, 7, true)
	require.NoError(t, err)

	chunk := []byte(strings.Repeat("b", 700*1024))
	_, err = rw.Write(chunk)
	require.NoError(t, err)
	_, err = rw.Write(chunk)
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	gz, err := filepath.Glob(logFile + ".*.gz")
	require.NoError(t, err)
	assert.Len(t, gz, 1)
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "bridge.log"), 1, 0, false)
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	_, err = rw.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestCompressFile(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "old.log")
	require.NoError(t, os.WriteFile(testFile, []byte("test content"), 0644))

	require.NoError(t, compressFile(testFile))

	_, err := os.Stat(testFile + ".gz")
	assert.NoError(t, err)
	_, err = os.Stat(testFile)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanup(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "bridge.log")

	oldFile := logFile + ".20200101-120000.000"
	require.NoError(t, os.WriteFile(oldFile, []byte("old log"), 0644))
	oldTime := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))

	recentFile := logFile + ".20990101-120000.000"
	require.NoError(t, os.WriteFile(recentFile, []byte("recent log"), 0644))

	rw, err := NewRotatingWriter(logFile, 10, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	_, err = os.Stat(oldFile)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(recentFile)
	assert.NoError(t, err)
}
