package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultMaxSizeMB = 100

// RotatingWriter is a goroutine-safe file writer that rotates by size
type RotatingWriter struct {
	filename string
	maxSize  int64 // bytes
	maxAge   int   // days
	compress bool

	mu          sync.Mutex
	currentFile *os.File
	currentSize int64
	wg          sync.WaitGroup
}

// NewRotatingWriter opens filename for appending. maxSizeMB <= 0 uses 100 MB.
func NewRotatingWriter(filename string, maxSizeMB int, maxAge int, compress bool) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	w := &RotatingWriter{
		filename:    filename,
		maxSize:     int64(maxSizeMB) * 1024 * 1024,
		maxAge:      maxAge,
		compress:    compress,
		currentFile: file,
		currentSize: info.Size(),
	}
	w.cleanup()
	return w, nil
}

// Write writes p, rotating first when p would push the file past its limit
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return 0, os.ErrClosed
	}
	if w.currentSize > 0 && w.currentSize+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.currentFile.Write(p)
	w.currentSize += int64(n)
	return n, err
}

// Close closes the current file and waits for pending compression
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.currentFile != nil {
		err = w.currentFile.Close()
		w.currentFile = nil
	}
	w.mu.Unlock()

	w.wg.Wait()
	return err
}

func (w *RotatingWriter) rotate() error {
	if err := w.currentFile.Close(); err != nil {
		return err
	}

	rotated := fmt.Sprintf("%s.%s", w.filename, time.Now().Format("20060102-150405.000"))
	if err := os.Rename(w.filename, rotated); err != nil {
		return err
	}

	if w.compress {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			_ = compressFile(rotated)
		}()
	}

	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	w.currentFile = file
	w.currentSize = 0

	w.cleanup()
	return nil
}

func compressFile(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return err
	}
	defer dst.Close()

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		return err
	}
	if err := gzw.Close(); err != nil {
		return err
	}
	return os.Remove(filename)
}

// cleanup removes rotated files older than maxAge days
func (w *RotatingWriter) cleanup() {
	if w.maxAge <= 0 {
		return
	}

	matches, err := filepath.Glob(w.filename + ".*")
	if err != nil {
		return
	}
	sort.Strings(matches)

	cutoff := time.Now().AddDate(0, 0, -w.maxAge)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		os.Remove(path)
		if !strings.HasSuffix(path, ".gz") {
			os.Remove(path + ".gz")
		}
	}
}
