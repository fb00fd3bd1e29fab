package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ChangeCallback is called once per burst of changes under the root
type ChangeCallback func(paths []string)

// Config holds configuration for the watcher
type Config struct {
	Root       string
	Debounce   time.Duration
	Extensions []string // only files with these suffixes trigger a change; empty means all
	OnChange   ChangeCallback
}

// PluginWatcher monitors a plugin root and its immediate subdirectories.
// Changes are coalesced: a callback fires once the tree has been quiet for
// the debounce period.
type PluginWatcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	root     string
	debounce time.Duration
	exts     []string
	onChange ChangeCallback

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher. Call Start to begin watching.
func New(cfg Config, logger zerolog.Logger) (*PluginWatcher, error) {
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("watcher: OnChange callback is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &PluginWatcher{
		watcher:  w,
		logger:   logger.With().Str("component", "watcher").Logger(),
		root:     cfg.Root,
		debounce: cfg.Debounce,
		exts:     cfg.Extensions,
		onChange: cfg.OnChange,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start watches the root and its current subdirectories
func (w *PluginWatcher) Start() error {
	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", w.root, err)
	}
	for _, e := range entries {
		if e.IsDir() && !isReserved(e.Name()) {
			w.addDir(filepath.Join(w.root, e.Name()))
		}
	}

	w.wg.Add(1)
	go w.eventLoop()

	w.logger.Info().Str("path", w.root).Dur("debounce", w.debounce).Msg("Plugin watcher started")
	return nil
}

// Stop stops the watcher and cancels any pending callback
func (w *PluginWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		err = w.watcher.Close()
		w.wg.Wait()
		w.logger.Info().Msg("Plugin watcher stopped")
	})
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *PluginWatcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *PluginWatcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." {
		return
	}
	parts := strings.Split(rel, string(filepath.Separator))
	for _, p := range parts {
		if isReserved(p) {
			return
		}
	}

	// New plugin directory directly under the root
	if len(parts) == 1 && event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addDir(event.Name)
			w.schedule(event.Name)
			return
		}
	}

	if !w.relevant(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	w.schedule(event.Name)
}

func (w *PluginWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *PluginWatcher) fire() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	w.timer = nil
	w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	if len(paths) == 0 {
		return
	}
	w.logger.Debug().Strs("paths", paths).Msg("Plugin files changed")
	w.onChange(paths)
}

func (w *PluginWatcher) relevant(path string) bool {
	if len(w.exts) == 0 {
		return true
	}
	for _, ext := range w.exts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func (w *PluginWatcher) addDir(path string) {
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch path")
	}
}

// isReserved mirrors the discovery rule: names starting with "__" or "." are skipped
func isReserved(name string) bool {
	return strings.HasPrefix(name, "__") || strings.HasPrefix(name, ".")
}
