// Package watcher observes source directories for file changes and drives
// supervisor restarts in development mode. It holds no process-management
// responsibility; it is strictly an event source.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the default window during which follow-up events
// are dropped, so a batch save triggers exactly one restart.
const DefaultDebounce = 2 * time.Second

// Event is one accepted filesystem change.
type Event struct {
	Path      string
	Op        string
	Timestamp time.Time
}

// Config describes what to watch.
type Config struct {
	// Dirs are watched recursively, including directories created later.
	Dirs []string

	// Extensions is the allow-list (".go", ".js", ...). Empty allows all.
	Extensions []string

	// Debounce is the drop window after an accepted event.
	Debounce time.Duration
}

// Watcher filters and debounces filesystem events, invoking the change
// handler once per accepted event.
type Watcher struct {
	cfg      Config
	onChange func(Event)
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	mu           sync.Mutex
	lastAccepted time.Time
}

// New creates a Watcher. onChange is called from the watch goroutine for
// every accepted event.
func New(cfg Config, onChange func(Event), logger *slog.Logger) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		cfg:      cfg,
		onChange: onChange,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins watching the configured directories.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw

	for _, dir := range w.cfg.Dirs {
		if err := w.addRecursive(dir); err != nil {
			fsw.Close()
			w.watcher = nil
			return err
		}
	}

	w.logger.Info("Change watcher started",
		"dirs", w.cfg.Dirs, "extensions", w.cfg.Extensions, "debounce", w.cfg.Debounce)
	go w.watch()
	return nil
}

// Stop stops watching and waits for the watch goroutine to exit.
func (w *Watcher) Stop() error {
	w.cancel()
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
		<-w.done
	}
	return err
}

// addRecursive registers dir and every subdirectory with fsnotify.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

// watch is the main loop filtering and debouncing events.
func (w *Watcher) watch() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Change watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Change watcher error", "error", err)
		}
	}
}

// handleEvent filters one raw fsnotify event and applies the debounce.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// Newly created directories join the watch set.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	if !w.matchesExtension(event.Name) {
		return
	}

	w.mu.Lock()
	now := time.Now()
	if now.Sub(w.lastAccepted) < w.cfg.Debounce {
		w.mu.Unlock()
		w.logger.Debug("Change dropped by debounce", "path", event.Name)
		return
	}
	w.lastAccepted = now
	w.mu.Unlock()

	w.logger.Info("File change detected", "path", event.Name, "op", event.Op.String())
	w.onChange(Event{Path: event.Name, Op: event.Op.String(), Timestamp: now})
}

// matchesExtension applies the allow-list; an empty list allows everything.
func (w *Watcher) matchesExtension(path string) bool {
	if len(w.cfg.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowed := range w.cfg.Extensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}
