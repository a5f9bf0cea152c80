package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Suffixes given to processed drop files.
const (
	DoneSuffix   = ".done"
	FailedSuffix = ".failed"
)

// Importer stores the events of an iCalendar stream for a user.
type Importer interface {
	ImportICS(ctx context.Context, userID string, r io.Reader) (int, error)
}

// DropWatcher imports calendar files dropped into <dir>/<userID>/.
type DropWatcher struct {
	importer Importer
	dir      string
	debounce time.Duration
	logger   *slog.Logger

	watcher   *fsnotify.Watcher
	pending   map[string]time.Time // path -> last event
	pendingMu sync.Mutex

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewDropWatcher creates a watcher over dir. It must be started with Start.
func NewDropWatcher(importer Importer, dir string, debounce time.Duration, logger *slog.Logger) (*DropWatcher, error) {
	if importer == nil {
		return nil, fmt.Errorf("importer cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("import directory cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve import directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &DropWatcher{
		importer: importer,
		dir:      abs,
		debounce: debounce,
		logger:   logger.With("component", "import"),
		watcher:  watcher,
		pending:  make(map[string]time.Time),
		done:     make(chan struct{}),
	}, nil
}

// Start creates the import directory if needed, watches it and every
// user directory beneath it, and queues files already waiting there.
func (w *DropWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create import directory: %w", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch import directory %s: %w", w.dir, err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read import directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.watchUser(filepath.Join(w.dir, e.Name()))
		}
	}

	w.running = true
	w.wg.Add(2)
	go w.processEvents()
	go w.processQueue(ctx)
	return nil
}

// Stop stops watching and waits for in-flight imports.
func (w *DropWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

// IsRunning returns true if the watcher is currently running.
func (w *DropWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// watchUser adds a user directory and queues the calendar files in it.
func (w *DropWatcher) watchUser(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("failed to watch user directory", "dir", dir, "error", err)
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("failed to read user directory", "dir", dir, "error", err)
		return
	}
	for _, e := range entries {
		if !e.IsDir() && isCalendarFile(e.Name()) {
			w.queue(filepath.Join(dir, e.Name()))
		}
	}
}

func (w *DropWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			if filepath.Dir(event.Name) == w.dir {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.watchUser(event.Name)
				}
				continue
			}
			if _, ok := w.userFor(event.Name); ok && isCalendarFile(event.Name) {
				w.queue(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *DropWatcher) queue(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.pending[path] = time.Now()
}

// processQueue imports files that have been quiet for the debounce interval.
func (w *DropWatcher) processQueue(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, path := range w.ready() {
				if _, err := os.Stat(path); err != nil {
					continue
				}
				if err := w.ImportFile(ctx, path); err != nil {
					w.logger.Warn("import failed", "path", path, "error", err)
				}
			}
		}
	}
}

func (w *DropWatcher) ready() []string {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	now := time.Now()
	var paths []string
	for path, at := range w.pending {
		if now.Sub(at) < w.debounce {
			continue
		}
		paths = append(paths, path)
		delete(w.pending, path)
	}
	return paths
}

// ImportFile imports one dropped file for the user named by its directory.
// The file is renamed with DoneSuffix on success and FailedSuffix when the
// import fails, so it is never picked up twice.
func (w *DropWatcher) ImportFile(ctx context.Context, path string) error {
	userID, ok := w.userFor(path)
	if !ok {
		return fmt.Errorf("%s is not inside a user directory of %s", path, w.dir)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	n, importErr := w.importer.ImportICS(ctx, userID, f)
	_ = f.Close()

	suffix := DoneSuffix
	if importErr != nil {
		suffix = FailedSuffix
	}
	if err := os.Rename(path, path+suffix); err != nil {
		w.logger.Warn("failed to rename processed file", "path", path, "error", err)
	}
	if importErr != nil {
		return fmt.Errorf("failed to import %s for user %s: %w", filepath.Base(path), userID, importErr)
	}

	w.logger.Info("imported dropped calendar", "user", userID, "file", filepath.Base(path), "events", n)
	return nil
}

// userFor returns the user directory name path sits in, if path is a file
// directly inside <dir>/<userID>/.
func (w *DropWatcher) userFor(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	userDir := filepath.Dir(abs)
	if filepath.Dir(userDir) != w.dir {
		return "", false
	}
	return filepath.Base(userDir), true
}

func isCalendarFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".ics")
}
