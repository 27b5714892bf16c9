// pattern: Imperative Shell

// Package watch reports changes to the workspace and worktree directory
// trees so connected clients can refresh without polling.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"agentrix/internal/logging"
)

const (
	defaultDepth    = 2
	defaultDebounce = 250 * time.Millisecond
	defaultPoll     = 5 * time.Second
)

// Config controls which directories are watched and how events are batched.
type Config struct {
	// Roots are the top-level directories (working root, worktrees root).
	// Roots that do not exist yet are picked up by the poll.
	Roots []string
	// Depth is how many directory levels below each root are watched.
	// 2 covers <root>/<workspace>/<repository>.
	Depth int
	// Debounce collapses bursts of events (a clone writes thousands of
	// files) into one notification.
	Debounce time.Duration
	// PollInterval re-syncs the watch set, catching roots created late and
	// events lost on filesystems with unreliable inotify.
	PollInterval time.Duration
}

// Watcher calls notify after directories under the configured roots change.
type Watcher struct {
	cfg     Config
	notify  func()
	logger  *logging.ScopedLogger
	fsw     *fsnotify.Watcher
	watched map[string]bool
}

// New creates a Watcher. notify is called from the Run goroutine.
func New(cfg Config, notify func(), logger *logging.ScopedLogger) (*Watcher, error) {
	if cfg.Depth <= 0 {
		cfg.Depth = defaultDepth
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPoll
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		cfg:     cfg,
		notify:  notify,
		logger:  logger,
		fsw:     fsw,
		watched: make(map[string]bool),
	}, nil
}

// Run watches until ctx is cancelled. It closes the underlying watcher
// before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	w.sync()
	w.logger.Info("watching directories", "roots", w.cfg.Roots, "watched", len(w.watched))

	debounce := time.NewTimer(w.cfg.Debounce)
	debounce.Stop()
	defer debounce.Stop()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			// Permission and timestamp changes do not alter the tree.
			if event.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debug("filesystem event", "path", event.Name, "op", event.Op.String())
			debounce.Reset(w.cfg.Debounce)

		case <-debounce.C:
			w.sync()
			w.notify()

		case <-ticker.C:
			if w.sync() {
				debounce.Reset(w.cfg.Debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// sync brings the watch set in line with the directories currently on disk
// and reports whether it changed.
func (w *Watcher) sync() bool {
	want := make(map[string]bool)
	for _, root := range w.cfg.Roots {
		collectDirs(filepath.Clean(root), w.cfg.Depth, want)
	}

	changed := false
	for path := range w.watched {
		if !want[path] {
			// fsnotify drops watches on deleted directories itself.
			_ = w.fsw.Remove(path)
			delete(w.watched, path)
			changed = true
		}
	}
	for path := range want {
		if w.watched[path] {
			continue
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Debug("failed to watch directory", "path", path, "error", err)
			continue
		}
		w.watched[path] = true
		changed = true
	}
	return changed
}

// collectDirs adds dir and its subdirectories down to depth levels.
func collectDirs(dir string, depth int, out map[string]bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	out[dir] = true
	if depth == 0 {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			collectDirs(filepath.Join(dir, entry.Name()), depth-1, out)
		}
	}
}
