package features

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ProgressWatcher reports incremental progress for long-running
// sbert/fasttext jobs (dfm computations write none) without re-reading
// every task's state on each poll: a worker writes one line to
// <dir>/<taskID>.progress as it advances, and the watcher keeps an
// in-memory cache fresh via fsnotify instead of polling the filesystem.
type ProgressWatcher struct {
	watcher *fsnotify.Watcher
	dir     string

	mu    sync.RWMutex
	cache map[string]string // taskID -> last progress line
}

// WatchProgress starts watching dir for progress files written by
// WriteProgress. Call Close when the project is unloaded.
func (m *Manager) WatchProgress(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}
	pw := &ProgressWatcher{watcher: w, dir: dir, cache: make(map[string]string)}
	m.progress = pw
	m.progressDir = dir
	go pw.run(ctx)
	return nil
}

func (pw *ProgressWatcher) run(ctx context.Context) {
	defer pw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pw.reload(ev.Name)
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("feature progress watcher error", "err", err)
		}
	}
}

func (pw *ProgressWatcher) reload(path string) {
	taskID := strings.TrimSuffix(filepath.Base(path), ".progress")
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	pw.mu.Lock()
	pw.cache[taskID] = strings.TrimSpace(string(data))
	pw.mu.Unlock()
}

// Get returns the last observed progress line for taskID.
func (pw *ProgressWatcher) Get(taskID string) (string, bool) {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	v, ok := pw.cache[taskID]
	return v, ok
}

// WriteProgress records one progress line for taskID under dir, read back
// by WatchProgress via fsnotify instead of a polling loop.
func WriteProgress(dir, taskID, line string) error {
	if dir == "" {
		return nil
	}
	return os.WriteFile(filepath.Join(dir, taskID+".progress"), []byte(line), 0o644)
}

