package sync

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultInboxDebounce groups filesystem events before they are queued.
const DefaultInboxDebounce = 300 * time.Millisecond

// Watcher monitors a local inbox folder and queues every file written
// there for import below a store directory. Deletions are not mirrored.
type Watcher struct {
	root     string
	storeDir string
	queue    *ImportQueue
	ignore   *Ignore
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher for the inbox at root.
func NewWatcher(root, storeDir string, queue *ImportQueue) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     root,
		storeDir: storeDir,
		queue:    queue,
		ignore:   LoadIgnore(osFs, filepath.Join(root, IgnoreFile)),
		debounce: DefaultInboxDebounce,
		watcher:  w,
	}, nil
}

// Start queues the files already in the inbox, then watches for changes
// until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	l := sub("watcher")
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.flush(map[string]struct{}{w.root: {}})
	l.Info("watching inbox", "root", w.root, "storeDir", w.storeDir)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Remove) || (event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write)) {
				continue
			}
			if w.ignore.IsIgnored(filepath.Base(event.Name), false) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

			if event.Has(fsnotify.Create) {
				// No-op for files.
				w.watcher.Add(event.Name) //nolint:errcheck
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			l.Warn("watch error", "err", err)

		case <-timer.C:
			if len(pending) > 0 {
				w.flush(pending)
				pending = make(map[string]struct{})
			}
		}
	}
}

// flush queues the files at or below each pending path.
func (w *Watcher) flush(pending map[string]struct{}) {
	l := sub("watcher")
	var jobs []ImportJob
	for p := range pending {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			if job, ok := w.job(p); ok {
				jobs = append(jobs, job)
			}
			continue
		}
		w.addRecursive(p) //nolint:errcheck
		filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error { //nolint:errcheck
			if err != nil {
				return nil
			}
			if path != p && w.ignore.IsIgnored(d.Name(), d.IsDir()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				if job, ok := w.job(path); ok {
					jobs = append(jobs, job)
				}
			}
			return nil
		})
	}
	if len(jobs) > 0 {
		w.queue.PushMany(jobs)
		l.Info("flushed to import queue", "files", len(jobs))
	}
}

func (w *Watcher) job(path string) (ImportJob, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ImportJob{}, false
	}
	sp, err := storePathFor(w.storeDir, rel)
	if err != nil {
		sub("watcher").Warn("unusable name, skipping", "path", path, "err", err)
		return ImportJob{}, false
	}
	return ImportJob{FSPath: path, StorePath: sp, Overwrite: true}, true
}

// addRecursive watches a directory and all subdirectories.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && w.ignore.IsIgnored(d.Name(), true) {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
}

// Close closes the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
