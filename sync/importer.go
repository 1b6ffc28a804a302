package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/voidstore/storesync/store"
	"github.com/voidstore/storesync/tree"
)

// Importer copies local files into the store in the background. Each
// finished file signals the synchronizer, so a bulk import collapses into
// a few debounced rebuilds.
type Importer struct {
	s     *Synchronizer
	fs    afero.Fs
	queue *ImportQueue

	imported atomic.Int64
	failed   atomic.Int64
}

// NewImporter creates an importer reading from fs.
func NewImporter(s *Synchronizer, fs afero.Fs) *Importer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Importer{s: s, fs: fs, queue: NewImportQueue()}
}

// Queue returns the pending jobs.
func (im *Importer) Queue() *ImportQueue { return im.queue }

// Stats returns the number of imported and failed jobs so far.
func (im *Importer) Stats() (imported, failed int64) {
	return im.imported.Load(), im.failed.Load()
}

// storePathFor maps a slash-separated relative local path under storeRoot,
// sanitizing every segment.
func storePathFor(storeRoot, rel string) (string, error) {
	p := storeRoot
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == "" || seg == "." {
			continue
		}
		next, err := tree.AppendPath(p, seg)
		if err != nil {
			return "", fmt.Errorf("%q: %w", rel, err)
		}
		p = next
	}
	return p, nil
}

// AddFolder queues every file below fsDir for import into
// storeDir/<folder name>. Directories are created right away so empty
// ones show up too. Entries matched by the folder's ignore file are
// skipped. It returns the number of queued files.
func (im *Importer) AddFolder(ctx context.Context, fsDir, storeDir string) (int, error) {
	l := sub("importer")
	start := time.Now()

	info, err := im.fs.Stat(fsDir)
	if err != nil {
		return 0, store.Wrap(store.OpAddFile, fsDir, fmt.Errorf("%w: %v", store.ErrCantOpenFile, err))
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s: not a directory", fsDir)
	}
	storeRoot, err := tree.AppendPath(storeDir, filepath.Base(filepath.Clean(fsDir)))
	if err != nil {
		return 0, err
	}
	ig := LoadIgnore(im.fs, filepath.Join(fsDir, IgnoreFile))

	var jobs []ImportJob
	var dirs int
	err = afero.Walk(im.fs, fsDir, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			l.Warn("walk error, skipping", "path", path, "err", walkErr)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != fsDir && ig.IsIgnored(fi.Name(), fi.IsDir()) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(fsDir, path)
		if err != nil {
			return nil
		}
		sp, err := storePathFor(storeRoot, rel)
		if err != nil {
			l.Warn("unusable name, skipping", "path", path, "err", err)
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if fi.IsDir() {
			if err := im.s.st.MakePath(ctx, sp); err != nil {
				return fmt.Errorf("make path %s: %w", sp, err)
			}
			dirs++
			return nil
		}
		if fi.Mode().IsRegular() {
			jobs = append(jobs, ImportJob{FSPath: path, StorePath: sp})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	im.queue.PushMany(jobs)
	im.s.Notify()
	l.Info("folder queued", "dir", fsDir, "storeRoot", storeRoot, "files", len(jobs), "dirs", dirs,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return len(jobs), nil
}

// Run processes the queue until ctx is cancelled.
func (im *Importer) Run(ctx context.Context) {
	l := sub("importer")
	l.Info("worker started")
	done := ctx.Done()
	for {
		job, ok := im.queue.Pop(done)
		if !ok {
			l.Info("worker stopping, context cancelled")
			return
		}
		if err := im.process(ctx, job); err != nil {
			if ctx.Err() != nil {
				l.Info("worker stopping, context cancelled")
				return
			}
			im.failed.Add(1)
			l.Error("import failed", "fsPath", job.FSPath, "storePath", job.StorePath, "err", err)
			continue
		}
		im.imported.Add(1)
		l.Debug("imported", "storePath", job.StorePath, "queueLen", im.queue.Len())
	}
}

func (im *Importer) process(ctx context.Context, job ImportJob) error {
	if job.Overwrite {
		if err := im.s.st.Remove(ctx, job.StorePath); err != nil && !errors.Is(err, store.ErrNoSuchFile) {
			return err
		}
	}
	return im.s.addFile(ctx, job.FSPath, job.StorePath)
}
