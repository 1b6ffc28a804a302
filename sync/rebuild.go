package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marusama/semaphore/v2"

	"github.com/voidstore/storesync/store"
	"github.com/voidstore/storesync/tree"
)

// builder is the tree under construction for a single rebuild. Each
// rebuild owns its builder; nothing else writes into it.
type builder struct {
	root *tree.FileNode
	dirs map[string]*tree.FileNode
}

func newBuilder() *builder {
	root := tree.NewRoot()
	return &builder{root: root, dirs: map[string]*tree.FileNode{tree.RootPath: root}}
}

// ensureDir returns the directory node at path, synthesizing it and any
// missing ancestors.
func (b *builder) ensureDir(path string) *tree.FileNode {
	if d, ok := b.dirs[path]; ok {
		return d
	}
	node := b.root
	p := ""
	for _, seg := range tree.Segments(path) {
		p += "/" + seg
		if d, ok := b.dirs[p]; ok {
			node = d
			continue
		}
		d := &tree.FileNode{Path: p, Name: seg, Kind: tree.DirKind}
		node.Children = append(node.Children, d)
		b.dirs[p] = d
		node = d
	}
	return node
}

// add folds one fetched entry into its parent. A name already present
// under the parent (for instance a directory synthesized from a deeper
// path) is skipped. A missing kind means directory.
func (b *builder) add(path, kind string, known bool) {
	parent := b.ensureDir(tree.Dir(path))
	name := tree.Base(path)
	if parent.Child(name) != nil {
		return
	}
	if !known {
		d := &tree.FileNode{Path: path, Name: name, Kind: tree.DirKind}
		parent.Children = append(parent.Children, d)
		b.dirs[path] = d
		return
	}
	parent.Children = append(parent.Children, &tree.FileNode{Path: path, Name: name, Kind: kind})
}

type kindResult struct {
	index int
	kind  string
	known bool
	err   error
}

// rebuild lists the store, fetches every entry's kind and publishes the
// assembled tree. Any store error aborts it without publishing.
func (s *Synchronizer) rebuild(ctx context.Context) error {
	l := sub("rebuild")
	gen := s.begin()
	start := time.Now()
	s.rebuilds.Add(1)

	paths, err := s.st.ListAllEntries(ctx)
	if err != nil {
		l.Error("list entries failed", "gen", gen, "err", err)
		return fmt.Errorf("list entries: %w", err)
	}

	b := newBuilder()
	var jobs []string
	for _, p := range paths {
		clean, err := store.CleanPath(p)
		if err != nil {
			l.Warn("skipping malformed entry", "path", p, "err", err)
			continue
		}
		if clean == tree.RootPath {
			continue
		}
		b.ensureDir(tree.Dir(clean))
		jobs = append(jobs, clean)
	}

	if len(jobs) == 0 {
		if s.publish(gen, b.root) {
			l.Info("published empty tree", "gen", gen)
		}
		return nil
	}

	kinds, err := s.fetchKinds(ctx, jobs)
	if err != nil {
		l.Error("metadata fetch failed", "gen", gen, "err", err)
		return err
	}

	for i, p := range jobs {
		b.add(p, kinds[i].kind, kinds[i].known)
	}

	if !s.publish(gen, b.root) {
		l.Debug("discarded superseded tree", "gen", gen)
		return nil
	}
	l.Info("published tree", "gen", gen, "entries", len(jobs), "nodes", tree.CountNodes(b.root),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// fetchKinds fetches the mimetype of every path concurrently and returns
// the results in input order once all of them have arrived.
func (s *Synchronizer) fetchKinds(ctx context.Context, paths []string) ([]kindResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.New(s.opts.FetchConcurrency)
	results := make(chan kindResult, len(paths))
	for i, p := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		go func() {
			defer sem.Release(1)
			kind, ok, err := s.st.FileMetadata(ctx, p, store.KeyMimetype)
			results <- kindResult{index: i, kind: kind, known: ok && kind != "", err: err}
		}()
	}

	out := make([]kindResult, len(paths))
	for range paths {
		select {
		case r := <-results:
			if r.err != nil {
				return nil, fmt.Errorf("fetch mimetype %s: %w", paths[r.index], r.err)
			}
			out[r.index] = r
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if logEnabled(slog.LevelDebug) {
		sub("rebuild").Debug("metadata barrier passed", "fetched", len(paths))
	}
	return out, nil
}
