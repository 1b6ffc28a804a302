package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/voidstore/storesync/store"
	"github.com/voidstore/storesync/tree"
)

// mutate runs a store operation and, when it succeeds, waits for the
// rebuild that reflects it. A failed operation leaves the tree alone.
func (s *Synchronizer) mutate(ctx context.Context, op, path string, fn func() error) error {
	l := sub("ops")
	if err := fn(); err != nil {
		l.Warn(op+" failed", "path", path, "err", err)
		return err
	}
	l.Info(op, "path", path)
	if err := s.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh after %s: %w", op, err)
	}
	return nil
}

// CreateFile adds a file holding data.
func (s *Synchronizer) CreateFile(ctx context.Context, path string, data []byte) error {
	return s.mutate(ctx, "create file", path, func() error {
		return s.st.AddFileFromData(ctx, path, data)
	})
}

// CreateDir creates a directory and any missing parents.
func (s *Synchronizer) CreateDir(ctx context.Context, path string) error {
	return s.mutate(ctx, "create dir", path, func() error {
		return s.st.MakePath(ctx, path)
	})
}

// Remove deletes path, recursively for directories. When confirm is
// non-nil it is asked first and a false answer makes Remove a no-op.
func (s *Synchronizer) Remove(ctx context.Context, path string, confirm func() bool) error {
	if confirm != nil && !confirm() {
		sub("ops").Debug("remove declined", "path", path)
		return nil
	}
	return s.mutate(ctx, "remove", path, func() error {
		return s.st.Remove(ctx, path)
	})
}

// Move renames or reparents oldPath to newPath.
func (s *Synchronizer) Move(ctx context.Context, oldPath, newPath string) error {
	return s.mutate(ctx, "move", oldPath, func() error {
		return s.st.Move(ctx, oldPath, newPath)
	})
}

// Save overwrites path with data by removing the old file first.
func (s *Synchronizer) Save(ctx context.Context, path string, data []byte) error {
	return s.mutate(ctx, "save", path, func() error {
		if err := s.st.Remove(ctx, path); err != nil && !errors.Is(err, store.ErrNoSuchFile) {
			return err
		}
		return s.st.AddFileFromData(ctx, path, data)
	})
}

// AddFile imports a local file.
func (s *Synchronizer) AddFile(ctx context.Context, fsPath, storePath string) error {
	return s.mutate(ctx, "add file", storePath, func() error {
		return s.addFile(ctx, fsPath, storePath)
	})
}

// addFile imports without waiting for a rebuild; the end signal schedules
// a debounced one.
func (s *Synchronizer) addFile(ctx context.Context, fsPath, storePath string) error {
	if !s.notifies {
		s.emit(store.Event{Type: store.AddStart, Path: fsPath, StorePath: storePath})
		defer s.emit(store.Event{Type: store.AddEnd, Path: fsPath, StorePath: storePath})
	}
	return s.st.AddFile(ctx, fsPath, storePath)
}

// DecryptToTemp exports path into a fresh temporary directory and returns
// the local file path. Its completion signal schedules a debounced rebuild.
func (s *Synchronizer) DecryptToTemp(ctx context.Context, path string) (string, error) {
	dir, err := afero.TempDir(s.fs, s.opts.TempDir, "storesync-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	fsPath := filepath.Join(dir, tree.Base(path))
	if err := s.decryptTo(ctx, path, fsPath); err != nil {
		s.fs.RemoveAll(dir) //nolint:errcheck
		return "", err
	}
	return fsPath, nil
}

func (s *Synchronizer) decryptTo(ctx context.Context, storePath, fsPath string) error {
	if !s.notifies {
		s.emit(store.Event{Type: store.DecryptStart, Path: fsPath, StorePath: storePath})
		defer s.emit(store.Event{Type: store.DecryptEnd, Path: fsPath, StorePath: storePath})
	}
	return s.st.DecryptFileTo(ctx, storePath, fsPath)
}

// Decrypt exports paths into destDir on the local filesystem. Directories
// are exported recursively from the current tree. Names that already
// exist locally get a "_conflict-N" suffix. It returns the written files.
func (s *Synchronizer) Decrypt(ctx context.Context, paths []string, destDir string) ([]string, error) {
	root := s.Tree()
	var written []string
	for _, p := range paths {
		node := tree.FindByPath(root, p)
		if node == nil {
			return written, store.Wrap(store.OpDecryptTo, p, store.ErrNoSuchFile)
		}
		base := tree.Dir(node.Path)
		for _, leaf := range exportFiles(node) {
			rel := strings.TrimPrefix(strings.TrimPrefix(leaf, base), "/")
			target, err := freeName(s.fs, filepath.Join(destDir, filepath.FromSlash(rel)))
			if err != nil {
				return written, err
			}
			if err := s.decryptTo(ctx, leaf, target); err != nil {
				return written, err
			}
			written = append(written, target)
		}
	}
	return written, nil
}

// exportFiles lists the file paths at or below n.
func exportFiles(n *tree.FileNode) []string {
	if !n.IsDir() {
		return []string{n.Path}
	}
	var out []string
	for _, c := range n.Children {
		out = append(out, exportFiles(c)...)
	}
	return out
}

// freeName returns path, or path with "_conflict-N" before the extension
// when path already exists.
func freeName(fs afero.Fs, path string) (string, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !exists {
		return path, nil
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_conflict-%d%s", name, i, ext))
		if exists, err := afero.Exists(fs, candidate); err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		} else if !exists {
			return candidate, nil
		}
	}
}

// Metadata returns the value stored under key for path.
func (s *Synchronizer) Metadata(ctx context.Context, path, key string) (string, bool, error) {
	return s.st.FileMetadata(ctx, path, key)
}

// SetMetadata stores value under key for path. No rebuild follows.
func (s *Synchronizer) SetMetadata(ctx context.Context, path, key, value string) error {
	return s.st.SetFileMetadata(ctx, path, key, value)
}

// FileSize returns the plaintext size of path.
func (s *Synchronizer) FileSize(ctx context.Context, path string) (int64, error) {
	return s.st.FileSize(ctx, path)
}

// ReadFile returns the decrypted content of path.
func (s *Synchronizer) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return s.st.DecryptFile(ctx, path)
}

// ListSubdirectories returns the direct child directories of path.
func (s *Synchronizer) ListSubdirectories(ctx context.Context, path string) ([]string, error) {
	return s.st.ListSubdirectories(ctx, path)
}
