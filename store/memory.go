package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/voidstore/storesync/logging"
	"github.com/voidstore/storesync/tree"
)

// Store operation names, used for call counting and fault injection.
const (
	OpList        = "list"
	OpSubdirs     = "subdirs"
	OpMetadata    = "metadata"
	OpSetMetadata = "setMetadata"
	OpAdd         = "add"
	OpAddFile     = "addFile"
	OpMakePath    = "makePath"
	OpMove        = "move"
	OpRemove      = "remove"
	OpSize        = "size"
	OpDecrypt     = "decrypt"
	OpDecryptTo   = "decryptTo"
)

// DefaultMaxInMemory is the largest file DecryptFile returns in one piece.
const DefaultMaxInMemory = 64 << 20

type memFile struct {
	data []byte
	meta map[string]string
}

// Memory is an in-process Store. It backs tests and the "memory:" store
// URL.
type Memory struct {
	Signals

	mu    sync.RWMutex
	files map[string]*memFile
	dirs  map[string]struct{}

	fs          afero.Fs
	maxInMemory int64
	latency     func(op, path string) time.Duration
	fault       func(op, path string) error

	callsMu sync.Mutex
	calls   map[string]int
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithFs sets the local filesystem used by AddFile and DecryptFileTo.
func WithFs(fs afero.Fs) MemoryOption { return func(m *Memory) { m.fs = fs } }

// WithLatency delays every operation by the returned duration.
func WithLatency(fn func(op, path string) time.Duration) MemoryOption {
	return func(m *Memory) { m.latency = fn }
}

// WithFault makes an operation fail when fn returns a non-nil error.
func WithFault(fn func(op, path string) error) MemoryOption {
	return func(m *Memory) { m.fault = fn }
}

// WithMaxInMemory caps the size DecryptFile accepts.
func WithMaxInMemory(n int64) MemoryOption { return func(m *Memory) { m.maxInMemory = n } }

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		Signals:     NewSignals(),
		files:       make(map[string]*memFile),
		dirs:        make(map[string]struct{}),
		fs:          afero.NewOsFs(),
		maxInMemory: DefaultMaxInMemory,
		calls:       make(map[string]int),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Calls returns how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	return m.calls[op]
}

// enter counts the call, applies latency and fault injection, and
// canonicalizes path.
func (m *Memory) enter(ctx context.Context, op, path string) (string, error) {
	m.callsMu.Lock()
	m.calls[op]++
	m.callsMu.Unlock()

	if logging.Enabled(slog.LevelDebug) {
		logging.Sub("memstore").Debug(op, "path", path)
	}

	if m.latency != nil {
		if d := m.latency(op, path); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return "", opErr(op, path, ctx.Err())
			case <-t.C:
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", opErr(op, path, err)
	}
	if m.fault != nil {
		if err := m.fault(op, path); err != nil {
			return "", opErr(op, path, err)
		}
	}
	if path == "" {
		return "", nil
	}
	clean, err := CleanPath(path)
	if err != nil {
		return "", opErr(op, path, err)
	}
	return clean, nil
}

func (m *Memory) ListAllEntries(ctx context.Context) ([]string, error) {
	if _, err := m.enter(ctx, OpList, ""); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Listing(lo.Keys(m.files), lo.Keys(m.dirs)), nil
}

func (m *Memory) ListSubdirectories(ctx context.Context, path string) ([]string, error) {
	p, err := m.enter(ctx, OpSubdirs, path)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.isDir(p) {
		return nil, opErr(OpSubdirs, p, ErrNoSuchFile)
	}
	return ChildDirs(p, lo.Keys(m.dirs)), nil
}

func (m *Memory) FileMetadata(ctx context.Context, path, key string) (string, bool, error) {
	p, err := m.enter(ctx, OpMetadata, path)
	if err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[p]
	if !ok {
		return "", false, nil
	}
	v, ok := f.meta[key]
	return v, ok, nil
}

func (m *Memory) SetFileMetadata(ctx context.Context, path, key, value string) error {
	p, err := m.enter(ctx, OpSetMetadata, path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[p]
	if !ok {
		return opErr(OpSetMetadata, p, ErrNoSuchFile)
	}
	f.meta[key] = value
	return nil
}

func (m *Memory) AddFileFromData(ctx context.Context, path string, data []byte) error {
	p, err := m.enter(ctx, OpAdd, path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(p, data)
}

func (m *Memory) add(p string, data []byte) error {
	if p == tree.RootPath {
		return opErr(OpAdd, p, ErrInvalidPath)
	}
	if m.exists(p) {
		return opErr(OpAdd, p, ErrFileAlreadyExists)
	}
	if err := m.mkdirs(Ancestors(p)); err != nil {
		return opErr(OpAdd, p, err)
	}
	m.files[p] = &memFile{
		data: slices.Clone(data),
		meta: map[string]string{KeyMimetype: Mimetype(p, data)},
	}
	return nil
}

func (m *Memory) AddFile(ctx context.Context, fsPath, storePath string) error {
	p, err := m.enter(ctx, OpAddFile, storePath)
	if err != nil {
		return err
	}
	m.Emit(AddStart, fsPath, p)
	defer m.Emit(AddEnd, fsPath, p)

	data, err := afero.ReadFile(m.fs, fsPath)
	if err != nil {
		return opErr(OpAddFile, fsPath, fmt.Errorf("%w: %v", ErrCantOpenFile, err))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(p, data)
}

func (m *Memory) MakePath(ctx context.Context, path string) error {
	p, err := m.enter(ctx, OpMakePath, path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == tree.RootPath {
		return nil
	}
	return opErr(OpMakePath, p, m.mkdirs(append(Ancestors(p), p)))
}

func (m *Memory) Move(ctx context.Context, oldPath, newPath string) error {
	from, err := m.enter(ctx, OpMove, oldPath)
	if err != nil {
		return err
	}
	to, err := CleanPath(newPath)
	if err != nil {
		return opErr(OpMove, newPath, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case from == tree.RootPath || to == tree.RootPath:
		return opErr(OpMove, from, ErrInvalidPath)
	case !m.exists(from):
		return opErr(OpMove, from, ErrNoSuchFile)
	case from == to:
		return nil
	case m.exists(to):
		return opErr(OpMove, to, ErrFileAlreadyExists)
	case tree.IsWithin(to, from):
		return opErr(OpMove, to, ErrInvalidPath)
	}
	if err := m.mkdirs(Ancestors(to)); err != nil {
		return opErr(OpMove, to, err)
	}

	if f, ok := m.files[from]; ok {
		delete(m.files, from)
		m.files[to] = f
		return nil
	}
	for p, f := range m.files {
		if tree.IsWithin(p, from) {
			delete(m.files, p)
			m.files[to+strings.TrimPrefix(p, from)] = f
		}
	}
	for d := range m.dirs {
		if tree.IsWithin(d, from) {
			delete(m.dirs, d)
			m.dirs[to+strings.TrimPrefix(d, from)] = struct{}{}
		}
	}
	return nil
}

func (m *Memory) Remove(ctx context.Context, path string) error {
	p, err := m.enter(ctx, OpRemove, path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[p]; ok {
		delete(m.files, p)
		return nil
	}
	if !m.isDir(p) {
		return opErr(OpRemove, p, ErrNoSuchFile)
	}
	for f := range m.files {
		if tree.IsWithin(f, p) {
			delete(m.files, f)
		}
	}
	for d := range m.dirs {
		if tree.IsWithin(d, p) {
			delete(m.dirs, d)
		}
	}
	return nil
}

func (m *Memory) FileSize(ctx context.Context, path string) (int64, error) {
	p, err := m.enter(ctx, OpSize, path)
	if err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[p]
	if !ok {
		return 0, opErr(OpSize, p, ErrNoSuchFile)
	}
	return int64(len(f.data)), nil
}

func (m *Memory) DecryptFile(ctx context.Context, path string) ([]byte, error) {
	p, err := m.enter(ctx, OpDecrypt, path)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[p]
	if !ok {
		return nil, opErr(OpDecrypt, p, ErrNoSuchFile)
	}
	if int64(len(f.data)) > m.maxInMemory {
		return nil, opErr(OpDecrypt, p, ErrFileTooLarge)
	}
	return slices.Clone(f.data), nil
}

func (m *Memory) DecryptFileTo(ctx context.Context, storePath, fsPath string) error {
	p, err := m.enter(ctx, OpDecryptTo, storePath)
	if err != nil {
		return err
	}
	m.Emit(DecryptStart, fsPath, p)
	defer m.Emit(DecryptEnd, fsPath, p)

	m.mu.RLock()
	f, ok := m.files[p]
	var data []byte
	if ok {
		data = slices.Clone(f.data)
	}
	m.mu.RUnlock()
	if !ok {
		return opErr(OpDecryptTo, p, ErrNoSuchFile)
	}
	return opErr(OpDecryptTo, fsPath, WriteLocal(m.fs, fsPath, data))
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) exists(p string) bool {
	_, ok := m.files[p]
	return ok || m.isDir(p)
}

func (m *Memory) isDir(p string) bool {
	if p == tree.RootPath {
		return true
	}
	_, ok := m.dirs[p]
	return ok
}

// mkdirs creates each directory in order. A file in the way is
// ErrFileAlreadyExists.
func (m *Memory) mkdirs(paths []string) error {
	for _, d := range paths {
		if _, ok := m.files[d]; ok {
			return ErrFileAlreadyExists
		}
	}
	for _, d := range paths {
		m.dirs[d] = struct{}{}
	}
	return nil
}

// WriteLocal writes data to fsPath through a temporary file and a rename,
// so readers never observe a partial file.
func WriteLocal(afs afero.Fs, fsPath string, data []byte) error {
	if err := afs.MkdirAll(filepath.Dir(fsPath), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir parent: %v", ErrCantWriteToFile, err)
	}
	tmp := fsPath + ".storesync-tmp"
	if err := afero.WriteFile(afs, tmp, data, 0o600); err != nil {
		afs.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("%w: write tmp: %v", ErrCantWriteToFile, err)
	}
	if err := afs.Rename(tmp, fsPath); err != nil {
		afs.Remove(tmp) //nolint:errcheck
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return fmt.Errorf("%w: rename tmp: %v", ErrCantWriteToFile, err)
	}
	return nil
}
