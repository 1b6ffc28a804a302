package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/voidstore/storesync/logging"
	"github.com/voidstore/storesync/store"
	"github.com/voidstore/storesync/tree"
)

// Store is a store.Store persisted in SQLite.
type Store struct {
	store.Signals

	db          *sql.DB
	sealer      *sealer
	fs          afero.Fs
	maxInMemory int64
}

// Option configures a Store.
type Option func(*Store)

// WithFs sets the local filesystem used by AddFile and DecryptFileTo.
func WithFs(fs afero.Fs) Option { return func(s *Store) { s.fs = fs } }

// WithMaxInMemory caps the size DecryptFile accepts.
func WithMaxInMemory(n int64) Option { return func(s *Store) { s.maxInMemory = n } }

// Open opens or creates the store database at dbPath.
func Open(dbPath, password string, opts ...Option) (*Store, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	sl, err := loadSealer(db, password)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("unlock store: %w", err)
	}
	s := &Store{
		Signals:     store.NewSignals(),
		db:          db,
		sealer:      sl,
		fs:          afero.NewOsFs(),
		maxInMemory: store.DefaultMaxInMemory,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ListAllEntries(ctx context.Context) ([]string, error) {
	files, dirs, err := s.paths(ctx)
	if err != nil {
		return nil, store.Wrap(store.OpList, "/", err)
	}
	return store.Listing(files, dirs), nil
}

func (s *Store) ListSubdirectories(ctx context.Context, path string) ([]string, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return nil, store.Wrap(store.OpSubdirs, path, err)
	}
	if p != tree.RootPath {
		isDir, found, err := s.lookup(ctx, s.db, p)
		if err != nil {
			return nil, store.Wrap(store.OpSubdirs, p, err)
		}
		if !found || !isDir {
			return nil, store.Wrap(store.OpSubdirs, p, store.ErrNoSuchFile)
		}
	}
	_, dirs, err := s.paths(ctx)
	if err != nil {
		return nil, store.Wrap(store.OpSubdirs, p, err)
	}
	return store.ChildDirs(p, dirs), nil
}

func (s *Store) FileMetadata(ctx context.Context, path, key string) (string, bool, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return "", false, store.Wrap(store.OpMetadata, path, err)
	}
	var v string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE path = ? AND key = ?`, p, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.Wrap(store.OpMetadata, p, err)
	}
	if logging.Enabled(slog.LevelDebug) {
		logging.Sub("sqlite").Debug("FileMetadata", "path", p, "key", key)
	}
	return v, true, nil
}

func (s *Store) SetFileMetadata(ctx context.Context, path, key, value string) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return store.Wrap(store.OpSetMetadata, path, err)
	}
	isDir, found, err := s.lookup(ctx, s.db, p)
	if err != nil {
		return store.Wrap(store.OpSetMetadata, p, err)
	}
	if !found || isDir {
		return store.Wrap(store.OpSetMetadata, p, store.ErrNoSuchFile)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO metadata (path, key, value) VALUES (?, ?, ?)
		ON CONFLICT(path, key) DO UPDATE SET value = excluded.value`, p, key, value)
	return store.Wrap(store.OpSetMetadata, p, err)
}

func (s *Store) AddFileFromData(ctx context.Context, path string, data []byte) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return store.Wrap(store.OpAdd, path, err)
	}
	return store.Wrap(store.OpAdd, p, s.add(ctx, p, data))
}

func (s *Store) add(ctx context.Context, p string, data []byte) error {
	if p == tree.RootPath {
		return store.ErrInvalidPath
	}
	nonce, sealed, err := s.sealer.seal(data)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, found, err := s.lookup(ctx, tx, p); err != nil {
			return err
		} else if found {
			return store.ErrFileAlreadyExists
		}
		if err := s.mkdirs(ctx, tx, store.Ancestors(p)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (path, is_dir, size, nonce, data) VALUES (?, 0, ?, ?, ?)`,
			p, len(data), nonce, sealed); err != nil {
			return fmt.Errorf("%w: %v", store.ErrCantWriteToFile, err)
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO metadata (path, key, value) VALUES (?, ?, ?)`,
			p, store.KeyMimetype, store.Mimetype(p, data))
		return err
	})
}

func (s *Store) AddFile(ctx context.Context, fsPath, storePath string) error {
	p, err := store.CleanPath(storePath)
	if err != nil {
		return store.Wrap(store.OpAddFile, storePath, err)
	}
	s.Emit(store.AddStart, fsPath, p)
	defer s.Emit(store.AddEnd, fsPath, p)

	data, err := afero.ReadFile(s.fs, fsPath)
	if err != nil {
		return store.Wrap(store.OpAddFile, fsPath, fmt.Errorf("%w: %v", store.ErrCantOpenFile, err))
	}
	return store.Wrap(store.OpAddFile, p, s.add(ctx, p, data))
}

func (s *Store) MakePath(ctx context.Context, path string) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return store.Wrap(store.OpMakePath, path, err)
	}
	if p == tree.RootPath {
		return nil
	}
	return store.Wrap(store.OpMakePath, p, s.inTx(ctx, func(tx *sql.Tx) error {
		return s.mkdirs(ctx, tx, append(store.Ancestors(p), p))
	}))
}

func (s *Store) Move(ctx context.Context, oldPath, newPath string) error {
	from, err := store.CleanPath(oldPath)
	if err != nil {
		return store.Wrap(store.OpMove, oldPath, err)
	}
	to, err := store.CleanPath(newPath)
	if err != nil {
		return store.Wrap(store.OpMove, newPath, err)
	}
	if from == tree.RootPath || to == tree.RootPath {
		return store.Wrap(store.OpMove, from, store.ErrInvalidPath)
	}

	return store.Wrap(store.OpMove, from, s.inTx(ctx, func(tx *sql.Tx) error {
		isDir, found, err := s.lookup(ctx, tx, from)
		if err != nil {
			return err
		}
		switch {
		case !found:
			return store.ErrNoSuchFile
		case from == to:
			return nil
		}
		if _, exists, err := s.lookup(ctx, tx, to); err != nil {
			return err
		} else if exists {
			return store.ErrFileAlreadyExists
		}
		if tree.IsWithin(to, from) {
			return store.ErrInvalidPath
		}
		if err := s.mkdirs(ctx, tx, store.Ancestors(to)); err != nil {
			return err
		}
		if !isDir {
			_, err := tx.ExecContext(ctx, `UPDATE entries SET path = ? WHERE path = ?`, to, from)
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE entries SET path = ? || substr(path, ?)
			WHERE path = ? OR substr(path, 1, ?) = ?`,
			to, len(from)+1, from, len(from)+1, from+"/")
		return err
	}))
}

func (s *Store) Remove(ctx context.Context, path string) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return store.Wrap(store.OpRemove, path, err)
	}
	return store.Wrap(store.OpRemove, p, s.inTx(ctx, func(tx *sql.Tx) error {
		if p == tree.RootPath {
			_, err := tx.ExecContext(ctx, `DELETE FROM entries`)
			return err
		}
		if _, found, err := s.lookup(ctx, tx, p); err != nil {
			return err
		} else if !found {
			return store.ErrNoSuchFile
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE path = ? OR substr(path, 1, ?) = ?`,
			p, len(p)+1, p+"/")
		return err
	}))
}

func (s *Store) FileSize(ctx context.Context, path string) (int64, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return 0, store.Wrap(store.OpSize, path, err)
	}
	var size int64
	err = s.db.QueryRowContext(ctx, `SELECT size FROM entries WHERE path = ? AND is_dir = 0`, p).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.Wrap(store.OpSize, p, store.ErrNoSuchFile)
	}
	return size, store.Wrap(store.OpSize, p, err)
}

func (s *Store) DecryptFile(ctx context.Context, path string) ([]byte, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return nil, store.Wrap(store.OpDecrypt, path, err)
	}
	data, err := s.read(ctx, p, s.maxInMemory)
	return data, store.Wrap(store.OpDecrypt, p, err)
}

func (s *Store) DecryptFileTo(ctx context.Context, storePath, fsPath string) error {
	p, err := store.CleanPath(storePath)
	if err != nil {
		return store.Wrap(store.OpDecryptTo, storePath, err)
	}
	s.Emit(store.DecryptStart, fsPath, p)
	defer s.Emit(store.DecryptEnd, fsPath, p)

	data, err := s.read(ctx, p, -1)
	if err != nil {
		return store.Wrap(store.OpDecryptTo, p, err)
	}
	return store.Wrap(store.OpDecryptTo, fsPath, store.WriteLocal(s.fs, fsPath, data))
}

// read opens the sealed content of p. limit < 0 means unlimited.
func (s *Store) read(ctx context.Context, p string, limit int64) ([]byte, error) {
	var size int64
	var nonce, sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT size, nonce, data FROM entries WHERE path = ? AND is_dir = 0`, p).Scan(&size, &nonce, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoSuchFile
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCantOpenFile, err)
	}
	if limit >= 0 && size > limit {
		return nil, store.ErrFileTooLarge
	}
	return s.sealer.open(nonce, sealed)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) lookup(ctx context.Context, q querier, p string) (isDir, found bool, err error) {
	if p == tree.RootPath {
		return true, true, nil
	}
	err = q.QueryRowContext(ctx, `SELECT is_dir FROM entries WHERE path = ?`, p).Scan(&isDir)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("lookup: %w", err)
	}
	return isDir, true, nil
}

func (s *Store) mkdirs(ctx context.Context, tx *sql.Tx, dirs []string) error {
	for _, d := range dirs {
		isDir, found, err := s.lookup(ctx, tx, d)
		if err != nil {
			return err
		}
		if found && !isDir {
			return store.ErrFileAlreadyExists
		}
		if found {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO entries (path, is_dir) VALUES (?, 1)`, d); err != nil {
			return fmt.Errorf("mkdir %s: %w", d, err)
		}
	}
	return nil
}

func (s *Store) paths(ctx context.Context) (files, dirs []string, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, is_dir FROM entries`)
	if err != nil {
		return nil, nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		var isDir bool
		if err := rows.Scan(&p, &isDir); err != nil {
			return nil, nil, fmt.Errorf("scan entry: %w", err)
		}
		if isDir {
			dirs = append(dirs, p)
		} else {
			files = append(files, p)
		}
	}
	return files, dirs, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if logging.Enabled(slog.LevelDebug) {
		logging.Sub("sqlite").Debug("tx committed")
	}
	return nil
}

var _ store.Store = (*Store)(nil)
var _ store.Notifier = (*Store)(nil)
