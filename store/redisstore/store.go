// Package redisstore is a store.Store kept in a Redis database, so several
// processes can share one store. Change signals travel over Redis pub/sub.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/voidstore/storesync/logging"
	"github.com/voidstore/storesync/store"
	"github.com/voidstore/storesync/tree"
)

const (
	kindDir  = "d"
	kindFile = "f"

	maxTxRetries = 16
)

// Store is a store.Store backed by Redis.
//
// Layout under the key prefix:
//
//	entries        hash path → "d" | "f"
//	data:<path>    string file content
//	meta:<path>    hash key → value
//	signals        pub/sub channel of JSON store.Event
type Store struct {
	store.Signals

	rdb         *redis.Client
	prefix      string
	fs          afero.Fs
	maxInMemory int64

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces every key. The default is "storesync:".
func WithPrefix(p string) Option { return func(s *Store) { s.prefix = p } }

// WithFs sets the local filesystem used by AddFile and DecryptFileTo.
func WithFs(fs afero.Fs) Option { return func(s *Store) { s.fs = fs } }

// WithMaxInMemory caps the size DecryptFile accepts.
func WithMaxInMemory(n int64) Option { return func(s *Store) { s.maxInMemory = n } }

// Open connects to the Redis server at url (redis://host:port/db) and
// starts relaying change signals.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s := &Store{
		Signals:     store.NewSignals(),
		rdb:         rdb,
		prefix:      "storesync:",
		fs:          afero.NewOsFs(),
		maxInMemory: store.DefaultMaxInMemory,
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}

	ps := rdb.Subscribe(ctx, s.key("signals"))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		rdb.Close()
		return nil, fmt.Errorf("subscribe signals: %w", err)
	}
	relayCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.relay(relayCtx, ps)

	logging.Sub("redis").Info("store opened", "addr", ropts.Addr, "db", ropts.DB, "prefix", s.prefix)
	return s, nil
}

// relay republishes signals from every process sharing the store on the
// local topic.
func (s *Store) relay(ctx context.Context, ps *redis.PubSub) {
	defer close(s.done)
	defer ps.Close()
	l := logging.Sub("redis")
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev store.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				l.Warn("bad signal payload", "err", err)
				continue
			}
			s.Signals.Emit(ev.Type, ev.Path, ev.StorePath)
		}
	}
}

// Close stops the relay and closes the client.
func (s *Store) Close() error {
	s.cancel()
	<-s.done
	return s.rdb.Close()
}

func (s *Store) key(parts ...string) string { return s.prefix + strings.Join(parts, ":") }

func (s *Store) dataKey(p string) string { return s.key("data", p) }

func (s *Store) metaKey(p string) string { return s.key("meta", p) }

func (s *Store) publish(ctx context.Context, t store.EventType, fsPath, storePath string) {
	payload, _ := json.Marshal(store.Event{Type: t, Path: fsPath, StorePath: storePath})
	if err := s.rdb.Publish(ctx, s.key("signals"), payload).Err(); err != nil {
		logging.Sub("redis").Warn("publish signal failed", "type", t, "err", err)
	}
}

func (s *Store) entries(ctx context.Context, c redis.Cmdable) (map[string]string, error) {
	m, err := c.HGetAll(ctx, s.key("entries")).Result()
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	return m, nil
}

func (s *Store) ListAllEntries(ctx context.Context) ([]string, error) {
	m, err := s.entries(ctx, s.rdb)
	if err != nil {
		return nil, store.Wrap(store.OpList, "/", err)
	}
	files, dirs := split(m)
	return store.Listing(files, dirs), nil
}

func (s *Store) ListSubdirectories(ctx context.Context, path string) ([]string, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return nil, store.Wrap(store.OpSubdirs, path, err)
	}
	m, err := s.entries(ctx, s.rdb)
	if err != nil {
		return nil, store.Wrap(store.OpSubdirs, p, err)
	}
	if p != tree.RootPath && m[p] != kindDir {
		return nil, store.Wrap(store.OpSubdirs, p, store.ErrNoSuchFile)
	}
	_, dirs := split(m)
	return store.ChildDirs(p, dirs), nil
}

func (s *Store) FileMetadata(ctx context.Context, path, key string) (string, bool, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return "", false, store.Wrap(store.OpMetadata, path, err)
	}
	v, err := s.rdb.HGet(ctx, s.metaKey(p), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.Wrap(store.OpMetadata, p, err)
	}
	return v, true, nil
}

func (s *Store) SetFileMetadata(ctx context.Context, path, key, value string) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return store.Wrap(store.OpSetMetadata, path, err)
	}
	return store.Wrap(store.OpSetMetadata, p, s.watch(ctx, func(tx *redis.Tx) error {
		kind, err := tx.HGet(ctx, s.key("entries"), p).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if kind != kindFile {
			return store.ErrNoSuchFile
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.metaKey(p), key, value)
			return nil
		})
		return err
	}))
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
	return s.watch(ctx, func(tx *redis.Tx) error {
		m, err := s.entries(ctx, tx)
		if err != nil {
			return err
		}
		if _, ok := m[p]; ok {
			return store.ErrFileAlreadyExists
		}
		dirs, err := missingDirs(m, store.Ancestors(p))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, d := range dirs {
				pipe.HSet(ctx, s.key("entries"), d, kindDir)
			}
			pipe.HSet(ctx, s.key("entries"), p, kindFile)
			pipe.Set(ctx, s.dataKey(p), data, 0)
			pipe.HSet(ctx, s.metaKey(p), store.KeyMimetype, store.Mimetype(p, data))
			return nil
		})
		return err
	})
}

func (s *Store) AddFile(ctx context.Context, fsPath, storePath string) error {
	p, err := store.CleanPath(storePath)
	if err != nil {
		return store.Wrap(store.OpAddFile, storePath, err)
	}
	s.publish(ctx, store.AddStart, fsPath, p)
	defer s.publish(ctx, store.AddEnd, fsPath, p)

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
	return store.Wrap(store.OpMakePath, p, s.watch(ctx, func(tx *redis.Tx) error {
		m, err := s.entries(ctx, tx)
		if err != nil {
			return err
		}
		dirs, err := missingDirs(m, append(store.Ancestors(p), p))
		if err != nil {
			return err
		}
		if len(dirs) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, d := range dirs {
				pipe.HSet(ctx, s.key("entries"), d, kindDir)
			}
			return nil
		})
		return err
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

	return store.Wrap(store.OpMove, from, s.watch(ctx, func(tx *redis.Tx) error {
		m, err := s.entries(ctx, tx)
		if err != nil {
			return err
		}
		switch {
		case m[from] == "":
			return store.ErrNoSuchFile
		case from == to:
			return nil
		case m[to] != "":
			return store.ErrFileAlreadyExists
		case tree.IsWithin(to, from):
			return store.ErrInvalidPath
		}
		dirs, err := missingDirs(m, store.Ancestors(to))
		if err != nil {
			return err
		}
		moved := lo.PickBy(m, func(p, _ string) bool { return tree.IsWithin(p, from) })

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, d := range dirs {
				pipe.HSet(ctx, s.key("entries"), d, kindDir)
			}
			for p, kind := range moved {
				dst := to + strings.TrimPrefix(p, from)
				pipe.HDel(ctx, s.key("entries"), p)
				pipe.HSet(ctx, s.key("entries"), dst, kind)
				if kind == kindFile {
					pipe.Rename(ctx, s.dataKey(p), s.dataKey(dst))
					pipe.Rename(ctx, s.metaKey(p), s.metaKey(dst))
				}
			}
			return nil
		})
		return err
	}))
}

func (s *Store) Remove(ctx context.Context, path string) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return store.Wrap(store.OpRemove, path, err)
	}
	return store.Wrap(store.OpRemove, p, s.watch(ctx, func(tx *redis.Tx) error {
		m, err := s.entries(ctx, tx)
		if err != nil {
			return err
		}
		if p != tree.RootPath && m[p] == "" {
			return store.ErrNoSuchFile
		}
		doomed := lo.PickBy(m, func(e, _ string) bool { return tree.IsWithin(e, p) })
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for e, kind := range doomed {
				pipe.HDel(ctx, s.key("entries"), e)
				if kind == kindFile {
					pipe.Del(ctx, s.dataKey(e), s.metaKey(e))
				}
			}
			return nil
		})
		return err
	}))
}

func (s *Store) FileSize(ctx context.Context, path string) (int64, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return 0, store.Wrap(store.OpSize, path, err)
	}
	kind, err := s.rdb.HGet(ctx, s.key("entries"), p).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, store.Wrap(store.OpSize, p, err)
	}
	if kind != kindFile {
		return 0, store.Wrap(store.OpSize, p, store.ErrNoSuchFile)
	}
	n, err := s.rdb.StrLen(ctx, s.dataKey(p)).Result()
	return n, store.Wrap(store.OpSize, p, err)
}

func (s *Store) DecryptFile(ctx context.Context, path string) ([]byte, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return nil, store.Wrap(store.OpDecrypt, path, err)
	}
	if n, err := s.FileSize(ctx, p); err != nil {
		return nil, err
	} else if n > s.maxInMemory {
		return nil, store.Wrap(store.OpDecrypt, p, store.ErrFileTooLarge)
	}
	data, err := s.read(ctx, p)
	return data, store.Wrap(store.OpDecrypt, p, err)
}

func (s *Store) DecryptFileTo(ctx context.Context, storePath, fsPath string) error {
	p, err := store.CleanPath(storePath)
	if err != nil {
		return store.Wrap(store.OpDecryptTo, storePath, err)
	}
	s.publish(ctx, store.DecryptStart, fsPath, p)
	defer s.publish(ctx, store.DecryptEnd, fsPath, p)

	data, err := s.read(ctx, p)
	if err != nil {
		return store.Wrap(store.OpDecryptTo, p, err)
	}
	return store.Wrap(store.OpDecryptTo, fsPath, store.WriteLocal(s.fs, fsPath, data))
}

func (s *Store) read(ctx context.Context, p string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.dataKey(p)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNoSuchFile
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCantOpenFile, err)
	}
	return data, nil
}

// watch runs fn in an optimistic transaction on the entries hash,
// retrying when another client changed it concurrently.
func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, s.key("entries"))
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		logging.Sub("redis").Debug("transaction conflict, retrying", "attempt", i+1)
	}
	return fmt.Errorf("entries changed concurrently %d times: %w", maxTxRetries, redis.TxFailedErr)
}

// missingDirs returns the directories in want that do not exist yet.
// A file in the way is store.ErrFileAlreadyExists.
func missingDirs(m map[string]string, want []string) ([]string, error) {
	var out []string
	for _, d := range want {
		switch m[d] {
		case kindFile:
			return nil, store.ErrFileAlreadyExists
		case "":
			out = append(out, d)
		}
	}
	return out, nil
}

func split(m map[string]string) (files, dirs []string) {
	for p, kind := range m {
		if kind == kindDir {
			dirs = append(dirs, p)
		} else {
			files = append(files, p)
		}
	}
	return files, dirs
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.Notifier = (*Store)(nil)
)
