package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/voidstore/storesync/store"
	"github.com/voidstore/storesync/store/redisstore"
	"github.com/voidstore/storesync/store/sqlite"
	storesync "github.com/voidstore/storesync/sync"
)

// storeKind is the backend named by a store URL.
type storeKind string

const (
	kindMemory storeKind = "memory"
	kindSQLite storeKind = "sqlite"
	kindRedis  storeKind = "redis"
)

// parseStoreURL splits a store URL into its backend and location:
// "memory:", "sqlite://<path>" or "redis://<addr>/<db>".
func parseStoreURL(raw string) (storeKind, string, error) {
	switch {
	case raw == "memory:" || raw == "memory://":
		return kindMemory, "", nil
	case strings.HasPrefix(raw, "sqlite://"):
		p := strings.TrimPrefix(raw, "sqlite://")
		if p == "" {
			return "", "", fmt.Errorf("store %q: missing database path", raw)
		}
		expanded, err := homedir.Expand(p)
		if err != nil {
			return "", "", fmt.Errorf("store %q: %w", raw, err)
		}
		return kindSQLite, expanded, nil
	case strings.HasPrefix(raw, "redis://"), strings.HasPrefix(raw, "rediss://"):
		return kindRedis, raw, nil
	}
	return "", "", fmt.Errorf("store %q: unsupported scheme, want memory:, sqlite:// or redis://", raw)
}

func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	kind, loc, err := parseStoreURL(cfg.Store)
	if err != nil {
		return nil, err
	}
	switch kind {
	case kindMemory:
		return store.NewMemory(), nil
	case kindSQLite:
		if cfg.Password == "" {
			return nil, fmt.Errorf("sqlite store needs a password (--password or %s_PASSWORD)", EnvPrefix)
		}
		if err := os.MkdirAll(filepath.Dir(loc), 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		st, err := sqlite.Open(loc, cfg.Password)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		st, err := redisstore.Open(ctx, loc)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

func newSynchronizer(st store.Store, cfg Config) *storesync.Synchronizer {
	return storesync.New(st, storesync.Options{
		Debounce:         cfg.Debounce,
		FetchConcurrency: cfg.FetchConcurrency,
	})
}

// session opens the configured store and loads its tree once. The
// returned close func releases both.
func session(ctx context.Context, cfg Config) (*storesync.Synchronizer, func(), error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	s := newSynchronizer(st, cfg)
	closeAll := func() {
		s.Close()
		st.Close() //nolint:errcheck
	}
	if err := s.Refresh(ctx); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("load tree: %w", err)
	}
	return s, closeAll, nil
}
