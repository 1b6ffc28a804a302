package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidstore/storesync/selection"
	storesync "github.com/voidstore/storesync/sync"
)

func TestParseStoreURL(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		raw     string
		kind    storeKind
		loc     string
		wantErr bool
	}{
		{raw: "memory:", kind: kindMemory},
		{raw: "memory://", kind: kindMemory},
		{raw: "sqlite:///var/lib/s.db", kind: kindSQLite, loc: "/var/lib/s.db"},
		{raw: "sqlite://~/s.db", kind: kindSQLite, loc: filepath.Join(home, "s.db")},
		{raw: "redis://localhost:6379/2", kind: kindRedis, loc: "redis://localhost:6379/2"},
		{raw: "rediss://cache:6380/0", kind: kindRedis, loc: "rediss://cache:6380/0"},
		{raw: "sqlite://", wantErr: true},
		{raw: "s3://bucket", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			kind, loc, err := parseStoreURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.loc, loc)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	v, err := newViper("")
	require.NoError(t, err)
	cfg, err := loadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, defaultStore, cfg.Store)
	assert.Equal(t, storesync.DefaultDebounce, cfg.Debounce)
	assert.Equal(t, storesync.DefaultFetchConcurrency, cfg.FetchConcurrency)
	assert.Equal(t, selection.Grid, cfg.Layout)
	assert.Equal(t, selection.DefaultRowWidth, cfg.RowWidth)
	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, "/Inbox", cfg.InboxDir)
}

func TestConfig_Precedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	file := filepath.Join(home, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte(
		"store: \"memory:\"\ndebounce: 1s\nrow-width: 4\nlayout: list\nlog-dir: ~/logs\n"), 0o600))
	t.Setenv("STORESYNC_ROW_WIDTH", "6")
	t.Setenv("STORESYNC_FETCH_CONCURRENCY", "3")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("row-width", 0, "")
	flags.Duration("debounce", 0, "")
	require.NoError(t, flags.Parse([]string{"--row-width=5"}))

	v, err := newViper(file)
	require.NoError(t, err)
	require.NoError(t, bindFlags(v, flags))
	cfg, err := loadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "memory:", cfg.Store)
	assert.Equal(t, time.Second, cfg.Debounce, "unset flag falls through to the file")
	assert.Equal(t, 5, cfg.RowWidth, "set flag beats env and file")
	assert.Equal(t, 3, cfg.FetchConcurrency)
	assert.Equal(t, selection.List, cfg.Layout)
	assert.Equal(t, filepath.Join(home, "logs"), cfg.LogDir)
}

func TestConfig_MissingExplicitFile(t *testing.T) {
	_, err := newViper(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_RejectsNonPositive(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	for _, env := range []string{"STORESYNC_DEBOUNCE=-1s", "STORESYNC_FETCH_CONCURRENCY=0", "STORESYNC_ROW_WIDTH=-2"} {
		t.Run(env, func(t *testing.T) {
			k, val, _ := strings.Cut(env, "=")
			t.Setenv(k, val)
			v, err := newViper("")
			require.NoError(t, err)
			_, err = loadConfig(v)
			assert.Error(t, err)
		})
	}
}

