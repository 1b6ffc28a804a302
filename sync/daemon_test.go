package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidstore/storesync/store"
	"github.com/voidstore/storesync/tree"
)

func setupTestDaemon(t *testing.T) (*Daemon, string) {
	t.Helper()
	inbox := filepath.Join(t.TempDir(), "inbox")
	require.NoError(t, os.MkdirAll(inbox, 0o755))

	st := store.NewMemory()
	s := New(st, Options{Debounce: 20 * time.Millisecond, TempDir: t.TempDir()})
	im := NewImporter(s, afero.NewOsFs())
	return NewDaemon(s, im, inbox, "/inbox"), inbox
}

func runDaemon(t *testing.T, d *Daemon) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDaemon_ImportsExistingInbox(t *testing.T) {
	d, inbox := setupTestDaemon(t)
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(inbox, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "docs", "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, ".partial"), []byte("p"), 0o644))

	runDaemon(t, d)

	s := d.Synchronizer()
	assert.Eventually(t, func() bool {
		root := s.Tree()
		return tree.FindByPath(root, "/inbox/a.txt") != nil &&
			tree.FindByPath(root, "/inbox/docs/b.txt") != nil
	}, 3*time.Second, 20*time.Millisecond)
	assert.Nil(t, tree.FindByPath(s.Tree(), "/inbox/.partial"))
}

func TestDaemon_WatcherImportsNewFile(t *testing.T) {
	d, inbox := setupTestDaemon(t)
	runDaemon(t, d)

	s := d.Synchronizer()
	assert.Eventually(t, func() bool { return s.Rebuilds() >= 1 }, time.Second, 10*time.Millisecond)

	// Give the watcher time to register the inbox.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "new.md"), []byte("# new"), 0o644))

	assert.Eventually(t, func() bool {
		return tree.FindByPath(s.Tree(), "/inbox/new.md") != nil
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "new.md"), []byte("# newer"), 0o644))
	assert.Eventually(t, func() bool {
		data, err := s.ReadFile(context.Background(), "/inbox/new.md")
		return err == nil && string(data) == "# newer"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDaemon_NoInbox(t *testing.T) {
	st := store.NewMemory()
	s := New(st, Options{})
	d := NewDaemon(s, NewImporter(s, afero.NewMemMapFs()), "", "")
	runDaemon(t, d)
	assert.Eventually(t, func() bool { return st.Calls(store.OpList) == 1 }, time.Second, 10*time.Millisecond)
}
