package sync

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidstore/storesync/store"
	"github.com/voidstore/storesync/tree"
)

func setupTestImporter(t *testing.T) (*Importer, *Synchronizer, *store.Memory, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/home/photos/" + IgnoreFile: "*.tmp\n",
		"/home/photos/a.jpg":         "a",
		"/home/photos/b.tmp":         "b",
		"/home/photos/trip/c.jpg":    "c",
		"/home/photos/trip/d.png":    "d",
		"/home/photos/.hidden":       "h",
	}
	for p, data := range files {
		require.NoError(t, afero.WriteFile(fs, p, []byte(data), 0o644))
	}
	require.NoError(t, fs.MkdirAll("/home/photos/empty", 0o755))

	st := store.NewMemory(store.WithFs(fs))
	s := setupTestSync(t, st, Options{FS: fs, Debounce: 20 * time.Millisecond})
	return NewImporter(s, fs), s, st, fs
}

func TestStorePathFor(t *testing.T) {
	p, err := storePathFor("/dst", "a/b c/d.txt")
	require.NoError(t, err)
	assert.Equal(t, "/dst/a/b c/d.txt", p)

	p, err = storePathFor("/", "x:y.txt")
	require.NoError(t, err)
	assert.Equal(t, "/xy.txt", p)

	_, err = storePathFor("/", "..")
	assert.ErrorIs(t, err, tree.ErrInvalidFilename)
}

func TestImporter_AddFolderQueues(t *testing.T) {
	ctx := context.Background()
	im, _, st, _ := setupTestImporter(t)

	n, err := im.AddFolder(ctx, "/home/photos", "/backup")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, im.Queue().Len())
	assert.True(t, im.Queue().Has("/backup/photos/trip/c.jpg"))
	assert.False(t, im.Queue().Has("/backup/photos/b.tmp"))

	dirs, err := st.ListSubdirectories(ctx, "/backup/photos")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/backup/photos/empty", "/backup/photos/trip"}, dirs)
}

func TestImporter_AddFolderNotADirectory(t *testing.T) {
	im, _, _, _ := setupTestImporter(t)
	_, err := im.AddFolder(context.Background(), "/home/photos/a.jpg", "/")
	assert.Error(t, err)

	_, err = im.AddFolder(context.Background(), "/home/none", "/")
	assert.ErrorIs(t, err, store.ErrCantOpenFile)
}

func TestImporter_RunImportsAndRebuildsOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	im, s, st, _ := setupTestImporter(t)
	s.Start(ctx)

	_, err := im.AddFolder(ctx, "/home/photos", "/")
	require.NoError(t, err)
	go im.Run(ctx)

	assert.Eventually(t, func() bool {
		imported, _ := im.Stats()
		return imported == 3
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return tree.FindByPath(s.Tree(), "/photos/trip/d.png") != nil
	}, time.Second, 5*time.Millisecond)

	assert.NotNil(t, tree.FindByPath(s.Tree(), "/photos/empty"))
	assert.Nil(t, tree.FindByPath(s.Tree(), "/photos/b.tmp"))
	assert.LessOrEqual(t, st.Calls(store.OpList), 4)
}

func TestImporter_OverwriteAndFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	im, _, st, fs := setupTestImporter(t)
	seed(t, st, "/a.jpg")

	im.Queue().Push(ImportJob{FSPath: "/home/photos/a.jpg", StorePath: "/a.jpg", Overwrite: true})
	im.Queue().Push(ImportJob{FSPath: "/home/photos/trip/c.jpg", StorePath: "/a.jpg/c.jpg"})
	go im.Run(ctx)

	assert.Eventually(t, func() bool {
		imported, failed := im.Stats()
		return imported == 1 && failed == 1
	}, time.Second, 5*time.Millisecond)

	data, err := st.DecryptFile(ctx, "/a.jpg")
	require.NoError(t, err)
	want, _ := afero.ReadFile(fs, "/home/photos/a.jpg")
	assert.Equal(t, want, data)
}
