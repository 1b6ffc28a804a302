// Package storetest holds the behaviour every store.Store backend must
// share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidstore/storesync/store"
)

// Run exercises st against the common store contract. newStore must
// return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("EmptyListsRoot", func(t *testing.T) {
		st := newStore(t)
		got, err := st.ListAllEntries(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"/"}, got)
	})

	t.Run("ListFilesAndEmptyDirs", func(t *testing.T) {
		ctx := context.Background()
		st := newStore(t)
		require.NoError(t, st.AddFileFromData(ctx, "/a/b.txt", []byte("b")))
		require.NoError(t, st.AddFileFromData(ctx, "/a/c/d.txt", []byte("d")))
		require.NoError(t, st.MakePath(ctx, "/empty/inner"))
		require.NoError(t, st.AddFileFromData(ctx, "/f10.txt", nil))
		require.NoError(t, st.AddFileFromData(ctx, "/f9.txt", nil))

		got, err := st.ListAllEntries(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/a/b.txt", "/a/c/d.txt", "/empty/inner", "/f9.txt", "/f10.txt"}, got)

		subs, err := st.ListSubdirectories(ctx, "/")
		require.NoError(t, err)
		assert.Equal(t, []string{"/a", "/empty"}, subs)
	})

	t.Run("RenameScenario", func(t *testing.T) {
		ctx := context.Background()
		st := newStore(t)
		require.NoError(t, st.AddFileFromData(ctx, "/a/b.txt", []byte("b")))
		require.NoError(t, st.AddFileFromData(ctx, "/a/c/d.txt", []byte("d")))

		require.NoError(t, st.Move(ctx, "/a/b.txt", "/a/e.txt"))
		got, err := st.ListAllEntries(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"/a/e.txt", "/a/c/d.txt"}, got)

		data, err := st.DecryptFile(ctx, "/a/e.txt")
		require.NoError(t, err)
		assert.Equal(t, "b", string(data))
	})

	t.Run("MoveDirectory", func(t *testing.T) {
		ctx := context.Background()
		st := newStore(t)
		require.NoError(t, st.AddFileFromData(ctx, "/a/x.txt", []byte("x")))
		require.NoError(t, st.AddFileFromData(ctx, "/a/sub/y.txt", []byte("y")))

		require.NoError(t, st.Move(ctx, "/a", "/b/a2"))
		got, err := st.ListAllEntries(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/b/a2/sub/y.txt", "/b/a2/x.txt"}, got)

		v, ok, err := st.FileMetadata(ctx, "/b/a2/x.txt", store.KeyMimetype)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "text/plain", v)
	})

	t.Run("MoveErrors", func(t *testing.T) {
		ctx := context.Background()
		st := newStore(t)
		require.NoError(t, st.AddFileFromData(ctx, "/a.txt", nil))
		require.NoError(t, st.AddFileFromData(ctx, "/b.txt", nil))

		assert.ErrorIs(t, st.Move(ctx, "/missing", "/x"), store.ErrNoSuchFile)
		assert.ErrorIs(t, st.Move(ctx, "/a.txt", "/b.txt"), store.ErrFileAlreadyExists)
		assert.NoError(t, st.Move(ctx, "/a.txt", "/a.txt"))
	})

	t.Run("AddConflicts", func(t *testing.T) {
		ctx := context.Background()
		st := newStore(t)
		require.NoError(t, st.AddFileFromData(ctx, "/file", []byte("x")))

		assert.ErrorIs(t, st.AddFileFromData(ctx, "/file", nil), store.ErrFileAlreadyExists)
		assert.ErrorIs(t, st.MakePath(ctx, "/file"), store.ErrFileAlreadyExists)
		assert.ErrorIs(t, st.MakePath(ctx, "/file/other"), store.ErrFileAlreadyExists)
		assert.ErrorIs(t, st.AddFileFromData(ctx, "relative", nil), store.ErrInvalidPath)
	})

	t.Run("RemoveRecursive", func(t *testing.T) {
		ctx := context.Background()
		st := newStore(t)
		require.NoError(t, st.AddFileFromData(ctx, "/a/b/c.txt", nil))
		require.NoError(t, st.AddFileFromData(ctx, "/keep.txt", nil))

		require.NoError(t, st.Remove(ctx, "/a"))
		got, err := st.ListAllEntries(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"/keep.txt"}, got)
		assert.ErrorIs(t, st.Remove(ctx, "/a"), store.ErrNoSuchFile)
	})

	t.Run("Metadata", func(t *testing.T) {
		ctx := context.Background()
		st := newStore(t)
		require.NoError(t, st.AddFileFromData(ctx, "/pic.png", []byte{0x89, 'P', 'N', 'G'}))
		require.NoError(t, st.MakePath(ctx, "/dir"))

		v, ok, err := st.FileMetadata(ctx, "/pic.png", store.KeyMimetype)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "image/png", v)

		_, ok, err = st.FileMetadata(ctx, "/dir", store.KeyMimetype)
		require.NoError(t, err)
		assert.False(t, ok, "directories carry no mimetype")

		_, ok, err = st.FileMetadata(ctx, "/pic.png", store.KeyTags)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, st.SetFileMetadata(ctx, "/pic.png", store.KeyTags, `["x"]`))
		v, ok, err = st.FileMetadata(ctx, "/pic.png", store.KeyTags)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `["x"]`, v)

		assert.ErrorIs(t, st.SetFileMetadata(ctx, "/nope", store.KeyTags, "[]"), store.ErrNoSuchFile)
	})

	t.Run("SizeAndContent", func(t *testing.T) {
		ctx := context.Background()
		st := newStore(t)
		require.NoError(t, st.AddFileFromData(ctx, "/hello.txt", []byte("Hello World")))

		n, err := st.FileSize(ctx, "/hello.txt")
		require.NoError(t, err)
		assert.EqualValues(t, 11, n)

		_, err = st.FileSize(ctx, "/nope")
		assert.ErrorIs(t, err, store.ErrNoSuchFile)
		_, err = st.DecryptFile(ctx, "/nope")
		assert.ErrorIs(t, err, store.ErrNoSuchFile)
	})
}
