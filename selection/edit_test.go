package selection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidstore/storesync/tree"
)

func TestRename(t *testing.T) {
	ctx := context.Background()
	c, ops := setupTestController(t, Options{})
	c.SetPath("/b")

	require.NoError(t, c.Rename(ctx, "/b/y.txt", "z.txt"))
	require.NoError(t, c.Rename(ctx, "/b/y.txt", "y.txt"))
	require.NoError(t, c.Rename(ctx, "/b/y.txt", "we:ird?.txt"))
	assert.Equal(t, []call{
		{op: "move", args: []string{"/b/y.txt", "/b/z.txt"}},
		{op: "move", args: []string{"/b/y.txt", "/b/weird.txt"}},
	}, ops.Calls())
}

func TestRename_InvalidNameNeverReachesStore(t *testing.T) {
	ctx := context.Background()
	c, ops := setupTestController(t, Options{})
	for _, name := range []string{"", "..", "///", "?*:"} {
		err := c.Rename(ctx, "/t.py", name)
		assert.ErrorIs(t, err, tree.ErrInvalidFilename, "name %q", name)
	}
	_, err := c.NewDir(ctx, "")
	assert.ErrorIs(t, err, tree.ErrInvalidFilename)
	_, err = c.NewFile(ctx, "|")
	assert.ErrorIs(t, err, tree.ErrInvalidFilename)
	assert.Empty(t, ops.Calls())
}

func TestNewFileAndDir(t *testing.T) {
	ctx := context.Background()
	c, ops := setupTestController(t, Options{})
	c.SetPath("/a")

	p, err := c.NewFile(ctx, "notes.md")
	require.NoError(t, err)
	assert.Equal(t, "/a/notes.md", p)
	p, err = c.NewDir(ctx, "photos")
	require.NoError(t, err)
	assert.Equal(t, "/a/photos", p)

	assert.Equal(t, []call{
		{op: "file", args: []string{"/a/notes.md"}},
		{op: "dir", args: []string{"/a/photos"}},
	}, ops.Calls())
}

func TestRemoveSelected(t *testing.T) {
	ctx := context.Background()
	c, ops := setupTestController(t, Options{})
	c.ClickOn("/a", Modifiers{})
	c.ClickOn("/t.py", Modifiers{Ctrl: true})

	require.NoError(t, c.RemoveSelected(ctx, func() bool { return false }))
	assert.Empty(t, ops.Calls())

	ops.err = errors.New("busy")
	err := c.RemoveSelected(ctx, func() bool { return true })
	require.Error(t, err)
	assert.Len(t, ops.Calls(), 2)

	empty := New(ops, Options{})
	assert.NoError(t, empty.RemoveSelected(ctx, nil))
	assert.Len(t, ops.Calls(), 2)
}
