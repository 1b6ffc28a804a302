package tree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(path, kind string, children ...*FileNode) *FileNode {
	return &FileNode{Path: path, Name: Base(path), Kind: kind, Children: children}
}

func sample() *FileNode {
	root := NewRoot()
	root.Children = []*FileNode{
		node("/a", DirKind,
			node("/a/b.txt", "text/plain"),
			node("/a/c", DirKind, node("/a/c/d.txt", "text/plain")),
			node("/a/pic.png", "image/png"),
		),
		node("/z.mp4", "video/mp4"),
	}
	return root
}

func TestSorted_KindThenName(t *testing.T) {
	dir := &FileNode{Path: "/", Kind: DirKind, Children: []*FileNode{
		node("/b.txt", "text/plain"),
		node("/a.png", "image/png"),
		node("/zdir", DirKind),
		node("/a.txt", "text/plain"),
		node("/adir", DirKind),
	}}

	got := SortedPaths(dir)
	assert.Equal(t, []string{"/a.png", "/adir", "/zdir", "/a.txt", "/b.txt"}, got)
	assert.Equal(t, got, SortedPaths(dir), "order must be stable across calls")
	assert.Equal(t, "/b.txt", dir.Children[0].Path, "input must not be reordered")
}

func TestFindByPath(t *testing.T) {
	root := sample()
	assert.Same(t, root, FindByPath(root, "/"))
	require.NotNil(t, FindByPath(root, "/a/c/d.txt"))
	assert.Equal(t, "d.txt", FindByPath(root, "/a/c/d.txt").Name)
	assert.Nil(t, FindByPath(root, "/a/missing"))
	assert.Nil(t, FindByPath(nil, "/"))
}

func TestFlattenAndCount(t *testing.T) {
	root := sample()
	flat := Flatten(root)
	assert.Len(t, flat, 7)
	assert.Equal(t, 7, CountNodes(root))
	assert.Contains(t, flat, "/a/c")
}

func TestLeaves(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{"/a/b.txt", "/a/c/d.txt", "/a/pic.png", "/z.mp4"},
		Leaves(sample()))
	assert.Empty(t, Leaves(NewRoot()))
}

func TestDirsOnly_DoesNotTouchSource(t *testing.T) {
	root := sample()
	dirs := DirsOnly(root)

	assert.Equal(t, 3, CountNodes(dirs))
	assert.NotNil(t, FindByPath(dirs, "/a/c"))
	assert.Nil(t, FindByPath(dirs, "/a/b.txt"))
	assert.Equal(t, 7, CountNodes(root))
}

func TestClone_IsDeep(t *testing.T) {
	root := sample()
	c := Clone(root)
	c.Children[0].Children = nil
	assert.Len(t, root.Children[0].Children, 3)
}

func TestImages(t *testing.T) {
	assert.Equal(t, []string{"/a/pic.png"}, Images(FindByPath(sample(), "/a")))
}

func TestIndex_Nearest(t *testing.T) {
	idx := NewIndex(sample())
	assert.True(t, idx.Has("/a/c"))
	assert.Equal(t, 7, idx.Len())
	assert.Equal(t, "/a/c", idx.Nearest("/a/c/gone/deeper").Path)
	assert.Equal(t, "/", idx.Nearest("/nope").Path)
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Segments("/a//b/"))
	assert.Equal(t, "b", Base("/a/b"))
	assert.Equal(t, "", Base("/"))
	assert.Equal(t, "/a", Dir("/a/b"))
	assert.Equal(t, "/", Dir("/a"))
	assert.Equal(t, "/", Dir("/"))
	assert.Equal(t, "/a/b", Join("/a/", "/b"))
	assert.True(t, IsWithin("/a/b", "/a"))
	assert.False(t, IsWithin("/ab", "/a"))
	assert.True(t, IsWithin("/x", "/"))
}

func TestAppendPath(t *testing.T) {
	cases := []struct {
		dir, name, want string
		err             bool
	}{
		{"/", "file.txt", "/file.txt", false},
		{"/a", "b.txt", "/a/b.txt", false},
		{"/a/", "b.txt", "/a/b.txt", false},
		{"/a", "we/ird:na*me?.txt", "/a/weirdname.txt", false},
		{"/a", "trailing. ", "/a/trailing", false},
		{"/a", "", "", true},
		{"/a", "///", "", true},
		{"/a", "..", "", true},
		{"/a", "CON", "", true},
		{"/a", "tab\there", "/a/tabhere", false},
	}
	for _, tc := range cases {
		got, err := AppendPath(tc.dir, tc.name)
		if tc.err {
			assert.ErrorIs(t, err, ErrInvalidFilename, "name %q", tc.name)
			continue
		}
		require.NoError(t, err, "name %q", tc.name)
		assert.Equal(t, tc.want, got)
	}
}

func TestSanitize_LongNameKeepsValidUTF8(t *testing.T) {
	s := Sanitize(strings.Repeat("é", 200))
	assert.LessOrEqual(t, len(s), 255)
	assert.True(t, strings.HasPrefix(strings.Repeat("é", 200), s))
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, node("/d", DirKind).IsDir())
	assert.True(t, node("/i", "image/jpeg").IsImage())
	assert.True(t, node("/v", "video/mp4").IsVideo())
	assert.True(t, node("/s", "audio/ogg").IsAudio())
	assert.True(t, node("/t", "text/plain").IsText())
	assert.True(t, node("/j", "application/json").IsText())
	assert.False(t, node("/p", "application/pdf").IsText())
	assert.False(t, node("/d", DirKind).IsText())
}

func TestModeForMime(t *testing.T) {
	assert.Equal(t, "c_cpp", ModeForMime("text/x-c++src"))
	assert.Equal(t, "r", ModeForMime("text/x-rsrc"))
	assert.Equal(t, "d", ModeForMime("text/x-d"))
	assert.Equal(t, "json", ModeForMime("application/json"))
	assert.Equal(t, "javascript", ModeForMime("application/javascript"))
	assert.Equal(t, "python", ModeForMime("text/x-python"))
	assert.Equal(t, PlainText, ModeForMime("application/octet-stream"))
	assert.Equal(t, PlainText, ModeForMime("audio/ogg"))
	assert.Equal(t, PlainText, ModeForMime(""))
}
