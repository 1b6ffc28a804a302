package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidstore/storesync/store"
	"github.com/voidstore/storesync/tree"
)

// setupCLI points the command line at a fresh sqlite store and returns a
// scratch directory for local files.
func setupCLI(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("STORESYNC_STORE", "sqlite://"+filepath.Join(home, "store", "store.db"))
	t.Setenv("STORESYNC_PASSWORD", "pswd")
	t.Setenv("STORESYNC_DEBOUNCE", "10ms")
	return home
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, "", args...)
	require.NoError(t, err, "storesync %s", strings.Join(args, " "))
	return out
}

func writeLocal(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCLI_MkdirPutLsTree(t *testing.T) {
	home := setupCLI(t)
	local := writeLocal(t, filepath.Join(home, "notes.md"), "# hi")

	mustRun(t, "mkdir", "/Docs")
	assert.Equal(t, "/Docs/notes.md\n", mustRun(t, "put", local, "/Docs"))

	assert.Equal(t, "/Docs\n", mustRun(t, "ls"))
	assert.Equal(t, "/Docs/notes.md\n", mustRun(t, "ls", "/Docs"))
	assert.Contains(t, mustRun(t, "ls", "-l", "/"), tree.DirKind)

	assert.Equal(t, "Store\n  Docs/\n    notes.md\n", mustRun(t, "tree"))
	assert.Equal(t, "Docs/\n", mustRun(t, "tree", "/Docs", "--dirs"))

	var root tree.FileNode
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "tree", "--format", "json")), &root))
	require.Len(t, root.Children, 1)
	assert.Equal(t, "/Docs", root.Children[0].Path)
	require.Len(t, root.Children[0].Children, 1)
	assert.Equal(t, "notes.md", root.Children[0].Children[0].Name)

	assert.Contains(t, mustRun(t, "tree", "-f", "yaml"), "name: Docs")

	_, err := runCLI(t, "", "tree", "--format", "xml")
	assert.Error(t, err)
}

func TestCLI_MoveIntoDirectoryAndCat(t *testing.T) {
	home := setupCLI(t)
	local := writeLocal(t, filepath.Join(home, "f.txt"), "hello")

	mustRun(t, "mkdir", "/A")
	mustRun(t, "put", local)
	assert.Equal(t, "/f.txt -> /A/f.txt\n", mustRun(t, "mv", "/f.txt", "/A"))
	assert.Equal(t, "/A/f.txt -> /A/g.txt\n", mustRun(t, "mv", "/A/f.txt", "/A/g.txt"))
	assert.Equal(t, "hello", mustRun(t, "cat", "/A/g.txt"))

	_, err := runCLI(t, "", "cat", "/A")
	assert.Error(t, err)
}

func TestCLI_RemoveAsksFirst(t *testing.T) {
	home := setupCLI(t)
	mustRun(t, "put", writeLocal(t, filepath.Join(home, "f.txt"), "x"))

	out, err := runCLI(t, "n\n", "rm", "/f.txt")
	require.NoError(t, err)
	assert.NotContains(t, out, "removed")
	assert.Equal(t, "/f.txt\n", mustRun(t, "ls"))

	out, err = runCLI(t, "y\n", "rm", "/f.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "removed /f.txt")
	assert.Empty(t, mustRun(t, "ls"))

	_, err = runCLI(t, "", "rm", "--yes", "/f.txt")
	assert.ErrorIs(t, err, store.ErrNoSuchFile)
}

func TestCLI_GetExportsDirectories(t *testing.T) {
	home := setupCLI(t)
	mustRun(t, "mkdir", "/Docs/sub")
	mustRun(t, "put", writeLocal(t, filepath.Join(home, "a.txt"), "a"), "/Docs")
	mustRun(t, "put", writeLocal(t, filepath.Join(home, "b.txt"), "b"), "/Docs/sub")

	dest := filepath.Join(home, "out")
	out := mustRun(t, "get", "/Docs", "--dest", dest)
	assert.Contains(t, out, filepath.Join(dest, "Docs", "a.txt"))

	data, err := os.ReadFile(filepath.Join(dest, "Docs", "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	// Exporting again never overwrites.
	out = mustRun(t, "get", "/Docs/a.txt", "--dest", filepath.Join(dest, "Docs"))
	assert.Equal(t, filepath.Join(dest, "Docs", "a_conflict-1.txt")+"\n", out)
}

func TestCLI_OpenDecryptsToTemp(t *testing.T) {
	home := setupCLI(t)
	t.Setenv("TMPDIR", t.TempDir())
	mustRun(t, "put", writeLocal(t, filepath.Join(home, "f.txt"), "secret"))

	p := strings.TrimSpace(mustRun(t, "open", "/f.txt"))
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(data))
}

func TestCLI_ImportFolder(t *testing.T) {
	home := setupCLI(t)
	trip := filepath.Join(home, "trip")
	writeLocal(t, filepath.Join(trip, ".storeignore"), "*.tmp\n")
	writeLocal(t, filepath.Join(trip, "a.jpg"), "jpg")
	writeLocal(t, filepath.Join(trip, "c.tmp"), "tmp")
	writeLocal(t, filepath.Join(trip, "sub", "b.txt"), "txt")

	assert.Equal(t, "imported 2 files\n", mustRun(t, "import", trip, "/Photos"))
	assert.Equal(t, "/Photos/trip/a.jpg\n/Photos/trip/sub\n", mustRun(t, "ls", "/Photos/trip"))
	assert.Equal(t, "txt", mustRun(t, "cat", "/Photos/trip/sub/b.txt"))
}

func TestCLI_TagAndInfo(t *testing.T) {
	home := setupCLI(t)
	mustRun(t, "put", writeLocal(t, filepath.Join(home, "f.txt"), "0123456789"))

	assert.Equal(t, "holiday\n", mustRun(t, "tag", "/f.txt", "holiday"))
	assert.Equal(t, "holiday, beach\n", mustRun(t, "tag", "/f.txt", "beach"))
	assert.Equal(t, "beach\n", mustRun(t, "tag", "/f.txt", "holiday", "--remove"))
	mustRun(t, "tag", "/f.txt", "--comment", "day one")

	out := mustRun(t, "info", "/f.txt")
	assert.Contains(t, out, "size:     10 B")
	assert.Contains(t, out, "tags:     beach")
	assert.Contains(t, out, "comments: day one")
}

func TestCLI_Errors(t *testing.T) {
	setupCLI(t)

	_, err := runCLI(t, "", "ls", "/nope")
	assert.ErrorIs(t, err, store.ErrNoSuchFile)

	_, err = runCLI(t, "", "mv", "/nope", "/x")
	assert.ErrorIs(t, err, store.ErrNoSuchFile)

	t.Setenv("STORESYNC_PASSWORD", "")
	_, err = runCLI(t, "", "ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")

	_, err = runCLI(t, "", "ls", "--store", "ftp://x")
	assert.Error(t, err)
}
