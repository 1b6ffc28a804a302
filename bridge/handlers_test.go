package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidstore/storesync/selection"
	"github.com/voidstore/storesync/store"
	storesync "github.com/voidstore/storesync/sync"
	"github.com/voidstore/storesync/tree"
)

func setupHandlersEnv(t *testing.T, paths ...string) (*Handlers, *storesync.Synchronizer, *store.Memory, *httptest.Server) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	for _, p := range paths {
		require.NoError(t, st.AddFileFromData(ctx, p, []byte(p)))
	}
	s := storesync.New(st, storesync.Options{Debounce: 20 * time.Millisecond})
	t.Cleanup(s.Close)
	require.NoError(t, s.Refresh(ctx))

	h := NewHandlers(s, Options{Heartbeat: 50 * time.Millisecond, Layout: selection.Grid})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return h, s, st, srv
}

func post(t *testing.T, srv *httptest.Server, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func get(t *testing.T, srv *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHandleTree(t *testing.T) {
	_, _, _, srv := setupHandlersEnv(t, "/a/b.txt", "/a/c/d.txt")

	var root tree.FileNode
	resp := get(t, srv, "/api/tree", &root)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/", root.Path)
	assert.Equal(t, tree.RootName, root.Name)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "inode/directory", root.Children[0].Kind)
	assert.ElementsMatch(t, []string{"/a/b.txt", "/a/c/d.txt"}, tree.Leaves(&root))
}

func TestHandleDirs(t *testing.T) {
	_, _, _, srv := setupHandlersEnv(t, "/a/b.txt", "/a/c/d.txt")

	var root tree.FileNode
	get(t, srv, "/api/dirs", &root)
	assert.Equal(t, []string{"/a/c"}, tree.Leaves(&root))

	var subdirs map[string][]string
	resp := get(t, srv, "/api/subdirs?path=/a", &subdirs)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"/a/c"}, subdirs["items"])
}

func TestHandleMove(t *testing.T) {
	_, s, st, srv := setupHandlersEnv(t, "/a/b.txt", "/a/x.txt")

	resp, _ := post(t, srv, "/api/move", MoveRequest{From: "/a/b.txt", To: "/a/e.txt"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, tree.FindByPath(s.Tree(), "/a/e.txt"))

	resp, body := post(t, srv, "/api/move", MoveRequest{From: "/a/e.txt", To: "/a/x.txt"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "File already exists.", body["error"])

	resp, body = post(t, srv, "/api/move", MoveRequest{From: "/nope", To: "/a/y.txt"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Selected file does not exist.", body["error"])

	calls := st.Calls(store.OpMove)
	resp, _ = post(t, srv, "/api/move", MoveRequest{From: "relative", To: "/a/y.txt"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = post(t, srv, "/api/move", MoveRequest{From: "/a/x.txt", To: "/a/../y"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, calls, st.Calls(store.OpMove))
}

func TestHandleMutations(t *testing.T) {
	_, s, st, srv := setupHandlersEnv(t)
	ctx := context.Background()

	resp, _ := post(t, srv, "/api/mkdir", PathRequest{Path: "/docs"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = post(t, srv, "/api/file", FileRequest{Path: "/docs/a.txt", Data: "hello"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = post(t, srv, "/api/save", FileRequest{Path: "/docs/a.txt", Data: "bye"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := st.DecryptFile(ctx, "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "bye", string(data))
	assert.NotNil(t, tree.FindByPath(s.Tree(), "/docs/a.txt"))

	resp, _ = post(t, srv, "/api/remove", PathRequest{Path: "/docs"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, s.Tree().Children)

	resp, _ = post(t, srv, "/api/refresh", struct{}{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleBadBody(t *testing.T) {
	_, _, _, srv := setupHandlersEnv(t)
	resp, err := http.Post(srv.URL+"/api/move", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/api/move")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestHandleInfo(t *testing.T) {
	_, _, _, srv := setupHandlersEnv(t, "/notes.md")

	var info map[string]any
	resp := get(t, srv, "/api/info?path=/notes.md", &info)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, len("/notes.md"), info["size"])
	assert.Equal(t, "9 B", info["humanSize"])
	assert.Equal(t, []any{}, info["tags"])

	resp, body := post(t, srv, "/api/info/tags", TagRequest{Path: "/notes.md", Tag: "work"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"work"}, body["tags"])

	resp, _ = post(t, srv, "/api/info/comments", CommentsRequest{Path: "/notes.md", Comments: "draft"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	get(t, srv, "/api/info?path=/notes.md", &info)
	assert.Equal(t, []any{"work"}, info["tags"])
	assert.Equal(t, "draft", info["comments"])

	resp = get(t, srv, "/api/info?path=/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleDecrypt(t *testing.T) {
	_, _, _, srv := setupHandlersEnv(t, "/a.txt")
	dest := t.TempDir()

	resp, body := post(t, srv, "/api/decrypt", DecryptRequest{Paths: []string{"/a.txt"}, Dest: dest})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["written"], 1)

	resp, _ = post(t, srv, "/api/decrypt", DecryptRequest{Paths: []string{"/a.txt"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleFolderDisabled(t *testing.T) {
	_, _, _, srv := setupHandlersEnv(t)
	resp, _ := post(t, srv, "/api/folder", FolderRequest{FSDir: "/tmp", StoreDir: "/"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleKeys(t *testing.T) {
	h, _, _, srv := setupHandlersEnv(t)
	sub := h.Keys().Subscribe()
	defer sub.Cancel()

	resp, _ := post(t, srv, "/api/keys", KeyRequest{Key: "left"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	select {
	case k := <-sub.C():
		assert.Equal(t, selection.KeyLeft, k)
	case <-time.After(time.Second):
		t.Fatal("key not published")
	}

	resp, _ = post(t, srv, "/api/keys", KeyRequest{Key: "space"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleStats(t *testing.T) {
	_, _, _, srv := setupHandlersEnv(t, "/a.txt")
	var stats StatsResponse
	resp := get(t, srv, "/api/stats", &stats)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, stats.Rebuilds)
	assert.Equal(t, 2, stats.Nodes)
	assert.NotNil(t, stats.InProgress)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(tree.ErrInvalidFilename))
	assert.Equal(t, http.StatusForbidden, statusFor(store.Wrap(store.OpMove, "/x", store.ErrPermission)))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(storesync.ErrClosed))
	assert.Equal(t, http.StatusInternalServerError, statusFor(store.ErrWrongChecksum))
}
