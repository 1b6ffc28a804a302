package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidstore/storesync/store"
	"github.com/voidstore/storesync/store/storetest"
)

func setupTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "store.db")
	s, err := Open(dbPath, "pswd", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dbPath
}

func TestSQLite_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := setupTestStore(t)
		return s
	})
}

func TestSQLite_ReopenKeepsContent(t *testing.T) {
	ctx := context.Background()
	s, dbPath := setupTestStore(t)
	require.NoError(t, s.AddFileFromData(ctx, "/hello.rb", []byte("puts 'hi'")))
	require.NoError(t, s.SetFileMetadata(ctx, "/hello.rb", store.KeyComments, "greeting"))
	require.NoError(t, s.Close())

	s2, err := Open(dbPath, "pswd")
	require.NoError(t, err)
	defer s2.Close()

	data, err := s2.DecryptFile(ctx, "/hello.rb")
	require.NoError(t, err)
	assert.Equal(t, "puts 'hi'", string(data))

	v, ok, err := s2.FileMetadata(ctx, "/hello.rb", store.KeyComments)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "greeting", v)
}

func TestSQLite_WrongPassword(t *testing.T) {
	s, dbPath := setupTestStore(t)
	require.NoError(t, s.Close())

	_, err := Open(dbPath, "not the password")
	assert.ErrorIs(t, err, store.ErrWrongChecksum)
}

func TestSQLite_ContentIsSealed(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)
	require.NoError(t, s.AddFileFromData(ctx, "/secret.txt", []byte("plaintext secret")))

	var raw []byte
	require.NoError(t, s.db.QueryRow(`SELECT data FROM entries WHERE path = '/secret.txt'`).Scan(&raw))
	assert.NotContains(t, string(raw), "plaintext secret")

	_, err := s.db.Exec(`UPDATE entries SET nonce = zeroblob(24) WHERE path = '/secret.txt'`)
	require.NoError(t, err)
	_, err = s.DecryptFile(ctx, "/secret.txt")
	assert.ErrorIs(t, err, store.ErrWrongChecksum)
}

func TestSQLite_MoveKeepsMetadata(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)
	require.NoError(t, s.AddFileFromData(ctx, "/a/x.txt", []byte("x")))
	require.NoError(t, s.SetFileMetadata(ctx, "/a/x.txt", store.KeyTags, `["t"]`))

	require.NoError(t, s.Move(ctx, "/a", "/b"))
	v, ok, err := s.FileMetadata(ctx, "/b/x.txt", store.KeyTags)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `["t"]`, v)

	_, ok, err = s.FileMetadata(ctx, "/a/x.txt", store.KeyTags)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_AddFileAndExport(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/doc.md", []byte("# doc"), 0o644))
	s, _ := setupTestStore(t, WithFs(fs))

	sub := s.Subscribe()
	defer sub.Cancel()

	require.NoError(t, s.AddFile(ctx, "/src/doc.md", "/docs/doc.md"))
	assert.Equal(t, store.AddEnd, (<-sub.C()).Type)

	v, _, err := s.FileMetadata(ctx, "/docs/doc.md", store.KeyMimetype)
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", v)

	require.NoError(t, s.DecryptFileTo(ctx, "/docs/doc.md", "/out/doc.md"))
	assert.Equal(t, store.DecryptEnd, (<-sub.C()).Type)
	data, err := afero.ReadFile(fs, "/out/doc.md")
	require.NoError(t, err)
	assert.Equal(t, "# doc", string(data))
}

func TestSQLite_FileTooLarge(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t, WithMaxInMemory(2))
	require.NoError(t, s.AddFileFromData(ctx, "/big.bin", []byte("abc")))
	_, err := s.DecryptFile(ctx, "/big.bin")
	assert.ErrorIs(t, err, store.ErrFileTooLarge)
}
