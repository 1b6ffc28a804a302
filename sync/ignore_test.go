package sync

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnore_Patterns(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/"+IgnoreFile, []byte("# build output\n*.tmp\nbuild/\n\n"), 0o644))

	ig := LoadIgnore(fs, "/src/"+IgnoreFile)
	assert.True(t, ig.IsIgnored("scratch.tmp", false))
	assert.True(t, ig.IsIgnored("build", true))
	assert.False(t, ig.IsIgnored("build", false))
	assert.False(t, ig.IsIgnored("main.go", false))
}

func TestIgnore_AlwaysHidden(t *testing.T) {
	ig := LoadIgnore(afero.NewMemMapFs(), "/missing")
	assert.True(t, ig.IsIgnored(".git", true))
	assert.True(t, ig.IsIgnored(IgnoreFile, false))
	assert.True(t, ig.IsIgnored("a.txt.storesync-tmp", false))
	assert.False(t, ig.IsIgnored("a.txt", false))

	var none *Ignore
	assert.False(t, none.IsIgnored("a.txt", false))
}
