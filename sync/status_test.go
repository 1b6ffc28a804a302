package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidstore/storesync/store"
)

func TestStatusList_StartEnd(t *testing.T) {
	l := NewStatusList()
	l.Apply(store.Event{Type: store.AddStart, Path: "/in/a", StorePath: "/a"})
	l.Apply(store.Event{Type: store.DecryptStart, Path: "/tmp/b", StorePath: "/b"})

	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, store.DecryptStart, items[0].Type)
	assert.Equal(t, "/a", items[1].StorePath)

	l.Apply(store.Event{Type: store.AddEnd, Path: "/in/a", StorePath: "/a"})
	items = l.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "/b", items[0].StorePath)

	l.Apply(store.Event{Type: store.DecryptEnd, Path: "/tmp/b", StorePath: "/b"})
	assert.Equal(t, 0, l.Len())
}

func TestStatusList_RestartMovesToFront(t *testing.T) {
	l := NewStatusList()
	l.Apply(store.Event{Type: store.AddStart, Path: "/x"})
	l.Apply(store.Event{Type: store.AddStart, Path: "/y"})
	l.Apply(store.Event{Type: store.AddStart, Path: "/x"})

	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "/x", items[0].Path)
	assert.Equal(t, "/y", items[1].Path)
}

func TestStatusList_UnmatchedEndIgnored(t *testing.T) {
	l := NewStatusList()
	l.Apply(store.Event{Type: store.AddStart, Path: "/x"})
	l.Apply(store.Event{Type: store.DecryptEnd, Path: "/x"})
	assert.Equal(t, 1, l.Len())
}
