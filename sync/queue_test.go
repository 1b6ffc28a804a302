package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(storePath string) ImportJob {
	return ImportJob{FSPath: "/local" + storePath, StorePath: storePath}
}

func TestImportQueue_PushPop(t *testing.T) {
	q := NewImportQueue()
	q.Push(job("/a.txt"))
	q.Push(job("/b.txt"))
	assert.Equal(t, 2, q.Len())

	done := make(chan struct{})
	got, ok := q.Pop(done)
	require.True(t, ok)
	assert.Equal(t, "/a.txt", got.StorePath)

	got, ok = q.Pop(done)
	require.True(t, ok)
	assert.Equal(t, "/b.txt", got.StorePath)
	assert.Equal(t, 0, q.Len())
}

func TestImportQueue_DedupKeepsPositionTakesLatest(t *testing.T) {
	q := NewImportQueue()
	q.Push(job("/a.txt"))
	q.Push(job("/b.txt"))
	q.Push(ImportJob{FSPath: "/newer", StorePath: "/a.txt", Overwrite: true})
	assert.Equal(t, 2, q.Len())

	got, ok := q.Pop(make(chan struct{}))
	require.True(t, ok)
	assert.Equal(t, "/newer", got.FSPath)
	assert.True(t, got.Overwrite)
}

func TestImportQueue_Has(t *testing.T) {
	q := NewImportQueue()
	q.Push(job("/a.txt"))
	assert.True(t, q.Has("/a.txt"))
	assert.False(t, q.Has("/b.txt"))

	q.Pop(make(chan struct{}))
	assert.False(t, q.Has("/a.txt"))
}

func TestImportQueue_PopBlocks(t *testing.T) {
	q := NewImportQueue()
	done := make(chan struct{})

	result := make(chan string, 1)
	go func() {
		if j, ok := q.Pop(done); ok {
			result <- j.StorePath
		}
	}()

	select {
	case <-result:
		t.Fatal("Pop should block when queue is empty")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push(job("/wakeup.txt"))
	select {
	case p := <-result:
		assert.Equal(t, "/wakeup.txt", p)
	case <-time.After(time.Second):
		t.Fatal("Pop should have unblocked")
	}
}

func TestImportQueue_PopCancelled(t *testing.T) {
	q := NewImportQueue()
	done := make(chan struct{})
	close(done)
	_, ok := q.Pop(done)
	assert.False(t, ok)
}

func TestImportQueue_Drain(t *testing.T) {
	q := NewImportQueue()
	q.PushMany([]ImportJob{job("/a"), job("/b"), job("/a")})
	jobs := q.Drain()
	require.Len(t, jobs, 2)
	assert.Equal(t, "/a", jobs[0].StorePath)
	assert.Equal(t, "/b", jobs[1].StorePath)
	assert.Equal(t, 0, q.Len())
}
