package redisstore

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidstore/storesync/store"
	"github.com/voidstore/storesync/store/storetest"
)

var prefixSeq atomic.Int64

// setupTestStore connects to STORESYNC_REDIS_URL under a fresh key prefix.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("STORESYNC_REDIS_URL")
	if url == "" {
		t.Skip("STORESYNC_REDIS_URL not set")
	}
	prefix := fmt.Sprintf("storesync-test-%d-%d:", time.Now().UnixNano(), prefixSeq.Add(1))
	s, err := Open(context.Background(), url, WithPrefix(prefix))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := s.rdb.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			s.rdb.Del(ctx, keys...)
		}
		s.Close()
	})
	return s
}

func TestRedis_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return setupTestStore(t) })
}

func TestRedis_SignalsRelayed(t *testing.T) {
	s := setupTestStore(t)
	sub := s.Subscribe()
	defer sub.Cancel()

	s.publish(context.Background(), store.AddEnd, "/tmp/a", "/a")
	select {
	case ev := <-sub.C():
		assert.Equal(t, store.AddEnd, ev.Type)
		assert.Equal(t, "/a", ev.StorePath)
	case <-time.After(2 * time.Second):
		t.Fatal("signal not relayed")
	}
}

func TestMissingDirs(t *testing.T) {
	m := map[string]string{"/a": kindDir, "/f": kindFile}
	got, err := missingDirs(m, []string{"/a", "/a/b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/b"}, got)

	_, err = missingDirs(m, []string{"/f", "/f/x"})
	assert.ErrorIs(t, err, store.ErrFileAlreadyExists)
}
