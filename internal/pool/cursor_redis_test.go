//go:build integration

package pool_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"snapkit/internal/pool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCursorIsMonotonicUnderConcurrency(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx := context.Background()
	client, err := pool.NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })

	key := "test:" + t.Name()
	client.Del(ctx, key)
	t.Cleanup(func() { client.Del(context.Background(), key) })

	cursor := pool.NewRedisCursor(client, pool.WithCursorKey(key))

	const workers = 50
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = map[int64]bool{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pos, err := cursor.Next(ctx)
			require.NoError(t, err)
			mu.Lock()
			seen[pos] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers)
	for i := int64(1); i <= workers; i++ {
		assert.True(t, seen[i], "position %d missing", i)
	}
}
