//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/marcelsud/webhook-pipeline/idempotency"
	idemredis "github.com/marcelsud/webhook-pipeline/idempotency/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

/* Redis integration tests, run with: go test -tags integration ./...
 * Uses testcontainers to spin up a disposable Redis instance.
 */

func setupStore(t *testing.T, ctx context.Context) *idemredis.Store {
	t.Helper()

	container, err := testcontainersredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	})

	addr, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	if len(addr) > 8 && addr[:8] == "redis://" {
		addr = addr[8:]
	}

	store, err := idemredis.NewStore(addr, "", 0)
	require.NoError(t, err)
	return store
}

func TestRedisStoreAcquire(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t, ctx)

	t.Run("acquire then contend", func(t *testing.T) {
		entry, acquired, err := store.Acquire(ctx, "it-key-1", time.Minute)
		require.NoError(t, err)
		require.True(t, acquired)
		assert.Equal(t, idempotency.Processing, entry.Status)
		assert.Equal(t, 1, entry.Attempts)

		_, acquired, err = store.Acquire(ctx, "it-key-1", time.Minute)
		require.NoError(t, err)
		assert.False(t, acquired)
	})

	t.Run("lock expires via PX", func(t *testing.T) {
		_, acquired, err := store.Acquire(ctx, "it-key-2", 50*time.Millisecond)
		require.NoError(t, err)
		require.True(t, acquired)

		time.Sleep(100 * time.Millisecond)

		entry, acquired, err := store.Acquire(ctx, "it-key-2", time.Minute)
		require.NoError(t, err)
		require.True(t, acquired)
		assert.Equal(t, 2, entry.Attempts)
	})
}

func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t, ctx)

	_, acquired, err := store.Acquire(ctx, "it-life", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, store.Complete(ctx, "it-life", []byte(`{"ok":true}`)))

	entry, exists, err := store.Get(ctx, "it-life")
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, idempotency.Completed, entry.Status)
	assert.Equal(t, []byte(`{"ok":true}`), entry.Response)
	assert.Nil(t, entry.LockUntil)

	// lock released: reacquire succeeds
	_, acquired, err = store.Acquire(ctx, "it-life", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	require.NoError(t, store.Fail(ctx, "it-life", "downstream timeout"))
	entry, _, err = store.Get(ctx, "it-life")
	require.NoError(t, err)
	assert.Equal(t, idempotency.Failed, entry.Status)
	assert.Equal(t, "downstream timeout", entry.LastError)
}

func TestRedisStoreCleanup(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t, ctx)

	_, _, err := store.Acquire(ctx, "it-old", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "it-old", nil))

	time.Sleep(50 * time.Millisecond)

	removed, err := store.Cleanup(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, exists, err := store.Get(ctx, "it-old")
	require.NoError(t, err)
	assert.False(t, exists)
}
