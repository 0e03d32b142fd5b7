//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-pipeline/retry"
	retryredis "github.com/marcelsud/webhook-pipeline/retry/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

/* Redis integration tests, run with: go test -tags integration ./...
 * Uses testcontainers to spin up a disposable Redis instance.
 */

func setupQueue(t *testing.T, ctx context.Context) *retryredis.Queue {
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

	queue, err := retryredis.NewQueue(addr, "", 0)
	require.NoError(t, err)
	return queue
}

func testEntry(due bool) retry.Entry {
	now := time.Now()
	next := now.Add(time.Hour)
	if due {
		next = now.Add(-time.Second)
	}
	return retry.Entry{
		ID:            uuid.New().String(),
		Source:        "stripe",
		EventID:       "evt-" + uuid.New().String()[:8],
		EventType:     "charge.succeeded",
		Payload:       []byte(`{"amount":100}`),
		MaxAttempts:   5,
		NextAttemptAt: next,
		CreatedAt:     now,
		Metadata:      map[string]string{"tenant": "acme"},
		Status:        retry.Pending,
	}
}

func TestRedisQueueDequeue(t *testing.T) {
	ctx := context.Background()
	queue := setupQueue(t, ctx)

	due := testEntry(true)
	future := testEntry(false)
	require.NoError(t, queue.Enqueue(ctx, due))
	require.NoError(t, queue.Enqueue(ctx, future))

	claimed, err := queue.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, retry.InFlight, claimed[0].Status)
	assert.Equal(t, "acme", claimed[0].Metadata["tenant"])

	// already claimed: a second sweep finds nothing
	again, err := queue.Dequeue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestRedisQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	queue := setupQueue(t, ctx)

	entry := testEntry(true)
	require.NoError(t, queue.Enqueue(ctx, entry))
	claimed, err := queue.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// requeue with backoff, then reclaim once due
	updated := claimed[0]
	updated.Attempts = 1
	updated.NextAttemptAt = time.Now().Add(-time.Millisecond)
	require.NoError(t, queue.Requeue(ctx, updated))

	reclaimed, err := queue.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, 1, reclaimed[0].Attempts)

	require.NoError(t, queue.Complete(ctx, entry.ID))
	_, err = queue.Get(ctx, entry.ID)
	assert.ErrorIs(t, err, retry.ErrNotFound)

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestRedisQueueDeadLetter(t *testing.T) {
	ctx := context.Background()
	queue := setupQueue(t, ctx)

	entry := testEntry(true)
	entry.Attempts = 5
	require.NoError(t, queue.Enqueue(ctx, entry))
	require.NoError(t, queue.MoveToDeadLetter(ctx, entry))

	// gone from the pending index
	claimed, err := queue.Dequeue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	letters, err := queue.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, retry.DeadLetter, letters[0].Status)

	requeued, err := queue.ReprocessDeadLetter(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, requeued.Attempts)
	assert.Equal(t, retry.Pending, requeued.Status)

	claimed, err = queue.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, entry.ID, claimed[0].ID)

	_, err = queue.ReprocessDeadLetter(ctx, "missing")
	assert.ErrorIs(t, err, retry.ErrNotFound)
}

func TestRedisQueueStats(t *testing.T) {
	ctx := context.Background()
	queue := setupQueue(t, ctx)

	soon := testEntry(false)
	soon.NextAttemptAt = time.Now().Add(time.Minute)
	later := testEntry(false)
	require.NoError(t, queue.Enqueue(ctx, soon))
	require.NoError(t, queue.Enqueue(ctx, later))

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	require.NotNil(t, stats.OldestPending)
	require.NotNil(t, stats.NewestPending)
	assert.True(t, stats.OldestPending.Before(*stats.NewestPending))
}
