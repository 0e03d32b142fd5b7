package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-pipeline/retry"
	"github.com/marcelsud/webhook-pipeline/retry/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingEntry(nextAttemptIn time.Duration) retry.Entry {
	now := time.Now()
	return retry.Entry{
		ID:            uuid.New().String(),
		Source:        "stripe",
		EventID:       "evt-" + uuid.New().String()[:8],
		EventType:     "charge.succeeded",
		Payload:       []byte(`{}`),
		MaxAttempts:   5,
		NextAttemptAt: now.Add(nextAttemptIn),
		CreatedAt:     now,
		Status:        retry.Pending,
	}
}

func TestDequeue(t *testing.T) {
	ctx := context.Background()

	t.Run("claims only due entries", func(t *testing.T) {
		queue := memory.NewQueue()
		due := pendingEntry(-time.Second)
		future := pendingEntry(time.Hour)
		require.NoError(t, queue.Enqueue(ctx, due))
		require.NoError(t, queue.Enqueue(ctx, future))

		claimed, err := queue.Dequeue(ctx, 10)

		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, due.ID, claimed[0].ID)
		assert.Equal(t, retry.InFlight, claimed[0].Status)
	})

	t.Run("claimed entries are not claimed twice", func(t *testing.T) {
		queue := memory.NewQueue()
		require.NoError(t, queue.Enqueue(ctx, pendingEntry(-time.Second)))

		first, err := queue.Dequeue(ctx, 10)
		require.NoError(t, err)
		require.Len(t, first, 1)

		second, err := queue.Dequeue(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, second)
	})

	t.Run("respects the limit, oldest schedule first", func(t *testing.T) {
		queue := memory.NewQueue()
		oldest := pendingEntry(-3 * time.Second)
		middle := pendingEntry(-2 * time.Second)
		newest := pendingEntry(-time.Second)
		for _, entry := range []retry.Entry{newest, oldest, middle} {
			require.NoError(t, queue.Enqueue(ctx, entry))
		}

		claimed, err := queue.Dequeue(ctx, 2)

		require.NoError(t, err)
		require.Len(t, claimed, 2)
		assert.Equal(t, oldest.ID, claimed[0].ID)
		assert.Equal(t, middle.ID, claimed[1].ID)
	})

	t.Run("no double claims under concurrent dequeue", func(t *testing.T) {
		queue := memory.NewQueue()
		const total = 30
		for i := 0; i < total; i++ {
			require.NoError(t, queue.Enqueue(ctx, pendingEntry(-time.Second)))
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		seen := make(map[string]int)

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				claimed, err := queue.Dequeue(ctx, 5)
				require.NoError(t, err)
				mu.Lock()
				for _, entry := range claimed {
					seen[entry.ID]++
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Len(t, seen, total)
		for id, count := range seen {
			assert.Equal(t, 1, count, "entry %s claimed more than once", id)
		}
	})
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("complete removes the entry", func(t *testing.T) {
		queue := memory.NewQueue()
		entry := pendingEntry(-time.Second)
		require.NoError(t, queue.Enqueue(ctx, entry))
		_, err := queue.Dequeue(ctx, 1)
		require.NoError(t, err)

		require.NoError(t, queue.Complete(ctx, entry.ID))

		_, err = queue.Get(ctx, entry.ID)
		assert.ErrorIs(t, err, retry.ErrNotFound)
	})

	t.Run("complete of unknown id fails", func(t *testing.T) {
		queue := memory.NewQueue()
		assert.ErrorIs(t, queue.Complete(ctx, "missing"), retry.ErrNotFound)
	})

	t.Run("requeue makes the entry claimable again", func(t *testing.T) {
		queue := memory.NewQueue()
		entry := pendingEntry(-time.Second)
		require.NoError(t, queue.Enqueue(ctx, entry))
		claimed, err := queue.Dequeue(ctx, 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		updated := claimed[0]
		updated.Attempts = 1
		updated.NextAttemptAt = time.Now().Add(-time.Millisecond)
		require.NoError(t, queue.Requeue(ctx, updated))

		reclaimed, err := queue.Dequeue(ctx, 1)
		require.NoError(t, err)
		require.Len(t, reclaimed, 1)
		assert.Equal(t, 1, reclaimed[0].Attempts)
	})

	t.Run("dead letter moves the entry out of the active set", func(t *testing.T) {
		queue := memory.NewQueue()
		entry := pendingEntry(-time.Second)
		require.NoError(t, queue.Enqueue(ctx, entry))

		require.NoError(t, queue.MoveToDeadLetter(ctx, entry))

		claimed, err := queue.Dequeue(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, claimed)

		letters, err := queue.DeadLetters(ctx, 10)
		require.NoError(t, err)
		require.Len(t, letters, 1)
		assert.Equal(t, retry.DeadLetter, letters[0].Status)
	})

	t.Run("reprocess resets attempts and eligibility", func(t *testing.T) {
		queue := memory.NewQueue()
		entry := pendingEntry(-time.Second)
		entry.Attempts = 5
		require.NoError(t, queue.Enqueue(ctx, entry))
		require.NoError(t, queue.MoveToDeadLetter(ctx, entry))

		requeued, err := queue.ReprocessDeadLetter(ctx, entry.ID)

		require.NoError(t, err)
		assert.Equal(t, 0, requeued.Attempts)
		assert.Equal(t, retry.Pending, requeued.Status)

		claimed, err := queue.Dequeue(ctx, 10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, entry.ID, claimed[0].ID)

		letters, err := queue.DeadLetters(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, letters)
	})

	t.Run("reprocess of unknown id fails", func(t *testing.T) {
		queue := memory.NewQueue()
		_, err := queue.ReprocessDeadLetter(ctx, "missing")
		assert.ErrorIs(t, err, retry.ErrNotFound)
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	queue := memory.NewQueue()

	oldest := pendingEntry(time.Minute)
	newest := pendingEntry(time.Hour)
	inflight := pendingEntry(-time.Second)
	dead := pendingEntry(-time.Second)

	require.NoError(t, queue.Enqueue(ctx, oldest))
	require.NoError(t, queue.Enqueue(ctx, newest))
	require.NoError(t, queue.Enqueue(ctx, inflight))
	require.NoError(t, queue.Enqueue(ctx, dead))

	claimed, err := queue.Dequeue(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	require.NoError(t, queue.MoveToDeadLetter(ctx, dead))
	require.NoError(t, queue.Complete(ctx, inflight.ID))

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(0), stats.Processing)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.DeadLetter)
	require.NotNil(t, stats.OldestPending)
	require.NotNil(t, stats.NewestPending)
	assert.True(t, stats.OldestPending.Before(*stats.NewestPending))
}
