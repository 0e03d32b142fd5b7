package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-pipeline/breaker"
	"github.com/marcelsud/webhook-pipeline/metrics"
	"github.com/marcelsud/webhook-pipeline/retry"
	"github.com/marcelsud/webhook-pipeline/retry/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineCollector(t *testing.T) {
	ctx := context.Background()

	t.Run("collects queue stats", func(t *testing.T) {
		queue := memory.NewQueue()
		manager := retry.NewManager(queue, retry.DefaultPolicy(), zerolog.Nop())
		collector := metrics.NewPipelineCollector(manager)

		require.NoError(t, queue.Enqueue(ctx, retry.Entry{
			ID:            uuid.New().String(),
			Source:        "stripe",
			EventID:       "evt-1",
			EventType:     "charge.succeeded",
			MaxAttempts:   5,
			NextAttemptAt: time.Now().Add(time.Minute),
			CreatedAt:     time.Now(),
			Status:        retry.Pending,
		}))

		collected, err := collector.Collect(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(1), collected.Queue.Pending)
		assert.Nil(t, collected.Breaker, "no breaker attached")
		assert.False(t, collected.Timestamp.IsZero())
	})

	t.Run("includes breaker snapshot when attached", func(t *testing.T) {
		queue := memory.NewQueue()
		manager := retry.NewManager(queue, retry.DefaultPolicy(), zerolog.Nop())
		manager.AttachBreaker(breaker.New(breaker.DefaultConfig()))
		collector := metrics.NewPipelineCollector(manager)

		collected, err := collector.Collect(ctx)

		require.NoError(t, err)
		require.NotNil(t, collected.Breaker)
		assert.Equal(t, breaker.Closed, collected.Breaker.Status)
	})
}
