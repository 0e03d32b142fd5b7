package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/marcelsud/webhook-pipeline/breaker"
	"github.com/marcelsud/webhook-pipeline/retry"
)

/* PipelineCollector reads metrics straight from the retry manager, which
 * already aggregates queue counts and breaker state regardless of the
 * backing store.
 */
type PipelineCollector struct {
	manager *retry.Manager
}

// NewPipelineCollector creates a collector over the given retry manager
func NewPipelineCollector(manager *retry.Manager) *PipelineCollector {
	return &PipelineCollector{manager: manager}
}

// Collect gathers queue and breaker metrics in one pass
func (c *PipelineCollector) Collect(ctx context.Context) (Metrics, error) {
	stats, err := c.GetQueueStats(ctx)
	if err != nil {
		return Metrics{}, err
	}

	snapshot, err := c.GetBreakerSnapshot(ctx)
	if err != nil {
		return Metrics{}, err
	}

	return Metrics{
		Queue:     stats,
		Breaker:   snapshot,
		Timestamp: time.Now(),
	}, nil
}

// GetQueueStats returns retry queue counts by status
func (c *PipelineCollector) GetQueueStats(ctx context.Context) (retry.Stats, error) {
	stats, err := c.manager.Stats(ctx)
	if err != nil {
		return retry.Stats{}, fmt.Errorf("collecting queue stats: %w", err)
	}
	return stats, nil
}

// GetBreakerSnapshot returns the breaker state, or nil when none is attached
func (c *PipelineCollector) GetBreakerSnapshot(ctx context.Context) (*breaker.Snapshot, error) {
	snapshot, attached := c.manager.BreakerSnapshot()
	if !attached {
		return nil, nil
	}
	return &snapshot, nil
}
