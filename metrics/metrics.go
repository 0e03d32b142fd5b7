package metrics

import (
	"context"
	"time"

	"github.com/marcelsud/webhook-pipeline/breaker"
	"github.com/marcelsud/webhook-pipeline/retry"
)

// Metrics represents the current state of the webhook pipeline.
type Metrics struct {
	// Queue reports retry queue composition by status
	Queue retry.Stats `json:"queue"`

	// Breaker is the downstream circuit breaker state, when one is attached
	Breaker *breaker.Snapshot `json:"breaker,omitempty"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// Collector defines the interface for collecting metrics from the pipeline.
type Collector interface {
	// Collect gathers current metrics from the system
	Collect(ctx context.Context) (Metrics, error)

	// GetQueueStats returns retry queue counts by status
	GetQueueStats(ctx context.Context) (retry.Stats, error)

	// GetBreakerSnapshot returns the breaker state, or nil when none is attached
	GetBreakerSnapshot(ctx context.Context) (*breaker.Snapshot, error)
}
