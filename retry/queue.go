package retry

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a queue has no entry with the requested id
var ErrNotFound = errors.New("retry entry not found")

// Stats reports queue composition for operator visibility and SLA alerting
type Stats struct {
	Pending       int64      `json:"pending"`
	Processing    int64      `json:"processing"`
	Completed     int64      `json:"completed"`
	DeadLetter    int64      `json:"dead_letter"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
	NewestPending *time.Time `json:"newest_pending,omitempty"`
}

/* Small, focused interfaces in the spirit of the store layer: the queue owns
 * its key space, callers mutate only through these methods so a swap to a
 * transactional backing store preserves the invariants.
 */

// Enqueuer adds work to the queue
type Enqueuer interface {
	// Enqueue stores a new pending entry
	Enqueue(ctx context.Context, entry Entry) error
}

// Dequeuer claims due work from the queue
type Dequeuer interface {
	/* Dequeue atomically claims up to limit pending entries whose
	 * NextAttemptAt has passed, flipping them to processing. Two concurrent
	 * dequeuers never claim the same entry.
	 */
	Dequeue(ctx context.Context, limit int) ([]Entry, error)
}

// Mutator transitions claimed entries through their lifecycle
type Mutator interface {
	// Requeue returns a processing entry to pending with updated
	// attempts, error, and next-attempt schedule
	Requeue(ctx context.Context, entry Entry) error

	// Complete marks a processing entry as done and removes it from
	// the active set
	Complete(ctx context.Context, id string) error

	// MoveToDeadLetter moves an entry into the dead-letter collection
	MoveToDeadLetter(ctx context.Context, entry Entry) error

	// ReprocessDeadLetter moves a dead-letter entry back to pending with
	// attempts reset and immediate eligibility
	ReprocessDeadLetter(ctx context.Context, id string) (Entry, error)
}

// Inspector provides read access for operator tooling
type Inspector interface {
	// Get returns an entry by id, searching active and dead-letter sets
	Get(ctx context.Context, id string) (Entry, error)

	// DeadLetters lists up to limit dead-letter entries, oldest first
	DeadLetters(ctx context.Context, limit int) ([]Entry, error)

	// Stats reports counts per status plus pending-age bounds
	Stats(ctx context.Context) (Stats, error)
}

// Queue is the full persistence contract for the retry pipeline
type Queue interface {
	Enqueuer
	Dequeuer
	Mutator
	Inspector
}
