package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"
)

/* Idempotency guarantees at-most-once business-side processing of a logical
 * operation despite provider retries. One Entry exists per dedup key; the
 * processing lock serializes concurrent attempts on the same key.
 */

// ErrLockContention is returned when a key is already being processed
var ErrLockContention = errors.New("failed to acquire processing lock")

// Status represents the lifecycle state of an idempotency entry
type Status int

const (
	Processing Status = iota + 1
	Completed
	Failed
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) Status {
	switch str {
	case "processing":
		return Processing
	case "completed":
		return Completed
	case "failed":
		return Failed
	default:
		return Processing
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Processing || s > Failed {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// Entry records the outcome of one logical operation keyed by dedup key.
// Created on the first attempt and mutated in place by later ones.
type Entry struct {
	Key         string
	Status      Status
	CreatedAt   time.Time
	CompletedAt *time.Time
	Response    []byte
	LastError   string
	Attempts    int
	LockUntil   *time.Time
}

/* Store is the persistence boundary for entries and their processing locks.
 * Acquire must take the lock and write the processing entry as a single
 * atomic operation: a check-then-act sequence over two calls is a race under
 * concurrent delivery.
 */
type Store interface {
	// Get returns the entry for key and whether one exists
	Get(ctx context.Context, key string) (Entry, bool, error)

	/* Acquire atomically acquires the processing lock for key and writes the
	 * entry in processing state, carrying forward CreatedAt and incrementing
	 * Attempts. Returns acquired=false without mutating anything when an
	 * unexpired lock is held by another owner.
	 */
	Acquire(ctx context.Context, key string, lockTTL time.Duration) (Entry, bool, error)

	// Complete marks the entry completed with the cached response and
	// releases the lock
	Complete(ctx context.Context, key string, response []byte) error

	// Fail marks the entry failed with the error cause and releases the lock
	Fail(ctx context.Context, key string, cause string) error

	// Delete removes the entry and its lock
	Delete(ctx context.Context, key string) error

	// Cleanup removes entries older than maxAge, returning how many were removed
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}
