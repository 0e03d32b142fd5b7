package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marcelsud/webhook-pipeline/retry"
)

/* In-memory implementation of retry.Queue
 * One mutex covers the active and dead-letter tables, making Dequeue's
 * claim-and-flip atomic: concurrent dequeuers never claim the same entry.
 */

type Queue struct {
	mu          sync.Mutex
	entries     map[string]retry.Entry
	deadLetters map[string]retry.Entry
	completed   int64
}

// NewQueue creates an empty in-memory queue
func NewQueue() *Queue {
	return &Queue{
		entries:     make(map[string]retry.Entry),
		deadLetters: make(map[string]retry.Entry),
	}
}

// Enqueue stores a new pending entry
func (q *Queue) Enqueue(ctx context.Context, entry retry.Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry.Status = retry.Pending
	q.entries[entry.ID] = entry
	return nil
}

// Dequeue claims up to limit due pending entries, flipping them to processing
func (q *Queue) Dequeue(ctx context.Context, limit int) ([]retry.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	due := make([]retry.Entry, 0, limit)
	for _, entry := range q.entries {
		if entry.Status == retry.Pending && !entry.NextAttemptAt.After(now) {
			due = append(due, entry)
		}
	}

	// oldest schedule first, so starved entries are served before fresh ones
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	for i := range due {
		due[i].Status = retry.InFlight
		q.entries[due[i].ID] = due[i]
	}
	return due, nil
}

// Requeue returns an entry to pending with its updated schedule
func (q *Queue) Requeue(ctx context.Context, entry retry.Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry.Status = retry.Pending
	q.entries[entry.ID] = entry
	return nil
}

// Complete removes a finished entry from the active set
func (q *Queue) Complete(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[id]; !ok {
		return retry.ErrNotFound
	}
	delete(q.entries, id)
	q.completed++
	return nil
}

// MoveToDeadLetter moves an entry into the dead-letter collection
func (q *Queue) MoveToDeadLetter(ctx context.Context, entry retry.Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.entries, entry.ID)
	entry.Status = retry.DeadLetter
	q.deadLetters[entry.ID] = entry
	return nil
}

// ReprocessDeadLetter moves a dead-letter entry back to pending with
// attempts reset and immediate eligibility
func (q *Queue) ReprocessDeadLetter(ctx context.Context, id string) (retry.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.deadLetters[id]
	if !ok {
		return retry.Entry{}, retry.ErrNotFound
	}
	delete(q.deadLetters, id)

	entry.Status = retry.Pending
	entry.Attempts = 0
	entry.NextAttemptAt = time.Now()
	q.entries[entry.ID] = entry
	return entry, nil
}

// Get returns an entry by id from the active or dead-letter set
func (q *Queue) Get(ctx context.Context, id string) (retry.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if entry, ok := q.entries[id]; ok {
		return entry, nil
	}
	if entry, ok := q.deadLetters[id]; ok {
		return entry, nil
	}
	return retry.Entry{}, retry.ErrNotFound
}

// DeadLetters lists up to limit dead-letter entries, oldest first
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]retry.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := make([]retry.Entry, 0, len(q.deadLetters))
	for _, entry := range q.deadLetters {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Stats reports counts per status plus pending-age bounds
func (q *Queue) Stats(ctx context.Context) (retry.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := retry.Stats{
		Completed:  q.completed,
		DeadLetter: int64(len(q.deadLetters)),
	}
	for _, entry := range q.entries {
		switch entry.Status {
		case retry.Pending:
			stats.Pending++
			at := entry.NextAttemptAt
			if stats.OldestPending == nil || at.Before(*stats.OldestPending) {
				oldest := at
				stats.OldestPending = &oldest
			}
			if stats.NewestPending == nil || at.After(*stats.NewestPending) {
				newest := at
				stats.NewestPending = &newest
			}
		case retry.InFlight:
			stats.Processing++
		}
	}
	return stats, nil
}
