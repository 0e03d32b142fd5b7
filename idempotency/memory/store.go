package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marcelsud/webhook-pipeline/idempotency"
)

/* In-memory implementation of idempotency.Store
 * A single mutex covers both the lock table and the entry table, so lock
 * acquisition and the processing-entry write are one critical section.
 */

type Store struct {
	mu      sync.Mutex
	entries map[string]idempotency.Entry
	locks   map[string]time.Time
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		entries: make(map[string]idempotency.Entry),
		locks:   make(map[string]time.Time),
	}
}

// Get returns the entry for key and whether one exists
func (s *Store) Get(ctx context.Context, key string) (idempotency.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	return entry, ok, nil
}

// Acquire atomically takes the processing lock and writes the entry in
// processing state. Expired locks count as free.
func (s *Store) Acquire(ctx context.Context, key string, lockTTL time.Duration) (idempotency.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if expiry, held := s.locks[key]; held && now.Before(expiry) {
		return idempotency.Entry{}, false, nil
	}

	lockUntil := now.Add(lockTTL)
	s.locks[key] = lockUntil

	entry, ok := s.entries[key]
	if !ok {
		entry = idempotency.Entry{Key: key, CreatedAt: now}
	}
	entry.Status = idempotency.Processing
	entry.Attempts++
	entry.LockUntil = &lockUntil
	entry.CompletedAt = nil
	s.entries[key] = entry

	return entry, true, nil
}

// Complete marks the entry completed and releases the lock
func (s *Store) Complete(ctx context.Context, key string, response []byte) error {
	return s.finish(key, idempotency.Completed, response, "")
}

// Fail marks the entry failed and releases the lock
func (s *Store) Fail(ctx context.Context, key string, cause string) error {
	return s.finish(key, idempotency.Failed, nil, cause)
}

func (s *Store) finish(key string, status idempotency.Status, response []byte, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		entry = idempotency.Entry{Key: key, CreatedAt: time.Now()}
	}

	now := time.Now()
	entry.Status = status
	entry.CompletedAt = &now
	entry.LockUntil = nil
	if response != nil {
		entry.Response = response
	}
	entry.LastError = cause
	s.entries[key] = entry

	delete(s.locks, key)
	return nil
}

// Delete removes the entry and its lock
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	delete(s.locks, key)
	return nil
}

// Cleanup removes entries older than maxAge along with expired orphan locks
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range s.entries {
		if now.Sub(entry.CreatedAt) > maxAge {
			delete(s.entries, key)
			delete(s.locks, key)
			removed++
		}
	}
	for key, expiry := range s.locks {
		if now.After(expiry) {
			delete(s.locks, key)
		}
	}
	return removed, nil
}

// Len reports the number of stored entries, for tests and stats
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
