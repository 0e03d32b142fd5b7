package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-pipeline/breaker"
	"github.com/rs/zerolog"
)

// Handler processes a dequeued retry entry; a nil return marks it completed
type Handler func(ctx context.Context, entry Entry) error

// Hooks are optional callbacks fired on entry lifecycle transitions
type Hooks struct {
	OnSuccess    func(entry Entry)
	OnFailure    func(entry Entry, err error)
	OnDeadLetter func(entry Entry)
}

// ProcessResult is the outcome of a single ProcessEntry call
type ProcessResult struct {
	Entry        Entry
	Success      bool
	DeadLettered bool
	Requeued     bool
	Err          error
}

// BatchResult aggregates one ProcessPending pass
type BatchResult struct {
	Processed    int
	Succeeded    int
	Failed       int
	DeadLettered int
}

/* Manager drives the retry state machine over a Queue: scheduling delayed
 * re-attempts with exponential backoff and jitter, consulting the circuit
 * breaker before invoking the handler, and escalating exhausted or
 * permanently-failed work to the dead letter collection.
 */
type Manager struct {
	queue      Queue
	policy     Policy
	classifier *Classifier
	cb         *breaker.CircuitBreaker
	hooks      Hooks
	logger     zerolog.Logger
}

// NewManager creates a manager over the given queue. Zero-valued policy
// fields fall back to DefaultPolicy.
func NewManager(queue Queue, policy Policy, logger zerolog.Logger) *Manager {
	return &Manager{
		queue:      queue,
		policy:     policy.normalize(),
		classifier: NewClassifier(),
		logger:     logger.With().Str("component", "retry").Logger(),
	}
}

// AttachBreaker guards handler invocations with the circuit breaker.
// A nil breaker (the default) always allows requests.
func (m *Manager) AttachBreaker(cb *breaker.CircuitBreaker) {
	m.cb = cb
}

// SetHooks installs lifecycle callbacks
func (m *Manager) SetHooks(hooks Hooks) {
	m.hooks = hooks
}

// SetClassifier replaces the default transient-error classifier
func (m *Manager) SetClassifier(classifier *Classifier) {
	if classifier != nil {
		m.classifier = classifier
	}
}

// ScheduleRetry enqueues failed work for a delayed re-attempt. The delay is
// computed from existingAttempts, so rescheduled work backs off progressively.
func (m *Manager) ScheduleRetry(ctx context.Context, source, eventID, eventType string, payload []byte, cause error, existingAttempts int) (Entry, error) {
	now := time.Now()
	entry := Entry{
		ID:            uuid.New().String(),
		Source:        source,
		EventID:       eventID,
		EventType:     eventType,
		Payload:       payload,
		Attempts:      existingAttempts,
		MaxAttempts:   m.policy.MaxAttempts,
		NextAttemptAt: now.Add(m.policy.Delay(existingAttempts)),
		CreatedAt:     now,
		Status:        Pending,
	}
	if cause != nil {
		entry.LastError = cause.Error()
	}

	if err := m.queue.Enqueue(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("enqueueing retry entry: %w", err)
	}

	m.logger.Debug().
		Str("id", entry.ID).
		Str("source", source).
		Str("event_id", eventID).
		Time("next_attempt", entry.NextAttemptAt).
		Msg("Scheduled retry")

	return entry, nil
}

/* ProcessEntry runs the handler for a claimed entry. When the breaker is
 * open the entry is parked back in the pending queue without consuming an
 * attempt: a refusal to call is not evidence about the downstream.
 */
func (m *Manager) ProcessEntry(ctx context.Context, entry Entry, handler Handler) ProcessResult {
	if m.cb != nil && !m.cb.CanRequest() {
		entry.Status = Pending
		entry.NextAttemptAt = time.Now().Add(m.policy.BaseDelay)
		if err := m.queue.Requeue(ctx, entry); err != nil {
			m.logger.Error().Err(err).Str("id", entry.ID).Msg("Parking entry while circuit open")
		}
		return ProcessResult{Entry: entry, Requeued: true, Err: breaker.ErrOpen}
	}

	err := handler(ctx, entry)
	now := time.Now()
	entry.LastAttemptAt = &now

	if err == nil {
		if m.cb != nil {
			m.cb.RecordSuccess()
		}
		entry.Status = Completed
		if completeErr := m.queue.Complete(ctx, entry.ID); completeErr != nil {
			m.logger.Error().Err(completeErr).Str("id", entry.ID).Msg("Marking entry completed")
			return ProcessResult{Entry: entry, Err: completeErr}
		}
		if m.hooks.OnSuccess != nil {
			m.hooks.OnSuccess(entry)
		}
		return ProcessResult{Entry: entry, Success: true}
	}

	if m.cb != nil {
		m.cb.RecordFailure()
	}

	entry.Attempts++
	entry.LastError = err.Error()

	result := ProcessResult{Entry: entry, Err: err}
	switch {
	case entry.Attempts >= entry.MaxAttempts:
		result.DeadLettered = true
		m.deadLetter(ctx, entry, "retry budget exhausted")

	case !m.classifier.Retryable(err):
		result.DeadLettered = true
		m.deadLetter(ctx, entry, "permanent error")

	default:
		entry.Status = Pending
		entry.NextAttemptAt = time.Now().Add(m.policy.Delay(entry.Attempts))
		result.Requeued = true
		result.Entry = entry
		if requeueErr := m.queue.Requeue(ctx, entry); requeueErr != nil {
			m.logger.Error().Err(requeueErr).Str("id", entry.ID).Msg("Requeueing entry")
			result.Err = requeueErr
		}
	}

	if m.hooks.OnFailure != nil {
		m.hooks.OnFailure(entry, err)
	}
	return result
}

// ProcessPending dequeues and processes up to batchSize due entries,
// returning aggregate counts. Intended to run on a periodic timer.
func (m *Manager) ProcessPending(ctx context.Context, handler Handler, batchSize int) (BatchResult, error) {
	if batchSize <= 0 {
		batchSize = 10
	}

	entries, err := m.queue.Dequeue(ctx, batchSize)
	if err != nil {
		return BatchResult{}, fmt.Errorf("dequeuing retry entries: %w", err)
	}

	var batch BatchResult
	for _, entry := range entries {
		batch.Processed++
		result := m.ProcessEntry(ctx, entry, handler)
		switch {
		case result.Success:
			batch.Succeeded++
		case result.DeadLettered:
			batch.Failed++
			batch.DeadLettered++
		default:
			batch.Failed++
		}
	}
	return batch, nil
}

// ReprocessDeadLetter moves a dead-letter entry back to the pending queue
// with its attempt counter reset and immediate eligibility
func (m *Manager) ReprocessDeadLetter(ctx context.Context, id string) (Entry, error) {
	entry, err := m.queue.ReprocessDeadLetter(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("reprocessing dead letter %s: %w", id, err)
	}

	m.logger.Info().
		Str("id", entry.ID).
		Str("source", entry.Source).
		Str("event_id", entry.EventID).
		Msg("Dead letter entry requeued for reprocessing")

	return entry, nil
}

// DeadLetters lists dead-letter entries for operator tooling
func (m *Manager) DeadLetters(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	return m.queue.DeadLetters(ctx, limit)
}

// Stats reports queue composition
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	return m.queue.Stats(ctx)
}

// BreakerSnapshot exposes breaker state for observability; ok is false when
// no breaker is attached
func (m *Manager) BreakerSnapshot() (breaker.Snapshot, bool) {
	if m.cb == nil {
		return breaker.Snapshot{}, false
	}
	return m.cb.Snapshot(), true
}

func (m *Manager) deadLetter(ctx context.Context, entry Entry, reason string) {
	entry.Status = DeadLetter
	if err := m.queue.MoveToDeadLetter(ctx, entry); err != nil {
		m.logger.Error().Err(err).Str("id", entry.ID).Msg("Moving entry to dead letter queue")
		return
	}

	m.logger.Warn().
		Str("id", entry.ID).
		Str("source", entry.Source).
		Str("event_id", entry.EventID).
		Int("attempts", entry.Attempts).
		Str("reason", reason).
		Msg("Entry moved to dead letter queue")

	if m.hooks.OnDeadLetter != nil {
		m.hooks.OnDeadLetter(entry)
	}
}
