package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// keyLength is the hex length the generated digest is truncated to
	keyLength = 32

	reasonFirstAttempt   = "No previous attempt"
	reasonExpired        = "Previous entry expired"
	reasonCompleted      = "Already completed"
	reasonRetryFailure   = "Retrying after failure"
	reasonRetryExhausted = "Retry attempts exhausted"
	reasonInFlight       = "Currently being processed"
	reasonLockTimedOut   = "Previous processing timed out"
)

// Config tunes the middleware behavior
type Config struct {
	// Namespace prefixes every generated key, isolating key spaces
	Namespace string
	// TTL is how long completed/failed entries are honored before a key
	// is treated as new again
	TTL time.Duration
	// LockTimeout bounds how long a processing owner may hold the lock
	LockTimeout time.Duration
	// MaxRetries caps re-attempts of a failed key
	MaxRetries int
	// CleanupInterval is the period of the background cleanup timer
	CleanupInterval time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		Namespace:       "idem",
		TTL:             24 * time.Hour,
		LockTimeout:     30 * time.Second,
		MaxRetries:      3,
		CleanupInterval: time.Hour,
	}
}

// CheckResult is the dedup decision for a key
type CheckResult struct {
	ShouldProcess  bool
	IsDuplicate    bool
	PreviousResult []byte
	Reason         string
}

// WrapResult carries the handler result and whether it was served from cache
type WrapResult struct {
	Result    []byte
	FromCache bool
}

/* Middleware deduplicates processing of logical operations by key. It owns
 * the dedup decision protocol; the Store owns atomicity of lock+entry writes.
 */
type Middleware struct {
	store  Store
	config Config
	logger zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
}

// New creates a middleware over the given store; zero-valued config fields
// fall back to DefaultConfig values.
func New(store Store, config Config, logger zerolog.Logger) *Middleware {
	defaults := DefaultConfig()
	if config.Namespace == "" {
		config.Namespace = defaults.Namespace
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaults.LockTimeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	return &Middleware{
		store:  store,
		config: config,
		logger: logger.With().Str("component", "idempotency").Logger(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// GenerateKey derives a deterministic, namespaced dedup key from the source,
// the provider event id and any additional discriminating data.
func (m *Middleware) GenerateKey(source, eventID string, additional ...string) string {
	material := source + ":" + eventID
	if len(additional) > 0 {
		material += ":" + strings.Join(additional, ":")
	}

	sum := sha256.Sum256([]byte(material))
	return m.config.Namespace + ":" + hex.EncodeToString(sum[:])[:keyLength]
}

// Check decides whether the operation behind key should run
func (m *Middleware) Check(ctx context.Context, key string) (CheckResult, error) {
	entry, exists, err := m.store.Get(ctx, key)
	if err != nil {
		return CheckResult{}, fmt.Errorf("loading idempotency entry: %w", err)
	}
	if !exists {
		return CheckResult{ShouldProcess: true, Reason: reasonFirstAttempt}, nil
	}

	if time.Since(entry.CreatedAt) > m.config.TTL {
		if err := m.store.Delete(ctx, key); err != nil {
			return CheckResult{}, fmt.Errorf("deleting expired entry: %w", err)
		}
		return CheckResult{ShouldProcess: true, Reason: reasonExpired}, nil
	}

	switch entry.Status {
	case Completed:
		return CheckResult{
			IsDuplicate:    true,
			PreviousResult: entry.Response,
			Reason:         reasonCompleted,
		}, nil

	case Failed:
		if entry.Attempts < m.config.MaxRetries {
			return CheckResult{ShouldProcess: true, Reason: reasonRetryFailure}, nil
		}
		return CheckResult{Reason: reasonRetryExhausted}, nil

	case Processing:
		if entry.LockUntil != nil && time.Now().Before(*entry.LockUntil) {
			return CheckResult{IsDuplicate: true, Reason: reasonInFlight}, nil
		}
		return CheckResult{ShouldProcess: true, Reason: reasonLockTimedOut}, nil

	default:
		return CheckResult{}, fmt.Errorf("unexpected entry status: %s", entry.Status)
	}
}

// StartProcessing claims the key for processing. Returns false when another
// owner holds the lock; the entry is not mutated in that case.
func (m *Middleware) StartProcessing(ctx context.Context, key string) (bool, error) {
	_, acquired, err := m.store.Acquire(ctx, key, m.config.LockTimeout)
	if err != nil {
		return false, fmt.Errorf("acquiring processing lock: %w", err)
	}
	return acquired, nil
}

// CompleteProcessing records the successful outcome and releases the lock
func (m *Middleware) CompleteProcessing(ctx context.Context, key string, response []byte) error {
	if err := m.store.Complete(ctx, key, response); err != nil {
		return fmt.Errorf("completing idempotency entry: %w", err)
	}
	return nil
}

// FailProcessing records the failure and releases the lock
func (m *Middleware) FailProcessing(ctx context.Context, key string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if err := m.store.Fail(ctx, key, message); err != nil {
		return fmt.Errorf("failing idempotency entry: %w", err)
	}
	return nil
}

/* Wrap composes check -> acquire -> handler -> complete/fail around a
 * handler. Duplicate keys are served from cache; lock contention surfaces
 * ErrLockContention; handler errors are re-returned after being recorded.
 */
func (m *Middleware) Wrap(ctx context.Context, key string, handler func(ctx context.Context) ([]byte, error)) (WrapResult, error) {
	check, err := m.Check(ctx, key)
	if err != nil {
		return WrapResult{}, err
	}

	if !check.ShouldProcess {
		if check.Reason == reasonCompleted {
			return WrapResult{Result: check.PreviousResult, FromCache: true}, nil
		}
		if check.Reason == reasonRetryExhausted {
			return WrapResult{}, fmt.Errorf("refusing to process %q: %s", key, check.Reason)
		}
		return WrapResult{}, fmt.Errorf("%w: %s", ErrLockContention, check.Reason)
	}

	acquired, err := m.StartProcessing(ctx, key)
	if err != nil {
		return WrapResult{}, err
	}
	if !acquired {
		return WrapResult{}, ErrLockContention
	}

	result, err := handler(ctx)
	if err != nil {
		if failErr := m.FailProcessing(ctx, key, err); failErr != nil {
			m.logger.Error().Err(failErr).Str("key", key).Msg("recording handler failure")
		}
		return WrapResult{}, err
	}

	if err := m.CompleteProcessing(ctx, key, result); err != nil {
		return WrapResult{}, err
	}
	return WrapResult{Result: result, FromCache: false}, nil
}

// StartCleanup launches the periodic expired-entry sweeper. The timer is
// stopped by Stop and never keeps the process alive on its own.
func (m *Middleware) StartCleanup(ctx context.Context) {
	m.startOnce.Do(func() {
		m.started = true
		m.logger.Info().
			Dur("interval", m.config.CleanupInterval).
			Dur("ttl", m.config.TTL).
			Msg("Starting idempotency cleanup worker")

		go m.runCleanup(ctx)
	})
}

// Stop halts the cleanup worker and waits for it to exit.
// Safe to call even if StartCleanup was never invoked.
func (m *Middleware) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	if m.started {
		<-m.done
	}
}

func (m *Middleware) runCleanup(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			removed, err := m.store.Cleanup(ctx, m.config.TTL)
			if err != nil {
				m.logger.Error().Err(err).Msg("Idempotency cleanup failed")
				continue
			}
			if removed > 0 {
				m.logger.Debug().Int("removed", removed).Msg("Swept expired idempotency entries")
			}
		}
	}
}
