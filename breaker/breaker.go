package breaker

import (
	"errors"
	"sync"
	"time"
)

/* CircuitBreaker tracks the health of a downstream dependency and
 * short-circuits calls while it is unhealthy. State transitions are driven
 * only by RecordSuccess/RecordFailure and lazy time-based re-evaluation on
 * CanRequest/State; there is no background goroutine.
 */

// ErrOpen is returned by callers that refuse work while the breaker is open
var ErrOpen = errors.New("Circuit breaker is open")

// Status represents the breaker state machine position
type Status int

const (
	Closed Status = iota + 1
	Open
	HalfOpen
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config tunes the breaker thresholds
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the breaker
	FailureThreshold int
	// SuccessThreshold is the half-open success count that closes it again
	SuccessThreshold int
	// OpenDuration is how long the breaker stays open before probing
	OpenDuration time.Duration
	// HalfOpenMaxRequests caps concurrent probes while half-open
	HalfOpenMaxRequests int
}

// DefaultConfig returns conservative production defaults
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		OpenDuration:        30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// Snapshot is a point-in-time view of breaker state for observability
type Snapshot struct {
	Status        Status     `json:"status"`
	Failures      int        `json:"failures"`
	Successes     int        `json:"successes"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	OpenedAt      *time.Time `json:"opened_at,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
}

type CircuitBreaker struct {
	mu     sync.Mutex
	config Config

	status           Status
	failures         int
	successes        int
	halfOpenInFlight int
	lastFailureAt    *time.Time
	lastSuccessAt    *time.Time
	openedAt         *time.Time
	nextRetryAt      *time.Time

	// now is overridable for tests
	now func() time.Time
}

// New creates a closed breaker with the given config; zero-valued fields
// fall back to DefaultConfig values.
func New(config Config) *CircuitBreaker {
	defaults := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.OpenDuration <= 0 {
		config.OpenDuration = defaults.OpenDuration
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = defaults.HalfOpenMaxRequests
	}

	return &CircuitBreaker{
		config: config,
		status: Closed,
		now:    time.Now,
	}
}

/* CanRequest reports whether a call may proceed. In half-open it also claims
 * a probe slot, so every CanRequest()==true in that state must be balanced by
 * exactly one RecordSuccess or RecordFailure.
 */
func (cb *CircuitBreaker) CanRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.reevaluate()

	switch cb.status {
	case Closed:
		return true
	case Open:
		return false
	case HalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenMaxRequests {
			return false
		}
		cb.halfOpenInFlight++
		return true
	default:
		return false
	}
}

// RecordSuccess notes a successful downstream call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.lastSuccessAt = &now

	switch cb.status {
	case Closed:
		cb.failures = 0
	case HalfOpen:
		if cb.halfOpenInFlight > 0 {
			cb.halfOpenInFlight--
		}
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.close()
		}
	}
}

// RecordFailure notes a failed downstream call
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.lastFailureAt = &now

	switch cb.status {
	case Closed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.open(cb.config.OpenDuration)
		}
	case HalfOpen:
		// any half-open failure reopens immediately
		if cb.halfOpenInFlight > 0 {
			cb.halfOpenInFlight--
		}
		cb.open(cb.config.OpenDuration)
	}
}

// State returns the current status after time-based re-evaluation
func (cb *CircuitBreaker) State() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.reevaluate()
	return cb.status
}

// Snapshot returns the full breaker state for operator tooling
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.reevaluate()
	return Snapshot{
		Status:        cb.status,
		Failures:      cb.failures,
		Successes:     cb.successes,
		LastFailureAt: cb.lastFailureAt,
		LastSuccessAt: cb.lastSuccessAt,
		OpenedAt:      cb.openedAt,
		NextRetryAt:   cb.nextRetryAt,
	}
}

// ForceOpen opens the breaker for the given duration regardless of counters.
// A zero duration uses the configured OpenDuration.
func (cb *CircuitBreaker) ForceOpen(duration time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if duration <= 0 {
		duration = cb.config.OpenDuration
	}
	cb.open(duration)
}

// ForceClose resets the breaker to closed regardless of counters
func (cb *CircuitBreaker) ForceClose() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.close()
}

// reevaluate promotes open -> half_open once the cooldown has elapsed.
// Callers must hold cb.mu.
func (cb *CircuitBreaker) reevaluate() {
	if cb.status != Open || cb.nextRetryAt == nil {
		return
	}
	if !cb.now().Before(*cb.nextRetryAt) {
		cb.status = HalfOpen
		cb.successes = 0
		cb.halfOpenInFlight = 0
	}
}

// open transitions to open. Callers must hold cb.mu.
func (cb *CircuitBreaker) open(duration time.Duration) {
	now := cb.now()
	next := now.Add(duration)

	cb.status = Open
	cb.openedAt = &now
	cb.nextRetryAt = &next
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenInFlight = 0
}

// close transitions to closed. Callers must hold cb.mu.
func (cb *CircuitBreaker) close() {
	cb.status = Closed
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenInFlight = 0
	cb.openedAt = nil
	cb.nextRetryAt = nil
}
