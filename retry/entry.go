package retry

import (
	"fmt"
	"time"
)

/* Entry represents one unit of failed work scheduled for re-attempt.
 * Lifecycle: pending -> processing -> completed, or back to pending with a
 * larger delay, or dead_letter once attempts are exhausted or the error is
 * classified permanent.
 */

// Status represents the current state of a retry entry
type Status int

const (
	Pending Status = iota + 1
	InFlight
	Completed
	Failed
	DeadLetter
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "processing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case DeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) Status {
	switch str {
	case "pending":
		return Pending
	case "processing":
		return InFlight
	case "completed":
		return Completed
	case "failed":
		return Failed
	case "dead_letter":
		return DeadLetter
	default:
		return Pending
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Pending || s > DeadLetter {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s Status) IsFinal() bool {
	return s == Completed || s == DeadLetter
}

// Entry is a scheduled re-attempt of a failed webhook delivery
type Entry struct {
	ID            string
	Source        string
	EventID       string
	EventType     string
	Payload       []byte
	Attempts      int
	MaxAttempts   int
	LastAttemptAt *time.Time
	NextAttemptAt time.Time
	CreatedAt     time.Time
	LastError     string
	Metadata      map[string]string
	Status        Status
}
