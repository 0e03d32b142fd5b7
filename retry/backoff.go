package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy tunes the exponential backoff schedule
type Policy struct {
	// MaxAttempts is the retry budget before dead-lettering
	MaxAttempts int
	// BaseDelay is the delay before the first re-attempt and the jitter floor
	BaseDelay time.Duration
	// MaxDelay caps the un-jittered exponential growth
	MaxDelay time.Duration
	// Multiplier is the exponential growth factor per attempt
	Multiplier float64
	// JitterFactor randomizes the delay by +/- this fraction to avoid
	// synchronized retry storms
	JitterFactor float64
}

// DefaultPolicy returns the production backoff schedule
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		BaseDelay:    time.Second,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2,
		JitterFactor: 0.3,
	}
}

/* Delay computes the jittered backoff for the given attempt number:
 * clamp(base * multiplier^attempt, max), then randomized within
 * +/- jitterFactor, never below BaseDelay.
 */
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	jittered := delay + (rand.Float64()-0.5)*2*delay*p.JitterFactor
	if jittered < float64(p.BaseDelay) {
		return p.BaseDelay
	}
	return time.Duration(jittered)
}

// normalize fills zero-valued fields with defaults
func (p Policy) normalize() Policy {
	defaults := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaults.MaxDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = defaults.Multiplier
	}
	if p.JitterFactor < 0 || p.JitterFactor >= 1 {
		p.JitterFactor = defaults.JitterFactor
	}
	return p
}
