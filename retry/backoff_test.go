package retry_test

import (
	"testing"
	"time"

	"github.com/marcelsud/webhook-pipeline/retry"
	"github.com/stretchr/testify/assert"
)

func TestDelayBounds(t *testing.T) {
	policy := retry.Policy{
		MaxAttempts:  5,
		BaseDelay:    time.Second,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2,
		JitterFactor: 0.3,
	}

	// jitter is random: sample each attempt many times against the bound
	// [base, max*(1+jitter)]
	upperBound := time.Duration(float64(policy.MaxDelay) * (1 + policy.JitterFactor))
	for attempt := 0; attempt < 12; attempt++ {
		for i := 0; i < 200; i++ {
			delay := policy.Delay(attempt)
			assert.GreaterOrEqual(t, delay, policy.BaseDelay,
				"attempt %d produced a delay below the base", attempt)
			assert.LessOrEqual(t, delay, upperBound,
				"attempt %d exceeded the jittered max", attempt)
		}
	}
}

func TestDelayGrowsInExpectation(t *testing.T) {
	policy := retry.Policy{
		MaxAttempts:  5,
		BaseDelay:    time.Second,
		MaxDelay:     time.Hour,
		Multiplier:   2,
		JitterFactor: 0.3,
	}

	average := func(attempt int) time.Duration {
		var total time.Duration
		const samples = 500
		for i := 0; i < samples; i++ {
			total += policy.Delay(attempt)
		}
		return total / samples
	}

	previous := average(0)
	for attempt := 1; attempt < 6; attempt++ {
		current := average(attempt)
		assert.Greater(t, current, previous,
			"expected mean delay to grow from attempt %d to %d", attempt-1, attempt)
		previous = current
	}
}

func TestDelayClampsAtMax(t *testing.T) {
	policy := retry.Policy{
		MaxAttempts:  5,
		BaseDelay:    time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2,
		JitterFactor: 0, // deterministic
	}

	assert.Equal(t, time.Second, policy.Delay(0))
	assert.Equal(t, 2*time.Second, policy.Delay(1))
	assert.Equal(t, 4*time.Second, policy.Delay(2))
	assert.Equal(t, 4*time.Second, policy.Delay(10))
}

func TestDelayNegativeAttempt(t *testing.T) {
	policy := retry.DefaultPolicy()
	assert.GreaterOrEqual(t, policy.Delay(-3), policy.BaseDelay)
}

func TestClassifier(t *testing.T) {
	classifier := retry.NewClassifier()

	t.Run("transient errors are retryable", func(t *testing.T) {
		for _, message := range []string{
			"dial tcp 10.0.0.1:443: connection refused",
			"context deadline exceeded",
			"Post \"https://api\": net/http: request timed out",
			"lookup api.partner.io: no such host",
			"upstream returned 503 Service Unavailable",
			"rate limit exceeded, retry later",
			"HTTP 429 Too Many Requests",
		} {
			assert.True(t, classifier.Retryable(assertableError(message)), message)
		}
	})

	t.Run("permanent errors are not retryable", func(t *testing.T) {
		for _, message := range []string{
			"invalid signature",
			"unknown event type",
			"payload validation failed: missing field amount",
			"403 Forbidden",
		} {
			assert.False(t, classifier.Retryable(assertableError(message)), message)
		}
	})

	t.Run("nil error is not retryable", func(t *testing.T) {
		assert.False(t, classifier.Retryable(nil))
	})

	t.Run("extra markers extend the allow-list", func(t *testing.T) {
		custom := retry.NewClassifier("tenant quota exceeded")
		assert.True(t, custom.Retryable(assertableError("tenant quota exceeded for acme")))
		assert.False(t, classifier.Retryable(assertableError("tenant quota exceeded for acme")))
	})
}

type assertableError string

func (e assertableError) Error() string { return string(e) }
