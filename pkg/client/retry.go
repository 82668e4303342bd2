package client

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls how idempotent requests are retried on transient
// failures. Only GET requests are retried: task creation is never replayed
// automatically, so a flaky network cannot create duplicate tasks.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffFactor     float64
	RetryableStatuses []int
}

// DefaultRetryPolicy returns sensible retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffFactor:     2.0,
		RetryableStatuses: []int{429, 500, 502, 503, 504},
	}
}

// isRetryable reports whether a status code should trigger a retry.
func (p RetryPolicy) isRetryable(statusCode int) bool {
	for _, code := range p.RetryableStatuses {
		if statusCode == code {
			return true
		}
	}
	return false
}

// backoff calculates the exponential backoff delay for an attempt, with
// jitter so concurrent clients do not retry in lockstep.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt))

	// Apply jitter (±25%)
	jitter := delay * 0.25 * (2*rand.Float64() - 1)
	delay += jitter

	if delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}

	return time.Duration(delay)
}
