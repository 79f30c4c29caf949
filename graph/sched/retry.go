package sched

import (
	"math/rand"
	"time"
)

// RetryPolicy configures automatic retry of an async node's completion
// attempts, carried over in algorithm from the teacher's RetryPolicy /
// computeBackoff (graph/policy.go) and rescoped here to async task
// re-attempts rather than whole-node re-dispatch (per SPEC_FULL §4.7).
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts including the first.
	// 0 or 1 means no retries.
	MaxAttempts int
	// BaseDelay is the base exponential-backoff delay.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// Retryable reports whether an error is worth retrying. A nil
	// Retryable treats every error as non-retryable.
	Retryable func(error) bool
}

// ShouldRetry reports whether attempt (0-based, the attempt that just
// failed) should be retried given err.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if p.MaxAttempts <= 0 {
		return false
	}
	if attempt+1 >= p.MaxAttempts {
		return false
	}
	if p.Retryable == nil {
		return false
	}
	return p.Retryable(err)
}

// ComputeBackoff calculates the delay before retrying, following the
// teacher's formula: delay = min(base * 2^attempt, maxDelay) + jitter(0, base).
func ComputeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	exponential := base * (1 << attempt)
	if maxDelay > 0 && exponential > maxDelay {
		exponential = maxDelay
	}
	if base <= 0 {
		return exponential
	}
	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}
	return exponential + jitter
}
