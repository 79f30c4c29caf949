package sched

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestRetryPolicyShouldRetryRespectsMaxAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, Retryable: func(error) bool { return true }}
	if !p.ShouldRetry(0, errors.New("transient")) {
		t.Fatal("expected attempt 0 of 2 to be retried")
	}
	if p.ShouldRetry(1, errors.New("transient")) {
		t.Fatal("expected attempt 1 of 2 (the last) not to be retried")
	}
}

func TestRetryPolicyShouldRetryHonorsRetryablePredicate(t *testing.T) {
	permanent := errors.New("permanent")
	p := RetryPolicy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}
	if p.ShouldRetry(0, permanent) {
		t.Fatal("expected a non-retryable error to not be retried")
	}
	if !p.ShouldRetry(0, errors.New("flaky")) {
		t.Fatal("expected a retryable error to be retried")
	}
}

func TestRetryPolicyZeroMaxAttemptsNeverRetries(t *testing.T) {
	p := RetryPolicy{}
	if p.ShouldRetry(0, errors.New("x")) {
		t.Fatal("expected a zero-value RetryPolicy to never retry")
	}
}

func TestRetryPolicyNilRetryableNeverRetries(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5}
	if p.ShouldRetry(0, errors.New("x")) {
		t.Fatal("expected a nil Retryable to never retry")
	}
}

func TestComputeBackoffCapsAtMaxDelay(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := 10 * time.Millisecond
	maxDelay := 50 * time.Millisecond

	// A high attempt count would overflow past maxDelay without the cap.
	d := ComputeBackoff(10, base, maxDelay, rng)
	if d > maxDelay+base {
		t.Fatalf("got %v, want capped near maxDelay+jitter (%v)", d, maxDelay+base)
	}
}

func TestComputeBackoffGrowsExponentiallyBeforeCap(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := 10 * time.Millisecond
	maxDelay := time.Hour

	d0 := ComputeBackoff(0, base, maxDelay, rng)
	d1 := ComputeBackoff(1, base, maxDelay, rng)
	if d0 < base || d0 >= 2*base {
		t.Fatalf("attempt 0 delay %v should fall in [base, 2*base) = [%v, %v)", d0, base, 2*base)
	}
	if d1 < 2*base || d1 >= 3*base {
		t.Fatalf("attempt 1 delay %v should fall in [2*base, 3*base) = [%v, %v)", d1, 2*base, 3*base)
	}
}
