// Package uploader drives the remote commerce API: batched creation,
// variation link-up and retry with precise per-sku outcomes.
package uploader

import (
	"context"
	"time"

	"catalog-import-service/internal/clients"
)

// RetryPolicy defines the single retry behavior threaded through the
// uploader. It is not the remote client's concern.
type RetryPolicy struct {
	MaxAttempts int           // Total attempts, including the first
	BaseDelay   time.Duration // Delay before the second attempt
	MaxDelay    time.Duration // Cap on the exponential backoff
}

// DefaultRetryPolicy returns the production defaults: 3 attempts with 1s,
// 2s, 4s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// RetryResult reports how an operation fared across attempts.
type RetryResult struct {
	Attempts      int
	Err           error
	TotalDuration time.Duration
}

// Retrier executes operations with exponential backoff. Only transient
// remote errors are retried; everything else is terminal on first sight.
type Retrier struct {
	policy RetryPolicy
}

// NewRetrier creates a retrier with the given policy. Zero fields fall back
// to defaults.
func NewRetrier(policy RetryPolicy) *Retrier {
	def := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = def.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = def.MaxDelay
	}
	return &Retrier{policy: policy}
}

// Backoff returns the delay inserted after a failed attempt (1-based):
// BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (r *Retrier) Backoff(attempt int) time.Duration {
	delay := r.policy.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= r.policy.MaxDelay {
			return r.policy.MaxDelay
		}
	}
	if delay > r.policy.MaxDelay {
		return r.policy.MaxDelay
	}
	return delay
}

// AttemptFunc is one try of a retriable operation.
type AttemptFunc func(ctx context.Context) error

// Do runs fn up to MaxAttempts times. The context is consulted between
// attempts only; an in-flight attempt is never interrupted here.
func (r *Retrier) Do(ctx context.Context, fn AttemptFunc) *RetryResult {
	result := &RetryResult{}
	start := time.Now()

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		result.Attempts = attempt
		result.Err = fn(ctx)

		if result.Err == nil || !clients.IsTransient(result.Err) {
			break
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			result.TotalDuration = time.Since(start)
			return result
		case <-time.After(r.Backoff(attempt)):
		}
	}

	result.TotalDuration = time.Since(start)
	return result
}
