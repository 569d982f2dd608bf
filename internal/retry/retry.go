// Package retry provides the bounded fixed-delay retry policy applied to
// each language-service stage call independently.
package retry

import (
	"context"
	"time"
)

const (
	// DefaultMaxRetries allows one retry after the first attempt.
	DefaultMaxRetries = 1
	// DefaultDelay is the fixed wait between attempts. No jitter, no growth.
	DefaultDelay = time.Second
)

// Policy retries a single fallible operation. The zero value performs a
// single attempt; use Default for the stage-call policy.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
}

// Default returns the policy used for every pipeline stage call.
func Default() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, Delay: DefaultDelay}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Delay <= 0 {
		p.Delay = DefaultDelay
	}
	return p
}

// Do runs fn until it succeeds or MaxRetries extra attempts are exhausted,
// sleeping Delay between attempts. The last error is returned unchanged so
// callers keep its identity and type. Cancellation of ctx during the delay
// also returns the last operation error, not the context error: the stage
// outcome is what the caller reports.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.normalized()

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if lastErr != nil {
			timer := time.NewTimer(p.Delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			}
		}
		if err := fn(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
