package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy is a bounded retry policy with a fixed backoff between attempts.
// The worst-case time spent sleeping is (MaxAttempts-1) * Backoff.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	// A value of 1 disables retries. Default: 5.
	MaxAttempts int

	// Backoff is the fixed wait between attempts. Default: 2s.
	Backoff time.Duration

	// ShouldRetry overrides the transient-error check. If nil, IsTransient
	// is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each backoff sleep with the attempt that
	// just failed (1-based) and its error.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns the provider retry policy: 5 attempts, 2s apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Backoff:     2 * time.Second,
	}
}

// WithLogging returns a copy of p whose OnRetry logs each retry.
func (p Policy) WithLogging(service, operation string) Policy {
	p.OnRetry = RetryLogger(service, operation)
	return p
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = IsTransient
	}
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted, or ctx is done. Only the last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that produce a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !p.ShouldRetry(err) || attempt == p.MaxAttempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		if p.Backoff > 0 {
			timer := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, lastErr
			case <-timer.C:
			}
		}
	}
	return zero, lastErr
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
