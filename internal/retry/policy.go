// Package retry provides the retry policy applied to reasoning-provider calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy configures bounded retries with exponential backoff.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // upper bound for any single delay
	Multiplier  float64       // growth factor between consecutive delays
	Jitter      bool          // scale each delay by a random factor in [0.5, 1.5)

	// Retryable decides whether an error is worth another attempt.
	// A nil Retryable retries every error.
	Retryable func(error) bool

	// OnRetry is called before sleeping; attempt is the 1-based number of
	// the attempt that just failed.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultPolicy returns 3 attempts with a 500ms base delay doubling up to 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Validate reports configuration errors.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max_attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return errors.New("retry: delays must not be negative")
	}
	if p.Multiplier != 0 && p.Multiplier < 1 {
		return fmt.Errorf("retry: multiplier must be >= 1, got %g", p.Multiplier)
	}
	return nil
}

// Delay returns the wait before retry n (0-indexed).
func (p Policy) Delay(n int) time.Duration {
	mult := p.Multiplier
	if mult == 0 {
		mult = 2.0
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(n))
	if p.Jitter {
		d *= 0.5 + rand.Float64()
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// exponential adapts Policy.Delay to backoff.BackOff.
type exponential struct {
	policy Policy
	n      int
}

func (e *exponential) NextBackOff() time.Duration {
	d := e.policy.Delay(e.n)
	e.n++
	return d
}

func (e *exponential) Reset() { e.n = 0 }

// Do runs fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent or ctx is done. The error of the last attempt is returned.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	op := func() (T, error) {
		attempt++
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, delay time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(err, attempt, delay)
		}
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(&exponential{policy: p}),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}
