// Package retry runs blocking operations under a bounded exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	domainErrors "github.com/jbctechsolutions/activitysync/internal/domain/errors"
)

// Policy bounds how an operation is retried.
type Policy struct {
	MaxAttempts int           // Total attempts including the first, at least 1
	BaseDelay   time.Duration // Delay before the second attempt
	Multiplier  float64       // Growth factor between delays
	MaxDelay    time.Duration // Upper bound for a single delay, 0 = unbounded
	Jitter      float64       // Randomization factor in [0, 1)
}

// Default policy values.
const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 5 * time.Second
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = time.Minute
	DefaultJitter      = 0.2
)

// DefaultPolicy returns the policy used for platform calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      DefaultJitter,
	}
}

// Validate checks that the policy describes a finite retry loop.
func (p Policy) Validate() error {
	var errs []error
	if p.MaxAttempts < 1 {
		errs = append(errs, errors.New("max_attempts must be at least 1"))
	}
	if p.BaseDelay < 0 {
		errs = append(errs, errors.New("base_delay must be non-negative"))
	}
	if p.Multiplier < 1 {
		errs = append(errs, errors.New("multiplier must be at least 1"))
	}
	if p.MaxDelay < 0 {
		errs = append(errs, errors.New("max_delay must be non-negative"))
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		errs = append(errs, errors.New("jitter must be in [0, 1)"))
	}
	return errors.Join(errs...)
}

// Delay returns the nominal delay before attempt n (n >= 2), without jitter.
func (p Policy) Delay(n int) time.Duration {
	if n < 2 {
		return 0
	}
	d := float64(p.BaseDelay)
	for i := 2; i < n; i++ {
		d *= p.Multiplier
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	} else {
		b.MaxInterval = time.Duration(1<<63 - 1)
	}
	return b
}

// Attempt describes a failed attempt that is about to be retried.
type Attempt struct {
	Number int           // 1-based number of the attempt that failed
	Err    error         // Error returned by that attempt
	Delay  time.Duration // Wait before the next attempt
}

type settings struct {
	retryIf func(error) bool
	onRetry func(Attempt)
}

// Option customizes a single Do call.
type Option func(*settings)

// WithRetryIf replaces the default classification of retryable errors.
func WithRetryIf(fn func(error) bool) Option {
	return func(s *settings) {
		s.retryIf = fn
	}
}

// WithOnRetry registers a callback invoked after each failed attempt that will be retried.
func WithOnRetry(fn func(Attempt)) Option {
	return func(s *settings) {
		s.onRetry = fn
	}
}

// Do runs op until it succeeds, returns a non-retryable error, the policy's
// attempt ceiling is reached, or ctx is done. It returns the number of
// attempts made and the last error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, opts ...Option) (int, error) {
	_, attempts, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return attempts, err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), opts ...Option) (T, int, error) {
	s := settings{retryIf: domainErrors.IsRetryable}
	for _, opt := range opts {
		opt(&s)
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempts := 0
	var lastErr error
	operation := func() (T, error) {
		attempts++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !s.retryIf(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if s.onRetry != nil {
		retryOpts = append(retryOpts, backoff.WithNotify(func(err error, next time.Duration) {
			s.onRetry(Attempt{Number: attempts, Err: err, Delay: next})
		}))
	}

	v, err := backoff.Retry(ctx, operation, retryOpts...)
	if err == nil {
		return v, attempts, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && lastErr != nil && !errors.Is(err, lastErr) {
		return v, attempts, fmt.Errorf("%w (last attempt: %v)", ctxErr, lastErr)
	}
	return v, attempts, err
}
