// Package retry re-runs entity store round-trips (PostgreSQL, Redis) that failed
// on a transient error, so a dropped connection does not turn into a lost badge
// or an unpaid daily reward. Backoff is exponential with jitter.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MARKERS
// ══════════════════════════════════════════════════════════════════════════════

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Retryable marks err as worth another attempt.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// Permanent stops retries immediately. Do returns the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var r retryableError
	return errors.As(err, &r)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// unmark strips the outermost marker so callers see the driver error.
func unmark(err error) error {
	switch e := err.(type) {
	case retryableError:
		return e.err
	case permanentError:
		return e.err
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Policy describes how often and how fast to retry.
type Policy struct {
	// MaxAttempts counts the first call too.
	MaxAttempts int

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Jitter spreads each delay by ±Jitter (0..1).
	Jitter float64

	// ShouldRetry classifies errors. Nil retries only errors marked Retryable.
	ShouldRetry func(error) bool
}

// Option tweaks a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the attempt budget, first call included.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.MaxAttempts = n
		}
	}
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.BaseDelay = d
		}
	}
}

// WithMaxDelay caps a single delay.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.MaxDelay = d
		}
	}
}

// WithRetryIf installs an error classifier.
func WithRetryIf(fn func(error) bool) Option {
	return func(p *Policy) { p.ShouldRetry = fn }
}

// delay returns the backoff before retry number n (1-based).
func (p Policy) delay(n int) time.Duration {
	d := p.BaseDelay << (n - 1)
	if d <= 0 || d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * (2*rand.Float64() - 1))
	}
	return max(d, 0)
}

func (p Policy) retries(err error) bool {
	if IsRetryable(err) {
		return true
	}
	return p.ShouldRetry != nil && p.ShouldRetry(err)
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier runs operations under a Policy. It is safe for concurrent use.
type Retrier struct {
	policy Policy
}

// New creates a Retrier: 3 attempts, 100ms doubling up to 5s, 10% jitter.
func New(opts ...Option) *Retrier {
	p := Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second, Jitter: 0.1}
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{policy: p}
}

// Do runs op until it succeeds, fails permanently, runs out of attempts or
// ctx ends. The returned error has its Retryable/Permanent marker removed.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return unmark(last)
			}
			return err
		}

		last = op(ctx)
		switch {
		case last == nil:
			return nil
		case IsPermanent(last), !r.policy.retries(last), attempt >= r.policy.MaxAttempts:
			return unmark(last)
		}

		timer := time.NewTimer(r.policy.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return unmark(last)
		case <-timer.C:
		}
	}
}

// Do runs op with a one-off Retrier.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

// Run is Do for operations that return a value.
func Run[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// StoreRetrier is used by the postgres connection. isTransient decides which
// driver errors deserve another attempt.
func StoreRetrier(isTransient func(error) bool) *Retrier {
	r := New(
		WithMaxAttempts(3),
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(time.Second),
		WithRetryIf(isTransient),
	)
	r.policy.Jitter = 0.05
	return r
}

// CacheRetrier is used for best-effort Redis writes.
func CacheRetrier() *Retrier {
	return New(
		WithMaxAttempts(2),
		WithInitialDelay(20*time.Millisecond),
		WithMaxDelay(200*time.Millisecond),
	)
}
