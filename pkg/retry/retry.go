// Package retry runs an operation again with exponential backoff and jitter.
// It is used while bootstrapping backing services; portal queries are never
// retried.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// marked carries a retry decision made by the operation itself.
type marked struct {
	err   error
	retry bool
}

func (e *marked) Error() string { return e.err.Error() }
func (e *marked) Unwrap() error { return e.err }

// Retryable marks err as worth another attempt.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, retry: true}
}

// Permanent marks err as final; Do returns the unwrapped error at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err}
}

// decision reports whether err carries a mark and which one.
func decision(err error) (m *marked, ok bool) {
	ok = errors.As(err, &m)
	return m, ok
}

// Config holds retry configuration.
type Config struct {
	// MaxAttempts counts the first call too
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFactor spreads each delay by ±factor (0 disables)
	JitterFactor float64

	// RetryIf classifies unmarked errors; when nil only Retryable errors are retried
	RetryIf func(error) bool

	// OnRetry is called before sleeping
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns 3 attempts from 100ms doubling up to 30s with 10% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// Option configures a Retrier.
type Option func(*Config)

func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m >= 1 {
			c.Multiplier = m
		}
	}
}

func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1 {
			c.JitterFactor = j
		}
	}
}

func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) { c.RetryIf = fn }
}

func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// Retrier runs operations under one Config.
type Retrier struct {
	config Config
}

// New creates a Retrier from DefaultConfig and opts.
func New(opts ...Option) *Retrier {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Retrier{config: cfg}
}

// Do calls operation until it succeeds, returns an error that should not be
// retried, the attempts run out or ctx is done. Marked errors are returned
// unwrapped.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var last error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}

		m, isMarked := decision(err)
		if isMarked {
			last = m.err
		} else {
			last = err
		}

		if !r.shouldRetry(err, m, isMarked) || attempt >= r.config.MaxAttempts {
			return last
		}

		delay := r.calculateDelay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, last, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
}

func (r *Retrier) shouldRetry(err error, m *marked, isMarked bool) bool {
	if isMarked {
		return m.retry
	}
	if r.config.RetryIf != nil {
		return r.config.RetryIf(err)
	}
	return false
}

// calculateDelay returns InitialDelay * Multiplier^(attempt-1), capped at
// MaxDelay, then jittered.
func (r *Retrier) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	delay = math.Min(delay, float64(r.config.MaxDelay))

	if r.config.JitterFactor > 0 {
		delay += delay * r.config.JitterFactor * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(delay, 0))
}

// Do runs operation with a one-off Retrier.
func Do(ctx context.Context, operation func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, operation)
}

// DoWithData is Do for operations that produce a value.
func DoWithData[T any](ctx context.Context, operation func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var result T
	err := New(opts...).Do(ctx, func(ctx context.Context) error {
		v, err := operation(ctx)
		if err == nil {
			result = v
		}
		return err
	})
	return result, err
}

// StartupRetrier returns the Retrier used to connect to Redis and Postgres on
// start: 5 attempts from 200ms up to 5s. Every error except a context
// cancellation or deadline is retried.
func StartupRetrier(onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(
		WithMaxAttempts(5),
		WithInitialDelay(200*time.Millisecond),
		WithMaxDelay(5*time.Second),
		WithMultiplier(2.0),
		WithJitter(0.2),
		WithRetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		WithOnRetry(onRetry),
	)
}
