// Package retry runs fallible operations with bounded attempts and
// exponential backoff. Exhaustion is reported through Outcome rather than an
// error so callers decide explicitly whether to degrade or fail.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy describes the attempt budget. After failed attempt k (1-based) the
// executor waits 2^k * BaseDelay, so the default policy waits 2s, 4s and 8s.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}

// Delays returns the wait that follows each failed attempt. No jitter.
func (p Policy) Delays() []time.Duration {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()

	delays := make([]time.Duration, p.MaxAttempts)
	for i := range delays {
		delays[i] = b.NextBackOff()
	}
	return delays
}

// Outcome is the result of Do. Err is nil on success. When the budget is
// spent Exhausted is set, Value holds the caller's fallback and Err the last
// failure. Cancelled is set when the context ended first.
type Outcome[T any] struct {
	Value     T
	Attempts  int
	Err       error
	Exhausted bool
	Cancelled bool
}

// Executor applies a Policy to operations. The zero value is not usable; use New.
type Executor struct {
	name   string
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

type Option func(*Executor)

// WithSleep replaces the wait between attempts. The function must return
// ctx.Err() if the context ends before d elapses.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

// New creates an executor; name identifies the operation in logs.
func New(name string, p Policy, opts ...Option) *Executor {
	e := &Executor{
		name:   name,
		policy: p.withDefaults(),
		sleep:  sleepContext,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Executor) Policy() Policy { return e.policy }

// Do runs op until it succeeds or the policy's attempts are spent. A backoff
// wait follows every failed attempt, including the last one.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error), fallback T) Outcome[T] {
	delays := e.policy.Delays()

	var lastErr error
	for attempt := 1; attempt <= len(delays); attempt++ {
		if err := ctx.Err(); err != nil {
			return cancelled(fallback, attempt-1, err, lastErr)
		}

		v, err := op(ctx)
		if err == nil {
			return Outcome[T]{Value: v, Attempts: attempt}
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return cancelled(fallback, attempt, ctxErr, lastErr)
		}

		wait := delays[attempt-1]
		slog.Warn("attempt failed, backing off", "op", e.name,
			"attempt", attempt, "max_attempts", len(delays),
			"wait", wait.String(), "error", err)

		if err := e.sleep(ctx, wait); err != nil {
			return cancelled(fallback, attempt, err, lastErr)
		}
	}

	slog.Error("retries exhausted", "op", e.name, "attempts", len(delays), "error", lastErr)
	return Outcome[T]{Value: fallback, Attempts: len(delays), Err: lastErr, Exhausted: true}
}

func cancelled[T any](fallback T, attempts int, ctxErr, lastErr error) Outcome[T] {
	err := ctxErr
	if lastErr != nil {
		err = fmt.Errorf("%w (last error: %v)", ctxErr, lastErr)
	}
	return Outcome[T]{Value: fallback, Attempts: attempts, Err: err, Cancelled: true}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
