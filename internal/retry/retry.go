// Package retry provides the bounded retry-with-delay combinator used around
// lease store operations.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Default returns the policy used when nothing is configured: 3 attempts,
// 5 seconds apart.
func Default() Policy {
	return Policy{
		Attempts: 3,
		Delay:    5 * time.Second,
		Clock:    clock.WallClock,
	}
}

// Do calls fn until it succeeds, the attempts are exhausted or ctx is done.
// After exhaustion the error returned wraps the last error fn produced.
// Context errors returned by fn are never retried.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	p = p.withDefaults()

	var (
		attempts int
		last     error
	)
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempts++
			last = fn()
			return last
		},
		IsFatalError: isContextError,
		NotifyFunc: func(err error, attempt int) {
			if attempt >= p.Attempts {
				return
			}
			p.Logger.Warn("attempt failed, retrying",
				"op", op,
				"attempt", attempt,
				"delay", p.Delay,
				"error", err,
			)
		},
		Attempts: p.Attempts,
		Delay:    p.Delay,
		Clock:    p.Clock,
		Stop:     ctx.Done(),
	})
	if err == nil {
		return nil
	}

	// Errors from juju/retry do not unwrap; wrap what fn returned.
	switch {
	case retry.IsRetryStopped(err):
		return fmt.Errorf("%s: stopped after %d attempts: %w", op, attempts, errors.Join(ctx.Err(), last))
	case retry.IsAttemptsExceeded(err):
		return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, last)
	case last != nil:
		return fmt.Errorf("%s: %w", op, last)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	// juju/retry rejects a zero delay.
	if p.Delay <= 0 {
		p.Delay = time.Nanosecond
	}
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
