// Package retry runs platform calls with bounded, classified retries.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/socialhub/internal/infra/social/apierr"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts int             `yaml:"max_attempts"`
	Delays      []time.Duration `yaml:"delays"`
}

// DefaultConfig is three attempts waiting 1s, 3s, then 9s.
var DefaultConfig = Config{
	MaxAttempts: 3,
	Delays:      []time.Duration{1 * time.Second, 3 * time.Second, 9 * time.Second},
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type options struct {
	cfg     Config
	sleep   SleepFunc
	onRetry func(attempt int, delay time.Duration, err *apierr.Error)
	logger  *slog.Logger
	label   string
	maxWait time.Duration
}

// Option customizes a single Do call.
type Option func(*options)

// WithConfig overrides the attempt ceiling and delay schedule.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		if cfg.MaxAttempts > 0 {
			o.cfg.MaxAttempts = cfg.MaxAttempts
		}
		if len(cfg.Delays) > 0 {
			o.cfg.Delays = cfg.Delays
		}
	}
}

// WithSleep replaces the blocking wait, mostly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithOnRetry registers a callback invoked before each wait.
func WithOnRetry(fn func(attempt int, delay time.Duration, err *apierr.Error)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

// WithLabel names the operation in log lines.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}

// WithMaxWait gives up instead of waiting longer than d between attempts,
// leaving long rate-limit waits to the caller.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) {
		o.maxWait = d
	}
}

// Do calls fn until it succeeds, fails fatally, or runs out of attempts.
//
// The delay before attempt n+1 is the failure's RetryAfter when present,
// else Delays[n-1], else the last configured delay. When attempts run out
// the last real failure is returned unchanged. Errors that are not
// *apierr.Error are classified with apierr.ClassifyErr.
func Do[T any](ctx context.Context, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{
		cfg:    DefaultConfig,
		sleep:  sleepWithContext,
		logger: slog.Default(),
		label:  "platform call",
	}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	var lastErr *apierr.Error

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = apierr.ClassifyErr(err)
		if !lastErr.IsRetryable {
			return zero, lastErr
		}
		if attempt == o.cfg.MaxAttempts {
			break
		}

		delay := delayFor(attempt, o.cfg.Delays, lastErr)
		if o.maxWait > 0 && delay > o.maxWait {
			break
		}
		o.logger.Debug("Retrying platform call",
			"op", o.label,
			"attempt", attempt,
			"delay", delay,
			"rate_limited", lastErr.IsRateLimit,
			"error", lastErr.Error(),
		)
		if o.onRetry != nil {
			o.onRetry(attempt, delay, lastErr)
		}

		if err := o.sleep(ctx, delay); err != nil {
			return zero, errors.Join(lastErr, err)
		}
	}

	return zero, lastErr
}

// delayFor picks the wait after the given 1-based attempt failed.
func delayFor(attempt int, delays []time.Duration, err *apierr.Error) time.Duration {
	if d, ok := err.RetryAfter(); ok {
		return d
	}
	if len(delays) == 0 {
		return 0
	}
	if attempt-1 < len(delays) {
		return delays[attempt-1]
	}
	return delays[len(delays)-1]
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
