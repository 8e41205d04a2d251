// Package apierr classifies platform API failures.
//
// Every failure returned by a platform client is an *Error carrying the
// classification flags the retry executor and the metrics job act on:
//   - IsRateLimit: the platform asked us to slow down
//   - IsRetryable: trying again later may succeed (always true when IsRateLimit)
//   - RetryAfter: a server-suggested delay, when one was sent
package apierr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the taxonomy bucket of a failure.
type Kind int

const (
	KindNone Kind = iota
	KindRateLimited
	KindTransient
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the failure half of a platform call outcome.
type Error struct {
	// Op names the step that failed, e.g. "create media container".
	Op          string
	Message     string
	HTTPStatus  int
	IsRateLimit bool
	IsRetryable bool

	retryAfter    time.Duration
	hasRetryAfter bool
	cause         error
}

// New builds an Error and enforces IsRateLimit => IsRetryable.
func New(status int, message string, rateLimit, retryable bool) *Error {
	return &Error{
		Message:     message,
		HTTPStatus:  status,
		IsRateLimit: rateLimit,
		IsRetryable: retryable || rateLimit,
	}
}

// Fatal builds a non-retryable Error that never reached the network.
func Fatal(message string) *Error {
	return New(0, message, false, false)
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// RetryAfter returns the server-suggested delay, if any.
func (e *Error) RetryAfter() (time.Duration, bool) {
	return e.retryAfter, e.hasRetryAfter
}

// WithRetryAfter returns a copy carrying a server-suggested delay.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	c := *e
	if d < 0 {
		d = 0
	}
	c.retryAfter = d
	c.hasRetryAfter = true
	return &c
}

// WithOp returns a copy tagged with the failing step.
func (e *Error) WithOp(op string) *Error {
	c := *e
	c.Op = op
	return &c
}

// WithCause returns a copy wrapping the underlying error.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.cause = err
	return &c
}

// Kind returns the taxonomy bucket of e.
func (e *Error) Kind() Kind {
	switch {
	case e.IsRateLimit:
		return KindRateLimited
	case e.IsRetryable:
		return KindTransient
	default:
		return KindFatal
	}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// KindOf classifies any error, falling back to ClassifyErr for errors that
// did not come from a platform response.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	return ClassifyErr(err).Kind()
}
