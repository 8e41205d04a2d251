package jobs

import (
	"math"
	"time"
)

// ExponentialBackoff doubles the delay on every attempt up to MaxDelay.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultReleaseBackoff is used when a platform gives no retry hint:
// 60s, 120s, 240s ... capped at one hour.
func DefaultReleaseBackoff() ExponentialBackoff {
	return ExponentialBackoff{
		InitialDelay: 60 * time.Second,
		MaxDelay:     time.Hour,
	}
}

// GetDelay calculates InitialDelay * 2^(attempt-1). attempt is 1-indexed.
func (b ExponentialBackoff) GetDelay(attempt int) time.Duration {
	attempt = max(attempt, 1)
	delay := float64(b.InitialDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(delay)
}

// StepBackoff returns a fixed delay per attempt and repeats the last one.
type StepBackoff []time.Duration

// DefaultStepBackoff is applied to handler errors.
func DefaultStepBackoff() StepBackoff {
	return StepBackoff{60 * time.Second, 300 * time.Second, 900 * time.Second}
}

func (s StepBackoff) GetDelay(attempt int) time.Duration {
	if len(s) == 0 {
		return 0
	}
	i := min(max(attempt, 1), len(s)) - 1
	return s[i]
}
