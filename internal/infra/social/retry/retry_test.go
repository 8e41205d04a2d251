package retry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/vietddude/socialhub/internal/infra/social/apierr"
)

type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestDoSuccessCallsOnce(t *testing.T) {
	rec := &recorder{}
	calls := 0
	got, err := Do(context.Background(), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	}, WithSleep(rec.sleep))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("got %q after %d calls, want ok after 1", got, calls)
	}
	if len(rec.delays) != 0 {
		t.Errorf("slept %v, want no sleeps", rec.delays)
	}
}

func TestDoNonRetryableCallsOnce(t *testing.T) {
	rec := &recorder{}
	calls := 0
	fatal := apierr.New(http.StatusBadRequest, "Invalid parameter", false, false)

	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, fatal
	}, WithSleep(rec.sleep))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr != fatal {
		t.Errorf("err = %v, want the original failure", err)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	for _, n := range []int{2, 3, 5} {
		rec := &recorder{}
		calls := 0
		_, err := Do(context.Background(), func(context.Context) (bool, error) {
			calls++
			if calls < n {
				return false, apierr.New(http.StatusServiceUnavailable, "unavailable", false, true)
			}
			return true, nil
		}, WithSleep(rec.sleep), WithConfig(Config{MaxAttempts: n}))

		if err != nil {
			t.Fatalf("max=%d: unexpected error: %v", n, err)
		}
		if calls != n {
			t.Errorf("max=%d: calls = %d", n, calls)
		}
		if len(rec.delays) != n-1 {
			t.Errorf("max=%d: slept %d times, want %d", n, len(rec.delays), n-1)
		}
	}
}

func TestDoExhaustedReturnsLastFailure(t *testing.T) {
	rec := &recorder{}
	calls := 0
	var last *apierr.Error

	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		last = apierr.New(http.StatusBadGateway, "bad gateway", false, true)
		return 0, last
	}, WithSleep(rec.sleep))

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr != last {
		t.Errorf("err = %v, want the last failure", err)
	}
	want := []time.Duration{1 * time.Second, 3 * time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", rec.delays, want)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, rec.delays[i], want[i])
		}
	}
}

func TestDoUsesRetryAfter(t *testing.T) {
	rec := &recorder{}
	calls := 0
	_, _ = Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, apierr.New(http.StatusTooManyRequests, "rate limit", true, true).WithRetryAfter(42 * time.Second)
	}, WithSleep(rec.sleep), WithConfig(Config{MaxAttempts: 2}))

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(rec.delays) != 1 || rec.delays[0] != 42*time.Second {
		t.Errorf("delays = %v, want [42s]", rec.delays)
	}
}

func TestDoReusesLastDelay(t *testing.T) {
	rec := &recorder{}
	_, _ = Do(context.Background(), func(context.Context) (int, error) {
		return 0, io.ErrUnexpectedEOF
	}, WithSleep(rec.sleep), WithConfig(Config{MaxAttempts: 4, Delays: []time.Duration{time.Second, 2 * time.Second}}))

	want := []time.Duration{time.Second, 2 * time.Second, 2 * time.Second}
	if len(rec.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", rec.delays, want)
	}
	for i := range want {
		if rec.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, rec.delays[i], want[i])
		}
	}
}

func TestDoClassifiesPlainErrors(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("decode response: unexpected token")
	}, WithSleep((&recorder{}).sleep))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if apierr.KindOf(err) != apierr.KindFatal {
		t.Errorf("kind = %v, want fatal", apierr.KindOf(err))
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, apierr.New(http.StatusServiceUnavailable, "unavailable", false, true)
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		t.Errorf("err = %v, want the platform failure attached", err)
	}
}

func TestDoOnRetryCallback(t *testing.T) {
	var attempts []int
	_, _ = Do(context.Background(), func(context.Context) (int, error) {
		return 0, apierr.New(http.StatusInternalServerError, "boom", false, true)
	}, WithSleep((&recorder{}).sleep), WithOnRetry(func(attempt int, _ time.Duration, _ *apierr.Error) {
		attempts = append(attempts, attempt)
	}))

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", attempts)
	}
}

func TestDoMaxWaitReturnsInsteadOfSleeping(t *testing.T) {
	rec := &recorder{}
	calls := 0
	limited := apierr.New(http.StatusTooManyRequests, "Too many requests", true, true).WithRetryAfter(time.Hour)

	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, limited
	}, WithSleep(rec.sleep), WithMaxWait(time.Minute))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(rec.delays) != 0 {
		t.Errorf("slept %v, want no sleeps", rec.delays)
	}
	apiErr, ok := apierr.As(err)
	if !ok || !apiErr.IsRateLimit {
		t.Fatalf("err = %v, want the rate limit failure", err)
	}
	if d, _ := apiErr.RetryAfter(); d != time.Hour {
		t.Errorf("RetryAfter = %v, want 1h", d)
	}
}
