package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/apierr"
	"github.com/vietddude/socialhub/internal/metrics"
)

const maxResponseBytes = 4 << 20

// BreakerConfig configures the per-platform circuit breaker. The breaker
// trips when Failures of the last Executions calls were transient or rate
// limited; fatal failures count as successes.
type BreakerConfig struct {
	Failures         uint          `yaml:"failures"`
	Executions       uint          `yaml:"executions"`
	Delay            time.Duration `yaml:"delay"`
	SuccessThreshold uint          `yaml:"success_threshold"`
}

// DefaultBreakerConfig trips on 5 of 10 and probes again after 30s.
var DefaultBreakerConfig = BreakerConfig{
	Failures:         5,
	Executions:       10,
	Delay:            30 * time.Second,
	SuccessThreshold: 1,
}

// Options holds transport settings shared by every client.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Breaker    BreakerConfig
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{
			Timeout: o.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if o.Breaker.Executions == 0 {
		o.Breaker.Executions = DefaultBreakerConfig.Executions
	}
	if o.Breaker.Failures == 0 || o.Breaker.Failures > o.Breaker.Executions {
		o.Breaker.Failures = min(DefaultBreakerConfig.Failures, o.Breaker.Executions)
	}
	if o.Breaker.Delay <= 0 {
		o.Breaker.Delay = DefaultBreakerConfig.Delay
	}
	if o.Breaker.SuccessThreshold == 0 {
		o.Breaker.SuccessThreshold = DefaultBreakerConfig.SuccessThreshold
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// baseClient implements the transport shared by all platforms: request
// building, failure classification, usage tracking and the circuit breaker.
type baseClient struct {
	platform     domain.Platform
	httpClient   *http.Client
	breaker      circuitbreaker.CircuitBreaker[any]
	breakerDelay time.Duration
	monitor      *UsageMonitor
	logger       *slog.Logger
}

func newBaseClient(platform domain.Platform, opts Options) *baseClient {
	opts = opts.withDefaults()
	logger := opts.Logger.With("platform", platform.String())

	breaker := circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(opts.Breaker.Failures, opts.Breaker.Executions).
		WithDelay(opts.Breaker.Delay).
		WithSuccessThreshold(opts.Breaker.SuccessThreshold).
		HandleIf(func(_ any, err error) bool {
			return err != nil && apierr.KindOf(err) != apierr.KindFatal
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.Warn("Circuit breaker state change",
				"from", breakerStateName(event.OldState),
				"to", breakerStateName(event.NewState),
			)
			metrics.BreakerState.WithLabelValues(platform.String()).Set(breakerStateValue(event.NewState))
		}).
		Build()

	return &baseClient{
		platform:     platform,
		httpClient:   opts.HTTPClient,
		breaker:      breaker,
		breakerDelay: opts.Breaker.Delay,
		monitor:      NewUsageMonitor(),
		logger:       logger,
	}
}

func breakerStateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}

func breakerStateValue(s circuitbreaker.State) float64 {
	switch s {
	case circuitbreaker.OpenState:
		return 2
	case circuitbreaker.HalfOpenState:
		return 1
	default:
		return 0
	}
}

// Platform returns the platform this client talks to.
func (c *baseClient) Platform() domain.Platform {
	return c.platform
}

// GetRateLimitStatus reports the usage monitor snapshot.
func (c *baseClient) GetRateLimitStatus() RateLimitStatus {
	st := c.monitor.Status()
	st.Platform = c.platform
	return st
}

// apiRequest describes one platform HTTP call.
type apiRequest struct {
	op     string
	method string
	url    string
	query  url.Values
	form   url.Values
	body   any
	bearer string
	header http.Header

	// respHeader, when set, receives the response headers of a 2xx reply.
	respHeader *http.Header
}

func (r apiRequest) build(ctx context.Context) (*http.Request, error) {
	target := r.url
	if len(r.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + r.query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case r.form != nil:
		body = strings.NewReader(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.body != nil:
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// do executes r through the circuit breaker and decodes a 2xx body into out.
// Every failure is an *apierr.Error tagged with r.op.
func (c *baseClient) do(ctx context.Context, r apiRequest, out any) error {
	start := time.Now()
	_, err := failsafe.With[any](c.breaker).WithContext(ctx).Get(func() (any, error) {
		return nil, c.roundTrip(ctx, r, out)
	})

	platform := c.platform.String()
	metrics.PlatformLatency.WithLabelValues(platform, r.op).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.PlatformCallsTotal.WithLabelValues(platform, r.op, apierr.KindNone.String()).Inc()
		return nil
	}

	var apiErr *apierr.Error
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		apiErr = apierr.New(0, fmt.Sprintf("%s circuit breaker is open", c.platform.DisplayName()), false, true).
			WithRetryAfter(c.breakerDelay).
			WithCause(err)
	default:
		apiErr = apierr.ClassifyErr(err)
	}
	if apiErr.Op == "" {
		apiErr = apiErr.WithOp(r.op)
	}

	metrics.PlatformCallsTotal.WithLabelValues(platform, r.op, apiErr.Kind().String()).Inc()
	c.logger.Debug("Platform call failed",
		"op", r.op,
		"status", apiErr.HTTPStatus,
		"kind", apiErr.Kind().String(),
		"error", apiErr.Message,
	)
	return apiErr
}

func (c *baseClient) roundTrip(ctx context.Context, r apiRequest, out any) error {
	req, err := r.build(ctx)
	if err != nil {
		return apierr.Fatal(err.Error()).WithCause(err).WithOp(r.op)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierr.ClassifyErr(err).WithOp(r.op)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.monitor.RecordRequest(time.Since(start))
	c.monitor.ObserveHeaders(resp.Header)
	if err != nil {
		return apierr.ClassifyErr(fmt.Errorf("read response: %w", err)).WithOp(r.op)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := apierr.Classify(resp.StatusCode, resp.Header, body).WithOp(r.op)
		if apiErr.IsRateLimit {
			ra, _ := apiErr.RetryAfter()
			c.monitor.RecordThrottle(ra)
		}
		return apiErr
	}

	if r.respHeader != nil {
		*r.respHeader = resp.Header.Clone()
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apierr.Fatal(fmt.Sprintf("decode response: %v", err)).WithCause(err).WithOp(r.op)
	}
	return nil
}

// breakerState reports the breaker state for health output.
func (c *baseClient) breakerState() string {
	return breakerStateName(c.breaker.State())
}

// probe issues a cheap GET and reports reachability. Any HTTP response,
// including 4xx, counts as reachable.
func (c *baseClient) probe(ctx context.Context, target string) APIStatus {
	status := APIStatus{Platform: c.platform, CheckedAt: time.Now()}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		status.Message = err.Error()
		status.Breaker = c.breakerState()
		return status
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	status.Latency = time.Since(start)
	status.Breaker = c.breakerState()
	if err != nil {
		status.Message = err.Error()
		return status
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	status.Healthy = resp.StatusCode < 500 && status.Breaker != "open"
	if !status.Healthy {
		status.Message = fmt.Sprintf("status %d, breaker %s", resp.StatusCode, status.Breaker)
	}
	return status
}
