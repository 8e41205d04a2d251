// Package providertest provides a scriptable provider.Client for tests.
package providertest

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/provider"
)

// Client is a provider.Client whose behaviour is set through its func
// fields. Unset funcs succeed with zero values. Calls are counted.
type Client struct {
	Name domain.Platform

	PublishFunc  func(ctx context.Context, acct *domain.PlatformAccount, req domain.PublishRequest) (*provider.PublishResult, error)
	MetricsFunc  func(ctx context.Context, acct *domain.PlatformAccount, platformPostID string) (*domain.EngagementMetrics, error)
	RefreshFunc  func(ctx context.Context, acct *domain.PlatformAccount) (*provider.TokenGrant, error)
	WebhookFunc  func(payload []byte) ([]provider.WebhookUpdate, error)
	SignatureOK  bool
	Healthy      bool
	RateLimit    provider.RateLimitStatus
	Connectivity error

	mu      sync.Mutex
	calls   map[string]int
	tokens  []string
	queries []provider.MetricsQuery
}

var _ provider.Client = (*Client)(nil)

// New returns a healthy fake for p that accepts webhook signatures.
func New(p domain.Platform) *Client {
	return &Client{Name: p, SignatureOK: true, Healthy: true}
}

// Calls returns how many times method was invoked.
func (c *Client) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// Tokens returns the access tokens seen by Publish and GetPostMetrics.
func (c *Client) Tokens() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tokens...)
}

func (c *Client) record(method string, acct *domain.PlatformAccount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[method]++
	if acct != nil && (method == "Publish" || method == "GetPostMetrics") {
		c.tokens = append(c.tokens, acct.AccessToken)
	}
}

func (c *Client) Platform() domain.Platform { return c.Name }

func (c *Client) Publish(ctx context.Context, acct *domain.PlatformAccount, req domain.PublishRequest) (*provider.PublishResult, error) {
	c.record("Publish", acct)
	if c.PublishFunc != nil {
		return c.PublishFunc(ctx, acct, req)
	}
	return &provider.PublishResult{PlatformPostID: "post-1", PublishedAt: time.Now().UTC()}, nil
}

// MetricsQueries returns the options passed to each GetPostMetrics call.
func (c *Client) MetricsQueries() []provider.MetricsQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]provider.MetricsQuery(nil), c.queries...)
}

func (c *Client) GetPostMetrics(ctx context.Context, acct *domain.PlatformAccount, platformPostID string, opts ...provider.MetricsOption) (*domain.EngagementMetrics, error) {
	c.record("GetPostMetrics", acct)
	c.mu.Lock()
	c.queries = append(c.queries, provider.NewMetricsQuery(opts...))
	c.mu.Unlock()
	if c.MetricsFunc != nil {
		return c.MetricsFunc(ctx, acct, platformPostID)
	}
	return &domain.EngagementMetrics{}, nil
}

func (c *Client) RefreshAccessToken(ctx context.Context, acct *domain.PlatformAccount) (*provider.TokenGrant, error) {
	c.record("RefreshAccessToken", acct)
	if c.RefreshFunc != nil {
		return c.RefreshFunc(ctx, acct)
	}
	return &provider.TokenGrant{AccessToken: "refreshed", ExpiresIn: time.Hour}, nil
}

func (c *Client) ValidateWebhookSignature(payload []byte, signature string) bool {
	c.record("ValidateWebhookSignature", nil)
	return c.SignatureOK
}

func (c *Client) ProcessWebhookData(payload []byte) ([]provider.WebhookUpdate, error) {
	c.record("ProcessWebhookData", nil)
	if c.WebhookFunc != nil {
		return c.WebhookFunc(payload)
	}
	return nil, nil
}

func (c *Client) AuthorizationURL(redirectURI, state string) string {
	q := url.Values{"redirect_uri": {redirectURI}, "state": {state}}
	return "https://auth.example.com/" + string(c.Name) + "?" + q.Encode()
}

func (c *Client) CheckAPIStatus(ctx context.Context) provider.APIStatus {
	c.record("CheckAPIStatus", nil)
	return provider.APIStatus{Platform: c.Name, Healthy: c.Healthy, CheckedAt: time.Now().UTC()}
}

func (c *Client) TestConnectivity(ctx context.Context, acct *domain.PlatformAccount) error {
	c.record("TestConnectivity", acct)
	return c.Connectivity
}

func (c *Client) GetRateLimitStatus() provider.RateLimitStatus {
	s := c.RateLimit
	s.Platform = c.Name
	return s
}
