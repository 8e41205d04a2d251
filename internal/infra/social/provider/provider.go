// Package provider implements the per-platform API clients.
//
// This package contains:
//   - Client interface: the contract every platform implements
//   - FacebookClient, InstagramClient, LinkedInClient: Graph and LinkedIn REST wrappers
//   - UsageMonitor: latency, throttle and quota tracking per platform
//   - Registry: platform to client lookup built once at startup
//
// Every HTTP failure is returned as an *apierr.Error.
package provider

import (
	"context"
	"time"

	"github.com/vietddude/socialhub/internal/core/domain"
)

const (
	DefaultGraphURL         = "https://graph.facebook.com/v18.0"
	DefaultGraphDialogURL   = "https://www.facebook.com/v18.0/dialog/oauth"
	DefaultLinkedInURL      = "https://api.linkedin.com/v2"
	DefaultLinkedInOAuthURL = "https://www.linkedin.com/oauth/v2"
)

// Client is implemented by every platform API wrapper.
type Client interface {
	// Platform identifies the client.
	Platform() domain.Platform

	// Publish creates a post on the platform. It is attempted once per call;
	// callers that need resilience wrap it with retry.Do.
	Publish(ctx context.Context, acct *domain.PlatformAccount, req domain.PublishRequest) (*PublishResult, error)

	// GetPostMetrics fetches the latest engagement snapshot of a post.
	GetPostMetrics(ctx context.Context, acct *domain.PlatformAccount, platformPostID string, opts ...MetricsOption) (*domain.EngagementMetrics, error)

	// RefreshAccessToken exchanges the account's credentials for fresh tokens.
	RefreshAccessToken(ctx context.Context, acct *domain.PlatformAccount) (*TokenGrant, error)

	// ValidateWebhookSignature checks the signature header against the raw body.
	ValidateWebhookSignature(payload []byte, signature string) bool

	// ProcessWebhookData turns a webhook body into metric deltas.
	ProcessWebhookData(payload []byte) ([]WebhookUpdate, error)

	// AuthorizationURL builds the consent URL the user is redirected to.
	AuthorizationURL(redirectURI, state string) string

	CheckAPIStatus(ctx context.Context) APIStatus
	TestConnectivity(ctx context.Context, acct *domain.PlatformAccount) error
	GetRateLimitStatus() RateLimitStatus
}

// MetricsQuery carries what the caller already knows about a post.
type MetricsQuery struct {
	// OrganizationID is the company page that authored the post, if any.
	OrganizationID string
}

// MetricsOption narrows a GetPostMetrics call.
type MetricsOption func(*MetricsQuery)

// ForOrganization marks the post as authored by an organization.
func ForOrganization(orgID string) MetricsOption {
	return func(q *MetricsQuery) {
		q.OrganizationID = orgID
	}
}

// NewMetricsQuery applies opts.
func NewMetricsQuery(opts ...MetricsOption) MetricsQuery {
	var q MetricsQuery
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// PublishResult is the success payload of Publish.
type PublishResult struct {
	PlatformPostID string    `json:"platform_post_id"`
	URL            string    `json:"url,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
}

// TokenGrant is the success payload of RefreshAccessToken.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// TokenUpdate converts the grant into the repository update, keeping the
// previous refresh token when the platform did not rotate it.
func (g *TokenGrant) TokenUpdate(acct *domain.PlatformAccount, now time.Time) domain.TokenUpdate {
	upd := domain.TokenUpdate{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
	}
	if upd.RefreshToken == "" {
		upd.RefreshToken = acct.RefreshToken
	}
	if g.ExpiresIn > 0 {
		exp := now.Add(g.ExpiresIn)
		upd.ExpiresAt = &exp
	}
	return upd
}

// WebhookUpdate is a single metric delta carried by a webhook delivery.
type WebhookUpdate struct {
	PostID string
	Field  domain.MetricField
	Delta  int64
}

// APIStatus is the result of a lightweight reachability probe.
type APIStatus struct {
	Platform  domain.Platform `json:"platform"`
	Healthy   bool            `json:"healthy"`
	Latency   time.Duration   `json:"latency"`
	Message   string          `json:"message,omitempty"`
	Breaker   string          `json:"breaker"`
	CheckedAt time.Time       `json:"checked_at"`
}

// RateLimitStatus summarizes what the platform has told us about quota use.
type RateLimitStatus struct {
	Platform         domain.Platform `json:"platform"`
	Status           string          `json:"status"`
	CallCountPct     float64         `json:"call_count_pct"`
	TotalTimePct     float64         `json:"total_time_pct"`
	TotalCPUTimePct  float64         `json:"total_cputime_pct"`
	ThrottleCount    int             `json:"throttle_count"`
	RequestsLastHour int             `json:"requests_last_hour"`
	RetryAfter       time.Duration   `json:"retry_after"`
	UpdatedAt        time.Time       `json:"updated_at,omitzero"`
}
