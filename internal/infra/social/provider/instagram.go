package provider

import (
	"context"
	"net/url"
	"time"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/apierr"
)

var instagramScopes = []string{"instagram_basic", "instagram_content_publish", "instagram_manage_insights", "pages_show_list"}

const (
	opCreateContainer  = "create media container"
	opPublishContainer = "publish media container"
)

// InstagramClient publishes to Instagram business accounts through Graph.
type InstagramClient struct {
	graphClient
}

var _ Client = (*InstagramClient)(nil)

// NewInstagramClient creates a Graph client for Instagram business accounts.
func NewInstagramClient(cfg GraphConfig, opts Options) *InstagramClient {
	return &InstagramClient{graphClient{
		baseClient: newBaseClient(domain.PlatformInstagram, opts),
		cfg:        cfg.withDefaults(instagramScopes),
	}}
}

// Publish creates a media container and then publishes it. The second step
// runs only after the first succeeds, and a failure names the step.
func (c *InstagramClient) Publish(ctx context.Context, acct *domain.PlatformAccount, req domain.PublishRequest) (*PublishResult, error) {
	if err := req.Validate(); err != nil {
		return nil, apierr.Fatal(err.Error()).WithCause(err).WithOp(opCreateContainer)
	}
	if req.MediaURL == "" {
		return nil, apierr.Fatal("Instagram posts require an image").WithOp(opCreateContainer)
	}

	var container graphID
	err := c.do(ctx, apiRequest{
		op:     opCreateContainer,
		method: "POST",
		url:    c.endpoint(acct.PlatformUserID, "media"),
		form: url.Values{
			"image_url":    {req.MediaURL},
			"caption":      {req.Content},
			"access_token": {acct.AccessToken},
		},
	}, &container)
	if err != nil {
		return nil, err
	}
	if container.ID == "" {
		return nil, apierr.Fatal("response did not include a container id").WithOp(opCreateContainer)
	}

	var media graphID
	err = c.do(ctx, apiRequest{
		op:     opPublishContainer,
		method: "POST",
		url:    c.endpoint(acct.PlatformUserID, "media_publish"),
		form: url.Values{
			"creation_id":  {container.ID},
			"access_token": {acct.AccessToken},
		},
	}, &media)
	if err != nil {
		return nil, err
	}
	if media.ID == "" {
		return nil, apierr.Fatal("response did not include a media id").WithOp(opPublishContainer)
	}

	return &PublishResult{
		PlatformPostID: media.ID,
		PublishedAt:    time.Now().UTC(),
	}, nil
}

type instagramMediaFields struct {
	LikeCount     int64 `json:"like_count"`
	CommentsCount int64 `json:"comments_count"`
}

// GetPostMetrics merges media insights with the basic counters. Instagram
// does not expose shares, so Shares is always zero.
func (c *InstagramClient) GetPostMetrics(ctx context.Context, acct *domain.PlatformAccount, platformPostID string, _ ...MetricsOption) (*domain.EngagementMetrics, error) {
	var insights insightsResponse
	err := c.do(ctx, apiRequest{
		op:     "get media insights",
		method: "GET",
		url:    c.endpoint(platformPostID, "insights"),
		query: url.Values{
			"metric":       {"impressions,reach"},
			"access_token": {acct.AccessToken},
		},
	}, &insights)
	if err != nil {
		return nil, err
	}

	var fields instagramMediaFields
	err = c.do(ctx, apiRequest{
		op:     "get media fields",
		method: "GET",
		url:    c.endpoint(platformPostID),
		query: url.Values{
			"fields":       {"like_count,comments_count"},
			"access_token": {acct.AccessToken},
		},
	}, &fields)
	if err != nil {
		return nil, err
	}

	return &domain.EngagementMetrics{
		Likes:       fields.LikeCount,
		Comments:    fields.CommentsCount,
		Shares:      0,
		Reach:       insights.value("reach"),
		Impressions: insights.value("impressions"),
		CollectedAt: time.Now().UTC(),
	}, nil
}

// ProcessWebhookData maps comment notifications to metric deltas.
func (c *InstagramClient) ProcessWebhookData(payload []byte) ([]WebhookUpdate, error) {
	return parseGraphWebhook(payload)
}

// TestConnectivity reads the business account behind the token.
func (c *InstagramClient) TestConnectivity(ctx context.Context, acct *domain.PlatformAccount) error {
	return c.do(ctx, apiRequest{
		op:     "test connectivity",
		method: "GET",
		url:    c.endpoint(acct.PlatformUserID),
		query: url.Values{
			"fields":       {"id,username"},
			"access_token": {acct.AccessToken},
		},
	}, nil)
}
