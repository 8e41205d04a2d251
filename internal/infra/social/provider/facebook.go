package provider

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/apierr"
)

var facebookScopes = []string{"pages_manage_posts", "pages_read_engagement", "read_insights"}

// FacebookClient publishes to and reads from Facebook pages.
type FacebookClient struct {
	graphClient
}

var _ Client = (*FacebookClient)(nil)

// NewFacebookClient creates a Graph client for pages.
func NewFacebookClient(cfg GraphConfig, opts Options) *FacebookClient {
	return &FacebookClient{graphClient{
		baseClient: newBaseClient(domain.PlatformFacebook, opts),
		cfg:        cfg.withDefaults(facebookScopes),
	}}
}

// Publish posts to the page feed, or to the page photos edge when the
// request carries media. Scheduled requests are created unpublished with a
// scheduled_publish_time.
func (c *FacebookClient) Publish(ctx context.Context, acct *domain.PlatformAccount, req domain.PublishRequest) (*PublishResult, error) {
	if err := req.Validate(); err != nil {
		return nil, apierr.Fatal(err.Error()).WithCause(err).WithOp("publish post")
	}

	form := url.Values{"access_token": {acct.AccessToken}}
	edge := "feed"
	if req.MediaURL != "" {
		edge = "photos"
		form.Set("url", req.MediaURL)
		form.Set("caption", req.Content)
	} else {
		form.Set("message", req.Content)
	}
	if ts := req.ScheduledEpoch(); ts > 0 {
		form.Set("published", "false")
		form.Set("scheduled_publish_time", strconv.FormatInt(ts, 10))
	}

	var resp graphID
	err := c.do(ctx, apiRequest{
		op:     "publish post",
		method: "POST",
		url:    c.endpoint(acct.PlatformUserID, edge),
		form:   form,
	}, &resp)
	if err != nil {
		return nil, err
	}

	id := resp.PostID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return nil, apierr.Fatal("response did not include a post id").WithOp("publish post")
	}
	return &PublishResult{
		PlatformPostID: id,
		URL:            "https://www.facebook.com/" + id,
		PublishedAt:    time.Now().UTC(),
	}, nil
}

type facebookPostFields struct {
	Reactions struct {
		Summary struct {
			TotalCount int64 `json:"total_count"`
		} `json:"summary"`
	} `json:"reactions"`
	Comments struct {
		Summary struct {
			TotalCount int64 `json:"total_count"`
		} `json:"summary"`
	} `json:"comments"`
	Shares struct {
		Count int64 `json:"count"`
	} `json:"shares"`
}

// GetPostMetrics reads reaction, comment and share counts plus the
// impression insights. Insights are optional for pages without the
// read_insights grant: a fatal insights failure leaves reach and
// impressions at zero.
func (c *FacebookClient) GetPostMetrics(ctx context.Context, acct *domain.PlatformAccount, platformPostID string, _ ...MetricsOption) (*domain.EngagementMetrics, error) {
	var fields facebookPostFields
	err := c.do(ctx, apiRequest{
		op:     "get post fields",
		method: "GET",
		url:    c.endpoint(platformPostID),
		query: url.Values{
			"fields":       {"reactions.summary(true),comments.summary(true),shares"},
			"access_token": {acct.AccessToken},
		},
	}, &fields)
	if err != nil {
		return nil, err
	}

	m := &domain.EngagementMetrics{
		Likes:       fields.Reactions.Summary.TotalCount,
		Comments:    fields.Comments.Summary.TotalCount,
		Shares:      fields.Shares.Count,
		CollectedAt: time.Now().UTC(),
	}

	var insights insightsResponse
	err = c.do(ctx, apiRequest{
		op:     "get post insights",
		method: "GET",
		url:    c.endpoint(platformPostID, "insights"),
		query: url.Values{
			"metric":       {"post_impressions,post_impressions_unique"},
			"access_token": {acct.AccessToken},
		},
	}, &insights)
	if err != nil {
		if apierr.KindOf(err) != apierr.KindFatal {
			return nil, err
		}
		c.logger.Warn("Post insights unavailable", "post", platformPostID, "error", err)
		return m, nil
	}

	m.Impressions = insights.value("post_impressions")
	m.Reach = insights.value("post_impressions_unique")
	return m, nil
}

// ProcessWebhookData maps page feed changes to metric deltas.
func (c *FacebookClient) ProcessWebhookData(payload []byte) ([]WebhookUpdate, error) {
	return parseGraphWebhook(payload)
}

// TestConnectivity reads the page behind the account token.
func (c *FacebookClient) TestConnectivity(ctx context.Context, acct *domain.PlatformAccount) error {
	return c.do(ctx, apiRequest{
		op:     "test connectivity",
		method: "GET",
		url:    c.endpoint(acct.PlatformUserID),
		query: url.Values{
			"fields":       {"id,name"},
			"access_token": {acct.AccessToken},
		},
	}, nil)
}
