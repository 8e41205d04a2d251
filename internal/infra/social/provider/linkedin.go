package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/apierr"
)

var linkedInScopes = []string{"r_liteprofile", "w_member_social", "r_organization_social", "w_organization_social"}

const organizationURNPrefix = "urn:li:organization:"

// LinkedInConfig holds the LinkedIn app credentials.
type LinkedInConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	BaseURL      string   `yaml:"base_url"`
	OAuthURL     string   `yaml:"oauth_url"`
	Scopes       []string `yaml:"scopes"`
}

func (c LinkedInConfig) withDefaults() LinkedInConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultLinkedInURL
	}
	if c.OAuthURL == "" {
		c.OAuthURL = DefaultLinkedInOAuthURL
	}
	if len(c.Scopes) == 0 {
		c.Scopes = linkedInScopes
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.OAuthURL = strings.TrimRight(c.OAuthURL, "/")
	return c
}

// LinkedInClient publishes UGC posts for members and organizations.
type LinkedInClient struct {
	*baseClient
	cfg LinkedInConfig
}

var _ Client = (*LinkedInClient)(nil)

// NewLinkedInClient creates a LinkedIn REST client.
func NewLinkedInClient(cfg LinkedInConfig, opts Options) *LinkedInClient {
	return &LinkedInClient{
		baseClient: newBaseClient(domain.PlatformLinkedIn, opts),
		cfg:        cfg.withDefaults(),
	}
}

func restliHeader() http.Header {
	return http.Header{"X-Restli-Protocol-Version": {"2.0.0"}}
}

// endpoint joins path segments, escaping URN colons as LinkedIn expects.
func (c *LinkedInClient) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.QueryEscape(p)
	}
	return c.cfg.BaseURL + "/" + strings.Join(escaped, "/")
}

type ugcPost struct {
	Author          string            `json:"author"`
	LifecycleState  string            `json:"lifecycleState"`
	SpecificContent ugcSpecific       `json:"specificContent"`
	Visibility      map[string]string `json:"visibility"`
}

type ugcSpecific struct {
	ShareContent ugcShareContent `json:"com.linkedin.ugc.ShareContent"`
}

type ugcShareContent struct {
	ShareCommentary    ugcText    `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
	Media              []ugcMedia `json:"media,omitempty"`
}

type ugcText struct {
	Text string `json:"text"`
}

type ugcMedia struct {
	Status      string `json:"status"`
	OriginalURL string `json:"originalUrl"`
}

// Publish creates a UGC post authored by the member, or by the organization
// named in TargetOrgID. LinkedIn has no scheduling on this endpoint, so
// ScheduledAt is ignored.
func (c *LinkedInClient) Publish(ctx context.Context, acct *domain.PlatformAccount, req domain.PublishRequest) (*PublishResult, error) {
	const op = "publish post"
	if err := req.Validate(); err != nil {
		return nil, apierr.Fatal(err.Error()).WithCause(err).WithOp(op)
	}

	author := "urn:li:person:" + acct.PlatformUserID
	if req.TargetOrgID != "" {
		author = organizationURNPrefix + req.TargetOrgID
	}

	share := ugcShareContent{
		ShareCommentary:    ugcText{Text: req.Content},
		ShareMediaCategory: "NONE",
	}
	if req.MediaURL != "" {
		share.ShareMediaCategory = "ARTICLE"
		share.Media = []ugcMedia{{Status: "READY", OriginalURL: req.MediaURL}}
	}

	var (
		resp   graphID
		header http.Header
	)
	err := c.do(ctx, apiRequest{
		op:     op,
		method: "POST",
		url:    c.endpoint("ugcPosts"),
		bearer: acct.AccessToken,
		header: restliHeader(),
		body: ugcPost{
			Author:          author,
			LifecycleState:  "PUBLISHED",
			SpecificContent: ugcSpecific{ShareContent: share},
			Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
		},
		respHeader: &header,
	}, &resp)
	if err != nil {
		return nil, err
	}

	id := resp.ID
	if id == "" {
		id = header.Get("X-RestLi-Id")
	}
	if id == "" {
		return nil, apierr.Fatal("response did not include a post id").WithOp(op)
	}
	return &PublishResult{
		PlatformPostID: id,
		URL:            "https://www.linkedin.com/feed/update/" + id,
		PublishedAt:    time.Now().UTC(),
	}, nil
}

type socialActionsResponse struct {
	LikesSummary struct {
		TotalLikes int64 `json:"totalLikes"`
	} `json:"likesSummary"`
	CommentsSummary struct {
		AggregatedTotalComments int64 `json:"aggregatedTotalComments"`
	} `json:"commentsSummary"`
}

type shareStatisticsResponse struct {
	Elements []struct {
		TotalShareStatistics struct {
			ShareCount             int64 `json:"shareCount"`
			ImpressionCount        int64 `json:"impressionCount"`
			UniqueImpressionsCount int64 `json:"uniqueImpressionsCount"`
		} `json:"totalShareStatistics"`
	} `json:"elements"`
}

// GetPostMetrics merges social actions with share statistics. Statistics
// exist only for organization posts, so unless ForOrganization is given the
// post is treated as a member post with zero shares, reach and impressions.
func (c *LinkedInClient) GetPostMetrics(ctx context.Context, acct *domain.PlatformAccount, platformPostID string, opts ...MetricsOption) (*domain.EngagementMetrics, error) {
	var actions socialActionsResponse
	err := c.do(ctx, apiRequest{
		op:     "get social actions",
		method: "GET",
		url:    c.endpoint("socialActions", platformPostID),
		bearer: acct.AccessToken,
		header: restliHeader(),
	}, &actions)
	if err != nil {
		return nil, err
	}

	m := &domain.EngagementMetrics{
		Likes:       actions.LikesSummary.TotalLikes,
		Comments:    actions.CommentsSummary.AggregatedTotalComments,
		CollectedAt: time.Now().UTC(),
	}

	q := NewMetricsQuery(opts...)
	if q.OrganizationID == "" {
		return m, nil
	}

	filter := shareFilter(platformPostID)
	var stats shareStatisticsResponse
	err = c.do(ctx, apiRequest{
		op:     "get share statistics",
		method: "GET",
		url:    c.endpoint("organizationalEntityShareStatistics"),
		bearer: acct.AccessToken,
		header: restliHeader(),
		query: url.Values{
			"q":                    {"organizationalEntity"},
			"organizationalEntity": {organizationURNPrefix + q.OrganizationID},
			filter:                 {platformPostID},
		},
	}, &stats)
	if err != nil {
		return nil, err
	}
	if len(stats.Elements) > 0 {
		s := stats.Elements[0].TotalShareStatistics
		m.Shares = s.ShareCount
		m.Reach = s.UniqueImpressionsCount
		m.Impressions = s.ImpressionCount
	}
	return m, nil
}

// shareFilter picks the statistics filter for the post URN type.
func shareFilter(urn string) string {
	if strings.HasPrefix(urn, "urn:li:ugcPost:") {
		return "ugcPosts[0]"
	}
	return "shares[0]"
}

// RefreshAccessToken runs the refresh_token grant.
func (c *LinkedInClient) RefreshAccessToken(ctx context.Context, acct *domain.PlatformAccount) (*TokenGrant, error) {
	const op = "refresh access token"
	if acct.RefreshToken == "" {
		return nil, apierr.Fatal("account has no refresh token").WithOp(op)
	}

	var resp tokenResponse
	err := c.do(ctx, apiRequest{
		op:     op,
		method: "POST",
		url:    c.cfg.OAuthURL + "/accessToken",
		form: url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {acct.RefreshToken},
			"client_id":     {c.cfg.ClientID},
			"client_secret": {c.cfg.ClientSecret},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.grant(op)
}

// ValidateWebhookSignature always succeeds; LinkedIn sends no engagement webhooks.
func (c *LinkedInClient) ValidateWebhookSignature(_ []byte, _ string) bool {
	return true
}

// ProcessWebhookData returns no updates.
func (c *LinkedInClient) ProcessWebhookData(_ []byte) ([]WebhookUpdate, error) {
	return nil, nil
}

// AuthorizationURL builds the LinkedIn consent URL.
func (c *LinkedInClient) AuthorizationURL(redirectURI, state string) string {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {c.cfg.ClientID},
		"redirect_uri":  {redirectURI},
		"state":         {state},
		"scope":         {strings.Join(c.cfg.Scopes, " ")},
	}
	return c.cfg.OAuthURL + "/authorization?" + q.Encode()
}

// CheckAPIStatus probes the REST root.
func (c *LinkedInClient) CheckAPIStatus(ctx context.Context) APIStatus {
	return c.probe(ctx, c.cfg.BaseURL+"/")
}

// TestConnectivity reads the member profile behind the token.
func (c *LinkedInClient) TestConnectivity(ctx context.Context, acct *domain.PlatformAccount) error {
	return c.do(ctx, apiRequest{
		op:     "test connectivity",
		method: "GET",
		url:    c.endpoint("me"),
		bearer: acct.AccessToken,
		header: restliHeader(),
	}, nil)
}
