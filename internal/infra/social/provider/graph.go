package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/apierr"
)

// GraphConfig holds the Meta app credentials shared by Facebook and Instagram.
type GraphConfig struct {
	AppID     string   `yaml:"app_id"`
	AppSecret string   `yaml:"app_secret"`
	BaseURL   string   `yaml:"base_url"`
	DialogURL string   `yaml:"dialog_url"`
	Scopes    []string `yaml:"scopes"`
}

func (c GraphConfig) withDefaults(scopes []string) GraphConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultGraphURL
	}
	if c.DialogURL == "" {
		c.DialogURL = DefaultGraphDialogURL
	}
	if len(c.Scopes) == 0 {
		c.Scopes = scopes
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// graphClient carries what Facebook and Instagram have in common: the
// Graph base URL, the long-lived token exchange and signed webhooks.
type graphClient struct {
	*baseClient
	cfg GraphConfig
}

func (g *graphClient) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return g.cfg.BaseURL + "/" + strings.Join(escaped, "/")
}

type graphID struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (t tokenResponse) grant(op string) (*TokenGrant, error) {
	if t.AccessToken == "" {
		return nil, apierr.Fatal("token response did not include an access token").WithOp(op)
	}
	return &TokenGrant{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    time.Duration(t.ExpiresIn) * time.Second,
	}, nil
}

// RefreshAccessToken exchanges the current token for a long-lived one.
// Graph issues no refresh tokens.
func (g *graphClient) RefreshAccessToken(ctx context.Context, acct *domain.PlatformAccount) (*TokenGrant, error) {
	const op = "exchange access token"
	if acct.AccessToken == "" {
		return nil, apierr.Fatal("account has no access token to exchange").WithOp(op)
	}

	var resp tokenResponse
	err := g.do(ctx, apiRequest{
		op:     op,
		method: "GET",
		url:    g.endpoint("oauth", "access_token"),
		query: url.Values{
			"grant_type":        {"fb_exchange_token"},
			"client_id":         {g.cfg.AppID},
			"client_secret":     {g.cfg.AppSecret},
			"fb_exchange_token": {acct.AccessToken},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.grant(op)
}

// AuthorizationURL builds the Meta login dialog URL.
func (g *graphClient) AuthorizationURL(redirectURI, state string) string {
	q := url.Values{
		"client_id":     {g.cfg.AppID},
		"redirect_uri":  {redirectURI},
		"state":         {state},
		"response_type": {"code"},
		"scope":         {strings.Join(g.cfg.Scopes, ",")},
	}
	return g.cfg.DialogURL + "?" + q.Encode()
}

// CheckAPIStatus probes the Graph root.
func (g *graphClient) CheckAPIStatus(ctx context.Context) APIStatus {
	return g.probe(ctx, g.cfg.BaseURL+"/")
}

// ValidateWebhookSignature checks X-Hub-Signature-256 against the app secret.
func (g *graphClient) ValidateWebhookSignature(payload []byte, signature string) bool {
	return validSignature(g.cfg.AppSecret, payload, signature)
}

// SignPayload returns the X-Hub-Signature-256 value for payload.
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(SignPayload(secret, payload)), []byte(signature))
}

type insightsResponse struct {
	Data []struct {
		Name   string `json:"name"`
		Values []struct {
			Value json.RawMessage `json:"value"`
		} `json:"values"`
	} `json:"data"`
}

// value returns the latest numeric value of the named metric.
func (r insightsResponse) value(name string) int64 {
	for _, d := range r.Data {
		if d.Name != name || len(d.Values) == 0 {
			continue
		}
		var n int64
		if err := json.Unmarshal(d.Values[len(d.Values)-1].Value, &n); err == nil {
			return n
		}
	}
	return 0
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string          `json:"field"`
			Value json.RawMessage `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type feedChange struct {
	Item   string `json:"item"`
	Verb   string `json:"verb"`
	PostID string `json:"post_id"`
}

type commentChange struct {
	Media struct {
		ID string `json:"id"`
	} `json:"media"`
}

// parseGraphWebhook maps Graph change notifications to metric deltas. Page
// feed changes move likes, comments or shares by their verb; Instagram
// comment notifications count one new comment on the media.
func parseGraphWebhook(payload []byte) ([]WebhookUpdate, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}

	var updates []WebhookUpdate
	for _, entry := range body.Entry {
		for _, change := range entry.Changes {
			switch change.Field {
			case "feed":
				var v feedChange
				if err := json.Unmarshal(change.Value, &v); err != nil || v.PostID == "" {
					continue
				}
				field, ok := feedItemField(v.Item)
				if !ok {
					continue
				}
				var delta int64
				switch v.Verb {
				case "add":
					delta = 1
				case "remove":
					delta = -1
				default:
					continue
				}
				updates = append(updates, WebhookUpdate{PostID: v.PostID, Field: field, Delta: delta})
			case "comments":
				var v commentChange
				if err := json.Unmarshal(change.Value, &v); err != nil || v.Media.ID == "" {
					continue
				}
				updates = append(updates, WebhookUpdate{PostID: v.Media.ID, Field: domain.MetricComments, Delta: 1})
			}
		}
	}
	return updates, nil
}

func feedItemField(item string) (domain.MetricField, bool) {
	switch item {
	case "reaction", "like":
		return domain.MetricLikes, true
	case "comment":
		return domain.MetricComments, true
	case "share":
		return domain.MetricShares, true
	default:
		return "", false
	}
}
