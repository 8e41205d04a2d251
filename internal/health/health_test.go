package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/provider"
	"github.com/vietddude/socialhub/internal/infra/social/provider/providertest"
	"github.com/vietddude/socialhub/internal/infra/storage/memory"
	"github.com/vietddude/socialhub/internal/oauth"
	"github.com/vietddude/socialhub/internal/webhook"
)

// =============================================================================
// Stubs
// =============================================================================

type stubPinger struct {
	err error
}

func (s stubPinger) Health(ctx context.Context) error { return s.err }

type stubQueue struct {
	n int64
}

func (s stubQueue) Len(ctx context.Context) (int64, error) { return s.n, nil }

// =============================================================================
// Monitor
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	fb := providertest.New(domain.PlatformFacebook)
	monitor := NewMonitor(provider.NewRegistry(fb), stubQueue{n: 7}, nil, map[string]Pinger{
		"database": stubPinger{},
	})

	report := monitor.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
	if report.QueueDepth != 7 {
		t.Errorf("queue depth = %d", report.QueueDepth)
	}
	if report.Platforms[domain.PlatformFacebook].Status != StatusHealthy {
		t.Errorf("facebook = %+v", report.Platforms[domain.PlatformFacebook])
	}
}

func TestMonitor_Degraded(t *testing.T) {
	fb := providertest.New(domain.PlatformFacebook)
	li := providertest.New(domain.PlatformLinkedIn)
	li.Healthy = false
	monitor := NewMonitor(provider.NewRegistry(fb, li), nil, nil, nil)

	report := monitor.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
	if report.Platforms[domain.PlatformLinkedIn].Status != StatusDegraded {
		t.Errorf("linkedin = %+v", report.Platforms[domain.PlatformLinkedIn])
	}
}

func TestMonitor_Throttled(t *testing.T) {
	fb := providertest.New(domain.PlatformFacebook)
	fb.RateLimit = provider.RateLimitStatus{Status: provider.UsageThrottled.String()}
	monitor := NewMonitor(provider.NewRegistry(fb), nil, nil, nil)

	if got := monitor.CheckHealth(context.Background()).SystemStatus; got != StatusDegraded {
		t.Errorf("expected degraded, got %s", got)
	}
}

func TestMonitor_Critical(t *testing.T) {
	monitor := NewMonitor(provider.NewRegistry(), nil, nil, map[string]Pinger{
		"redis": stubPinger{err: errors.New("connection refused")},
	})

	report := monitor.CheckHealth(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("expected critical, got %s", report.SystemStatus)
	}
	if report.Dependencies["redis"].Error != "connection refused" {
		t.Errorf("redis = %+v", report.Dependencies["redis"])
	}
}

func TestMonitor_CachesReport(t *testing.T) {
	fb := providertest.New(domain.PlatformFacebook)
	monitor := NewMonitor(provider.NewRegistry(fb), nil, nil, nil)

	monitor.CheckHealth(context.Background())
	monitor.CheckHealth(context.Background())
	if n := fb.Calls("CheckAPIStatus"); n != 1 {
		t.Errorf("probes = %d, want 1", n)
	}

	monitor.cacheFor = 0
	monitor.CheckHealth(context.Background())
	if n := fb.Calls("CheckAPIStatus"); n != 2 {
		t.Errorf("probes = %d, want 2 after cache expiry", n)
	}
}

func TestMonitor_PostCounts(t *testing.T) {
	store := memory.NewMemoryStorage()
	posts := memory.NewPostRepo(store)
	for _, s := range []domain.PostStatus{domain.PostStatusDraft, domain.PostStatusDraft, domain.PostStatusPublished} {
		_ = posts.Create(context.Background(), &domain.Post{Platform: domain.PlatformFacebook, Content: "x", Status: s})
	}
	monitor := NewMonitor(provider.NewRegistry(), nil, posts, nil)

	report := monitor.CheckHealth(context.Background())
	if report.Posts[domain.PostStatusDraft] != 2 || report.Posts[domain.PostStatusPublished] != 1 {
		t.Errorf("posts = %v", report.Posts)
	}
}

// =============================================================================
// Server
// =============================================================================

type serverFixture struct {
	handler http.Handler
	client  *providertest.Client
	posts   *memory.PostRepo
	metrics *memory.MetricsRepo
	signer  *oauth.StateSigner
}

func newServerFixture(t *testing.T, deps map[string]Pinger) *serverFixture {
	t.Helper()
	store := memory.NewMemoryStorage()
	f := &serverFixture{
		client:  providertest.New(domain.PlatformFacebook),
		posts:   memory.NewPostRepo(store),
		metrics: memory.NewMetricsRepo(store),
	}
	registry := provider.NewRegistry(f.client)

	signer, err := oauth.NewStateSigner("state-secret", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	f.signer = signer

	monitor := NewMonitor(registry, nil, f.posts, deps)
	srv := NewServer(monitor, Routes{
		Ingestor:        webhook.NewIngestor("verify-me", registry, f.posts, f.metrics, nil),
		Signer:          signer,
		Registry:        registry,
		RedirectBaseURL: "https://hub.example.com",
	}, 0, nil)
	f.handler = srv.Handler()
	return f
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	f := newServerFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	var report HealthReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := report.Platforms[domain.PlatformFacebook]; !ok {
		t.Errorf("detailed report missing facebook: %+v", report)
	}
}

func TestServer_HealthCritical(t *testing.T) {
	f := newServerFixture(t, map[string]Pinger{"database": stubPinger{err: errors.New("down")}})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	f := newServerFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestServer_Webhook(t *testing.T) {
	f := newServerFixture(t, nil)
	post := &domain.Post{Platform: domain.PlatformFacebook, Content: "x", Status: domain.PostStatusPublished, PlatformPostID: "page1_1"}
	_ = f.posts.Create(context.Background(), post)
	f.client.WebhookFunc = func([]byte) ([]provider.WebhookUpdate, error) {
		return []provider.WebhookUpdate{{PostID: "page1_1", Field: domain.MetricLikes, Delta: 1}}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", strings.NewReader(`{"object":"page"}`))
	req.Header.Set("X-Hub-Signature-256", "sha256=abc")
	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var res webhook.Result
	_ = json.NewDecoder(rec.Body).Decode(&res)
	if res.Applied != 1 {
		t.Errorf("result = %+v", res)
	}
	m, _ := f.metrics.Get(context.Background(), post.ID)
	if m == nil || m.Likes != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestServer_WebhookErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		sigOK  bool
		status int
	}{
		{"bad signature", "/webhooks/facebook", false, http.StatusUnauthorized},
		{"unknown platform", "/webhooks/myspace", true, http.StatusNotFound},
		{"unregistered platform", "/webhooks/linkedin", true, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFixture(t, nil)
			f.client.SignatureOK = tt.sigOK
			rec := f.do(httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(`{}`)))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestServer_WebhookVerify(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/webhooks/facebook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "1158201444" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/webhooks/facebook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestServer_OAuthFlow(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth/facebook/authorize?user_id=user-1", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("authorize status = %d, body = %s", rec.Code, rec.Body)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if got := loc.Query().Get("redirect_uri"); got != "https://hub.example.com/oauth/facebook/callback" {
		t.Errorf("redirect_uri = %q", got)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("no state in redirect")
	}

	rec = f.do(httptest.NewRequest(http.MethodGet, "/oauth/facebook/callback?code=abc&state="+url.QueryEscape(state), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("callback status = %d, body = %s", rec.Code, rec.Body)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `"user_id":"user-1"`) {
		t.Errorf("callback body = %s", body)
	}
}

func TestServer_OAuthRejectsBadState(t *testing.T) {
	f := newServerFixture(t, nil)

	linkedInState, _ := f.signer.Issue("user-1", domain.PlatformLinkedIn)
	tests := []struct {
		name  string
		query string
	}{
		{"missing state", "code=abc"},
		{"forged state", "code=abc&state=forged"},
		{"state for another platform", "code=abc&state=" + url.QueryEscape(linkedInState)},
		{"user denied", "error=access_denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth/facebook/callback?"+tt.query, nil))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth/facebook/authorize", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("authorize without user: status = %d", rec.Code)
	}
}
