package jobs

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/apierr"
	"github.com/vietddude/socialhub/internal/infra/social/provider"
	"github.com/vietddude/socialhub/internal/infra/social/provider/providertest"
	"github.com/vietddude/socialhub/internal/infra/social/retry"
	"github.com/vietddude/socialhub/internal/infra/storage/memory"
)

type passthroughTokens struct{}

func (passthroughTokens) Fresh(_ context.Context, acct *domain.PlatformAccount) (*domain.PlatformAccount, error) {
	return acct, nil
}

type collectorFixture struct {
	collector *MetricsCollector
	posts     *memory.PostRepo
	accounts  *memory.AccountRepo
	metrics   *memory.MetricsRepo
	client    *providertest.Client
}

func newCollectorFixture(t *testing.T) *collectorFixture {
	t.Helper()
	store := memory.NewMemoryStorage()
	f := &collectorFixture{
		posts:    memory.NewPostRepo(store),
		accounts: memory.NewAccountRepo(store),
		metrics:  memory.NewMetricsRepo(store),
		client:   providertest.New(domain.PlatformFacebook),
	}
	noSleep := retry.WithSleep(func(context.Context, time.Duration) error { return nil })
	f.collector = NewMetricsCollector(f.posts, f.accounts, f.metrics,
		provider.NewRegistry(f.client), passthroughTokens{}, nil, noSleep)
	return f
}

func (f *collectorFixture) seed(t *testing.T, status domain.PostStatus, platformPostID string) *domain.Post {
	t.Helper()
	ctx := context.Background()
	acct := &domain.PlatformAccount{Platform: domain.PlatformFacebook, PlatformUserID: "page1", AccessToken: "tok"}
	if err := f.accounts.Create(ctx, acct); err != nil {
		t.Fatal(err)
	}
	post := &domain.Post{
		AccountID:      acct.ID,
		Platform:       domain.PlatformFacebook,
		Content:        "hi",
		Status:         status,
		PlatformPostID: platformPostID,
	}
	if err := f.posts.Create(ctx, post); err != nil {
		t.Fatal(err)
	}
	return post
}

func collectJob(postID string, attempt int) domain.Job {
	j := domain.NewJob(domain.JobCollectMetrics, postID)
	j.Attempt = attempt
	return j
}

func TestCollectStoresMetrics(t *testing.T) {
	f := newCollectorFixture(t)
	f.client.MetricsFunc = func(_ context.Context, _ *domain.PlatformAccount, id string) (*domain.EngagementMetrics, error) {
		if id != "page1_1" {
			t.Errorf("platform post id = %q", id)
		}
		return &domain.EngagementMetrics{Likes: 10, Comments: 2, Shares: 1, Reach: 300, Impressions: 450}, nil
	}
	post := f.seed(t, domain.PostStatusPublished, "page1_1")

	if err := f.collector.Handle(context.Background(), collectJob(post.ID, 1)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	m, err := f.metrics.Get(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("Get metrics: %v", err)
	}
	if m.PostID != post.ID || m.Likes != 10 || m.Impressions != 450 || m.CollectedAt.IsZero() {
		t.Errorf("metrics = %+v", m)
	}
}

func TestCollectSkipsIneligiblePosts(t *testing.T) {
	tests := []struct {
		name           string
		status         domain.PostStatus
		platformPostID string
	}{
		{"draft", domain.PostStatusDraft, ""},
		{"approved", domain.PostStatusApproved, ""},
		{"published without id", domain.PostStatusPublished, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCollectorFixture(t)
			post := f.seed(t, tt.status, tt.platformPostID)
			if err := f.collector.Handle(context.Background(), collectJob(post.ID, 1)); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if f.client.Calls("GetPostMetrics") != 0 {
				t.Error("platform was called for an ineligible post")
			}
		})
	}

	f := newCollectorFixture(t)
	if err := f.collector.Handle(context.Background(), collectJob("missing", 1)); err != nil {
		t.Errorf("missing post: %v", err)
	}
}

func TestCollectFatalCompletes(t *testing.T) {
	f := newCollectorFixture(t)
	f.client.MetricsFunc = func(context.Context, *domain.PlatformAccount, string) (*domain.EngagementMetrics, error) {
		return nil, apierr.New(http.StatusNotFound, "Unsupported get request", false, false)
	}
	post := f.seed(t, domain.PostStatusPublished, "page1_1")

	if err := f.collector.Handle(context.Background(), collectJob(post.ID, 1)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if n := f.client.Calls("GetPostMetrics"); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
	if _, err := f.metrics.Get(context.Background(), post.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("metrics stored after fatal failure: %v", err)
	}
}

func TestCollectTransientReleasesWithBackoff(t *testing.T) {
	for _, tt := range []struct {
		attempt int
		want    time.Duration
	}{
		{1, 60 * time.Second},
		{2, 120 * time.Second},
	} {
		f := newCollectorFixture(t)
		f.client.MetricsFunc = func(context.Context, *domain.PlatformAccount, string) (*domain.EngagementMetrics, error) {
			return nil, apierr.New(http.StatusServiceUnavailable, "Service temporarily unavailable", false, true)
		}
		post := f.seed(t, domain.PostStatusPublished, "page1_1")

		err := f.collector.Handle(context.Background(), collectJob(post.ID, tt.attempt))
		var rel *ReleaseError
		if !errors.As(err, &rel) {
			t.Fatalf("attempt %d: err = %v, want ReleaseError", tt.attempt, err)
		}
		if rel.Delay != tt.want {
			t.Errorf("attempt %d: delay = %v, want %v", tt.attempt, rel.Delay, tt.want)
		}
		if n := f.client.Calls("GetPostMetrics"); n != retry.DefaultConfig.MaxAttempts {
			t.Errorf("calls = %d, want %d", n, retry.DefaultConfig.MaxAttempts)
		}
	}
}

func TestCollectRateLimitReleasesWithRetryAfter(t *testing.T) {
	f := newCollectorFixture(t)
	f.client.MetricsFunc = func(context.Context, *domain.PlatformAccount, string) (*domain.EngagementMetrics, error) {
		return nil, apierr.New(http.StatusTooManyRequests, "Too many requests", true, true).WithRetryAfter(2 * time.Hour)
	}
	post := f.seed(t, domain.PostStatusPublished, "page1_1")

	err := f.collector.Handle(context.Background(), collectJob(post.ID, 1))
	var rel *ReleaseError
	if !errors.As(err, &rel) {
		t.Fatalf("err = %v, want ReleaseError", err)
	}
	if rel.Delay != 2*time.Hour {
		t.Errorf("delay = %v, want 2h", rel.Delay)
	}
	if n := f.client.Calls("GetPostMetrics"); n != 1 {
		t.Errorf("calls = %d, want 1 (long waits are not slept inline)", n)
	}
}

func TestCollectThroughRunnerDeadLetters(t *testing.T) {
	f := newCollectorFixture(t)
	f.client.MetricsFunc = func(context.Context, *domain.PlatformAccount, string) (*domain.EngagementMetrics, error) {
		return nil, apierr.New(http.StatusBadGateway, "Bad gateway", false, true)
	}
	post := f.seed(t, domain.PostStatusPublished, "page1_1")

	q := newRecordingQueue()
	r := newTestRunner(q)
	r.Handle(domain.JobCollectMetrics, f.collector.Handle)

	ctx := context.Background()
	_ = q.Enqueue(ctx, collectJob(post.ID, 1), 0)
	for range 3 {
		if _, err := r.Poll(ctx); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}

	if n := q.count(); n != 3 {
		t.Errorf("enqueues = %d, want 3 (initial + 2 releases)", n)
	}
	if l, _ := q.Len(ctx); l != 0 {
		t.Errorf("queue len = %d, want 0 after dead-letter", l)
	}
}

func TestCollectPassesTargetOrganization(t *testing.T) {
	f := newCollectorFixture(t)
	post := f.seed(t, domain.PostStatusPublished, "page1_1")
	post.TargetOrgID = "555"
	if err := f.posts.Update(context.Background(), post); err != nil {
		t.Fatal(err)
	}

	if err := f.collector.Handle(context.Background(), collectJob(post.ID, 1)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	queries := f.client.MetricsQueries()
	if len(queries) != 1 || queries[0].OrganizationID != "555" {
		t.Errorf("queries = %+v, want organization 555", queries)
	}
}
