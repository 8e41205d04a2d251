package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/vietddude/socialhub/internal/core/config"
	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/publishing"
)

func newTestApp(t *testing.T, graphURL string) *App {
	t.Helper()
	cfg, err := config.Parse([]byte(`
platforms:
  facebook:
    app_id: "app"
    app_secret: "secret"
    base_url: "` + graphURL + `"
  linkedin:
    client_id: "client"
oauth:
  state_secret: "state-secret"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	app, err := NewApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestNewRegistrySkipsUnconfiguredPlatforms(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1")

	var got []domain.Platform
	for _, c := range app.Registry.All() {
		got = append(got, c.Platform())
	}
	if len(got) != 2 || got[0] != domain.PlatformFacebook || got[1] != domain.PlatformLinkedIn {
		t.Errorf("registered = %v, want [facebook linkedin]", got)
	}
}

func TestAppPublishesAndSchedulesMetrics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /page1/feed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "page1_7"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	app := newTestApp(t, srv.URL)
	ctx := context.Background()

	acct := &domain.PlatformAccount{Platform: domain.PlatformFacebook, PlatformUserID: "page1", AccessToken: "tok"}
	if err := app.Accounts.Create(ctx, acct); err != nil {
		t.Fatal(err)
	}
	post := &domain.Post{AccountID: acct.ID, Platform: domain.PlatformFacebook, Content: "launch day"}
	if err := app.Posts.Create(ctx, post); err != nil {
		t.Fatal(err)
	}

	if _, err := app.Orchestrator.Approve(ctx, post.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	res, err := app.Orchestrator.Publish(ctx, post.ID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.Outcome != publishing.OutcomePublished || res.Post.PlatformPostID != "page1_7" {
		t.Fatalf("result = %+v", res)
	}

	app.Orchestrator.Wait()
	n, err := app.Queue.Len(ctx)
	if err != nil || n != 1 {
		t.Errorf("queued jobs = %d, %v; want 1", n, err)
	}

	due, _ := app.Queue.Dequeue(ctx, time.Now().Add(6*time.Minute), 10)
	if len(due) != 1 || due[0].Type != domain.JobCollectMetrics || due[0].Key != post.ID {
		t.Errorf("due = %+v", due)
	}
}

func TestDurableQueueRequiresRedis(t *testing.T) {
	app := newTestApp(t, "http://127.0.0.1:1")
	if app.DurableQueue() {
		t.Error("DurableQueue() = true with the in-process queue")
	}

	mr := miniredis.RunT(t)
	cfg, err := config.Parse([]byte(`
redis:
  url: "redis://` + mr.Addr() + `"
oauth:
  state_secret: "state-secret"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	durable, err := NewApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = durable.Close() })
	if !durable.DurableQueue() {
		t.Error("DurableQueue() = false with a redis queue")
	}
}
