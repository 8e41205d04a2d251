package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vietddude/socialhub/internal/core/domain"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFromRedis(rdb, "test"), mr
}

func TestQueueDelayedDequeue(t *testing.T) {
	c, mr := setupTestClient(t)
	q := NewQueue(c, 0)
	ctx := context.Background()

	soon := domain.NewJob(domain.JobCollectMetrics, "post-soon")
	later := domain.NewJob(domain.JobCollectMetrics, "post-later")
	if err := q.Enqueue(ctx, later, time.Hour); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, soon, time.Second); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if !mr.Exists("test:jobs") {
		t.Fatal("queue key not created")
	}

	jobs, err := q.Dequeue(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("got %d jobs before they were due", len(jobs))
	}

	jobs, err = q.Dequeue(ctx, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != soon.ID || jobs[0].Key != "post-soon" || jobs[0].Attempt != 1 {
		t.Fatalf("jobs = %+v", jobs)
	}

	n, err := q.Len(ctx)
	if err != nil || n != 1 {
		t.Errorf("Len = %d, %v; want 1", n, err)
	}
}

func TestQueueDequeueRespectsLimit(t *testing.T) {
	c, _ := setupTestClient(t)
	q := NewQueue(c, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = q.Enqueue(ctx, domain.NewJob(domain.JobCollectMetrics, "p"), 0)
	}

	jobs, err := q.Dequeue(ctx, time.Now().Add(time.Second), 2)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("got %d jobs, want 2", len(jobs))
	}
	if n, _ := q.Len(ctx); n != 3 {
		t.Errorf("Len = %d, want 3", n)
	}
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	c, _ := setupTestClient(t)
	l := NewLocker(c, 200*time.Millisecond)
	ctx := context.Background()

	release, err := l.Lock(ctx, "refresh:acct-1", time.Minute)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if _, err := l.Lock(ctx, "refresh:acct-1", time.Minute); !errors.Is(err, ErrLockNotObtained) {
		t.Errorf("second Lock err = %v, want ErrLockNotObtained", err)
	}

	if _, err := l.Lock(ctx, "refresh:acct-2", time.Minute); err != nil {
		t.Errorf("Lock on another key: %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	release2, err := l.Lock(ctx, "refresh:acct-1", time.Minute)
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	_ = release2(ctx)
}

func TestQueueLeaseRedeliversUnsettledJob(t *testing.T) {
	c, mr := setupTestClient(t)
	q := NewQueue(c, time.Minute)
	ctx := context.Background()
	now := time.Now()

	job := domain.NewJob(domain.JobCollectMetrics, "post-1")
	if err := q.Enqueue(ctx, job, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := q.Dequeue(ctx, now.Add(time.Second), 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("Dequeue = %+v, %v", claimed, err)
	}

	// The worker dies without settling the job.
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("Len = %d, want 0 while leased", n)
	}
	if n, _ := q.InFlight(ctx); n != 1 {
		t.Errorf("InFlight = %d, want 1", n)
	}
	if mr.HGet("test:jobs:data", job.ID) == "" {
		t.Error("payload dropped while leased")
	}

	again, err := q.Dequeue(ctx, now.Add(30*time.Second), 10)
	if err != nil || len(again) != 0 {
		t.Fatalf("redelivered before lease expiry: %+v, %v", again, err)
	}

	again, err = q.Dequeue(ctx, now.Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(again) != 1 || again[0].ID != job.ID || again[0].Attempt != 1 {
		t.Fatalf("after lease expiry = %+v", again)
	}
}

func TestQueueAckAndEnqueueSettleLease(t *testing.T) {
	c, mr := setupTestClient(t)
	q := NewQueue(c, time.Minute)
	ctx := context.Background()
	now := time.Now()

	done := domain.NewJob(domain.JobCollectMetrics, "done")
	retried := domain.NewJob(domain.JobCollectMetrics, "retried")
	_ = q.Enqueue(ctx, done, 0)
	_ = q.Enqueue(ctx, retried, 0)

	claimed, err := q.Dequeue(ctx, now.Add(time.Second), 10)
	if err != nil || len(claimed) != 2 {
		t.Fatalf("Dequeue = %+v, %v", claimed, err)
	}

	if err := q.Ack(ctx, done); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if err := q.Enqueue(ctx, retried.Next(), time.Hour); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if n, _ := q.InFlight(ctx); n != 0 {
		t.Errorf("InFlight = %d, want 0", n)
	}
	if mr.HGet("test:jobs:data", done.ID) != "" {
		t.Error("acked payload still stored")
	}

	later, err := q.Dequeue(ctx, now.Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if len(later) != 1 || later[0].ID != retried.ID || later[0].Attempt != 2 {
		t.Errorf("later = %+v, want only the retried job at attempt 2", later)
	}
}

func TestQueueQuarantinesCorruptPayload(t *testing.T) {
	c, mr := setupTestClient(t)
	q := NewQueue(c, time.Minute)
	ctx := context.Background()

	good := domain.NewJob(domain.JobCollectMetrics, "good")
	_ = q.Enqueue(ctx, good, 0)
	mr.HSet("test:jobs:data", "bad-1", "{not json")
	if _, err := mr.ZAdd("test:jobs", 0, "bad-1"); err != nil {
		t.Fatal(err)
	}

	jobs, err := q.Dequeue(ctx, time.Now().Add(time.Second), 10)
	if err == nil {
		t.Error("corrupt payload not reported")
	}
	if len(jobs) != 1 || jobs[0].ID != good.ID {
		t.Errorf("jobs = %+v, want the decodable job", jobs)
	}
	if got := mr.HGet("test:jobs:corrupt", "bad-1"); got != "{not json" {
		t.Errorf("corrupt payload = %q", got)
	}
	if n, _ := q.InFlight(ctx); n != 1 {
		t.Errorf("InFlight = %d, want 1", n)
	}
}
