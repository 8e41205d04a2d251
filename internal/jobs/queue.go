// Package jobs runs delayed background work from a queue.
package jobs

import (
	"context"
	"time"

	"github.com/vietddude/socialhub/internal/core/domain"
)

// Queue is a delayed, at-least-once job queue. Dequeue leases jobs to the
// caller, which must then either Enqueue them again (releasing the lease) or
// Ack them. A lease that is never settled expires and the job runs again.
//
// Dequeue may return jobs together with an error; the jobs are leased and
// must still be settled.
type Queue interface {
	Enqueue(ctx context.Context, job domain.Job, delay time.Duration) error
	Dequeue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error)
	Ack(ctx context.Context, job domain.Job) error
	Len(ctx context.Context) (int64, error)
}

// Scheduler enqueues metrics collection for published posts.
type Scheduler struct {
	queue Queue
}

func NewScheduler(queue Queue) *Scheduler {
	return &Scheduler{queue: queue}
}

// ScheduleMetrics enqueues the first collection attempt for postID.
func (s *Scheduler) ScheduleMetrics(ctx context.Context, postID string, delay time.Duration) error {
	return s.queue.Enqueue(ctx, domain.NewJob(domain.JobCollectMetrics, postID), delay)
}
