package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobType names a queued unit of work.
type JobType string

const (
	JobCollectMetrics JobType = "collect_metrics"
)

// Job is a delayed, at-least-once task. Key identifies the subject of the
// job, for metrics collection the post id.
type Job struct {
	ID         string    `json:"id"`
	Type       JobType   `json:"type"`
	Key        string    `json:"key"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob creates the first attempt of a job.
func NewJob(t JobType, key string) Job {
	return Job{
		ID:         uuid.NewString(),
		Type:       t,
		Key:        key,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Next returns the job's following attempt.
func (j Job) Next() Job {
	j.Attempt++
	j.EnqueuedAt = time.Now().UTC()
	return j
}
