package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/metrics"
)

// Handler processes one job. Returning nil completes it.
type Handler func(ctx context.Context, job domain.Job) error

// ReleaseError puts a job back on the queue after Delay instead of the
// runner's own backoff.
type ReleaseError struct {
	Delay time.Duration
	Err   error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("released for %s: %v", e.Delay, e.Err)
}

func (e *ReleaseError) Unwrap() error {
	return e.Err
}

// Config controls the runner.
type Config struct {
	Workers      int             `yaml:"workers"`
	PollInterval time.Duration   `yaml:"poll_interval"`
	BatchSize    int             `yaml:"batch_size"`
	MaxAttempts  int             `yaml:"max_attempts"`
	Backoff      []time.Duration `yaml:"backoff"`
}

func DefaultConfig() Config {
	return Config{
		Workers:      4,
		PollInterval: time.Second,
		BatchSize:    16,
		MaxAttempts:  3,
		Backoff:      DefaultStepBackoff(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if len(c.Backoff) == 0 {
		c.Backoff = d.Backoff
	}
	return c
}

// Runner polls a Queue and dispatches due jobs to handlers by type.
type Runner struct {
	cfg      Config
	queue    Queue
	handlers map[domain.JobType]Handler
	logger   *slog.Logger
	now      func() time.Time
}

func NewRunner(cfg Config, queue Queue, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:      cfg.withDefaults(),
		queue:    queue,
		handlers: make(map[domain.JobType]Handler),
		logger:   logger.With("component", "jobs"),
		now:      time.Now,
	}
}

// Handle registers h for jobs of type t. It must be called before Start.
func (r *Runner) Handle(t domain.JobType, h Handler) {
	r.handlers[t] = h
}

// Start runs the poll loop until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("Job runner started",
		"workers", r.cfg.Workers,
		"poll_interval", r.cfg.PollInterval,
		"max_attempts", r.cfg.MaxAttempts,
	)

	for {
		r.drain(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("Job runner stopped")
			return
		case <-ticker.C:
		}
	}
}

// drain polls until a batch comes back short.
func (r *Runner) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.Poll(ctx)
		if err != nil {
			r.logger.Error("Poll failed", "error", err)
			return
		}
		if n < r.cfg.BatchSize {
			return
		}
	}
}

// Poll claims one batch of due jobs and processes it on the worker pool.
// It returns the number of jobs claimed.
func (r *Runner) Poll(ctx context.Context) (int, error) {
	due, err := r.queue.Dequeue(ctx, r.now(), r.cfg.BatchSize)
	if err != nil {
		err = fmt.Errorf("dequeue: %w", err)
		if len(due) == 0 {
			return 0, err
		}
		// The jobs that were claimed are leased to us; run them anyway.
		r.logger.Error("Dequeue returned a partial batch", "claimed", len(due), "error", err)
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for _, job := range due {
		g.Go(func() error {
			r.process(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	if depth, err := r.queue.Len(ctx); err == nil {
		metrics.QueueDepth.Set(float64(depth))
	}
	return len(due), err
}

func (r *Runner) process(ctx context.Context, job domain.Job) {
	log := r.logger.With("job_id", job.ID, "type", string(job.Type), "key", job.Key, "attempt", job.Attempt)

	h, ok := r.handlers[job.Type]
	if !ok {
		r.deadLetter(ctx, log, job, errors.New("no handler registered"))
		return
	}

	err := h(ctx, job)
	if err == nil {
		metrics.JobsProcessed.WithLabelValues(string(job.Type), "success").Inc()
		r.ack(ctx, log, job)
		return
	}

	// Shutdown interrupted the handler; hand the same attempt back.
	if ctx.Err() != nil {
		r.requeue(ctx, log, job, 0)
		return
	}

	if job.Attempt >= r.cfg.MaxAttempts {
		r.deadLetter(ctx, log, job, err)
		return
	}

	delay := StepBackoff(r.cfg.Backoff).GetDelay(job.Attempt)
	result := "retry"
	var rel *ReleaseError
	if errors.As(err, &rel) {
		delay = rel.Delay
		result = "released"
	}

	log.Warn("Job failed, requeueing", "delay", delay, "error", err)
	metrics.JobsProcessed.WithLabelValues(string(job.Type), result).Inc()
	r.requeue(ctx, log, job.Next(), delay)
}

func (r *Runner) requeue(ctx context.Context, log *slog.Logger, job domain.Job, delay time.Duration) {
	if err := r.queue.Enqueue(context.WithoutCancel(ctx), job, delay); err != nil {
		log.Error("Failed to requeue job", "error", err)
	}
}

func (r *Runner) deadLetter(ctx context.Context, log *slog.Logger, job domain.Job, err error) {
	log.Error("Job dead-lettered", "error", err)
	metrics.JobsProcessed.WithLabelValues(string(job.Type), "dead_letter").Inc()
	metrics.JobsDeadLettered.WithLabelValues(string(job.Type)).Inc()
	r.ack(ctx, log, job)
}

// ack settles a finished job. On failure the lease expires and the job
// runs once more.
func (r *Runner) ack(ctx context.Context, log *slog.Logger, job domain.Job) {
	if err := r.queue.Ack(context.WithoutCancel(ctx), job); err != nil {
		log.Error("Failed to acknowledge job", "error", err)
	}
}
