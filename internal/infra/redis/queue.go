package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/socialhub/internal/core/domain"
)

// DefaultLeaseTTL is how long a claimed job stays invisible before another
// poller may take it again.
const DefaultLeaseTTL = 10 * time.Minute

// claimScript returns expired leases to the queue, then moves up to limit due
// ids into the in-flight set scored by their lease deadline. It replies with
// id, payload pairs.
//
// KEYS: queue, inflight, data. ARGV: now ms, lease deadline ms, limit.
var claimScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('ZADD', KEYS[1], ARGV[1], id)
end

local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[3])
local out = {}
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	local payload = redis.call('HGET', KEYS[3], id)
	if payload then
		redis.call('ZADD', KEYS[2], ARGV[2], id)
		table.insert(out, id)
		table.insert(out, payload)
	end
end
return out
`)

// Queue is a delayed job queue. Job ids sit in a sorted set scored by run-at
// unix millis and payloads in a hash. Dequeue leases jobs instead of deleting
// them, so a job whose worker dies reappears once its lease expires.
type Queue struct {
	c     *Client
	lease time.Duration
}

// NewQueue creates a queue on the client's key space. A lease of zero uses
// DefaultLeaseTTL.
func NewQueue(c *Client, lease time.Duration) *Queue {
	if lease <= 0 {
		lease = DefaultLeaseTTL
	}
	return &Queue{c: c, lease: lease}
}

// Enqueue schedules job to run after delay. Re-enqueueing a claimed job
// releases its lease in the same transaction.
func (q *Queue) Enqueue(ctx context.Context, job domain.Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	score := float64(time.Now().Add(delay).UnixMilli())

	_, err = q.c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.c.jobDataKey(), job.ID, payload)
		pipe.ZAdd(ctx, q.c.queueKey(), redis.Z{Score: score, Member: job.ID})
		pipe.ZRem(ctx, q.c.inflightKey(), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue leases up to limit jobs due at now. Each job must later be
// re-enqueued or acknowledged; otherwise it is handed out again after the
// lease. Payloads that no longer decode are moved aside and reported in the
// error next to the jobs that did decode.
func (q *Queue) Dequeue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	reply, err := claimScript.Run(ctx, q.c.rdb,
		[]string{q.c.queueKey(), q.c.inflightKey(), q.c.jobDataKey()},
		now.UnixMilli(), now.Add(q.lease).UnixMilli(), limit,
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	jobs := make([]domain.Job, 0, len(reply)/2)
	var errs []error
	for i := 0; i+1 < len(reply); i += 2 {
		id, payload := reply[i], reply[i+1]

		var job domain.Job
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			errs = append(errs, q.quarantine(ctx, id, payload, err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.Join(errs...)
}

// quarantine parks an undecodable payload under the corrupt hash.
func (q *Queue) quarantine(ctx context.Context, id, payload string, cause error) error {
	_, err := q.c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.c.corruptKey(), id, payload)
		pipe.HDel(ctx, q.c.jobDataKey(), id)
		pipe.ZRem(ctx, q.c.inflightKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("job %s: decode: %w; quarantine: %w", id, cause, err)
	}
	return fmt.Errorf("job %s moved to %s: %w", id, q.c.corruptKey(), cause)
}

// Ack drops a claimed job for good.
func (q *Queue) Ack(ctx context.Context, job domain.Job) error {
	_, err := q.c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.c.inflightKey(), job.ID)
		pipe.HDel(ctx, q.c.jobDataKey(), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack job %s: %w", job.ID, err)
	}
	return nil
}

// Len returns the number of jobs waiting to run, excluding leased ones.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.c.rdb.ZCard(ctx, q.c.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return n, nil
}

// InFlight returns the number of leased jobs.
func (q *Queue) InFlight(ctx context.Context) (int64, error) {
	n, err := q.c.rdb.ZCard(ctx, q.c.inflightKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return n, nil
}
