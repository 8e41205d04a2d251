package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/storage"
)

// MemoryStorage backs every repository with maps. Records are copied on the
// way in and out so callers never share state with the store.
type MemoryStorage struct {
	accounts map[string]domain.PlatformAccount
	posts    map[string]domain.Post
	metrics  map[string]domain.EngagementMetrics
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		accounts: make(map[string]domain.PlatformAccount),
		posts:    make(map[string]domain.Post),
		metrics:  make(map[string]domain.EngagementMetrics),
	}
}

var (
	_ storage.AccountRepository = (*AccountRepo)(nil)
	_ storage.PostRepository    = (*PostRepo)(nil)
	_ storage.MetricsRepository = (*MetricsRepo)(nil)
)

// -----------------------------------------------------------------------------
// Account Repository
// -----------------------------------------------------------------------------

type AccountRepo struct {
	store *MemoryStorage
}

func NewAccountRepo(store *MemoryStorage) *AccountRepo {
	return &AccountRepo{store: store}
}

func (r *AccountRepo) Get(ctx context.Context, id string) (*domain.PlatformAccount, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	a, ok := r.store.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, acct *domain.PlatformAccount) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	acct.UpdatedAt = now
	r.store.accounts[acct.ID] = *acct
	return nil
}

func (r *AccountRepo) UpdateTokens(ctx context.Context, id string, expected *time.Time, upd domain.TokenUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a, ok := r.store.accounts[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	if !sameTime(a.ExpiresAt, expected) {
		return fmt.Errorf("account %s: %w", id, domain.ErrStaleTokens)
	}
	a.AccessToken = upd.AccessToken
	if upd.RefreshToken != "" {
		a.RefreshToken = upd.RefreshToken
	}
	a.ExpiresAt = upd.ExpiresAt
	a.UpdatedAt = time.Now().UTC()
	r.store.accounts[id] = a
	return nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// -----------------------------------------------------------------------------
// Post Repository
// -----------------------------------------------------------------------------

type PostRepo struct {
	store *MemoryStorage
}

func NewPostRepo(store *MemoryStorage) *PostRepo {
	return &PostRepo{store: store}
}

func (r *PostRepo) Get(ctx context.Context, id string) (*domain.Post, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	p, ok := r.store.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

func (r *PostRepo) Create(ctx context.Context, post *domain.Post) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.Status == "" {
		post.Status = domain.PostStatusDraft
	}
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	r.store.posts[post.ID] = *post
	return nil
}

func (r *PostRepo) Update(ctx context.Context, post *domain.Post) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.posts[post.ID]; !ok {
		return fmt.Errorf("post %s: %w", post.ID, domain.ErrNotFound)
	}
	r.store.posts[post.ID] = *post
	return nil
}

func (r *PostRepo) FindByPlatformPostID(ctx context.Context, platform domain.Platform, platformPostID string) (*domain.Post, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, p := range r.store.posts {
		if p.Platform == platform && p.PlatformPostID == platformPostID {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("post %s/%s: %w", platform, platformPostID, domain.ErrNotFound)
}

func (r *PostRepo) CountByStatus(ctx context.Context) (map[domain.PostStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[domain.PostStatus]int)
	for _, p := range r.store.posts {
		counts[p.Status]++
	}
	return counts, nil
}

// -----------------------------------------------------------------------------
// Metrics Repository
// -----------------------------------------------------------------------------

type MetricsRepo struct {
	store *MemoryStorage
}

func NewMetricsRepo(store *MemoryStorage) *MetricsRepo {
	return &MetricsRepo{store: store}
}

func (r *MetricsRepo) Upsert(ctx context.Context, m *domain.EngagementMetrics) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.metrics[m.PostID] = *m
	return nil
}

func (r *MetricsRepo) Get(ctx context.Context, postID string) (*domain.EngagementMetrics, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	m, ok := r.store.metrics[postID]
	if !ok {
		return nil, fmt.Errorf("metrics %s: %w", postID, domain.ErrNotFound)
	}
	return &m, nil
}

func (r *MetricsRepo) ApplyDelta(ctx context.Context, postID string, field domain.MetricField, delta int64) error {
	if !field.Valid() {
		return fmt.Errorf("metric field %q: %w", field, domain.ErrInvalidRequest)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	m, ok := r.store.metrics[postID]
	if !ok {
		m = domain.EngagementMetrics{PostID: postID, CollectedAt: time.Now().UTC()}
	}
	var counter *int64
	switch field {
	case domain.MetricLikes:
		counter = &m.Likes
	case domain.MetricComments:
		counter = &m.Comments
	case domain.MetricShares:
		counter = &m.Shares
	}
	*counter = max(*counter+delta, 0)
	r.store.metrics[postID] = m
	return nil
}

// -----------------------------------------------------------------------------
// Job Queue
// -----------------------------------------------------------------------------

type queued struct {
	runAt time.Time
	job   domain.Job
}

// DefaultLeaseTTL is how long a dequeued job stays claimed before it becomes
// due again.
const DefaultLeaseTTL = 10 * time.Minute

// Queue is an in-process delayed job queue. Dequeued jobs are leased like in
// the Redis queue: they come back after the lease unless re-enqueued or
// acknowledged.
type Queue struct {
	mu       sync.Mutex
	items    []queued
	inflight map[string]queued
	lease    time.Duration
}

func NewQueue() *Queue {
	return &Queue{inflight: make(map[string]queued), lease: DefaultLeaseTTL}
}

func (q *Queue) Enqueue(ctx context.Context, job domain.Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, job.ID)
	q.items = slices.DeleteFunc(q.items, func(it queued) bool { return it.job.ID == job.ID })
	q.items = append(q.items, queued{runAt: time.Now().Add(delay), job: job})
	return nil
}

// Dequeue leases up to limit jobs due at now, earliest first.
func (q *Queue) Dequeue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, it := range q.inflight {
		if !it.runAt.After(now) {
			delete(q.inflight, id)
			q.items = append(q.items, queued{runAt: now, job: it.job})
		}
	}

	slices.SortStableFunc(q.items, func(a, b queued) int {
		return a.runAt.Compare(b.runAt)
	})

	var due []domain.Job
	i := 0
	for i < len(q.items) && len(due) < limit && !q.items[i].runAt.After(now) {
		job := q.items[i].job
		q.inflight[job.ID] = queued{runAt: now.Add(q.lease), job: job}
		due = append(due, job)
		i++
	}
	q.items = q.items[i:]
	return due, nil
}

// Ack drops a claimed job for good.
func (q *Queue) Ack(ctx context.Context, job domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, job.ID)
	return nil
}

// Len returns the number of jobs waiting to run, excluding leased ones.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// InFlight returns the number of leased jobs.
func (q *Queue) InFlight(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.inflight)), nil
}
