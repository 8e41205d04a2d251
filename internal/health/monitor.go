package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/provider"
	"github.com/vietddude/socialhub/internal/infra/storage"
)

// Pinger checks a backing service such as the database or Redis.
type Pinger interface {
	Health(ctx context.Context) error
}

// QueueLen reports the number of pending jobs.
type QueueLen interface {
	Len(ctx context.Context) (int64, error)
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	registry     *provider.Registry
	queue        QueueLen
	posts        storage.PostRepository
	dependencies map[string]Pinger
	cacheFor     time.Duration
	lastCheck    time.Time
	lastReport   *HealthReport
	mu           sync.Mutex
}

// NewMonitor creates a new health monitor. dependencies maps a name such as
// "database" to its pinger; nil pingers are skipped.
func NewMonitor(
	registry *provider.Registry,
	queue QueueLen,
	posts storage.PostRepository,
	dependencies map[string]Pinger,
) *Monitor {
	deps := make(map[string]Pinger, len(dependencies))
	for name, p := range dependencies {
		if p != nil {
			deps[name] = p
		}
	}
	return &Monitor{
		registry:     registry,
		queue:        queue,
		posts:        posts,
		dependencies: deps,
		cacheFor:     10 * time.Second,
	}
}

// CheckHealth probes every platform and dependency. Results are cached
// briefly so frequent polling does not spend platform quota.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.cacheFor {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Platforms:    make(map[domain.Platform]PlatformHealth),
		Dependencies: make(map[string]DependencyHealth),
	}

	clients := m.registry.All()
	platforms := make([]PlatformHealth, len(clients))
	var g errgroup.Group
	for i, c := range clients {
		g.Go(func() error {
			platforms[i] = checkPlatform(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	for _, ph := range platforms {
		report.Platforms[ph.Platform] = ph
		report.SystemStatus = worst(report.SystemStatus, ph.Status)
	}

	for name, p := range m.dependencies {
		dep := DependencyHealth{Status: StatusHealthy}
		if err := p.Health(ctx); err != nil {
			dep = DependencyHealth{Status: StatusCritical, Error: err.Error()}
		}
		report.Dependencies[name] = dep
		report.SystemStatus = worst(report.SystemStatus, dep.Status)
	}

	if m.queue != nil {
		if depth, err := m.queue.Len(ctx); err == nil {
			report.QueueDepth = depth
		}
	}
	if m.posts != nil {
		if counts, err := m.posts.CountByStatus(ctx); err == nil {
			report.Posts = counts
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}

// checkPlatform never reports worse than degraded: one platform being down
// does not stop the others from publishing.
func checkPlatform(ctx context.Context, c provider.Client) PlatformHealth {
	ph := PlatformHealth{
		Platform:  c.Platform(),
		Status:    StatusHealthy,
		API:       c.CheckAPIStatus(ctx),
		RateLimit: c.GetRateLimitStatus(),
	}
	usage := ph.RateLimit.Status
	if !ph.API.Healthy || (usage != "" && usage != provider.UsageHealthy.String()) {
		ph.Status = StatusDegraded
	}
	return ph
}
