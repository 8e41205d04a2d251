// Package control wires configuration into running components.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietddude/socialhub/internal/core/config"
	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/health"
	redisclient "github.com/vietddude/socialhub/internal/infra/redis"
	"github.com/vietddude/socialhub/internal/infra/social/provider"
	"github.com/vietddude/socialhub/internal/infra/social/retry"
	"github.com/vietddude/socialhub/internal/infra/storage"
	"github.com/vietddude/socialhub/internal/infra/storage/memory"
	"github.com/vietddude/socialhub/internal/infra/storage/postgres"
	"github.com/vietddude/socialhub/internal/jobs"
	"github.com/vietddude/socialhub/internal/oauth"
	"github.com/vietddude/socialhub/internal/publishing"
	"github.com/vietddude/socialhub/internal/webhook"
)

// App is the main application struct that owns every long-lived component.
type App struct {
	cfg *config.AppConfig
	log *slog.Logger

	db          *postgres.DB
	redisClient *redisclient.Client

	Accounts storage.AccountRepository
	Posts    storage.PostRepository
	Metrics  storage.MetricsRepository
	Queue    jobs.Queue
	Registry *provider.Registry

	Orchestrator *publishing.Orchestrator
	Collector    *jobs.MetricsCollector

	runner       *jobs.Runner
	healthMon    *health.Monitor
	healthServer *health.Server
}

// DurableQueue reports whether scheduled jobs outlive the process.
func (a *App) DurableQueue() bool {
	return a.redisClient != nil
}

// NewApp creates a new App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{
		cfg: cfg,
		log: slog.Default(),
	}

	// 1. Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		a.db = db
		a.Accounts = postgres.NewAccountRepo(db)
		a.Posts = postgres.NewPostRepo(db)
		a.Metrics = postgres.NewMetricsRepo(db)
		a.log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		a.Accounts = memory.NewAccountRepo(store)
		a.Posts = memory.NewPostRepo(store)
		a.Metrics = memory.NewMetricsRepo(store)
		a.log.Info("Using Memory storage")
	}

	// 2. Queue and distributed lock
	var locker publishing.Locker
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			_ = a.closeStores()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = rc
		a.Queue = redisclient.NewQueue(rc, cfg.Redis.LeaseTTL)
		locker = redisclient.NewLocker(rc, 0)
		a.log.Info("Using Redis job queue")
	} else {
		a.Queue = memory.NewQueue()
		a.log.Info("Using in-process job queue")
	}

	// 3. Platform clients
	a.Registry = NewRegistry(cfg.Platforms, a.log)
	for _, c := range a.Registry.All() {
		a.log.Info("Registered platform", "platform", c.Platform().String())
	}

	// 4. Publishing and jobs
	tokens := publishing.NewTokenRefresher(a.Accounts, a.Registry, locker, a.log)
	a.Orchestrator = publishing.NewOrchestrator(
		cfg.Publishing,
		a.Posts,
		a.Accounts,
		a.Registry,
		tokens,
		jobs.NewScheduler(a.Queue),
		a.log,
	)
	a.Collector = jobs.NewMetricsCollector(
		a.Posts,
		a.Accounts,
		a.Metrics,
		a.Registry,
		tokens,
		a.log,
		retry.WithConfig(cfg.Retry),
	)
	a.runner = jobs.NewRunner(cfg.Jobs, a.Queue, a.log)
	a.runner.Handle(domain.JobCollectMetrics, a.Collector.Handle)

	// 5. HTTP surface
	deps := map[string]health.Pinger{}
	if a.db != nil {
		deps["database"] = a.db
	}
	if a.redisClient != nil {
		deps["redis"] = a.redisClient
	}
	a.healthMon = health.NewMonitor(a.Registry, a.Queue, a.Posts, deps)

	routes := health.Routes{
		Ingestor:        webhook.NewIngestor(cfg.Webhooks.VerifyToken, a.Registry, a.Posts, a.Metrics, a.log),
		Registry:        a.Registry,
		RedirectBaseURL: cfg.OAuth.RedirectBaseURL,
	}
	if cfg.OAuth.StateSecret != "" {
		signer, err := oauth.NewStateSigner(cfg.OAuth.StateSecret, cfg.OAuth.StateTTL)
		if err != nil {
			_ = a.closeStores()
			return nil, err
		}
		routes.Signer = signer
	} else {
		a.log.Warn("oauth.state_secret not set, OAuth routes disabled")
	}
	a.healthServer = health.NewServer(a.healthMon, routes, cfg.Server.Port, a.log)

	return a, nil
}

// NewRegistry builds a client for every platform that has credentials.
func NewRegistry(cfg config.PlatformsConfig, logger *slog.Logger) *provider.Registry {
	opts := provider.Options{
		Timeout: cfg.HTTP.Timeout,
		Breaker: cfg.HTTP.Breaker,
		Logger:  logger,
	}

	registry := provider.NewRegistry()
	if cfg.Facebook.AppID != "" {
		registry.Register(provider.NewFacebookClient(cfg.Facebook, opts))
	}
	if cfg.Instagram.AppID != "" {
		registry.Register(provider.NewInstagramClient(cfg.Instagram, opts))
	}
	if cfg.LinkedIn.ClientID != "" {
		registry.Register(provider.NewLinkedInClient(cfg.LinkedIn, opts))
	}
	return registry
}

// Start starts the HTTP server and background workers.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()
	a.log.Info("HTTP server listening", "port", a.cfg.Server.Port)

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	go a.runner.Start(ctx)
	return nil
}

// Stop stops the HTTP server and releases connections. Background workers
// stop when the context passed to Start is cancelled.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping socialhub...")
	err := a.healthServer.Stop(ctx)
	return errors.Join(err, a.Close())
}

// Close waits for pending scheduling and releases storage connections
// without touching the HTTP server.
func (a *App) Close() error {
	a.Orchestrator.Wait()
	return a.closeStores()
}

// Health returns the current health report.
func (a *App) Health(ctx context.Context) health.HealthReport {
	return a.healthMon.CheckHealth(ctx)
}

func (a *App) closeStores() error {
	var errs []error
	if a.redisClient != nil {
		errs = append(errs, a.redisClient.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
