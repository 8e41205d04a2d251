package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/apierr"
	"github.com/vietddude/socialhub/internal/infra/social/provider"
	"github.com/vietddude/socialhub/internal/infra/social/retry"
	"github.com/vietddude/socialhub/internal/infra/storage"
	"github.com/vietddude/socialhub/internal/metrics"
)

// Longer platform waits release the job instead of holding a worker.
const maxInlineWait = time.Minute

// TokenSource hands out accounts with usable access tokens.
type TokenSource interface {
	Fresh(ctx context.Context, acct *domain.PlatformAccount) (*domain.PlatformAccount, error)
}

// MetricsCollector fetches the engagement snapshot of a published post.
type MetricsCollector struct {
	posts     storage.PostRepository
	accounts  storage.AccountRepository
	store     storage.MetricsRepository
	registry  *provider.Registry
	tokens    TokenSource
	release   ExponentialBackoff
	retryOpts []retry.Option
	logger    *slog.Logger
}

func NewMetricsCollector(
	posts storage.PostRepository,
	accounts storage.AccountRepository,
	store storage.MetricsRepository,
	registry *provider.Registry,
	tokens TokenSource,
	logger *slog.Logger,
	retryOpts ...retry.Option,
) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsCollector{
		posts:     posts,
		accounts:  accounts,
		store:     store,
		registry:  registry,
		tokens:    tokens,
		release:   DefaultReleaseBackoff(),
		retryOpts: retryOpts,
		logger:    logger,
	}
}

// Handle implements Handler for domain.JobCollectMetrics. Posts that are
// gone, unpublished or without a platform id complete without work. Fatal
// platform errors complete the job; transient ones release it.
func (c *MetricsCollector) Handle(ctx context.Context, job domain.Job) error {
	log := c.logger.With("post_id", job.Key, "attempt", job.Attempt)

	post, err := c.posts.Get(ctx, job.Key)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info("Skipping metrics collection, post no longer exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load post: %w", err)
	}
	if post.Status != domain.PostStatusPublished || post.PlatformPostID == "" {
		log.Info("Skipping metrics collection",
			"status", string(post.Status),
			"platform_post_id", post.PlatformPostID,
		)
		return nil
	}

	log = log.With("platform", post.Platform.String())
	client, err := c.registry.Get(post.Platform)
	if err != nil {
		log.Error("No client for platform", "error", err)
		return nil
	}

	acct, err := c.accounts.Get(ctx, post.AccountID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("Skipping metrics collection, account no longer exists", "account_id", post.AccountID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}

	acct, err = c.tokens.Fresh(ctx, acct)
	if err != nil {
		return c.platformFailure(log, job, err)
	}

	opts := append([]retry.Option{
		retry.WithLabel(post.Platform.String()),
		retry.WithMaxWait(maxInlineWait),
		retry.WithOnRetry(func(attempt int, delay time.Duration, err *apierr.Error) {
			metrics.RetriesTotal.WithLabelValues(post.Platform.String(), err.Kind().String()).Inc()
		}),
	}, c.retryOpts...)

	var query []provider.MetricsOption
	if post.TargetOrgID != "" {
		query = append(query, provider.ForOrganization(post.TargetOrgID))
	}

	m, err := retry.Do(ctx, func(ctx context.Context) (*domain.EngagementMetrics, error) {
		return client.GetPostMetrics(ctx, acct, post.PlatformPostID, query...)
	}, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return c.platformFailure(log, job, err)
	}

	m.PostID = post.ID
	if m.CollectedAt.IsZero() {
		m.CollectedAt = time.Now().UTC()
	}
	if err := c.store.Upsert(ctx, m); err != nil {
		return fmt.Errorf("store metrics: %w", err)
	}

	log.Info("Collected post metrics",
		"likes", m.Likes,
		"comments", m.Comments,
		"shares", m.Shares,
		"reach", m.Reach,
		"impressions", m.Impressions,
	)
	return nil
}

func (c *MetricsCollector) platformFailure(log *slog.Logger, job domain.Job, err error) error {
	apiErr, ok := apierr.As(err)
	if !ok {
		return err
	}
	if !apiErr.IsRetryable {
		log.Warn("Metrics collection failed permanently", "error", apiErr)
		return nil
	}
	delay, ok := apiErr.RetryAfter()
	if !ok {
		delay = c.release.GetDelay(job.Attempt)
	}
	return &ReleaseError{Delay: delay, Err: apiErr}
}
