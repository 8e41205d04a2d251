// Package publishing drives a post through approval and publication.
package publishing

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/apierr"
	"github.com/vietddude/socialhub/internal/infra/social/provider"
	"github.com/vietddude/socialhub/internal/infra/storage"
	"github.com/vietddude/socialhub/internal/metrics"
)

// Config controls publishing behaviour.
type Config struct {
	// RestrictedPlatforms never publish through the API; the user gets
	// instructions for posting by hand instead.
	RestrictedPlatforms []domain.Platform `yaml:"restricted_platforms"`
	MetricsDelay        time.Duration     `yaml:"metrics_delay"`
}

// DefaultConfig restricts Instagram and collects metrics five minutes after
// publication.
func DefaultConfig() Config {
	return Config{
		RestrictedPlatforms: []domain.Platform{domain.PlatformInstagram},
		MetricsDelay:        5 * time.Minute,
	}
}

// MetricsScheduler schedules delayed metrics collection for a post.
type MetricsScheduler interface {
	ScheduleMetrics(ctx context.Context, postID string, delay time.Duration) error
}

// TokenSource hands out accounts with usable access tokens.
type TokenSource interface {
	Fresh(ctx context.Context, acct *domain.PlatformAccount) (*domain.PlatformAccount, error)
}

// Outcome is the kind of result a publish attempt produced.
type Outcome string

const (
	OutcomePublished             Outcome = "published"
	OutcomeManualPostingRequired Outcome = "manual_posting_required"
	OutcomeRequiresReauth        Outcome = "requires_reauth"
	OutcomeFailed                Outcome = "failed"
)

// ManualPosting tells the user how to publish a post by hand.
type ManualPosting struct {
	Instructions  string `json:"instructions"`
	ContentToCopy string `json:"content_to_copy"`
	MediaURL      string `json:"media_url,omitempty"`
	PlatformURL   string `json:"platform_url"`
}

// Result describes the outcome of Publish. Post is the post after the
// attempt.
type Result struct {
	Outcome Outcome        `json:"outcome"`
	Post    *domain.Post   `json:"post"`
	Manual  *ManualPosting `json:"manual,omitempty"`

	// Message and SuggestManual are set for failed and requires_reauth.
	Message       string `json:"message,omitempty"`
	SuggestManual bool   `json:"suggest_manual,omitempty"`

	Err *apierr.Error `json:"-"`
}

// Orchestrator publishes posts and records their status.
type Orchestrator struct {
	cfg       Config
	posts     storage.PostRepository
	accounts  storage.AccountRepository
	registry  *provider.Registry
	tokens    TokenSource
	scheduler MetricsScheduler
	logger    *slog.Logger
	now       func() time.Time
	pending   sync.WaitGroup
}

// NewOrchestrator creates an orchestrator. scheduler may be nil, in which
// case no metrics collection is scheduled.
func NewOrchestrator(
	cfg Config,
	posts storage.PostRepository,
	accounts storage.AccountRepository,
	registry *provider.Registry,
	tokens TokenSource,
	scheduler MetricsScheduler,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.MetricsDelay <= 0 {
		cfg.MetricsDelay = DefaultConfig().MetricsDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		posts:     posts,
		accounts:  accounts,
		registry:  registry,
		tokens:    tokens,
		scheduler: scheduler,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Restricted reports whether p must be published by hand.
func (o *Orchestrator) Restricted(p domain.Platform) bool {
	return slices.Contains(o.cfg.RestrictedPlatforms, p)
}

// Approve moves a draft post to approved.
func (o *Orchestrator) Approve(ctx context.Context, postID string) (*domain.Post, error) {
	return o.transition(ctx, postID, (*domain.Post).Approve)
}

// Reject moves a draft post to rejected.
func (o *Orchestrator) Reject(ctx context.Context, postID string) (*domain.Post, error) {
	return o.transition(ctx, postID, (*domain.Post).Reject)
}

func (o *Orchestrator) transition(ctx context.Context, postID string, apply func(*domain.Post, time.Time) error) (*domain.Post, error) {
	post, err := o.posts.Get(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := apply(post, o.now()); err != nil {
		return nil, err
	}
	if err := o.posts.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("update post %s: %w", postID, err)
	}
	return post, nil
}

// Publish publishes an approved post to its platform.
//
// Platform failures never come back as errors: they are reported through
// Result and leave the post in draft with LastError set. The returned error
// covers missing posts, invalid transitions and storage failures.
func (o *Orchestrator) Publish(ctx context.Context, postID string) (*Result, error) {
	post, err := o.posts.Get(ctx, postID)
	if err != nil {
		return nil, err
	}

	if o.Restricted(post.Platform) {
		if post.Status != domain.PostStatusDraft && post.Status != domain.PostStatusApproved {
			return nil, fmt.Errorf("%w: post %s is %s", domain.ErrInvalidTransition, post.ID, post.Status)
		}
		metrics.PublishTotal.WithLabelValues(post.Platform.String(), string(OutcomeManualPostingRequired)).Inc()
		return &Result{
			Outcome: OutcomeManualPostingRequired,
			Post:    post,
			Manual:  manualPosting(post),
		}, nil
	}

	if post.Status != domain.PostStatusApproved {
		return nil, fmt.Errorf("%w: post %s is %s, publish requires %s",
			domain.ErrInvalidTransition, post.ID, post.Status, domain.PostStatusApproved)
	}

	client, err := o.registry.Get(post.Platform)
	if err != nil {
		return nil, err
	}

	acct, err := o.accounts.Get(ctx, post.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", post.AccountID, err)
	}

	log := o.logger.With("post_id", post.ID, "platform", post.Platform.String())

	acct, err = o.tokens.Fresh(ctx, acct)
	if err != nil {
		apiErr, ok := apierr.As(err)
		if !ok {
			return nil, fmt.Errorf("refresh tokens for account %s: %w", post.AccountID, err)
		}
		log.Warn("Account requires re-authorization", "account_id", post.AccountID, "error", apiErr)
		msg := fmt.Sprintf("%s account requires re-authorization: %s", post.Platform.DisplayName(), apiErr.Message)
		if err := o.fail(ctx, post, msg); err != nil {
			return nil, err
		}
		metrics.PublishTotal.WithLabelValues(post.Platform.String(), string(OutcomeRequiresReauth)).Inc()
		return &Result{
			Outcome: OutcomeRequiresReauth,
			Post:    post,
			Message: msg,
			Err:     apiErr,
		}, nil
	}

	published, err := client.Publish(ctx, acct, post.PublishRequest())
	if err != nil {
		apiErr := apierr.ClassifyErr(err)
		log.Warn("Publish failed", "kind", apiErr.Kind().String(), "error", apiErr)
		if err := o.fail(ctx, post, apiErr.Message); err != nil {
			return nil, err
		}
		metrics.PublishTotal.WithLabelValues(post.Platform.String(), string(OutcomeFailed)).Inc()
		return &Result{
			Outcome:       OutcomeFailed,
			Post:          post,
			Message:       apiErr.Message,
			SuggestManual: !apiErr.IsRetryable,
			Err:           apiErr,
		}, nil
	}

	if err := post.MarkPublished(published.PlatformPostID, o.now()); err != nil {
		return nil, err
	}
	// The platform already has the post; record it even if the caller gave up.
	if err := o.posts.Update(context.WithoutCancel(ctx), post); err != nil {
		return nil, fmt.Errorf("record publication of post %s: %w", post.ID, err)
	}
	metrics.PublishTotal.WithLabelValues(post.Platform.String(), string(OutcomePublished)).Inc()
	log.Info("Post published", "platform_post_id", published.PlatformPostID, "url", published.URL)

	o.scheduleMetrics(ctx, post.ID)
	return &Result{Outcome: OutcomePublished, Post: post}, nil
}

// MarkAsManuallyPublished records a post the user published by hand.
// platformPostID may be empty when the user does not know it; metrics
// collection then has nothing to fetch.
func (o *Orchestrator) MarkAsManuallyPublished(ctx context.Context, postID, platformPostID string) (*domain.Post, error) {
	post, err := o.transition(ctx, postID, func(p *domain.Post, now time.Time) error {
		return p.MarkManuallyPublished(platformPostID, now)
	})
	if err != nil {
		return nil, err
	}
	metrics.PublishTotal.WithLabelValues(post.Platform.String(), "manual").Inc()
	o.scheduleMetrics(ctx, post.ID)
	return post, nil
}

// fail reverts post to draft. The write outlives ctx so a cancelled publish
// never leaves the post approved without a LastError.
func (o *Orchestrator) fail(ctx context.Context, post *domain.Post, message string) error {
	if err := post.RevertToDraft(message, o.now()); err != nil {
		return err
	}
	if err := o.posts.Update(context.WithoutCancel(ctx), post); err != nil {
		return fmt.Errorf("record failure of post %s: %w", post.ID, err)
	}
	return nil
}

// scheduleMetrics does not block the caller and never fails the publish.
func (o *Orchestrator) scheduleMetrics(ctx context.Context, postID string) {
	if o.scheduler == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		if err := o.scheduler.ScheduleMetrics(ctx, postID, o.cfg.MetricsDelay); err != nil {
			o.logger.Error("Failed to schedule metrics collection", "post_id", postID, "error", err)
		}
	}()
}

// Wait blocks until every scheduling started by Publish or
// MarkAsManuallyPublished has finished.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}
