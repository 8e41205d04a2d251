package storage

import (
	"context"
	"time"

	"github.com/vietddude/socialhub/internal/core/domain"
)

// AccountRepository stores linked platform accounts and their tokens.
type AccountRepository interface {
	// Get returns domain.ErrNotFound when the account does not exist.
	Get(ctx context.Context, id string) (*domain.PlatformAccount, error)

	// Create inserts an account, assigning an id when empty.
	Create(ctx context.Context, acct *domain.PlatformAccount) error

	// UpdateTokens writes refreshed tokens only if the stored expiry still
	// equals expectedExpiresAt (nil matches NULL). A concurrent refresh that
	// already moved the expiry yields domain.ErrStaleTokens.
	UpdateTokens(ctx context.Context, id string, expectedExpiresAt *time.Time, upd domain.TokenUpdate) error
}

// PostRepository stores posts and their publication state.
type PostRepository interface {
	Get(ctx context.Context, id string) (*domain.Post, error)
	Create(ctx context.Context, post *domain.Post) error
	Update(ctx context.Context, post *domain.Post) error

	// FindByPlatformPostID resolves a platform-assigned id back to a post.
	FindByPlatformPostID(ctx context.Context, platform domain.Platform, platformPostID string) (*domain.Post, error)

	// CountByStatus returns the number of posts in each status.
	CountByStatus(ctx context.Context) (map[domain.PostStatus]int, error)
}

// MetricsRepository stores the latest engagement snapshot per post.
type MetricsRepository interface {
	// Upsert replaces the snapshot for m.PostID.
	Upsert(ctx context.Context, m *domain.EngagementMetrics) error

	Get(ctx context.Context, postID string) (*domain.EngagementMetrics, error)

	// ApplyDelta atomically moves one counter, clamping at zero and creating
	// the record when absent.
	ApplyDelta(ctx context.Context, postID string, field domain.MetricField, delta int64) error
}
