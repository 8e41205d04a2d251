package publishing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/socialhub/internal/core/domain"
	"github.com/vietddude/socialhub/internal/infra/social/provider"
	"github.com/vietddude/socialhub/internal/infra/storage"
	"github.com/vietddude/socialhub/internal/metrics"
)

// Locker serializes work across processes. Release must be safe to call
// after the lock expired.
type Locker interface {
	Lock(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, err error)
}

const refreshLockTTL = 30 * time.Second

// TokenRefresher refreshes expired account tokens at most once at a time
// per account: singleflight inside the process, an optional distributed
// lock across processes, and a compare-and-swap on the stored expiry.
type TokenRefresher struct {
	accounts storage.AccountRepository
	registry *provider.Registry
	locker   Locker
	group    singleflight.Group
	logger   *slog.Logger
	now      func() time.Time
}

// NewTokenRefresher creates a refresher. locker may be nil.
func NewTokenRefresher(accounts storage.AccountRepository, registry *provider.Registry, locker Locker, logger *slog.Logger) *TokenRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenRefresher{
		accounts: accounts,
		registry: registry,
		locker:   locker,
		logger:   logger,
		now:      time.Now,
	}
}

// Fresh returns acct when its token is still valid, otherwise the account
// with refreshed tokens. Platform failures are returned as *apierr.Error.
func (r *TokenRefresher) Fresh(ctx context.Context, acct *domain.PlatformAccount) (*domain.PlatformAccount, error) {
	if !acct.NeedsRefresh(r.now()) {
		return acct, nil
	}

	// The refresh is shared by every waiter, so it must not end when the
	// caller that started it goes away. It is bounded by the lock TTL instead.
	ch := r.group.DoChan(acct.ID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshLockTTL)
		defer cancel()
		return r.refresh(ctx, acct.ID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.PlatformAccount), nil
	}
}

func (r *TokenRefresher) refresh(ctx context.Context, accountID string) (*domain.PlatformAccount, error) {
	if r.locker != nil {
		release, err := r.locker.Lock(ctx, "token-refresh:"+accountID, refreshLockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock account %s: %w", accountID, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("Failed to release refresh lock", "account_id", accountID, "error", err)
			}
		}()
	}

	// Another worker may have refreshed while we waited.
	current, err := r.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	if !current.NeedsRefresh(now) {
		return current, nil
	}

	client, err := r.registry.Get(current.Platform)
	if err != nil {
		return nil, err
	}

	grant, err := client.RefreshAccessToken(ctx, current)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(current.Platform.String(), "failed").Inc()
		r.logger.Warn("Token refresh failed",
			"account_id", accountID,
			"platform", current.Platform.String(),
			"error", err,
		)
		return nil, err
	}

	upd := grant.TokenUpdate(current, now)
	err = r.accounts.UpdateTokens(ctx, current.ID, current.ExpiresAt, upd)
	if errors.Is(err, domain.ErrStaleTokens) {
		metrics.TokenRefreshTotal.WithLabelValues(current.Platform.String(), "lost_race").Inc()
		return r.accounts.Get(ctx, accountID)
	}
	if err != nil {
		return nil, err
	}

	metrics.TokenRefreshTotal.WithLabelValues(current.Platform.String(), "refreshed").Inc()
	r.logger.Info("Refreshed access token", "account_id", accountID, "platform", current.Platform.String())

	refreshed := *current
	refreshed.AccessToken = upd.AccessToken
	refreshed.RefreshToken = upd.RefreshToken
	refreshed.ExpiresAt = upd.ExpiresAt
	return &refreshed, nil
}
